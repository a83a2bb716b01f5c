package services

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"labreserve-client/internal/api"
	"labreserve-client/internal/models"
	"labreserve-client/internal/push"

	"golang.org/x/sync/errgroup"
)

const detailLookups = 8

func reservationID(r models.Reservation) int64 { return r.ID }

// enrich fills computer, lab and optionally user details. Lookups run in
// parallel and each result is applied to the rows carrying its own id. A
// failed lookup leaves the field empty.
func enrich(ctx context.Context, client *api.Client, rows []models.Reservation, withUsers bool) []models.Reservation {
	var (
		mu        sync.Mutex
		computers = map[int64]*models.Computer{}
		labs      = map[int64]*models.Lab{}
		users     = map[int64]*models.Identity{}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(detailLookups)
	for _, id := range uniqueIDs(rows, func(r models.Reservation) int64 { return r.ComputerID }) {
		g.Go(func() error {
			c, err := client.Computer(gctx, id)
			if err != nil {
				log.Printf("view: computer %d details: %v", id, err)
				return nil
			}
			mu.Lock()
			computers[id] = &c
			mu.Unlock()
			return nil
		})
	}
	if withUsers {
		for _, id := range uniqueIDs(rows, func(r models.Reservation) int64 { return r.UserID }) {
			g.Go(func() error {
				u, err := client.User(gctx, id)
				if err != nil {
					log.Printf("view: user %d details: %v", id, err)
					return nil
				}
				mu.Lock()
				users[id] = &u
				mu.Unlock()
				return nil
			})
		}
	}
	_ = g.Wait()

	labIDs := map[int64]bool{}
	for _, c := range computers {
		labIDs[c.LaboratoryID] = true
	}
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(detailLookups)
	for id := range labIDs {
		g.Go(func() error {
			l, err := client.Lab(gctx, id)
			if err != nil {
				log.Printf("view: lab %d details: %v", id, err)
				return nil
			}
			mu.Lock()
			labs[id] = &l
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	out := make([]models.Reservation, len(rows))
	for i, r := range rows {
		if c, ok := computers[r.ComputerID]; ok {
			r.Computer = c
			r.Laboratory = labs[c.LaboratoryID]
		}
		if u, ok := users[r.UserID]; ok {
			r.User = u
		}
		out[i] = r
	}
	return out
}

func uniqueIDs(rows []models.Reservation, key func(models.Reservation) int64) []int64 {
	seen := map[int64]bool{}
	ids := []int64{}
	for _, r := range rows {
		id := key(r)
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

// Partition splits reservations into upcoming, current and past relative to
// now, each sorted by start time.
type Partition struct {
	Upcoming []models.Reservation `json:"upcoming"`
	Current  []models.Reservation `json:"current"`
	Past     []models.Reservation `json:"past"`
}

func PartitionReservations(items []models.Reservation, now time.Time) Partition {
	p := Partition{Upcoming: []models.Reservation{}, Current: []models.Reservation{}, Past: []models.Reservation{}}
	for _, r := range items {
		switch {
		case r.StartTime.After(now):
			p.Upcoming = append(p.Upcoming, r)
		case r.EndTime.After(now):
			p.Current = append(p.Current, r)
		default:
			p.Past = append(p.Past, r)
		}
	}
	byStart := func(list []models.Reservation) {
		sort.SliceStable(list, func(i, j int) bool { return list[i].StartTime.Before(list[j].StartTime.Time) })
	}
	byStart(p.Upcoming)
	byStart(p.Current)
	byStart(p.Past)
	return p
}

func setStatus(status models.ReservationStatus) func(*models.Reservation) {
	return func(r *models.Reservation) { r.Status = status }
}

type ReservationsSnapshot struct {
	Reservations []models.Reservation `json:"reservations"`
	Loaded       bool                 `json:"loaded"`
	Error        string               `json:"error,omitempty"`
}

// ReservationsView is the admin list of every reservation with user, computer
// and lab details.
type ReservationsView struct {
	*scope
	deps         Deps
	reservations *List[models.Reservation]
}

func OpenReservationsView(ctx context.Context, deps Deps) *ReservationsView {
	v := &ReservationsView{scope: newScope(), deps: deps}
	v.reservations = NewList(reservationID, v.Notify)
	v.on(deps.Push, models.EventReservationUpdate, func(push.Event) {
		v.spawn("reservations refetch", v.Refresh)
	})
	v.on(deps.Push, models.EventReservationStatusUpdated, func(e push.Event) {
		var payload models.ReservationStatusEvent
		if err := e.Decode(&payload); err != nil || !payload.NewStatus.Valid() {
			return
		}
		v.reservations.Update(payload.ReservationID, setStatus(payload.NewStatus))
	})
	_ = v.Refresh(ctx)
	return v
}

func (v *ReservationsView) Refresh(ctx context.Context) error {
	ticket := v.reservations.Begin()
	rows, err := v.deps.Client.AllReservations(ctx)
	if err != nil {
		v.reservations.Fail(ticket, err)
		return err
	}
	v.reservations.Replace(ticket, enrich(ctx, v.deps.Client, rows, true))
	return nil
}

func (v *ReservationsView) Snapshot() ReservationsSnapshot {
	rows, loaded, err := v.reservations.Snapshot()
	return ReservationsSnapshot{Reservations: rows, Loaded: loaded, Error: UserMessage(err)}
}

// Confirm marks the reservation confirmed locally, then asks the server. The
// list is reloaded only when the server refuses.
func (v *ReservationsView) Confirm(ctx context.Context, id int64) error {
	return v.transition(ctx, id, models.ReservationConfirmed, v.deps.Client.ConfirmReservation)
}

func (v *ReservationsView) Cancel(ctx context.Context, id int64) error {
	return v.transition(ctx, id, models.ReservationCancelled, v.deps.Client.CancelReservation)
}

func (v *ReservationsView) transition(ctx context.Context, id int64, status models.ReservationStatus, call func(context.Context, int64) error) error {
	v.reservations.Update(id, setStatus(status))
	if err := call(ctx, id); err != nil {
		_ = v.Refresh(ctx)
		return err
	}
	return nil
}

func (v *ReservationsView) Delete(ctx context.Context, id int64) error {
	v.reservations.Remove(id)
	if err := v.deps.Client.DeleteReservation(ctx, id); err != nil {
		_ = v.Refresh(ctx)
		return err
	}
	return nil
}

func (v *ReservationsView) Close() {
	v.reservations.Close()
	v.scope.Close()
}

type MyReservationsSnapshot struct {
	Partition
	Loaded bool   `json:"loaded"`
	Error  string `json:"error,omitempty"`
}

// MyReservationsView is one user's reservations. Status events for other
// users are ignored.
type MyReservationsView struct {
	*scope
	deps         Deps
	userID       int64
	reservations *List[models.Reservation]
}

func OpenMyReservationsView(ctx context.Context, deps Deps, userID int64) *MyReservationsView {
	v := &MyReservationsView{scope: newScope(), deps: deps, userID: userID}
	v.reservations = NewList(reservationID, v.Notify)
	v.on(deps.Push, models.EventReservationUpdate, func(push.Event) {
		v.spawn("my reservations refetch", v.Refresh)
	})
	v.on(deps.Push, models.EventReservationStatusUpdated, func(e push.Event) {
		var payload models.ReservationStatusEvent
		if err := e.Decode(&payload); err != nil || payload.UserID != v.userID || !payload.NewStatus.Valid() {
			return
		}
		v.reservations.Update(payload.ReservationID, setStatus(payload.NewStatus))
	})
	_ = v.Refresh(ctx)
	return v
}

func (v *MyReservationsView) Refresh(ctx context.Context) error {
	ticket := v.reservations.Begin()
	rows, err := v.deps.Client.UserReservations(ctx, v.userID)
	if err != nil {
		v.reservations.Fail(ticket, err)
		return err
	}
	v.reservations.Replace(ticket, enrich(ctx, v.deps.Client, rows, false))
	return nil
}

func (v *MyReservationsView) Items() []models.Reservation {
	rows, _, _ := v.reservations.Snapshot()
	return rows
}

func (v *MyReservationsView) Snapshot() MyReservationsSnapshot {
	rows, loaded, err := v.reservations.Snapshot()
	return MyReservationsSnapshot{
		Partition: PartitionReservations(rows, v.deps.now()),
		Loaded:    loaded,
		Error:     UserMessage(err),
	}
}

func (v *MyReservationsView) Cancel(ctx context.Context, id int64) error {
	if _, ok := v.reservations.Get(id); !ok {
		return ErrNotFound("Reservation not found")
	}
	v.reservations.Update(id, setStatus(models.ReservationCancelled))
	if err := v.deps.Client.CancelReservation(ctx, id); err != nil {
		_ = v.Refresh(ctx)
		return err
	}
	return nil
}

func (v *MyReservationsView) Delete(ctx context.Context, id int64) error {
	if !v.reservations.Remove(id) {
		return ErrNotFound("Reservation not found")
	}
	if err := v.deps.Client.DeleteReservation(ctx, id); err != nil {
		_ = v.Refresh(ctx)
		return err
	}
	return nil
}

func (v *MyReservationsView) Close() {
	v.reservations.Close()
	v.scope.Close()
}
