package services

import (
	"context"

	"labreserve-client/internal/models"
	"labreserve-client/internal/push"
)

type DashboardStats struct {
	TotalLabs            int `json:"total_labs"`
	AvailableComputers   int `json:"available_computers"`
	TotalReservations    int `json:"total_reservations"`
	UpcomingReservations int `json:"upcoming_reservations"`
}

type reservationCounts struct {
	total    int
	upcoming int
}

type DashboardSnapshot struct {
	Stats          DashboardStats         `json:"stats"`
	MyReservations MyReservationsSnapshot `json:"my_reservations"`
	Loaded         bool                   `json:"loaded"`
	Error          string                 `json:"error,omitempty"`
}

// DashboardView is the student landing screen: counters plus the student's
// own reservations. Each counter is refetched on the events that can move it.
type DashboardView struct {
	*scope
	deps      Deps
	labs      *Value[int]
	available *Value[int]
	counts    *Value[reservationCounts]
	mine      *MyReservationsView
	stopMine  func()
}

func OpenDashboardView(ctx context.Context, deps Deps, userID int64) *DashboardView {
	v := &DashboardView{scope: newScope(), deps: deps}
	v.labs = NewValue[int](v.Notify)
	v.available = NewValue[int](v.Notify)
	v.counts = NewValue[reservationCounts](v.Notify)

	v.on(deps.Push, models.EventComputerStatusUpdated, func(push.Event) {
		v.spawn("available computers", v.refreshAvailable)
	})
	v.on(deps.Push, models.EventReservationUpdate, func(push.Event) {
		v.spawn("reservation counts", v.refreshCounts)
	})
	v.on(deps.Push, models.EventReservationStatusUpdated, func(e push.Event) {
		var payload models.ReservationStatusEvent
		if err := e.Decode(&payload); err == nil && payload.UserID == userID {
			v.spawn("reservation counts", v.refreshCounts)
		}
		v.spawn("available computers", v.refreshAvailable)
	})
	v.on(deps.Push, models.EventLabUpdate, func(push.Event) {
		v.spawn("lab count", v.refreshLabs)
	})
	v.on(deps.Push, models.EventLabDeleted, func(push.Event) {
		v.spawn("lab count", v.refreshLabs)
	})

	v.mine = OpenMyReservationsView(ctx, deps, userID)
	changes, stop := v.mine.Watch()
	v.stopMine = stop
	go func() {
		for {
			select {
			case <-changes:
				v.Notify()
			case <-v.ctx.Done():
				return
			}
		}
	}()
	_ = v.Refresh(ctx)
	return v
}

// Refresh reloads every counter. The own-reservations list refreshes itself.
func (v *DashboardView) Refresh(ctx context.Context) error {
	var firstErr error
	for _, fn := range []func(context.Context) error{v.refreshLabs, v.refreshAvailable, v.refreshCounts} {
		if err := fn(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (v *DashboardView) refreshLabs(ctx context.Context) error {
	ticket := v.labs.Begin()
	labs, err := v.deps.Client.Labs(ctx)
	if err != nil {
		v.labs.Fail(ticket, err)
		return err
	}
	v.labs.Set(ticket, len(labs))
	return nil
}

func (v *DashboardView) refreshAvailable(ctx context.Context) error {
	ticket := v.available.Begin()
	computers, err := v.deps.Client.AvailableComputers(ctx)
	if err != nil {
		v.available.Fail(ticket, err)
		return err
	}
	v.available.Set(ticket, len(computers))
	return nil
}

func (v *DashboardView) refreshCounts(ctx context.Context) error {
	ticket := v.counts.Begin()
	rows, err := v.deps.Client.Reservations(ctx)
	if err != nil {
		v.counts.Fail(ticket, err)
		return err
	}
	now := v.deps.now()
	counts := reservationCounts{total: len(rows)}
	for _, r := range rows {
		if r.StartTime.After(now) {
			counts.upcoming++
		}
	}
	v.counts.Set(ticket, counts)
	return nil
}

// MyReservations is the embedded own-reservations list, for cancel and delete.
func (v *DashboardView) MyReservations() *MyReservationsView {
	return v.mine
}

func (v *DashboardView) Snapshot() DashboardSnapshot {
	labs, labsLoaded, labsErr := v.labs.Get()
	available, availableLoaded, availableErr := v.available.Get()
	counts, countsLoaded, countsErr := v.counts.Get()
	snap := DashboardSnapshot{
		Stats: DashboardStats{
			TotalLabs:            labs,
			AvailableComputers:   available,
			TotalReservations:    counts.total,
			UpcomingReservations: counts.upcoming,
		},
		MyReservations: v.mine.Snapshot(),
		Loaded:         labsLoaded && availableLoaded && countsLoaded,
	}
	for _, err := range []error{labsErr, availableErr, countsErr} {
		if err != nil {
			snap.Error = UserMessage(err)
			break
		}
	}
	return snap
}

func (v *DashboardView) Close() {
	v.labs.Close()
	v.available.Close()
	v.counts.Close()
	v.stopMine()
	v.mine.Close()
	v.scope.Close()
}
