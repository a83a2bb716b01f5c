package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"labreserve-client/internal/api"
	"labreserve-client/internal/models"
)

// Bookable hours: a slot starts on the hour, lasts one hour, and the first
// and last start hours are inclusive. All slot arithmetic is in UTC.
const (
	FirstSlotHour = 7
	LastSlotHour  = 18
	SlotLength    = time.Hour
)

const dateLayout = "2006-01-02"

var (
	ErrSlotTaken       = ErrConflict("That hour was just booked by someone else, load the day again")
	ErrBookingInFlight = ErrConflict("A booking for this grid is already being submitted")
)

// DayBounds returns [00:00, 24:00) of date's UTC calendar day.
func DayBounds(date time.Time) (time.Time, time.Time) {
	date = date.UTC()
	start := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}

// ParseDate reads a YYYY-MM-DD calendar date as a UTC day.
func ParseDate(raw string) (time.Time, error) {
	day, err := time.ParseInLocation(dateLayout, strings.TrimSpace(raw), time.UTC)
	if err != nil {
		return time.Time{}, ErrBadRequest("Date must look like 2006-01-02")
	}
	return day, nil
}

type Slot struct {
	Hour       int       `json:"hour"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Occupied   bool      `json:"occupied"`
	Past       bool      `json:"past"`
	Selectable bool      `json:"selectable"`
	Selected   bool      `json:"selected"`
}

type GridSnapshot struct {
	ComputerID int64  `json:"computer_id"`
	Date       string `json:"date"`
	Slots      []Slot `json:"slots"`
	Occupied   []int  `json:"occupied"`
	Selected   *int   `json:"selected,omitempty"`
	Stale      bool   `json:"stale"`
	Submitting bool   `json:"submitting"`
	Error      string `json:"error,omitempty"`
}

// Calculator loads the slot grid of one computer for one day. Every Load
// queries the server; grids are never reused across selections.
type Calculator struct {
	client *api.Client
	now    func() time.Time
}

func NewCalculator(client *api.Client, now func() time.Time) *Calculator {
	if now == nil {
		now = time.Now
	}
	return &Calculator{client: client, now: now}
}

func (c *Calculator) Load(ctx context.Context, computerID int64, date time.Time) (*SlotGrid, error) {
	if computerID <= 0 {
		return nil, ErrBadRequest("Pick a computer first")
	}
	day, _ := DayBounds(date)
	hours, err := c.client.OccupiedHours(ctx, computerID, day)
	if err != nil {
		return nil, WrapError(err, "occupied hours")
	}
	occupied := map[int]bool{}
	for _, h := range hours {
		if h < FirstSlotHour || h > LastSlotHour {
			log.Printf("view: ignoring occupied hour %d outside %d..%d", h, FirstSlotHour, LastSlotHour)
			continue
		}
		occupied[h] = true
	}
	return &SlotGrid{computerID: computerID, day: day, occupied: occupied, now: c.now}, nil
}

// Book submits the grid's selected hour as a single reservation request. A
// conflict reported by the server marks the grid stale and is returned as
// ErrSlotTaken; nothing is retried.
func (c *Calculator) Book(ctx context.Context, grid *SlotGrid) (models.Reservation, error) {
	input, err := grid.claim()
	if err != nil {
		return models.Reservation{}, err
	}
	created, err := c.client.CreateReservation(ctx, input)
	if err != nil {
		if IsBookingConflict(err) {
			grid.MarkStale()
			return models.Reservation{}, fmt.Errorf("%w (%v)", ErrSlotTaken, err)
		}
		grid.release()
		return models.Reservation{}, err
	}
	grid.booked(input.StartTime.UTC().Hour())
	return created, nil
}

// IsBookingConflict reports whether the server refused a booking because the
// slot is no longer free.
func IsBookingConflict(err error) bool {
	var apiErr *api.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.Kind == api.KindConflict {
		return true
	}
	if apiErr.Kind != api.KindValidation {
		return false
	}
	msg := strings.ToLower(apiErr.Message)
	for _, hint := range []string{"conflict", "occupied", "already", "overlap", "ocupad"} {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}

// SlotGrid is the hourly grid for one (computer, day). Selection is local
// state only.
type SlotGrid struct {
	computerID int64
	day        time.Time
	now        func() time.Time

	mu         sync.Mutex
	occupied   map[int]bool
	selected   int
	stale      bool
	submitting bool
}

func (g *SlotGrid) ComputerID() int64 {
	return g.computerID
}

func (g *SlotGrid) Day() time.Time {
	return g.day
}

func (g *SlotGrid) slotStart(hour int) time.Time {
	return g.day.Add(time.Duration(hour) * time.Hour)
}

func (g *SlotGrid) selectableLocked(hour int, now time.Time) bool {
	if hour < FirstSlotHour || hour > LastSlotHour || g.stale {
		return false
	}
	if g.occupied[hour] {
		return false
	}
	return !g.slotStart(hour).Before(now)
}

func (g *SlotGrid) Slots() []Slot {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	slots := make([]Slot, 0, LastSlotHour-FirstSlotHour+1)
	for h := FirstSlotHour; h <= LastSlotHour; h++ {
		start := g.slotStart(h)
		slots = append(slots, Slot{
			Hour:       h,
			Start:      start,
			End:        start.Add(SlotLength),
			Occupied:   g.occupied[h],
			Past:       start.Before(now),
			Selectable: g.selectableLocked(h, now),
			Selected:   g.selected == h,
		})
	}
	return slots
}

// Select marks hour as the one to book. It reserves nothing.
func (g *SlotGrid) Select(hour int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stale {
		return ErrStaleGrid
	}
	if g.submitting {
		return ErrBookingInFlight
	}
	if !g.selectableLocked(hour, g.now()) {
		return ErrSlotDisabled
	}
	g.selected = hour
	return nil
}

func (g *SlotGrid) ClearSelection() {
	g.mu.Lock()
	g.selected = 0
	g.mu.Unlock()
}

func (g *SlotGrid) Selected() (int, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.selected, g.selected != 0
}

// Booking is the reservation request for the selected hour:
// [day hour:00Z, day hour+1:00Z).
func (g *SlotGrid) Booking() (api.ReservationInput, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.bookingLocked()
}

// claim returns the booking request and holds the grid until the request
// settles; a second claim in the meantime fails with ErrBookingInFlight.
func (g *SlotGrid) claim() (api.ReservationInput, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.submitting {
		return api.ReservationInput{}, ErrBookingInFlight
	}
	input, err := g.bookingLocked()
	if err != nil {
		return api.ReservationInput{}, err
	}
	g.submitting = true
	return input, nil
}

func (g *SlotGrid) release() {
	g.mu.Lock()
	g.submitting = false
	g.mu.Unlock()
}

func (g *SlotGrid) bookingLocked() (api.ReservationInput, error) {
	if g.stale {
		return api.ReservationInput{}, ErrStaleGrid
	}
	if g.selected == 0 {
		return api.ReservationInput{}, ErrNoSelection
	}
	if !g.selectableLocked(g.selected, g.now()) {
		return api.ReservationInput{}, ErrSlotDisabled
	}
	start := g.slotStart(g.selected)
	return api.ReservationInput{
		ComputerID: g.computerID,
		StartTime:  models.Timestamp{Time: start},
		EndTime:    models.Timestamp{Time: start.Add(SlotLength)},
	}, nil
}

func (g *SlotGrid) MarkStale() {
	g.mu.Lock()
	g.stale = true
	g.selected = 0
	g.submitting = false
	g.mu.Unlock()
}

func (g *SlotGrid) Stale() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stale
}

func (g *SlotGrid) booked(hour int) {
	g.mu.Lock()
	g.occupied[hour] = true
	if g.selected == hour {
		g.selected = 0
	}
	g.submitting = false
	g.mu.Unlock()
}

func (g *SlotGrid) Snapshot() GridSnapshot {
	slots := g.Slots()
	g.mu.Lock()
	defer g.mu.Unlock()
	snap := GridSnapshot{
		ComputerID: g.computerID,
		Date:       g.day.Format(dateLayout),
		Slots:      slots,
		Occupied:   []int{},
		Stale:      g.stale,
		Submitting: g.submitting,
	}
	for h := FirstSlotHour; h <= LastSlotHour; h++ {
		if g.occupied[h] {
			snap.Occupied = append(snap.Occupied, h)
		}
	}
	if g.selected != 0 {
		selected := g.selected
		snap.Selected = &selected
	}
	if g.stale {
		snap.Error = ErrStaleGrid.Error()
	}
	return snap
}
