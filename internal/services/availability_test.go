package services

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"labreserve-client/internal/api"
	"labreserve-client/internal/apitest"
	"labreserve-client/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(hour int) models.Timestamp {
	return models.Timestamp{Time: time.Date(2030, 5, 14, hour, 0, 0, 0, time.UTC)}
}

func TestDayBounds(t *testing.T) {
	start, end := DayBounds(time.Date(2030, 5, 14, 23, 30, 0, 0, time.FixedZone("X", -3*3600)))
	assert.Equal(t, time.Date(2030, 5, 15, 0, 0, 0, 0, time.UTC), start, "the UTC day of the instant is used")
	assert.Equal(t, 24*time.Hour, end.Sub(start))
}

func TestParseDate(t *testing.T) {
	day, err := ParseDate("2030-05-14")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2030, 5, 14, 0, 0, 0, 0, time.UTC), day)

	_, err = ParseDate("14/05/2030")
	assert.Error(t, err)
}

func TestCalculator_GridAndBooking(t *testing.T) {
	srv := apitest.New()
	defer srv.Close()
	env := newEnv(t, srv, models.RoleStudent)

	pc := srv.AddComputer(models.Computer{Name: "PC-1", Hostname: "pc-1", LaboratoryID: env.lab.ID})
	other := env.srv.AddUser("Other", "other@lab.test", "secret1", models.RoleStudent)
	srv.AddReservation(models.Reservation{ComputerID: pc.ID, UserID: other.ID, StartTime: at(9), EndTime: at(11)})

	now := func() time.Time { return time.Date(2030, 5, 14, 6, 0, 0, 0, time.UTC) }
	calc := NewCalculator(env.client, now)
	grid, err := calc.Load(context.Background(), pc.ID, time.Date(2030, 5, 14, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	slots := grid.Slots()
	require.Len(t, slots, LastSlotHour-FirstSlotHour+1)
	assert.Equal(t, FirstSlotHour, slots[0].Hour)
	assert.Equal(t, LastSlotHour, slots[len(slots)-1].Hour)

	byHour := map[int]Slot{}
	for _, s := range slots {
		byHour[s.Hour] = s
	}
	assert.False(t, byHour[9].Selectable)
	assert.False(t, byHour[10].Selectable)
	assert.True(t, byHour[11].Selectable)

	assert.ErrorIs(t, grid.Select(9), ErrSlotDisabled)
	require.NoError(t, grid.Select(11))

	input, err := grid.Booking()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2030, 5, 14, 11, 0, 0, 0, time.UTC), input.StartTime.Time)
	assert.Equal(t, time.Date(2030, 5, 14, 12, 0, 0, 0, time.UTC), input.EndTime.Time)

	before := srv.Count("POST /reservations")
	created, err := calc.Book(context.Background(), grid)
	require.NoError(t, err)
	assert.Equal(t, before+1, srv.Count("POST /reservations"), "a booking is a single request")
	assert.Equal(t, models.ReservationPending, created.Status)
	assert.Equal(t, env.user.ID, created.UserID)

	_, selected := grid.Selected()
	assert.False(t, selected)
	assert.Contains(t, grid.Snapshot().Occupied, 11)
}

func TestCalculator_ConflictMarksGridStale(t *testing.T) {
	srv := apitest.New()
	defer srv.Close()
	env := newEnv(t, srv, models.RoleStudent)
	pc := srv.AddComputer(models.Computer{Name: "PC-1", Hostname: "pc-1", LaboratoryID: env.lab.ID})

	now := func() time.Time { return time.Date(2030, 5, 14, 6, 0, 0, 0, time.UTC) }
	calc := NewCalculator(env.client, now)
	grid, err := calc.Load(context.Background(), pc.ID, time.Date(2030, 5, 14, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NoError(t, grid.Select(14))

	// Someone else takes the hour after the grid was loaded.
	srv.AddReservation(models.Reservation{ComputerID: pc.ID, UserID: 999, StartTime: at(14), EndTime: at(15)})

	_, err = calc.Book(context.Background(), grid)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSlotTaken)
	assert.Equal(t, http.StatusConflict, StatusOf(err))
	assert.True(t, grid.Stale())
	assert.Equal(t, 1, srv.Count("POST /reservations"), "a conflict is not retried")

	assert.ErrorIs(t, grid.Select(15), ErrStaleGrid)
	_, err = grid.Booking()
	assert.ErrorIs(t, err, ErrStaleGrid)

	fresh, err := calc.Load(context.Background(), pc.ID, time.Date(2030, 5, 14, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.False(t, fresh.Stale())
	assert.ErrorIs(t, fresh.Select(14), ErrSlotDisabled)
}

func TestCalculator_SecondBookWhileSubmittingIsRefused(t *testing.T) {
	srv := apitest.New()
	defer srv.Close()
	env := newEnv(t, srv, models.RoleStudent)
	pc := srv.AddComputer(models.Computer{Name: "PC-1", Hostname: "pc-1", LaboratoryID: env.lab.ID})

	calc := NewCalculator(env.client, func() time.Time { return time.Date(2030, 5, 14, 6, 0, 0, 0, time.UTC) })
	grid, err := calc.Load(context.Background(), pc.ID, time.Date(2030, 5, 14, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NoError(t, grid.Select(11))

	// A request for the grid is already on the wire.
	_, err = grid.claim()
	require.NoError(t, err)
	assert.True(t, grid.Snapshot().Submitting)

	_, err = calc.Book(context.Background(), grid)
	assert.ErrorIs(t, err, ErrBookingInFlight)
	assert.ErrorIs(t, grid.Select(12), ErrBookingInFlight)
	assert.Equal(t, 0, srv.Count("POST /reservations"))
	assert.False(t, grid.Stale())

	grid.release()
	_, err = calc.Book(context.Background(), grid)
	require.NoError(t, err)
	assert.Equal(t, 1, srv.Count("POST /reservations"))
	assert.False(t, grid.Snapshot().Submitting)
}

func TestCalculator_ConcurrentBooksSendOneRequest(t *testing.T) {
	srv := apitest.New()
	defer srv.Close()
	env := newEnv(t, srv, models.RoleStudent)
	pc := srv.AddComputer(models.Computer{Name: "PC-1", Hostname: "pc-1", LaboratoryID: env.lab.ID})

	calc := NewCalculator(env.client, func() time.Time { return time.Date(2030, 5, 14, 6, 0, 0, 0, time.UTC) })
	grid, err := calc.Load(context.Background(), pc.ID, time.Date(2030, 5, 14, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NoError(t, grid.Select(11))

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = calc.Book(context.Background(), grid)
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		// The loser either saw the request in flight or found the hour already booked.
		assert.True(t, errors.Is(err, ErrBookingInFlight) || errors.Is(err, ErrNoSelection), "unexpected error: %v", err)
		assert.NotErrorIs(t, err, ErrSlotTaken)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, srv.Count("POST /reservations"))
	assert.False(t, grid.Stale())
	assert.Contains(t, grid.Snapshot().Occupied, 11)
}

func TestCalculator_FailedBookReleasesGrid(t *testing.T) {
	srv := apitest.New()
	defer srv.Close()
	env := newEnv(t, srv, models.RoleStudent)
	pc := srv.AddComputer(models.Computer{Name: "PC-1", Hostname: "pc-1", LaboratoryID: env.lab.ID})

	calc := NewCalculator(env.client, func() time.Time { return time.Date(2030, 5, 14, 6, 0, 0, 0, time.UTC) })
	grid, err := calc.Load(context.Background(), pc.ID, time.Date(2030, 5, 14, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NoError(t, grid.Select(11))

	srv.FailNext(http.MethodPost, "/reservations", http.StatusInternalServerError, "boom")
	_, err = calc.Book(context.Background(), grid)
	require.Error(t, err)
	assert.False(t, grid.Stale())
	assert.False(t, grid.Snapshot().Submitting)

	_, err = calc.Book(context.Background(), grid)
	require.NoError(t, err)
	assert.Equal(t, 2, srv.Count("POST /reservations"))
}

func TestSlotGrid_PastSlotsAreDisabled(t *testing.T) {
	grid := &SlotGrid{
		computerID: 1,
		day:        time.Date(2030, 5, 14, 0, 0, 0, 0, time.UTC),
		occupied:   map[int]bool{},
		now:        func() time.Time { return time.Date(2030, 5, 14, 12, 30, 0, 0, time.UTC) },
	}
	assert.ErrorIs(t, grid.Select(12), ErrSlotDisabled)
	assert.NoError(t, grid.Select(13))
	assert.ErrorIs(t, grid.Select(LastSlotHour+1), ErrSlotDisabled)
	assert.ErrorIs(t, grid.Select(FirstSlotHour-1), ErrSlotDisabled)

	grid.ClearSelection()
	_, err := grid.Booking()
	assert.ErrorIs(t, err, ErrNoSelection)
}

func TestCalculator_IgnoresHoursOutsideWindow(t *testing.T) {
	srv := apitest.New()
	defer srv.Close()
	env := newEnv(t, srv, models.RoleStudent)
	pc := srv.AddComputer(models.Computer{Name: "PC-1", Hostname: "pc-1", LaboratoryID: env.lab.ID})
	srv.AddReservation(models.Reservation{ComputerID: pc.ID, UserID: 999, StartTime: at(5), EndTime: at(6)})
	srv.AddReservation(models.Reservation{ComputerID: pc.ID, UserID: 999, StartTime: at(20), EndTime: at(21)})

	calc := NewCalculator(env.client, func() time.Time { return time.Date(2030, 5, 1, 0, 0, 0, 0, time.UTC) })
	grid, err := calc.Load(context.Background(), pc.ID, time.Date(2030, 5, 14, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, grid.Snapshot().Occupied)
}

func TestIsBookingConflict(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"conflict status", &api.Error{Kind: api.KindConflict, Status: 409}, true},
		{"validation mentioning occupied", &api.Error{Kind: api.KindValidation, Status: 400, Message: "Slot occupied"}, true},
		{"validation mentioning overlap", &api.Error{Kind: api.KindValidation, Status: 422, Message: "Reservations overlap"}, true},
		{"unrelated validation", &api.Error{Kind: api.KindValidation, Status: 400, Message: "end_time must be after start_time"}, false},
		{"server failure", &api.Error{Kind: api.KindServer, Status: 500}, false},
		{"not an api error", errors.New("conflict"), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsBookingConflict(tc.err))
		})
	}
}
