package services

import (
	"context"
	"net/http"
	"testing"

	"labreserve-client/internal/api"
	"labreserve-client/internal/apitest"
	"labreserve-client/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLabsView_PushEvents(t *testing.T) {
	srv := apitest.New()
	defer srv.Close()
	env := newEnv(t, srv, models.RoleStudent)
	second := srv.AddLab(models.Lab{Name: "Lab B", Location: "B-102", OpeningTime: "08:00", ClosingTime: "18:00"})

	view := OpenLabsView(context.Background(), env.deps())
	defer view.Close()
	require.Len(t, view.Snapshot().Labs, 2)

	t.Run("deleted lab is dropped without a refetch", func(t *testing.T) {
		env.publish(t, models.EventLabDeleted, models.LabEvent{LabID: second.ID})
		labs := view.Snapshot().Labs
		require.Len(t, labs, 1)
		assert.Equal(t, env.lab.ID, labs[0].ID)
		assert.Equal(t, 1, srv.Count("GET /labs"))

		env.publish(t, models.EventLabDeleted, models.LabEvent{LabID: second.ID})
		assert.Len(t, view.Snapshot().Labs, 1)
	})

	t.Run("lab update refetches", func(t *testing.T) {
		srv.AddLab(models.Lab{Name: "Lab C", Location: "C-1", OpeningTime: "08:00", ClosingTime: "18:00"})
		env.publish(t, models.EventLabUpdate, map[string]int64{})
		view.Wait()
		assert.Equal(t, 2, srv.Count("GET /labs"))
		assert.Len(t, view.Snapshot().Labs, 3, "server state wins, including the lab deleted only locally")
	})
}

func TestLabsView_ClosedViewIgnoresEvents(t *testing.T) {
	srv := apitest.New()
	defer srv.Close()
	env := newEnv(t, srv, models.RoleStudent)

	view := OpenLabsView(context.Background(), env.deps())
	require.Equal(t, 1, env.bus.Subscribers(models.EventLabUpdate))
	view.Close()
	view.Close()

	assert.Equal(t, 0, env.bus.Subscribers(models.EventLabUpdate))
	assert.Equal(t, 0, env.bus.Subscribers(models.EventLabDeleted))
	env.publish(t, models.EventLabUpdate, models.LabEvent{LabID: env.lab.ID})
	assert.Equal(t, 1, srv.Count("GET /labs"))
}

func TestLabsView_DeleteRollsBackOnFailure(t *testing.T) {
	srv := apitest.New()
	defer srv.Close()
	env := newEnv(t, srv, models.RoleAdmin)

	view := OpenLabsView(context.Background(), env.deps())
	defer view.Close()

	srv.FailNext(http.MethodDelete, "/labs/"+itoa(env.lab.ID), http.StatusInternalServerError, "db down")
	err := view.Delete(context.Background(), env.lab.ID)
	require.Error(t, err)
	assert.Len(t, view.Snapshot().Labs, 1, "the list is reloaded after a refused delete")
	assert.Equal(t, 2, srv.Count("GET /labs"))
}

func TestComputersView_PushEvents(t *testing.T) {
	srv := apitest.New()
	defer srv.Close()
	env := newEnv(t, srv, models.RoleAdmin)
	otherLab := srv.AddLab(models.Lab{Name: "Lab B", Location: "B-2", OpeningTime: "08:00", ClosingTime: "18:00"})
	pc1 := srv.AddComputer(models.Computer{Name: "PC-1", Hostname: "pc-1", LaboratoryID: env.lab.ID, Specs: `{"description":"i7, 32GB"}`})
	pc2 := srv.AddComputer(models.Computer{Name: "PC-2", Hostname: "pc-2", LaboratoryID: otherLab.ID})

	view := OpenComputersView(context.Background(), env.deps())
	defer view.Close()
	require.Len(t, view.Snapshot().Computers, 2)
	assert.Equal(t, "i7, 32GB", view.Snapshot().Computers[0].Description)

	t.Run("status update touches only the named computer", func(t *testing.T) {
		env.publish(t, models.EventComputerStatusUpdated, models.ComputerStatusEvent{
			ComputerID: pc1.ID, OldStatus: models.ComputerAvailable, NewStatus: models.ComputerMaintenance,
		})
		rows := view.Snapshot().Computers
		assert.Equal(t, models.ComputerMaintenance, rows[0].Status)
		assert.Equal(t, models.ComputerAvailable, rows[1].Status)
	})

	t.Run("unknown computer or invalid status is ignored", func(t *testing.T) {
		before := view.Snapshot()
		env.publish(t, models.EventComputerStatusUpdated, models.ComputerStatusEvent{ComputerID: 9999, NewStatus: models.ComputerReserved})
		env.publish(t, models.EventComputerStatusUpdated, models.ComputerStatusEvent{ComputerID: pc2.ID, NewStatus: "exploded"})
		assert.Equal(t, before, view.Snapshot())
	})

	t.Run("lab deletion drops its computers", func(t *testing.T) {
		env.publish(t, models.EventLabDeleted, models.LabEvent{LabID: otherLab.ID})
		rows := view.Snapshot().Computers
		require.Len(t, rows, 1)
		assert.Equal(t, pc1.ID, rows[0].ID)
	})

	t.Run("computer deletion removes it", func(t *testing.T) {
		env.publish(t, models.EventComputerDeleted, models.ComputerDeletedEvent{ComputerID: pc1.ID})
		assert.Empty(t, view.Snapshot().Computers)
	})

	assert.Equal(t, 1, srv.Count("GET /computers"), "none of these events refetch")
}

func TestComputersView_SetStatus(t *testing.T) {
	srv := apitest.New()
	defer srv.Close()
	env := newEnv(t, srv, models.RoleAdmin)
	pc := srv.AddComputer(models.Computer{Name: "PC-1", Hostname: "pc-1", LaboratoryID: env.lab.ID})

	view := OpenComputersView(context.Background(), env.deps())
	defer view.Close()

	require.NoError(t, view.SetStatus(context.Background(), pc.ID, models.ComputerMaintenance))
	assert.Equal(t, models.ComputerMaintenance, view.Snapshot().Computers[0].Status)

	err := view.SetStatus(context.Background(), pc.ID, "broken")
	assert.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, StatusOf(err))

	srv.FailNext(http.MethodPut, "/computers/"+itoa(pc.ID)+"/status", http.StatusInternalServerError, "boom")
	require.Error(t, view.SetStatus(context.Background(), pc.ID, models.ComputerReserved))
	assert.Equal(t, models.ComputerMaintenance, view.Snapshot().Computers[0].Status, "the refused change is rolled back")
}

func TestLabDetailView(t *testing.T) {
	srv := apitest.New()
	defer srv.Close()
	env := newEnv(t, srv, models.RoleStudent)
	pc := srv.AddComputer(models.Computer{Name: "PC-1", Hostname: "pc-1", LaboratoryID: env.lab.ID})

	t.Run("loads lab and its computers", func(t *testing.T) {
		view := OpenLabDetailView(context.Background(), env.deps(), env.lab.ID)
		defer view.Close()
		snap := view.Snapshot()
		require.NotNil(t, snap.Lab)
		assert.Equal(t, "Lab A", snap.Lab.Name)
		assert.True(t, snap.Loaded)
		require.Len(t, snap.Computers, 1)
		_, ok := view.Computer(pc.ID)
		assert.True(t, ok)
	})

	t.Run("other lab deleted is ignored", func(t *testing.T) {
		view := OpenLabDetailView(context.Background(), env.deps(), env.lab.ID)
		defer view.Close()
		env.publish(t, models.EventLabDeleted, models.LabEvent{LabID: env.lab.ID + 1000})
		assert.False(t, view.Snapshot().Gone)
	})

	t.Run("this lab deleted marks it gone", func(t *testing.T) {
		view := OpenLabDetailView(context.Background(), env.deps(), env.lab.ID)
		defer view.Close()
		env.publish(t, models.EventLabDeleted, models.LabEvent{LabID: env.lab.ID})
		snap := view.Snapshot()
		assert.True(t, snap.Gone)
		assert.Nil(t, snap.Lab)
		assert.Empty(t, snap.Computers)
		assert.NotEmpty(t, snap.Error)
	})

	t.Run("missing lab is gone", func(t *testing.T) {
		view := OpenLabDetailView(context.Background(), env.deps(), 424242)
		defer view.Close()
		assert.True(t, view.Snapshot().Gone)
	})
}

func TestLabDetailView_GoneWinsOverRefetchInFlight(t *testing.T) {
	srv := apitest.New()
	defer srv.Close()
	env := newEnv(t, srv, models.RoleStudent)
	pc := srv.AddComputer(models.Computer{Name: "PC-1", Hostname: "pc-1", LaboratoryID: env.lab.ID})

	view := OpenLabDetailView(context.Background(), env.deps(), env.lab.ID)
	defer view.Close()
	require.Len(t, view.Snapshot().Computers, 1)

	// A lab_update refetch started before the lab was deleted.
	inFlight := view.computers.Begin()
	env.publish(t, models.EventLabDeleted, models.LabEvent{LabID: env.lab.ID})
	assert.False(t, view.computers.Replace(inFlight, []models.Computer{pc}), "the older refetch is dropped")

	snap := view.Snapshot()
	assert.True(t, snap.Gone)
	assert.Empty(t, snap.Computers)
}

func TestReservationsView_AdminActions(t *testing.T) {
	srv := apitest.New()
	defer srv.Close()
	env := newEnv(t, srv, models.RoleAdmin)
	student := srv.AddUser("Ana", "ana@lab.test", "secret1", models.RoleStudent)
	pc := srv.AddComputer(models.Computer{Name: "PC-1", Hostname: "pc-1", LaboratoryID: env.lab.ID})
	res := srv.AddReservation(models.Reservation{ComputerID: pc.ID, UserID: student.ID, StartTime: at(10), EndTime: at(11)})

	view := OpenReservationsView(context.Background(), env.deps())
	defer view.Close()

	rows := view.Snapshot().Reservations
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].Computer)
	require.NotNil(t, rows[0].Laboratory)
	require.NotNil(t, rows[0].User)
	assert.Equal(t, "PC-1", rows[0].Computer.Name)
	assert.Equal(t, "Lab A", rows[0].Laboratory.Name)
	assert.Equal(t, "Ana", rows[0].User.Name)

	t.Run("confirm shows at once without a refetch", func(t *testing.T) {
		require.NoError(t, view.Confirm(context.Background(), res.ID))
		assert.Equal(t, models.ReservationConfirmed, view.Snapshot().Reservations[0].Status)
		stored, _ := srv.Reservation(res.ID)
		assert.Equal(t, models.ReservationConfirmed, stored.Status)
		assert.Equal(t, 1, srv.Count("GET /reservations/all"))
	})

	t.Run("refused cancel reloads the list", func(t *testing.T) {
		srv.FailNext(http.MethodPut, "/reservations/"+itoa(res.ID)+"/cancel", http.StatusForbidden, "nope")
		err := view.Cancel(context.Background(), res.ID)
		require.Error(t, err)
		assert.Equal(t, api.KindForbidden, api.KindOf(err))
		assert.Equal(t, models.ReservationConfirmed, view.Snapshot().Reservations[0].Status)
		assert.Equal(t, 2, srv.Count("GET /reservations/all"))
	})

	t.Run("status event from another client", func(t *testing.T) {
		env.publish(t, models.EventReservationStatusUpdated, models.ReservationStatusEvent{
			ReservationID: res.ID, UserID: student.ID, NewStatus: models.ReservationCompleted,
		})
		assert.Equal(t, models.ReservationCompleted, view.Snapshot().Reservations[0].Status)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, view.Delete(context.Background(), res.ID))
		assert.Empty(t, view.Snapshot().Reservations)
		_, ok := srv.Reservation(res.ID)
		assert.False(t, ok)
	})
}

func TestReservationsView_EnrichesEachRowByItsOwnIDs(t *testing.T) {
	srv := apitest.New()
	defer srv.Close()
	env := newEnv(t, srv, models.RoleAdmin)
	labB := srv.AddLab(models.Lab{Name: "Lab B", Location: "C-202", OpeningTime: "07:00", ClosingTime: "19:00"})
	ana := srv.AddUser("Ana", "ana@lab.test", "secret1", models.RoleStudent)
	bo := srv.AddUser("Bo", "bo@lab.test", "secret1", models.RoleStudent)
	cy := srv.AddUser("Cy", "cy@lab.test", "secret1", models.RoleStudent)
	pc1 := srv.AddComputer(models.Computer{Name: "PC-1", Hostname: "pc-1", LaboratoryID: env.lab.ID})
	pc2 := srv.AddComputer(models.Computer{Name: "PC-2", Hostname: "pc-2", LaboratoryID: env.lab.ID})
	pc3 := srv.AddComputer(models.Computer{Name: "PC-3", Hostname: "pc-3", LaboratoryID: labB.ID})
	pc4 := srv.AddComputer(models.Computer{Name: "PC-4", Hostname: "pc-4", LaboratoryID: labB.ID})

	book := func(pc models.Computer, user models.Identity, hour int) int64 {
		return srv.AddReservation(models.Reservation{ComputerID: pc.ID, UserID: user.ID, StartTime: at(hour), EndTime: at(hour + 1)}).ID
	}
	r1 := book(pc1, ana, 8)
	r2 := book(pc1, bo, 9)
	r3 := book(pc2, ana, 10)
	r4 := book(pc3, bo, 11)
	r5 := book(pc4, ana, 12)
	r6 := book(pc3, cy, 13)

	srv.FailNext(http.MethodGet, "/computers/"+itoa(pc4.ID), http.StatusInternalServerError, "boom")
	srv.FailNext(http.MethodGet, "/users/"+itoa(cy.ID), http.StatusNotFound, "gone")

	view := OpenReservationsView(context.Background(), env.deps())
	defer view.Close()

	byID := map[int64]models.Reservation{}
	for _, row := range view.Snapshot().Reservations {
		byID[row.ID] = row
	}
	require.Len(t, byID, 6)

	tests := []struct {
		name     string
		id       int64
		computer string
		lab      string
		user     string
	}{
		{"shared computer, first user", r1, "PC-1", "Lab A", "Ana"},
		{"shared computer, second user", r2, "PC-1", "Lab A", "Bo"},
		{"same lab, other computer", r3, "PC-2", "Lab A", "Ana"},
		{"other lab", r4, "PC-3", "Lab B", "Bo"},
		{"failed computer lookup", r5, "", "", "Ana"},
		{"failed user lookup", r6, "PC-3", "Lab B", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			row := byID[tc.id]
			if tc.computer == "" {
				assert.Nil(t, row.Computer)
				assert.Nil(t, row.Laboratory)
			} else {
				require.NotNil(t, row.Computer)
				require.NotNil(t, row.Laboratory)
				assert.Equal(t, tc.computer, row.Computer.Name)
				assert.Equal(t, tc.lab, row.Laboratory.Name)
				assert.Equal(t, row.ComputerID, row.Computer.ID)
			}
			if tc.user == "" {
				assert.Nil(t, row.User)
			} else {
				require.NotNil(t, row.User)
				assert.Equal(t, tc.user, row.User.Name)
				assert.Equal(t, row.UserID, row.User.ID)
			}
		})
	}

	assert.Equal(t, 1, srv.Count("GET /computers/"+itoa(pc1.ID)), "shared ids are looked up once")
	assert.Equal(t, 1, srv.Count("GET /users/"+itoa(ana.ID)))
	assert.Equal(t, 1, srv.Count("GET /labs/"+itoa(labB.ID)))
	assert.Empty(t, view.Snapshot().Error, "a failed lookup does not fail the list")
}

func TestMyReservationsView_StatusFilter(t *testing.T) {
	srv := apitest.New()
	defer srv.Close()
	env := newEnv(t, srv, models.RoleStudent)
	pc := srv.AddComputer(models.Computer{Name: "PC-1", Hostname: "pc-1", LaboratoryID: env.lab.ID})
	mine := srv.AddReservation(models.Reservation{ComputerID: pc.ID, UserID: env.user.ID, StartTime: at(12), EndTime: at(13)})

	view := OpenMyReservationsView(context.Background(), env.deps(), env.user.ID)
	defer view.Close()
	require.Len(t, view.Items(), 1)
	require.NotNil(t, view.Items()[0].Computer)
	assert.Nil(t, view.Items()[0].User, "own reservations skip user lookups")

	env.publish(t, models.EventReservationStatusUpdated, models.ReservationStatusEvent{
		ReservationID: mine.ID, UserID: env.user.ID + 77, NewStatus: models.ReservationCancelled,
	})
	assert.Equal(t, models.ReservationPending, view.Items()[0].Status, "events for another user are ignored")

	env.publish(t, models.EventReservationStatusUpdated, models.ReservationStatusEvent{
		ReservationID: mine.ID, UserID: env.user.ID, NewStatus: models.ReservationConfirmed,
	})
	assert.Equal(t, models.ReservationConfirmed, view.Items()[0].Status)
	assert.Equal(t, 1, srv.Count("GET /reservations/user/"+itoa(env.user.ID)))

	for _, status := range []models.ReservationStatus{"", "archived"} {
		env.publish(t, models.EventReservationStatusUpdated, models.ReservationStatusEvent{
			ReservationID: mine.ID, UserID: env.user.ID, NewStatus: status,
		})
		assert.Equal(t, models.ReservationConfirmed, view.Items()[0].Status, "unknown status %q is ignored", status)
	}

	snap := view.Snapshot()
	assert.Len(t, snap.Upcoming, 1, "12:00 is after the fixed clock")
	assert.Empty(t, snap.Current)
	assert.Empty(t, snap.Past)

	err := view.Delete(context.Background(), 9999)
	assert.Equal(t, http.StatusNotFound, StatusOf(err))
}

func TestMyReservationsView_ReservationUpdateRefetches(t *testing.T) {
	srv := apitest.New()
	defer srv.Close()
	env := newEnv(t, srv, models.RoleStudent)
	pc := srv.AddComputer(models.Computer{Name: "PC-1", Hostname: "pc-1", LaboratoryID: env.lab.ID})

	view := OpenMyReservationsView(context.Background(), env.deps(), env.user.ID)
	defer view.Close()
	assert.Empty(t, view.Items())

	srv.AddReservation(models.Reservation{ComputerID: pc.ID, UserID: env.user.ID, StartTime: at(15), EndTime: at(16)})
	env.publish(t, models.EventReservationUpdate, map[string]int64{})
	view.Wait()
	assert.Len(t, view.Items(), 1)
}

func TestDashboardView(t *testing.T) {
	srv := apitest.New()
	defer srv.Close()
	env := newEnv(t, srv, models.RoleStudent)
	pc1 := srv.AddComputer(models.Computer{Name: "PC-1", Hostname: "pc-1", LaboratoryID: env.lab.ID})
	srv.AddComputer(models.Computer{Name: "PC-2", Hostname: "pc-2", LaboratoryID: env.lab.ID, Status: models.ComputerMaintenance})
	srv.AddReservation(models.Reservation{ComputerID: pc1.ID, UserID: env.user.ID, StartTime: at(7), EndTime: at(8)})
	srv.AddReservation(models.Reservation{ComputerID: pc1.ID, UserID: env.user.ID, StartTime: at(16), EndTime: at(17)})

	view := OpenDashboardView(context.Background(), env.deps(), env.user.ID)
	defer view.Close()

	snap := view.Snapshot()
	assert.True(t, snap.Loaded)
	assert.Equal(t, DashboardStats{TotalLabs: 1, AvailableComputers: 1, TotalReservations: 2, UpcomingReservations: 1}, snap.Stats)
	assert.Len(t, snap.MyReservations.Past, 1)
	assert.Len(t, snap.MyReservations.Upcoming, 1)

	srv.SetComputerStatus(pc1.ID, models.ComputerMaintenance)
	env.publish(t, models.EventComputerStatusUpdated, models.ComputerStatusEvent{ComputerID: pc1.ID, NewStatus: models.ComputerMaintenance})
	view.Wait()
	assert.Equal(t, 0, view.Snapshot().Stats.AvailableComputers)
}

func TestWorkspace_MountAndClose(t *testing.T) {
	srv := apitest.New()
	defer srv.Close()
	env := newEnv(t, srv, models.RoleAdmin)
	other := srv.AddLab(models.Lab{Name: "Lab B", Location: "B-2", OpeningTime: "08:00", ClosingTime: "18:00"})

	ws := NewWorkspace(env.deps(), env.user)
	labs, err := ws.Labs(context.Background())
	require.NoError(t, err)
	again, err := ws.Labs(context.Background())
	require.NoError(t, err)
	assert.Same(t, labs, again)

	first, err := ws.LabDetail(context.Background(), env.lab.ID)
	require.NoError(t, err)
	second, err := ws.LabDetail(context.Background(), other.ID)
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Equal(t, 2, ws.OpenViews())
	assert.Equal(t, 1, env.bus.Subscribers(models.EventComputerDeleted), "the replaced lab detail unsubscribed")

	ws.Close()
	assert.Equal(t, 0, env.bus.Subscribers(models.EventLabUpdate))
	_, err = ws.Labs(context.Background())
	assert.ErrorIs(t, err, ErrViewClosed)
}
