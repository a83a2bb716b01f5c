package services

import (
	"context"
	"sync"
	"time"

	"labreserve-client/internal/models"
)

type closer interface {
	Close()
}

const (
	viewLabs           = "labs"
	viewLabDetail      = "lab"
	viewComputers      = "computers"
	viewReservations   = "reservations"
	viewMyReservations = "my-reservations"
	viewDashboard      = "dashboard"
	viewAdmins         = "admins"
)

// Workspace owns the views mounted for one authenticated session. Views are
// opened on first use and all of them are closed with the workspace.
type Workspace struct {
	deps     Deps
	identity models.Identity
	calc     *Calculator

	mu     sync.Mutex
	views  map[string]closer
	grid   *SlotGrid
	closed bool
}

func NewWorkspace(deps Deps, identity models.Identity) *Workspace {
	return &Workspace{
		deps:     deps,
		identity: identity,
		calc:     NewCalculator(deps.Client, deps.Now),
		views:    map[string]closer{},
	}
}

func (w *Workspace) Identity() models.Identity {
	return w.identity
}

// mount returns the view under key, opening it when absent. current may
// reject a mounted view so that it is replaced.
func mount[V closer](w *Workspace, key string, current func(V) bool, open func() V) (V, error) {
	var zero V
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return zero, ErrViewClosed
	}
	if existing, ok := w.views[key].(V); ok {
		if current == nil || current(existing) {
			w.mu.Unlock()
			return existing, nil
		}
		delete(w.views, key)
		defer existing.Close()
	}
	w.mu.Unlock()

	view := open()

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		view.Close()
		return zero, ErrViewClosed
	}
	if existing, ok := w.views[key].(V); ok && (current == nil || current(existing)) {
		view.Close()
		return existing, nil
	}
	w.views[key] = view
	return view, nil
}

func (w *Workspace) Labs(ctx context.Context) (*LabsView, error) {
	return mount(w, viewLabs, nil, func() *LabsView { return OpenLabsView(ctx, w.deps) })
}

// LabDetail keeps one lab detail mounted; opening another lab closes the
// previous one.
func (w *Workspace) LabDetail(ctx context.Context, labID int64) (*LabDetailView, error) {
	return mount(w, viewLabDetail,
		func(v *LabDetailView) bool { return v.LabID() == labID },
		func() *LabDetailView { return OpenLabDetailView(ctx, w.deps, labID) })
}

func (w *Workspace) Computers(ctx context.Context) (*ComputersView, error) {
	return mount(w, viewComputers, nil, func() *ComputersView { return OpenComputersView(ctx, w.deps) })
}

func (w *Workspace) Reservations(ctx context.Context) (*ReservationsView, error) {
	return mount(w, viewReservations, nil, func() *ReservationsView { return OpenReservationsView(ctx, w.deps) })
}

func (w *Workspace) MyReservations(ctx context.Context) (*MyReservationsView, error) {
	return mount(w, viewMyReservations, nil, func() *MyReservationsView {
		return OpenMyReservationsView(ctx, w.deps, w.identity.ID)
	})
}

func (w *Workspace) Dashboard(ctx context.Context) (*DashboardView, error) {
	return mount(w, viewDashboard, nil, func() *DashboardView {
		return OpenDashboardView(ctx, w.deps, w.identity.ID)
	})
}

func (w *Workspace) Admins(ctx context.Context) (*AdminsView, error) {
	return mount(w, viewAdmins, nil, func() *AdminsView { return OpenAdminsView(ctx, w.deps) })
}

// Availability queries the slot grid for (computerID, date) and makes it the
// session's current booking grid.
func (w *Workspace) Availability(ctx context.Context, computerID int64, date time.Time) (*SlotGrid, error) {
	grid, err := w.calc.Load(ctx, computerID, date)
	if err != nil {
		return nil, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, ErrViewClosed
	}
	w.grid = grid
	return grid, nil
}

func (w *Workspace) Grid() (*SlotGrid, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.grid, w.grid != nil
}

// Book submits the current grid's selection.
func (w *Workspace) Book(ctx context.Context) (models.Reservation, error) {
	grid, ok := w.Grid()
	if !ok {
		return models.Reservation{}, ErrNoSelection
	}
	return w.calc.Book(ctx, grid)
}

func (w *Workspace) OpenViews() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.views)
}

func (w *Workspace) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	views := w.views
	w.views = map[string]closer{}
	w.grid = nil
	w.mu.Unlock()
	for _, v := range views {
		v.Close()
	}
}
