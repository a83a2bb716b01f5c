package dispatch

import (
	"context"
	"errors"
	"log"
	"sync"

	"labreserve-client/internal/api"
	"labreserve-client/internal/models"
	"labreserve-client/internal/session"
)

// Session is the part of the session store the dispatcher drives.
type Session interface {
	Restore(ctx context.Context) (models.Identity, error)
	Login(ctx context.Context, email, password string) (models.Identity, error)
	Register(ctx context.Context, input api.RegisterInput) (models.Identity, error)
	Logout()
	OnChange(fn func(*models.Identity)) func()
}

type Transition struct {
	From      State
	To        State
	Principal Principal
}

// Dispatcher is the role state machine. It starts in loading, settles on
// anonymous or a role once the session is resolved, and follows every later
// login, logout and forced reset.
type Dispatcher struct {
	session Session
	stop    func()

	mu        sync.RWMutex
	state     State
	principal Principal
	listeners map[int]func(Transition)
	nextID    int
}

func New(s Session) *Dispatcher {
	d := &Dispatcher{
		session:   s,
		state:     StateLoading,
		principal: Anonymous{},
		listeners: map[int]func(Transition){},
	}
	d.stop = s.OnChange(d.follow)
	return d
}

// Resolve validates the stored session and leaves loading.
func (d *Dispatcher) Resolve(ctx context.Context) State {
	identity, err := d.session.Restore(ctx)
	if err != nil {
		if !errors.Is(err, session.ErrNoSession) {
			log.Printf("dispatch: session restore failed: %v", err)
		}
		d.move(Anonymous{})
		return d.State()
	}
	d.follow(&identity)
	return d.State()
}

func (d *Dispatcher) Login(ctx context.Context, email, password string) (State, error) {
	identity, err := d.session.Login(ctx, email, password)
	if err != nil {
		return d.State(), err
	}
	d.follow(&identity)
	return d.State(), nil
}

func (d *Dispatcher) Register(ctx context.Context, input api.RegisterInput) (State, error) {
	identity, err := d.session.Register(ctx, input)
	if err != nil {
		return d.State(), err
	}
	d.follow(&identity)
	return d.State(), nil
}

func (d *Dispatcher) Logout() {
	d.session.Logout()
	d.move(Anonymous{})
}

func (d *Dispatcher) State() State {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

func (d *Dispatcher) Principal() Principal {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.principal
}

// Navigate resolves target for the current principal. While loading every
// path resolves to the loading screen.
func (d *Dispatcher) Navigate(target string) Outcome {
	d.mu.RLock()
	state, p := d.state, d.principal
	d.mu.RUnlock()
	if state == StateLoading {
		return Outcome{Screen: ScreenLoading}
	}
	return Navigate(p, target)
}

// OnTransition registers fn for every state change.
func (d *Dispatcher) OnTransition(fn func(Transition)) func() {
	d.mu.Lock()
	id := d.nextID
	d.nextID++
	d.listeners[id] = fn
	d.mu.Unlock()
	return func() {
		d.mu.Lock()
		delete(d.listeners, id)
		d.mu.Unlock()
	}
}

func (d *Dispatcher) Close() {
	if d.stop != nil {
		d.stop()
	}
}

func (d *Dispatcher) follow(identity *models.Identity) {
	p, err := PrincipalFor(identity)
	if err != nil {
		log.Printf("dispatch: %v, logging out", err)
		d.session.Logout()
		p = Anonymous{}
	}
	d.move(p)
}

func (d *Dispatcher) move(p Principal) {
	to := StateOf(p)
	d.mu.Lock()
	from := d.state
	prev := d.principal
	if from == to && samePrincipal(prev, p) {
		d.mu.Unlock()
		return
	}
	d.state = to
	d.principal = p
	fns := make([]func(Transition), 0, len(d.listeners))
	for _, fn := range d.listeners {
		fns = append(fns, fn)
	}
	d.mu.Unlock()

	log.Printf("dispatch: %s -> %s", from, to)
	t := Transition{From: from, To: to, Principal: p}
	for _, fn := range fns {
		fn(t)
	}
}

func samePrincipal(a, b Principal) bool {
	ia, okA := IdentityOf(a)
	ib, okB := IdentityOf(b)
	return okA == okB && ia == ib
}
