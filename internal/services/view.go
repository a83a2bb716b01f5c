package services

import (
	"context"
	"log"
	"sync"
	"time"

	"labreserve-client/internal/api"
	"labreserve-client/internal/push"
)

// Deps are the session handles every view is built from.
type Deps struct {
	Client *api.Client
	Push   push.Source
	Now    func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// scope owns what a mounted view acquired: push subscriptions, a lifetime
// context and background refetches. Close releases all of it once.
type scope struct {
	Notifier

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	subs   []func()
	closed bool
	wg     sync.WaitGroup
}

func newScope() *scope {
	ctx, cancel := context.WithCancel(context.Background())
	return &scope{ctx: ctx, cancel: cancel}
}

func (s *scope) on(src push.Source, event string, handler push.Handler) {
	if src == nil {
		return
	}
	unsubscribe := src.Subscribe(event, func(e push.Event) {
		if s.mounted() {
			handler(e)
		}
	})
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		unsubscribe()
		return
	}
	s.subs = append(s.subs, unsubscribe)
}

// spawn runs fn off the push goroutine. It is dropped once the view closed.
func (s *scope) spawn(name string, fn func(ctx context.Context) error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	go func() {
		defer s.wg.Done()
		if err := fn(s.ctx); err != nil && s.mounted() {
			log.Printf("view: %s: %v", name, err)
		}
	}()
}

func (s *scope) mounted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

func (s *scope) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()

	for _, unsubscribe := range subs {
		unsubscribe()
	}
	s.cancel()
	s.wg.Wait()
}

// Wait blocks until background refetches started so far have finished.
func (s *scope) Wait() {
	s.wg.Wait()
}
