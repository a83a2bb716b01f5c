package push

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"labreserve-client/internal/metrics"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

type Options struct {
	URL         string
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// PongWait is how long the connection may stay silent before it is
	// treated as dead. Pings go out at half of it.
	PongWait time.Duration
	Dialer   *websocket.Dialer
}

// Subscriber keeps one websocket to the push endpoint open for the session
// and publishes every received frame on its Bus. Frames are read and
// dispatched on a single goroutine.
type Subscriber struct {
	*Bus
	opts  Options
	token func() string

	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	connected bool

	statusMu  sync.Mutex
	listeners map[int]func(bool)
	nextID    int
}

func NewSubscriber(opts Options, token func() string) *Subscriber {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 10
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = time.Second
	}
	if opts.MaxDelay < opts.BaseDelay {
		opts.MaxDelay = opts.BaseDelay
	}
	if opts.PongWait <= 0 {
		opts.PongWait = 60 * time.Second
	}
	if opts.Dialer == nil {
		opts.Dialer = &websocket.Dialer{HandshakeTimeout: 20 * time.Second}
	}
	return &Subscriber{
		Bus:       NewBus(),
		opts:      opts,
		token:     token,
		listeners: map[int]func(bool){},
	}
}

// Connect starts the connection loop. It returns at once and is a no-op while
// a loop is already running.
func (s *Subscriber) Connect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	go s.run(ctx, done)
}

// Close tears the channel down and waits for the loop to exit.
func (s *Subscriber) Close() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Subscriber) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// OnStatus registers fn to run on every connected/disconnected transition.
func (s *Subscriber) OnStatus(fn func(connected bool)) func() {
	s.statusMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.statusMu.Unlock()
	return func() {
		s.statusMu.Lock()
		delete(s.listeners, id)
		s.statusMu.Unlock()
	}
}

// WaitConnected blocks until the channel is open or ctx ends.
func (s *Subscriber) WaitConnected(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		if s.Connected() {
			return nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Subscriber) run(ctx context.Context, done chan struct{}) {
	defer func() {
		s.mu.Lock()
		if s.done == done {
			s.done = nil
			s.cancel = nil
		}
		s.mu.Unlock()
		close(done)
	}()

	failures := 0
	for {
		conn, err := s.dial(ctx)
		if err == nil {
			failures = 0
			stop := make(chan struct{})
			go s.keepAlive(ctx, conn, stop)
			s.setConnected(true)
			err = s.readLoop(conn)
			close(stop)
			s.setConnected(false)
			_ = conn.Close()
			if ctx.Err() != nil {
				return
			}
			log.Printf("push: connection dropped: %v", err)
		} else {
			if ctx.Err() != nil {
				return
			}
			log.Printf("push: connect failed: %v", err)
		}

		failures++
		if failures > s.opts.MaxAttempts {
			log.Printf("push: giving up after %d attempts, live updates paused", s.opts.MaxAttempts)
			return
		}
		delay := Backoff(failures, s.opts.BaseDelay, s.opts.MaxDelay)
		metrics.PushReconnectsTotal.Inc()
		log.Printf("push: reconnect %d/%d in %s", failures, s.opts.MaxAttempts, delay)
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}

func (s *Subscriber) dial(ctx context.Context) (*websocket.Conn, error) {
	target, err := url.Parse(s.opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse push url: %w", err)
	}
	header := http.Header{}
	if s.token != nil {
		if token := s.token(); token != "" {
			query := target.Query()
			query.Set("token", token)
			target.RawQuery = query.Encode()
			header.Set("Authorization", "Bearer "+token)
		}
	}
	conn, resp, err := s.opts.Dialer.DialContext(ctx, target.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", s.opts.URL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", s.opts.URL, err)
	}
	return conn, nil
}

// keepAlive pings conn until stop closes and closes it when ctx ends or a
// ping cannot be written.
func (s *Subscriber) keepAlive(ctx context.Context, conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(s.opts.PongWait / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = conn.Close()
			return
		case <-stop:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Printf("push: ping failed: %v", err)
				_ = conn.Close()
				return
			}
		}
	}
}

// readLoop delivers frames until the connection fails. Any frame or pong
// extends the read deadline; a silent peer times out after PongWait.
func (s *Subscriber) readLoop(conn *websocket.Conn) error {
	conn.SetReadLimit(1 << 20)
	extend := func() error { return conn.SetReadDeadline(time.Now().Add(s.opts.PongWait)) }
	_ = extend()
	conn.SetPongHandler(func(string) error { return extend() })
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = extend()
		var event Event
		if err := json.Unmarshal(data, &event); err != nil || event.Name == "" {
			log.Printf("push: dropping malformed frame: %q", truncate(data, 120))
			continue
		}
		metrics.PushEventsTotal.WithLabelValues(event.Name).Inc()
		s.Publish(event)
	}
}

func (s *Subscriber) setConnected(value bool) {
	s.mu.Lock()
	changed := s.connected != value
	s.connected = value
	s.mu.Unlock()
	if !changed {
		return
	}
	if value {
		metrics.PushConnected.Set(1)
	} else {
		metrics.PushConnected.Set(0)
	}
	s.statusMu.Lock()
	fns := make([]func(bool), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.statusMu.Unlock()
	for _, fn := range fns {
		fn(value)
	}
}

// Backoff returns the wait before reconnect attempt n (1-based): base doubled
// per attempt, capped at max.
func Backoff(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

func truncate(data []byte, n int) string {
	if len(data) <= n {
		return string(data)
	}
	return string(data[:n]) + "..."
}
