package httpapi

import (
	"context"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"labreserve-client/internal/dispatch"
	"labreserve-client/internal/services"

	"github.com/gorilla/websocket"
)

type AdminPanelData struct {
	Labs         services.LabsSnapshot         `json:"labs"`
	Computers    services.ComputersSnapshot    `json:"computers"`
	Reservations services.ReservationsSnapshot `json:"reservations"`
}

type SuperuserPanelData struct {
	AdminPanelData
	Admins services.AdminsSnapshot `json:"admins"`
}

type ScreenResponse struct {
	Outcome   dispatch.Outcome `json:"outcome"`
	State     dispatch.State   `json:"state"`
	Connected bool             `json:"connected"`
	Data      any              `json:"data,omitempty"`
	Error     string           `json:"error,omitempty"`
}

type liveView interface {
	Watch() (<-chan struct{}, func())
	Refresh(ctx context.Context) error
}

// screenSource is a mounted screen: how to render it and which views feed it.
type screenSource struct {
	render func() any
	views  []liveView
}

// mountScreen opens the views behind a screen the gate already allowed.
func mountScreen(ctx context.Context, ws *services.Workspace, outcome dispatch.Outcome) (screenSource, error) {
	switch outcome.Screen {
	case dispatch.ScreenStudentDashboard:
		dash, err := ws.Dashboard(ctx)
		if err != nil {
			return screenSource{}, err
		}
		return screenSource{
			render: func() any { return dash.Snapshot() },
			views:  []liveView{dash, dash.MyReservations()},
		}, nil
	case dispatch.ScreenAdminPanel, dispatch.ScreenSuperuserPanel:
		labs, err := ws.Labs(ctx)
		if err != nil {
			return screenSource{}, err
		}
		computers, err := ws.Computers(ctx)
		if err != nil {
			return screenSource{}, err
		}
		reservations, err := ws.Reservations(ctx)
		if err != nil {
			return screenSource{}, err
		}
		panel := func() AdminPanelData {
			return AdminPanelData{Labs: labs.Snapshot(), Computers: computers.Snapshot(), Reservations: reservations.Snapshot()}
		}
		if outcome.Screen == dispatch.ScreenAdminPanel {
			return screenSource{
				render: func() any { return panel() },
				views:  []liveView{labs, computers, reservations},
			}, nil
		}
		admins, err := ws.Admins(ctx)
		if err != nil {
			return screenSource{}, err
		}
		return screenSource{
			render: func() any { return SuperuserPanelData{AdminPanelData: panel(), Admins: admins.Snapshot()} },
			views:  []liveView{labs, computers, reservations, admins},
		}, nil
	case dispatch.ScreenLabs:
		labs, err := ws.Labs(ctx)
		if err != nil {
			return screenSource{}, err
		}
		return screenSource{render: func() any { return labs.Snapshot() }, views: []liveView{labs}}, nil
	case dispatch.ScreenLabDetail:
		detail, err := ws.LabDetail(ctx, outcome.LabID)
		if err != nil {
			return screenSource{}, err
		}
		return screenSource{
			render: func() any { return labDetailResponse(ws, detail) },
			views:  []liveView{detail},
		}, nil
	case dispatch.ScreenReservations:
		mine, err := ws.MyReservations(ctx)
		if err != nil {
			return screenSource{}, err
		}
		return screenSource{render: func() any { return mine.Snapshot() }, views: []liveView{mine}}, nil
	}
	return screenSource{render: func() any { return nil }}, nil
}

// resolveScreen gates target and, when allowed, mounts and renders it.
func (s *Server) resolveScreen(ctx context.Context, target string, refresh bool) (ScreenResponse, screenSource) {
	outcome := s.Dispatcher.Navigate(target)
	resp := ScreenResponse{Outcome: outcome, State: s.Dispatcher.State(), Connected: s.Push.Connected()}
	ws, ok := s.Workspace()
	if !outcome.Allowed() || !ok {
		return resp, screenSource{}
	}
	src, err := mountScreen(ctx, ws, outcome)
	if err != nil {
		resp.Error = services.UserMessage(err)
		return resp, screenSource{}
	}
	if refresh {
		s.Push.Connect()
		for _, view := range src.views {
			_ = view.Refresh(ctx)
		}
	}
	resp.Data = src.render()
	return resp, src
}

// Screen renders ?path= once.
func (s *Server) Screen(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("path")
	if target == "" {
		target = dispatch.PathDashboard
	}
	resp, _ := s.resolveScreen(r.Context(), target, wantsRefresh(r))
	WriteJSON(w, http.StatusOK, resp)
}

// upgrader accepts sockets from this server's own origin, an origin listed in
// CorsOrigins, or a client that sends no Origin at all.
func (s *Server) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{CheckOrigin: s.allowedOrigin}
}

func (s *Server) allowedOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	for _, allowed := range s.Config.CorsOrigins {
		if strings.EqualFold(strings.TrimSuffix(allowed, "/"), origin) {
			return true
		}
	}
	log.Printf("view: refused socket from origin %q", origin)
	return false
}

// ScreenSocket streams ?path= as a fresh snapshot after every change of its
// views and after every session transition.
func (s *Server) ScreenSocket(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("path")
	if target == "" {
		target = dispatch.PathDashboard
	}
	conn, err := s.upgrader().Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	transitions := make(chan struct{}, 1)
	stop := s.Dispatcher.OnTransition(func(dispatch.Transition) {
		select {
		case transitions <- struct{}{}:
		default:
		}
	})
	defer stop()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ctx := r.Context()
	for {
		resp, src := s.resolveScreen(ctx, target, false)
		if err := conn.WriteJSON(resp); err != nil {
			return
		}
		changes, release := watchAll(src.views)
		select {
		case <-changes:
		case <-transitions:
		case <-closed:
			release()
			return
		case <-ctx.Done():
			release()
			return
		}
		release()
	}
}

// watchAll merges the change signals of views into one channel.
func watchAll(views []liveView) (<-chan struct{}, func()) {
	merged := make(chan struct{}, 1)
	done := make(chan struct{})
	var wg sync.WaitGroup
	stops := make([]func(), 0, len(views))
	for _, view := range views {
		ch, stop := view.Watch()
		stops = append(stops, stop)
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case <-ch:
				select {
				case merged <- struct{}{}:
				default:
				}
			case <-done:
			}
		}()
	}
	var once sync.Once
	return merged, func() {
		once.Do(func() {
			close(done)
			for _, stop := range stops {
				stop()
			}
			wg.Wait()
		})
	}
}
