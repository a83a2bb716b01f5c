package httpapi

import (
	"log"
	"net/http"
	"sync"
	"time"

	"labreserve-client/internal/api"
	"labreserve-client/internal/config"
	"labreserve-client/internal/dispatch"
	"labreserve-client/internal/push"
	"labreserve-client/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is the local view server. It follows the dispatcher: entering a
// role state opens a workspace and the push channel, leaving it tears both
// down.
type Server struct {
	Config     config.Config
	Client     *api.Client
	Dispatcher *dispatch.Dispatcher
	Push       *push.Subscriber
	StatusHub  *services.StatusHub
	Now        func() time.Time

	mu        sync.Mutex
	workspace *services.Workspace
	stops     []func()
}

func NewServer(cfg config.Config, client *api.Client, dispatcher *dispatch.Dispatcher, subscriber *push.Subscriber, hub *services.StatusHub) *Server {
	s := &Server{
		Config:     cfg,
		Client:     client,
		Dispatcher: dispatcher,
		Push:       subscriber,
		StatusHub:  hub,
		Now:        time.Now,
	}
	s.stops = append(s.stops,
		dispatcher.OnTransition(s.handleTransition),
		subscriber.OnStatus(hub.Broadcast),
	)
	return s
}

func (s *Server) handleTransition(t dispatch.Transition) {
	s.mu.Lock()
	old := s.workspace
	s.workspace = nil
	if identity, ok := dispatch.IdentityOf(t.Principal); ok {
		s.workspace = services.NewWorkspace(services.Deps{Client: s.Client, Push: s.Push, Now: s.Now}, identity)
	}
	fresh := s.workspace
	s.mu.Unlock()

	s.Push.Close()
	if old != nil {
		// May run on a view goroutine that the close waits for.
		go old.Close()
	}
	if fresh != nil {
		s.Push.Connect()
	}
}

// Workspace returns the views of the current session, if any.
func (s *Server) Workspace() (*services.Workspace, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.workspace, s.workspace != nil
}

// Shutdown closes the session's views and the push channel.
func (s *Server) Shutdown() {
	for _, stop := range s.stops {
		stop()
	}
	s.mu.Lock()
	ws := s.workspace
	s.workspace = nil
	s.mu.Unlock()
	if ws != nil {
		ws.Close()
	}
	s.Push.Close()
	log.Printf("views closed")
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.RequestLogger)
	if len(s.Config.CorsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.Config.CorsOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	r.Get("/healthz", s.Health)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/debug/status", s.DebugStatus)

	r.Route("/api", func(api chi.Router) {
		api.Route("/session", func(session chi.Router) {
			session.Get("/", s.SessionState)
			session.Post("/login", s.Login)
			session.Post("/register", s.Register)
			session.Post("/logout", s.Logout)
		})
		api.Get("/navigate", s.NavigateTo)
		api.Get("/screen", s.Screen)

		api.Group(func(authed chi.Router) {
			authed.Use(s.RequireSession)

			authed.Get("/labs", s.ListLabs)
			authed.Get("/labs/{labId}", s.LabDetail)
			authed.Get("/availability", s.Availability)
			authed.Post("/availability/select", s.SelectSlot)
			authed.Post("/availability/book", s.BookSlot)

			authed.Route("/reservations", func(res chi.Router) {
				res.Get("/", s.MyReservations)
				res.Put("/{reservationId}/cancel", s.CancelMyReservation)
				res.Delete("/{reservationId}", s.DeleteMyReservation)
			})

			authed.Route("/admin", func(admin chi.Router) {
				admin.Use(RequireAnyRole(dispatch.StateAdmin, dispatch.StateSuperuser))
				admin.Post("/labs", s.CreateLab)
				admin.Delete("/labs/{labId}", s.DeleteLab)
				admin.Get("/computers", s.ListComputers)
				admin.Post("/computers", s.CreateComputer)
				admin.Put("/computers/{computerId}/status", s.UpdateComputerStatus)
				admin.Delete("/computers/{computerId}", s.DeleteComputer)
				admin.Get("/reservations", s.AllReservations)
				admin.Put("/reservations/{reservationId}/confirm", s.ConfirmReservation)
				admin.Put("/reservations/{reservationId}/cancel", s.CancelReservation)
				admin.Delete("/reservations/{reservationId}", s.DeleteReservation)
			})

			authed.Route("/superuser", func(su chi.Router) {
				su.Use(RequireRole(dispatch.StateSuperuser))
				su.Get("/admins", s.ListAdmins)
				su.Post("/admins", s.CreateAdmin)
			})
		})
	})

	r.Get("/ws/status", s.StatusSocket)
	r.Get("/ws/screen", s.ScreenSocket)
	return r
}

func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
