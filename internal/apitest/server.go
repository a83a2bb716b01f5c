// Package apitest is an in-memory stand-in for the reservation API and its
// push channel, for tests.
package apitest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"labreserve-client/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
)

const signingKey = "apitest-secret"

type account struct {
	models.Identity
	PasswordHash []byte
}

type failure struct {
	status  int
	message string
}

type Server struct {
	*httptest.Server
	Hub *Hub

	mu           sync.Mutex
	nextID       int64
	users        map[int64]*account
	tokens       map[string]int64
	labs         map[int64]models.Lab
	computers    map[int64]models.Computer
	reservations map[int64]models.Reservation
	requests     []string
	failures     map[string][]failure
}

func New() *Server {
	s := &Server{
		Hub:          NewHub(),
		users:        map[int64]*account{},
		tokens:       map[string]int64{},
		labs:         map[int64]models.Lab{},
		computers:    map[int64]models.Computer{},
		reservations: map[int64]models.Reservation{},
		failures:     map[string][]failure{},
	}
	s.Server = httptest.NewServer(s.router())
	return s
}

// PushURL is the websocket endpoint of the push channel.
func (s *Server) PushURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http") + "/ws"
}

func (s *Server) Close() {
	s.Hub.DropAll()
	s.Server.Close()
}

func (s *Server) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *Server) AddUser(name, email, password string, role models.Role) models.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity := models.Identity{ID: s.id(), Name: name, Email: email, Role: role}
	s.users[identity.ID] = &account{Identity: identity, PasswordHash: hashPassword(password)}
	return identity
}

// Token issues a bearer token for a seeded user, as /auth/login would.
func (s *Server) Token(userID int64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issueLocked(userID, time.Hour)
}

// ExpiredToken issues a token whose exp claim is already past.
func (s *Server) ExpiredToken(userID int64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issueLocked(userID, -time.Minute)
}

func (s *Server) issueLocked(userID int64, ttl time.Duration) string {
	claims := jwt.MapClaims{
		"sub":  strconv.FormatInt(userID, 10),
		"role": string(s.users[userID].Role),
		"exp":  time.Now().Add(ttl).Unix(),
		"jti":  strconv.FormatInt(s.id(), 10),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(signingKey))
	if err != nil {
		panic(err)
	}
	s.tokens[token] = userID
	return token
}

// RevokeAll invalidates every issued token.
func (s *Server) RevokeAll() {
	s.mu.Lock()
	s.tokens = map[string]int64{}
	s.mu.Unlock()
}

func (s *Server) AddLab(lab models.Lab) models.Lab {
	s.mu.Lock()
	defer s.mu.Unlock()
	lab.ID = s.id()
	s.labs[lab.ID] = lab
	return lab
}

func (s *Server) AddComputer(c models.Computer) models.Computer {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = s.id()
	if c.Status == "" {
		c.Status = models.ComputerAvailable
	}
	s.computers[c.ID] = c
	return c
}

func (s *Server) AddReservation(r models.Reservation) models.Reservation {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.ID = s.id()
	if r.Status == "" {
		r.Status = models.ReservationPending
	}
	s.reservations[r.ID] = r
	return r
}

// SetComputerStatus changes a computer as another client would, without
// emitting anything.
func (s *Server) SetComputerStatus(id int64, status models.ComputerStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.computers[id]
	c.Status = status
	s.computers[id] = c
}

func (s *Server) SetReservationStatus(id int64, status models.ReservationStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.reservations[id]
	r.Status = status
	s.reservations[id] = r
}

func (s *Server) Reservation(id int64) (models.Reservation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reservations[id]
	return r, ok
}

func (s *Server) Lab(id int64) (models.Lab, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.labs[id]
	return l, ok
}

// FailNext makes the next request matching method and path answer with
// status and message.
func (s *Server) FailNext(method, path string, status int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := method + " " + path
	s.failures[key] = append(s.failures[key], failure{status: status, message: message})
}

// Requests lists "METHOD /path" for every request served so far.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

// Count returns how many requests matched "METHOD /path" exactly.
func (s *Server) Count(request string) int {
	n := 0
	for _, r := range s.Requests() {
		if r == request {
			n++
		}
	}
	return n
}

// Emit sends one push frame to every connected client.
func (s *Server) Emit(event string, payload any) {
	s.Hub.Emit(event, payload)
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.record)

	r.Post("/auth/login", s.login)
	r.Post("/auth/register", s.register)
	r.Get("/ws", s.pushSocket)

	r.Group(func(authed chi.Router) {
		authed.Use(s.withUser)
		authed.Get("/auth/profile", s.profile)
		authed.Get("/auth/users", s.listUsers)
		authed.Get("/users", s.listUsers)
		authed.Get("/users/{id}", s.getUser)
		authed.Post("/users/admin", s.createAdmin)

		authed.Get("/labs", s.listLabs)
		authed.Get("/labs/{id}", s.getLab)
		authed.Post("/labs", s.createLab)
		authed.Delete("/labs/{id}", s.deleteLab)

		authed.Get("/computers", s.listComputers)
		authed.Get("/computers/available", s.availableComputers)
		authed.Get("/computers/laboratory/{id}", s.labComputers)
		authed.Get("/computers/{id}", s.getComputer)
		authed.Post("/computers", s.createComputer)
		authed.Put("/computers/{id}/status", s.updateComputerStatus)
		authed.Delete("/computers/{id}", s.deleteComputer)

		authed.Get("/reservations", s.myReservations)
		authed.Get("/reservations/all", s.allReservations)
		authed.Get("/reservations/user/{id}", s.userReservations)
		authed.Get("/reservations/occupied-hours", s.occupiedHours)
		authed.Post("/reservations", s.createReservation)
		authed.Put("/reservations/{id}/confirm", s.confirmReservation)
		authed.Put("/reservations/{id}/cancel", s.cancelReservation)
		authed.Delete("/reservations/{id}", s.deleteReservation)
	})
	return r
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path
		s.mu.Lock()
		s.requests = append(s.requests, key)
		var fail *failure
		if queue := s.failures[key]; len(queue) > 0 {
			fail = &queue[0]
			s.failures[key] = queue[1:]
		}
		s.mu.Unlock()
		if fail != nil {
			writeMessage(w, fail.status, fail.message)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type ctxKey struct{}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

func urlID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id
}

func sortedLabs(items map[int64]models.Lab) []models.Lab {
	out := make([]models.Lab, 0, len(items))
	for _, item := range items {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func sortedComputers(items map[int64]models.Computer, keep func(models.Computer) bool) []models.Computer {
	out := []models.Computer{}
	for _, item := range items {
		if keep == nil || keep(item) {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func sortedReservations(items map[int64]models.Reservation, keep func(models.Reservation) bool) []models.Reservation {
	out := []models.Reservation{}
	for _, item := range items {
		if keep == nil || keep(item) {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func notFound(w http.ResponseWriter, what string, id int64) {
	writeMessage(w, http.StatusNotFound, fmt.Sprintf("%s %d not found", what, id))
}
