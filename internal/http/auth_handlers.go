package httpapi

import (
	"net/http"
	"strings"

	"labreserve-client/internal/api"
	"labreserve-client/internal/dispatch"
	"labreserve-client/internal/models"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Name            string  `json:"name"`
	Email           string  `json:"email"`
	Password        string  `json:"password"`
	ConfirmPassword *string `json:"confirmPassword"`
}

type SessionResponse struct {
	State     dispatch.State   `json:"state"`
	User      *models.Identity `json:"user,omitempty"`
	Home      dispatch.Screen  `json:"home"`
	Connected bool             `json:"connected"`
}

func (s *Server) sessionResponse() SessionResponse {
	principal := s.Dispatcher.Principal()
	resp := SessionResponse{
		State:     s.Dispatcher.State(),
		Home:      dispatch.Home(principal),
		Connected: s.Push.Connected(),
	}
	if resp.State == dispatch.StateLoading {
		resp.Home = dispatch.ScreenLoading
	}
	if identity, ok := dispatch.IdentityOf(principal); ok {
		resp.User = &identity
	}
	return resp
}

func (s *Server) SessionState(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, s.sessionResponse())
}

func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || strings.TrimSpace(req.Password) == "" {
		WriteError(w, http.StatusBadRequest, "Email and password are required")
		return
	}
	if _, err := s.Dispatcher.Login(r.Context(), email, req.Password); err != nil {
		if api.IsUnauthorized(err) {
			WriteError(w, http.StatusUnauthorized, "Invalid email or password")
			return
		}
		WriteServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, s.sessionResponse())
}

// Register creates a student account and logs it in.
func (s *Server) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ConfirmPassword != nil && req.Password != *req.ConfirmPassword {
		WriteError(w, http.StatusBadRequest, "Password confirmation does not match")
		return
	}
	input := api.RegisterInput{
		Name:     strings.TrimSpace(req.Name),
		Email:    strings.ToLower(strings.TrimSpace(req.Email)),
		Password: req.Password,
	}
	if _, err := s.Dispatcher.Register(r.Context(), input); err != nil {
		WriteServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, s.sessionResponse())
}

func (s *Server) Logout(w http.ResponseWriter, r *http.Request) {
	s.Dispatcher.Logout()
	WriteJSON(w, http.StatusOK, s.sessionResponse())
}

type NavigateResponse struct {
	dispatch.Outcome
	State dispatch.State `json:"state"`
}

// NavigateTo resolves a client-side path against the role gates.
func (s *Server) NavigateTo(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("path")
	if target == "" {
		WriteError(w, http.StatusBadRequest, "path is required")
		return
	}
	WriteJSON(w, http.StatusOK, NavigateResponse{Outcome: s.Dispatcher.Navigate(target), State: s.Dispatcher.State()})
}
