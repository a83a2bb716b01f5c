package httpapi

import (
	"context"
	"net/http"
	"strings"

	"labreserve-client/internal/api"
)

type AdminCreateRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) AllReservations(w http.ResponseWriter, r *http.Request) {
	view, err := CurrentWorkspace(r).Reservations(r.Context())
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}
	if wantsRefresh(r) {
		s.Push.Connect()
		_ = view.Refresh(r.Context())
	}
	WriteJSON(w, http.StatusOK, view.Snapshot())
}

func (s *Server) ConfirmReservation(w http.ResponseWriter, r *http.Request) {
	s.reservationAction(w, r, func(ctx context.Context, id int64) error {
		view, err := CurrentWorkspace(r).Reservations(ctx)
		if err != nil {
			return err
		}
		return view.Confirm(ctx, id)
	})
}

func (s *Server) CancelReservation(w http.ResponseWriter, r *http.Request) {
	s.reservationAction(w, r, func(ctx context.Context, id int64) error {
		view, err := CurrentWorkspace(r).Reservations(ctx)
		if err != nil {
			return err
		}
		return view.Cancel(ctx, id)
	})
}

func (s *Server) DeleteReservation(w http.ResponseWriter, r *http.Request) {
	s.reservationAction(w, r, func(ctx context.Context, id int64) error {
		view, err := CurrentWorkspace(r).Reservations(ctx)
		if err != nil {
			return err
		}
		return view.Delete(ctx, id)
	})
}

func (s *Server) reservationAction(w http.ResponseWriter, r *http.Request, action func(context.Context, int64) error) {
	id, ok := pathID(w, r, "reservationId")
	if !ok {
		return
	}
	if err := action(r.Context(), id); err != nil {
		WriteServiceError(w, r, err)
		return
	}
	view, err := CurrentWorkspace(r).Reservations(r.Context())
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, view.Snapshot())
}

func (s *Server) ListAdmins(w http.ResponseWriter, r *http.Request) {
	view, err := CurrentWorkspace(r).Admins(r.Context())
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}
	if wantsRefresh(r) {
		_ = view.Refresh(r.Context())
	}
	WriteJSON(w, http.StatusOK, view.Snapshot())
}

func (s *Server) CreateAdmin(w http.ResponseWriter, r *http.Request) {
	var req AdminCreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	view, err := CurrentWorkspace(r).Admins(r.Context())
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}
	input := api.AdminInput{
		Name:     strings.TrimSpace(req.Name),
		Email:    strings.ToLower(strings.TrimSpace(req.Email)),
		Password: req.Password,
	}
	if err := view.Create(r.Context(), input); err != nil {
		WriteServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, view.Snapshot())
}
