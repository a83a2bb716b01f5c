package httpapi

import (
	"net/http"
	"strconv"

	"labreserve-client/internal/models"
	"labreserve-client/internal/services"
)

type SelectRequest struct {
	Hour int `json:"hour"`
}

type BookingResponse struct {
	Reservation models.Reservation    `json:"reservation"`
	Grid        services.GridSnapshot `json:"grid"`
}

// Availability loads the slot grid for ?computer_id=&date=YYYY-MM-DD. Each
// call queries the server again.
func (s *Server) Availability(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	computerID, err := strconv.ParseInt(query.Get("computer_id"), 10, 64)
	if err != nil || computerID <= 0 {
		WriteError(w, http.StatusBadRequest, "computer_id is required")
		return
	}
	date, err := services.ParseDate(query.Get("date"))
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}
	grid, err := CurrentWorkspace(r).Availability(r.Context(), computerID, date)
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, grid.Snapshot())
}

func (s *Server) SelectSlot(w http.ResponseWriter, r *http.Request) {
	var req SelectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	grid, ok := CurrentWorkspace(r).Grid()
	if !ok {
		WriteError(w, http.StatusConflict, "Load availability first")
		return
	}
	if err := grid.Select(req.Hour); err != nil {
		WriteServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, grid.Snapshot())
}

// BookSlot submits the selected hour once. A conflict leaves the grid stale
// until availability is loaded again.
func (s *Server) BookSlot(w http.ResponseWriter, r *http.Request) {
	ws := CurrentWorkspace(r)
	created, err := ws.Book(r.Context())
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}
	grid, _ := ws.Grid()
	WriteJSON(w, http.StatusCreated, BookingResponse{Reservation: created, Grid: grid.Snapshot()})
}

func (s *Server) MyReservations(w http.ResponseWriter, r *http.Request) {
	view, err := CurrentWorkspace(r).MyReservations(r.Context())
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

func (s *Server) CancelMyReservation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "reservationId")
	if !ok {
		return
	}
	view, err := CurrentWorkspace(r).MyReservations(r.Context())
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}
	if err := view.Cancel(r.Context(), id); err != nil {
		WriteServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, view.Snapshot())
}

func (s *Server) DeleteMyReservation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "reservationId")
	if !ok {
		return
	}
	view, err := CurrentWorkspace(r).MyReservations(r.Context())
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}
	if err := view.Delete(r.Context(), id); err != nil {
		WriteServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, view.Snapshot())
}
