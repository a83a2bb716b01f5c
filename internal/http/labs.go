package httpapi

import (
	"net/http"
	"strings"

	"labreserve-client/internal/api"
	"labreserve-client/internal/services"
)

type LabRequest struct {
	Name        string `json:"name"`
	Location    string `json:"location"`
	Capacity    int    `json:"capacity"`
	Description string `json:"description"`
	OpeningTime string `json:"opening_time"`
	ClosingTime string `json:"closing_time"`
}

func (s *Server) ListLabs(w http.ResponseWriter, r *http.Request) {
	view, err := CurrentWorkspace(r).Labs(r.Context())
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

type LabDetailResponse struct {
	services.LabDetailSnapshot
	Grid *services.GridSnapshot `json:"grid,omitempty"`
}

func (s *Server) LabDetail(w http.ResponseWriter, r *http.Request) {
	labID, ok := pathID(w, r, "labId")
	if !ok {
		return
	}
	ws := CurrentWorkspace(r)
	view, err := ws.LabDetail(r.Context(), labID)
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}
	if wantsRefresh(r) {
		s.Push.Connect()
		_ = view.Refresh(r.Context())
	}
	resp := labDetailResponse(ws, view)
	if resp.Gone {
		WriteJSON(w, http.StatusNotFound, resp)
		return
	}
	WriteJSON(w, http.StatusOK, resp)
}

// labDetailResponse attaches the booking grid when it belongs to one of the
// lab's computers.
func labDetailResponse(ws *services.Workspace, view *services.LabDetailView) LabDetailResponse {
	resp := LabDetailResponse{LabDetailSnapshot: view.Snapshot()}
	if grid, ok := ws.Grid(); ok {
		if _, inLab := view.Computer(grid.ComputerID()); inLab {
			snap := grid.Snapshot()
			resp.Grid = &snap
		}
	}
	return resp
}

func (s *Server) CreateLab(w http.ResponseWriter, r *http.Request) {
	var req LabRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	view, err := CurrentWorkspace(r).Labs(r.Context())
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}
	input := api.LabInput{
		Name:        strings.TrimSpace(req.Name),
		Location:    strings.TrimSpace(req.Location),
		Capacity:    req.Capacity,
		Description: strings.TrimSpace(req.Description),
		OpeningTime: strings.TrimSpace(req.OpeningTime),
		ClosingTime: strings.TrimSpace(req.ClosingTime),
	}
	if err := view.Create(r.Context(), input); err != nil {
		WriteServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, view.Snapshot())
}

func (s *Server) DeleteLab(w http.ResponseWriter, r *http.Request) {
	labID, ok := pathID(w, r, "labId")
	if !ok {
		return
	}
	view, err := CurrentWorkspace(r).Labs(r.Context())
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}
	if err := view.Delete(r.Context(), labID); err != nil {
		WriteServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, view.Snapshot())
}
