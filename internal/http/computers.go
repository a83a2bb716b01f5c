package httpapi

import (
	"net/http"
	"strings"

	"labreserve-client/internal/api"
	"labreserve-client/internal/models"
)

type ComputerRequest struct {
	Name         string `json:"name"`
	Hostname     string `json:"hostname"`
	Specs        string `json:"specs"`
	Status       string `json:"status"`
	LaboratoryID int64  `json:"laboratory_id"`
}

type StatusRequest struct {
	Status string `json:"status"`
}

func (s *Server) ListComputers(w http.ResponseWriter, r *http.Request) {
	view, err := CurrentWorkspace(r).Computers(r.Context())
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

func (s *Server) CreateComputer(w http.ResponseWriter, r *http.Request) {
	var req ComputerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	view, err := CurrentWorkspace(r).Computers(r.Context())
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}
	input := api.ComputerInput{
		Name:         strings.TrimSpace(req.Name),
		Hostname:     strings.TrimSpace(req.Hostname),
		Specs:        req.Specs,
		Status:       models.ComputerStatus(strings.ToLower(strings.TrimSpace(req.Status))),
		LaboratoryID: req.LaboratoryID,
	}
	if err := view.Create(r.Context(), input); err != nil {
		WriteServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, view.Snapshot())
}

func (s *Server) UpdateComputerStatus(w http.ResponseWriter, r *http.Request) {
	computerID, ok := pathID(w, r, "computerId")
	if !ok {
		return
	}
	var req StatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	view, err := CurrentWorkspace(r).Computers(r.Context())
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}
	status := models.ComputerStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	if err := view.SetStatus(r.Context(), computerID, status); err != nil {
		WriteServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, view.Snapshot())
}

func (s *Server) DeleteComputer(w http.ResponseWriter, r *http.Request) {
	computerID, ok := pathID(w, r, "computerId")
	if !ok {
		return
	}
	view, err := CurrentWorkspace(r).Computers(r.Context())
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}
	if err := view.Delete(r.Context(), computerID); err != nil {
		WriteServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, view.Snapshot())
}
