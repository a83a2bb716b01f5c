package apitest

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"labreserve-client/internal/models"
)

func (s *Server) withUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		s.mu.Lock()
		userID, ok := s.tokens[token]
		var user models.Identity
		if ok {
			user = s.users[userID].Identity
		}
		s.mu.Unlock()
		if !ok {
			writeMessage(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, user)))
	})
}

func currentUser(r *http.Request) models.Identity {
	user, _ := r.Context().Value(ctxKey{}).(models.Identity)
	return user
}

func staff(r *http.Request) bool {
	role := currentUser(r).Role
	return role == models.RoleAdmin || role == models.RoleSuperuser
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decode(w, r, &req) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, acc := range s.users {
		if acc.Email == req.Email && verifyPassword(req.Password, acc.PasswordHash) {
			writeJSON(w, http.StatusOK, map[string]any{
				"token": s.issueLocked(acc.ID, time.Hour),
				"user":  acc.Identity,
			})
			return
		}
	}
	writeMessage(w, http.StatusUnauthorized, "Invalid credentials")
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string      `json:"name"`
		Email    string      `json:"email"`
		Password string      `json:"password"`
		Role     models.Role `json:"role"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Role != "" && req.Role != models.RoleStudent {
		writeMessage(w, http.StatusForbidden, "only students may register")
		return
	}
	s.mu.Lock()
	for _, acc := range s.users {
		if acc.Email == req.Email {
			s.mu.Unlock()
			writeMessage(w, http.StatusConflict, "Email already registered")
			return
		}
	}
	s.mu.Unlock()
	s.AddUser(req.Name, req.Email, req.Password, models.RoleStudent)
	writeMessage(w, http.StatusCreated, "User registered")
}

func (s *Server) profile(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, currentUser(r))
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	if !staff(r) {
		writeMessage(w, http.StatusForbidden, "forbidden")
		return
	}
	role := models.Role(r.URL.Query().Get("role"))
	s.mu.Lock()
	out := []models.Identity{}
	for _, acc := range s.users {
		if role == "" || acc.Role == role {
			out = append(out, acc.Identity)
		}
	}
	s.mu.Unlock()
	sortIdentities(out)
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	id := urlID(r)
	s.mu.Lock()
	acc, ok := s.users[id]
	s.mu.Unlock()
	if !ok {
		notFound(w, "user", id)
		return
	}
	writeJSON(w, http.StatusOK, acc.Identity)
}

func (s *Server) createAdmin(w http.ResponseWriter, r *http.Request) {
	if currentUser(r).Role != models.RoleSuperuser {
		writeMessage(w, http.StatusForbidden, "forbidden")
		return
	}
	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decode(w, r, &req) {
		return
	}
	s.AddUser(req.Name, req.Email, req.Password, models.RoleAdmin)
	writeMessage(w, http.StatusCreated, "Admin created")
}

func (s *Server) listLabs(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := sortedLabs(s.labs)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getLab(w http.ResponseWriter, r *http.Request) {
	id := urlID(r)
	lab, ok := s.Lab(id)
	if !ok {
		notFound(w, "laboratory", id)
		return
	}
	writeJSON(w, http.StatusOK, lab)
}

func (s *Server) createLab(w http.ResponseWriter, r *http.Request) {
	if !staff(r) {
		writeMessage(w, http.StatusForbidden, "forbidden")
		return
	}
	var lab models.Lab
	if !decode(w, r, &lab) {
		return
	}
	lab = s.AddLab(lab)
	s.Emit(models.EventLabUpdate, models.LabEvent{LabID: lab.ID})
	writeJSON(w, http.StatusCreated, lab)
}

func (s *Server) deleteLab(w http.ResponseWriter, r *http.Request) {
	if !staff(r) {
		writeMessage(w, http.StatusForbidden, "forbidden")
		return
	}
	id := urlID(r)
	s.mu.Lock()
	_, ok := s.labs[id]
	delete(s.labs, id)
	for cid, c := range s.computers {
		if c.LaboratoryID == id {
			delete(s.computers, cid)
		}
	}
	s.mu.Unlock()
	if !ok {
		notFound(w, "laboratory", id)
		return
	}
	s.Emit(models.EventLabDeleted, models.LabEvent{LabID: id})
	writeMessage(w, http.StatusOK, "Laboratory deleted")
}

func (s *Server) listComputers(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := sortedComputers(s.computers, nil)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) availableComputers(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := sortedComputers(s.computers, func(c models.Computer) bool { return c.Status == models.ComputerAvailable })
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) labComputers(w http.ResponseWriter, r *http.Request) {
	labID := urlID(r)
	s.mu.Lock()
	out := sortedComputers(s.computers, func(c models.Computer) bool { return c.LaboratoryID == labID })
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getComputer(w http.ResponseWriter, r *http.Request) {
	id := urlID(r)
	s.mu.Lock()
	c, ok := s.computers[id]
	s.mu.Unlock()
	if !ok {
		notFound(w, "computer", id)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) createComputer(w http.ResponseWriter, r *http.Request) {
	if !staff(r) {
		writeMessage(w, http.StatusForbidden, "forbidden")
		return
	}
	var c models.Computer
	if !decode(w, r, &c) {
		return
	}
	if _, ok := s.Lab(c.LaboratoryID); !ok {
		notFound(w, "laboratory", c.LaboratoryID)
		return
	}
	c = s.AddComputer(c)
	s.Emit(models.EventLabUpdate, models.LabEvent{LabID: c.LaboratoryID})
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) updateComputerStatus(w http.ResponseWriter, r *http.Request) {
	if !staff(r) {
		writeMessage(w, http.StatusForbidden, "forbidden")
		return
	}
	var req struct {
		Status models.ComputerStatus `json:"status"`
	}
	if !decode(w, r, &req) {
		return
	}
	if !req.Status.Valid() {
		writeMessage(w, http.StatusBadRequest, "invalid status")
		return
	}
	id := urlID(r)
	s.mu.Lock()
	c, ok := s.computers[id]
	old := c.Status
	if ok {
		c.Status = req.Status
		s.computers[id] = c
	}
	s.mu.Unlock()
	if !ok {
		notFound(w, "computer", id)
		return
	}
	s.Emit(models.EventComputerStatusUpdated, models.ComputerStatusEvent{
		ComputerID:   id,
		LaboratoryID: c.LaboratoryID,
		OldStatus:    old,
		NewStatus:    req.Status,
	})
	writeMessage(w, http.StatusOK, "Status updated")
}

func (s *Server) deleteComputer(w http.ResponseWriter, r *http.Request) {
	if !staff(r) {
		writeMessage(w, http.StatusForbidden, "forbidden")
		return
	}
	id := urlID(r)
	s.mu.Lock()
	c, ok := s.computers[id]
	delete(s.computers, id)
	s.mu.Unlock()
	if !ok {
		notFound(w, "computer", id)
		return
	}
	s.Emit(models.EventComputerDeleted, models.ComputerDeletedEvent{ComputerID: id, LaboratoryID: c.LaboratoryID})
	writeMessage(w, http.StatusOK, "Computer deleted")
}

func (s *Server) myReservations(w http.ResponseWriter, r *http.Request) {
	userID := currentUser(r).ID
	s.writeReservations(w, func(res models.Reservation) bool { return res.UserID == userID })
}

func (s *Server) allReservations(w http.ResponseWriter, r *http.Request) {
	if !staff(r) {
		writeMessage(w, http.StatusForbidden, "forbidden")
		return
	}
	s.writeReservations(w, nil)
}

func (s *Server) userReservations(w http.ResponseWriter, r *http.Request) {
	userID := urlID(r)
	if !staff(r) && currentUser(r).ID != userID {
		writeMessage(w, http.StatusForbidden, "forbidden")
		return
	}
	s.writeReservations(w, func(res models.Reservation) bool { return res.UserID == userID })
}

func (s *Server) writeReservations(w http.ResponseWriter, keep func(models.Reservation) bool) {
	s.mu.Lock()
	out := sortedReservations(s.reservations, keep)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

// occupiedHours reports the UTC start hours of live reservations of a
// computer on one day.
func (s *Server) occupiedHours(w http.ResponseWriter, r *http.Request) {
	computerID, err := strconv.ParseInt(r.URL.Query().Get("computer_id"), 10, 64)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "computer_id is required")
		return
	}
	day, err := time.ParseInLocation("2006-01-02", r.URL.Query().Get("date"), time.UTC)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	next := day.Add(24 * time.Hour)
	hours := []int{}
	s.mu.Lock()
	for _, res := range sortedReservations(s.reservations, nil) {
		if res.ComputerID != computerID || res.Status == models.ReservationCancelled {
			continue
		}
		for h := res.StartTime.UTC(); h.Before(res.EndTime.Time); h = h.Add(time.Hour) {
			if !h.Before(day) && h.Before(next) {
				hours = append(hours, h.Hour())
			}
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string][]int{"occupied_hours": hours})
}

func (s *Server) createReservation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ComputerID int64            `json:"computer_id"`
		StartTime  models.Timestamp `json:"start_time"`
		EndTime    models.Timestamp `json:"end_time"`
	}
	if !decode(w, r, &req) {
		return
	}
	if !req.StartTime.Before(req.EndTime.Time) {
		writeMessage(w, http.StatusBadRequest, "end_time must be after start_time")
		return
	}
	s.mu.Lock()
	if _, ok := s.computers[req.ComputerID]; !ok {
		s.mu.Unlock()
		notFound(w, "computer", req.ComputerID)
		return
	}
	for _, res := range s.reservations {
		if res.ComputerID == req.ComputerID && res.Status != models.ReservationCancelled &&
			res.StartTime.Before(req.EndTime.Time) && req.StartTime.Before(res.EndTime.Time) {
			s.mu.Unlock()
			writeMessage(w, http.StatusConflict, "Time slot already reserved")
			return
		}
	}
	s.mu.Unlock()
	created := s.AddReservation(models.Reservation{
		ComputerID: req.ComputerID,
		UserID:     currentUser(r).ID,
		StartTime:  req.StartTime,
		EndTime:    req.EndTime,
	})
	s.Emit(models.EventReservationUpdate, map[string]int64{"reservation_id": created.ID})
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) confirmReservation(w http.ResponseWriter, r *http.Request) {
	if !staff(r) {
		writeMessage(w, http.StatusForbidden, "forbidden")
		return
	}
	s.transition(w, r, models.ReservationConfirmed)
}

func (s *Server) cancelReservation(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, models.ReservationCancelled)
}

func (s *Server) transition(w http.ResponseWriter, r *http.Request, status models.ReservationStatus) {
	id := urlID(r)
	user := currentUser(r)
	s.mu.Lock()
	res, ok := s.reservations[id]
	if ok && !staff(r) && res.UserID != user.ID {
		s.mu.Unlock()
		writeMessage(w, http.StatusForbidden, "forbidden")
		return
	}
	if ok {
		res.Status = status
		s.reservations[id] = res
	}
	s.mu.Unlock()
	if !ok {
		notFound(w, "reservation", id)
		return
	}
	s.Emit(models.EventReservationStatusUpdated, models.ReservationStatusEvent{
		ReservationID: id,
		UserID:        res.UserID,
		NewStatus:     status,
	})
	writeMessage(w, http.StatusOK, "Reservation updated")
}

func (s *Server) deleteReservation(w http.ResponseWriter, r *http.Request) {
	id := urlID(r)
	user := currentUser(r)
	s.mu.Lock()
	res, ok := s.reservations[id]
	if ok && !staff(r) && res.UserID != user.ID {
		s.mu.Unlock()
		writeMessage(w, http.StatusForbidden, "forbidden")
		return
	}
	delete(s.reservations, id)
	s.mu.Unlock()
	if !ok {
		notFound(w, "reservation", id)
		return
	}
	s.Emit(models.EventReservationUpdate, map[string]int64{"reservation_id": id})
	writeMessage(w, http.StatusOK, "Reservation deleted")
}

func sortIdentities(items []models.Identity) {
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
}
