package httpapi

import (
	"net/http"

	"labreserve-client/internal/services"
)

type StatusResponse struct {
	Session    SessionResponse           `json:"session"`
	Connection services.ConnectionStatus `json:"connection"`
	Process    services.DiagnosticSample `json:"process"`
}

func (s *Server) DebugStatus(w http.ResponseWriter, r *http.Request) {
	openViews := 0
	if ws, ok := s.Workspace(); ok {
		openViews = ws.OpenViews()
	}
	WriteJSON(w, http.StatusOK, StatusResponse{
		Session:    s.sessionResponse(),
		Connection: s.StatusHub.Last(),
		Process:    services.CaptureDiagnostics(s.Push.Connected(), openViews),
	})
}

// StatusSocket streams push-channel connection changes to a local viewer.
func (s *Server) StatusSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader().Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.StatusHub.Add(conn)
	defer func() {
		s.StatusHub.Remove(conn)
		_ = conn.Close()
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
