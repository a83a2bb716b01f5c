package httpapi

import (
	"context"
	"net/http"

	"labreserve-client/internal/dispatch"
	"labreserve-client/internal/services"
)

type contextKey string

const (
	ctxPrincipal contextKey = "principal"
	ctxWorkspace contextKey = "workspace"
)

// RequireSession lets a request through only for a resolved, authenticated
// session and attaches its principal and workspace to the context.
func (s *Server) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Dispatcher.State() == dispatch.StateLoading {
			WriteError(w, http.StatusServiceUnavailable, "Session is loading")
			return
		}
		principal := s.Dispatcher.Principal()
		ws, ok := s.Workspace()
		if _, anonymous := principal.(dispatch.Anonymous); anonymous || !ok {
			WriteJSON(w, http.StatusUnauthorized, ErrorResponse{Message: "Authentication required", Redirect: dispatch.PathLogin})
			return
		}
		ctx := context.WithValue(r.Context(), ctxPrincipal, principal)
		ctx = context.WithValue(ctx, ctxWorkspace, ws)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func CurrentPrincipal(r *http.Request) dispatch.Principal {
	if value, ok := r.Context().Value(ctxPrincipal).(dispatch.Principal); ok {
		return value
	}
	return dispatch.Anonymous{}
}

func CurrentWorkspace(r *http.Request) *services.Workspace {
	if value, ok := r.Context().Value(ctxWorkspace).(*services.Workspace); ok {
		return value
	}
	return nil
}

func RequireRole(state dispatch.State) func(http.Handler) http.Handler {
	return RequireAnyRole(state)
}

// RequireAnyRole rejects principals whose state is not listed, pointing them
// at the default landing path.
func RequireAnyRole(states ...dispatch.State) func(http.Handler) http.Handler {
	allowed := map[dispatch.State]bool{}
	for _, state := range states {
		allowed[state] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if allowed[dispatch.StateOf(CurrentPrincipal(r))] {
				next.ServeHTTP(w, r)
				return
			}
			WriteJSON(w, http.StatusForbidden, ErrorResponse{Message: "Not allowed", Redirect: dispatch.PathDashboard})
		})
	}
}
