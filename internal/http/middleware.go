package httpapi

import (
	"bufio"
	"errors"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"labreserve-client/internal/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type responseRecorder struct {
	http.ResponseWriter
	code    int
	written int
}

func (rec *responseRecorder) WriteHeader(code int) {
	rec.code = code
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *responseRecorder) Write(p []byte) (int, error) {
	if rec.code == 0 {
		rec.code = http.StatusOK
	}
	n, err := rec.ResponseWriter.Write(p)
	rec.written += n
	return n, err
}

// Hijack keeps the screen and status sockets working behind the logger.
func (rec *responseRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := rec.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	if rec.code == 0 {
		rec.code = http.StatusSwitchingProtocols
	}
	return hijacker.Hijack()
}

// RequestLogger tags each local request with an id, logs it with the session
// state it was served in and records its latency per route pattern.
func (s *Server) RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)

		start := time.Now()
		rec := &responseRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		if rec.code == 0 {
			rec.code = http.StatusOK
		}
		elapsed := time.Since(start)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		metrics.ViewRequestDuration.WithLabelValues(r.Method, route, strconv.Itoa(rec.code)).Observe(elapsed.Seconds())
		log.Printf("view: %s %s %d %dB %s state=%s id=%s", r.Method, r.URL.Path, rec.code, rec.written, elapsed, s.Dispatcher.State(), id)
	})
}
