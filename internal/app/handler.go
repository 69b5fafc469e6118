package app

import (
	"fmt"
	"net/http"

	"github.com/ollamux/ollamux/internal/core/domain"
)

// responseWriter wraps http.ResponseWriter to record the status written
// (so proxyHandler can tell whether headers have gone out) and the bytes
// written, and to forward Flush() so streamed chunks reach the client as
// they arrive rather than being buffered.
//
// Grounded on the teacher's internal/app/middleware/logging.go
// responseWriter.
type responseWriter struct {
	http.ResponseWriter
	status int
	size   int64
}

func (rw *responseWriter) WriteHeader(status int) {
	rw.status = status
	rw.ResponseWriter.WriteHeader(status)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.size += int64(n)
	return n, err
}

func (rw *responseWriter) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// proxyHandler is the Request Handler: select a backend, hand the request
// to the Stream Supervisor, release the backend with the terminal outcome.
func (a *Application) proxyHandler(w http.ResponseWriter, r *http.Request) {
	a.inFlight.Add(1)
	defer a.inFlight.Done()

	clientAddr := r.RemoteAddr
	a.log.Debug("request received", "method", r.Method, "path", r.URL.Path, "client", clientAddr)

	selection := a.registry.SelectAndReserve()
	if selection.None {
		a.log.NoBackendAvailable(clientAddr)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, "no available servers")
		return
	}

	backend := selection.Backend
	a.log.Selection(selection.Tier, backend.URL.String(), clientAddr)

	wrapped := &responseWriter{ResponseWriter: w}
	outcome := a.supervisor.Execute(r.Context(), wrapped, r, backend, a.log)

	if outcome.Kind != domain.Success && wrapped.status == 0 {
		// wrapped.status is only ever 0 if the supervisor never reached
		// copyResponseHeaders - i.e. the backend never answered at all, so
		// nothing has gone out on the wire yet and we can still choose the
		// status code. Once headers are written (ClientCancelled always
		// happens here or later, per the pre-header-cancel-is-ConnectFailure
		// rule) the client has already seen the backend's own status line
		// and it can't be changed.
		status := http.StatusBadGateway
		if outcome.Kind == domain.ClientCancelled {
			status = 499
		}
		w.WriteHeader(status)
	}

	prior, next, reset, err := a.registry.Release(backend.URL, outcome.Kind)
	if err != nil {
		a.log.Error("release failed", "backend", backend.URL.String(), "error", err)
		return
	}
	a.log.Transition(backend.URL.String(), prior, next)
	if reset {
		a.log.CycleReset()
	}
	a.log.Release(backend.URL.String())
}
