package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ollamux/ollamux/internal/config"
	"github.com/ollamux/ollamux/internal/core/domain"
	"github.com/ollamux/ollamux/internal/logger"
	"github.com/ollamux/ollamux/theme"
)

func newTestApp(t *testing.T, backendURLs []string, silenceTimeout time.Duration) *Application {
	t.Helper()

	cfg := &config.Config{Listen: "127.0.0.1:0", SilenceTimeout: silenceTimeout}
	for _, raw := range backendURLs {
		u, err := url.Parse(raw)
		require.NoError(t, err)
		cfg.Servers = append(cfg.Servers, u)
	}

	log, cleanup, err := logger.New(&logger.Config{Level: "error"})
	require.NoError(t, err)
	t.Cleanup(cleanup)
	styled := logger.NewStyledLogger(log, theme.Default())

	return New(cfg, styled)
}

func TestProxyHandler_HappyPath(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}))
	defer upstream.Close()

	a := newTestApp(t, []string{upstream.URL}, 0)
	defer a.supervisor.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/generate", nil)
	rec := httptest.NewRecorder()
	a.server.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	snap := a.registry.Snapshot()
	require.Len(t, snap, 1)
	assert.False(t, snap[0].Busy)
	assert.Equal(t, domain.Reliable, snap[0].FailureRecord)
}

func TestProxyHandler_NoBackendsAvailableReturns503(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	a := newTestApp(t, []string{upstream.URL}, 0)
	defer a.supervisor.Close()

	// Reserve the only backend directly so the next request finds none free.
	outcome := a.registry.SelectAndReserve()
	require.False(t, outcome.None)

	req := httptest.NewRequest(http.MethodPost, "/api/generate", nil)
	rec := httptest.NewRecorder()
	a.server.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no available servers", rec.Body.String())
}

func TestProxyHandler_RecoversAfterConnectFailure(t *testing.T) {
	var failing bool
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failing {
			hj, ok := w.(http.Hijacker)
			require.True(t, ok)
			conn, _, err := hj.Hijack()
			require.NoError(t, err)
			conn.Close()
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("recovered"))
	}))
	defer upstream.Close()

	a := newTestApp(t, []string{upstream.URL}, 0)
	defer a.supervisor.Close()

	failing = true
	req := httptest.NewRequest(http.MethodPost, "/api/generate", nil)
	rec := httptest.NewRecorder()
	a.server.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	snap := a.registry.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, domain.Unreliable, snap[0].FailureRecord)

	failing = false
	req2 := httptest.NewRequest(http.MethodPost, "/api/generate", nil)
	rec2 := httptest.NewRecorder()
	a.server.Handler.ServeHTTP(rec2, req2)
	assert.Equal(t, http.StatusOK, rec2.Code)
	assert.Equal(t, "recovered", rec2.Body.String())

	snap2 := a.registry.Snapshot()
	require.Len(t, snap2, 1)
	assert.Equal(t, domain.Reliable, snap2[0].FailureRecord)
}

// TestProxyHandler_ClientCancelledDoesNotCountAsFailure verifies spec.md's
// P6 invariant: once the backend has answered and bytes are already on the
// wire, a client disconnect leaves the backend's FailureRecord untouched
// (a response status already sent can't be retroactively changed to 499;
// that override only applies when the backend never answered at all, see
// TestProxyHandler_RecoversAfterConnectFailure for the reachable 502 case).
func TestProxyHandler_ClientCancelledDoesNotCountAsFailure(t *testing.T) {
	started := make(chan struct{})
	neverEnds := make(chan struct{})
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("chunk"))
		w.(http.Flusher).Flush()
		close(started)
		<-neverEnds
	}))
	defer upstream.Close()
	defer close(neverEnds)

	a := newTestApp(t, []string{upstream.URL}, 0)
	defer a.supervisor.Close()

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodPost, "/api/generate", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		a.server.Handler.ServeHTTP(rec, req)
		close(done)
	}()

	<-started
	cancel()
	<-done

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "chunk", rec.Body.String())

	snap := a.registry.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, domain.Reliable, snap[0].FailureRecord)
	assert.False(t, snap[0].Busy)
}

func TestHealthHandler_AlwaysOK(t *testing.T) {
	a := newTestApp(t, []string{"http://127.0.0.1:1"}, 0)
	defer a.supervisor.Close()

	req := httptest.NewRequest(http.MethodGet, "/internal/health", nil)
	rec := httptest.NewRecorder()
	a.server.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatusHandler_ReportsBackendsAndStats(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	a := newTestApp(t, []string{upstream.URL}, 0)
	defer a.supervisor.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/generate", nil)
	rec := httptest.NewRecorder()
	a.server.Handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	statusReq := httptest.NewRequest(http.MethodGet, "/internal/status", nil)
	statusRec := httptest.NewRecorder()
	a.server.Handler.ServeHTTP(statusRec, statusReq)

	assert.Equal(t, http.StatusOK, statusRec.Code)
	assert.Contains(t, statusRec.Body.String(), upstream.URL)
	assert.Contains(t, statusRec.Body.String(), `"stats"`)
}
