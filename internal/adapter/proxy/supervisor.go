// Package proxy implements the stream supervisor: the component that owns
// one outbound connection to a backend for the lifetime of one proxied
// request and reduces it to a single terminal domain.Outcome.
//
// Grounded on the teacher's internal/adapter/proxy/sherpa/service.go (the
// shared *http.Transport with TCP tuning, the sync.Pool-backed read
// buffer) but the request/response lifecycle is rewritten: the teacher
// retries across endpoints and records rich ports.RequestStats; this
// supervisor talks to exactly one backend of capacity 1 and never retries
// once bytes have reached the client, per the no-retry-after-bytes-sent
// rule.
package proxy

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ollamux/ollamux/internal/config"
	"github.com/ollamux/ollamux/internal/core/domain"
	"github.com/ollamux/ollamux/internal/logger"
	"github.com/ollamux/ollamux/pkg/eventbus"
	"github.com/ollamux/ollamux/pkg/pool"
)

const (
	DefaultStreamBufferSize = 32 * 1024

	DefaultMaxIdleConns        = 100
	DefaultMaxIdleConnsPerHost = 10
	DefaultIdleConnTimeout     = 90 * time.Second
	DefaultTLSHandshakeTimeout = 10 * time.Second
	DefaultDialKeepAlive       = 30 * time.Second
)

var hopByHopHeaders = []string{
	"Connection", "Proxy-Connection", "Keep-Alive", "Transfer-Encoding",
	"TE", "Trailer", "Upgrade", "Proxy-Authenticate", "Proxy-Authorization",
}

// Supervisor proxies one request to one backend at a time. It is shared
// across requests; its *http.Transport is the only long-lived resource.
type Supervisor struct {
	transport      *http.Transport
	bufferPool     *pool.Pool[*[]byte]
	silenceTimeout time.Duration
	events         *eventbus.EventBus[domain.Outcome]
}

// NewSupervisor builds a Supervisor. silenceTimeout of 0 disables the
// mid-stream silence watchdog (spec.md §3 "silence_timeout"). events may be
// nil if nothing needs stream-outcome notifications.
func NewSupervisor(silenceTimeout time.Duration, events *eventbus.EventBus[domain.Outcome]) *Supervisor {
	transport := &http.Transport{
		MaxIdleConns:        DefaultMaxIdleConns,
		MaxIdleConnsPerHost: DefaultMaxIdleConnsPerHost,
		IdleConnTimeout:     DefaultIdleConnTimeout,
		TLSHandshakeTimeout: DefaultTLSHandshakeTimeout,
		DialContext: (&net.Dialer{
			KeepAlive: DefaultDialKeepAlive,
		}).DialContext,
	}
	bufferPool := pool.NewLitePool(func() *[]byte {
		buf := make([]byte, DefaultStreamBufferSize)
		return &buf
	})
	return &Supervisor{
		transport:      transport,
		bufferPool:     bufferPool,
		silenceTimeout: silenceTimeout,
		events:         events,
	}
}

// Close releases idle backend connections held by the shared transport.
func (sv *Supervisor) Close() {
	sv.transport.CloseIdleConnections()
}

// Execute proxies r to backend and pumps the response back through w. It
// always returns a terminal domain.Outcome and never leaves the caller
// responsible for closing anything.
func (sv *Supervisor) Execute(ctx context.Context, w http.ResponseWriter, r *http.Request, backend *domain.Backend, rlog *logger.StyledLogger) domain.Outcome {
	requestID := uuid.NewString()
	rlog = rlog.With("request_id", requestID, "backend", backend.URL.String())

	outboundReq, err := sv.buildOutboundRequest(ctx, r, backend.URL)
	if err != nil {
		return sv.publish(domain.Outcome{Kind: domain.ConnectFailure, Err: err})
	}

	resp, outcome, ok := sv.connect(ctx, outboundReq)
	if !ok {
		rlog.StreamTerminal(outcome.Kind, backend.URL.String(), outcome.Err)
		return sv.publish(outcome)
	}
	defer resp.Body.Close()

	copyResponseHeaders(w, resp)
	w.WriteHeader(resp.StatusCode)

	buf := sv.bufferPool.Get()
	defer sv.bufferPool.Put(buf)

	outcome = sv.pump(ctx, w, resp.Body, *buf)
	rlog.StreamTerminal(outcome.Kind, backend.URL.String(), outcome.Err)
	return sv.publish(outcome)
}

// connect races the outbound round-trip against config.InitialConnectTimeout
// and the request's own context, so that a backend which never answers does
// not hold a reservation indefinitely (spec.md §3 "initial_connect_timeout").
// A context cancellation observed before headers arrive is reported as
// ConnectFailure, not ClientCancelled: the distinction only exists once
// bytes have started flowing to the client.
func (sv *Supervisor) connect(ctx context.Context, outboundReq *http.Request) (*http.Response, domain.Outcome, bool) {
	type result struct {
		resp *http.Response
		err  error
	}
	resultCh := make(chan result, 1)
	go func() {
		resp, err := sv.transport.RoundTrip(outboundReq)
		resultCh <- result{resp: resp, err: err}
	}()

	timer := time.NewTimer(config.InitialConnectTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, domain.Outcome{Kind: domain.ConnectFailure, Err: ctx.Err()}, false
	case <-timer.C:
		err := fmt.Errorf("backend did not respond within %s", config.InitialConnectTimeout)
		return nil, domain.Outcome{Kind: domain.ConnectFailure, Err: err}, false
	case res := <-resultCh:
		if res.err != nil {
			return nil, domain.Outcome{Kind: domain.ConnectFailure, Err: res.err}, false
		}
		return res.resp, domain.Outcome{}, true
	}
}

func (sv *Supervisor) publish(outcome domain.Outcome) domain.Outcome {
	if sv.events != nil {
		sv.events.Publish(outcome)
	}
	return outcome
}

func (sv *Supervisor) buildOutboundRequest(ctx context.Context, r *http.Request, backend *url.URL) (*http.Request, error) {
	target := *backend
	target.Path = singleJoiningSlash(backend.Path, r.URL.Path)
	target.RawQuery = r.URL.RawQuery

	outboundReq, err := http.NewRequestWithContext(ctx, r.Method, target.String(), r.Body)
	if err != nil {
		return nil, fmt.Errorf("building outbound request: %w", err)
	}
	outboundReq.Header = cloneHeaders(r.Header)
	stripHopByHop(outboundReq.Header)
	outboundReq.Host = backend.Host
	outboundReq.ContentLength = r.ContentLength
	return outboundReq, nil
}

func singleJoiningSlash(base, suffix string) string {
	baseSlash := strings.HasSuffix(base, "/")
	suffixSlash := strings.HasPrefix(suffix, "/")
	switch {
	case baseSlash && suffixSlash:
		return base + suffix[1:]
	case !baseSlash && !suffixSlash:
		return base + "/" + suffix
	default:
		return base + suffix
	}
}

func cloneHeaders(src http.Header) http.Header {
	dst := make(http.Header, len(src))
	for k, vv := range src {
		dst[k] = append([]string(nil), vv...)
	}
	return dst
}

func stripHopByHop(h http.Header) {
	for _, name := range hopByHopHeaders {
		h.Del(name)
	}
}

func copyResponseHeaders(w http.ResponseWriter, resp *http.Response) {
	for key, values := range resp.Header {
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
}
