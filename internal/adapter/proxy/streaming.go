package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ollamux/ollamux/internal/core/domain"
)

type readResult struct {
	n   int
	err error
}

// pump copies body to w until EOF (Success), a backend read error or a
// silence-timeout trip with no intervening bytes (MidStreamFailure), or the
// client disconnects (ClientCancelled, detected via ctx or a failed Write).
//
// Grounded on the teacher's sherpa/service_streaming.go
// streamResponseWithTimeout/performTimedRead pair: a read-per-goroutine
// raced against a timer so a stalled backend can't block the pump forever.
// The teacher's read timeout is a single always-on duration; here it is
// sv.silenceTimeout, and 0 disables the watchdog entirely per spec.md §3.
//
// body is closed (not just read) on the ctx/timeout exit paths, and the
// in-flight read goroutine is always drained before returning: buffer comes
// from the shared sync.Pool, and the caller reclaims it for the very next
// request the instant this function returns, so a read that's still writing
// into it after we've walked away would race the next reservation's use of
// the same backing array (spec.md P8).
func (sv *Supervisor) pump(ctx context.Context, w http.ResponseWriter, body io.ReadCloser, buffer []byte) domain.Outcome {
	flusher, canFlush := w.(http.Flusher)

	var timer *time.Timer
	if sv.silenceTimeout > 0 {
		timer = time.NewTimer(sv.silenceTimeout)
		defer timer.Stop()
	}

	for {
		readCh := make(chan readResult, 1)
		go func() {
			n, err := body.Read(buffer)
			readCh <- readResult{n: n, err: err}
		}()

		var timerCh <-chan time.Time
		if timer != nil {
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(sv.silenceTimeout)
			timerCh = timer.C
		}

		select {
		case <-ctx.Done():
			body.Close()
			<-readCh
			return domain.Outcome{Kind: domain.ClientCancelled, Err: ctx.Err()}
		case <-timerCh:
			body.Close()
			<-readCh
			err := fmt.Errorf("no data received from backend for %s", sv.silenceTimeout)
			return domain.Outcome{Kind: domain.MidStreamFailure, Err: err}
		case res := <-readCh:
			if res.n > 0 {
				if _, werr := w.Write(buffer[:res.n]); werr != nil {
					return domain.Outcome{Kind: domain.ClientCancelled, Err: werr}
				}
				if canFlush {
					flusher.Flush()
				}
			}
			if res.err != nil {
				if errors.Is(res.err, io.EOF) {
					return domain.Outcome{Kind: domain.Success}
				}
				if ctx.Err() != nil {
					// The read error is a side effect of the client's own
					// cancellation unwinding the connection, not a backend
					// failure (spec.md P6).
					return domain.Outcome{Kind: domain.ClientCancelled, Err: ctx.Err()}
				}
				return domain.Outcome{Kind: domain.MidStreamFailure, Err: res.err}
			}
		}
	}
}
