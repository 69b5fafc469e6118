package app

import (
	"context"
	"sync/atomic"

	"github.com/ollamux/ollamux/internal/core/domain"
	"github.com/ollamux/ollamux/pkg/eventbus"
)

// statsSubscriber is a pkg/eventbus consumer that keeps running totals of
// stream outcomes for the /internal/status endpoint, decoupled from the
// Stream Supervisor that publishes them.
type statsSubscriber struct {
	cancel context.CancelFunc

	success          atomic.Int64
	connectFailure   atomic.Int64
	midStreamFailure atomic.Int64
	clientCancelled  atomic.Int64
}

func newStatsSubscriber(events *eventbus.EventBus[domain.Outcome]) *statsSubscriber {
	ctx, cancel := context.WithCancel(context.Background())
	s := &statsSubscriber{cancel: cancel}

	ch, _ := events.Subscribe(ctx)
	go func() {
		for {
			var outcome domain.Outcome
			var ok bool
			select {
			case <-ctx.Done():
				return
			case outcome, ok = <-ch:
				if !ok {
					return
				}
			}
			switch outcome.Kind {
			case domain.Success:
				s.success.Add(1)
			case domain.ConnectFailure:
				s.connectFailure.Add(1)
			case domain.MidStreamFailure:
				s.midStreamFailure.Add(1)
			case domain.ClientCancelled:
				s.clientCancelled.Add(1)
			}
		}
	}()
	return s
}

// close unsubscribes from the event bus so its consumer goroutine exits.
func (s *statsSubscriber) close() { s.cancel() }

type statsSnapshot struct {
	Success          int64 `json:"success"`
	ConnectFailure   int64 `json:"connect_failure"`
	MidStreamFailure int64 `json:"mid_stream_failure"`
	ClientCancelled  int64 `json:"client_cancelled"`
}

func (s *statsSubscriber) snapshot() statsSnapshot {
	return statsSnapshot{
		Success:          s.success.Load(),
		ConnectFailure:   s.connectFailure.Load(),
		MidStreamFailure: s.midStreamFailure.Load(),
		ClientCancelled:  s.clientCancelled.Load(),
	}
}
