// Package registry implements the Backend Registry: the process-wide map
// from backend URL to Backend State Record, and the only two mutation
// primitives (select-and-reserve, release) that may ever touch it.
//
// Grounded on the teacher's internal/adapter/registry/memory_registry.go
// single-mutex, map-of-pointers pattern, trimmed to the three fields this
// system actually needs.
package registry

import (
	"fmt"
	"net/url"
	"sync"

	"github.com/ollamux/ollamux/internal/adapter/balancer"
	"github.com/ollamux/ollamux/internal/core/domain"
)

// Registry is the single-mutex-guarded backend table. All reads and writes
// of Busy/FailureRecord happen inside Lock/Unlock, satisfying invariants
// I1-I4 in spec.md §3.
type Registry struct {
	mu       sync.Mutex
	backends []*domain.Backend // insertion order == configured order, the tie-break
}

// New creates a registry seeded from the configured server URLs, each
// starting Busy=false, FailureRecord=Reliable, per spec.md §3 "Lifecycle".
func New(servers []*url.URL) *Registry {
	backends := make([]*domain.Backend, 0, len(servers))
	for _, u := range servers {
		backends = append(backends, &domain.Backend{
			URL:           u,
			Busy:          false,
			FailureRecord: domain.Reliable,
		})
	}
	return &Registry{backends: backends}
}

// SelectAndReserve runs the selection policy over the current snapshot and,
// if a backend is chosen, reserves it (Busy=true) before returning. This
// whole operation is atomic with respect to every other Select/Release
// call.
func (r *Registry) SelectAndReserve() domain.SelectionOutcome {
	r.mu.Lock()
	defer r.mu.Unlock()

	outcome := balancer.Select(r.backends)
	if outcome.None {
		return outcome
	}

	outcome.Backend.Busy = true
	if outcome.Tier == domain.UnreliableFreshChance {
		// The policy is committing that this backend has now used its
		// chance in the current cycle (spec.md §4.2 Tier B).
		outcome.Backend.FailureRecord = domain.SecondChanceGiven
	}
	return outcome
}

// Release applies the outcome's transition to the named backend and frees
// it, returning the prior and new FailureRecord so the caller can log a
// transition, plus whether this release triggered a peer cycle reset. It
// is a programmer error to release a URL the registry doesn't know about
// or that isn't currently busy; both are reported rather than panicking,
// since a misbehaving caller must not be able to corrupt registry state.
func (r *Registry) Release(target *url.URL, outcome domain.StreamOutcome) (prior, next domain.FailureRecord, reset bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	backend := r.find(target)
	if backend == nil {
		return prior, next, false, fmt.Errorf("registry: release of unknown backend %s", target)
	}
	if !backend.Busy {
		return prior, next, false, fmt.Errorf("registry: release of non-busy backend %s", target)
	}

	prior = backend.FailureRecord
	next = transition(prior, outcome)
	backend.FailureRecord = next
	backend.Busy = false
	backend.LastOutcome = outcome.String()

	isFailure := outcome == domain.ConnectFailure || outcome == domain.MidStreamFailure
	if prior != domain.Reliable && next == domain.Reliable {
		backend.FailureStreak = 0
	} else if isFailure {
		backend.FailureStreak++
	}

	// (*) demotion-triggered peer cycle reset: after writing a failure
	// against an Unreliable/SecondChanceGiven backend, if every non-reliable
	// backend is now stuck in SecondChanceGiven with no plain Unreliable
	// peer left to try first, demote them all back to Unreliable so the
	// next rotation can give each one a fresh chance again. Success never
	// triggers this (spec.md §4.1).
	if isFailure && (prior == domain.Unreliable || prior == domain.SecondChanceGiven) {
		reset = r.resetCycleIfExhausted()
		if reset && next == domain.SecondChanceGiven {
			// The backend just released is itself demoted by the reset
			// above (it's the one whose failure exhausted the cycle), so
			// the value reported back to the caller must reflect that.
			next = domain.Unreliable
		}
	}

	return prior, next, reset, nil
}

// resetCycleIfExhausted demotes every SecondChanceGiven backend back to
// Unreliable, but only when no backend is still plain Unreliable — i.e. the
// cycle has been fully exhausted and every non-reliable backend has already
// used its fresh chance this round. Must be called with the lock held.
func (r *Registry) resetCycleIfExhausted() bool {
	hasUnreliable := false
	hasSecondChance := false
	for _, b := range r.backends {
		switch b.FailureRecord {
		case domain.Unreliable:
			hasUnreliable = true
		case domain.SecondChanceGiven:
			hasSecondChance = true
		}
	}
	if hasUnreliable || !hasSecondChance {
		return false
	}
	for _, b := range r.backends {
		if b.FailureRecord == domain.SecondChanceGiven {
			b.FailureRecord = domain.Unreliable
		}
	}
	return true
}

func (r *Registry) find(target *url.URL) *domain.Backend {
	for _, b := range r.backends {
		if b.URL.String() == target.String() {
			return b
		}
	}
	return nil
}

// Snapshot returns a read-only view of every backend, for the /internal/status
// diagnostic endpoint. Takes the same lock as SelectAndReserve/Release, per
// spec.md §3 invariant I4.
func (r *Registry) Snapshot() []domain.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.Snapshot, 0, len(r.backends))
	for _, b := range r.backends {
		out = append(out, domain.Snapshot{
			URL:           b.URL.String(),
			Busy:          b.Busy,
			FailureRecord: b.FailureRecord,
			FailureStreak: b.FailureStreak,
			LastOutcome:   b.LastOutcome,
		})
	}
	return out
}

// transition is the pure table from spec.md §4.1. ClientCancelled never
// changes FailureRecord (P6); Success always promotes to Reliable (P5, R1).
// A SecondChanceGiven backend that fails again stays SecondChanceGiven
// rather than reverting to plain Unreliable (P4 cycle fairness): letting it
// fall back to Unreliable would make it the first pick of the next Tier B
// scan every time, starving its peers of their fresh chance. Only
// resetCycleIfExhausted may demote SecondChanceGiven back to Unreliable,
// and only once the whole cycle has been exhausted.
func transition(prior domain.FailureRecord, outcome domain.StreamOutcome) domain.FailureRecord {
	switch outcome {
	case domain.Success:
		return domain.Reliable
	case domain.ClientCancelled:
		return prior
	case domain.ConnectFailure, domain.MidStreamFailure:
		if prior == domain.SecondChanceGiven {
			return domain.SecondChanceGiven
		}
		return domain.Unreliable
	default:
		return prior
	}
}
