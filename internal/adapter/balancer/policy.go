// Package balancer implements the Selection Policy: a pure function over a
// registry snapshot that picks the next backend to reserve, or reports
// none available.
//
// Grounded on the teacher's internal/adapter/balancer/priority.go
// tier-then-pick shape, but the tiering rule itself is spec.md §4.2's
// Reliable > Unreliable(fresh) > Unreliable(repeat) priority rather than
// the teacher's continuous priority number + weighted random tie-break.
package balancer

import "github.com/ollamux/ollamux/internal/core/domain"

// Select applies the three-tier priority policy described in spec.md §4.2
// to backends, in configured order. It never mutates FailureRecord; the
// SecondChanceGiven commit for Tier B happens in the registry's
// SelectAndReserve, which is the only caller permitted to mutate state.
//
// Backends must be passed in configured order: ties within a tier are
// broken by that order (spec.md §4.2, R2).
func Select(backends []*domain.Backend) domain.SelectionOutcome {
	// Tier A: Reliable, not busy.
	for _, b := range backends {
		if !b.Busy && b.FailureRecord == domain.Reliable {
			return domain.SelectionOutcome{Backend: b, Tier: domain.ReliableChoice}
		}
	}

	// Tier B: Unreliable, not busy — a fresh chance this cycle.
	for _, b := range backends {
		if !b.Busy && b.FailureRecord == domain.Unreliable {
			return domain.SelectionOutcome{Backend: b, Tier: domain.UnreliableFreshChance}
		}
	}

	// Tier C: only entered once Tier B is exhausted — SecondChanceGiven,
	// not busy, repeating its chance this cycle.
	for _, b := range backends {
		if !b.Busy && b.FailureRecord == domain.SecondChanceGiven {
			return domain.SelectionOutcome{Backend: b, Tier: domain.UnreliableRepeatChance}
		}
	}

	return domain.SelectionOutcome{None: true}
}
