package app

import (
	"encoding/json"
	"net/http"
)

// healthHandler is a liveness probe: if the process can answer, it's up.
// It deliberately does not touch the registry — spec.md's Non-goals rule
// out active health probing of backends, and this endpoint reports on the
// proxy process itself, not on backend reachability.
func (a *Application) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// statusHandler reports the current Backend State Record for every
// configured backend, plus running stream-outcome totals.
func (a *Application) statusHandler(w http.ResponseWriter, r *http.Request) {
	response := struct {
		Backends []backendStatus `json:"backends"`
		Stats    statsSnapshot   `json:"stats"`
	}{
		Stats: a.stats.snapshot(),
	}

	for _, snap := range a.registry.Snapshot() {
		response.Backends = append(response.Backends, backendStatus{
			URL:           snap.URL,
			Busy:          snap.Busy,
			FailureRecord: snap.FailureRecord.String(),
			FailureStreak: snap.FailureStreak,
			LastOutcome:   snap.LastOutcome,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

type backendStatus struct {
	URL           string `json:"url"`
	Busy          bool   `json:"busy"`
	FailureRecord string `json:"failure_record"`
	FailureStreak int    `json:"failure_streak"`
	LastOutcome   string `json:"last_outcome,omitempty"`
}
