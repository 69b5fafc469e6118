package logger

import (
	"fmt"
	"log/slog"

	"github.com/pterm/pterm"

	"github.com/ollamux/ollamux/internal/core/domain"
	"github.com/ollamux/ollamux/theme"
)

// StyledLogger wraps slog.Logger with theme-aware helpers for the events
// spec.md §6 requires to be distinguishable: selection decisions, backend
// state transitions, stream terminal outcomes, release, shutdown.
//
// Grounded on the teacher's internal/logger/styled.go; the health-state
// helpers here are rewritten for the three-value Reliable/Unreliable/
// SecondChanceGiven machine instead of the teacher's five-value endpoint
// lifecycle.
type StyledLogger struct {
	logger *slog.Logger
	theme  *theme.Theme
}

func NewStyledLogger(logger *slog.Logger, th *theme.Theme) *StyledLogger {
	return &StyledLogger{logger: logger, theme: th}
}

func (sl *StyledLogger) Debug(msg string, args ...any) { sl.logger.Debug(msg, args...) }
func (sl *StyledLogger) Info(msg string, args ...any)  { sl.logger.Info(msg, args...) }
func (sl *StyledLogger) Warn(msg string, args ...any)  { sl.logger.Warn(msg, args...) }
func (sl *StyledLogger) Error(msg string, args ...any) { sl.logger.Error(msg, args...) }

func (sl *StyledLogger) With(args ...any) *StyledLogger {
	return &StyledLogger{logger: sl.logger.With(args...), theme: sl.theme}
}

// GetUnderlying returns the wrapped slog.Logger for cases needing direct access.
func (sl *StyledLogger) GetUnderlying() *slog.Logger { return sl.logger }

func (sl *StyledLogger) endpointStyled(endpoint string) string {
	return sl.theme.Endpoint.Sprint(endpoint)
}

// Selection logs a selection decision with its tier tag, backend URL and
// client address (spec.md §4.4, §6).
func (sl *StyledLogger) Selection(tier domain.SelectionTier, endpoint, clientAddr string, args ...any) {
	allArgs := append([]any{"tier", string(tier), "client", clientAddr}, args...)
	msg := fmt.Sprintf("selected %s", sl.endpointStyled(endpoint))
	sl.logger.Info(msg, allArgs...)
}

// NoBackendAvailable logs the no-backend-available event (spec.md §4.4, §6).
func (sl *StyledLogger) NoBackendAvailable(clientAddr string) {
	sl.logger.Warn(sl.theme.Failure.Sprint("no available servers"), "client", clientAddr)
}

// StreamTerminal logs the terminal outcome of a proxied stream
// (spec.md §6 "stream terminal outcome per request").
func (sl *StyledLogger) StreamTerminal(outcome domain.StreamOutcome, endpoint string, err error, args ...any) {
	allArgs := append([]any{"endpoint", endpoint}, args...)
	if err != nil {
		allArgs = append(allArgs, "error", err)
	}
	msg := fmt.Sprintf("stream %s", outcome.String())
	switch outcome {
	case domain.Success:
		sl.logger.Info(sl.theme.Success.Sprint(msg), allArgs...)
	case domain.ClientCancelled:
		sl.logger.Info(msg, allArgs...)
	default:
		sl.logger.Warn(sl.theme.Failure.Sprint(msg), allArgs...)
	}
}

// Transition logs a backend health-state change
// (spec.md §6 "backend state transitions").
func (sl *StyledLogger) Transition(endpoint string, from, to domain.FailureRecord) {
	if from == to {
		return
	}
	msg := fmt.Sprintf("%s %s -> %s", sl.endpointStyled(endpoint), sl.healthStyled(from), sl.healthStyled(to))
	sl.logger.Info(msg)
}

// CycleReset logs the second-chance peer cycle reset
// (spec.md §4.1 (*), §6 "peer cycle reset").
func (sl *StyledLogger) CycleReset() {
	sl.logger.Info("unreliable peer cycle reset: second-chance backends returned to unreliable")
}

// Release logs that a backend is now available again (spec.md §6 "release").
func (sl *StyledLogger) Release(endpoint string) {
	sl.logger.Debug(fmt.Sprintf("%s now available", sl.endpointStyled(endpoint)))
}

func (sl *StyledLogger) healthStyled(state domain.FailureRecord) string {
	var style pterm.Style
	switch state {
	case domain.Reliable:
		style = *sl.theme.Reliable
	case domain.Unreliable:
		style = *sl.theme.Unreliable
	case domain.SecondChanceGiven:
		style = *sl.theme.SecondChance
	}
	return style.Sprint(state.String())
}
