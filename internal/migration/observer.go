package migration

import (
	"github.com/rs/zerolog"

	"github.com/kinecosystem/kinmigrate/internal/chain"
	"github.com/kinecosystem/kinmigrate/internal/metrics"
)

// Step is an observable sub-step of a migration attempt.
type Step string

// Migration sub-steps.
const (
	StepVersionCheck Step = "version_check"
	StepBurn         Step = "burn"
	StepRequest      Step = "request"
	StepKeystore     Step = "keystore"
	StepAttempt      Step = "attempt"
)

// EventKind is the phase of a step.
type EventKind string

// Step phases.
const (
	EventStarted   EventKind = "started"
	EventSucceeded EventKind = "succeeded"
	EventFailed    EventKind = "failed"
)

// Event is one telemetry callback.
type Event struct {
	AttemptID string
	Step      Step
	Kind      EventKind
	Address   string
	Version   chain.Version
	// Detail names the step outcome: the burn reason, the service result
	// or the ready reason.
	Detail string
	Err    error
}

// Observer receives step telemetry. It never influences the attempt.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// Observe implements Observer.
func (f ObserverFunc) Observe(e Event) { f(e) }

// Observers fans events out to several observers.
type Observers []Observer

// Observe implements Observer.
func (o Observers) Observe(e Event) {
	for _, obs := range o {
		if obs != nil {
			obs.Observe(e)
		}
	}
}

type nopObserver struct{}

func (nopObserver) Observe(Event) {}

// MetricsObserver records step events and attempt outcomes.
type MetricsObserver struct {
	Metrics *metrics.Metrics
}

// Observe implements Observer.
func (m MetricsObserver) Observe(e Event) {
	if m.Metrics == nil {
		return
	}
	if e.Step == StepAttempt {
		if e.Kind != EventStarted {
			m.Metrics.RecordMigrationOutcome(e.Detail, e.Err)
		}
		return
	}
	m.Metrics.RecordMigrationStep(string(e.Step), string(e.Kind))
}

// LogObserver writes step events to a logger.
type LogObserver struct {
	Logger zerolog.Logger
}

// Observe implements Observer.
func (l LogObserver) Observe(e Event) {
	ev := l.Logger.Debug()
	if e.Kind == EventFailed {
		ev = l.Logger.Warn().Err(e.Err)
	}
	ev = ev.Str("attempt", e.AttemptID).
		Str("step", string(e.Step)).
		Str("event", string(e.Kind))
	if e.Address != "" {
		ev = ev.Str("address", e.Address)
	}
	if e.Version.IsValid() {
		ev = ev.Str("version", e.Version.String())
	}
	if e.Detail != "" {
		ev = ev.Str("detail", e.Detail)
	}
	ev.Msg("migration step")
}
