package gate

import (
	"context"
	"log/slog"
	"time"
)

// Scheduler drives the gate from external triggers.
//
// Any component may call Poke() after writing new data or validation
// results; pokes are coalesced (a buffered channel of size 1) so a
// burst of triggers costs one gate run. An optional interval adds a
// periodic tick as a liveness backstop.
//
// Thread-safety model:
//   - Poke(): safe from any goroutine, never blocks
//   - Run(): must be called from exactly one goroutine
type Scheduler struct {
	gate     *Gate
	interval time.Duration
	poke     chan struct{}
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithInterval adds a periodic trigger. Zero disables the ticker and
// leaves the scheduler purely event-driven.
func WithInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		s.interval = d
	}
}

// NewScheduler creates a Scheduler for the given gate.
func NewScheduler(g *Gate, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		gate: g,
		poke: make(chan struct{}, 1),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Poke requests a gate run. Non-blocking: concurrent pokes coalesce
// into a single pending trigger.
func (s *Scheduler) Poke() {
	select {
	case s.poke <- struct{}{}:
	default:
	}
}

// Run blocks until the context is cancelled, running the gate to a
// fixed point on every trigger.
//
// A run that promoted rows pokes the scheduler again: new integrations
// may have satisfied dependents whose types were scanned earlier, and
// downstream consumers keyed on promotions get another chance promptly.
//
// ERROR HANDLING: a failed run is logged and the loop continues - the
// store is unchanged on failure (transactional promotion), so the next
// trigger is the retry.
func (s *Scheduler) Run(ctx context.Context) error {
	slog.Info("gate scheduler starting", "interval", s.interval)

	var tick <-chan time.Time
	if s.interval > 0 {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	// One initial run catches anything already eligible at startup.
	s.Poke()

	for {
		select {
		case <-ctx.Done():
			slog.Info("gate scheduler stopping: context cancelled")
			return ctx.Err()

		case <-s.poke:
		case <-tick:
		}

		report, err := s.gate.IntegrateAll(ctx)
		if err != nil {
			slog.Error("gate run failed",
				"error", err,
				"pass_token", report.PassToken,
				"passes", report.Passes,
			)
			continue
		}

		if report.Changed() {
			s.Poke()
		}
	}
}
