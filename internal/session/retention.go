package session

import (
	"context"
	"log/slog"
	"time"
)

// DefaultSweepInterval is how often the supervisor runs its sweeps.
const DefaultSweepInterval = time.Hour

// ExpiredCallback is invoked for each session a sweep removes, with the
// sweep reason ("idle" or "max_age").
type ExpiredCallback func(sessionID, reason string)

// Supervisor is the single background task that enforces the store's
// retention policy: idle expiry, hard age cap, then event trimming.
type Supervisor struct {
	store    *Store
	interval time.Duration
	done     chan struct{}

	onExpired ExpiredCallback
	onTrimmed func(count int)
}

// NewSupervisor wires a supervisor to a store. Interval <= 0 uses the
// default hourly sweep.
func NewSupervisor(store *Store, interval time.Duration) *Supervisor {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Supervisor{
		store:    store,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// SetExpiredCallback registers a callback for expired sessions. Must be
// called before Run.
func (sv *Supervisor) SetExpiredCallback(cb ExpiredCallback) {
	sv.onExpired = cb
}

// SetTrimmedCallback registers a callback for event trims. Must be
// called before Run.
func (sv *Supervisor) SetTrimmedCallback(cb func(count int)) {
	sv.onTrimmed = cb
}

// Run sweeps until the context is cancelled. The inter-sweep sleep is
// the only blocking point and is interruptible. When the store's
// session_ttl_hours is zero, retention is disabled outright and Run
// returns without ever sweeping.
func (sv *Supervisor) Run(ctx context.Context) {
	defer close(sv.done)

	if sv.store.Policy().SessionTTLHours <= 0 {
		slog.Info("session expiry disabled, retention supervisor not running")
		return
	}

	ticker := time.NewTicker(sv.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("retention supervisor stopping")
			return
		case <-ticker.C:
			sv.Sweep()
		}
	}
}

// Wait blocks until Run has observed cancellation, or the timeout
// elapses. Teardown must not hang on a stuck sweep.
func (sv *Supervisor) Wait(timeout time.Duration) bool {
	select {
	case <-sv.done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Sweep runs the three retention stages in order. Each stage logs one
// summary line only when it removed something.
func (sv *Supervisor) Sweep() {
	idle := sv.store.ExpireIdle()
	if len(idle) > 0 {
		slog.Info("expired idle sessions",
			"count", len(idle),
			"ttl_hours", sv.store.Policy().SessionTTLHours,
		)
		sv.notify(idle, "idle")
	}

	aged := sv.store.ExpireAged()
	if len(aged) > 0 {
		slog.Info("expired aged sessions",
			"count", len(aged),
			"max_age_hours", sv.store.Policy().MaxSessionAgeHours,
		)
		sv.notify(aged, "max_age")
	}

	if trimmed := sv.store.TrimEvents(); trimmed > 0 {
		slog.Info("trimmed old events",
			"count", trimmed,
			"retention_days", sv.store.Policy().EventRetentionDays,
		)
		if sv.onTrimmed != nil {
			sv.onTrimmed(trimmed)
		}
	}
}

func (sv *Supervisor) notify(ids []string, reason string) {
	if sv.onExpired == nil {
		return
	}
	for _, id := range ids {
		sv.onExpired(id, reason)
	}
}
