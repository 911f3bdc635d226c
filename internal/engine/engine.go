// Package engine is the synchronous facade the transport layer talks to.
// It owns the dispatch step: on every append it selects the
// module-appropriate evidence from the session's decrypted event log,
// invokes the matching scorer, and stores the result.
package engine

import (
	"errors"
	"fmt"
	"log/slog"

	"guardian/internal/risk"
	"guardian/internal/risk/callguard"
	"guardian/internal/risk/identitywatch"
	"guardian/internal/risk/inboxguard"
	"guardian/internal/risk/moneyguard"
	"guardian/internal/session"
)

// ErrNotFound mirrors the store sentinel for unknown sessions.
var ErrNotFound = session.ErrNotFound

// ErrNoEvidence is returned when the evidence selector finds no usable
// event. Only inboxguard sessions can fail this way.
var ErrNoEvidence = errors.New("no evidence events for module")

// RiskCallback observes every fresh risk result produced by a dispatch.
// Callbacks run synchronously on the appending goroutine and must not
// block.
type RiskCallback func(sessionID string, module session.Module, resp risk.Response)

// Engine wraps the store with dispatch and summarization.
type Engine struct {
	store     *session.Store
	callbacks []RiskCallback
}

// New creates an engine over a store.
func New(store *session.Store) *Engine {
	return &Engine{store: store}
}

// OnRisk registers a callback for new risk results. Not safe to call
// after the engine starts serving requests.
func (e *Engine) OnRisk(cb RiskCallback) {
	e.callbacks = append(e.callbacks, cb)
}

// StartSession allocates a new session for the given module.
func (e *Engine) StartSession(userID, deviceID string, module session.Module) string {
	return e.store.StartSession(userID, deviceID, module)
}

// AppendEvent appends the event and rescores the session from the full
// event log including this append.
func (e *Engine) AppendEvent(sessionID string, in session.EventIn) (risk.Response, error) {
	result, err := e.store.AppendEvent(sessionID, in)
	if err != nil {
		return risk.Response{}, err
	}

	resp, err := e.dispatch(result.Module, result.Events)
	if err != nil {
		return risk.Response{}, err
	}

	if err := e.store.UpdateLastRisk(sessionID, resp); err != nil {
		// Session disappeared between append and update (retention
		// race); the computed response is still valid for the caller.
		return resp, nil
	}

	for _, cb := range e.callbacks {
		cb(sessionID, result.Module, resp)
	}
	return resp, nil
}

// Module reports the session's module without refreshing access time.
func (e *Engine) Module(sessionID string) (session.Module, error) {
	return e.store.ModuleOf(sessionID)
}

// GetSession returns the decrypted session view, refreshing access time.
func (e *Engine) GetSession(sessionID string) (session.View, error) {
	return e.store.GetSession(sessionID)
}

// EndSession composes a read-only summary. It is not a state
// transition; the session remains until retention removes it.
func (e *Engine) EndSession(sessionID string) (session.Summary, error) {
	last, err := e.store.LastRisk(sessionID)
	if err != nil {
		return session.Summary{}, err
	}
	if last == nil {
		return session.Summary{}, ErrNotFound
	}

	takeaways := last.Reasons
	if len(takeaways) > 3 {
		takeaways = takeaways[:3]
	}
	return e.store.Summarize(sessionID, takeaways)
}

// RetentionPolicy exposes the store's immutable policy snapshot.
func (e *Engine) RetentionPolicy() session.RetentionPolicy {
	return e.store.Policy()
}

// Stats exposes live store counters.
func (e *Engine) Stats() session.Stats {
	return e.store.Stats()
}

// dispatch selects evidence and invokes the module's scorer. A scorer
// panic is converted into an internal error rather than unwinding into
// the transport layer.
func (e *Engine) dispatch(module session.Module, events []session.Event) (resp risk.Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("scorer panic", "module", module, "panic", r)
			err = fmt.Errorf("internal: %s scorer failed: %v", module, r)
		}
	}()

	switch module {
	case session.ModuleCallGuard:
		return callguard.Assess(callSignals(events)), nil

	case session.ModuleMoneyGuard:
		payload := latestPayload(events, "assess")
		if payload == nil {
			payload = map[string]any{}
		}
		return moneyguard.Assess(payload), nil

	case session.ModuleInboxGuard:
		event := latestEvent(events, "text", "url")
		if event == nil {
			return risk.Response{}, ErrNoEvidence
		}
		if event.Type == "text" {
			text, _ := event.Payload["text"].(string)
			channel, ok := event.Payload["channel"].(string)
			if !ok || channel == "" {
				channel = "other"
			}
			return inboxguard.AnalyzeText(text, channel), nil
		}
		u, _ := event.Payload["url"].(string)
		return inboxguard.AnalyzeURL(u), nil

	case session.ModuleIdentityWatch:
		payload := latestPayload(events, "signals")
		return identitywatch.Assess(boolSignals(payload)), nil
	}

	return risk.Response{}, fmt.Errorf("internal: no scorer for module %q", module)
}

// callSignals collects non-empty signal_key strings from every signal
// event, in insertion order.
func callSignals(events []session.Event) []string {
	var signals []string
	for _, event := range events {
		if event.Type != "signal" {
			continue
		}
		if key, ok := event.Payload["signal_key"].(string); ok && key != "" {
			signals = append(signals, key)
		}
	}
	return signals
}

func latestEvent(events []session.Event, types ...string) *session.Event {
	for i := len(events) - 1; i >= 0; i-- {
		for _, t := range types {
			if events[i].Type == t {
				return &events[i]
			}
		}
	}
	return nil
}

func latestPayload(events []session.Event, eventType string) map[string]any {
	if event := latestEvent(events, eventType); event != nil {
		return event.Payload
	}
	return nil
}

// boolSignals coerces a raw payload into the boolean signal map
// identitywatch expects. Truthy JSON values count as set.
func boolSignals(payload map[string]any) map[string]bool {
	signals := make(map[string]bool, len(payload))
	for key, value := range payload {
		switch v := value.(type) {
		case bool:
			signals[key] = v
		case float64:
			signals[key] = v != 0
		case string:
			signals[key] = v != ""
		}
	}
	return signals
}
