// Package risk implements the settlement-health circuit breaker: a
// rolling-window monitor that halts new order admission when the rate of
// InsufficientEscrow rejections or Abandoned settlements on a chain gets
// too high to trust that chain's state.
//
// Adapted from the kill-switch shape of an exposure/PnL risk manager:
// the same "emit a signal, the engine reads it, a cooldown expires"
// pattern, just re-pointed at settlement failure rates instead of
// position exposure.
package risk

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"crosslot/internal/config"
)

// EventKind enumerates the outcomes the monitor tracks.
type EventKind string

const (
	EventInsufficientEscrow EventKind = "insufficient_escrow"
	EventAdmissionOK        EventKind = "admission_ok"
	EventSettled            EventKind = "settled"
	EventAbandoned          EventKind = "abandoned"
)

// Event is one outcome reported by the API layer or the settlement
// orchestrator, scoped to the chain it happened on.
type Event struct {
	Chain     string
	Kind      EventKind
	Timestamp time.Time
}

// HaltSignal tells the engine to stop the book registry admitting new
// orders. Chain names the chain whose event rate tripped the threshold;
// the halt itself applies to all trading, not only to that chain.
type HaltSignal struct {
	Chain  string
	Reason string
}

// Monitor tracks settlement-health events in a rolling window per chain
// and emits a HaltSignal when either configured rate threshold trips.
type Monitor struct {
	cfg    config.RiskConfig
	logger *slog.Logger

	mu         sync.Mutex
	events     map[string][]Event // chain -> recent events, oldest first
	haltActive bool
	haltUntil  time.Time
	haltReason string

	eventCh chan Event
	haltCh  chan HaltSignal
}

// NewMonitor creates a settlement-health monitor.
func NewMonitor(cfg config.RiskConfig, logger *slog.Logger) *Monitor {
	return &Monitor{
		cfg:     cfg,
		logger:  logger.With("component", "risk"),
		events:  make(map[string][]Event),
		eventCh: make(chan Event, 256),
		haltCh:  make(chan HaltSignal, 10),
	}
}

// Run starts the monitoring loop.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-m.eventCh:
			m.processEvent(ev)
		case <-ticker.C:
			m.clearExpiredHalt()
		}
	}
}

// Report submits an event (non-blocking).
func (m *Monitor) Report(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	select {
	case m.eventCh <- ev:
	default:
		m.logger.Warn("settlement health event channel full, dropping event", "chain", ev.Chain, "kind", ev.Kind)
	}
}

// HaltCh returns the channel the engine reads halt signals from before
// applying them to the book registry.
func (m *Monitor) HaltCh() <-chan HaltSignal {
	return m.haltCh
}

// IsHaltActive reports whether a trading halt is currently engaged,
// clearing it first if its cooldown has elapsed.
func (m *Monitor) IsHaltActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.haltActive {
		return false
	}
	if time.Now().After(m.haltUntil) {
		m.haltActive = false
		m.logger.Info("settlement halt cooldown expired")
		return false
	}
	return true
}

// HealthSnapshot is the /api/settlement_health response shape.
type HealthSnapshot struct {
	OK                     bool      `json:"ok"`
	HaltActive             bool      `json:"halt_active"`
	HaltReason             string    `json:"halt_reason,omitempty"`
	HaltUntil              time.Time `json:"halt_until,omitempty"`
	InsufficientEscrowRate float64   `json:"insufficient_escrow_rate"`
	AbandonedRate          float64   `json:"abandoned_rate"`
}

// Snapshot returns the current aggregate health across all chains.
func (m *Monitor) Snapshot() HealthSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	var insuff, admOK, settled, abandoned int
	cutoff := time.Now().Add(-m.cfg.Window)
	for _, evs := range m.events {
		for _, ev := range evs {
			if ev.Timestamp.Before(cutoff) {
				continue
			}
			switch ev.Kind {
			case EventInsufficientEscrow:
				insuff++
			case EventAdmissionOK:
				admOK++
			case EventSettled:
				settled++
			case EventAbandoned:
				abandoned++
			}
		}
	}

	return HealthSnapshot{
		OK:                     !m.haltActive,
		HaltActive:             m.haltActive,
		HaltReason:             m.haltReason,
		HaltUntil:              m.haltUntil,
		InsufficientEscrowRate: rate(insuff, insuff+admOK),
		AbandonedRate:          rate(abandoned, abandoned+settled),
	}
}

func rate(numerator, denominator int) float64 {
	if denominator == 0 {
		return 0
	}
	return float64(numerator) / float64(denominator)
}

func (m *Monitor) processEvent(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	evs := append(m.events[ev.Chain], ev)
	evs = pruneOlderThan(evs, time.Now().Add(-m.cfg.Window))
	m.events[ev.Chain] = evs

	var insuff, admOK, settled, abandoned int
	for _, e := range evs {
		switch e.Kind {
		case EventInsufficientEscrow:
			insuff++
		case EventAdmissionOK:
			admOK++
		case EventSettled:
			settled++
		case EventAbandoned:
			abandoned++
		}
	}

	if r := rate(insuff, insuff+admOK); m.cfg.InsufficientEscrowRate > 0 && r > m.cfg.InsufficientEscrowRate {
		m.emitHalt(ev.Chain, "insufficient-escrow rejection rate exceeded threshold")
	}
	if r := rate(abandoned, abandoned+settled); m.cfg.AbandonedRate > 0 && r > m.cfg.AbandonedRate {
		m.emitHalt(ev.Chain, "abandoned settlement rate exceeded threshold")
	}
}

func pruneOlderThan(evs []Event, cutoff time.Time) []Event {
	i := 0
	for i < len(evs) && evs[i].Timestamp.Before(cutoff) {
		i++
	}
	return evs[i:]
}

func (m *Monitor) clearExpiredHalt() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.haltActive && time.Now().After(m.haltUntil) {
		m.haltActive = false
		m.logger.Info("settlement halt cooldown expired")
	}
}

// emitHalt engages the halt, starts the cooldown timer, and sends a
// HaltSignal. If the channel is full, the stale signal is drained first
// so the latest halt reason is always delivered.
func (m *Monitor) emitHalt(chain, reason string) {
	m.haltActive = true
	m.haltUntil = time.Now().Add(m.cfg.CooldownAfterHalt)
	m.haltReason = reason

	m.logger.Error("settlement halt engaged", "chain", chain, "reason", reason, "cooldown_until", m.haltUntil)

	sig := HaltSignal{Chain: chain, Reason: reason}
	select {
	case m.haltCh <- sig:
	default:
		select {
		case <-m.haltCh:
		default:
		}
		m.haltCh <- sig
	}
}
