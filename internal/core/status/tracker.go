// Package status keeps the health snapshot served on /health.
package status

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/charleschow/trade-bridge/internal/core/execution"
	"github.com/charleschow/trade-bridge/internal/core/execution/lanes"
	"github.com/charleschow/trade-bridge/internal/events"
)

const (
	Starting     = "starting"
	Connected    = "connected"
	Disconnected = "disconnected"
	Mock         = "mock"
	BreakerOpen  = "breaker_open"
)

// Tracker owns the per-process status that used to live in global maps.
// Connectivity is read live from the venues; only the last primary trade
// is remembered.
type Tracker struct {
	router *execution.LaneRouter
	ready  atomic.Bool

	mu        sync.RWMutex
	lastTrade string
}

func NewTracker(router *execution.LaneRouter) *Tracker {
	return &Tracker{router: router, lastTrade: "None"}
}

// Subscribe records primary-lane outcomes from the bus.
func (t *Tracker) Subscribe(bus *events.Bus) {
	bus.Subscribe(events.EventExecution, func(e events.Event) error {
		r, ok := e.Payload.(events.ExecutionResult)
		if !ok {
			return nil
		}
		if p := t.router.Primary(); p == nil || p.Name != r.Venue {
			return nil
		}
		t.mu.Lock()
		t.lastTrade = fmt.Sprintf("%s %s %s", r.Action, r.Symbol, r.Status)
		t.mu.Unlock()
		return nil
	})
}

// MarkReady ends the "starting" phase once venues were first connected.
func (t *Tracker) MarkReady() { t.ready.Store(true) }

func (t *Tracker) LastTrade() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastTrade
}

// Snapshot renders {status, last_trade, <venue>_status...}.
func (t *Tracker) Snapshot() map[string]string {
	out := map[string]string{
		"status":     Disconnected,
		"last_trade": t.LastTrade(),
	}
	for _, l := range t.router.All() {
		st := laneStatus(l)
		out[l.Name+"_status"] = st
		if l.IsPrimary() {
			out["status"] = st
		}
	}
	if !t.ready.Load() {
		out["status"] = Starting
	}
	return out
}

func laneStatus(l *lanes.Lane) string {
	switch {
	case l.Mock:
		return Mock
	case l.Breaker != nil && l.Breaker.State() == lanes.BreakerOpen:
		return BreakerOpen
	case l.Venue != nil && l.Venue.IsConnected():
		return Connected
	default:
		return Disconnected
	}
}
