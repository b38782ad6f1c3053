package discord

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charleschow/trade-bridge/internal/events"
	"github.com/charleschow/trade-bridge/internal/telemetry"
)

// Alerter turns bus events into Discord posts. Trade confirmations are not
// sent; only failed primary executions, breaker trips and panics are.
// Posts run off the publisher's goroutine so a slow webhook never delays
// order flow.
type Alerter struct {
	n       *Notifier
	primary string

	wg sync.WaitGroup
}

func NewAlerter(n *Notifier, primary string) *Alerter {
	return &Alerter{n: n, primary: primary}
}

func (a *Alerter) Subscribe(bus *events.Bus) {
	if !a.n.Enabled() {
		return
	}
	bus.Subscribe(events.EventExecution, func(e events.Event) error {
		r, ok := e.Payload.(events.ExecutionResult)
		if !ok || r.Venue != a.primary || r.Status != events.StatusError {
			return nil
		}
		a.post(func(ctx context.Context) error { return a.n.ExecutionFailed(ctx, r) })
		return nil
	})
	bus.Subscribe(events.EventBreaker, func(e events.Event) error {
		ev, ok := e.Payload.(events.BreakerEvent)
		if !ok || ev.State != "OPEN" {
			return nil
		}
		a.post(func(ctx context.Context) error { return a.n.BreakerOpened(ctx, ev) })
		return nil
	})
}

// Panic alerts on a recovered panic.
func (a *Alerter) Panic(origin string, v any) {
	if !a.n.Enabled() {
		return
	}
	msg := fmt.Sprint(v)
	a.post(func(ctx context.Context) error { return a.n.ErrorAlert(ctx, origin, msg) })
}

func (a *Alerter) post(fn func(ctx context.Context) error) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := fn(ctx); err != nil {
			telemetry.Warnf("discord: failed to send alert: %v", err)
		}
	}()
}

// Wait blocks until in-flight posts finish.
func (a *Alerter) Wait() { a.wg.Wait() }
