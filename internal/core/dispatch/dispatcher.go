package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charleschow/trade-bridge/internal/core/execution"
	"github.com/charleschow/trade-bridge/internal/core/execution/lanes"
	"github.com/charleschow/trade-bridge/internal/events"
	"github.com/charleschow/trade-bridge/internal/telemetry"
)

// Dispatcher repeats translate, net and execute for every secondary lane.
// Outcomes only leave through the bus (and from there the ledger); nothing
// is returned to the webhook caller.
type Dispatcher struct {
	bus     *events.Bus
	router  *execution.LaneRouter
	engine  *execution.Engine
	pool    *Pool
	timeout time.Duration
}

var _ execution.Fanout = (*Dispatcher)(nil)

// New wires breaker transitions of every secondary lane onto the bus.
// timeout applies to lanes that do not set their own.
func New(bus *events.Bus, router *execution.LaneRouter, engine *execution.Engine, pool *Pool, timeout time.Duration) *Dispatcher {
	d := &Dispatcher{
		bus:     bus,
		router:  router,
		engine:  engine,
		pool:    pool,
		timeout: timeout,
	}
	for _, l := range router.Secondaries() {
		if l.Breaker == nil {
			continue
		}
		l.Breaker.OnChange(func(venue string, state lanes.BreakerState, failures int) {
			bus.Publish(events.Event{
				Type:      events.EventBreaker,
				Venue:     venue,
				Timestamp: time.Now(),
				Payload:   events.BreakerEvent{Venue: venue, State: state.String(), Failures: failures},
			})
		})
	}
	return d
}

// Dispatch enqueues one task per secondary lane and returns immediately.
func (d *Dispatcher) Dispatch(intent events.OrderIntent) {
	for _, lane := range d.router.Secondaries() {
		if !d.pool.Submit(func() { d.run(lane, intent) }) {
			telemetry.Warnf("dispatch: %s dropped %s %s (signal %s)", lane.Name, intent.Action, intent.Symbol, intent.ID)
		}
	}
}

func (d *Dispatcher) run(lane *lanes.Lane, intent events.OrderIntent) {
	if lane.Breaker != nil && !lane.Breaker.Allow() {
		telemetry.Metrics.DispatchSkipped.Inc()
		telemetry.Warnf("dispatch: %s breaker open, skipping %s %s", lane.Name, intent.Action, intent.Symbol)
		execution.PublishResult(d.bus, skipped(lane, intent))
		return
	}

	timeout := lane.Timeout
	if timeout <= 0 {
		timeout = d.timeout
	}
	ctx := context.Background()
	cancel := context.CancelFunc(func() {})
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
	}
	res := d.engine.Execute(ctx, lane, intent)
	timedOut := errors.Is(ctx.Err(), context.DeadlineExceeded) && res.Status != events.StatusSuccess
	cancel()

	if timedOut {
		telemetry.Metrics.DispatchTimeouts.Inc()
		res.Detail = fmt.Sprintf("dispatch timeout after %s: %s", timeout, res.Detail)
		res.Error = res.Detail
	}
	if lane.Breaker != nil {
		if res.Status == events.StatusSuccess {
			lane.Breaker.RecordSuccess()
		} else {
			lane.Breaker.RecordFailure()
		}
	}
	execution.PublishResult(d.bus, res)
}

func skipped(lane *lanes.Lane, intent events.OrderIntent) events.ExecutionResult {
	tr := lane.Rules.Translate(intent.Symbol, intent.Volume, lane.Mode)
	return events.ExecutionResult{
		SignalID:      intent.ID,
		Venue:         lane.Name,
		Symbol:        tr.Native,
		Action:        intent.Action,
		Volume:        tr.Volume,
		Status:        events.StatusSkipped,
		State:         events.StateBreakerOpen,
		ExpectedPrice: intent.Price,
		Detail:        "circuit breaker open",
		At:            time.Now(),
	}
}
