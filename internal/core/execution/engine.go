package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charleschow/trade-bridge/internal/core/execution/lanes"
	"github.com/charleschow/trade-bridge/internal/core/netting"
	"github.com/charleschow/trade-bridge/internal/core/retry"
	"github.com/charleschow/trade-bridge/internal/core/venue"
	"github.com/charleschow/trade-bridge/internal/events"
	"github.com/charleschow/trade-bridge/internal/telemetry"
)

// ErrRetryExhausted is returned when every attempt failed transiently.
var ErrRetryExhausted = retry.ErrExhausted

// Engine runs one intent against one lane: translate, net, then open the
// remainder as a limit (optionally bracketed) order. It holds no per-venue
// state of its own; everything venue-scoped lives on the lane.
type Engine struct {
	now func() time.Time
}

func NewEngine() *Engine {
	return &Engine{now: time.Now}
}

// Execute never returns an error: every outcome, including venue failures,
// is folded into the result so it can be ledgered.
func (e *Engine) Execute(ctx context.Context, lane *lanes.Lane, intent events.OrderIntent) events.ExecutionResult {
	start := e.now()
	tr := lane.Rules.Translate(intent.Symbol, intent.Volume, lane.Mode)

	res := events.ExecutionResult{
		SignalID:      intent.ID,
		Venue:         lane.Name,
		Symbol:        tr.Native,
		Action:        intent.Action,
		Volume:        tr.Volume,
		State:         events.StateAuthenticated,
		ExpectedPrice: intent.Price,
	}
	if lane.Mock {
		res.Status = events.StatusSuccess
		res.State = events.StateMock
		res.ExecutedPrice = res.ExpectedPrice
		res.Detail = fmt.Sprintf("mock %s %v %s", intent.Action, tr.Volume, tr.Native)
		telemetry.Infof("execution: %s mock %s %v %s (x%v)", lane.Name, intent.Action, tr.Volume, tr.Native, tr.Multiplier)
		return e.finish(res, start)
	}

	v := lane.Venue
	if !v.IsConnected() {
		if err := v.Connect(ctx); err != nil {
			return e.fail(res, start, events.StateUnavailable, fmt.Errorf("%w: %s connect: %v", venue.ErrUnavailable, lane.Name, err))
		}
	}

	positions, err := v.Positions(ctx, tr.Candidates)
	if err != nil {
		return e.fail(res, start, events.StateUnavailable, fmt.Errorf("%w: %s positions: %v", venue.ErrUnavailable, lane.Name, err))
	}
	netter := netting.NewNetter(lane.Retry)

	if intent.Action.IsCloseOnly() {
		res.State = events.StateCloseOnly
		plan := netting.ClosePlan(positions, tr.Candidates)
		out := netter.Apply(ctx, v, plan)
		res.Attempts = out.Attempts
		res.Volume = out.Closed
		if out.Failed > 0 {
			return e.fail(res, start, events.StateDone, fmt.Errorf("%d of %d closes failed on %s", out.Failed, len(plan.Legs), lane.Name))
		}
		res.Status = events.StatusSuccess
		res.State = events.StateDone
		if len(plan.Legs) == 0 {
			res.Detail = fmt.Sprintf("no positions matching %v", tr.Candidates.Sorted())
		} else {
			res.Detail = fmt.Sprintf("closed %d positions", len(plan.Legs))
		}
		telemetry.Infof("execution: %s %s %s: %s", lane.Name, intent.Action, tr.Native, res.Detail)
		return e.finish(res, start)
	}

	side := venue.Buy
	if intent.Action == events.ActionSell {
		side = venue.Sell
	}

	res.State = events.StateNetting
	plan := netting.ComputePlan(positions, side, tr.Volume, tr.Candidates)
	out := netter.Apply(ctx, v, plan)
	res.Attempts = out.Attempts
	remaining := tr.Volume - out.Closed
	if remaining <= netting.Epsilon {
		res.State = events.StateDone
		res.Status = events.StatusSuccess
		res.Detail = fmt.Sprintf("fully netted: closed %v", out.Closed)
		telemetry.Infof("execution: %s %s %s fully netted (%v closed)", lane.Name, intent.Action, tr.Native, out.Closed)
		return e.finish(res, start)
	}

	res.State = events.StateRemainderOpen
	res.Volume = remaining
	price := intent.Price
	if !intent.HasPrice() {
		price, err = e.marketable(ctx, lane, side, tr.Native)
		if err != nil {
			return e.fail(res, start, events.StateRemainderOpen, err)
		}
	}
	res.ExpectedPrice = price

	legs := BuildOrders(Entry{
		ClientID:   clientID(intent.ID, lane.Name),
		Symbol:     tr.Native,
		Side:       side,
		Volume:     remaining,
		Price:      price,
		StopLoss:   intent.StopLoss,
		TakeProfit: intent.TakeProfit,
	}, v.SupportsBracket())

	res.State = events.StateSubmitted
	var entry venue.OrderResponse
	for i, leg := range legs {
		resp, attempts, err := retry.Do(ctx, lane.Retry, lane.Name, func(ctx context.Context) (venue.OrderResponse, error) {
			return v.SubmitOrder(ctx, leg)
		})
		res.Attempts += attempts
		if err != nil {
			telemetry.Errorf("execution: %s %s %s vol=%v leg %d/%d failed after %d attempts: %v",
				lane.Name, intent.Action, tr.Native, remaining, i+1, len(legs), attempts, err)
			return e.fail(res, start, submitState(err), err)
		}
		telemetry.Metrics.OrdersSent.Inc()
		if i == 0 {
			entry = resp
		}
	}

	res.Status = events.StatusSuccess
	res.State = events.StateFilled
	res.NativeOrderID = entry.NativeOrderID
	res.ExecutedPrice = entry.FillPrice
	if res.ExecutedPrice <= 0 {
		res.ExecutedPrice = res.ExpectedPrice
	}
	res.Slippage = Slippage(res.ExpectedPrice, res.ExecutedPrice)
	res.Detail = fmt.Sprintf("order %s %s %v @ %v", entry.NativeOrderID, side, remaining, res.ExecutedPrice)
	telemetry.Infof("execution: %s filled %s %v %s @ %v (expected %v, attempts %d)",
		lane.Name, side, remaining, tr.Native, res.ExecutedPrice, res.ExpectedPrice, res.Attempts)
	return e.finish(res, start)
}

func (e *Engine) marketable(ctx context.Context, lane *lanes.Lane, side venue.OrderSide, sym string) (float64, error) {
	q, err := lane.Venue.Quote(ctx, sym)
	if err != nil {
		return 0, fmt.Errorf("%s quote %s: %w", lane.Name, sym, err)
	}
	info, err := lane.Info.Get(ctx, lane.Venue, sym)
	if err != nil {
		return 0, fmt.Errorf("%s symbol info %s: %w", lane.Name, sym, err)
	}
	return MarketableLimit(side, q, info.TickSize, lane.OffsetTicks)
}

func (e *Engine) finish(res events.ExecutionResult, start time.Time) events.ExecutionResult {
	res.At = e.now()
	res.LatencyMs = float64(res.At.Sub(start).Microseconds()) / 1000
	if res.Status == events.StatusError {
		res.Error = res.Detail
		telemetry.Metrics.OrderErrors.Inc()
	}
	return res
}

func (e *Engine) fail(res events.ExecutionResult, start time.Time, state events.State, err error) events.ExecutionResult {
	res.Status = events.StatusError
	res.State = state
	res.Detail = err.Error()
	telemetry.Errorf("execution: %s %s %s vol=%v attempts=%d: %v", res.Venue, res.Action, res.Symbol, res.Volume, res.Attempts, err)
	return e.finish(res, start)
}

func submitState(err error) events.State {
	var reject *venue.RejectError
	switch {
	case errors.As(err, &reject):
		return events.StateRejected
	case errors.Is(err, ErrRetryExhausted):
		return events.StateRetryExhausted
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return events.StateUnavailable
	default:
		return events.StateRejected
	}
}

// clientID is stable per (intent, venue) so a resubmission is identical.
func clientID(intentID, lane string) string {
	if len(intentID) > 8 {
		intentID = intentID[:8]
	}
	return fmt.Sprintf("tb-%s-%s", lane, intentID)
}
