package execution

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/charleschow/trade-bridge/internal/events"
	"github.com/charleschow/trade-bridge/internal/telemetry"
)

// ErrNoPrimary means the bridge was started without a primary venue.
var ErrNoPrimary = errors.New("no primary lane configured")

// Service is the critical path for one authenticated signal.
//
// The secondary fan-out is enqueued first so slow secondaries never delay
// the primary; the primary then runs synchronously on the caller's
// goroutine because the webhook response carries its result.
type Service struct {
	bus    *events.Bus
	router *LaneRouter
	engine *Engine
	fanout Fanout
}

func NewService(bus *events.Bus, router *LaneRouter, engine *Engine, fanout Fanout) *Service {
	return &Service{
		bus:    bus,
		router: router,
		engine: engine,
		fanout: fanout,
	}
}

func (s *Service) Handle(ctx context.Context, intent events.OrderIntent) (events.ExecutionResult, error) {
	telemetry.Metrics.SignalsReceived.Inc()
	s.bus.Publish(events.Event{
		ID:        intent.ID,
		Type:      events.EventSignal,
		Timestamp: intent.ReceivedAt,
		Payload:   intent,
	})

	if s.fanout != nil {
		s.fanout.Dispatch(intent)
	}

	primary := s.router.Primary()
	if primary == nil {
		telemetry.Errorf("execution: signal %s %s %s dropped: %v", intent.ID, intent.Action, intent.Symbol, ErrNoPrimary)
		return events.ExecutionResult{}, ErrNoPrimary
	}

	start := time.Now()
	res := s.engine.Execute(ctx, primary, intent)
	telemetry.Metrics.PrimaryLatency.Record(time.Since(start))
	if !intent.ReceivedAt.IsZero() {
		telemetry.Metrics.SignalLatency.Record(time.Since(intent.ReceivedAt))
	}

	PublishResult(s.bus, res)
	return res, nil
}

// PublishResult wraps res in an execution event. Dispatcher workers use it
// for secondary outcomes.
func PublishResult(bus *events.Bus, res events.ExecutionResult) {
	telemetry.ExecutionResults.WithLabelValues(res.Venue, string(res.Status)).Inc()
	bus.Publish(events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventExecution,
		Venue:     res.Venue,
		Timestamp: res.At,
		Payload:   res,
	})
}
