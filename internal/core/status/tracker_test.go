package status

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charleschow/trade-bridge/internal/core/execution"
	"github.com/charleschow/trade-bridge/internal/core/execution/lanes"
	"github.com/charleschow/trade-bridge/internal/core/venue/venuetest"
	"github.com/charleschow/trade-bridge/internal/events"
)

func router(t *testing.T) (*execution.LaneRouter, *lanes.Lane) {
	t.Helper()
	r := execution.NewLaneRouter()
	require.NoError(t, r.Register(lanes.NewLane(lanes.Config{Name: "mt5", Role: lanes.RolePrimary}, venuetest.New("mt5"))))
	ib := lanes.NewLane(lanes.Config{Name: "ibkr", Role: lanes.RoleSecondary, BreakerThresh: 1}, venuetest.New("ibkr").WithDisconnected(errors.New("down")))
	require.NoError(t, r.Register(ib))
	require.NoError(t, r.Register(lanes.NewLane(lanes.Config{Name: "topstep", Role: lanes.RoleSecondary, Mock: true}, venuetest.New("topstep"))))
	return r, ib
}

func TestSnapshot_StartingUntilReady(t *testing.T) {
	r, _ := router(t)
	tr := NewTracker(r)

	snap := tr.Snapshot()
	assert.Equal(t, Starting, snap["status"])
	assert.Equal(t, "None", snap["last_trade"])

	tr.MarkReady()
	snap = tr.Snapshot()
	assert.Equal(t, Connected, snap["status"])
	assert.Equal(t, Connected, snap["mt5_status"])
	assert.Equal(t, Disconnected, snap["ibkr_status"])
	assert.Equal(t, Mock, snap["topstep_status"])
}

func TestSnapshot_BreakerOpen(t *testing.T) {
	r, ib := router(t)
	tr := NewTracker(r)
	tr.MarkReady()

	ib.Breaker.RecordFailure()

	assert.Equal(t, BreakerOpen, tr.Snapshot()["ibkr_status"])
}

func TestSubscribe_TracksPrimaryOnly(t *testing.T) {
	r, _ := router(t)
	tr := NewTracker(r)
	bus := events.NewBus()
	tr.Subscribe(bus)

	bus.Publish(events.Event{Type: events.EventExecution, Payload: events.ExecutionResult{Venue: "mt5", Action: events.ActionBuy, Symbol: "US30", Status: events.StatusSuccess}})
	bus.Publish(events.Event{Type: events.EventExecution, Payload: events.ExecutionResult{Venue: "ibkr", Action: events.ActionSell, Symbol: "MNQ", Status: events.StatusError}})

	assert.Equal(t, "BUY US30 SUCCESS", tr.LastTrade())
}
