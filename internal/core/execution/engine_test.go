package execution

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charleschow/trade-bridge/internal/core/execution/lanes"
	"github.com/charleschow/trade-bridge/internal/core/retry"
	"github.com/charleschow/trade-bridge/internal/core/symbol"
	"github.com/charleschow/trade-bridge/internal/core/venue"
	"github.com/charleschow/trade-bridge/internal/core/venue/venuetest"
	"github.com/charleschow/trade-bridge/internal/events"
)

func testLane(name string, v venue.Venue, rules symbol.Rules) *lanes.Lane {
	return lanes.NewLane(lanes.Config{
		Name:        name,
		Role:        lanes.RolePrimary,
		Rules:       rules,
		Retry:       retry.Policy{Attempts: 3, Delay: time.Millisecond},
		OffsetTicks: 2,
	}, v)
}

func intent(action events.Action, sym string, vol float64) events.OrderIntent {
	return events.OrderIntent{
		ID:         "0f3c2e1a-aaaa-bbbb-cccc-000000000001",
		Symbol:     sym,
		Action:     action,
		Volume:     vol,
		OrderType:  events.OrderMarket,
		ReceivedAt: time.Now(),
	}
}

func TestExecute_ScenarioA_OpenAtMarketableLimit(t *testing.T) {
	fake := venuetest.New("mt5").WithQuote("X", 99.5, 100).WithTick("X", 0.5).
		WithSubmits(venuetest.Reply{Resp: venue.OrderResponse{Retcode: venue.RetcodeDone, NativeOrderID: "9"}})

	res := NewEngine().Execute(context.Background(), testLane("mt5", fake, symbol.Rules{}), intent(events.ActionBuy, "X", 1))

	require.Equal(t, events.StatusSuccess, res.Status, res.Detail)
	assert.Equal(t, events.StateFilled, res.State)
	assert.Empty(t, fake.Closed)
	require.Len(t, fake.Submitted, 1)
	order := fake.Submitted[0]
	assert.Equal(t, venue.PriceLimit, order.Kind)
	assert.Equal(t, venue.Buy, order.Side)
	assert.Equal(t, 101.0, order.Price)
	assert.Equal(t, 1.0, order.Volume)
	assert.Equal(t, 101.0, res.ExpectedPrice)
	assert.Equal(t, 101.0, res.ExecutedPrice, "fill falls back to expected")
	assert.Equal(t, 0.0, res.Slippage)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, "9", res.NativeOrderID)
}

func TestExecute_ScenarioB_NetThenOpenRemainder(t *testing.T) {
	fake := venuetest.New("mt5").
		WithQuote("X", 100, 100.5).
		WithTick("X", 0.5).
		WithPositions(venue.Position{Venue: "mt5", Symbol: "X", Side: venue.Long, Volume: 1, ExternalID: "7"})

	res := NewEngine().Execute(context.Background(), testLane("mt5", fake, symbol.Rules{}), intent(events.ActionSell, "X", 2))

	require.Equal(t, events.StatusSuccess, res.Status, res.Detail)
	require.Len(t, fake.Closed, 1)
	assert.Equal(t, "7", fake.Closed[0].Position.ExternalID)
	assert.Equal(t, 100.0, fake.Closed[0].Price, "sell-to-close at bid")
	require.Len(t, fake.Submitted, 1)
	assert.Equal(t, venue.Sell, fake.Submitted[0].Side)
	assert.Equal(t, 1.0, fake.Submitted[0].Volume)
	assert.Equal(t, 99.0, fake.Submitted[0].Price)
	assert.Equal(t, 1.0, res.Volume)
}

func TestExecute_FullyNettedDoesNotOpen(t *testing.T) {
	fake := venuetest.New("mt5").
		WithQuote("X", 100, 100.5).
		WithPositions(venue.Position{Symbol: "X", Side: venue.Short, Volume: 2, ExternalID: "1"})

	res := NewEngine().Execute(context.Background(), testLane("mt5", fake, symbol.Rules{}), intent(events.ActionBuy, "X", 2))

	assert.Equal(t, events.StatusSuccess, res.Status)
	assert.Equal(t, events.StateDone, res.State)
	assert.Empty(t, fake.Submitted)
	assert.Len(t, fake.Closed, 1)
}

func TestExecute_ScenarioC_CloseWithNoMatch(t *testing.T) {
	fake := venuetest.New("mt5").
		WithPositions(venue.Position{Symbol: "ES", Side: venue.Long, Volume: 1, ExternalID: "1"})

	res := NewEngine().Execute(context.Background(), testLane("mt5", fake, symbol.Rules{AltSuffix: "_H"}), intent(events.ActionClose, "NQ1!", 0))

	assert.Equal(t, events.StatusSuccess, res.Status)
	assert.Equal(t, events.StateDone, res.State)
	assert.Empty(t, res.Error)
	assert.Empty(t, fake.Closed)
	assert.Empty(t, fake.Submitted)
}

func TestExecute_FlattenClosesFuzzyMatches(t *testing.T) {
	fake := venuetest.New("mt5").
		WithQuote("NQ_H", 100, 101).
		WithQuote("MNQ", 100, 101).
		WithPositions(
			venue.Position{Symbol: "NQ_H", Side: venue.Long, Volume: 1, ExternalID: "1"},
			venue.Position{Symbol: "MNQ", Side: venue.Short, Volume: 2, ExternalID: "2"},
		)
	rules := symbol.Rules{Symbols: map[string]symbol.Mapping{"NQ": {Name: "MNQ", Multiplier: 1}}, AltSuffix: "_H"}

	res := NewEngine().Execute(context.Background(), testLane("mt5", fake, rules), intent(events.ActionFlatten, "nq1!", 0))

	assert.Equal(t, events.StatusSuccess, res.Status)
	assert.Equal(t, 3.0, res.Volume)
	require.Len(t, fake.Closed, 2)
	assert.Equal(t, 100.0, fake.Closed[0].Price)
	assert.Equal(t, 101.0, fake.Closed[1].Price)
}

func TestExecute_ExplicitPriceWins(t *testing.T) {
	fake := venuetest.New("mt5")
	in := intent(events.ActionBuy, "X", 1)
	in.OrderType, in.Price = events.OrderLimit, 97.25

	res := NewEngine().Execute(context.Background(), testLane("mt5", fake, symbol.Rules{}), in)

	require.Equal(t, events.StatusSuccess, res.Status, res.Detail)
	require.Len(t, fake.Submitted, 1)
	assert.Equal(t, 97.25, fake.Submitted[0].Price)
}

func TestExecute_BracketOnCapableVenue(t *testing.T) {
	fake := venuetest.New("topstep").WithBracket(true)
	in := intent(events.ActionBuy, "X", 1)
	in.Price, in.StopLoss, in.TakeProfit = 100, 95, 110

	res := NewEngine().Execute(context.Background(), testLane("topstep", fake, symbol.Rules{}), in)

	require.Equal(t, events.StatusSuccess, res.Status, res.Detail)
	require.Len(t, fake.Submitted, 1)
	require.NotNil(t, fake.Submitted[0].Bracket)
	assert.Equal(t, 95.0, fake.Submitted[0].Bracket.StopLoss)
}

func TestExecute_BracketAsChildOrders(t *testing.T) {
	fake := venuetest.New("ibkr").
		WithSubmits(
			venuetest.Reply{Resp: venue.OrderResponse{Retcode: venue.RetcodeDone, NativeOrderID: "P1", FillPrice: 100.25}},
			venuetest.Reply{Resp: venue.OrderResponse{Retcode: venue.RetcodeDone, NativeOrderID: "C1"}},
		)
	in := intent(events.ActionBuy, "X", 1)
	in.Price, in.StopLoss, in.TakeProfit = 100, 95, 110

	res := NewEngine().Execute(context.Background(), testLane("ibkr", fake, symbol.Rules{}), in)

	require.Equal(t, events.StatusSuccess, res.Status, res.Detail)
	require.Len(t, fake.Submitted, 3)
	assert.Equal(t, "P1", res.NativeOrderID)
	assert.Equal(t, 100.25, res.ExecutedPrice)
	assert.Equal(t, 0.25, res.Slippage)
	assert.Equal(t, fake.Submitted[0].ClientID, fake.Submitted[2].ParentID)
}

func TestExecute_RejectSurfacedVerbatim(t *testing.T) {
	fake := venuetest.New("mt5").WithSubmits(venuetest.Reply{
		Resp: venue.OrderResponse{Retcode: venue.RetcodeNoMoney, Comment: "No money"},
	})
	in := intent(events.ActionBuy, "X", 1)
	in.Price = 100

	res := NewEngine().Execute(context.Background(), testLane("mt5", fake, symbol.Rules{}), in)

	assert.Equal(t, events.StatusError, res.Status)
	assert.Equal(t, events.StateRejected, res.State)
	assert.Contains(t, res.Detail, "No money")
	assert.Equal(t, res.Detail, res.Error)
	assert.Equal(t, 1, fake.SubmitCalls())
}

func TestExecute_RetryExhausted(t *testing.T) {
	fake := venuetest.New("mt5").WithSubmits(venuetest.Reply{Err: errors.New("gateway unreachable")})
	in := intent(events.ActionBuy, "X", 1)
	in.Price = 100

	res := NewEngine().Execute(context.Background(), testLane("mt5", fake, symbol.Rules{}), in)

	assert.Equal(t, events.StatusError, res.Status)
	assert.Equal(t, events.StateRetryExhausted, res.State)
	assert.Equal(t, 3, fake.SubmitCalls())
	assert.Equal(t, 3, res.Attempts)
}

func TestExecute_ConnectFailureIsUnavailable(t *testing.T) {
	fake := venuetest.New("mt5").WithDisconnected(errors.New("terminal not running"))

	res := NewEngine().Execute(context.Background(), testLane("mt5", fake, symbol.Rules{}), intent(events.ActionBuy, "X", 1))

	assert.Equal(t, events.StatusError, res.Status)
	assert.Equal(t, events.StateUnavailable, res.State)
	assert.Contains(t, res.Detail, venue.ErrUnavailable.Error())
	assert.Empty(t, fake.Submitted)
}

func TestExecute_MockLaneSkipsVenue(t *testing.T) {
	fake := venuetest.New("topstep")
	lane := testLane("topstep", fake, symbol.Rules{
		Symbols: map[string]symbol.Mapping{"NQ": {Name: "MNQ", Multiplier: 1}},
		Tiers:   &symbol.TierRules{FundedMultipliers: map[string]float64{"NQ": 7}},
	})
	lane.Mode = symbol.ModeFunded
	lane.Mock = true

	res := NewEngine().Execute(context.Background(), lane, intent(events.ActionBuy, "NQ1!", 1))

	assert.Equal(t, events.StatusSuccess, res.Status)
	assert.Equal(t, events.StateMock, res.State)
	assert.Equal(t, "MNQ", res.Symbol)
	assert.Equal(t, 7.0, res.Volume)
	assert.Zero(t, fake.Calls())
}
