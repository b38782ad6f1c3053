package netting

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charleschow/trade-bridge/internal/core/retry"
	"github.com/charleschow/trade-bridge/internal/core/symbol"
	"github.com/charleschow/trade-bridge/internal/core/venue"
	"github.com/charleschow/trade-bridge/internal/core/venue/venuetest"
)

var fast = retry.Policy{Attempts: 3, Delay: time.Millisecond}

func long(id, sym string, vol float64) venue.Position {
	return venue.Position{Venue: "mt5", Symbol: sym, Side: venue.Long, Volume: vol, ExternalID: id}
}

func short(id, sym string, vol float64) venue.Position {
	return venue.Position{Venue: "mt5", Symbol: sym, Side: venue.Short, Volume: vol, ExternalID: id}
}

func TestComputePlan_NoPositions(t *testing.T) {
	plan := ComputePlan(nil, venue.Buy, 1, venue.NewSymbolSet("MNQ"))

	assert.Equal(t, 0.0, plan.CloseVolume)
	assert.Equal(t, 1.0, plan.OpenVolume)
	assert.Empty(t, plan.Legs)
	assert.False(t, plan.FullyNetted())
}

func TestComputePlan_SellAgainstSmallerLong(t *testing.T) {
	plan := ComputePlan([]venue.Position{long("1", "MNQ", 1)}, venue.Sell, 2, venue.NewSymbolSet("MNQ"))

	assert.Equal(t, 1.0, plan.CloseVolume)
	assert.Equal(t, 1.0, plan.OpenVolume)
	require.Len(t, plan.Legs, 1)
	assert.Equal(t, "1", plan.Legs[0].Position.ExternalID)
}

func TestComputePlan_IgnoresSameSideAndOtherSymbols(t *testing.T) {
	positions := []venue.Position{
		long("1", "MNQ", 3),
		short("2", "MES", 3),
	}

	plan := ComputePlan(positions, venue.Buy, 2, venue.NewSymbolSet("MNQ"))

	assert.Empty(t, plan.Legs)
	assert.Equal(t, 2.0, plan.OpenVolume)
}

func TestComputePlan_PartialLastLegInIDOrder(t *testing.T) {
	positions := []venue.Position{
		short("300", "NQ_H", 2),
		short("100", "MNQ", 1),
		short("200", "NQ", 5),
	}
	candidates := symbol.SearchSet("MNQ", "NQ1!", "_H")

	plan := ComputePlan(positions, venue.Buy, 3, candidates)

	require.Len(t, plan.Legs, 2)
	assert.Equal(t, "100", plan.Legs[0].Position.ExternalID)
	assert.Equal(t, 1.0, plan.Legs[0].Volume)
	assert.Equal(t, "200", plan.Legs[1].Position.ExternalID)
	assert.Equal(t, 2.0, plan.Legs[1].Volume)
	assert.Equal(t, 3.0, plan.CloseVolume)
	assert.True(t, plan.FullyNetted())
}

func TestComputePlan_Invariant(t *testing.T) {
	positions := []venue.Position{short("a", "X", 0.5), short("b", "X", 1.25), long("c", "X", 4)}
	for _, incoming := range []float64{0.1, 0.5, 1, 1.75, 2, 10} {
		plan := ComputePlan(positions, venue.Buy, incoming, venue.NewSymbolSet("X"))

		assert.InDelta(t, min(incoming, 1.75), plan.CloseVolume, 1e-9, "incoming=%v", incoming)
		assert.InDelta(t, incoming-plan.CloseVolume, plan.OpenVolume, 1e-9)
		assert.GreaterOrEqual(t, plan.OpenVolume, 0.0)
	}
}

func TestClosePlan_BothSidesFullVolume(t *testing.T) {
	positions := []venue.Position{long("2", "MNQ", 1), short("1", "NQ_H", 2), long("3", "ES", 1)}

	plan := ClosePlan(positions, symbol.SearchSet("MNQ", "NQ1!", "_H"))

	require.Len(t, plan.Legs, 2)
	assert.Equal(t, "1", plan.Legs[0].Position.ExternalID)
	assert.Equal(t, 3.0, plan.CloseVolume)
}

func TestClosePlan_NoMatches(t *testing.T) {
	plan := ClosePlan([]venue.Position{long("1", "ES", 1)}, symbol.SearchSet("MNQ", "MNQ1!", "_H"))

	assert.Empty(t, plan.Legs)
	assert.Equal(t, 0.0, plan.CloseVolume)
}

func TestApply_CrossesSpreadPerSide(t *testing.T) {
	fake := venuetest.New("mt5").WithQuote("MNQ", 99.5, 100.5)
	plan := Plan{Legs: []Leg{
		{Position: short("1", "MNQ", 1), Volume: 1},
		{Position: long("2", "MNQ", 2), Volume: 1.5},
	}}

	out := NewNetter(fast).Apply(context.Background(), fake, plan)

	assert.Equal(t, 2.5, out.Closed)
	assert.Equal(t, 0, out.Failed)
	require.Len(t, fake.Closed, 2)
	assert.Equal(t, 100.5, fake.Closed[0].Price, "buy-to-close crosses at ask")
	assert.Equal(t, 99.5, fake.Closed[1].Price, "sell-to-close crosses at bid")
	assert.Equal(t, 1.5, fake.Closed[1].Position.Volume)
}

func TestApply_FailedLegNotCounted(t *testing.T) {
	fake := venuetest.New("mt5").
		WithQuote("MNQ", 100, 101).
		WithCloses(venue.CloseResponse{Retcode: venue.RetcodeRejected, Comment: "Position not found"}, venue.CloseResponse{Retcode: venue.RetcodeDone})
	plan := Plan{Legs: []Leg{
		{Position: short("1", "MNQ", 1), Volume: 1},
		{Position: short("2", "MNQ", 1), Volume: 1},
	}}

	out := NewNetter(fast).Apply(context.Background(), fake, plan)

	assert.Equal(t, 1.0, out.Closed)
	assert.Equal(t, 1, out.Failed)
	assert.Len(t, fake.Closed, 2)
}

func TestApply_MissingQuoteSkipsLeg(t *testing.T) {
	fake := venuetest.New("mt5")
	plan := Plan{Legs: []Leg{{Position: short("1", "MNQ", 1), Volume: 1}}}

	out := NewNetter(fast).Apply(context.Background(), fake, plan)

	assert.Equal(t, 0.0, out.Closed)
	assert.Equal(t, 1, out.Failed)
	assert.Empty(t, fake.Closed)
}

func TestApply_TransientCloseRetried(t *testing.T) {
	fake := venuetest.New("mt5").
		WithQuote("MNQ", 100, 101).
		WithCloses(venue.CloseResponse{Retcode: venue.RetcodeConnection}, venue.CloseResponse{Retcode: venue.RetcodeDone})
	plan := Plan{Legs: []Leg{{Position: long("1", "MNQ", 1), Volume: 1}}}

	out := NewNetter(fast).Apply(context.Background(), fake, plan)

	assert.Equal(t, 1.0, out.Closed)
	assert.Equal(t, 2, out.Attempts)
}
