package execution

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charleschow/trade-bridge/internal/core/venue"
)

func entry() Entry {
	return Entry{ClientID: "tb-mt5-abcd", Symbol: "MNQ", Side: venue.Buy, Volume: 1, Price: 101}
}

func TestBuildOrders_NoBracketNeverSynthesized(t *testing.T) {
	for _, capable := range []bool{true, false} {
		legs := BuildOrders(entry(), capable)

		require.Len(t, legs, 1)
		assert.Nil(t, legs[0].Bracket)
		assert.Equal(t, venue.PriceLimit, legs[0].Kind)
		assert.True(t, legs[0].Transmit)
		assert.Empty(t, legs[0].ParentID)
	}
}

func TestBuildOrders_SingleOrderBracket(t *testing.T) {
	e := entry()
	e.StopLoss, e.TakeProfit = 95, 110

	legs := BuildOrders(e, true)

	require.Len(t, legs, 1)
	require.NotNil(t, legs[0].Bracket)
	assert.Equal(t, venue.Bracket{StopLoss: 95, TakeProfit: 110}, *legs[0].Bracket)
	assert.True(t, legs[0].Transmit)
}

func TestBuildOrders_ParentChildBracket(t *testing.T) {
	e := entry()
	e.StopLoss, e.TakeProfit = 95, 110

	legs := BuildOrders(e, false)

	require.Len(t, legs, 3)
	parent, stop, tp := legs[0], legs[1], legs[2]
	assert.False(t, parent.Transmit)
	assert.Nil(t, parent.Bracket)

	assert.Equal(t, parent.ClientID, stop.ParentID)
	assert.Equal(t, venue.PriceStop, stop.Kind)
	assert.Equal(t, venue.Sell, stop.Side)
	assert.Equal(t, 95.0, stop.Price)
	assert.False(t, stop.Transmit)

	assert.Equal(t, parent.ClientID, tp.ParentID)
	assert.Equal(t, venue.PriceLimit, tp.Kind)
	assert.Equal(t, 110.0, tp.Price)
	assert.True(t, tp.Transmit, "only the final child transmits")
}

func TestBuildOrders_StopOnlyChildTransmits(t *testing.T) {
	e := entry()
	e.Side = venue.Sell
	e.StopLoss = 105

	legs := BuildOrders(e, false)

	require.Len(t, legs, 2)
	assert.False(t, legs[0].Transmit)
	assert.Equal(t, venue.Buy, legs[1].Side)
	assert.True(t, legs[1].Transmit)
}
