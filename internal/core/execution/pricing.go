package execution

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/charleschow/trade-bridge/internal/core/venue"
)

// MarketableLimit prices a limit order offsetTicks past the touch so it
// crosses the spread: ask + n*tick for a buy, bid - n*tick for a sell.
// The result is snapped to the tick grid.
func MarketableLimit(side venue.OrderSide, q venue.Quote, tickSize float64, offsetTicks int) (float64, error) {
	if tickSize <= 0 {
		return 0, fmt.Errorf("marketable limit: tick size %v", tickSize)
	}
	tick := decimal.NewFromFloat(tickSize)
	offset := tick.Mul(decimal.NewFromInt(int64(offsetTicks)))

	var px decimal.Decimal
	switch side {
	case venue.Buy:
		if q.Ask <= 0 {
			return 0, fmt.Errorf("marketable limit: no ask")
		}
		px = decimal.NewFromFloat(q.Ask).Add(offset)
	case venue.Sell:
		if q.Bid <= 0 {
			return 0, fmt.Errorf("marketable limit: no bid")
		}
		px = decimal.NewFromFloat(q.Bid).Sub(offset)
	default:
		return 0, fmt.Errorf("marketable limit: side %q", side)
	}

	px = px.Div(tick).Round(0).Mul(tick)
	if !px.IsPositive() {
		return 0, fmt.Errorf("marketable limit: non-positive price %s", px)
	}
	return px.InexactFloat64(), nil
}

// Slippage is |executed - expected|.
func Slippage(expected, executed float64) float64 {
	return decimal.NewFromFloat(executed).Sub(decimal.NewFromFloat(expected)).Abs().InexactFloat64()
}
