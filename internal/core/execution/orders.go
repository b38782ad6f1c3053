package execution

import (
	"github.com/charleschow/trade-bridge/internal/core/venue"
)

// Entry is the post-netting order to open.
type Entry struct {
	ClientID   string
	Symbol     string
	Side       venue.OrderSide
	Volume     float64
	Price      float64
	StopLoss   float64
	TakeProfit float64
}

// BuildOrders expands an entry into the legs to submit, in order.
//
// Without SL/TP this is a single transmitted limit order. With SL/TP on a
// bracket-capable venue the bracket rides on that one order. Otherwise the
// entry goes out untransmitted and the stop and take-profit children follow
// with ParentID set; only the final child transmits, releasing the group.
// Nothing is attached that the caller did not supply.
func BuildOrders(e Entry, supportsBracket bool) []venue.OrderRequest {
	parent := venue.OrderRequest{
		ClientID: e.ClientID,
		Symbol:   e.Symbol,
		Side:     e.Side,
		Volume:   e.Volume,
		Kind:     venue.PriceLimit,
		Price:    e.Price,
		Transmit: true,
	}
	if e.StopLoss <= 0 && e.TakeProfit <= 0 {
		return []venue.OrderRequest{parent}
	}
	if supportsBracket {
		parent.Bracket = &venue.Bracket{StopLoss: e.StopLoss, TakeProfit: e.TakeProfit}
		return []venue.OrderRequest{parent}
	}

	parent.Transmit = false
	legs := []venue.OrderRequest{parent}
	exit := e.Side.Reverse()
	if e.StopLoss > 0 {
		legs = append(legs, venue.OrderRequest{
			ClientID: e.ClientID + "-sl",
			ParentID: e.ClientID,
			Symbol:   e.Symbol,
			Side:     exit,
			Volume:   e.Volume,
			Kind:     venue.PriceStop,
			Price:    e.StopLoss,
		})
	}
	if e.TakeProfit > 0 {
		legs = append(legs, venue.OrderRequest{
			ClientID: e.ClientID + "-tp",
			ParentID: e.ClientID,
			Symbol:   e.Symbol,
			Side:     exit,
			Volume:   e.Volume,
			Kind:     venue.PriceLimit,
			Price:    e.TakeProfit,
		})
	}
	legs[len(legs)-1].Transmit = true
	return legs
}
