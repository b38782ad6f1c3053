package venue

import (
	"context"
	"sort"
)

// Venue is the capability contract every trading endpoint implements.
// The venue is always the source of truth for positions; nothing here caches them.
type Venue interface {
	Name() string
	Connect(ctx context.Context) error
	IsConnected() bool
	Positions(ctx context.Context, candidates SymbolSet) ([]Position, error)
	Quote(ctx context.Context, symbol string) (Quote, error)
	SymbolInfo(ctx context.Context, symbol string) (SymbolInfo, error)
	SubmitOrder(ctx context.Context, req OrderRequest) (OrderResponse, error)
	ClosePosition(ctx context.Context, pos Position, price float64) (CloseResponse, error)
	// SupportsBracket reports whether SL/TP can ride on a single order.
	SupportsBracket() bool
}

type Side string

const (
	Long  Side = "LONG"
	Short Side = "SHORT"
)

// Opposite returns the side that nets against s.
func (s Side) Opposite() Side {
	if s == Long {
		return Short
	}
	return Long
}

// OrderSide is the direction of an order, distinct from position side.
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

func (s OrderSide) Reverse() OrderSide {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Opens returns the position side an order on s would open.
func (s OrderSide) Opens() Side {
	if s == Buy {
		return Long
	}
	return Short
}

type Position struct {
	Venue      string  `json:"venue"`
	Symbol     string  `json:"symbol"`
	Side       Side    `json:"side"`
	Volume     float64 `json:"volume"`
	ExternalID string  `json:"external_id"`
}

// CloseSide is the order side that flattens p.
func (p Position) CloseSide() OrderSide {
	if p.Side == Long {
		return Sell
	}
	return Buy
}

type Quote struct {
	Bid float64 `json:"bid"`
	Ask float64 `json:"ask"`
}

type SymbolInfo struct {
	Symbol    string  `json:"symbol"`
	TickSize  float64 `json:"tick_size"`
	MinVolume float64 `json:"min_volume,omitempty"`
}

type PriceKind string

const (
	PriceLimit PriceKind = "LIMIT"
	PriceStop  PriceKind = "STOP"
)

type Bracket struct {
	StopLoss   float64 `json:"stop_loss,omitempty"`
	TakeProfit float64 `json:"take_profit,omitempty"`
}

// OrderRequest is one order leg. Children of an untransmitted parent carry
// ParentID = the parent's ClientID; only the final leg has Transmit set.
type OrderRequest struct {
	ClientID string    `json:"client_id"`
	ParentID string    `json:"parent_id,omitempty"`
	Symbol   string    `json:"symbol"`
	Side     OrderSide `json:"side"`
	Volume   float64   `json:"volume"`
	Kind     PriceKind `json:"kind"`
	Price    float64   `json:"price"`
	Bracket  *Bracket  `json:"bracket,omitempty"`
	Transmit bool      `json:"transmit"`
}

type OrderResponse struct {
	NativeOrderID string  `json:"order_id"`
	FillPrice     float64 `json:"fill_price"`
	Retcode       Retcode `json:"retcode"`
	Comment       string  `json:"comment,omitempty"`
}

func (r OrderResponse) Code() Retcode    { return r.Retcode }
func (r OrderResponse) Message() string { return r.Comment }

type CloseResponse struct {
	Retcode Retcode `json:"retcode"`
	Comment string  `json:"comment,omitempty"`
}

func (r CloseResponse) Code() Retcode    { return r.Retcode }
func (r CloseResponse) Message() string { return r.Comment }

// SymbolSet is a set of venue symbols tolerated as the same instrument.
type SymbolSet map[string]struct{}

func NewSymbolSet(symbols ...string) SymbolSet {
	s := make(SymbolSet, len(symbols))
	for _, sym := range symbols {
		if sym != "" {
			s[sym] = struct{}{}
		}
	}
	return s
}

func (s SymbolSet) Contains(sym string) bool {
	_, ok := s[sym]
	return ok
}

// Sorted returns the members in lexical order (stable for logs and query strings).
func (s SymbolSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for sym := range s {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}
