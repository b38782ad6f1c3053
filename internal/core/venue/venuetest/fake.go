// Package venuetest provides a scriptable in-memory Venue for tests.
package venuetest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charleschow/trade-bridge/internal/core/venue"
)

// Reply is one scripted SubmitOrder outcome.
type Reply struct {
	Resp venue.OrderResponse
	Err  error
}

// CloseCall records one ClosePosition invocation.
type CloseCall struct {
	Position venue.Position
	Price    float64
}

// Fake implements venue.Venue. Zero-valued scripts succeed: submits fill at
// the submitted price, closes return DONE.
type Fake struct {
	name string

	mu           sync.Mutex
	connected    bool
	connectErr   error
	positions    []venue.Position
	positionsErr error
	quotes       map[string]venue.Quote
	infos        map[string]venue.SymbolInfo
	submits      []Reply
	closes       []venue.CloseResponse
	bracket      bool
	delay        time.Duration

	Submitted []venue.OrderRequest
	Closed    []CloseCall
	calls     int
}

func New(name string) *Fake {
	return &Fake{
		name:      name,
		connected: true,
		quotes:    make(map[string]venue.Quote),
		infos:     make(map[string]venue.SymbolInfo),
	}
}

func (f *Fake) WithQuote(symbol string, bid, ask float64) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quotes[symbol] = venue.Quote{Bid: bid, Ask: ask}
	return f
}

func (f *Fake) WithTick(symbol string, tick float64) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.infos[symbol] = venue.SymbolInfo{Symbol: symbol, TickSize: tick}
	return f
}

func (f *Fake) WithPositions(ps ...venue.Position) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.positions = append(f.positions, ps...)
	return f
}

func (f *Fake) WithPositionsError(err error) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.positionsErr = err
	return f
}

// WithSubmits scripts SubmitOrder outcomes in order; the last one repeats.
func (f *Fake) WithSubmits(replies ...Reply) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits = append(f.submits, replies...)
	return f
}

// WithCloses scripts ClosePosition outcomes in order; the last one repeats.
func (f *Fake) WithCloses(resps ...venue.CloseResponse) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes = append(f.closes, resps...)
	return f
}

func (f *Fake) WithBracket(ok bool) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bracket = ok
	return f
}

func (f *Fake) WithDisconnected(err error) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.connectErr = err
	return f
}

// WithDelay makes every network call block for d or until ctx is done.
func (f *Fake) WithDelay(d time.Duration) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delay = d
	return f
}

// Calls counts every simulated network round trip.
func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *Fake) SubmitCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Submitted)
}

func (f *Fake) Name() string { return f.name }

func (f *Fake) SupportsBracket() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bracket
}

func (f *Fake) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *Fake) Connect(ctx context.Context) error {
	if err := f.roundTrip(ctx); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *Fake) Positions(ctx context.Context, candidates venue.SymbolSet) ([]venue.Position, error) {
	if err := f.roundTrip(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.positionsErr != nil {
		return nil, f.positionsErr
	}
	var out []venue.Position
	for _, p := range f.positions {
		if candidates.Contains(p.Symbol) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *Fake) Quote(ctx context.Context, symbol string) (venue.Quote, error) {
	if err := f.roundTrip(ctx); err != nil {
		return venue.Quote{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	q, ok := f.quotes[symbol]
	if !ok {
		return venue.Quote{}, fmt.Errorf("no quote for %s", symbol)
	}
	return q, nil
}

func (f *Fake) SymbolInfo(ctx context.Context, symbol string) (venue.SymbolInfo, error) {
	if err := f.roundTrip(ctx); err != nil {
		return venue.SymbolInfo{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	info, ok := f.infos[symbol]
	if !ok {
		return venue.SymbolInfo{Symbol: symbol, TickSize: 0.25}, nil
	}
	return info, nil
}

func (f *Fake) SubmitOrder(ctx context.Context, req venue.OrderRequest) (venue.OrderResponse, error) {
	if err := f.roundTrip(ctx); err != nil {
		return venue.OrderResponse{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Submitted = append(f.Submitted, req)
	n := len(f.Submitted)
	if len(f.submits) == 0 {
		return venue.OrderResponse{
			NativeOrderID: fmt.Sprintf("%s-%d", f.name, n),
			FillPrice:     req.Price,
			Retcode:       venue.RetcodeDone,
		}, nil
	}
	r := f.submits[min(n-1, len(f.submits)-1)]
	return r.Resp, r.Err
}

func (f *Fake) ClosePosition(ctx context.Context, pos venue.Position, price float64) (venue.CloseResponse, error) {
	if err := f.roundTrip(ctx); err != nil {
		return venue.CloseResponse{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = append(f.Closed, CloseCall{Position: pos, Price: price})
	if len(f.closes) == 0 {
		return venue.CloseResponse{Retcode: venue.RetcodeDone}, nil
	}
	return f.closes[min(len(f.Closed)-1, len(f.closes)-1)], nil
}

func (f *Fake) roundTrip(ctx context.Context) error {
	f.mu.Lock()
	f.calls++
	d := f.delay
	f.mu.Unlock()
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ venue.Venue = (*Fake)(nil)
