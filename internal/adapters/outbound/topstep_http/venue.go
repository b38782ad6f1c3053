// Package topstep_http is the TopStepX (ProjectX gateway) venue adapter.
package topstep_http

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charleschow/trade-bridge/internal/core/venue"
	"github.com/charleschow/trade-bridge/internal/telemetry"
)

const KeepAliveInterval = 45 * time.Second

// ProjectX enums.
const (
	orderTypeLimit = 1
	orderTypeStop  = 4

	sideBid = 0
	sideAsk = 1

	positionLong  = 1
	positionShort = 2
)

type Options struct {
	Name      string
	BaseURL   string
	APIKey    string
	AccountID int64
	Timeout   time.Duration
}

type contract struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	TickSize float64 `json:"tickSize"`
}

type Venue struct {
	name      string
	accountID int64
	client    *Client
	connected atomic.Bool

	mu        sync.RWMutex
	contracts map[string]contract // by symbol
}

func New(opts Options) *Venue {
	name := opts.Name
	if name == "" {
		name = "topstep"
	}
	return &Venue{
		name:      name,
		accountID: opts.AccountID,
		client:    NewClient(strings.TrimRight(opts.BaseURL, "/"), opts.APIKey, opts.Timeout),
		contracts: make(map[string]contract),
	}
}

func (v *Venue) Name() string          { return v.name }
func (v *Venue) SupportsBracket() bool { return true }
func (v *Venue) IsConnected() bool     { return v.connected.Load() }

func (v *Venue) Connect(ctx context.Context) error {
	telemetry.Infof("%s: validating connection to %s", v.name, v.client.baseURL)
	if err := v.client.ping(ctx); err != nil {
		v.connected.Store(false)
		return fmt.Errorf("%s connect: %w: %v", v.name, venue.ErrUnavailable, err)
	}
	v.connected.Store(true)
	telemetry.Infof("%s: connection validated", v.name)
	return nil
}

// KeepAlive pings the profile endpoint every interval while connected so
// the TLS session stays warm. It returns when ctx is done.
func (v *Venue) KeepAlive(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = KeepAliveInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !v.connected.Load() {
				continue
			}
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := v.client.ping(pingCtx)
			cancel()
			if errors.Is(err, ErrUnauthorized) {
				v.connected.Store(false)
				telemetry.Warnf("%s: keep-alive unauthorized, marking disconnected", v.name)
			} else if err != nil {
				telemetry.Debugf("%s: keep-alive ping failed: %v", v.name, err)
			}
		}
	}
}

type searchOpenRequest struct {
	AccountID int64 `json:"accountId"`
}

type openPosition struct {
	ID         int64   `json:"id"`
	ContractID string  `json:"contractId"`
	Type       int     `json:"type"`
	Size       float64 `json:"size"`
}

type searchOpenResponse struct {
	apiStatus
	Positions []openPosition `json:"positions"`
}

func (v *Venue) Positions(ctx context.Context, candidates venue.SymbolSet) ([]venue.Position, error) {
	var resp searchOpenResponse
	if err := v.call(ctx, "/api/Position/searchOpen", searchOpenRequest{AccountID: v.accountID}, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("%s positions: %s (%d)", v.name, resp.ErrorMessage, resp.ErrorCode)
	}

	var out []venue.Position
	for _, p := range resp.Positions {
		sym := v.symbolFor(p.ContractID)
		if len(candidates) > 0 && !candidates.Contains(sym) {
			continue
		}
		var side venue.Side
		switch p.Type {
		case positionLong:
			side = venue.Long
		case positionShort:
			side = venue.Short
		default:
			continue
		}
		out = append(out, venue.Position{
			Venue:      v.name,
			Symbol:     sym,
			Side:       side,
			Volume:     p.Size,
			ExternalID: strconv.FormatInt(p.ID, 10),
		})
	}
	return out, nil
}

type quoteRequest struct {
	ContractID string `json:"contractId"`
}

type quoteResponse struct {
	apiStatus
	Bid float64 `json:"bestBid"`
	Ask float64 `json:"bestAsk"`
}

func (v *Venue) Quote(ctx context.Context, symbol string) (venue.Quote, error) {
	c, err := v.resolve(ctx, symbol)
	if err != nil {
		return venue.Quote{}, err
	}
	var resp quoteResponse
	if err := v.call(ctx, "/api/Market/quote", quoteRequest{ContractID: c.ID}, &resp); err != nil {
		return venue.Quote{}, err
	}
	if !resp.Success {
		return venue.Quote{}, fmt.Errorf("%s quote %s: %s (%d)", v.name, symbol, resp.ErrorMessage, resp.ErrorCode)
	}
	return venue.Quote{Bid: resp.Bid, Ask: resp.Ask}, nil
}

func (v *Venue) SymbolInfo(ctx context.Context, symbol string) (venue.SymbolInfo, error) {
	c, err := v.resolve(ctx, symbol)
	if err != nil {
		return venue.SymbolInfo{}, err
	}
	return venue.SymbolInfo{Symbol: symbol, TickSize: c.TickSize, MinVolume: 1}, nil
}

type placeOrderRequest struct {
	AccountID       int64    `json:"accountId"`
	ContractID      string   `json:"contractId"`
	Type            int      `json:"type"`
	Side            int      `json:"side"`
	Size            float64  `json:"size"`
	LimitPrice      *float64 `json:"limitPrice,omitempty"`
	StopPrice       *float64 `json:"stopPrice,omitempty"`
	StopLossPrice   *float64 `json:"stopLossPrice,omitempty"`
	TakeProfitPrice *float64 `json:"takeProfitPrice,omitempty"`
	CustomTag       string   `json:"customTag,omitempty"`
}

type placeOrderResponse struct {
	apiStatus
	OrderID int64 `json:"orderId"`
}

func (v *Venue) SubmitOrder(ctx context.Context, req venue.OrderRequest) (venue.OrderResponse, error) {
	c, err := v.resolve(ctx, req.Symbol)
	if err != nil {
		return venue.OrderResponse{}, err
	}
	body := placeOrderRequest{
		AccountID:  v.accountID,
		ContractID: c.ID,
		Side:       sideOf(req.Side),
		Size:       req.Volume,
		CustomTag:  req.ClientID,
	}
	price := req.Price
	if req.Kind == venue.PriceStop {
		body.Type = orderTypeStop
		body.StopPrice = &price
	} else {
		body.Type = orderTypeLimit
		body.LimitPrice = &price
	}
	if b := req.Bracket; b != nil {
		if b.StopLoss > 0 {
			sl := b.StopLoss
			body.StopLossPrice = &sl
		}
		if b.TakeProfit > 0 {
			tp := b.TakeProfit
			body.TakeProfitPrice = &tp
		}
	}
	return v.place(ctx, body)
}

// ClosePosition flattens pos with a reverse-side limit order at price.
func (v *Venue) ClosePosition(ctx context.Context, pos venue.Position, price float64) (venue.CloseResponse, error) {
	c, err := v.resolve(ctx, pos.Symbol)
	if err != nil {
		return venue.CloseResponse{}, err
	}
	resp, err := v.place(ctx, placeOrderRequest{
		AccountID:  v.accountID,
		ContractID: c.ID,
		Type:       orderTypeLimit,
		Side:       sideOf(pos.CloseSide()),
		Size:       pos.Volume,
		LimitPrice: &price,
		CustomTag:  "close-" + pos.ExternalID,
	})
	if err != nil {
		return venue.CloseResponse{}, err
	}
	return venue.CloseResponse{Retcode: resp.Retcode, Comment: resp.Comment}, nil
}

func (v *Venue) place(ctx context.Context, body placeOrderRequest) (venue.OrderResponse, error) {
	var resp placeOrderResponse
	if err := v.call(ctx, "/api/Order/place", body, &resp); err != nil {
		return venue.OrderResponse{}, err
	}
	if !resp.Success {
		return venue.OrderResponse{Retcode: venue.RetcodeRejected, Comment: resp.ErrorMessage}, nil
	}
	telemetry.Infof("%s: order placed id=%d contract=%s size=%v", v.name, resp.OrderID, body.ContractID, body.Size)
	return venue.OrderResponse{
		NativeOrderID: strconv.FormatInt(resp.OrderID, 10),
		Retcode:       venue.RetcodeDone,
	}, nil
}

type contractSearchRequest struct {
	SearchText string `json:"searchText"`
	Live       bool   `json:"live"`
}

type contractSearchResponse struct {
	apiStatus
	Contracts []contract `json:"contracts"`
}

// resolve maps a bridge symbol (e.g. MNQ) to its active ProjectX contract.
func (v *Venue) resolve(ctx context.Context, symbol string) (contract, error) {
	v.mu.RLock()
	c, ok := v.contracts[symbol]
	v.mu.RUnlock()
	if ok {
		return c, nil
	}

	var resp contractSearchResponse
	if err := v.call(ctx, "/api/Contract/search", contractSearchRequest{SearchText: symbol}, &resp); err != nil {
		return contract{}, err
	}
	if !resp.Success || len(resp.Contracts) == 0 {
		return contract{}, &venue.RejectError{Venue: v.name, Code: venue.RetcodeInvalid, Message: "unknown contract " + symbol}
	}
	c = resp.Contracts[0]
	for _, cand := range resp.Contracts {
		if contractSymbol(cand.ID) == symbol {
			c = cand
			break
		}
	}
	v.mu.Lock()
	v.contracts[symbol] = c
	v.mu.Unlock()
	return c, nil
}

func (v *Venue) symbolFor(contractID string) string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	for sym, c := range v.contracts {
		if c.ID == contractID {
			return sym
		}
	}
	return contractSymbol(contractID)
}

// contractSymbol extracts the product code from ids like CON.F.US.MNQ.Z25.
func contractSymbol(id string) string {
	parts := strings.Split(id, ".")
	if len(parts) >= 5 {
		return parts[3]
	}
	return id
}

func sideOf(s venue.OrderSide) int {
	if s == venue.Buy {
		return sideBid
	}
	return sideAsk
}

func (v *Venue) call(ctx context.Context, path string, body, out any) error {
	err := v.client.post(ctx, path, body, out)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrUnauthorized) || errors.Is(err, errTransport) {
		if v.connected.Swap(false) {
			telemetry.Warnf("%s: marked disconnected: %v", v.name, err)
		}
	}
	if errors.Is(err, ErrUnauthorized) {
		// A bad key will not fix itself between attempts.
		reject := &venue.RejectError{Venue: v.name, Code: venue.RetcodeRejected, Message: err.Error()}
		return fmt.Errorf("%s %s: %w: %w", v.name, path, reject, err)
	}
	return fmt.Errorf("%s %s: %w", v.name, path, err)
}

var _ venue.Venue = (*Venue)(nil)
