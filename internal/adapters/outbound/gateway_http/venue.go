// Package gateway_http talks to the MT5 and IBKR gateway processes. Both
// gateways expose the same small REST surface and report MT5-style retcodes.
package gateway_http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charleschow/trade-bridge/internal/core/venue"
	"github.com/charleschow/trade-bridge/internal/telemetry"
)

type Options struct {
	Name      string
	BaseURL   string
	APIKey    string
	APISecret string
	Timeout   time.Duration
	// Bracket reports whether the gateway accepts SL/TP on a single order.
	// MT5 does; IBKR gateways expect parent/child legs.
	Bracket bool
}

// Venue implements venue.Venue over one gateway.
type Venue struct {
	name      string
	client    *Client
	bracket   bool
	connected atomic.Bool
}

func New(opts Options) *Venue {
	return &Venue{
		name:    opts.Name,
		client:  NewClient(opts.Name, strings.TrimRight(opts.BaseURL, "/"), opts.Timeout, NewSigner(opts.APIKey, opts.APISecret)),
		bracket: opts.Bracket,
	}
}

func (v *Venue) Name() string          { return v.name }
func (v *Venue) SupportsBracket() bool { return v.bracket }
func (v *Venue) IsConnected() bool     { return v.connected.Load() }

type connectResponse struct {
	Connected bool   `json:"connected"`
	Error     string `json:"error,omitempty"`
}

func (v *Venue) Connect(ctx context.Context) error {
	body, status, err := v.client.do(ctx, http.MethodPost, "/connect", nil)
	if err != nil {
		v.connected.Store(false)
		return fmt.Errorf("%s connect: %w: %v", v.name, venue.ErrUnavailable, err)
	}
	var resp connectResponse
	if jerr := json.Unmarshal(body, &resp); jerr != nil || status != http.StatusOK || !resp.Connected {
		v.connected.Store(false)
		msg := resp.Error
		if msg == "" {
			msg = fmt.Sprintf("status=%d body=%s", status, truncate(body))
		}
		return fmt.Errorf("%s connect: %w: %s", v.name, venue.ErrUnavailable, msg)
	}
	v.connected.Store(true)
	telemetry.Infof("%s: gateway connected", v.name)
	return nil
}

type gatewayPosition struct {
	Ticket string  `json:"ticket"`
	Symbol string  `json:"symbol"`
	Type   string  `json:"type"`
	Volume float64 `json:"volume"`
}

type positionsResponse struct {
	Positions []gatewayPosition `json:"positions"`
}

func (v *Venue) Positions(ctx context.Context, candidates venue.SymbolSet) ([]venue.Position, error) {
	path := "/positions"
	if len(candidates) > 0 {
		path += "?symbols=" + url.QueryEscape(strings.Join(candidates.Sorted(), ","))
	}
	var resp positionsResponse
	if err := v.getJSON(ctx, path, &resp); err != nil {
		return nil, err
	}
	out := make([]venue.Position, 0, len(resp.Positions))
	for _, p := range resp.Positions {
		if len(candidates) > 0 && !candidates.Contains(p.Symbol) {
			continue
		}
		side, ok := parseSide(p.Type)
		if !ok {
			telemetry.Warnf("%s: skipping position %s with unknown type %q", v.name, p.Ticket, p.Type)
			continue
		}
		out = append(out, venue.Position{
			Venue:      v.name,
			Symbol:     p.Symbol,
			Side:       side,
			Volume:     p.Volume,
			ExternalID: p.Ticket,
		})
	}
	return out, nil
}

// parseSide accepts MT5 deal types (BUY/SELL) and IBKR sides (LONG/SHORT).
func parseSide(s string) (venue.Side, bool) {
	switch strings.ToUpper(s) {
	case "BUY", "LONG":
		return venue.Long, true
	case "SELL", "SHORT":
		return venue.Short, true
	}
	return "", false
}

func (v *Venue) Quote(ctx context.Context, symbol string) (venue.Quote, error) {
	var q venue.Quote
	if err := v.getJSON(ctx, "/quote/"+url.PathEscape(symbol), &q); err != nil {
		return venue.Quote{}, err
	}
	return q, nil
}

func (v *Venue) SymbolInfo(ctx context.Context, symbol string) (venue.SymbolInfo, error) {
	var info venue.SymbolInfo
	if err := v.getJSON(ctx, "/symbol/"+url.PathEscape(symbol), &info); err != nil {
		return venue.SymbolInfo{}, err
	}
	if info.Symbol == "" {
		info.Symbol = symbol
	}
	return info, nil
}

func (v *Venue) SubmitOrder(ctx context.Context, req venue.OrderRequest) (venue.OrderResponse, error) {
	var resp venue.OrderResponse
	if err := v.write(ctx, "/orders", req, &resp); err != nil {
		return venue.OrderResponse{}, err
	}
	return resp, nil
}

type closeRequest struct {
	Symbol string          `json:"symbol"`
	Side   venue.Side      `json:"side"`
	Volume float64         `json:"volume"`
	Price  float64         `json:"price"`
	Order  venue.OrderSide `json:"order_side"`
}

func (v *Venue) ClosePosition(ctx context.Context, pos venue.Position, price float64) (venue.CloseResponse, error) {
	req := closeRequest{
		Symbol: pos.Symbol,
		Side:   pos.Side,
		Volume: pos.Volume,
		Price:  price,
		Order:  pos.CloseSide(),
	}
	var resp venue.CloseResponse
	if err := v.write(ctx, "/positions/"+url.PathEscape(pos.ExternalID)+"/close", req, &resp); err != nil {
		return venue.CloseResponse{}, err
	}
	return resp, nil
}

func (v *Venue) getJSON(ctx context.Context, path string, out any) error {
	if err := v.client.getJSON(ctx, path, out); err != nil {
		v.markTransportErr(err)
		return fmt.Errorf("%s: %w", v.name, err)
	}
	return nil
}

// write posts an order-shaped request. A 4xx carrying a JSON retcode is a
// venue answer and decodes into out; 5xx and transport failures are errors,
// which the retry loop treats as transient.
func (v *Venue) write(ctx context.Context, path string, body, out any) error {
	data, status, err := v.client.do(ctx, http.MethodPost, path, body)
	if err != nil {
		v.markTransportErr(err)
		return fmt.Errorf("%s POST %s: %w", v.name, path, err)
	}
	if status >= 500 {
		return fmt.Errorf("%s POST %s: status=%d body=%s", v.name, path, status, truncate(data))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s POST %s: decode status=%d: %w", v.name, path, status, err)
	}
	return nil
}

func (v *Venue) markTransportErr(err error) {
	if errors.Is(err, errTransport) && v.connected.Swap(false) {
		telemetry.Warnf("%s: gateway marked disconnected: %v", v.name, err)
	}
}

var _ venue.Venue = (*Venue)(nil)
