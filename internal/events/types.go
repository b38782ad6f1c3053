package events

import (
	"strings"
	"time"
)

type Action string

const (
	ActionBuy     Action = "BUY"
	ActionSell    Action = "SELL"
	ActionClose   Action = "CLOSE"
	ActionExit    Action = "EXIT"
	ActionFlatten Action = "FLATTEN"
)

// IsCloseOnly reports whether the action flattens exposure instead of opening it.
func (a Action) IsCloseOnly() bool {
	return a == ActionClose || a == ActionExit || a == ActionFlatten
}

// ParseAction upper-cases s. The result is not guaranteed to be a known action.
func ParseAction(s string) Action {
	return Action(strings.ToUpper(strings.TrimSpace(s)))
}

type OrderType string

const (
	OrderMarket OrderType = "MARKET"
	OrderLimit  OrderType = "LIMIT"
)

// OrderIntent is the authenticated, immutable form of one inbound signal.
// Zero Price/StopLoss/TakeProfit mean the caller did not supply them.
type OrderIntent struct {
	ID         string    `json:"id"`
	Symbol     string    `json:"symbol"`
	Action     Action    `json:"action"`
	Volume     float64   `json:"volume"`
	OrderType  OrderType `json:"type"`
	Price      float64   `json:"price,omitempty"`
	StopLoss   float64   `json:"sl,omitempty"`
	TakeProfit float64   `json:"tp,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

func (i OrderIntent) HasPrice() bool   { return i.Price > 0 }
func (i OrderIntent) HasBracket() bool { return i.StopLoss > 0 || i.TakeProfit > 0 }

type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusError   Status = "ERROR"
	StatusSkipped Status = "SKIPPED"
)

// State is the terminal step an intent reached on one venue.
type State string

const (
	StateReceived       State = "RECEIVED"
	StateAuthenticated  State = "AUTHENTICATED"
	StateCloseOnly      State = "CLOSE_ONLY"
	StateNetting        State = "NETTING"
	StateFullyNetted    State = "FULLY_NETTED"
	StateDone           State = "DONE"
	StateRemainderOpen  State = "REMAINDER_OPEN"
	StateSubmitted      State = "SUBMITTED"
	StateFilled         State = "FILLED"
	StateRejected       State = "REJECTED"
	StateRetryExhausted State = "RETRY_EXHAUSTED"
	StateUnavailable    State = "UNAVAILABLE"
	StateBreakerOpen    State = "BREAKER_OPEN"
	StateMock           State = "MOCK"
)

// ExecutionResult is the outcome of one intent on one venue. It is
// published on the bus and becomes exactly one ledger row.
type ExecutionResult struct {
	SignalID      string  `json:"signal_id"`
	Venue         string  `json:"venue"`
	Symbol        string  `json:"symbol"`
	Action        Action  `json:"action"`
	Volume        float64 `json:"volume"`
	Status        Status  `json:"status"`
	State         State   `json:"state"`
	NativeOrderID string  `json:"native_order_id,omitempty"`
	ExpectedPrice float64 `json:"expected_price"`
	ExecutedPrice float64 `json:"executed_price"`
	Slippage      float64 `json:"slippage"`
	LatencyMs     float64 `json:"latency_ms"`
	Attempts      int     `json:"attempts"`
	Detail        string  `json:"detail,omitempty"`
	// Error mirrors Detail for failed results so HTTP callers see an error field.
	Error string    `json:"error,omitempty"`
	At    time.Time `json:"at"`
}

// BreakerEvent is published when a venue's breaker opens, half-opens or resets.
type BreakerEvent struct {
	Venue    string `json:"venue"`
	State    string `json:"state"`
	Failures int    `json:"failures"`
}
