package webhook

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/charleschow/trade-bridge/internal/events"
	"github.com/charleschow/trade-bridge/internal/telemetry"
)

// ErrUnauthorized is returned for a missing or mismatched shared secret.
var ErrUnauthorized = errors.New("unauthorized")

// ValidationError is a malformed or incomplete signal. Fields maps the JSON
// field name to the failed rule.
type ValidationError struct {
	Reason string
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "invalid signal: " + e.Reason
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + " " + e.Fields[k]
	}
	return "invalid signal: " + strings.Join(parts, ", ")
}

// flexFloat accepts a JSON number or a numeric string; TradingView alert
// templates produce both depending on how placeholders are quoted.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil
		}
		b = []byte(s)
	}
	v, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("not numeric: %s", b)
	}
	*f = flexFloat(v)
	return nil
}

// signal is the wire payload. Action is upper-cased before validation.
type signal struct {
	Action     string    `json:"action" validate:"required,oneof=BUY SELL CLOSE EXIT FLATTEN"`
	Symbol     string    `json:"symbol" validate:"required"`
	Volume     flexFloat `json:"volume" validate:"required_if=Action BUY,required_if=Action SELL,gte=0"`
	Type       string    `json:"type" validate:"omitempty,oneof=MARKET LIMIT"`
	Price      flexFloat `json:"price" validate:"gte=0"`
	StopLoss   flexFloat `json:"sl" validate:"gte=0"`
	TakeProfit flexFloat `json:"tp" validate:"gte=0"`
}

// Authenticator turns raw webhook bodies into order intents.
type Authenticator struct {
	secret   []byte
	validate *validator.Validate
	now      func() time.Time
}

func NewAuthenticator(secret string) *Authenticator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Authenticator{secret: []byte(secret), validate: v, now: time.Now}
}

// envelope carries only the secret so it can be checked before the
// signal fields are parsed.
type envelope struct {
	Secret json.RawMessage `json:"secret"`
}

// Authenticate checks the shared secret in constant time, then parses and
// validates the fields. Only malformed JSON is reported before the secret
// check. origin is only used for the failure log line. The secret is not
// carried into the returned intent.
func (a *Authenticator) Authenticate(body []byte, origin string) (events.OrderIntent, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		telemetry.Metrics.ValidationFailures.Inc()
		return events.OrderIntent{}, &ValidationError{Reason: err.Error()}
	}

	var secret string
	if err := json.Unmarshal(env.Secret, &secret); err != nil ||
		len(a.secret) == 0 || subtle.ConstantTimeCompare([]byte(secret), a.secret) != 1 {
		telemetry.Metrics.AuthFailures.Inc()
		telemetry.Warnf("webhook: unauthorized signal from %s", origin)
		return events.OrderIntent{}, ErrUnauthorized
	}

	var s signal
	if err := json.Unmarshal(body, &s); err != nil {
		telemetry.Metrics.ValidationFailures.Inc()
		return events.OrderIntent{}, &ValidationError{Reason: err.Error()}
	}

	s.Action = strings.ToUpper(strings.TrimSpace(s.Action))
	s.Symbol = strings.TrimSpace(s.Symbol)
	s.Type = strings.ToUpper(strings.TrimSpace(s.Type))

	if err := a.validate.Struct(s); err != nil {
		telemetry.Metrics.ValidationFailures.Inc()
		verr := &ValidationError{Reason: err.Error(), Fields: map[string]string{}}
		var fields validator.ValidationErrors
		if errors.As(err, &fields) {
			for _, fe := range fields {
				verr.Fields[fe.Field()] = fe.Tag()
			}
		}
		return events.OrderIntent{}, verr
	}

	orderType := events.OrderType(s.Type)
	if orderType == "" {
		orderType = events.OrderMarket
	}
	return events.OrderIntent{
		ID:         uuid.NewString(),
		Symbol:     s.Symbol,
		Action:     events.ParseAction(s.Action),
		Volume:     float64(s.Volume),
		OrderType:  orderType,
		Price:      float64(s.Price),
		StopLoss:   float64(s.StopLoss),
		TakeProfit: float64(s.TakeProfit),
		ReceivedAt: a.now(),
	}, nil
}
