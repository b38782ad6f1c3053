// Package retry resubmits idempotent venue calls that fail transiently.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charleschow/trade-bridge/internal/core/venue"
	"github.com/charleschow/trade-bridge/internal/telemetry"
)

// ErrExhausted is returned once every attempt failed transiently.
var ErrExhausted = errors.New("retry exhausted")

// Response is any venue reply carrying a return code.
type Response interface {
	Code() venue.Retcode
	Message() string
}

type Policy struct {
	Attempts       int
	Delay          time.Duration
	AttemptTimeout time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		Attempts:       3,
		Delay:          500 * time.Millisecond,
		AttemptTimeout: 3 * time.Second,
	}
}

func (p Policy) normalized() Policy {
	if p.Attempts <= 0 {
		p.Attempts = 1
	}
	return p
}

// Do invokes call until it returns RetcodeDone, a fatal retcode, or the
// attempt budget runs out. Transport errors, empty replies (no retcode) and
// transient retcodes resubmit the identical request after p.Delay; any
// other retcode returns a
// *venue.RejectError carrying the venue's message. The attempt count is
// returned in every case.
func Do[R Response](ctx context.Context, p Policy, venueName string, call func(context.Context) (R, error)) (R, int, error) {
	p = p.normalized()

	var (
		zero    R
		lastErr error
	)
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		if attempt > 1 {
			telemetry.Metrics.OrderRetries.Inc()
			select {
			case <-ctx.Done():
				return zero, attempt - 1, fmt.Errorf("%s: retry aborted after %d attempts: %w", venueName, attempt-1, ctx.Err())
			case <-time.After(p.Delay):
			}
		}

		resp, err := attemptOnce(ctx, p.AttemptTimeout, call)
		if err != nil {
			var reject *venue.RejectError
			if errors.As(err, &reject) {
				return resp, attempt, err
			}
			if ctx.Err() != nil {
				return resp, attempt, fmt.Errorf("%s: %w", venueName, ctx.Err())
			}
			lastErr = err
			telemetry.Warnf("retry: %s attempt %d/%d transport error: %v", venueName, attempt, p.Attempts, err)
			continue
		}

		code := resp.Code()
		switch {
		case code == venue.RetcodeDone:
			return resp, attempt, nil
		case code == venue.RetcodeUnknown:
			lastErr = errors.New("empty reply, no retcode")
			telemetry.Warnf("retry: %s attempt %d/%d empty reply", venueName, attempt, p.Attempts)
		case code.Transient():
			lastErr = fmt.Errorf("retcode %s: %s", code, resp.Message())
			telemetry.Warnf("retry: %s attempt %d/%d transient %s", venueName, attempt, p.Attempts, code)
		default:
			return resp, attempt, &venue.RejectError{Venue: venueName, Code: code, Message: resp.Message()}
		}
	}
	return zero, p.Attempts, fmt.Errorf("%s: %w after %d attempts: %v", venueName, ErrExhausted, p.Attempts, lastErr)
}

func attemptOnce[R Response](ctx context.Context, timeout time.Duration, call func(context.Context) (R, error)) (R, error) {
	if timeout <= 0 {
		return call(ctx)
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return call(actx)
}
