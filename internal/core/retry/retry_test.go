package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charleschow/trade-bridge/internal/core/venue"
)

var fast = Policy{Attempts: 3, Delay: time.Millisecond, AttemptTimeout: 50 * time.Millisecond}

// scripted returns responses in order, repeating the last.
func scripted(calls *int, replies ...func() (venue.OrderResponse, error)) func(context.Context) (venue.OrderResponse, error) {
	return func(context.Context) (venue.OrderResponse, error) {
		r := replies[min(*calls, len(replies)-1)]
		*calls++
		return r()
	}
}

func done() (venue.OrderResponse, error) {
	return venue.OrderResponse{Retcode: venue.RetcodeDone, NativeOrderID: "42"}, nil
}

func transient() (venue.OrderResponse, error) {
	return venue.OrderResponse{Retcode: venue.RetcodeTimeout}, nil
}

func unreachable() (venue.OrderResponse, error) {
	return venue.OrderResponse{}, errors.New("dial tcp: connection refused")
}

func TestDo_SucceedsFirstTry(t *testing.T) {
	var calls int
	resp, attempts, err := Do(context.Background(), fast, "mt5", scripted(&calls, done))

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, "42", resp.NativeOrderID)
}

func TestDo_CallsMinOfSuccessAndBudget(t *testing.T) {
	cases := []struct {
		name      string
		replies   []func() (venue.OrderResponse, error)
		wantCalls int
		wantErr   error
	}{
		{"success on 2nd", []func() (venue.OrderResponse, error){transient, done}, 2, nil},
		{"success on 3rd", []func() (venue.OrderResponse, error){unreachable, transient, done}, 3, nil},
		{"success on 4th never reached", []func() (venue.OrderResponse, error){transient, transient, transient, done}, 3, ErrExhausted},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var calls int
			resp, attempts, err := Do(context.Background(), fast, "mt5", scripted(&calls, tc.replies...))

			assert.Equal(t, tc.wantCalls, calls)
			assert.Equal(t, tc.wantCalls, attempts)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "42", resp.NativeOrderID)
		})
	}
}

func TestDo_EmptyReplyResubmits(t *testing.T) {
	var calls int
	empty := func() (venue.OrderResponse, error) { return venue.OrderResponse{}, nil }

	resp, attempts, err := Do(context.Background(), fast, "mt5", scripted(&calls, empty, done))

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, "42", resp.NativeOrderID)

	calls = 0
	_, attempts, err = Do(context.Background(), fast, "mt5", scripted(&calls, empty))
	assert.ErrorIs(t, err, ErrExhausted)
	assert.Equal(t, 3, attempts)
	var rej *venue.RejectError
	assert.False(t, errors.As(err, &rej), "an empty reply is never a venue rejection")
}

func TestDo_FatalStopsImmediately(t *testing.T) {
	var calls int
	reject := func() (venue.OrderResponse, error) {
		return venue.OrderResponse{Retcode: venue.RetcodeInvalidVolume, Comment: "Invalid volume"}, nil
	}

	_, attempts, err := Do(context.Background(), fast, "mt5", scripted(&calls, reject, done))

	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, attempts)
	var rej *venue.RejectError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, "Invalid volume", rej.Message)
	assert.Equal(t, venue.RetcodeInvalidVolume, rej.Code)
}

func TestDo_AdapterRejectErrorIsFatal(t *testing.T) {
	var calls int
	reject := func() (venue.OrderResponse, error) {
		return venue.OrderResponse{}, &venue.RejectError{Venue: "topstep", Code: venue.RetcodeRejected, Message: "Outside trading hours"}
	}

	_, _, err := Do(context.Background(), fast, "topstep", scripted(&calls, reject))

	assert.Equal(t, 1, calls)
	assert.EqualError(t, err, "topstep rejected: Outside trading hours (10006)")
}

func TestDo_AttemptTimeoutIsTransient(t *testing.T) {
	var calls int
	hang := func(ctx context.Context) (venue.OrderResponse, error) {
		calls++
		if calls < 3 {
			<-ctx.Done()
			return venue.OrderResponse{}, ctx.Err()
		}
		return done()
	}

	_, attempts, err := Do(context.Background(), Policy{Attempts: 3, Delay: time.Millisecond, AttemptTimeout: 10 * time.Millisecond}, "ibkr", hang)

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDo_ParentCancelStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int
	call := func(context.Context) (venue.OrderResponse, error) {
		calls++
		cancel()
		return transient()
	}

	_, _, err := Do(ctx, Policy{Attempts: 5, Delay: time.Second}, "mt5", call)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
