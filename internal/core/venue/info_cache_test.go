package venue_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charleschow/trade-bridge/internal/core/venue"
	"github.com/charleschow/trade-bridge/internal/core/venue/venuetest"
)

func TestInfoCache_HitsVenueOnce(t *testing.T) {
	fake := venuetest.New("mt5").WithTick("MNQ", 0.25)
	cache := venue.NewInfoCache(time.Minute)
	ctx := context.Background()

	for range 3 {
		info, err := cache.Get(ctx, fake, "MNQ")
		require.NoError(t, err)
		assert.Equal(t, 0.25, info.TickSize)
	}
	assert.Equal(t, 1, fake.Calls())
}

func TestInfoCache_InvalidateRefetches(t *testing.T) {
	fake := venuetest.New("mt5").WithTick("MNQ", 0.25)
	cache := venue.NewInfoCache(time.Minute)
	ctx := context.Background()

	_, err := cache.Get(ctx, fake, "MNQ")
	require.NoError(t, err)
	cache.Invalidate("MNQ")
	_, err = cache.Get(ctx, fake, "MNQ")
	require.NoError(t, err)

	assert.Equal(t, 2, fake.Calls())
}

func TestInfoCache_RejectsZeroTick(t *testing.T) {
	fake := venuetest.New("mt5").WithTick("BAD", 0)
	cache := venue.NewInfoCache(time.Minute)

	_, err := cache.Get(context.Background(), fake, "BAD")
	assert.Error(t, err)
}

func TestRetcode_Transient(t *testing.T) {
	assert.True(t, venue.RetcodeTimeout.Transient())
	assert.True(t, venue.RetcodeConnection.Transient())
	assert.False(t, venue.RetcodeRejected.Transient())
	assert.False(t, venue.RetcodeDone.Transient())
}

func TestRejectError_Verbatim(t *testing.T) {
	err := &venue.RejectError{Venue: "mt5", Code: venue.RetcodeNoMoney, Message: "Not enough money"}
	assert.Equal(t, "mt5 rejected: Not enough money (10019)", err.Error())
}
