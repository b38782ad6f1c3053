package fanout

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/charleschow/trade-bridge/internal/events"
	"github.com/charleschow/trade-bridge/internal/telemetry"
)

const (
	minBackoff = 1 * time.Second
	maxBackoff = 30 * time.Second
)

// Client connects to a bridge's /ws stream and republishes received
// events onto a local in-process bus.
type Client struct {
	addr  string
	venue string
	bus   *events.Bus
}

// NewClient dials addr (host:port). venue may be empty for every venue.
func NewClient(addr, venue string, bus *events.Bus) *Client {
	return &Client{
		addr:  addr,
		venue: venue,
		bus:   bus,
	}
}

// ConnectWithRetry connects to the stream and reconnects on failure
// with exponential backoff. Blocks until ctx is cancelled.
func (c *Client) ConnectWithRetry(ctx context.Context) {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}

		connStart := time.Now()
		err := c.connect(ctx)
		if ctx.Err() != nil {
			return
		}

		if time.Since(connStart) > time.Minute {
			attempt = 0
		}

		attempt++
		backoff := time.Duration(float64(minBackoff) * math.Pow(2, float64(min(attempt-1, 5))))
		if backoff > maxBackoff {
			backoff = maxBackoff
		}

		if err != nil {
			telemetry.Warnf("fanout: connection lost (attempt %d): %v, retrying in %s", attempt, err, backoff)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
	}
}

func (c *Client) url() string {
	u := url.URL{Scheme: "ws", Host: c.addr, Path: "/ws"}
	if c.venue != "" {
		u.RawQuery = url.Values{"venue": {c.venue}}.Encode()
	}
	return u.String()
}

func (c *Client) connect(ctx context.Context) error {
	target := c.url()
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", target, err)
	}
	defer conn.Close()

	// Unblock ReadMessage on shutdown.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	telemetry.Infof("fanout: connected to %s", target)

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read: %w", err)
		}

		evt, err := UnmarshalEvent(msg)
		if err != nil {
			telemetry.Warnf("fanout: unmarshal error: %v", err)
			continue
		}

		c.bus.Publish(evt)
	}
}
