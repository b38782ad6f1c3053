package gateway_http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/charleschow/trade-bridge/internal/telemetry"
)

// errTransport marks failures where no HTTP response was received.
var errTransport = errors.New("gateway transport")

// Client is the transport to one gateway process.
type Client struct {
	name         string
	baseURL      string
	httpClient   *http.Client
	signer       *Signer
	readLimiter  *rate.Limiter
	writeLimiter *rate.Limiter
}

func NewClient(name, baseURL string, timeout time.Duration, signer *Signer) *Client {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Client{
		name:    name,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		signer:       signer,
		readLimiter:  rate.NewLimiter(rate.Limit(20), 20),
		writeLimiter: rate.NewLimiter(rate.Limit(10), 10),
	}
}

// do sends one request and returns the body and status. Only transport
// failures are returned as errors; HTTP status handling is the caller's.
func (c *Client) do(ctx context.Context, method, path string, body any) ([]byte, int, error) {
	lim := c.readLimiter
	if method != http.MethodGet {
		lim = c.writeLimiter
	}
	if err := lim.Wait(ctx); err != nil {
		return nil, 0, fmt.Errorf("rate limit wait: %w", err)
	}

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, 0, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	c.signer.Sign(req)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", errTransport, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}

	telemetry.Debugf("%s: %s %s -> %d (%s)", c.name, method, path, resp.StatusCode, time.Since(start))
	return respBody, resp.StatusCode, nil
}

// getJSON decodes a 2xx body into out.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	body, status, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("GET %s: status=%d body=%s", path, status, truncate(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func truncate(b []byte) string {
	const max = 256
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
