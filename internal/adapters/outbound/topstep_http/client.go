package topstep_http

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

const DefaultBaseURL = "https://gateway-api-demo.s2f.projectx.com"

var (
	ErrUnauthorized = errors.New("topstepx: unauthorized (check API key)")
	errTransport    = errors.New("topstepx transport")
)

// apiStatus is the envelope every ProjectX response carries.
type apiStatus struct {
	Success      bool   `json:"success"`
	ErrorCode    int    `json:"errorCode"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

type Client struct {
	baseURL     string
	apiKey      string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		rateLimiter: rate.NewLimiter(rate.Limit(10), 10),
	}
}

// do sends one request. Transport failures, 401 and 5xx/429 come back as
// errors; any other status returns the body for the caller to decode.
func (c *Client) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errTransport, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	telemetry.Debugf("topstepx: %s %s -> %d (%s)", method, path, resp.StatusCode, time.Since(start))

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrUnauthorized
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("%s %s: status=%d body=%s", method, path, resp.StatusCode, truncate(respBody))
	}
	return respBody, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	data, err := c.do(ctx, http.MethodPost, path, body)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w (body=%s)", path, err, truncate(data))
	}
	return nil
}

// ping hits the profile endpoint. Reaching the server is enough: 404 still
// proves the session and key work.
func (c *Client) ping(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/api/User/profile", nil)
	return err
}

func truncate(b []byte) string {
	const max = 256
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
