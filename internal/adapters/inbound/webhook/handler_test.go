package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charleschow/trade-bridge/internal/core/execution/lanes"
	"github.com/charleschow/trade-bridge/internal/core/venue/venuetest"
	"github.com/charleschow/trade-bridge/internal/events"
)

type stubExecutor struct {
	got   []events.OrderIntent
	res   events.ExecutionResult
	err   error
	panic bool
}

func (s *stubExecutor) Handle(_ context.Context, in events.OrderIntent) (events.ExecutionResult, error) {
	if s.panic {
		panic("venue client nil")
	}
	s.got = append(s.got, in)
	return s.res, s.err
}

type stubHealth map[string]string

func (s stubHealth) Snapshot() map[string]string { return s }

type stubLanes map[string]*lanes.Lane

func (s stubLanes) Get(name string) (*lanes.Lane, bool) {
	l, ok := s[name]
	return l, ok
}

func server(t *testing.T, exec *stubExecutor, ls stubLanes) *httptest.Server {
	t.Helper()
	h := NewHandler(NewAuthenticator("k"), exec, stubHealth{"status": "connected", "last_trade": "None", "topstep_status": "disconnected"}, ls, "admin")
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func TestWebhook_StatusCodes(t *testing.T) {
	exec := &stubExecutor{res: events.ExecutionResult{Venue: "mt5", Status: events.StatusSuccess, NativeOrderID: "77"}}
	srv := server(t, exec, nil)

	resp, _ := post(t, srv.URL+"/webhook", `{"secret":"bad","action":"BUY","symbol":"X","volume":1}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = post(t, srv.URL+"/webhook", `{"secret":"bad","action":"BUY","symbol":"X","volume":"abc"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = post(t, srv.URL+"/webhook", `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := post(t, srv.URL+"/webhook", `{"secret":"k","action":"BUY","symbol":"X"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["fields"], "volume")

	resp, body = post(t, srv.URL+"/webhook", `{"secret":"k","action":"BUY","symbol":"X","volume":1}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "77", body["native_order_id"])
	assert.Equal(t, "SUCCESS", body["status"])
	require.Len(t, exec.got, 1)
}

func TestWebhook_RecoverableFailureIs200(t *testing.T) {
	exec := &stubExecutor{res: events.ExecutionResult{Venue: "mt5", Status: events.StatusError, Detail: "No money", Error: "No money"}}
	srv := server(t, exec, nil)

	resp, body := post(t, srv.URL+"/webhook", `{"secret":"k","action":"SELL","symbol":"X","volume":1}`)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "No money", body["error"])
}

func TestWebhook_PanicIs500(t *testing.T) {
	var alerted any
	exec := &stubExecutor{panic: true}
	h := NewHandler(NewAuthenticator("k"), exec, stubHealth{}, stubLanes{}, "admin")
	h.OnPanic = func(v any) { alerted = v }
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{"secret":"k","action":"BUY","symbol":"X","volume":1}`)))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "venue client nil", alerted)
}

func TestHealth(t *testing.T) {
	srv := server(t, &stubExecutor{}, nil)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

	assert.Equal(t, "connected", body["status"])
	assert.Equal(t, "disconnected", body["topstep_status"])
}

func TestBreakerReset(t *testing.T) {
	lane := lanes.NewLane(lanes.Config{Name: "ibkr", Role: lanes.RoleSecondary, BreakerThresh: 1}, venuetest.New("ibkr"))
	lane.Breaker.RecordFailure()
	require.Equal(t, lanes.BreakerOpen, lane.Breaker.State())
	srv := server(t, &stubExecutor{}, stubLanes{"ibkr": lane})

	do := func(path, secret string) int {
		req, _ := http.NewRequest(http.MethodPost, srv.URL+path, nil)
		if secret != "" {
			req.Header.Set("X-Bridge-Secret", secret)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusUnauthorized, do("/breakers/ibkr/reset", ""))
	assert.Equal(t, http.StatusUnauthorized, do("/breakers/ibkr/reset", "k"))
	assert.Equal(t, http.StatusNotFound, do("/breakers/mt5/reset", "admin"))
	assert.Equal(t, http.StatusOK, do("/breakers/ibkr/reset", "admin"))
	assert.Equal(t, lanes.BreakerClosed, lane.Breaker.State())
}
