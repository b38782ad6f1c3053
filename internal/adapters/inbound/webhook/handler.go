// Package webhook is the inbound HTTP surface: signal intake, health and
// operator routes.
package webhook

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/charleschow/trade-bridge/internal/core/execution/lanes"
	"github.com/charleschow/trade-bridge/internal/events"
	"github.com/charleschow/trade-bridge/internal/telemetry"
)

const maxBodyBytes = 64 << 10

// Executor runs the primary path for an intent. Satisfied by *execution.Service.
type Executor interface {
	Handle(ctx context.Context, intent events.OrderIntent) (events.ExecutionResult, error)
}

// HealthSource renders the /health body. Satisfied by *status.Tracker.
type HealthSource interface {
	Snapshot() map[string]string
}

// LaneLookup finds a lane by venue name. Satisfied by *execution.LaneRouter.
type LaneLookup interface {
	Get(name string) (*lanes.Lane, bool)
}

// Handler serves:
//
//	POST /webhook                 -> signal intake
//	GET  /health                  -> status snapshot
//	POST /breakers/{venue}/reset  -> manual breaker recovery (X-Bridge-Secret)
type Handler struct {
	auth   *Authenticator
	exec   Executor
	health HealthSource
	lanes  LaneLookup
	secret string
	// OnPanic is called with the recovered value; used for alerting.
	OnPanic func(v any)
}

func NewHandler(auth *Authenticator, exec Executor, health HealthSource, lanes LaneLookup, adminSecret string) *Handler {
	return &Handler{
		auth:   auth,
		exec:   exec,
		health: health,
		lanes:  lanes,
		secret: adminSecret,
	}
}

// RegisterRoutes wires HTTP routes onto the provided mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("POST /webhook", h.recoverer(http.HandlerFunc(h.webhook)))
	mux.HandleFunc("GET /health", h.healthCheck)
	mux.Handle("POST /breakers/{venue}/reset", h.recoverer(http.HandlerFunc(h.resetBreaker)))
}

func (h *Handler) webhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable body"})
		return
	}

	intent, err := h.auth.Authenticate(body, origin(r))
	if err != nil {
		var verr *ValidationError
		switch {
		case errors.Is(err, ErrUnauthorized):
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		case errors.As(err, &verr):
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": verr.Error(), "fields": verr.Fields})
		default:
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
		return
	}

	telemetry.Infof("webhook: signal %s %s %s vol=%v type=%s", intent.ID, intent.Action, intent.Symbol, intent.Volume, intent.OrderType)
	// An order in flight must not be abandoned because the caller hung up.
	res, err := h.exec.Handle(context.WithoutCancel(r.Context()), intent)
	if err != nil {
		telemetry.Errorf("webhook: signal %s failed: %v", intent.ID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	telemetry.Infof("webhook: signal %s -> %s %s in %s", intent.ID, res.Venue, res.Status, time.Since(start))
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) healthCheck(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.health.Snapshot())
}

func (h *Handler) resetBreaker(w http.ResponseWriter, r *http.Request) {
	got := r.Header.Get("X-Bridge-Secret")
	if h.secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
		telemetry.Warnf("webhook: unauthorized breaker reset from %s", origin(r))
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}
	name := r.PathValue("venue")
	lane, ok := h.lanes.Get(name)
	if !ok || lane.Breaker == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no breaker for venue " + name})
		return
	}
	lane.Breaker.Reset()
	telemetry.Infof("webhook: breaker %s reset by %s", name, origin(r))
	writeJSON(w, http.StatusOK, map[string]any{"venue": name, "state": lane.Breaker.State().String()})
}

func (h *Handler) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				telemetry.Errorf("webhook: panic serving %s %s: %v", r.Method, r.URL.Path, v)
				if h.OnPanic != nil {
					h.OnPanic(v)
				}
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func origin(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		telemetry.Warnf("webhook: encode response: %v", err)
	}
}
