package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/charleschow/trade-bridge/internal/events"
	"github.com/charleschow/trade-bridge/internal/telemetry"
)

type Notifier struct {
	webhookURL string
	httpClient *http.Client
}

func NewNotifier(webhookURL string) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

func (n *Notifier) Enabled() bool { return n.webhookURL != "" }

type Embed struct {
	Title       string  `json:"title,omitempty"`
	Description string  `json:"description,omitempty"`
	Color       int     `json:"color,omitempty"`
	Fields      []Field `json:"fields,omitempty"`
	Timestamp   string  `json:"timestamp,omitempty"`
}

type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type webhookPayload struct {
	Content string  `json:"content,omitempty"`
	Embeds  []Embed `json:"embeds,omitempty"`
}

func (n *Notifier) SendEmbed(ctx context.Context, embed Embed) error {
	if embed.Timestamp == "" {
		embed.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	return n.send(ctx, webhookPayload{Embeds: []Embed{embed}})
}

func (n *Notifier) send(ctx context.Context, payload webhookPayload) error {
	if !n.Enabled() {
		return nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal discord payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("discord webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		telemetry.Warnf("discord: rate limited")
		return fmt.Errorf("discord rate limited")
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("discord webhook: status=%d", resp.StatusCode)
	}

	return nil
}

const (
	ColorRed    = 0xED4245
	ColorYellow = 0xF1C40F
)

// ErrorAlert posts a critical error. origin names the component ("System",
// "Webhook", a venue).
func (n *Notifier) ErrorAlert(ctx context.Context, origin, msg string) error {
	return n.SendEmbed(ctx, Embed{
		Title:       fmt.Sprintf("CRITICAL ERROR (%s)", origin),
		Description: "```" + msg + "```",
		Color:       ColorRed,
	})
}

func (n *Notifier) ExecutionFailed(ctx context.Context, r events.ExecutionResult) error {
	return n.SendEmbed(ctx, Embed{
		Title:       fmt.Sprintf("Execution failed (%s)", r.Venue),
		Description: "```" + r.Detail + "```",
		Color:       ColorRed,
		Fields: []Field{
			{Name: "Signal", Value: fmt.Sprintf("%s %v %s", r.Action, r.Volume, r.Symbol), Inline: true},
			{Name: "State", Value: string(r.State), Inline: true},
			{Name: "Attempts", Value: fmt.Sprintf("%d", r.Attempts), Inline: true},
		},
	})
}

func (n *Notifier) BreakerOpened(ctx context.Context, ev events.BreakerEvent) error {
	return n.SendEmbed(ctx, Embed{
		Title:       fmt.Sprintf("Circuit breaker open (%s)", ev.Venue),
		Description: fmt.Sprintf("%d consecutive failures; dispatch to %s is paused until reset.", ev.Failures, ev.Venue),
		Color:       ColorYellow,
	})
}
