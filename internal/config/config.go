package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Inbound HTTP
	Host string
	Port int
	// WebhookSecret is the shared secret every signal must carry.
	WebhookSecret string
	// AdminSecret guards /breakers/{venue}/reset. Falls back to the webhook secret.
	AdminSecret string

	// Venues
	VenuesPath string

	// Ledger
	LedgerDSN string

	// Dispatch
	DispatchWorkers int
	DispatchQueue   int
	DispatchTimeout time.Duration

	// Alerts
	DiscordWebhookURL string

	// Telemetry
	LogLevel string
}

func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Host:          envStr("BRIDGE_HOST", "0.0.0.0"),
		Port:          envInt("BRIDGE_PORT", 5001),
		WebhookSecret: envStr("WEBHOOK_SECRET", ""),
		AdminSecret:   envStr("BRIDGE_ADMIN_SECRET", envStr("WEBHOOK_SECRET", "")),

		VenuesPath: envStr("VENUES_CONFIG_PATH", "config/venues.yaml"),

		LedgerDSN: envStr("LEDGER_DSN", "data/trades.db"),

		DispatchWorkers: envInt("DISPATCH_WORKERS", 4),
		DispatchQueue:   envInt("DISPATCH_QUEUE", 64),
		DispatchTimeout: time.Duration(envInt("DISPATCH_TIMEOUT_MS", 4000)) * time.Millisecond,

		DiscordWebhookURL: envStr("DISCORD_WEBHOOK_URL", ""),

		LogLevel: envStr("LOG_LEVEL", "info"),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// envKey turns a venue name into an env prefix: "top-step" -> "TOP_STEP".
func envKey(name string) string {
	return strings.ToUpper(strings.NewReplacer("-", "_", ".", "_", " ", "_").Replace(name))
}
