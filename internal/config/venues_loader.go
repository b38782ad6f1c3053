package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/charleschow/trade-bridge/internal/core/execution/lanes"
	"github.com/charleschow/trade-bridge/internal/core/retry"
	"github.com/charleschow/trade-bridge/internal/core/symbol"
)

// Adapter kinds.
const (
	KindGateway = "gateway"
	KindTopstep = "topstep"
)

type RetryConfig struct {
	Attempts         int `yaml:"attempts"`
	DelayMs          int `yaml:"delay_ms"`
	AttemptTimeoutMs int `yaml:"attempt_timeout_ms"`
}

type BreakerConfig struct {
	Threshold     int `yaml:"threshold"`
	ResetAfterSec int `yaml:"reset_after_sec"`
}

// VenueConfig is one entry under venues: in the YAML file.
type VenueConfig struct {
	Name    string `yaml:"name"`
	Kind    string `yaml:"kind"`
	Role    string `yaml:"role"`
	Enabled *bool  `yaml:"enabled"`
	Mock    bool   `yaml:"mock"`

	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	AccountID int64  `yaml:"account_id"`
	Bracket   bool   `yaml:"bracket"`

	Mode        string        `yaml:"mode"`
	OffsetTicks int           `yaml:"offset_ticks"`
	TimeoutMs   int           `yaml:"timeout_ms"`
	InfoTTLSec  int           `yaml:"info_ttl_sec"`
	KeepAlive   bool          `yaml:"keep_alive"`
	Retry       RetryConfig   `yaml:"retry"`
	Breaker     BreakerConfig `yaml:"breaker"`
	Rules       symbol.Rules  `yaml:"rules"`
}

type VenuesFile struct {
	Venues []VenueConfig `yaml:"venues"`
}

var ErrNoPrimaryVenue = errors.New("venues: exactly one enabled venue must have role primary")

func (v VenueConfig) IsEnabled() bool { return v.Enabled == nil || *v.Enabled }

// LoadVenues reads path, applies <VENUE>_API_KEY / <VENUE>_API_SECRET /
// <VENUE>_MOCK env overrides and validates the result. Disabled venues
// are dropped.
func LoadVenues(path string) ([]VenueConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read venues: %w", err)
	}
	return ParseVenues(data)
}

func ParseVenues(data []byte) ([]VenueConfig, error) {
	var f VenuesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse venues: %w", err)
	}

	seen := make(map[string]bool)
	primaries := 0
	var out []VenueConfig
	for i, v := range f.Venues {
		if v.Name == "" {
			return nil, fmt.Errorf("venues[%d]: missing name", i)
		}
		if !v.IsEnabled() {
			continue
		}
		if seen[v.Name] {
			return nil, fmt.Errorf("venues: duplicate name %q", v.Name)
		}
		seen[v.Name] = true

		prefix := envKey(v.Name)
		v.APIKey = envStr(prefix+"_API_KEY", v.APIKey)
		v.APISecret = envStr(prefix+"_API_SECRET", v.APISecret)
		v.Mock = envBool(prefix+"_MOCK", v.Mock)

		if v.Kind == "" {
			v.Kind = KindGateway
		}
		if v.Kind != KindGateway && v.Kind != KindTopstep {
			return nil, fmt.Errorf("venue %s: unknown kind %q", v.Name, v.Kind)
		}
		switch lanes.Role(v.Role) {
		case lanes.RolePrimary:
			primaries++
		case lanes.RoleSecondary:
		case "":
			v.Role = string(lanes.RoleSecondary)
		default:
			return nil, fmt.Errorf("venue %s: unknown role %q", v.Name, v.Role)
		}
		if _, err := symbol.ParseMode(v.Mode); err != nil {
			return nil, fmt.Errorf("venue %s: %w", v.Name, err)
		}
		if !v.Mock && v.BaseURL == "" && v.Kind == KindGateway {
			return nil, fmt.Errorf("venue %s: base_url is required", v.Name)
		}
		out = append(out, v)
	}
	if primaries != 1 {
		return nil, ErrNoPrimaryVenue
	}
	return out, nil
}

// LaneConfig converts the YAML form into the lane definition.
func (v VenueConfig) LaneConfig() lanes.Config {
	mode, _ := symbol.ParseMode(v.Mode)
	cfg := lanes.Config{
		Name:          v.Name,
		Role:          lanes.Role(v.Role),
		Rules:         v.Rules,
		Mode:          mode,
		OffsetTicks:   v.OffsetTicks,
		Timeout:       ms(v.TimeoutMs),
		InfoTTL:       time.Duration(v.InfoTTLSec) * time.Second,
		Mock:          v.Mock,
		BreakerThresh: v.Breaker.Threshold,
		BreakerReset:  time.Duration(v.Breaker.ResetAfterSec) * time.Second,
	}
	if v.Retry.Attempts > 0 {
		def := retry.DefaultPolicy()
		cfg.Retry = retry.Policy{
			Attempts:       v.Retry.Attempts,
			Delay:          orDefault(ms(v.Retry.DelayMs), def.Delay),
			AttemptTimeout: orDefault(ms(v.Retry.AttemptTimeoutMs), def.AttemptTimeout),
		}
	}
	return cfg
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
