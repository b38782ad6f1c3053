package lanes

import (
	"time"

	"github.com/charleschow/trade-bridge/internal/core/retry"
	"github.com/charleschow/trade-bridge/internal/core/symbol"
	"github.com/charleschow/trade-bridge/internal/core/venue"
)

type Role string

const (
	RolePrimary   Role = "primary"
	RoleSecondary Role = "secondary"
)

// Lane is one venue's execution path: the venue client plus everything that
// is scoped to that venue (translation rules, retry budget, symbol-info
// cache and, for secondaries, a circuit breaker).
type Lane struct {
	Name  string
	Role  Role
	Venue venue.Venue
	Rules symbol.Rules
	Mode  symbol.Mode
	Retry retry.Policy
	// OffsetTicks is how far past the touch a marketable limit is priced.
	OffsetTicks int
	// Timeout bounds one whole dispatch on a secondary lane.
	Timeout time.Duration
	Info    *venue.InfoCache
	Breaker *Breaker
	// Mock lanes translate and then report success without any venue call.
	Mock bool
}

// Config is the venue-independent part of a lane definition.
type Config struct {
	Name          string
	Role          Role
	Rules         symbol.Rules
	Mode          symbol.Mode
	Retry         retry.Policy
	OffsetTicks   int
	Timeout       time.Duration
	InfoTTL       time.Duration
	Mock          bool
	BreakerThresh int
	BreakerReset  time.Duration
}

func NewLane(cfg Config, v venue.Venue) *Lane {
	if cfg.InfoTTL <= 0 {
		cfg.InfoTTL = 10 * time.Minute
	}
	if cfg.Retry.Attempts <= 0 {
		cfg.Retry = retry.DefaultPolicy()
	}
	l := &Lane{
		Name:        cfg.Name,
		Role:        cfg.Role,
		Venue:       v,
		Rules:       cfg.Rules,
		Mode:        cfg.Mode,
		Retry:       cfg.Retry,
		OffsetTicks: cfg.OffsetTicks,
		Timeout:     cfg.Timeout,
		Info:        venue.NewInfoCache(cfg.InfoTTL),
		Mock:        cfg.Mock,
	}
	if cfg.Role == RoleSecondary {
		l.Breaker = NewBreaker(cfg.Name, cfg.BreakerThresh, cfg.BreakerReset)
	}
	return l
}

func (l *Lane) IsPrimary() bool { return l.Role == RolePrimary }
