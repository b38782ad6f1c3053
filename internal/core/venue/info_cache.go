package venue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/charleschow/trade-bridge/internal/telemetry"
)

// InfoCache holds SymbolInfo for a single venue. Tick sizes rarely change,
// so entries live for ttl; concurrent misses for one symbol share a fetch.
type InfoCache struct {
	ttl time.Duration

	mu      sync.RWMutex
	entries map[string]infoEntry
	sf      singleflight.Group
}

type infoEntry struct {
	info      SymbolInfo
	fetchedAt time.Time
}

func NewInfoCache(ttl time.Duration) *InfoCache {
	return &InfoCache{
		ttl:     ttl,
		entries: make(map[string]infoEntry),
	}
}

// Get returns cached info for symbol, fetching from v when missing or stale.
func (c *InfoCache) Get(ctx context.Context, v Venue, symbol string) (SymbolInfo, error) {
	c.mu.RLock()
	e, ok := c.entries[symbol]
	c.mu.RUnlock()
	if ok && time.Since(e.fetchedAt) < c.ttl {
		return e.info, nil
	}

	res, err, _ := c.sf.Do(symbol, func() (any, error) {
		info, err := v.SymbolInfo(ctx, symbol)
		if err != nil {
			return SymbolInfo{}, err
		}
		if info.TickSize <= 0 {
			return SymbolInfo{}, fmt.Errorf("symbol info %s: non-positive tick size %v", symbol, info.TickSize)
		}
		c.mu.Lock()
		c.entries[symbol] = infoEntry{info: info, fetchedAt: time.Now()}
		c.mu.Unlock()
		telemetry.Debugf("info_cache: %s %s tick=%v", v.Name(), symbol, info.TickSize)
		return info, nil
	})
	if err != nil {
		return SymbolInfo{}, err
	}
	return res.(SymbolInfo), nil
}

// Invalidate drops one symbol so the next Get refetches.
func (c *InfoCache) Invalidate(symbol string) {
	c.mu.Lock()
	delete(c.entries, symbol)
	c.mu.Unlock()
}
