package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charleschow/trade-bridge/internal/core/execution/lanes"
	"github.com/charleschow/trade-bridge/internal/core/symbol"
)

const sample = `
venues:
  - name: mt5
    role: primary
    base_url: http://127.0.0.1:5002
    bracket: true
    retry: {attempts: 5, delay_ms: 100}
    rules:
      alt_suffix: .cash
      symbols:
        NQ: NAS100
  - name: topstep
    kind: topstep
    mode: FUNDED
    timeout_ms: 2500
    breaker: {threshold: 4, reset_after_sec: 30}
    rules:
      symbols:
        NQ: {name: MNQ, multiplier: 7}
  - name: ibkr
    enabled: false
    base_url: http://127.0.0.1:5003
`

func TestParseVenues(t *testing.T) {
	vs, err := ParseVenues([]byte(sample))
	require.NoError(t, err)
	require.Len(t, vs, 2)

	mt5 := vs[0]
	assert.Equal(t, KindGateway, mt5.Kind)
	assert.True(t, mt5.Bracket)
	lc := mt5.LaneConfig()
	assert.Equal(t, lanes.RolePrimary, lc.Role)
	assert.Equal(t, 5, lc.Retry.Attempts)
	assert.Equal(t, 100*time.Millisecond, lc.Retry.Delay)
	assert.Equal(t, 3*time.Second, lc.Retry.AttemptTimeout)
	assert.Equal(t, symbol.Mapping{Name: "NAS100", Multiplier: 1}, lc.Rules.Symbols["NQ"])

	ts := vs[1].LaneConfig()
	assert.Equal(t, lanes.RoleSecondary, ts.Role)
	assert.Equal(t, symbol.ModeFunded, ts.Mode)
	assert.Equal(t, 2500*time.Millisecond, ts.Timeout)
	assert.Equal(t, 4, ts.BreakerThresh)
	assert.Equal(t, 30*time.Second, ts.BreakerReset)
	assert.Zero(t, ts.Retry.Attempts, "unset retry falls back to the lane default")
	assert.Equal(t, 7.0, ts.Rules.Symbols["NQ"].Multiplier)
}

func TestParseVenuesEnvOverrides(t *testing.T) {
	t.Setenv("TOPSTEP_API_KEY", "from-env")
	t.Setenv("TOPSTEP_MOCK", "true")

	vs, err := ParseVenues([]byte(sample))
	require.NoError(t, err)
	assert.Equal(t, "from-env", vs[1].APIKey)
	assert.True(t, vs[1].Mock)
	assert.Empty(t, vs[0].APIKey)
}

func TestParseVenuesErrors(t *testing.T) {
	cases := map[string]string{
		"no primary": `
venues:
  - {name: ibkr, base_url: http://x}`,
		"two primaries": `
venues:
  - {name: a, role: primary, base_url: http://x}
  - {name: b, role: primary, base_url: http://y}`,
		"duplicate": `
venues:
  - {name: a, role: primary, base_url: http://x}
  - {name: a, base_url: http://y}`,
		"unknown kind": `
venues:
  - {name: a, role: primary, kind: fix, base_url: http://x}`,
		"unknown mode": `
venues:
  - {name: a, role: primary, mode: demo, base_url: http://x}`,
		"missing url": `
venues:
  - {name: a, role: primary}`,
		"negative multiplier": `
venues:
  - name: a
    role: primary
    base_url: http://x
    rules: {symbols: {NQ: {name: MNQ, multiplier: -1}}}`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseVenues([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestMockGatewayNeedsNoURL(t *testing.T) {
	vs, err := ParseVenues([]byte(`
venues:
  - {name: mt5, role: primary, mock: true}`))
	require.NoError(t, err)
	assert.True(t, vs[0].LaneConfig().Mock)
}

func TestLoadVenuesShippedFile(t *testing.T) {
	vs, err := LoadVenues(filepath.Join("..", "..", "config", "venues.yaml"))
	require.NoError(t, err)
	names := make([]string, 0, len(vs))
	for _, v := range vs {
		names = append(names, v.Name)
	}
	assert.Equal(t, []string{"mt5", "ibkr", "topstep"}, names)

	// every secondary retry budget fits inside its short dispatch deadline
	for _, v := range vs[1:] {
		lc := v.LaneConfig()
		budget := time.Duration(lc.Retry.Attempts)*lc.Retry.AttemptTimeout + time.Duration(lc.Retry.Attempts-1)*lc.Retry.Delay
		assert.LessOrEqual(t, lc.Timeout, 5*time.Second, v.Name)
		assert.LessOrEqual(t, budget, lc.Timeout, v.Name)
	}
}

func TestLoadDispatchTimeoutDefault(t *testing.T) {
	t.Setenv("DISPATCH_TIMEOUT_MS", "")
	assert.Equal(t, 4*time.Second, Load().DispatchTimeout)
}

func TestLoadVenuesMissingFile(t *testing.T) {
	_, err := LoadVenues(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("TB_INT", "12")
	t.Setenv("TB_BAD_INT", "x")
	t.Setenv("TB_BOOL", "true")
	assert.Equal(t, 12, envInt("TB_INT", 1))
	assert.Equal(t, 1, envInt("TB_BAD_INT", 1))
	assert.True(t, envBool("TB_BOOL", false))
	assert.False(t, envBool("TB_UNSET", false))
	assert.Equal(t, "TOP_STEP", envKey("top-step"))
}
