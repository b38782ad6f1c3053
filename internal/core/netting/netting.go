// Package netting decides which existing venue positions an incoming signal
// closes before any new exposure is opened, and performs those closes.
package netting

import (
	"cmp"
	"context"
	"slices"

	"github.com/charleschow/trade-bridge/internal/core/retry"
	"github.com/charleschow/trade-bridge/internal/core/venue"
	"github.com/charleschow/trade-bridge/internal/telemetry"
)

// Epsilon is the remaining volume treated as zero after netting.
const Epsilon = 1e-4

// Leg closes Volume of one existing position.
type Leg struct {
	Position venue.Position
	Volume   float64
}

// Plan holds CloseVolume = min(incoming, matched opposite volume) and
// OpenVolume = incoming - CloseVolume.
type Plan struct {
	CloseVolume float64
	OpenVolume  float64
	Legs        []Leg
}

// FullyNetted reports whether nothing is left to open.
func (p Plan) FullyNetted() bool { return p.OpenVolume <= Epsilon }

func matching(positions []venue.Position, candidates venue.SymbolSet, keep func(venue.Position) bool) []venue.Position {
	var out []venue.Position
	for _, p := range positions {
		if p.Volume > 0 && candidates.Contains(p.Symbol) && keep(p) {
			out = append(out, p)
		}
	}
	slices.SortStableFunc(out, func(a, b venue.Position) int {
		return cmp.Compare(a.ExternalID, b.ExternalID)
	})
	return out
}

// ComputePlan nets an order on side for volume against positions whose
// symbol is in candidates. Only positions on the opposite side count; they
// are consumed in ExternalID order until volume is exhausted, the last one
// partially if needed.
func ComputePlan(positions []venue.Position, side venue.OrderSide, volume float64, candidates venue.SymbolSet) Plan {
	opposite := side.Opens().Opposite()
	matches := matching(positions, candidates, func(p venue.Position) bool { return p.Side == opposite })

	plan := Plan{}
	remaining := volume
	for _, p := range matches {
		if remaining <= Epsilon {
			break
		}
		v := min(p.Volume, remaining)
		plan.Legs = append(plan.Legs, Leg{Position: p, Volume: v})
		plan.CloseVolume += v
		remaining -= v
	}
	plan.OpenVolume = max(volume-plan.CloseVolume, 0)
	return plan
}

// ClosePlan flattens every matched position on either side in full.
func ClosePlan(positions []venue.Position, candidates venue.SymbolSet) Plan {
	matches := matching(positions, candidates, func(venue.Position) bool { return true })
	plan := Plan{}
	for _, p := range matches {
		plan.Legs = append(plan.Legs, Leg{Position: p, Volume: p.Volume})
		plan.CloseVolume += p.Volume
	}
	return plan
}

// Outcome is what Apply actually achieved.
type Outcome struct {
	Closed   float64
	Failed   int
	Attempts int
}

// Netter executes plan legs against a venue.
type Netter struct {
	policy retry.Policy
}

func NewNetter(policy retry.Policy) *Netter {
	return &Netter{policy: policy}
}

// Apply closes each leg in order, waiting for the venue to acknowledge before
// moving on. Buy-to-close crosses at the ask, sell-to-close at the bid, using
// the quote of the position's own symbol. A failed leg is logged and skipped;
// its volume is not counted as closed.
func (n *Netter) Apply(ctx context.Context, v venue.Venue, plan Plan) Outcome {
	var out Outcome
	for _, leg := range plan.Legs {
		pos := leg.Position
		pos.Volume = leg.Volume

		q, err := v.Quote(ctx, pos.Symbol)
		if err != nil {
			telemetry.Warnf("netting: %s no quote for %s, skipping close of %s: %v", v.Name(), pos.Symbol, pos.ExternalID, err)
			out.Failed++
			continue
		}
		price := q.Bid
		if pos.CloseSide() == venue.Buy {
			price = q.Ask
		}

		_, attempts, err := retry.Do(ctx, n.policy, v.Name(), func(ctx context.Context) (venue.CloseResponse, error) {
			return v.ClosePosition(ctx, pos, price)
		})
		out.Attempts += attempts
		if err != nil {
			telemetry.Errorf("netting: %s close %s %s vol=%v failed after %d attempts: %v",
				v.Name(), pos.Symbol, pos.ExternalID, pos.Volume, attempts, err)
			out.Failed++
			continue
		}

		telemetry.Metrics.NettingCloses.Inc()
		telemetry.Infof("netting: %s closed %s %s %s vol=%v @ %v", v.Name(), pos.Side, pos.Symbol, pos.ExternalID, pos.Volume, price)
		out.Closed += leg.Volume
	}
	return out
}
