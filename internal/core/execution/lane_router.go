package execution

import (
	"fmt"
	"sort"
	"sync"

	"github.com/charleschow/trade-bridge/internal/core/execution/lanes"
)

// LaneRouter maps venue names to their execution lanes. Exactly one lane is
// the primary; the rest are dispatched asynchronously.
type LaneRouter struct {
	mu      sync.RWMutex
	lanes   map[string]*lanes.Lane
	primary *lanes.Lane
}

func NewLaneRouter() *LaneRouter {
	return &LaneRouter{
		lanes: make(map[string]*lanes.Lane),
	}
}

func (lr *LaneRouter) Register(lane *lanes.Lane) error {
	lr.mu.Lock()
	defer lr.mu.Unlock()

	if _, dup := lr.lanes[lane.Name]; dup {
		return fmt.Errorf("lane %q registered twice", lane.Name)
	}
	if lane.IsPrimary() {
		if lr.primary != nil {
			return fmt.Errorf("lane %q: primary already set to %q", lane.Name, lr.primary.Name)
		}
		lr.primary = lane
	}
	lr.lanes[lane.Name] = lane
	return nil
}

// Primary returns nil when no primary lane is configured.
func (lr *LaneRouter) Primary() *lanes.Lane {
	lr.mu.RLock()
	defer lr.mu.RUnlock()
	return lr.primary
}

func (lr *LaneRouter) Get(name string) (*lanes.Lane, bool) {
	lr.mu.RLock()
	defer lr.mu.RUnlock()
	l, ok := lr.lanes[name]
	return l, ok
}

// Secondaries returns the non-primary lanes sorted by name.
func (lr *LaneRouter) Secondaries() []*lanes.Lane {
	lr.mu.RLock()
	defer lr.mu.RUnlock()
	out := make([]*lanes.Lane, 0, len(lr.lanes))
	for _, l := range lr.lanes {
		if !l.IsPrimary() {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// All returns every lane, primary first.
func (lr *LaneRouter) All() []*lanes.Lane {
	out := lr.Secondaries()
	if p := lr.Primary(); p != nil {
		out = append([]*lanes.Lane{p}, out...)
	}
	return out
}
