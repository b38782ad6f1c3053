package execution

import (
	"github.com/charleschow/trade-bridge/internal/events"
)

// Fanout schedules an intent on every secondary lane without blocking.
// Satisfied by *dispatch.Dispatcher.
type Fanout interface {
	Dispatch(intent events.OrderIntent)
}
