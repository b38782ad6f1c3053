package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charleschow/trade-bridge/internal/events"
	"github.com/charleschow/trade-bridge/internal/fanout"
	"github.com/charleschow/trade-bridge/internal/telemetry"
)

func main() {
	addr := flag.String("addr", "localhost:5001", "bridge host:port")
	venue := flag.String("venue", "", "only stream one venue")
	errorsOnly := flag.Bool("errors", false, "only show failed executions and breaker changes")
	flag.Parse()

	telemetry.Init(telemetry.ParseLogLevel(os.Getenv("LOG_LEVEL")))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	bus := events.NewBus()
	bus.Subscribe(events.EventExecution, func(e events.Event) error {
		r, ok := e.Payload.(events.ExecutionResult)
		if !ok {
			return nil
		}
		if *errorsOnly && r.Status != events.StatusError {
			return nil
		}
		line := fmt.Sprintf("%s  %-8s %-7s %-8s %-6v %-7s %-15s", r.At.Format("15:04:05.000"), r.Venue, r.Action, r.Symbol, r.Volume, r.Status, r.State)
		if r.ExecutedPrice > 0 {
			line += fmt.Sprintf(" @%v slip=%v", r.ExecutedPrice, r.Slippage)
		}
		if r.Detail != "" {
			line += "  " + r.Detail
		}
		fmt.Println(line)
		return nil
	})
	bus.Subscribe(events.EventBreaker, func(e events.Event) error {
		b, ok := e.Payload.(events.BreakerEvent)
		if !ok {
			return nil
		}
		fmt.Printf("%s  BREAKER %s -> %s (failures=%d)\n", e.Timestamp.Format("15:04:05.000"), b.Venue, b.State, b.Failures)
		return nil
	})

	telemetry.Plainf("Tailing executions from %s (Ctrl-C to stop)", *addr)
	fanout.NewClient(*addr, *venue, bus).ConnectWithRetry(ctx)
}
