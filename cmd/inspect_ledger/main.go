package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/joho/godotenv"

	"github.com/charleschow/trade-bridge/internal/core/ledger"
)

func main() {
	_ = godotenv.Load()

	n := flag.Int("n", 20, "number of recent rows to display")
	venue := flag.String("venue", "", "filter by venue (mt5, ibkr, topstep...)")
	status := flag.String("status", "", "filter by status (SUCCESS, ERROR, SKIPPED)")
	signal := flag.String("signal", "", "show every row for one signal id")
	verbose := flag.Bool("v", false, "show signal id, native order id and details")
	dsn := flag.String("dsn", envOr("LEDGER_DSN", "data/trades.db"), "ledger DSN (SQLite path or postgres:// URL)")
	flag.Parse()

	ctx := context.Background()
	store, err := ledger.Open(ctx, *dsn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open ledger: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	rows, err := store.Query(ctx, ledger.Filter{
		Venue:    *venue,
		Status:   strings.ToUpper(*status),
		SignalID: *signal,
		Limit:    *n,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "query: %v\n", err)
		os.Exit(1)
	}
	if len(rows) == 0 {
		fmt.Println("(no data)")
		return
	}

	fmt.Printf("=== Trades (%s) ===\nShowing last %d:\n", *dsn, len(rows))
	cols := []string{"id", "timestamp", "venue", "symbol", "action", "volume", "status", "state", "expected", "executed", "slip", "latency_ms", "tries"}
	if *verbose {
		cols = append(cols, "signal", "order", "details")
	}

	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(cols, "\t"))
	fmt.Fprintln(w, strings.Repeat("----\t", len(cols)))

	// Oldest at the top so the newest row is closest to the prompt.
	for i := len(rows) - 1; i >= 0; i-- {
		e := rows[i]
		cells := []string{
			strconv.FormatInt(e.ID, 10),
			e.Timestamp.Format("2006-01-02 15:04:05.000"),
			e.Venue,
			e.Symbol,
			e.Action,
			fmtNum(e.Volume),
			e.Status,
			dash(e.State),
			fmtNum(e.ExpectedPrice),
			fmtNum(e.ExecutedPrice),
			fmtNum(e.Slippage),
			fmt.Sprintf("%.1f", e.LatencyMs),
			strconv.Itoa(e.Attempts),
		}
		if *verbose {
			cells = append(cells, dash(e.SignalID), dash(e.NativeOrderID), dash(e.Details))
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	w.Flush()
}

func fmtNum(x float64) string {
	if x == 0 {
		return "-"
	}
	if x == float64(int64(x)) {
		return strconv.FormatInt(int64(x), 10)
	}
	return strconv.FormatFloat(x, 'f', -1, 64)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
