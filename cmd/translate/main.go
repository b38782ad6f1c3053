// Show what one signal symbol becomes on every configured venue.
//
// Usage:
//
//	go run ./cmd/translate -symbol NQ1! -volume 2
//	go run ./cmd/translate -symbol NAS100 -mode topstep=eval
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/charleschow/trade-bridge/internal/config"
	"github.com/charleschow/trade-bridge/internal/core/symbol"
)

func main() {
	raw := flag.String("symbol", "", "raw signal symbol (e.g. NQ1!)")
	volume := flag.Float64("volume", 1, "signal volume")
	override := flag.String("mode", "", "account mode overrides, venue=mode[,venue=mode]")
	flag.Parse()

	if strings.TrimSpace(*raw) == "" {
		fmt.Fprintln(os.Stderr, "-symbol is required")
		os.Exit(2)
	}

	cfg := config.Load()
	venues, err := config.LoadVenues(cfg.VenuesPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load venues: %v\n", err)
		os.Exit(1)
	}

	modes, err := parseModes(*override)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	rules := make(map[string]symbol.Rules, len(venues))
	for _, v := range venues {
		rules[v.Name] = v.Rules
		if _, ok := modes[v.Name]; !ok {
			modes[v.Name], _ = symbol.ParseMode(v.Mode)
		}
	}
	tr := symbol.NewTranslator(rules)

	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "venue\trole\tmode\tnative\tmult\tvolume\tsearch")
	fmt.Fprintln(w, "-----\t----\t----\t------\t----\t------\t------")
	for _, v := range venues {
		mode := modes[v.Name]
		t := tr.Translate(v.Name, *raw, *volume, mode)
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%g\t%g\t%s\n",
			v.Name, v.Role, orDash(string(mode)), t.Native, t.Multiplier, t.Volume, strings.Join(t.Candidates.Sorted(), ","))
	}
	w.Flush()
}

func parseModes(s string) (map[string]symbol.Mode, error) {
	out := map[string]symbol.Mode{}
	if s == "" {
		return out, nil
	}
	for _, pair := range strings.Split(s, ",") {
		name, m, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("bad -mode entry %q, want venue=mode", pair)
		}
		mode, err := symbol.ParseMode(m)
		if err != nil {
			return nil, err
		}
		out[strings.TrimSpace(name)] = mode
	}
	return out, nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
