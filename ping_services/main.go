// Ping every configured venue endpoint to measure network latency.
//
// Reads the venue list from VENUES_CONFIG_PATH and times cold and warm HTTP
// round trips against each venue's base URL. With --ws it also measures
// ping/pong latency on a running bridge's /ws stream.
//
// Usage:
//
//	go run ./ping_services                     # default: 20 requests per venue
//	go run ./ping_services -n 50               # 50 requests per venue
//	go run ./ping_services -venue topstep      # one venue only
//	go run ./ping_services --ws localhost:5001 # also test bridge WebSocket latency
package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/charleschow/trade-bridge/internal/config"
)

const (
	httpTimeout    = 10 * time.Second
	topstepProbe   = "/api/User/profile"
	gatewayProbe   = "/positions"
	separatorWidth = 55
)

func main() {
	n := flag.Int("n", 20, "Number of requests per endpoint")
	only := flag.String("venue", "", "Only ping this venue")
	wsAddr := flag.String("ws", "", "Bridge host:port; also measure /ws ping/pong latency")
	flag.Parse()

	cfg := config.Load()
	venues, err := config.LoadVenues(cfg.VenuesPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load venues: %v\n", err)
		os.Exit(1)
	}

	for _, v := range venues {
		if *only != "" && v.Name != *only {
			continue
		}
		if v.BaseURL == "" {
			fmt.Printf("\n  %s: no base_url (mock lane), skipping\n", v.Name)
			continue
		}
		pingVenue(v, *n)
	}
	if *wsAddr != "" {
		pingBridgeWS(*wsAddr, *n)
	}
	fmt.Println()
}

func probeURL(v config.VenueConfig) string {
	base := strings.TrimRight(v.BaseURL, "/")
	if v.Kind == config.KindTopstep {
		return base + topstepProbe
	}
	return base + gatewayProbe
}

func probeHeaders(v config.VenueConfig) http.Header {
	h := http.Header{}
	if v.Kind == config.KindTopstep && v.APIKey != "" {
		h.Set("Authorization", "Bearer "+v.APIKey)
	}
	return h
}

func banner(title string) {
	fmt.Printf("\n%s\n", strings.Repeat("=", separatorWidth))
	fmt.Printf("  %s\n", title)
	fmt.Printf("%s\n", strings.Repeat("=", separatorWidth))
}

func pingVenue(v config.VenueConfig, n int) {
	target := probeURL(v)
	header := probeHeaders(v)
	banner(fmt.Sprintf("%s (%s, %s) - %s", strings.ToUpper(v.Name), v.Kind, v.Role, v.BaseURL))

	fmt.Println("\n  Cold-start request (DNS + TLS + HTTP):")
	if ms, code, err := measureHTTP(target, header, nil); err != nil {
		fmt.Printf("    FAILED: %v\n", err)
	} else {
		fmt.Printf("    %.1f ms  (HTTP %d)\n", ms, code)
	}

	fmt.Printf("\n  Warm HTTP latency (%d requests, keep-alive):\n", n)
	client := &http.Client{Timeout: httpTimeout}
	if _, _, err := measureHTTP(target, header, client); err != nil {
		fmt.Printf("  [!] Warm-up request failed: %v\n", err)
		return
	}
	latencies := make([]float64, 0, n)
	pad := len(fmt.Sprintf("%d", n))
	for i := 1; i <= n; i++ {
		ms, code, err := measureHTTP(target, header, client)
		if err != nil {
			fmt.Printf("  [%*d/%d]  FAILED: %v\n", pad, i, n, err)
			continue
		}
		latencies = append(latencies, ms)
		fmt.Printf("  [%*d/%d]  %7.1f ms  (HTTP %d)\n", pad, i, n, ms, code)
	}
	printStats(latencies, v.Name+" HTTP")
}

// measureHTTP times one GET. Any HTTP status counts as a completed round trip.
func measureHTTP(target string, header http.Header, client *http.Client) (ms float64, statusCode int, err error) {
	req, err := http.NewRequest(http.MethodGet, target, nil)
	if err != nil {
		return 0, 0, err
	}
	req.Header = header.Clone()
	c := client
	if c == nil {
		c = &http.Client{Timeout: httpTimeout}
	}
	start := time.Now()
	resp, err := c.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()
	return float64(elapsed.Microseconds()) / 1000, resp.StatusCode, nil
}

func pingBridgeWS(addr string, n int) {
	u := url.URL{Scheme: "ws", Host: addr, Path: "/ws"}
	banner("BRIDGE STREAM - " + u.String())
	fmt.Printf("\n  WebSocket ping/pong latency (%d pings):\n", n)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		fmt.Printf("  [!] WebSocket dial failed: %v\n", err)
		return
	}
	defer conn.Close()

	pongCh := make(chan struct{}, 1)
	conn.SetPongHandler(func(string) error {
		select {
		case pongCh <- struct{}{}:
		default:
		}
		return nil
	})

	// Control frames are only processed while reading.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	latencies := make([]float64, 0, n)
	pad := len(fmt.Sprintf("%d", n))
	for i := 1; i <= n; i++ {
		start := time.Now()
		if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(5*time.Second)); err != nil {
			fmt.Printf("  [!] WS ping failed: %v\n", err)
			break
		}
		select {
		case <-pongCh:
			ms := float64(time.Since(start).Microseconds()) / 1000
			latencies = append(latencies, ms)
			fmt.Printf("  [%*d/%d]  %7.1f ms  (WS ping/pong)\n", pad, i, n, ms)
		case <-time.After(5 * time.Second):
			fmt.Printf("  [!] WS pong timeout\n")
			printStats(latencies, "Bridge WebSocket")
			return
		}
	}
	printStats(latencies, "Bridge WebSocket")
}

func printStats(latencies []float64, label string) {
	if len(latencies) < 2 {
		fmt.Printf("\n  Not enough %s samples for statistics.\n", label)
		return
	}
	sorted := make([]float64, len(latencies))
	copy(sorted, latencies)
	sort.Float64s(sorted)

	mean := 0.0
	for _, v := range latencies {
		mean += v
	}
	mean /= float64(len(latencies))

	variance := 0.0
	for _, v := range latencies {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(latencies) - 1)

	pct := func(p float64) float64 {
		idx := int(float64(len(sorted)) * p)
		if idx >= len(sorted) {
			idx = len(sorted) - 1
		}
		return sorted[idx]
	}

	fmt.Printf("\n  --- %s Stats (%d requests) ---\n", label, len(latencies))
	fmt.Printf("  Min:    %7.1f ms\n", sorted[0])
	fmt.Printf("  Max:    %7.1f ms\n", sorted[len(sorted)-1])
	fmt.Printf("  Mean:   %7.1f ms\n", mean)
	fmt.Printf("  Median: %7.1f ms\n", sorted[len(sorted)/2])
	fmt.Printf("  Stdev:  %7.1f ms\n", math.Sqrt(variance))
	fmt.Printf("  p95:    %7.1f ms\n", pct(0.95))
	fmt.Printf("  p99:    %7.1f ms\n", pct(0.99))
}
