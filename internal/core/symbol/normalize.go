package symbol

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/charleschow/trade-bridge/internal/core/venue"
)

// continuousMarker matches TradingView continuous-contract suffixes: NQ1!, ES2!.
var continuousMarker = regexp.MustCompile(`[0-9]+!$`)

// Normalize folds compatibility characters (full-width letters pasted from
// alert templates), trims and upper-cases raw.
func Normalize(raw string) string {
	return strings.ToUpper(strings.TrimSpace(norm.NFKC.String(raw)))
}

// StripContinuous normalizes raw and removes a trailing continuous marker.
func StripContinuous(raw string) string {
	return continuousMarker.ReplaceAllString(Normalize(raw), "")
}

// SearchSet is the set of venue symbols treated as the same instrument when
// matching existing positions: the native symbol, the raw input, the raw
// input without its continuous marker, and that base with the broker's
// alternate suffix (NQ1! -> NQ_H on some MT5 servers).
func SearchSet(native, raw, altSuffix string) venue.SymbolSet {
	upper := Normalize(raw)
	base := StripContinuous(raw)
	set := venue.NewSymbolSet(native, upper, base)
	if altSuffix != "" && base != "" {
		set[base+strings.ToUpper(altSuffix)] = struct{}{}
	}
	return set
}
