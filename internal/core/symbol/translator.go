package symbol

import (
	"fmt"
	"slices"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/charleschow/trade-bridge/internal/core/venue"
)

// Mode is a venue account tier. Only tiered venues set one.
type Mode string

const (
	ModeNone   Mode = ""
	ModeEval   Mode = "eval"
	ModeFunded Mode = "funded"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(Normalize(s)); m {
	case "":
		return ModeNone, nil
	case "EVAL":
		return ModeEval, nil
	case "FUNDED":
		return ModeFunded, nil
	default:
		return ModeNone, fmt.Errorf("unknown account mode %q", s)
	}
}

// Mapping is one symbol map entry. In YAML it is either a bare native symbol
// (multiplier 1) or {name, multiplier}.
type Mapping struct {
	Name       string  `yaml:"name"`
	Multiplier float64 `yaml:"multiplier"`
}

func (m *Mapping) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		m.Name = value.Value
		m.Multiplier = 1
		return nil
	}
	type plain Mapping
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	if p.Name == "" {
		return fmt.Errorf("line %d: symbol mapping missing name", value.Line)
	}
	if p.Multiplier == 0 {
		p.Multiplier = 1
	}
	if p.Multiplier < 0 {
		return fmt.Errorf("line %d: negative multiplier for %s", value.Line, p.Name)
	}
	*m = Mapping(p)
	return nil
}

// TierRules are the account-mode overrides of a tiered venue.
type TierRules struct {
	// EvalFullSize lists base symbols that trade the full-size contract at x1
	// while the account is under evaluation.
	EvalFullSize []string `yaml:"eval_full_size"`
	// FundedMultipliers sets the explicit size multiplier per base symbol in
	// funded mode; the mapped (micro) contract is used.
	FundedMultipliers map[string]float64 `yaml:"funded_multipliers"`
}

// Rules is the translation table of a single venue.
type Rules struct {
	Symbols   map[string]Mapping `yaml:"symbols"`
	Tiers     *TierRules         `yaml:"tiers"`
	AltSuffix string             `yaml:"alt_suffix"`
}

// Translation is the venue-native form of a raw signal symbol and volume.
type Translation struct {
	Raw        string
	Base       string
	Native     string
	Multiplier float64
	Volume     float64
	// Candidates is the position search set for netting.
	Candidates venue.SymbolSet
}

func (r Rules) lookup(raw, base string) (Mapping, bool) {
	if m, ok := r.Symbols[Normalize(raw)]; ok {
		return m, true
	}
	m, ok := r.Symbols[base]
	return m, ok
}

// Translate maps raw to the venue's native symbol and scales volume.
// Unmapped symbols pass through as their stripped base at x1, so translating
// an already-native unmapped symbol is a no-op.
func (r Rules) Translate(raw string, volume float64, mode Mode) Translation {
	base := StripContinuous(raw)
	native, mult := base, 1.0

	m, mapped := r.lookup(raw, base)
	if mapped {
		native, mult = m.Name, m.Multiplier
	}

	if r.Tiers != nil {
		switch mode {
		case ModeEval:
			if slices.Contains(r.Tiers.EvalFullSize, base) {
				native, mult = base, 1
			}
		case ModeFunded:
			if fm, ok := r.Tiers.FundedMultipliers[base]; ok && fm > 0 {
				mult = fm
			}
		}
	}

	return Translation{
		Raw:        raw,
		Base:       base,
		Native:     native,
		Multiplier: mult,
		Volume:     scale(volume, mult),
		Candidates: SearchSet(native, raw, r.AltSuffix),
	}
}

func scale(volume, mult float64) float64 {
	if mult == 1 {
		return volume
	}
	return decimal.NewFromFloat(volume).Mul(decimal.NewFromFloat(mult)).InexactFloat64()
}

// Translator holds the rules of every configured venue.
type Translator struct {
	venues map[string]Rules
}

func NewTranslator(venues map[string]Rules) *Translator {
	return &Translator{venues: venues}
}

// Translate applies the named venue's rules; unknown venues pass through.
func (t *Translator) Translate(venueName, raw string, volume float64, mode Mode) Translation {
	return t.venues[venueName].Translate(raw, volume, mode)
}
