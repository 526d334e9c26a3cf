// Package rates holds the fixed conversion table between fiat currencies and
// the settled on-chain asset.
package rates

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// DefaultScale is the number of fractional digits kept after a conversion,
// matching the settlement network's amount precision.
const DefaultScale = 7

// ErrUnknownPair is returned for a currency pair with no configured rate in
// either direction.
var ErrUnknownPair = errors.New("unknown currency pair")

type pair struct {
	from, to string
}

// Table converts amounts between codes. It is immutable after construction
// and safe for concurrent use.
type Table struct {
	rates map[pair]decimal.Decimal
	scale int32
}

type fileFormat struct {
	Scale *int32 `yaml:"scale"`
	Rates []struct {
		From string `yaml:"from"`
		To   string `yaml:"to"`
		Rate string `yaml:"rate"`
	} `yaml:"rates"`
}

// Default returns the built-in table: 1 XOF = 0.1 SRT and 1 SRT = 0.5 GHS.
func Default() *Table {
	return &Table{
		scale: DefaultScale,
		rates: map[pair]decimal.Decimal{
			{"XOF", "SRT"}: decimal.RequireFromString("0.1"),
			{"SRT", "GHS"}: decimal.RequireFromString("0.5"),
		},
	}
}

// Load reads a YAML rate file. An empty path yields Default.
//
//	scale: 7
//	rates:
//	  - {from: XOF, to: SRT, rate: "0.1"}
//	  - {from: SRT, to: GHS, rate: "0.5"}
func Load(path string) (*Table, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rate table: %w", err)
	}
	return Parse(b)
}

// Parse builds a Table from YAML.
func Parse(b []byte) (*Table, error) {
	var f fileFormat
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse rate table: %w", err)
	}

	t := &Table{scale: DefaultScale, rates: make(map[pair]decimal.Decimal, len(f.Rates))}
	if f.Scale != nil {
		if *f.Scale < 0 {
			return nil, fmt.Errorf("rate table: negative scale %d", *f.Scale)
		}
		t.scale = *f.Scale
	}

	for _, r := range f.Rates {
		from, to := normalize(r.From), normalize(r.To)
		if from == "" || to == "" || from == to {
			return nil, fmt.Errorf("rate table: invalid pair %q->%q", r.From, r.To)
		}
		rate, err := decimal.NewFromString(r.Rate)
		if err != nil {
			return nil, fmt.Errorf("rate table: %s->%s: %w", from, to, err)
		}
		if !rate.IsPositive() {
			return nil, fmt.Errorf("rate table: %s->%s: rate must be positive", from, to)
		}
		p := pair{from, to}
		if _, dup := t.rates[p]; dup {
			return nil, fmt.Errorf("rate table: duplicate pair %s->%s", from, to)
		}
		t.rates[p] = rate
	}

	return t, nil
}

// Rate returns how many units of to one unit of from is worth. The inverse
// of a configured pair is derived.
func (t *Table) Rate(from, to string) (decimal.Decimal, error) {
	from, to = normalize(from), normalize(to)
	if from == to {
		return decimal.NewFromInt(1), nil
	}
	if r, ok := t.rates[pair{from, to}]; ok {
		return r, nil
	}
	if r, ok := t.rates[pair{to, from}]; ok {
		return decimal.NewFromInt(1).Div(r), nil
	}
	return decimal.Zero, fmt.Errorf("%w: %s->%s", ErrUnknownPair, from, to)
}

// Convert returns amount expressed in to, rounded to the table scale.
func (t *Table) Convert(amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	from, to = normalize(from), normalize(to)
	if from == to {
		return amount, nil
	}
	if r, ok := t.rates[pair{from, to}]; ok {
		return amount.Mul(r).Round(t.scale), nil
	}
	if r, ok := t.rates[pair{to, from}]; ok {
		return amount.DivRound(r, t.scale), nil
	}
	return decimal.Zero, fmt.Errorf("%w: %s->%s", ErrUnknownPair, from, to)
}

func normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
