package instruments

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrDuplicateSymbol = errors.New("symbol listed in more than one tier")
	ErrEmptyCatalog    = errors.New("catalog has no symbols")
)

// Instrument is a catalog entry. Tier is fixed at construction.
type Instrument struct {
	Symbol string
	Tier   Tier
}

// Membership lists the symbols of one tier as whitespace-separated tokens.
type Membership struct {
	Tier    Tier
	Symbols string
}

// Catalog is the read-only universe of tradeable symbols.
// It is built once at startup and shared by pointer between subscription tasks.
type Catalog struct {
	policy      ThresholdPolicy
	instruments []Instrument
	bySymbol    map[string]Tier
}

func NewCatalog(policy ThresholdPolicy, memberships ...Membership) (*Catalog, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	c := &Catalog{
		policy:   policy,
		bySymbol: make(map[string]Tier),
	}
	for _, m := range memberships {
		if !m.Tier.IsValid() {
			return nil, fmt.Errorf("membership: invalid tier %d", int(m.Tier))
		}
		for _, symbol := range strings.Fields(m.Symbols) {
			if existing, ok := c.bySymbol[symbol]; ok {
				if existing == m.Tier {
					continue
				}
				return nil, fmt.Errorf("%s in %s and %s: %w", symbol, existing, m.Tier, ErrDuplicateSymbol)
			}
			c.bySymbol[symbol] = m.Tier
			c.instruments = append(c.instruments, Instrument{Symbol: symbol, Tier: m.Tier})
		}
	}
	if len(c.instruments) == 0 {
		return nil, ErrEmptyCatalog
	}
	return c, nil
}

func (c *Catalog) TierOf(symbol string) (Tier, bool) {
	t, ok := c.bySymbol[symbol]
	return t, ok
}

// Threshold returns the dip threshold that applies to symbol.
func (c *Catalog) Threshold(symbol string) (float64, bool) {
	t, ok := c.bySymbol[symbol]
	if !ok {
		return 0, false
	}
	return c.policy.For(t), true
}

// AllSymbols returns the symbols in membership order.
func (c *Catalog) AllSymbols() []string {
	out := make([]string, len(c.instruments))
	for i, inst := range c.instruments {
		out[i] = inst.Symbol
	}
	return out
}

func (c *Catalog) Instruments() []Instrument {
	out := make([]Instrument, len(c.instruments))
	copy(out, c.instruments)
	return out
}

func (c *Catalog) Policy() ThresholdPolicy { return c.policy }

func (c *Catalog) Len() int { return len(c.instruments) }
