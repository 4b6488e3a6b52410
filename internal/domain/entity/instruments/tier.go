package instruments

import (
	"errors"
	"fmt"
)

// Tier is the risk class of an instrument. It selects the dip threshold.
type Tier int

const (
	Tier1 Tier = iota + 1
	Tier2
	Tier3
)

var ErrInvalidThreshold = errors.New("threshold must be within (0, 1)")

func (t Tier) String() string {
	switch t {
	case Tier1:
		return "tier1"
	case Tier2:
		return "tier2"
	case Tier3:
		return "tier3"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

func (t Tier) IsValid() bool {
	switch t {
	case Tier1, Tier2, Tier3:
		return true
	default:
		return false
	}
}

func NewTier(v int) (Tier, error) {
	t := Tier(v)
	if !t.IsValid() {
		return 0, fmt.Errorf("invalid tier: %d", v)
	}
	return t, nil
}

// ThresholdPolicy maps every tier to the minimum fractional drop that fires a signal.
type ThresholdPolicy struct {
	Tier1 float64
	Tier2 float64
	Tier3 float64
}

// DefaultThresholdPolicy keeps large caps on a tighter trigger than the rest of the market.
func DefaultThresholdPolicy() ThresholdPolicy {
	return ThresholdPolicy{
		Tier1: 0.006,
		Tier2: 0.015,
		Tier3: 0.015,
	}
}

func (p ThresholdPolicy) For(t Tier) float64 {
	switch t {
	case Tier1:
		return p.Tier1
	case Tier2:
		return p.Tier2
	case Tier3:
		return p.Tier3
	default:
		return 0
	}
}

func (p ThresholdPolicy) Validate() error {
	for _, t := range []Tier{Tier1, Tier2, Tier3} {
		v := p.For(t)
		if v <= 0 || v >= 1 {
			return fmt.Errorf("%s threshold %v: %w", t, v, ErrInvalidThreshold)
		}
	}
	return nil
}
