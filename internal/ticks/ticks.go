// Package ticks validates odds and snaps arbitrary prices onto the legal
// tick ladder of exchange price bands.
package ticks

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/atmx/hedge-engine/internal/model"
	"github.com/atmx/hedge-engine/internal/precision"
)

// ErrInvalidOdds is returned for odds that are zero or negative.
var ErrInvalidOdds = fmt.Errorf("%w: odds must be positive", model.ErrInvalidArgument)

// Band is a closed price range [Min, Max] in which odds move by Tick.
type Band struct {
	Min  decimal.Decimal `json:"min"`
	Max  decimal.Decimal `json:"max"`
	Tick decimal.Decimal `json:"tick"`
}

// Contains reports whether odds lies inside the band, bounds included.
func (b Band) Contains(odds decimal.Decimal) bool {
	return odds.GreaterThanOrEqual(b.Min) && odds.LessThanOrEqual(b.Max)
}

// Bands is an ordered ladder; the first band containing a price wins.
type Bands []Band

func band(min, max, tick string) Band {
	return Band{
		Min:  decimal.RequireFromString(min),
		Max:  decimal.RequireFromString(max),
		Tick: decimal.RequireFromString(tick),
	}
}

// DefaultBands returns the standard exchange ladder from 1.01 to 100.
func DefaultBands() Bands {
	return Bands{
		band("1.01", "2.0", "0.01"),
		band("2.0", "3.0", "0.02"),
		band("3.0", "4.0", "0.05"),
		band("4.0", "6.0", "0.1"),
		band("6.0", "10.0", "0.2"),
		band("10.0", "20.0", "0.5"),
		band("20.0", "30.0", "1.0"),
		band("30.0", "50.0", "2.0"),
		band("50.0", "100.0", "5.0"),
	}
}

// Find returns the first band containing odds.
func (bs Bands) Find(odds decimal.Decimal) (Band, bool) {
	for _, b := range bs {
		if b.Contains(odds) {
			return b, true
		}
	}
	return Band{}, false
}

// Snap moves odds up to the next legal tick of its band. The result is
// never below the input. Prices outside every band are rounded up to two
// decimals instead.
func (bs Bands) Snap(odds decimal.Decimal) (decimal.Decimal, error) {
	if odds.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, fmt.Errorf("%w: got %s", ErrInvalidOdds, odds)
	}

	b, ok := bs.Find(odds)
	if !ok {
		return precision.RoundUp(odds, 2), nil
	}

	n := precision.Div(odds.Sub(b.Min), b.Tick).Floor()
	snapped := b.Min.Add(b.Tick.Mul(n))
	if snapped.LessThan(odds) {
		snapped = snapped.Add(b.Tick)
	}

	places := -b.Tick.Exponent()
	if places < 0 {
		places = 0
	}
	return precision.Quantize(snapped.Round(places), places), nil
}

// ValidateAndSnap snaps odds against DefaultBands.
func ValidateAndSnap(odds decimal.Decimal) (decimal.Decimal, error) {
	return DefaultBands().Snap(odds)
}
