// Package calculator sizes the covering stake of a hedge and derives the
// expected result of both outcomes.
//
// Everything here is pure: no I/O, no clock, no shared state. All math runs
// on shopspring/decimal; stake and exposure are rounded up so the cover is
// never short, every other amount is rounded half up.
//
// With c = commission/100:
//
//	calificacion:        hedgeStake = stake·oddsA / (oddsB − c)
//	credito_no_retorno:  hedgeStake = stake·(oddsA − 1) / (oddsB − c)
//	exposure             = hedgeStake·(oddsB − 1)
//	profitIfOriginWins   = stake·(oddsA − 1) − exposure
//	profitIfHedgeWins    = hedgeStake·(1 − c)  [− stake in calificacion]
//	rating               = oddsA·(1 − (oddsB − 1)/(oddsB·(1 − c)))·100
package calculator

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/atmx/hedge-engine/internal/model"
	"github.com/atmx/hedge-engine/internal/precision"
)

var (
	// MinOdds is the exclusive lower bound for both odds.
	MinOdds = decimal.RequireFromString("1.01")

	// MaxCommission is the inclusive upper bound of the commission percent.
	MaxCommission = decimal.NewFromInt(10)

	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

// Input is one hedge to size. CommissionPct is the hedge account's
// commission in percent (5 means 5%).
type Input struct {
	Stake         decimal.Decimal   `json:"stake_a"`
	OddsA         decimal.Decimal   `json:"odds_a"`
	OddsB         decimal.Decimal   `json:"odds_b"`
	CommissionPct decimal.Decimal   `json:"commission_b"`
	Mode          model.Mode        `json:"mode"`
	Source        model.StakeSource `json:"stake_source"`
}

// Result is the calculator output. The mode-specific metrics are only
// valid for their mode: QualifyingLoss for calificacion, CreditBenefit and
// CreditYield for credito_no_retorno.
type Result struct {
	HedgeStake     decimal.Decimal     `json:"hedge_stake_b"`
	Exposure       decimal.Decimal     `json:"exposure_b"`
	ProfitIfA      decimal.Decimal     `json:"profit_a_wins"`
	ProfitIfB      decimal.Decimal     `json:"profit_b_wins"`
	QualifyingLoss decimal.NullDecimal `json:"perdida_calificacion"`
	CreditBenefit  decimal.NullDecimal `json:"beneficio_cnr"`
	CreditYield    decimal.NullDecimal `json:"rendimiento_cnr"`
	Rating         decimal.Decimal     `json:"rating"`
}

// Validate checks in against the calculator's domain.
func (in Input) Validate() error {
	if !in.Stake.IsPositive() {
		return fmt.Errorf("%w: stake must be positive, got %s", model.ErrInvalidArgument, in.Stake)
	}
	if !in.OddsA.GreaterThan(MinOdds) {
		return fmt.Errorf("%w: odds_a must be greater than %s, got %s", model.ErrInvalidArgument, MinOdds, in.OddsA)
	}
	if !in.OddsB.GreaterThan(MinOdds) {
		return fmt.Errorf("%w: odds_b must be greater than %s, got %s", model.ErrInvalidArgument, MinOdds, in.OddsB)
	}
	if in.CommissionPct.IsNegative() || in.CommissionPct.GreaterThan(MaxCommission) {
		return fmt.Errorf("%w: commission must be between 0 and %s, got %s", model.ErrInvalidArgument, MaxCommission, in.CommissionPct)
	}
	if !in.Mode.Valid() {
		return fmt.Errorf("%w: unknown mode %q", model.ErrInvalidArgument, in.Mode)
	}
	if !in.Source.Valid() {
		return fmt.Errorf("%w: unknown stake source %q", model.ErrInvalidArgument, in.Source)
	}
	return nil
}

// Compute sizes the hedge for in.
func Compute(in Input) (Result, error) {
	if err := in.Validate(); err != nil {
		return Result{}, err
	}

	c := precision.Div(in.CommissionPct, hundred)
	oneMinusC := one.Sub(c)

	var rawStake decimal.Decimal
	switch in.Mode {
	case model.ModeQualification:
		rawStake = precision.Div(in.Stake.Mul(in.OddsA), in.OddsB.Sub(c))
	case model.ModeCreditNoReturn:
		rawStake = precision.Div(in.Stake.Mul(in.OddsA.Sub(one)), in.OddsB.Sub(c))
	}
	rawExposure := rawStake.Mul(in.OddsB.Sub(one))

	hedgeStake := precision.RoundUp(rawStake, precision.MoneyDigits)
	exposure := precision.RoundUp(rawExposure, precision.MoneyDigits)

	// Identical for both funding sources; see DESIGN.md.
	profitA := in.Stake.Mul(in.OddsA.Sub(one)).Sub(exposure)
	profitB := hedgeStake.Mul(oneMinusC)
	if in.Mode == model.ModeQualification {
		profitB = profitB.Sub(in.Stake)
	}
	worst := decimal.Min(profitA, profitB)

	res := Result{
		HedgeStake: hedgeStake,
		Exposure:   exposure,
		ProfitIfA:  precision.Money(profitA),
		ProfitIfB:  precision.Money(profitB),
		Rating:     precision.Money(Rating(in.OddsA, in.OddsB, c)),
	}
	switch in.Mode {
	case model.ModeQualification:
		res.QualifyingLoss = decimal.NewNullDecimal(precision.Money(worst.Neg()))
	case model.ModeCreditNoReturn:
		res.CreditBenefit = decimal.NewNullDecimal(precision.Money(worst))
		res.CreditYield = decimal.NewNullDecimal(precision.Money(precision.Div(worst, in.Stake)))
	}
	return res, nil
}

// Rating scores a pair of odds for ranking; c is the commission as a
// fraction. Higher is better and 100 means a loss-free hedge.
func Rating(oddsA, oddsB, c decimal.Decimal) decimal.Decimal {
	ratio := precision.Div(oddsB.Sub(one), oddsB.Mul(one.Sub(c)))
	return oddsA.Mul(one.Sub(ratio)).Mul(hundred)
}

// TheoreticalStake returns the unrounded covering stake and exposure, the
// lower bounds Compute must never go under.
func TheoreticalStake(in Input) (stake, exposure decimal.Decimal, err error) {
	if err := in.Validate(); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	c := precision.Div(in.CommissionPct, hundred)
	num := in.Stake.Mul(in.OddsA)
	if in.Mode == model.ModeCreditNoReturn {
		num = in.Stake.Mul(in.OddsA.Sub(one))
	}
	stake = precision.Div(num, in.OddsB.Sub(c))
	return stake, stake.Mul(in.OddsB.Sub(one)), nil
}
