package calculator

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/atmx/hedge-engine/internal/model"
)

func ds(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertAmount(t *testing.T, name string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(ds(want)) {
		t.Errorf("%s = %s, want %s", name, got, want)
	}
}

func TestCompute_Qualification(t *testing.T) {
	res, err := Compute(Input{
		Stake:         ds("25"),
		OddsA:         ds("2.0"),
		OddsB:         ds("2.1"),
		CommissionPct: ds("5"),
		Mode:          model.ModeQualification,
		Source:        model.SourceCash,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	assertAmount(t, "hedge stake", res.HedgeStake, "24.40")
	assertAmount(t, "exposure", res.Exposure, "26.83")
	assertAmount(t, "profit if A", res.ProfitIfA, "-1.83")
	assertAmount(t, "profit if B", res.ProfitIfB, "-1.82")
	assertAmount(t, "rating", res.Rating, "89.72")

	if !res.QualifyingLoss.Valid {
		t.Fatal("qualifying loss should be set")
	}
	assertAmount(t, "qualifying loss", res.QualifyingLoss.Decimal, "1.83")
	if res.CreditBenefit.Valid || res.CreditYield.Valid {
		t.Error("credit metrics should be empty in qualification mode")
	}
}

func TestCompute_CreditNoReturn(t *testing.T) {
	res, err := Compute(Input{
		Stake:         ds("20"),
		OddsA:         ds("5.0"),
		OddsB:         ds("5.2"),
		CommissionPct: ds("5"),
		Mode:          model.ModeCreditNoReturn,
		Source:        model.SourceCredit,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	assertAmount(t, "hedge stake", res.HedgeStake, "15.54")
	assertAmount(t, "exposure", res.Exposure, "65.25")
	assertAmount(t, "profit if A", res.ProfitIfA, "14.75")
	assertAmount(t, "profit if B", res.ProfitIfB, "14.76")

	if !res.CreditBenefit.Valid || !res.CreditYield.Valid {
		t.Fatal("credit metrics should be set")
	}
	assertAmount(t, "credit benefit", res.CreditBenefit.Decimal, "14.75")
	assertAmount(t, "credit yield", res.CreditYield.Decimal, "0.74")
	if res.QualifyingLoss.Valid {
		t.Error("qualifying loss should be empty in credit mode")
	}
}

func TestCompute_ZeroCommission(t *testing.T) {
	res, err := Compute(Input{
		Stake:         ds("10"),
		OddsA:         ds("3"),
		OddsB:         ds("3"),
		CommissionPct: decimal.Zero,
		Mode:          model.ModeQualification,
		Source:        model.SourceCash,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Equal odds and no commission: a perfect lay, nothing lost.
	assertAmount(t, "hedge stake", res.HedgeStake, "10.00")
	assertAmount(t, "exposure", res.Exposure, "20.00")
	assertAmount(t, "qualifying loss", res.QualifyingLoss.Decimal, "0")
	assertAmount(t, "rating", res.Rating, "100")
}

func TestCompute_Validation(t *testing.T) {
	valid := Input{
		Stake:         ds("10"),
		OddsA:         ds("2"),
		OddsB:         ds("2.1"),
		CommissionPct: ds("2"),
		Mode:          model.ModeQualification,
		Source:        model.SourceCash,
	}

	tests := []struct {
		name   string
		mutate func(*Input)
	}{
		{"zero stake", func(in *Input) { in.Stake = decimal.Zero }},
		{"negative stake", func(in *Input) { in.Stake = ds("-5") }},
		{"odds A at floor", func(in *Input) { in.OddsA = ds("1.01") }},
		{"odds B below floor", func(in *Input) { in.OddsB = ds("1.005") }},
		{"negative commission", func(in *Input) { in.CommissionPct = ds("-0.1") }},
		{"commission above cap", func(in *Input) { in.CommissionPct = ds("10.01") }},
		{"unknown mode", func(in *Input) { in.Mode = "apuesta_libre" }},
		{"unknown source", func(in *Input) { in.Source = "bono" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.mutate(&in)
			_, err := Compute(in)
			if !errors.Is(err, model.ErrInvalidArgument) {
				t.Errorf("error = %v, want ErrInvalidArgument", err)
			}
		})
	}

	t.Run("commission at cap", func(t *testing.T) {
		in := valid
		in.CommissionPct = ds("10")
		if _, err := Compute(in); err != nil {
			t.Errorf("commission of 10 should be accepted: %v", err)
		}
	})
}

// The rounded stake and exposure always cover the unrounded ones, and
// never by a full cent or more.
func TestCompute_StakeAndExposureCoverTheory(t *testing.T) {
	cent := ds("0.01")
	stakes := []string{"1", "7.77", "25", "100", "333.33"}
	odds := []string{"1.02", "1.5", "2.0", "2.38", "3.75", "9.4", "21", "101.5"}
	commissions := []string{"0", "2", "5", "6.5", "10"}
	modes := []model.Mode{model.ModeQualification, model.ModeCreditNoReturn}

	for _, s := range stakes {
		for _, a := range odds {
			for _, b := range odds {
				for _, c := range commissions {
					for _, m := range modes {
						in := Input{
							Stake:         ds(s),
							OddsA:         ds(a),
							OddsB:         ds(b),
							CommissionPct: ds(c),
							Mode:          m,
							Source:        model.SourceCash,
						}
						res, err := Compute(in)
						if err != nil {
							t.Fatalf("Compute(%+v): %v", in, err)
						}
						rawStake, rawExposure, err := TheoreticalStake(in)
						if err != nil {
							t.Fatalf("TheoreticalStake(%+v): %v", in, err)
						}
						if res.HedgeStake.LessThan(rawStake) || res.HedgeStake.Sub(rawStake).GreaterThanOrEqual(cent) {
							t.Fatalf("%+v: hedge stake %s does not tightly cover %s", in, res.HedgeStake, rawStake)
						}
						if res.Exposure.LessThan(rawExposure) || res.Exposure.Sub(rawExposure).GreaterThanOrEqual(cent) {
							t.Fatalf("%+v: exposure %s does not tightly cover %s", in, res.Exposure, rawExposure)
						}
					}
				}
			}
		}
	}
}

func TestRating_Monotonic(t *testing.T) {
	c := ds("0.05")
	low := Rating(ds("2.0"), ds("2.2"), c)
	high := Rating(ds("2.0"), ds("2.05"), c)
	if !high.GreaterThan(low) {
		t.Errorf("tighter lay odds should rate higher: %s vs %s", high, low)
	}
}
