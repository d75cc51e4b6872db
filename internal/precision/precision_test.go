package precision

import (
	"testing"

	"github.com/shopspring/decimal"
)

func ds(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestRoundHalfUp(t *testing.T) {
	tests := []struct {
		in     string
		digits int32
		want   string
	}{
		{"1.005", 2, "1.01"},
		{"1.004", 2, "1.00"},
		{"-1.005", 2, "-1.01"},
		{"2.5", 0, "3"},
		{"25", 2, "25.00"},
		{"0.125", 2, "0.13"},
		{"89.7243", 1, "89.7"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := RoundHalfUp(ds(tt.in), tt.digits)
			if !got.Equal(ds(tt.want)) || got.StringFixed(tt.digits) != tt.want || got.Exponent() != -tt.digits {
				t.Errorf("RoundHalfUp(%s, %d) = %s, want %s", tt.in, tt.digits, got, tt.want)
			}
		})
	}
}

func TestRoundUp(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"24.390243902439", "24.40"},
		{"26.829268292683", "26.83"},
		{"26.83", "26.83"},
		{"26.8300000001", "26.84"},
		{"-1.239", "-1.23"},
		{"7", "7.00"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := RoundUp(ds(tt.in), 2)
			if !got.Equal(ds(tt.want)) || got.Exponent() != -2 {
				t.Errorf("RoundUp(%s) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestRoundUp_NeverBelowInputAndExactDigits(t *testing.T) {
	values := []string{
		"0", "0.001", "0.009", "0.01", "1", "1.999999", "13.3333333333333",
		"-0.001", "-5.555", "123456.789012", "99.995", "0.0000000000000000000000000001",
	}
	for _, digits := range []int32{0, 1, 2, 4} {
		for _, s := range values {
			v := ds(s)
			got := RoundUp(v, digits)
			if got.LessThan(v) {
				t.Errorf("RoundUp(%s, %d) = %s is below input", s, digits, got)
			}
			if got.Exponent() != -digits {
				t.Errorf("RoundUp(%s, %d) = %s has exponent %d", s, digits, got, got.Exponent())
			}
			if !got.Equal(got.Truncate(digits)) {
				t.Errorf("RoundUp(%s, %d) = %s carries extra digits", s, digits, got)
			}
		}
	}
}

func TestDiv_KeepsWorkingPrecision(t *testing.T) {
	got := Div(decimal.NewFromInt(1), decimal.NewFromInt(3))
	if got.Exponent() != -DivScale {
		t.Fatalf("Div exponent = %d, want %d", got.Exponent(), -DivScale)
	}
	back := got.Mul(decimal.NewFromInt(3))
	if decimal.NewFromInt(1).Sub(back).GreaterThan(ds("1e-27")) {
		t.Errorf("1/3*3 = %s, lost precision", back)
	}
}
