package model

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseStatus_RoundTripsTextForms(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusOriginWon, StatusHedgeWon, StatusVoid, StatusCancelled} {
		got, err := ParseStatus(s.String())
		if err != nil {
			t.Fatalf("ParseStatus(%q) error: %v", s.String(), err)
		}
		if got != s {
			t.Errorf("ParseStatus(%q) = %v, want %v", s.String(), got, s)
		}
	}
}

func TestParseStatus_Unknown(t *testing.T) {
	for _, in := range []string{"", "pendiente", "WON"} {
		if _, err := ParseStatus(in); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("ParseStatus(%q) error = %v, want ErrInvalidArgument", in, err)
		}
	}
}

func TestStatus_Terminal(t *testing.T) {
	if StatusPending.Terminal() {
		t.Error("PENDIENTE must not be terminal")
	}
	for _, s := range []Status{StatusOriginWon, StatusHedgeWon, StatusVoid, StatusCancelled} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
}

func TestParseOutcome(t *testing.T) {
	tests := []struct {
		in      string
		want    Status
		wantErr bool
	}{
		{"GANA_A", StatusOriginWon, false},
		{"GANA_B", StatusHedgeWon, false},
		{"ANULADA", StatusVoid, false},
		{"CANCELADA", StatusUnknown, true},
		{"PENDIENTE", StatusUnknown, true},
		{"DRAW", StatusUnknown, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseOutcome(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidOutcome) {
					t.Fatalf("error = %v, want ErrInvalidOutcome", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStatus_JSON(t *testing.T) {
	data, err := json.Marshal(struct {
		S Status `json:"s"`
	}{StatusHedgeWon})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"s":"GANA_B"}` {
		t.Errorf("marshal = %s", data)
	}

	var out struct {
		S Status `json:"s"`
	}
	if err := json.Unmarshal([]byte(`{"s":"CANCELADA"}`), &out); err != nil {
		t.Fatal(err)
	}
	if out.S != StatusCancelled {
		t.Errorf("unmarshal = %v, want CANCELADA", out.S)
	}
}
