package model

import "fmt"

// Status is the lifecycle state of an Operation. Pending is the only
// non-terminal state; the zero value is not a valid status.
type Status uint8

const (
	StatusUnknown   Status = iota
	StatusPending          // PENDIENTE
	StatusOriginWon        // GANA_A
	StatusHedgeWon         // GANA_B
	StatusVoid             // ANULADA
	StatusCancelled        // CANCELADA
)

var statusNames = [...]string{
	StatusUnknown:   "",
	StatusPending:   "PENDIENTE",
	StatusOriginWon: "GANA_A",
	StatusHedgeWon:  "GANA_B",
	StatusVoid:      "ANULADA",
	StatusCancelled: "CANCELADA",
}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("Status(%d)", uint8(s))
}

// ParseStatus maps the persisted text form back to a Status.
func ParseStatus(s string) (Status, error) {
	for i, name := range statusNames {
		if i != int(StatusUnknown) && name == s {
			return Status(i), nil
		}
	}
	return StatusUnknown, fmt.Errorf("%w: unknown status %q", ErrInvalidArgument, s)
}

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusOriginWon, StatusHedgeWon, StatusVoid, StatusCancelled:
		return true
	}
	return false
}

// Outcome reports whether s is a valid settlement outcome.
func (s Status) Outcome() bool {
	switch s {
	case StatusOriginWon, StatusHedgeWon, StatusVoid:
		return true
	}
	return false
}

// ParseOutcome parses a settlement outcome. Anything other than GANA_A,
// GANA_B or ANULADA is rejected with ErrInvalidOutcome.
func ParseOutcome(s string) (Status, error) {
	st, err := ParseStatus(s)
	if err != nil || !st.Outcome() {
		return StatusUnknown, fmt.Errorf("%w: %q", ErrInvalidOutcome, s)
	}
	return st, nil
}

func (s Status) MarshalText() ([]byte, error) {
	if s == StatusUnknown || int(s) >= len(statusNames) {
		return nil, fmt.Errorf("model: cannot marshal status %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	st, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = st
	return nil
}
