package types

import (
	"fmt"
	"time"
)

// Period is a half-open time interval [Start, End). A zero End means the
// period is open-ended. Used for policy effective periods and claim periods.
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end,omitempty"`
}

// NewPeriod creates a period, validating ordering
func NewPeriod(start, end time.Time) (Period, error) {
	if !end.IsZero() && !end.After(start) {
		return Period{}, fmt.Errorf("period end %s is not after start %s", end, start)
	}
	return Period{Start: start, End: end}, nil
}

// Contains reports whether t falls inside the period
func (p Period) Contains(t time.Time) bool {
	if t.Before(p.Start) {
		return false
	}
	if p.End.IsZero() {
		return true
	}
	return t.Before(p.End)
}

// IsZero reports whether the period is unset
func (p Period) IsZero() bool {
	return p.Start.IsZero() && p.End.IsZero()
}

// ContactInfo represents contact information for an insurer filing channel
type ContactInfo struct {
	Email  string `json:"email,omitempty"`
	Phone  string `json:"phone,omitempty"`
	Portal string `json:"portal,omitempty"`
}
