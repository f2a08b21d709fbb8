package recommendation

import (
	"time"

	"github.com/claimwise/platform/internal/policy"
	"github.com/claimwise/platform/internal/shared/errors"
	"github.com/claimwise/platform/internal/shared/types"
)

// Situation is the normalized description of what happened, supplied by
// the conversational collaborator. It is ephemeral: scoped to one
// recommendation request and never persisted by the engine.
type Situation struct {
	Category      string    `json:"category"`
	Tags          []string  `json:"tags,omitempty"`
	IncidentDate  time.Time `json:"incident_date"`
	ClaimedAmount float64   `json:"claimed_amount"`
	Severity      float64   `json:"severity,omitempty"`
	Description   string    `json:"description,omitempty"`
}

// Validate rejects malformed situations before any matching runs
func (s Situation) Validate() error {
	if s.ClaimedAmount < 0 {
		return errors.Validation("malformed situation", map[string]string{
			"claimed_amount": "must be non-negative",
		})
	}
	if s.Severity < 0 {
		return errors.Validation("malformed situation", map[string]string{
			"severity": "must be non-negative",
		})
	}
	return nil
}

// Request is the explicit per-request context the engine operates on:
// the requesting user, an immutable snapshot of their active policies,
// and the situation. Nothing ambient, so matching, ranking and
// optimization stay pure and safe to run in parallel across users.
type Request struct {
	UserID    types.ID
	Policies  []policy.PolicyRecord
	Situation Situation
}
