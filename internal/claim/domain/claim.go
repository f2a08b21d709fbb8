package domain

import (
	"fmt"
	"time"

	"github.com/claimwise/platform/internal/shared/errors"
	"github.com/claimwise/platform/internal/shared/types"
)

// ClaimStatus defines the lifecycle status of a claim
type ClaimStatus string

const (
	ClaimStatusDraft       ClaimStatus = "draft"
	ClaimStatusSubmitted   ClaimStatus = "submitted"
	ClaimStatusUnderReview ClaimStatus = "under_review"
	ClaimStatusApproved    ClaimStatus = "approved"
	ClaimStatusRejected    ClaimStatus = "rejected"
	ClaimStatusClosed      ClaimStatus = "closed"
	ClaimStatusWithdrawn   ClaimStatus = "withdrawn"
)

// transitions is the full set of legal status moves. Anything not listed
// is rejected and leaves the claim untouched.
var transitions = map[ClaimStatus][]ClaimStatus{
	ClaimStatusDraft:       {ClaimStatusSubmitted},
	ClaimStatusSubmitted:   {ClaimStatusUnderReview, ClaimStatusWithdrawn},
	ClaimStatusUnderReview: {ClaimStatusApproved, ClaimStatusRejected, ClaimStatusWithdrawn},
	ClaimStatusApproved:    {ClaimStatusClosed},
	ClaimStatusRejected:    {},
	ClaimStatusClosed:      {},
	ClaimStatusWithdrawn:   {},
}

// IsTerminal reports whether no further transition is possible
func (s ClaimStatus) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// StatusChange is one append-only entry in the claim's status history
type StatusChange struct {
	ID        types.ID    `json:"id"`
	ClaimID   types.ID    `json:"claim_id"`
	From      ClaimStatus `json:"from"`
	To        ClaimStatus `json:"to"`
	Actor     string      `json:"actor"`
	Note      string      `json:"note,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Event is a domain event raised by an aggregate, published after the
// aggregate is persisted
type Event struct {
	Type    string       `json:"type"`
	ClaimID types.ID     `json:"claim_id"`
	Change  StatusChange `json:"change"`
}

const (
	EventTypeCreated          = "claim.created"
	EventTypeStatusTransition = "claim.status_changed"
)

// Claim is the aggregate root for filed claim tracking. It is created
// from an accepted plan entry and from then on advances only through
// the guarded transition methods; status history is append-only and the
// history is never edited after the fact.
type Claim struct {
	ID          types.ID `json:"id"`
	ClaimNumber string   `json:"claim_number"`
	UserID      types.ID `json:"user_id"`

	// Coverage the claim is filed against
	PolicyID       types.ID `json:"policy_id"`
	PolicyNumber   string   `json:"policy_number"`
	Insurer        string   `json:"insurer"`
	CoverageItemID types.ID `json:"coverage_item_id"`
	Category       string   `json:"category"`

	ClaimedAmount  float64  `json:"claimed_amount"`
	ExpectedPayout float64  `json:"expected_payout"`
	ApprovedAmount *float64 `json:"approved_amount,omitempty"`

	Status        ClaimStatus    `json:"status"`
	StatusHistory []StatusChange `json:"status_history"`

	// Reference assigned by the insurer once the claim is filed with
	// them, used to correlate adapter status updates
	InsurerRef string `json:"insurer_ref,omitempty"`

	// Version increments on every persisted update; concurrent writers
	// detect each other through it
	Version int64 `json:"version"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`

	domainEvents []Event
}

// NewClaim creates a draft claim with validation
func NewClaim(
	userID, policyID, coverageItemID types.ID,
	policyNumber, insurer, category string,
	claimedAmount, expectedPayout float64,
) (*Claim, error) {
	if userID.IsZero() {
		return nil, fmt.Errorf("user is required")
	}
	if policyID.IsZero() || coverageItemID.IsZero() {
		return nil, fmt.Errorf("coverage reference is required")
	}
	if category == "" {
		return nil, fmt.Errorf("category is required")
	}
	if claimedAmount < 0 || expectedPayout < 0 {
		return nil, fmt.Errorf("amounts must be non-negative")
	}

	now := time.Now()
	c := &Claim{
		ID:             types.NewID(),
		ClaimNumber:    generateClaimNumber(),
		UserID:         userID,
		PolicyID:       policyID,
		PolicyNumber:   policyNumber,
		Insurer:        insurer,
		CoverageItemID: coverageItemID,
		Category:       category,
		ClaimedAmount:  claimedAmount,
		ExpectedPayout: expectedPayout,
		Status:         ClaimStatusDraft,
		StatusHistory:  []StatusChange{},
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	c.domainEvents = append(c.domainEvents, Event{
		Type:    EventTypeCreated,
		ClaimID: c.ID,
	})

	return c, nil
}

// Submit files the draft claim with the insurer
func (c *Claim) Submit(actor string) error {
	return c.transition(ClaimStatusSubmitted, actor, "")
}

// StartReview records that the insurer has begun reviewing the claim
func (c *Claim) StartReview(actor string) error {
	return c.transition(ClaimStatusUnderReview, actor, "")
}

// Approve records the insurer's approval and the approved amount
func (c *Claim) Approve(actor string, amount float64) error {
	if amount < 0 {
		return errors.Validation("malformed approval", map[string]string{
			"amount": "must be non-negative",
		})
	}
	if err := c.transition(ClaimStatusApproved, actor, fmt.Sprintf("approved for %.2f", amount)); err != nil {
		return err
	}
	c.ApprovedAmount = &amount
	return nil
}

// Reject records the insurer's rejection with a reason
func (c *Claim) Reject(actor, reason string) error {
	return c.transition(ClaimStatusRejected, actor, reason)
}

// Withdraw retracts a claim the user no longer wants to pursue. Only
// submitted and under-review claims can be withdrawn.
func (c *Claim) Withdraw(actor, reason string) error {
	return c.transition(ClaimStatusWithdrawn, actor, reason)
}

// Close settles an approved claim
func (c *Claim) Close(actor string) error {
	if err := c.transition(ClaimStatusClosed, actor, ""); err != nil {
		return err
	}
	now := time.Now()
	c.ClosedAt = &now
	return nil
}

// AssignInsurerRef records the insurer's external reference for the
// claim; updates after first assignment are rejected
func (c *Claim) AssignInsurerRef(ref string) error {
	if c.InsurerRef != "" && c.InsurerRef != ref {
		return errors.Conflict(fmt.Sprintf("claim already carries insurer reference %s", c.InsurerRef))
	}
	c.InsurerRef = ref
	c.UpdatedAt = time.Now()
	return nil
}

// transition performs a guarded status move. An illegal move returns an
// invalid-transition error and leaves status, history and timestamps
// exactly as they were.
func (c *Claim) transition(to ClaimStatus, actor, note string) error {
	if !c.canTransition(to) {
		return errors.InvalidTransition(string(c.Status), string(to))
	}

	from := c.Status
	now := time.Now()

	change := StatusChange{
		ID:        types.NewID(),
		ClaimID:   c.ID,
		From:      from,
		To:        to,
		Actor:     actor,
		Note:      note,
		Timestamp: now,
	}

	c.Status = to
	c.UpdatedAt = now
	c.StatusHistory = append(c.StatusHistory, change)
	c.domainEvents = append(c.domainEvents, Event{
		Type:    EventTypeStatusTransition,
		ClaimID: c.ID,
		Change:  change,
	})

	return nil
}

func (c *Claim) canTransition(to ClaimStatus) bool {
	for _, allowed := range transitions[c.Status] {
		if allowed == to {
			return true
		}
	}
	return false
}

// GetDomainEvents returns and clears pending domain events
func (c *Claim) GetDomainEvents() []Event {
	events := c.domainEvents
	c.domainEvents = nil
	return events
}

// Active reports whether the claim still consumes its coverage item's
// per-period allowance. Withdrawn and rejected claims release it.
func (c *Claim) Active() bool {
	return c.Status != ClaimStatusWithdrawn && c.Status != ClaimStatusRejected
}

// generateClaimNumber generates a unique claim number
func generateClaimNumber() string {
	// Format: CLM-YEAR-SEQUENCE; production allocation would use a
	// database sequence
	year := time.Now().Year()
	seq := time.Now().UnixNano() % 1000000

	return fmt.Sprintf("CLM-%d-%06d", year, seq)
}
