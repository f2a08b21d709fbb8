package domain

import (
	stderrors "errors"
	"testing"

	"github.com/claimwise/platform/internal/shared/errors"
	"github.com/claimwise/platform/internal/shared/types"
)

func newTestClaim(t *testing.T) *Claim {
	t.Helper()

	c, err := NewClaim(
		types.NewID(), types.NewID(), types.NewID(),
		"AC-100", "AccidentCare", "accidental_injury",
		4000, 3000,
	)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	return c
}

// TestNewClaim tests creating a draft claim
func TestNewClaim(t *testing.T) {
	c := newTestClaim(t)

	if c.ID.IsZero() {
		t.Error("Expected non-zero ID")
	}
	if c.Status != ClaimStatusDraft {
		t.Errorf("Expected status %s, got %s", ClaimStatusDraft, c.Status)
	}
	if c.Version != 1 {
		t.Errorf("Expected version 1, got %d", c.Version)
	}
	if c.ClaimNumber == "" {
		t.Error("Expected a claim number")
	}
	if len(c.StatusHistory) != 0 {
		t.Errorf("Expected empty status history on creation, got %d entries", len(c.StatusHistory))
	}

	events := c.GetDomainEvents()
	if len(events) != 1 || events[0].Type != EventTypeCreated {
		t.Errorf("Expected a single creation event, got %+v", events)
	}
}

// TestNewClaimValidation tests validation when creating a claim
func TestNewClaimValidation(t *testing.T) {
	userID := types.NewID()
	policyID := types.NewID()
	itemID := types.NewID()

	tests := []struct {
		name        string
		userID      types.ID
		policyID    types.ID
		itemID      types.ID
		category    string
		claimed     float64
		expectError bool
	}{
		{"Zero user ID", types.ID(""), policyID, itemID, "dental", 100, true},
		{"Zero policy ID", userID, types.ID(""), itemID, "dental", 100, true},
		{"Zero item ID", userID, policyID, types.ID(""), "dental", 100, true},
		{"Empty category", userID, policyID, itemID, "", 100, true},
		{"Negative amount", userID, policyID, itemID, "dental", -1, true},
		{"Valid claim", userID, policyID, itemID, "dental", 100, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClaim(tt.userID, tt.policyID, tt.itemID,
				"PN-1", "Insurer", tt.category, tt.claimed, 0)

			if tt.expectError && err == nil {
				t.Error("Expected error but got none")
			}
			if !tt.expectError && err != nil {
				t.Errorf("Expected no error, got %v", err)
			}
		})
	}
}

// TestClaimLifecycle walks the full happy path and checks that every
// transition appends exactly one history entry
func TestClaimLifecycle(t *testing.T) {
	c := newTestClaim(t)
	c.GetDomainEvents()

	steps := []struct {
		name string
		move func() error
		want ClaimStatus
	}{
		{"submit", func() error { return c.Submit("user:ana") }, ClaimStatusSubmitted},
		{"start review", func() error { return c.StartReview("insurer:AccidentCare") }, ClaimStatusUnderReview},
		{"approve", func() error { return c.Approve("insurer:AccidentCare", 2800) }, ClaimStatusApproved},
		{"close", func() error { return c.Close("system") }, ClaimStatusClosed},
	}

	for i, step := range steps {
		if err := step.move(); err != nil {
			t.Fatalf("%s: expected no error, got %v", step.name, err)
		}
		if c.Status != step.want {
			t.Fatalf("%s: expected status %s, got %s", step.name, step.want, c.Status)
		}
		if len(c.StatusHistory) != i+1 {
			t.Fatalf("%s: expected %d history entries, got %d", step.name, i+1, len(c.StatusHistory))
		}
	}

	last := c.StatusHistory[len(c.StatusHistory)-1]
	if last.From != ClaimStatusApproved || last.To != ClaimStatusClosed {
		t.Errorf("Expected final entry approved -> closed, got %s -> %s", last.From, last.To)
	}
	if c.ClosedAt == nil {
		t.Error("Expected closed timestamp to be set")
	}
	if c.ApprovedAmount == nil || *c.ApprovedAmount != 2800 {
		t.Errorf("Expected approved amount 2800, got %v", c.ApprovedAmount)
	}

	events := c.GetDomainEvents()
	if len(events) != 4 {
		t.Errorf("Expected 4 transition events, got %d", len(events))
	}
}

// TestInvalidTransitionLeavesClaimUnchanged tests that illegal moves are
// rejected without touching status or history
func TestInvalidTransitionLeavesClaimUnchanged(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(c *Claim)
		move    func(c *Claim) error
	}{
		{"draft cannot be approved", func(c *Claim) {}, func(c *Claim) error {
			return c.Approve("insurer:X", 100)
		}},
		{"draft cannot be reviewed", func(c *Claim) {}, func(c *Claim) error {
			return c.StartReview("insurer:X")
		}},
		{"draft cannot be withdrawn", func(c *Claim) {}, func(c *Claim) error {
			return c.Withdraw("user:ana", "changed my mind")
		}},
		{"closed cannot be resubmitted", func(c *Claim) {
			c.Submit("u")
			c.StartReview("i")
			c.Approve("i", 100)
			c.Close("system")
		}, func(c *Claim) error {
			return c.Submit("u")
		}},
		{"rejected is terminal", func(c *Claim) {
			c.Submit("u")
			c.StartReview("i")
			c.Reject("i", "not covered")
		}, func(c *Claim) error {
			return c.StartReview("i")
		}},
		{"withdrawn is terminal", func(c *Claim) {
			c.Submit("u")
			c.Withdraw("u", "duplicate")
		}, func(c *Claim) error {
			return c.Submit("u")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClaim(t)
			tt.prepare(c)

			statusBefore := c.Status
			historyBefore := len(c.StatusHistory)
			updatedBefore := c.UpdatedAt

			err := tt.move(c)
			if err == nil {
				t.Fatal("Expected error but got none")
			}
			if !stderrors.Is(err, errors.ErrInvalidTransition) {
				t.Errorf("Expected invalid transition error, got %v", err)
			}

			if c.Status != statusBefore {
				t.Errorf("Status changed from %s to %s on rejected transition", statusBefore, c.Status)
			}
			if len(c.StatusHistory) != historyBefore {
				t.Errorf("History grew from %d to %d on rejected transition", historyBefore, len(c.StatusHistory))
			}
			if !c.UpdatedAt.Equal(updatedBefore) {
				t.Error("UpdatedAt changed on rejected transition")
			}
		})
	}
}

// TestWithdrawFromReview tests that an under-review claim can still be
// withdrawn by the user
func TestWithdrawFromReview(t *testing.T) {
	c := newTestClaim(t)
	c.Submit("user:ana")
	c.StartReview("insurer:AccidentCare")

	if err := c.Withdraw("user:ana", "settled privately"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if c.Status != ClaimStatusWithdrawn {
		t.Errorf("Expected status %s, got %s", ClaimStatusWithdrawn, c.Status)
	}
	if !c.Status.IsTerminal() {
		t.Error("Expected withdrawn to be terminal")
	}
	if c.Active() {
		t.Error("Withdrawn claim must release its per-period allowance")
	}
}

// TestApproveRejectsNegativeAmount tests amount validation on approval
func TestApproveRejectsNegativeAmount(t *testing.T) {
	c := newTestClaim(t)
	c.Submit("u")
	c.StartReview("i")

	if err := c.Approve("i", -50); err == nil {
		t.Fatal("Expected error for negative approved amount")
	}
	if c.Status != ClaimStatusUnderReview {
		t.Errorf("Expected status unchanged, got %s", c.Status)
	}
}

// TestAssignInsurerRef tests external reference assignment
func TestAssignInsurerRef(t *testing.T) {
	c := newTestClaim(t)

	if err := c.AssignInsurerRef("EXT-42"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if err := c.AssignInsurerRef("EXT-42"); err != nil {
		t.Errorf("Reassigning the same reference should be idempotent, got %v", err)
	}
	if err := c.AssignInsurerRef("EXT-99"); err == nil {
		t.Error("Expected conflict when changing an assigned reference")
	}
}
