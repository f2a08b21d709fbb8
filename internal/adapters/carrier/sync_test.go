package carrier

import (
	"context"
	"testing"
	"time"

	"github.com/claimwise/platform/internal/claim/domain"
	"github.com/claimwise/platform/internal/shared/errors"
	"github.com/claimwise/platform/internal/shared/types"
)

// fakeRepo is an in-memory claim repository for syncer tests
type fakeRepo struct {
	claims      map[string]*domain.Claim // keyed by insurer ref
	updateCalls int
	failUpdates int // return StaleVersion for this many Update calls
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{claims: make(map[string]*domain.Claim)}
}

func (r *fakeRepo) Save(ctx context.Context, c *domain.Claim) error {
	r.claims[c.InsurerRef] = c
	return nil
}

func (r *fakeRepo) FindByID(ctx context.Context, id types.ID) (*domain.Claim, error) {
	for _, c := range r.claims {
		if c.ID == id {
			copied := *c
			return &copied, nil
		}
	}
	return nil, errors.NotFound("claim", id.String())
}

func (r *fakeRepo) FindByClaimNumber(ctx context.Context, number string) (*domain.Claim, error) {
	for _, c := range r.claims {
		if c.ClaimNumber == number {
			copied := *c
			return &copied, nil
		}
	}
	return nil, errors.NotFound("claim", number)
}

func (r *fakeRepo) FindByInsurerRef(ctx context.Context, insurer, ref string) (*domain.Claim, error) {
	c, ok := r.claims[ref]
	if !ok {
		return nil, errors.NotFound("claim", ref)
	}
	copied := *c
	return &copied, nil
}

func (r *fakeRepo) Update(ctx context.Context, c *domain.Claim, expectedVersion int64) error {
	r.updateCalls++
	if r.failUpdates > 0 {
		r.failUpdates--
		return errors.StaleVersion(c.ID.String(), expectedVersion)
	}
	c.Version = expectedVersion + 1
	r.claims[c.InsurerRef] = c
	return nil
}

func (r *fakeRepo) List(ctx context.Context, userID types.ID, filter domain.ListFilter) ([]domain.Claim, int, error) {
	return nil, 0, nil
}

func (r *fakeRepo) GetHistory(ctx context.Context, id types.ID) ([]domain.StatusChange, error) {
	return nil, nil
}

func submittedClaim(t *testing.T, ref string) *domain.Claim {
	t.Helper()

	c, err := domain.NewClaim(
		types.NewID(), types.NewID(), types.NewID(),
		"POL-001", "ACME-HEALTH", "accidental_injury",
		4000, 3000,
	)
	if err != nil {
		t.Fatalf("NewClaim() error = %v", err)
	}
	if err := c.Submit("user:test"); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if err := c.AssignInsurerRef(ref); err != nil {
		t.Fatalf("AssignInsurerRef() error = %v", err)
	}
	c.GetDomainEvents() // drain setup events
	return c
}

func statusEvent(ref string, status RemoteStatus) StatusUpdateEvent {
	return StatusUpdateEvent{
		EventID:      "evt-1",
		Timestamp:    time.Now(),
		InsurerRef:   ref,
		Status:       status,
		SourceSystem: "legacycore",
		InsurerCode:  "ACME-HEALTH",
	}
}

func TestApplyApproval(t *testing.T) {
	repo := newFakeRepo()
	repo.Save(context.Background(), submittedClaim(t, "REF-100"))

	amount := 2750.0
	event := statusEvent("REF-100", RemoteStatusApproved)
	event.ApprovedAmount = &amount

	syncer := NewSyncer(repo, nil)
	if err := syncer.Apply(context.Background(), event); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	c := repo.claims["REF-100"]
	if c.Status != domain.ClaimStatusApproved {
		t.Errorf("status = %s, want approved", c.Status)
	}
	if c.ApprovedAmount == nil || *c.ApprovedAmount != 2750 {
		t.Errorf("approved amount = %v, want 2750", c.ApprovedAmount)
	}
}

func TestApplyApprovalDefaultsToExpectedPayout(t *testing.T) {
	repo := newFakeRepo()
	repo.Save(context.Background(), submittedClaim(t, "REF-101"))

	syncer := NewSyncer(repo, nil)
	if err := syncer.Apply(context.Background(), statusEvent("REF-101", RemoteStatusApproved)); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	c := repo.claims["REF-101"]
	if c.ApprovedAmount == nil || *c.ApprovedAmount != 3000 {
		t.Errorf("approved amount = %v, want expected payout 3000", c.ApprovedAmount)
	}
}

func TestApplyRejection(t *testing.T) {
	repo := newFakeRepo()
	repo.Save(context.Background(), submittedClaim(t, "REF-102"))

	event := statusEvent("REF-102", RemoteStatusRejected)
	event.Reason = "policy lapsed at incident date"

	syncer := NewSyncer(repo, nil)
	if err := syncer.Apply(context.Background(), event); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	c := repo.claims["REF-102"]
	if c.Status != domain.ClaimStatusRejected {
		t.Errorf("status = %s, want rejected", c.Status)
	}
}

func TestApplyPaidClosesClaim(t *testing.T) {
	repo := newFakeRepo()
	repo.Save(context.Background(), submittedClaim(t, "REF-103"))

	syncer := NewSyncer(repo, nil)
	if err := syncer.Apply(context.Background(), statusEvent("REF-103", RemoteStatusPaid)); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	c := repo.claims["REF-103"]
	if c.Status != domain.ClaimStatusClosed {
		t.Errorf("status = %s, want closed", c.Status)
	}
	if c.ClosedAt == nil {
		t.Error("ClosedAt should be set")
	}
}

func TestApplyReceivedIsNoOp(t *testing.T) {
	repo := newFakeRepo()
	repo.Save(context.Background(), submittedClaim(t, "REF-104"))

	syncer := NewSyncer(repo, nil)
	if err := syncer.Apply(context.Background(), statusEvent("REF-104", RemoteStatusReceived)); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	if repo.updateCalls != 0 {
		t.Errorf("updateCalls = %d, want 0", repo.updateCalls)
	}
	if got := repo.claims["REF-104"].Status; got != domain.ClaimStatusSubmitted {
		t.Errorf("status = %s, want submitted", got)
	}
}

func TestApplyIdempotentOnRepeatedStatus(t *testing.T) {
	repo := newFakeRepo()
	repo.Save(context.Background(), submittedClaim(t, "REF-105"))

	syncer := NewSyncer(repo, nil)
	event := statusEvent("REF-105", RemoteStatusApproved)

	if err := syncer.Apply(context.Background(), event); err != nil {
		t.Fatalf("first Apply() error = %v", err)
	}
	calls := repo.updateCalls

	if err := syncer.Apply(context.Background(), event); err != nil {
		t.Fatalf("second Apply() error = %v", err)
	}
	if repo.updateCalls != calls {
		t.Errorf("repeated event caused %d extra updates", repo.updateCalls-calls)
	}
}

func TestApplyRetriesOnStaleVersion(t *testing.T) {
	repo := newFakeRepo()
	repo.Save(context.Background(), submittedClaim(t, "REF-106"))
	repo.failUpdates = 1

	syncer := NewSyncer(repo, nil)
	if err := syncer.Apply(context.Background(), statusEvent("REF-106", RemoteStatusInReview)); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	if repo.updateCalls != 2 {
		t.Errorf("updateCalls = %d, want 2", repo.updateCalls)
	}
	if got := repo.claims["REF-106"].Status; got != domain.ClaimStatusUnderReview {
		t.Errorf("status = %s, want under_review", got)
	}
}

func TestApplyGivesUpAfterRepeatedConflicts(t *testing.T) {
	repo := newFakeRepo()
	repo.Save(context.Background(), submittedClaim(t, "REF-107"))
	repo.failUpdates = maxSyncRetries

	syncer := NewSyncer(repo, nil)
	err := syncer.Apply(context.Background(), statusEvent("REF-107", RemoteStatusInReview))
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
}
