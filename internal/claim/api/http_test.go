package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/claimwise/platform/internal/claim/domain"
	"github.com/claimwise/platform/internal/shared/auth"
	"github.com/claimwise/platform/internal/shared/errors"
	"github.com/claimwise/platform/internal/shared/types"
)

// fakeRepo is an in-memory claim repository for handler tests
type fakeRepo struct {
	claims map[types.ID]*domain.Claim
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{claims: make(map[types.ID]*domain.Claim)}
}

func (r *fakeRepo) Save(ctx context.Context, c *domain.Claim) error {
	r.claims[c.ID] = c
	return nil
}

func (r *fakeRepo) FindByID(ctx context.Context, id types.ID) (*domain.Claim, error) {
	c, ok := r.claims[id]
	if !ok {
		return nil, errors.NotFound("claim", id.String())
	}
	copied := *c
	return &copied, nil
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
	for _, c := range r.claims {
		if c.Insurer == insurer && c.InsurerRef == ref {
			copied := *c
			return &copied, nil
		}
	}
	return nil, errors.NotFound("claim", ref)
}

func (r *fakeRepo) Update(ctx context.Context, c *domain.Claim, expectedVersion int64) error {
	stored, ok := r.claims[c.ID]
	if !ok {
		return errors.NotFound("claim", c.ID.String())
	}
	if stored.Version != expectedVersion {
		return errors.StaleVersion(c.ID.String(), expectedVersion)
	}
	c.Version = expectedVersion + 1
	r.claims[c.ID] = c
	return nil
}

func (r *fakeRepo) List(ctx context.Context, userID types.ID, filter domain.ListFilter) ([]domain.Claim, int, error) {
	return nil, 0, nil
}

func (r *fakeRepo) GetHistory(ctx context.Context, id types.ID) ([]domain.StatusChange, error) {
	return nil, nil
}

func draftClaim(t *testing.T, userID types.ID) *domain.Claim {
	t.Helper()

	c, err := domain.NewClaim(
		userID, types.NewID(), types.NewID(),
		"POL-001", "ACME-HEALTH", "accidental_injury",
		4000, 3000,
	)
	if err != nil {
		t.Fatalf("NewClaim() error = %v", err)
	}
	c.GetDomainEvents() // drain creation event
	return c
}

func doRequest(h *Handler, user *auth.User, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req = req.WithContext(context.WithValue(req.Context(), auth.UserContextKey, user))

	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	return rec
}

func TestSubmitAttachesInsurerRef(t *testing.T) {
	repo := newFakeRepo()
	user := &auth.User{ID: types.NewID()}
	c := draftClaim(t, user.ID)
	repo.Save(context.Background(), c)

	rec := doRequest(NewHandler(repo, nil), user,
		http.MethodPost, "/"+c.ID.String()+"/submit",
		`{"insurer_ref": "LC-2026-0051"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body: %s)", rec.Code, rec.Body.String())
	}

	stored := repo.claims[c.ID]
	if stored.Status != domain.ClaimStatusSubmitted {
		t.Errorf("status = %s, want submitted", stored.Status)
	}
	if stored.InsurerRef != "LC-2026-0051" {
		t.Errorf("insurer ref = %q, want LC-2026-0051", stored.InsurerRef)
	}

	// The persisted ref is what lets adapter status updates correlate
	found, err := repo.FindByInsurerRef(context.Background(), "ACME-HEALTH", "LC-2026-0051")
	if err != nil {
		t.Fatalf("FindByInsurerRef() error = %v", err)
	}
	if found.ID != c.ID {
		t.Errorf("FindByInsurerRef resolved claim %s, want %s", found.ID, c.ID)
	}
}

func TestSubmitWithoutInsurerRef(t *testing.T) {
	repo := newFakeRepo()
	user := &auth.User{ID: types.NewID()}
	c := draftClaim(t, user.ID)
	repo.Save(context.Background(), c)

	rec := doRequest(NewHandler(repo, nil), user,
		http.MethodPost, "/"+c.ID.String()+"/submit", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body: %s)", rec.Code, rec.Body.String())
	}

	stored := repo.claims[c.ID]
	if stored.Status != domain.ClaimStatusSubmitted {
		t.Errorf("status = %s, want submitted", stored.Status)
	}
	if stored.InsurerRef != "" {
		t.Errorf("insurer ref = %q, want empty", stored.InsurerRef)
	}
}

func TestSubmitRejectsForeignClaim(t *testing.T) {
	repo := newFakeRepo()
	owner := types.NewID()
	c := draftClaim(t, owner)
	repo.Save(context.Background(), c)

	other := &auth.User{ID: types.NewID()}
	rec := doRequest(NewHandler(repo, nil), other,
		http.MethodPost, "/"+c.ID.String()+"/submit", "")

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if repo.claims[c.ID].Status != domain.ClaimStatusDraft {
		t.Error("foreign submit must not change the claim")
	}
}
