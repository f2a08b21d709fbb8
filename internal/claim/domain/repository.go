package domain

import (
	"context"

	"github.com/claimwise/platform/internal/shared/types"
)

// Repository defines the interface for claim persistence
type Repository interface {
	Save(ctx context.Context, c *Claim) error
	FindByID(ctx context.Context, id types.ID) (*Claim, error)
	FindByClaimNumber(ctx context.Context, claimNumber string) (*Claim, error)
	FindByInsurerRef(ctx context.Context, insurer, ref string) (*Claim, error)

	// Update persists the aggregate only when the stored version still
	// equals expectedVersion; otherwise it returns a stale-version error
	// and the caller re-reads and retries
	Update(ctx context.Context, c *Claim, expectedVersion int64) error

	List(ctx context.Context, userID types.ID, filter ListFilter) ([]Claim, int, error)
	GetHistory(ctx context.Context, claimID types.ID) ([]StatusChange, error)
}

// ListFilter defines filters for listing a user's claims
type ListFilter struct {
	Status   *ClaimStatus `json:"status,omitempty"`
	PolicyID *types.ID    `json:"policy_id,omitempty"`
	Category string       `json:"category,omitempty"`
	Limit    int          `json:"limit,omitempty"`
	Offset   int          `json:"offset,omitempty"`
}
