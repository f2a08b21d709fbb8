package policy

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/claimwise/platform/internal/shared/errors"
	"github.com/claimwise/platform/internal/shared/types"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides database operations for policy records
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new policy repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Save stores a validated policy record with its coverage items
func (r *Repository) Save(ctx context.Context, p *PolicyRecord) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO insurance.policies (
			id, user_id, policy_number, insurer_code, policy_type,
			effective_start, effective_end, version, superseded_by,
			source_confidence, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	var start, end any
	if !p.Effective.Start.IsZero() {
		start = p.Effective.Start
	}
	if !p.Effective.End.IsZero() {
		end = p.Effective.End
	}

	_, err = tx.Exec(ctx, query,
		p.ID, p.UserID, p.PolicyNumber, p.Insurer, p.PolicyType,
		start, end, p.Version, p.SupersededBy,
		p.SourceConfidence, p.CreatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return errors.Conflict("policy with this number and version already exists")
		}
		return errors.Wrap(err, "failed to save policy")
	}

	for i, item := range p.Items {
		if err := r.saveItem(ctx, tx, p.ID, i, &item); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}

	return nil
}

func (r *Repository) saveItem(ctx context.Context, tx pgx.Tx, policyID types.ID, position int, item *CoverageItem) error {
	inclusion, err := json.Marshal(item.Inclusion)
	if err != nil {
		return errors.Wrap(err, "failed to marshal inclusion conditions")
	}
	exclusion, err := json.Marshal(item.Exclusion)
	if err != nil {
		return errors.Wrap(err, "failed to marshal exclusion conditions")
	}

	query := `
		INSERT INTO insurance.coverage_items (
			id, policy_id, position, category, limit_amount, deductible,
			waiting_period_days, max_claims_per_period,
			inclusion_conditions, exclusion_conditions
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err = tx.Exec(ctx, query,
		item.ID, policyID, position, item.Category, item.LimitAmount, item.Deductible,
		item.WaitingPeriodDays, item.MaxClaimsPerPeriod,
		inclusion, exclusion,
	)
	if err != nil {
		return errors.Wrap(err, "failed to save coverage item")
	}

	return nil
}

// FindByID finds a policy record by ID
func (r *Repository) FindByID(ctx context.Context, id types.ID) (*PolicyRecord, error) {
	query := `
		SELECT id, user_id, policy_number, insurer_code, policy_type,
			effective_start, effective_end, version, superseded_by,
			source_confidence, created_at
		FROM insurance.policies
		WHERE id = $1`

	p := &PolicyRecord{}
	var effStart, effEnd *time.Time
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.UserID, &p.PolicyNumber, &p.Insurer, &p.PolicyType,
		&effStart, &effEnd, &p.Version, &p.SupersededBy,
		&p.SourceConfidence, &p.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("policy", id.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find policy")
	}

	if effStart != nil {
		p.Effective.Start = *effStart
	}
	if effEnd != nil {
		p.Effective.End = *effEnd
	}

	items, err := r.getItems(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Items = items

	return p, nil
}

// ListActiveByUser returns the user's current (non-superseded) policy records
func (r *Repository) ListActiveByUser(ctx context.Context, userID types.ID) ([]PolicyRecord, error) {
	query := `
		SELECT id
		FROM insurance.policies
		WHERE user_id = $1 AND superseded_by IS NULL
		ORDER BY policy_number, version DESC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list policies")
	}
	defer rows.Close()

	var ids []types.ID
	for rows.Next() {
		var id types.ID
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "failed to scan policy id")
		}
		ids = append(ids, id)
	}

	policies := make([]PolicyRecord, 0, len(ids))
	for _, id := range ids {
		p, err := r.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		policies = append(policies, *p)
	}

	return policies, nil
}

// Supersede stores a replacement record and marks the old one as superseded.
// The old record is never mutated beyond the superseded_by pointer; the
// replacement carries the next version number.
func (r *Repository) Supersede(ctx context.Context, oldID types.ID, replacement *PolicyRecord) error {
	old, err := r.FindByID(ctx, oldID)
	if err != nil {
		return err
	}
	if !old.Active() {
		return errors.Conflict("policy has already been superseded")
	}
	if old.UserID != replacement.UserID {
		return errors.Forbidden("policy belongs to another user")
	}

	replacement.Version = old.Version + 1

	if err := r.Save(ctx, replacement); err != nil {
		return err
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE insurance.policies SET superseded_by = $2 WHERE id = $1 AND superseded_by IS NULL`,
		oldID, replacement.ID,
	)
	if err != nil {
		return errors.Wrap(err, "failed to mark policy superseded")
	}
	if tag.RowsAffected() == 0 {
		return errors.Conflict("policy was superseded concurrently")
	}

	return nil
}

func (r *Repository) getItems(ctx context.Context, policyID types.ID) ([]CoverageItem, error) {
	query := `
		SELECT id, category, limit_amount, deductible,
			waiting_period_days, max_claims_per_period,
			inclusion_conditions, exclusion_conditions
		FROM insurance.coverage_items
		WHERE policy_id = $1
		ORDER BY position`

	rows, err := r.pool.Query(ctx, query, policyID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load coverage items")
	}
	defer rows.Close()

	var items []CoverageItem
	for rows.Next() {
		var item CoverageItem
		var inclusion, exclusion []byte

		err := rows.Scan(
			&item.ID, &item.Category, &item.LimitAmount, &item.Deductible,
			&item.WaitingPeriodDays, &item.MaxClaimsPerPeriod,
			&inclusion, &exclusion,
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan coverage item")
		}

		if err := json.Unmarshal(inclusion, &item.Inclusion); err != nil {
			return nil, errors.Wrap(err, "failed to decode inclusion conditions")
		}
		if err := json.Unmarshal(exclusion, &item.Exclusion); err != nil {
			return nil, errors.Wrap(err, "failed to decode exclusion conditions")
		}

		items = append(items, item)
	}

	return items, nil
}
