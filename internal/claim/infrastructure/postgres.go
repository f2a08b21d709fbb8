package infrastructure

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/claimwise/platform/internal/claim/domain"
	"github.com/claimwise/platform/internal/recommendation"
	"github.com/claimwise/platform/internal/shared/errors"
	"github.com/claimwise/platform/internal/shared/types"
)

// PostgresRepository implements domain.Repository using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const claimColumns = `id, claim_number, user_id, policy_id, policy_number, insurer_code,
	coverage_item_id, category, status, amount_claimed, expected_payout, amount_approved,
	insurer_ref, version, created_at, updated_at, closed_at`

// Save saves a new claim
func (r *PostgresRepository) Save(ctx context.Context, c *domain.Claim) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO claims.claims (
			id, claim_number, user_id, policy_id, policy_number, insurer_code,
			coverage_item_id, category, status, amount_claimed, expected_payout,
			amount_approved, insurer_ref, version, created_at, updated_at, closed_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17
		)`

	_, err = tx.Exec(ctx, query,
		c.ID, c.ClaimNumber, c.UserID, c.PolicyID, c.PolicyNumber, c.Insurer,
		c.CoverageItemID, c.Category, c.Status, c.ClaimedAmount, c.ExpectedPayout,
		c.ApprovedAmount, nullableString(c.InsurerRef), c.Version, c.CreatedAt, c.UpdatedAt, c.ClosedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return errors.Conflict("claim with this number already exists")
		}
		return errors.Wrap(err, "failed to save claim")
	}

	if err := r.saveHistory(ctx, tx, c.StatusHistory); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}

	return nil
}

// FindByID finds a claim by ID, including its status history
func (r *PostgresRepository) FindByID(ctx context.Context, id types.ID) (*domain.Claim, error) {
	return r.findOne(ctx, "id = $1", id)
}

// FindByClaimNumber finds a claim by its public claim number
func (r *PostgresRepository) FindByClaimNumber(ctx context.Context, claimNumber string) (*domain.Claim, error) {
	return r.findOne(ctx, "claim_number = $1", claimNumber)
}

// FindByInsurerRef finds the claim carrying the insurer's external
// reference, used to correlate adapter status updates
func (r *PostgresRepository) FindByInsurerRef(ctx context.Context, insurer, ref string) (*domain.Claim, error) {
	return r.findOne(ctx, "insurer_code = $1 AND insurer_ref = $2", insurer, ref)
}

func (r *PostgresRepository) findOne(ctx context.Context, condition string, args ...any) (*domain.Claim, error) {
	query := fmt.Sprintf(`SELECT %s FROM claims.claims WHERE %s`, claimColumns, condition)

	c, err := scanClaim(r.pool.QueryRow(ctx, query, args...))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("claim", fmt.Sprintf("%v", args[0]))
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find claim")
	}

	history, err := r.GetHistory(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	c.StatusHistory = history

	return c, nil
}

// Update persists the aggregate under optimistic concurrency control.
// The row is written only when its stored version still equals
// expectedVersion; a concurrent writer surfaces as a stale-version
// error, never as a silent overwrite.
func (r *PostgresRepository) Update(ctx context.Context, c *domain.Claim, expectedVersion int64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE claims.claims
		SET status = $1, amount_approved = $2, insurer_ref = $3,
			updated_at = $4, closed_at = $5, version = version + 1
		WHERE id = $6 AND version = $7`

	result, err := tx.Exec(ctx, query,
		c.Status, c.ApprovedAmount, nullableString(c.InsurerRef),
		c.UpdatedAt, c.ClosedAt, c.ID, expectedVersion,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update claim")
	}

	if result.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM claims.claims WHERE id = $1)`, c.ID,
		).Scan(&exists); err != nil {
			return errors.Wrap(err, "failed to check claim existence")
		}
		if !exists {
			return errors.NotFound("claim", c.ID.String())
		}
		return errors.StaleVersion(c.ID.String(), expectedVersion)
	}

	if err := r.saveHistory(ctx, tx, c.StatusHistory); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}

	c.Version = expectedVersion + 1

	return nil
}

// List lists a user's claims matching the filter
func (r *PostgresRepository) List(ctx context.Context, userID types.ID, filter domain.ListFilter) ([]domain.Claim, int, error) {
	conditions := []string{"user_id = $1"}
	args := []any{userID}

	if filter.Status != nil {
		args = append(args, *filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.PolicyID != nil {
		args = append(args, *filter.PolicyID)
		conditions = append(conditions, fmt.Sprintf("policy_id = $%d", len(args)))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)))
	}

	where := strings.Join(conditions, " AND ")

	var total int
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM claims.claims WHERE %s`, where)
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "failed to count claims")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, filter.Offset)

	query := fmt.Sprintf(`
		SELECT %s FROM claims.claims
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, claimColumns, where, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to list claims")
	}
	defer rows.Close()

	var claims []domain.Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, 0, errors.Wrap(err, "failed to scan claim")
		}
		claims = append(claims, *c)
	}

	return claims, total, rows.Err()
}

// GetHistory returns the claim's status history, oldest first
func (r *PostgresRepository) GetHistory(ctx context.Context, claimID types.ID) ([]domain.StatusChange, error) {
	query := `
		SELECT id, claim_id, from_status, to_status, actor, note, occurred_at
		FROM claims.status_history
		WHERE claim_id = $1
		ORDER BY occurred_at ASC`

	rows, err := r.pool.Query(ctx, query, claimID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get status history")
	}
	defer rows.Close()

	history := []domain.StatusChange{}
	for rows.Next() {
		var sc domain.StatusChange
		var note *string
		if err := rows.Scan(&sc.ID, &sc.ClaimID, &sc.From, &sc.To, &sc.Actor, &note, &sc.Timestamp); err != nil {
			return nil, errors.Wrap(err, "failed to scan status change")
		}
		if note != nil {
			sc.Note = *note
		}
		history = append(history, sc)
	}

	return history, rows.Err()
}

// CountActive counts the user's claims per (policy, category) pair that
// still consume a per-period allowance in the current claim period.
// Withdrawn and rejected claims release their allowance; the claim
// period is the calendar year.
func (r *PostgresRepository) CountActive(ctx context.Context, userID types.ID) (map[recommendation.CoverageKey]int, error) {
	query := `
		SELECT policy_id, category, COUNT(*)
		FROM claims.claims
		WHERE user_id = $1
			AND status NOT IN ($2, $3)
			AND created_at >= date_trunc('year', NOW())
		GROUP BY policy_id, category`

	rows, err := r.pool.Query(ctx, query, userID, domain.ClaimStatusWithdrawn, domain.ClaimStatusRejected)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count active claims")
	}
	defer rows.Close()

	counts := make(map[recommendation.CoverageKey]int)
	for rows.Next() {
		var key recommendation.CoverageKey
		var n int
		if err := rows.Scan(&key.PolicyID, &key.Category, &n); err != nil {
			return nil, errors.Wrap(err, "failed to scan claim count")
		}
		counts[key] = n
	}

	return counts, rows.Err()
}

// saveHistory appends new status changes. Existing entries are skipped
// on conflict, so re-saving the full aggregate history is idempotent
// and stored entries are never rewritten.
func (r *PostgresRepository) saveHistory(ctx context.Context, tx pgx.Tx, history []domain.StatusChange) error {
	query := `
		INSERT INTO claims.status_history (id, claim_id, from_status, to_status, actor, note, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`

	for _, sc := range history {
		if _, err := tx.Exec(ctx, query,
			sc.ID, sc.ClaimID, sc.From, sc.To, sc.Actor, nullableString(sc.Note), sc.Timestamp,
		); err != nil {
			return errors.Wrap(err, "failed to save status change")
		}
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClaim(row rowScanner) (*domain.Claim, error) {
	c := &domain.Claim{}
	var insurerRef *string

	err := row.Scan(
		&c.ID, &c.ClaimNumber, &c.UserID, &c.PolicyID, &c.PolicyNumber, &c.Insurer,
		&c.CoverageItemID, &c.Category, &c.Status, &c.ClaimedAmount, &c.ExpectedPayout,
		&c.ApprovedAmount, &insurerRef, &c.Version, &c.CreatedAt, &c.UpdatedAt, &c.ClosedAt,
	)
	if err != nil {
		return nil, err
	}
	if insurerRef != nil {
		c.InsurerRef = *insurerRef
	}

	return c, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
