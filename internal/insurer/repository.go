package insurer

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/claimwise/platform/internal/shared/errors"
	"github.com/claimwise/platform/internal/shared/types"
)

// Repository provides database operations for the insurer registry
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new insurer repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create registers a new insurer
func (r *Repository) Create(ctx context.Context, ins *Insurer) error {
	query := `
		INSERT INTO insurance.insurers (
			id, code, name, type, status,
			contact_email, contact_phone, contact_portal, adapter,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.pool.Exec(ctx, query,
		ins.ID, ins.Code, ins.Name, ins.Type, ins.Status,
		ins.Contact.Email, ins.Contact.Phone, ins.Contact.Portal, ins.Adapter,
		ins.CreatedAt, ins.UpdatedAt,
	)

	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return errors.Conflict("insurer with this code already exists")
		}
		return errors.Wrap(err, "failed to create insurer")
	}

	return nil
}

// Get retrieves an insurer by ID
func (r *Repository) Get(ctx context.Context, id types.ID) (*Insurer, error) {
	return r.getOne(ctx, "id = $1", id)
}

// GetByCode retrieves an insurer by its registry code
func (r *Repository) GetByCode(ctx context.Context, code string) (*Insurer, error) {
	return r.getOne(ctx, "code = $1", code)
}

func (r *Repository) getOne(ctx context.Context, condition string, arg interface{}) (*Insurer, error) {
	query := fmt.Sprintf(`
		SELECT id, code, name, type, status,
			contact_email, contact_phone, contact_portal, adapter,
			created_at, updated_at
		FROM insurance.insurers
		WHERE %s`, condition)

	ins := &Insurer{}
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&ins.ID, &ins.Code, &ins.Name, &ins.Type, &ins.Status,
		&ins.Contact.Email, &ins.Contact.Phone, &ins.Contact.Portal, &ins.Adapter,
		&ins.CreatedAt, &ins.UpdatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("insurer", fmt.Sprintf("%v", arg))
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get insurer")
	}

	return ins, nil
}

// Update updates an insurer
func (r *Repository) Update(ctx context.Context, ins *Insurer) error {
	query := `
		UPDATE insurance.insurers SET
			name = $2, status = $3,
			contact_email = $4, contact_phone = $5, contact_portal = $6,
			adapter = $7, updated_at = $8
		WHERE id = $1`

	result, err := r.pool.Exec(ctx, query,
		ins.ID, ins.Name, ins.Status,
		ins.Contact.Email, ins.Contact.Phone, ins.Contact.Portal,
		ins.Adapter, ins.UpdatedAt,
	)

	if err != nil {
		return errors.Wrap(err, "failed to update insurer")
	}

	if result.RowsAffected() == 0 {
		return errors.NotFound("insurer", ins.ID.String())
	}

	return nil
}

// Delete removes an insurer from the registry
func (r *Repository) Delete(ctx context.Context, id types.ID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM insurance.insurers WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "failed to delete insurer")
	}

	if result.RowsAffected() == 0 {
		return errors.NotFound("insurer", id.String())
	}

	return nil
}

// List lists insurers with optional filters
func (r *Repository) List(ctx context.Context, filter ListInsurersFilter) ([]Insurer, int, error) {
	var conditions []string
	var args []interface{}
	argNum := 1

	if filter.Type != nil {
		conditions = append(conditions, fmt.Sprintf("type = $%d", argNum))
		args = append(args, *filter.Type)
		argNum++
	}

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argNum))
		args = append(args, *filter.Status)
		argNum++
	}

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(name ILIKE $%d OR code ILIKE $%d)", argNum, argNum))
		args = append(args, "%"+filter.Search+"%")
		argNum++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	// Get total count
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM insurance.insurers %s", whereClause)
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "failed to count insurers")
	}

	limit := 50
	if filter.Limit > 0 && filter.Limit <= 100 {
		limit = filter.Limit
	}

	query := fmt.Sprintf(`
		SELECT id, code, name, type, status,
			contact_email, contact_phone, contact_portal, adapter,
			created_at, updated_at
		FROM insurance.insurers
		%s
		ORDER BY name
		LIMIT $%d OFFSET $%d`, whereClause, argNum, argNum+1)

	args = append(args, limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to list insurers")
	}
	defer rows.Close()

	var insurers []Insurer
	for rows.Next() {
		var ins Insurer
		err := rows.Scan(
			&ins.ID, &ins.Code, &ins.Name, &ins.Type, &ins.Status,
			&ins.Contact.Email, &ins.Contact.Phone, &ins.Contact.Portal, &ins.Adapter,
			&ins.CreatedAt, &ins.UpdatedAt,
		)
		if err != nil {
			return nil, 0, errors.Wrap(err, "failed to scan insurer")
		}
		insurers = append(insurers, ins)
	}

	return insurers, total, nil
}

// ListSyncable lists active insurers that have a sync adapter configured
func (r *Repository) ListSyncable(ctx context.Context) ([]Insurer, error) {
	active := InsurerStatusActive
	insurers, _, err := r.List(ctx, ListInsurersFilter{Status: &active, Limit: 100})
	if err != nil {
		return nil, err
	}

	var syncable []Insurer
	for _, ins := range insurers {
		if ins.Syncable() {
			syncable = append(syncable, ins)
		}
	}
	return syncable, nil
}
