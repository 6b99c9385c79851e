package units

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads the unit catalog from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Get loads a unit by tenant and code.
func (r *Repository) Get(ctx context.Context, tenantID int64, code string) (Unit, error) {
	if r == nil {
		return Unit{}, errors.New("units repository not initialised")
	}
	unit := Unit{TenantID: tenantID}
	err := r.pool.QueryRow(ctx, `SELECT code, name, allow_decimal FROM units WHERE tenant_id=$1 AND code=$2`, tenantID, code).
		Scan(&unit.Code, &unit.Name, &unit.AllowDecimal)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Unit{}, ErrUnitNotFound
		}
		return Unit{}, fmt.Errorf("units: get %s: %w", code, err)
	}
	return unit, nil
}

// AllowsDecimal implements Catalog.
func (r *Repository) AllowsDecimal(ctx context.Context, tenantID int64, unitCode string) (bool, error) {
	unit, err := r.Get(ctx, tenantID, unitCode)
	if err != nil {
		return false, err
	}
	return unit.AllowDecimal, nil
}
