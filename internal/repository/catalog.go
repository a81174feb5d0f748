package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/undangku/coupon-service/internal/domain/catalog"
)

var _ catalog.Repository = (*PackageRepository)(nil)

// PackageRepository implements catalog.Repository on PostgreSQL.
type PackageRepository struct {
	pool *pgxpool.Pool
}

// NewPackageRepository returns a PackageRepository that uses the given pool.
func NewPackageRepository(pool *pgxpool.Pool) *PackageRepository {
	return &PackageRepository{pool: pool}
}

// Get fetches one invitation package by id.
func (r *PackageRepository) Get(ctx context.Context, id string) (*catalog.Package, error) {
	const sql = `SELECT id, name, price, invitation_quota, duration_days, is_active
		FROM packages WHERE id = $1`

	var p catalog.Package
	err := r.pool.QueryRow(ctx, sql, id).Scan(
		&p.ID, &p.Name, &p.Price, &p.InvitationQuota, &p.DurationDays, &p.IsActive,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, catalog.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding package %q: %w", id, err)
	}
	return &p, nil
}
