package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/undangku/coupon-service/internal/domain/coupon"
)

const couponColumns = `id, code, name, description, discount_type, discount_value, max_discount,
	minimum_amount, usage_limit, usage_count, user_usage_limit, start_date, end_date,
	is_active, applicable_packages, excluded_packages, created_at, updated_at`

// derivedStatusSQL mirrors Coupon.Status. $N is the "now" placeholder, bound
// once per query so the whole result set is evaluated at the same instant.
const derivedStatusSQL = `CASE
	WHEN NOT is_active THEN 'inactive'
	WHEN %[1]s < start_date THEN 'scheduled'
	WHEN %[1]s > end_date THEN 'expired'
	WHEN usage_limit > 0 AND usage_count >= usage_limit THEN 'exhausted'
	ELSE 'active'
END`

var _ coupon.Store = (*CouponRepository)(nil)

// CouponRepository implements coupon.Store backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up a coupon by code, case-insensitively.
// Returns coupon.ErrNotFound when no coupon matches.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	sql := `SELECT ` + couponColumns + ` FROM coupons WHERE LOWER(code) = LOWER($1)`
	rows, err := r.pool.Query(ctx, sql, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	return &c, nil
}

// GetByID looks up a coupon by its id.
func (r *CouponRepository) GetByID(ctx context.Context, id uuid.UUID) (*coupon.Coupon, error) {
	sql := `SELECT ` + couponColumns + ` FROM coupons WHERE id = $1`
	rows, err := r.pool.Query(ctx, sql, id)
	if err != nil {
		return nil, fmt.Errorf("finding coupon %s: %w", id, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("finding coupon %s: %w", id, err)
	}
	return &c, nil
}

// Create inserts a new coupon definition. A case-insensitive code collision
// returns coupon.ErrDuplicateCode.
func (r *CouponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	const sql = `INSERT INTO coupons (id, code, name, description, discount_type, discount_value,
		max_discount, minimum_amount, usage_limit, usage_count, user_usage_limit,
		start_date, end_date, is_active, applicable_packages, excluded_packages)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0, $10, $11, $12, $13, $14, $15)`

	_, err := r.pool.Exec(ctx, sql,
		c.ID, c.Code, c.Name, c.Description,
		string(c.Discount.Type), c.Discount.Value, c.Discount.MaxDiscount,
		c.MinimumAmount, c.UsageLimit, c.UserUsageLimit,
		c.StartDate, c.EndDate, c.IsActive,
		packageIDs(c.ApplicablePackages), packageIDs(c.ExcludedPackages),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return coupon.ErrDuplicateCode
		}
		return fmt.Errorf("creating coupon %q: %w", c.Code, err)
	}
	return nil
}

// Update rewrites a coupon's definition. usage_count is deliberately not in
// the column list: it only moves through the ledger.
func (r *CouponRepository) Update(ctx context.Context, c *coupon.Coupon) error {
	const sql = `UPDATE coupons SET code = $2, name = $3, description = $4, discount_type = $5,
		discount_value = $6, max_discount = $7, minimum_amount = $8, usage_limit = $9,
		user_usage_limit = $10, start_date = $11, end_date = $12, is_active = $13,
		applicable_packages = $14, excluded_packages = $15, updated_at = now()
		WHERE id = $1`

	tag, err := r.pool.Exec(ctx, sql,
		c.ID, c.Code, c.Name, c.Description,
		string(c.Discount.Type), c.Discount.Value, c.Discount.MaxDiscount,
		c.MinimumAmount, c.UsageLimit, c.UserUsageLimit,
		c.StartDate, c.EndDate, c.IsActive,
		packageIDs(c.ApplicablePackages), packageIDs(c.ExcludedPackages),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return coupon.ErrDuplicateCode
		}
		return fmt.Errorf("updating coupon %s: %w", c.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

// Delete removes a coupon that has never been redeemed. Coupons with ledger
// entries return coupon.ErrHasRedemptions.
func (r *CouponRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM coupons WHERE id = $1 AND usage_count = 0`, id)
	if err != nil {
		return fmt.Errorf("deleting coupon %s: %w", id, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM coupons WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("checking coupon %s: %w", id, err)
	}
	if exists {
		return coupon.ErrHasRedemptions
	}
	return coupon.ErrNotFound
}

// List returns a page of coupons plus the total match count. The status
// filter compares against the derived status, evaluated with the single
// f.Now bound for the whole query.
func (r *CouponRepository) List(ctx context.Context, f coupon.ListFilter) ([]coupon.Coupon, int64, error) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Search != "" {
		p := arg("%" + f.Search + "%")
		conds = append(conds, fmt.Sprintf("(code ILIKE %[1]s OR name ILIKE %[1]s)", p))
	}
	if f.Type != "" {
		conds = append(conds, "discount_type = "+arg(string(f.Type)))
	}
	if f.Status != "" {
		status := fmt.Sprintf(derivedStatusSQL, arg(f.Now))
		conds = append(conds, "("+status+") = "+arg(string(f.Status)))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM coupons`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting coupons: %w", err)
	}

	order := sortColumn(f.Sort)
	if f.Desc {
		order += " DESC"
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	sql := `SELECT ` + couponColumns + ` FROM coupons` + where +
		` ORDER BY ` + order + ` LIMIT ` + arg(limit) + ` OFFSET ` + arg(f.Offset)

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing coupons: %w", err)
	}

	coupons, err := pgx.CollectRows(rows, scanCoupon)
	if err != nil {
		return nil, 0, fmt.Errorf("listing coupons: %w", err)
	}
	return coupons, total, nil
}

// Stats aggregates the catalog and ledger in one round trip.
func (r *CouponRepository) Stats(ctx context.Context, now time.Time) (*coupon.Stats, error) {
	status := fmt.Sprintf(derivedStatusSQL, "$1")
	sql := `SELECT
		(SELECT COUNT(*) FROM coupons),
		(SELECT COUNT(*) FROM coupons WHERE (` + status + `) = 'active'),
		(SELECT COUNT(*) FROM redemptions),
		(SELECT COALESCE(SUM(discount_amount), 0) FROM redemptions)`

	var s coupon.Stats
	err := r.pool.QueryRow(ctx, sql, now).Scan(
		&s.TotalCoupons, &s.ActiveCoupons, &s.TotalRedemptions, &s.TotalDiscountGranted,
	)
	if err != nil {
		return nil, fmt.Errorf("aggregating coupon stats: %w", err)
	}
	return &s, nil
}

// CountUserRedemptions returns the number of ledger entries for one coupon
// and one user.
func (r *CouponRepository) CountUserRedemptions(ctx context.Context, couponID uuid.UUID, userID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM redemptions WHERE coupon_id = $1 AND user_id = $2`,
		couponID, userID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting redemptions for coupon %s: %w", couponID, err)
	}
	return n, nil
}

// AllCodes returns every coupon code, used to warm the code filter at
// startup.
func (r *CouponRepository) AllCodes(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT code FROM coupons`)
	if err != nil {
		return nil, fmt.Errorf("listing coupon codes: %w", err)
	}
	codes, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("listing coupon codes: %w", err)
	}
	return codes, nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c            coupon.Coupon
		discountType string
		value        decimal.Decimal
		maxDiscount  decimal.Decimal
	)
	err := row.Scan(
		&c.ID, &c.Code, &c.Name, &c.Description,
		&discountType, &value, &maxDiscount,
		&c.MinimumAmount, &c.UsageLimit, &c.UsageCount, &c.UserUsageLimit,
		&c.StartDate, &c.EndDate, &c.IsActive,
		&c.ApplicablePackages, &c.ExcludedPackages,
		&c.CreatedAt, &c.UpdatedAt,
	)
	c.Discount = coupon.Discount{
		Type:        coupon.DiscountType(discountType),
		Value:       value,
		MaxDiscount: maxDiscount,
	}
	return c, err
}

// sortColumn whitelists sortable columns; anything else falls back to
// created_at.
func sortColumn(sort string) string {
	switch sort {
	case "code", "end_date", "usage_count", "created_at":
		return sort
	default:
		return "created_at"
	}
}

// packageIDs normalizes a nil slice to an empty array so the TEXT[] columns
// never hold NULL.
func packageIDs(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
