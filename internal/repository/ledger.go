package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/undangku/coupon-service/internal/domain/coupon"
)

var _ coupon.Ledger = (*LedgerRepository)(nil)

// LedgerRepository implements coupon.Ledger on PostgreSQL. All guards run
// inside one transaction so a redeem batch is all-or-nothing.
type LedgerRepository struct {
	pool *pgxpool.Pool
}

// NewLedgerRepository returns a LedgerRepository that uses the given pool.
func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{pool: pool}
}

// lockCoupon serializes concurrent commits for the same coupon. Every
// statement after it runs on a snapshot taken after any racing commit on
// this coupon has finished. The per-user count below must stay a standalone
// statement for that reason: under READ COMMITTED a subquery inside an
// UPDATE still reads the pre-lock snapshot of the redemptions table and
// would let a user slip past the limit.
const lockCoupon = `SELECT usage_count, usage_limit, user_usage_limit
	FROM coupons WHERE id = $1 FOR UPDATE`

const countByUser = `SELECT COUNT(*) FROM redemptions
	WHERE coupon_id = $1 AND user_id = $2`

const incrementUsage = `UPDATE coupons
	SET usage_count = usage_count + 1, updated_at = now()
	WHERE id = $1`

const insertRedemption = `INSERT INTO redemptions (id, coupon_id, user_id, order_id, discount_amount)
	VALUES ($1, $2, $3, $4, $5)
	RETURNING used_at`

const findByOrder = `SELECT id, coupon_id, user_id, order_id, discount_amount, used_at
	FROM redemptions WHERE coupon_id = $1 AND order_id = $2`

const findAllByOrder = `SELECT id, coupon_id, user_id, order_id, discount_amount, used_at
	FROM redemptions WHERE order_id = $1
	ORDER BY used_at, id`

// CommitAll records the given commits atomically. A commit whose
// (coupon, order) pair is already in the ledger is replayed from the existing
// entry; a failed limit guard rolls back the batch with coupon.ErrConflict.
func (r *LedgerRepository) CommitAll(ctx context.Context, commits []coupon.Commit) ([]coupon.Redemption, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("beginning redemption transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	entries := make([]coupon.Redemption, 0, len(commits))
	for _, c := range commits {
		entry, err := r.commitOne(ctx, tx, c)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing redemptions: %w", err)
	}
	return entries, nil
}

func (r *LedgerRepository) commitOne(ctx context.Context, tx pgx.Tx, c coupon.Commit) (*coupon.Redemption, error) {
	var usageCount, usageLimit, userLimit int
	err := tx.QueryRow(ctx, lockCoupon, c.CouponID).Scan(&usageCount, &usageLimit, &userLimit)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, coupon.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("locking coupon %s: %w", c.CouponID, err)
	}

	// Replay lookup runs after the lock so it sees a racing commit that
	// recorded the same order id.
	existing, err := r.findExisting(ctx, tx, c.CouponID, c.OrderID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	if usageLimit > 0 && usageCount >= usageLimit {
		return nil, coupon.ErrConflict
	}
	var userCount int
	if err := tx.QueryRow(ctx, countByUser, c.CouponID, c.UserID).Scan(&userCount); err != nil {
		return nil, fmt.Errorf("counting redemptions for coupon %s: %w", c.CouponID, err)
	}
	if userCount >= userLimit {
		return nil, coupon.ErrConflict
	}

	if _, err := tx.Exec(ctx, incrementUsage, c.CouponID); err != nil {
		return nil, fmt.Errorf("incrementing usage for coupon %s: %w", c.CouponID, err)
	}

	entry := coupon.Redemption{
		ID:             uuid.New(),
		CouponID:       c.CouponID,
		UserID:         c.UserID,
		OrderID:        c.OrderID,
		DiscountAmount: c.DiscountAmount,
	}
	err = tx.QueryRow(ctx, insertRedemption,
		entry.ID, entry.CouponID, entry.UserID, entry.OrderID, entry.DiscountAmount,
	).Scan(&entry.UsedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, coupon.ErrConflict
		}
		return nil, fmt.Errorf("recording redemption for coupon %s: %w", c.CouponID, err)
	}
	return &entry, nil
}

// FindByOrder returns every ledger entry recorded for the order, oldest
// first.
func (r *LedgerRepository) FindByOrder(ctx context.Context, orderID string) ([]coupon.Redemption, error) {
	rows, err := r.pool.Query(ctx, findAllByOrder, orderID)
	if err != nil {
		return nil, fmt.Errorf("listing redemptions for order %q: %w", orderID, err)
	}
	entries, err := pgx.CollectRows(rows, scanRedemption)
	if err != nil {
		return nil, fmt.Errorf("scanning redemptions for order %q: %w", orderID, err)
	}
	return entries, nil
}

func scanRedemption(row pgx.CollectableRow) (coupon.Redemption, error) {
	var entry coupon.Redemption
	err := row.Scan(&entry.ID, &entry.CouponID, &entry.UserID, &entry.OrderID,
		&entry.DiscountAmount, &entry.UsedAt)
	return entry, err
}

func (r *LedgerRepository) findExisting(ctx context.Context, tx pgx.Tx, couponID uuid.UUID, orderID string) (*coupon.Redemption, error) {
	var entry coupon.Redemption
	err := tx.QueryRow(ctx, findByOrder, couponID, orderID).Scan(
		&entry.ID, &entry.CouponID, &entry.UserID, &entry.OrderID,
		&entry.DiscountAmount, &entry.UsedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("looking up redemption for order %q: %w", orderID, err)
	}
	return &entry, nil
}
