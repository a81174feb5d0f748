// Package coupon implements the discount engine for invitation packages:
// coupon definitions, the eligibility validator, discount calculation, and
// the redemption ledger contracts.
package coupon

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercentage applies a percentage of the order amount,
	// optionally capped at MaxDiscount.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed subtracts a fixed amount, capped at the order amount.
	DiscountFixed DiscountType = "fixed"
)

// Status is the derived lifecycle state of a coupon. It is computed from the
// stored fields and a point in time, never persisted.
type Status string

const (
	StatusInactive  Status = "inactive"
	StatusScheduled Status = "scheduled"
	StatusExpired   Status = "expired"
	StatusExhausted Status = "exhausted"
	StatusActive    Status = "active"
)

// Sentinel errors shared by the store and ledger implementations.
var (
	// ErrNotFound is returned when no coupon matches the given code or id.
	ErrNotFound = errors.New("coupon not found")
	// ErrDuplicateCode is returned by Create when the code is already taken
	// (case-insensitively).
	ErrDuplicateCode = errors.New("coupon code already exists")
	// ErrConflict is returned by the ledger when a usage limit was exceeded
	// at commit time even though an earlier check passed.
	ErrConflict = errors.New("coupon redemption conflict")
	// ErrHasRedemptions is returned by Delete for coupons with a non-empty
	// ledger; such coupons are never deleted.
	ErrHasRedemptions = errors.New("coupon has recorded redemptions")
)

// DefinitionError reports an invalid coupon definition on create or update.
// It maps to a 400 at the HTTP boundary, unlike storage failures.
type DefinitionError struct {
	Reason string
}

func (e *DefinitionError) Error() string {
	return e.Reason
}

func definitionErrorf(format string, args ...any) error {
	return &DefinitionError{Reason: fmt.Sprintf(format, args...)}
}

var hundred = decimal.NewFromInt(100)

// Discount is the tagged discount variant of a coupon.
type Discount struct {
	Type  DiscountType
	Value decimal.Decimal
	// MaxDiscount caps a percentage discount in currency units.
	// Zero means no cap. Ignored for fixed discounts.
	MaxDiscount decimal.Decimal
}

// Apply computes the discount for the given order amount in whole currency
// units. Percentage discounts are rounded to the nearest unit; fixed
// discounts never exceed the order amount.
func (d Discount) Apply(orderAmount int64) int64 {
	switch d.Type {
	case DiscountPercentage:
		amount := decimal.NewFromInt(orderAmount).Mul(d.Value).Div(hundred).Round(0).IntPart()
		if d.MaxDiscount.IsPositive() {
			if limit := d.MaxDiscount.Round(0).IntPart(); amount > limit {
				amount = limit
			}
		}
		return amount
	case DiscountFixed:
		amount := d.Value.Round(0).IntPart()
		if amount > orderAmount {
			return orderAmount
		}
		return amount
	default:
		return 0
	}
}

// Validate checks the discount variant's value bounds.
func (d Discount) Validate() error {
	switch d.Type {
	case DiscountPercentage:
		one := decimal.NewFromInt(1)
		if d.Value.LessThan(one) || d.Value.GreaterThan(hundred) {
			return definitionErrorf("percentage value must be between 1 and 100, got %s", d.Value)
		}
		if d.MaxDiscount.IsNegative() {
			return definitionErrorf("maximum discount must not be negative")
		}
	case DiscountFixed:
		if !d.Value.IsPositive() {
			return definitionErrorf("fixed value must be positive, got %s", d.Value)
		}
	default:
		return definitionErrorf("unsupported discount type: %q", d.Type)
	}
	return nil
}

// Coupon is the aggregate root for a discount rule. UsageCount is mutated
// only through the Ledger and always equals the number of ledger entries.
type Coupon struct {
	ID          uuid.UUID
	Code        string
	Name        string
	Description string
	Discount    Discount

	// MinimumAmount is the smallest order amount the coupon applies to.
	MinimumAmount int64
	// UsageLimit is the global redemption cap. Zero means unlimited.
	UsageLimit int
	UsageCount int
	// UserUsageLimit is the per-user redemption cap, at least 1.
	UserUsageLimit int

	StartDate time.Time
	EndDate   time.Time
	IsActive  bool

	// ApplicablePackages restricts the coupon to the listed package ids.
	// An empty list means the coupon applies to every package that is not
	// explicitly excluded.
	ApplicablePackages []string
	ExcludedPackages   []string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Status derives the coupon's effective state at the given time.
// Exactly one of the five states holds for any (coupon, now) pair.
func (c *Coupon) Status(now time.Time) Status {
	switch {
	case !c.IsActive:
		return StatusInactive
	case now.Before(c.StartDate):
		return StatusScheduled
	case now.After(c.EndDate):
		return StatusExpired
	case c.UsageLimit > 0 && c.UsageCount >= c.UsageLimit:
		return StatusExhausted
	default:
		return StatusActive
	}
}

// AppliesTo reports whether the coupon may be used for the given package.
// The applicability list is checked before the exclusion list.
func (c *Coupon) AppliesTo(packageID string) bool {
	if len(c.ApplicablePackages) > 0 && !containsFold(c.ApplicablePackages, packageID) {
		return false
	}
	return !containsFold(c.ExcludedPackages, packageID)
}

// Validate checks the definition invariants enforced on create and update.
func (c *Coupon) Validate() error {
	code := strings.TrimSpace(c.Code)
	if len(code) < 3 || len(code) > 20 {
		return definitionErrorf("code must be 3-20 characters, got %d", len(code))
	}
	if c.Name == "" {
		return definitionErrorf("name is required")
	}
	if err := c.Discount.Validate(); err != nil {
		return err
	}
	if c.MinimumAmount < 0 {
		return definitionErrorf("minimum amount must not be negative")
	}
	if c.UsageLimit < 0 {
		return definitionErrorf("usage limit must not be negative")
	}
	if c.UserUsageLimit < 1 {
		return definitionErrorf("per-user usage limit must be at least 1")
	}
	if !c.EndDate.After(c.StartDate) {
		return definitionErrorf("end date must be after start date")
	}
	return nil
}

func containsFold(ids []string, id string) bool {
	for _, v := range ids {
		if strings.EqualFold(v, id) {
			return true
		}
	}
	return false
}

// Redemption is one committed use of a coupon by one user for one order.
// Entries are immutable once written.
type Redemption struct {
	ID             uuid.UUID
	CouponID       uuid.UUID
	UserID         string
	OrderID        string
	DiscountAmount int64
	UsedAt         time.Time
}

// Commit is the input for recording one redemption in the ledger.
type Commit struct {
	CouponID       uuid.UUID
	UserID         string
	OrderID        string
	DiscountAmount int64
}

// ListFilter selects coupons for the admin listing. Status is matched against
// the derived status evaluated at Now, with a single Now for the whole query.
type ListFilter struct {
	Search string
	Status Status
	Type   DiscountType
	Now    time.Time

	Limit  int
	Offset int
	// Sort is one of "created_at", "code", "end_date", "usage_count".
	Sort string
	Desc bool
}

// Stats aggregates the coupon catalog and its ledger.
type Stats struct {
	TotalCoupons         int64
	ActiveCoupons        int64
	TotalRedemptions     int64
	TotalDiscountGranted int64
}

// Store provides persistence for coupon definitions.
type Store interface {
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Coupon, error)
	Create(ctx context.Context, c *Coupon) error
	Update(ctx context.Context, c *Coupon) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f ListFilter) ([]Coupon, int64, error)
	Stats(ctx context.Context, now time.Time) (*Stats, error)
	// CountUserRedemptions returns the number of ledger entries for the
	// given coupon and user.
	CountUserRedemptions(ctx context.Context, couponID uuid.UUID, userID string) (int, error)
}

// Ledger records redemptions. CommitAll applies every commit in a single
// transaction: each one atomically re-asserts the global and per-user limits
// and appends a ledger entry. Any guard failure returns ErrConflict and rolls
// back the whole batch. A commit whose (coupon, order) pair already exists
// returns the existing entry without double-counting.
type Ledger interface {
	CommitAll(ctx context.Context, commits []Commit) ([]Redemption, error)
	// FindByOrder returns every ledger entry recorded for the order.
	FindByOrder(ctx context.Context, orderID string) ([]Redemption, error)
}
