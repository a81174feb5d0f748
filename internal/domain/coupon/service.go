package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/undangku/coupon-service/internal/domain/catalog"
)

// Service orchestrates the validator, the pricing calculator, and the
// redemption ledger. Preview is read-only; Redeem is the only mutation path.
type Service struct {
	store    Store
	ledger   Ledger
	packages catalog.Repository
	now      func() time.Time
}

// NewService creates a Service with the required dependencies.
func NewService(store Store, ledger Ledger, packages catalog.Repository) *Service {
	return &Service{
		store:    store,
		ledger:   ledger,
		packages: packages,
		now:      time.Now,
	}
}

// PreviewRequest is the input for the read-only pricing path. OrderAmount
// zero means "use the package price".
type PreviewRequest struct {
	Codes       []string
	UserID      string
	PackageID   string
	OrderAmount int64
}

// CodeRejection reports why one submitted code was not applied.
type CodeRejection struct {
	Code    string
	Reason  ReasonCode
	Message string
}

// PreviewResult is the full pricing breakdown: applied coupons with their
// discounts plus a per-code failure list.
type PreviewResult struct {
	Quote
	Rejections []CodeRejection
}

// RedeemRequest is the input for committing coupons against a completed
// order. OrderID is the idempotency key for retries.
type RedeemRequest struct {
	Codes       []string
	UserID      string
	OrderID     string
	PackageID   string
	OrderAmount int64
}

// RedeemResult extends the preview breakdown with the committed ledger
// entries.
type RedeemResult struct {
	PreviewResult
	Redemptions []Redemption
}

// Preview validates each code against the current state and combines the
// valid ones into a quote. It has no side effects and is safe to call
// repeatedly, e.g. while the user types a code.
func (s *Service) Preview(ctx context.Context, req PreviewRequest) (*PreviewResult, error) {
	amount, err := s.resolveAmount(ctx, req.PackageID, req.OrderAmount)
	if err != nil {
		return nil, err
	}

	result := &PreviewResult{}
	var valid []*Coupon
	now := s.now()

	for _, code := range dedupeCodes(req.Codes) {
		c, err := s.store.FindByCode(ctx, code)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				result.Rejections = append(result.Rejections, CodeRejection{
					Code:    code,
					Reason:  ReasonNotFound,
					Message: reasonMessages[ReasonNotFound],
				})
				continue
			}
			return nil, errors.Wrapf(err, "find coupon %q", code)
		}

		userCount, err := s.store.CountUserRedemptions(ctx, c.ID, req.UserID)
		if err != nil {
			return nil, errors.Wrapf(err, "count redemptions for coupon %q", code)
		}

		if rej := Check(c, CheckRequest{
			UserID:         req.UserID,
			PackageID:      req.PackageID,
			OrderAmount:    amount,
			UserUsageCount: userCount,
			Now:            now,
		}); rej != nil {
			result.Rejections = append(result.Rejections, CodeRejection{
				Code:    c.Code,
				Reason:  rej.Code,
				Message: rej.Message,
			})
			continue
		}

		valid = append(valid, c)
	}

	result.Quote = Combine(amount, valid)
	return result, nil
}

// Redeem re-runs the preview against current state (a prior preview is never
// trusted) and commits every valid coupon in one all-or-nothing ledger
// transaction. A Conflict from any commit fails the whole call, so an order
// is never partially discounted. Retrying with the same OrderID replays the
// recorded entries and their breakdown instead of committing again.
func (s *Service) Redeem(ctx context.Context, req RedeemRequest) (*RedeemResult, error) {
	existing, err := s.ledger.FindByOrder(ctx, req.OrderID)
	if err != nil {
		return nil, errors.Wrapf(err, "find redemptions for order %q", req.OrderID)
	}
	if len(existing) > 0 {
		return s.replayRedeem(ctx, req.PackageID, req.OrderAmount, existing)
	}

	preview, err := s.Preview(ctx, PreviewRequest{
		Codes:       req.Codes,
		UserID:      req.UserID,
		PackageID:   req.PackageID,
		OrderAmount: req.OrderAmount,
	})
	if err != nil {
		return nil, err
	}

	result := &RedeemResult{PreviewResult: *preview}
	if len(preview.Applied) == 0 {
		return result, nil
	}

	commits := make([]Commit, len(preview.Applied))
	for i, a := range preview.Applied {
		commits[i] = Commit{
			CouponID:       a.Coupon.ID,
			UserID:         req.UserID,
			OrderID:        req.OrderID,
			DiscountAmount: a.DiscountAmount,
		}
	}

	redemptions, err := s.ledger.CommitAll(ctx, commits)
	if err != nil {
		return nil, errors.Wrap(err, "commit redemptions")
	}
	result.Redemptions = redemptions
	return result, nil
}

// replayRedeem rebuilds the breakdown of an already-committed order from its
// ledger entries. A retry after a successful commit would otherwise fail the
// per-user re-check and report that nothing was applied.
func (s *Service) replayRedeem(ctx context.Context, packageID string, orderAmount int64, entries []Redemption) (*RedeemResult, error) {
	amount, err := s.resolveAmount(ctx, packageID, orderAmount)
	if err != nil {
		return nil, err
	}

	result := &RedeemResult{Redemptions: entries}
	result.OrderAmount = amount
	for _, e := range entries {
		c, err := s.store.GetByID(ctx, e.CouponID)
		if err != nil {
			return nil, errors.Wrapf(err, "get coupon %s", e.CouponID)
		}
		result.Applied = append(result.Applied, Applied{Coupon: c, DiscountAmount: e.DiscountAmount})
		result.TotalDiscount += e.DiscountAmount
	}
	result.FinalAmount = amount - result.TotalDiscount
	if result.FinalAmount < 0 {
		result.FinalAmount = 0
	}
	return result, nil
}

// resolveAmount validates the package and falls back to its price when the
// caller did not supply an order amount.
func (s *Service) resolveAmount(ctx context.Context, packageID string, orderAmount int64) (int64, error) {
	pkg, err := s.packages.Get(ctx, packageID)
	if err != nil {
		return 0, errors.Wrapf(err, "get package %q", packageID)
	}
	if !pkg.IsActive {
		return 0, errors.Wrapf(catalog.ErrNotFound, "package %q", packageID)
	}
	if orderAmount > 0 {
		return orderAmount, nil
	}
	return pkg.Price, nil
}

// Create validates and persists a new coupon definition with zeroed counters.
func (s *Service) Create(ctx context.Context, c *Coupon) error {
	c.Code = strings.TrimSpace(c.Code)
	if c.UserUsageLimit == 0 {
		c.UserUsageLimit = 1
	}
	if err := c.Validate(); err != nil {
		return err
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.UsageCount = 0
	return s.store.Create(ctx, c)
}

// Update re-validates the full definition and persists it. Counters are not
// touched: usage_count only moves through the ledger.
func (s *Service) Update(ctx context.Context, c *Coupon) error {
	c.Code = strings.TrimSpace(c.Code)
	if err := c.Validate(); err != nil {
		return err
	}
	return s.store.Update(ctx, c)
}

// Delete removes a coupon. Coupons with any recorded redemption are refused
// with ErrHasRedemptions to preserve ledger integrity.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.store.Delete(ctx, id)
}

// Get returns one coupon by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Coupon, error) {
	return s.store.GetByID(ctx, id)
}

// List returns coupons matching the filter. The derived-status filter is
// evaluated at a single point in time for the whole query.
func (s *Service) List(ctx context.Context, f ListFilter) ([]Coupon, int64, error) {
	if f.Now.IsZero() {
		f.Now = s.now()
	}
	return s.store.List(ctx, f)
}

// Stats aggregates the catalog and ledger.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	return s.store.Stats(ctx, s.now())
}

// dedupeCodes drops repeated codes case-insensitively, keeping first
// occurrences in order. Submitting the same code twice must not double its
// discount.
func dedupeCodes(codes []string) []string {
	seen := make(map[string]struct{}, len(codes))
	out := make([]string, 0, len(codes))
	for _, code := range codes {
		code = strings.TrimSpace(code)
		if code == "" {
			continue
		}
		key := strings.ToLower(code)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, code)
	}
	return out
}
