package coupon

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/undangku/coupon-service/internal/domain/catalog"
)

// memStore is an in-memory Store sufficient for service tests. The ledger
// counterpart below shares its state so commits are visible to reads.
type memStore struct {
	mu      sync.Mutex
	coupons map[uuid.UUID]*Coupon
	entries []Redemption
}

func newMemStore(coupons ...*Coupon) *memStore {
	s := &memStore{coupons: make(map[uuid.UUID]*Coupon)}
	for _, c := range coupons {
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
		s.coupons[c.ID] = c
	}
	return s
}

func (s *memStore) FindByCode(_ context.Context, code string) (*Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.coupons {
		if strings.EqualFold(c.Code, code) {
			cp := *c
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memStore) GetByID(_ context.Context, id uuid.UUID) (*Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.coupons[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *memStore) Create(_ context.Context, c *Coupon) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.coupons {
		if strings.EqualFold(existing.Code, c.Code) {
			return ErrDuplicateCode
		}
	}
	cp := *c
	s.coupons[c.ID] = &cp
	return nil
}

func (s *memStore) Update(_ context.Context, c *Coupon) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.coupons[c.ID]
	if !ok {
		return ErrNotFound
	}
	cp := *c
	cp.UsageCount = existing.UsageCount
	s.coupons[c.ID] = &cp
	return nil
}

func (s *memStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.coupons[id]
	if !ok {
		return ErrNotFound
	}
	if c.UsageCount > 0 {
		return ErrHasRedemptions
	}
	delete(s.coupons, id)
	return nil
}

func (s *memStore) List(_ context.Context, _ ListFilter) ([]Coupon, int64, error) {
	return nil, 0, nil
}

func (s *memStore) Stats(_ context.Context, _ time.Time) (*Stats, error) {
	return &Stats{}, nil
}

func (s *memStore) CountUserRedemptions(_ context.Context, couponID uuid.UUID, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.entries {
		if e.CouponID == couponID && e.UserID == userID {
			n++
		}
	}
	return n, nil
}

// memLedger commits against the shared memStore under one lock, mirroring
// the storage guarantee: guard re-check and increment are a single atomic
// step, all commits in a batch succeed or none do.
type memLedger struct {
	store *memStore
}

func (l *memLedger) CommitAll(_ context.Context, commits []Commit) ([]Redemption, error) {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()

	out := make([]Redemption, 0, len(commits))
	var applied []*Coupon

	for _, cm := range commits {
		c, ok := l.store.coupons[cm.CouponID]
		if !ok {
			rollback(applied)
			return nil, ErrNotFound
		}

		// Idempotent replay on (coupon, order).
		if existing := l.find(cm.CouponID, cm.OrderID); existing != nil {
			out = append(out, *existing)
			continue
		}

		if c.UsageLimit > 0 && c.UsageCount >= c.UsageLimit {
			rollback(applied)
			return nil, ErrConflict
		}
		userCount := 0
		for _, e := range l.store.entries {
			if e.CouponID == cm.CouponID && e.UserID == cm.UserID {
				userCount++
			}
		}
		if userCount >= c.UserUsageLimit {
			rollback(applied)
			return nil, ErrConflict
		}

		c.UsageCount++
		applied = append(applied, c)
		entry := Redemption{
			ID:             uuid.New(),
			CouponID:       cm.CouponID,
			UserID:         cm.UserID,
			OrderID:        cm.OrderID,
			DiscountAmount: cm.DiscountAmount,
			UsedAt:         time.Now(),
		}
		l.store.entries = append(l.store.entries, entry)
		out = append(out, entry)
	}
	return out, nil
}

func (l *memLedger) FindByOrder(_ context.Context, orderID string) ([]Redemption, error) {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()
	var out []Redemption
	for _, e := range l.store.entries {
		if e.OrderID == orderID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (l *memLedger) find(couponID uuid.UUID, orderID string) *Redemption {
	for i := range l.store.entries {
		if l.store.entries[i].CouponID == couponID && l.store.entries[i].OrderID == orderID {
			return &l.store.entries[i]
		}
	}
	return nil
}

func rollback(applied []*Coupon) {
	for _, c := range applied {
		c.UsageCount--
	}
}

type memCatalog struct {
	packages map[string]*catalog.Package
}

func (m *memCatalog) Get(_ context.Context, id string) (*catalog.Package, error) {
	p, ok := m.packages[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return p, nil
}

func testFixtures() (*memStore, *memLedger, *memCatalog) {
	store := newMemStore(testCoupon())
	return store, &memLedger{store: store}, &memCatalog{packages: map[string]*catalog.Package{
		"P1": {ID: "P1", Name: "Paket Premium", Price: 200_000, IsActive: true},
		"P2": {ID: "P2", Name: "Paket Basic", Price: 100_000, IsActive: true},
		"P3": {ID: "P3", Name: "Paket Lama", Price: 50_000, IsActive: false},
	}}
}

func newTestService(store *memStore, ledger *memLedger, cat *memCatalog) *Service {
	s := NewService(store, ledger, cat)
	s.now = func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }
	return s
}

func TestServicePreview(t *testing.T) {
	svc := newTestService(testFixtures())

	res, err := svc.Preview(context.Background(), PreviewRequest{
		Codes:       []string{"PROMO10"},
		UserID:      "u1",
		PackageID:   "P1",
		OrderAmount: 200_000,
	})

	require.NoError(t, err)
	require.Len(t, res.Applied, 1)
	assert.Equal(t, int64(20_000), res.Applied[0].DiscountAmount)
	assert.Equal(t, int64(180_000), res.FinalAmount)
	assert.Empty(t, res.Rejections)
}

func TestServicePreviewExpired(t *testing.T) {
	store, ledger, cat := testFixtures()
	svc := NewService(store, ledger, cat)
	svc.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }

	res, err := svc.Preview(context.Background(), PreviewRequest{
		Codes:       []string{"PROMO10"},
		UserID:      "u1",
		PackageID:   "P1",
		OrderAmount: 200_000,
	})

	require.NoError(t, err)
	assert.Empty(t, res.Applied)
	require.Len(t, res.Rejections, 1)
	assert.Equal(t, ReasonExpired, res.Rejections[0].Reason)
	assert.Equal(t, int64(200_000), res.FinalAmount)
}

func TestServicePreviewUnknownCode(t *testing.T) {
	svc := newTestService(testFixtures())

	res, err := svc.Preview(context.Background(), PreviewRequest{
		Codes:       []string{"BOGUS"},
		UserID:      "u1",
		PackageID:   "P1",
		OrderAmount: 200_000,
	})

	require.NoError(t, err)
	require.Len(t, res.Rejections, 1)
	assert.Equal(t, ReasonNotFound, res.Rejections[0].Reason)
	assert.Equal(t, "Kode kupon tidak valid", res.Rejections[0].Message)
}

func TestServicePreviewCaseInsensitiveLookup(t *testing.T) {
	svc := newTestService(testFixtures())

	res, err := svc.Preview(context.Background(), PreviewRequest{
		Codes:       []string{"promo10"},
		UserID:      "u1",
		PackageID:   "P1",
		OrderAmount: 200_000,
	})

	require.NoError(t, err)
	require.Len(t, res.Applied, 1)
}

func TestServicePreviewDeduplicatesCodes(t *testing.T) {
	svc := newTestService(testFixtures())

	res, err := svc.Preview(context.Background(), PreviewRequest{
		Codes:       []string{"PROMO10", "promo10", " PROMO10 "},
		UserID:      "u1",
		PackageID:   "P1",
		OrderAmount: 200_000,
	})

	require.NoError(t, err)
	require.Len(t, res.Applied, 1)
	assert.Equal(t, int64(20_000), res.TotalDiscount)
}

func TestServicePreviewUsesPackagePrice(t *testing.T) {
	svc := newTestService(testFixtures())

	res, err := svc.Preview(context.Background(), PreviewRequest{
		Codes:     []string{"PROMO10"},
		UserID:    "u1",
		PackageID: "P2",
	})

	require.NoError(t, err)
	assert.Equal(t, int64(100_000), res.OrderAmount)
	assert.Equal(t, int64(90_000), res.FinalAmount)
}

func TestServicePreviewUnknownPackage(t *testing.T) {
	svc := newTestService(testFixtures())

	_, err := svc.Preview(context.Background(), PreviewRequest{
		Codes:     []string{"PROMO10"},
		UserID:    "u1",
		PackageID: "NOPE",
	})

	require.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestServicePreviewInactivePackage(t *testing.T) {
	svc := newTestService(testFixtures())

	_, err := svc.Preview(context.Background(), PreviewRequest{
		Codes:     []string{"PROMO10"},
		UserID:    "u1",
		PackageID: "P3",
	})

	require.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestServiceRedeem(t *testing.T) {
	store, ledger, cat := testFixtures()
	svc := newTestService(store, ledger, cat)

	res, err := svc.Redeem(context.Background(), RedeemRequest{
		Codes:       []string{"PROMO10"},
		UserID:      "u1",
		OrderID:     "o1",
		PackageID:   "P1",
		OrderAmount: 200_000,
	})

	require.NoError(t, err)
	require.Len(t, res.Redemptions, 1)
	assert.Equal(t, int64(20_000), res.Redemptions[0].DiscountAmount)

	c, err := store.FindByCode(context.Background(), "PROMO10")
	require.NoError(t, err)
	assert.Equal(t, 1, c.UsageCount)
}

// A passing check followed immediately by a commit, with no interleaving
// redemption, never conflicts.
func TestServiceRedeemAfterPreviewNeverConflicts(t *testing.T) {
	store, ledger, cat := testFixtures()
	svc := newTestService(store, ledger, cat)

	preview, err := svc.Preview(context.Background(), PreviewRequest{
		Codes: []string{"PROMO10"}, UserID: "u1", PackageID: "P1", OrderAmount: 200_000,
	})
	require.NoError(t, err)
	require.Len(t, preview.Applied, 1)

	_, err = svc.Redeem(context.Background(), RedeemRequest{
		Codes: []string{"PROMO10"}, UserID: "u1", OrderID: "o1", PackageID: "P1", OrderAmount: 200_000,
	})
	require.NoError(t, err)
}

func TestServiceRedeemIdempotentOnOrderID(t *testing.T) {
	store, ledger, cat := testFixtures()
	svc := newTestService(store, ledger, cat)

	req := RedeemRequest{
		Codes: []string{"PROMO10"}, UserID: "u1", OrderID: "o1", PackageID: "P1", OrderAmount: 200_000,
	}

	first, err := svc.Redeem(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, first.Redemptions, 1)

	// A retry after a successful commit replays the recorded entries with
	// their full breakdown, not an empty result from the per-user re-check.
	second, err := svc.Redeem(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, second.Redemptions, 1)
	assert.Equal(t, first.Redemptions[0].ID, second.Redemptions[0].ID)
	require.Len(t, second.Applied, 1)
	assert.Equal(t, int64(20_000), second.TotalDiscount)
	assert.Equal(t, int64(180_000), second.FinalAmount)
	assert.Empty(t, second.Rejections)

	c, err := store.FindByCode(context.Background(), "PROMO10")
	require.NoError(t, err)
	assert.Equal(t, 1, c.UsageCount, "replaying the same order must not double-count")
}

func TestServiceRedeemPerUserLimit(t *testing.T) {
	store, ledger, cat := testFixtures()
	svc := newTestService(store, ledger, cat)

	_, err := svc.Redeem(context.Background(), RedeemRequest{
		Codes: []string{"PROMO10"}, UserID: "u1", OrderID: "o1", PackageID: "P1", OrderAmount: 200_000,
	})
	require.NoError(t, err)

	res, err := svc.Redeem(context.Background(), RedeemRequest{
		Codes: []string{"PROMO10"}, UserID: "u1", OrderID: "o2", PackageID: "P1", OrderAmount: 200_000,
	})
	require.NoError(t, err)
	assert.Empty(t, res.Redemptions)
	require.Len(t, res.Rejections, 1)
	assert.Equal(t, ReasonUserLimitReached, res.Rejections[0].Reason)
}

// With usageLimit = 1, N concurrent redeems from distinct orders produce
// exactly one successful commit; usageCount ends at exactly 1.
func TestServiceRedeemConcurrent(t *testing.T) {
	store := newMemStore(&Coupon{
		Code:           "ONCE",
		Name:           "Satu kali",
		Discount:       Discount{Type: DiscountFixed, Value: decimal.NewFromInt(10_000)},
		UsageLimit:     1,
		UserUsageLimit: 1,
		StartDate:      time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:        time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC),
		IsActive:       true,
	})
	ledger := &memLedger{store: store}
	cat := &memCatalog{packages: map[string]*catalog.Package{
		"P1": {ID: "P1", Price: 100_000, IsActive: true},
	}}
	svc := newTestService(store, ledger, cat)

	const n = 16
	var wg sync.WaitGroup
	results := make([]int, n) // 1 = committed, 0 = not

	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Redeem(context.Background(), RedeemRequest{
				Codes:       []string{"ONCE"},
				UserID:      fmt.Sprintf("u%d", i),
				OrderID:     fmt.Sprintf("o%d", i),
				PackageID:   "P1",
				OrderAmount: 100_000,
			})
			if err == nil && len(res.Redemptions) == 1 {
				results[i] = 1
			} else if err != nil {
				require.ErrorIs(t, err, ErrConflict)
			}
		}()
	}
	wg.Wait()

	committed := 0
	for _, r := range results {
		committed += r
	}
	assert.Equal(t, 1, committed)

	c, err := store.FindByCode(context.Background(), "ONCE")
	require.NoError(t, err)
	assert.Equal(t, 1, c.UsageCount)
	assert.Len(t, store.entries, 1)
}

// With userUsageLimit = 1 and no global cap, N concurrent redeems by the
// same user from distinct orders commit exactly once. The per-user count
// must be re-read under the coupon lock for this to hold.
func TestServiceRedeemConcurrentSameUser(t *testing.T) {
	store := newMemStore(&Coupon{
		Code:           "SEKALI",
		Name:           "Sekali per pengguna",
		Discount:       Discount{Type: DiscountFixed, Value: decimal.NewFromInt(10_000)},
		UsageLimit:     0,
		UserUsageLimit: 1,
		StartDate:      time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:        time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC),
		IsActive:       true,
	})
	ledger := &memLedger{store: store}
	cat := &memCatalog{packages: map[string]*catalog.Package{
		"P1": {ID: "P1", Price: 100_000, IsActive: true},
	}}
	svc := newTestService(store, ledger, cat)

	const n = 16
	var wg sync.WaitGroup
	results := make([]int, n)

	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Redeem(context.Background(), RedeemRequest{
				Codes:       []string{"SEKALI"},
				UserID:      "u1",
				OrderID:     fmt.Sprintf("o%d", i),
				PackageID:   "P1",
				OrderAmount: 100_000,
			})
			if err == nil && len(res.Redemptions) == 1 {
				results[i] = 1
			} else if err != nil {
				require.ErrorIs(t, err, ErrConflict)
			}
		}()
	}
	wg.Wait()

	committed := 0
	for _, r := range results {
		committed += r
	}
	assert.Equal(t, 1, committed, "one user must never redeem a single-use coupon twice")
	assert.Len(t, store.entries, 1)
}

func TestServiceCreate(t *testing.T) {
	store, ledger, cat := testFixtures()
	svc := newTestService(store, ledger, cat)

	c := testCoupon()
	c.ID = uuid.Nil
	c.Code = "BARU25"
	c.UsageCount = 42 // must be reset

	require.NoError(t, svc.Create(context.Background(), c))
	assert.NotEqual(t, uuid.Nil, c.ID)
	assert.Equal(t, 0, c.UsageCount)

	dup := testCoupon()
	dup.Code = "baru25"
	err := svc.Create(context.Background(), dup)
	require.ErrorIs(t, err, ErrDuplicateCode)
}

func TestServiceCreateInvalid(t *testing.T) {
	svc := newTestService(testFixtures())

	c := testCoupon()
	c.Code = "X"
	err := svc.Create(context.Background(), c)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrDuplicateCode))
}

func TestServiceDeleteWithRedemptions(t *testing.T) {
	store, ledger, cat := testFixtures()
	svc := newTestService(store, ledger, cat)

	res, err := svc.Redeem(context.Background(), RedeemRequest{
		Codes: []string{"PROMO10"}, UserID: "u1", OrderID: "o1", PackageID: "P1", OrderAmount: 200_000,
	})
	require.NoError(t, err)
	require.Len(t, res.Redemptions, 1)

	err = svc.Delete(context.Background(), res.Redemptions[0].CouponID)
	require.ErrorIs(t, err, ErrHasRedemptions)
}
