package repository

import (
	"context"
	"strings"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/undangku/coupon-service/internal/domain/coupon"
)

var _ coupon.Store = (*CachedStore)(nil)

// CodeLister exposes the full code set for warming the filter.
type CodeLister interface {
	AllCodes(ctx context.Context) ([]string, error)
}

// CachedStore wraps a coupon.Store with a bloom filter over lowercased
// codes. Lookups for codes that were never created skip the database
// entirely; a false positive only costs one extra query.
type CachedStore struct {
	coupon.Store

	mu     sync.RWMutex
	filter *bloom.BloomFilter
}

// NewCachedStore builds a CachedStore sized for the expected number of codes.
func NewCachedStore(store coupon.Store, expectedCodes uint) *CachedStore {
	if expectedCodes < 1024 {
		expectedCodes = 1024
	}
	return &CachedStore{
		Store:  store,
		filter: bloom.NewWithEstimates(expectedCodes, 0.01),
	}
}

// Warm seeds the filter from the store's current code set.
func (s *CachedStore) Warm(ctx context.Context, lister CodeLister) error {
	codes, err := lister.AllCodes(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, code := range codes {
		s.filter.AddString(strings.ToLower(code))
	}
	return nil
}

// FindByCode short-circuits to ErrNotFound when the filter proves the code
// was never created.
func (s *CachedStore) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	key := strings.ToLower(strings.TrimSpace(code))
	s.mu.RLock()
	known := s.filter.TestString(key)
	s.mu.RUnlock()
	if !known {
		return nil, coupon.ErrNotFound
	}
	return s.Store.FindByCode(ctx, code)
}

// Create inserts through the wrapped store and records the new code in the
// filter on success.
func (s *CachedStore) Create(ctx context.Context, c *coupon.Coupon) error {
	if err := s.Store.Create(ctx, c); err != nil {
		return err
	}
	s.mu.Lock()
	s.filter.AddString(strings.ToLower(c.Code))
	s.mu.Unlock()
	return nil
}

// Update passes through and records the possibly changed code. Stale codes
// stay in the filter; they cost at most one extra lookup.
func (s *CachedStore) Update(ctx context.Context, c *coupon.Coupon) error {
	if err := s.Store.Update(ctx, c); err != nil {
		return err
	}
	s.mu.Lock()
	s.filter.AddString(strings.ToLower(c.Code))
	s.mu.Unlock()
	return nil
}
