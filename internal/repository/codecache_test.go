package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/undangku/coupon-service/internal/domain/coupon"
)

type fakeStore struct {
	coupon.Store

	coupons map[string]*coupon.Coupon
	lookups int
}

func newFakeStore() *fakeStore {
	return &fakeStore{coupons: make(map[string]*coupon.Coupon)}
}

func (s *fakeStore) FindByCode(_ context.Context, code string) (*coupon.Coupon, error) {
	s.lookups++
	if c, ok := s.coupons[code]; ok {
		return c, nil
	}
	return nil, coupon.ErrNotFound
}

func (s *fakeStore) Create(_ context.Context, c *coupon.Coupon) error {
	if _, ok := s.coupons[c.Code]; ok {
		return coupon.ErrDuplicateCode
	}
	s.coupons[c.Code] = c
	return nil
}

func (s *fakeStore) AllCodes(context.Context) ([]string, error) {
	codes := make([]string, 0, len(s.coupons))
	for code := range s.coupons {
		codes = append(codes, code)
	}
	return codes, nil
}

func TestCachedStoreSkipsUnknownCodes(t *testing.T) {
	ctx := context.Background()
	inner := newFakeStore()
	cached := NewCachedStore(inner, 0)

	_, err := cached.FindByCode(ctx, "NOPE")
	require.ErrorIs(t, err, coupon.ErrNotFound)
	assert.Zero(t, inner.lookups, "unknown code must not reach the store")
}

func TestCachedStoreFindsCreatedCodes(t *testing.T) {
	ctx := context.Background()
	inner := newFakeStore()
	cached := NewCachedStore(inner, 0)

	require.NoError(t, cached.Create(ctx, &coupon.Coupon{Code: "PROMO10"}))

	got, err := cached.FindByCode(ctx, "PROMO10")
	require.NoError(t, err)
	assert.Equal(t, "PROMO10", got.Code)
	assert.Equal(t, 1, inner.lookups)
}

func TestCachedStoreLookupIsCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	inner := newFakeStore()
	cached := NewCachedStore(inner, 0)

	require.NoError(t, cached.Create(ctx, &coupon.Coupon{Code: "PROMO10"}))

	// The filter keys are lowercased, so a differently cased lookup must
	// still pass through to the store.
	inner.coupons["promo10"] = inner.coupons["PROMO10"]
	got, err := cached.FindByCode(ctx, "promo10")
	require.NoError(t, err)
	assert.Equal(t, "PROMO10", got.Code)
}

func TestCachedStoreWarm(t *testing.T) {
	ctx := context.Background()
	inner := newFakeStore()
	inner.coupons["EXISTING"] = &coupon.Coupon{Code: "EXISTING"}

	cached := NewCachedStore(inner, 0)
	require.NoError(t, cached.Warm(ctx, inner))

	_, err := cached.FindByCode(ctx, "EXISTING")
	require.NoError(t, err)
}
