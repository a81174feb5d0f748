package coupon

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCoupon() *Coupon {
	return &Coupon{
		Code:           "PROMO10",
		Name:           "Promo 10%",
		Discount:       Discount{Type: DiscountPercentage, Value: decimal.NewFromInt(10), MaxDiscount: decimal.NewFromInt(50_000)},
		MinimumAmount:  0,
		UsageLimit:     100,
		UsageCount:     0,
		UserUsageLimit: 1,
		StartDate:      time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:        time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC),
		IsActive:       true,
	}
}

func TestCheck(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	base := CheckRequest{
		UserID:      "u1",
		PackageID:   "P1",
		OrderAmount: 200_000,
		Now:         now,
	}

	tests := []struct {
		name   string
		mutate func(c *Coupon)
		req    func(r CheckRequest) CheckRequest
		want   ReasonCode // empty = valid
	}{
		{
			name:   "valid coupon passes",
			mutate: func(c *Coupon) {},
			req:    func(r CheckRequest) CheckRequest { return r },
		},
		{
			name:   "inactive",
			mutate: func(c *Coupon) { c.IsActive = false },
			req:    func(r CheckRequest) CheckRequest { return r },
			want:   ReasonInactive,
		},
		{
			name:   "not started",
			mutate: func(c *Coupon) {},
			req: func(r CheckRequest) CheckRequest {
				r.Now = time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
				return r
			},
			want: ReasonNotStarted,
		},
		{
			name:   "expired",
			mutate: func(c *Coupon) {},
			req: func(r CheckRequest) CheckRequest {
				r.Now = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
				return r
			},
			want: ReasonExpired,
		},
		{
			name:   "exhausted",
			mutate: func(c *Coupon) { c.UsageCount = 100 },
			req:    func(r CheckRequest) CheckRequest { return r },
			want:   ReasonExhausted,
		},
		{
			name:   "below minimum",
			mutate: func(c *Coupon) { c.MinimumAmount = 250_000 },
			req:    func(r CheckRequest) CheckRequest { return r },
			want:   ReasonBelowMinimum,
		},
		{
			name:   "order exactly at minimum passes",
			mutate: func(c *Coupon) { c.MinimumAmount = 200_000 },
			req:    func(r CheckRequest) CheckRequest { return r },
		},
		{
			name:   "user limit reached",
			mutate: func(c *Coupon) {},
			req: func(r CheckRequest) CheckRequest {
				r.UserUsageCount = 1
				return r
			},
			want: ReasonUserLimitReached,
		},
		{
			name:   "higher per-user limit allows reuse",
			mutate: func(c *Coupon) { c.UserUsageLimit = 3 },
			req: func(r CheckRequest) CheckRequest {
				r.UserUsageCount = 2
				return r
			},
		},
		{
			name:   "package not applicable",
			mutate: func(c *Coupon) { c.ApplicablePackages = []string{"P1"} },
			req: func(r CheckRequest) CheckRequest {
				r.PackageID = "P2"
				return r
			},
			want: ReasonPackageNotApplicable,
		},
		{
			name:   "package in applicability list passes",
			mutate: func(c *Coupon) { c.ApplicablePackages = []string{"P1", "P3"} },
			req:    func(r CheckRequest) CheckRequest { return r },
		},
		{
			name:   "package excluded",
			mutate: func(c *Coupon) { c.ExcludedPackages = []string{"P1"} },
			req:    func(r CheckRequest) CheckRequest { return r },
			want:   ReasonPackageExcluded,
		},
		{
			name:   "empty applicability applies to all but excluded",
			mutate: func(c *Coupon) { c.ExcludedPackages = []string{"P9"} },
			req:    func(r CheckRequest) CheckRequest { return r },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testCoupon()
			tt.mutate(c)

			rej := Check(c, tt.req(base))

			if tt.want == "" {
				assert.Nil(t, rej)
				return
			}
			require.NotNil(t, rej)
			assert.Equal(t, tt.want, rej.Code)
			assert.NotEmpty(t, rej.Message)
		})
	}
}

// Checks run in a fixed order and short-circuit on the first failure; the
// first reason is what the user sees.
func TestCheckOrder(t *testing.T) {
	c := testCoupon()
	c.IsActive = false
	c.UsageCount = 100
	c.MinimumAmount = 1_000_000

	rej := Check(c, CheckRequest{
		UserID:      "u1",
		PackageID:   "P1",
		OrderAmount: 1,
		Now:         time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
	})

	require.NotNil(t, rej)
	assert.Equal(t, ReasonInactive, rej.Code)
}

func TestCheckMinimumMessage(t *testing.T) {
	c := testCoupon()
	c.MinimumAmount = 150_000

	rej := Check(c, CheckRequest{
		UserID:      "u1",
		PackageID:   "P1",
		OrderAmount: 100_000,
		Now:         time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	})

	require.NotNil(t, rej)
	assert.Equal(t, "Minimum pembelian Rp 150.000", rej.Message)
}

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1_000, "1.000"},
		{50_000, "50.000"},
		{1_234_567, "1.234.567"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, formatAmount(tt.in))
	}
}
