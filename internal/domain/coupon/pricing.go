package coupon

// Applied pairs a valid coupon with its computed discount.
type Applied struct {
	Coupon         *Coupon
	DiscountAmount int64
}

// Quote is the combined pricing result for one order amount and any number
// of stacked coupons.
type Quote struct {
	OrderAmount   int64
	Applied       []Applied
	TotalDiscount int64
	FinalAmount   int64
}

// CalculateDiscount computes the discount of a single coupon against the
// order amount.
func CalculateDiscount(c *Coupon, orderAmount int64) int64 {
	return c.Discount.Apply(orderAmount)
}

// Combine stacks multiple coupons on one order. Each coupon's discount is
// computed independently against the original order amount, not against a
// running total; the aggregate discount is capped at the order amount so the
// final price never goes negative.
func Combine(orderAmount int64, coupons []*Coupon) Quote {
	q := Quote{OrderAmount: orderAmount}
	for _, c := range coupons {
		d := CalculateDiscount(c, orderAmount)
		q.Applied = append(q.Applied, Applied{Coupon: c, DiscountAmount: d})
		q.TotalDiscount += d
	}
	q.FinalAmount = orderAmount - q.TotalDiscount
	if q.FinalAmount < 0 {
		q.FinalAmount = 0
	}
	return q
}
