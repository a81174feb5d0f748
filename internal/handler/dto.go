package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/undangku/coupon-service/internal/domain/coupon"
)

type couponSummary struct {
	Code  string  `json:"code"`
	Name  string  `json:"name"`
	Type  string  `json:"type"`
	Value float64 `json:"value"`
}

func summarize(c *coupon.Coupon) couponSummary {
	return couponSummary{
		Code:  c.Code,
		Name:  c.Name,
		Type:  string(c.Discount.Type),
		Value: c.Discount.Value.InexactFloat64(),
	}
}

type appliedCoupon struct {
	Coupon         couponSummary `json:"coupon"`
	DiscountAmount int64         `json:"discountAmount"`
}

type rejectedCoupon struct {
	Code    string `json:"code"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

type breakdownResponse struct {
	OrderAmount   int64            `json:"orderAmount"`
	Applied       []appliedCoupon  `json:"applied"`
	Rejected      []rejectedCoupon `json:"rejected"`
	TotalDiscount int64            `json:"totalDiscount"`
	FinalAmount   int64            `json:"finalAmount"`
}

func toBreakdown(res *coupon.PreviewResult) breakdownResponse {
	out := breakdownResponse{
		OrderAmount:   res.OrderAmount,
		Applied:       make([]appliedCoupon, 0, len(res.Applied)),
		Rejected:      make([]rejectedCoupon, 0, len(res.Rejections)),
		TotalDiscount: res.TotalDiscount,
		FinalAmount:   res.FinalAmount,
	}
	for _, a := range res.Applied {
		out.Applied = append(out.Applied, appliedCoupon{
			Coupon:         summarize(a.Coupon),
			DiscountAmount: a.DiscountAmount,
		})
	}
	for _, rej := range res.Rejections {
		out.Rejected = append(out.Rejected, rejectedCoupon{
			Code:    rej.Code,
			Reason:  string(rej.Reason),
			Message: rej.Message,
		})
	}
	return out
}

type couponPayload struct {
	Code               string    `json:"code"`
	Name               string    `json:"name"`
	Description        string    `json:"description"`
	Type               string    `json:"type"`
	Value              float64   `json:"value"`
	MaxDiscount        int64     `json:"maxDiscount"`
	MinimumAmount      int64     `json:"minimumAmount"`
	UsageLimit         int       `json:"usageLimit"`
	UserUsageLimit     int       `json:"userUsageLimit"`
	StartDate          time.Time `json:"startDate"`
	EndDate            time.Time `json:"endDate"`
	IsActive           bool      `json:"isActive"`
	ApplicablePackages []string  `json:"applicablePackages"`
	ExcludedPackages   []string  `json:"excludedPackages"`
}

func (p couponPayload) toDomain() *coupon.Coupon {
	return &coupon.Coupon{
		Code:        p.Code,
		Name:        p.Name,
		Description: p.Description,
		Discount: coupon.Discount{
			Type:        coupon.DiscountType(p.Type),
			Value:       decimal.NewFromFloat(p.Value),
			MaxDiscount: decimal.NewFromInt(p.MaxDiscount),
		},
		MinimumAmount:      p.MinimumAmount,
		UsageLimit:         p.UsageLimit,
		UserUsageLimit:     p.UserUsageLimit,
		StartDate:          p.StartDate,
		EndDate:            p.EndDate,
		IsActive:           p.IsActive,
		ApplicablePackages: p.ApplicablePackages,
		ExcludedPackages:   p.ExcludedPackages,
	}
}

type couponResponse struct {
	ID                 string    `json:"id"`
	Code               string    `json:"code"`
	Name               string    `json:"name"`
	Description        string    `json:"description,omitempty"`
	Type               string    `json:"type"`
	Value              float64   `json:"value"`
	MaxDiscount        int64     `json:"maxDiscount,omitempty"`
	MinimumAmount      int64     `json:"minimumAmount"`
	UsageLimit         int       `json:"usageLimit"`
	UsageCount         int       `json:"usageCount"`
	UserUsageLimit     int       `json:"userUsageLimit"`
	StartDate          time.Time `json:"startDate"`
	EndDate            time.Time `json:"endDate"`
	IsActive           bool      `json:"isActive"`
	Status             string    `json:"status"`
	ApplicablePackages []string  `json:"applicablePackages"`
	ExcludedPackages   []string  `json:"excludedPackages"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

func toCouponResponse(c *coupon.Coupon, now time.Time) couponResponse {
	return couponResponse{
		ID:                 c.ID.String(),
		Code:               c.Code,
		Name:               c.Name,
		Description:        c.Description,
		Type:               string(c.Discount.Type),
		Value:              c.Discount.Value.InexactFloat64(),
		MaxDiscount:        c.Discount.MaxDiscount.Round(0).IntPart(),
		MinimumAmount:      c.MinimumAmount,
		UsageLimit:         c.UsageLimit,
		UsageCount:         c.UsageCount,
		UserUsageLimit:     c.UserUsageLimit,
		StartDate:          c.StartDate,
		EndDate:            c.EndDate,
		IsActive:           c.IsActive,
		Status:             string(c.Status(now)),
		ApplicablePackages: c.ApplicablePackages,
		ExcludedPackages:   c.ExcludedPackages,
		CreatedAt:          c.CreatedAt,
		UpdatedAt:          c.UpdatedAt,
	}
}
