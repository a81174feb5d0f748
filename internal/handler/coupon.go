package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/undangku/coupon-service/internal/domain/coupon"
)

type validateRequest struct {
	Code        string `json:"code"`
	UserID      string `json:"userId"`
	PackageID   string `json:"packageId"`
	OrderAmount int64  `json:"orderAmount"`
}

type validateResponse struct {
	Valid          bool          `json:"valid"`
	Coupon         couponSummary `json:"coupon"`
	DiscountAmount int64         `json:"discountAmount"`
	FinalAmount    int64         `json:"finalAmount"`
	Message        string        `json:"message"`
}

// Validate handles POST /coupons/validate: the single-code eligibility check
// used while the customer types a code at checkout. Rejections surface the
// user-facing reason in the error body.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Permintaan tidak valid")
		return
	}
	if strings.TrimSpace(req.Code) == "" || req.UserID == "" || req.PackageID == "" {
		writeError(w, http.StatusBadRequest, "code, userId, dan packageId wajib diisi")
		return
	}

	res, err := h.svc.Preview(r.Context(), coupon.PreviewRequest{
		Codes:       []string{req.Code},
		UserID:      req.UserID,
		PackageID:   req.PackageID,
		OrderAmount: req.OrderAmount,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	if len(res.Rejections) > 0 {
		rej := res.Rejections[0]
		status := http.StatusBadRequest
		if rej.Reason == coupon.ReasonNotFound {
			status = http.StatusNotFound
		}
		writeError(w, status, rej.Message)
		return
	}

	applied := res.Applied[0]
	writeJSON(w, http.StatusOK, validateResponse{
		Valid:          true,
		Coupon:         summarize(applied.Coupon),
		DiscountAmount: applied.DiscountAmount,
		FinalAmount:    res.FinalAmount,
		Message:        "Kupon berhasil diterapkan",
	})
}

type previewRequest struct {
	Codes       []string `json:"codes"`
	UserID      string   `json:"userId"`
	PackageID   string   `json:"packageId"`
	OrderAmount int64    `json:"orderAmount"`
}

// Preview handles POST /coupons/preview: the multi-code breakdown used by
// checkout as the user stacks promo and referral codes. Read-only.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Permintaan tidak valid")
		return
	}
	if req.UserID == "" || req.PackageID == "" {
		writeError(w, http.StatusBadRequest, "userId dan packageId wajib diisi")
		return
	}

	res, err := h.svc.Preview(r.Context(), coupon.PreviewRequest{
		Codes:       req.Codes,
		UserID:      req.UserID,
		PackageID:   req.PackageID,
		OrderAmount: req.OrderAmount,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toBreakdown(res))
}

type redeemRequest struct {
	Codes       []string `json:"codes"`
	UserID      string   `json:"userId"`
	OrderID     string   `json:"orderId"`
	PackageID   string   `json:"packageId"`
	OrderAmount int64    `json:"orderAmount"`
}

type redeemResponse struct {
	breakdownResponse
	Redemptions []redemptionResponse `json:"redemptions"`
}

type redemptionResponse struct {
	ID             string `json:"id"`
	CouponID       string `json:"couponId"`
	OrderID        string `json:"orderId"`
	DiscountAmount int64  `json:"discountAmount"`
	UsedAt         string `json:"usedAt"`
}

// Redeem handles POST /coupons/redeem: the order service commits all valid
// coupons for a completed order. Retrying with the same orderId is safe.
func (h *Handler) Redeem(w http.ResponseWriter, r *http.Request) {
	var req redeemRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Permintaan tidak valid")
		return
	}
	if req.UserID == "" || req.PackageID == "" || req.OrderID == "" {
		writeError(w, http.StatusBadRequest, "userId, orderId, dan packageId wajib diisi")
		return
	}

	res, err := h.svc.Redeem(r.Context(), coupon.RedeemRequest{
		Codes:       req.Codes,
		UserID:      req.UserID,
		OrderID:     req.OrderID,
		PackageID:   req.PackageID,
		OrderAmount: req.OrderAmount,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	out := redeemResponse{
		breakdownResponse: toBreakdown(&res.PreviewResult),
		Redemptions:       make([]redemptionResponse, 0, len(res.Redemptions)),
	}
	for _, red := range res.Redemptions {
		out.Redemptions = append(out.Redemptions, redemptionResponse{
			ID:             red.ID.String(),
			CouponID:       red.CouponID.String(),
			OrderID:        red.OrderID,
			DiscountAmount: red.DiscountAmount,
			UsedAt:         red.UsedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, out)
}
