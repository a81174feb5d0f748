package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/undangku/coupon-service/internal/domain/coupon"
)

type listResponse struct {
	Coupons []couponResponse `json:"coupons"`
	Total   int64            `json:"total"`
	Limit   int              `json:"limit"`
	Offset  int              `json:"offset"`
}

// AdminList handles GET /admin/coupons with search, status, type, sort and
// pagination query parameters.
func (h *Handler) AdminList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := coupon.ListFilter{
		Search: q.Get("search"),
		Status: coupon.Status(q.Get("status")),
		Type:   coupon.DiscountType(q.Get("type")),
		Sort:   q.Get("sort"),
		Desc:   q.Get("order") == "desc",
	}
	f.Limit, _ = strconv.Atoi(q.Get("limit"))
	f.Offset, _ = strconv.Atoi(q.Get("offset"))
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	// The same instant filters the query and renders each derived status, so
	// a row is never listed under one status and shown with another.
	now := time.Now()
	f.Now = now

	coupons, total, err := h.svc.List(r.Context(), f)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	out := listResponse{
		Coupons: make([]couponResponse, 0, len(coupons)),
		Total:   total,
		Limit:   f.Limit,
		Offset:  f.Offset,
	}
	for i := range coupons {
		out.Coupons = append(out.Coupons, toCouponResponse(&coupons[i], now))
	}
	writeJSON(w, http.StatusOK, out)
}

// AdminCreate handles POST /admin/coupons.
func (h *Handler) AdminCreate(w http.ResponseWriter, r *http.Request) {
	var payload couponPayload
	if err := decode(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "Permintaan tidak valid")
		return
	}

	c := payload.toDomain()
	if err := h.svc.Create(r.Context(), c); err != nil {
		if isValidationError(err) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCouponResponse(c, time.Now()))
}

// AdminGet handles GET /admin/coupons/{id}.
func (h *Handler) AdminGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "ID kupon tidak valid")
		return
	}

	c, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCouponResponse(c, time.Now()))
}

// AdminUpdate handles PUT /admin/coupons/{id}: a full rewrite of the
// definition. Usage counters are never touched through this path.
func (h *Handler) AdminUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "ID kupon tidak valid")
		return
	}

	var payload couponPayload
	if err := decode(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "Permintaan tidak valid")
		return
	}

	c := payload.toDomain()
	c.ID = id
	if err := h.svc.Update(r.Context(), c); err != nil {
		if isValidationError(err) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeServiceError(w, r, err)
		return
	}

	updated, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCouponResponse(updated, time.Now()))
}

// AdminDelete handles DELETE /admin/coupons/{id}. Coupons with recorded
// redemptions are refused with 409.
func (h *Handler) AdminDelete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "ID kupon tidak valid")
		return
	}

	if err := h.svc.Delete(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type statsResponse struct {
	TotalCoupons         int64 `json:"totalCoupons"`
	ActiveCoupons        int64 `json:"activeCoupons"`
	TotalRedemptions     int64 `json:"totalRedemptions"`
	TotalDiscountGranted int64 `json:"totalDiscountGranted"`
}

// AdminStats handles GET /admin/coupons/stats.
func (h *Handler) AdminStats(w http.ResponseWriter, r *http.Request) {
	s, err := h.svc.Stats(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{
		TotalCoupons:         s.TotalCoupons,
		ActiveCoupons:        s.ActiveCoupons,
		TotalRedemptions:     s.TotalRedemptions,
		TotalDiscountGranted: s.TotalDiscountGranted,
	})
}
