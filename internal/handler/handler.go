// Package handler exposes the coupon engine over HTTP.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/undangku/coupon-service/internal/domain/catalog"
	"github.com/undangku/coupon-service/internal/domain/coupon"
)

// Handler serves the public coupon endpoints and the admin CRUD surface,
// delegating business logic to the coupon service.
type Handler struct {
	svc *coupon.Service
}

// NewHandler constructs a Handler around the coupon service.
func NewHandler(svc *coupon.Service) *Handler {
	return &Handler{svc: svc}
}

// Routes mounts all coupon endpoints on a fresh router. Admin routes are
// guarded by the bearer token; an empty token disables the admin surface.
func (h *Handler) Routes(adminToken string) chi.Router {
	r := chi.NewRouter()

	r.Route("/coupons", func(r chi.Router) {
		r.Post("/validate", h.Validate)
		r.Post("/preview", h.Preview)
		r.Post("/redeem", h.Redeem)
	})

	r.Route("/admin/coupons", func(r chi.Router) {
		r.Use(BearerAuth(adminToken))
		r.Get("/", h.AdminList)
		r.Post("/", h.AdminCreate)
		r.Get("/stats", h.AdminStats)
		r.Get("/{id}", h.AdminGet)
		r.Put("/{id}", h.AdminUpdate)
		r.Delete("/{id}", h.AdminDelete)
	})

	return r
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeServiceError maps domain errors to the HTTP taxonomy. Unexpected
// errors are logged and surfaced as a generic 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, coupon.ErrNotFound):
		writeError(w, http.StatusNotFound, "Kode kupon tidak valid")
	case errors.Is(err, catalog.ErrNotFound):
		writeError(w, http.StatusNotFound, "Paket tidak ditemukan")
	case errors.Is(err, coupon.ErrDuplicateCode):
		writeError(w, http.StatusConflict, "Kode kupon sudah digunakan")
	case errors.Is(err, coupon.ErrHasRedemptions):
		writeError(w, http.StatusConflict, "Kupon sudah pernah digunakan dan tidak dapat dihapus")
	case errors.Is(err, coupon.ErrConflict):
		writeError(w, http.StatusConflict, "Kupon baru saja habis digunakan, silakan coba kode lain")
	default:
		zctx.From(r.Context()).Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Terjadi kesalahan, silakan coba lagi")
	}
}

func decode(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func isValidationError(err error) bool {
	var defErr *coupon.DefinitionError
	return errors.As(err, &defErr)
}
