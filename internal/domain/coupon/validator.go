package coupon

import (
	"strconv"
	"time"
)

// ReasonCode identifies why a coupon failed validation. The codes are stable
// contract values; the messages are what end users see.
type ReasonCode string

const (
	ReasonNotFound             ReasonCode = "NOT_FOUND"
	ReasonInactive             ReasonCode = "INACTIVE"
	ReasonNotStarted           ReasonCode = "NOT_STARTED"
	ReasonExpired              ReasonCode = "EXPIRED"
	ReasonExhausted            ReasonCode = "EXHAUSTED"
	ReasonBelowMinimum         ReasonCode = "BELOW_MINIMUM"
	ReasonUserLimitReached     ReasonCode = "USER_LIMIT_REACHED"
	ReasonPackageNotApplicable ReasonCode = "PACKAGE_NOT_APPLICABLE"
	ReasonPackageExcluded      ReasonCode = "PACKAGE_EXCLUDED"
)

// Rejection is the typed validation failure. It is a result value, not an
// error: every rejection is recoverable by the end user.
type Rejection struct {
	Code    ReasonCode
	Message string
}

var reasonMessages = map[ReasonCode]string{
	ReasonNotFound:             "Kode kupon tidak valid",
	ReasonInactive:             "Kupon tidak aktif",
	ReasonNotStarted:           "Kupon belum berlaku",
	ReasonExpired:              "Kupon sudah kadaluarsa",
	ReasonExhausted:            "Kupon sudah habis digunakan",
	ReasonUserLimitReached:     "Anda sudah mencapai batas penggunaan kupon ini",
	ReasonPackageNotApplicable: "Kupon tidak berlaku untuk paket ini",
	ReasonPackageExcluded:      "Kupon tidak berlaku untuk paket ini",
}

func reject(code ReasonCode) *Rejection {
	return &Rejection{Code: code, Message: reasonMessages[code]}
}

func rejectBelowMinimum(minimum int64) *Rejection {
	return &Rejection{
		Code:    ReasonBelowMinimum,
		Message: "Minimum pembelian Rp " + formatAmount(minimum),
	}
}

// CheckRequest carries everything the validator needs. Now and the per-user
// redemption count are supplied by the caller; Check never reads the wall
// clock or any shared state.
type CheckRequest struct {
	UserID         string
	PackageID      string
	OrderAmount    int64
	UserUsageCount int
	Now            time.Time
}

// Check runs the eligibility checks in their fixed order and returns the
// first failure, or nil when the coupon is valid. The order is part of the
// contract: callers surface the first reason verbatim to end users.
func Check(c *Coupon, req CheckRequest) *Rejection {
	if !c.IsActive {
		return reject(ReasonInactive)
	}
	if req.Now.Before(c.StartDate) {
		return reject(ReasonNotStarted)
	}
	if req.Now.After(c.EndDate) {
		return reject(ReasonExpired)
	}
	if c.UsageLimit > 0 && c.UsageCount >= c.UsageLimit {
		return reject(ReasonExhausted)
	}
	if req.OrderAmount < c.MinimumAmount {
		return rejectBelowMinimum(c.MinimumAmount)
	}
	if req.UserUsageCount >= c.UserUsageLimit {
		return reject(ReasonUserLimitReached)
	}
	if len(c.ApplicablePackages) > 0 && !containsFold(c.ApplicablePackages, req.PackageID) {
		return reject(ReasonPackageNotApplicable)
	}
	if containsFold(c.ExcludedPackages, req.PackageID) {
		return reject(ReasonPackageExcluded)
	}
	return nil
}

// formatAmount renders a rupiah amount with Indonesian thousand separators,
// e.g. 150000 -> "150.000".
func formatAmount(n int64) string {
	s := strconv.FormatInt(n, 10)
	if n < 0 {
		return "-" + formatAmount(-n)
	}
	if len(s) <= 3 {
		return s
	}
	var b []byte
	lead := len(s) % 3
	if lead > 0 {
		b = append(b, s[:lead]...)
	}
	for i := lead; i < len(s); i += 3 {
		if len(b) > 0 {
			b = append(b, '.')
		}
		b = append(b, s[i:i+3]...)
	}
	return string(b)
}
