// Package catalog exposes the invitation-package catalog this service
// consumes. The catalog itself is owned by another system; only lookup is
// needed here.
package catalog

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when no package matches the given id, or the
// package is no longer offered.
var ErrNotFound = errors.New("package not found")

// Package is a time-boxed invitation package. Price is in the smallest
// currency unit.
type Package struct {
	ID              string
	Name            string
	Price           int64
	InvitationQuota int
	DurationDays    int
	IsActive        bool
}

// Repository provides package lookup.
type Repository interface {
	Get(ctx context.Context, id string) (*Package, error)
}
