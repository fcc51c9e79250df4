// Package tenancy builds the implicit row filters applied to every tenant query.
package tenancy

import (
	"context"

	"gorm.io/gorm"
)

// Scope is the per-request filter policy. The zero value hides deleted and
// disabled rows.
type Scope struct {
	BypassFilters bool
}

type scopeKey struct{}

func WithScope(ctx context.Context, scope Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, scope)
}

// FromContext returns the request scope, defaulting to the filtered scope.
func FromContext(ctx context.Context) Scope {
	if ctx == nil {
		return Scope{}
	}
	scope, _ := ctx.Value(scopeKey{}).(Scope)
	return scope
}

// ActiveOrganizations hides soft-deleted and disabled organizations.
func ActiveOrganizations(scope Scope) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if scope.BypassFilters {
			return db
		}
		return db.Where("is_deleted = ? AND is_disabled = ?", false, false)
	}
}

// NotDeleted hides soft-deleted rows of tenant-owned tables.
func NotDeleted(scope Scope) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if scope.BypassFilters {
			return db
		}
		return db.Where("is_deleted = ?", false)
	}
}
