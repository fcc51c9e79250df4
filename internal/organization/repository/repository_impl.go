package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/agentdesk/internal/organization/domain"
	"github.com/smallbiznis/agentdesk/internal/tenancy"
	"github.com/smallbiznis/agentdesk/pkg/db/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, org *domain.Organization) error {
	return db.WithContext(ctx).Create(org).Error
}

func (r *repo) FindByRef(ctx context.Context, db *gorm.DB, ref string, scope tenancy.Scope) (*domain.Organization, error) {
	return r.findByRef(db.WithContext(ctx), ref, scope)
}

func (r *repo) LockByRef(ctx context.Context, db *gorm.DB, ref string, scope tenancy.Scope) (*domain.Organization, error) {
	return r.findByRef(ForUpdate(db.WithContext(ctx)), ref, scope)
}

func (r *repo) findByRef(db *gorm.DB, ref string, scope tenancy.Scope) (*domain.Organization, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, nil
	}

	stmt := db.Model(&domain.Organization{}).Scopes(tenancy.ActiveOrganizations(scope))
	if id, err := snowflake.ParseString(ref); err == nil && id > 0 {
		stmt = stmt.Where("(id = ? OR slug = ?)", id, ref)
	} else {
		stmt = stmt.Where("slug = ?", ref)
	}

	var org domain.Organization
	if err := stmt.Take(&org).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &org, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Organization, error) {
	var org domain.Organization
	err := db.WithContext(ctx).Model(&domain.Organization{}).Where("id = ?", id).Take(&org).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &org, nil
}

func (r *repo) SlugExists(ctx context.Context, db *gorm.DB, slug string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.Organization{}).
		Where("slug = ?", slug).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, scope tenancy.Scope, page pagination.Pagination) ([]domain.Organization, int64, error) {
	stmt := db.WithContext(ctx).
		Model(&domain.Organization{}).
		Scopes(tenancy.ActiveOrganizations(scope))

	var total int64
	if err := stmt.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var orgs []domain.Organization
	err := stmt.
		Scopes(page.Scope()).
		Order("created_at desc, id desc").
		Find(&orgs).Error
	if err != nil {
		return nil, 0, err
	}
	return orgs, total, nil
}

func (r *repo) UpdateFields(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) error {
	return db.WithContext(ctx).
		Model(&domain.Organization{}).
		Where("id = ?", id).
		Updates(fields).Error
}

// ForUpdate adds a row lock to the next SELECT. SQLite has no row locks and
// serializes writers instead, so the clause is skipped there.
func ForUpdate(db *gorm.DB) *gorm.DB {
	if db.Dialector != nil && db.Dialector.Name() == "sqlite" {
		return db
	}
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}
