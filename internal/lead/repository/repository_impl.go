package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/agentdesk/internal/lead/domain"
	"github.com/smallbiznis/agentdesk/internal/tenancy"
	"github.com/smallbiznis/agentdesk/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, lead *domain.Lead) error {
	return db.WithContext(ctx).Create(lead).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, scope tenancy.Scope) (*domain.Lead, error) {
	var lead domain.Lead
	err := db.WithContext(ctx).
		Model(&domain.Lead{}).
		Scopes(tenancy.NotDeleted(scope)).
		Where("org_id = ? AND id = ?", orgID, id).
		Take(&lead).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &lead, nil
}

func (r *repo) UpdateFields(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, fields map[string]any) error {
	return db.WithContext(ctx).
		Model(&domain.Lead{}).
		Where("org_id = ? AND id = ?", orgID, id).
		Updates(fields).Error
}

func (r *repo) HardDelete(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) error {
	return db.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, id).
		Delete(&domain.Lead{}).Error
}

func (r *repo) ListPriority(ctx context.Context, db *gorm.DB, filter domain.PriorityFilter, scope tenancy.Scope, page pagination.Pagination) ([]domain.Lead, int64, error) {
	stmt := db.WithContext(ctx).
		Model(&domain.Lead{}).
		Scopes(tenancy.NotDeleted(scope)).
		Where("next_follow_up IS NOT NULL").
		Where("next_follow_up <= ?", filter.End)
	if filter.Start != nil {
		stmt = stmt.Where("next_follow_up >= ?", *filter.Start)
	}
	if filter.OrgID != nil {
		stmt = stmt.Where("org_id = ?", *filter.OrgID)
	}
	if filter.IsIndian != nil {
		stmt = stmt.Where("is_indian = ?", *filter.IsIndian)
	}
	stmt = stmt.Where("in_process = ?", filter.InProcess)

	var total int64
	if err := stmt.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var leads []domain.Lead
	err := stmt.
		Order("next_follow_up asc, created_at desc, id desc").
		Scopes(page.Scope()).
		Find(&leads).Error
	if err != nil {
		return nil, 0, err
	}
	return leads, total, nil
}
