package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/agentdesk/internal/cost/domain"
	"github.com/smallbiznis/agentdesk/internal/tenancy"
	"github.com/smallbiznis/agentdesk/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, cost *domain.Cost) error {
	return db.WithContext(ctx).Create(cost).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, scope tenancy.Scope) (*domain.Cost, error) {
	var cost domain.Cost
	err := db.WithContext(ctx).
		Model(&domain.Cost{}).
		Scopes(tenancy.NotDeleted(scope)).
		Where("org_id = ? AND id = ?", orgID, id).
		Take(&cost).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &cost, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, costType *domain.CostType, scope tenancy.Scope, page pagination.Pagination) ([]domain.Cost, int64, error) {
	stmt := db.WithContext(ctx).
		Model(&domain.Cost{}).
		Scopes(tenancy.NotDeleted(scope)).
		Where("org_id = ?", orgID)
	if costType != nil {
		stmt = stmt.Where("type = ?", *costType)
	}

	var total int64
	if err := stmt.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var costs []domain.Cost
	err := stmt.
		Scopes(page.Scope()).
		Order("created_at desc, id desc").
		Find(&costs).Error
	if err != nil {
		return nil, 0, err
	}
	return costs, total, nil
}

func (r *repo) SoftDelete(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) error {
	return db.WithContext(ctx).
		Model(&domain.Cost{}).
		Where("org_id = ? AND id = ?", orgID, id).
		Update("is_deleted", true).Error
}
