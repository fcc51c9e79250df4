package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/agentdesk/pkg/db/pagination"
)

type Service interface {
	Create(ctx context.Context, req CreateOrganizationRequest) (Organization, error)
	Get(ctx context.Context, ref string) (Organization, error)
	List(ctx context.Context, req ListOrganizationRequest) (ListOrganizationResponse, error)
	Update(ctx context.Context, ref string, req UpdateOrganizationRequest) (Organization, error)
	SetDisabled(ctx context.Context, ref string, disabled bool) (Organization, error)
	Delete(ctx context.Context, ref string) error
}

type CreateOrganizationRequest struct {
	Name                           string
	CreditsPlan                    CreditsPlan
	AvailableIndianChannels        int
	AvailableInternationalChannels int
}

type UpdateOrganizationRequest struct {
	Name                           *string
	CreditsPlan                    *CreditsPlan
	AvailableIndianChannels        *int
	AvailableInternationalChannels *int
}

type ListOrganizationRequest struct {
	pagination.Pagination
}

type ListOrganizationResponse struct {
	pagination.PageInfo
	Organizations []Organization `json:"organizations"`
}

var (
	ErrInvalidName     = errors.New("invalid_name")
	ErrInvalidPlan     = errors.New("invalid_credits_plan")
	ErrInvalidChannels = errors.New("invalid_channels")
	ErrInvalidRef      = errors.New("invalid_organization")
	ErrNotFound        = errors.New("organization_not_found")
)
