package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/agentdesk/pkg/db/pagination"
	"gorm.io/datatypes"
)

type Service interface {
	Create(ctx context.Context, orgRef string, req CreateLeadRequest) (Lead, error)
	Get(ctx context.Context, orgRef, leadID string) (Lead, error)
	Update(ctx context.Context, orgRef, leadID string, req UpdateLeadRequest) (Lead, error)
	Delete(ctx context.Context, orgRef, leadID string, hard bool) error
	// ScheduleFollowUp sets the next follow-up, counts it and releases the
	// lead from in-process so it re-enters the priority queue when due.
	ScheduleFollowUp(ctx context.Context, orgRef, leadID string, at time.Time) (Lead, error)
	SetInProcess(ctx context.Context, orgRef, leadID string, inProcess bool) (Lead, error)
	ListPriority(ctx context.Context, query PriorityQuery) (PriorityResponse, error)
}

type CreateLeadRequest struct {
	Name           string
	Email          string
	Phone          *string
	Status         string
	Source         string
	IsIndian       int
	NextFollowUp   *time.Time
	AdditionalInfo datatypes.JSON
}

type UpdateLeadRequest struct {
	Name              *string
	Email             *string
	Phone             *string
	Status            *string
	Source            *string
	IsIndian          *int
	NextFollowUp      *time.Time
	ClearNextFollowUp bool
	AdditionalInfo    datatypes.JSON
	Logs              datatypes.JSON
}

// PriorityQuery is scoped to one organization when OrgRef is set and spans
// all organizations otherwise. InProcess defaults to 0 when nil.
type PriorityQuery struct {
	OrgRef    string
	Start     *time.Time
	End       *time.Time
	IsIndian  *int
	InProcess *int
	pagination.Pagination
}

type PriorityResponse struct {
	Leads []PriorityLead `json:"leads"`
	pagination.PageInfo
}

var (
	ErrNotFound     = errors.New("lead_not_found")
	ErrInvalidID    = errors.New("invalid_lead_id")
	ErrInvalidName  = errors.New("invalid_name")
	ErrInvalidEmail = errors.New("invalid_email")
	ErrInvalidFlag  = errors.New("invalid_flag")
	ErrInvalidRange = errors.New("invalid_follow_up_range")
	ErrInvalidJSON  = errors.New("invalid_json")
	ErrGlobalScope  = errors.New("global_scope_forbidden")
)
