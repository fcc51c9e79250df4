package domain

import (
	"context"
	"errors"

	orgdomain "github.com/smallbiznis/agentdesk/internal/organization/domain"
	"github.com/smallbiznis/agentdesk/pkg/db/pagination"
	"gorm.io/gorm"
)

type Service interface {
	Get(ctx context.Context, orgRef string) (Snapshot, error)
	Increment(ctx context.Context, orgRef string, creditType CreditType, amount float64, reason string) (Snapshot, error)
	Decrement(ctx context.Context, orgRef string, creditType CreditType, amount float64, reason string) (Snapshot, error)
	Set(ctx context.Context, orgRef string, creditType CreditType, value float64, reason string) (Snapshot, error)
	Apply(ctx context.Context, orgRef string, req ApplyRequest) (Snapshot, error)
	// ApplyInTx mutates a counter of an organization the caller has already
	// locked inside tx. Events and metrics are left to the caller.
	ApplyInTx(ctx context.Context, tx *gorm.DB, org *orgdomain.Organization, req ApplyRequest) (Snapshot, *CreditHistory, error)
	// Notify records metrics and broadcasts a snapshot committed through ApplyInTx.
	Notify(ctx context.Context, snapshot Snapshot, creditType CreditType, op Operation)
	ListHistory(ctx context.Context, orgRef string, req ListHistoryRequest) (ListHistoryResponse, error)
}

type ApplyRequest struct {
	CreditType CreditType
	Operation  Operation
	Amount     *float64
	Value      *float64
	Reason     string
}

type ListHistoryRequest struct {
	pagination.Pagination
}

type ListHistoryResponse struct {
	pagination.PageInfo
	History []CreditHistory `json:"history"`
}

var (
	ErrInvalidAmount     = errors.New("invalid_amount")
	ErrInvalidValue      = errors.New("invalid_value")
	ErrInvalidOperation  = errors.New("invalid_operation")
	ErrInvalidCreditType = errors.New("invalid_credit_type")
	ErrMissingAmount     = errors.New("missing_amount")
	ErrMissingValue      = errors.New("missing_value")
)
