package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	creditdomain "github.com/smallbiznis/agentdesk/internal/credit/domain"
	"github.com/smallbiznis/agentdesk/pkg/db/pagination"
	"gorm.io/gorm"
)

const StatusSucceeded = "succeeded"

// Payment is a settled top-up. Reference is the upstream idempotency key and
// is unique per organization.
type Payment struct {
	ID         snowflake.ID            `gorm:"primaryKey" json:"id"`
	OrgID      snowflake.ID            `gorm:"not null;uniqueIndex:ux_payments_org_reference,priority:1" json:"org_id"`
	Reference  string                  `gorm:"type:text;not null;uniqueIndex:ux_payments_org_reference,priority:2" json:"reference"`
	Amount     int64                   `gorm:"not null" json:"amount"`
	Currency   string                  `gorm:"type:text;not null" json:"currency"`
	CreditType creditdomain.CreditType `gorm:"type:text;not null" json:"credit_type"`
	Credits    float64                 `gorm:"not null" json:"credits"`
	Status     string                  `gorm:"type:text;not null" json:"status"`
	CreatedAt  time.Time               `gorm:"not null" json:"created_at"`
}

func (Payment) TableName() string { return "payments" }

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, payment *Payment) error
	FindByReference(ctx context.Context, db *gorm.DB, orgID snowflake.ID, reference string) (*Payment, error)
	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, page pagination.Pagination) ([]Payment, int64, error)
}

type Service interface {
	// Record stores the payment and grants its credits in one transaction.
	Record(ctx context.Context, orgRef string, req RecordPaymentRequest) (RecordPaymentResponse, error)
	List(ctx context.Context, orgRef string, req ListPaymentRequest) (ListPaymentResponse, error)
}

type RecordPaymentRequest struct {
	Reference  string
	Amount     int64
	Currency   string
	CreditType string
	Credits    float64
}

type RecordPaymentResponse struct {
	Payment Payment               `json:"payment"`
	Credits creditdomain.Snapshot `json:"credits"`
}

type ListPaymentRequest struct {
	pagination.Pagination
}

type ListPaymentResponse struct {
	pagination.PageInfo
	Payments []Payment `json:"payments"`
}

var (
	ErrInvalidReference = errors.New("invalid_reference")
	ErrInvalidAmount    = errors.New("invalid_payment_amount")
	ErrInvalidCurrency  = errors.New("invalid_currency")
	ErrInvalidCredits   = errors.New("invalid_credits")
	ErrDuplicatePayment = errors.New("duplicate_payment")
)
