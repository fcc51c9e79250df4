package domain

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/agentdesk/internal/tenancy"
	"github.com/smallbiznis/agentdesk/pkg/db/pagination"
	"gorm.io/gorm"
)

type CostType string

const (
	CostConversation CostType = "conversation"
	CostMessage      CostType = "message"
	CostCall         CostType = "call"
	CostPhoneNumber  CostType = "phone_number"
	CostOther        CostType = "other"
)

func ParseCostType(value string) (CostType, bool) {
	switch t := CostType(strings.ToLower(strings.TrimSpace(value))); t {
	case CostConversation, CostMessage, CostCall, CostPhoneNumber, CostOther:
		return t, true
	}
	return "", false
}

// Cost records a billable expense incurred on behalf of an organization.
type Cost struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID          snowflake.ID `gorm:"not null;index:ix_costs_org_created,priority:1" json:"org_id"`
	ConversationID *string      `gorm:"type:text" json:"conversation_id,omitempty"`
	CallID         *string      `gorm:"type:text" json:"call_id,omitempty"`
	MessageID      *string      `gorm:"type:text" json:"message_id,omitempty"`
	Type           CostType     `gorm:"type:text;not null" json:"type"`
	Amount         float64      `gorm:"not null" json:"amount"`
	Description    string       `gorm:"type:text" json:"description,omitempty"`
	IsDeleted      bool         `gorm:"not null;default:false" json:"is_deleted"`
	CreatedAt      time.Time    `gorm:"not null;index:ix_costs_org_created,priority:2" json:"created_at"`
}

func (Cost) TableName() string { return "costs" }

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, cost *Cost) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, scope tenancy.Scope) (*Cost, error)
	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, costType *CostType, scope tenancy.Scope, page pagination.Pagination) ([]Cost, int64, error)
	SoftDelete(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) error
}

type Service interface {
	Create(ctx context.Context, orgRef string, req CreateCostRequest) (Cost, error)
	List(ctx context.Context, orgRef string, req ListCostRequest) (ListCostResponse, error)
	Delete(ctx context.Context, orgRef, costID string) error
}

type CreateCostRequest struct {
	Type           string
	Amount         float64
	ConversationID *string
	CallID         *string
	MessageID      *string
	Description    string
}

type ListCostRequest struct {
	Type string
	pagination.Pagination
}

type ListCostResponse struct {
	pagination.PageInfo
	Costs []Cost `json:"costs"`
}

var (
	ErrNotFound      = errors.New("cost_not_found")
	ErrInvalidID     = errors.New("invalid_cost_id")
	ErrInvalidType   = errors.New("invalid_cost_type")
	ErrInvalidAmount = errors.New("invalid_amount")
)
