// Package domain defines the credit ledger: per-organization counters and
// their append-only history.
package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	orgdomain "github.com/smallbiznis/agentdesk/internal/organization/domain"
)

type CreditType string

const (
	CreditConversation CreditType = "conversation"
	CreditMessage      CreditType = "message"
	CreditCall         CreditType = "call"
)

// ParseCreditType accepts the short name or the column name.
func ParseCreditType(value string) (CreditType, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "conversation", "conversation_credits":
		return CreditConversation, true
	case "message", "message_credits":
		return CreditMessage, true
	case "call", "call_credits":
		return CreditCall, true
	}
	return "", false
}

// Column returns the organizations column holding this counter.
func (t CreditType) Column() string {
	switch t {
	case CreditConversation:
		return "conversation_credits"
	case CreditMessage:
		return "message_credits"
	case CreditCall:
		return "call_credits"
	}
	return ""
}

// ValueOf reads the counter from an organization row.
func (t CreditType) ValueOf(org orgdomain.Organization) float64 {
	switch t {
	case CreditConversation:
		return org.ConversationCredits
	case CreditMessage:
		return org.MessageCredits
	case CreditCall:
		return org.CallCredits
	}
	return 0
}

type Operation string

const (
	OpIncrement Operation = "increment"
	OpDecrement Operation = "decrement"
	OpSet       Operation = "set"
)

func ParseOperation(value string) (Operation, bool) {
	switch op := Operation(strings.ToLower(strings.TrimSpace(value))); op {
	case OpIncrement, OpDecrement, OpSet:
		return op, true
	}
	return "", false
}

// CreditHistory is appended in the same transaction as the counter change.
// NewValue always equals PrevValue + ChangeAmount.
type CreditHistory struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID        snowflake.ID `gorm:"not null;index:ix_credit_histories_org_created,priority:1" json:"org_id"`
	ChangeAmount float64      `gorm:"not null" json:"change_amount"`
	ChangeType   Operation    `gorm:"type:text;not null" json:"change_type"`
	ChangeField  string       `gorm:"type:text;not null" json:"change_field"`
	PrevValue    float64      `gorm:"not null" json:"prev_value"`
	NewValue     float64      `gorm:"not null" json:"new_value"`
	Reason       string       `gorm:"type:text" json:"reason,omitempty"`
	CreatedAt    time.Time    `gorm:"not null;index:ix_credit_histories_org_created,priority:2" json:"created_at"`
}

func (CreditHistory) TableName() string { return "credit_histories" }

// Snapshot is the credit view returned by every ledger operation.
type Snapshot struct {
	OrgID               snowflake.ID          `json:"org_id"`
	ConversationCredits float64               `json:"conversation_credits"`
	MessageCredits      float64               `json:"message_credits"`
	CallCredits         float64               `json:"call_credits"`
	CreditsPlan         orgdomain.CreditsPlan `json:"credits_plan"`
	TotalCredits        float64               `json:"total_credits"`
}

func SnapshotOf(org orgdomain.Organization) Snapshot {
	return Snapshot{
		OrgID:               org.ID,
		ConversationCredits: org.ConversationCredits,
		MessageCredits:      org.MessageCredits,
		CallCredits:         org.CallCredits,
		CreditsPlan:         org.CreditsPlan,
		TotalCredits:        TotalCredits(org),
	}
}

// TotalCredits sums the counters that count under the organization's plan.
// An unknown plan is treated as CONVERSATION.
func TotalCredits(org orgdomain.Organization) float64 {
	if org.CreditsPlan == orgdomain.PlanMessage {
		return org.MessageCredits
	}
	return org.ConversationCredits + org.CallCredits
}
