// Package domain contains persistence models for the organization service.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type CreditsPlan string

const (
	PlanConversation CreditsPlan = "CONVERSATION"
	PlanMessage      CreditsPlan = "MESSAGE"
)

func (p CreditsPlan) Valid() bool {
	return p == PlanConversation || p == PlanMessage
}

// Organization represents a tenant. It also carries the credit counters and
// call channel capacity, so every mutation of those serializes on this row.
type Organization struct {
	ID                             snowflake.ID `gorm:"primaryKey" json:"id"`
	Name                           string       `gorm:"type:text;not null" json:"name"`
	Slug                           string       `gorm:"type:text;not null;uniqueIndex:ux_organizations_slug" json:"slug"`
	CreditsPlan                    CreditsPlan  `gorm:"type:text;not null;default:'CONVERSATION'" json:"credits_plan"`
	ConversationCredits            float64      `gorm:"not null;default:0" json:"conversation_credits"`
	MessageCredits                 float64      `gorm:"not null;default:0" json:"message_credits"`
	CallCredits                    float64      `gorm:"not null;default:0" json:"call_credits"`
	ActiveIndianCalls              int          `gorm:"not null;default:0" json:"active_indian_calls"`
	ActiveInternationalCalls       int          `gorm:"not null;default:0" json:"active_international_calls"`
	AvailableIndianChannels        int          `gorm:"not null;default:0" json:"available_indian_channels"`
	AvailableInternationalChannels int          `gorm:"not null;default:0" json:"available_international_channels"`
	IsDeleted                      bool         `gorm:"not null;default:false" json:"is_deleted"`
	IsDisabled                     bool         `gorm:"not null;default:false" json:"is_disabled"`
	CreatedAt                      time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt                      time.Time    `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Organization) TableName() string { return "organizations" }
