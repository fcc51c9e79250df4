// Package domain contains lead persistence models and the follow-up
// priority view.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const DefaultStatus = "new"

type Lead struct {
	ID             snowflake.ID   `gorm:"primaryKey" json:"id"`
	OrgID          snowflake.ID   `gorm:"not null;index:ix_leads_org_follow_up,priority:1" json:"org_id"`
	Name           string         `gorm:"type:text;not null" json:"name"`
	Email          string         `gorm:"type:text" json:"email"`
	Phone          *string        `gorm:"type:text" json:"phone,omitempty"`
	Status         string         `gorm:"type:text;not null;default:'new'" json:"status"`
	Source         string         `gorm:"type:text" json:"source"`
	IsIndian       int            `gorm:"not null;default:0" json:"is_indian"`
	FollowUps      int            `gorm:"not null;default:0" json:"follow_ups"`
	NextFollowUp   *time.Time     `gorm:"index:ix_leads_org_follow_up,priority:2" json:"next_follow_up"`
	InProcess      int            `gorm:"not null;default:0" json:"in_process"`
	AdditionalInfo datatypes.JSON `json:"additional_info,omitempty"`
	Logs           datatypes.JSON `json:"logs,omitempty"`
	IsDeleted      bool           `gorm:"not null;default:false" json:"is_deleted"`
	CreatedAt      time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"not null" json:"updated_at"`
}

func (Lead) TableName() string { return "leads" }

// PriorityLead adds the read-time urgency fields to a lead.
type PriorityLead struct {
	Lead
	UrgencyMinutes int64 `json:"urgency_minutes"`
	IsOverdue      bool  `json:"is_overdue"`
}
