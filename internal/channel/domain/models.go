// Package domain describes per-region call channel capacity. Counters live
// on the organization row.
package domain

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	orgdomain "github.com/smallbiznis/agentdesk/internal/organization/domain"
	"gorm.io/gorm"
)

type Region string

const (
	RegionIndian        Region = "indian"
	RegionInternational Region = "international"
)

func ParseRegion(value string) (Region, bool) {
	switch r := Region(strings.ToLower(strings.TrimSpace(value))); r {
	case RegionIndian, RegionInternational:
		return r, true
	}
	return "", false
}

func (r Region) ActiveColumn() string {
	return "active_" + string(r) + "_calls"
}

func (r Region) AvailableColumn() string {
	return "available_" + string(r) + "_channels"
}

// Availability is the free capacity per region, never negative.
type Availability struct {
	IndianChannels        int `json:"indian_channels"`
	InternationalChannels int `json:"international_channels"`
	TotalChannels         int `json:"total_channels"`
}

func AvailabilityOf(org orgdomain.Organization) Availability {
	indian := max(0, org.AvailableIndianChannels-org.ActiveIndianCalls)
	international := max(0, org.AvailableInternationalChannels-org.ActiveInternationalCalls)
	return Availability{
		IndianChannels:        indian,
		InternationalChannels: international,
		TotalChannels:         indian + international,
	}
}

// CallState is returned after a call starts or ends.
type CallState struct {
	OrgID                    snowflake.ID `json:"org_id"`
	ActiveIndianCalls        int          `json:"active_indian_calls"`
	ActiveInternationalCalls int          `json:"active_international_calls"`
	AvailableChannels        Availability `json:"available_channels"`
}

func CallStateOf(org orgdomain.Organization) CallState {
	return CallState{
		OrgID:                    org.ID,
		ActiveIndianCalls:        org.ActiveIndianCalls,
		ActiveInternationalCalls: org.ActiveInternationalCalls,
		AvailableChannels:        AvailabilityOf(org),
	}
}

type Repository interface {
	// AdjustActiveCalls moves the active counter of region by delta (+1 or -1)
	// only while it stays within [0, available]. It reports whether a row changed.
	AdjustActiveCalls(ctx context.Context, db *gorm.DB, orgID snowflake.ID, region Region, delta int, now time.Time) (bool, error)
}

type Service interface {
	GetAvailableChannels(ctx context.Context, orgRef string) (Availability, error)
	IncrementActiveCalls(ctx context.Context, orgRef string, region Region) (CallState, error)
	DecrementActiveCalls(ctx context.Context, orgRef string, region Region) (CallState, error)
}

var (
	ErrInvalidRegion      = errors.New("invalid_region")
	ErrNoChannelAvailable = errors.New("no_channel_available")
	ErrNoActiveCall       = errors.New("no_active_call")
)
