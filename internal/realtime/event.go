package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
)

const (
	EventCreditsUpdated = "credits.updated"
	EventCallsUpdated   = "calls.updated"
	EventLeadUpdated    = "lead.updated"
)

// Event is broadcast to dashboards of one organization.
type Event struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	OrgID      string          `json:"org_id"`
	Data       json.RawMessage `json:"data"`
	OccurredAt time.Time       `json:"occurred_at"`
}

func NewEvent(eventType string, orgID snowflake.ID, data any, at time.Time) (Event, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return Event{}, err
	}
	return Event{
		ID:         "evt_" + ulid.MustNew(ulid.Timestamp(at), ulid.DefaultEntropy()).String(),
		Type:       eventType,
		OrgID:      orgID.String(),
		Data:       payload,
		OccurredAt: at.UTC(),
	}, nil
}

// Publisher delivers events to every connected subscriber of the event's organization.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// LocalPublisher delivers events only to subscribers of this process.
type LocalPublisher struct {
	hub *Hub
}

func NewLocalPublisher(hub *Hub) *LocalPublisher {
	return &LocalPublisher{hub: hub}
}

func (p *LocalPublisher) Publish(_ context.Context, event Event) error {
	p.hub.Publish(event.OrgID, event)
	return nil
}
