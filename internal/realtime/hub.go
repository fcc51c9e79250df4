package realtime

import (
	"errors"
	"strings"
	"sync"
)

const (
	DefaultBufferSize       = 20
	DefaultSubscriberBuffer = 16
)

var (
	ErrHubUnavailable = errors.New("hub_unavailable")
	ErrInvalidOrgID   = errors.New("invalid_org_id")
)

// Hub fans events out to per-organization subscribers and keeps a short
// replay buffer for late joiners. Slow subscribers drop events.
type Hub struct {
	mu               sync.RWMutex
	streams          map[string]*stream
	bufferSize       int
	subscriberBuffer int
}

type stream struct {
	mu     sync.Mutex
	buffer []Event
	subs   map[uint64]chan Event
	nextID uint64
	// closed is set once the stream is removed from the hub. A closed stream
	// never receives publishes, so subscribers must not join it.
	closed bool
}

type Subscription struct {
	hub   *Hub
	orgID string
	id    uint64
	ch    chan Event
	once  sync.Once
}

func NewHub() *Hub {
	return &Hub{
		streams:          make(map[string]*stream),
		bufferSize:       DefaultBufferSize,
		subscriberBuffer: DefaultSubscriberBuffer,
	}
}

func (h *Hub) Publish(orgID string, event Event) {
	if h == nil {
		return
	}
	key := strings.TrimSpace(orgID)
	if key == "" {
		return
	}
	h.mu.RLock()
	stream := h.streams[key]
	h.mu.RUnlock()
	if stream == nil {
		return
	}

	stream.mu.Lock()
	stream.buffer = append(stream.buffer, event)
	if len(stream.buffer) > h.bufferSize {
		stream.buffer = stream.buffer[len(stream.buffer)-h.bufferSize:]
	}
	subs := make([]chan Event, 0, len(stream.subs))
	for _, ch := range stream.subs {
		subs = append(subs, ch)
	}
	stream.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribe registers a subscriber and returns the replay buffer.
func (h *Hub) Subscribe(orgID string) (*Subscription, []Event, error) {
	if h == nil {
		return nil, nil, ErrHubUnavailable
	}
	key := strings.TrimSpace(orgID)
	if key == "" {
		return nil, nil, ErrInvalidOrgID
	}

	var (
		id      uint64
		ch      chan Event
		backlog []Event
	)
	for {
		stream := h.ensureStream(key)
		stream.mu.Lock()
		if stream.closed {
			// Lost a race with the last unsubscribe; look the stream up again.
			stream.mu.Unlock()
			continue
		}
		id = stream.nextID
		stream.nextID++
		ch = make(chan Event, h.subscriberBuffer)
		stream.subs[id] = ch
		backlog = append([]Event(nil), stream.buffer...)
		stream.mu.Unlock()
		break
	}

	return &Subscription{
		hub:   h,
		orgID: key,
		id:    id,
		ch:    ch,
	}, backlog, nil
}

// Subscribers reports the live subscriber count for an organization.
func (h *Hub) Subscribers(orgID string) int {
	if h == nil {
		return 0
	}
	h.mu.RLock()
	stream := h.streams[strings.TrimSpace(orgID)]
	h.mu.RUnlock()
	if stream == nil {
		return 0
	}
	stream.mu.Lock()
	defer stream.mu.Unlock()
	return len(stream.subs)
}

func (h *Hub) ensureStream(orgID string) *stream {
	h.mu.RLock()
	current := h.streams[orgID]
	h.mu.RUnlock()
	if current != nil {
		return current
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	current = h.streams[orgID]
	if current == nil {
		current = &stream{subs: make(map[uint64]chan Event)}
		h.streams[orgID] = current
	}
	return current
}

func (h *Hub) unsubscribe(orgID string, id uint64) {
	h.mu.RLock()
	stream := h.streams[orgID]
	h.mu.RUnlock()
	if stream == nil {
		return
	}

	stream.mu.Lock()
	delete(stream.subs, id)
	remaining := len(stream.subs)
	stream.mu.Unlock()
	if remaining != 0 {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.streams[orgID] != stream {
		return
	}
	stream.mu.Lock()
	defer stream.mu.Unlock()
	if len(stream.subs) == 0 {
		stream.closed = true
		delete(h.streams, orgID)
	}
}

func (s *Subscription) Events() <-chan Event {
	if s == nil {
		return nil
	}
	return s.ch
}

func (s *Subscription) Close() {
	if s == nil || s.hub == nil {
		return
	}
	s.once.Do(func() {
		s.hub.unsubscribe(s.orgID, s.id)
	})
}
