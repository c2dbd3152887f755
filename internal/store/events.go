package store

import (
	"sync"
	"time"

	"github.com/bobarin/gigi/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type EventType string

const (
	EventSessionUpdated EventType = "session_updated"
	EventTimelineScene  EventType = "timeline_scene"
	EventTimelineStatus EventType = "timeline_status"
	EventSceneUpdated   EventType = "scene_updated"
	EventMergeUpdated   EventType = "merge_updated"
)

// Event is one change notification. Only the field matching Type is set.
type Event struct {
	Type      EventType             `json:"type"`
	SessionID uuid.UUID             `json:"session_id"`
	Step      models.Step           `json:"step,omitempty"`
	Item      *models.TimelineItem  `json:"item,omitempty"`
	Timeline  models.TimelineStatus `json:"timeline_status,omitempty"`
	Video     *models.VideoItem     `json:"video,omitempty"`
	Merge     *models.MergeResult   `json:"merge,omitempty"`
	At        time.Time             `json:"at"`
}

const subscriberBuffer = 64

// hub fans events out to per-session subscribers.
// A subscriber that falls behind loses events rather than blocking the pipeline;
// the snapshot endpoint is the source of truth.
type hub struct {
	mu     sync.Mutex
	nextID int
	subs   map[uuid.UUID]map[int]chan Event
}

func newHub() *hub {
	return &hub{subs: make(map[uuid.UUID]map[int]chan Event)}
}

func (h *hub) subscribe(sessionID uuid.UUID) (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++

	ch := make(chan Event, subscriberBuffer)
	if h.subs[sessionID] == nil {
		h.subs[sessionID] = make(map[int]chan Event)
	}
	h.subs[sessionID][id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[sessionID], id)
			if len(h.subs[sessionID]) == 0 {
				delete(h.subs, sessionID)
			}
			close(ch)
		})
	}
	return ch, cancel
}

func (h *hub) publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, ch := range h.subs[ev.SessionID] {
		select {
		case ch <- ev:
		default:
			log.Warn().Str("component", "store").Str("session", ev.SessionID.String()).Str("event", string(ev.Type)).Msg("subscriber queue full, dropping event")
		}
	}
}
