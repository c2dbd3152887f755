package store

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/bobarin/gigi/internal/models"
	"github.com/google/uuid"
)

var (
	ErrSessionNotFound       = errors.New("session not found")
	ErrSceneNotFound         = errors.New("scene not found")
	ErrPredecessorIncomplete = errors.New("previous scene is not completed")
	ErrSceneBusy             = errors.New("another scene is generating")
	ErrStaleAttempt          = errors.New("stale scene attempt")
)

type entry struct {
	session models.Session
	// attemptSeq only grows, so re-created scene records never reuse an attempt number.
	attemptSeq int
}

// Store keeps every wizard session in memory. Reads return copies; writes go
// through the methods below so each change is published to subscribers.
type Store struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*entry
	hub      *hub
	now      func() time.Time
}

func New() *Store {
	return &Store{
		sessions: make(map[uuid.UUID]*entry),
		hub:      newHub(),
		now:      time.Now,
	}
}

// Create starts a new session at step 1.
func (s *Store) Create() models.Session {
	now := s.now().UTC()
	sess := models.Session{
		ID:              uuid.New(),
		RemoteSessionID: uuid.NewString(),
		Step:            models.StepBrandScenario,
		Timeline:        []models.TimelineItem{},
		TimelineStatus:  models.TimelineStatusIdle,
		Voice:           models.DefaultVoice(),
		Videos:          []models.VideoItem{},
		Merge:           models.MergeResult{Status: models.MergeStatusIdle},
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	s.mu.Lock()
	s.sessions[sess.ID] = &entry{session: sess}
	s.mu.Unlock()

	return clone(&sess)
}

// Get returns a snapshot of the session.
func (s *Store) Get(id uuid.UUID) (models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.sessions[id]
	if !ok {
		return models.Session{}, ErrSessionNotFound
	}
	return clone(&e.session), nil
}

// Subscribe returns a feed of changes to one session. cancel must be called to release it.
func (s *Store) Subscribe(id uuid.UUID) (<-chan Event, func(), error) {
	s.mu.RLock()
	_, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, nil, ErrSessionNotFound
	}

	ch, cancel := s.hub.subscribe(id)
	return ch, cancel, nil
}

// Update applies fn to the live session under the write lock. If fn fails nothing is kept.
func (s *Store) Update(id uuid.UUID, fn func(*models.Session) error) (models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok {
		return models.Session{}, ErrSessionNotFound
	}

	working := clone(&e.session)
	if err := fn(&working); err != nil {
		return models.Session{}, err
	}
	working.UpdatedAt = s.now().UTC()
	e.session = working

	s.publish(Event{Type: EventSessionUpdated, SessionID: id, Step: working.Step})
	return clone(&working), nil
}

// ---------------------------------------------------------------------------
// Timeline
// ---------------------------------------------------------------------------

// StartTimeline clears any previous storyboard and marks the stream as running.
func (s *Store) StartTimeline(id uuid.UUID) error {
	return s.mutate(id, func(e *entry) error {
		e.session.Timeline = []models.TimelineItem{}
		e.session.TimelineStatus = models.TimelineStatusStreaming
		e.session.TimelineMetadata = nil
		e.session.TimelineError = nil
		s.publish(Event{Type: EventTimelineStatus, SessionID: id, Timeline: models.TimelineStatusStreaming})
		return nil
	})
}

// AppendTimelineItem adds a streamed scene. Its index is forced to its position.
func (s *Store) AppendTimelineItem(id uuid.UUID, item models.TimelineItem) (models.TimelineItem, error) {
	err := s.mutate(id, func(e *entry) error {
		item.Index = len(e.session.Timeline)
		e.session.Timeline = append(e.session.Timeline, item)
		published := item
		s.publish(Event{Type: EventTimelineScene, SessionID: id, Item: &published})
		return nil
	})
	return item, err
}

func (s *Store) SetTimelineMetadata(id uuid.UUID, md models.TimelineMetadata) error {
	return s.mutate(id, func(e *entry) error {
		e.session.TimelineMetadata = &md
		return nil
	})
}

// FinishTimeline records the end of the stream. A nil err means done.
func (s *Store) FinishTimeline(id uuid.UUID, streamErr error) error {
	return s.mutate(id, func(e *entry) error {
		status := models.TimelineStatusDone
		if streamErr != nil {
			status = models.TimelineStatusError
			msg := streamErr.Error()
			e.session.TimelineError = &msg
		}
		e.session.TimelineStatus = status
		s.publish(Event{Type: EventTimelineStatus, SessionID: id, Timeline: status})
		return nil
	})
}

// SetSceneImage stores the composed still of a storyboard scene.
func (s *Store) SetSceneImage(id uuid.UUID, index int, imageURL string) (models.TimelineItem, error) {
	var item models.TimelineItem
	err := s.mutate(id, func(e *entry) error {
		if index < 0 || index >= len(e.session.Timeline) {
			return ErrSceneNotFound
		}
		e.session.Timeline[index].GigiImage = &imageURL
		item = e.session.Timeline[index]
		s.publish(Event{Type: EventTimelineScene, SessionID: id, Item: &item})
		return nil
	})
	return item, err
}

// ---------------------------------------------------------------------------
// Scene generation
// ---------------------------------------------------------------------------

// CanStart reports whether scene index may begin generating now.
func (s *Store) CanStart(id uuid.UUID, index int) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	return checkStartable(&e.session, index)
}

// BeginScene moves a scene to generating and assigns it a new attempt number.
// Every later ApplyScene call for this run must carry that attempt.
func (s *Store) BeginScene(id uuid.UUID, index int) (models.VideoItem, error) {
	var v models.VideoItem
	err := s.mutate(id, func(e *entry) error {
		if err := checkStartable(&e.session, index); err != nil {
			return err
		}
		e.attemptSeq++
		v = Begin(e.session.Videos[index])
		v.Attempt = e.attemptSeq
		e.session.Videos[index] = v
		s.publishScene(id, v)
		return nil
	})
	return v, err
}

// ApplyScene runs t on the scene unless the scene has since been restarted or recreated.
func (s *Store) ApplyScene(id uuid.UUID, index, attempt int, t Transition) (models.VideoItem, error) {
	var v models.VideoItem
	err := s.mutate(id, func(e *entry) error {
		if index < 0 || index >= len(e.session.Videos) {
			return ErrSceneNotFound
		}
		current := e.session.Videos[index]
		if current.Attempt != attempt {
			return fmt.Errorf("%w: scene %d is on attempt %d, got %d", ErrStaleAttempt, index, current.Attempt, attempt)
		}
		v = t(current)
		e.session.Videos[index] = v
		s.publishScene(id, v)
		return nil
	})
	return v, err
}

// SetMerge records the latest merge state.
func (s *Store) SetMerge(id uuid.UUID, res models.MergeResult) error {
	return s.mutate(id, func(e *entry) error {
		res.Files = slices.Clone(res.Files)
		e.session.Merge = res
		published := res
		s.publish(Event{Type: EventMergeUpdated, SessionID: id, Merge: &published})
		return nil
	})
}

func checkStartable(sess *models.Session, index int) error {
	if index < 0 || index >= len(sess.Videos) {
		return ErrSceneNotFound
	}
	for _, v := range sess.Videos {
		if v.Status == models.SceneStatusGenerating {
			return ErrSceneBusy
		}
	}
	if index > 0 && sess.Videos[index-1].Status != models.SceneStatusCompleted {
		return ErrPredecessorIncomplete
	}
	return nil
}

func (s *Store) mutate(id uuid.UUID, fn func(*entry) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	if err := fn(e); err != nil {
		return err
	}
	e.session.UpdatedAt = s.now().UTC()
	return nil
}

func (s *Store) publishScene(id uuid.UUID, v models.VideoItem) {
	s.publish(Event{Type: EventSceneUpdated, SessionID: id, Video: &v})
}

func (s *Store) publish(ev Event) {
	ev.At = s.now().UTC()
	s.hub.publish(ev)
}

// clone copies the slices and pointed-to structs a caller could otherwise mutate.
// Strings behind pointer fields are shared: they are always replaced, never written through.
func clone(sess *models.Session) models.Session {
	c := *sess
	c.Timeline = slices.Clone(sess.Timeline)
	c.Videos = slices.Clone(sess.Videos)
	c.Merge.Files = slices.Clone(sess.Merge.Files)
	if sess.Brand != nil {
		b := *sess.Brand
		c.Brand = &b
	}
	if sess.TimelineMetadata != nil {
		md := *sess.TimelineMetadata
		c.TimelineMetadata = &md
	}
	return c
}
