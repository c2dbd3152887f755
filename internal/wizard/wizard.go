package wizard

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bobarin/gigi/internal/catalog"
	"github.com/bobarin/gigi/internal/logging"
	"github.com/bobarin/gigi/internal/models"
	"github.com/bobarin/gigi/internal/pipeline"
	"github.com/bobarin/gigi/internal/queue"
	"github.com/bobarin/gigi/internal/services"
	"github.com/bobarin/gigi/internal/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrWrongStep        = errors.New("operation not allowed at the current step")
	ErrNoBrand          = errors.New("no brand selected")
	ErrTimelineBusy     = errors.New("timeline is still streaming")
	ErrEmptyStoryboard  = errors.New("storyboard has no scenes")
	ErrNoPreviousScene  = errors.New("scene has no previous scene")
	ErrNothingCompleted = errors.New("no scene has completed yet")
	ErrMergeRunning     = errors.New("merge is already running")
)

// Dispatcher queues long-running operations. *worker.Worker implements it.
type Dispatcher interface {
	Submit(ctx context.Context, job *queue.Job) (models.JobRecord, error)
}

// Controller walks a session through the four wizard steps. Synchronous edits
// go straight to the store; generation work is handed to the dispatcher.
type Controller struct {
	store           *store.Store
	catalog         *catalog.Catalog
	scenario        services.ScenarioGenerator
	jobs            Dispatcher
	defaultDuration int
	log             zerolog.Logger
}

func New(st *store.Store, cat *catalog.Catalog, scenario services.ScenarioGenerator, jobs Dispatcher, defaultDurationSec int) *Controller {
	return &Controller{
		store:           st,
		catalog:         cat,
		scenario:        scenario,
		jobs:            jobs,
		defaultDuration: defaultDurationSec,
		log:             logging.Component("wizard"),
	}
}

func (c *Controller) Brands() []catalog.Brand {
	return c.catalog.Brands()
}

func (c *Controller) CreateSession() models.Session {
	sess := c.store.Create()
	c.log.Info().Str("session", sess.ID.String()).Msg("session created")
	return sess
}

func (c *Controller) Session(id uuid.UUID) (models.Session, error) {
	return c.store.Get(id)
}

// ---------------------------------------------------------------------------
// Navigation
// ---------------------------------------------------------------------------

// Advance moves to the next step once the current step's output exists.
func (c *Controller) Advance(id uuid.UUID) (models.Session, error) {
	sess, err := c.store.Get(id)
	if err != nil {
		return models.Session{}, err
	}

	switch sess.Step {
	case models.StepBrandScenario:
		return c.ConfirmScenario(id, nil)
	case models.StepStoryboard:
		return c.FinalizeStoryboard(id)
	case models.StepPreview:
		return c.store.Update(id, func(s *models.Session) error {
			if s.Step != models.StepPreview {
				return ErrWrongStep
			}
			if len(pipeline.CompletedVideos(*s)) == 0 {
				return ErrNothingCompleted
			}
			s.Step = models.StepFinal
			return nil
		})
	default:
		return models.Session{}, ErrWrongStep
	}
}

// Back returns to the previous step. Nothing collected so far is discarded.
func (c *Controller) Back(id uuid.UUID) (models.Session, error) {
	return c.store.Update(id, func(s *models.Session) error {
		if s.Step <= models.StepBrandScenario {
			return ErrWrongStep
		}
		s.Step--
		return nil
	})
}

// ---------------------------------------------------------------------------
// Step 1: brand and scenario
// ---------------------------------------------------------------------------

// SelectBrand records the brand input. Catalog brands contribute their concept
// unless the request carries one; any other name is taken as a custom brand.
func (c *Controller) SelectBrand(id uuid.UUID, req models.SelectBrandRequest) (models.Session, error) {
	name := strings.TrimSpace(req.BrandName)
	if name == "" {
		return models.Session{}, ErrNoBrand
	}

	brand := models.BrandScenarioData{BrandName: name}
	if b, ok := c.catalog.Lookup(name); ok {
		brand.BrandName = b.Name
		if b.Concept != "" {
			brand.BrandConcept = stringPtr(b.Concept)
		}
	}
	if s := trimmed(req.BrandConcept); s != nil {
		brand.BrandConcept = s
	}
	brand.UserPrompt = trimmed(req.UserPrompt)
	brand.ProductImage = trimmed(req.ProductImage)

	return c.store.Update(id, func(s *models.Session) error {
		if s.Step != models.StepBrandScenario {
			return ErrWrongStep
		}
		s.Brand = &brand
		return nil
	})
}

// GenerateScenario asks the configured backend for an ad script and stores it.
func (c *Controller) GenerateScenario(ctx context.Context, id uuid.UUID) (models.Session, error) {
	sess, err := c.store.Get(id)
	if err != nil {
		return models.Session{}, err
	}
	if sess.Step != models.StepBrandScenario {
		return models.Session{}, ErrWrongStep
	}
	if sess.Brand == nil {
		return models.Session{}, ErrNoBrand
	}

	req := services.ScenarioRequest{Brand: sess.Brand.BrandName}
	if sess.Brand.BrandConcept != nil {
		req.BrandConcept = *sess.Brand.BrandConcept
	}
	if sess.Brand.UserPrompt != nil {
		req.UserQuery = *sess.Brand.UserPrompt
	}
	if sess.Brand.ProductImage != nil {
		req.ProductImage = *sess.Brand.ProductImage
	}

	scenario, err := c.scenario.GenerateScenario(ctx, req)
	if err != nil {
		return models.Session{}, fmt.Errorf("failed to generate scenario: %w", err)
	}

	c.log.Info().Str("session", id.String()).Int("length", len(scenario)).Msg("scenario generated")

	return c.store.Update(id, func(s *models.Session) error {
		if s.Step != models.StepBrandScenario || s.Brand == nil {
			return ErrWrongStep
		}
		b := *s.Brand
		b.Scenario = stringPtr(scenario)
		s.Brand = &b
		return nil
	})
}

// ConfirmScenario optionally replaces the scenario with the user's edit and moves to step 2.
func (c *Controller) ConfirmScenario(id uuid.UUID, edited *string) (models.Session, error) {
	return c.store.Update(id, func(s *models.Session) error {
		if s.Step != models.StepBrandScenario {
			return ErrWrongStep
		}
		if s.Brand == nil {
			return ErrNoBrand
		}
		b := *s.Brand
		if e := trimmed(edited); e != nil {
			b.Scenario = e
		}
		if b.Scenario == nil || strings.TrimSpace(*b.Scenario) == "" {
			return pipeline.ErrNoScenario
		}
		s.Brand = &b
		s.Step = models.StepStoryboard
		return nil
	})
}

// ---------------------------------------------------------------------------
// Step 2: storyboard
// ---------------------------------------------------------------------------

// RequestTimeline queues storyboard generation. durationSec falls back to the configured length.
func (c *Controller) RequestTimeline(ctx context.Context, id uuid.UUID, durationSec *int) (models.JobRecord, error) {
	sess, err := c.store.Get(id)
	if err != nil {
		return models.JobRecord{}, err
	}
	if sess.Step != models.StepStoryboard {
		return models.JobRecord{}, ErrWrongStep
	}
	if sess.TimelineStatus == models.TimelineStatusStreaming {
		return models.JobRecord{}, ErrTimelineBusy
	}

	duration := c.defaultDuration
	if durationSec != nil && *durationSec > 0 {
		duration = *durationSec
	}
	return c.jobs.Submit(ctx, queue.NewGenerateTimelineJob(id, duration))
}

// UpdateScene edits the text, prompt, voice and style fields of one storyboard scene.
func (c *Controller) UpdateScene(id uuid.UUID, index int, req models.UpdateSceneRequest) (models.TimelineItem, error) {
	return c.editScene(id, index, func(_ *models.Session, item *models.TimelineItem) error {
		if req.Scene != nil {
			item.Scene = *req.Scene
		}
		if req.Action != nil {
			item.Action = *req.Action
		}
		if req.Dialogue != nil {
			item.Dialogue = *req.Dialogue
		}
		if req.VoiceType != nil {
			item.VoiceType = *req.VoiceType
		}
		if req.T2IPrompt != nil {
			p := *req.T2IPrompt
			item.T2IPrompt = &p
		}
		if req.ImageEditPrompt != nil {
			p := *req.ImageEditPrompt
			item.ImageEditPrompt = &p
		}
		applyStyle(item, req)
		return nil
	})
}

// CopyPreviousStyle copies the hair, outfit and makeup references of scene index-1.
func (c *Controller) CopyPreviousStyle(id uuid.UUID, index int) (models.TimelineItem, error) {
	return c.editScene(id, index, func(s *models.Session, item *models.TimelineItem) error {
		if index == 0 {
			return ErrNoPreviousScene
		}
		prev := s.Timeline[index-1]
		item.HairReference = prev.HairReference
		item.OutfitReference = prev.OutfitReference
		item.HairText = prev.HairText
		item.OutfitText = prev.OutfitText
		item.MakeupReference = prev.MakeupReference
		item.MakeupText = prev.MakeupText
		return nil
	})
}

// RequestImage queues composition of the scene's still image.
func (c *Controller) RequestImage(ctx context.Context, id uuid.UUID, index int) (models.JobRecord, error) {
	sess, err := c.store.Get(id)
	if err != nil {
		return models.JobRecord{}, err
	}
	if sess.Step != models.StepStoryboard {
		return models.JobRecord{}, ErrWrongStep
	}
	if sess.TimelineStatus == models.TimelineStatusStreaming {
		return models.JobRecord{}, ErrTimelineBusy
	}
	if index < 0 || index >= len(sess.Timeline) {
		return models.JobRecord{}, store.ErrSceneNotFound
	}
	return c.jobs.Submit(ctx, queue.NewComposeImageJob(id, index))
}

// ApplyVoice sets the project-wide voice settings used by every later TTS call.
func (c *Controller) ApplyVoice(id uuid.UUID, req models.ApplyVoiceRequest) (models.Session, error) {
	voice := models.VoiceData{
		Stability:       req.Stability,
		SimilarityBoost: req.SimilarityBoost,
		Language:        req.Language,
		Emotion:         req.Emotion,
		Speed:           req.Speed,
		Pitch:           req.Pitch,
		CloneVoiceFile:  trimmed(req.CloneVoiceFile),
	}
	if req.Style != nil {
		v := *req.Style
		voice.Style = &v
	}
	if req.UseSpeakerBoost != nil {
		v := *req.UseSpeakerBoost
		voice.UseSpeakerBoost = &v
	}

	return c.store.Update(id, func(s *models.Session) error {
		if s.Step != models.StepStoryboard {
			return ErrWrongStep
		}
		s.Voice = voice
		s.VoiceApplied = true
		return nil
	})
}

// FinalizeStoryboard creates a pending video record per scene and moves to step 3.
// Finalizing again after Back replaces every previous video record.
func (c *Controller) FinalizeStoryboard(id uuid.UUID) (models.Session, error) {
	return c.store.Update(id, func(s *models.Session) error {
		if s.Step != models.StepStoryboard {
			return ErrWrongStep
		}
		if s.TimelineStatus == models.TimelineStatusStreaming {
			return ErrTimelineBusy
		}
		if len(s.Timeline) == 0 {
			return ErrEmptyStoryboard
		}
		for _, v := range s.Videos {
			if v.Status == models.SceneStatusGenerating {
				return store.ErrSceneBusy
			}
		}

		videos := make([]models.VideoItem, len(s.Timeline))
		for i, item := range s.Timeline {
			videos[i] = models.NewVideoItem(item)
		}
		s.Videos = videos
		s.Merge = models.MergeResult{Status: models.MergeStatusIdle}
		s.Step = models.StepPreview
		return nil
	})
}

// ---------------------------------------------------------------------------
// Step 3: video preview
// ---------------------------------------------------------------------------

// RequestScene queues generation of one scene if it may start now.
func (c *Controller) RequestScene(ctx context.Context, id uuid.UUID, index int) (models.JobRecord, error) {
	sess, err := c.store.Get(id)
	if err != nil {
		return models.JobRecord{}, err
	}
	if sess.Step != models.StepPreview {
		return models.JobRecord{}, ErrWrongStep
	}
	if err := c.store.CanStart(id, index); err != nil {
		return models.JobRecord{}, err
	}
	return c.jobs.Submit(ctx, queue.NewGenerateSceneJob(id, index))
}

// RequestAll queues generation of every scene that has not completed.
func (c *Controller) RequestAll(ctx context.Context, id uuid.UUID) (models.JobRecord, error) {
	sess, err := c.store.Get(id)
	if err != nil {
		return models.JobRecord{}, err
	}
	if sess.Step != models.StepPreview {
		return models.JobRecord{}, ErrWrongStep
	}
	for _, v := range sess.Videos {
		if v.Status == models.SceneStatusGenerating {
			return models.JobRecord{}, store.ErrSceneBusy
		}
	}
	return c.jobs.Submit(ctx, queue.NewGenerateAllJob(id))
}

// ---------------------------------------------------------------------------
// Step 4: final merge
// ---------------------------------------------------------------------------

// RequestMerge queues the merge of every completed scene.
func (c *Controller) RequestMerge(ctx context.Context, id uuid.UUID) (models.JobRecord, error) {
	sess, err := c.store.Get(id)
	if err != nil {
		return models.JobRecord{}, err
	}
	if sess.Step != models.StepFinal {
		return models.JobRecord{}, ErrWrongStep
	}
	if len(pipeline.CompletedVideos(sess)) == 0 {
		return models.JobRecord{}, pipeline.ErrNoVideos
	}
	if sess.Merge.Status == models.MergeStatusRunning {
		return models.JobRecord{}, ErrMergeRunning
	}
	return c.jobs.Submit(ctx, queue.NewMergeJob(id))
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func (c *Controller) editScene(id uuid.UUID, index int, fn func(*models.Session, *models.TimelineItem) error) (models.TimelineItem, error) {
	var out models.TimelineItem
	_, err := c.store.Update(id, func(s *models.Session) error {
		if s.Step != models.StepStoryboard {
			return ErrWrongStep
		}
		if s.TimelineStatus == models.TimelineStatusStreaming {
			return ErrTimelineBusy
		}
		if index < 0 || index >= len(s.Timeline) {
			return store.ErrSceneNotFound
		}
		item := s.Timeline[index]
		if err := fn(s, &item); err != nil {
			return err
		}
		s.Timeline[index] = item
		out = item
		return nil
	})
	return out, err
}

// applyStyle copies the style references of an edit. A nil field is left
// unchanged; an empty string clears it.
func applyStyle(item *models.TimelineItem, req models.UpdateSceneRequest) {
	set := func(dst **string, src *string) {
		if src != nil {
			*dst = optional(*src)
		}
	}
	set(&item.HairReference, req.HairReference)
	set(&item.OutfitReference, req.OutfitReference)
	set(&item.MakeupReference, req.MakeupReference)
	set(&item.HairText, req.HairText)
	set(&item.OutfitText, req.OutfitText)
	set(&item.MakeupText, req.MakeupText)
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	return optional(*s)
}

func stringPtr(s string) *string {
	return &s
}

// Subscribe returns the live change feed of a session.
func (c *Controller) Subscribe(id uuid.UUID) (<-chan store.Event, func(), error) {
	return c.store.Subscribe(id)
}
