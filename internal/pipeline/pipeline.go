package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bobarin/gigi/internal/metrics"
	"github.com/bobarin/gigi/internal/models"
	"github.com/bobarin/gigi/internal/services"
	"github.com/bobarin/gigi/internal/storage"
	"github.com/bobarin/gigi/internal/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrNoImage     = errors.New("scene has no composed image")
	ErrNoVideos    = errors.New("no completed videos to merge")
	ErrMergeFailed = errors.New("merge failed")
)

// ---------------------------------------------------------------------------
// Collaborators. The concrete implementations live in internal/services and
// internal/storage; tests substitute httptest-backed instances.
// ---------------------------------------------------------------------------

type Fetcher interface {
	Fetch(ctx context.Context, source, filename string) (*storage.Asset, error)
}

type VideoGenerator interface {
	Generate(ctx context.Context, req services.I2VRequest) (string, error)
}

type AudioGenerator interface {
	AddAudio(ctx context.Context, video *storage.Asset) (string, error)
}

type LipSyncer interface {
	Sync(ctx context.Context, video, audio *storage.Asset) (string, error)
}

type ImageComposer interface {
	GenerateBackground(ctx context.Context, req services.BackgroundRequest) (string, error)
	GenerateCharacter(ctx context.Context, req services.CharacterRequest) (string, error)
	Edit(ctx context.Context, req services.EditRequest) (string, error)
	OutputURL(sessionID, filename string) string
}

type VideoMerger interface {
	Upload(ctx context.Context, sessionID, filename string, video *storage.Asset) error
	Combine(ctx context.Context, sessionID string, files []string, outputFilename string) (*services.MergeOutput, error)
}

type TimelineStreamer interface {
	Stream(ctx context.Context, req services.TimelineRequest, h services.TimelineHandlers) (int, error)
}

// Services bundles every remote collaborator the orchestrator drives.
type Services struct {
	Fetcher  Fetcher
	Timeline TimelineStreamer
	Image    ImageComposer
	I2V      VideoGenerator
	Audio    AudioGenerator
	Speech   services.TTSService
	Lipsync  LipSyncer
	Merger   VideoMerger
}

// Orchestrator sequences the remote generation calls for a session and records
// every transition in the store. It is not safe for concurrent runs on the same
// session; the worker guarantees one job at a time.
type Orchestrator struct {
	store    *store.Store
	svc      Services
	throttle Throttle
	log      zerolog.Logger
	now      func() time.Time
}

func New(st *store.Store, svc Services, throttle Throttle) *Orchestrator {
	if throttle == nil {
		throttle = NoThrottle{}
	}
	return &Orchestrator{
		store:    st,
		svc:      svc,
		throttle: throttle,
		log:      log.With().Str("component", "pipeline").Logger(),
		now:      time.Now,
	}
}

// sceneRun carries one generation attempt of one scene.
type sceneRun struct {
	o         *Orchestrator
	sessionID uuid.UUID
	index     int
	attempt   int
	log       zerolog.Logger
}

// apply records a transition. A stale attempt means the scene was restarted or
// recreated; the caller must stop without touching the record again.
func (r *sceneRun) apply(t store.Transition) error {
	_, err := r.o.store.ApplyScene(r.sessionID, r.index, r.attempt, t)
	if errors.Is(err, store.ErrStaleAttempt) {
		r.log.Warn().Err(err).Msg("discarding result of superseded run")
	}
	return err
}

// fail marks the scene errored at stage and returns err for the caller.
func (r *sceneRun) fail(stage store.Stage, err error) error {
	r.log.Error().Err(err).Str("stage", string(stage)).Msg("scene generation failed")
	if applyErr := r.apply(store.Fail(stage, err.Error())); applyErr != nil && !errors.Is(applyErr, store.ErrStaleAttempt) {
		r.log.Error().Err(applyErr).Msg("failed to record scene failure")
	}
	return fmt.Errorf("scene %d %s: %w", r.index, stage, err)
}

// GenerateScene runs the full chain for one scene:
// image-to-video, background audio, then TTS and lip-sync when the scene has dialogue.
// Precondition failures (predecessor incomplete, another scene busy) leave the
// record untouched. Stage failures mark the scene as errored and are returned.
func (o *Orchestrator) GenerateScene(ctx context.Context, sessionID uuid.UUID, index int) (models.VideoItem, error) {
	sess, err := o.store.Get(sessionID)
	if err != nil {
		return models.VideoItem{}, err
	}

	v, err := o.store.BeginScene(sessionID, index)
	if err != nil {
		return models.VideoItem{}, err
	}

	run := &sceneRun{
		o:         o,
		sessionID: sessionID,
		index:     index,
		attempt:   v.Attempt,
		log:       o.log.With().Str("session", sessionID.String()).Int("scene", index).Int("attempt", v.Attempt).Logger(),
	}

	if err := o.runScene(ctx, run, v.TimelineItem, sess.Voice); err != nil {
		final, _ := o.store.Get(sessionID)
		if index < len(final.Videos) {
			return final.Videos[index], err
		}
		return models.VideoItem{}, err
	}

	metrics.ScenesCompleted.Inc()
	final, err := o.store.Get(sessionID)
	if err != nil {
		return models.VideoItem{}, err
	}
	return final.Videos[index], nil
}

func (o *Orchestrator) runScene(ctx context.Context, run *sceneRun, item models.TimelineItem, voice models.VoiceData) error {
	index := run.index
	projectID := fmt.Sprintf("scene_%d_%d", o.now().UnixMilli(), index)

	run.log.Info().Str("project_id", projectID).Bool("dialogue", item.HasDialogue()).Msg("scene generation started")

	if item.GigiImage == nil || *item.GigiImage == "" {
		return run.fail(store.StageI2V, ErrNoImage)
	}

	// Step 1: image to video
	start := time.Now()
	image, err := o.svc.Fetcher.Fetch(ctx, *item.GigiImage, fmt.Sprintf("scene_%d.png", index))
	if err != nil {
		return run.fail(store.StageI2V, fmt.Errorf("failed to load scene image: %w", err))
	}
	i2vURL, err := o.svc.I2V.Generate(ctx, services.I2VRequest{
		Image:     image,
		Prompt:    item.Action,
		ProjectID: projectID,
		Sequence:  index + 1,
	})
	metrics.ObserveStage(string(store.StageI2V), start, err)
	if err != nil {
		return run.fail(store.StageI2V, err)
	}
	if err := run.apply(store.I2VDone(i2vURL)); err != nil {
		return err
	}
	if err := o.throttle.Wait(ctx, PauseAfterI2V); err != nil {
		return run.fail(store.StageAudio, err)
	}

	// Step 2: background audio
	start = time.Now()
	video, err := o.svc.Fetcher.Fetch(ctx, i2vURL, fmt.Sprintf("scene_%d.mp4", index))
	if err != nil {
		return run.fail(store.StageAudio, fmt.Errorf("failed to download i2v video: %w", err))
	}
	mmURL, err := o.svc.Audio.AddAudio(ctx, video)
	metrics.ObserveStage(string(store.StageAudio), start, err)
	if err != nil {
		return run.fail(store.StageAudio, err)
	}
	if err := run.apply(store.AudioDone(mmURL)); err != nil {
		return err
	}
	if err := o.throttle.Wait(ctx, PauseAfterAudio); err != nil {
		return run.fail(store.StageLipsync, err)
	}

	// Step 3 and 4: dialogue audio and lip-sync. Without dialogue the mmaudio clip is final.
	finalURL := mmURL
	if item.HasDialogue() {
		start = time.Now()
		finalURL, err = o.speakAndSync(ctx, run, projectID, item, voice, mmURL)
		metrics.ObserveStage(string(store.StageLipsync), start, err)
		if err != nil {
			return run.fail(store.StageLipsync, err)
		}
	} else {
		run.log.Info().Msg("no dialogue, skipping lip-sync")
	}

	if err := run.apply(store.Complete(finalURL)); err != nil {
		return err
	}

	run.log.Info().Str("final_url", finalURL).Msg("scene generation completed")
	return nil
}

func (o *Orchestrator) speakAndSync(ctx context.Context, run *sceneRun, projectID string, item models.TimelineItem, voice models.VoiceData, mmURL string) (string, error) {
	index := run.index

	ttsURL, err := o.svc.Speech.GenerateSpeech(ctx, services.SpeechRequest{
		SessionID:      "tts_" + projectID,
		Text:           item.Dialogue,
		OutputFilename: fmt.Sprintf("dialogue_%d.mp3", index),
		Voice:          voice,
	})
	if err != nil {
		return "", fmt.Errorf("tts: %w", err)
	}
	if err := run.apply(store.SpeechDone(ttsURL)); err != nil {
		return "", err
	}

	video, err := o.svc.Fetcher.Fetch(ctx, mmURL, fmt.Sprintf("scene_%d_bg.mp4", index))
	if err != nil {
		return "", fmt.Errorf("failed to download background audio video: %w", err)
	}
	audio, err := o.svc.Fetcher.Fetch(ctx, ttsURL, fmt.Sprintf("dialogue_%d.mp3", index))
	if err != nil {
		return "", fmt.Errorf("failed to download dialogue audio: %w", err)
	}

	return o.svc.Lipsync.Sync(ctx, video, audio)
}

// GenerateAll runs every scene that is not completed yet, in index order, pausing
// between scenes. It stops at the first scene that fails.
func (o *Orchestrator) GenerateAll(ctx context.Context, sessionID uuid.UUID) error {
	sess, err := o.store.Get(sessionID)
	if err != nil {
		return err
	}

	generated := 0
	for i := range sess.Videos {
		current, err := o.store.Get(sessionID)
		if err != nil {
			return err
		}
		if i >= len(current.Videos) {
			break
		}
		if current.Videos[i].Status == models.SceneStatusCompleted {
			continue
		}

		if generated > 0 {
			if err := o.throttle.Wait(ctx, PauseBetweenScenes); err != nil {
				return err
			}
		}

		if _, err := o.GenerateScene(ctx, sessionID, i); err != nil {
			o.log.Warn().Err(err).Str("session", sessionID.String()).Int("scene", i).Msg("generate-all stopped")
			return err
		}
		generated++
	}

	o.log.Info().Str("session", sessionID.String()).Int("generated", generated).Msg("generate-all finished")
	return nil
}
