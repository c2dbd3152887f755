package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bobarin/gigi/internal/metrics"
	"github.com/bobarin/gigi/internal/models"
	"github.com/google/uuid"
)

const stageMerge = "merge"

// CompletedVideos returns the scenes eligible for merging, in index order.
func CompletedVideos(sess models.Session) []models.VideoItem {
	var out []models.VideoItem
	for _, v := range sess.Videos {
		if v.Status == models.SceneStatusCompleted && v.FinalVideoURL != nil {
			out = append(out, v)
		}
	}
	return out
}

// Merge uploads every completed scene as scene_001.mp4, scene_002.mp4, ... and
// asks the merge service to concatenate them. Individual upload failures are
// logged and skipped; the combine call failing fails the merge.
func (o *Orchestrator) Merge(ctx context.Context, sessionID uuid.UUID) (models.MergeResult, error) {
	sess, err := o.store.Get(sessionID)
	if err != nil {
		return models.MergeResult{}, err
	}

	videos := CompletedVideos(sess)
	if len(videos) == 0 {
		return models.MergeResult{}, ErrNoVideos
	}

	logger := o.log.With().Str("session", sessionID.String()).Int("videos", len(videos)).Logger()
	start := time.Now()

	if err := o.store.SetMerge(sessionID, models.MergeResult{Status: models.MergeStatusRunning}); err != nil {
		return models.MergeResult{}, err
	}

	stamp := o.now().UnixMilli()
	mergeSID := fmt.Sprintf("merge_%s", sess.RemoteSessionID)

	var (
		uploaded   []string
		uploadErrs []error
	)
	for i, v := range videos {
		name := fmt.Sprintf("scene_%03d.mp4", i+1)

		asset, err := o.svc.Fetcher.Fetch(ctx, *v.FinalVideoURL, name)
		if err == nil {
			err = o.svc.Merger.Upload(ctx, mergeSID, name, asset)
		}
		if err != nil {
			logger.Warn().Err(err).Int("scene", v.Index).Str("file", name).Msg("merge upload failed, continuing")
			uploadErrs = append(uploadErrs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		uploaded = append(uploaded, name)
	}

	if len(uploaded) == 0 {
		err := fmt.Errorf("%w: every upload failed: %w", ErrMergeFailed, errors.Join(uploadErrs...))
		metrics.ObserveStage(stageMerge, start, err)
		return o.failMerge(sessionID, err)
	}

	out, err := o.svc.Merger.Combine(ctx, mergeSID, uploaded, fmt.Sprintf("final_%d.mp4", stamp))
	metrics.ObserveStage(stageMerge, start, err)
	if err != nil {
		return o.failMerge(sessionID, fmt.Errorf("%w: %w", ErrMergeFailed, err))
	}

	result := models.MergeResult{
		Status:     models.MergeStatusDone,
		OutputFile: out.OutputFile,
		VideoURL:   out.URL,
		Duration:   out.Duration,
		Files:      uploaded,
	}
	if err := o.store.SetMerge(sessionID, result); err != nil {
		return result, err
	}

	logger.Info().Str("video_url", out.URL).Float64("duration", out.Duration).Int("uploaded", len(uploaded)).Msg("merge completed")
	return result, nil
}

func (o *Orchestrator) failMerge(sessionID uuid.UUID, err error) (models.MergeResult, error) {
	msg := err.Error()
	result := models.MergeResult{Status: models.MergeStatusError, Error: &msg}
	if setErr := o.store.SetMerge(sessionID, result); setErr != nil {
		o.log.Error().Err(setErr).Msg("failed to record merge failure")
	}
	o.log.Error().Err(err).Str("session", sessionID.String()).Msg("merge failed")
	return result, err
}
