package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bobarin/gigi/internal/metrics"
	"github.com/bobarin/gigi/internal/models"
	"github.com/bobarin/gigi/internal/services"
	"github.com/google/uuid"
)

const stageTimeline = "timeline"

var ErrNoScenario = errors.New("session has no confirmed scenario")

// GenerateTimeline streams the storyboard for the session's confirmed scenario.
// Scenes are appended to the store as they arrive so the UI can render them progressively.
func (o *Orchestrator) GenerateTimeline(ctx context.Context, sessionID uuid.UUID, durationSec int) (int, error) {
	sess, err := o.store.Get(sessionID)
	if err != nil {
		return 0, err
	}
	if sess.Brand == nil || sess.Brand.Scenario == nil || *sess.Brand.Scenario == "" {
		return 0, ErrNoScenario
	}

	if err := o.store.StartTimeline(sessionID); err != nil {
		return 0, err
	}

	logger := o.log.With().Str("session", sessionID.String()).Logger()
	start := time.Now()

	n, streamErr := o.svc.Timeline.Stream(ctx, services.TimelineRequest{
		Scenario:      *sess.Brand.Scenario,
		VideoDuration: durationSec,
		Brand:         sess.Brand.BrandName,
	}, services.TimelineHandlers{
		OnMetadata: func(md models.TimelineMetadata) {
			if err := o.store.SetTimelineMetadata(sessionID, md); err != nil {
				logger.Warn().Err(err).Msg("failed to record timeline metadata")
			}
		},
		OnScene: func(item models.TimelineItem) {
			if _, err := o.store.AppendTimelineItem(sessionID, item); err != nil {
				logger.Warn().Err(err).Msg("failed to append timeline scene")
			}
		},
		OnComplete: func() {
			logger.Debug().Msg("timeline generator reported completion")
		},
	})
	metrics.ObserveStage(stageTimeline, start, streamErr)

	if err := o.store.FinishTimeline(sessionID, streamErr); err != nil {
		return n, err
	}
	if streamErr != nil {
		return n, fmt.Errorf("timeline: %w", streamErr)
	}

	logger.Info().Int("scenes", n).Msg("timeline generated")
	return n, nil
}
