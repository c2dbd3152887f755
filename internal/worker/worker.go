package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bobarin/gigi/internal/logging"
	"github.com/bobarin/gigi/internal/metrics"
	"github.com/bobarin/gigi/internal/models"
	"github.com/bobarin/gigi/internal/queue"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	defaultPollTimeout = 5 * time.Second
	dequeueBackoff     = time.Second

	// Finished job records are kept this long for status lookups.
	defaultJobRetention = time.Hour
)

var ErrSceneIndexMissing = errors.New("scene index missing")

// Runner executes the long-running wizard operations. *pipeline.Orchestrator implements it.
type Runner interface {
	GenerateTimeline(ctx context.Context, sessionID uuid.UUID, durationSec int) (int, error)
	ComposeSceneImage(ctx context.Context, sessionID uuid.UUID, index int) (models.TimelineItem, error)
	GenerateScene(ctx context.Context, sessionID uuid.UUID, index int) (models.VideoItem, error)
	GenerateAll(ctx context.Context, sessionID uuid.UUID) error
	Merge(ctx context.Context, sessionID uuid.UUID) (models.MergeResult, error)
}

// Worker is the single consumer of the job queue. One job runs at a time, so
// scenes and their stages never overlap.
type Worker struct {
	queue           queue.Queue
	runner          Runner
	jobs            *Jobs
	defaultDuration int
	pollTimeout     time.Duration
	log             zerolog.Logger
}

func New(q queue.Queue, runner Runner, defaultDurationSec int) *Worker {
	return &Worker{
		queue:           q,
		runner:          runner,
		jobs:            NewJobs(),
		defaultDuration: defaultDurationSec,
		pollTimeout:     defaultPollTimeout,
		log:             logging.Component("worker"),
	}
}

// SetPollTimeout changes how long each Dequeue call blocks.
func (w *Worker) SetPollTimeout(d time.Duration) {
	if d > 0 {
		w.pollTimeout = d
	}
}

// Submit records the job as queued and pushes it onto the queue.
func (w *Worker) Submit(ctx context.Context, job *queue.Job) (models.JobRecord, error) {
	rec := w.jobs.queued(job)
	if err := w.queue.Enqueue(ctx, job); err != nil {
		w.jobs.forget(job.ID)
		return models.JobRecord{}, fmt.Errorf("failed to enqueue %s job: %w", job.Type, err)
	}
	return rec, nil
}

// Job returns the tracked state of a submitted job.
func (w *Worker) Job(id uuid.UUID) (models.JobRecord, bool) {
	return w.jobs.Get(id)
}

// Start consumes jobs until ctx is cancelled or the queue is closed.
func (w *Worker) Start(ctx context.Context) error {
	w.log.Info().Dur("poll_timeout", w.pollTimeout).Msg("worker started")
	defer w.log.Info().Msg("worker shutting down")

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		job, err := w.queue.Dequeue(ctx, w.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, queue.ErrQueueClosed) {
				return nil
			}
			w.log.Error().Err(err).Msg("failed to dequeue")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(dequeueBackoff):
			}
			continue
		}
		if job == nil {
			continue // No job available, retry
		}

		w.process(ctx, job)
	}
}

func (w *Worker) process(ctx context.Context, job *queue.Job) {
	logger := w.log.With().
		Str("job", job.ID.String()).
		Str("type", job.Type).
		Str("session", job.SessionID.String()).
		Logger()

	logger.Info().Msg("processing job")
	w.jobs.running(job)

	err := w.handle(ctx, job)
	metrics.ObserveJob(job.Type, err)
	w.jobs.finished(job.ID, err)

	if err != nil {
		logger.Error().Err(err).Msg("job failed")
		return
	}
	logger.Info().Msg("job completed")
}

func (w *Worker) handle(ctx context.Context, job *queue.Job) error {
	switch job.Type {
	case queue.JobGenerateTimeline:
		duration := w.defaultDuration
		if job.DurationSec != nil {
			duration = *job.DurationSec
		}
		_, err := w.runner.GenerateTimeline(ctx, job.SessionID, duration)
		return err

	case queue.JobComposeImage:
		if job.SceneIndex == nil {
			return ErrSceneIndexMissing
		}
		_, err := w.runner.ComposeSceneImage(ctx, job.SessionID, *job.SceneIndex)
		return err

	case queue.JobGenerateScene:
		if job.SceneIndex == nil {
			return ErrSceneIndexMissing
		}
		_, err := w.runner.GenerateScene(ctx, job.SessionID, *job.SceneIndex)
		return err

	case queue.JobGenerateAll:
		return w.runner.GenerateAll(ctx, job.SessionID)

	case queue.JobMerge:
		_, err := w.runner.Merge(ctx, job.SessionID)
		return err

	default:
		return fmt.Errorf("unknown job type %q", job.Type)
	}
}

// ---------------------------------------------------------------------------
// Job tracking
// ---------------------------------------------------------------------------

// Jobs keeps the status of jobs this process submitted or ran. Succeeded and
// failed records are evicted once they are older than the retention period.
type Jobs struct {
	mu        sync.RWMutex
	jobs      map[uuid.UUID]models.JobRecord
	retention time.Duration
	now       func() time.Time
}

func NewJobs() *Jobs {
	return &Jobs{
		jobs:      make(map[uuid.UUID]models.JobRecord),
		retention: defaultJobRetention,
		now:       time.Now,
	}
}

func (j *Jobs) Get(id uuid.UUID) (models.JobRecord, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	rec, ok := j.jobs[id]
	return rec, ok
}

func (j *Jobs) queued(job *queue.Job) models.JobRecord {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.evictLocked()

	rec := models.JobRecord{
		ID:         job.ID,
		Type:       job.Type,
		SessionID:  job.SessionID,
		SceneIndex: job.SceneIndex,
		Status:     models.JobStatusQueued,
		CreatedAt:  j.now().UTC(),
	}
	j.jobs[job.ID] = rec
	return rec
}

func (j *Jobs) forget(id uuid.UUID) {
	j.mu.Lock()
	defer j.mu.Unlock()
	delete(j.jobs, id)
}

// running also registers jobs that reached the queue without Submit.
func (j *Jobs) running(job *queue.Job) {
	j.mu.Lock()
	defer j.mu.Unlock()

	now := j.now().UTC()
	rec, ok := j.jobs[job.ID]
	if !ok {
		rec = models.JobRecord{
			ID:         job.ID,
			Type:       job.Type,
			SessionID:  job.SessionID,
			SceneIndex: job.SceneIndex,
			CreatedAt:  job.CreatedAt,
		}
	}
	rec.Status = models.JobStatusRunning
	rec.StartedAt = &now
	j.jobs[job.ID] = rec
}

func (j *Jobs) finished(id uuid.UUID, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rec, ok := j.jobs[id]
	if !ok {
		return
	}
	now := j.now().UTC()
	rec.FinishedAt = &now
	rec.Status = models.JobStatusSucceeded
	if err != nil {
		msg := err.Error()
		rec.Status = models.JobStatusFailed
		rec.Error = &msg
	}
	j.jobs[id] = rec
}

// evictLocked drops finished records past retention. j.mu must be held.
func (j *Jobs) evictLocked() {
	cutoff := j.now().UTC().Add(-j.retention)
	for id, rec := range j.jobs {
		if rec.FinishedAt != nil && rec.FinishedAt.Before(cutoff) {
			delete(j.jobs, id)
		}
	}
}
