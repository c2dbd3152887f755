package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// QueueJobs prefixes the job list. Sessions live in process memory, so each
// instance reads only its own list (see InstanceKey).
const QueueJobs = "queue:gigi_jobs"

// InstanceKey names the job list owned by one server instance.
func InstanceKey(instanceID string) string {
	return QueueJobs + ":" + instanceID
}

const (
	JobGenerateTimeline = "generate_timeline"
	JobComposeImage     = "compose_image"
	JobGenerateScene    = "generate_scene"
	JobGenerateAll      = "generate_all"
	JobMerge            = "merge"
)

var (
	ErrQueueFull   = errors.New("job queue is full")
	ErrQueueClosed = errors.New("job queue is closed")
)

type Job struct {
	ID          uuid.UUID `json:"id"`
	Type        string    `json:"type"`
	SessionID   uuid.UUID `json:"session_id"`
	SceneIndex  *int      `json:"scene_index,omitempty"`
	DurationSec *int      `json:"duration_sec,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Queue is implemented by the Redis list queue and the in-process queue.
type Queue interface {
	Enqueue(ctx context.Context, job *Job) error
	// Dequeue blocks up to timeout. It returns nil, nil when no job arrived.
	Dequeue(ctx context.Context, timeout time.Duration) (*Job, error)
	Len(ctx context.Context) (int64, error)
	Close() error
}

func newJob(jobType string, sessionID uuid.UUID) *Job {
	return &Job{
		ID:        uuid.New(),
		Type:      jobType,
		SessionID: sessionID,
	}
}

// NewGenerateTimelineJob streams the storyboard for a session.
func NewGenerateTimelineJob(sessionID uuid.UUID, durationSec int) *Job {
	job := newJob(JobGenerateTimeline, sessionID)
	job.DurationSec = &durationSec
	return job
}

// NewComposeImageJob composes the still for one storyboard scene.
func NewComposeImageJob(sessionID uuid.UUID, index int) *Job {
	job := newJob(JobComposeImage, sessionID)
	job.SceneIndex = &index
	return job
}

// NewGenerateSceneJob runs the video pipeline for one scene.
func NewGenerateSceneJob(sessionID uuid.UUID, index int) *Job {
	job := newJob(JobGenerateScene, sessionID)
	job.SceneIndex = &index
	return job
}

func NewGenerateAllJob(sessionID uuid.UUID) *Job {
	return newJob(JobGenerateAll, sessionID)
}

func NewMergeJob(sessionID uuid.UUID) *Job {
	return newJob(JobMerge, sessionID)
}
