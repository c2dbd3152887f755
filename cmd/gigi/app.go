package main

import (
	"fmt"
	"net/http"

	"github.com/bobarin/gigi/internal/catalog"
	"github.com/bobarin/gigi/internal/config"
	"github.com/bobarin/gigi/internal/pipeline"
	"github.com/bobarin/gigi/internal/queue"
	"github.com/bobarin/gigi/internal/services"
	"github.com/bobarin/gigi/internal/storage"
	"github.com/bobarin/gigi/internal/store"
	"github.com/bobarin/gigi/internal/wizard"
	"github.com/bobarin/gigi/internal/worker"
	"github.com/rs/zerolog/log"
)

// app wires every component of one process.
type app struct {
	queue  queue.Queue
	worker *worker.Worker
	wizard *wizard.Controller
}

type appOptions struct {
	// memoryQueue forces the in-process queue even when REDIS_URL is set.
	memoryQueue bool
	throttle    pipeline.Throttle
}

func newApp(cfg *config.Config, opts appOptions) (*app, error) {
	client := services.NewHTTPClient(cfg.HTTPTimeout())
	urls := cfg.Services

	svc := pipeline.Services{
		Fetcher:  storage.NewWithClient(client),
		Timeline: services.NewTimelineService(urls.Timeline, client),
		Image:    services.NewImageService(urls.Image, client),
		I2V:      services.NewI2VService(urls.I2V, client),
		Audio:    services.NewMMAudioService(urls.MMAudio, client),
		Speech:   services.NewElevenLabsService(urls.TTS, client),
		Lipsync:  services.NewLipsyncService(urls.Lipsync, client),
		Merger:   services.NewMergeService(urls.Merge, client),
	}

	throttle := opts.throttle
	if throttle == nil {
		throttle = pipeline.NewFixedThrottle(cfg.Delays)
	}

	st := store.New()
	orch := pipeline.New(st, svc, throttle)

	q, err := newQueue(cfg.RedisURL, cfg.InstanceID, opts.memoryQueue)
	if err != nil {
		return nil, err
	}

	cat, err := catalog.Load()
	if err != nil {
		q.Close()
		return nil, err
	}

	w := worker.New(q, orch, cfg.VideoDurationSec)
	ctl := wizard.New(st, cat, newScenarioGenerator(cfg, client), w, cfg.VideoDurationSec)

	return &app{queue: q, worker: w, wizard: ctl}, nil
}

func (a *app) Close() {
	if err := a.queue.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close queue")
	}
}

// newQueue returns the job queue this process consumes. The worker must run in
// the same process as the store holding the sessions.
func newQueue(redisURL, instanceID string, forceMemory bool) (queue.Queue, error) {
	if redisURL == "" || forceMemory {
		log.Info().Msg("using in-process job queue")
		return queue.NewMemory(0), nil
	}

	q, err := queue.NewRedis(redisURL, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to queue: %w", err)
	}
	log.Info().Str("queue", queue.InstanceKey(instanceID)).Msg("connected to Redis queue")
	return q, nil
}

func newScenarioGenerator(cfg *config.Config, client *http.Client) services.ScenarioGenerator {
	switch cfg.ScenarioProvider {
	case "openai":
		log.Info().Str("model", cfg.OpenAIModel).Msg("scenario provider: OpenAI")
		return services.NewOpenAIScenarioService(cfg.OpenAIKey, cfg.OpenAIModel)
	case "gemini":
		log.Info().Str("model", cfg.GeminiModel).Msg("scenario provider: Gemini")
		return services.NewGeminiScenarioService(cfg.GeminiKey, cfg.GeminiModel)
	default:
		log.Info().Str("url", cfg.Services.Scenario).Msg("scenario provider: hosted service")
		return services.NewHTTPScenarioService(cfg.Services.Scenario, client)
	}
}
