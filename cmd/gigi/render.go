package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bobarin/gigi/internal/models"
	"github.com/bobarin/gigi/internal/pipeline"
	"github.com/bobarin/gigi/internal/worker"
	"github.com/bobarin/gigi/internal/wizard"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const jobPollInterval = 500 * time.Millisecond

var renderOpts struct {
	brand    string
	concept  string
	prompt   string
	scenario string
	duration int
	noImages bool
	noMerge  bool
	noDelays bool
}

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Run the whole wizard headlessly and print the session as JSON",
	Long: `render drives one session through every wizard step in this process:
scenario, storyboard, scene images, scene videos and the final merge.
Scenes that fail are reported in the output; the merge uses whatever completed.`,
	RunE: runRender,
}

func init() {
	rootCmd.AddCommand(renderCmd)

	flags := renderCmd.Flags()
	flags.StringVar(&renderOpts.brand, "brand", "", "brand id from the catalog or a custom brand name")
	flags.StringVar(&renderOpts.concept, "concept", "", "brand concept (overrides the catalog concept)")
	flags.StringVar(&renderOpts.prompt, "prompt", "", "extra request for the scenario writer")
	flags.StringVar(&renderOpts.scenario, "scenario", "", "use this scenario instead of generating one")
	flags.IntVar(&renderOpts.duration, "duration", 0, "storyboard length in seconds (default: VIDEO_DURATION_SEC)")
	flags.BoolVar(&renderOpts.noImages, "no-images", false, "skip scene image composition")
	flags.BoolVar(&renderOpts.noMerge, "no-merge", false, "stop after the scene videos")
	flags.BoolVar(&renderOpts.noDelays, "no-delays", false, "skip the GPU recovery waits between calls")
	_ = renderCmd.MarkFlagRequired("brand")
}

func runRender(cmd *cobra.Command, args []string) error {
	opts := appOptions{memoryQueue: true}
	if renderOpts.noDelays {
		opts.throttle = pipeline.NoThrottle{}
	}

	a, err := newApp(cfg, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		_ = a.worker.Start(ctx)
	}()

	r := &renderer{ctl: a.wizard, jobs: a.worker}
	sess, runErr := r.run(ctx)

	stop()
	<-workerDone

	if sess.ID != uuid.Nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(sess); err != nil {
			return fmt.Errorf("failed to write session: %w", err)
		}
	}
	return runErr
}

type renderer struct {
	ctl  *wizard.Controller
	jobs *worker.Worker
}

func (r *renderer) run(ctx context.Context) (models.Session, error) {
	sess := r.ctl.CreateSession()
	id := sess.ID
	logger := log.With().Str("session", id.String()).Logger()

	// Step 1
	brandReq := models.SelectBrandRequest{BrandName: renderOpts.brand}
	if renderOpts.concept != "" {
		brandReq.BrandConcept = &renderOpts.concept
	}
	if renderOpts.prompt != "" {
		brandReq.UserPrompt = &renderOpts.prompt
	}
	if _, err := r.ctl.SelectBrand(id, brandReq); err != nil {
		return sess, err
	}

	var edited *string
	if renderOpts.scenario != "" {
		edited = &renderOpts.scenario
	} else if _, err := r.ctl.GenerateScenario(ctx, id); err != nil {
		return r.snapshot(id), err
	}
	if _, err := r.ctl.ConfirmScenario(id, edited); err != nil {
		return r.snapshot(id), err
	}

	// Step 2
	var duration *int
	if renderOpts.duration > 0 {
		duration = &renderOpts.duration
	}
	if err := r.submitAndWait(ctx, func() (models.JobRecord, error) {
		return r.ctl.RequestTimeline(ctx, id, duration)
	}); err != nil {
		return r.snapshot(id), fmt.Errorf("timeline: %w", err)
	}

	sess = r.snapshot(id)
	logger.Info().Int("scenes", len(sess.Timeline)).Msg("storyboard ready")

	if !renderOpts.noImages {
		for i := range sess.Timeline {
			err := r.submitAndWait(ctx, func() (models.JobRecord, error) {
				return r.ctl.RequestImage(ctx, id, i)
			})
			if err != nil {
				if ctx.Err() != nil {
					return r.snapshot(id), ctx.Err()
				}
				logger.Warn().Err(err).Int("scene", i).Msg("scene image failed")
			}
		}
	}

	if _, err := r.ctl.FinalizeStoryboard(id); err != nil {
		return r.snapshot(id), err
	}

	// Step 3
	if err := r.submitAndWait(ctx, func() (models.JobRecord, error) {
		return r.ctl.RequestAll(ctx, id)
	}); err != nil {
		if ctx.Err() != nil {
			return r.snapshot(id), ctx.Err()
		}
		logger.Warn().Err(err).Msg("scene generation stopped")
	}

	if renderOpts.noMerge {
		return r.snapshot(id), nil
	}

	// Step 4
	if _, err := r.ctl.Advance(id); err != nil {
		return r.snapshot(id), err
	}
	if err := r.submitAndWait(ctx, func() (models.JobRecord, error) {
		return r.ctl.RequestMerge(ctx, id)
	}); err != nil {
		return r.snapshot(id), fmt.Errorf("merge: %w", err)
	}

	sess = r.snapshot(id)
	logger.Info().Str("video_url", sess.Merge.VideoURL).Msg("final video ready")
	return sess, nil
}

func (r *renderer) snapshot(id uuid.UUID) models.Session {
	sess, err := r.ctl.Session(id)
	if err != nil {
		return models.Session{ID: id}
	}
	return sess
}

// submitAndWait queues one job and polls until the worker finishes it.
func (r *renderer) submitAndWait(ctx context.Context, submit func() (models.JobRecord, error)) error {
	rec, err := submit()
	if err != nil {
		return err
	}

	ticker := time.NewTicker(jobPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		cur, ok := r.jobs.Job(rec.ID)
		if !ok {
			return fmt.Errorf("job %s disappeared", rec.ID)
		}
		switch cur.Status {
		case models.JobStatusSucceeded:
			return nil
		case models.JobStatusFailed:
			if cur.Error != nil {
				return errors.New(*cur.Error)
			}
			return fmt.Errorf("job %s failed", rec.ID)
		}
	}
}
