package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/bobarin/gigi/internal/config"
	"github.com/bobarin/gigi/internal/models"
	"github.com/bobarin/gigi/internal/pipeline"
	"github.com/bobarin/gigi/internal/wizard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// studio fakes the scenario writer and every generation service behind one server.
type studio struct {
	srv *httptest.Server

	mu    sync.Mutex
	calls map[string]int
}

func newStudio(t *testing.T) *studio {
	t.Helper()
	s := &studio{calls: make(map[string]int)}
	s.srv = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *studio) count(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[path]
}

func (s *studio) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.calls[r.URL.Path]++
	n := s.calls[r.URL.Path]
	s.mu.Unlock()

	if r.Method == http.MethodGet {
		w.Header().Set("Content-Type", "application/octet-stream")
		io.WriteString(w, "bytes:"+r.URL.Path)
		return
	}

	output := func(file string) {
		json.NewEncoder(w).Encode(map[string]any{"success": true, "output_file": file})
	}

	switch r.URL.Path {
	case "/scenario/generate":
		json.NewEncoder(w).Encode(map[string]any{"scenario": "지지가 수분 크림을 소개합니다."})
	case "/timeline/generate/stream":
		w.Header().Set("Content-Type", "text/event-stream")
		frame := func(typ string, data any) {
			b, _ := json.Marshal(map[string]any{"type": typ, "data": data})
			fmt.Fprintf(w, "data: %s\n\n", b)
		}
		frame("metadata", map[string]any{"title": "수분 크림", "total_scenes": 2})
		frame("scene", map[string]any{"scene_description": "opening", "character_pose_and_gaze": "waves", "dialogue": "안녕하세요!"})
		frame("scene", map[string]any{"scene_description": "closing", "character_pose_and_gaze": "smiles"})
		frame("complete", map[string]any{})
	case "/image/session/generate", "/image/session/edit":
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		output(fmt.Sprint(body["output_filename"]))
	case "/image/session/character":
		r.ParseMultipartForm(1 << 20)
		output(r.FormValue("output_filename"))
	case "/i2v/generate":
		output(fmt.Sprintf("i2v_%d.mp4", n))
	case "/mmaudio/generate":
		output(fmt.Sprintf("mm_%d.mp4", n))
	case "/latentsync/generate":
		output(fmt.Sprintf("sync_%d.mp4", n))
	case "/tts/session/generate":
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		json.NewEncoder(w).Encode(map[string]any{"success": true, "filename": body["output_filename"]})
	case "/merge/session/upload":
		json.NewEncoder(w).Encode(map[string]any{"success": true})
	case "/merge/session/merge":
		var body struct {
			OutputFilename string `json:"output_filename"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		json.NewEncoder(w).Encode(map[string]any{"success": true, "output_file": body.OutputFilename, "duration": 8.0})
	default:
		http.NotFound(w, r)
	}
}

func (s *studio) config() *config.Config {
	base := s.srv.URL
	return &config.Config{
		ScenarioProvider: "http",
		HTTPTimeoutSec:   30,
		VideoDurationSec: 30,
		Services: config.ServiceURLs{
			Scenario: base + "/scenario",
			Timeline: base + "/timeline",
			Image:    base + "/image",
			I2V:      base + "/i2v",
			MMAudio:  base + "/mmaudio",
			TTS:      base + "/tts",
			Lipsync:  base + "/latentsync",
			Merge:    base + "/merge",
		},
	}
}

// startRenderer builds an in-process app against the studio and runs its worker until the test ends.
func startRenderer(t *testing.T, s *studio) *renderer {
	t.Helper()
	a, err := newApp(s.config(), appOptions{memoryQueue: true, throttle: pipeline.NoThrottle{}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = a.worker.Start(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		a.Close()
	})
	return &renderer{ctl: a.wizard, jobs: a.worker}
}

func setRenderOpts(t *testing.T, brand string) {
	t.Helper()
	saved := renderOpts
	t.Cleanup(func() { renderOpts = saved })
	renderOpts = saved
	renderOpts.brand = brand
}

func TestRenderRunsEveryStep(t *testing.T) {
	s := newStudio(t)
	setRenderOpts(t, "laneige")
	renderOpts.duration = 15

	r := startRenderer(t, s)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sess, err := r.run(ctx)
	require.NoError(t, err)

	assert.Equal(t, models.StepFinal, sess.Step)
	require.NotNil(t, sess.Brand.Scenario)
	assert.Equal(t, "지지가 수분 크림을 소개합니다.", *sess.Brand.Scenario)
	require.Len(t, sess.Timeline, 2)
	require.Len(t, sess.Videos, 2)
	for _, v := range sess.Videos {
		assert.Equal(t, models.SceneStatusCompleted, v.Status)
		require.NotNil(t, v.TimelineItem.GigiImage)
	}
	assert.Equal(t, models.MergeStatusDone, sess.Merge.Status)
	assert.NotEmpty(t, sess.Merge.VideoURL)

	assert.Equal(t, 1, s.count("/scenario/generate"))
	assert.Equal(t, 2, s.count("/i2v/generate"))
	assert.Equal(t, 1, s.count("/latentsync/generate"), "only the scene with dialogue is lip-synced")
	assert.Equal(t, 1, s.count("/merge/session/merge"))
}

func TestRenderWithoutImagesStopsBeforeMerge(t *testing.T) {
	s := newStudio(t)
	setRenderOpts(t, "Gigi Lab")
	renderOpts.scenario = "직접 쓴 시나리오"
	renderOpts.noImages = true

	r := startRenderer(t, s)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sess, err := r.run(ctx)
	assert.ErrorIs(t, err, wizard.ErrNothingCompleted)

	assert.Equal(t, models.StepPreview, sess.Step)
	assert.Equal(t, "직접 쓴 시나리오", *sess.Brand.Scenario)
	require.Len(t, sess.Videos, 2)
	assert.Equal(t, models.SceneStatusError, sess.Videos[0].Status)
	assert.Zero(t, s.count("/scenario/generate"))
	assert.Zero(t, s.count("/image/session/character"))
	assert.Zero(t, s.count("/i2v/generate"))
}
