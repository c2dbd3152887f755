package services

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/bobarin/gigi/internal/models"
)

// ---------------------------------------------------------------------------
// Timeline Generator (streaming)
// POST {base}/generate/stream {scenario, video_duration, brand}
// The response is an SSE stream of `data: {"type": ..., "data": ...}` lines
// where type is metadata, scene or complete. The stream ends at EOF.
// ---------------------------------------------------------------------------

const maxEventSize = 1 << 20

// TimelineRequest asks for a storyboard of a scenario.
type TimelineRequest struct {
	Scenario      string
	VideoDuration int
	Brand         string
}

// TimelineHandlers receive stream events as they arrive. Nil handlers are skipped.
type TimelineHandlers struct {
	OnMetadata func(models.TimelineMetadata)
	OnScene    func(models.TimelineItem)
	OnComplete func()
}

type TimelineService struct {
	caller
}

func NewTimelineService(baseURL string, client *http.Client) *TimelineService {
	return &TimelineService{caller: newCaller("timeline", baseURL, client)}
}

type timelineRequest struct {
	Scenario      string `json:"scenario"`
	VideoDuration int    `json:"video_duration"`
	Brand         string `json:"brand"`
}

type timelineEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type timelineMetadataPayload struct {
	Title       string `json:"title"`
	TotalScenes int    `json:"total_scenes"`
	Duration    int    `json:"duration"`
}

type timelineT2IPayload struct {
	Background           string `json:"background"`
	CharacterPoseAndGaze string `json:"character_pose_and_gaze"`
	Product              string `json:"product"`
	CameraAngle          string `json:"camera_angle"`
}

type timelineScenePayload struct {
	Timestamp              string                  `json:"timestamp"`
	TimeStart              float64                 `json:"time_start"`
	TimeEnd                float64                 `json:"time_end"`
	SceneDescription       string                  `json:"scene_description"`
	SceneDescriptionKo     string                  `json:"scene_description_ko"`
	CharacterPoseAndGaze   string                  `json:"character_pose_and_gaze"`
	Dialogue               string                  `json:"dialogue"`
	BackgroundSoundsPrompt string                  `json:"background_sounds_prompt"`
	VoiceType              string                  `json:"voice_type"`
	T2IPrompt              *timelineT2IPayload     `json:"t2i_prompt"`
	ImageEditPrompt        *models.ImageEditPrompt `json:"image_edit_prompt"`
}

// Stream posts the request and dispatches events until the server closes the stream.
// It returns the number of scenes delivered. A malformed event is logged and skipped.
func (s *TimelineService) Stream(ctx context.Context, req TimelineRequest, h TimelineHandlers) (int, error) {
	jsonData, err := json.Marshal(timelineRequest{
		Scenario:      req.Scenario,
		VideoDuration: req.VideoDuration,
		Brand:         req.Brand,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to marshal timeline request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url("generate", "stream"), bytes.NewReader(jsonData))
	if err != nil {
		return 0, fmt.Errorf("failed to create timeline request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	s.log.Info().Str("brand", req.Brand).Int("duration", req.VideoDuration).Msg("streaming timeline")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return 0, fmt.Errorf("timeline request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return 0, fmt.Errorf("%s: %w: %d %s", s.name, ErrServiceStatus, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return s.consume(resp.Body, h)
}

// consume reads SSE data lines from r. Only single-line data fields are produced by the
// generator, so each `data:` line is one event.
func (s *TimelineService) consume(r io.Reader, h TimelineHandlers) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxEventSize)

	scenes := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		payload, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		payload = strings.TrimSpace(payload)
		if payload == "" || payload == "[DONE]" {
			continue
		}

		var ev timelineEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			s.log.Warn().Err(err).Str("payload", truncate(payload, 200)).Msg("skipping malformed timeline event")
			continue
		}

		switch ev.Type {
		case "metadata":
			var md timelineMetadataPayload
			if err := json.Unmarshal(ev.Data, &md); err != nil {
				s.log.Warn().Err(err).Msg("skipping malformed metadata event")
				continue
			}
			if h.OnMetadata != nil {
				h.OnMetadata(models.TimelineMetadata{Title: md.Title, TotalScenes: md.TotalScenes, Duration: md.Duration})
			}
		case "scene":
			var sc timelineScenePayload
			if err := json.Unmarshal(ev.Data, &sc); err != nil {
				s.log.Warn().Err(err).Msg("skipping malformed scene event")
				continue
			}
			item := sc.toTimelineItem(scenes)
			scenes++
			if h.OnScene != nil {
				h.OnScene(item)
			}
		case "complete":
			if h.OnComplete != nil {
				h.OnComplete()
			}
		default:
			s.log.Debug().Str("type", ev.Type).Msg("ignoring unknown timeline event")
		}
	}

	if err := scanner.Err(); err != nil {
		return scenes, fmt.Errorf("timeline stream read failed: %w", err)
	}

	s.log.Info().Int("scenes", scenes).Msg("timeline stream finished")
	return scenes, nil
}

// toTimelineItem maps a scene event to a storyboard item at position index.
// The Korean description is shown to the user when present; the structured
// t2i prompts feed the image composition pipeline.
func (p timelineScenePayload) toTimelineItem(index int) models.TimelineItem {
	scene := p.SceneDescriptionKo
	if scene == "" {
		scene = p.SceneDescription
	}

	action := p.CharacterPoseAndGaze
	if action == "" && p.T2IPrompt != nil {
		action = p.T2IPrompt.CharacterPoseAndGaze
	}

	timestamp := p.Timestamp
	if timestamp == "" {
		timestamp = formatTimestamp(p.TimeStart) + " - " + formatTimestamp(p.TimeEnd)
	}

	item := models.TimelineItem{
		Index:           index,
		Timestamp:       timestamp,
		TimeStart:       p.TimeStart,
		TimeEnd:         p.TimeEnd,
		Scene:           scene,
		Action:          action,
		Dialogue:        p.Dialogue,
		ImageEditPrompt: p.ImageEditPrompt,
		VoiceType:       models.VoiceTypeGigi,
	}

	if p.VoiceType == string(models.VoiceTypeNarration) {
		item.VoiceType = models.VoiceTypeNarration
	}

	if p.BackgroundSoundsPrompt != "" {
		bg := p.BackgroundSoundsPrompt
		item.BackgroundSoundsPrompt = &bg
	}

	if p.T2IPrompt != nil {
		t2i := models.T2IPrompt{
			Background:           p.T2IPrompt.Background,
			CharacterPoseAndGaze: p.T2IPrompt.CharacterPoseAndGaze,
			Product:              p.T2IPrompt.Product,
			CameraAngle:          p.T2IPrompt.CameraAngle,
		}
		if t2i.CharacterPoseAndGaze == "" {
			t2i.CharacterPoseAndGaze = action
		}
		if t2i.Background == "" {
			t2i.Background = p.SceneDescription
		}
		item.T2IPrompt = &t2i
	}

	return item
}

// formatTimestamp renders seconds as m:ss.
func formatTimestamp(sec float64) string {
	total := int(sec)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// truncate limits a string to maxLen bytes for log output
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
