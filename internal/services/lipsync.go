package services

import (
	"context"
	"net/http"
	"strconv"

	"github.com/bobarin/gigi/internal/storage"
)

// ---------------------------------------------------------------------------
// LatentSync Lip-sync Service
// Re-renders the character's mouth to match the dialogue audio.
// POST {base}/generate (multipart: video, audio, lips_expression, inference_steps, fps)
// Output: {base}/output/{output_file}
// ---------------------------------------------------------------------------

const (
	LipsyncExpression     = 1.5
	LipsyncInferenceSteps = 20
	LipsyncFPS            = 25
)

type LipsyncService struct {
	caller
}

func NewLipsyncService(baseURL string, client *http.Client) *LipsyncService {
	return &LipsyncService{caller: newCaller("latentsync", baseURL, client)}
}

// Sync returns the URL of the lip-synced video.
func (s *LipsyncService) Sync(ctx context.Context, video, audio *storage.Asset) (string, error) {
	fields := []formField{
		{Name: "lips_expression", Value: strconv.FormatFloat(LipsyncExpression, 'f', -1, 64)},
		{Name: "inference_steps", Value: strconv.Itoa(LipsyncInferenceSteps)},
		{Name: "fps", Value: strconv.Itoa(LipsyncFPS)},
	}
	files := []formFile{
		{Field: "video", Asset: video},
		{Field: "audio", Asset: audio},
	}

	s.log.Info().Str("video", video.Filename).Str("audio", audio.Filename).Msg("generating lip-sync video")

	var res serviceResult
	if err := s.postMultipart(ctx, s.url("generate"), fields, files, &res); err != nil {
		return "", err
	}

	file, err := res.requireOutput(s.name)
	if err != nil {
		return "", err
	}
	return s.url("output", file), nil
}
