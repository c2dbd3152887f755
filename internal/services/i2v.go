package services

import (
	"context"
	"net/http"
	"strconv"

	"github.com/bobarin/gigi/internal/storage"
)

// ---------------------------------------------------------------------------
// Image-to-Video Service
// Animates the composed scene still into a short clip.
// POST {base}/generate (multipart) -> {success, output_file}
// Output: {base}/output/{output_file}
// ---------------------------------------------------------------------------

const (
	I2VWidth  = 512
	I2VHeight = 512
	I2VLength = 121 // frames, about 6s

	// DefaultI2VPrompt is used when the scene has no action text.
	DefaultI2VPrompt = "The character looks at the camera with a gentle smile"
)

type I2VRequest struct {
	Image     *storage.Asset
	Prompt    string
	ProjectID string
	Sequence  int
}

type I2VService struct {
	caller
}

func NewI2VService(baseURL string, client *http.Client) *I2VService {
	return &I2VService{caller: newCaller("i2v", baseURL, client)}
}

// Generate uploads the image and returns the URL of the generated video.
func (s *I2VService) Generate(ctx context.Context, req I2VRequest) (string, error) {
	prompt := req.Prompt
	if prompt == "" {
		prompt = DefaultI2VPrompt
	}

	fields := []formField{
		{Name: "prompt", Value: prompt},
		{Name: "project_id", Value: req.ProjectID},
		{Name: "sequence", Value: strconv.Itoa(req.Sequence)},
		{Name: "width", Value: strconv.Itoa(I2VWidth)},
		{Name: "height", Value: strconv.Itoa(I2VHeight)},
		{Name: "length", Value: strconv.Itoa(I2VLength)},
	}

	s.log.Info().Str("project_id", req.ProjectID).Int("sequence", req.Sequence).Msg("generating video from image")

	var res serviceResult
	if err := s.postMultipart(ctx, s.url("generate"), fields, []formFile{{Field: "image", Asset: req.Image}}, &res); err != nil {
		return "", err
	}

	file, err := res.requireOutput(s.name)
	if err != nil {
		return "", err
	}
	return s.url("output", file), nil
}
