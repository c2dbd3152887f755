package services

import (
	"context"
	"net/http"
	"strconv"

	"github.com/bobarin/gigi/internal/storage"
)

// ---------------------------------------------------------------------------
// MMAudio Background Audio Service
// Adds ambient sound to the i2v clip.
// POST {base}/generate (multipart: video, force_rate) -> {success, output_file}
// Output: {base}/output/{output_file}
// ---------------------------------------------------------------------------

// MMAudioFrameRate is the frame rate the service resamples the clip to.
const MMAudioFrameRate = 24

type MMAudioService struct {
	caller
}

func NewMMAudioService(baseURL string, client *http.Client) *MMAudioService {
	return &MMAudioService{caller: newCaller("mmaudio", baseURL, client)}
}

// AddAudio uploads the video and returns the URL of the same clip with background sound.
func (s *MMAudioService) AddAudio(ctx context.Context, video *storage.Asset) (string, error) {
	fields := []formField{{Name: "force_rate", Value: strconv.Itoa(MMAudioFrameRate)}}

	s.log.Info().Str("file", video.Filename).Int("bytes", len(video.Data)).Msg("generating background audio")

	var res serviceResult
	if err := s.postMultipart(ctx, s.url("generate"), fields, []formFile{{Field: "video", Asset: video}}, &res); err != nil {
		return "", err
	}

	file, err := res.requireOutput(s.name)
	if err != nil {
		return "", err
	}
	return s.url("output", file), nil
}
