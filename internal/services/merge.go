package services

import (
	"context"
	"fmt"
	"net/http"

	"github.com/bobarin/gigi/internal/storage"
)

// ---------------------------------------------------------------------------
// Video Merge Service
//   POST {base}/session/upload (multipart: session_id, file, filename)
//   POST {base}/session/merge  (JSON: session_id, video_files, output_filename)
//        -> {success, output_file, duration}
// Output: {base}/session/{sid}/output/{output_file}
// ---------------------------------------------------------------------------

type MergeOutput struct {
	OutputFile string
	URL        string
	Duration   float64
}

type MergeService struct {
	caller
}

func NewMergeService(baseURL string, client *http.Client) *MergeService {
	return &MergeService{caller: newCaller("merge", baseURL, client)}
}

type mergeRequest struct {
	SessionID      string   `json:"session_id"`
	VideoFiles     []string `json:"video_files"`
	OutputFilename string   `json:"output_filename"`
}

// Upload places one clip in the session namespace under filename.
func (s *MergeService) Upload(ctx context.Context, sessionID, filename string, video *storage.Asset) error {
	fields := []formField{
		{Name: "session_id", Value: sessionID},
		{Name: "filename", Value: filename},
	}
	upload := *video
	upload.Filename = filename

	var res serviceResult
	if err := s.postMultipart(ctx, s.url("session", "upload"), fields, []formFile{{Field: "file", Asset: &upload}}, &res); err != nil {
		return err
	}
	if res.failed() {
		return fmt.Errorf("%s upload of %s: %w: %s", s.name, filename, ErrServiceFailed, res.reason())
	}
	return nil
}

// Combine concatenates the uploaded clips in the given order.
func (s *MergeService) Combine(ctx context.Context, sessionID string, files []string, outputFilename string) (*MergeOutput, error) {
	body := mergeRequest{
		SessionID:      sessionID,
		VideoFiles:     files,
		OutputFilename: outputFilename,
	}

	s.log.Info().Str("session", sessionID).Strs("files", files).Msg("merging videos")

	var res serviceResult
	if err := s.postJSON(ctx, s.url("session", "merge"), body, &res); err != nil {
		return nil, err
	}

	file, err := res.requireOutput(s.name)
	if err != nil {
		return nil, err
	}

	return &MergeOutput{
		OutputFile: file,
		URL:        s.url("session", sessionID, "output", file),
		Duration:   res.Duration,
	}, nil
}
