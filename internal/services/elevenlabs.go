package services

import (
	"context"
	"fmt"
	"net/http"
)

// ---------------------------------------------------------------------------
// ElevenLabs Session Text-to-Speech Service
// Talks to the self-hosted ElevenLabs proxy that groups generated audio in sessions.
// A clone_voice_file (URL or data URI) makes the proxy speak in that voice.
// POST {base}/session/generate (JSON) -> {success, filename}
// Output: {base}/session/{session_id}/audio/{filename}
// ---------------------------------------------------------------------------

// ElevenLabsService handles text-to-speech via the ElevenLabs session API.
type ElevenLabsService struct {
	caller
}

// Ensure ElevenLabsService implements TTSService at compile time.
var _ TTSService = (*ElevenLabsService)(nil)

func NewElevenLabsService(baseURL string, client *http.Client) *ElevenLabsService {
	return &ElevenLabsService{caller: newCaller("elevenlabs", baseURL, client)}
}

type elevenLabsRequest struct {
	SessionID       string   `json:"session_id"`
	Text            string   `json:"text"`
	OutputFilename  string   `json:"output_filename"`
	Stability       float64  `json:"stability"`
	SimilarityBoost float64  `json:"similarity_boost"`
	Style           *float64 `json:"style,omitempty"`
	UseSpeakerBoost *bool    `json:"use_speaker_boost,omitempty"`
	CloneVoiceFile  *string  `json:"clone_voice_file,omitempty"`
}

// GenerateSpeech converts text to speech and returns the hosted audio URL.
func (s *ElevenLabsService) GenerateSpeech(ctx context.Context, req SpeechRequest) (string, error) {
	body := elevenLabsRequest{
		SessionID:       req.SessionID,
		Text:            req.Text,
		OutputFilename:  req.OutputFilename,
		Stability:       req.Voice.Stability,
		SimilarityBoost: req.Voice.SimilarityBoost,
		Style:           req.Voice.Style,
		UseSpeakerBoost: req.Voice.UseSpeakerBoost,
		CloneVoiceFile:  req.Voice.CloneVoiceFile,
	}

	s.log.Info().
		Str("session", req.SessionID).
		Str("output", req.OutputFilename).
		Int("text_len", len(req.Text)).
		Float64("stability", body.Stability).
		Bool("clone_voice", body.CloneVoiceFile != nil).
		Msg("generating speech")

	var res serviceResult
	if err := s.postJSON(ctx, s.url("session", "generate"), body, &res); err != nil {
		return "", err
	}

	if res.failed() {
		return "", fmt.Errorf("%s: %w: %s", s.name, ErrServiceFailed, res.reason())
	}
	if res.Filename == "" {
		return "", fmt.Errorf("%s: %w: response has no filename", s.name, ErrServiceFailed)
	}

	return s.url("session", req.SessionID, "audio", res.Filename), nil
}
