package services

import (
	"context"

	"github.com/bobarin/gigi/internal/models"
)

// ---------------------------------------------------------------------------
// TTSService: common interface for text-to-speech providers
// The pipeline only needs a URL it can download the dialogue audio from, so
// providers return the hosted location rather than the bytes.
// ---------------------------------------------------------------------------

// SpeechRequest is one dialogue line to synthesize.
type SpeechRequest struct {
	SessionID      string
	Text           string
	OutputFilename string
	Voice          models.VoiceData
}

// TTSService is the interface that any TTS provider must implement.
type TTSService interface {
	// GenerateSpeech synthesizes the text and returns the audio URL.
	GenerateSpeech(ctx context.Context, req SpeechRequest) (string, error)
}
