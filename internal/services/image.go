package services

import (
	"context"
	"net/http"

	"github.com/bobarin/gigi/internal/storage"
)

// ---------------------------------------------------------------------------
// Image Service
// Three session-scoped endpoints used to compose a scene still:
//   POST {base}/session/generate   background from text (JSON)
//   POST {base}/session/character  stylized character (multipart, optional style refs)
//   POST {base}/session/edit       composite character onto background (JSON)
// All answer {success, output_file}. Files live under {base}/session/{sid}/output/.
// ---------------------------------------------------------------------------

const (
	BackgroundWidth  = 512
	BackgroundHeight = 512
	BackgroundSteps  = 25
	BackgroundCFG    = 7.0

	DefaultNegativePrompt = "people, person, character, text, watermark, logo, blurry, low quality, distorted"
)

type BackgroundRequest struct {
	SessionID      string
	Prompt         string
	NegativePrompt string
	OutputFilename string
}

type CharacterRequest struct {
	SessionID      string
	Prompt         string
	OutputFilename string
	HairStyle      *storage.Asset // sent as style_image
	OutfitStyle    *storage.Asset // sent as style_image2
	MakeupStyle    *storage.Asset // sent as style_image3
	Product        *storage.Asset // sent as product_image
}

type EditRequest struct {
	SessionID          string
	Prompt             string
	BackgroundFilename string
	CharacterFilename  string
	OutputFilename     string
}

type ImageService struct {
	caller
}

func NewImageService(baseURL string, client *http.Client) *ImageService {
	return &ImageService{caller: newCaller("image", baseURL, client)}
}

type backgroundRequest struct {
	SessionID      string  `json:"session_id"`
	Prompt         string  `json:"prompt"`
	NegativePrompt string  `json:"negative_prompt"`
	OutputFilename string  `json:"output_filename"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	Steps          int     `json:"steps"`
	CFG            float64 `json:"cfg"`
}

type editRequest struct {
	SessionID      string `json:"session_id"`
	Prompt         string `json:"prompt"`
	Image1Filename string `json:"image1_filename"`
	Image2Filename string `json:"image2_filename,omitempty"`
	OutputFilename string `json:"output_filename"`
}

// GenerateBackground returns the output filename of the generated background.
func (s *ImageService) GenerateBackground(ctx context.Context, req BackgroundRequest) (string, error) {
	negative := req.NegativePrompt
	if negative == "" {
		negative = DefaultNegativePrompt
	}

	body := backgroundRequest{
		SessionID:      req.SessionID,
		Prompt:         req.Prompt,
		NegativePrompt: negative,
		OutputFilename: req.OutputFilename,
		Width:          BackgroundWidth,
		Height:         BackgroundHeight,
		Steps:          BackgroundSteps,
		CFG:            BackgroundCFG,
	}

	s.log.Info().Str("session", req.SessionID).Str("output", req.OutputFilename).Msg("generating background image")

	var res serviceResult
	if err := s.postJSON(ctx, s.url("session", "generate"), body, &res); err != nil {
		return "", err
	}
	return res.requireOutput(s.name)
}

// GenerateCharacter returns the output filename of the stylized character image.
func (s *ImageService) GenerateCharacter(ctx context.Context, req CharacterRequest) (string, error) {
	fields := []formField{
		{Name: "session_id", Value: req.SessionID},
		{Name: "prompt", Value: req.Prompt},
		{Name: "output_filename", Value: req.OutputFilename},
	}
	files := []formFile{
		{Field: "style_image", Asset: req.HairStyle},
		{Field: "style_image2", Asset: req.OutfitStyle},
		{Field: "style_image3", Asset: req.MakeupStyle},
		{Field: "product_image", Asset: req.Product},
	}

	s.log.Info().
		Str("session", req.SessionID).
		Str("output", req.OutputFilename).
		Bool("hair_ref", req.HairStyle != nil).
		Bool("outfit_ref", req.OutfitStyle != nil).
		Bool("makeup_ref", req.MakeupStyle != nil).
		Bool("product_ref", req.Product != nil).
		Msg("generating character image")

	var res serviceResult
	if err := s.postMultipart(ctx, s.url("session", "character"), fields, files, &res); err != nil {
		return "", err
	}
	return res.requireOutput(s.name)
}

// Edit composites the character onto the background and returns the output filename.
func (s *ImageService) Edit(ctx context.Context, req EditRequest) (string, error) {
	body := editRequest{
		SessionID:      req.SessionID,
		Prompt:         req.Prompt,
		Image1Filename: req.BackgroundFilename,
		Image2Filename: req.CharacterFilename,
		OutputFilename: req.OutputFilename,
	}

	s.log.Info().Str("session", req.SessionID).Str("output", req.OutputFilename).Msg("compositing scene image")

	var res serviceResult
	if err := s.postJSON(ctx, s.url("session", "edit"), body, &res); err != nil {
		return "", err
	}
	return res.requireOutput(s.name)
}

// OutputURL is where a session file can be downloaded from.
func (s *ImageService) OutputURL(sessionID, filename string) string {
	return s.url("session", sessionID, "output", filename)
}
