package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/bobarin/gigi/internal/storage"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.5-flash"

// GeminiScenarioService writes scenarios with the Google Gen AI SDK.
type GeminiScenarioService struct {
	config  genai.ClientConfig
	model   string
	fetcher Fetcher
	log     zerolog.Logger
}

// Fetcher resolves a URL or data URI into bytes.
type Fetcher interface {
	Fetch(ctx context.Context, source, filename string) (*storage.Asset, error)
}

func NewGeminiScenarioService(apiKey, model string) *GeminiScenarioService {
	return NewGeminiScenarioServiceWithConfig(genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}, model, storage.New())
}

// NewGeminiScenarioServiceWithConfig allows a custom endpoint through
// cfg.HTTPOptions.BaseURL. fetcher downloads the product image.
func NewGeminiScenarioServiceWithConfig(cfg genai.ClientConfig, model string, fetcher Fetcher) *GeminiScenarioService {
	if model == "" {
		model = defaultGeminiModel
	}
	return &GeminiScenarioService{
		config:  cfg,
		model:   model,
		fetcher: fetcher,
		log:     log.With().Str("component", "gemini").Logger(),
	}
}

func (s *GeminiScenarioService) GenerateScenario(ctx context.Context, req ScenarioRequest) (string, error) {
	cfg := s.config
	client, err := genai.NewClient(ctx, &cfg)
	if err != nil {
		return "", fmt.Errorf("failed to create genai client: %w", err)
	}

	parts := []*genai.Part{genai.NewPartFromText(buildScenarioPrompt(req))}
	if req.ProductImage != "" {
		product, err := s.fetcher.Fetch(ctx, req.ProductImage, "product")
		if err != nil {
			return "", fmt.Errorf("failed to load product image: %w", err)
		}
		mime := product.ContentType
		if !strings.HasPrefix(mime, "image/") {
			mime = "image/png"
		}
		parts = append(parts, genai.NewPartFromBytes(product.Data, mime))
	}

	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: scenarioSystemPrompt}},
		},
	}

	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
	resp, err := client.Models.GenerateContent(ctx, s.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}

	scenario := strings.TrimSpace(resp.Text())
	if scenario == "" {
		return "", fmt.Errorf("gemini: %w: empty scenario", ErrServiceFailed)
	}

	s.log.Info().Str("model", s.model).Str("brand", req.Brand).Msg("scenario generated")

	return scenario, nil
}
