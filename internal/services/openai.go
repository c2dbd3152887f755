package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAIScenarioService writes scenarios with an OpenAI chat completion.
type OpenAIScenarioService struct {
	client *openai.Client
	model  string
	log    zerolog.Logger
}

func NewOpenAIScenarioService(apiKey, model string) *OpenAIScenarioService {
	return NewOpenAIScenarioServiceWithConfig(openai.DefaultConfig(apiKey), model)
}

// NewOpenAIScenarioServiceWithConfig allows a custom base URL, used by tests and proxies.
func NewOpenAIScenarioServiceWithConfig(cfg openai.ClientConfig, model string) *OpenAIScenarioService {
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAIScenarioService{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		log:    log.With().Str("component", "openai").Logger(),
	}
}

func (s *OpenAIScenarioService) GenerateScenario(ctx context.Context, req ScenarioRequest) (string, error) {
	user := openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: buildScenarioPrompt(req),
	}
	if req.ProductImage != "" {
		// Vision models take URLs and data URIs alike.
		user = openai.ChatCompletionMessage{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: buildScenarioPrompt(req)},
				{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
					URL:    req.ProductImage,
					Detail: openai.ImageURLDetailLow,
				}},
			},
		}
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: scenarioSystemPrompt,
			},
			user,
		},
		Temperature: 0.9,
	})
	if err != nil {
		return "", fmt.Errorf("openai request failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: %w: no choices", ErrServiceFailed)
	}

	scenario := strings.TrimSpace(resp.Choices[0].Message.Content)
	if scenario == "" {
		return "", fmt.Errorf("openai: %w: empty scenario", ErrServiceFailed)
	}

	s.log.Info().
		Str("model", s.model).
		Str("brand", req.Brand).
		Int("tokens", resp.Usage.TotalTokens).
		Msg("scenario generated")

	return scenario, nil
}
