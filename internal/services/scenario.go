package services

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// ---------------------------------------------------------------------------
// Scenario generation
// A scenario is a short Korean ad script for the GIGI character. Three
// backends produce it: the hosted scenario service (default), OpenAI and Gemini.
// ---------------------------------------------------------------------------

// ScenarioRequest carries the step 1 brand input.
type ScenarioRequest struct {
	Brand        string
	BrandConcept string
	UserQuery    string
	ProductImage string // URL or data URI, optional
}

// ScenarioGenerator is implemented by every scenario backend.
type ScenarioGenerator interface {
	GenerateScenario(ctx context.Context, req ScenarioRequest) (string, error)
}

var (
	_ ScenarioGenerator = (*HTTPScenarioService)(nil)
	_ ScenarioGenerator = (*OpenAIScenarioService)(nil)
	_ ScenarioGenerator = (*GeminiScenarioService)(nil)
)

// HTTPScenarioService calls the hosted scenario generator.
// POST {base}/generate {brand, user_query?, product_image?} -> {scenario} or {success, scenario}
type HTTPScenarioService struct {
	caller
}

func NewHTTPScenarioService(baseURL string, client *http.Client) *HTTPScenarioService {
	return &HTTPScenarioService{caller: newCaller("scenario", baseURL, client)}
}

type scenarioRequest struct {
	Brand        string `json:"brand"`
	BrandConcept string `json:"brand_concept,omitempty"`
	UserQuery    string `json:"user_query,omitempty"`
	ProductImage string `json:"product_image,omitempty"`
}

type scenarioResponse struct {
	Success  *bool  `json:"success"`
	Scenario string `json:"scenario"`
	Error    string `json:"error"`
}

func (s *HTTPScenarioService) GenerateScenario(ctx context.Context, req ScenarioRequest) (string, error) {
	body := scenarioRequest{
		Brand:        req.Brand,
		BrandConcept: req.BrandConcept,
		UserQuery:    req.UserQuery,
		ProductImage: req.ProductImage,
	}

	s.log.Info().
		Str("brand", req.Brand).
		Bool("has_query", req.UserQuery != "").
		Bool("has_product_image", req.ProductImage != "").
		Msg("generating scenario")

	var res scenarioResponse
	if err := s.postJSON(ctx, s.url("generate"), body, &res); err != nil {
		return "", err
	}

	if res.Success != nil && !*res.Success {
		reason := res.Error
		if reason == "" {
			reason = "success=false"
		}
		return "", fmt.Errorf("%s: %w: %s", s.name, ErrServiceFailed, reason)
	}

	scenario := strings.TrimSpace(res.Scenario)
	if scenario == "" {
		return "", fmt.Errorf("%s: %w: response has no scenario", s.name, ErrServiceFailed)
	}
	return scenario, nil
}

const scenarioSystemPrompt = `당신은 아모레퍼시픽의 버추얼 인플루언서 "지지(GIGI)"가 출연하는 30초 내외 숏폼 광고의 시나리오 작가입니다.
브랜드의 톤앤매너를 반영하여 지지가 제품을 자연스럽게 소개하는 시나리오를 한국어로 작성하세요.
- 오프닝에서 지지가 화면을 향해 밝게 인사합니다.
- 제품의 주요 특징과 혜택을 강조하며 시청자와 친근하게 소통합니다.
- 마지막에는 브랜드의 핵심 메시지를 전달하며 따뜻한 미소로 마무리합니다.
시나리오 본문만 출력하고 제목, 머리말, 마크다운은 쓰지 마세요.`

// buildScenarioPrompt renders the user turn shared by the LLM backends.
func buildScenarioPrompt(req ScenarioRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "브랜드: %s\n", req.Brand)
	if req.BrandConcept != "" {
		fmt.Fprintf(&b, "브랜드 컨셉: %s\n", req.BrandConcept)
	}
	if req.UserQuery != "" {
		fmt.Fprintf(&b, "요청 사항: %s\n", req.UserQuery)
	} else {
		b.WriteString("요청 사항: 브랜드 신제품을 소개하는 영상\n")
	}
	if req.ProductImage != "" {
		b.WriteString("첨부한 제품 이미지의 제품을 소개하세요.\n")
	}
	return b.String()
}
