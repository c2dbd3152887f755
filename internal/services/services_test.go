package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bobarin/gigi/internal/models"
	"github.com/bobarin/gigi/internal/storage"
	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngAsset() *storage.Asset {
	return &storage.Asset{Data: []byte{0x89, 'P', 'N', 'G'}, ContentType: "image/png", Filename: "scene_0.png"}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func TestI2VGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/generate", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))

		assert.Equal(t, "walks toward camera", r.FormValue("prompt"))
		assert.Equal(t, "scene_1700000000000_0", r.FormValue("project_id"))
		assert.Equal(t, "1", r.FormValue("sequence"))
		assert.Equal(t, "512", r.FormValue("width"))
		assert.Equal(t, "512", r.FormValue("height"))
		assert.Equal(t, "121", r.FormValue("length"))

		f, hdr, err := r.FormFile("image")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "scene_0.png", hdr.Filename)
		assert.Len(t, data, 4)

		writeJSON(w, map[string]any{"success": true, "output_file": "clip.mp4"})
	}))
	defer srv.Close()

	svc := NewI2VService(srv.URL+"/", srv.Client())
	url, err := svc.Generate(context.Background(), I2VRequest{
		Image:     pngAsset(),
		Prompt:    "walks toward camera",
		ProjectID: "scene_1700000000000_0",
		Sequence:  1,
	})
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/output/clip.mp4", url)
}

func TestI2VDefaultPrompt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, DefaultI2VPrompt, r.FormValue("prompt"))
		writeJSON(w, map[string]any{"success": true, "output_file": "clip.mp4"})
	}))
	defer srv.Close()

	_, err := NewI2VService(srv.URL, srv.Client()).Generate(context.Background(), I2VRequest{Image: pngAsset()})
	require.NoError(t, err)
}

func TestServiceFailureModes(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    error
	}{
		{
			name: "non-2xx status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "CUDA out of memory", http.StatusInternalServerError)
			},
			want: ErrServiceStatus,
		},
		{
			name: "explicit failure flag",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, map[string]any{"success": false, "error": "bad frame"})
			},
			want: ErrServiceFailed,
		},
		{
			name: "missing output file",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, map[string]any{"success": true})
			},
			want: ErrServiceFailed,
		},
		{
			name: "garbage body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("<html>"))
			},
			want: ErrServiceFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := NewMMAudioService(srv.URL, srv.Client()).AddAudio(context.Background(), pngAsset())
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestMMAudioAddAudio(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "24", r.FormValue("force_rate"))
		_, _, err := r.FormFile("video")
		assert.NoError(t, err)
		writeJSON(w, map[string]any{"success": true, "output_file": "bg.mp4"})
	}))
	defer srv.Close()

	url, err := NewMMAudioService(srv.URL, srv.Client()).AddAudio(context.Background(), &storage.Asset{Data: []byte("v"), Filename: "scene_0.mp4"})
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/output/bg.mp4", url)
}

func TestLipsyncSync(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "1.5", r.FormValue("lips_expression"))
		assert.Equal(t, "20", r.FormValue("inference_steps"))
		assert.Equal(t, "25", r.FormValue("fps"))
		_, vh, err := r.FormFile("video")
		require.NoError(t, err)
		_, ah, err := r.FormFile("audio")
		require.NoError(t, err)
		assert.Equal(t, "scene_0_bg.mp4", vh.Filename)
		assert.Equal(t, "dialogue_0.mp3", ah.Filename)
		writeJSON(w, map[string]any{"success": true, "output_file": "synced.mp4"})
	}))
	defer srv.Close()

	url, err := NewLipsyncService(srv.URL, srv.Client()).Sync(context.Background(),
		&storage.Asset{Data: []byte("v"), Filename: "scene_0_bg.mp4"},
		&storage.Asset{Data: []byte("a"), Filename: "dialogue_0.mp3"})
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/output/synced.mp4", url)
}

func TestElevenLabsGenerateSpeech(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/session/generate", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "tts_scene_1_0", body["session_id"])
		assert.Equal(t, "안녕하세요", body["text"])
		assert.Equal(t, "dialogue_0.mp3", body["output_filename"])
		assert.Equal(t, 0.8, body["stability"])
		assert.Equal(t, 0.8, body["similarity_boost"])
		assert.NotContains(t, body, "style")
		assert.NotContains(t, body, "clone_voice_file")

		writeJSON(w, map[string]any{"success": true, "filename": "dialogue_0.mp3"})
	}))
	defer srv.Close()

	var tts TTSService = NewElevenLabsService(srv.URL, srv.Client())
	url, err := tts.GenerateSpeech(context.Background(), SpeechRequest{
		SessionID:      "tts_scene_1_0",
		Text:           "안녕하세요",
		OutputFilename: "dialogue_0.mp3",
		Voice:          models.DefaultVoice(),
	})
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/session/tts_scene_1_0/audio/dialogue_0.mp3", url)
}

func TestElevenLabsCloneVoice(t *testing.T) {
	clone := "https://example.test/voice.wav"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, clone, body["clone_voice_file"])
		writeJSON(w, map[string]any{"success": true, "filename": "d.mp3"})
	}))
	defer srv.Close()

	voice := models.DefaultVoice()
	voice.CloneVoiceFile = &clone
	_, err := NewElevenLabsService(srv.URL, srv.Client()).GenerateSpeech(context.Background(), SpeechRequest{
		SessionID: "s", Text: "안녕", OutputFilename: "d.mp3", Voice: voice,
	})
	require.NoError(t, err)
}

func TestElevenLabsMissingFilename(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"success": true})
	}))
	defer srv.Close()

	_, err := NewElevenLabsService(srv.URL, srv.Client()).GenerateSpeech(context.Background(), SpeechRequest{Text: "x"})
	assert.ErrorIs(t, err, ErrServiceFailed)
}

func TestImageServiceCalls(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		switch r.URL.Path {
		case "/session/generate":
			var body backgroundRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "sid", body.SessionID)
			assert.Equal(t, DefaultNegativePrompt, body.NegativePrompt)
			assert.Equal(t, BackgroundWidth, body.Width)
			writeJSON(w, map[string]any{"success": true, "output_file": body.OutputFilename})
		case "/session/character":
			require.NoError(t, r.ParseMultipartForm(1<<20))
			assert.Equal(t, "sid", r.FormValue("session_id"))
			_, _, err := r.FormFile("style_image")
			assert.NoError(t, err)
			_, _, err = r.FormFile("style_image2")
			assert.ErrorIs(t, err, http.ErrMissingFile)
			_, _, err = r.FormFile("style_image3")
			assert.NoError(t, err)
			_, _, err = r.FormFile("product_image")
			assert.NoError(t, err)
			writeJSON(w, map[string]any{"success": true, "output_file": r.FormValue("output_filename")})
		case "/session/edit":
			var body editRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "bg.png", body.Image1Filename)
			assert.Equal(t, "char.png", body.Image2Filename)
			writeJSON(w, map[string]any{"success": true, "output_file": "final.png"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	svc := NewImageService(srv.URL, srv.Client())
	ctx := context.Background()

	bg, err := svc.GenerateBackground(ctx, BackgroundRequest{SessionID: "sid", Prompt: "cafe", OutputFilename: "bg.png"})
	require.NoError(t, err)
	char, err := svc.GenerateCharacter(ctx, CharacterRequest{
		SessionID: "sid", Prompt: "smiling", OutputFilename: "char.png",
		HairStyle: pngAsset(), MakeupStyle: pngAsset(), Product: pngAsset(),
	})
	require.NoError(t, err)
	out, err := svc.Edit(ctx, EditRequest{SessionID: "sid", Prompt: "place", BackgroundFilename: bg, CharacterFilename: char, OutputFilename: "x.png"})
	require.NoError(t, err)

	assert.Equal(t, "final.png", out)
	assert.Equal(t, []string{"/session/generate", "/session/character", "/session/edit"}, paths)
	assert.Equal(t, srv.URL+"/session/sid/output/final.png", svc.OutputURL("sid", out))
}

func TestMergeUploadAndCombine(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/session/upload":
			require.NoError(t, r.ParseMultipartForm(1<<20))
			_, hdr, err := r.FormFile("file")
			require.NoError(t, err)
			assert.Equal(t, r.FormValue("filename"), hdr.Filename)
			writeJSON(w, map[string]any{"success": true})
		case "/session/merge":
			var body mergeRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, []string{"scene_001.mp4", "scene_002.mp4"}, body.VideoFiles)
			writeJSON(w, map[string]any{"success": true, "output_file": body.OutputFilename, "duration": 12.5})
		}
	}))
	defer srv.Close()

	svc := NewMergeService(srv.URL, srv.Client())
	ctx := context.Background()
	require.NoError(t, svc.Upload(ctx, "m1", "scene_001.mp4", &storage.Asset{Data: []byte("a"), Filename: "orig.mp4"}))

	out, err := svc.Combine(ctx, "m1", []string{"scene_001.mp4", "scene_002.mp4"}, "final.mp4")
	require.NoError(t, err)
	assert.Equal(t, "final.mp4", out.OutputFile)
	assert.Equal(t, 12.5, out.Duration)
	assert.Equal(t, srv.URL+"/session/m1/output/final.mp4", out.URL)
}

func TestHTTPScenario(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body scenarioRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "라네즈 (LANEIGE)", body.Brand)
		assert.Equal(t, "https://example.test/cream.png", body.ProductImage)
		writeJSON(w, map[string]any{"scenario": "  지지가 인사합니다.  "})
	}))
	defer srv.Close()

	var gen ScenarioGenerator = NewHTTPScenarioService(srv.URL, srv.Client())
	scenario, err := gen.GenerateScenario(context.Background(), ScenarioRequest{
		Brand:        "라네즈 (LANEIGE)",
		ProductImage: "https://example.test/cream.png",
	})
	require.NoError(t, err)
	assert.Equal(t, "지지가 인사합니다.", scenario)
}

func TestHTTPScenarioFailureFlag(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"success": false, "error": "quota"})
	}))
	defer srv.Close()

	_, err := NewHTTPScenarioService(srv.URL, srv.Client()).GenerateScenario(context.Background(), ScenarioRequest{Brand: "x"})
	assert.ErrorIs(t, err, ErrServiceFailed)
}

func TestOpenAIScenario(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		var req openai.ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 2)
		assert.Contains(t, req.Messages[1].Content, "설화수")

		writeJSON(w, openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{
				{Message: openai.ChatCompletionMessage{Role: "assistant", Content: "시나리오"}},
			},
		})
	}))
	defer srv.Close()

	cfg := openai.DefaultConfig("sk-test")
	cfg.BaseURL = srv.URL + "/v1"
	svc := NewOpenAIScenarioServiceWithConfig(cfg, "")

	scenario, err := svc.GenerateScenario(context.Background(), ScenarioRequest{Brand: "설화수 (Sulwhasoo)"})
	require.NoError(t, err)
	assert.Equal(t, "시나리오", scenario)
}

func TestOpenAIScenarioWithProductImage(t *testing.T) {
	product := "data:image/png;base64,iVBORw0KGgo="
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openai.ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 2)
		parts := req.Messages[1].MultiContent
		require.Len(t, parts, 2)
		assert.Contains(t, parts[0].Text, "제품 이미지")
		require.NotNil(t, parts[1].ImageURL)
		assert.Equal(t, product, parts[1].ImageURL.URL)

		writeJSON(w, openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{
				{Message: openai.ChatCompletionMessage{Role: "assistant", Content: "시나리오"}},
			},
		})
	}))
	defer srv.Close()

	cfg := openai.DefaultConfig("sk-test")
	cfg.BaseURL = srv.URL + "/v1"
	_, err := NewOpenAIScenarioServiceWithConfig(cfg, "").GenerateScenario(context.Background(), ScenarioRequest{
		Brand: "설화수 (Sulwhasoo)", ProductImage: product,
	})
	require.NoError(t, err)
}

// geminiServer answers generateContent calls with text and hands each request body to inspect.
func geminiServer(t *testing.T, text string, inspect func(body map[string]any)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/models/gemini-2.5-flash:generateContent"), r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if inspect != nil {
			inspect(body)
		}
		writeJSON(w, map[string]any{
			"candidates": []any{
				map[string]any{
					"content": map[string]any{
						"role":  "model",
						"parts": []any{map[string]any{"text": text}},
					},
				},
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestGemini(baseURL string) *GeminiScenarioService {
	return NewGeminiScenarioServiceWithConfig(genai.ClientConfig{
		APIKey:      "test-key",
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: baseURL},
	}, "", storage.New())
}

func TestGeminiScenario(t *testing.T) {
	srv := geminiServer(t, "  지지의 시나리오  ", func(body map[string]any) {
		raw, _ := json.Marshal(body)
		assert.Contains(t, string(raw), "설화수")
		assert.Contains(t, string(raw), "systemInstruction")
		assert.NotContains(t, string(raw), "inlineData")
	})

	scenario, err := newTestGemini(srv.URL).GenerateScenario(context.Background(), ScenarioRequest{Brand: "설화수 (Sulwhasoo)"})
	require.NoError(t, err)
	assert.Equal(t, "지지의 시나리오", scenario)
}

func TestGeminiScenarioSendsProductImage(t *testing.T) {
	srv := geminiServer(t, "시나리오", func(body map[string]any) {
		raw, _ := json.Marshal(body)
		assert.Contains(t, string(raw), "inlineData")
		assert.Contains(t, string(raw), "image/png")
	})

	_, err := newTestGemini(srv.URL).GenerateScenario(context.Background(), ScenarioRequest{
		Brand:        "설화수 (Sulwhasoo)",
		ProductImage: "data:image/png;base64,iVBORw0KGgo=",
	})
	require.NoError(t, err)
}

func TestGeminiScenarioEmpty(t *testing.T) {
	srv := geminiServer(t, "   ", nil)

	_, err := newTestGemini(srv.URL).GenerateScenario(context.Background(), ScenarioRequest{Brand: "x"})
	assert.ErrorIs(t, err, ErrServiceFailed)
}

func TestBuildScenarioPrompt(t *testing.T) {
	p := buildScenarioPrompt(ScenarioRequest{Brand: "에뛰드 (ETUDE)", BrandConcept: "playful", UserQuery: "립 틴트"})
	assert.Contains(t, p, "에뛰드 (ETUDE)")
	assert.Contains(t, p, "playful")
	assert.Contains(t, p, "립 틴트")
}

func sseFrame(typ string, data any) string {
	b, _ := json.Marshal(map[string]any{"type": typ, "data": data})
	return fmt.Sprintf("data: %s\n\n", b)
}

func TestTimelineStreamOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/generate/stream", r.URL.Path)
		var body timelineRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "데모", body.Scenario)
		assert.Equal(t, 30, body.VideoDuration)

		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, sseFrame("metadata", map[string]any{"title": "데모", "total_scenes": 2}))
		io.WriteString(w, sseFrame("scene", map[string]any{
			"scene_description":       "Opening",
			"scene_description_ko":    "오프닝",
			"character_pose_and_gaze": "waves at camera",
			"dialogue":                "안녕하세요",
			"time_start":              0,
			"time_end":                5,
			"t2i_prompt":              map[string]any{"background": "bright studio", "product": "cream"},
		}))
		io.WriteString(w, "data: {not json\n\n")
		io.WriteString(w, ": keepalive\n\n")
		io.WriteString(w, sseFrame("scene", map[string]any{
			"scene_description": "Closing",
			"dialogue":          "",
			"voice_type":        "narration",
			"time_start":        5,
			"time_end":          10,
		}))
		io.WriteString(w, sseFrame("complete", map[string]any{}))
	}))
	defer srv.Close()

	var (
		items    []models.TimelineItem
		meta     models.TimelineMetadata
		complete bool
	)
	n, err := NewTimelineService(srv.URL, srv.Client()).Stream(context.Background(),
		TimelineRequest{Scenario: "데모", VideoDuration: 30, Brand: "x"},
		TimelineHandlers{
			OnMetadata: func(m models.TimelineMetadata) { meta = m },
			OnScene:    func(it models.TimelineItem) { items = append(items, it) },
			OnComplete: func() { complete = true },
		})
	require.NoError(t, err)

	assert.Equal(t, 2, n)
	require.Len(t, items, 2)
	assert.True(t, complete)
	assert.Equal(t, 2, meta.TotalScenes)

	first := items[0]
	assert.Equal(t, 0, first.Index)
	assert.Equal(t, "오프닝", first.Scene)
	assert.Equal(t, "waves at camera", first.Action)
	assert.Equal(t, "0:00 - 0:05", first.Timestamp)
	assert.Equal(t, models.VoiceTypeGigi, first.VoiceType)
	require.NotNil(t, first.T2IPrompt)
	assert.Equal(t, "bright studio", first.T2IPrompt.Background)
	assert.Equal(t, "waves at camera", first.T2IPrompt.CharacterPoseAndGaze)

	second := items[1]
	assert.Equal(t, 1, second.Index)
	assert.Equal(t, "Closing", second.Scene)
	assert.Equal(t, models.VoiceTypeNarration, second.VoiceType)
	assert.Nil(t, second.T2IPrompt)
}

func TestTimelineStreamSceneCountIgnoresFramePositions(t *testing.T) {
	body := strings.Join([]string{
		sseFrame("scene", map[string]any{"scene_description": "a"}),
		sseFrame("complete", map[string]any{}),
		sseFrame("metadata", map[string]any{"title": "late"}),
		sseFrame("scene", map[string]any{"scene_description": "b"}),
	}, "")

	svc := NewTimelineService("http://unused", nil)
	var scenes []string
	n, err := svc.consume(strings.NewReader(body), TimelineHandlers{
		OnScene: func(it models.TimelineItem) { scenes = append(scenes, it.Scene) },
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"a", "b"}, scenes)
}

func TestTimelineStreamStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewTimelineService(srv.URL, srv.Client()).Stream(context.Background(), TimelineRequest{}, TimelineHandlers{})
	assert.ErrorIs(t, err, ErrServiceStatus)
}
