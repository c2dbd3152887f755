package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	APIPort            string `env:"API_PORT" env-default:"8080"`
	BackendAPIKey      string `env:"BACKEND_API_KEY"`      // empty = no auth, dev mode
	CorsAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS"` // comma-separated, empty = *

	// Logging
	LogLevel  string `env:"LOG_LEVEL" env-default:"info"`
	LogPretty bool   `env:"LOG_PRETTY" env-default:"false"`

	// Redis job queue (empty = in-process queue). Sessions are held in memory,
	// so every instance consumes its own list; InstanceID names it and
	// defaults to the hostname.
	RedisURL   string `env:"REDIS_URL"`
	InstanceID string `env:"INSTANCE_ID"`

	// Generation services
	Services ServiceURLs

	// Scenario provider: http, openai or gemini
	ScenarioProvider string `env:"SCENARIO_PROVIDER" env-default:"http"`
	OpenAIKey        string `env:"OPENAI_API_KEY"`
	OpenAIModel      string `env:"OPENAI_MODEL" env-default:"gpt-4o-mini"`
	GeminiKey        string `env:"GEMINI_API_KEY"`
	GeminiModel      string `env:"GEMINI_MODEL" env-default:"gemini-2.5-flash"`

	// HTTP client timeout for generation calls. GPU jobs are slow.
	HTTPTimeoutSec int `env:"HTTP_TIMEOUT_SEC" env-default:"900"`

	// Default storyboard length
	VideoDurationSec int `env:"VIDEO_DURATION_SEC" env-default:"30"`

	// GPU memory recovery waits
	Delays Delays
}

type ServiceURLs struct {
	Scenario string `env:"SCENARIO_API_URL" env-default:"https://gigicreation.store/api/scenario"`
	Timeline string `env:"TIMELINE_API_URL" env-default:"https://gigicreation.store/api/timeline"`
	Image    string `env:"IMAGE_API_URL" env-default:"https://gigicreation.store/api/image"`
	I2V      string `env:"I2V_API_URL" env-default:"https://gigicreation.store/api/i2v"`
	MMAudio  string `env:"MMAUDIO_API_URL" env-default:"https://gigicreation.store/api/mmaudio"`
	TTS      string `env:"TTS_API_URL" env-default:"https://gigicreation.store/api/elevenlabs"`
	Lipsync  string `env:"LATENTSYNC_API_URL" env-default:"https://gigicreation.store/api/latentsync"`
	Merge    string `env:"MERGE_API_URL" env-default:"https://gigicreation.store/api/merge"`
}

type Delays struct {
	AfterI2V             time.Duration `env:"DELAY_AFTER_I2V" env-default:"5s"`
	AfterAudio           time.Duration `env:"DELAY_AFTER_AUDIO" env-default:"5s"`
	BetweenScenes        time.Duration `env:"DELAY_BETWEEN_SCENES" env-default:"10s"`
	AfterBackgroundImage time.Duration `env:"DELAY_AFTER_BACKGROUND_IMAGE" env-default:"15s"`
	AfterCharacterImage  time.Duration `env:"DELAY_AFTER_CHARACTER_IMAGE" env-default:"20s"`
	AfterImageEdit       time.Duration `env:"DELAY_AFTER_IMAGE_EDIT" env-default:"15s"`
}

func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSec) * time.Second
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks cross-field requirements that struct tags can't express.
func (c *Config) Validate() error {
	c.ScenarioProvider = strings.ToLower(strings.TrimSpace(c.ScenarioProvider))

	switch c.ScenarioProvider {
	case "http":
		if c.Services.Scenario == "" {
			return fmt.Errorf("SCENARIO_API_URL is required when SCENARIO_PROVIDER=http")
		}
	case "openai":
		if c.OpenAIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when SCENARIO_PROVIDER=openai")
		}
	case "gemini":
		if c.GeminiKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required when SCENARIO_PROVIDER=gemini")
		}
	default:
		return fmt.Errorf("unknown SCENARIO_PROVIDER %q (allowed: http, openai, gemini)", c.ScenarioProvider)
	}

	if c.HTTPTimeoutSec <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT_SEC must be positive")
	}

	if c.VideoDurationSec <= 0 {
		return fmt.Errorf("VIDEO_DURATION_SEC must be positive")
	}

	c.InstanceID = strings.TrimSpace(c.InstanceID)
	if c.InstanceID == "" {
		host, err := os.Hostname()
		if err != nil || host == "" {
			host = "local"
		}
		c.InstanceID = host
	}

	return nil
}
