package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.APIPort)
	assert.Equal(t, "http", cfg.ScenarioProvider)
	assert.Equal(t, "https://gigicreation.store/api/i2v", cfg.Services.I2V)
	assert.Equal(t, 5*time.Second, cfg.Delays.AfterI2V)
	assert.Equal(t, 10*time.Second, cfg.Delays.BetweenScenes)
	assert.Equal(t, 20*time.Second, cfg.Delays.AfterCharacterImage)
	assert.Equal(t, 900*time.Second, cfg.HTTPTimeout())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("API_PORT", "9000")
	t.Setenv("DELAY_AFTER_I2V", "0s")
	t.Setenv("I2V_API_URL", "http://localhost:7000")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.APIPort)
	assert.Equal(t, time.Duration(0), cfg.Delays.AfterI2V)
	assert.Equal(t, "http://localhost:7000", cfg.Services.I2V)
}

func TestValidateScenarioProvider(t *testing.T) {
	cfg := &Config{ScenarioProvider: "openai", HTTPTimeoutSec: 1, VideoDurationSec: 30}
	assert.Error(t, cfg.Validate())

	cfg.OpenAIKey = "sk-test"
	assert.NoError(t, cfg.Validate())

	cfg.ScenarioProvider = " Gemini "
	assert.Error(t, cfg.Validate())
	assert.Equal(t, "gemini", cfg.ScenarioProvider)

	cfg.ScenarioProvider = "claude"
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsNonPositiveTimeout(t *testing.T) {
	cfg := &Config{ScenarioProvider: "http", Services: ServiceURLs{Scenario: "http://x"}, VideoDurationSec: 30}
	assert.Error(t, cfg.Validate())
}

func TestInstanceIDDefaultsToHostname(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	host, err := os.Hostname()
	require.NoError(t, err)
	assert.Equal(t, host, cfg.InstanceID)

	t.Setenv("INSTANCE_ID", " api-2 ")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, "api-2", cfg.InstanceID)
}
