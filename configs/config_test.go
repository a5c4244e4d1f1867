package configs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("MISTRAL_API_KEY", "")
	t.Setenv("ASSIST_PROVIDER", "")
	t.Setenv("OCR_DPI", "")

	LoadConfig()

	assert.Equal(t, "none", ASSIST_PROVIDER)
	assert.False(t, AssistConfigured())
	assert.Equal(t, 300, OCR_DPI)
	assert.Equal(t, 3.0, ASSIST_INPUT_PRICE_PER_MILLION)
	assert.Equal(t, 15.0, ASSIST_OUTPUT_PRICE_PER_MILLION)
	assert.Equal(t, 9000, SERVICE_PO_THRESHOLD)
	assert.False(t, RESERVE_ON_MATCH)
}

func TestLoadConfigProviderFromKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("MISTRAL_API_KEY", "mk")
	t.Setenv("ASSIST_PROVIDER", "")

	LoadConfig()

	assert.Equal(t, "mistral", ASSIST_PROVIDER)
	assert.True(t, AssistConfigured())
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("X_BOOL", "notabool")
	t.Setenv("X_INT", "42")
	t.Setenv("X_FLOAT", "1.5")

	assert.True(t, getEnvBool("X_BOOL", true))
	assert.Equal(t, 42, getEnvInt("X_INT", 0))
	assert.Equal(t, 1.5, getEnvFloat("X_FLOAT", 0))
	assert.Equal(t, "fallback", getEnv("X_MISSING_KEY", "fallback"))
}
