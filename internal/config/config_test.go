package config

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/diagnosa/backend/internal/model/chat"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "LLM_PROVIDER", "GEMINI_API_KEY", "GEMINI_MODEL", "GEMINI_BASE_URL",
		"ARK_API_KEY", "ARK_ACCESS_KEY", "ARK_SECRET_KEY", "ARK_MODEL",
		"LLM_TEMPERATURE", "LLM_MAX_TOKENS", "LLM_TIMEOUT", "LLM_STREAM",
		"CHAT_PRIMING_ENABLED", "CHAT_PRIMING_INSTRUCTION", "CHAT_PRIMING_ACKNOWLEDGMENT", "CHAT_SESSION_TTL",
		"LOG_LEVEL", "LOG_FORMAT", configFileEnv,
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("GEMINI_API_KEY", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, ProviderGemini, cfg.AI.Provider)
	assert.Equal(t, "secret", cfg.AI.APIKey)
	assert.Equal(t, defaultGeminiModel, cfg.AI.Model)
	require.NotNil(t, cfg.AI.Temperature)
	assert.InDelta(t, 0.4, *cfg.AI.Temperature, 1e-9)
	require.NotNil(t, cfg.AI.MaxTokens)
	assert.Equal(t, 500, *cfg.AI.MaxTokens)
	assert.Equal(t, 60*time.Second, cfg.AI.Timeout)
	assert.True(t, cfg.AI.StreamResponse)
	assert.Equal(t, chat.DefaultPriming(), cfg.Chat.Priming)
	assert.Equal(t, 2*time.Hour, cfg.Chat.SessionTTL)
	assert.NoError(t, cfg.AI.Validate())
}

func TestValidateMissingGeminiKey(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	err = cfg.AI.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingAPIKey))
}

func TestValidateUnknownProvider(t *testing.T) {
	clearEnv(t)
	t.Setenv("LLM_PROVIDER", "palm")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, errors.Is(cfg.AI.Validate(), ErrUnknownProvider))
}

func TestArkProviderAcceptsAccessKeyPair(t *testing.T) {
	clearEnv(t)
	t.Setenv("LLM_PROVIDER", "ark")
	t.Setenv("ARK_ACCESS_KEY", "ak")
	t.Setenv("ARK_SECRET_KEY", "sk")
	t.Setenv("ARK_MODEL", "ep-123")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, defaultArkBaseURL, cfg.AI.BaseURL)
	assert.NoError(t, cfg.AI.Validate())
}

func TestTimeoutFormats(t *testing.T) {
	clearEnv(t)

	t.Setenv("LLM_TIMEOUT", "30")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.AI.Timeout)

	t.Setenv("LLM_TIMEOUT", "1m30s")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, cfg.AI.Timeout)

	t.Setenv("LLM_TIMEOUT", "0")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Zero(t, cfg.AI.Timeout)

	t.Setenv("LLM_TIMEOUT", "soon")
	_, err = Load()
	assert.Error(t, err)
}

func TestInvalidNumbers(t *testing.T) {
	clearEnv(t)
	t.Setenv("LLM_TEMPERATURE", "warm")
	_, err := Load()
	assert.Error(t, err)

	clearEnv(t)
	t.Setenv("LLM_MAX_TOKENS", "many")
	_, err = Load()
	assert.Error(t, err)
}

func TestPortParsing(t *testing.T) {
	clearEnv(t)

	t.Setenv("PORT", "127.0.0.1:9000")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)

	t.Setenv("PORT", "80 80")
	_, err = Load()
	assert.Error(t, err)
}

func TestPrimingOverridesAndDisable(t *testing.T) {
	clearEnv(t)
	t.Setenv("CHAT_PRIMING_ACKNOWLEDGMENT", "Siap.")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, chat.DefaultPriming().Instruction, cfg.Chat.Priming.Instruction)
	assert.Equal(t, "Siap.", cfg.Chat.Priming.Acknowledgment)

	t.Setenv("CHAT_PRIMING_ENABLED", "false")
	cfg, err = Load()
	require.NoError(t, err)
	assert.True(t, cfg.Chat.Priming.Empty())
}

func TestSessionTTL(t *testing.T) {
	clearEnv(t)
	t.Setenv("CHAT_SESSION_TTL", "30m")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, cfg.Chat.SessionTTL)

	t.Setenv("CHAT_SESSION_TTL", "0")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Zero(t, cfg.Chat.SessionTTL)

	t.Setenv("CHAT_SESSION_TTL", "soon")
	_, err = Load()
	assert.Error(t, err)
}
