package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keybridge/internal/config"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"ANTHROPIC_TARGET_URL", "OPENAI_TARGET_URL", "BEDROCK_TARGET_URL",
		"PROXY_PORT", "PROXY_LISTEN", "PROXY_UPSTREAM_TIMEOUT", "PROXY_MAX_BODY_BYTES",
		"PROXY_STRICT_PATHS", "PROXY_EXPOSE_ERROR_DETAILS", "LOG_LEVEL", "LOG_FILE",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	clearEnv(t)

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8000", cfg.Listen)
	assert.Equal(t, 300*time.Second, cfg.UpstreamTimeout)
	assert.Equal(t, int64(32<<20), cfg.MaxBodyBytes)
	assert.False(t, cfg.StrictPaths)
	assert.True(t, cfg.ShouldExposeErrorDetails())
	assert.Equal(t, map[string]string{"gpt-5": "gpt-5-2025-08-07"}, cfg.ModelAliases)
	assert.Equal(t, []string{"gpt-5-codex"}, cfg.StripReasoningEffort)

	anthropic, ok := cfg.Target(config.ProviderAnthropic)
	require.True(t, ok)
	assert.Equal(t, config.DefaultAnthropicTargetURL, anthropic.String())
	assert.Equal(t, "app.factory.ai", anthropic.Host())

	openai, ok := cfg.Target(config.ProviderOpenAI)
	require.True(t, ok)
	assert.Equal(t, config.DefaultOpenAITargetURL, openai.String())

	bedrock, ok := cfg.Target(config.ProviderBedrock)
	require.True(t, ok)
	assert.Equal(t, config.DefaultBedrockTargetURL, bedrock.String())
}

func TestLoadEnvOverridesTargets(t *testing.T) {
	clearEnv(t)
	t.Setenv("ANTHROPIC_TARGET_URL", "http://anthropic.local/v1/messages")
	t.Setenv("OPENAI_TARGET_URL", "http://openai.local/v1/responses")
	t.Setenv("BEDROCK_TARGET_URL", "http://bedrock.local:9000/v1/messages")
	t.Setenv("PROXY_PORT", "9090")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Listen)
	bedrock, _ := cfg.Target(config.ProviderBedrock)
	assert.Equal(t, "bedrock.local:9000", bedrock.Host())
	openai, _ := cfg.Target(config.ProviderOpenAI)
	assert.Equal(t, "http://openai.local/v1/responses", openai.String())
}

func TestLoadFileThenEnvPrecedence(t *testing.T) {
	clearEnv(t)
	t.Setenv("UPSTREAM_HOST", "file.example.com")
	t.Setenv("OPENAI_TARGET_URL", "https://env.example.com/o")
	cfgPath := writeTempConfig(t, `
listen: 127.0.0.1:7000
targets:
  anthropic: https://${UPSTREAM_HOST}/a
  openai: https://file.example.com/o
upstream_timeout: 45s
strict_paths: true
expose_error_details: false
model_aliases:
  mini: gpt-5-mini-2025-08-07
log:
  level: debug
`)

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:7000", cfg.Listen)
	assert.Equal(t, 45*time.Second, cfg.UpstreamTimeout)
	assert.True(t, cfg.StrictPaths)
	assert.False(t, cfg.ShouldExposeErrorDetails())
	assert.Equal(t, []string{"mini"}, cfg.AliasNames())
	assert.Equal(t, "debug", cfg.Log.Level)

	anthropic, _ := cfg.Target(config.ProviderAnthropic)
	assert.Equal(t, "https://file.example.com/a", anthropic.String())
	openai, _ := cfg.Target(config.ProviderOpenAI)
	assert.Equal(t, "https://env.example.com/o", openai.String())
	bedrock, _ := cfg.Target(config.ProviderBedrock)
	assert.Equal(t, config.DefaultBedrockTargetURL, bedrock.String())
}

func TestLoadListenOverridesPort(t *testing.T) {
	clearEnv(t)
	t.Setenv("PROXY_PORT", "9090")
	t.Setenv("PROXY_LISTEN", "0.0.0.0:8181")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:8181", cfg.Listen)
}

func TestLoadFailsOnInvalidTargetScheme(t *testing.T) {
	clearEnv(t)
	t.Setenv("ANTHROPIC_TARGET_URL", "ftp://invalid")

	_, err := config.Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must use http/https")
}

func TestLoadFailsOnRelativeTarget(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_TARGET_URL", "/v1/responses")

	_, err := config.Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "targets.openai is invalid")
}

func TestLoadFailsOnInvalidEnvValues(t *testing.T) {
	cases := map[string]string{
		"PROXY_UPSTREAM_TIMEOUT":     "soon",
		"PROXY_MAX_BODY_BYTES":       "lots",
		"PROXY_STRICT_PATHS":         "maybe",
		"PROXY_EXPOSE_ERROR_DETAILS": "sometimes",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, value)

			_, err := config.Load("")
			require.Error(t, err)
			assert.Contains(t, err.Error(), key)
		})
	}
}

func TestLoadFailsOnUnknownLogLevel(t *testing.T) {
	clearEnv(t)
	t.Setenv("LOG_LEVEL", "chatty")

	_, err := config.Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log.level")
}

func TestLoadFailsOnMissingFile(t *testing.T) {
	clearEnv(t)

	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(strings.TrimSpace(content)), 0o600))
	return path
}
