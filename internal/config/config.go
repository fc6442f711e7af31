package config

import (
	"fmt"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderBedrock   = "bedrock"

	DefaultAnthropicTargetURL = "https://app.factory.ai/api/llm/a/v1/messages"
	DefaultOpenAITargetURL    = "https://app.factory.ai/api/llm/o/v1/responses"
	DefaultBedrockTargetURL   = "https://app.factory.ai/api/llm/a/v1/messages"

	defaultPort            = "8000"
	defaultUpstreamTimeout = 300 * time.Second
	defaultMaxBodyBytes    = 32 << 20
	defaultLogLevel        = "info"
)

type Config struct {
	Listen               string            `yaml:"listen"`
	Targets              Targets           `yaml:"targets"`
	UpstreamTimeout      time.Duration     `yaml:"upstream_timeout"`
	MaxBodyBytes         int64             `yaml:"max_body_bytes"`
	StrictPaths          bool              `yaml:"strict_paths"`
	ExposeErrorDetails   *bool             `yaml:"expose_error_details"`
	ModelAliases         map[string]string `yaml:"model_aliases"`
	StripReasoningEffort []string          `yaml:"strip_reasoning_effort"`
	Log                  LogConfig         `yaml:"log"`

	targets map[string]Target
}

type Targets struct {
	Anthropic string `yaml:"anthropic"`
	OpenAI    string `yaml:"openai"`
	Bedrock   string `yaml:"bedrock"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Target is a provider's fixed upstream endpoint.
type Target struct {
	Name string
	URL  *url.URL
}

func (t Target) String() string {
	if t.URL == nil {
		return ""
	}
	return t.URL.String()
}

// Host is the value sent as the outbound Host header.
func (t Target) Host() string {
	if t.URL == nil {
		return ""
	}
	return t.URL.Host
}

// DefaultModelAliases is the alias table used when none is configured.
func DefaultModelAliases() map[string]string {
	return map[string]string{"gpt-5": "gpt-5-2025-08-07"}
}

// DefaultStripReasoningEffort lists the models whose reasoning.effort is
// removed when none are configured.
func DefaultStripReasoningEffort() []string {
	return []string{"gpt-5-codex"}
}

// Load builds the configuration from defaults, the optional YAML file at path,
// and finally the environment.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if strings.TrimSpace(path) != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}

		expanded := os.ExpandEnv(string(content))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return "", false
		}
		return strings.TrimSpace(v), true
	}

	if v, ok := get("ANTHROPIC_TARGET_URL"); ok {
		c.Targets.Anthropic = v
	}
	if v, ok := get("OPENAI_TARGET_URL"); ok {
		c.Targets.OpenAI = v
	}
	if v, ok := get("BEDROCK_TARGET_URL"); ok {
		c.Targets.Bedrock = v
	}

	if v, ok := get("PROXY_PORT"); ok {
		c.Listen = ":" + v
	}
	if v, ok := get("PROXY_LISTEN"); ok {
		c.Listen = v
	}

	if v, ok := get("PROXY_UPSTREAM_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("PROXY_UPSTREAM_TIMEOUT is invalid: %w", err)
		}
		c.UpstreamTimeout = d
	}
	if v, ok := get("PROXY_MAX_BODY_BYTES"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("PROXY_MAX_BODY_BYTES is invalid: %w", err)
		}
		c.MaxBodyBytes = n
	}
	if v, ok := get("PROXY_STRICT_PATHS"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("PROXY_STRICT_PATHS is invalid: %w", err)
		}
		c.StrictPaths = b
	}
	if v, ok := get("PROXY_EXPOSE_ERROR_DETAILS"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("PROXY_EXPOSE_ERROR_DETAILS is invalid: %w", err)
		}
		c.ExposeErrorDetails = &b
	}

	if v, ok := get("LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	if v, ok := get("LOG_FILE"); ok {
		c.Log.File = v
	}
	return nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.Listen) == "" {
		c.Listen = ":" + defaultPort
	}
	if strings.TrimSpace(c.Targets.Anthropic) == "" {
		c.Targets.Anthropic = DefaultAnthropicTargetURL
	}
	if strings.TrimSpace(c.Targets.OpenAI) == "" {
		c.Targets.OpenAI = DefaultOpenAITargetURL
	}
	if strings.TrimSpace(c.Targets.Bedrock) == "" {
		c.Targets.Bedrock = DefaultBedrockTargetURL
	}
	if c.UpstreamTimeout == 0 {
		c.UpstreamTimeout = defaultUpstreamTimeout
	}
	if c.MaxBodyBytes == 0 {
		c.MaxBodyBytes = defaultMaxBodyBytes
	}
	if c.ExposeErrorDetails == nil {
		expose := true
		c.ExposeErrorDetails = &expose
	}
	if c.ModelAliases == nil {
		c.ModelAliases = DefaultModelAliases()
	}
	if c.StripReasoningEffort == nil {
		c.StripReasoningEffort = DefaultStripReasoningEffort()
	}
	if strings.TrimSpace(c.Log.Level) == "" {
		c.Log.Level = defaultLogLevel
	}
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = 10
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = 5
	}
	if c.Log.MaxAgeDays == 0 {
		c.Log.MaxAgeDays = 30
	}
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Listen) == "" {
		return fmt.Errorf("listen is required")
	}

	raw := map[string]string{
		ProviderAnthropic: c.Targets.Anthropic,
		ProviderOpenAI:    c.Targets.OpenAI,
		ProviderBedrock:   c.Targets.Bedrock,
	}
	targets := make(map[string]Target, len(raw))
	for _, name := range []string{ProviderAnthropic, ProviderOpenAI, ProviderBedrock} {
		value := strings.TrimSpace(raw[name])
		if value == "" {
			return fmt.Errorf("targets.%s is required", name)
		}
		u, err := url.Parse(value)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("targets.%s is invalid: %s", name, value)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("targets.%s must use http/https", name)
		}
		targets[name] = Target{Name: name, URL: u}
	}

	if c.UpstreamTimeout < 0 {
		return fmt.Errorf("upstream_timeout must be positive")
	}
	if c.MaxBodyBytes < 0 {
		return fmt.Errorf("max_body_bytes must be positive")
	}

	for from, to := range c.ModelAliases {
		if strings.TrimSpace(from) == "" || strings.TrimSpace(to) == "" {
			return fmt.Errorf("model_aliases entries must be non-empty")
		}
	}

	switch strings.ToLower(strings.TrimSpace(c.Log.Level)) {
	case "debug", "info", "warn", "warning", "error", "":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error")
	}

	c.targets = targets
	return nil
}

// Target returns the upstream for a provider. Validate must have succeeded.
func (c *Config) Target(name string) (Target, bool) {
	t, ok := c.targets[name]
	return t, ok
}

func (c *Config) ShouldExposeErrorDetails() bool {
	return c.ExposeErrorDetails == nil || *c.ExposeErrorDetails
}

// AliasNames lists the configured model aliases in stable order.
func (c *Config) AliasNames() []string {
	names := make([]string, 0, len(c.ModelAliases))
	for name := range c.ModelAliases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
