// Package config loads tendril settings from a YAML file with TENDRIL_*
// environment overrides. Values not present in either keep their defaults.
package config

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aretw0/tendril/pkg/domain"
	"github.com/aretw0/tendril/pkg/guardrail"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
)

// Config is the full runtime configuration.
type Config struct {
	Model        domain.ModelConfig `mapstructure:"model"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Agent        AgentConfig        `mapstructure:"agent"`
	Guardrails   []guardrail.Policy `mapstructure:"guardrails"`
	Server       ServerConfig       `mapstructure:"server"`
	Store        StoreConfig        `mapstructure:"store"`
	Log          LogConfig          `mapstructure:"log"`
	Anthropic    AnthropicConfig    `mapstructure:"anthropic"`
}

// OrchestratorConfig holds engine and runner settings.
type OrchestratorConfig struct {
	TerminalTool   string `mapstructure:"terminalTool"`
	Guardrails     bool   `mapstructure:"guardrails"`
	ChunkedAnswers bool   `mapstructure:"chunkedAnswers"`
	MaxSteps       int    `mapstructure:"maxSteps"`
}

// AgentConfig describes the agent new sessions are created with.
type AgentConfig struct {
	Instruction      string `mapstructure:"instruction"`
	ToolsFile        string `mapstructure:"toolsFile"`
	GuardrailID      string `mapstructure:"guardrailId"`
	GuardrailVersion string `mapstructure:"guardrailVersion"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout"`
}

// StoreConfig selects and configures the session store.
type StoreConfig struct {
	Driver string      `mapstructure:"driver"`
	Redis  RedisConfig `mapstructure:"redis"`
	// EncryptionKey is a 32-byte AES key, hex or base64 encoded. Empty disables encryption.
	EncryptionKey string `mapstructure:"encryptionKey"`
	// FallbackKeys are previous keys still accepted for decryption.
	FallbackKeys []string `mapstructure:"fallbackKeys"`
	// PIIKeys are regular expressions; matching attribute values are masked before saving.
	PIIKeys []string `mapstructure:"piiKeys"`
	LockTTL time.Duration `mapstructure:"lockTTL"`
}

// RedisConfig holds the Redis connection settings.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Prefix   string        `mapstructure:"prefix"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// LogConfig selects log level and format (text or json).
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// AnthropicConfig configures the model invoker. The API key is read by the
// SDK from ANTHROPIC_API_KEY when empty.
type AnthropicConfig struct {
	APIKey  string `mapstructure:"apiKey"`
	BaseURL string `mapstructure:"baseURL"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Model: domain.DefaultModelConfig(),
		Orchestrator: OrchestratorConfig{
			TerminalTool: domain.DefaultTerminalTool,
			MaxSteps:     16,
		},
		Agent: AgentConfig{
			Instruction: "You are a helpful assistant.",
			ToolsFile:   "tools.yaml",
		},
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Store: StoreConfig{
			Driver:  DriverMemory,
			LockTTL: 30 * time.Second,
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "tendril:session:",
			},
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// envOverrides maps environment variables to config paths.
var envOverrides = map[string]string{
	"TENDRIL_MODEL_ID":           "model.modelId",
	"TENDRIL_MAX_TOKENS":         "model.maxTokens",
	"TENDRIL_TERMINAL_TOOL":      "orchestrator.terminalTool",
	"TENDRIL_GUARDRAILS":         "orchestrator.guardrails",
	"TENDRIL_CHUNKED_ANSWERS":    "orchestrator.chunkedAnswers",
	"TENDRIL_MAX_STEPS":          "orchestrator.maxSteps",
	"TENDRIL_INSTRUCTION":        "agent.instruction",
	"TENDRIL_TOOLS_FILE":         "agent.toolsFile",
	"TENDRIL_SERVER_ADDR":        "server.addr",
	"TENDRIL_STORE_DRIVER":       "store.driver",
	"TENDRIL_REDIS_ADDR":         "store.redis.addr",
	"TENDRIL_REDIS_PASSWORD":     "store.redis.password",
	"TENDRIL_REDIS_DB":           "store.redis.db",
	"TENDRIL_REDIS_TTL":          "store.redis.ttl",
	"TENDRIL_ENCRYPTION_KEY":     "store.encryptionKey",
	"TENDRIL_LOG_LEVEL":          "log.level",
	"TENDRIL_LOG_FORMAT":         "log.format",
	"TENDRIL_ANTHROPIC_BASE_URL": "anthropic.baseURL",
}

// Load reads the file at path (if non-empty and present), applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	raw := map[string]any{}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &raw); err != nil {
				return Config{}, fmt.Errorf("failed to parse %s: %w", path, err)
			}
			if raw == nil {
				raw = map[string]any{}
			}
		case os.IsNotExist(err):
		default:
			return Config{}, fmt.Errorf("failed to read %s: %w", path, err)
		}
	}

	for env, key := range envOverrides {
		if val, ok := os.LookupEnv(env); ok {
			setPath(raw, key, val)
		}
	}

	cfg := Default()
	if err := Decode(raw, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Decode decodes a generic map onto out, converting durations and scalars from strings.
func Decode(raw map[string]any, out *Config) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(raw); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func setPath(m map[string]any, path, val string) {
	parts := strings.Split(path, ".")
	for _, p := range parts[:len(parts)-1] {
		next, ok := m[p].(map[string]any)
		if !ok {
			next = map[string]any{}
			m[p] = next
		}
		m = next
	}
	m[parts[len(parts)-1]] = val
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case DriverMemory, DriverRedis:
	default:
		return fmt.Errorf("unknown store driver %q (want %s or %s)", c.Store.Driver, DriverMemory, DriverRedis)
	}
	if c.Orchestrator.MaxSteps < 1 {
		return fmt.Errorf("orchestrator.maxSteps must be positive")
	}
	if c.Store.EncryptionKey != "" {
		if _, err := ParseKey(c.Store.EncryptionKey); err != nil {
			return fmt.Errorf("store.encryptionKey: %w", err)
		}
	}
	for i, k := range c.Store.FallbackKeys {
		if _, err := ParseKey(k); err != nil {
			return fmt.Errorf("store.fallbackKeys[%d]: %w", i, err)
		}
	}
	if c.Orchestrator.Guardrails && c.Agent.GuardrailID != "" {
		found := false
		for _, p := range c.Guardrails {
			found = found || p.ID == c.Agent.GuardrailID
		}
		if !found {
			return fmt.Errorf("agent.guardrailId %q has no policy under guardrails", c.Agent.GuardrailID)
		}
	}
	return nil
}

// ParseKey decodes a 32-byte key given in hex or base64.
func ParseKey(s string) ([]byte, error) {
	if key, err := hex.DecodeString(s); err == nil && len(key) == 32 {
		return key, nil
	}
	if key, err := base64.StdEncoding.DecodeString(s); err == nil && len(key) == 32 {
		return key, nil
	}
	return nil, fmt.Errorf("key must be 32 bytes, hex or base64 encoded")
}

// AgentConfiguration returns the agent new sessions start with.
func (c Config) AgentConfiguration() domain.AgentConfiguration {
	agent := domain.AgentConfiguration{
		Instruction:    c.Agent.Instruction,
		DefaultModelID: c.Model.ModelID,
	}
	if c.Agent.GuardrailID != "" {
		agent.Guardrails = &domain.GuardrailConfiguration{
			GuardrailIdentifier: c.Agent.GuardrailID,
			GuardrailVersion:    c.Agent.GuardrailVersion,
		}
	}
	return agent
}
