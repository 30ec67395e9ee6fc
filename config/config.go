// Package config loads engine configuration from file and environment using
// viper. Every field has a working default so the zero config runs.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration for the engine and its supporting services.
type Config struct {
	LLM        LLMConfig        `mapstructure:"llm"`
	Retrieval  RetrievalConfig  `mapstructure:"retrieval"`
	Agent      AgentConfig      `mapstructure:"agent"`
	Guardrails GuardrailsConfig `mapstructure:"guardrails"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// LLMConfig selects and tunes the reasoning model provider.
type LLMConfig struct {
	Provider    string  `mapstructure:"provider"` // openai or anthropic
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	APIKey      string  `mapstructure:"api_key"`
}

// RetrievalConfig tunes the document pipeline.
type RetrievalConfig struct {
	Enabled             bool    `mapstructure:"enabled"`
	TopK                int     `mapstructure:"top_k"`
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
	ChunkSize           int     `mapstructure:"chunk_size"`
	ChunkOverlap        int     `mapstructure:"chunk_overlap"`
	EmbeddingModel      string  `mapstructure:"embedding_model"`
	EmbeddingDimension  int     `mapstructure:"embedding_dimension"`
	ContextTokenBudget  int     `mapstructure:"context_token_budget"`
}

// AgentConfig bounds a single turn of the engine.
type AgentConfig struct {
	MaxIterations      int           `mapstructure:"max_iterations"`
	ReasoningTimeout   time.Duration `mapstructure:"reasoning_timeout"`
	ToolTimeout        time.Duration `mapstructure:"tool_timeout"`
	MaxParallelTools   int           `mapstructure:"max_parallel_tools"`
	RetryBackoff       time.Duration `mapstructure:"retry_backoff"`
	MaxHistoryMessages int           `mapstructure:"max_history_messages"`
	SystemPrompt       string        `mapstructure:"system_prompt"`
}

// GuardrailsConfig controls the safety filter.
type GuardrailsConfig struct {
	Enabled          bool    `mapstructure:"enabled"`
	MaxToxicityScore float64 `mapstructure:"max_toxicity_score"`
	PIIDetection     bool    `mapstructure:"pii_detection"`
}

// CheckpointConfig selects the thread persistence backend.
type CheckpointConfig struct {
	Backend string `mapstructure:"backend"` // memory or libsql
	Path    string `mapstructure:"path"`    // database file for libsql
}

// LoggingConfig controls structured log output.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or text
}

// Load reads configuration from the given file (optional) and the
// AIBACKEND_* environment, layered over defaults. A missing file is not an
// error; a malformed one is.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("AIBACKEND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Default returns the built-in configuration without touching disk or env.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("default config unmarshal: %v", err))
	}
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.max_tokens", 4096)
	v.SetDefault("llm.api_key", "")

	v.SetDefault("retrieval.enabled", true)
	v.SetDefault("retrieval.top_k", 5)
	v.SetDefault("retrieval.similarity_threshold", 0.7)
	v.SetDefault("retrieval.chunk_size", 1000)
	v.SetDefault("retrieval.chunk_overlap", 200)
	v.SetDefault("retrieval.embedding_model", "text-embedding-3-small")
	v.SetDefault("retrieval.embedding_dimension", 1536)
	v.SetDefault("retrieval.context_token_budget", 2000)

	v.SetDefault("agent.max_iterations", 10)
	v.SetDefault("agent.reasoning_timeout", "60s")
	v.SetDefault("agent.tool_timeout", "15s")
	v.SetDefault("agent.max_parallel_tools", 4)
	v.SetDefault("agent.retry_backoff", "100ms")
	v.SetDefault("agent.max_history_messages", 20)
	v.SetDefault("agent.system_prompt", "")

	v.SetDefault("guardrails.enabled", true)
	v.SetDefault("guardrails.max_toxicity_score", 0.5)
	v.SetDefault("guardrails.pii_detection", true)

	v.SetDefault("checkpoint.backend", "memory")
	v.SetDefault("checkpoint.path", "checkpoints.db")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
