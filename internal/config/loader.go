package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"llamachat/internal/chattemplate"
	"llamachat/internal/conversation"
	"llamachat/internal/engine"
)

// Config holds runtime parameters for the daemon and the terminal client.
// Zero values mean "unspecified" and are replaced by ApplyDefaults.
type Config struct {
	Server   ServerConfig          `json:"server" yaml:"server" toml:"server"`
	Engine   EngineConfig          `json:"engine" yaml:"engine" toml:"engine"`
	Sampling engine.SamplingConfig `json:"sampling" yaml:"sampling" toml:"sampling"`
	Chat     ChatConfig            `json:"chat" yaml:"chat" toml:"chat"`
	Logging  LoggingConfig         `json:"logging" yaml:"logging" toml:"logging"`
}

// ServerConfig configures the HTTP daemon.
type ServerConfig struct {
	Addr               string   `json:"addr" yaml:"addr" toml:"addr"`
	MaxBodyBytes       int64    `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
	StreamIntervalMS   int      `json:"stream_interval_ms" yaml:"stream_interval_ms" toml:"stream_interval_ms"`
	RequestTimeoutSecs int      `json:"request_timeout_seconds" yaml:"request_timeout_seconds" toml:"request_timeout_seconds"`
	ConversationTTL    string   `json:"conversation_ttl" yaml:"conversation_ttl" toml:"conversation_ttl"`
	MaxConversations   int      `json:"max_conversations" yaml:"max_conversations" toml:"max_conversations"`
	MaxQueueDepth      int      `json:"max_queue_depth" yaml:"max_queue_depth" toml:"max_queue_depth"`
	MaxWait            string   `json:"max_wait" yaml:"max_wait" toml:"max_wait"`
	CORSEnabled        bool     `json:"cors_enabled" yaml:"cors_enabled" toml:"cors_enabled"`
	CORSOrigins        []string `json:"cors_origins,omitempty" yaml:"cors_origins,omitempty" toml:"cors_origins,omitempty"`
}

// EngineConfig configures model loading.
type EngineConfig struct {
	ModelPath     string `json:"model_path" yaml:"model_path" toml:"model_path"`
	ModelsDir     string `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	ContextSize   int    `json:"context_size" yaml:"context_size" toml:"context_size"`
	BatchSize     int    `json:"batch_size" yaml:"batch_size" toml:"batch_size"`
	Threads       int    `json:"threads" yaml:"threads" toml:"threads"`
	GPULayers     int    `json:"gpu_layers" yaml:"gpu_layers" toml:"gpu_layers"`
	KeepKQVOnHost bool   `json:"keep_kqv_on_host" yaml:"keep_kqv_on_host" toml:"keep_kqv_on_host"`
}

// ChatConfig configures conversations.
type ChatConfig struct {
	Template         string `json:"template" yaml:"template" toml:"template"`
	SystemPrompt     string `json:"system_prompt" yaml:"system_prompt" toml:"system_prompt"`
	HistoryLimit     int    `json:"history_limit" yaml:"history_limit" toml:"history_limit"`
	SummaryInterval  int    `json:"summary_interval" yaml:"summary_interval" toml:"summary_interval"`
	ReplyMaxTokens   int    `json:"reply_max_tokens" yaml:"reply_max_tokens" toml:"reply_max_tokens"`
	SummaryMaxTokens int    `json:"summary_max_tokens" yaml:"summary_max_tokens" toml:"summary_max_tokens"`
	HistoryDB        string `json:"history_db" yaml:"history_db" toml:"history_db"`
}

// LoggingConfig configures the root logger.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level" toml:"level"`
	Format string `json:"format" yaml:"format" toml:"format"`
	File   string `json:"file" yaml:"file" toml:"file"`
}

// Defaults for unset fields.
const (
	DefaultAddr             = ":8080"
	DefaultMaxBodyBytes     = 1 << 20
	DefaultStreamIntervalMS = 16
	DefaultConversationTTL  = "30m"
	DefaultMaxConversations = 256
	DefaultMaxQueueDepth    = 8
	DefaultMaxWait          = "30s"
	DefaultModelsDir        = "~/models/llm"
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "console"
)

// Default returns a fully populated configuration.
func Default() Config {
	var c Config
	c.ApplyDefaults()
	return c
}

// ApplyDefaults fills every unset field.
func (c *Config) ApplyDefaults() {
	s := &c.Server
	if s.Addr == "" {
		s.Addr = DefaultAddr
	}
	if s.MaxBodyBytes <= 0 {
		s.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if s.StreamIntervalMS <= 0 {
		s.StreamIntervalMS = DefaultStreamIntervalMS
	}
	if s.ConversationTTL == "" {
		s.ConversationTTL = DefaultConversationTTL
	}
	if s.MaxConversations <= 0 {
		s.MaxConversations = DefaultMaxConversations
	}
	if s.MaxQueueDepth <= 0 {
		s.MaxQueueDepth = DefaultMaxQueueDepth
	}
	if s.MaxWait == "" {
		s.MaxWait = DefaultMaxWait
	}

	e := &c.Engine
	if e.ModelsDir == "" {
		e.ModelsDir = DefaultModelsDir
	}
	if e.ContextSize <= 0 {
		e.ContextSize = engine.DefaultContextSize
	}

	if c.Sampling.Temperature == 0 && c.Sampling.TopP == 0 && c.Sampling.TopK == 0 && c.Sampling.MaxTokens == 0 {
		stop := c.Sampling.StopWords
		c.Sampling = engine.DefaultSampling()
		c.Sampling.StopWords = stop
	}

	ch := &c.Chat
	if ch.Template == "" {
		ch.Template = chattemplate.Default
	}
	if ch.SystemPrompt == "" {
		ch.SystemPrompt = conversation.DefaultSystemPrompt
	}
	if ch.HistoryLimit <= 0 {
		ch.HistoryLimit = conversation.DefaultHistoryLimit
	}
	if ch.SummaryInterval <= 0 {
		ch.SummaryInterval = conversation.DefaultSummaryInterval
	}
	if ch.ReplyMaxTokens <= 0 {
		ch.ReplyMaxTokens = conversation.DefaultReplyMaxTokens
	}
	if ch.SummaryMaxTokens <= 0 {
		ch.SummaryMaxTokens = conversation.DefaultSummaryMaxTokens
	}

	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
}

// Validate checks values that cannot be defaulted.
func (c Config) Validate() error {
	if _, err := c.Server.TTL(); err != nil {
		return fmt.Errorf("server.conversation_ttl: %w", err)
	}
	if _, err := c.Server.Wait(); err != nil {
		return fmt.Errorf("server.max_wait: %w", err)
	}
	if err := c.Sampling.Validate(); err != nil {
		return fmt.Errorf("sampling: %w", err)
	}
	if _, err := chattemplate.Lookup(c.Chat.Template); err != nil {
		return fmt.Errorf("chat.template: %w", err)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format: unsupported %q", c.Logging.Format)
	}
	return nil
}

// TTL parses ConversationTTL.
func (s ServerConfig) TTL() (time.Duration, error) { return time.ParseDuration(s.ConversationTTL) }

// Wait parses MaxWait.
func (s ServerConfig) Wait() (time.Duration, error) { return time.ParseDuration(s.MaxWait) }

// StreamInterval returns the stream poll period.
func (s ServerConfig) StreamInterval() time.Duration {
	return time.Duration(s.StreamIntervalMS) * time.Millisecond
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// EnvPrefix prefixes every environment override.
const EnvPrefix = "LLAMACHAT_"

// ApplyEnv overrides fields from LLAMACHAT_* variables read through lookup
// (os.LookupEnv when nil). Malformed numbers are reported, not ignored.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	var firstErr error
	num := func(key string, dst *int) {
		v, ok := lookup(EnvPrefix + key)
		if !ok || v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
			}
			return
		}
		*dst = n
	}
	str("ADDR", &c.Server.Addr)
	str("MODEL", &c.Engine.ModelPath)
	str("MODELS_DIR", &c.Engine.ModelsDir)
	num("CTX_SIZE", &c.Engine.ContextSize)
	num("THREADS", &c.Engine.Threads)
	num("GPU_LAYERS", &c.Engine.GPULayers)
	str("TEMPLATE", &c.Chat.Template)
	str("HISTORY_DB", &c.Chat.HistoryDB)
	str("LOG_LEVEL", &c.Logging.Level)
	str("LOG_FORMAT", &c.Logging.Format)
	str("LOG_FILE", &c.Logging.File)
	return firstErr
}
