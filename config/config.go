// Package config loads the module configuration from defaults, an
// optional YAML file, and environment variable overrides, in that
// order of precedence.
//
//	cfg, err := config.Load("memu.yaml")
//
// Environment overrides use the MEMU prefix joined with the struct's
// env tags, e.g. MEMU_LLM_MODEL or MEMU_STORE_DIR.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override key.
const EnvPrefix = "MEMU"

// Config is the full module configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" env:"STORE"`
	Embedding  EmbeddingConfig  `yaml:"embedding" env:"EMBEDDING"`
	LLM        LLMConfig        `yaml:"llm" env:"LLM"`
	Agent      AgentConfig      `yaml:"agent" env:"AGENT"`
	Transcript TranscriptConfig `yaml:"transcript" env:"TRANSCRIPT"`
	Log        LogConfig        `yaml:"log" env:"LOG"`
}

// StoreConfig locates the on-disk memory store.
type StoreConfig struct {
	// Dir is the root directory holding one subdirectory per category.
	Dir string `yaml:"dir" env:"DIR"`
}

// EmbeddingConfig selects and tunes the embedder.
type EmbeddingConfig struct {
	// Provider is "mock" or "onnx".
	Provider   string        `yaml:"provider" env:"PROVIDER"`
	Dimensions int           `yaml:"dimensions" env:"DIMENSIONS"`
	Timeout    time.Duration `yaml:"timeout" env:"TIMEOUT"`
	MaxRetries int           `yaml:"max_retries" env:"MAX_RETRIES"`

	// ModelPath and TokenizerPath are used by the onnx provider only.
	ModelPath     string `yaml:"model_path" env:"MODEL_PATH"`
	TokenizerPath string `yaml:"tokenizer_path" env:"TOKENIZER_PATH"`
}

// LLMConfig tunes the Claude completer.
type LLMConfig struct {
	Model     string        `yaml:"model" env:"MODEL"`
	MaxTokens int64         `yaml:"max_tokens" env:"MAX_TOKENS"`
	Timeout   time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// AgentConfig tunes the memory agent loop.
type AgentConfig struct {
	MaxIterations      int `yaml:"max_iterations" env:"MAX_ITERATIONS"`
	ConversationWindow int `yaml:"conversation_window" env:"CONVERSATION_WINDOW"`
	RecallK            int `yaml:"recall_k" env:"RECALL_K"`
}

// TranscriptConfig locates the optional turn feed.
type TranscriptConfig struct {
	// URL of the websocket feed; empty disables the feed.
	URL string `yaml:"url" env:"URL"`
}

// LogConfig tunes logging output.
type LogConfig struct {
	// Level is debug, info, warn, or error.
	Level string `yaml:"level" env:"LEVEL"`
	// Development switches to the human-readable console encoder.
	Development bool `yaml:"development" env:"DEVELOPMENT"`
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		Store: StoreConfig{Dir: "memories"},
		Embedding: EmbeddingConfig{
			Provider:   "mock",
			Dimensions: 384,
			Timeout:    10 * time.Second,
			MaxRetries: 3,
		},
		LLM: LLMConfig{
			Model:     "claude-sonnet-4-20250514",
			MaxTokens: 4096,
			Timeout:   60 * time.Second,
		},
		Agent: AgentConfig{
			MaxIterations:      8,
			ConversationWindow: 20,
			RecallK:            5,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load builds the configuration: defaults, then the YAML file at path
// if it exists, then environment overrides. A missing file is fine; a
// malformed one is not.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Defaults plus env only.
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := applyEnv(reflect.ValueOf(cfg).Elem(), EnvPrefix); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Embedding.Provider {
	case "mock", "onnx":
	default:
		return fmt.Errorf("unknown embedding provider %q", c.Embedding.Provider)
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding dimensions must be positive, got %d", c.Embedding.Dimensions)
	}
	if c.Store.Dir == "" {
		return fmt.Errorf("store dir must not be empty")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}
	return nil
}

// applyEnv walks the struct and overrides any field whose env key is
// set. Keys join the prefix and each level's env tag with underscores.
func applyEnv(v reflect.Value, prefix string) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		tag := t.Field(i).Tag.Get("env")
		if tag == "" || tag == "-" {
			continue
		}
		key := prefix + "_" + tag

		if field.Kind() == reflect.Struct {
			if err := applyEnv(field, key); err != nil {
				return err
			}
			continue
		}

		raw, ok := os.LookupEnv(key)
		if !ok || raw == "" {
			continue
		}
		if err := setField(field, raw); err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
	}
	return nil
}

func setField(field reflect.Value, raw string) error {
	if !field.CanSet() {
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Int, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(raw)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
			return nil
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		field.SetBool(b)
	default:
		return fmt.Errorf("unsupported field kind %s", field.Kind())
	}
	return nil
}
