package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sha1n/snipsearch/internal/index"
)

// Transport constants
const (
	TransportStdio = "stdio"
	TransportSSE   = "sse"
)

// EnvPrefix is the prefix of every environment variable the server reads.
const EnvPrefix = "SNIPSEARCH"

// CorpusSettings locates the snippet corpus
type CorpusSettings struct {
	Path string `mapstructure:"path"`
}

// IndexSettings configures the on-disk facet indexes
type IndexSettings struct {
	Dir     string `mapstructure:"dir"`
	Rebuild bool   `mapstructure:"rebuild"`
	// RebuildFacets purges only the named facets; Rebuild covers every facet.
	RebuildFacets []string      `mapstructure:"rebuild_facets"`
	LockTimeout   time.Duration `mapstructure:"lock_timeout"`
}

// ModelSettings configures the embedding model and tokenizer
type ModelSettings struct {
	Dir            string `mapstructure:"dir"`
	File           string `mapstructure:"file"`
	TokenizerFile  string `mapstructure:"tokenizer_file"`
	RuntimeLibrary string `mapstructure:"runtime_library"`
	OutputName     string `mapstructure:"output_name"`
	MaxLength      int    `mapstructure:"max_length"`
	BatchSize      int    `mapstructure:"batch_size"`
	QueryCacheSize int    `mapstructure:"query_cache_size"`
}

// SearchSettings configures semantic search defaults
type SearchSettings struct {
	DefaultTopK int `mapstructure:"default_top_k"`
	MaxTopK     int `mapstructure:"max_top_k"`
}

// ExplainSettings configures the code explanation endpoint
type ExplainSettings struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Enabled reports whether an API key is configured.
func (e ExplainSettings) Enabled() bool {
	return e.APIKey != ""
}

// Settings application settings
type Settings struct {
	Transport string          `mapstructure:"transport"`
	Host      string          `mapstructure:"host"`
	Port      int             `mapstructure:"port"`
	Corpus    CorpusSettings  `mapstructure:"corpus"`
	Index     IndexSettings   `mapstructure:"index"`
	Model     ModelSettings   `mapstructure:"model"`
	Search    SearchSettings  `mapstructure:"search"`
	Explain   ExplainSettings `mapstructure:"explain"`
}

// binding ties a settings key to its CLI flag.
// The environment variable is derived from the key.
type binding struct {
	key  string
	flag string
}

var bindings = []binding{
	{"transport", "transport"},
	{"host", "host"},
	{"port", "port"},
	{"corpus.path", "corpus"},
	{"index.dir", "index-dir"},
	{"index.rebuild", "rebuild"},
	{"index.rebuild_facets", "rebuild-facet"},
	{"index.lock_timeout", "index-lock-timeout"},
	{"model.dir", "model-dir"},
	{"model.file", "model-file"},
	{"model.tokenizer_file", "tokenizer-file"},
	{"model.runtime_library", "onnxruntime-lib"},
	{"model.output_name", "model-output"},
	{"model.max_length", "max-length"},
	{"model.batch_size", "batch-size"},
	{"model.query_cache_size", "query-cache-size"},
	{"search.default_top_k", "top-k"},
	{"search.max_top_k", "max-top-k"},
	{"explain.api_key", "explain-api-key"},
	{"explain.base_url", "explain-base-url"},
	{"explain.model", "explain-model"},
	{"explain.timeout", "explain-timeout"},
}

// EnvVar returns the environment variable name for a settings key.
func EnvVar(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// LoadSettings loads settings from environment variables and optional .env file
func LoadSettings() (*Settings, error) {
	return LoadSettingsWithFlags(nil)
}

// LoadSettingsWithFlags loads settings with optional CLI flag overrides.
// Priority: CLI flags > environment variables > .env file > defaults.
// If flags is nil, only env vars and defaults are used.
func LoadSettingsWithFlags(flags *pflag.FlagSet) (*Settings, error) {
	v := viper.New()

	// Default values
	v.SetDefault("transport", TransportStdio)
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 8080)

	v.SetDefault("corpus.path", "snippets.jsonl")

	v.SetDefault("index.dir", "indices")
	v.SetDefault("index.rebuild", false)
	v.SetDefault("index.rebuild_facets", []string{})
	v.SetDefault("index.lock_timeout", 5*time.Minute)

	v.SetDefault("model.dir", "onnx_model")
	v.SetDefault("model.file", "model.onnx")
	v.SetDefault("model.tokenizer_file", "tokenizer.json")
	v.SetDefault("model.runtime_library", "")
	v.SetDefault("model.output_name", "")
	v.SetDefault("model.max_length", 256)
	v.SetDefault("model.batch_size", 32)
	v.SetDefault("model.query_cache_size", 1024)

	v.SetDefault("search.default_top_k", 3)
	v.SetDefault("search.max_top_k", 100)

	v.SetDefault("explain.api_key", "")
	v.SetDefault("explain.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("explain.model", "kwaipilot/kat-coder-pro:free")
	v.SetDefault("explain.timeout", 60*time.Second)

	// Environment variables
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, b := range bindings {
		_ = v.BindEnv(b.key, EnvVar(b.key))
	}

	// Bind CLI flags if provided (highest priority)
	if flags != nil {
		for _, b := range bindings {
			if f := flags.Lookup(b.flag); f != nil {
				_ = v.BindPFlag(b.key, f)
			}
		}
	}

	// Helper to look for .env file
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // Ignore error if .env doesn't exist

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, err
	}

	settings.Corpus.Path = expandHomeDir(settings.Corpus.Path)
	settings.Index.Dir = expandHomeDir(settings.Index.Dir)
	settings.Model.Dir = expandHomeDir(settings.Model.Dir)
	settings.Model.RuntimeLibrary = expandHomeDir(settings.Model.RuntimeLibrary)

	return &settings, nil
}

// expandHomeDir expands ~ to the user's home directory
func expandHomeDir(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	if path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return home
	}
	return path
}

// ValidateSettings checks for invalid or conflicting configurations.
func ValidateSettings(s *Settings) error {
	// Validate transport type
	switch s.Transport {
	case TransportStdio, TransportSSE:
		// valid
	default:
		return errors.New("transport must be 'stdio' or 'sse', got: " + s.Transport)
	}

	if s.Transport == TransportSSE && (s.Port <= 0 || s.Port > 65535) {
		return fmt.Errorf("port must be between 1 and 65535, got: %d", s.Port)
	}

	if s.Corpus.Path == "" {
		return errors.New("corpus path cannot be empty")
	}
	if s.Index.Dir == "" {
		return errors.New("index-dir cannot be empty")
	}
	if s.Index.LockTimeout <= 0 {
		return errors.New("index-lock-timeout must be positive")
	}
	for _, name := range s.Index.RebuildFacets {
		if _, err := index.ParseFacet(name); err != nil {
			return fmt.Errorf("rebuild-facet: %w", err)
		}
	}

	if err := validateModelSettings(&s.Model); err != nil {
		return err
	}

	if s.Search.DefaultTopK <= 0 {
		return errors.New("top-k must be positive")
	}
	if s.Search.MaxTopK <= 0 {
		return errors.New("max-top-k must be positive")
	}
	if s.Search.DefaultTopK > s.Search.MaxTopK {
		return fmt.Errorf("top-k (%d) cannot exceed max-top-k (%d)", s.Search.DefaultTopK, s.Search.MaxTopK)
	}

	if s.Explain.Enabled() {
		if s.Explain.BaseURL == "" {
			return errors.New("explain-base-url cannot be empty when an explain API key is set")
		}
		if s.Explain.Timeout <= 0 {
			return errors.New("explain-timeout must be positive")
		}
	}

	return nil
}

// validateModelSettings validates the model configuration
func validateModelSettings(m *ModelSettings) error {
	if m.File == "" {
		return errors.New("model-file cannot be empty")
	}
	if m.TokenizerFile == "" {
		return errors.New("tokenizer-file cannot be empty")
	}
	if m.MaxLength <= 0 {
		return errors.New("max-length must be positive")
	}
	if m.BatchSize <= 0 {
		return errors.New("batch-size must be positive")
	}
	if m.QueryCacheSize <= 0 {
		return errors.New("query-cache-size must be positive")
	}
	return nil
}
