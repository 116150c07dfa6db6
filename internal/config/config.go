package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/newsdex/internal/domain/entity"
)

// Config holds the newsdex service configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	NER       NERConfig       `yaml:"ner"`
	OCR       OCRConfig       `yaml:"ocr"`
	Rectify   RectifyConfig   `yaml:"rectify"`
	Search    SearchConfig    `yaml:"search"`
	Cache     CacheConfig     `yaml:"cache"`
	Aggregate AggregateConfig `yaml:"aggregate"`
	Auth      AuthConfig      `yaml:"auth"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds Redis connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// StorageConfig holds key layout settings.
type StorageConfig struct {
	KeyPrefix string `yaml:"key_prefix"`
	IndexName string `yaml:"index_name"`
}

// EmbeddingConfig holds the embedding provider used by the vector cache.
type EmbeddingConfig struct {
	Provider    string `yaml:"provider"`
	APIKey      string `yaml:"api_key"`
	BaseURL     string `yaml:"base_url"`
	Model       string `yaml:"model"`
	Dimensions  int    `yaml:"dimensions"`
	CacheTTLSec int    `yaml:"cache_ttl_sec"` // 0 = keep cached vectors forever
}

// LLMConfig holds the chat-completion provider used for query improvement and NER.
type LLMConfig struct {
	Enabled         bool    `yaml:"enabled"`
	APIKey          string  `yaml:"api_key"`
	BaseURL         string  `yaml:"base_url"`
	Model           string  `yaml:"model"`
	ConfidenceFloor float64 `yaml:"confidence_floor"`
	TimeoutSec      int     `yaml:"timeout_sec"`
	RatePerSec      float64 `yaml:"rate_per_sec"`
	Burst           int     `yaml:"burst"`
}

// NERConfig selects the entity extractor.
type NERConfig struct {
	Provider  string `yaml:"provider"` // gazetteer | llm
	Gazetteer string `yaml:"gazetteer_path"`
}

// OCRConfig holds the external text extraction tools.
type OCRConfig struct {
	TesseractBin string `yaml:"tesseract_bin"`
	PdftotextBin string `yaml:"pdftotext_bin"`
	PdftoppmBin  string `yaml:"pdftoppm_bin"` // rasterizes scanned PDFs for tesseract
	Language     string `yaml:"language"`
	TimeoutSec   int    `yaml:"timeout_sec"`
}

// RectifyConfig holds rectification settings.
type RectifyConfig struct {
	MinRelevance float64 `yaml:"min_relevance"`
	Filter       *bool   `yaml:"filter"`
}

// FilterEnabled reports whether low-relevance entities are dropped (default true).
func (r RectifyConfig) FilterEnabled() bool {
	return r.Filter == nil || *r.Filter
}

// SearchConfig holds query planning and ranking settings.
type SearchConfig struct {
	DefaultLimit       int      `yaml:"default_limit"`
	MaxLimit           int      `yaml:"max_limit"`
	DefaultThreshold   float64  `yaml:"default_threshold"`
	MaxCandidates      int      `yaml:"max_candidates"`
	RequiredCategories []string `yaml:"required_categories"`
	LowSignalPolicy    string   `yaml:"low_signal_policy"` // browse | empty | reject
}

// CacheConfig holds vector cache settings.
type CacheConfig struct {
	Enabled          bool    `yaml:"enabled"`
	AcceptThreshold  float64 `yaml:"accept_threshold"`
	DedupThreshold   float64 `yaml:"dedup_threshold"`
	ContextThreshold float64 `yaml:"context_threshold"`
	TTLSec           int     `yaml:"ttl_sec"`
	SweepIntervalSec int     `yaml:"sweep_interval_sec"`
	MaxCandidates    int     `yaml:"max_candidates"`
}

// AggregateConfig holds ingestion settings.
type AggregateConfig struct {
	MinTextChars int      `yaml:"min_text_chars"`
	Workers      int      `yaml:"workers"`
	Extensions   []string `yaml:"extensions"`
	// RootDir confines file and directory aggregation over HTTP. Empty allows any path.
	RootDir string `yaml:"root_dir"`
}

// TelemetryConfig holds OpenTelemetry tracing settings.
type TelemetryConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	SampleRate  float64 `yaml:"sample_rate"`
	ServiceName string  `yaml:"service_name"`
}

// Low-signal policies.
const (
	LowSignalBrowse = "browse"
	LowSignalEmpty  = "empty"
	LowSignalReject = "reject"
)

// NER providers.
const (
	NERGazetteer = "gazetteer"
	NERLLM       = "llm"
)

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads configuration from an explicit path.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse expands env variables, decodes YAML, applies defaults and validates.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
//
//nolint:gocyclo // flat list of defaults
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 60
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "newsdex:"
	}
	if c.Storage.IndexName == "" {
		c.Storage.IndexName = "newsdex_articles"
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "openai"
	}
	if c.LLM.ConfidenceFloor == 0 {
		c.LLM.ConfidenceFloor = 0.5
	}
	if c.LLM.TimeoutSec <= 0 {
		c.LLM.TimeoutSec = 15
	}
	if !(c.LLM.RatePerSec > 0) {
		c.LLM.RatePerSec = 2
	}
	if c.LLM.Burst <= 0 {
		c.LLM.Burst = 4
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "gpt-4o-mini"
	}
	if c.NER.Provider == "" {
		c.NER.Provider = NERGazetteer
	}
	if c.OCR.TesseractBin == "" {
		c.OCR.TesseractBin = "tesseract"
	}
	if c.OCR.PdftotextBin == "" {
		c.OCR.PdftotextBin = "pdftotext"
	}
	if c.OCR.PdftoppmBin == "" {
		c.OCR.PdftoppmBin = "pdftoppm"
	}
	if c.OCR.Language == "" {
		c.OCR.Language = "eng"
	}
	if c.OCR.TimeoutSec <= 0 {
		c.OCR.TimeoutSec = 120
	}
	if c.Rectify.MinRelevance == 0 {
		c.Rectify.MinRelevance = 0.3
	}
	if c.Search.DefaultLimit <= 0 {
		c.Search.DefaultLimit = 10
	}
	if c.Search.MaxLimit <= 0 {
		c.Search.MaxLimit = 100
	}
	if c.Search.DefaultThreshold == 0 {
		c.Search.DefaultThreshold = 0.4
	}
	if c.Search.MaxCandidates <= 0 {
		c.Search.MaxCandidates = 500
	}
	if c.Search.LowSignalPolicy == "" {
		c.Search.LowSignalPolicy = LowSignalBrowse
	}
	if c.Cache.AcceptThreshold == 0 {
		c.Cache.AcceptThreshold = 0.8
	}
	if c.Cache.DedupThreshold == 0 {
		c.Cache.DedupThreshold = 0.95
	}
	if c.Cache.ContextThreshold == 0 {
		c.Cache.ContextThreshold = 0.7
	}
	if c.Cache.TTLSec == 0 {
		c.Cache.TTLSec = 3600
	}
	if c.Cache.SweepIntervalSec <= 0 {
		c.Cache.SweepIntervalSec = 60
	}
	if c.Cache.MaxCandidates <= 0 {
		c.Cache.MaxCandidates = 8
	}
	if c.Aggregate.MinTextChars <= 0 {
		c.Aggregate.MinTextChars = 50
	}
	if c.Aggregate.Workers <= 0 {
		c.Aggregate.Workers = 4
	}
	if len(c.Aggregate.Extensions) == 0 {
		c.Aggregate.Extensions = []string{".pdf", ".jpg", ".jpeg", ".png"}
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "newsdex"
	}
	if c.Telemetry.SampleRate == 0 {
		c.Telemetry.SampleRate = 1
	}
}

// Validate checks the configuration for correctness. Threshold problems are
// configuration errors, never call-time errors.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}

	thresholds := []struct {
		name  string
		value float64
	}{
		{"rectify.min_relevance", c.Rectify.MinRelevance},
		{"search.default_threshold", c.Search.DefaultThreshold},
		{"cache.accept_threshold", c.Cache.AcceptThreshold},
		{"cache.dedup_threshold", c.Cache.DedupThreshold},
		{"cache.context_threshold", c.Cache.ContextThreshold},
		{"llm.confidence_floor", c.LLM.ConfidenceFloor},
	}
	for _, th := range thresholds {
		if !(th.value >= 0 && th.value <= 1) { // rejects NaN
			return fmt.Errorf("%s must be between 0 and 1, got %g", th.name, th.value)
		}
	}
	if c.Cache.DedupThreshold < c.Cache.AcceptThreshold {
		return fmt.Errorf(
			"cache.dedup_threshold (%g) must be >= cache.accept_threshold (%g)",
			c.Cache.DedupThreshold, c.Cache.AcceptThreshold,
		)
	}
	if c.Cache.TTLSec <= 0 {
		return fmt.Errorf("cache.ttl_sec must be positive, got %d", c.Cache.TTLSec)
	}
	if c.Search.DefaultLimit > c.Search.MaxLimit {
		return fmt.Errorf("search.default_limit (%d) exceeds search.max_limit (%d)",
			c.Search.DefaultLimit, c.Search.MaxLimit)
	}
	if !(c.Telemetry.SampleRate >= 0 && c.Telemetry.SampleRate <= 1) {
		return fmt.Errorf("telemetry.sample_rate must be between 0 and 1, got %g", c.Telemetry.SampleRate)
	}

	switch c.Search.LowSignalPolicy {
	case LowSignalBrowse, LowSignalEmpty, LowSignalReject:
		// ok
	default:
		return fmt.Errorf(
			"search.low_signal_policy must be %q, %q or %q, got %q",
			LowSignalBrowse, LowSignalEmpty, LowSignalReject, c.Search.LowSignalPolicy,
		)
	}
	if _, err := c.Search.Required(); err != nil {
		return err
	}

	switch c.NER.Provider {
	case NERGazetteer:
		if c.NER.Gazetteer == "" {
			return fmt.Errorf("ner.gazetteer_path is required for the gazetteer provider")
		}
	case NERLLM:
		if !c.LLM.Enabled {
			return fmt.Errorf("ner.provider %q requires llm.enabled", NERLLM)
		}
	default:
		return fmt.Errorf("ner.provider must be %q or %q, got %q", NERGazetteer, NERLLM, c.NER.Provider)
	}
	return nil
}

// Required parses the required categories.
func (s SearchConfig) Required() ([]entity.Category, error) {
	out := make([]entity.Category, 0, len(s.RequiredCategories))
	for _, name := range s.RequiredCategories {
		c, err := entity.ParseCategory(name)
		if err != nil {
			return nil, fmt.Errorf("search.required_categories: %w", err)
		}
		out = append(out, c)
	}
	return out, nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
