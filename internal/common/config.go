package common

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/ternarybob/quaero/internal/interfaces"
)

// Config represents the application configuration.
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Storage     StorageConfig   `toml:"storage"`
	Logging     LoggingConfig   `toml:"logging"`
	PlacesAPI   PlacesAPIConfig `toml:"places_api"`
	Gemini      GeminiConfig    `toml:"gemini"`
	Claude      ClaudeConfig    `toml:"claude"`
	LLM         LLMConfig       `toml:"llm"`
	Discovery   DiscoveryConfig `toml:"discovery"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration.
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Format     string   `toml:"format"`      // "json" or "text"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs (default: "15:04:05.000")
}

// PlacesAPIConfig contains Google Places API configuration.
type PlacesAPIConfig struct {
	APIKey              string        `toml:"api_key"`                // Google Places API key
	RateLimit           time.Duration `toml:"rate_limit"`             // Minimum time between API requests
	RequestTimeout      time.Duration `toml:"request_timeout"`        // HTTP request timeout (per variant request)
	MaxResultsPerSearch int           `toml:"max_results_per_search"` // Google Places API limit per request
}

// GeminiConfig contains Google Gemini API configuration used by the Extractor.
type GeminiConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`       // default: "gemini-2.5-flash"
	Temperature float32 `toml:"temperature"` // default: 0.2 (low temperature for extraction determinism)
}

// ClaudeConfig contains Anthropic Claude API configuration used by the Extractor.
type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`      // default: "claude-haiku-4-5"
	MaxTokens   int     `toml:"max_tokens"` // default: 4096
	Temperature float32 `toml:"temperature"`
}

// LLMProvider represents the AI provider type.
type LLMProvider string

const (
	LLMProviderGemini LLMProvider = "gemini"
	LLMProviderClaude LLMProvider = "claude"
)

// LLMConfig contains unified configuration for provider selection.
type LLMConfig struct {
	DefaultProvider LLMProvider `toml:"default_provider"`
}

// DiscoveryConfig contains the Discovery Orchestration Core's own tunables (§6 of the spec).
type DiscoveryConfig struct {
	PlacesVariants          []string      `toml:"places_variants"`
	PlacesCacheTTL          time.Duration `toml:"places_cache_ttl"`
	WorkerConcurrency       int           `toml:"worker_concurrency"`
	ScrapeTimeout           time.Duration `toml:"scrape_timeout"`
	ExtractTimeout          time.Duration `toml:"extract_timeout"`
	PlacesTimeout           time.Duration `toml:"places_timeout"`
	JobTimeout              time.Duration `toml:"job_timeout"`
	ProgressCoalesce        time.Duration `toml:"progress_coalesce_ms"`
	SubscriberSlowThreshold time.Duration `toml:"subscriber_slow_threshold"`
	PlacesLatLngRound       int           `toml:"places_lat_lng_round"`
	ViewportMinPantries     int           `toml:"viewport_min_pantries"`
	JobGracePeriod          time.Duration `toml:"job_grace_period"`
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability; only
// user-facing settings need to be exposed in a quaero.toml file.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: []string{"stdout", "file"},
		},
		PlacesAPI: PlacesAPIConfig{
			APIKey:              "",
			RateLimit:           1 * time.Second,
			RequestTimeout:      15 * time.Second,
			MaxResultsPerSearch: 20,
		},
		Gemini: GeminiConfig{
			Model:       "gemini-2.5-flash",
			Temperature: 0.2,
		},
		Claude: ClaudeConfig{
			Model:       "claude-haiku-4-5",
			MaxTokens:   4096,
			Temperature: 0.2,
		},
		LLM: LLMConfig{
			DefaultProvider: LLMProviderGemini,
		},
		Discovery: DiscoveryConfig{
			PlacesVariants:          []string{"food bank", "food pantry", "food distribution", "community food"},
			PlacesCacheTTL:          7 * 24 * time.Hour,
			WorkerConcurrency:       6,
			ScrapeTimeout:           30 * time.Second,
			ExtractTimeout:          45 * time.Second,
			PlacesTimeout:           15 * time.Second,
			JobTimeout:              10 * time.Minute,
			ProgressCoalesce:        250 * time.Millisecond,
			SubscriberSlowThreshold: 5 * time.Second,
			PlacesLatLngRound:       3,
			ViewportMinPantries:     0,
			JobGracePeriod:          10 * time.Minute,
		},
	}
}

// LoadFromFile loads configuration with priority: default -> file -> env.
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files with priority:
// default -> file1 -> file2 -> ... -> env. Later files override earlier ones.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("QUAERO_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	if logLevel := os.Getenv("QUAERO_LOGGING_LEVEL"); logLevel != "" {
		config.Logging.Level = logLevel
	}

	if badgerPath := os.Getenv("QUAERO_STORAGE_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	if workers := os.Getenv("QUAERO_DISCOVERY_WORKER_CONCURRENCY"); workers != "" {
		if w, err := strconv.Atoi(workers); err == nil {
			config.Discovery.WorkerConcurrency = w
		}
	}

	if variants := os.Getenv("QUAERO_DISCOVERY_PLACES_VARIANTS"); variants != "" {
		config.Discovery.PlacesVariants = strings.Split(variants, ",")
	}

	if provider := os.Getenv("QUAERO_LLM_DEFAULT_PROVIDER"); provider != "" {
		config.LLM.DefaultProvider = LLMProvider(provider)
	}
}

// ResolveAPIKey resolves an API key by name with environment variable priority.
// Resolution order: environment variables -> KV store -> config fallback -> error.
func ResolveAPIKey(ctx context.Context, kvStorage interfaces.KeyValueStorage, name string, configFallback string) (string, error) {
	keyToEnvMapping := map[string][]string{
		"gemini_api_key":    {"QUAERO_GEMINI_API_KEY", "GEMINI_API_KEY"},
		"anthropic_api_key": {"QUAERO_CLAUDE_API_KEY", "ANTHROPIC_API_KEY"},
		"google-places":     {"QUAERO_PLACES_API_KEY", "GOOGLE_PLACES_API_KEY"},
	}

	if envVarNames, ok := keyToEnvMapping[name]; ok {
		for _, envVarName := range envVarNames {
			if envValue := os.Getenv(envVarName); envValue != "" {
				return envValue, nil
			}
		}
	}

	if kvStorage != nil {
		apiKey, err := kvStorage.Get(ctx, name)
		if err == nil && apiKey != "" {
			return apiKey, nil
		}
	}

	if configFallback != "" {
		return configFallback, nil
	}

	return "", fmt.Errorf("API key '%s' not found in environment, KV store, or config", name)
}
