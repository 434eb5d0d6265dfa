package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration. Every tunable the
// pipeline consults lives here; components receive values at
// construction and never read ambient state.
type Config struct {
	App        App        `mapstructure:"app"`
	AI         AI         `mapstructure:"ai"`
	Clustering Clustering `mapstructure:"clustering"`
	Quality    Quality    `mapstructure:"quality"`
	Pipeline   Pipeline   `mapstructure:"pipeline"`
	Embedding  Embedding  `mapstructure:"embedding"`
	Logging    Logging    `mapstructure:"logging"`
}

// App holds general application configuration.
type App struct {
	Debug   bool   `mapstructure:"debug"`
	DataDir string `mapstructure:"data_dir"`
}

// AI holds LLM provider configuration.
type AI struct {
	Gemini GeminiConfig `mapstructure:"gemini"`
}

// GeminiConfig holds Google Gemini configuration.
type GeminiConfig struct {
	APIKey         string  `mapstructure:"api_key"`
	Model          string  `mapstructure:"model"`
	EmbeddingModel string  `mapstructure:"embedding_model"`
	MaxTokens      int32   `mapstructure:"max_tokens"`
	Temperature    float32 `mapstructure:"temperature"`
}

// Clustering holds the similarity clustering engine tunables.
type Clustering struct {
	MinClusterSize      int     `mapstructure:"min_cluster_size"`
	MinSamples          int     `mapstructure:"min_samples"`
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"` // Incremental centroid assignment gate
}

// Quality holds the quality checker tunables.
type Quality struct {
	PassThreshold     float64 `mapstructure:"pass_threshold"`      // Minimum aggregate 0-100
	PositionMinChars  int     `mapstructure:"position_min_chars"`  // Target band lower bound
	PositionMaxChars  int     `mapstructure:"position_max_chars"`  // Target band upper bound
	MinAnalyzableText int     `mapstructure:"min_analyzable_text"` // Chars below which analysis is refused
}

// Pipeline holds the orchestrator tunables.
type Pipeline struct {
	MaxRetries      int    `mapstructure:"max_retries"`       // Regeneration bound per perspective
	RetryDelay      string `mapstructure:"retry_delay"`       // Initial backoff, doubles per attempt
	IssueWorkers    int    `mapstructure:"issue_workers"`     // Concurrent issues
	LLMConcurrency  int    `mapstructure:"llm_concurrency"`   // Cap on outstanding external calls
	ExcerptCount    int    `mapstructure:"excerpt_count"`     // Representative excerpts per prompt
	ExcerptMaxChars int    `mapstructure:"excerpt_max_chars"` // Truncation cap per excerpt
	RequestTimeout  string `mapstructure:"request_timeout"`   // Per external call
}

// Embedding holds the embedding service request shaping tunables.
type Embedding struct {
	BatchSize    int `mapstructure:"batch_size"`     // Max items per request
	MaxItemChars int `mapstructure:"max_item_chars"` // Per-item length cap
	MinItemChars int `mapstructure:"min_item_chars"` // Items shorter than this are excluded
}

// Logging holds logging configuration.
type Logging struct {
	Level string `mapstructure:"level"`
}

var globalConfig *Config

// Load loads the configuration from .env, a config file, and the
// environment, in the usual viper precedence order.
func Load(configFile string) (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			fmt.Printf("Warning: Error loading .env file: %v\n", err)
		}
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME")
		viper.SetConfigName(".issuelens")
		viper.SetConfigType("yaml")
	}

	setDefaults()
	bindEnvironmentVariables()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(config); err != nil {
		return nil, err
	}

	globalConfig = config
	return config, nil
}

// Get returns the global configuration, loading it if necessary.
func Get() *Config {
	if globalConfig == nil {
		config, err := Load("")
		if err != nil {
			panic(fmt.Sprintf("Failed to load configuration: %v", err))
		}
		return config
	}
	return globalConfig
}

// Reset clears the cached configuration. Used by tests.
func Reset() {
	globalConfig = nil
	viper.Reset()
}

func setDefaults() {
	// App defaults
	viper.SetDefault("app.debug", false)
	viper.SetDefault("app.data_dir", ".issuelens-data")

	// AI defaults
	viper.SetDefault("ai.gemini.model", "gemini-flash-lite-latest")
	viper.SetDefault("ai.gemini.embedding_model", "gemini-embedding-001")
	viper.SetDefault("ai.gemini.max_tokens", 1024)
	viper.SetDefault("ai.gemini.temperature", 0.7)

	// Clustering defaults. The similarity threshold was not
	// recoverable from prior tuning; 0.7 matches the semantic
	// clustering default and is documented as configuration.
	viper.SetDefault("clustering.min_cluster_size", 3)
	viper.SetDefault("clustering.min_samples", 1)
	viper.SetDefault("clustering.similarity_threshold", 0.7)

	// Quality defaults
	viper.SetDefault("quality.pass_threshold", 50.0)
	viper.SetDefault("quality.position_min_chars", 80)
	viper.SetDefault("quality.position_max_chars", 100)
	viper.SetDefault("quality.min_analyzable_text", 80)

	// Pipeline defaults
	viper.SetDefault("pipeline.max_retries", 2)
	viper.SetDefault("pipeline.retry_delay", "1s")
	viper.SetDefault("pipeline.issue_workers", 4)
	viper.SetDefault("pipeline.llm_concurrency", 6)
	viper.SetDefault("pipeline.excerpt_count", 3)
	viper.SetDefault("pipeline.excerpt_max_chars", 400)
	viper.SetDefault("pipeline.request_timeout", "60s")

	// Embedding defaults
	viper.SetDefault("embedding.batch_size", 100)
	viper.SetDefault("embedding.max_item_chars", 4000)
	viper.SetDefault("embedding.min_item_chars", 50)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
}

// bindEnvironmentVariables sets up flexible environment variable binding.
func bindEnvironmentVariables() {
	bindEnvKeys("ai.gemini.api_key", []string{
		"GEMINI_API_KEY",
		"GOOGLE_GEMINI_API_KEY",
		"GOOGLE_AI_API_KEY",
	})
}

// bindEnvKeys binds a config key to multiple possible env var names.
func bindEnvKeys(configKey string, envKeys []string) {
	for _, envKey := range envKeys {
		if err := viper.BindEnv(configKey, envKey); err != nil {
			fmt.Printf("Warning: Failed to bind %s: %v\n", envKey, err)
		}
	}
}

func validate(c *Config) error {
	if c.Clustering.MinClusterSize < 2 {
		return fmt.Errorf("clustering.min_cluster_size must be at least 2, got %d", c.Clustering.MinClusterSize)
	}
	if c.Clustering.SimilarityThreshold <= 0 || c.Clustering.SimilarityThreshold >= 1 {
		return fmt.Errorf("clustering.similarity_threshold must be in (0, 1), got %f", c.Clustering.SimilarityThreshold)
	}
	if c.Quality.PassThreshold < 0 || c.Quality.PassThreshold > 100 {
		return fmt.Errorf("quality.pass_threshold must be in [0, 100], got %f", c.Quality.PassThreshold)
	}
	if c.Quality.PositionMinChars >= c.Quality.PositionMaxChars {
		return fmt.Errorf("quality.position_min_chars must be below position_max_chars")
	}
	if c.Pipeline.MaxRetries < 0 {
		return fmt.Errorf("pipeline.max_retries must not be negative, got %d", c.Pipeline.MaxRetries)
	}
	if c.Pipeline.IssueWorkers < 1 || c.Pipeline.LLMConcurrency < 1 {
		return fmt.Errorf("pipeline worker counts must be at least 1")
	}
	if c.Embedding.BatchSize < 1 {
		return fmt.Errorf("embedding.batch_size must be at least 1, got %d", c.Embedding.BatchSize)
	}
	return nil
}
