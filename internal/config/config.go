// Package config loads radaudit configuration from file and environment.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ppiankov/radaudit/internal/cache"
	"github.com/ppiankov/radaudit/internal/llm"
	"github.com/ppiankov/radaudit/internal/prompt"
	"github.com/ppiankov/radaudit/internal/store"
)

// EnvPrefix prefixes every environment override (RADAUDIT_GENERATION_PROVIDER, ...)
const EnvPrefix = "RADAUDIT"

// Config is the root configuration structure.
type Config struct {
	Log        LogConfig      `yaml:"log" mapstructure:"log"`
	Generation llm.Config     `yaml:"generation" mapstructure:"generation"`
	Pipeline   PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"`
	Storage    store.Config   `yaml:"storage" mapstructure:"storage"`
	Cache      cache.Config   `yaml:"cache" mapstructure:"cache"`
	Batch      BatchConfig    `yaml:"batch" mapstructure:"batch"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// PipelineConfig configures the audit orchestration.
type PipelineConfig struct {
	PromptVersion string        `yaml:"prompt_version" mapstructure:"prompt_version"`
	MaxAttempts   int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	RetryPause    time.Duration `yaml:"retry_pause" mapstructure:"retry_pause"`
	ModelVersion  string        `yaml:"model_version" mapstructure:"model_version"`
	LoRAID        string        `yaml:"lora_id" mapstructure:"lora_id"`
}

// BatchConfig configures batch audits.
type BatchConfig struct {
	Concurrency int    `yaml:"concurrency" mapstructure:"concurrency"`
	ExtractDir  string `yaml:"extract_dir" mapstructure:"extract_dir"`
	MetricsAddr string `yaml:"metrics_addr" mapstructure:"metrics_addr"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Log:        LogConfig{Level: "info", Format: "console"},
		Generation: llm.DefaultConfig(),
		Pipeline: PipelineConfig{
			PromptVersion: prompt.DefaultVersion,
			MaxAttempts:   3,
			RetryPause:    time.Second,
		},
		Storage: store.Config{Driver: store.DriverFile, Dir: "./radaudit-storage"},
		Cache:   cache.Config{Backend: cache.BackendNone, TTL: 24 * time.Hour},
		Batch:   BatchConfig{Concurrency: 1},
	}
}

// DefaultPath returns $HOME/.radaudit/config.yaml
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", eris.Wrap(err, "config: find home directory")
	}
	return filepath.Join(home, ".radaudit", "config.yaml"), nil
}

// Load reads configuration from path, or from ./config.yaml or
// $HOME/.radaudit/config.yaml when path is empty, then applies RADAUDIT_*
// environment overrides. A missing default file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Config file
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".radaudit"))
		}
	}

	// Environment
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	def := Default()
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.format", def.Log.Format)
	v.SetDefault("generation.provider", def.Generation.Provider)
	v.SetDefault("generation.model", "")
	v.SetDefault("generation.api_key", "")
	v.SetDefault("generation.base_url", "")
	v.SetDefault("generation.timeout", def.Generation.Timeout)
	v.SetDefault("generation.max_tokens", def.Generation.MaxTokens)
	v.SetDefault("generation.temperature", def.Generation.Temperature)
	v.SetDefault("generation.max_concurrent", def.Generation.MaxConcurrent)
	v.SetDefault("generation.requests_per_second", def.Generation.RequestsPerSecond)
	v.SetDefault("generation.mock_scenario", def.Generation.MockScenario)
	v.SetDefault("generation.http_proxy", "")
	v.SetDefault("generation.https_proxy", "")
	v.SetDefault("generation.no_proxy", "")
	v.SetDefault("pipeline.prompt_version", def.Pipeline.PromptVersion)
	v.SetDefault("pipeline.max_attempts", def.Pipeline.MaxAttempts)
	v.SetDefault("pipeline.retry_pause", def.Pipeline.RetryPause)
	v.SetDefault("pipeline.model_version", "")
	v.SetDefault("pipeline.lora_id", "")
	v.SetDefault("storage.driver", def.Storage.Driver)
	v.SetDefault("storage.dir", def.Storage.Dir)
	v.SetDefault("storage.sqlite_path", "")
	v.SetDefault("cache.backend", def.Cache.Backend)
	v.SetDefault("cache.dir", "")
	v.SetDefault("cache.ttl", def.Cache.TTL)
	v.SetDefault("batch.concurrency", def.Batch.Concurrency)
	v.SetDefault("batch.extract_dir", "")
	v.SetDefault("batch.metrics_addr", "")

	// Read config file (optional unless named explicitly)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	if c.Pipeline.MaxAttempts < 1 {
		return eris.Errorf("config: pipeline.max_attempts must be at least 1, got %d", c.Pipeline.MaxAttempts)
	}
	if c.Batch.Concurrency < 1 {
		return eris.Errorf("config: batch.concurrency must be at least 1, got %d", c.Batch.Concurrency)
	}
	if c.Generation.RequestsPerSecond < 0 {
		return eris.New("config: generation.requests_per_second must not be negative")
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
