// Package config loads settings from flags, a YAML config file, STUDYSPARK_*
// environment variables, and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/valpere/studyspark/internal/completion"
	"github.com/valpere/studyspark/internal/logger"
	"github.com/valpere/studyspark/internal/orchestrator"
	"github.com/valpere/studyspark/internal/provider"
)

const (
	EnvPrefix      = "STUDYSPARK"
	configFileName = ".studyspark"
)

type Config struct {
	Provider provider.Config `mapstructure:"provider"`
	Pipeline Pipeline        `mapstructure:"pipeline"`
	Store    Store           `mapstructure:"store"`
	Server   Server          `mapstructure:"server"`
	Log      Log             `mapstructure:"log"`
	// Prompts is an optional YAML file overriding the built-in prompts.
	Prompts string `mapstructure:"prompts"`
}

type Pipeline struct {
	MinLength    int           `mapstructure:"min_length"`
	ChunkSize    int           `mapstructure:"chunk_size"`
	Timeout      time.Duration `mapstructure:"timeout"`
	Backoff      time.Duration `mapstructure:"backoff"`
	AutoDownload bool          `mapstructure:"auto_download"`
	Refine       bool          `mapstructure:"refine"`
	ContextWords int           `mapstructure:"context_words"`
	// ValidateLanguage checks TRANSLATE output with the language detector.
	ValidateLanguage bool          `mapstructure:"validate_language"`
	System           string        `mapstructure:"system"`
	FetchTimeout     time.Duration `mapstructure:"fetch_timeout"`
}

type Store struct {
	Path  string `mapstructure:"path"`
	Cache bool   `mapstructure:"cache"`
	// FuzzyThreshold enables near-duplicate cache hits when in (0, 1].
	FuzzyThreshold float64 `mapstructure:"fuzzy_threshold"`
}

type Server struct {
	Addr string `mapstructure:"addr"`
}

type Log struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// SetDefaults registers every key, which also makes each one bindable from
// the environment.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("provider.name", provider.NameOllama)
	v.SetDefault("provider.base_url", "")
	v.SetDefault("provider.api_key", "")
	v.SetDefault("provider.model", "")
	v.SetDefault("provider.timeout", provider.DefaultTimeout)

	v.SetDefault("pipeline.min_length", orchestrator.DefaultMinLength)
	v.SetDefault("pipeline.chunk_size", 0)
	v.SetDefault("pipeline.timeout", orchestrator.DefaultTimeout)
	v.SetDefault("pipeline.backoff", 500*time.Millisecond)
	v.SetDefault("pipeline.auto_download", false)
	v.SetDefault("pipeline.refine", false)
	v.SetDefault("pipeline.context_words", 0)
	v.SetDefault("pipeline.validate_language", false)
	v.SetDefault("pipeline.system", "")
	v.SetDefault("pipeline.fetch_timeout", 15*time.Second)

	v.SetDefault("store.path", defaultStorePath())
	v.SetDefault("store.cache", true)
	v.SetDefault("store.fuzzy_threshold", 0.0)

	v.SetDefault("server.addr", ":8080")

	v.SetDefault("log.level", string(logger.InfoLevel))
	v.SetDefault("log.json", false)

	v.SetDefault("prompts", "")
}

func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "studyspark.db"
	}
	return filepath.Join(home, ".studyspark", "studyspark.db")
}

// New returns a viper instance with defaults, environment binding, and the
// config file read in. An explicit cfgFile must exist; otherwise
// $HOME/.studyspark.yaml and ./.studyspark.yaml are optional.
func New(cfgFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
		v.SetConfigName(configFileName)
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	return v, nil
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if cfg.Provider.APIKey == "" && strings.EqualFold(cfg.Provider.Name, provider.NameOpenRouter) {
		cfg.Provider.APIKey = os.Getenv("OPENROUTER_API_KEY")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	switch strings.ToLower(c.Provider.Name) {
	case provider.NameOllama:
	case provider.NameOpenRouter:
		if c.Provider.APIKey == "" {
			errs = append(errs, errors.New("provider.api_key is required for openrouter"))
		}
	default:
		errs = append(errs, fmt.Errorf("provider.name: unknown provider %q", c.Provider.Name))
	}

	if c.Pipeline.MinLength < 1 {
		errs = append(errs, errors.New("pipeline.min_length must be at least 1"))
	}
	if c.Pipeline.ChunkSize < 0 {
		errs = append(errs, errors.New("pipeline.chunk_size must not be negative"))
	}
	if c.Pipeline.Timeout < 0 {
		errs = append(errs, errors.New("pipeline.timeout must not be negative"))
	}
	if c.Pipeline.ContextWords < 0 {
		errs = append(errs, errors.New("pipeline.context_words must not be negative"))
	}
	if c.Store.FuzzyThreshold < 0 || c.Store.FuzzyThreshold > 1 {
		errs = append(errs, errors.New("store.fuzzy_threshold must be between 0 and 1"))
	}

	return errors.Join(errs...)
}

// Orchestrator maps the pipeline settings onto an orchestrator config.
func (c *Config) Orchestrator() orchestrator.Config {
	return orchestrator.Config{
		MinLength:    c.Pipeline.MinLength,
		ChunkSize:    c.Pipeline.ChunkSize,
		Timeout:      c.Pipeline.Timeout,
		AutoDownload: c.Pipeline.AutoDownload,
		Session: completion.SessionOptions{
			Model:  c.Provider.Model,
			System: c.Pipeline.System,
		},
	}
}

// LoggerConfig maps the log settings onto a logger config.
func (c *Config) LoggerConfig() *logger.Config {
	cfg := logger.DefaultConfig()
	cfg.Level = logger.ParseLevel(c.Log.Level)
	cfg.JSON = c.Log.JSON
	return cfg
}

// LoadEnv loads variables from path, or from ./.env when path is empty. A
// missing default file is not an error.
func LoadEnv(path string) error {
	if path == "" {
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to load .env: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}
