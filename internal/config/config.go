package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Addr         string        `mapstructure:"addr"`
		Mode         string        `mapstructure:"mode"`
		ReadTimeout  time.Duration `mapstructure:"read_timeout"`
		WriteTimeout time.Duration `mapstructure:"write_timeout"`
	} `mapstructure:"server"`

	Redis struct {
		Enabled  bool   `mapstructure:"enabled"`
		URL      string `mapstructure:"url"`
		PoolSize int    `mapstructure:"pool_size"`
	} `mapstructure:"redis"`

	PDP struct {
		URL     string        `mapstructure:"url"`
		APIKey  string        `mapstructure:"api_key"`
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"pdp"`

	JWKS struct {
		URL      string        `mapstructure:"url"`
		CacheTTL time.Duration `mapstructure:"cache_ttl"`
		// InsecureAllowUnverified enables decoding tokens without signature
		// verification when no matching key is found. Test environments only.
		InsecureAllowUnverified bool `mapstructure:"insecure_allow_unverified"`
	} `mapstructure:"jwks"`

	Retrieval struct {
		DefaultLimit        int    `mapstructure:"default_limit"`
		DefaultResourceType string `mapstructure:"default_resource_type"`
	} `mapstructure:"retrieval"`

	Observability struct {
		TraceEnabled       bool    `mapstructure:"trace_enabled"`
		TracingEndpointURL string  `mapstructure:"tracing_endpoint_url"`
		TraceSampleRatio   float64 `mapstructure:"trace_sample_ratio"`
		LogLevel           string  `mapstructure:"log_level"`
		Format             string  `mapstructure:"log_format"`
		LogSource          bool    `mapstructure:"log_source"`
	} `mapstructure:"observability"`
}

const (
	defaultRetrievalLimit = 3
	defaultResourceType   = "document"
)

func MustLoad() *Config {
	v := viper.New()

	logger := slog.Default()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvPrefix("PERMISSION_FILTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		logger.Error("Failed to read config", slog.Any("error", err))
		os.Exit(1)
	}

	if env := os.Getenv("APP_ENV"); env != "" {
		v.SetConfigName(fmt.Sprintf("config.%s", env))
		if err := v.MergeInConfig(); err != nil {
			logger.Info("No environment-specific config (optional)", slog.String("env", env))
		}
		logger.Info("Environment-specific config loaded", slog.String("env", env))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		logger.Error("Failed to unmarshal config", slog.Any("error", err))
		os.Exit(1)
	}

	cfg.applyDefaults()

	return &cfg
}

// applyDefaults fills unset fields from the well-known environment variables
// and fixed fallbacks. Explicit config always wins.
func (c *Config) applyDefaults() {
	if c.PDP.URL == "" {
		c.PDP.URL = os.Getenv("PERMIT_PDP_URL")
	}
	if c.PDP.APIKey == "" {
		c.PDP.APIKey = os.Getenv("PERMIT_API_KEY")
	}
	if c.JWKS.URL == "" {
		c.JWKS.URL = os.Getenv("PERMIT_JWKS_URL")
	}
	if c.Retrieval.DefaultLimit <= 0 {
		c.Retrieval.DefaultLimit = defaultRetrievalLimit
	}
	if c.Retrieval.DefaultResourceType == "" {
		c.Retrieval.DefaultResourceType = defaultResourceType
	}
	if c.Observability.TraceSampleRatio <= 0 {
		c.Observability.TraceSampleRatio = 1.0
	}
}
