package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/truecost/backend/internal/infrastructure/page"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig
	Catalog   CatalogConfig
	Discovery DiscoveryConfig
	Cache     CacheConfig
	RateLimit RateLimitConfig
	Sort      SortConfig
	Selectors page.Selectors
	Log       LogConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	Environment    string   `mapstructure:"environment"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// CatalogConfig holds catalog client and paging configuration
type CatalogConfig struct {
	UserAgent            string        `mapstructure:"user_agent"`
	Timeout              time.Duration `mapstructure:"timeout"`
	MaxAttempts          int           `mapstructure:"max_attempts"`
	TaxMultiplier        float64       `mapstructure:"tax_multiplier"`
	DialectAPageSize     int           `mapstructure:"dialect_a_page_size"`
	DialectAParallelism  int           `mapstructure:"dialect_a_parallelism"`
	DialectBPageSize     int           `mapstructure:"dialect_b_page_size"`
	DialectBParallelism  int           `mapstructure:"dialect_b_parallelism"`
	DialectBWaitTimeout  time.Duration `mapstructure:"dialect_b_wait_timeout"`
	DialectBPollInterval time.Duration `mapstructure:"dialect_b_poll_interval"`
}

// DiscoveryConfig holds the URL-shape markers of each dialect
type DiscoveryConfig struct {
	ListingMarker       string   `mapstructure:"listing_marker"`
	QueryMarkers        []string `mapstructure:"query_markers"`
	DialectBHostMarker  string   `mapstructure:"dialect_b_host_marker"`
	DialectBPathMarkers []string `mapstructure:"dialect_b_path_markers"`
}

// CacheConfig holds cache-related configuration
type CacheConfig struct {
	Type     string        `mapstructure:"type"` // "memory" or "redis"
	RedisURL string        `mapstructure:"redis_url"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	PerIP        int     `mapstructure:"per_ip"`
	CatalogRPS   float64 `mapstructure:"catalog_rps"`
	CatalogBurst int     `mapstructure:"catalog_burst"`
}

// SortConfig holds live reconciliation timing
type SortConfig struct {
	DebounceWindow time.Duration `mapstructure:"debounce_window"`
	SettleDelay    time.Duration `mapstructure:"settle_delay"`
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "json" or "console"
}

// Load loads configuration from .env, environment variables and config files.
// configFile may be empty to search the default locations.
func Load(configFile string) (*Config, error) {
	// .env is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/truecost/")
	}

	// Environment variable settings
	v.SetEnvPrefix("TRUECOST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file (optional - will use env vars if file doesn't exist)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || configFile != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.allowed_origins", []string{"chrome-extension://*", "moz-extension://*"})

	// Catalog defaults
	v.SetDefault("catalog.user_agent", "TrueCost/1.0")
	v.SetDefault("catalog.timeout", "30s")
	v.SetDefault("catalog.max_attempts", 3)
	v.SetDefault("catalog.tax_multiplier", 1.21)
	v.SetDefault("catalog.dialect_a_page_size", 50)
	v.SetDefault("catalog.dialect_a_parallelism", 3)
	v.SetDefault("catalog.dialect_b_page_size", 0) // take it from the discovered URL
	v.SetDefault("catalog.dialect_b_parallelism", 6)
	v.SetDefault("catalog.dialect_b_wait_timeout", "5s")
	v.SetDefault("catalog.dialect_b_poll_interval", "250ms")

	// Discovery defaults
	v.SetDefault("discovery.listing_marker", "/_/")
	v.SetDefault("discovery.query_markers", []string{"Ntt", "N", "No", "Nrpp"})
	v.SetDefault("discovery.dialect_b_host_marker", "cnstrc.com")
	v.SetDefault("discovery.dialect_b_path_markers", []string{"/browse/", "/search/"})

	// Cache defaults
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.ttl", "15m")

	// Rate limit defaults
	v.SetDefault("ratelimit.per_ip", 100)
	v.SetDefault("ratelimit.catalog_rps", 10.0)
	v.SetDefault("ratelimit.catalog_burst", 6)

	// Sort defaults
	v.SetDefault("sort.debounce_window", "300ms")
	v.SetDefault("sort.settle_delay", "50ms")

	// Entry markup selectors
	sel := page.DefaultSelectors()
	v.SetDefault("selectors.entry", sel.Entry)
	v.SetDefault("selectors.name", sel.Name)
	v.SetDefault("selectors.description", sel.Description)
	v.SetDefault("selectors.paid_price", sel.PaidPrice)
	v.SetDefault("selectors.reference_attr", sel.ReferenceAttr)
	v.SetDefault("selectors.promotion", sel.Promotion)
	v.SetDefault("selectors.id_attr", sel.IDAttr)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Cache.Type != "memory" && config.Cache.Type != "redis" {
		return fmt.Errorf("cache type must be 'memory' or 'redis', got: %s", config.Cache.Type)
	}

	if config.Cache.Type == "redis" && config.Cache.RedisURL == "" {
		return fmt.Errorf("redis URL is required when cache type is 'redis' (set TRUECOST_CACHE_REDIS_URL)")
	}

	if config.Catalog.DialectAPageSize <= 0 {
		return fmt.Errorf("catalog.dialect_a_page_size must be positive, got: %d", config.Catalog.DialectAPageSize)
	}

	if config.Catalog.DialectAParallelism <= 0 || config.Catalog.DialectBParallelism <= 0 {
		return fmt.Errorf("catalog parallelism must be positive")
	}

	if config.Catalog.TaxMultiplier < 1 {
		return fmt.Errorf("catalog.tax_multiplier must be at least 1, got: %v", config.Catalog.TaxMultiplier)
	}

	if config.Log.Format != "json" && config.Log.Format != "console" {
		return fmt.Errorf("log format must be 'json' or 'console', got: %s", config.Log.Format)
	}

	return nil
}
