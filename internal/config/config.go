package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Backend    BackendConfig    `yaml:"backend" mapstructure:"backend"`
	Gazetteer  GazetteerConfig  `yaml:"gazetteer" mapstructure:"gazetteer"`
	Scoring    ScoringConfig    `yaml:"scoring" mapstructure:"scoring"`
	Roster     RosterConfig     `yaml:"roster" mapstructure:"roster"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures where settings and the roster are persisted.
type StoreConfig struct {
	Driver      string      `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string      `yaml:"database_url" mapstructure:"database_url"`
	Redis       RedisConfig `yaml:"redis" mapstructure:"redis"`
	Pool        PoolConfig  `yaml:"pool" mapstructure:"pool"`
}

// RedisConfig configures the redis store driver.
type RedisConfig struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Password string `yaml:"password" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db"`
	Prefix   string `yaml:"prefix" mapstructure:"prefix"`
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// BackendConfig configures the performance-records REST API.
type BackendConfig struct {
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"` // requests per second
	Burst       int     `yaml:"burst" mapstructure:"burst"`
	MaxRetries  int     `yaml:"max_retries" mapstructure:"max_retries"`
	ShowLimit   int     `yaml:"show_limit" mapstructure:"show_limit"`

	Crawlers         []CrawlerConfig `yaml:"crawlers" mapstructure:"crawlers"`
	CrawlTimeoutSecs int             `yaml:"crawl_timeout_secs" mapstructure:"crawl_timeout_secs"`
}

// CrawlerConfig names a scraper service that refreshes artist records.
type CrawlerConfig struct {
	Name string `yaml:"name" mapstructure:"name"`
	URL  string `yaml:"url" mapstructure:"url"`
}

// GazetteerConfig points at an optional GeoJSON file of extra cities.
type GazetteerConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// ScoringConfig configures date handling for the scorer.
type ScoringConfig struct {
	Timezone string `yaml:"timezone" mapstructure:"timezone"`
}

// RosterConfig configures roster fetching and refresh.
type RosterConfig struct {
	RefreshSchedule  string `yaml:"refresh_schedule" mapstructure:"refresh_schedule"`
	FetchConcurrency int    `yaml:"fetch_concurrency" mapstructure:"fetch_concurrency"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port                int      `yaml:"port" mapstructure:"port"`
	CORSOrigins         []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	ShutdownTimeoutSecs int      `yaml:"shutdown_timeout_secs" mapstructure:"shutdown_timeout_secs"`
}

// MonitoringConfig configures alerting on scheduled refreshes.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	MinArtists           int     `yaml:"min_artists" mapstructure:"min_artists"`           // below this only a total outage alerts
	MaxFetchFailed       int     `yaml:"max_fetch_failed" mapstructure:"max_fetch_failed"` // 0 disables
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Location returns the configured zone. An unknown zone name falls back to
// UTC+8, which is where the show data comes from.
func (c ScoringConfig) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		zap.L().Warn("config: unknown timezone, using UTC+8",
			zap.String("timezone", c.Timezone), zap.Error(err))
		return time.FixedZone("CST", 8*3600)
	}
	return loc
}

// Validate checks the configuration for the given mode ("cli" or "serve").
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "sqlite", "memory":
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for postgres")
		}
	case "redis":
		if c.Store.Redis.Addr == "" {
			errs = append(errs, "store.redis.addr is required for redis")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q is not one of sqlite, postgres, redis, memory", c.Store.Driver))
	}

	if c.Backend.BaseURL == "" {
		errs = append(errs, "backend.base_url is required")
	}
	if c.Backend.TimeoutSecs <= 0 {
		errs = append(errs, "backend.timeout_secs must be > 0")
	}
	if c.Backend.RateLimit < 0 {
		errs = append(errs, "backend.rate_limit must be >= 0")
	}
	if c.Backend.MaxRetries < 0 {
		errs = append(errs, "backend.max_retries must be >= 0")
	}
	if c.Backend.ShowLimit <= 0 {
		errs = append(errs, "backend.show_limit must be > 0")
	}
	for i, cr := range c.Backend.Crawlers {
		if cr.Name == "" || cr.URL == "" {
			errs = append(errs, fmt.Sprintf("backend.crawlers[%d] needs a name and a url", i))
		}
	}
	if len(c.Backend.Crawlers) > 0 && c.Backend.CrawlTimeoutSecs <= 0 {
		errs = append(errs, "backend.crawl_timeout_secs must be > 0")
	}
	if c.Roster.FetchConcurrency < 1 || c.Roster.FetchConcurrency > 32 {
		errs = append(errs, "roster.fetch_concurrency must be between 1 and 32")
	}

	if t := c.Monitoring.FailureRateThreshold; t < 0 || t > 1 {
		errs = append(errs, "monitoring.failure_rate_threshold must be between 0 and 1")
	}

	switch mode {
	case "cli":
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be between 1 and 65535")
		}
		if c.Server.ShutdownTimeoutSecs <= 0 {
			errs = append(errs, "server.shutdown_timeout_secs must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Load reads configuration from ./config.yaml and the environment.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file. Unlike ./config.yaml, an
// explicit file must exist.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	// Config file
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// Environment
	v.SetEnvPrefix("ARTISTCHECK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "artist-check.db")
	v.SetDefault("store.redis.addr", "")
	v.SetDefault("store.redis.password", "")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("store.redis.prefix", "artistcheck:")
	v.SetDefault("store.pool.max_conns", 4)
	v.SetDefault("store.pool.min_conns", 1)
	v.SetDefault("backend.base_url", "https://art-back.hkg1.zeabur.app")
	v.SetDefault("backend.timeout_secs", 15)
	v.SetDefault("backend.rate_limit", 5)
	v.SetDefault("backend.burst", 5)
	v.SetDefault("backend.max_retries", 2)
	v.SetDefault("backend.show_limit", 100)
	v.SetDefault("backend.crawlers", []map[string]any{
		{"name": "damai", "url": "https://pa-m.zeabur.app"},
		{"name": "showstart", "url": "https://art-ss.hkg1.zeabur.app"},
	})
	v.SetDefault("backend.crawl_timeout_secs", 120)
	v.SetDefault("gazetteer.path", "")
	v.SetDefault("scoring.timezone", "Asia/Shanghai")
	v.SetDefault("roster.refresh_schedule", "")
	v.SetDefault("roster.fetch_concurrency", 4)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.shutdown_timeout_secs", 10)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.failure_rate_threshold", 0.5)
	v.SetDefault("monitoring.min_artists", 4)
	v.SetDefault("monitoring.max_fetch_failed", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
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
