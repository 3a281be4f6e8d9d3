package config

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
	Schema  SchemaConfig  `yaml:"schema" mapstructure:"schema"`
	Ingest  IngestConfig  `yaml:"ingest" mapstructure:"ingest"`
	Upload  UploadConfig  `yaml:"upload" mapstructure:"upload"`
	Session SessionConfig `yaml:"session" mapstructure:"session"`
	Redis   RedisConfig   `yaml:"redis" mapstructure:"redis"`
	Export  ExportConfig  `yaml:"export" mapstructure:"export"`
	Sync    SyncConfig    `yaml:"sync" mapstructure:"sync"`
	Retry   RetryConfig   `yaml:"retry" mapstructure:"retry"`
}

// StoreConfig selects and locates the customer store.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port         int      `yaml:"port" mapstructure:"port"`
	MaxBodyBytes int64    `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	CORSOrigins  []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// SchemaConfig points at an optional dialect table override file.
type SchemaConfig struct {
	TablesFile string `yaml:"tables_file" mapstructure:"tables_file"`
}

// IngestConfig tunes reconciliation writes.
type IngestConfig struct {
	ChunkSize       int  `yaml:"chunk_size" mapstructure:"chunk_size"`
	ChunkPauseMs    int  `yaml:"chunk_pause_ms" mapstructure:"chunk_pause_ms"`
	LookupChunkSize int  `yaml:"lookup_chunk_size" mapstructure:"lookup_chunk_size"`
	RequireAdvisor  bool `yaml:"require_advisor" mapstructure:"require_advisor"`
}

// UploadConfig bounds the batches a file upload is split into.
type UploadConfig struct {
	MaxBatchBytes int `yaml:"max_batch_bytes" mapstructure:"max_batch_bytes"`
	MaxBatchRows  int `yaml:"max_batch_rows" mapstructure:"max_batch_rows"`
}

// SessionConfig configures upload session retention.
type SessionConfig struct {
	TTLHours int `yaml:"ttl_hours" mapstructure:"ttl_hours"`
}

// RedisConfig locates the upload session store.
type RedisConfig struct {
	URL string `yaml:"url" mapstructure:"url"`
}

// ExportConfig selects where failed-row files go.
type ExportConfig struct {
	Driver   string `yaml:"driver" mapstructure:"driver"`
	Dir      string `yaml:"dir" mapstructure:"dir"`
	S3Bucket string `yaml:"s3_bucket" mapstructure:"s3_bucket"`
	S3Prefix string `yaml:"s3_prefix" mapstructure:"s3_prefix"`
	S3Region string `yaml:"s3_region" mapstructure:"s3_region"`
}

// SyncConfig configures the master-data feed.
type SyncConfig struct {
	BaseURL           string   `yaml:"base_url" mapstructure:"base_url"`
	EntityPath        string   `yaml:"entity_path" mapstructure:"entity_path"`
	Filter            string   `yaml:"filter" mapstructure:"filter"`
	TokenURL          string   `yaml:"token_url" mapstructure:"token_url"`
	ClientID          string   `yaml:"client_id" mapstructure:"client_id"`
	ClientSecret      string   `yaml:"client_secret" mapstructure:"client_secret"`
	Scopes            []string `yaml:"scopes" mapstructure:"scopes"`
	PageSize          int      `yaml:"page_size" mapstructure:"page_size"`
	RequestsPerSecond float64  `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	TimeoutSecs       int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	IntervalMinutes   int      `yaml:"interval_minutes" mapstructure:"interval_minutes"`
}

// RetryConfig configures retries of transient feed and store failures.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// Load reads configuration from .env, config.yaml and EMLA_* environment
// variables, in increasing precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("EMLA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Every key needs a default so AutomaticEnv can override it on Unmarshal.
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.sqlite_path", "emla.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.max_body_bytes", 10<<20)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("schema.tables_file", "")
	v.SetDefault("ingest.chunk_size", 10)
	v.SetDefault("ingest.chunk_pause_ms", 100)
	v.SetDefault("ingest.lookup_chunk_size", 100)
	v.SetDefault("ingest.require_advisor", false)
	v.SetDefault("upload.max_batch_bytes", 90000)
	v.SetDefault("upload.max_batch_rows", 250)
	v.SetDefault("session.ttl_hours", 24)
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("export.driver", "file")
	v.SetDefault("export.dir", ".")
	v.SetDefault("export.s3_bucket", "")
	v.SetDefault("export.s3_prefix", "failed-rows")
	v.SetDefault("export.s3_region", "")
	v.SetDefault("sync.base_url", "")
	v.SetDefault("sync.entity_path", "customerMaster/CustomerMaster")
	v.SetDefault("sync.filter", "btpOnboardingAdvisor_userId ne null")
	v.SetDefault("sync.token_url", "")
	v.SetDefault("sync.client_id", "")
	v.SetDefault("sync.client_secret", "")
	v.SetDefault("sync.scopes", []string{})
	v.SetDefault("sync.page_size", 1000)
	v.SetDefault("sync.requests_per_second", 2)
	v.SetDefault("sync.timeout_secs", 60)
	v.SetDefault("sync.interval_minutes", 0)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 250)
	v.SetDefault("retry.max_backoff_ms", 10000)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	return &cfg, nil
}

// Validate checks the settings a command mode depends on. Modes: "upload",
// "advisors", "complete", "migrate", "sync" and "serve".
func (c *Config) Validate(mode string) error {
	var problems []string
	add := func(p string) { problems = append(problems, p) }

	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			add("store.database_url is required for the postgres driver")
		}
	case "sqlite":
		if c.Store.SQLitePath == "" {
			add("store.sqlite_path is required for the sqlite driver")
		}
	default:
		add("store.driver must be postgres or sqlite, got " + quote(c.Store.Driver))
	}

	switch mode {
	case "upload", "serve":
		if c.Ingest.ChunkSize <= 0 {
			add("ingest.chunk_size must be > 0")
		}
		if c.Ingest.ChunkPauseMs < 0 {
			add("ingest.chunk_pause_ms must be >= 0")
		}
		if c.Ingest.LookupChunkSize <= 0 {
			add("ingest.lookup_chunk_size must be > 0")
		}
		if c.Upload.MaxBatchBytes <= 0 || c.Upload.MaxBatchRows <= 0 {
			add("upload.max_batch_bytes and upload.max_batch_rows must be > 0")
		}
		switch c.Export.Driver {
		case "file":
		case "s3":
			if c.Export.S3Bucket == "" {
				add("export.s3_bucket is required for the s3 export driver")
			}
		default:
			add("export.driver must be file or s3, got " + quote(c.Export.Driver))
		}
	case "sync":
		c.validateSync(add)
	case "advisors", "complete", "migrate":
	default:
		add("unknown mode " + quote(mode))
	}

	if mode == "serve" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			add("server.port must be > 0 and <= 65535")
		}
		if c.Server.MaxBodyBytes <= 0 {
			add("server.max_body_bytes must be > 0")
		}
		if c.Session.TTLHours <= 0 {
			add("session.ttl_hours must be > 0")
		}
		if c.Redis.URL == "" {
			add("redis.url is required")
		}
		if c.Sync.IntervalMinutes < 0 {
			add("sync.interval_minutes must be >= 0")
		}
		if c.Sync.IntervalMinutes > 0 {
			c.validateSync(add)
		}
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) validateSync(add func(string)) {
	if c.Sync.BaseURL == "" {
		add("sync.base_url is required")
	}
	if c.Sync.TokenURL != "" && (c.Sync.ClientID == "" || c.Sync.ClientSecret == "") {
		add("sync.client_id and sync.client_secret are required with sync.token_url")
	}
	if c.Sync.PageSize <= 0 {
		add("sync.page_size must be > 0")
	}
	if c.Sync.RequestsPerSecond < 0 {
		add("sync.requests_per_second must be >= 0")
	}
}

func quote(s string) string {
	return `"` + s + `"`
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
