package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

type Config struct {
	App        AppConfig        `toml:"app"`
	Auth       AuthConfig       `toml:"auth"`
	Log        LogConfig        `toml:"log"`
	Database   DatabaseConfig   `toml:"database"`
	Redis      RedisConfig      `toml:"redis"`
	RabbitMQ   RabbitMQConfig   `toml:"rabbitmq"`
	Storage    StorageConfig    `toml:"storage"`
	LLM        LLMConfig        `toml:"llm"`
	Embedding  EmbeddingConfig  `toml:"embedding"`
	Index      IndexConfig      `toml:"index"`
	Retrieval  RetrievalConfig  `toml:"retrieval"`
	Processing ProcessingConfig `toml:"processing"`
	Session    SessionConfig    `toml:"session"`
}

type AppConfig struct {
	Name        string   `toml:"name"`
	Env         string   `toml:"env"`
	Host        string   `toml:"host"`
	Port        int      `toml:"port"`
	GinMode     string   `toml:"gin_mode"`
	CORSOrigins []string `toml:"cors_origins"`
	MaxUploadMB int      `toml:"max_upload_mb"`
}

type AuthConfig struct {
	JWTSecret       string `toml:"jwt_secret"`
	JWTExpireMinute int    `toml:"jwt_expire_minute"`
}

type LogConfig struct {
	Level string `toml:"level"`
	// File enables a rotated JSON log file next to console output.
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
}

// DatabaseConfig selects the relational store. Driver is one of mysql, postgres, sqlite.
type DatabaseConfig struct {
	Driver     string `toml:"driver"`
	Host       string `toml:"host"`
	Port       int    `toml:"port"`
	User       string `toml:"user"`
	Password   string `toml:"password"`
	DB         string `toml:"db"`
	Params     string `toml:"params"`
	DSN        string `toml:"dsn"`
	SQLitePath string `toml:"sqlite_path"`
}

// RedisConfig is optional; an empty Addr disables every Redis-backed component.
type RedisConfig struct {
	Addr                   string `toml:"addr"`
	Password               string `toml:"password"`
	DB                     int    `toml:"db"`
	HistoryTTLSeconds      int    `toml:"history_ttl_seconds"`
	HistoryDirtyTTLSeconds int    `toml:"history_dirty_ttl_seconds"`
}

type RabbitMQConfig struct {
	URL          string `toml:"url"`
	ProcessQueue string `toml:"process_queue"`
	EventsQueue  string `toml:"events_queue"`
}

type StorageConfig struct {
	Driver      string `toml:"driver"`
	LocalRoot   string `toml:"local_root"`
	S3Bucket    string `toml:"s3_bucket"`
	S3Region    string `toml:"s3_region"`
	S3AccessKey string `toml:"s3_access_key"`
	S3SecretKey string `toml:"s3_secret_key"`
}

// LLMConfig configures the question-to-filter translator. Provider is openai, gemini or none.
type LLMConfig struct {
	Provider       string `toml:"provider"`
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// EmbeddingConfig: Provider is openai, gemini or hash.
type EmbeddingConfig struct {
	Provider   string `toml:"provider"`
	BaseURL    string `toml:"base_url"`
	APIKey     string `toml:"api_key"`
	Model      string `toml:"model"`
	Dimensions int    `toml:"dimensions"`
	BatchSize  int    `toml:"batch_size"`
}

// IndexConfig: Driver is sqlite (one index file per document under Root) or pgvector.
type IndexConfig struct {
	Driver      string `toml:"driver"`
	Root        string `toml:"root"`
	PostgresDSN string `toml:"postgres_dsn"`
}

type RetrievalConfig struct {
	PerDocumentK int `toml:"per_document_k"`
	MaxResults   int `toml:"max_results"`
}

type ProcessingConfig struct {
	Async             bool `toml:"async"`
	LockTTLSeconds    int  `toml:"lock_ttl_seconds"`
	RetryDelaySeconds int  `toml:"retry_delay_seconds"`
}

// SessionConfig: Driver is memory or redis.
type SessionConfig struct {
	Driver     string `toml:"driver"`
	TTLMinutes int    `toml:"ttl_minutes"`
}

func Load() (*Config, error) {
	_ = godotenv.Load(getEnv("ENV_FILE", ".env"))

	cfg := Default()

	configPath := getEnv("CONFIG_FILE", "configs/config.toml")
	if _, err := os.Stat(configPath); err == nil {
		if _, err := toml.DecodeFile(configPath, cfg); err != nil {
			return nil, fmt.Errorf("decode config file failed: %w", err)
		}
	}

	overrideByEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.App.Host, c.App.Port)
}

// DatabaseDSN builds the connection string for the configured driver.
func (c *Config) DatabaseDSN() string {
	d := c.Database
	switch d.Driver {
	case "sqlite":
		return d.SQLitePath
	case "postgres":
		if d.DSN != "" {
			return d.DSN
		}
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s %s",
			d.Host, d.Port, d.User, d.Password, d.DB, d.Params)
	default:
		if d.DSN != "" {
			return d.DSN
		}
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
			d.User,
			d.Password,
			d.Host,
			d.Port,
			d.DB,
			d.Params,
		)
	}
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "mysql", "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	switch c.Index.Driver {
	case "sqlite", "pgvector":
	default:
		return fmt.Errorf("unsupported index driver %q", c.Index.Driver)
	}
	switch c.Storage.Driver {
	case "local", "s3":
	default:
		return fmt.Errorf("unsupported storage driver %q", c.Storage.Driver)
	}
	switch c.Session.Driver {
	case "memory", "redis":
	default:
		return fmt.Errorf("unsupported session driver %q", c.Session.Driver)
	}
	if c.Session.Driver == "redis" && c.Redis.Addr == "" {
		return fmt.Errorf("session driver redis requires redis.addr")
	}
	if c.Processing.Async && c.RabbitMQ.URL == "" {
		return fmt.Errorf("async processing requires rabbitmq.url")
	}
	if c.Retrieval.MaxResults <= 0 || c.Retrieval.PerDocumentK <= 0 {
		return fmt.Errorf("retrieval limits must be positive")
	}
	return nil
}

func Default() *Config {
	return &Config{
		App: AppConfig{
			Name:        "docchat",
			Env:         "dev",
			Host:        "0.0.0.0",
			Port:        8080,
			GinMode:     "debug",
			CORSOrigins: []string{"http://localhost:3000"},
			MaxUploadMB: 20,
		},
		Auth: AuthConfig{
			JWTSecret:       "change-me-in-production",
			JWTExpireMinute: 120,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 5,
		},
		Database: DatabaseConfig{
			Driver:     "mysql",
			Host:       "127.0.0.1",
			Port:       3306,
			User:       "root",
			Password:   "",
			DB:         "docchat",
			Params:     "parseTime=true&loc=Local&charset=utf8mb4",
			SQLitePath: "data/docchat.db",
		},
		Redis: RedisConfig{
			Addr:                   "",
			DB:                     0,
			HistoryTTLSeconds:      60,
			HistoryDirtyTTLSeconds: 5,
		},
		RabbitMQ: RabbitMQConfig{
			URL:          "",
			ProcessQueue: "document.process",
			EventsQueue:  "document.processed",
		},
		Storage: StorageConfig{
			Driver:    "local",
			LocalRoot: "uploads",
		},
		LLM: LLMConfig{
			Provider:       "openai",
			BaseURL:        "https://api.openai.com/v1",
			Model:          "gpt-4o-mini",
			TimeoutSeconds: 60,
		},
		Embedding: EmbeddingConfig{
			Provider:   "openai",
			BaseURL:    "https://api.openai.com/v1",
			Model:      "text-embedding-3-small",
			Dimensions: 256,
			BatchSize:  10,
		},
		Index: IndexConfig{
			Driver: "sqlite",
			Root:   "vector_stores",
		},
		Retrieval: RetrievalConfig{
			PerDocumentK: 4,
			MaxResults:   5,
		},
		Processing: ProcessingConfig{
			Async:             false,
			LockTTLSeconds:    600,
			RetryDelaySeconds: 5,
		},
		Session: SessionConfig{
			Driver:     "memory",
			TTLMinutes: 120,
		},
	}
}

func overrideByEnv(cfg *Config) {
	cfg.App.Name = getEnv("APP_NAME", cfg.App.Name)
	cfg.App.Env = getEnv("APP_ENV", cfg.App.Env)
	cfg.App.Host = getEnv("APP_HOST", cfg.App.Host)
	cfg.App.Port = getEnvAsInt("APP_PORT", cfg.App.Port)
	cfg.App.GinMode = getEnv("GIN_MODE", cfg.App.GinMode)
	cfg.App.CORSOrigins = getEnvAsList("APP_CORS_ORIGINS", cfg.App.CORSOrigins)
	cfg.App.MaxUploadMB = getEnvAsInt("APP_MAX_UPLOAD_MB", cfg.App.MaxUploadMB)
	cfg.Auth.JWTSecret = getEnv("JWT_SECRET", cfg.Auth.JWTSecret)
	cfg.Auth.JWTExpireMinute = getEnvAsInt("JWT_EXPIRE_MINUTE", cfg.Auth.JWTExpireMinute)

	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.File = getEnv("LOG_FILE", cfg.Log.File)

	cfg.Database.Driver = getEnv("DB_DRIVER", cfg.Database.Driver)
	cfg.Database.Host = getEnv("DB_HOST", cfg.Database.Host)
	cfg.Database.Port = getEnvAsInt("DB_PORT", cfg.Database.Port)
	cfg.Database.User = getEnv("DB_USER", cfg.Database.User)
	cfg.Database.Password = getEnv("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.DB = getEnv("DB_NAME", cfg.Database.DB)
	cfg.Database.Params = getEnv("DB_PARAMS", cfg.Database.Params)
	cfg.Database.DSN = getEnv("DATABASE_URL", cfg.Database.DSN)
	cfg.Database.SQLitePath = getEnv("DB_SQLITE_PATH", cfg.Database.SQLitePath)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getEnvAsInt("REDIS_DB", cfg.Redis.DB)
	cfg.Redis.HistoryTTLSeconds = getEnvAsInt("REDIS_HISTORY_TTL_SECONDS", cfg.Redis.HistoryTTLSeconds)
	cfg.Redis.HistoryDirtyTTLSeconds = getEnvAsInt("REDIS_HISTORY_DIRTY_TTL_SECONDS", cfg.Redis.HistoryDirtyTTLSeconds)

	cfg.RabbitMQ.URL = getEnv("RABBITMQ_URL", cfg.RabbitMQ.URL)
	cfg.RabbitMQ.ProcessQueue = getEnv("RABBITMQ_PROCESS_QUEUE", cfg.RabbitMQ.ProcessQueue)
	cfg.RabbitMQ.EventsQueue = getEnv("RABBITMQ_EVENTS_QUEUE", cfg.RabbitMQ.EventsQueue)

	cfg.Storage.Driver = getEnv("STORAGE_DRIVER", cfg.Storage.Driver)
	cfg.Storage.LocalRoot = getEnv("STORAGE_LOCAL_ROOT", cfg.Storage.LocalRoot)
	cfg.Storage.S3Bucket = getEnv("S3_BUCKET", cfg.Storage.S3Bucket)
	cfg.Storage.S3Region = getEnv("AWS_REGION", cfg.Storage.S3Region)
	cfg.Storage.S3AccessKey = getEnv("AWS_ACCESS_KEY_ID", cfg.Storage.S3AccessKey)
	cfg.Storage.S3SecretKey = getEnv("AWS_SECRET_ACCESS_KEY", cfg.Storage.S3SecretKey)

	cfg.LLM.Provider = getEnv("LLM_PROVIDER", cfg.LLM.Provider)
	cfg.LLM.BaseURL = getEnv("LLM_BASE_URL", cfg.LLM.BaseURL)
	cfg.LLM.APIKey = getEnv("LLM_API_KEY", cfg.LLM.APIKey)
	cfg.LLM.Model = getEnv("LLM_MODEL", cfg.LLM.Model)
	cfg.LLM.TimeoutSeconds = getEnvAsInt("LLM_TIMEOUT_SECONDS", cfg.LLM.TimeoutSeconds)

	cfg.Embedding.Provider = getEnv("EMBEDDING_PROVIDER", cfg.Embedding.Provider)
	cfg.Embedding.BaseURL = getEnv("EMBEDDING_BASE_URL", cfg.Embedding.BaseURL)
	cfg.Embedding.APIKey = getEnv("EMBEDDING_API_KEY", cfg.Embedding.APIKey)
	cfg.Embedding.Model = getEnv("EMBEDDING_MODEL", cfg.Embedding.Model)
	cfg.Embedding.Dimensions = getEnvAsInt("EMBEDDING_DIMENSIONS", cfg.Embedding.Dimensions)
	cfg.Embedding.BatchSize = getEnvAsInt("EMBEDDING_BATCH_SIZE", cfg.Embedding.BatchSize)

	cfg.Index.Driver = getEnv("INDEX_DRIVER", cfg.Index.Driver)
	cfg.Index.Root = getEnv("INDEX_ROOT", cfg.Index.Root)
	cfg.Index.PostgresDSN = getEnv("INDEX_POSTGRES_DSN", cfg.Index.PostgresDSN)

	cfg.Retrieval.PerDocumentK = getEnvAsInt("RETRIEVAL_PER_DOCUMENT_K", cfg.Retrieval.PerDocumentK)
	cfg.Retrieval.MaxResults = getEnvAsInt("RETRIEVAL_MAX_RESULTS", cfg.Retrieval.MaxResults)

	cfg.Processing.Async = getEnvAsBool("PROCESSING_ASYNC", cfg.Processing.Async)
	cfg.Processing.LockTTLSeconds = getEnvAsInt("PROCESSING_LOCK_TTL_SECONDS", cfg.Processing.LockTTLSeconds)
	cfg.Processing.RetryDelaySeconds = getEnvAsInt("PROCESSING_RETRY_DELAY_SECONDS", cfg.Processing.RetryDelaySeconds)

	cfg.Session.Driver = getEnv("SESSION_DRIVER", cfg.Session.Driver)
	cfg.Session.TTLMinutes = getEnvAsInt("SESSION_TTL_MINUTES", cfg.Session.TTLMinutes)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsList(key string, fallback []string) []string {
	raw, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
