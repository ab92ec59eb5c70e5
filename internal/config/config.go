package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Supported persistence drivers
const (
	DriverDocument = "document"
	DriverPostgres = "postgres"
)

// Supported attachment backends
const (
	StorageLocal = "local"
	StorageS3    = "s3"
)

// Config structure represents the application configuration
type Config struct {
	Server struct {
		Port        string   `yaml:"port" env:"SERVER_PORT"`
		Mode        string   `yaml:"mode" env:"SERVER_MODE"`
		PublicURL   string   `yaml:"public_url" env:"SERVER_PUBLIC_URL"`
		CORSOrigins []string `yaml:"cors_origins" env:"SERVER_CORS_ORIGINS"`
	} `yaml:"server"`

	Database struct {
		Driver          string `yaml:"driver" env:"DB_DRIVER"`
		DocumentPath    string `yaml:"document_path" env:"DB_DOCUMENT_PATH"`
		MigrationsDir   string `yaml:"migrations_dir" env:"DB_MIGRATIONS_DIR"`
		Host            string `yaml:"host" env:"DB_HOST"`
		Port            string `yaml:"port" env:"DB_PORT"`
		User            string `yaml:"user" env:"DB_USER"`
		Password        string `yaml:"password" env:"DB_PASSWORD"`
		DBName          string `yaml:"dbname" env:"DB_NAME"`
		SSLMode         string `yaml:"sslmode" env:"DB_SSLMODE"`
		MaxIdleConns    int    `yaml:"max_idle_conns" env:"DB_MAX_IDLE_CONNS"`
		MaxOpenConns    int    `yaml:"max_open_conns" env:"DB_MAX_OPEN_CONNS"`
		ConnMaxLifetime string `yaml:"conn_max_lifetime" env:"DB_CONN_MAX_LIFETIME"`
	} `yaml:"database"`

	Storage struct {
		Driver     string `yaml:"driver" env:"STORAGE_DRIVER"`
		Path       string `yaml:"path" env:"STORAGE_PATH"`
		RepairCron string `yaml:"repair_cron" env:"STORAGE_REPAIR_CRON"`
		S3         struct {
			Bucket          string `yaml:"bucket" env:"S3_BUCKET"`
			Region          string `yaml:"region" env:"S3_REGION"`
			Endpoint        string `yaml:"endpoint" env:"S3_ENDPOINT"`
			AccessKeyID     string `yaml:"access_key_id" env:"S3_ACCESS_KEY_ID"`
			SecretAccessKey string `yaml:"secret_access_key" env:"S3_SECRET_ACCESS_KEY"`
			PresignTTL      string `yaml:"presign_ttl" env:"S3_PRESIGN_TTL"`
		} `yaml:"s3"`
	} `yaml:"storage"`

	Redis struct {
		Enabled       bool   `yaml:"enabled" env:"REDIS_ENABLED"`
		Addr          string `yaml:"addr" env:"REDIS_ADDR"`
		Password      string `yaml:"password" env:"REDIS_PASSWORD"`
		DB            int    `yaml:"db" env:"REDIS_DB"`
		TranscriptTTL string `yaml:"transcript_ttl" env:"REDIS_TRANSCRIPT_TTL"`
	} `yaml:"redis"`

	JWT struct {
		Secret                string `yaml:"secret" env:"JWT_SECRET"`
		AccessTokenExpiration string `yaml:"access_token_expiration" env:"JWT_ACCESS_TOKEN_EXPIRATION"`
		Issuer                string `yaml:"issuer" env:"JWT_ISSUER"`
	} `yaml:"jwt"`

	Assistant struct {
		ChatID          string  `yaml:"chat_id" env:"ASSISTANT_CHAT_ID"`
		BotUserID       string  `yaml:"bot_user_id" env:"ASSISTANT_BOT_USER_ID"`
		OpenAIAPIKey    string  `yaml:"openai_api_key" env:"OPENAI_API_KEY"`
		OpenAIBaseURL   string  `yaml:"openai_base_url" env:"OPENAI_BASE_URL"`
		Model           string  `yaml:"model" env:"ASSISTANT_MODEL"`
		MaxTokens       int     `yaml:"max_tokens" env:"ASSISTANT_MAX_TOKENS"`
		Temperature     float64 `yaml:"temperature" env:"ASSISTANT_TEMPERATURE"`
		HistorySize     int     `yaml:"history_size" env:"ASSISTANT_HISTORY_SIZE"`
		ReplyDelay      string  `yaml:"reply_delay" env:"ASSISTANT_REPLY_DELAY"`
		DefaultCity     string  `yaml:"default_city" env:"ASSISTANT_DEFAULT_CITY"`
		WeatherAPIKey   string  `yaml:"weather_api_key" env:"OPENWEATHER_API_KEY"`
		WeatherBaseURL  string  `yaml:"weather_base_url" env:"OPENWEATHER_BASE_URL"`
		NewsAPIKey      string  `yaml:"news_api_key" env:"NEWSAPI_KEY"`
		NewsBaseURL     string  `yaml:"news_base_url" env:"NEWSAPI_BASE_URL"`
		ExchangeBaseURL string  `yaml:"exchange_base_url" env:"EXCHANGE_BASE_URL"`
		RateLimitRPS    float64 `yaml:"rate_limit_rps" env:"ASSISTANT_RATE_LIMIT_RPS"`
		RateLimitBurst  int     `yaml:"rate_limit_burst" env:"ASSISTANT_RATE_LIMIT_BURST"`
	} `yaml:"assistant"`

	Logging struct {
		Level  string `yaml:"level" env:"LOG_LEVEL"`
		Format string `yaml:"format" env:"LOG_FORMAT"`
	} `yaml:"logging"`
}

// LoadConfig loads configuration from a file, a .env file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	config := &Config{}
	setDefaults(config)

	// A missing .env is normal outside local development
	_ = godotenv.Load()

	if _, err := os.Stat(configPath); err == nil {
		file, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := yaml.Unmarshal(file, config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := loadFromEnv(config); err != nil {
		return nil, fmt.Errorf("failed to load from environment: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// setDefaults sets default values for the configuration
func setDefaults(config *Config) {
	config.Server.Port = "4000"
	config.Server.Mode = "development"
	config.Server.CORSOrigins = []string{"*"}

	config.Database.Driver = DriverDocument
	config.Database.DocumentPath = "data/db.json"
	config.Database.MigrationsDir = "migrations"
	config.Database.Host = "localhost"
	config.Database.Port = "5432"
	config.Database.User = "postgres"
	config.Database.Password = "postgres"
	config.Database.DBName = "educhat"
	config.Database.SSLMode = "disable"
	config.Database.MaxIdleConns = 5
	config.Database.MaxOpenConns = 20
	config.Database.ConnMaxLifetime = "1h"

	config.Storage.Driver = StorageLocal
	config.Storage.Path = "uploads"
	config.Storage.RepairCron = "@hourly"
	config.Storage.S3.Region = "us-east-1"
	config.Storage.S3.PresignTTL = "15m"

	config.Redis.Addr = "localhost:6379"
	config.Redis.TranscriptTTL = "24h"

	config.JWT.AccessTokenExpiration = "24h"
	config.JWT.Issuer = "educhat.app"

	config.Assistant.ChatID = "bot-chat"
	config.Assistant.BotUserID = "bot"
	config.Assistant.OpenAIBaseURL = "https://api.openai.com/v1"
	config.Assistant.Model = "gpt-3.5-turbo"
	config.Assistant.MaxTokens = 512
	config.Assistant.Temperature = 0.7
	config.Assistant.HistorySize = 10
	config.Assistant.ReplyDelay = "1s"
	config.Assistant.DefaultCity = "Алматы"
	config.Assistant.WeatherBaseURL = "https://api.openweathermap.org/data/2.5"
	config.Assistant.NewsBaseURL = "https://newsapi.org/v2"
	config.Assistant.ExchangeBaseURL = "https://api.exchangerate.host"
	config.Assistant.RateLimitRPS = 1
	config.Assistant.RateLimitBurst = 5

	config.Logging.Level = "info"
	config.Logging.Format = "json"
}

// loadFromEnv overrides configuration with environment variables
func loadFromEnv(config *Config) error {
	return processStructFields(config)
}

// validateConfig ensures that the configuration is valid
func validateConfig(config *Config) error {
	switch config.Database.Driver {
	case DriverDocument:
		if config.Database.DocumentPath == "" {
			return fmt.Errorf("document store path is required")
		}
	case DriverPostgres:
		if config.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if _, err := time.ParseDuration(config.Database.ConnMaxLifetime); err != nil {
			return fmt.Errorf("invalid connection max lifetime: %w", err)
		}
	default:
		return fmt.Errorf("unsupported database driver %q", config.Database.Driver)
	}

	switch config.Storage.Driver {
	case StorageLocal:
		if config.Storage.Path == "" {
			return fmt.Errorf("storage path is required")
		}
	case StorageS3:
		if config.Storage.S3.Bucket == "" {
			return fmt.Errorf("s3 bucket is required")
		}
		if _, err := time.ParseDuration(config.Storage.S3.PresignTTL); err != nil {
			return fmt.Errorf("invalid s3 presign ttl: %w", err)
		}
	default:
		return fmt.Errorf("unsupported storage driver %q", config.Storage.Driver)
	}

	if config.Storage.RepairCron != "" && !gronx.IsValid(config.Storage.RepairCron) {
		return fmt.Errorf("invalid repair cron expression: %s", config.Storage.RepairCron)
	}

	if config.JWT.Secret == "" {
		return fmt.Errorf("JWT secret is required")
	}

	if _, err := time.ParseDuration(config.JWT.AccessTokenExpiration); err != nil {
		return fmt.Errorf("invalid JWT access token expiration format: %w", err)
	}

	if _, err := time.ParseDuration(config.Assistant.ReplyDelay); err != nil {
		return fmt.Errorf("invalid assistant reply delay: %w", err)
	}

	if config.Assistant.ChatID == "" || config.Assistant.BotUserID == "" {
		return fmt.Errorf("assistant chat id and bot user id are required")
	}

	if config.Assistant.HistorySize <= 0 {
		return fmt.Errorf("assistant history size must be positive")
	}

	return nil
}

// GetPostgresConnectionString returns postgres connection string
func (c *Config) GetPostgresConnectionString() string {
	sslMode := c.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.DBName,
		sslMode,
	)
}

// PublicBaseURL returns the externally visible base URL of the API
func (c *Config) PublicBaseURL() string {
	if c.Server.PublicURL != "" {
		return strings.TrimRight(c.Server.PublicURL, "/")
	}
	return "http://localhost:" + c.Server.Port
}

// ParseDuration parses a duration string, returning fallback when it is empty or invalid
func ParseDuration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
