package config

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig
	Replenish ReplenishConfig
	Forecast  ForecastConfig
	Order     OrderConfig
	Server    ServerConfig
	Database  DatabaseConfig
	Cache     CacheConfig
	Storage   StorageConfig
	Drive     DriveConfig
}

type AppConfig struct {
	LogLevel  string
	LogFile   string
	OutputDir string
}

type ReplenishConfig struct {
	HorizonDays int `validate:"min=1"`
	CallAPI     bool
	Workers     int `validate:"min=1"`
}

type ForecastConfig struct {
	WindowDays     int `validate:"min=1"`
	URL            string
	TimeoutSeconds int `validate:"min=1"`
}

type OrderConfig struct {
	APIURL             string
	TokenURL           string
	ClientID           string
	ClientSecret       string
	MaxAttempts        int    `validate:"min=1"`
	BackoffBaseSeconds int    `validate:"min=0"`
	BackoffStrategy    string `validate:"oneof=linear exponential"`
	TimeoutSeconds     int    `validate:"min=1"`
}

type ServerConfig struct {
	Port           string
	Mode           string
	ReadTimeout    int
	WriteTimeout   int
	AllowedOrigins []string
}

type DatabaseConfig struct {
	Enabled  bool
	Driver   string `validate:"oneof=postgres pgx"`
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type CacheConfig struct {
	Enabled            bool
	RedisURL           string
	RedisHost          string
	RedisPort          string
	RedisPassword      string
	RedisDB            int
	ForecastTTLSeconds int
}

type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

type DriveConfig struct {
	CredentialsJSON string
}

// BackoffBase returns the configured retry backoff unit.
func (c OrderConfig) BackoffBase() time.Duration {
	return time.Duration(c.BackoffBaseSeconds) * time.Second
}

// Timeout returns the per-request timeout for the order API.
func (c OrderConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Timeout returns the per-request timeout for the forecast sidecar.
func (c ForecastConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Configured reports whether enough settings exist to reach object storage.
func (c StorageConfig) Configured() bool {
	return c.Endpoint != "" && c.Bucket != ""
}

var (
	once     sync.Once
	instance *Config
	loadErr  error
)

// Load reads the process configuration once from .env and the environment.
func Load() (*Config, error) {
	once.Do(func() {
		// Load .env file if it exists
		_ = godotenv.Load()

		v := viper.GetViper()
		SetDefaults(v)
		v.AutomaticEnv()

		instance, loadErr = FromViper(v)
		if loadErr != nil {
			return
		}
		loadErr = ensureDir(instance.App.OutputDir)
	})

	return instance, loadErr
}

// SetDefaults registers every default value on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FILE", "app.log")
	v.SetDefault("APP_OUTPUT_DIR", "./data/output")

	v.SetDefault("REPLENISH_HORIZON_DAYS", 1)
	v.SetDefault("REPLENISH_CALL_API", false)
	v.SetDefault("REPLENISH_WORKERS", 4)

	v.SetDefault("FORECAST_WINDOW_DAYS", 28)
	v.SetDefault("FORECAST_URL", "")
	v.SetDefault("FORECAST_TIMEOUT_SECONDS", 30)

	v.SetDefault("ORDER_API_URL", "")
	v.SetDefault("ORDER_TOKEN_URL", "")
	v.SetDefault("ORDER_CLIENT_ID", "")
	v.SetDefault("ORDER_CLIENT_SECRET", "")
	v.SetDefault("ORDER_MAX_ATTEMPTS", 3)
	v.SetDefault("ORDER_BACKOFF_BASE_SECONDS", 5)
	v.SetDefault("ORDER_BACKOFF_STRATEGY", "linear")
	v.SetDefault("ORDER_TIMEOUT_SECONDS", 15)

	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("SERVER_MODE", "debug")
	v.SetDefault("SERVER_READ_TIMEOUT", 30)
	v.SetDefault("SERVER_WRITE_TIMEOUT", 120)
	v.SetDefault("SERVER_ALLOWED_ORIGINS", []string{"*"})

	v.SetDefault("DB_ENABLED", false)
	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "autopo")
	v.SetDefault("DB_SSLMODE", "disable")

	v.SetDefault("CACHE_ENABLED", false)
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("REDIS_HOST", "127.0.0.1")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("CACHE_FORECAST_TTL_SECONDS", 3600)

	v.SetDefault("STORAGE_ENDPOINT", "")
	v.SetDefault("STORAGE_ACCESS_KEY", "")
	v.SetDefault("STORAGE_SECRET_KEY", "")
	v.SetDefault("STORAGE_BUCKET", "")
	v.SetDefault("STORAGE_REGION", "us-east-1")
	v.SetDefault("STORAGE_USE_SSL", true)

	v.SetDefault("GOOGLE_DRIVE_CREDENTIALS_JSON", "")
}

// FromViper builds and validates a Config from an already populated viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			LogLevel:  v.GetString("LOG_LEVEL"),
			LogFile:   v.GetString("LOG_FILE"),
			OutputDir: v.GetString("APP_OUTPUT_DIR"),
		},
		Replenish: ReplenishConfig{
			HorizonDays: v.GetInt("REPLENISH_HORIZON_DAYS"),
			CallAPI:     v.GetBool("REPLENISH_CALL_API"),
			Workers:     v.GetInt("REPLENISH_WORKERS"),
		},
		Forecast: ForecastConfig{
			WindowDays:     v.GetInt("FORECAST_WINDOW_DAYS"),
			URL:            v.GetString("FORECAST_URL"),
			TimeoutSeconds: v.GetInt("FORECAST_TIMEOUT_SECONDS"),
		},
		Order: OrderConfig{
			APIURL:             v.GetString("ORDER_API_URL"),
			TokenURL:           v.GetString("ORDER_TOKEN_URL"),
			ClientID:           v.GetString("ORDER_CLIENT_ID"),
			ClientSecret:       v.GetString("ORDER_CLIENT_SECRET"),
			MaxAttempts:        v.GetInt("ORDER_MAX_ATTEMPTS"),
			BackoffBaseSeconds: v.GetInt("ORDER_BACKOFF_BASE_SECONDS"),
			BackoffStrategy:    v.GetString("ORDER_BACKOFF_STRATEGY"),
			TimeoutSeconds:     v.GetInt("ORDER_TIMEOUT_SECONDS"),
		},
		Server: ServerConfig{
			Port:           v.GetString("SERVER_PORT"),
			Mode:           v.GetString("SERVER_MODE"),
			ReadTimeout:    v.GetInt("SERVER_READ_TIMEOUT"),
			WriteTimeout:   v.GetInt("SERVER_WRITE_TIMEOUT"),
			AllowedOrigins: v.GetStringSlice("SERVER_ALLOWED_ORIGINS"),
		},
		Database: DatabaseConfig{
			Enabled:  v.GetBool("DB_ENABLED"),
			Driver:   v.GetString("DB_DRIVER"),
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetString("DB_PORT"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			DBName:   v.GetString("DB_NAME"),
			SSLMode:  v.GetString("DB_SSLMODE"),
		},
		Cache: CacheConfig{
			Enabled:            v.GetBool("CACHE_ENABLED"),
			RedisURL:           v.GetString("REDIS_URL"),
			RedisHost:          v.GetString("REDIS_HOST"),
			RedisPort:          v.GetString("REDIS_PORT"),
			RedisPassword:      v.GetString("REDIS_PASSWORD"),
			RedisDB:            v.GetInt("REDIS_DB"),
			ForecastTTLSeconds: v.GetInt("CACHE_FORECAST_TTL_SECONDS"),
		},
		Storage: StorageConfig{
			Endpoint:  v.GetString("STORAGE_ENDPOINT"),
			AccessKey: v.GetString("STORAGE_ACCESS_KEY"),
			SecretKey: v.GetString("STORAGE_SECRET_KEY"),
			Bucket:    v.GetString("STORAGE_BUCKET"),
			Region:    v.GetString("STORAGE_REGION"),
			UseSSL:    v.GetBool("STORAGE_USE_SSL"),
		},
		Drive: DriveConfig{
			CredentialsJSON: v.GetString("GOOGLE_DRIVE_CREDENTIALS_JSON"),
		},
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func ensureDir(dir string) error {
	if dir == "" {
		return nil
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
