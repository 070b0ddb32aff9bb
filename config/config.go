package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"mongosession/utils"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Config struct {
	Env     string `validate:"required,oneof=development production test"`
	Port    string `validate:"required,numeric"`
	// MaxBodySize caps API request bodies, in bytes.
	MaxBodySize int `validate:"gt=0"`
	Mongo   DatabaseConfig
	Redis   RedisConfig
	Session SessionConfig
}

type DatabaseConfig struct {
	URI              string        `validate:"required,startswith=mongodb"`
	DatabaseName     string        `validate:"required"`
	Collection       string        `validate:"required"`
	MaxPoolSize      uint64        `validate:"gtefield=MinPoolSize"`
	MinPoolSize      uint64
	MaxConnIdleTime  time.Duration `validate:"gte=0"`
	OperationTimeout time.Duration `validate:"gt=0"`
	RetryWrites      bool
}

// RedisConfig is optional: an empty URL disables the session cache.
type RedisConfig struct {
	URL string `validate:"omitempty,startswith=redis"`
}

type SessionConfig struct {
	MaxInactiveInterval time.Duration
	CookieName          string `validate:"required,alphanum"`
	CookieSecure        bool
}

// Load reads the configuration from the environment, loading a .env file first
// when one exists.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &Config{
		Env:         utils.GetEnvAsString("GO_ENV", "development"),
		Port:        utils.GetEnvAsString("PORT", "8080"),
		MaxBodySize: utils.GetEnvAsInt("MAX_REQUEST_BODY_SIZE", 1<<20),
		Mongo: DatabaseConfig{
			URI:              utils.GetEnvAsString("MONGO_URI", "mongodb://localhost:27017"),
			DatabaseName:     utils.GetEnvAsString("MONGO_DB", "sessions"),
			Collection:       utils.GetEnvAsString("SESSION_COLLECTION", "sessions"),
			MaxPoolSize:      utils.GetEnvAsUint64("MONGO_MAX_POOL_SIZE", 100),
			MinPoolSize:      utils.GetEnvAsUint64("MONGO_MIN_POOL_SIZE", 10),
			MaxConnIdleTime:  utils.GetEnvAsDuration("MONGO_MAX_CONN_IDLE_TIME", 60*time.Second),
			OperationTimeout: utils.GetEnvAsDuration("MONGO_OPERATION_TIMEOUT", 10*time.Second),
			RetryWrites:      utils.GetEnvAsBool("MONGO_RETRY_WRITES", true),
		},
		Redis: RedisConfig{
			URL: utils.GetEnvAsString("REDIS_URL", ""),
		},
		Session: SessionConfig{
			MaxInactiveInterval: utils.GetEnvAsDuration("SESSION_MAX_INACTIVE_INTERVAL", 30*time.Minute),
			CookieName:          utils.GetEnvAsString("SESSION_COOKIE_NAME", "SESSION"),
			CookieSecure:        utils.GetEnvAsBool("SESSION_COOKIE_SECURE", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ClientOptions returns the driver options for the configured deployment.
func (d DatabaseConfig) ClientOptions() *options.ClientOptions {
	return options.Client().
		ApplyURI(d.URI).
		SetMaxPoolSize(d.MaxPoolSize).
		SetMinPoolSize(d.MinPoolSize).
		SetMaxConnIdleTime(d.MaxConnIdleTime).
		SetRetryWrites(d.RetryWrites)
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
