package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverMongoDB  = "mongodb"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Port        int
	StoreDriver string

	MongoURI       string
	MongoDatabase  string
	DatabaseURL    string
	MigrationsPath string

	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string

	NotificationsEnabled bool
	NotificationsBaseURL string
	NotificationsTimeout time.Duration

	LogLevel slog.Level
}

func defaults() Config {
	return Config{
		Port:                 5000,
		StoreDriver:          DriverMongoDB,
		MongoDatabase:        "user_management",
		MigrationsPath:       "migrations",
		ShutdownTimeout:      10 * time.Second,
		AllowedOrigins:       []string{"*"},
		NotificationsTimeout: 2 * time.Second,
		LogLevel:             slog.LevelInfo,
	}
}

// Load reads the configuration from the environment, after loading envFile
// into it. Variables already set in the environment win over the file. With
// an empty envFile, a ".env" in the working directory is loaded if present.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return Config{}, fmt.Errorf("loading env file %s: %w", envFile, err)
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("loading .env file: %w", err)
	}

	c := defaults()
	var err error

	if c.Port, err = intEnv("PORT", c.Port); err != nil {
		return Config{}, err
	}
	c.StoreDriver = stringEnv("STORE_DRIVER", c.StoreDriver)
	c.MongoURI = stringEnv("MONGODB_URI", c.MongoURI)
	c.MongoDatabase = stringEnv("MONGODB_DATABASE", c.MongoDatabase)
	c.DatabaseURL = stringEnv("DATABASE_URL", c.DatabaseURL)
	c.MigrationsPath = stringEnv("DATABASE_MIGRATIONS_PATH", c.MigrationsPath)

	if c.RequestTimeout, err = durationEnv("HTTP_REQUEST_TIMEOUT", c.RequestTimeout); err != nil {
		return Config{}, err
	}
	if c.ShutdownTimeout, err = durationEnv("HTTP_SHUTDOWN_TIMEOUT", c.ShutdownTimeout); err != nil {
		return Config{}, err
	}
	if origins := stringEnv("CORS_ALLOWED_ORIGINS", ""); origins != "" {
		c.AllowedOrigins = splitList(origins)
	}

	if c.NotificationsEnabled, err = boolEnv("NOTIFICATIONS_ENABLED", c.NotificationsEnabled); err != nil {
		return Config{}, err
	}
	c.NotificationsBaseURL = stringEnv("NOTIFICATIONS_BASE_URL", c.NotificationsBaseURL)
	if c.NotificationsTimeout, err = durationEnv("NOTIFICATIONS_TIMEOUT", c.NotificationsTimeout); err != nil {
		return Config{}, err
	}

	if level, ok := os.LookupEnv("LOG_LEVEL"); ok && level != "" {
		if err := c.LogLevel.UnmarshalText([]byte(level)); err != nil {
			return Config{}, fmt.Errorf("reading LOG_LEVEL: %w", err)
		}
	}

	return c, c.validate()
}

func (c Config) validate() error {
	switch c.StoreDriver {
	case DriverMongoDB:
		if c.MongoURI == "" {
			return errors.New("MONGODB_URI must be set for the mongodb store")
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL must be set for the postgres store")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q, want one of %s, %s, %s", c.StoreDriver, DriverMongoDB, DriverPostgres, DriverMemory)
	}
	if c.NotificationsEnabled && c.NotificationsBaseURL == "" {
		return errors.New("NOTIFICATIONS_BASE_URL must be set when notifications are enabled")
	}
	return nil
}

func stringEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func intEnv(key string, fallback int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", key, err)
	}
	return n, nil
}

// durationEnv expects a unit suffix, like "5s".
func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", key, err)
	}
	return d, nil
}

func boolEnv(key string, fallback bool) (bool, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", key, err)
	}
	return b, nil
}

func splitList(v string) []string {
	list := []string{}
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			list = append(list, item)
		}
	}
	return list
}
