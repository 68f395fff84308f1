package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/library-service/cmd/api/config"
	"github.com/matryer/is"
)

var keys = []string{
	"PORT", "STORE_DRIVER", "MONGODB_URI", "MONGODB_DATABASE", "DATABASE_URL",
	"DATABASE_MIGRATIONS_PATH", "HTTP_REQUEST_TIMEOUT", "HTTP_SHUTDOWN_TIMEOUT",
	"CORS_ALLOWED_ORIGINS", "NOTIFICATIONS_ENABLED", "NOTIFICATIONS_BASE_URL",
	"NOTIFICATIONS_TIMEOUT", "LOG_LEVEL",
}

/* Blanks every configuration variable for the duration of the test. */
func clearEnv(t *testing.T) {
	for _, key := range keys {
		t.Setenv(key, "")
	}
}

func TestLoad(t *testing.T) {
	t.Run("applies the defaults", func(t *testing.T) {
		is := is.New(t)
		clearEnv(t)
		t.Setenv("MONGODB_URI", "mongodb://localhost:27017")

		c, err := config.Load("")
		is.NoErr(err)
		is.Equal(c.Port, 5000)
		is.Equal(c.StoreDriver, config.DriverMongoDB)
		is.Equal(c.MongoDatabase, "user_management")
		is.Equal(c.RequestTimeout, time.Duration(0))
		is.Equal(c.ShutdownTimeout, 10*time.Second)
		is.Equal(c.AllowedOrigins, []string{"*"})
		is.Equal(c.LogLevel, slog.LevelInfo)
		is.True(!c.NotificationsEnabled)
	})

	t.Run("reads overrides from the environment", func(t *testing.T) {
		is := is.New(t)
		clearEnv(t)
		t.Setenv("PORT", "8080")
		t.Setenv("STORE_DRIVER", "memory")
		t.Setenv("HTTP_REQUEST_TIMEOUT", "3s")
		t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.local, http://b.local")
		t.Setenv("NOTIFICATIONS_ENABLED", "true")
		t.Setenv("NOTIFICATIONS_BASE_URL", "https://ntfy.sh/library")
		t.Setenv("LOG_LEVEL", "debug")

		c, err := config.Load("")
		is.NoErr(err)
		is.Equal(c.Port, 8080)
		is.Equal(c.StoreDriver, config.DriverMemory)
		is.Equal(c.RequestTimeout, 3*time.Second)
		is.Equal(c.AllowedOrigins, []string{"http://a.local", "http://b.local"})
		is.True(c.NotificationsEnabled)
		is.Equal(c.NotificationsBaseURL, "https://ntfy.sh/library")
		is.Equal(c.LogLevel, slog.LevelDebug)
	})

	t.Run("loads an env file without overriding the environment", func(t *testing.T) {
		is := is.New(t)
		clearEnv(t)
		os.Unsetenv("STORE_DRIVER")
		os.Unsetenv("DATABASE_URL")
		t.Setenv("PORT", "7000")

		path := filepath.Join(t.TempDir(), "test.env")
		content := "STORE_DRIVER=postgres\nDATABASE_URL=postgres://localhost/library\nPORT=9000\n"
		is.NoErr(os.WriteFile(path, []byte(content), 0o600))
		t.Cleanup(func() {
			os.Unsetenv("STORE_DRIVER")
			os.Unsetenv("DATABASE_URL")
		})

		c, err := config.Load(path)
		is.NoErr(err)
		is.Equal(c.StoreDriver, config.DriverPostgres)
		is.Equal(c.DatabaseURL, "postgres://localhost/library")
		is.Equal(c.Port, 7000)
	})

	t.Run("expected errors", func(t *testing.T) {
		tests := []struct {
			name string
			env  map[string]string
		}{
			{"unknown driver", map[string]string{"STORE_DRIVER": "redis"}},
			{"mongodb without uri", map[string]string{"STORE_DRIVER": "mongodb"}},
			{"postgres without url", map[string]string{"STORE_DRIVER": "postgres"}},
			{"invalid port", map[string]string{"STORE_DRIVER": "memory", "PORT": "http"}},
			{"timeout without unit", map[string]string{"STORE_DRIVER": "memory", "HTTP_REQUEST_TIMEOUT": "5"}},
			{"notifications without url", map[string]string{"STORE_DRIVER": "memory", "NOTIFICATIONS_ENABLED": "true"}},
			{"invalid log level", map[string]string{"STORE_DRIVER": "memory", "LOG_LEVEL": "loud"}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				is := is.New(t)
				clearEnv(t)
				for k, v := range tt.env {
					t.Setenv(k, v)
				}

				_, err := config.Load("")
				is.True(err != nil)
			})
		}
	})

	t.Run("a missing env file is an error when asked for", func(t *testing.T) {
		is := is.New(t)
		clearEnv(t)
		t.Setenv("STORE_DRIVER", "memory")

		_, err := config.Load(filepath.Join(t.TempDir(), "missing.env"))
		is.True(err != nil)
	})
}
