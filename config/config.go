package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App       AppConfig
	HTTP      ServerConfig
	DB        DBConfig
	Log       LogConfig
	Scheduler SchedulerConfig
}

type AppConfig struct {
	ServiceName string
}

type ServerConfig struct {
	Host string
	Port string
}

type DBConfig struct {
	// Path is the SQLite database file. ":memory:" runs without a file.
	Path string
}

type LogConfig struct {
	Level string
}

type SchedulerConfig struct {
	Enabled       bool
	CheckInterval time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	return &Config{
		App: AppConfig{
			ServiceName: getEnv("APP_SERVICE_NAME", "benefits-engine"),
		},
		HTTP: ServerConfig{
			Host: getEnv("HTTP_HOST", "0.0.0.0"),
			Port: getEnv("HTTP_PORT", "8080"),
		},
		DB: DBConfig{
			Path: getEnv("DB_PATH", "benefits.db"),
		},
		Log: LogConfig{Level: getEnv("LOG_LEVEL", "info")},
		Scheduler: SchedulerConfig{
			Enabled:       getBoolEnv("SCHEDULER_ENABLED", true),
			CheckInterval: getDurationEnv("SCHEDULER_CHECK_INTERVAL_MINUTES", 60*time.Minute),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if minutes, err := strconv.Atoi(value); err == nil {
			return time.Duration(minutes) * time.Minute
		}
	}
	return defaultValue
}
