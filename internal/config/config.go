package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Upstream UpstreamConfig
	Sync     SyncConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	SyncLogFilePath    string
	CorsAllowedOrigins string
	JwtSecret          string
}

type UpstreamConfig struct {
	BaseURL     string
	WsURL       string // empty disables the status stream subscriber
	APIToken    string
	StatusTopic string
}

type SyncConfig struct {
	DebounceMs     int
	EngineTopic    string
	SessionIdleTTL time.Duration
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3100"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/gateway.log"),
			SyncLogFilePath:    getEnv("SYNC_LOG_FILE_PATH", "logs/sync.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			JwtSecret:          getEnv("JWT_SECRET", ""),
		},
		Upstream: UpstreamConfig{
			BaseURL:     getEnv("UPSTREAM_BASE_URL", "http://localhost:8000/api"),
			WsURL:       getEnv("UPSTREAM_WS_URL", ""),
			APIToken:    getEnv("UPSTREAM_API_TOKEN", ""),
			StatusTopic: getEnv("STATUS_EVENTS_TOPIC_NAME", "DRAFT_STATUS_EVENTS"),
		},
		Sync: SyncConfig{
			DebounceMs:     getEnvAsInt("SYNC_DEBOUNCE_MS", 2000),
			EngineTopic:    getEnv("ENGINE_EVENTS_TOPIC_NAME", "DRAFT_ENGINE_EVENTS"),
			SessionIdleTTL: time.Duration(getEnvAsInt("SESSION_IDLE_TTL_MIN", 60)) * time.Minute,
		},
	}
}

func (c *SyncConfig) DebounceDelay() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}
