package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port                 string
	AllowedOrigin        string
	DatabaseURL          string
	RedisAddr            string
	RedisPassword        string
	RedisDB              int
	TokenCacheTTLSeconds int

	// Agent-side settings.
	SyncServerURL       string
	SyncUsername        string
	SyncPassword        string
	PullIntervalSeconds int
	PushIntervalSeconds int
	SyncTimeoutSeconds  int
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	cacheTTL, err := strconv.Atoi(getEnv("TOKEN_CACHE_TTL_SECONDS", "300"))
	if err != nil || cacheTTL < 1 {
		cacheTTL = 300
	}
	pull, err := strconv.Atoi(getEnv("PULL_INTERVAL_SECONDS", "300"))
	if err != nil || pull < 1 {
		pull = 300
	}
	push, err := strconv.Atoi(getEnv("PUSH_INTERVAL_SECONDS", "60"))
	if err != nil || push < 1 {
		push = 60
	}
	timeout, err := strconv.Atoi(getEnv("SYNC_TIMEOUT_SECONDS", "30"))
	if err != nil || timeout < 1 {
		timeout = 30
	}

	cfg := Config{
		Port:                 getEnv("PORT", "8080"),
		AllowedOrigin:        getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		RedisAddr:            os.Getenv("REDIS_ADDR"),
		RedisPassword:        os.Getenv("REDIS_PASSWORD"),
		RedisDB:              redisDB,
		TokenCacheTTLSeconds: cacheTTL,
		SyncServerURL:        getEnv("SYNC_SERVER_URL", "http://127.0.0.1:8080"),
		SyncUsername:         strings.TrimSpace(os.Getenv("SYNC_USERNAME")),
		SyncPassword:         os.Getenv("SYNC_PASSWORD"),
		PullIntervalSeconds:  pull,
		PushIntervalSeconds:  push,
		SyncTimeoutSeconds:   timeout,
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
