package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	APIBaseURL string
	SocketURL  string
	Token      string
	Username   string
	Role       string
	Env        string

	TypingTTL  time.Duration
	RetryDelay time.Duration
	MaxRetries int
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Info().Msg("[config] no .env file found, relying on system environment variables")
	} else {
		log.Info().Msg("[config] loaded .env file")
	}

	cfg := &Config{
		APIBaseURL: getEnv("API_BASE_URL", "http://localhost:8080/api"),
		SocketURL:  getEnv("SOCKET_URL", "ws://localhost:8080/ws"),
		Token:      getEnv("CHAT_TOKEN", ""),
		Username:   getEnv("CHAT_USERNAME", ""),
		Role:       getEnv("CHAT_ROLE", "tester"),
		Env:        getEnv("APP_ENV", "development"),
		TypingTTL:  getDuration("TYPING_TTL", 3*time.Second),
		RetryDelay: getDuration("RETRY_DELAY", 2*time.Second),
		MaxRetries: getInt("MAX_RETRIES", 0),
	}

	log.Info().Str("env", cfg.Env).Str("api", cfg.APIBaseURL).Str("socket", cfg.SocketURL).Msg("[config] configuration initialized")

	if cfg.Token == "" {
		log.Warn().Msg("[config] CHAT_TOKEN is empty, requests will be rejected until a credential is supplied")
	}
	if cfg.Username == "" {
		log.Fatal().Msg("[config] CHAT_USERNAME is missing, the console cannot start")
	}

	return cfg
}

func getEnv(key, defaultValue string) string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	return value
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Warn().Str("key", key).Str("value", value).Msg("[config] invalid duration, using default")
		return defaultValue
	}
	return d
}

func getInt(key string, defaultValue int) int {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Warn().Str("key", key).Str("value", value).Msg("[config] invalid integer, using default")
		return defaultValue
	}
	return n
}
