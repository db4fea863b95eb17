package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                    string
	AllowedOrigin           string
	DatabaseURL             string
	RedisAddr               string
	RedisPassword           string
	RedisDB                 int
	SummaryCacheTTLSeconds  int
	AuthSecret              string
	AccessTokenTTLMinutes   int
	CreditZeroLimitPolicy   string
	DefaultDueDays          int
	LoginRateLimitPerMinute int
	LogLevel                string
	LogFormat               string
}

// Load reads the process environment. A .env file in the working
// directory is applied first when present; real env vars win.
func Load() Config {
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))

	cfg := Config{
		Port:                    getEnv("PORT", "8080"),
		AllowedOrigin:           getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:             os.Getenv("DATABASE_URL"),
		RedisAddr:               os.Getenv("REDIS_ADDR"),
		RedisPassword:           os.Getenv("REDIS_PASSWORD"),
		RedisDB:                 redisDB,
		SummaryCacheTTLSeconds:  positiveInt("SUMMARY_CACHE_TTL_SECONDS", 60),
		AuthSecret:              strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes:   positiveInt("ACCESS_TOKEN_TTL_MINUTES", 480),
		CreditZeroLimitPolicy:   strings.ToLower(getEnv("CREDIT_ZERO_LIMIT_POLICY", "unlimited")),
		DefaultDueDays:          positiveInt("DEFAULT_DUE_DAYS", 30),
		LoginRateLimitPerMinute: positiveInt("LOGIN_RATE_LIMIT_PER_MINUTE", 5),
		LogLevel:                getEnv("LOG_LEVEL", "info"),
		LogFormat:               getEnv("LOG_FORMAT", "json"),
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

func positiveInt(key string, fallback int) int {
	val, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || val < 1 {
		return fallback
	}
	return val
}
