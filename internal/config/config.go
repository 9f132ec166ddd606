package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	DatabaseURL           string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	AuthSecret            string
	AccessTokenTTLMinutes int
	StripeSecret          string
	StripeWebhookSecret   string
	Currency              string
	PaymentLookupTimeout  time.Duration
	OrderCacheTTLSeconds  int
}

func Load() Config {
	// A missing .env is the normal case in production; ignore the error.
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	tokenTTL, err := strconv.Atoi(getEnv("ACCESS_TOKEN_TTL_MINUTES", "10080"))
	if err != nil || tokenTTL < 1 {
		tokenTTL = 10080
	}
	lookupTimeout, err := strconv.Atoi(getEnv("PAYMENT_LOOKUP_TIMEOUT_SECONDS", "8"))
	if err != nil || lookupTimeout < 1 {
		lookupTimeout = 8
	}
	cacheTTL, err := strconv.Atoi(getEnv("ORDER_CACHE_TTL_SECONDS", "3600"))
	if err != nil || cacheTTL < 1 {
		cacheTTL = 3600
	}

	cfg := Config{
		Port:                  getEnv("PORT", "8080"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:5173"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               redisDB,
		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes: tokenTTL,
		StripeSecret:          strings.TrimSpace(os.Getenv("STRIPE_SECRET")),
		StripeWebhookSecret:   strings.TrimSpace(os.Getenv("STRIPE_WEBHOOK_SECRET")),
		Currency:              strings.ToLower(getEnv("CURRENCY", "aud")),
		PaymentLookupTimeout:  time.Duration(lookupTimeout) * time.Second,
		OrderCacheTTLSeconds:  cacheTTL,
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
