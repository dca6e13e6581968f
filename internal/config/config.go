package config

import (
	"os"
	"time"
)

type Config struct {
	DatabaseURL     string
	RedisURL        string
	KafkaBrokers    string
	NatsURL         string
	JaegerEndpoint  string
	Port            string
	PublicBaseURL   string
	FrontendBaseURL string
	ProviderTimeout time.Duration
}

func Load() *Config {
	port := getenv("PORT", "8082")

	timeout := 10 * time.Second
	if raw := os.Getenv("PROVIDER_TIMEOUT"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			timeout = d
		}
	}

	return &Config{
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		RedisURL:        os.Getenv("REDIS_URL"),
		KafkaBrokers:    os.Getenv("KAFKA_BROKERS"),
		NatsURL:         os.Getenv("NATS_URL"),
		JaegerEndpoint:  os.Getenv("JAEGER_ENDPOINT"),
		Port:            port,
		PublicBaseURL:   getenv("PUBLIC_BASE_URL", "http://localhost:"+port),
		FrontendBaseURL: getenv("FRONTEND_BASE_URL", "http://localhost:3000"),
		ProviderTimeout: timeout,
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
