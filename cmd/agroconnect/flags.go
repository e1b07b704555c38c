package main

import (
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

type Config struct {
	Address            string        `env:"RUN_ADDRESS" envDefault:"localhost:8080"`
	LogLevel           string        `env:"LOG_LEVEL" envDefault:"INFO"`
	DatabaseConnection string        `env:"DATABASE_URI"`
	JWTSecret          string        `env:"JWT_SECRET"`
	JWTTTL             time.Duration `env:"JWT_TTL" envDefault:"60m"`
	StreamInterval     time.Duration `env:"STREAM_INTERVAL" envDefault:"2s"`
	ListingCacheTTL    time.Duration `env:"LISTING_CACHE_TTL" envDefault:"30s"`
	ListingCacheSize   int           `env:"LISTING_CACHE_SIZE" envDefault:"1024"`
	KafkaBrokers       []string      `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic         string        `env:"KAFKA_TOPIC" envDefault:"agroconnect.orders"`
	KafkaTimeout       time.Duration `env:"KAFKA_PUBLISH_TIMEOUT" envDefault:"2s"`
	CORSOrigins        []string      `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`
}

func NewConfig(args []string) (*Config, error) {
	// .env is optional; real environment variables take precedence
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	fs := flag.NewFlagSet("agroconnect", flag.ContinueOnError)
	address := fs.String("a", cfg.Address, "{Host:port} for server")
	loglevel := fs.String("l", cfg.LogLevel, "Log level for server")
	databaseConnection := fs.String("d", cfg.DatabaseConnection, "Database connection string, empty for in-memory storage")
	jwtTTL := fs.Duration("t", cfg.JWTTTL, "TTL for JWT token(e.g. 24h; 30m )")
	streamInterval := fs.Duration("i", cfg.StreamInterval, "Order stream poll interval")
	cacheTTL := fs.Duration("c", cfg.ListingCacheTTL, "Farmer listing cache TTL")
	kafkaBrokers := fs.String("k", strings.Join(cfg.KafkaBrokers, ","), "Comma separated Kafka brokers, empty disables events")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.Address = *address
	cfg.LogLevel = *loglevel
	cfg.DatabaseConnection = *databaseConnection
	cfg.JWTTTL = *jwtTTL
	cfg.StreamInterval = *streamInterval
	cfg.ListingCacheTTL = *cacheTTL
	cfg.KafkaBrokers = splitList(*kafkaBrokers)

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("ENV JWT_SECRET must be set")
	}
	if cfg.StreamInterval <= 0 {
		return nil, fmt.Errorf("stream interval must be positive, got %s", cfg.StreamInterval)
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTimeout <= 0 {
		return nil, fmt.Errorf("KAFKA_PUBLISH_TIMEOUT must be positive, got %s", cfg.KafkaTimeout)
	}
	if cfg.ListingCacheSize <= 0 {
		return nil, fmt.Errorf("LISTING_CACHE_SIZE must be positive, got %d", cfg.ListingCacheSize)
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
