package config

import (
	"log"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"

	"github.com/customeros/eventstream/internal/consumer"
	"github.com/customeros/eventstream/internal/geo"
	"github.com/customeros/eventstream/internal/logger"
	"github.com/customeros/eventstream/internal/reporter"
	"github.com/customeros/eventstream/internal/tracing"
	"github.com/customeros/eventstream/services/livestream"
	"github.com/customeros/eventstream/services/stats"
)

type Config struct {
	AppConfig        *AppConfig
	Logger           *logger.Config
	Tracing          *tracing.JaegerConfig
	KafkaConfig      *consumer.Config
	GeoConfig        *geo.Config
	DatabaseConfig   *EventstreamDatabaseConfig
	StatsConfig      *stats.Config
	LivestreamConfig *livestream.Config
	SentryConfig     *reporter.Config
}

func InitConfig() (*Config, error) {
	config := &Config{
		AppConfig:        &AppConfig{},
		Logger:           &logger.Config{},
		Tracing:          &tracing.JaegerConfig{},
		KafkaConfig:      &consumer.Config{},
		GeoConfig:        &geo.Config{},
		DatabaseConfig:   &EventstreamDatabaseConfig{},
		StatsConfig:      &stats.Config{},
		LivestreamConfig: &livestream.Config{},
		SentryConfig:     &reporter.Config{},
	}

	err := godotenv.Load()
	if err != nil {
		log.Print("Unable to load .env file")
	}

	err = env.Parse(config)
	if err != nil {
		log.Fatalf("Error loading eventstream config: %v", err)
	}

	return config, nil
}
