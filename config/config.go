package config

import (
	"github.com/customeros/eventstream/internal/logger"
	"github.com/customeros/eventstream/internal/tracing"
)

type AppConfig struct {
	APIPort               string `env:"PORT,required" envDefault:"11000"`
	JWTSecret             string `env:"JWT_SECRET,required"`
	RabbitMQURL           string `env:"RABBITMQ_URL"`
	PodName               string `env:"POD_NAME" envDefault:"local"`
	PodNamespace          string `env:"POD_NAMESPACE" envDefault:"default"`
	LeaderElectionEnabled bool   `env:"LEADER_ELECTION_ENABLED" envDefault:"false"`
	Logger                *logger.Config
	Tracing               *tracing.JaegerConfig
}

type EventstreamDatabaseConfig struct {
	Host            string `env:"EVENTSTREAM_POSTGRES_HOST"`
	Port            string `env:"EVENTSTREAM_POSTGRES_PORT" envDefault:"5432"`
	User            string `env:"EVENTSTREAM_POSTGRES_USER"`
	DBName          string `env:"EVENTSTREAM_POSTGRES_DB_NAME"`
	Password        string `env:"EVENTSTREAM_POSTGRES_PASSWORD"`
	MaxConn         int    `env:"EVENTSTREAM_POSTGRES_DB_MAX_CONN"`
	MaxIdleConn     int    `env:"EVENTSTREAM_POSTGRES_DB_MAX_IDLE_CONN"`
	ConnMaxLifetime int    `env:"EVENTSTREAM_POSTGRES_DB_CONN_MAX_LIFETIME"`
	LogLevel        string `env:"EVENTSTREAM_POSTGRES_LOG_LEVEL" envDefault:"WARN"`
	SSLMode         string `env:"EVENTSTREAM_POSTGRES_SSL_MODE" envDefault:"require"`
}

// Configured reports whether connection settings for the token store are
// present. The store is optional; without it token counters stay in memory.
func (c *EventstreamDatabaseConfig) Configured() bool {
	return c.Host != "" && c.User != "" && c.DBName != ""
}
