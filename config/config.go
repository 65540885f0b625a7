package config

import (
	"fmt"

	"github.com/caarlos0/env/v6"
)

type Config struct {
	HTTPAddr      string `env:"HTTP_ADDR" envDefault:":8084"`
	DBHost        string `env:"DB_HOST" envDefault:"localhost"`
	DBPort        string `env:"DB_PORT" envDefault:"5432"`
	DBUser        string `env:"DB_USER" envDefault:"postgres"`
	DBPassword    string `env:"DB_PASSWORD" envDefault:"postgres"`
	DBName        string `env:"DB_NAME" envDefault:"backofficedb"`
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     string `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	KafkaBroker   string `env:"KAFKA_BROKER" envDefault:"localhost:9092"`
	// WebhookTopic carries provider events bridged through the broker;
	// EventsTopic carries reconciliation outcomes for downstream services.
	WebhookTopic   string `env:"KAFKA_WEBHOOK_TOPIC" envDefault:"provider_events"`
	EventsTopic    string `env:"KAFKA_EVENTS_TOPIC" envDefault:"payment_events"`
	JaegerEndpoint string `env:"JAEGER_ENDPOINT" envDefault:"http://localhost:14268/api/traces"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}
	return cfg, nil
}

func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName)
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}
