package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Ticket   TicketConfig
	Scanner  ScannerConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

type RedisConfig struct {
	Addr string
}

type KafkaConfig struct {
	Brokers []string
	Enabled bool
	Topics  TopicConfig
}

type TopicConfig struct {
	TicketIssued      string
	CheckInCompleted  string
	CheckOutCompleted string
}

// TicketConfig carries the signing secrets. PriorSecret may be empty;
// setting it keeps in-flight tickets valid across a key rotation.
type TicketConfig struct {
	Secret      string
	PriorSecret string
	ExpiryGrace time.Duration
}

type ScannerConfig struct {
	FrameInterval time.Duration
	ScanCooldown  time.Duration
	JWTSecret     string
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", ":8086"),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			DSN:          getEnv("POSTGRES_DSN", ""),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
		},
		Redis: RedisConfig{
			Addr: getEnv("REDIS_ADDR", "localhost:6379"),
		},
		Kafka: KafkaConfig{
			Brokers: []string{getEnv("KAFKA_ADDR", "localhost:9092")},
			Enabled: getEnvBool("KAFKA_ENABLED", true),
			Topics: TopicConfig{
				TicketIssued:      getEnv("KAFKA_TOPIC_TICKET_ISSUED", "ticketly.ticket.issued"),
				CheckInCompleted:  getEnv("KAFKA_TOPIC_CHECKIN", "ticketly.checkin.completed"),
				CheckOutCompleted: getEnv("KAFKA_TOPIC_CHECKOUT", "ticketly.checkout.completed"),
			},
		},
		Ticket: TicketConfig{
			Secret:      getEnv("TICKET_SECRET_KEY", ""),
			PriorSecret: getEnv("TICKET_SECRET_KEY_PRIOR", ""),
			ExpiryGrace: time.Duration(getEnvInt("TICKET_EXPIRY_GRACE_HOURS", 6)) * time.Hour,
		},
		Scanner: ScannerConfig{
			FrameInterval: time.Duration(getEnvInt("SCANNER_FRAME_INTERVAL_MS", 100)) * time.Millisecond,
			ScanCooldown:  time.Duration(getEnvInt("SCANNER_COOLDOWN_SECONDS", 2)) * time.Second,
			JWTSecret:     getEnv("SCANNER_JWT_SECRET", ""),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
