package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var AppEnv Config

type Config struct {
	Port            string
	MongoURI        string
	DBName          string
	JWTSecret       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// Order placement
	StoreTimeout        time.Duration
	NotifyTimeout       time.Duration
	ReceiptAttach       bool
	ValidateOrderTotals bool

	// Mail queue and metrics
	MailFrom         string
	MailQueueURL     string
	AWSRegion        string
	MetricsNamespace string

	RedisAddr       string
	KafkaBrokers    []string
	KafkaOrderTopic string

	RunLambda   bool
	CORSOrigins []string
}

func Load() {
	if err := godotenv.Load(); err != nil {
		log.Println(".env not loaded:", err)
	}
	AppEnv = FromEnv()
}

// FromEnv builds a Config from the current process environment.
func FromEnv() Config {
	return Config{
		Port:            getEnvOrDefault("PORT", "8080"),
		MongoURI:        getEnvOrDefault("MONGO_URI", ""),
		DBName:          getEnvOrDefault("DB_NAME", "blazestride"),
		JWTSecret:       getEnvOrDefault("JWT_SECRET", ""),
		AccessTokenTTL:  getDurationEnv("ACCESS_TOKEN_TTL", 20, time.Minute),
		RefreshTokenTTL: getDurationEnv("REFRESH_TOKEN_TTL", 7, 24*time.Hour),

		StoreTimeout:        getDurationEnv("STORE_TIMEOUT", 5, time.Second),
		NotifyTimeout:       getDurationEnv("NOTIFY_TIMEOUT", 10, time.Second),
		ReceiptAttach:       getBoolEnv("RECEIPT_ATTACH", false),
		ValidateOrderTotals: getBoolEnv("ORDER_VALIDATE_TOTALS", true),

		MailFrom:         getEnvOrDefault("MAIL_FROM", "BlazeStride <no-reply@blazestride.com>"),
		MailQueueURL:     getEnvOrDefault("MAIL_QUEUE_URL", ""),
		AWSRegion:        getEnvOrDefault("AWS_REGION", "us-east-1"),
		MetricsNamespace: getEnvOrDefault("METRICS_NAMESPACE", ""),

		RedisAddr:       getEnvOrDefault("REDIS_ADDR", ""),
		KafkaBrokers:    getListEnv("KAFKA_BROKERS", nil),
		KafkaOrderTopic: getEnvOrDefault("KAFKA_ORDER_TOPIC", "orders.events"),

		RunLambda: getBoolEnv("RUN_LAMBDA", false),
		CORSOrigins: getListEnv("CORS_ORIGINS", []string{
			"http://localhost:5173",
			"https://blaze-stride.vercel.app",
		}),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue int, unit time.Duration) time.Duration {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
			return time.Duration(parsed) * unit
		}
	}
	return time.Duration(defaultValue) * unit
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
		log.Printf("config: ignoring invalid %s=%q", key, value)
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
