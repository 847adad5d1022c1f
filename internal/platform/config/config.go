package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Defaults for the pending-registration lifecycle.
const (
	DefaultPendingTTL       = 7 * 24 * time.Hour
	DefaultSweepInterval    = 6 * time.Hour
	DefaultStoreTimeout     = 3 * time.Second
	DefaultMaxExtensionDays = 30
	DefaultMaxUploadBytes   = 10 << 20
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr           string
	LogLevel       string
	Environment    string
	MaxUploadBytes int64

	Database   DatabaseConfig
	Redis      RedisConfig
	Kafka      KafkaConfig
	Enrollment EnrollmentConfig
	Minio      MinioConfig
	Pending    PendingConfig
}

// DatabaseConfig holds the PostgreSQL connection settings. An empty URL selects
// the in-memory pending store.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds the Redis settings used for cross-instance key locking.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig holds broker and topic settings for notification delivery.
type KafkaConfig struct {
	Brokers           string
	NotificationTopic string
	EventTopic        string
	Acks              string
	Retries           int
	DeliveryTimeout   time.Duration
	TopicPartitions   int
	TopicReplication  int
}

// EnrollmentConfig points at the enrollment store REST API.
type EnrollmentConfig struct {
	URL     string
	Timeout time.Duration
}

// MinioConfig holds object store credentials for uploaded documents.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// PendingConfig tunes the pending-registration lifecycle.
type PendingConfig struct {
	TTL              time.Duration
	SweepInterval    time.Duration
	StoreTimeout     time.Duration
	MaxExtensionDays int
}

// Load reads an optional .env file and then builds the configuration from the
// environment. Variables already set in the environment win over the file.
func Load(files ...string) Server {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		_ = godotenv.Load(f) //nolint:errcheck // missing .env is the normal production case
	}
	return FromEnv()
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	return Server{
		Addr:           getString("ENROLLGATE_ADDR", ":8080"),
		LogLevel:       getString("LOG_LEVEL", "info"),
		Environment:    getString("ENVIRONMENT", "development"),
		MaxUploadBytes: int64(getInt("MAX_UPLOAD_BYTES", DefaultMaxUploadBytes)),
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    getInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     getInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDuration("REDIS_READ_TIMEOUT", time.Second),
			WriteTimeout: getDuration("REDIS_WRITE_TIMEOUT", time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:           os.Getenv("KAFKA_BROKERS"),
			NotificationTopic: getString("KAFKA_NOTIFICATION_TOPIC", "enrollgate.pending.notifications"),
			EventTopic:        getString("KAFKA_EVENT_TOPIC", "enrollgate.pending.events"),
			Acks:              getString("KAFKA_ACKS", "all"),
			Retries:           getInt("KAFKA_RETRIES", 3),
			DeliveryTimeout:   getDuration("KAFKA_DELIVERY_TIMEOUT", 30*time.Second),
			TopicPartitions:   getInt("KAFKA_TOPIC_PARTITIONS", 3),
			TopicReplication:  getInt("KAFKA_TOPIC_REPLICATION", 1),
		},
		Enrollment: EnrollmentConfig{
			URL:     os.Getenv("ENROLLMENT_STORE_URL"),
			Timeout: getDuration("ENROLLMENT_STORE_TIMEOUT", DefaultStoreTimeout),
		},
		Minio: MinioConfig{
			Endpoint:  os.Getenv("MINIO_ENDPOINT"),
			AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("MINIO_SECRET_KEY"),
			Bucket:    getString("MINIO_BUCKET", "enrollment-documents"),
			UseSSL:    getBool("MINIO_USE_SSL", false),
		},
		Pending: PendingConfig{
			TTL:              getDuration("PENDING_TTL", DefaultPendingTTL),
			SweepInterval:    getDuration("SWEEP_INTERVAL", DefaultSweepInterval),
			StoreTimeout:     getDuration("STORE_TIMEOUT", DefaultStoreTimeout),
			MaxExtensionDays: getInt("MAX_EXTENSION_DAYS", DefaultMaxExtensionDays),
		},
	}
}

// KafkaBrokers splits the comma separated broker list.
func (k KafkaConfig) KafkaBrokers() []string {
	var out []string
	for _, b := range strings.Split(k.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

func getString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
