package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	App         AppConfig
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	Auth        AuthConfig
	Reservation ReservationConfig
}

type AppConfig struct {
	Name     string
	TimeZone string
	LogDir   string
	LogLevel string
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	Driver        string // postgres or sqlite
	Host          string
	Port          string
	Username      string
	Password      string
	Database      string
	SSLMode       string
	SQLitePath    string
	MaxOpenConns  int
	MaxIdleConns  int
	MaxLifetime   time.Duration
	AutoMigrate   bool
	MigrationsDir string
}

// DSN builds the lib/pq connection string for the postgres driver.
func (d DatabaseConfig) DSN() string {
	return "postgres://" + d.Username + ":" + d.Password + "@" + d.Host + ":" + d.Port + "/" + d.Database + "?sslmode=" + d.SSLMode
}

type RedisConfig struct {
	Addr          string
	Password      string
	DB            int
	Enabled       bool
	ClaimLockTTL  time.Duration
	SyncMarkerTTL time.Duration
}

type KafkaConfig struct {
	Brokers []string
	GroupID string
	Topics  TopicConfig
	Enabled bool
}

type TopicConfig struct {
	SlotReserved       string
	SlotCancelled      string
	SlotCompleted      string
	SlotUpdated        string
	QuotaSynchronized  string
	SubmissionPayment  string
	AttachmentsRemoved string
	CampaignUpdated    string
}

// All returns every topic the service produces to or consumes from.
func (t TopicConfig) All() []string {
	return []string{
		t.SlotReserved, t.SlotCancelled, t.SlotCompleted, t.SlotUpdated,
		t.QuotaSynchronized, t.SubmissionPayment, t.AttachmentsRemoved, t.CampaignUpdated,
	}
}

type AuthConfig struct {
	IssuerURL string
	ClientID  string
	AdminRole string
}

type ReservationConfig struct {
	CampaignLimit        int
	DailyLimit           int
	RateLimitedPlatforms []string
}

func Load() *Config {
	return &Config{
		App: AppConfig{
			Name:     getEnv("APP_NAME", "review-slots"),
			TimeZone: getEnv("APP_TIMEZONE", "Asia/Seoul"),
			LogDir:   getEnv("LOG_DIR", "logs"),
			LogLevel: getEnv("LOG_LEVEL", "INFO"),
		},
		Server: ServerConfig{
			Port:         getEnv("PORT", ":8080"),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:        getEnv("DB_DRIVER", "postgres"),
			Host:          getEnv("DB_HOST", "localhost"),
			Port:          getEnv("DB_PORT", "5432"),
			Username:      getEnv("DB_USERNAME", "reviews"),
			Password:      getEnv("DB_PASSWORD", "reviews"),
			Database:      getEnv("DB_NAME", "reviews"),
			SSLMode:       getEnv("DB_SSLMODE", "disable"),
			SQLitePath:    getEnv("DB_SQLITE_PATH", "file:reviews.db?cache=shared"),
			MaxOpenConns:  getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:  getEnvInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:   time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
			AutoMigrate:   getEnvBool("DB_AUTO_MIGRATE", true),
			MigrationsDir: getEnv("DB_MIGRATIONS_DIR", "migrations"),
		},
		Redis: RedisConfig{
			Addr:          getEnv("REDIS_ADDR", "localhost:6379"),
			Password:      getEnv("REDIS_PASSWORD", ""),
			DB:            getEnvInt("REDIS_DB", 0),
			Enabled:       getEnvBool("REDIS_ENABLED", true),
			ClaimLockTTL:  time.Duration(getEnvInt("CLAIM_LOCK_TTL_SECONDS", 5)) * time.Second,
			SyncMarkerTTL: time.Duration(getEnvInt("SYNC_MARKER_TTL_HOURS", 26)) * time.Hour,
		},
		Kafka: KafkaConfig{
			Brokers: getEnvList("KAFKA_BROKERS", []string{"localhost:9092"}),
			GroupID: getEnv("KAFKA_GROUP_ID", "review-slots-group"),
			Enabled: getEnvBool("KAFKA_ENABLED", true),
			Topics: TopicConfig{
				SlotReserved:       getEnv("KAFKA_TOPIC_SLOT_RESERVED", "reviews.slot.reserved"),
				SlotCancelled:      getEnv("KAFKA_TOPIC_SLOT_CANCELLED", "reviews.slot.cancelled"),
				SlotCompleted:      getEnv("KAFKA_TOPIC_SLOT_COMPLETED", "reviews.slot.completed"),
				SlotUpdated:        getEnv("KAFKA_TOPIC_SLOT_UPDATED", "reviews.slot.updated"),
				QuotaSynchronized:  getEnv("KAFKA_TOPIC_QUOTA_SYNCHRONIZED", "reviews.quota.synchronized"),
				SubmissionPayment:  getEnv("KAFKA_TOPIC_SUBMISSION_PAYMENT", "reviews.submission.payment"),
				AttachmentsRemoved: getEnv("KAFKA_TOPIC_ATTACHMENTS_REMOVED", "reviews.attachments.removed"),
				CampaignUpdated:    getEnv("KAFKA_TOPIC_CAMPAIGN_UPDATED", "reviews.campaign.updated"),
			},
		},
		Auth: AuthConfig{
			IssuerURL: getEnv("OIDC_ISSUER_URL", ""),
			ClientID:  getEnv("OIDC_CLIENT_ID", "review-slots"),
			AdminRole: getEnv("ADMIN_ROLE", "admin"),
		},
		Reservation: ReservationConfig{
			CampaignLimit:        getEnvInt("CAMPAIGN_CLAIM_LIMIT", 5),
			DailyLimit:           getEnvInt("DAILY_CLAIM_LIMIT", 5),
			RateLimitedPlatforms: getEnvList("RATE_LIMITED_PLATFORMS", []string{"blog", "instagram"}),
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

// getEnvList splits a comma separated value, dropping blanks.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
