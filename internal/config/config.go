package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	StorageLocal = "local"
	StorageS3    = "s3"
)

type Config struct {
	Host       string
	Port       string
	CORSOrigin string
	OnGCP      bool

	Database  DatabaseConfig
	Storage   StorageConfig
	RateLimit RateLimitConfig
	SMTP      SMTPConfig
	Kafka     KafkaConfig
	Admin     AdminConfig
	Telemetry TelemetryConfig
}

type DatabaseConfig struct {
	Driver      string
	URL         string
	AutoMigrate bool
}

type StorageConfig struct {
	Backend   string
	UploadDir string
	MetaDir   string
	S3        S3Config
}

type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type RateLimitConfig struct {
	Max           int64
	Window        time.Duration
	RedisAddr     string
	RedisPassword string
	TrustProxy    bool
}

// SMTPConfig carries the optional notification mail settings. Email is sent
// only when both Host and NotifyEmail are set.
type SMTPConfig struct {
	Host        string
	Port        int
	User        string
	Pass        string
	NotifyEmail string
}

func (c SMTPConfig) Enabled() bool {
	return c.Host != "" && c.NotifyEmail != ""
}

func (c SMTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type KafkaConfig struct {
	Brokers      []string
	ContactTopic string
}

func (c KafkaConfig) Enabled() bool {
	return len(c.Brokers) > 0
}

type AdminConfig struct {
	JWTSecret    string
	Email        string
	PasswordHash string
}

func (c AdminConfig) Enabled() bool {
	return c.JWTSecret != "" && c.Email != "" && c.PasswordHash != ""
}

type TelemetryConfig struct {
	OTLPEndpoint string
	ServiceName  string
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	rateMax, err := getInt64("RATE_LIMIT_MAX", 30)
	if err != nil {
		return nil, err
	}
	rateWindow, err := getDuration("RATE_LIMIT_WINDOW", time.Minute)
	if err != nil {
		return nil, err
	}
	trustProxy, err := getBool("TRUST_PROXY", false)
	if err != nil {
		return nil, err
	}
	autoMigrate, err := getBool("DB_AUTO_MIGRATE", true)
	if err != nil {
		return nil, err
	}
	s3SSL, err := getBool("S3_USE_SSL", false)
	if err != nil {
		return nil, err
	}
	smtpPort, err := getInt64("SMTP_PORT", 587)
	if err != nil {
		return nil, err
	}
	onGCP, err := getBool("ON_GCP", false)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Host:       getEnv("HOST", "0.0.0.0"),
		Port:       getEnv("PORT", "8080"),
		CORSOrigin: getEnv("CORS_ORIGIN", "http://localhost:5173"),
		OnGCP:      onGCP,
		Database: DatabaseConfig{
			Driver:      getEnv("DB_DRIVER", DriverSQLite),
			AutoMigrate: autoMigrate,
		},
		Storage: StorageConfig{
			Backend:   getEnv("STORAGE_BACKEND", StorageLocal),
			UploadDir: getEnv("UPLOAD_DIR", "uploads"),
			MetaDir:   getEnv("META_DIR", "meta"),
			S3: S3Config{
				Endpoint:  getEnv("S3_ENDPOINT", ""),
				AccessKey: getEnv("S3_ACCESS_KEY", ""),
				SecretKey: getEnv("S3_SECRET_KEY", ""),
				Bucket:    getEnv("S3_BUCKET", "digicop-media"),
				UseSSL:    s3SSL,
			},
		},
		RateLimit: RateLimitConfig{
			Max:           rateMax,
			Window:        rateWindow,
			RedisAddr:     getEnv("REDIS_ADDR", ""),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			TrustProxy:    trustProxy,
		},
		SMTP: SMTPConfig{
			Host:        getEnv("SMTP_HOST", ""),
			Port:        int(smtpPort),
			User:        getEnv("SMTP_USER", ""),
			Pass:        getEnv("SMTP_PASS", ""),
			NotifyEmail: getEnv("CONTACT_NOTIFY_EMAIL", ""),
		},
		Kafka: KafkaConfig{
			Brokers:      splitList(getEnv("KAFKA_BROKERS", "")),
			ContactTopic: getEnv("KAFKA_CONTACT_TOPIC", "contact.submitted"),
		},
		Admin: AdminConfig{
			JWTSecret:    getEnv("JWT_SECRET", ""),
			Email:        getEnv("ADMIN_EMAIL", ""),
			PasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			ServiceName:  getEnv("OTEL_SERVICE_NAME", "digicop-backend"),
		},
	}

	switch cfg.Database.Driver {
	case DriverPostgres:
		cfg.Database.URL = getDatabaseURL()
	case DriverSQLite:
		cfg.Database.URL = getEnv("SQLITE_PATH", "data/digicop.db")
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q (must be %q or %q)", cfg.Database.Driver, DriverPostgres, DriverSQLite)
	}

	switch cfg.Storage.Backend {
	case StorageLocal:
	case StorageS3:
		if cfg.Storage.S3.Endpoint == "" {
			return nil, fmt.Errorf("S3_ENDPOINT is required when STORAGE_BACKEND=%s", StorageS3)
		}
	default:
		return nil, fmt.Errorf("unsupported STORAGE_BACKEND %q (must be %q or %q)", cfg.Storage.Backend, StorageLocal, StorageS3)
	}

	if cfg.RateLimit.Max <= 0 || cfg.RateLimit.Window <= 0 {
		return nil, fmt.Errorf("RATE_LIMIT_MAX and RATE_LIMIT_WINDOW must be positive")
	}

	return cfg, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

func (c *Config) String() string {
	return fmt.Sprintf("Addr=%s, DBDriver=%s, Storage=%s, RateLimit=%d/%s, Redis=%t, SMTP=%t, Kafka=%t, Admin=%t, Tracing=%t",
		c.Addr(), c.Database.Driver, c.Storage.Backend, c.RateLimit.Max, c.RateLimit.Window,
		c.RateLimit.RedisAddr != "", c.SMTP.Enabled(), c.Kafka.Enabled(), c.Admin.Enabled(),
		c.Telemetry.OTLPEndpoint != "")
}

func getDatabaseURL() string {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}

	host := getEnv("DB_HOST", "localhost")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "postgres")
	password := getEnv("DB_PASSWORD", "postgres")
	dbname := getEnv("DB_NAME", "postgres")
	sslmode := getEnv("DB_SSLMODE", "disable")

	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		host, port, user, password, dbname, sslmode,
	)
}

func getEnv(key string, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt64(key string, defaultValue int64) (int64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s is not an integer: %w", key, err)
	}
	return n, nil
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s is not a duration: %w", key, err)
	}
	return d, nil
}

func getBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s is not a boolean: %w", key, err)
	}
	return b, nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
