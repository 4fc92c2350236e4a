package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment names accepted in APP_ENV.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

const devSigningKey = "dev-secret-key-change-in-production"

// Config is the full process configuration.
type Config struct {
	Env       string
	Server    Server
	Database  DatabaseConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Auth      AuthConfig
	Audit     AuditConfig
	Log       LogConfig
	Bootstrap BootstrapConfig
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig selects the SQL backend. An empty URL selects in-memory stores.
type DatabaseConfig struct {
	URL          string
	Driver       string
	MaxOpenConns int
	MaxIdleConns int
	Migrate      bool
	TxTimeout    time.Duration
}

// RedisConfig configures the shared Redis client. An empty URL disables Redis.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures audit export. No brokers disables export.
type KafkaConfig struct {
	Brokers           []string
	AuditTopic        string
	Partitions        int32
	ReplicationFactor int16
}

// AuthConfig configures tokens and the login rate limit.
type AuthConfig struct {
	JWTSigningKey    string
	JWTIssuer        string
	AccessTokenTTL   time.Duration
	LoginMaxFailures int
	LoginWindow      time.Duration
	LoginURL         string
}

// AuditConfig configures the audit trail.
type AuditConfig struct {
	OutboxBatchSize int
	OutboxInterval  time.Duration
}

// BootstrapConfig seeds the first administrator at startup when both fields
// are set and the username does not exist yet.
type BootstrapConfig struct {
	AdminUsername string
	AdminPassword string
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string
	Format string
}

// Load reads an optional .env file and then the environment. Variables that
// are already set take precedence over the file.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	cfg := FromEnv()
	return cfg, cfg.Validate()
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	return Config{
		Env: getEnv("APP_ENV", EnvDevelopment),
		Server: Server{
			Addr:            getEnv("GESTIONALE_ADDR", ":8080"),
			ReadTimeout:     getDuration("HTTP_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getDuration("HTTP_WRITE_TIMEOUT", 15*time.Second),
			ShutdownTimeout: getDuration("HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			Driver:       getEnv("DATABASE_DRIVER", "postgres"),
			MaxOpenConns: getInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getInt("DATABASE_MAX_IDLE_CONNS", 5),
			Migrate:      getBool("DATABASE_MIGRATE", true),
			TxTimeout:    getDuration("DATABASE_TX_TIMEOUT", 5*time.Second),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     getInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:           getList("KAFKA_BROKERS"),
			AuditTopic:        getEnv("KAFKA_AUDIT_TOPIC", "gestionale.audit.entries"),
			Partitions:        int32(getInt("KAFKA_AUDIT_PARTITIONS", 3)),
			ReplicationFactor: int16(getInt("KAFKA_AUDIT_REPLICATION", 1)),
		},
		Auth: AuthConfig{
			JWTSigningKey:    getEnv("JWT_SIGNING_KEY", devSigningKey),
			JWTIssuer:        getEnv("JWT_ISSUER", "gestionale"),
			AccessTokenTTL:   getDuration("ACCESS_TOKEN_TTL", 8*time.Hour),
			LoginMaxFailures: getInt("LOGIN_MAX_FAILURES", 5),
			LoginWindow:      getDuration("LOGIN_WINDOW", time.Minute),
			LoginURL:         getEnv("LOGIN_URL", "/auth/login"),
		},
		Audit: AuditConfig{
			OutboxBatchSize: getInt("AUDIT_OUTBOX_BATCH_SIZE", 100),
			OutboxInterval:  getDuration("AUDIT_OUTBOX_INTERVAL", 2*time.Second),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Bootstrap: BootstrapConfig{
			AdminUsername: os.Getenv("BOOTSTRAP_ADMIN_USERNAME"),
			AdminPassword: os.Getenv("BOOTSTRAP_ADMIN_PASSWORD"),
		},
	}
}

// Validate rejects configurations that cannot run safely.
func (c Config) Validate() error {
	var errs []error
	if c.Env != EnvDevelopment && (c.Auth.JWTSigningKey == "" || c.Auth.JWTSigningKey == devSigningKey) {
		errs = append(errs, errors.New("JWT_SIGNING_KEY must be set outside development"))
	}
	if c.Auth.AccessTokenTTL <= 0 {
		errs = append(errs, errors.New("ACCESS_TOKEN_TTL must be positive"))
	}
	if c.Auth.LoginMaxFailures <= 0 || c.Auth.LoginWindow <= 0 {
		errs = append(errs, errors.New("login rate limit must be positive"))
	}
	if c.Database.Driver != "postgres" && c.Database.Driver != "pgx" {
		errs = append(errs, fmt.Errorf("DATABASE_DRIVER %q must be postgres or pgx", c.Database.Driver))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("HTTP_SHUTDOWN_TIMEOUT must be positive"))
	}
	if (c.Bootstrap.AdminUsername == "") != (c.Bootstrap.AdminPassword == "") {
		errs = append(errs, errors.New("BOOTSTRAP_ADMIN_USERNAME and BOOTSTRAP_ADMIN_PASSWORD must be set together"))
	}
	return errors.Join(errs...)
}

// KafkaEnabled reports whether audit export is configured.
func (c Config) KafkaEnabled() bool {
	return len(c.Kafka.Brokers) > 0
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return def
}

func getList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
