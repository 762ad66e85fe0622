package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Database  DatabaseConfig
	Redis     RedisConfig
	Slack     SlackConfig
	Server    ServerConfig
	Integrity IntegrityConfig
	Blob      BlobConfig
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string //nolint:gosec // G117: DB connection config
	DBName   string
	SSLMode  string
	MaxConns int
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string //nolint:gosec // G117: Redis connection config
	DB       int
}

// SlackConfig holds the optional Slack alerting settings.
type SlackConfig struct {
	BotToken     string
	AlertChannel string
}

// ServerConfig holds the operational HTTP listener settings.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// IntegrityConfig holds the integrity core settings.
type IntegrityConfig struct {
	// HashAlgorithm selects the content-hash function: sha256 or sha3-256.
	HashAlgorithm string

	// SigningKeyPath points at a PKCS#8 PEM Ed25519 private key. Empty
	// means exports are produced in hash-only mode.
	SigningKeyPath string

	// StrictMode requires fresh audit proofs before opening any gate.
	StrictMode bool

	// StrictWorkspaces enables strict mode per workspace when the global
	// default is off.
	StrictWorkspaces []uuid.UUID

	// MaxProofAge is the oldest acceptable audit/chain proof in strict mode.
	MaxProofAge time.Duration

	// GateCacheTTL bounds how long a gate decision may be served from cache.
	GateCacheTTL time.Duration

	// AuditInterval is the continuous-audit scheduling period.
	AuditInterval time.Duration

	// AuditRateLimit caps storage downloads per second during batch audits.
	// Zero disables the limit.
	AuditRateLimit float64

	// Workspaces are the workspace ids the daemon audits on schedule.
	Workspaces []uuid.UUID
}

// BlobConfig holds object storage settings.
type BlobConfig struct {
	Root string
}

// Load reads configuration from environment variables.
// Defaults are safe for local development only.
func Load() (*Config, error) {
	dbPort, err := getEnvInt("CUSTODIA_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	dbMaxConns, err := getEnvInt("CUSTODIA_DB_MAX_CONNS", 25)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	redisDB, err := getEnvInt("CUSTODIA_REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	readTimeout, err := getEnvDuration("CUSTODIA_SERVER_READ_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	writeTimeout, err := getEnvDuration("CUSTODIA_SERVER_WRITE_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	strictMode, err := getEnvBool("CUSTODIA_STRICT_MODE", false)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	maxProofAge, err := getEnvDuration("CUSTODIA_MAX_PROOF_AGE", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	gateCacheTTL, err := getEnvDuration("CUSTODIA_GATE_CACHE_TTL", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	auditInterval, err := getEnvDuration("CUSTODIA_AUDIT_INTERVAL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	auditRateLimit, err := getEnvFloat("CUSTODIA_AUDIT_RATE_LIMIT", 10)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	strictWorkspaces, err := getEnvUUIDList("CUSTODIA_STRICT_WORKSPACES")
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	workspaces, err := getEnvUUIDList("CUSTODIA_WORKSPACES")
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("CUSTODIA_DB_HOST", "localhost"),
			Port:     dbPort,
			User:     getEnv("CUSTODIA_DB_USER", "custodia"),
			Password: getEnv("CUSTODIA_DB_PASSWORD", ""),
			DBName:   getEnv("CUSTODIA_DB_NAME", "custodia_dev"),
			SSLMode:  getEnv("CUSTODIA_DB_SSLMODE", "disable"),
			MaxConns: dbMaxConns,
		},
		Redis: RedisConfig{
			Addr:     getEnv("CUSTODIA_REDIS_ADDR", "localhost:6379"),
			Password: getEnv("CUSTODIA_REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Slack: SlackConfig{
			BotToken:     getEnv("CUSTODIA_SLACK_BOT_TOKEN", ""),
			AlertChannel: getEnv("CUSTODIA_SLACK_ALERT_CHANNEL", ""),
		},
		Server: ServerConfig{
			Addr:         getEnv("CUSTODIA_SERVER_ADDR", ":8080"),
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
		},
		Integrity: IntegrityConfig{
			HashAlgorithm:    getEnv("CUSTODIA_HASH_ALGORITHM", "sha256"),
			SigningKeyPath:   getEnv("CUSTODIA_SIGNING_KEY", ""),
			StrictMode:       strictMode,
			StrictWorkspaces: strictWorkspaces,
			MaxProofAge:      maxProofAge,
			GateCacheTTL:     gateCacheTTL,
			AuditInterval:    auditInterval,
			AuditRateLimit:   auditRateLimit,
			Workspaces:       workspaces,
		},
		Blob: BlobConfig{
			Root: getEnv("CUSTODIA_BLOB_ROOT", "./data/blobs"),
		},
	}

	err = cfg.validate()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	return cfg, nil
}

// validate checks required fields and value bounds.
func (c *Config) validate() error {
	if c.Database.SSLMode == "disable" {
		log.Warn().Msg("CUSTODIA_DB_SSLMODE=disable is insecure for production; set to 'require' or 'verify-full'")
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("CUSTODIA_DB_PORT must be 1-65535, got %d", c.Database.Port)
	}
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("CUSTODIA_DB_MAX_CONNS must be >= 1, got %d", c.Database.MaxConns)
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("CUSTODIA_SERVER_READ_TIMEOUT must be positive, got %s", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("CUSTODIA_SERVER_WRITE_TIMEOUT must be positive, got %s", c.Server.WriteTimeout)
	}
	if c.Integrity.HashAlgorithm != "sha256" && c.Integrity.HashAlgorithm != "sha3-256" {
		return fmt.Errorf("CUSTODIA_HASH_ALGORITHM must be sha256 or sha3-256, got %q", c.Integrity.HashAlgorithm)
	}
	if c.Integrity.MaxProofAge <= 0 {
		return fmt.Errorf("CUSTODIA_MAX_PROOF_AGE must be positive, got %s", c.Integrity.MaxProofAge)
	}
	if c.Integrity.GateCacheTTL <= 0 {
		return fmt.Errorf("CUSTODIA_GATE_CACHE_TTL must be positive, got %s", c.Integrity.GateCacheTTL)
	}
	if c.Integrity.AuditInterval <= 0 {
		return fmt.Errorf("CUSTODIA_AUDIT_INTERVAL must be positive, got %s", c.Integrity.AuditInterval)
	}
	if c.Integrity.AuditRateLimit < 0 {
		return fmt.Errorf("CUSTODIA_AUDIT_RATE_LIMIT must be >= 0, got %f", c.Integrity.AuditRateLimit)
	}
	if c.Slack.BotToken != "" && c.Slack.AlertChannel == "" {
		return fmt.Errorf("CUSTODIA_SLACK_ALERT_CHANNEL is required when CUSTODIA_SLACK_BOT_TOKEN is set")
	}

	return nil
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as int: %w", key, v, err)
	}
	return n, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as float: %w", key, v, err)
	}
	return f, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("parsing %s=%q as bool: %w", key, v, err)
	}
	return b, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as duration: %w", key, v, err)
	}
	return d, nil
}

func getEnvUUIDList(key string) ([]uuid.UUID, error) {
	v := os.Getenv(key)
	if v == "" {
		return nil, nil
	}

	parts := strings.Split(v, ",")
	result := make([]uuid.UUID, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := uuid.Parse(p)
		if err != nil {
			return nil, fmt.Errorf("parsing %s entry %q as uuid: %w", key, p, err)
		}
		result = append(result, id)
	}
	return result, nil
}
