// Package config loads application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/ericfisherdev/keyledger/internal/keygen"
)

const defaultEnvFile = ".env"

// Config holds the application configuration loaded from environment variables.
type Config struct {
	ListenAddr   string
	DBPath       string
	HashSecret   []byte
	ListLimit    int
	AuditBuffer  int
	AuditTimeout time.Duration
	LogLevel     slog.Level
	LogFormat    string
}

// Load reads configuration from environment variables and returns a validated Config.
// A dotenv file (KEYLEDGER_ENV_FILE, default .env) is read first when present; it
// never overrides variables already set in the environment.
// KEYLEDGER_HASH_SECRET is required and must be at least 16 bytes.
// Optional variables with defaults: KEYLEDGER_LISTEN_ADDR (127.0.0.1:8080),
// KEYLEDGER_DB_PATH (keyledger.db), KEYLEDGER_LIST_LIMIT (1000),
// KEYLEDGER_AUDIT_BUFFER (1024), KEYLEDGER_AUDIT_TIMEOUT (5s),
// KEYLEDGER_LOG_LEVEL (info), KEYLEDGER_LOG_FORMAT (text).
func Load() (*Config, error) {
	if err := loadEnvFile(); err != nil {
		return nil, err
	}

	secret := os.Getenv("KEYLEDGER_HASH_SECRET")
	if secret == "" {
		return nil, errors.New("KEYLEDGER_HASH_SECRET is required")
	}
	if len(secret) < keygen.MinSecretLen {
		return nil, fmt.Errorf("KEYLEDGER_HASH_SECRET must be at least %d bytes", keygen.MinSecretLen)
	}

	listenAddr := "127.0.0.1:8080"
	if v, ok := os.LookupEnv("KEYLEDGER_LISTEN_ADDR"); ok {
		listenAddr = v
	}

	dbPath := "keyledger.db"
	if v, ok := os.LookupEnv("KEYLEDGER_DB_PATH"); ok {
		dbPath = v
	}

	listLimit, err := positiveInt("KEYLEDGER_LIST_LIMIT", 1000)
	if err != nil {
		return nil, err
	}

	auditBuffer, err := positiveInt("KEYLEDGER_AUDIT_BUFFER", 1024)
	if err != nil {
		return nil, err
	}

	auditTimeout := 5 * time.Second
	if v, ok := os.LookupEnv("KEYLEDGER_AUDIT_TIMEOUT"); ok {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("KEYLEDGER_AUDIT_TIMEOUT has invalid duration %q: %w", v, err)
		}
		if parsed <= 0 {
			return nil, fmt.Errorf("KEYLEDGER_AUDIT_TIMEOUT must be positive, got %s", parsed)
		}
		auditTimeout = parsed
	}

	logLevel := slog.LevelInfo
	if v, ok := os.LookupEnv("KEYLEDGER_LOG_LEVEL"); ok && v != "" {
		if err := logLevel.UnmarshalText([]byte(v)); err != nil {
			return nil, fmt.Errorf("KEYLEDGER_LOG_LEVEL has invalid level %q: %w", v, err)
		}
	}

	logFormat := "text"
	if v, ok := os.LookupEnv("KEYLEDGER_LOG_FORMAT"); ok && v != "" {
		logFormat = strings.ToLower(v)
		if logFormat != "text" && logFormat != "json" {
			return nil, fmt.Errorf("KEYLEDGER_LOG_FORMAT must be text or json, got %q", v)
		}
	}

	return &Config{
		ListenAddr:   listenAddr,
		DBPath:       dbPath,
		HashSecret:   []byte(secret),
		ListLimit:    listLimit,
		AuditBuffer:  auditBuffer,
		AuditTimeout: auditTimeout,
		LogLevel:     logLevel,
		LogFormat:    logFormat,
	}, nil
}

// NewLogger builds the process logger described by c.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.LogLevel}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// loadEnvFile applies the dotenv file. A missing default file is not an
// error; a missing file named explicitly is.
func loadEnvFile() error {
	path, explicit := os.LookupEnv("KEYLEDGER_ENV_FILE")
	if !explicit || path == "" {
		path = defaultEnvFile
		explicit = false
	}

	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func positiveInt(key string, def int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid integer %q: %w", key, v, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %d", key, n)
	}
	return n, nil
}
