// Package config loads and validates engine configuration from environment
// variables
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

type (
	// Config holds configuration settings for the flow engine and its
	// transport
	Config struct {
		APIHost       string
		LogLevel      string
		RecordsURL    string
		ModelEndpoint string
		ModelName     string
		Redis         StoreConfig

		APIPort         int
		StepLimit       int
		LeaseTTL        time.Duration
		CallTimeout     time.Duration
		CheckpointTTL   time.Duration
		ShutdownTimeout time.Duration
	}

	// StoreConfig holds Redis connection settings shared by the checkpoint
	// store and the session arbiter
	StoreConfig struct {
		Addr     string
		Password string
		Prefix   string
		DB       int
	}
)

const (
	DefaultAPIPort = 8080
	DefaultAPIHost = "0.0.0.0"
	MaxTCPPort     = 65535

	DefaultRedisEndpoint = "localhost:6379"
	DefaultRedisPrefix   = "convoflow"
	DefaultRedisDB       = 0

	// DefaultStepLimit bounds nodes executed per run invocation
	DefaultStepLimit = 15
	MaxStepLimit     = 10_000

	// DefaultLeaseTTL must outlast DefaultCallTimeout: the lease is only
	// renewed between steps, so a single slow external call must not let
	// the session lease expire under its holder
	DefaultLeaseTTL        = 90 * time.Second
	DefaultCallTimeout     = 60 * time.Second
	DefaultCheckpointTTL   = 7 * 24 * time.Hour
	DefaultShutdownTimeout = 10 * time.Second

	DefaultRecordsURL = "mem://conversations/id"
)

var (
	ErrInvalidAPIPort     = errors.New("invalid API port")
	ErrInvalidStepLimit   = errors.New("step limit must be positive")
	ErrInvalidLeaseTTL    = errors.New("lease TTL must be positive")
	ErrLeaseTTLTooShort   = errors.New("lease TTL must exceed call timeout")
	ErrInvalidCallTimeout = errors.New("call timeout must be positive")
	ErrMissingRedisAddr   = errors.New("redis address is required")
)

// NewDefaultConfig creates a configuration with sensible defaults for the
// engine, stores, and transport
func NewDefaultConfig() *Config {
	return &Config{
		APIPort:  DefaultAPIPort,
		APIHost:  DefaultAPIHost,
		LogLevel: "info",
		Redis: StoreConfig{
			Addr:   DefaultRedisEndpoint,
			Prefix: DefaultRedisPrefix,
			DB:     DefaultRedisDB,
		},
		StepLimit:       DefaultStepLimit,
		LeaseTTL:        DefaultLeaseTTL,
		CallTimeout:     DefaultCallTimeout,
		CheckpointTTL:   DefaultCheckpointTTL,
		ShutdownTimeout: DefaultShutdownTimeout,
		RecordsURL:      DefaultRecordsURL,
		ModelEndpoint:   "http://localhost:11434/v1/chat",
		ModelName:       "small_llm",
	}
}

// LoadFromEnv populates configuration values from environment variables.
// Returns an error if any env var cannot be parsed
func (c *Config) LoadFromEnv() error {
	if host := os.Getenv("API_HOST"); host != "" {
		c.APIHost = host
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.LogLevel = level
	}
	if url := os.Getenv("RECORDS_URL"); url != "" {
		c.RecordsURL = url
	}
	if endpoint := os.Getenv("MODEL_ENDPOINT"); endpoint != "" {
		c.ModelEndpoint = endpoint
	}
	if model := os.Getenv("MODEL_NAME"); model != "" {
		c.ModelName = model
	}

	loadStoreConfigFromEnv(&c.Redis)

	if err := loadEnvInt("API_PORT", &c.APIPort, 0, MaxTCPPort); err != nil {
		return err
	}
	if err := loadEnvInt(
		"STEP_LIMIT", &c.StepLimit, 0, MaxStepLimit,
	); err != nil {
		return err
	}

	if err := loadEnvDuration("LEASE_TTL", &c.LeaseTTL); err != nil {
		return err
	}
	if err := loadEnvDuration("CALL_TIMEOUT", &c.CallTimeout); err != nil {
		return err
	}
	if err := loadEnvDuration("CHECKPOINT_TTL", &c.CheckpointTTL); err != nil {
		return err
	}
	if err := loadEnvDuration(
		"SHUTDOWN_TIMEOUT", &c.ShutdownTimeout,
	); err != nil {
		return err
	}

	return nil
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if c.APIPort <= 0 || c.APIPort > MaxTCPPort {
		return fmt.Errorf("%w: %d", ErrInvalidAPIPort, c.APIPort)
	}
	if c.StepLimit <= 0 {
		return ErrInvalidStepLimit
	}
	if c.LeaseTTL <= 0 {
		return ErrInvalidLeaseTTL
	}
	if c.CallTimeout <= 0 {
		return ErrInvalidCallTimeout
	}
	if c.LeaseTTL <= c.CallTimeout {
		return fmt.Errorf("%w: %s <= %s",
			ErrLeaseTTLTooShort, c.LeaseTTL, c.CallTimeout)
	}
	if c.Redis.Addr == "" {
		return ErrMissingRedisAddr
	}
	return nil
}

func loadStoreConfigFromEnv(s *StoreConfig) {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		s.Addr = addr
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		s.Password = password
	}
	if dbStr := os.Getenv("REDIS_DB"); dbStr != "" {
		if db, err := strconv.Atoi(dbStr); err == nil {
			s.DB = db
		}
	}
	if prefix := os.Getenv("REDIS_PREFIX"); prefix != "" {
		s.Prefix = prefix
	}
}

// loadEnvInt reads key from the environment, parses it as an integer, and
// sets *dst if the value is in the range (min, max). Returns an error if
// the value cannot be parsed or falls outside the valid range
func loadEnvInt[T ~int | ~int64](key string, dst *T, min, max T) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %q", key, s)
	}
	tv := T(v)
	if tv <= min || tv > max {
		return fmt.Errorf("invalid %s: %d out of range [%d, %d]",
			key, tv, min+1, max)
	}
	*dst = tv
	return nil
}

func loadEnvDuration(key string, dst *time.Duration) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid %s: %q", key, s)
	}
	if d <= 0 {
		return fmt.Errorf("invalid %s: must be positive", key)
	}
	*dst = d
	return nil
}
