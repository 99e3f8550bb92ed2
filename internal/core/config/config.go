package config

import (
	"time"

	"github.com/vietddude/medlingo/internal/core/domain"
	redisclient "github.com/vietddude/medlingo/internal/infra/redis"
	"github.com/vietddude/medlingo/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server       ServerConfig       `yaml:"server"`
	Logging      LoggingConfig      `yaml:"logging"`
	Channel      ChannelConfig      `yaml:"channel"`
	Recovery     RecoveryConfig     `yaml:"recovery"`
	Database     postgres.Config    `yaml:"database"`
	Redis        redisclient.Config `yaml:"redis"`
	Dependencies []DependencyConfig `yaml:"dependencies"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// ChannelConfig holds duplex channel settings. Zero values fall back to
// the channel package defaults.
type ChannelConfig struct {
	URL                  string        `yaml:"url"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	InitialInterval      time.Duration `yaml:"initial_interval"`
	Multiplier           float64       `yaml:"multiplier"`
	MaxInterval          time.Duration `yaml:"max_interval"`
	DialTimeout          time.Duration `yaml:"dial_timeout"`
	HeartbeatInterval    time.Duration `yaml:"heartbeat_interval"`
	RequestTimeout       time.Duration `yaml:"request_timeout"`
	MaxQueueSize         int           `yaml:"max_queue_size"`
}

// RecoveryConfig holds retry bookkeeping settings.
type RecoveryConfig struct {
	MaxRetries          int                          `yaml:"max_retries"`
	RetryTTL            time.Duration                `yaml:"retry_ttl"`
	MaxTracked          int                          `yaml:"max_tracked"`
	RateLimitDelay      time.Duration                `yaml:"rate_limit_delay"`
	DegradationMessages map[domain.Dependency]string `yaml:"degradation_messages"`
}

// Probe types.
const (
	ProbeHTTP    = "http"
	ProbeGRPC    = "grpc"
	ProbeSQL     = "sql"
	ProbeRedis   = "redis"
	ProbeChannel = "channel"
)

// ProbeConfig describes how a dependency is probed.
type ProbeConfig struct {
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Service string            `yaml:"service"` // gRPC health service name
	Headers map[string]string `yaml:"headers"`
}

// DependencyConfig holds health and breaker settings for one dependency.
type DependencyConfig struct {
	Name               domain.Dependency `yaml:"name"`
	Critical           bool              `yaml:"critical"`
	Fallback           domain.Dependency `yaml:"fallback"`
	CheckInterval      time.Duration     `yaml:"check_interval"`
	ProbeTimeout       time.Duration     `yaml:"probe_timeout"`
	HealthyThreshold   int               `yaml:"healthy_threshold"`
	UnhealthyThreshold int               `yaml:"unhealthy_threshold"`
	HistorySize        int               `yaml:"history_size"`
	FailureThreshold   int               `yaml:"failure_threshold"`
	RecoveryTimeout    time.Duration     `yaml:"recovery_timeout"`
	Probe              ProbeConfig       `yaml:"probe"`
}
