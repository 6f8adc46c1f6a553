package config

import (
	"errors"
	"fmt"
	"time"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
	Auth     AuthConfig     `mapstructure:"auth" yaml:"auth"`
	Advisory AdvisoryConfig `mapstructure:"advisory" yaml:"advisory"`
	Worker   WorkerConfig   `mapstructure:"worker" yaml:"worker"`
	Policy   Policy         `mapstructure:"policy" yaml:"policy"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port" yaml:"port"`
	IngestRate      float64       `mapstructure:"ingest_rate" yaml:"ingest_rate"`
	IngestBurst     int           `mapstructure:"ingest_burst" yaml:"ingest_burst"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes" yaml:"max_body_bytes"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// DatabaseConfig selects the backing store. An empty Host means in-memory.
type DatabaseConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	Name     string `mapstructure:"name" yaml:"name"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"-"`
	SSLMode  string `mapstructure:"sslmode" yaml:"sslmode"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" yaml:"-"`
	Issuer    string `mapstructure:"issuer" yaml:"issuer"`
}

// AdvisoryConfig points at the external text-advisory service. An empty
// Endpoint disables remote phrasing and every insight uses template text.
type AdvisoryConfig struct {
	Endpoint     string  `mapstructure:"endpoint" yaml:"endpoint"`
	Model        string  `mapstructure:"model" yaml:"model"`
	APIKey       string  `mapstructure:"api_key" yaml:"-"`
	TokenURL     string  `mapstructure:"token_url" yaml:"token_url"`
	ClientID     string  `mapstructure:"client_id" yaml:"client_id"`
	ClientSecret string  `mapstructure:"client_secret" yaml:"-"`
	RatePerSec   float64 `mapstructure:"rate_per_sec" yaml:"rate_per_sec"`
}

type WorkerConfig struct {
	Concurrency       int           `mapstructure:"concurrency" yaml:"concurrency"`
	PollInterval      time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	ScheduleInterval  time.Duration `mapstructure:"schedule_interval" yaml:"schedule_interval"`
	VisibilityTimeout time.Duration `mapstructure:"visibility_timeout" yaml:"visibility_timeout"`
}

// Policy holds the tunable thresholds of the analysis pipeline.
type Policy struct {
	SessionGap        time.Duration `mapstructure:"session_gap" yaml:"session_gap"`
	MinPatternEvents  int           `mapstructure:"min_pattern_events" yaml:"min_pattern_events"`
	ConfidenceGate    float64       `mapstructure:"confidence_gate" yaml:"confidence_gate"`
	TriggerEvery      int           `mapstructure:"trigger_every" yaml:"trigger_every"`
	AdvisoryTimeout   time.Duration `mapstructure:"advisory_timeout" yaml:"advisory_timeout"`
	AdvisoryRetries   int           `mapstructure:"advisory_retries" yaml:"advisory_retries"`
	AnalysisWindow    time.Duration `mapstructure:"analysis_window" yaml:"analysis_window"`
	ChainTrendWindow  time.Duration `mapstructure:"chain_trend_window" yaml:"chain_trend_window"`
	MaxAnalysisEvents int           `mapstructure:"max_analysis_events" yaml:"max_analysis_events"`
}

// MaxAdvisoryRetries caps how often a failed advisory call is repeated
// before falling back to template text.
const MaxAdvisoryRetries = 1

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			IngestRate:      20,
			IngestBurst:     50,
			MaxBodyBytes:    64 << 10,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Port:    5432,
			Name:    "dropsense",
			SSLMode: "disable",
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Auth:    AuthConfig{Issuer: "dropsense"},
		Advisory: AdvisoryConfig{
			Model:      "advisor-small",
			RatePerSec: 5,
		},
		Worker: WorkerConfig{
			Concurrency:       4,
			PollInterval:      250 * time.Millisecond,
			ScheduleInterval:  15 * time.Minute,
			VisibilityTimeout: time.Minute,
		},
		Policy: DefaultPolicy(),
	}
}

// DefaultPolicy returns the stock thresholds.
func DefaultPolicy() Policy {
	return Policy{
		SessionGap:        30 * time.Minute,
		MinPatternEvents:  5,
		ConfidenceGate:    0.7,
		TriggerEvery:      10,
		AdvisoryTimeout:   3 * time.Second,
		AdvisoryRetries:   1,
		AnalysisWindow:    90 * 24 * time.Hour,
		ChainTrendWindow:  7 * 24 * time.Hour,
		MaxAnalysisEvents: 20000,
	}
}

// Validate checks configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: invalid server port: %d", c.Server.Port)
	}
	if c.Worker.Concurrency <= 0 {
		return errors.New("config: worker concurrency must be positive")
	}
	return c.Policy.Validate()
}

// Validate checks the policy thresholds
func (p Policy) Validate() error {
	if p.SessionGap <= 0 {
		return errors.New("config: policy.session_gap must be positive")
	}
	if p.MinPatternEvents < 0 {
		return errors.New("config: policy.min_pattern_events must not be negative")
	}
	if p.ConfidenceGate < 0 || p.ConfidenceGate > 1 {
		return fmt.Errorf("config: policy.confidence_gate out of range: %v", p.ConfidenceGate)
	}
	if p.TriggerEvery <= 0 {
		return errors.New("config: policy.trigger_every must be positive")
	}
	if p.AdvisoryTimeout <= 0 {
		return errors.New("config: policy.advisory_timeout must be positive")
	}
	if p.AdvisoryRetries < 0 || p.AdvisoryRetries > MaxAdvisoryRetries {
		return fmt.Errorf("config: policy.advisory_retries must be between 0 and %d", MaxAdvisoryRetries)
	}
	if p.AnalysisWindow < 24*time.Hour {
		return errors.New("config: policy.analysis_window must cover at least one day")
	}
	if p.ChainTrendWindow <= 0 {
		return errors.New("config: policy.chain_trend_window must be positive")
	}
	return nil
}
