package config

import (
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override, e.g.
// DROPSENSE_POLICY_CONFIDENCE_GATE=0.8.
const EnvPrefix = "DROPSENSE"

// NewViper returns a viper instance primed with defaults and env overrides.
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	return v
}

// SetDefaults registers every known key so env overrides resolve.
func SetDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.ingest_rate", d.Server.IngestRate)
	v.SetDefault("server.ingest_burst", d.Server.IngestBurst)
	v.SetDefault("server.max_body_bytes", d.Server.MaxBodyBytes)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)

	v.SetDefault("database.host", d.Database.Host)
	v.SetDefault("database.port", d.Database.Port)
	v.SetDefault("database.name", d.Database.Name)
	v.SetDefault("database.user", d.Database.User)
	v.SetDefault("database.password", d.Database.Password)
	v.SetDefault("database.sslmode", d.Database.SSLMode)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)

	v.SetDefault("auth.jwt_secret", d.Auth.JWTSecret)
	v.SetDefault("auth.issuer", d.Auth.Issuer)

	v.SetDefault("advisory.endpoint", d.Advisory.Endpoint)
	v.SetDefault("advisory.model", d.Advisory.Model)
	v.SetDefault("advisory.api_key", d.Advisory.APIKey)
	v.SetDefault("advisory.token_url", d.Advisory.TokenURL)
	v.SetDefault("advisory.client_id", d.Advisory.ClientID)
	v.SetDefault("advisory.client_secret", d.Advisory.ClientSecret)
	v.SetDefault("advisory.rate_per_sec", d.Advisory.RatePerSec)

	v.SetDefault("worker.concurrency", d.Worker.Concurrency)
	v.SetDefault("worker.poll_interval", d.Worker.PollInterval)
	v.SetDefault("worker.schedule_interval", d.Worker.ScheduleInterval)
	v.SetDefault("worker.visibility_timeout", d.Worker.VisibilityTimeout)

	v.SetDefault("policy.session_gap", d.Policy.SessionGap)
	v.SetDefault("policy.min_pattern_events", d.Policy.MinPatternEvents)
	v.SetDefault("policy.confidence_gate", d.Policy.ConfidenceGate)
	v.SetDefault("policy.trigger_every", d.Policy.TriggerEvery)
	v.SetDefault("policy.advisory_timeout", d.Policy.AdvisoryTimeout)
	v.SetDefault("policy.advisory_retries", d.Policy.AdvisoryRetries)
	v.SetDefault("policy.analysis_window", d.Policy.AnalysisWindow)
	v.SetDefault("policy.chain_trend_window", d.Policy.ChainTrendWindow)
	v.SetDefault("policy.max_analysis_events", d.Policy.MaxAnalysisEvents)
}

// Load reads the optional config file (YAML or TOML by extension) and
// decodes the merged result.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return Decode(v)
}

// Decode unmarshals the current viper state and validates it.
func Decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// WatchPolicy re-decodes the policy block whenever the config file changes.
// Invalid edits are logged and ignored so the previous policy stays active.
func WatchPolicy(v *viper.Viper, logger *zap.Logger, apply func(Policy)) {
	v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := Decode(v)
		if err != nil {
			logger.Warn("ignoring invalid config change",
				zap.String("file", e.Name),
				zap.Error(err))
			return
		}
		logger.Info("policy reloaded",
			zap.String("file", e.Name),
			zap.Float64("confidence_gate", cfg.Policy.ConfidenceGate),
			zap.Int("trigger_every", cfg.Policy.TriggerEvery))
		apply(cfg.Policy)
	})
	v.WatchConfig()
}

// Dump renders the effective configuration as YAML. Secrets are omitted.
func Dump(cfg *Config) ([]byte, error) {
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return out, nil
}

// DSN builds the lib/pq connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}
