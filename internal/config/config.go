package config

import (
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/apaudit/internal/detect"
	"github.com/sells-group/apaudit/internal/gate"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Detection DetectionConfig `yaml:"detection" mapstructure:"detection"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Notify    NotifyConfig    `yaml:"notify" mapstructure:"notify"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// DetectionConfig carries the detection tunables; zero values fall back to
// documented defaults, and per-tenant overrides may replace any of them.
type DetectionConfig struct {
	BaselineDays        int       `yaml:"baseline_days" mapstructure:"baseline_days"`
	MinSamples          int       `yaml:"min_samples" mapstructure:"min_samples"`
	DuplicateWindowDays int       `yaml:"duplicate_window_days" mapstructure:"duplicate_window_days"`
	DuplicateTolerance  float64   `yaml:"duplicate_tolerance" mapstructure:"duplicate_tolerance"`
	ZThreshold          float64   `yaml:"z_threshold" mapstructure:"z_threshold"`
	AlertMinAmount      float64   `yaml:"alert_min_amount" mapstructure:"alert_min_amount"`
	RoundUnits          []float64 `yaml:"round_units" mapstructure:"round_units"`
	ScopeHistoryBills   int       `yaml:"scope_history_bills" mapstructure:"scope_history_bills"`
	LineItemTolerance   float64   `yaml:"line_item_tolerance" mapstructure:"line_item_tolerance"`
	TenantOverridesPath string    `yaml:"tenant_overrides_path" mapstructure:"tenant_overrides_path"`
}

// AnthropicConfig holds Anthropic API settings for the scope-drift delegate.
type AnthropicConfig struct {
	Key              string `yaml:"key" mapstructure:"key"`
	Model            string `yaml:"model" mapstructure:"model"`
	ScopeTimeoutSecs int    `yaml:"scope_timeout_secs" mapstructure:"scope_timeout_secs"`
}

// NotifyConfig configures the alert webhook dispatcher.
type NotifyConfig struct {
	TimeoutSecs int `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxAttempts int `yaml:"max_attempts" mapstructure:"max_attempts"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port          int     `yaml:"port" mapstructure:"port"`
	RatePerSecond float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	RateBurst     int     `yaml:"rate_burst" mapstructure:"rate_burst"`
}

// BatchConfig configures multi-tenant batch detection.
type BatchConfig struct {
	MaxConcurrentTenants int `yaml:"max_concurrent_tenants" mapstructure:"max_concurrent_tenants"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("APAUDIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "apaudit.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_per_second", 10)
	v.SetDefault("server.rate_burst", 20)
	v.SetDefault("batch.max_concurrent_tenants", 4)
	v.SetDefault("detection.baseline_days", 90)
	v.SetDefault("detection.min_samples", 3)
	v.SetDefault("detection.duplicate_window_days", 7)
	v.SetDefault("detection.duplicate_tolerance", 0.01)
	v.SetDefault("detection.z_threshold", 2.0)
	v.SetDefault("detection.alert_min_amount", 500)
	v.SetDefault("detection.round_units", []float64{100, 500, 1000})
	v.SetDefault("detection.scope_history_bills", 5)
	v.SetDefault("detection.line_item_tolerance", 0.05)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.scope_timeout_secs", 20)
	v.SetDefault("notify.timeout_secs", 10)
	v.SetDefault("notify.max_attempts", 3)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}

// TenantOverride holds optional per-tenant replacements for detection
// tunables. Nil fields inherit the global value.
type TenantOverride struct {
	BaselineDays        *int     `yaml:"baseline_days,omitempty"`
	MinSamples          *int     `yaml:"min_samples,omitempty"`
	DuplicateWindowDays *int     `yaml:"duplicate_window_days,omitempty"`
	ZThreshold          *float64 `yaml:"z_threshold,omitempty"`
	AlertMinAmount      *float64 `yaml:"alert_min_amount,omitempty"`
}

type overridesFile struct {
	Tenants map[string]TenantOverride `yaml:"tenants"`
}

// LoadTenantOverrides reads per-tenant detection overrides from a YAML file.
// A missing path yields an empty map, not an error.
func LoadTenantOverrides(path string) (map[string]TenantOverride, error) {
	if path == "" {
		return map[string]TenantOverride{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]TenantOverride{}, nil
		}
		return nil, eris.Wrapf(err, "config: read tenant overrides %s", path)
	}

	var f overridesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "config: parse tenant overrides %s", path)
	}
	if f.Tenants == nil {
		f.Tenants = map[string]TenantOverride{}
	}
	return f.Tenants, nil
}

// Resolve merges the global detection config with a tenant's override into
// the engine-facing tunables.
func (d DetectionConfig) Resolve(o *TenantOverride) detect.Config {
	cfg := detect.Defaults()
	if d.BaselineDays > 0 {
		cfg.BaselineDays = d.BaselineDays
	}
	if d.MinSamples > 0 {
		cfg.MinSamples = d.MinSamples
	}
	if d.DuplicateWindowDays > 0 {
		cfg.DuplicateWindowDays = d.DuplicateWindowDays
	}
	if d.DuplicateTolerance > 0 {
		cfg.DuplicateTolerance = d.DuplicateTolerance
	}
	if d.ZThreshold > 0 {
		cfg.ZThreshold = d.ZThreshold
	}
	if len(d.RoundUnits) > 0 {
		cfg.RoundUnits = d.RoundUnits
	}
	if d.ScopeHistoryBills > 0 {
		cfg.ScopeHistoryBills = d.ScopeHistoryBills
	}

	if o != nil {
		if o.BaselineDays != nil {
			cfg.BaselineDays = *o.BaselineDays
		}
		if o.MinSamples != nil {
			cfg.MinSamples = *o.MinSamples
		}
		if o.DuplicateWindowDays != nil {
			cfg.DuplicateWindowDays = *o.DuplicateWindowDays
		}
		if o.ZThreshold != nil {
			cfg.ZThreshold = *o.ZThreshold
		}
	}
	return cfg
}

// Gate resolves the alerting thresholds, applying a tenant override when set.
func (d DetectionConfig) Gate(o *TenantOverride) gate.Thresholds {
	th := gate.DefaultThresholds
	if d.AlertMinAmount > 0 {
		th.AlertMinAmount = d.AlertMinAmount
	}
	if d.ZThreshold > 0 {
		th.ZThreshold = d.ZThreshold
	}
	if o != nil {
		if o.AlertMinAmount != nil {
			th.AlertMinAmount = *o.AlertMinAmount
		}
		if o.ZThreshold != nil {
			th.ZThreshold = *o.ZThreshold
		}
	}
	return th
}

// ScopeTimeout converts the configured timeout to a duration.
func (a AnthropicConfig) ScopeTimeout() time.Duration {
	return time.Duration(a.ScopeTimeoutSecs) * time.Second
}
