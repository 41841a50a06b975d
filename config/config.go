// Package config loads the settings used to reach a resource management
// API through a throttled client. Values are layered: built-in defaults,
// an optional YAML file, then QUOTAGUARD_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable override, e.g.
// QUOTAGUARD_THROTTLE_INITIAL_DELAY=250ms.
const EnvPrefix = "QUOTAGUARD"

// Config represents the complete application configuration.
type Config struct {
	Endpoint       string         `mapstructure:"endpoint" validate:"required,url"`
	APIVersion     string         `mapstructure:"api_version" validate:"required"`
	TenantID       string         `mapstructure:"tenant_id" validate:"required"`
	SubscriptionID string         `mapstructure:"subscription_id" validate:"required"`
	Token          string         `mapstructure:"token"`
	UserAgent      string         `mapstructure:"user_agent"`
	Timeout        time.Duration  `mapstructure:"timeout" validate:"gte=0"`
	Throttle       ThrottleConfig `mapstructure:"throttle"`
	Adaptive       AdaptiveConfig `mapstructure:"adaptive"`
	Log            LogConfig      `mapstructure:"log"`
	Metrics        MetricsConfig  `mapstructure:"metrics"`
}

// ThrottleConfig configures the request interceptor.
// RPS and Burst of zero disable the token bucket ceiling.
type ThrottleConfig struct {
	InitialDelay      time.Duration `mapstructure:"initial_delay" validate:"gte=0"`
	DefaultRetryAfter time.Duration `mapstructure:"default_retry_after" validate:"gte=1s"`
	RPS               int           `mapstructure:"rps" validate:"gte=0"`
	Burst             int           `mapstructure:"burst" validate:"gte=0,required_unless=RPS 0"`
}

// AdaptiveConfig configures the delay controller. Empty Steps keep the
// controller's defaults.
type AdaptiveConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	BaseDelay time.Duration `mapstructure:"base_delay" validate:"gte=0"`
	Steps     []StepConfig  `mapstructure:"steps" validate:"dive"`
}

// StepConfig maps a remaining-reads threshold to a delay.
type StepConfig struct {
	Below int           `mapstructure:"below" validate:"gt=0"`
	Delay time.Duration `mapstructure:"delay" validate:"gte=0"`
}

// LogConfig contains logging configuration
type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
}

// MetricsConfig contains Prometheus metrics configuration.
// An empty Addr disables the metrics listener.
type MetricsConfig struct {
	Addr string `mapstructure:"addr" validate:"omitempty,hostname_port"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("endpoint", "https://management.azure.com")
	v.SetDefault("api_version", "2021-04-01")
	v.SetDefault("tenant_id", "")
	v.SetDefault("subscription_id", "")
	v.SetDefault("token", "")
	v.SetDefault("user_agent", "quotaguard/1.0")
	v.SetDefault("timeout", 30*time.Second)

	v.SetDefault("throttle.initial_delay", time.Duration(0))
	v.SetDefault("throttle.default_retry_after", 5*time.Minute)
	v.SetDefault("throttle.rps", 0)
	v.SetDefault("throttle.burst", 0)

	v.SetDefault("adaptive.enabled", true)
	v.SetDefault("adaptive.base_delay", time.Duration(0))

	v.SetDefault("log.level", "info")
	v.SetDefault("metrics.addr", "")
}

// Load builds a Config from defaults, the YAML file at path when path is
// not empty, and environment overrides, then validates it.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	hooks := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hooks); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		var fields FieldErrors
		if errors.As(err, &fields) {
			return Config{}, fmt.Errorf("%w: %w", ErrInvalid, fields)
		}
		return Config{}, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}
