package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Environment string `mapstructure:"environment"`

	Server struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"server"`

	Storage struct {
		Driver string `mapstructure:"driver"` // sqlite or memory
		Path   string `mapstructure:"path"`
	} `mapstructure:"storage"`

	Logging struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"logging"`

	Reminders struct {
		PaymentWindowDays int           `mapstructure:"payment_window_days"`
		WithinDays        int           `mapstructure:"within_days"`
		SweepInterval     time.Duration `mapstructure:"sweep_interval"` // zero disables the in-process sweep
	} `mapstructure:"reminders"`
}

// SetDefaults registers the default for every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.path", "tracker.db")
	v.SetDefault("logging.level", "info")
	v.SetDefault("reminders.payment_window_days", 3)
	v.SetDefault("reminders.within_days", 30)
	v.SetDefault("reminders.sweep_interval", "1h")
}

// Load reads the config file (if any) and KPT_* environment variables into a Config.
func Load(v *viper.Viper, file string) (*Config, error) {
	SetDefaults(v)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/kpt")
	}

	v.SetEnvPrefix("KPT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || file != "" {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// No config file is fine, defaults and env apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the services cannot run with.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "sqlite":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the sqlite driver")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown storage.driver %q (want sqlite or memory)", c.Storage.Driver)
	}
	if c.Reminders.PaymentWindowDays < 0 {
		return fmt.Errorf("reminders.payment_window_days must not be negative")
	}
	if c.Reminders.WithinDays <= 0 {
		return fmt.Errorf("reminders.within_days must be positive")
	}
	return nil
}
