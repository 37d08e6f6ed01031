package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// IngestionConfig tunes retry budgets and scheduler cadence. It is loaded
// from an optional ingestion.yml and hot-reloaded so retry policy can be
// adjusted without restarting the pollers.
type IngestionConfig struct {
	MaxAttempts     int           `mapstructure:"maxAttempts"`
	BackoffBase     time.Duration `mapstructure:"backoffBase"`
	BackoffCap      time.Duration `mapstructure:"backoffCap"`
	RunInterval     time.Duration `mapstructure:"runInterval"`
	LookbackDays    int           `mapstructure:"lookbackDays"`
	MaxConcurrent   int           `mapstructure:"maxConcurrent"`
	VendorCallLimit time.Duration `mapstructure:"vendorCallLimit"`
}

func DefaultIngestionConfig() IngestionConfig {
	return IngestionConfig{
		MaxAttempts:     4,
		BackoffBase:     500 * time.Millisecond,
		BackoffCap:      10 * time.Second,
		RunInterval:     time.Hour,
		LookbackDays:    30,
		MaxConcurrent:   8,
		VendorCallLimit: 2 * time.Minute,
	}
}

type IngestionConfigHolder struct {
	current atomic.Value // holds IngestionConfig
}

func NewIngestionConfigHolder() (*IngestionConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("ingestion")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/cloudtally/config")
	v.AddConfigPath("/etc/cloudtally")
	v.AddConfigPath(".")

	v.SetEnvPrefix("CLOUDTALLY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultIngestionConfig()
		v.SetDefault("ingestion.maxAttempts", defaults.MaxAttempts)
		v.SetDefault("ingestion.backoffBase", defaults.BackoffBase)
		v.SetDefault("ingestion.backoffCap", defaults.BackoffCap)
		v.SetDefault("ingestion.runInterval", defaults.RunInterval)
		v.SetDefault("ingestion.lookbackDays", defaults.LookbackDays)
		v.SetDefault("ingestion.maxConcurrent", defaults.MaxConcurrent)
		v.SetDefault("ingestion.vendorCallLimit", defaults.VendorCallLimit)
	}

	var cfg IngestionConfig
	if err := v.UnmarshalKey("ingestion", &cfg); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	if err := validateIngestionConfig(cfg); err != nil {
		return nil, err
	}

	holder := &IngestionConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated IngestionConfig
		if err := v.UnmarshalKey("ingestion", &updated); err != nil {
			log.Printf("[ingestion-config] reload failed: %v", err)
			return
		}
		updated = updated.withDefaults()
		if err := validateIngestionConfig(updated); err != nil {
			log.Printf("[ingestion-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[ingestion-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticIngestionConfigHolder wraps a fixed config without file
// watching. Used by tests and one-shot tools.
func NewStaticIngestionConfigHolder(cfg IngestionConfig) *IngestionConfigHolder {
	holder := &IngestionConfigHolder{}
	holder.current.Store(cfg.withDefaults())
	return holder
}

func (h *IngestionConfigHolder) Get() IngestionConfig {
	return h.current.Load().(IngestionConfig)
}

func (c IngestionConfig) withDefaults() IngestionConfig {
	defaults := DefaultIngestionConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaults.MaxAttempts
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = defaults.BackoffBase
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = defaults.BackoffCap
	}
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.LookbackDays <= 0 {
		c.LookbackDays = defaults.LookbackDays
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = defaults.MaxConcurrent
	}
	if c.VendorCallLimit <= 0 {
		c.VendorCallLimit = defaults.VendorCallLimit
	}
	return c
}

func validateIngestionConfig(cfg IngestionConfig) error {
	if cfg.MaxAttempts > 10 {
		return errors.New("ingestion.maxAttempts must be at most 10")
	}
	if cfg.BackoffBase > cfg.BackoffCap {
		return errors.New("ingestion.backoffBase cannot exceed ingestion.backoffCap")
	}
	return nil
}
