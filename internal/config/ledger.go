package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// LedgerConfig holds runtime tunables that can change without a restart.
type LedgerConfig struct {
	Priority           PriorityConfig `mapstructure:"priority"`
	LowCreditThreshold float64        `mapstructure:"lowCreditThreshold"`
}

type PriorityConfig struct {
	DefaultLimit int `mapstructure:"defaultLimit"`
	MaxLimit     int `mapstructure:"maxLimit"`
}

func DefaultLedgerConfig() LedgerConfig {
	return LedgerConfig{
		Priority: PriorityConfig{
			DefaultLimit: 10,
			MaxLimit:     100,
		},
		LowCreditThreshold: 5,
	}
}

var defaultLedgerConfigPaths = []string{
	"/etc/agentdesk",
	".",
}

type LedgerConfigHolder struct {
	current atomic.Value // holds LedgerConfig
}

// NewLedgerConfigHolder loads ledger.yml from the default search paths.
func NewLedgerConfigHolder() (*LedgerConfigHolder, error) {
	return LoadLedgerConfig(defaultLedgerConfigPaths)
}

// NewStaticLedgerConfigHolder returns a holder that never reloads.
func NewStaticLedgerConfigHolder(cfg LedgerConfig) *LedgerConfigHolder {
	holder := &LedgerConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func LoadLedgerConfig(paths []string) (*LedgerConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("ledger")
	v.SetConfigType("yml")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	v.SetEnvPrefix("AGENTDESK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultLedgerConfig()
	v.SetDefault("ledger.priority.defaultLimit", defaults.Priority.DefaultLimit)
	v.SetDefault("ledger.priority.maxLimit", defaults.Priority.MaxLimit)
	v.SetDefault("ledger.lowCreditThreshold", defaults.LowCreditThreshold)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	cfg, err := decodeLedgerConfig(v)
	if err != nil {
		return nil, err
	}
	if err := validateLedgerConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticLedgerConfigHolder(cfg)
	if !fileLoaded {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeLedgerConfig(v)
		if err != nil {
			log.Printf("[ledger-config] reload failed: %v", err)
			return
		}
		if err := validateLedgerConfig(updated); err != nil {
			log.Printf("[ledger-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[ledger-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *LedgerConfigHolder) Get() LedgerConfig {
	if h == nil {
		return DefaultLedgerConfig()
	}
	return h.current.Load().(LedgerConfig)
}

// decodeLedgerConfig unmarshals the merged settings so nested defaults
// survive a partial ledger.yml.
func decodeLedgerConfig(v *viper.Viper) (LedgerConfig, error) {
	var wrapper struct {
		Ledger LedgerConfig `mapstructure:"ledger"`
	}
	if err := v.Unmarshal(&wrapper); err != nil {
		return LedgerConfig{}, err
	}
	return wrapper.Ledger, nil
}

func validateLedgerConfig(cfg LedgerConfig) error {
	if cfg.Priority.DefaultLimit <= 0 {
		return errors.New("ledger.priority.defaultLimit must be positive")
	}
	if cfg.Priority.MaxLimit < cfg.Priority.DefaultLimit {
		return errors.New("ledger.priority.maxLimit cannot be below defaultLimit")
	}
	if cfg.LowCreditThreshold < 0 {
		return errors.New("ledger.lowCreditThreshold cannot be negative")
	}
	return nil
}
