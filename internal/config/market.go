package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// MarketConfig carries marketplace-wide billing and fulfilment settings that
// used to live in mutable global preferences. Jobs receive it once per
// invocation and validate it at the boundary instead of reading it ad hoc.
type MarketConfig struct {
	// AccountsShopID is the enterprise that issues usage invoices.
	AccountsShopID int64 `mapstructure:"accountsShopId"`
	// DefaultPaymentMethodID and DefaultShippingMethodID back the invoicing flow.
	DefaultPaymentMethodID  int64 `mapstructure:"defaultPaymentMethodId"`
	DefaultShippingMethodID int64 `mapstructure:"defaultShippingMethodId"`
	// TrialLengthDays is added to an enterprise's shop trial start to compute expiry.
	TrialLengthDays int `mapstructure:"trialLengthDays"`
	// NotifyURL receives domain notifications (placement, confirmation outcomes).
	NotifyURL string `mapstructure:"notifyUrl"`
	// CatalogURL is the remote producer catalog that receives backorders.
	CatalogURL string `mapstructure:"catalogUrl"`
}

func DefaultMarketConfig() MarketConfig {
	return MarketConfig{
		TrialLengthDays: 30,
	}
}

// Validate reports configuration errors fatal to a job invocation.
func (c MarketConfig) Validate() error {
	if c.TrialLengthDays < 0 {
		return errors.New("market.trialLengthDays cannot be negative")
	}
	return nil
}

// ValidateBilling checks the settings the invoicing flow depends on.
func (c MarketConfig) ValidateBilling() error {
	if c.AccountsShopID == 0 {
		return errors.New("market.accountsShopId is required")
	}
	if c.DefaultPaymentMethodID == 0 || c.DefaultShippingMethodID == 0 {
		return errors.New("market default payment and shipping methods are required")
	}
	return nil
}

type MarketConfigHolder struct {
	current atomic.Value // holds MarketConfig
}

// NewStaticMarketConfigHolder wraps a fixed config, for tests.
func NewStaticMarketConfigHolder(cfg MarketConfig) *MarketConfigHolder {
	holder := &MarketConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewMarketConfigHolder() (*MarketConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("market")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/foodhub/config")
	v.AddConfigPath("/etc/foodhub")
	v.AddConfigPath(".")

	v.SetEnvPrefix("FOODHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultMarketConfig()
		v.SetDefault("market.trialLengthDays", defaults.TrialLengthDays)
	}

	var cfg MarketConfig
	if err := v.UnmarshalKey("market", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	holder := &MarketConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated MarketConfig
		if err := v.UnmarshalKey("market", &updated); err != nil {
			log.Printf("[market-config] reload failed: %v", err)
			return
		}
		if err := updated.Validate(); err != nil {
			log.Printf("[market-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[market-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *MarketConfigHolder) Get() MarketConfig {
	return h.current.Load().(MarketConfig)
}
