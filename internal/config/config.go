// Package config loads service settings from configs/config[.<env>].yaml,
// overridden by CHECKOUT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/yourorg/checkout-payments/internal/checkout"
	"github.com/yourorg/checkout-payments/internal/policy"
	"github.com/yourorg/checkout-payments/internal/provider/klarna"
	"github.com/yourorg/checkout-payments/internal/telemetry"
)

// Strategy kinds a payment method can be bound to.
const (
	StrategyWidget  = "widget"
	StrategyOffsite = "offsite"
)

// Config is the full service configuration.
type Config struct {
	App            AppConfig            `mapstructure:"app"`
	Server         ServerConfig         `mapstructure:"server"`
	Klarna         klarna.Config        `mapstructure:"klarna"`
	RemoteCheckout RemoteCheckoutConfig `mapstructure:"remote_checkout"`
	Offsite        OffsiteConfig        `mapstructure:"offsite"`
	Events         EventsConfig         `mapstructure:"events"`
	Telemetry      telemetry.Config     `mapstructure:"telemetry"`
	Checkout       CheckoutConfig       `mapstructure:"checkout"`
}

type AppConfig struct {
	Name     string `mapstructure:"name"`
	Env      string `mapstructure:"env"`
	Version  string `mapstructure:"version"`
	LogLevel string `mapstructure:"log_level"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	Mode            string        `mapstructure:"mode"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type RemoteCheckoutConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type OffsiteConfig struct {
	RetentionRules []policy.Rule `mapstructure:"retention_rules"`
}

type EventsConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// CheckoutConfig seeds the in-memory checkout backend.
type CheckoutConfig struct {
	// OrderSchema is a JSON schema file replacing the built-in order contract.
	OrderSchema    string         `mapstructure:"order_schema"`
	RedirectBase   string         `mapstructure:"redirect_base"`
	Currency       string         `mapstructure:"currency"`
	GrandTotal     string         `mapstructure:"grand_total"`
	PaymentMethods []MethodConfig `mapstructure:"payment_methods"`
}

// MethodConfig declares a payment method and the strategy that serves it.
type MethodConfig struct {
	ID          string `mapstructure:"id"`
	Gateway     string `mapstructure:"gateway"`
	Method      string `mapstructure:"method"`
	ClientToken string `mapstructure:"client_token"`
	Strategy    string `mapstructure:"strategy"`
}

// PaymentMethod converts m to the checkout model.
func (m MethodConfig) PaymentMethod() checkout.PaymentMethod {
	return checkout.PaymentMethod{ID: m.ID, Gateway: m.Gateway, Method: m.Method, ClientToken: m.ClientToken}
}

// Validate reports settings the service cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Events.Enabled && len(c.Events.Brokers) == 0 {
		errs = append(errs, errors.New("events.brokers is required when events are enabled"))
	}
	seen := make(map[string]bool, len(c.Checkout.PaymentMethods))
	for i, m := range c.Checkout.PaymentMethods {
		if m.ID == "" {
			errs = append(errs, fmt.Errorf("checkout.payment_methods[%d].id is required", i))
			continue
		}
		if seen[m.ID] {
			errs = append(errs, fmt.Errorf("checkout.payment_methods[%d]: duplicate id %q", i, m.ID))
		}
		seen[m.ID] = true
		switch m.Strategy {
		case StrategyWidget, StrategyOffsite:
		default:
			errs = append(errs, fmt.Errorf("checkout.payment_methods[%d]: unknown strategy %q", i, m.Strategy))
		}
	}
	return errors.Join(errs...)
}

// Load reads the configuration. An empty path searches ./configs and . for
// config.yaml, or config.<APP_ENV>.yaml outside dev. A missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		env := os.Getenv("APP_ENV")
		name := "config"
		if env != "" && env != "dev" {
			name = "config." + env
		}
		v.SetConfigName(name)
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix("CHECKOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if len(cfg.Offsite.RetentionRules) == 0 {
		cfg.Offsite.RetentionRules = policy.DefaultRules()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "checkout-payments")
	v.SetDefault("app.env", "dev")
	v.SetDefault("app.version", "dev")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.request_timeout", "15s")
	v.SetDefault("server.shutdown_timeout", "5s")

	v.SetDefault("klarna.base_url", "https://api.klarna.com")
	v.SetDefault("klarna.retry_attempts", 2)
	v.SetDefault("klarna.retry_delay", "500ms")
	v.SetDefault("klarna.circuit_breaker.failure_threshold", 3)
	v.SetDefault("klarna.circuit_breaker.reset_timeout", "30s")

	v.SetDefault("remote_checkout.base_url", "http://localhost:8081")
	v.SetDefault("remote_checkout.timeout", "10s")

	v.SetDefault("events.enabled", false)
	v.SetDefault("events.brokers", []string{"localhost:9092"})
	v.SetDefault("events.topic", "checkout.payments")

	v.SetDefault("telemetry.exporter", "stdout")
	v.SetDefault("telemetry.sample_ratio", 1.0)

	v.SetDefault("checkout.order_schema", "")
	v.SetDefault("checkout.redirect_base", "http://localhost:8080/redirect")
	v.SetDefault("checkout.currency", "USD")
	v.SetDefault("checkout.grand_total", "0")
}
