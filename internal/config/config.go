package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

const (
	GatewayModeLive    = "live"
	GatewayModeSandbox = "sandbox"
)

type Config struct {
	HTTPPort        string        `mapstructure:"HTTP_PORT"`
	RequestTimeout  time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`
	LogLevel        string        `mapstructure:"LOG_LEVEL"`

	DBHost         string `mapstructure:"DB_HOST"`
	DBPort         int    `mapstructure:"DB_PORT"`
	DBUser         string `mapstructure:"DB_USER"`
	DBPassword     string `mapstructure:"DB_PASSWORD"`
	DBName         string `mapstructure:"DB_NAME"`
	MigrationsPath string `mapstructure:"MIGRATIONS_PATH"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`

	KafkaBrokers     string        `mapstructure:"KAFKA_BROKERS"`
	OrderEventsTopic string        `mapstructure:"ORDER_EVENTS_TOPIC"`
	OutboxRetention  time.Duration `mapstructure:"OUTBOX_RETENTION"`
	CartCacheGroup   string        `mapstructure:"CART_CACHE_GROUP"`

	JWTSecret string `mapstructure:"JWT_SECRET"`

	Currency        string `mapstructure:"CURRENCY"`
	ShippingFlatFee string `mapstructure:"SHIPPING_FLAT_FEE"`

	GatewayMode           string        `mapstructure:"GATEWAY_MODE"`
	GatewayBaseURL        string        `mapstructure:"GATEWAY_BASE_URL"`
	GatewayKeyID          string        `mapstructure:"GATEWAY_KEY_ID"`
	GatewayKeySecret      string        `mapstructure:"GATEWAY_KEY_SECRET"`
	GatewayTimeout        time.Duration `mapstructure:"GATEWAY_TIMEOUT"`
	SandboxFailurePercent int           `mapstructure:"SANDBOX_FAILURE_PERCENT"`
}

var defaults = map[string]any{
	"HTTP_PORT":               "8080",
	"REQUEST_TIMEOUT":         "30s",
	"SHUTDOWN_TIMEOUT":        "10s",
	"LOG_LEVEL":               "info",
	"DB_HOST":                 "localhost",
	"DB_PORT":                 5432,
	"DB_USER":                 "postgres",
	"DB_PASSWORD":             "postgres",
	"DB_NAME":                 "storefront",
	"MIGRATIONS_PATH":         "internal/repository/migrations",
	"REDIS_ADDR":              "localhost:6379",
	"REDIS_PASSWORD":          "",
	"KAFKA_BROKERS":           "localhost:9092",
	"ORDER_EVENTS_TOPIC":      "order-events",
	"OUTBOX_RETENTION":        "168h",
	"CART_CACHE_GROUP":        "storefront-cart-cache",
	"JWT_SECRET":              "",
	"CURRENCY":                "INR",
	"SHIPPING_FLAT_FEE":       "50.00",
	"GATEWAY_MODE":            GatewayModeSandbox,
	"GATEWAY_BASE_URL":        "https://api.razorpay.com",
	"GATEWAY_KEY_ID":          "rzp_sandbox",
	"GATEWAY_KEY_SECRET":      "sandbox-secret",
	"GATEWAY_TIMEOUT":         "10s",
	"SANDBOX_FAILURE_PERCENT": 0,
}

// Load reads defaults, then the optional file named by CONFIG_FILE, then the
// environment, which wins.
func Load() (*Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.AutomaticEnv()

	if file := v.GetString("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", file, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	fee, err := decimal.NewFromString(c.ShippingFlatFee)
	if err != nil {
		errs = append(errs, fmt.Errorf("SHIPPING_FLAT_FEE: %w", err))
	} else if !fee.IsPositive() {
		errs = append(errs, errors.New("SHIPPING_FLAT_FEE must be positive"))
	}
	if len(c.Currency) != 3 {
		errs = append(errs, errors.New("CURRENCY must be a 3-letter code"))
	}
	switch c.GatewayMode {
	case GatewayModeSandbox:
	case GatewayModeLive:
		if c.GatewayKeyID == "" || c.GatewayKeySecret == "" {
			errs = append(errs, errors.New("GATEWAY_KEY_ID and GATEWAY_KEY_SECRET are required in live mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("GATEWAY_MODE %q is not one of live, sandbox", c.GatewayMode))
	}
	if c.SandboxFailurePercent < 0 || c.SandboxFailurePercent > 100 {
		errs = append(errs, errors.New("SANDBOX_FAILURE_PERCENT must be within 0..100"))
	}
	return errors.Join(errs...)
}

func (c *Config) FlatFee() decimal.Decimal {
	return decimal.RequireFromString(c.ShippingFlatFee)
}

func (c *Config) Brokers() []string {
	var out []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

func (c *Config) CurrencyCode() string {
	return strings.ToUpper(c.Currency)
}
