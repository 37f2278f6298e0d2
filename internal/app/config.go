package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/domain/checkout"
	"github.com/xenking/kart-checkout/internal/domain/order"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (CHECKOUT_ prefix), flags, or YAML config files.
type Config struct {
	Addr          string        `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL   string        `usage:"PostgreSQL connection URL (CHECKOUT_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	RedisURL      string        `usage:"Redis URL holding session carts (CHECKOUT_REDIS_URL or REDIS_URL)" flag:"redis-url"`
	SessionPepper string        `usage:"HMAC pepper for session token hashing" flag:"session-pepper"`
	CartTTL       time.Duration `default:"168h" usage:"Lifetime of an untouched session cart" flag:"cart-ttl"`
	Checkout      CheckoutConfig
	Confirm       ConfirmConfig
	Gateway       GatewayConfig
	Kafka         KafkaConfig
	RateLimit     RateLimitConfig
	CORS          CORSConfig
	Graceful      GracefulConfig
}

// CheckoutConfig holds the zone split and shipping settings. Amounts are in
// VND.
type CheckoutConfig struct {
	HomeZone       string `default:"VN" usage:"Fulfillment country served without cross-border handling"`
	SplitThreshold int64  `default:"1000000" usage:"Maximum subtotal of a foreign sub-order"`
	CODShippingFee int64  `default:"25000" usage:"Shipping fee charged for cash on delivery"`
}

// ConfirmConfig holds the thresholds above which placed orders wait for
// manual confirmation.
type ConfirmConfig struct {
	TotalThreshold         int64 `default:"5000000" usage:"Order total held for review"`
	LineQuantityThreshold  int   `default:"2" usage:"Line quantity held for review"`
	TotalQuantityThreshold int   `default:"5" usage:"Order quantity held for review"`
}

// GatewayConfig configures the payment providers.
type GatewayConfig struct {
	Timeout  time.Duration `default:"30s" usage:"Deadline of a single gateway charge"`
	Redirect RedirectGatewayConfig
	Token    TokenGatewayConfig
}

// RedirectGatewayConfig configures the hosted payment page used by CC.
type RedirectGatewayConfig struct {
	URL        string `usage:"Hosted payment page URL"`
	MerchantID string `usage:"Merchant id sent with every payment form"`
	Secret     string `usage:"Secure hash secret shared with the provider"`
	Currency   string `default:"704" usage:"ISO 4217 numeric currency code"`
}

// TokenGatewayConfig configures the charges API used by STRIPE.
type TokenGatewayConfig struct {
	BaseURL   string `default:"https://api.stripe.com" usage:"Charges API base URL"`
	SecretKey string `usage:"Charges API secret key"`
	Currency  string `default:"vnd" usage:"Charge currency"`
}

// KafkaConfig configures order event publishing. No brokers disables it.
type KafkaConfig struct {
	Brokers string `usage:"Comma separated Kafka brokers"`
	Topic   string `default:"checkout.orders" usage:"Order events topic"`
}

// RateLimitConfig controls the per-client fixed window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig lists the storefront origins.
type CORSConfig struct {
	Origins []string `default:"*" usage:"Allowed CORS origins"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "CHECKOUT",
		Files:     []string{"config.yaml", "/etc/checkout/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyPlatformDefaults maps the DATABASE_URL, REDIS_URL and PORT variables
// set by hosting platforms onto the CHECKOUT_ configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.RedisURL == "" {
		c.RedisURL = os.Getenv("REDIS_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}

func (c *Config) validate() error {
	switch {
	case c.DatabaseURL == "":
		return errors.New("database URL is required: set CHECKOUT_DATABASE_URL or DATABASE_URL")
	case c.RedisURL == "":
		return errors.New("redis URL is required: set CHECKOUT_REDIS_URL or REDIS_URL")
	case c.SessionPepper == "":
		return errors.New("session pepper is required: set CHECKOUT_SESSION_PEPPER")
	case c.Checkout.SplitThreshold <= 0:
		return errors.New("checkout split threshold must be positive")
	}
	return nil
}

// CheckoutSettings converts the checkout section for checkout.NewService.
func (c *Config) CheckoutSettings() checkout.Config {
	return checkout.Config{
		HomeZone:       c.Checkout.HomeZone,
		SplitThreshold: decimal.NewFromInt(c.Checkout.SplitThreshold),
		CODShippingFee: decimal.NewFromInt(c.Checkout.CODShippingFee),
	}
}

// Policy converts the confirmation section.
func (c *Config) Policy() order.Policy {
	return order.Policy{
		TotalThreshold:         decimal.NewFromInt(c.Confirm.TotalThreshold),
		LineQuantityThreshold:  c.Confirm.LineQuantityThreshold,
		TotalQuantityThreshold: c.Confirm.TotalQuantityThreshold,
	}
}
