package app

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		Addr:          defaultAddr,
		DatabaseURL:   "postgres://localhost/checkout",
		RedisURL:      "redis://localhost:6379/0",
		SessionPepper: "pepper",
		Checkout:      CheckoutConfig{HomeZone: "VN", SplitThreshold: 1_000_000, CODShippingFee: 25_000},
		Confirm:       ConfirmConfig{TotalThreshold: 5_000_000, LineQuantityThreshold: 2, TotalQuantityThreshold: 5},
	}
}

func TestConfig_PlatformDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://platform/db")
	t.Setenv("REDIS_URL", "redis://platform:6379/1")
	t.Setenv("PORT", "9090")

	var cfg Config
	cfg.Addr = defaultAddr
	cfg.applyPlatformDefaults()

	assert.Equal(t, "postgres://platform/db", cfg.DatabaseURL)
	assert.Equal(t, "redis://platform:6379/1", cfg.RedisURL)
	assert.Equal(t, "0.0.0.0:9090", cfg.Addr)
}

func TestConfig_PlatformDefaultsKeepExplicit(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://platform/db")
	t.Setenv("PORT", "9090")

	cfg := validConfig()
	cfg.Addr = "127.0.0.1:8000"
	cfg.applyPlatformDefaults()

	assert.Equal(t, "postgres://localhost/checkout", cfg.DatabaseURL)
	assert.Equal(t, "127.0.0.1:8000", cfg.Addr)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "no database", mutate: func(c *Config) { c.DatabaseURL = "" }, wantErr: "database URL"},
		{name: "no redis", mutate: func(c *Config) { c.RedisURL = "" }, wantErr: "redis URL"},
		{name: "no pepper", mutate: func(c *Config) { c.SessionPepper = "" }, wantErr: "session pepper"},
		{name: "zero threshold", mutate: func(c *Config) { c.Checkout.SplitThreshold = 0 }, wantErr: "split threshold"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestConfig_Conversions(t *testing.T) {
	cfg := validConfig()

	settings := cfg.CheckoutSettings()
	assert.Equal(t, "VN", settings.HomeZone)
	assert.True(t, settings.SplitThreshold.Equal(decimal.NewFromInt(1_000_000)))
	assert.True(t, settings.CODShippingFee.Equal(decimal.NewFromInt(25_000)))

	p := cfg.Policy()
	assert.True(t, p.TotalThreshold.Equal(decimal.NewFromInt(5_000_000)))
	assert.Equal(t, 2, p.LineQuantityThreshold)
	assert.Equal(t, 5, p.TotalQuantityThreshold)
}
