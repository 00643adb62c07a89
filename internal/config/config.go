/**
 * @description
 * Configuration management for the listing service. Uses viper to load
 * settings from environment variables with explicit bindings so every
 * field appears in Unmarshal.
 */
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	ServerPort        string `mapstructure:"SERVER_PORT"`
	DatabaseURL       string `mapstructure:"DATABASE_URL"`
	AMQPURL           string `mapstructure:"AMQP_URL"`
	RedisURL          string `mapstructure:"REDIS_URL"`
	StoreDirectoryURL string `mapstructure:"STORE_DIRECTORY_URL"`
	InternalAPIKey    string `mapstructure:"INTERNAL_API_KEY"`

	// SweepSchedule is a standard cron expression; hourly by default.
	SweepSchedule string `mapstructure:"SWEEP_SCHEDULE"`

	// EventExchange is the broker exchange notifications publish to.
	EventExchange string `mapstructure:"EVENT_EXCHANGE"`

	// ViewPrice is the charge per purchased view, in minor units.
	ViewPrice int64 `mapstructure:"VIEW_PRICE"`

	// PaymentDelayMS is the simulated gateway round-trip in milliseconds.
	PaymentDelayMS int `mapstructure:"PAYMENT_DELAY_MS"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (config Config, err error) {
	viper.SetDefault("SERVER_PORT", "8086")
	viper.SetDefault("SWEEP_SCHEDULE", "0 * * * *")
	viper.SetDefault("EVENT_EXCHANGE", "adverto.listing.events")
	viper.SetDefault("VIEW_PRICE", 2)
	viper.SetDefault("PAYMENT_DELAY_MS", 150)
	viper.AutomaticEnv()

	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("AMQP_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("STORE_DIRECTORY_URL")
	_ = viper.BindEnv("INTERNAL_API_KEY")
	_ = viper.BindEnv("SWEEP_SCHEDULE")
	_ = viper.BindEnv("EVENT_EXCHANGE")
	_ = viper.BindEnv("VIEW_PRICE")
	_ = viper.BindEnv("PAYMENT_DELAY_MS")

	if err = viper.Unmarshal(&config); err != nil {
		return config, err
	}

	if config.ViewPrice <= 0 {
		return config, fmt.Errorf("VIEW_PRICE must be positive, got %d", config.ViewPrice)
	}
	if config.SweepSchedule == "" {
		return config, fmt.Errorf("SWEEP_SCHEDULE must not be empty")
	}
	return config, nil
}
