package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config stores all configuration for the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Mode       string `mapstructure:"mode"` // "simulated" or "live"
	LogLevel   string `mapstructure:"log_level"`
	Trading    TradingConfig
	Feed       FeedConfig
	Settlement SettlementConfig
	Database   DatabaseConfig
	Venues     map[string]VenueConfig
	Networks   map[string]CoinNetwork
	Symbols    []string
}

// TradingConfig defines the arbitrage decision parameters.
type TradingConfig struct {
	InitialCapital   float64 `mapstructure:"initial_capital"`    // USDT
	MinTradeNotional float64 `mapstructure:"min_trade_notional"` // USDT
	MinProfitPercent float64 `mapstructure:"min_profit_percent"`
	MaxSpreadPercent float64 `mapstructure:"max_spread_percent"`
}

// FeedConfig defines the price streaming settings.
type FeedConfig struct {
	ReconnectDelaySeconds int `mapstructure:"reconnect_delay_seconds"`
	TickBuffer            int `mapstructure:"tick_buffer"`
}

// SettlementConfig defines the post-fill settlement timing.
type SettlementConfig struct {
	SimulatedDelayMS    int `mapstructure:"simulated_delay_ms"`
	PollIntervalSeconds int `mapstructure:"poll_interval_seconds"`
	PollMaxAttempts     int `mapstructure:"poll_max_attempts"`
}

// DatabaseConfig defines the trade-log database connection settings.
// An empty host disables trade recording to Postgres.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
}

// VenueConfig defines settings for a specific exchange.
type VenueConfig struct {
	APIKey          string  `mapstructure:"api_key"`
	APISecret       string  `mapstructure:"api_secret"`
	Passphrase      string  `mapstructure:"passphrase"` // OKX only
	BaseURL         string  `mapstructure:"base_url"`
	WSURL           string  `mapstructure:"ws_url"`
	TakerFeePercent float64 `mapstructure:"taker_fee_percent"`
}

// CoinNetwork holds the transfer network, per-venue deposit addresses and
// withdrawal fee (in USDT) for one asset. Read-only reference data.
type CoinNetwork struct {
	Network       string            `mapstructure:"network"`
	Addresses     map[string]string `mapstructure:"addresses"`
	WithdrawalFee float64           `mapstructure:"withdrawal_fee"`
}

// URL returns the database connection string.
func (d DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s", d.User, d.Password, d.Host, d.Port, d.DBName)
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	err = config.validate()
	return
}

func (c Config) validate() error {
	if c.Mode != "simulated" && c.Mode != "live" {
		return fmt.Errorf("config: unknown mode %q", c.Mode)
	}
	if _, ok := c.Networks["USDT"]; !ok {
		return fmt.Errorf("config: networks table must include USDT")
	}
	for _, name := range []string{"binance", "okx"} {
		if _, ok := c.Venues[name]; !ok {
			return fmt.Errorf("config: missing venue %q", name)
		}
	}
	return nil
}
