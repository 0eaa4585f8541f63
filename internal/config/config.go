package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/blackscythe123/track-my-crypto/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Logging    logging.Config   `mapstructure:"logging"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	CoinGecko  CoinGeckoConfig  `mapstructure:"coingecko"`
	Moralis    MoralisConfig    `mapstructure:"moralis"`
	Bitcoin    BitcoinConfig    `mapstructure:"bitcoin"`
	Ethereum   EthereumConfig   `mapstructure:"ethereum"`
	Volatility VolatilityConfig `mapstructure:"volatility"`
	Cliq       CliqConfig       `mapstructure:"cliq"`
	News       NewsConfig       `mapstructure:"news"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// SchedulerConfig governs reconciliation cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	WalletDelay     time.Duration `mapstructure:"wallet_delay"`
}

// CoinGeckoConfig captures market data connectivity.
type CoinGeckoConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	APIKey            string        `mapstructure:"api_key"`
	VsCurrency        string        `mapstructure:"vs_currency"`
	BatchSize         int           `mapstructure:"batch_size"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	UserAgent         string        `mapstructure:"user_agent"`
}

// MoralisConfig covers EVM and Solana balance lookups.
type MoralisConfig struct {
	APIKey         string            `mapstructure:"api_key"`
	EVMBaseURL     string            `mapstructure:"evm_base_url"`
	SolanaBaseURL  string            `mapstructure:"solana_base_url"`
	RequestTimeout time.Duration     `mapstructure:"request_timeout"`
	Chains         map[string]string `mapstructure:"chains"`
}

// BitcoinConfig covers UTXO balance lookups.
type BitcoinConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// EthereumConfig enables the JSON-RPC fallback for native balances.
type EthereumConfig struct {
	RPCURLs        map[string]string `mapstructure:"rpc_urls"`
	RequestTimeout time.Duration     `mapstructure:"request_timeout"`
}

// VolatilityConfig defines alert thresholds and the cooldown window.
type VolatilityConfig struct {
	OneHourPct     float64       `mapstructure:"one_hour_pct"`
	TwentyFourHPct float64       `mapstructure:"twenty_four_hour_pct"`
	Cooldown       time.Duration `mapstructure:"cooldown"`
}

// CliqConfig describes the Zoho Cliq delivery channel.
type CliqConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	BotToken       string        `mapstructure:"bot_token"`
	BotID          string        `mapstructure:"bot_id"`
	APIBase        string        `mapstructure:"api_base"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// NewsConfig describes the CryptoPanic headline source.
type NewsConfig struct {
	APIKey         string        `mapstructure:"api_key"`
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// MetricsConfig toggles the Prometheus listener.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TRACKMYCRYPTO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "trackmycrypto")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("scheduler.interval", "15m")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x746d6331))
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.wallet_delay", "500ms")

	v.SetDefault("coingecko.base_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("coingecko.vs_currency", "inr")
	v.SetDefault("coingecko.batch_size", 50)
	v.SetDefault("coingecko.request_timeout", "10s")
	v.SetDefault("coingecko.requests_per_second", 2.0)
	v.SetDefault("coingecko.user_agent", "trackmycrypto/1.0")

	v.SetDefault("moralis.evm_base_url", "https://deep-index.moralis.io/api/v2.2")
	v.SetDefault("moralis.solana_base_url", "https://solana-gateway.moralis.io")
	v.SetDefault("moralis.request_timeout", "10s")
	v.SetDefault("moralis.chains", map[string]string{
		"eth":   "0x1",
		"bsc":   "0x38",
		"matic": "0x89",
		"avax":  "0xa86a",
		"ftm":   "0xfa",
		"arb":   "0xa4b1",
		"op":    "0xa",
		"base":  "0x2105",
	})

	v.SetDefault("bitcoin.base_url", "https://api.blockcypher.com/v1/btc/main")
	v.SetDefault("bitcoin.request_timeout", "10s")

	v.SetDefault("ethereum.request_timeout", "10s")

	v.SetDefault("volatility.one_hour_pct", 3.0)
	v.SetDefault("volatility.twenty_four_hour_pct", 5.0)
	v.SetDefault("volatility.cooldown", "6h")

	v.SetDefault("cliq.enabled", false)
	v.SetDefault("cliq.api_base", "https://cliq.zoho.com/api/v2")
	v.SetDefault("cliq.request_timeout", "10s")

	v.SetDefault("news.base_url", "https://cryptopanic.com/api/v1")
	v.SetDefault("news.request_timeout", "10s")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", ":9109")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.CoinGecko.BatchSize <= 0 {
		return fmt.Errorf("coingecko.batch_size must be greater than zero")
	}
	if c.CoinGecko.RequestsPerSecond <= 0 {
		return fmt.Errorf("coingecko.requests_per_second must be greater than zero")
	}
	if c.Volatility.OneHourPct <= 0 {
		return fmt.Errorf("volatility.one_hour_pct must be greater than zero")
	}
	if c.Volatility.TwentyFourHPct <= 0 {
		return fmt.Errorf("volatility.twenty_four_hour_pct must be greater than zero")
	}
	if c.Volatility.Cooldown <= 0 {
		return fmt.Errorf("volatility.cooldown must be greater than zero")
	}
	if c.Cliq.Enabled {
		if c.Cliq.BotToken == "" {
			return fmt.Errorf("cliq.bot_token is required when cliq.enabled")
		}
		if c.Cliq.BotID == "" {
			return fmt.Errorf("cliq.bot_id is required when cliq.enabled")
		}
	}
	return nil
}
