package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Environment string           `mapstructure:"environment"`
	LogLevel    string           `mapstructure:"log_level"`
	DemoMode    bool             `mapstructure:"demo_mode"` // in-memory storage, no database
	Server      ServerConfig     `mapstructure:"server"`
	Database    DatabaseConfig   `mapstructure:"database"`
	Redis       RedisConfig      `mapstructure:"redis"`
	Chains      ChainsConfig     `mapstructure:"chains"`
	Settlement  SettlementConfig `mapstructure:"settlement"`
	Swap        SwapConfig       `mapstructure:"swap"`
	Bridge      BridgeConfig     `mapstructure:"bridge"`
	Workers     WorkersConfig    `mapstructure:"workers"`
	Tracing     TracingConfig    `mapstructure:"tracing"`
}

type ServerConfig struct {
	Port            int      `mapstructure:"port"`
	Host            string   `mapstructure:"host"`
	ReadTimeout     int      `mapstructure:"read_timeout"`
	WriteTimeout    int      `mapstructure:"write_timeout"`
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	RateLimitPerMin int      `mapstructure:"rate_limit_per_min"`
}

type DatabaseConfig struct {
	URL             string `mapstructure:"url"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// ChainsConfig describes the source chains tips arrive on and the
// destination chain batches settle to
type ChainsConfig struct {
	Destination DestinationConfig        `mapstructure:"destination"`
	Sources     map[string]SourceConfig  `mapstructure:"sources"`
}

type DestinationConfig struct {
	ChainID        int64  `mapstructure:"chain_id"`
	Name           string `mapstructure:"name"`
	SettlementUnit string `mapstructure:"settlement_unit"` // e.g. USDC
}

type SourceConfig struct {
	ChainID       int64  `mapstructure:"chain_id"`
	Name          string `mapstructure:"name"`
	Confirmations int    `mapstructure:"confirmations"`
}

// SettlementConfig is the batch close policy and revenue split
type SettlementConfig struct {
	MinBatchAmount    string  `mapstructure:"min_batch_amount"`    // raw smallest-unit threshold
	MaxBatchWindowSec int     `mapstructure:"max_batch_window_sec"` // oldest-tip age forcing a close
	PlatformFeePct    float64 `mapstructure:"platform_fee_pct"`
	BusinessSharePct  float64 `mapstructure:"business_share_pct"` // of post-fee remainder
	MaxTipMessageLen  int     `mapstructure:"max_tip_message_len"`
	LockStripes       int     `mapstructure:"lock_stripes"`
}

// MinBatchAmountDecimal parses the configured threshold
func (s SettlementConfig) MinBatchAmountDecimal() (decimal.Decimal, error) {
	return decimal.NewFromString(s.MinBatchAmount)
}

type SwapConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	APIKey     string `mapstructure:"api_key"`
	TimeoutSec int    `mapstructure:"timeout_sec"`
}

type BridgeConfig struct {
	BaseURL            string `mapstructure:"base_url"`
	APIKey             string `mapstructure:"api_key"`
	TimeoutSec         int    `mapstructure:"timeout_sec"`
	ConfirmDeadlineSec int    `mapstructure:"confirm_deadline_sec"`
	PollIntervalSec    int    `mapstructure:"poll_interval_sec"`
}

type WorkersConfig struct {
	WindowSweepSchedule  string `mapstructure:"window_sweep_schedule"`
	RedispatchSchedule   string `mapstructure:"redispatch_schedule"`
	HealthCheckSchedule  string `mapstructure:"health_check_schedule"`
}

type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	CollectorURL string  `mapstructure:"collector_url"`
	SampleRate   float64 `mapstructure:"sample_rate"`
	Insecure     bool    `mapstructure:"insecure"`
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	// Load .env file if it exists (ignore errors if file doesn't exist)
	godotenv.Load()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	// Read from config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Override with environment variables
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Build database URL if not provided
	if config.Database.URL == "" {
		config.Database.URL = fmt.Sprintf(
			"postgres://%s:%s@%s:%d/%s?sslmode=%s",
			config.Database.User,
			config.Database.Password,
			config.Database.Host,
			config.Database.Port,
			config.Database.Name,
			config.Database.SSLMode,
		)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")
	viper.SetDefault("demo_mode", false)

	// Server defaults
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.read_timeout", 30)
	viper.SetDefault("server.write_timeout", 30)
	viper.SetDefault("server.rate_limit_per_min", 100)

	// Database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.name", "streamtip")
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 300)

	// Redis defaults
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.pool_size", 10)

	// Destination: USDC on ApeChain
	viper.SetDefault("chains.destination.chain_id", 33139)
	viper.SetDefault("chains.destination.name", "ApeChain Mainnet")
	viper.SetDefault("chains.destination.settlement_unit", "USDC")

	// Source chains
	viper.SetDefault("chains.sources.ethereum.chain_id", 1)
	viper.SetDefault("chains.sources.ethereum.name", "Ethereum Mainnet")
	viper.SetDefault("chains.sources.ethereum.confirmations", 3)
	viper.SetDefault("chains.sources.polygon.chain_id", 137)
	viper.SetDefault("chains.sources.polygon.name", "Polygon Mainnet")
	viper.SetDefault("chains.sources.polygon.confirmations", 5)
	viper.SetDefault("chains.sources.base.chain_id", 8453)
	viper.SetDefault("chains.sources.base.name", "Base Mainnet")
	viper.SetDefault("chains.sources.base.confirmations", 3)

	// Settlement policy: 5% platform fee, 70/30 business/streamer split
	viper.SetDefault("settlement.min_batch_amount", "1000000000")
	viper.SetDefault("settlement.max_batch_window_sec", 1800)
	viper.SetDefault("settlement.platform_fee_pct", 0.05)
	viper.SetDefault("settlement.business_share_pct", 0.70)
	viper.SetDefault("settlement.max_tip_message_len", 280)
	viper.SetDefault("settlement.lock_stripes", 64)

	// Provider defaults
	viper.SetDefault("swap.timeout_sec", 60)
	viper.SetDefault("bridge.timeout_sec", 60)
	viper.SetDefault("bridge.confirm_deadline_sec", 600)
	viper.SetDefault("bridge.poll_interval_sec", 10)

	// Worker schedules
	viper.SetDefault("workers.window_sweep_schedule", "@every 30s")
	viper.SetDefault("workers.redispatch_schedule", "@every 2m")
	viper.SetDefault("workers.health_check_schedule", "@every 1m")

	// Tracing defaults
	viper.SetDefault("tracing.enabled", false)
	viper.SetDefault("tracing.collector_url", "localhost:4317")
	viper.SetDefault("tracing.sample_rate", 1.0)
	viper.SetDefault("tracing.insecure", true)
}

func validate(cfg *Config) error {
	if _, err := cfg.Settlement.MinBatchAmountDecimal(); err != nil {
		return fmt.Errorf("settlement.min_batch_amount is not a valid decimal: %w", err)
	}
	if cfg.Settlement.PlatformFeePct < 0 || cfg.Settlement.PlatformFeePct >= 1 {
		return fmt.Errorf("settlement.platform_fee_pct must be in [0, 1)")
	}
	if cfg.Settlement.BusinessSharePct < 0 || cfg.Settlement.BusinessSharePct > 1 {
		return fmt.Errorf("settlement.business_share_pct must be in [0, 1]")
	}
	if cfg.Settlement.MaxBatchWindowSec <= 0 {
		return fmt.Errorf("settlement.max_batch_window_sec must be positive")
	}
	if !cfg.DemoMode && cfg.Database.URL == "" {
		return fmt.Errorf("database.url is required outside demo mode")
	}
	if cfg.Environment == "production" {
		if cfg.Swap.BaseURL == "" {
			return fmt.Errorf("swap.base_url is required in production")
		}
		if cfg.Bridge.BaseURL == "" {
			return fmt.Errorf("bridge.base_url is required in production")
		}
	}
	return nil
}
