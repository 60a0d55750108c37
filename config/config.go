// Package config loads the sandbox server configuration from a YAML file,
// environment variables (optionally from a .env file) and CLI overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	defaultAddr         = ":5001"
	defaultLogLevel     = "info"
	defaultTokenSupply  = "14520427"
	defaultEthLiquidity = "170"
	defaultDecimals     = 18
	defaultGasPrice     = "2.1"
	defaultHistoryLimit = 10000
	defaultKafkaTopic   = "sandbox.trades"
)

// Environment variables overriding file values.
const (
	EnvAddr         = "SANDBOX_ADDR"
	EnvLogLevel     = "SANDBOX_LOG_LEVEL"
	EnvStateFile    = "SANDBOX_STATE_FILE"
	EnvPostgresDSN  = "SANDBOX_POSTGRES_DSN"
	EnvKafkaBrokers = "SANDBOX_KAFKA_BROKERS"
)

type Config struct {
	Addr     string
	LogLevel string
	LogColor bool

	TokenSupply  decimal.Decimal
	EthLiquidity decimal.Decimal
	Decimals     int32
	GasPrice     decimal.Decimal
	HistoryLimit int
	Seed         int64

	// StateFile is loaded on start and written on shutdown. Empty disables it.
	StateFile string

	TradeLog TradeLog
	TLS      TLS
}

// TradeLog selects the trade record sinks. Empty fields disable a sink.
type TradeLog struct {
	JSONLPath    string
	WALDir       string
	KafkaBrokers []string
	KafkaTopic   string
	PostgresDSN  string
}

// TLS enables automatic Let's Encrypt certificates for Domain.
type TLS struct {
	Domain   string
	CacheDir string
}

type ConfigTmp struct {
	Addr         string `yaml:"addr"`
	LogLevel     string `yaml:"log_level"`
	LogColor     *bool  `yaml:"log_color,omitempty"`
	TokenSupply  string `yaml:"token_supply"`
	EthLiquidity string `yaml:"eth_liquidity"`
	Decimals     int32  `yaml:"decimals,omitempty"`
	GasPrice     string `yaml:"gas_price,omitempty"`
	HistoryLimit int    `yaml:"history_limit,omitempty"`
	Seed         int64  `yaml:"seed,omitempty"`
	StateFile    string `yaml:"state_file,omitempty"`

	TradeLog struct {
		JSONLPath    string   `yaml:"jsonl_path,omitempty"`
		WALDir       string   `yaml:"wal_dir,omitempty"`
		KafkaBrokers []string `yaml:"kafka_brokers,omitempty"`
		KafkaTopic   string   `yaml:"kafka_topic,omitempty"`
		PostgresDSN  string   `yaml:"postgres_dsn,omitempty"`
	} `yaml:"trade_log,omitempty"`

	TLS struct {
		Domain   string `yaml:"domain,omitempty"`
		CacheDir string `yaml:"cache_dir,omitempty"`
	} `yaml:"tls,omitempty"`
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		Addr:         defaultAddr,
		LogLevel:     defaultLogLevel,
		LogColor:     true,
		TokenSupply:  decimal.RequireFromString(defaultTokenSupply),
		EthLiquidity: decimal.RequireFromString(defaultEthLiquidity),
		Decimals:     defaultDecimals,
		GasPrice:     decimal.RequireFromString(defaultGasPrice),
		HistoryLimit: defaultHistoryLimit,
		TradeLog:     TradeLog{KafkaTopic: defaultKafkaTopic},
	}
}

// Load loads .env (if present), then path (if set), then environment overrides.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = getYaml(path); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg)
	return cfg, cfg.Validate()
}

// Validate checks the pool parameters.
func (c Config) Validate() error {
	if !c.TokenSupply.IsPositive() {
		return fmt.Errorf("token supply must be positive, got %s", c.TokenSupply)
	}
	if !c.EthLiquidity.IsPositive() {
		return fmt.Errorf("eth liquidity must be positive, got %s", c.EthLiquidity)
	}
	if c.Decimals < 0 || c.Decimals > 36 {
		return fmt.Errorf("decimals must be in [0, 36], got %d", c.Decimals)
	}
	if c.GasPrice.IsNegative() {
		return fmt.Errorf("gas price must not be negative, got %s", c.GasPrice)
	}
	if len(c.TradeLog.KafkaBrokers) > 0 && c.TradeLog.KafkaTopic == "" {
		return fmt.Errorf("kafka topic is required when brokers are set")
	}
	return nil
}

func getYaml(path string) (Config, error) {
	f, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var c ConfigTmp
	if err := yaml.Unmarshal(f, &c); err != nil {
		return Config{}, fmt.Errorf("parse yaml config %s: %w", path, err)
	}

	return fromTmp(c)
}

func fromTmp(c ConfigTmp) (Config, error) {
	cfg := Default()

	if c.Addr != "" {
		cfg.Addr = c.Addr
	}
	if c.LogLevel != "" {
		cfg.LogLevel = c.LogLevel
	}
	if c.LogColor != nil {
		cfg.LogColor = *c.LogColor
	}

	var err error
	if cfg.TokenSupply, err = decimalOr(c.TokenSupply, cfg.TokenSupply, "token_supply"); err != nil {
		return Config{}, err
	}
	if cfg.EthLiquidity, err = decimalOr(c.EthLiquidity, cfg.EthLiquidity, "eth_liquidity"); err != nil {
		return Config{}, err
	}
	if cfg.GasPrice, err = decimalOr(c.GasPrice, cfg.GasPrice, "gas_price"); err != nil {
		return Config{}, err
	}

	if c.Decimals != 0 {
		cfg.Decimals = c.Decimals
	}
	if c.HistoryLimit != 0 {
		cfg.HistoryLimit = c.HistoryLimit
	}
	cfg.Seed = c.Seed
	cfg.StateFile = c.StateFile

	cfg.TradeLog.JSONLPath = c.TradeLog.JSONLPath
	cfg.TradeLog.WALDir = c.TradeLog.WALDir
	cfg.TradeLog.KafkaBrokers = c.TradeLog.KafkaBrokers
	if c.TradeLog.KafkaTopic != "" {
		cfg.TradeLog.KafkaTopic = c.TradeLog.KafkaTopic
	}
	cfg.TradeLog.PostgresDSN = c.TradeLog.PostgresDSN

	cfg.TLS.Domain = c.TLS.Domain
	cfg.TLS.CacheDir = c.TLS.CacheDir

	return cfg, nil
}

// ToTmp converts cfg into its YAML form.
func ToTmp(cfg Config) ConfigTmp {
	var c ConfigTmp
	color := cfg.LogColor

	c.Addr = cfg.Addr
	c.LogLevel = cfg.LogLevel
	c.LogColor = &color
	c.TokenSupply = cfg.TokenSupply.String()
	c.EthLiquidity = cfg.EthLiquidity.String()
	c.Decimals = cfg.Decimals
	c.GasPrice = cfg.GasPrice.String()
	c.HistoryLimit = cfg.HistoryLimit
	c.Seed = cfg.Seed
	c.StateFile = cfg.StateFile
	c.TradeLog.JSONLPath = cfg.TradeLog.JSONLPath
	c.TradeLog.WALDir = cfg.TradeLog.WALDir
	c.TradeLog.KafkaBrokers = cfg.TradeLog.KafkaBrokers
	c.TradeLog.KafkaTopic = cfg.TradeLog.KafkaTopic
	c.TradeLog.PostgresDSN = cfg.TradeLog.PostgresDSN
	c.TLS.Domain = cfg.TLS.Domain
	c.TLS.CacheDir = cfg.TLS.CacheDir
	return c
}

// Write stores cfg as YAML at path.
func Write(path string, cfg Config) error {
	data, err := yaml.Marshal(ToTmp(cfg))
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvAddr); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv(EnvStateFile); v != "" {
		cfg.StateFile = v
	}
	if v := os.Getenv(EnvPostgresDSN); v != "" {
		cfg.TradeLog.PostgresDSN = v
	}
	if v := os.Getenv(EnvKafkaBrokers); v != "" {
		cfg.TradeLog.KafkaBrokers = splitList(v)
	}
}

func decimalOr(raw string, fallback decimal.Decimal, field string) (decimal.Decimal, error) {
	if raw == "" {
		return fallback, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("incorrect '%s' param in yaml config (must be a decimal), error: %w", field, err)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ParseSeed parses a seed given on the command line.
func ParseSeed(v string) (int64, error) {
	if v == "" {
		return 0, nil
	}
	seed, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid seed %q: %w", v, err)
	}
	return seed, nil
}
