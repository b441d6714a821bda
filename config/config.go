package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full process configuration. Everything here is fixed at
// startup; the trading core never re-reads it.
type Config struct {
	Engine   EngineConfig   `yaml:"engine"`
	Executor ExecutorConfig `yaml:"executor"`
	Gate     GateConfig     `yaml:"gate"`
	Regime   RegimeConfig   `yaml:"regime"`
	API      APIConfig      `yaml:"api"`
	Wallet   WalletConfig   `yaml:"wallet"`
	Journal  JournalConfig  `yaml:"journal"`
	Telegram TelegramConfig `yaml:"telegram"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Log      LogConfig      `yaml:"log"`
}

// EngineConfig controls the session loop and gate pipeline.
type EngineConfig struct {
	SlugPrefix         string  `yaml:"slug_prefix"`
	ExecutionEnabled   bool    `yaml:"execution_enabled"`
	MaxSpread          float64 `yaml:"max_spread"`
	ChoppyEdgeModifier float64 `yaml:"choppy_edge_modifier"`
}

// ExecutorConfig controls the order lifecycle.
type ExecutorConfig struct {
	CashPerTrade         float64 `yaml:"cash_per_trade"`
	CoreTimeoutMs        int     `yaml:"core_timeout_ms"`
	RecoveryTimeoutMs    int     `yaml:"recovery_timeout_ms"`
	PollIntervalMs       int     `yaml:"poll_interval_ms"`
	MaxRetries           int     `yaml:"max_retries"`
	RetryDelayMs         int     `yaml:"retry_delay_ms"`
	DegradedThresholdBps float64 `yaml:"degraded_threshold_bps"`
	DegradedKillCount    int     `yaml:"degraded_kill_count"`
	PartialMinRemaining  float64 `yaml:"partial_min_remaining"`
	MaxAskDrift          float64 `yaml:"max_ask_drift"`
	RebaseSlippage       bool    `yaml:"rebase_slippage"`
}

// GateConfig controls admission and the kill-switch thresholds.
type GateConfig struct {
	EdgeThreshold        float64 `yaml:"edge_threshold"`
	SafetyCap            float64 `yaml:"safety_cap"`
	MaxTradesPerZone     int     `yaml:"max_trades_per_zone"`
	CooldownSeconds      int     `yaml:"cooldown_seconds"`
	MaxConsecutiveLosses int     `yaml:"max_consecutive_losses"`
	PnLFloor             float64 `yaml:"pnl_floor"`
	InitialBalance       float64 `yaml:"initial_balance"`
}

// RegimeConfig controls the rolling-window regime detector.
type RegimeConfig struct {
	WindowSeconds      int     `yaml:"window_seconds"`
	MinIntervalSeconds int     `yaml:"min_interval_seconds"`
	MoveThreshold      float64 `yaml:"move_threshold"`
	MinSamples         int     `yaml:"min_samples"`
	ChoppyMin          int     `yaml:"choppy_min"`
	StableMax          int     `yaml:"stable_max"`
	DeadZonePct        float64 `yaml:"dead_zone_pct"`
}

// APIConfig holds the venue base URLs.
type APIConfig struct {
	CLOBBase  string `yaml:"clob_base"`
	GammaBase string `yaml:"gamma_base"`
	WSBase    string `yaml:"ws_base"`
}

// WalletConfig holds signing identity. The private key only ever comes
// from the environment, never from YAML.
type WalletConfig struct {
	PrivateKey    string `yaml:"-"`
	FunderAddress string `yaml:"funder_address"`
	SignatureType int    `yaml:"signature_type"`
}

// JournalConfig controls trade journaling.
type JournalConfig struct {
	LogPath string `yaml:"log_path"` // flat append-only event log
	DSN     string `yaml:"dsn"`      // SQLite mirror, or ":memory:"
	Metrics string `yaml:"metrics"`  // per-trade JSONL sink path
}

// TelegramConfig controls outbound notifications. Disabled unless both
// token and chat id are set.
type TelegramConfig struct {
	BotToken string `yaml:"-"`
	ChatID   string `yaml:"chat_id"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Addr string `yaml:"addr"` // empty disables the listener
}

// LogConfig controls slog output.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load reads the YAML file, loads .env if present and applies env
// overrides, then fills defaults.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)
	return &cfg, nil
}

// Cooldown returns the admission cooldown as a duration.
func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.Gate.CooldownSeconds) * time.Second
}

// TelegramEnabled reports whether telegram delivery is configured.
func (c *Config) TelegramEnabled() bool {
	return c.Telegram.BotToken != "" && c.Telegram.ChatID != ""
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PM_PRIVATE_KEY"); v != "" {
		cfg.Wallet.PrivateKey = v
	}
	if v := os.Getenv("PM_FUNDER_ADDRESS"); v != "" {
		cfg.Wallet.FunderAddress = v
	}
	if v := os.Getenv("PM_SIGNATURE_TYPE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Wallet.SignatureType = n
		}
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

func setDefaults(cfg *Config) {
	if cfg.Engine.SlugPrefix == "" {
		cfg.Engine.SlugPrefix = "btc-updown-15m"
	}
	if cfg.Engine.MaxSpread <= 0 {
		cfg.Engine.MaxSpread = 0.02
	}
	if cfg.Engine.ChoppyEdgeModifier <= 0 {
		cfg.Engine.ChoppyEdgeModifier = 0.03
	}
	if cfg.Gate.InitialBalance <= 0 {
		cfg.Gate.InitialBalance = 100
	}
	if cfg.Gate.CooldownSeconds <= 0 {
		cfg.Gate.CooldownSeconds = 30
	}
	if cfg.Gate.EdgeThreshold <= 0 {
		cfg.Gate.EdgeThreshold = 0.64
	}
	if cfg.Gate.SafetyCap <= 0 {
		cfg.Gate.SafetyCap = 0.68
	}
	if cfg.Gate.MaxTradesPerZone <= 0 {
		cfg.Gate.MaxTradesPerZone = 1
	}
	if cfg.Gate.MaxConsecutiveLosses <= 0 {
		cfg.Gate.MaxConsecutiveLosses = 3
	}
	if cfg.Gate.PnLFloor == 0 {
		cfg.Gate.PnLFloor = -50.0
	}
	if cfg.API.CLOBBase == "" {
		cfg.API.CLOBBase = "https://clob.polymarket.com"
	}
	if cfg.API.GammaBase == "" {
		cfg.API.GammaBase = "https://gamma-api.polymarket.com"
	}
	if cfg.Journal.LogPath == "" {
		cfg.Journal.LogPath = "data/trades.log"
	}
	if cfg.Journal.DSN == "" {
		cfg.Journal.DSN = "data/edgebot.db"
	}
	if cfg.Journal.Metrics == "" {
		cfg.Journal.Metrics = "data/trade_metrics.jsonl"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
