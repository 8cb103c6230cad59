// Package config loads the engine configuration from config.json with
// environment variable overrides. Invalid configuration aborts startup.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	TradingConfig  TradingConfig  `json:"trading"`
	RiskConfig     RiskConfig     `json:"risk"`
	BreakerConfig  BreakerConfig  `json:"circuit_breaker"`
	Pools          []PoolConfig   `json:"pools"`
	PipelineConfig PipelineConfig `json:"pipeline"`
	AIBridgeConfig AIBridgeConfig `json:"ai_bridge"`
	DatabaseConfig DatabaseConfig `json:"database"`
	ServerConfig   ServerConfig   `json:"server"`
	AuthConfig     AuthConfig     `json:"auth"`
	VaultConfig    VaultConfig    `json:"vault"`
	LoggingConfig  LoggingConfig  `json:"logging"`
}

// TradingConfig selects the execution mode and venue parameters
type TradingConfig struct {
	Mode            string  `json:"mode"` // "paper" or "live"
	Venue           string  `json:"venue"`
	FallbackPoolID  string  `json:"fallback_pool_id"` // optional catch-all pool when selection fails
	LatencyBudgetMs int     `json:"latency_budget_ms"`
	PaperLatencyMs  int     `json:"paper_latency_ms"`
	PaperFeeRate    float64 `json:"paper_fee_rate"`
	LiveSlippage    float64 `json:"live_slippage"`
	LiveFeeRate     float64 `json:"live_fee_rate"`
	LiveTimeoutSec  int     `json:"live_timeout_sec"`
}

// RiskConfig holds the global admission thresholds
type RiskConfig struct {
	MinConfidence     float64            `json:"min_confidence"`
	MaxSignalNotional float64            `json:"max_signal_notional"`
	KindFloors        map[string]float64 `json:"kind_confidence_floors"`
}

// BreakerConfig tunes the automatic venue-failure circuit breaker
type BreakerConfig struct {
	Enabled                bool `json:"enabled"`
	MaxConsecutiveFailures int  `json:"max_consecutive_failures"`
	CooldownMinutes        int  `json:"cooldown_minutes"`
}

// PoolConfig defines one capital pool
type PoolConfig struct {
	ID                     string   `json:"id"`
	Kind                   string   `json:"kind"`
	Balance                float64  `json:"balance"`
	MaxPositionSize        float64  `json:"max_position_size"`
	MaxDailyLoss           float64  `json:"max_daily_loss"`
	MaxExposurePct         float64  `json:"max_exposure_pct"`
	MaxConcurrentPositions int      `json:"max_concurrent_positions"`
	SupportedStrategies    []string `json:"supported_strategies"`
}

// PipelineConfig bounds the signal pipeline
type PipelineConfig struct {
	QueueSize    int `json:"queue_size"`
	ResultSize   int `json:"result_size"`
	Workers      int `json:"workers"`
	SubmitWaitMs int `json:"submit_wait_ms"`
}

// AIBridgeConfig holds redis settings for the AI decision bridge
type AIBridgeConfig struct {
	Enabled           bool   `json:"enabled"`
	Address           string `json:"address"`
	Password          string `json:"password"`
	DB                int    `json:"db"`
	DecisionMaxAgeSec int    `json:"decision_max_age_sec"`
}

// DatabaseConfig holds PostgreSQL settings for the persistence sink
type DatabaseConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// ServerConfig holds operator API settings
type ServerConfig struct {
	Host           string   `json:"host"`
	Port           int      `json:"port"`
	ProductionMode bool     `json:"production_mode"`
	AllowedOrigins []string `json:"allowed_origins"`
}

// AuthConfig guards the operator endpoints
type AuthConfig struct {
	JWTSecret     string        `json:"jwt_secret"`
	TokenDuration time.Duration `json:"-"`
	TokenHours    int           `json:"token_hours"`
}

// VaultConfig holds settings for fetching live venue credentials
type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`
	TLSEnabled bool   `json:"tls_enabled"`
	CACert     string `json:"ca_cert"`
}

// LoggingConfig controls zerolog output
type LoggingConfig struct {
	Level      string `json:"level"`       // debug, info, warn, error
	JSONFormat bool   `json:"json_format"` // false for console writer
}

// Load reads config.json (if present) and applies environment overrides
func Load() (*Config, error) {
	cfg, err := loadFromFile(getEnvOrDefault("CONFIG_FILE", "config.json"))
	if err != nil {
		cfg = &Config{}
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	// Trading config
	cfg.TradingConfig.Mode = getEnvOrDefault("TRADING_MODE", cfg.TradingConfig.Mode)
	cfg.TradingConfig.Venue = getEnvOrDefault("TRADING_VENUE", cfg.TradingConfig.Venue)
	cfg.TradingConfig.FallbackPoolID = getEnvOrDefault("TRADING_FALLBACK_POOL_ID", cfg.TradingConfig.FallbackPoolID)
	cfg.TradingConfig.LatencyBudgetMs = getEnvIntOrDefault("TRADING_LATENCY_BUDGET_MS", cfg.TradingConfig.LatencyBudgetMs)

	// Risk config
	cfg.RiskConfig.MinConfidence = getEnvFloatOrDefault("RISK_MIN_CONFIDENCE", cfg.RiskConfig.MinConfidence)
	cfg.RiskConfig.MaxSignalNotional = getEnvFloatOrDefault("RISK_MAX_SIGNAL_NOTIONAL", cfg.RiskConfig.MaxSignalNotional)

	// AI bridge config
	if v := os.Getenv("AI_BRIDGE_ENABLED"); v != "" {
		cfg.AIBridgeConfig.Enabled = v == "true"
	}
	cfg.AIBridgeConfig.Address = getEnvOrDefault("AI_BRIDGE_REDIS_ADDR", cfg.AIBridgeConfig.Address)
	cfg.AIBridgeConfig.Password = getEnvOrDefault("AI_BRIDGE_REDIS_PASSWORD", cfg.AIBridgeConfig.Password)
	cfg.AIBridgeConfig.DB = getEnvIntOrDefault("AI_BRIDGE_REDIS_DB", cfg.AIBridgeConfig.DB)

	// Database config
	if v := os.Getenv("DATABASE_ENABLED"); v != "" {
		cfg.DatabaseConfig.Enabled = v == "true"
	}
	cfg.DatabaseConfig.Host = getEnvOrDefault("DATABASE_HOST", cfg.DatabaseConfig.Host)
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DATABASE_PORT", cfg.DatabaseConfig.Port)
	cfg.DatabaseConfig.User = getEnvOrDefault("DATABASE_USER", cfg.DatabaseConfig.User)
	cfg.DatabaseConfig.Password = getEnvOrDefault("DATABASE_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DATABASE_NAME", cfg.DatabaseConfig.Database)
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DATABASE_SSLMODE", cfg.DatabaseConfig.SSLMode)

	// Server config
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", cfg.ServerConfig.Host)
	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", cfg.ServerConfig.Port)
	if v := os.Getenv("SERVER_ALLOWED_ORIGINS"); v != "" {
		cfg.ServerConfig.AllowedOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("SERVER_PRODUCTION_MODE"); v != "" {
		cfg.ServerConfig.ProductionMode = v == "true"
	}

	// Auth config
	cfg.AuthConfig.JWTSecret = getEnvOrDefault("AUTH_JWT_SECRET", cfg.AuthConfig.JWTSecret)
	cfg.AuthConfig.TokenHours = getEnvIntOrDefault("AUTH_TOKEN_HOURS", cfg.AuthConfig.TokenHours)

	// Vault config
	if v := os.Getenv("VAULT_ENABLED"); v != "" {
		cfg.VaultConfig.Enabled = v == "true"
	}
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", cfg.VaultConfig.Address)
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)
	cfg.VaultConfig.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", cfg.VaultConfig.MountPath)

	// Logging config
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", cfg.LoggingConfig.Level)
	if v := os.Getenv("LOG_JSON"); v != "" {
		cfg.LoggingConfig.JSONFormat = v == "true"
	}
}

func applyDefaults(cfg *Config) {
	if cfg.TradingConfig.Mode == "" {
		cfg.TradingConfig.Mode = "paper"
	}
	if cfg.TradingConfig.Venue == "" {
		cfg.TradingConfig.Venue = "solana-dex"
	}
	if cfg.TradingConfig.LatencyBudgetMs <= 0 {
		cfg.TradingConfig.LatencyBudgetMs = 25
	}
	if cfg.TradingConfig.PaperLatencyMs <= 0 {
		cfg.TradingConfig.PaperLatencyMs = 50
	}
	if cfg.TradingConfig.PaperFeeRate <= 0 {
		cfg.TradingConfig.PaperFeeRate = 0.001
	}
	if cfg.TradingConfig.LiveSlippage <= 0 {
		cfg.TradingConfig.LiveSlippage = 0.005
	}
	if cfg.TradingConfig.LiveFeeRate <= 0 {
		cfg.TradingConfig.LiveFeeRate = 0.0025
	}
	if cfg.TradingConfig.LiveTimeoutSec <= 0 {
		cfg.TradingConfig.LiveTimeoutSec = 10
	}
	if cfg.RiskConfig.MinConfidence <= 0 {
		cfg.RiskConfig.MinConfidence = 0.7
	}
	if cfg.RiskConfig.MaxSignalNotional <= 0 {
		cfg.RiskConfig.MaxSignalNotional = 10000
	}
	if cfg.BreakerConfig.MaxConsecutiveFailures <= 0 {
		cfg.BreakerConfig.MaxConsecutiveFailures = 5
	}
	if cfg.BreakerConfig.CooldownMinutes <= 0 {
		cfg.BreakerConfig.CooldownMinutes = 30
	}
	if cfg.AIBridgeConfig.Address == "" {
		cfg.AIBridgeConfig.Address = "localhost:6379"
	}
	if cfg.AIBridgeConfig.DecisionMaxAgeSec <= 0 {
		cfg.AIBridgeConfig.DecisionMaxAgeSec = 5
	}
	if cfg.DatabaseConfig.Host == "" {
		cfg.DatabaseConfig.Host = "localhost"
	}
	if cfg.DatabaseConfig.Port <= 0 {
		cfg.DatabaseConfig.Port = 5432
	}
	if cfg.DatabaseConfig.SSLMode == "" {
		cfg.DatabaseConfig.SSLMode = "disable"
	}
	if cfg.ServerConfig.Host == "" {
		cfg.ServerConfig.Host = "0.0.0.0"
	}
	if cfg.ServerConfig.Port <= 0 {
		cfg.ServerConfig.Port = 8080
	}
	if cfg.AuthConfig.TokenHours <= 0 {
		cfg.AuthConfig.TokenHours = 12
	}
	cfg.AuthConfig.TokenDuration = time.Duration(cfg.AuthConfig.TokenHours) * time.Hour
	if cfg.VaultConfig.Address == "" {
		cfg.VaultConfig.Address = "http://localhost:8200"
	}
	if cfg.VaultConfig.MountPath == "" {
		cfg.VaultConfig.MountPath = "secret"
	}
	if cfg.LoggingConfig.Level == "" {
		cfg.LoggingConfig.Level = "info"
	}
	if len(cfg.Pools) == 0 {
		cfg.Pools = defaultPools()
	}
}

// defaultPools gives a sane paper-trading portfolio when no pools are
// configured explicitly
func defaultPools() []PoolConfig {
	return []PoolConfig{
		{
			ID: "primary", Kind: "PRIMARY",
			Balance: 20000, MaxPositionSize: 10000, MaxDailyLoss: 1000,
			MaxExposurePct: 80, MaxConcurrentPositions: 10,
			SupportedStrategies: []string{"ARBITRAGE", "MOMENTUM_TRADING", "AI_DECISION"},
		},
		{
			ID: "hft", Kind: "HFT",
			Balance: 10000, MaxPositionSize: 5000, MaxDailyLoss: 500,
			MaxExposurePct: 90, MaxConcurrentPositions: 50,
			SupportedStrategies: []string{"TOKEN_SNIPING", "ARBITRAGE", "SOUL_METEOR_SNIPING"},
		},
		{
			ID: "conservative", Kind: "CONSERVATIVE",
			Balance: 5000, MaxPositionSize: 1000, MaxDailyLoss: 100,
			MaxExposurePct: 20, MaxConcurrentPositions: 3,
			SupportedStrategies: []string{"MOMENTUM_TRADING"},
		},
		{
			ID: "experimental", Kind: "EXPERIMENTAL",
			Balance: 2000, MaxPositionSize: 500, MaxDailyLoss: 50,
			MaxExposurePct: 10, MaxConcurrentPositions: 2,
			SupportedStrategies: []string{"MEME_COIN", "METEORA_DAMM", "DEV_TRACKING"},
		},
	}
}

// Validate rejects configurations the engine cannot run with
func (c *Config) Validate() error {
	switch c.TradingConfig.Mode {
	case "paper", "live":
	default:
		return fmt.Errorf("trading.mode must be \"paper\" or \"live\", got %q", c.TradingConfig.Mode)
	}
	if c.TradingConfig.Mode == "live" && !c.VaultConfig.Enabled {
		return fmt.Errorf("live mode requires vault for venue credentials")
	}
	if c.RiskConfig.MinConfidence < 0 || c.RiskConfig.MinConfidence > 1 {
		return fmt.Errorf("risk.min_confidence must be in [0,1], got %f", c.RiskConfig.MinConfidence)
	}
	if c.AuthConfig.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required (set AUTH_JWT_SECRET)")
	}
	if len(c.Pools) == 0 {
		return fmt.Errorf("at least one capital pool is required")
	}
	if c.TradingConfig.FallbackPoolID != "" {
		found := false
		for _, p := range c.Pools {
			if p.ID == c.TradingConfig.FallbackPoolID {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("trading.fallback_pool_id %q does not match any configured pool", c.TradingConfig.FallbackPoolID)
		}
	}
	for _, kf := range c.RiskConfig.KindFloors {
		if kf < 0 || kf > 1 {
			return fmt.Errorf("kind confidence floors must be in [0,1], got %f", kf)
		}
	}
	return nil
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	return &config, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}
