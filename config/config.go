package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	PulseGuard PulseGuardConfig `yaml:"pulseguard"`
}

// PulseGuardConfig is the project configuration.
type PulseGuardConfig struct {
	Redis      RedisConfig      `yaml:"redis"`
	Delegation DelegationConfig `yaml:"delegation"`
	Risk       RiskConfig       `yaml:"risk"`
	Cache      CacheConfig      `yaml:"cache"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Rules      RulesConfig      `yaml:"rules"`
	Server     ServerConfig     `yaml:"server"`
	Worker     WorkerConfig     `yaml:"worker"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// RedisConfig controls the delegation transport.
type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	KeyPrefix    string        `yaml:"key_prefix"`
	BlockTimeout time.Duration `yaml:"block_timeout"`
}

// DelegationConfig controls stage delegation timing.
type DelegationConfig struct {
	AckTimeout         time.Duration `yaml:"ack_timeout"`
	StageTimeout       time.Duration `yaml:"stage_timeout"`
	HealthCheckTimeout time.Duration `yaml:"health_check_timeout"`
	HeartbeatInterval  time.Duration `yaml:"heartbeat_interval"`
	HeartbeatTTL       time.Duration `yaml:"heartbeat_ttl"`
}

// RiskConfig controls the assessment engine.
type RiskConfig struct {
	Weights    WeightsConfig    `yaml:"weights"`
	Thresholds ThresholdsConfig `yaml:"thresholds"`
	Financial  FinancialConfig  `yaml:"financial"`
}

// WeightsConfig holds per-category weights. The engine normalizes by the sum
// of invoked-category weights, so the values need not sum to 1.0.
type WeightsConfig struct {
	Financial  float64 `yaml:"financial_impact"`
	Behavioral float64 `yaml:"behavioral_anomaly"`
	Reputation float64 `yaml:"reputation_risk"`
	Historical float64 `yaml:"historical_context"`
	Approval   float64 `yaml:"approval_risk"`
}

// ThresholdsConfig holds score and confidence cut-offs.
type ThresholdsConfig struct {
	MinConfidence float64 `yaml:"min_confidence"`
	HighRisk      float64 `yaml:"high_risk"`
	CriticalRisk  float64 `yaml:"critical_risk"`
}

// FinancialConfig holds USD impact tiers.
type FinancialConfig struct {
	CriticalUSD float64 `yaml:"critical_usd"`
	HighUSD     float64 `yaml:"high_usd"`
	MediumUSD   float64 `yaml:"medium_usd"`
	LowUSD      float64 `yaml:"low_usd"`
}

// CacheConfig controls the score cache.
type CacheConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

// ProvidersConfig controls external fact lookups.
type ProvidersConfig struct {
	PriceURL      string        `yaml:"price_url"`
	ReputationURL string        `yaml:"reputation_url"`
	HistoryURL    string        `yaml:"history_url"`
	HistoryAPIKey string        `yaml:"history_api_key"`
	Timeout       time.Duration `yaml:"timeout"`
}

// RulesConfig controls Sigma risk-tagging rules for the analysis stage.
type RulesConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// ServerConfig controls the caller-facing HTTP API.
type ServerConfig struct {
	Listen string `yaml:"listen"`
}

// WorkerConfig controls stage worker behavior.
type WorkerConfig struct {
	Concurrency int `yaml:"concurrency"`
}

// LoggingConfig controls logging output.
type LoggingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
	File    string `yaml:"file"`
	Console bool   `yaml:"console"`
}

// LoadConfig reads and parses a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
