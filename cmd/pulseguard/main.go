package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"pulseguard/config"
	"pulseguard/internal/analysis"
	"pulseguard/internal/cache"
	"pulseguard/internal/delegate"
	"pulseguard/internal/logger"
	"pulseguard/internal/orchestrator"
	"pulseguard/internal/risk"
	"pulseguard/internal/rules"
	"pulseguard/internal/server"
	"pulseguard/internal/sources"
	"pulseguard/internal/worker"
	"pulseguard/pkg/models"
)

func findConfigFile(configArg string) string {
	if configArg != "" {
		path := configArg
		if _, err := os.Stat(path); err == nil {
			return path
		}
		log.Printf("Warning: config file not found at %s, trying default locations", path)
	}

	if _, err := os.Stat("pulseguard.yml"); err == nil {
		return "pulseguard.yml"
	}

	exePath, err := os.Executable()
	if err == nil {
		exeDir := filepath.Dir(exePath)
		path := filepath.Join(exeDir, "pulseguard.yml")
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return "pulseguard.yml"
}

func applyDefaults(cfg *config.Config) {
	if cfg.PulseGuard.Redis.Addr == "" {
		cfg.PulseGuard.Redis.Addr = "127.0.0.1:6379"
	}
	if cfg.PulseGuard.Redis.KeyPrefix == "" {
		cfg.PulseGuard.Redis.KeyPrefix = "pulseguard"
	}
	if cfg.PulseGuard.Redis.BlockTimeout == 0 {
		cfg.PulseGuard.Redis.BlockTimeout = 5 * time.Second
	}

	if cfg.PulseGuard.Delegation.AckTimeout <= 0 {
		cfg.PulseGuard.Delegation.AckTimeout = 5 * time.Second
	}
	if cfg.PulseGuard.Delegation.StageTimeout <= 0 {
		cfg.PulseGuard.Delegation.StageTimeout = 30 * time.Second
	}
	if cfg.PulseGuard.Delegation.HealthCheckTimeout <= 0 {
		cfg.PulseGuard.Delegation.HealthCheckTimeout = 5 * time.Second
	}
	if cfg.PulseGuard.Delegation.HeartbeatInterval <= 0 {
		cfg.PulseGuard.Delegation.HeartbeatInterval = 5 * time.Second
	}
	if cfg.PulseGuard.Delegation.HeartbeatTTL <= 0 {
		cfg.PulseGuard.Delegation.HeartbeatTTL = 3 * cfg.PulseGuard.Delegation.HeartbeatInterval
	}

	if cfg.PulseGuard.Cache.TTL <= 0 {
		cfg.PulseGuard.Cache.TTL = 5 * time.Minute
	}
	if cfg.PulseGuard.Providers.Timeout <= 0 {
		cfg.PulseGuard.Providers.Timeout = 10 * time.Second
	}
	if cfg.PulseGuard.Server.Listen == "" {
		cfg.PulseGuard.Server.Listen = ":8080"
	}
	if cfg.PulseGuard.Worker.Concurrency <= 0 {
		cfg.PulseGuard.Worker.Concurrency = 4
	}
	if cfg.PulseGuard.Logging.Level == "" {
		cfg.PulseGuard.Logging.Level = "info"
	}
}

func loadConfig(args []string) *config.Config {
	configArg := ""
	if len(args) > 0 {
		configArg = args[0]
	}
	configPath := findConfigFile(configArg)

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	applyDefaults(cfg)

	if err := logger.Init(cfg.PulseGuard.Logging.Enabled, cfg.PulseGuard.Logging.Level, cfg.PulseGuard.Logging.File, cfg.PulseGuard.Logging.Console); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	logger.Infof("Config loaded from: %s", configPath)
	return cfg
}

func buildTransport(cfg *config.Config) *delegate.RedisTransport {
	transport, err := delegate.NewRedisTransport(delegate.RedisConfig{
		Addr:     cfg.PulseGuard.Redis.Addr,
		Password: cfg.PulseGuard.Redis.Password,
		DB:       cfg.PulseGuard.Redis.DB,
	})
	if err != nil {
		logger.Errorf("Failed to connect to Redis: %v", err)
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	return transport
}

func buildRuleEngine(cfg *config.Config) rules.Engine {
	if !cfg.PulseGuard.Rules.Enabled {
		return &rules.NoopEngine{}
	}
	if strings.TrimSpace(cfg.PulseGuard.Rules.Path) == "" {
		logger.Warnf("Rules enabled but rules.path is empty; rule tagging disabled")
		return &rules.NoopEngine{}
	}

	engine, stats, err := rules.NewSigmaEngine(cfg.PulseGuard.Rules.Path)
	if err != nil {
		logger.Errorf("Failed to load Sigma rules from %s: %v", cfg.PulseGuard.Rules.Path, err)
		log.Fatalf("Failed to load Sigma rules: %v", err)
	}
	logger.Infof("Sigma rules loaded: loaded=%d skipped_complex=%d skipped_datasource=%d skipped_invalid=%d files=%d",
		stats.Loaded, stats.SkippedComplex, stats.SkippedDatasource, stats.SkippedInvalid, stats.TotalFiles)
	if stats.Loaded == 0 {
		logger.Warnf("No compatible Sigma rules loaded; rule tagging is effectively disabled")
	}
	return engine
}

func buildRiskEngine(cfg *config.Config, scoreCache *cache.ScoreCache) *risk.Engine {
	clientCfg := sources.ClientConfig{
		PriceURL:      cfg.PulseGuard.Providers.PriceURL,
		ReputationURL: cfg.PulseGuard.Providers.ReputationURL,
		HistoryURL:    cfg.PulseGuard.Providers.HistoryURL,
		HistoryAPIKey: cfg.PulseGuard.Providers.HistoryAPIKey,
		Timeout:       cfg.PulseGuard.Providers.Timeout,
	}

	var prices sources.PriceSource = sources.Unavailable{}
	if clientCfg.PriceURL != "" {
		s, err := sources.NewHTTPPriceSource(clientCfg)
		if err != nil {
			log.Fatalf("Failed to create price source: %v", err)
		}
		prices = s
	}

	var reputation sources.ReputationSource = sources.Unavailable{}
	if clientCfg.ReputationURL != "" {
		s, err := sources.NewHTTPReputationSource(clientCfg)
		if err != nil {
			log.Fatalf("Failed to create reputation source: %v", err)
		}
		reputation = s
	}

	var history sources.HistorySource = sources.Unavailable{}
	if clientCfg.HistoryURL != "" {
		s, err := sources.NewHTTPHistorySource(clientCfg)
		if err != nil {
			log.Fatalf("Failed to create history source: %v", err)
		}
		history = s
	}

	return risk.NewEngine(
		riskConfig(cfg),
		sources.NewCachedPriceSource(prices, scoreCache),
		sources.NewCachedReputationSource(reputation, scoreCache),
		sources.NewCachedHistorySource(history, scoreCache),
	)
}

func riskConfig(cfg *config.Config) risk.Config {
	rc := risk.Config{
		Thresholds: risk.Thresholds{
			MinConfidence: cfg.PulseGuard.Risk.Thresholds.MinConfidence,
			HighRisk:      cfg.PulseGuard.Risk.Thresholds.HighRisk,
			CriticalRisk:  cfg.PulseGuard.Risk.Thresholds.CriticalRisk,
		},
		Financial: risk.FinancialTiers{
			CriticalUSD: cfg.PulseGuard.Risk.Financial.CriticalUSD,
			HighUSD:     cfg.PulseGuard.Risk.Financial.HighUSD,
			MediumUSD:   cfg.PulseGuard.Risk.Financial.MediumUSD,
			LowUSD:      cfg.PulseGuard.Risk.Financial.LowUSD,
		},
	}

	w := cfg.PulseGuard.Risk.Weights
	if w.Financial+w.Behavioral+w.Reputation+w.Historical+w.Approval > 0 {
		rc.Weights = risk.Weights{
			models.CategoryFinancial:  w.Financial,
			models.CategoryBehavioral: w.Behavioral,
			models.CategoryReputation: w.Reputation,
			models.CategoryHistorical: w.Historical,
			models.CategoryApproval:   w.Approval,
		}
	}
	return rc
}

func workerConfig(cfg *config.Config, role string) worker.Config {
	hostname, _ := os.Hostname()
	return worker.Config{
		Prefix:            cfg.PulseGuard.Redis.KeyPrefix,
		WorkerID:          fmt.Sprintf("%s-%s-%d", role, hostname, os.Getpid()),
		BlockTimeout:      cfg.PulseGuard.Redis.BlockTimeout,
		HeartbeatInterval: cfg.PulseGuard.Delegation.HeartbeatInterval,
		HeartbeatTTL:      cfg.PulseGuard.Delegation.HeartbeatTTL,
		Concurrency:       cfg.PulseGuard.Worker.Concurrency,
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Infof("Shutting down")
		cancel()
	}()
	return ctx, cancel
}

func runServe(args []string) {
	cfg := loadConfig(args)
	logger.Infof("PulseGuard API starting")

	transport := buildTransport(cfg)
	defer transport.Close()

	prefix := cfg.PulseGuard.Redis.KeyPrefix
	registry := delegate.NewHealthRegistry(transport, prefix,
		cfg.PulseGuard.Delegation.HealthCheckTimeout, cfg.PulseGuard.Delegation.HeartbeatTTL)
	client := delegate.NewClient(transport, registry, delegate.ClientConfig{
		Prefix:       prefix,
		AckTimeout:   cfg.PulseGuard.Delegation.AckTimeout,
		StageTimeout: cfg.PulseGuard.Delegation.StageTimeout,
	})

	scoreCache := cache.NewScoreCache(cfg.PulseGuard.Cache.TTL)
	engine := buildRiskEngine(cfg, scoreCache)
	coordinator := orchestrator.NewCoordinator(client, prefix, engine)

	srv := server.NewServer(cfg.PulseGuard.Server.Listen, coordinator, registry, scoreCache)

	ctx, cancel := signalContext()
	defer cancel()
	if err := srv.Run(ctx); err != nil {
		logger.Errorf("Server error: %v", err)
		os.Exit(1)
	}
	logger.Infof("PulseGuard API stopped")
}

func runEventWorker(args []string) {
	cfg := loadConfig(args)
	logger.Infof("PulseGuard event-analysis worker starting")

	transport := buildTransport(cfg)
	defer transport.Close()

	analyzer := analysis.NewAnalyzer(buildRuleEngine(cfg))
	w := worker.NewEventWorker(transport, analyzer, workerConfig(cfg, "event"))

	ctx, cancel := signalContext()
	defer cancel()
	if err := w.Run(ctx); err != nil {
		logger.Errorf("Worker error: %v", err)
		os.Exit(1)
	}
	logger.Infof("Event-analysis worker stopped")
}

func runRiskWorker(args []string) {
	cfg := loadConfig(args)
	logger.Infof("PulseGuard risk-assessment worker starting")

	transport := buildTransport(cfg)
	defer transport.Close()

	scoreCache := cache.NewScoreCache(cfg.PulseGuard.Cache.TTL)
	engine := buildRiskEngine(cfg, scoreCache)
	w := worker.NewRiskWorker(transport, engine, workerConfig(cfg, "risk"))

	ctx, cancel := signalContext()
	defer cancel()
	if err := w.Run(ctx); err != nil {
		logger.Errorf("Worker error: %v", err)
		os.Exit(1)
	}
	logger.Infof("Risk-assessment worker stopped")
}

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "serve":
			runServe(os.Args[2:])
			return
		case "event-worker":
			runEventWorker(os.Args[2:])
			return
		case "risk-worker":
			runRiskWorker(os.Args[2:])
			return
		default:
			// Backward-compatible mode: first arg is config path.
			runServe(os.Args[1:])
			return
		}
	}

	runServe(nil)
}
