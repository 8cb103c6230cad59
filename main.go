package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"solana-trading-engine/config"
	"solana-trading-engine/internal/aibridge"
	"solana-trading-engine/internal/api"
	"solana-trading-engine/internal/auth"
	"solana-trading-engine/internal/events"
	"solana-trading-engine/internal/execution"
	"solana-trading-engine/internal/logging"
	"solana-trading-engine/internal/persistence"
	"solana-trading-engine/internal/pipeline"
	"solana-trading-engine/internal/pool"
	"solana-trading-engine/internal/risk"
	"solana-trading-engine/internal/selector"
	sig "solana-trading-engine/internal/signal"
	"solana-trading-engine/internal/vault"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LoggingConfig.Level, cfg.LoggingConfig.JSONFormat)
	logger.Info().
		Str("mode", cfg.TradingConfig.Mode).
		Int("pools", len(cfg.Pools)).
		Msg("Trading engine starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := events.NewBus()
	stop := risk.NewEmergencyStop()

	registry, err := pool.NewRegistry(poolSpecs(cfg.Pools), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid pool configuration")
	}

	policy := risk.Policy{
		MinConfidence:     cfg.RiskConfig.MinConfidence,
		MaxSignalNotional: cfg.RiskConfig.MaxSignalNotional,
	}
	if err := policy.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("Invalid risk policy")
	}
	admission := risk.NewAdmissionController(policy, stop, logger)
	poolSelector := selector.New(registry, cfg.TradingConfig.FallbackPoolID, logger)

	breaker := risk.NewBreaker(risk.BreakerConfig{
		Enabled:                cfg.BreakerConfig.Enabled,
		MaxConsecutiveFailures: cfg.BreakerConfig.MaxConsecutiveFailures,
		Cooldown:               time.Duration(cfg.BreakerConfig.CooldownMinutes) * time.Minute,
	}, stop, logger)
	bus.Subscribe(events.EventVenueFailed, func(events.Event) { breaker.RecordFailure() })
	bus.Subscribe(events.EventExecutionConfirmed, func(events.Event) { breaker.RecordSuccess() })
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				breaker.MaybeReset(now)
			}
		}
	}()

	venue, err := buildVenue(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Venue setup failed")
	}

	engine := execution.NewEngine(venue, registry, stop, bus, execution.Config{
		LatencyBudget:        time.Duration(cfg.TradingConfig.LatencyBudgetMs) * time.Millisecond,
		KindConfidenceFloors: kindFloors(cfg.RiskConfig.KindFloors, logger),
	}, logger)

	orchestrator := pipeline.New(admission, poolSelector, engine, bus, pipeline.Config{
		QueueSize:  cfg.PipelineConfig.QueueSize,
		ResultSize: cfg.PipelineConfig.ResultSize,
		Workers:    cfg.PipelineConfig.Workers,
		SubmitWait: time.Duration(cfg.PipelineConfig.SubmitWaitMs) * time.Millisecond,
	}, logger)
	orchestrator.Start(ctx)

	// Persistence is optional: without it results are still audited on the
	// bus and drained so the pipeline never backs up.
	var sink *persistence.Sink
	if cfg.DatabaseConfig.Enabled {
		db, err := persistence.NewDB(ctx, persistence.Config{
			Host:     cfg.DatabaseConfig.Host,
			Port:     cfg.DatabaseConfig.Port,
			User:     cfg.DatabaseConfig.User,
			Password: cfg.DatabaseConfig.Password,
			Database: cfg.DatabaseConfig.Database,
			SSLMode:  cfg.DatabaseConfig.SSLMode,
		}, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Database connection failed")
		}
		defer db.Close()

		if err := db.RunMigrations(ctx); err != nil {
			logger.Fatal().Err(err).Msg("Database migrations failed")
		}

		sink = persistence.NewSink(db)
		sink.AttachAuditLog(ctx, bus)
		go sink.Run(ctx, orchestrator.Results())
	} else {
		go drainResults(ctx, orchestrator, logger)
	}

	var bridge *aibridge.Bridge
	if cfg.AIBridgeConfig.Enabled {
		bridge, err = aibridge.New(ctx, aibridge.Config{
			Addr:           cfg.AIBridgeConfig.Address,
			Password:       cfg.AIBridgeConfig.Password,
			DB:             cfg.AIBridgeConfig.DB,
			DecisionMaxAge: time.Duration(cfg.AIBridgeConfig.DecisionMaxAgeSec) * time.Second,
		}, orchestrator.Submit, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("AI bridge setup failed")
		}
		defer bridge.Close()
		go bridge.Run(ctx)
	}

	jwtManager := auth.NewJWTManager(cfg.AuthConfig.JWTSecret, cfg.AuthConfig.TokenDuration)

	var resultStore api.ResultStore
	if sink != nil {
		resultStore = sink
	}
	var bridgeOK func() bool
	if bridge != nil {
		bridgeOK = bridge.Healthy
	}

	server := api.NewServer(api.Config{
		Host:           cfg.ServerConfig.Host,
		Port:           cfg.ServerConfig.Port,
		ProductionMode: cfg.ServerConfig.ProductionMode,
		AllowedOrigins: cfg.ServerConfig.AllowedOrigins,
	}, registry, orchestrator, stop, bus, jwtManager, resultStore, bridgeOK, logger)

	go func() {
		if err := server.Start(ctx); err != nil {
			logger.Error().Err(err).Msg("API server exited")
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sigChan:
		logger.Info().Str("signal", s.String()).Msg("Shutdown signal received")
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("API server shutdown failed")
	}
	orchestrator.Stop()
	cancel()

	logger.Info().Msg("Shutdown complete")
}

// poolSpecs converts config pool definitions to registry specs
func poolSpecs(configs []config.PoolConfig) []pool.Spec {
	specs := make([]pool.Spec, 0, len(configs))
	for _, pc := range configs {
		tags := make([]sig.StrategyTag, 0, len(pc.SupportedStrategies))
		for _, s := range pc.SupportedStrategies {
			tags = append(tags, sig.StrategyTag(s))
		}
		specs = append(specs, pool.Spec{
			ID:                     pc.ID,
			Kind:                   pool.Kind(pc.Kind),
			Balance:                pc.Balance,
			MaxPositionSize:        pc.MaxPositionSize,
			MaxDailyLoss:           pc.MaxDailyLoss,
			MaxExposurePct:         pc.MaxExposurePct,
			MaxConcurrentPositions: pc.MaxConcurrentPositions,
			SupportedStrategies:    tags,
		})
	}
	return specs
}

// kindFloors converts the configured per-kind confidence floors, skipping
// unknown kinds with a warning rather than failing startup
func kindFloors(raw map[string]float64, logger zerolog.Logger) map[pool.Kind]float64 {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[pool.Kind]float64, len(raw))
	for k, v := range raw {
		kind, err := pool.ParseKind(k)
		if err != nil {
			logger.Warn().Str("kind", k).Msg("Ignoring confidence floor for unknown pool kind")
			continue
		}
		out[kind] = v
	}
	return out
}

// buildVenue constructs the execution venue for the configured mode
func buildVenue(cfg *config.Config, logger zerolog.Logger) (execution.Venue, error) {
	if cfg.TradingConfig.Mode == "paper" {
		v := execution.NewSimulatedVenue()
		v.Latency = time.Duration(cfg.TradingConfig.PaperLatencyMs) * time.Millisecond
		v.FeeRate = cfg.TradingConfig.PaperFeeRate
		logger.Info().Msg("Paper trading venue initialized")
		return v, nil
	}

	vaultClient, err := vault.NewClient(vault.Config{
		Enabled:    cfg.VaultConfig.Enabled,
		Address:    cfg.VaultConfig.Address,
		Token:      cfg.VaultConfig.Token,
		MountPath:  cfg.VaultConfig.MountPath,
		TLSEnabled: cfg.VaultConfig.TLSEnabled,
		CACert:     cfg.VaultConfig.CACert,
	})
	if err != nil {
		return nil, fmt.Errorf("vault client: %w", err)
	}

	creds, err := vaultClient.Fetch(cfg.TradingConfig.Venue)
	if err != nil {
		return nil, fmt.Errorf("venue credentials: %w", err)
	}

	logger.Info().
		Str("venue", cfg.TradingConfig.Venue).
		Bool("testnet", creds.IsTestnet).
		Msg("Live trading venue initialized")
	return execution.NewLiveVenue(execution.LiveVenueConfig{
		BaseURL:  creds.Endpoint,
		APIKey:   creds.APIKey,
		Slippage: cfg.TradingConfig.LiveSlippage,
		FeeRate:  cfg.TradingConfig.LiveFeeRate,
		Timeout:  time.Duration(cfg.TradingConfig.LiveTimeoutSec) * time.Second,
	}, logger), nil
}

// drainResults keeps the result channel moving when persistence is disabled
func drainResults(ctx context.Context, o *pipeline.Orchestrator, logger zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case res, ok := <-o.Results():
			if !ok {
				return
			}
			logger.Debug().
				Str("signal_id", res.SignalID).
				Str("status", string(res.Status)).
				Msg("Result discarded, persistence disabled")
		}
	}
}
