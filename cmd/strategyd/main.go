package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/yieldkeep/tokestrat/internal/config"
	"github.com/yieldkeep/tokestrat/internal/keeper"
	"github.com/yieldkeep/tokestrat/internal/logger"
	"github.com/yieldkeep/tokestrat/internal/metrics"
	"github.com/yieldkeep/tokestrat/internal/simulations"
	"github.com/yieldkeep/tokestrat/internal/state"
	"github.com/yieldkeep/tokestrat/internal/strategy"
	"github.com/yieldkeep/tokestrat/internal/types"
	"github.com/yieldkeep/tokestrat/internal/web"
)

const shutdownTimeout = 10 * time.Second

// main is the entry point for the strategy keeper daemon.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(os.Getenv("LOG_LEVEL"))
	log.Info().Msg("Strategy keeper starting...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := openStore(ctx)
	defer state.CloseDB()

	params := loadParameters(ctx, store)

	// --- 2. Simulated market ---
	collector := metrics.New(config.WantToken.Decimals)

	simCfg := simulations.ConfigFromEnv()
	simCfg.Parameters = params
	simCfg.Events = strategy.LogSink{Logger: logger.GetForComponent("events")}
	env, err := simulations.NewEnvironment(ctx, simCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build simulation environment")
	}

	if config.InitialDeposit.IsPositive() {
		shares, err := env.Deposit(ctx, config.Depositor, config.InitialDeposit)
		if err != nil {
			log.Fatal().Err(err).Msg("Initial vault deposit failed")
		}
		log.Info().
			Str("depositor", config.Depositor.Hex()).
			Str("amount", config.InitialDeposit.String()).
			Str("shares", shares.String()).
			Msg("Initial vault deposit")
	}

	// --- 3. Web dashboard ---
	webServer := web.NewWebServer(web.Config{
		Port:     config.WebPort,
		Store:    store,
		Factory:  env.Factory,
		Metrics:  collector,
		CallCost: config.KeeperCallCost,
		Decimals: config.WantToken.Decimals,
	})
	go func() {
		log.Info().Str("port", config.WebPort).Str("url", "http://localhost:"+config.WebPort).Msg("Starting web dashboard")
		if err := webServer.Start(); err != nil {
			log.Error().Err(err).Msg("Web server failed")
		}
	}()

	// --- 4. Venue cycles and reward settlement ---
	go env.RunLoop(ctx, config.CycleInterval, func(res simulations.StepResult) {
		collector.SetPendingTrades(res.PendingTrades)
		collector.AddTradesExecuted(res.TradesExecuted)
	})

	// --- 5. Keeper ---
	k, err := keeper.New(keeper.Config{
		Factory:  env.Factory,
		Store:    store,
		Metrics:  collector,
		Address:  config.KeeperAddress,
		CallCost: config.KeeperCallCost,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create keeper")
	}

	log.Info().Str("interval", config.KeeperInterval.String()).Msg("Starting keeper loop")
	k.RunLoop(ctx, config.KeeperInterval)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := webServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Web server shutdown failed")
	}
	log.Info().Msg("Strategy keeper stopped")
}

// openStore connects to Postgres when DB_HOST is set and falls back to the in-memory store otherwise.
func openStore(ctx context.Context) state.Store {
	if config.DBHost == "" {
		log.Warn().Msg("DB_HOST not set, harvest reports are kept in memory only")
		return state.NewMemoryStore()
	}

	dbCfg := state.DBConfig{
		Host: config.DBHost, Port: config.DBPort,
		User: config.DBUser, Password: config.DBPassword,
		DBName: config.DBName, SSLMode: config.DBSSLMode,
	}
	if err := state.InitDB(dbCfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	if err := state.EnsureSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure database schema")
	}
	return state.Postgres{}
}

// loadParameters returns the active persisted trigger parameters, saving the defaults on first start.
func loadParameters(ctx context.Context, store state.Store) *types.StrategyParameters {
	params, err := store.LoadActiveStrategyParameters(ctx, config.DEFAULT_PARAMETERS_CONFIG_NAME)
	if err == nil {
		log.Info().Msg("Strategy parameters loaded successfully.")
		return params
	}
	if !errors.Is(err, state.ErrNotFound) {
		log.Fatal().Err(err).Msg("Failed to load strategy parameters")
	}

	log.Warn().Msg("No active strategy parameters, using defaults and saving.")
	defaults := config.DefaultStrategyParameters()
	if _, err := store.SaveStrategyParameters(ctx, defaults, config.DEFAULT_PARAMETERS_CONFIG_NAME, config.DEFAULT_PARAMETERS_CONFIG_VERSION, true); err != nil {
		log.Fatal().Err(err).Msg("Failed to save initial default strategy parameters.")
	}
	return &defaults
}
