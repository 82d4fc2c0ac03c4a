package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"vaultcore/audit"
	"vaultcore/config"
	"vaultcore/crypto"
	"vaultcore/native/vault"
	"vaultcore/observability"
	"vaultcore/observability/logging"
	"vaultcore/observability/otel"
	"vaultcore/rpc"
	"vaultcore/storage"
	"vaultcore/strategy"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("VAULT_ENV"))
	cfg, err := config.Load(*configFile)
	if err != nil {
		logging.Setup("vaultd", env).Error("Failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	if env == "" {
		env = cfg.Environment
	}
	logger := logging.SetupFile("vaultd", env, cfg.LogFile, cfg.LogMaxSizeMB, cfg.LogMaxBackups)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var shutdownTelemetry func(context.Context) error
	if cfg.Telemetry.Enabled {
		shutdownTelemetry, err = otel.Init(ctx, otel.Config{
			ServiceName: "vaultd",
			Environment: env,
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    cfg.Telemetry.Insecure,
			Headers:     otel.ParseHeaders(cfg.Telemetry.Headers),
			Metrics:     cfg.Telemetry.Metrics,
			Traces:      cfg.Telemetry.Traces,
		})
		if err != nil {
			logger.Error("Failed to init telemetry", slog.Any("error", err))
			os.Exit(1)
		}
	}

	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		logger.Error("Failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	store := storage.NewVaultStore(db)
	journal, err := audit.OpenJournal(db)
	if err != nil {
		logger.Error("Failed to open audit journal", slog.Any("error", err))
		os.Exit(1)
	}

	engine, err := buildEngine(cfg, db, store, journal)
	if err != nil {
		logger.Error("Failed to build vault engine", slog.Any("error", err))
		os.Exit(1)
	}

	rpcServer := rpc.NewServer(engine, store, logger)
	rpcServer.SetJournal(journal)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Method(http.MethodPost, "/rpc", rpcServer)
	router.Method(http.MethodGet, "/metrics", promhttp.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	var handler http.Handler = router
	if cfg.Telemetry.Enabled && cfg.Telemetry.Traces {
		handler = otelhttp.NewHandler(router, "vaultd")
	}

	server := &http.Server{
		Addr:              cfg.RPCAddress,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("Starting JSON-RPC server", slog.String("addr", cfg.RPCAddress))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("RPC server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("RPC shutdown failed", slog.Any("error", err))
	}
	if shutdownTelemetry != nil {
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Error("Telemetry shutdown failed", slog.Any("error", err))
		}
	}
}

// buildEngine wires persistence, strategies, roles, and observability into
// the engine and applies the configured genesis parameters on first boot.
func buildEngine(cfg *config.Config, db storage.Database, store *storage.VaultStore, journal *audit.Journal) (*vault.Engine, error) {
	feeRecipient, err := optionalAddress(cfg.Vault.FeeRecipient)
	if err != nil {
		return nil, err
	}
	protocolRecipient, err := optionalAddress(cfg.Vault.ProtocolFeeRecipient)
	if err != nil {
		return nil, err
	}
	engine := vault.NewEngine(feeRecipient, protocolRecipient)
	engine.SetState(store)
	engine.SetEventSink(observability.MultiSink{journal, observability.Vault()})
	if cfg.Vault.StrategyMode == config.StrategyModeBook {
		engine.SetStrategyResolver(strategy.NewBookResolver(db))
	}

	roles, err := config.LoadRoles(cfg.RolesFile)
	if err != nil {
		return nil, err
	}
	if roles != nil {
		engine.SetAuthorizer(roles)
	}

	existing, err := store.GetVault()
	if err != nil {
		return nil, err
	}
	if existing != nil || strings.TrimSpace(cfg.Vault.Asset) == "" {
		return engine, nil
	}

	admin, err := optionalAddress(cfg.Vault.Admin)
	if err != nil {
		return nil, err
	}
	asset, err := crypto.DecodeAddress(cfg.Vault.Asset)
	if err != nil {
		return nil, err
	}
	limit, err := cfg.Vault.ParseDepositLimit()
	if err != nil {
		return nil, err
	}
	if err := engine.Initialize(admin, asset, cfg.Vault.Decimals, limit, cfg.Vault.ProfitMaxUnlockTime); err != nil {
		return nil, err
	}
	minIdle, err := cfg.Vault.ParseMinimumTotalIdle()
	if err != nil {
		return nil, err
	}
	if minIdle.Sign() > 0 {
		if err := engine.SetMinimumTotalIdle(admin, minIdle); err != nil {
			return nil, err
		}
	}
	return engine, nil
}

func optionalAddress(raw string) (crypto.Address, error) {
	if strings.TrimSpace(raw) == "" {
		return crypto.Address{}, nil
	}
	return crypto.DecodeAddress(raw)
}
