package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/ericksa/contractlens/internal/analysis"
	"github.com/ericksa/contractlens/internal/api"
	"github.com/ericksa/contractlens/internal/audit"
	"github.com/ericksa/contractlens/internal/config"
	"github.com/ericksa/contractlens/internal/llm"
	"github.com/ericksa/contractlens/internal/logging"
	"github.com/ericksa/contractlens/internal/middleware"
	"github.com/ericksa/contractlens/internal/negotiation"
	"github.com/ericksa/contractlens/internal/storage"
	"github.com/ericksa/contractlens/pkg/mcp"
)

// version is set with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, cleanup, err := wire(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("startup failed", zap.Error(err))
	}
	defer cleanup()

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           newRouter(cfg, deps, logger),
		ReadHeaderTimeout: 15 * time.Second,
		// analyses run for up to the request timeout; leave room to write the body
		WriteTimeout: cfg.Server.RequestTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting contractlens gateway", zap.String("addr", cfg.Server.Addr), zap.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	<-ctx.Done()
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("server stopped")
}

type dependencies struct {
	pipeline  *analysis.Pipeline
	simulator *negotiation.Simulator
	reports   *storage.ReportStore
	archive   *storage.DocumentArchive
	auditor   *audit.Auditor
}

func wire(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*dependencies, func(), error) {
	gw, err := llm.New(ctx, cfg.Gateway(), logger)
	if err != nil {
		return nil, nil, err
	}

	var sealer *storage.Sealer
	if cfg.Storage.EncryptionKey != "" {
		sealer, err = storage.NewSealer(cfg.Storage.EncryptionKey, cfg.Storage.EncryptionSalt)
		if err != nil {
			return nil, nil, err
		}
	} else {
		logger.Warn("storage.encryption_key is empty; reports are stored unencrypted")
	}

	reports, err := storage.OpenReports(ctx, cfg.Storage.Driver, cfg.Storage.DSN, sealer, logger)
	if err != nil {
		return nil, nil, err
	}
	auditor, err := audit.NewAuditor(ctx, reports.DB(), cfg.Storage.Driver, logger)
	if err != nil {
		reports.Close()
		return nil, nil, err
	}

	deps := &dependencies{
		pipeline:  analysis.NewPipeline(gw, analysis.Options{Model: cfg.LLM.Model, Logger: logger}),
		simulator: negotiation.NewSimulator(gw, cfg.LLM.Model, logger),
		reports:   reports,
		auditor:   auditor,
	}

	if cfg.MinIO.Enabled {
		archive, err := storage.NewDocumentArchive(ctx, cfg.Archive(), logger)
		if err != nil {
			logger.Warn("document archive unavailable", zap.Error(err))
		} else {
			deps.archive = archive
		}
	}

	return deps, func() { reports.Close() }, nil
}

func newRouter(cfg *config.Config, deps *dependencies, logger *zap.Logger) http.Handler {
	router := mux.NewRouter()
	middleware.Register(router, logger, cfg.Auth.Token, cfg.Server.RequestTimeout)

	opts := api.Options{
		Analyzer:   deps.pipeline,
		Negotiator: deps.simulator,
		Logger:     logger,
		MaxRounds:  cfg.Negotiation.MaxRounds,
	}
	// typed nils must not reach the interfaces
	if deps.reports != nil {
		opts.Reports = deps.reports
	}
	if deps.archive != nil {
		opts.Archive = deps.archive
	}
	if deps.auditor != nil {
		opts.Audit = deps.auditor
	}
	api.NewServer(opts).Register(router)

	// MCP endpoint
	mcpOpts := mcp.Options{
		Analyzer:   deps.pipeline,
		Negotiator: deps.simulator,
		Logger:     logger,
		MaxRounds:  cfg.Negotiation.MaxRounds,
		Version:    version,
	}
	if deps.reports != nil {
		mcpOpts.Reports = deps.reports
	}
	if deps.auditor != nil {
		mcpOpts.Audit = deps.auditor
	}
	router.PathPrefix("/mcp").Handler(mcp.NewHandler(mcpOpts))

	// Configuration API
	config.NewConfigAPI(cfg, config.Load).Register(router)

	return middleware.CORS(cfg.Server.CORSOrigins)(router)
}
