package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/agentcrew"
	"github.com/BaSui01/agentcrew/api/handlers"
	"github.com/BaSui01/agentcrew/internal/server"
)

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, overrides, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if err := cfg.ValidateAzure(); err != nil {
		return err
	}

	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting AgentCrew",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
		zap.Strings("env_overrides", overrides),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := agentcrew.New(ctx, cfg, logger, agentcrew.Options{Version: Version})
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := app.Close(closeCtx); err != nil {
			logger.Error("shutdown error", zap.Error(err))
		}
	}()

	apiServer := server.NewManager("api", newAPIHandler(ctx, app), server.ConfigFrom(cfg.Server, cfg.Server.HTTPPort), logger)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("GET /metrics", promhttp.Handler())
	metricsServer := server.NewManager("metrics", metricsMux, server.ConfigFrom(cfg.Server, cfg.Server.MetricsPort), logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return apiServer.Run(gctx) })
	g.Go(func() error { return metricsServer.Run(gctx) })
	g.Go(func() error {
		app.RunBackground(gctx)
		return nil
	})

	logger.Info("All servers started",
		zap.Int("http_port", cfg.Server.HTTPPort),
		zap.Int("metrics_port", cfg.Server.MetricsPort),
	)

	err = g.Wait()
	logger.Info("AgentCrew stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// newAPIHandler 注册路由并套上中间件链；ctx 结束时停止限流器的后台清理
func newAPIHandler(ctx context.Context, app *agentcrew.App) http.Handler {
	cfg, logger := app.Config, app.Logger

	health := handlers.NewHealthHandler(Version, logger)
	registerHealthChecks(health, app)

	conversations := handlers.NewConversationHandler(app.Team, app.Runs, logger).
		WithOriginPatterns(cfg.Server.CORSAllowedOrigins...)
	chatHandler := handlers.NewChatHandler(app.Chat, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", health.HandleHealth)
	mux.HandleFunc("GET /healthz", health.HandleHealth)
	mux.HandleFunc("GET /ready", health.HandleReady)
	mux.HandleFunc("GET /readyz", health.HandleReady)
	mux.HandleFunc("GET /version", health.HandleVersion(BuildTime, GitCommit))

	mux.HandleFunc("POST /api/v1/conversations", conversations.HandleRun)
	mux.HandleFunc("GET /api/v1/conversations", conversations.HandleList)
	mux.HandleFunc("GET /api/v1/conversations/stream", conversations.HandleStream)
	mux.HandleFunc("GET /api/v1/conversations/{id}", conversations.HandleGet)

	mux.HandleFunc("POST /api/v1/chat", chatHandler.HandleSend)
	mux.HandleFunc("DELETE /api/v1/chat/{session}", chatHandler.HandleDelete)

	skipAuthPaths := []string{"/health", "/healthz", "/ready", "/readyz", "/version"}
	auth := APIKeyAuth(cfg.Server.APIKeys, skipAuthPaths, cfg.Server.AllowQueryAPIKey, logger)
	if cfg.JWT.Enabled {
		auth = JWTAuth(cfg.JWT, skipAuthPaths, logger)
	}

	return Chain(mux,
		Recovery(logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(logger),
		OTelTracing(),
		MetricsMiddleware(app.Metrics),
		CORS(cfg.Server.CORSAllowedOrigins),
		RateLimiter(ctx, cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst, logger),
		auth,
	)
}

// registerHealthChecks 为已启用的后端注册就绪检查
func registerHealthChecks(h *handlers.HealthHandler, app *agentcrew.App) {
	if app.DB != nil {
		h.RegisterCheck(handlers.NewCheck("database", app.DB.Ping))
	}
	if app.Cache != nil {
		h.RegisterCheck(handlers.NewCheck("redis", app.Cache.Ping))
	}
	h.RegisterCheck(handlers.NewCheck("llm", func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		status, err := app.Provider.HealthCheck(ctx)
		if err != nil {
			return err
		}
		if !status.Healthy {
			return fmt.Errorf("provider %s unhealthy", app.Provider.Name())
		}
		return nil
	}))
}
