// Package agentcrew wires the configured collaborators into a runnable
// application: the Azure OpenAI provider, the three-participant team, the
// function-calling chat manager and the optional Redis and SQL backends.
//
// Usage:
//
//	app, err := agentcrew.New(ctx, cfg, logger, agentcrew.Options{Version: version})
//	if err != nil { ... }
//	defer app.Close(ctx)
//
//	res, err := app.Team.Run(ctx, "Build a calculator app")
package agentcrew

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/BaSui01/agentcrew/agent/conversation"
	"github.com/BaSui01/agentcrew/agent/persistence"
	"github.com/BaSui01/agentcrew/chat"
	"github.com/BaSui01/agentcrew/config"
	"github.com/BaSui01/agentcrew/internal/cache"
	"github.com/BaSui01/agentcrew/internal/database"
	"github.com/BaSui01/agentcrew/internal/metrics"
	"github.com/BaSui01/agentcrew/internal/migration"
	"github.com/BaSui01/agentcrew/internal/telemetry"
	"github.com/BaSui01/agentcrew/llm"
	"github.com/BaSui01/agentcrew/llm/providers/azureopenai"
	"github.com/BaSui01/agentcrew/llm/retry"
	"github.com/BaSui01/agentcrew/llm/tokenizer"
	"github.com/BaSui01/agentcrew/llm/tools"
	"github.com/BaSui01/agentcrew/plugins"
)

// MetricsNamespace prefixes every Prometheus metric.
const MetricsNamespace = "agentcrew"

// Options overrides collaborators New would otherwise build from config.
type Options struct {
	Version string

	// Provider replaces the Azure OpenAI chat provider
	Provider llm.Provider
	// Embedder and Images replace the Azure embedding and image endpoints
	Embedder llm.EmbeddingProvider
	Images   llm.ImageProvider

	// Registerer receives the metrics; nil uses the default registry
	Registerer prometheus.Registerer
	// SkipTelemetry leaves OpenTelemetry uninitialized (CLI one-shots)
	SkipTelemetry bool
}

// App holds the wired application. Optional backends are nil when disabled.
type App struct {
	Config    *config.Config
	Logger    *zap.Logger
	Provider  llm.Provider
	Metrics   *metrics.Collector
	Telemetry *telemetry.Providers

	Cache *cache.Manager
	DB    *database.PoolManager
	Runs  persistence.RunStore

	Team  *conversation.Team
	Tools *tools.DefaultRegistry
	Chat  *chat.Manager
}

// New builds the application from cfg. On error everything opened so far
// is closed again.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts Options) (_ *App, err error) {
	if cfg == nil {
		return nil, errors.New("agentcrew: config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	app := &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			_ = app.Close(context.Background())
		}
	}()

	if opts.Registerer != nil {
		app.Metrics = metrics.NewCollectorWithRegistry(MetricsNamespace, opts.Registerer, logger)
	} else {
		app.Metrics = metrics.NewCollector(MetricsNamespace, logger)
	}

	if !opts.SkipTelemetry {
		if app.Telemetry, err = telemetry.Init(ctx, cfg.Telemetry, opts.Version, logger); err != nil {
			return nil, fmt.Errorf("init telemetry: %w", err)
		}
	}

	embedder, images := opts.Embedder, opts.Images
	app.Provider = opts.Provider
	if app.Provider == nil {
		az, err := newAzureProvider(cfg.AzureOpenAI, logger)
		if err != nil {
			return nil, err
		}
		app.Provider = az
		if embedder == nil && cfg.AzureOpenAI.EmbeddingDeployment != "" {
			embedder = az
		}
		if images == nil && cfg.AzureOpenAI.ImageDeployment != "" {
			if images, err = newImageProvider(cfg.AzureOpenAI, az, logger); err != nil {
				return nil, err
			}
		}
	}

	if cfg.Redis.Enabled {
		if app.Cache, err = cache.NewManager(cache.ConfigFrom(cfg.Redis), logger); err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		app.Cache.WithRecorder(app.Metrics)
	}

	if cfg.Database.Enabled {
		if err = app.openDatabase(ctx); err != nil {
			return nil, err
		}
	}

	instruments, err := app.Telemetry.ConversationInstruments()
	if err != nil {
		return nil, fmt.Errorf("create conversation instruments: %w", err)
	}
	if app.Team, err = newTeam(cfg, app.Provider, app.Metrics, instruments, logger); err != nil {
		return nil, err
	}

	app.Tools = tools.NewDefaultRegistry(logger)
	err = plugins.RegisterAll(app.Tools, plugins.Default(plugins.Options{
		Config:              cfg.Plugins,
		Cache:               app.Cache,
		Embedder:            embedder,
		EmbeddingDeployment: cfg.AzureOpenAI.EmbeddingDeployment,
		Images:              images,
		Logger:              logger,
	})...)
	if err != nil {
		return nil, err
	}

	if app.Chat, err = newChat(cfg, app.Provider, app.Tools, app.Cache, app.Metrics, logger); err != nil {
		return nil, err
	}

	logger.Info("application wired",
		zap.String("provider", app.Provider.Name()),
		zap.Bool("redis", app.Cache != nil),
		zap.Bool("database", app.DB != nil),
		zap.Bool("persist_runs", app.Runs != nil),
		zap.Int("tools", len(app.Tools.List())),
	)
	return app, nil
}

func newAzureProvider(cfg config.AzureOpenAIConfig, logger *zap.Logger) (*azureopenai.Provider, error) {
	p, err := azureopenai.New(azureopenai.Config{
		Endpoint:            cfg.Endpoint,
		APIKey:              cfg.APIKey,
		APIVersion:          cfg.APIVersion,
		ChatDeployment:      cfg.ChatDeployment,
		EmbeddingDeployment: cfg.EmbeddingDeployment,
		ImageDeployment:     cfg.ImageDeployment,
		Timeout:             cfg.Timeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create azure openai provider: %w", err)
	}
	return p, nil
}

// 文生图资源可以配置独立的 endpoint
func newImageProvider(cfg config.AzureOpenAIConfig, chat *azureopenai.Provider, logger *zap.Logger) (llm.ImageProvider, error) {
	if cfg.ImageEndpoint == "" {
		return chat, nil
	}
	key := cfg.ImageAPIKey
	if key == "" {
		key = cfg.APIKey
	}
	p, err := azureopenai.New(azureopenai.Config{
		Endpoint:        cfg.ImageEndpoint,
		APIKey:          key,
		APIVersion:      cfg.APIVersion,
		ImageDeployment: cfg.ImageDeployment,
		Timeout:         cfg.Timeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create image provider: %w", err)
	}
	return p, nil
}

func (a *App) openDatabase(ctx context.Context) error {
	cfg := a.Config.Database
	if cfg.AutoMigrate && cfg.Driver != "sqlite" {
		m, err := migration.NewMigratorFromDatabaseConfig(cfg, a.Logger)
		if err != nil {
			return fmt.Errorf("create migrator: %w", err)
		}
		err = m.Up(ctx)
		if cerr := m.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
	}

	pool, err := database.Open(cfg, a.Logger)
	if err != nil {
		return err
	}
	a.DB = pool.WithStatsObserver(func(dialect string, stats sql.DBStats) {
		a.Metrics.RecordDBConnections(dialect, stats.OpenConnections, stats.Idle)
	})

	if a.Config.MultiAgent.PersistRuns {
		if a.Runs, err = persistence.NewRunStore(cfg, pool, a.Logger); err != nil {
			return fmt.Errorf("create run store: %w", err)
		}
	}
	return nil
}

func newTeam(cfg *config.Config, provider llm.Provider, collector *metrics.Collector, otelRecorder conversation.MetricsRecorder, logger *zap.Logger) (*conversation.Team, error) {
	ma := cfg.MultiAgent
	model := cfg.AzureOpenAI.ChatDeployment

	policy := retry.DefaultRetryPolicy()
	policy.MaxRetries = ma.MaxRetries
	responder := conversation.NewCompletionResponder(provider, conversation.ResponderConfig{
		Model:       model,
		Temperature: float32(cfg.AzureOpenAI.Temperature),
		MaxTokens:   cfg.AzureOpenAI.MaxTokens,
		Timeout:     ma.TurnTimeout,
		Retry:       policy,
	}, logger).WithUsageObserver(collector.ObserveUsage)

	participants := conversation.DefaultParticipants(responder, ma.ApprovalToken)
	opts := []conversation.Option{
		conversation.WithMetrics(collector),
		conversation.WithMetrics(otelRecorder),
		conversation.WithTokenCounter(tokenizer.ForModel(model, logger)),
		conversation.WithSelectionFallback(collector.RecordSelectionFallback),
	}
	if ma.Selection == conversation.SelectionPolicyPrompt {
		names := make([]string, len(participants))
		for i, p := range participants {
			names[i] = p.Name()
		}
		selector := conversation.NewPromptSelector(provider, model, names, conversation.NewRuleSelector(ma.ApprovalToken), logger).
			WithFallbackObserver(collector.RecordSelectionFallback)
		opts = append(opts, conversation.WithSelector(selector))
	}

	return conversation.NewTeam(participants, conversation.Config{
		MaxIterations: ma.MaxIterations,
		ApprovalToken: ma.ApprovalToken,
		Approvers:     ma.Approvers,
		SeedPersonas:  ma.SeedPersonas,
	}, logger, opts...)
}

func newChat(cfg *config.Config, provider llm.Provider, registry *tools.DefaultRegistry, cm *cache.Manager, collector *metrics.Collector, logger *zap.Logger) (*chat.Manager, error) {
	cc := chat.DefaultConfig()
	cc.Model = cfg.AzureOpenAI.ChatDeployment
	cc.Temperature = float32(cfg.AzureOpenAI.Temperature)
	if cfg.AzureOpenAI.MaxTokens > 0 {
		cc.MaxTokens = cfg.AzureOpenAI.MaxTokens
	}
	if cfg.Chat.MaxToolIterations > 0 {
		cc.MaxToolIterations = cfg.Chat.MaxToolIterations
	}
	if cfg.Chat.SystemPrompt != "" {
		cc.SystemPrompt = cfg.Chat.SystemPrompt
	}

	history, err := chat.NewHistoryStore(cfg.Chat, cm, cc.MaxHistory, logger)
	if err != nil {
		return nil, err
	}
	executor := tools.NewDefaultExecutor(registry, logger).WithObserver(collector.RecordToolCall)
	return chat.NewManager(cc, provider, registry, executor, history, logger).
		WithObserver(collector.SetActiveChatSessions), nil
}

// RunBackground 运行后台维护任务（空闲会话清理、连接池探活），直到 ctx 结束
func (a *App) RunBackground(ctx context.Context) {
	go a.Chat.RunSweeper(ctx, time.Minute, 30*time.Minute)
	if a.DB != nil {
		a.DB.RunProbe(ctx)
		return
	}
	<-ctx.Done()
}

// Close releases every backend that was opened.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Runs != nil {
		errs = append(errs, a.Runs.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	if a.Cache != nil {
		errs = append(errs, a.Cache.Close())
	}
	if a.Telemetry != nil {
		errs = append(errs, a.Telemetry.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
