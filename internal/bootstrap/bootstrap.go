// Package bootstrap wires config into a running orchestrator. It is shared
// by the API server and the CLI.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/bryanwahyu/safeguard/internal/application"
	"github.com/bryanwahyu/safeguard/internal/application/ai"
	"github.com/bryanwahyu/safeguard/internal/application/auditlog"
	"github.com/bryanwahyu/safeguard/internal/application/patterns"
	"github.com/bryanwahyu/safeguard/internal/application/pipeline"
	"github.com/bryanwahyu/safeguard/internal/application/tokenize"
	"github.com/bryanwahyu/safeguard/internal/config"
	"github.com/bryanwahyu/safeguard/internal/domain/audit"
	"github.com/bryanwahyu/safeguard/internal/domain/history"
	"github.com/bryanwahyu/safeguard/internal/domain/safeguarding"
	openaip "github.com/bryanwahyu/safeguard/internal/infra/ai/openai"
	"github.com/bryanwahyu/safeguard/internal/infra/ai/prompt"
	mysqlp "github.com/bryanwahyu/safeguard/internal/infra/db/mysql"
	"github.com/bryanwahyu/safeguard/internal/infra/db/postgres"
	"github.com/bryanwahyu/safeguard/internal/infra/storage"
	"github.com/bryanwahyu/safeguard/internal/middleware"
)

// NewLogger builds the process logger from config.
func NewLogger(cfg config.LogConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		lvl, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("log.level: %w", err)
		}
		zc.Level = zap.NewAtomicLevelAt(lvl)
	}
	return zc.Build()
}

// App holds the wired services.
type App struct {
	Orchestrator *pipeline.Orchestrator
	Audit        *auditlog.Log
	// AuditSource is the persistent repository when a database is
	// configured, else the in-memory log.
	AuditSource interface {
		List(ctx context.Context, sessionID string, limit int) ([]*audit.Event, error)
	}
	DB *sql.DB

	closers []func() error
}

func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Deps overrides pieces of the wiring, mostly for tests and the CLI.
type Deps struct {
	Provider safeguarding.Provider
	Metrics  pipeline.Metrics
	Clock    application.Clock
}

// Open connects the configured stores and builds the orchestrator.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger, deps Deps) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = application.SystemClock{}
	}
	app := &App{}

	var (
		auditRepo   audit.Repository
		historyRepo history.Repository
	)
	switch cfg.Database.Driver {
	case config.DriverMySQL:
		db, err := mysqlp.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			return nil, fmt.Errorf("mysql connect: %w", err)
		}
		app.DB = db
		app.closers = append(app.closers, db.Close)
		if err := mysqlp.Migrate(ctx, db); err != nil {
			_ = app.Close()
			return nil, fmt.Errorf("mysql migrate: %w", err)
		}
		auditRepo, historyRepo = mysqlp.NewAuditRepository(db), mysqlp.NewHistoryRepository(db)
	case config.DriverPostgres:
		db, err := postgres.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			return nil, fmt.Errorf("postgres connect: %w", err)
		}
		app.DB = db
		app.closers = append(app.closers, db.Close)
		if err := postgres.Migrate(ctx, db); err != nil {
			_ = app.Close()
			return nil, fmt.Errorf("postgres migrate: %w", err)
		}
		auditRepo, historyRepo = postgres.NewAuditRepository(db), postgres.NewHistoryRepository(db)
	}

	app.Audit = auditlog.New(auditRepo, clock, logger.Named("audit"))
	app.AuditSource = app.Audit
	if auditRepo != nil {
		app.AuditSource = auditRepo
	}

	provider := deps.Provider
	switch {
	case provider != nil:
	case cfg.Provider.UseOffline():
		logger.Info("no provider configured, using offline analyzer")
		provider = prompt.Offline{}
	default:
		provider = openaip.NewClient(openaip.Config{
			APIKey:    cfg.Provider.APIKey,
			Model:     cfg.Provider.Model,
			BaseURL:   cfg.Provider.BaseURL,
			MaxTokens: cfg.Provider.MaxTokens,
		})
	}
	svc := ai.NewService(provider, app.Audit,
		ai.WithTimeout(cfg.Provider.Timeout),
		ai.WithClock(clock),
		ai.WithLogger(logger.Named("ai")))

	metrics := deps.Metrics
	if metrics == nil {
		metrics = middleware.AnalysisMetrics{}
	}
	opts := []pipeline.Option{
		pipeline.WithClock(clock),
		pipeline.WithLogger(logger.Named("pipeline")),
		pipeline.WithAuditLog(app.Audit),
		pipeline.WithMetrics(metrics),
		pipeline.WithMaxConcurrentSessions(cfg.Analysis.MaxConcurrentSessions),
		pipeline.WithExtractorConfig(patterns.Config{
			Lookback:     cfg.Analysis.Lookback(),
			MinFrequency: cfg.Analysis.MinFrequency,
		}),
		pipeline.WithHistory(historyKey(cfg.Tokenizer.MasterKey), historyRepo),
	}

	if cfg.Minio.Enabled {
		store, err := storage.New(ctx,
			cfg.Minio.Endpoint,
			cfg.Minio.Region,
			cfg.Minio.BucketName,
			cfg.Minio.AccessKey,
			cfg.Minio.SecretKey,
			cfg.Minio.UseSSL,
		)
		if err != nil {
			_ = app.Close()
			return nil, fmt.Errorf("minio init: %w", err)
		}
		opts = append(opts, pipeline.WithSink(store))
	}

	orch, err := pipeline.New(tokenize.New([]byte(cfg.Tokenizer.MasterKey), clock), svc, opts...)
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	if err := orch.History().Load(ctx); err != nil {
		logger.Warn("could not load analysis history", zap.Error(err))
	}
	app.Orchestrator = orch
	return app, nil
}

// historyKey derives the history hashing key from the master key so that
// persisted subject keys stay stable across restarts. Without a master key
// the orchestrator picks a random one.
func historyKey(master string) []byte {
	if master == "" {
		return nil
	}
	return tokenize.DeriveKey([]byte(master), "safeguard/history/v1")
}
