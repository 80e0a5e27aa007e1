package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/phrazzld/genqueue/internal/api"
	"github.com/phrazzld/genqueue/internal/config"
	"github.com/phrazzld/genqueue/internal/events"
	"github.com/phrazzld/genqueue/internal/generation"
	"github.com/phrazzld/genqueue/internal/job"
	"github.com/phrazzld/genqueue/internal/jobcache"
	"github.com/phrazzld/genqueue/internal/platform/gemini"
	"github.com/phrazzld/genqueue/internal/platform/openai"
	"github.com/phrazzld/genqueue/internal/platform/postgres"
	"github.com/phrazzld/genqueue/internal/platform/redis"
	"github.com/phrazzld/genqueue/internal/service/auth"
)

type (
	jobCache      = jobcache.Cache[generation.Request, generation.Result]
	jobController = job.Controller[generation.Request, generation.Result]
)

// application holds the shared dependencies of the server and releases them
// on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger

	// connections owned by the application; nil when the backend does not
	// need them
	db    *sql.DB
	redis *goredis.Client

	jwtService auth.JWTService
	cache      *jobCache
	controller *jobController
	emitter    *events.InMemoryEventEmitter
	jobHandler *api.JobHandler
}

// newApplication opens the configured backend and LLM provider and wires the
// job controller over them.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	app := &application{config: cfg, logger: logger}

	backend, err := app.openBackend(ctx)
	if err != nil {
		app.closeConnections()
		return nil, err
	}

	generator, err := newGenerator(ctx, cfg.LLM, logger.With("component", "llm_generator"))
	if err != nil {
		app.closeConnections()
		return nil, fmt.Errorf("failed to initialize LLM generator: %w", err)
	}
	logger.Info("LLM generator initialized", "provider", cfg.LLM.Provider, "model", cfg.LLM.ModelName)

	if err := app.init(ctx, backend, generator); err != nil {
		app.closeConnections()
		return nil, err
	}
	return app, nil
}

// openBackend connects to the durable job backend selected in the store
// config.
func (app *application) openBackend(ctx context.Context) (jobcache.Backend, error) {
	cfg := app.config
	switch cfg.Store.Backend {
	case config.BackendMemory:
		app.logger.Warn("using in-memory job backend; jobs do not survive restarts")
		return jobcache.NewMemoryBackend(), nil

	case config.BackendPostgres:
		db, err := openDatabase(ctx, cfg.Database, app.logger)
		if err != nil {
			return nil, err
		}
		app.db = db
		if err := postgres.Migrate(ctx, db, "up", app.logger); err != nil {
			return nil, fmt.Errorf("failed to apply migrations: %w", err)
		}
		return postgres.NewJobStore(db), nil

	case config.BackendRedis:
		client, err := openRedis(ctx, cfg.Store, app.logger)
		if err != nil {
			return nil, err
		}
		app.redis = client
		return redis.NewJobStore(client, redis.WithLogger(app.logger.With("component", "redis_job_store"))), nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// newGenerator creates the client for the configured LLM provider.
func newGenerator(ctx context.Context, cfg config.LLMConfig, logger *slog.Logger) (generation.Generator, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		return gemini.NewGenerator(ctx, logger, cfg)
	case config.ProviderOpenAI:
		return openai.NewGenerator(logger, cfg)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}

// init builds everything above the backend and the generator: auth, the job
// cache, the event emitter and the controller. Unfinished jobs found in the
// backend are recovered before init returns.
func (app *application) init(ctx context.Context, backend jobcache.Backend, generator generation.Generator) error {
	cfg := app.config
	var err error

	app.jwtService, err = auth.NewJWTService(cfg.Auth)
	if err != nil {
		return fmt.Errorf("failed to initialize JWT service: %w", err)
	}

	prompts, err := generation.NewPromptBuilder(cfg.LLM.PromptTemplate)
	if err != nil {
		return fmt.Errorf("failed to load prompt template: %w", err)
	}

	app.cache, err = jobcache.New[generation.Request, generation.Result](
		backend,
		jobcache.Config{WriteTimeout: cfg.Store.WriteTimeout},
		app.logger,
	)
	if err != nil {
		return fmt.Errorf("failed to create job cache: %w", err)
	}
	loaded, err := app.cache.Load(ctx, cfg.Store.Namespace)
	if err != nil {
		return fmt.Errorf("failed to load jobs: %w", err)
	}
	app.logger.Info("job cache loaded",
		"backend", cfg.Store.Backend,
		"namespace", cfg.Store.Namespace,
		"jobs", loaded)

	app.emitter = events.NewInMemoryEventEmitter(app.logger)
	app.emitter.RegisterHandler(events.NewLoggingHandler(app.logger))
	if app.redis != nil {
		app.emitter.RegisterHandler(redis.NewEventPublisher(app.redis))
	}

	execute := generation.NewExecuteFunc(generator, prompts, generation.TaskConfig{
		Timeout:          cfg.LLM.RequestTimeout,
		ProgressInterval: cfg.LLM.ProgressInterval,
	}, app.logger)

	app.controller, err = job.NewController[generation.Request, generation.Result](
		app.cache,
		job.Config[generation.Request, generation.Result]{
			Namespace: cfg.Store.Namespace,
			Executor:  job.ExecutorConfig[generation.Request, generation.Result]{Execute: execute},
			Callbacks: app.jobCallbacks(),
		},
		app.logger,
	)
	if err != nil {
		return fmt.Errorf("failed to create job controller: %w", err)
	}

	if _, err := app.controller.Recover(ctx); err != nil {
		// Records that could not be reconciled stay visible; serving continues.
		app.logger.Error("failed to recover some jobs", "error", err)
	}

	app.logger.Info("application initialized")
	return nil
}

// Run serves HTTP until ctx is cancelled, then shuts down.
func (app *application) Run(ctx context.Context) error {
	if err := app.serve(ctx, app.setupRouter()); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// shutdown waits for running jobs, flushes pending store writes and closes
// connections. It is bounded by ctx.
func (app *application) shutdown(ctx context.Context) error {
	var firstErr error

	if app.controller != nil {
		if err := app.controller.Wait(ctx); err != nil {
			app.logger.Error("jobs still running at shutdown", "error", err,
				"active_jobs", app.controller.ActiveJobCount())
			firstErr = err
		}
	}

	if app.cache != nil {
		if err := app.cache.Close(ctx); err != nil {
			app.logger.Error("failed to flush job store writes", "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	app.closeConnections()
	app.logger.Info("application shutdown completed")
	return firstErr
}

func (app *application) closeConnections() {
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database connection", "error", err)
		}
		app.db = nil
	}
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("error closing redis client", "error", err)
		}
		app.redis = nil
	}
}
