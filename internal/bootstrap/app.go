package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"contrib-backend/internal/cluster"
	"contrib-backend/internal/commits"
	"contrib-backend/internal/impact"
	"contrib-backend/internal/joblog"
	"contrib-backend/internal/llm"
	"contrib-backend/internal/llm/anthropic"
	openai "contrib-backend/internal/llm/openai"
	"contrib-backend/internal/queue"
	"contrib-backend/internal/reports"
	"contrib-backend/internal/reviews"
	"contrib-backend/internal/runs"
	"contrib-backend/internal/sampling"
	"contrib-backend/internal/scan"
	"contrib-backend/internal/scan/github"
	"contrib-backend/internal/shared/config"
	"contrib-backend/internal/shared/server"
	"contrib-backend/internal/shared/storage/db"
	"contrib-backend/internal/workunits"
)

// App holds shared dependencies for the API server and the worker.
type App struct {
	Config config.Config
	Router *gin.Engine
	DB     *sql.DB
	Queue  queue.Client

	RunsRepo    runs.Repo
	CommitsRepo commits.Repo
	UnitsRepo   workunits.Repo
	ReviewsRepo reviews.Repo
	JobLogRepo  joblog.Repo
	ReportsRepo reports.Repo

	Scanner      *scan.Scanner
	Orchestrator *reviews.Orchestrator
	Builder      *reports.Builder
	Pipeline     *runs.Pipeline
	RunsService  *runs.Service
	RunHandler   *runs.Handler
}

// Build prepares shared dependencies and wires the router.
func Build(cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	ctx := context.Background()

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	queueClient, err := buildQueue(ctx)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config: cfg,
		DB:     sqlDB,
		Queue:  queueClient,
	}

	if err := buildServices(app); err != nil {
		return nil, err
	}

	app.Router = server.NewRouter(server.RouterDeps{
		Config:     app.Config,
		RunHandler: app.RunHandler,
	})

	return app, nil
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: DATABASE_URL empty; using in-memory repositories")
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	var (
		sqlDB *sql.DB
		err   error
	)
	if db.IsLambdaRuntime() {
		opts := db.OptionsFromEnv(db.DefaultLambdaOptions())
		sqlDB, err = db.GetSingleton(ctx, cfg.DatabaseURL, opts)
	} else {
		opts := db.OptionsFromEnv(db.DefaultServerOptions())
		sqlDB, err = db.Connect(ctx, cfg.DatabaseURL, opts)
	}
	if err != nil {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: database connect failed; using in-memory repositories: %v", err)
			return nil, nil
		}
		return nil, err
	}

	if err := db.RunMigrations(ctx, sqlDB); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return sqlDB, nil
}

func buildQueue(ctx context.Context) (queue.Client, error) {
	if strings.TrimSpace(os.Getenv("CA_SQS_QUEUE_URL")) == "" {
		return nil, nil
	}
	return queue.NewSQSClient(ctx)
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}

func buildLLM(cfg config.Config) (llm.Client, error) {
	switch cfg.LLMProvider {
	case "openai":
		client, err := openai.NewClient(os.Getenv("OPENAI_API_KEY"), cfg.LLMModel)
		if err != nil && isDevLike(cfg.Env) {
			log.Printf("bootstrap: openai client unavailable; using placeholder client: %v", err)
			return llm.PlaceholderClient{}, nil
		}
		return client, err
	case "anthropic":
		client, err := anthropic.NewClient(os.Getenv("ANTHROPIC_API_KEY"), cfg.LLMModel)
		if err != nil && isDevLike(cfg.Env) {
			log.Printf("bootstrap: anthropic client unavailable; using placeholder client: %v", err)
			return llm.PlaceholderClient{}, nil
		}
		return client, err
	case "", "placeholder":
		return llm.PlaceholderClient{}, nil
	default:
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: unknown LLM provider %q; using placeholder client", cfg.LLMProvider)
			return llm.PlaceholderClient{}, nil
		}
		return nil, fmt.Errorf("unsupported LLM provider %q", cfg.LLMProvider)
	}
}

func buildServices(app *App) error {
	if app.DB != nil {
		app.RunsRepo = &runs.PGRepo{DB: app.DB}
		app.CommitsRepo = &commits.PGRepo{DB: app.DB}
		app.UnitsRepo = &workunits.PGRepo{DB: app.DB}
		app.ReviewsRepo = &reviews.PGRepo{DB: app.DB}
		app.JobLogRepo = &joblog.PGRepo{DB: app.DB}
		app.ReportsRepo = &reports.PGRepo{DB: app.DB}
	} else {
		app.RunsRepo = runs.NewMemoryRepo()
		app.CommitsRepo = commits.NewMemoryRepo()
		app.UnitsRepo = workunits.NewMemoryRepo()
		app.ReviewsRepo = reviews.NewMemoryRepo()
		app.JobLogRepo = joblog.NewMemoryRepo()
		app.ReportsRepo = reports.NewMemoryRepo()
	}

	llmClient, err := buildLLM(app.Config)
	if err != nil {
		return err
	}

	app.Scanner = &scan.Scanner{
		Provider:    github.NewProvider(context.Background(), app.Config.GitHubToken),
		Commits:     app.CommitsRepo,
		Concurrency: app.Config.ScanConcurrency,
	}
	app.Orchestrator = &reviews.Orchestrator{
		Reviews:     app.ReviewsRepo,
		Units:       app.UnitsRepo,
		Commits:     app.CommitsRepo,
		LLM:         llmClient,
		Concurrency: app.Config.ReviewConcurrency,
	}
	app.Builder = &reports.Builder{
		Commits: app.CommitsRepo,
		Units:   app.UnitsRepo,
		Reviews: app.ReviewsRepo,
		Reports: app.ReportsRepo,
	}
	app.Pipeline = &runs.Pipeline{
		Runs:         app.RunsRepo,
		Commits:      app.CommitsRepo,
		Units:        app.UnitsRepo,
		Reviews:      app.ReviewsRepo,
		JobLog:       app.JobLogRepo,
		Builder:      app.Builder,
		Scanner:      app.Scanner,
		Orchestrator: app.Orchestrator,
		Cluster:      cluster.DefaultConfig(),
		Impact:       impact.DefaultConfig(),
		Sampling:     sampling.DefaultConfig(),
	}
	app.RunsService = &runs.Service{
		Repo:         app.RunsRepo,
		Queue:        app.Queue,
		Runner:       app.Pipeline,
		Orchestrator: app.Orchestrator,
	}
	app.RunHandler = runs.NewHandler(app.RunsService)
	return nil
}
