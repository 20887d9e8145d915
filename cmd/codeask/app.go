package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"codeask/internal/chat"
	"codeask/internal/config"
	"codeask/internal/index"
	"codeask/internal/llm"
	"codeask/internal/logging"
	"codeask/internal/prompts"
	"codeask/internal/query"
	"codeask/internal/ratelimit"
	"codeask/internal/store"
)

// app bundles the wired-up components a command needs.
type app struct {
	repoRoot string
	cfg      *config.Config
	logger   *logging.Logger

	cache     *index.Cache
	prompts   *prompts.Set
	limiter   *ratelimit.Limiter
	client    *llm.Client
	indexer   *index.Indexer
	searcher  *query.Searcher
	assembler *query.Assembler
	engine    *chat.Engine

	db          *store.DB
	transcripts *store.Transcripts
}

// newLogger builds the process logger from config plus CLI overrides.
func newLogger(cfg *config.Config) *logging.Logger {
	format := logging.Format(cfg.Logging.Format)
	if jsonLogsFlag {
		format = logging.JSONFormat
	}
	level := logging.LogLevel(cfg.Logging.Level)
	if logLevelFlag != "" {
		level = logging.LogLevel(logLevelFlag)
	}
	return logging.NewLogger(logging.Config{Format: format, Level: level})
}

// mustGetRepoRoot returns the repository root or exits on error.
func mustGetRepoRoot() string {
	root, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return root
}

// loadConfig loads and validates the repo config, exiting on invalid
// settings. Invalid config is fatal at startup.
func loadConfig(repoRoot string) *config.Config {
	cfg, err := config.LoadConfig(repoRoot)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// resolveLimits combines config overrides with the per-model limits
// table; a zero config value falls back to the table.
func resolveLimits(cfg *config.Config) (ratelimit.Limits, error) {
	model, err := llm.LimitsForModel(cfg.API.Model)
	if err != nil {
		return ratelimit.Limits{}, err
	}
	limits := ratelimit.Limits{
		RequestsPerMinute: model.RequestsPerMinute,
		TokensPerMinute:   model.TokensPerMinute,
		TokensPerDay:      model.TokensPerDay,
	}
	if cfg.Limits.RequestsPerMinute > 0 {
		limits.RequestsPerMinute = cfg.Limits.RequestsPerMinute
	}
	if cfg.Limits.TokensPerMinute > 0 {
		limits.TokensPerMinute = cfg.Limits.TokensPerMinute
	}
	if cfg.Limits.TokensPerDay > 0 {
		limits.TokensPerDay = cfg.Limits.TokensPerDay
	}
	return limits, nil
}

// indexConfig maps the config file's index section onto the scanner.
func indexConfig(cfg *config.Config) *index.Config {
	return &index.Config{
		Extensions:       cfg.Index.Extensions,
		Excludes:         cfg.Index.Excludes,
		MaxFileSizeBytes: cfg.Index.MaxFileSizeBytes,
		Concurrency:      cfg.Index.Concurrency,
	}
}

// buildApp wires the full pipeline. withLLM commands require the API
// key environment variable; withStore commands open the transcript
// database.
func buildApp(ctx context.Context, repoRoot string, withLLM, withStore bool) (*app, error) {
	cfg := loadConfig(repoRoot)
	logger := newLogger(cfg)

	a := &app{
		repoRoot: repoRoot,
		cfg:      cfg,
		logger:   logger,
	}

	a.cache = index.NewCache(repoRoot, logger.WithComponent("index"))
	if err := a.cache.Load(); err != nil {
		return nil, fmt.Errorf("failed to load index cache: %w", err)
	}

	set, err := prompts.Load(repoRoot)
	if err != nil {
		return nil, err
	}
	a.prompts = set

	if withStore {
		db, err := store.Open(repoRoot, logger.WithComponent("store"))
		if err != nil {
			return nil, err
		}
		a.db = db
		a.transcripts = store.NewTranscripts(db)
	}

	if withLLM {
		apiKey := os.Getenv(cfg.API.KeyEnv)
		if apiKey == "" {
			return nil, fmt.Errorf("API key not set: export %s", cfg.API.KeyEnv)
		}

		limits, err := resolveLimits(cfg)
		if err != nil {
			return nil, err
		}
		a.limiter = ratelimit.NewLimiter(limits, logger.WithComponent("ratelimit"))
		a.limiter.Start(ctx)

		a.client = llm.NewClient(llm.ClientConfig{
			BaseURL:   cfg.API.BaseURL,
			APIKey:    apiKey,
			Model:     cfg.API.Model,
			MaxTokens: cfg.API.MaxTokens,
			Timeout:   time.Duration(cfg.API.TimeoutMs) * time.Millisecond,
		}, set, a.limiter, logger.WithComponent("llm"))

		a.indexer = index.NewIndexer(repoRoot, a.cache, a.client, indexConfig(cfg), logger.WithComponent("index"))
		a.searcher = query.NewSearcher(a.cache, a.client, set, logger.WithComponent("query"), cfg.Context.TopK)
		a.assembler = query.NewAssembler(repoRoot, cfg.Context.MaxBytes, logger.WithComponent("query"))
		a.engine = chat.NewEngine(a.searcher, a.assembler, a.client, set,
			chat.NewMemory(cfg.Memory.MaxMessages), logger.WithComponent("chat"))
	}

	return a, nil
}

// close releases held resources.
func (a *app) close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("Failed to close database", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
}
