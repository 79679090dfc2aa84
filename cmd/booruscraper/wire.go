package main

import (
	"fmt"
	"net/http"

	"booruscraper/internal/downloader"
	"booruscraper/pkg/checkpoint"
	"booruscraper/pkg/config"
	"booruscraper/pkg/crawler"
	"booruscraper/pkg/extractor"
	"booruscraper/pkg/fetcher"
	"booruscraper/pkg/filter"
	"booruscraper/pkg/logger"
	"booruscraper/pkg/retry"
	"booruscraper/pkg/storage"
)

// crawlRun is every component of one scrape invocation, assembled from the
// configuration.
type crawlRun struct {
	session      *fetcher.Session
	store        *storage.Manager
	checkpoints  *checkpoint.Store
	engine       *crawler.Engine
	supervisor   *crawler.Supervisor
	planner      *crawler.Planner
	orchestrator *crawler.Orchestrator
}

// runHooks lets the caller observe progress without the crawler knowing
// about the terminal.
type runHooks struct {
	OnPage     func(crawler.PageReport)
	OnTagStart func(target crawler.Target, resumed int)
	OnTagDone  func(crawler.TagResult)
}

func newCrawlRun(cfg *config.Config, runID string, log logger.Logger, hooks runHooks) (*crawlRun, error) {
	store, err := storage.NewManager(cfg.Output.BaseDirectory, cfg.Output.MetadataDir)
	if err != nil {
		return nil, err
	}
	checkpoints := checkpoint.NewStore(log)

	ext, err := extractor.New(cfg.Site.Name, cfg.Site.BaseURL, !cfg.Output.Sample)
	if err != nil {
		return nil, err
	}

	var cookies []*http.Cookie
	if cfg.Fetcher.CookieFile != "" {
		if cookies, err = fetcher.LoadCookieFile(cfg.Fetcher.CookieFile); err != nil {
			return nil, err
		}
	}
	userAgent := cfg.Fetcher.UserAgent
	if userAgent == "" {
		userAgent = fetcher.DefaultUserAgent
	}

	session, err := fetcher.New(&cfg.Fetcher, log)
	if err != nil {
		return nil, err
	}

	dl, err := downloader.New(downloader.Options{
		UserAgent: userAgent,
		Cookies:   cookies,
		Timeout:   cfg.Fetcher.DownloadTimeout,
		Attempts:  cfg.Retry.DownloadAttempts,
		Backoff:   backoffFromConfig(&cfg.Retry),
		Logger:    log,
	})
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to create downloader: %w", err)
	}

	pipeline := crawler.NewPipeline(crawler.PipelineConfig{
		Fetcher:    session,
		Extractor:  ext,
		Filter:     filter.FromConfig(cfg),
		Downloader: dl,
		Artifacts:  store,
		RunID:      runID,
		Logger:     log,
	})

	supervisor := crawler.NewSupervisor(session, crawler.SupervisorConfig{
		MaxAttempts:  cfg.Retry.MaxAttempts,
		Backoff:      retry.NewErrorTypeBackoff(backoffFromConfig(&cfg.Retry)),
		RestartDelay: cfg.Fetcher.RestartDelay,
		Logger:       log,
	})

	engine := crawler.NewEngine(crawler.EngineConfig{
		Fetcher:     session,
		Extractor:   ext,
		Processor:   pipeline,
		Checkpoints: checkpoints,
		Supervisor:  supervisor,
		Options: crawler.EngineOptions{
			Limit:          cfg.Crawl.Limit,
			MaxPages:       cfg.Crawl.MaxPages,
			StaleJumpLimit: cfg.Crawl.StaleJumpLimit,
		},
		Logger: log,
	})
	engine.OnPage = hooks.OnPage

	planner := crawler.NewPlanner(cfg, store)
	orchestrator := crawler.NewOrchestrator(crawler.OrchestratorConfig{
		Runner:         engine,
		Checkpoints:    checkpoints,
		Targets:        planner.Target,
		EmptyPageLimit: cfg.Crawl.EmptyPageLimit,
		Force:          cfg.Output.Force,
		Logger:         log,
		OnTagStart:     hooks.OnTagStart,
		OnTagDone:      hooks.OnTagDone,
	})

	return &crawlRun{
		session:      session,
		store:        store,
		checkpoints:  checkpoints,
		engine:       engine,
		supervisor:   supervisor,
		planner:      planner,
		orchestrator: orchestrator,
	}, nil
}

// Close releases the browser
func (r *crawlRun) Close() error {
	return r.session.Close()
}

func backoffFromConfig(cfg *config.RetryConfig) *retry.ExponentialBackoff {
	b := retry.DefaultExponentialBackoff()
	if cfg.InitialDelay > 0 {
		b.BaseDelay = cfg.InitialDelay
	}
	if cfg.MaxDelay > 0 {
		b.MaxDelay = cfg.MaxDelay
	}
	if cfg.BackoffMultiplier >= 1 {
		b.Multiplier = cfg.BackoffMultiplier
	}
	return b
}
