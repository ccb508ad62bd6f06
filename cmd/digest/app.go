package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"trending-digest/artifact"
	"trending-digest/comments"
	"trending-digest/config"
	"trending-digest/digest"
	"trending-digest/export"
	"trending-digest/history"
	"trending-digest/hn"
	"trending-digest/metrics"
	"trending-digest/runlock"
	"trending-digest/scraper"
	"trending-digest/storage"
	"trending-digest/summarizer"
	"trending-digest/trending"
)

// historyStore is what the history command reads.
type historyStore interface {
	history.Source
	RepoID(ctx context.Context, fullName string) (int64, error)
	StoryExists(ctx context.Context, id int64) (bool, error)
}

// app holds the wired components for one command invocation.
type app struct {
	cfg     config.Config
	store   *storage.Store
	runner  *digest.Runner
	metrics *metrics.Metrics
	closers []func() error
}

// setup loads config and wires every component. Without live, no generator
// is created and nothing is fetched.
func setup(ctx context.Context, cfgPath string, live bool) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	setupLogging(cfg.LogLevel)
	slog.Info("config loaded", "driver", cfg.Database.Driver, "provider", cfg.LLM.Provider, "model", cfg.LLM.Model, "lock", cfg.Lock.Backend)

	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, store: store, closers: []func() error{store.Close}}

	lock, err := a.newLocker(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.metrics = metrics.New()
	cache := artifact.New(store, cfg.SummaryRefreshDays,
		artifact.WithLocation(loc),
		artifact.WithObserver(a.metrics.ObserveArtifact),
	)

	httpClient, llmClient := httpClients(cfg)
	deps := digest.Deps{
		Lock:     lock,
		Store:    store,
		Cache:    cache,
		Exporter: export.NewWriter(cfg.OutputDir),
		Recorder: a.metrics,
	}
	if live {
		gen, err := summarizer.New(cfg.LLM.Provider, cfg.LLM.APIKey, cfg.LLM.Model, llmClient)
		if err != nil {
			a.Close()
			return nil, err
		}
		deps.Generator = gen
		deps.Trending = trending.NewClient(httpClient)
		deps.HN = hn.NewClient(httpClient, hn.WithRateLimit(cfg.HN.RequestsPerSecond))
		deps.Scraper = scraper.NewScraper(cfg.FetchTimeout())
	}

	a.runner = digest.NewRunner(deps, digest.Config{
		Model:         cfg.LLM.Model,
		HNMaxItems:    cfg.HN.MaxItems,
		HNWorkers:     cfg.HN.FetchWorkers,
		HNRenderLimit: cfg.HN.RenderLimit,
		GHRenderLimit: cfg.GH.RenderLimit,
		Walk: comments.WalkOptions{
			MaxNodes:     cfg.Comments.MaxNodes,
			MaxDepth:     cfg.Comments.MaxDepth,
			MinTextLen:   cfg.Comments.MinTextLen,
			FetchTimeout: cfg.FetchTimeout(),
		},
		Sample: comments.SampleOptions{
			Size:         cfg.Comments.SampleSize,
			MaxPerBranch: cfg.Comments.MaxPerBranch,
		},
		BackfillDir: cfg.BackfillDir,
		Location:    loc,
	})
	return a, nil
}

// httpClients returns the client for feed and page fetches and the one for
// generation calls, which may run far longer.
func httpClients(cfg config.Config) (fetch, llm *http.Client) {
	return &http.Client{Timeout: cfg.FetchTimeout()}, &http.Client{Timeout: cfg.LLMTimeout()}
}

func openStore(cfg config.Config) (*storage.Store, error) {
	store, err := storage.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	slog.Info("storage initialized", "driver", cfg.Database.Driver)
	return store, nil
}

// newLocker picks the run lock: Redis when configured, a Postgres advisory
// lock on Postgres, and a lease row otherwise.
func (a *app) newLocker(ctx context.Context) (runlock.Locker, error) {
	switch {
	case a.cfg.Lock.Backend == "redis":
		client, err := runlock.Connect(ctx, a.cfg.Lock.RedisURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		return runlock.NewRedisLock(client, a.cfg.Lock.Name, a.cfg.Lock.StaleAfter), nil
	case a.store.Dialect() == storage.Postgres:
		lock, err := a.store.NewAdvisoryLock(storage.AdvisoryLockKey)
		if err != nil {
			return nil, err
		}
		return lock, nil
	default:
		return a.store.NewLeaseLock(a.cfg.Lock.Name, a.cfg.Lock.StaleAfter), nil
	}
}

// finish writes the metrics textfile and passes err through.
func (a *app) finish(err error) error {
	if werr := a.metrics.WriteTextfile(a.cfg.MetricsTextfile); werr != nil {
		slog.Warn("writing metrics textfile", "path", a.cfg.MetricsTextfile, "error", werr)
	}
	return err
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("close failed", "error", err)
		}
	}
}
