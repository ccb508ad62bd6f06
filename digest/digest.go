// Package digest coordinates a daily run: it takes the run lock, ingests both
// ranked feeds, enriches the day's rows with history and generated text, and
// exports them.
package digest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"trending-digest/artifact"
	"trending-digest/comments"
	"trending-digest/export"
	"trending-digest/history"
	"trending-digest/hn"
	"trending-digest/runlock"
	"trending-digest/storage"
	"trending-digest/summarizer"
	"trending-digest/trending"
)

// ErrNoRanking is returned when the daily trending fetch produced nothing, so
// nothing is published.
var ErrNoRanking = errors.New("daily trending ranking is empty")

// TrendingSource scrapes trending repositories and their READMEs.
type TrendingSource interface {
	Scrape(ctx context.Context, period string) ([]trending.Repo, error)
	Readme(ctx context.Context, repoPath string) string
}

// ContentScraper extracts readable content from URLs.
type ContentScraper interface {
	Scrape(ctx context.Context, url string) (string, error)
}

// Store provides persistence for runs, history and artifacts.
type Store interface {
	artifact.Store
	history.Source
	SaveRepoRun(ctx context.Context, day time.Time, period, source string, repos []storage.Repo) (int64, error)
	SaveStoryRun(ctx context.Context, day time.Time, source string, stories []storage.Story) (int64, error)
	RepoEntries(ctx context.Context, day time.Time, period string) ([]storage.RepoEntry, error)
	StoryEntries(ctx context.Context, day time.Time) ([]storage.StoryEntry, error)
	RunDates(ctx context.Context, feed history.Feed) ([]time.Time, error)
	RepoID(ctx context.Context, fullName string) (int64, error)
	GetMeta(ctx context.Context, key string) (string, error)
	SetMeta(ctx context.Context, key, value string) error
	InsertArtifactForDay(ctx context.Context, a *artifact.Artifact, day time.Time, loc *time.Location) (bool, error)
}

// Exporter receives the enriched rows.
type Exporter interface {
	WriteRepoDay(day time.Time, rows []export.RepoRow) error
	WriteStoryDay(day time.Time, rows []export.StoryRow) error
	WriteRepoPages(days []time.Time) error
	WriteStoryPages(days []time.Time) error
}

// Recorder receives run metrics. *metrics.Metrics satisfies it.
type Recorder interface {
	ObserveComments(fetched, kept, sampled int)
	FetchFailed(source string)
	ObserveRun(mode string, start time.Time, err error)
	RunSkipped()
}

type nopRecorder struct{}

func (nopRecorder) ObserveComments(int, int, int)       {}
func (nopRecorder) FetchFailed(string)                  {}
func (nopRecorder) ObserveRun(string, time.Time, error) {}
func (nopRecorder) RunSkipped()                         {}

// Config holds digest workflow configuration.
type Config struct {
	Model         string // artifact model when no Generator is set; otherwise Generator.Model() is used
	HNMaxItems    int    // 0 fetches the whole top-stories list
	HNWorkers     int
	HNRenderLimit int // 0 renders all
	GHRenderLimit int
	Walk          comments.WalkOptions
	Sample        comments.SampleOptions
	BackfillDir   string
	Location      *time.Location
}

// Deps are the Runner's collaborators. Generator and Scraper may be nil in
// regenerate-only deployments; Recorder defaults to a no-op.
type Deps struct {
	Lock      runlock.Locker
	Store     Store
	Cache     *artifact.Cache
	Trending  TrendingSource
	HN        hn.Client
	Scraper   ContentScraper
	Generator summarizer.Generator
	Exporter  Exporter
	Recorder  Recorder
}

// Runner orchestrates the end-to-end digest workflow.
type Runner struct {
	lock     runlock.Locker
	store    Store
	cache    *artifact.Cache
	tracker  *history.Tracker
	trending TrendingSource
	hn       hn.Client
	walker   *comments.Walker
	scraper  ContentScraper
	gen      summarizer.Generator
	export   Exporter
	rec      Recorder
	config   Config
	now      func() time.Time
}

// NewRunner creates a Runner with all dependencies.
func NewRunner(d Deps, cfg Config) *Runner {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if d.Recorder == nil {
		d.Recorder = nopRecorder{}
	}
	if d.Generator != nil {
		cfg.Model = d.Generator.Model()
	}
	r := &Runner{
		lock:     d.Lock,
		store:    d.Store,
		cache:    d.Cache,
		tracker:  history.NewTracker(d.Store),
		trending: d.Trending,
		hn:       d.HN,
		scraper:  d.Scraper,
		gen:      d.Generator,
		export:   d.Exporter,
		rec:      d.Recorder,
		config:   cfg,
		now:      time.Now,
	}
	if d.HN != nil {
		r.walker = comments.NewWalker(d.HN, cfg.Walk)
	}
	return r
}

// Today is the current calendar date in the configured zone, as midnight UTC.
func (r *Runner) Today() time.Time {
	y, m, d := r.now().In(r.config.Location).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Run executes the daily workflow for today under the run lock. If another
// run holds the lock it returns nil without doing anything.
func (r *Runner) Run(ctx context.Context) error {
	return r.locked(ctx, "run", func(ctx context.Context) error {
		return r.runDay(ctx, r.Today())
	})
}

// Regenerate rebuilds every exported day from stored data without scraping or
// generating, using the newest artifacts regardless of age.
func (r *Runner) Regenerate(ctx context.Context) error {
	return r.locked(ctx, "regenerate", func(ctx context.Context) error {
		if err := r.Backfill(ctx); err != nil {
			return err
		}
		return r.publish(ctx, time.Time{})
	})
}

func (r *Runner) locked(ctx context.Context, mode string, fn func(context.Context) error) error {
	start := r.now()
	ran, err := runlock.WithLock(ctx, r.lock, fn)
	if !ran && err == nil {
		slog.Info("another run holds the lock, skipping", "mode", mode)
		r.rec.RunSkipped()
		return nil
	}
	r.rec.ObserveRun(mode, start, err)
	return err
}

func (r *Runner) runDay(ctx context.Context, day time.Time) error {
	slog.Info("digest run starting", "day", export.FormatDay(day))

	if err := r.Backfill(ctx); err != nil {
		return err
	}

	daily, err := r.ingestRepos(ctx, day)
	if err != nil {
		return err
	}
	if daily == 0 {
		slog.Error("daily trending scrape returned no repos, skipping generation", "day", export.FormatDay(day))
		return ErrNoRanking
	}

	if err := r.ingestStories(ctx, day); err != nil {
		return err
	}

	if err := r.publish(ctx, day); err != nil {
		return err
	}
	slog.Info("digest run complete", "day", export.FormatDay(day))
	return nil
}

// ingestRepos fetches and stores every trending period and reports how many
// daily rows were stored. A failed or empty fetch leaves that period's stored
// run untouched.
func (r *Runner) ingestRepos(ctx context.Context, day time.Time) (int, error) {
	daily := 0
	for _, period := range trending.Periods {
		repos, err := r.trending.Scrape(ctx, period)
		if err != nil {
			slog.Error("trending scrape failed", "period", period, "error", err)
			r.rec.FetchFailed("github")
			continue
		}
		if len(repos) == 0 {
			slog.Warn("trending scrape returned no repos", "period", period)
			continue
		}
		if _, err := r.store.SaveRepoRun(ctx, day, period, storage.SourceLive, toStorageRepos(repos)); err != nil {
			return 0, fmt.Errorf("saving %s trending run: %w", period, err)
		}
		if period == storage.PeriodDaily {
			daily = len(repos)
		}
	}
	return daily, nil
}

func (r *Runner) ingestStories(ctx context.Context, day time.Time) error {
	stories, err := hn.FetchTopStories(ctx, r.hn, r.config.HNMaxItems, r.config.HNWorkers)
	if err != nil {
		slog.Error("top stories fetch failed", "error", err)
		r.rec.FetchFailed("hn")
		return nil
	}
	if len(stories) == 0 {
		slog.Warn("top stories fetch returned no stories")
		return nil
	}
	if _, err := r.store.SaveStoryRun(ctx, day, storage.SourceLive, toStorageStories(stories)); err != nil {
		return fmt.Errorf("saving top stories run: %w", err)
	}
	return nil
}

// publish exports every stored day and the page lists. Rows for today are
// generated as needed; all other days use stored artifacts only. A zero today
// generates nothing.
func (r *Runner) publish(ctx context.Context, today time.Time) error {
	repoDays, err := r.store.RunDates(ctx, history.FeedRepos)
	if err != nil {
		return err
	}
	storyDays, err := r.store.RunDates(ctx, history.FeedStories)
	if err != nil {
		return err
	}

	for _, day := range repoDays {
		rows, err := r.RepoRows(ctx, day, day.Equal(today))
		if err != nil {
			return err
		}
		if err := r.export.WriteRepoDay(day, rows); err != nil {
			return err
		}
	}
	for _, day := range storyDays {
		rows, err := r.StoryRows(ctx, day, day.Equal(today))
		if err != nil {
			return err
		}
		if err := r.export.WriteStoryDay(day, rows); err != nil {
			return err
		}
	}

	if err := r.export.WriteRepoPages(repoDays); err != nil {
		return err
	}
	if err := r.export.WriteStoryPages(storyDays); err != nil {
		return err
	}
	slog.Info("export complete", "repo_days", len(repoDays), "story_days", len(storyDays))
	return nil
}

func toStorageRepos(repos []trending.Repo) []storage.Repo {
	out := make([]storage.Repo, len(repos))
	for i, r := range repos {
		out[i] = storage.Repo{
			Rank:        r.Rank,
			FullName:    r.Name,
			URL:         r.URL,
			Description: r.Description,
			Language:    r.Language,
			Stars:       r.Stars,
			PeriodStars: r.PeriodStars,
		}
	}
	return out
}

func toStorageStories(stories []hn.Story) []storage.Story {
	out := make([]storage.Story, len(stories))
	for i, s := range stories {
		out[i] = storage.Story{
			Rank:         s.Rank,
			ID:           int64(s.ID),
			Title:        s.Title,
			URL:          s.URL,
			Author:       s.Author,
			Score:        s.Score,
			CommentCount: s.CommentCount,
			Time:         s.Time,
			Text:         s.Text,
			Type:         "story",
		}
	}
	return out
}
