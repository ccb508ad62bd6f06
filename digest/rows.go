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
	"trending-digest/storage"
	"trending-digest/summarizer"
	"trending-digest/trending"
)

var errNoGenerator = errors.New("no generator configured")

// RepoRows loads the daily repositories stored for day and enriches them with
// history and a summary. With generate false, summaries come from storage only.
func (r *Runner) RepoRows(ctx context.Context, day time.Time, generate bool) ([]export.RepoRow, error) {
	entries, err := r.store.RepoEntries(ctx, day, storage.PeriodDaily)
	if err != nil {
		return nil, err
	}
	entries = limit(entries, r.config.GHRenderLimit)

	rows := make([]export.RepoRow, 0, len(entries))
	for _, e := range entries {
		stats, err := r.tracker.Stats(ctx, history.FeedRepos, e.RepoID, day)
		if err != nil {
			return nil, err
		}

		key := artifact.Key{
			Kind:          artifact.KindRepoSummary,
			EntityID:      e.RepoID,
			Model:         r.config.Model,
			PromptVersion: summarizer.RepoPromptVersion,
		}
		summary, err := r.resolve(ctx, key, day, generate, r.repoSummary(e))
		if err != nil {
			return nil, err
		}

		rows = append(rows, export.RepoRow{
			Rank:         e.Rank,
			RepoID:       e.RepoID,
			Name:         e.Name,
			URL:          e.URL,
			Description:  e.Description,
			Language:     e.Language,
			Stars:        e.Stars,
			PeriodStars:  e.PeriodStars,
			Summary:      summary.Body(),
			EarliestSeen: export.FormatDay(stats.Earliest),
			StreakDays:   stats.Streak,
			SeenBefore:   stats.SeenBefore,
		})
	}
	return rows, nil
}

// StoryRows loads the top stories stored for day and enriches them with
// history, a summary and a comment analysis.
func (r *Runner) StoryRows(ctx context.Context, day time.Time, generate bool) ([]export.StoryRow, error) {
	entries, err := r.store.StoryEntries(ctx, day)
	if err != nil {
		return nil, err
	}
	entries = limit(entries, r.config.HNRenderLimit)

	rows := make([]export.StoryRow, 0, len(entries))
	for _, e := range entries {
		stats, err := r.tracker.Stats(ctx, history.FeedStories, e.ItemID, day)
		if err != nil {
			return nil, err
		}

		summary, err := r.resolve(ctx, artifact.Key{
			Kind:          artifact.KindStorySummary,
			EntityID:      e.ItemID,
			Model:         r.config.Model,
			PromptVersion: summarizer.StoryPromptVersion,
		}, day, generate, r.storySummary(e))
		if err != nil {
			return nil, err
		}

		analysis, err := r.resolve(ctx, artifact.Key{
			Kind:          artifact.KindCommentAnalysis,
			EntityID:      e.ItemID,
			Model:         r.config.Model,
			PromptVersion: summarizer.CommentPromptVersion,
			SampleSize:    r.config.Sample.Size,
		}, day, generate, r.commentAnalysis(e))
		if err != nil {
			return nil, err
		}

		row := export.StoryRow{
			Rank:            e.Rank,
			ItemID:          e.ItemID,
			Title:           e.Title,
			URL:             e.URL,
			Domain:          export.Domain(e.URL),
			DiscussionURL:   hn.DiscussionURL(int(e.ItemID)),
			Author:          e.Author,
			Score:           e.Score,
			CommentCount:    e.CommentCount,
			ItemTime:        e.Time,
			Summary:         summary.Body(),
			CommentAnalysis: analysis.Body(),
			EarliestSeen:    export.FormatDay(stats.Earliest),
			StreakDays:      stats.Streak,
			SeenBefore:      stats.SeenBefore,
		}
		if analysis.Artifact != nil {
			row.CommentAnalysisSampled = analysis.Artifact.SampledCount
			row.CommentAnalysisTotal = analysis.Artifact.TotalCount
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (r *Runner) resolve(ctx context.Context, key artifact.Key, day time.Time, generate bool, gen artifact.GenerateFunc) (artifact.Result, error) {
	if !generate {
		return r.cache.Lookup(ctx, key, day)
	}
	return r.cache.Resolve(ctx, key, day, gen)
}

func (r *Runner) repoSummary(e storage.RepoEntry) artifact.GenerateFunc {
	return func(ctx context.Context) (artifact.Generated, error) {
		if r.gen == nil {
			return artifact.Generated{}, errNoGenerator
		}
		readme := r.trending.Readme(ctx, e.Name)
		body, err := r.gen.Generate(ctx, summarizer.RepoPrompt(summarizer.RepoInput{
			Name:        e.Name,
			Description: e.Description,
			Readme:      trending.CleanReadme(readme),
		}))
		if err != nil {
			return artifact.Generated{}, fmt.Errorf("summarizing %s: %w", e.Name, err)
		}
		return artifact.Generated{Body: body, InputHash: trending.ReadmeHash(readme)}, nil
	}
}

func (r *Runner) storySummary(e storage.StoryEntry) artifact.GenerateFunc {
	return func(ctx context.Context) (artifact.Generated, error) {
		if r.gen == nil {
			return artifact.Generated{}, errNoGenerator
		}
		text := comments.CleanText(e.Text)
		if text == "" && e.URL != "" && r.scraper != nil {
			scraped, err := r.scraper.Scrape(ctx, e.URL)
			if err != nil {
				slog.Warn("article scrape failed, summarizing without text", "item_id", e.ItemID, "url", e.URL, "error", err)
			} else {
				text = scraped
			}
		}
		body, err := r.gen.Generate(ctx, summarizer.StoryPrompt(summarizer.StoryInput{
			Title:        e.Title,
			URL:          e.URL,
			Author:       e.Author,
			Score:        e.Score,
			CommentCount: e.CommentCount,
			Text:         text,
		}))
		if err != nil {
			return artifact.Generated{}, fmt.Errorf("summarizing story %d: %w", e.ItemID, err)
		}
		return artifact.Generated{Body: body}, nil
	}
}

func (r *Runner) commentAnalysis(e storage.StoryEntry) artifact.GenerateFunc {
	return func(ctx context.Context) (artifact.Generated, error) {
		if r.walker == nil {
			return artifact.Generated{}, artifact.ErrNoInput
		}
		walk := r.walker.Walk(ctx, int(e.ItemID), e.CommentCount)
		sample := comments.Sample(walk.Nodes, r.config.Sample)
		r.rec.ObserveComments(walk.Fetched, len(walk.Nodes), len(sample))
		if len(sample) == 0 {
			return artifact.Generated{}, artifact.ErrNoInput
		}
		if r.gen == nil {
			return artifact.Generated{}, errNoGenerator
		}

		body, err := r.gen.Generate(ctx, summarizer.CommentPrompt(summarizer.CommentInput{
			Title:         e.Title,
			URL:           e.URL,
			DiscussionURL: hn.DiscussionURL(int(e.ItemID)),
			Total:         walk.Total,
			Sample:        sample,
		}))
		if err != nil {
			return artifact.Generated{}, fmt.Errorf("analyzing comments of %d: %w", e.ItemID, err)
		}
		return artifact.Generated{Body: body, SampledCount: len(sample), TotalCount: walk.Total}, nil
	}
}

func limit[T any](s []T, n int) []T {
	if n > 0 && len(s) > n {
		return s[:n]
	}
	return s
}
