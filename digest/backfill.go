package digest

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"trending-digest/artifact"
	"trending-digest/storage"
	"trending-digest/summarizer"
	"trending-digest/trending"
)

// BackfillDoneKey is the app_meta flag set once legacy pages are imported.
const BackfillDoneKey = "gh_backfill_completed"

// Backfill imports previously published daily trending pages from the
// configured directory once. Each page becomes a daily run with source
// "backfill", and its summaries are stored as artifacts dated that day in the
// configured zone unless one already exists for the day.
func (r *Runner) Backfill(ctx context.Context) error {
	done, err := r.store.GetMeta(ctx, BackfillDoneKey)
	if err != nil {
		return err
	}
	if done == "1" || r.config.BackfillDir == "" {
		return nil
	}

	pages, err := trending.FindLegacyPages(r.config.BackfillDir)
	if err != nil {
		return err
	}
	slog.Info("backfilling legacy trending pages", "dir", r.config.BackfillDir, "pages", len(pages))

	imported := 0
	for _, p := range pages {
		repos, err := parsePage(p.Path)
		if err != nil {
			slog.Warn("skipping unreadable legacy page", "path", p.Path, "error", err)
			continue
		}
		if len(repos) == 0 {
			continue
		}
		if _, err := r.store.SaveRepoRun(ctx, p.Day, storage.PeriodDaily, storage.SourceBackfill, toStorageRepos(repos)); err != nil {
			return fmt.Errorf("backfilling %s: %w", p.Path, err)
		}

		for _, repo := range repos {
			if repo.Summary == "" {
				continue
			}
			id, err := r.store.RepoID(ctx, repo.Name)
			if err != nil {
				return err
			}
			if id == 0 {
				continue
			}
			_, err = r.store.InsertArtifactForDay(ctx, &artifact.Artifact{
				Key: artifact.Key{
					Kind:          artifact.KindRepoSummary,
					EntityID:      id,
					Model:         r.config.Model,
					PromptVersion: summarizer.RepoPromptVersion,
				},
				Body: repo.Summary,
			}, p.Day, r.config.Location)
			if err != nil {
				return err
			}
		}
		imported++
	}

	if err := r.store.SetMeta(ctx, BackfillDoneKey, "1"); err != nil {
		return err
	}
	slog.Info("backfill complete", "imported_pages", imported)
	return nil
}

func parsePage(path string) ([]trending.Repo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return trending.ParseLegacyPage(f)
}
