package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"trending-digest/history"
)

// Run sources.
const (
	SourceLive     = "live"
	SourceBackfill = "backfill"
)

// Periods of the trending feed.
const (
	PeriodDaily   = "daily"
	PeriodWeekly  = "weekly"
	PeriodMonthly = "monthly"
)

// FeedTopStories is the only discussion feed tracked.
const FeedTopStories = "topstories"

// Repo is one ranked repository as scraped.
type Repo struct {
	Rank        int
	FullName    string
	URL         string
	Description string
	Language    string
	Stars       string
	PeriodStars string
}

// Story is one ranked story as fetched.
type Story struct {
	Rank         int
	ID           int64
	Title        string
	URL          string
	Author       string
	Score        int
	CommentCount int
	Time         int64
	Text         string
	Type         string
}

// RepoEntry is a stored repository appearance joined with its metadata.
type RepoEntry struct {
	Rank        int
	RepoID      int64
	Name        string
	URL         string
	Description string
	Language    string
	Stars       string
	PeriodStars string
}

// StoryEntry is a stored story appearance joined with its metadata.
type StoryEntry struct {
	Rank         int
	ItemID       int64
	Title        string
	URL          string
	Author       string
	Score        int
	CommentCount int
	Time         int64
	Text         string
}

// SaveRepoRun records the ranked repositories of one trending period on day.
// An existing run for (day, period) is reused and its entries replaced.
// Repositories without a name are skipped; a missing rank falls back to list position.
// Repeated names or ranks keep their first occurrence.
func (s *Store) SaveRepoRun(ctx context.Context, day time.Time, period, source string, repos []Repo) (int64, error) {
	var runID int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := s.now().Unix()
		err := s.queryRow(ctx, tx,
			`INSERT INTO gh_runs (run_date, period, source, fetched_at, repo_count)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (run_date, period)
			 DO UPDATE SET source = excluded.source, fetched_at = excluded.fetched_at, repo_count = excluded.repo_count
			 RETURNING id`,
			formatDay(day), period, source, now, len(repos),
		).Scan(&runID)
		if err != nil {
			return fmt.Errorf("upsert run: %w", err)
		}

		if _, err := s.exec(ctx, tx, `DELETE FROM gh_entries WHERE run_id = ?`, runID); err != nil {
			return fmt.Errorf("clear entries: %w", err)
		}

		upsertRepo := `INSERT INTO gh_repos (full_name, url, description, language, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (full_name) DO UPDATE SET
			` + updateClause("gh_repos", repoMerge) + `
			RETURNING id`

		inserted := 0
		seenName := make(map[string]bool, len(repos))
		seenRank := make(map[int]bool, len(repos))
		for i, r := range repos {
			name := normalize(r.FullName)
			if name == "" || seenName[name] {
				continue
			}
			rank := r.Rank
			if rank <= 0 {
				rank = i + 1
			}
			if seenRank[rank] {
				continue
			}
			seenName[name], seenRank[rank] = true, true
			url := orDefault(r.URL, "https://github.com/"+name)
			desc := orDefault(r.Description, NoDescription)
			lang := orDefault(r.Language, UnknownLanguage)

			var repoID int64
			if err := s.queryRow(ctx, tx, upsertRepo, name, url, desc, lang, now).Scan(&repoID); err != nil {
				return fmt.Errorf("upsert repo %s: %w", name, err)
			}

			if _, err := s.exec(ctx, tx,
				`INSERT INTO gh_entries (run_id, repo_id, rank, stars_text, period_stars_text, description, language)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				runID, repoID, rank, orDefault(r.Stars, NoStars), normalize(r.PeriodStars), desc, lang,
			); err != nil {
				return fmt.Errorf("insert entry %s: %w", name, err)
			}
			inserted++
		}

		if _, err := s.exec(ctx, tx, `UPDATE gh_runs SET repo_count = ? WHERE id = ?`, inserted, runID); err != nil {
			return fmt.Errorf("update run count: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("storage: save %s run for %s: %w", period, formatDay(day), err)
	}
	return runID, nil
}

// SaveStoryRun records the ranked top stories on day, replacing any previous entries for that day.
func (s *Store) SaveStoryRun(ctx context.Context, day time.Time, source string, stories []Story) (int64, error) {
	var runID int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := s.now().Unix()
		err := s.queryRow(ctx, tx,
			`INSERT INTO hn_runs (run_date, feed, source, fetched_at, item_count)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (run_date, feed)
			 DO UPDATE SET source = excluded.source, fetched_at = excluded.fetched_at, item_count = excluded.item_count
			 RETURNING id`,
			formatDay(day), FeedTopStories, source, now, len(stories),
		).Scan(&runID)
		if err != nil {
			return fmt.Errorf("upsert run: %w", err)
		}

		if _, err := s.exec(ctx, tx, `DELETE FROM hn_entries WHERE run_id = ?`, runID); err != nil {
			return fmt.Errorf("clear entries: %w", err)
		}

		upsertItem := `INSERT INTO hn_items (id, title, url, author, score, comment_count, item_time, text, item_type, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
			` + updateClause("hn_items", storyMerge)

		inserted := 0
		seenID := make(map[int64]bool, len(stories))
		seenRank := make(map[int]bool, len(stories))
		for i, st := range stories {
			if st.ID <= 0 || seenID[st.ID] {
				continue
			}
			rank := st.Rank
			if rank <= 0 {
				rank = i + 1
			}
			if seenRank[rank] {
				continue
			}
			seenID[st.ID], seenRank[rank] = true, true
			itemTime := st.Time
			if itemTime < 0 {
				itemTime = 0
			}

			if _, err := s.exec(ctx, tx, upsertItem,
				st.ID,
				orDefault(st.Title, Untitled),
				normalize(st.URL),
				orDefault(st.Author, UnknownAuthor),
				st.Score,
				st.CommentCount,
				itemTime,
				st.Text,
				orDefault(st.Type, "story"),
				now,
			); err != nil {
				return fmt.Errorf("upsert item %d: %w", st.ID, err)
			}

			if _, err := s.exec(ctx, tx,
				`INSERT INTO hn_entries (run_id, item_id, rank) VALUES (?, ?, ?)`,
				runID, st.ID, rank,
			); err != nil {
				return fmt.Errorf("insert entry %d: %w", st.ID, err)
			}
			inserted++
		}

		if _, err := s.exec(ctx, tx, `UPDATE hn_runs SET item_count = ? WHERE id = ?`, inserted, runID); err != nil {
			return fmt.Errorf("update run count: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("storage: save story run for %s: %w", formatDay(day), err)
	}
	return runID, nil
}

// RepoEntries lists the stored entries of one trending period on day, ordered by rank.
// Snapshot fields that hold a placeholder fall back to the repository's current metadata.
func (s *Store) RepoEntries(ctx context.Context, day time.Time, period string) ([]RepoEntry, error) {
	rows, err := s.query(ctx, s.db,
		`SELECT ge.rank, r.id, r.full_name, r.url, ge.description, r.description, ge.language, r.language,
		        ge.stars_text, ge.period_stars_text
		 FROM gh_entries ge
		 JOIN gh_runs gr ON ge.run_id = gr.id
		 JOIN gh_repos r ON ge.repo_id = r.id
		 WHERE gr.run_date = ? AND gr.period = ?
		 ORDER BY ge.rank`,
		formatDay(day), period,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list %s entries for %s: %w", period, formatDay(day), err)
	}
	defer rows.Close()

	var entries []RepoEntry
	for rows.Next() {
		var (
			e                  RepoEntry
			repoDesc, repoLang string
		)
		if err := rows.Scan(&e.Rank, &e.RepoID, &e.Name, &e.URL, &e.Description, &repoDesc, &e.Language, &repoLang, &e.Stars, &e.PeriodStars); err != nil {
			return nil, fmt.Errorf("storage: scan repo entry: %w", err)
		}
		if !informative(repoMerge, "description", e.Description) {
			e.Description = orDefault(repoDesc, NoDescription)
		}
		if !informative(repoMerge, "language", e.Language) {
			e.Language = orDefault(repoLang, UnknownLanguage)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: iterate repo entries: %w", err)
	}
	return entries, nil
}

// StoryEntries lists the stored top stories on day, ordered by rank.
func (s *Store) StoryEntries(ctx context.Context, day time.Time) ([]StoryEntry, error) {
	rows, err := s.query(ctx, s.db,
		`SELECT he.rank, hi.id, hi.title, hi.url, hi.author, hi.score, hi.comment_count, hi.item_time, hi.text
		 FROM hn_entries he
		 JOIN hn_runs hr ON he.run_id = hr.id
		 JOIN hn_items hi ON he.item_id = hi.id
		 WHERE hr.run_date = ? AND hr.feed = ?
		 ORDER BY he.rank`,
		formatDay(day), FeedTopStories,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list story entries for %s: %w", formatDay(day), err)
	}
	defer rows.Close()

	var entries []StoryEntry
	for rows.Next() {
		var e StoryEntry
		if err := rows.Scan(&e.Rank, &e.ItemID, &e.Title, &e.URL, &e.Author, &e.Score, &e.CommentCount, &e.Time, &e.Text); err != nil {
			return nil, fmt.Errorf("storage: scan story entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: iterate story entries: %w", err)
	}
	return entries, nil
}

// RunDates returns the days with a daily run for the feed, newest first.
func (s *Store) RunDates(ctx context.Context, feed history.Feed) ([]time.Time, error) {
	var q string
	switch feed {
	case history.FeedRepos:
		q = `SELECT run_date FROM gh_runs WHERE period = 'daily' ORDER BY run_date DESC`
	case history.FeedStories:
		q = `SELECT run_date FROM hn_runs WHERE feed = 'topstories' ORDER BY run_date DESC`
	default:
		return nil, fmt.Errorf("storage: unknown feed %q", feed)
	}
	return s.scanDays(ctx, q)
}

// AppearanceDates lists the days an entity appeared in its daily series, up to and including upTo, ascending.
func (s *Store) AppearanceDates(ctx context.Context, feed history.Feed, entityID int64, upTo time.Time) ([]time.Time, error) {
	var q string
	switch feed {
	case history.FeedRepos:
		q = `SELECT gr.run_date FROM gh_entries ge
			 JOIN gh_runs gr ON ge.run_id = gr.id
			 WHERE ge.repo_id = ? AND gr.period = 'daily' AND gr.run_date <= ?
			 ORDER BY gr.run_date`
	case history.FeedStories:
		q = `SELECT hr.run_date FROM hn_entries he
			 JOIN hn_runs hr ON he.run_id = hr.id
			 WHERE he.item_id = ? AND hr.feed = 'topstories' AND hr.run_date <= ?
			 ORDER BY hr.run_date`
	default:
		return nil, fmt.Errorf("storage: unknown feed %q", feed)
	}
	return s.scanDays(ctx, q, entityID, formatDay(upTo))
}

// RepoID looks up a repository by full name. Returns 0 if it is not known.
func (s *Store) RepoID(ctx context.Context, fullName string) (int64, error) {
	var id int64
	err := s.queryRow(ctx, s.db, `SELECT id FROM gh_repos WHERE full_name = ?`, normalize(fullName)).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("storage: get repo %q: %w", fullName, err)
	}
	return id, nil
}

// StoryExists reports whether an item id has ever been stored.
func (s *Store) StoryExists(ctx context.Context, id int64) (bool, error) {
	var count int
	if err := s.queryRow(ctx, s.db, `SELECT COUNT(*) FROM hn_items WHERE id = ?`, id).Scan(&count); err != nil {
		return false, fmt.Errorf("storage: check item %d: %w", id, err)
	}
	return count > 0, nil
}

func (s *Store) scanDays(ctx context.Context, q string, args ...any) ([]time.Time, error) {
	rows, err := s.query(ctx, s.db, q, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: list dates: %w", err)
	}
	defer rows.Close()

	var days []time.Time
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("storage: scan date: %w", err)
		}
		d, err := parseDay(raw)
		if err != nil {
			return nil, fmt.Errorf("storage: parse date %q: %w", raw, err)
		}
		days = append(days, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: iterate dates: %w", err)
	}
	return days, nil
}
