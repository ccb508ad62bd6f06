// Package export writes enriched daily rows as JSON for the site renderer.
//
// Layout under the output directory:
//
//	YYYY-MM-DD/repos.json    daily trending repositories
//	pages.json               {"pages": [...]} repository days, newest first
//	hn/YYYY-MM-DD/stories.json
//	hn/pages.json
package export

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const dayLayout = "2006-01-02"

// RepoRow is one rendered repository.
type RepoRow struct {
	Rank         int    `json:"rank"`
	RepoID       int64  `json:"repo_id"`
	Name         string `json:"name"`
	URL          string `json:"url"`
	Description  string `json:"description"`
	Language     string `json:"language"`
	Stars        string `json:"stars"`
	PeriodStars  string `json:"period_stars"`
	Summary      string `json:"summary"`
	EarliestSeen string `json:"earliest_seen,omitempty"`
	StreakDays   int    `json:"streak_days"`
	SeenBefore   bool   `json:"seen_before"`
}

// StoryRow is one rendered discussion story.
type StoryRow struct {
	Rank                   int    `json:"rank"`
	ItemID                 int64  `json:"item_id"`
	Title                  string `json:"title"`
	URL                    string `json:"url,omitempty"`
	Domain                 string `json:"domain,omitempty"`
	DiscussionURL          string `json:"discussion_url"`
	Author                 string `json:"author"`
	Score                  int    `json:"score"`
	CommentCount           int    `json:"comment_count"`
	ItemTime               int64  `json:"item_time,omitempty"`
	Summary                string `json:"summary"`
	CommentAnalysis        string `json:"comment_analysis"`
	CommentAnalysisSampled int    `json:"comment_analysis_sampled_comments"`
	CommentAnalysisTotal   int    `json:"comment_analysis_total_comments"`
	EarliestSeen           string `json:"earliest_seen,omitempty"`
	StreakDays             int    `json:"streak_days"`
	SeenBefore             bool   `json:"seen_before"`
}

type dayFile[T any] struct {
	Date        string    `json:"date"`
	GeneratedAt time.Time `json:"generated_at"`
	Rows        []T       `json:"rows"`
}

type pagesFile struct {
	Pages []string `json:"pages"`
}

// Writer writes export files under Dir.
type Writer struct {
	Dir string
	Now func() time.Time
}

// NewWriter creates a Writer rooted at dir.
func NewWriter(dir string) *Writer {
	return &Writer{Dir: dir, Now: time.Now}
}

// WriteRepoDay writes the repository rows for day.
func (w *Writer) WriteRepoDay(day time.Time, rows []RepoRow) error {
	if rows == nil {
		rows = []RepoRow{}
	}
	path := filepath.Join(w.Dir, day.Format(dayLayout), "repos.json")
	return writeJSON(path, dayFile[RepoRow]{Date: day.Format(dayLayout), GeneratedAt: w.Now().UTC(), Rows: rows})
}

// WriteStoryDay writes the story rows for day.
func (w *Writer) WriteStoryDay(day time.Time, rows []StoryRow) error {
	if rows == nil {
		rows = []StoryRow{}
	}
	path := filepath.Join(w.Dir, "hn", day.Format(dayLayout), "stories.json")
	return writeJSON(path, dayFile[StoryRow]{Date: day.Format(dayLayout), GeneratedAt: w.Now().UTC(), Rows: rows})
}

// WriteRepoPages writes the list of repository days, newest first.
func (w *Writer) WriteRepoPages(days []time.Time) error {
	return writeJSON(filepath.Join(w.Dir, "pages.json"), pages(days))
}

// WriteStoryPages writes the list of story days, newest first.
func (w *Writer) WriteStoryPages(days []time.Time) error {
	return writeJSON(filepath.Join(w.Dir, "hn", "pages.json"), pages(days))
}

func pages(days []time.Time) pagesFile {
	out := make([]string, 0, len(days))
	for _, d := range days {
		out = append(out, d.Format(dayLayout))
	}
	sort.Sort(sort.Reverse(sort.StringSlice(out)))
	return pagesFile{Pages: out}
}

// Domain returns the host of rawURL without a leading "www.".
func Domain(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Host), "www.")
}

// FormatDay renders a date for the earliest_seen field; the zero time renders as "".
func FormatDay(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dayLayout)
}

func writeJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	b = append(b, '\n')

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".export-*")
	if err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
