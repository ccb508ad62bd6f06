package trending

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

var (
	dayDir     = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	rankPrefix = regexp.MustCompile(`^(\d+)\.`)
)

// LegacyPage is a previously published daily page on disk.
type LegacyPage struct {
	Day  time.Time
	Path string
}

// FindLegacyPages lists <dir>/YYYY-MM-DD/index.html files in date order.
// A missing dir yields no pages.
func FindLegacyPages(dir string) ([]LegacyPage, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading backfill dir: %w", err)
	}

	var pages []LegacyPage
	for _, e := range entries {
		if !e.IsDir() || !dayDir.MatchString(e.Name()) {
			continue
		}
		day, err := time.Parse("2006-01-02", e.Name())
		if err != nil {
			continue
		}
		path := filepath.Join(dir, e.Name(), "index.html")
		if _, err := os.Stat(path); err != nil {
			continue
		}
		pages = append(pages, LegacyPage{Day: day, Path: path})
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].Day.Before(pages[j].Day) })
	return pages, nil
}

// ParseLegacyPage reads the repository sections of a published daily page,
// including each section's summary paragraphs. Rows are ordered by rank.
func ParseLegacyPage(r io.Reader) ([]Repo, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parsing legacy page: %w", err)
	}

	var repos []Repo
	doc.Find("section.repo").Each(func(_ int, sec *goquery.Selection) {
		heading := sec.Find("h3").First()
		link := heading.Find("a").First()
		if heading.Length() == 0 || link.Length() == 0 {
			return
		}

		rank := len(repos) + 1
		if m := rankPrefix.FindStringSubmatch(normalize(heading.Text())); m != nil {
			rank, _ = strconv.Atoi(m[1])
		}

		name := normalize(link.Text())
		href, _ := link.Attr("href")
		u := normalize(href)
		if u == "" {
			u = "https://github.com/" + name
		}

		var summary []string
		sec.Find("div.ai-summary p").Each(func(_ int, p *goquery.Selection) {
			if t := normalize(p.Text()); t != "" {
				summary = append(summary, t)
			}
		})

		repos = append(repos, Repo{
			Rank:        rank,
			Name:        name,
			URL:         u,
			Description: textOr(sec.Find("p.description").First(), NoDescription),
			Language:    textOr(sec.Find("span.language").First(), UnknownLanguage),
			Stars:       textOr(sec.Find("span.stars").First(), NoStars),
			PeriodStars: textOr(sec.Find("span.today").First(), ""),
			Summary:     strings.Join(summary, "\n\n"),
		})
	})

	sort.SliceStable(repos, func(i, j int) bool { return repos[i].Rank < repos[j].Rank })
	return repos, nil
}
