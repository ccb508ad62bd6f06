// Package trending scrapes the GitHub trending page and fetches repository READMEs.
package trending

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	DefaultTrendingURL = "https://github.com/trending"
	DefaultRawURL      = "https://raw.githubusercontent.com"
	userAgent          = "Mozilla/5.0 (compatible; TrendingDigest/2.0)"
	readmeTimeout      = 12 * time.Second
)

// Periods in ingest order.
var Periods = []string{"daily", "weekly", "monthly"}

// FetchLimits caps how many trending rows are kept per period.
var FetchLimits = map[string]int{"daily": 10, "weekly": 25, "monthly": 100}

// Placeholders for fields missing from a trending row.
const (
	NoDescription   = "No description"
	UnknownLanguage = "Unknown"
	NoStars         = "N/A"
)

// Repo is one row of the trending page.
type Repo struct {
	Rank        int
	Name        string // owner/name
	URL         string
	Description string
	Language    string
	Stars       string
	PeriodStars string
	Summary     string // only set for rows parsed from legacy pages
}

// Client fetches trending pages and raw README files.
type Client struct {
	client      *http.Client
	trendingURL string
	rawURL      string
}

// Option configures a Client.
type Option func(*Client)

// WithTrendingURL overrides the trending page location.
func WithTrendingURL(u string) Option {
	return func(c *Client) { c.trendingURL = strings.TrimRight(u, "/") }
}

// WithRawURL overrides the raw content host used for READMEs.
func WithRawURL(u string) Option {
	return func(c *Client) { c.rawURL = strings.TrimRight(u, "/") }
}

// NewClient creates a Client using the given HTTP client.
func NewClient(client *http.Client, opts ...Option) *Client {
	c := &Client{
		client:      client,
		trendingURL: DefaultTrendingURL,
		rawURL:      DefaultRawURL,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Scrape returns the trending repositories for period, at most FetchLimits[period].
// Rank is the row's position on the page.
func (c *Client) Scrape(ctx context.Context, period string) ([]Repo, error) {
	limit, ok := FetchLimits[period]
	if !ok {
		return nil, fmt.Errorf("unsupported trending period %q", period)
	}

	u := c.trendingURL + "?since=" + url.QueryEscape(period)
	body, status, err := c.get(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("fetching trending %s: %w", period, err)
	}
	defer body.Close()
	if status != http.StatusOK {
		return nil, fmt.Errorf("trending %s returned status %d", period, status)
	}

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("parsing trending %s: %w", period, err)
	}

	repos := ParseTrendingPage(doc, limit)
	slog.Info("trending scrape done", "period", period, "repos", len(repos))
	return repos, nil
}

// ParseTrendingPage extracts up to limit rows from a trending page document.
func ParseTrendingPage(doc *goquery.Document, limit int) []Repo {
	var repos []Repo
	doc.Find("article.Box-row").EachWithBreak(func(i int, row *goquery.Selection) bool {
		if i >= limit {
			return false
		}
		href, _ := row.Find("h2 a").First().Attr("href")
		path := strings.Trim(normalize(href), "/")
		if path == "" {
			return true
		}
		repos = append(repos, Repo{
			Rank:        i + 1,
			Name:        path,
			URL:         "https://github.com/" + path,
			Description: textOr(row.Find("p").First(), NoDescription),
			Language:    textOr(row.Find("[itemprop='programmingLanguage']").First(), UnknownLanguage),
			Stars:       textOr(row.Find("a[href$='/stargazers']").First(), NoStars),
			PeriodStars: textOr(row.Find("span.d-inline-block.float-sm-right").First(), ""),
		})
		return true
	})
	return repos
}

// Readme returns the raw README of repoPath from the first branch and file name
// that exists, or "" when none does.
func (c *Client) Readme(ctx context.Context, repoPath string) string {
	for _, branchFile := range []string{
		"main/README.md", "master/README.md",
		"main/readme.md", "master/readme.md",
		"main/README.rst", "master/README.rst",
	} {
		if ctx.Err() != nil {
			return ""
		}
		text, ok := c.fetchRaw(ctx, c.rawURL+"/"+repoPath+"/"+branchFile)
		if ok {
			return text
		}
	}
	return ""
}

func (c *Client) fetchRaw(ctx context.Context, u string) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, readmeTimeout)
	defer cancel()

	body, status, err := c.get(ctx, u)
	if err != nil {
		slog.Debug("readme fetch failed", "url", u, "error", err)
		return "", false
	}
	defer body.Close()
	if status != http.StatusOK {
		return "", false
	}
	b, err := io.ReadAll(body)
	if err != nil {
		return "", false
	}
	return string(b), true
}

func (c *Client) get(ctx context.Context, u string) (io.ReadCloser, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	return resp.Body, resp.StatusCode, nil
}

func textOr(s *goquery.Selection, def string) string {
	if s.Length() == 0 {
		return def
	}
	return normalize(s.Text())
}

func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
