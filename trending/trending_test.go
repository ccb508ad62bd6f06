package trending

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const trendingHTML = `<html><body>
<article class="Box-row">
  <h2 class="h3 lh-condensed"><a href="/acme/rocket ">
    acme /
    rocket</a></h2>
  <p class="col-9">  Fast   rockets for everyone </p>
  <span itemprop="programmingLanguage">Go</span>
  <a href="/acme/rocket/stargazers"> 12,345 </a>
  <span class="d-inline-block float-sm-right"> 1,024 stars today </span>
</article>
<article class="Box-row">
  <h2><a href="/bare/repo">bare / repo</a></h2>
</article>
<article class="Box-row">
  <h2>no link here</h2>
</article>
<article class="Box-row">
  <h2><a href="/fourth/one">fourth / one</a></h2>
</article>
</body></html>`

func parse(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func TestParseTrendingPage(t *testing.T) {
	repos := ParseTrendingPage(parse(t, trendingHTML), 10)
	require.Len(t, repos, 3)

	assert.Equal(t, Repo{
		Rank:        1,
		Name:        "acme/rocket",
		URL:         "https://github.com/acme/rocket",
		Description: "Fast rockets for everyone",
		Language:    "Go",
		Stars:       "12,345",
		PeriodStars: "1,024 stars today",
	}, repos[0])

	assert.Equal(t, Repo{
		Rank:        2,
		Name:        "bare/repo",
		URL:         "https://github.com/bare/repo",
		Description: NoDescription,
		Language:    UnknownLanguage,
		Stars:       NoStars,
	}, repos[1])

	assert.Equal(t, 4, repos[2].Rank, "rank is page position even when a row is skipped")
}

func TestParseTrendingPage_Limit(t *testing.T) {
	repos := ParseTrendingPage(parse(t, trendingHTML), 2)
	require.Len(t, repos, 2)
	assert.Equal(t, "bare/repo", repos[1].Name)
}

func TestScrape(t *testing.T) {
	var gotSince, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSince = r.URL.Query().Get("since")
		gotUA = r.Header.Get("User-Agent")
		fmt.Fprint(w, trendingHTML)
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), WithTrendingURL(srv.URL+"/trending"))
	repos, err := c.Scrape(context.Background(), "weekly")
	require.NoError(t, err)
	assert.Len(t, repos, 3)
	assert.Equal(t, "weekly", gotSince)
	assert.Equal(t, userAgent, gotUA)
}

func TestScrape_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), WithTrendingURL(srv.URL))
	_, err := c.Scrape(context.Background(), "daily")
	assert.Error(t, err)

	_, err = c.Scrape(context.Background(), "yearly")
	assert.ErrorContains(t, err, "unsupported")
}

func TestReadme_FallbackOrder(t *testing.T) {
	var tried []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tried = append(tried, r.URL.Path)
		if r.URL.Path == "/acme/rocket/master/readme.md" {
			fmt.Fprint(w, "# Rocket")
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), WithRawURL(srv.URL+"/"))
	text := c.Readme(context.Background(), "acme/rocket")

	assert.Equal(t, "# Rocket", text)
	assert.Equal(t, []string{
		"/acme/rocket/main/README.md",
		"/acme/rocket/master/README.md",
		"/acme/rocket/main/readme.md",
		"/acme/rocket/master/readme.md",
	}, tried)
}

func TestReadme_Missing(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	c := NewClient(srv.Client(), WithRawURL(srv.URL))
	assert.Empty(t, c.Readme(context.Background(), "acme/none"))
}

const legacyHTML = `<html><body>
<section class="repo">
  <h3>2. <a href="https://github.com/b/two">b/two</a></h3>
  <p class="description">Second</p>
  <span class="language">Rust</span><span class="stars">10</span><span class="today">3 stars today</span>
  <div class="ai-summary"><p>Para one.</p><p> </p><p>Para  two.</p></div>
</section>
<section class="repo">
  <h3>1. <a href="">a/one</a></h3>
</section>
<section class="repo"><h3>no link</h3></section>
</body></html>`

func TestParseLegacyPage(t *testing.T) {
	repos, err := ParseLegacyPage(strings.NewReader(legacyHTML))
	require.NoError(t, err)
	require.Len(t, repos, 2)

	assert.Equal(t, 1, repos[0].Rank)
	assert.Equal(t, "a/one", repos[0].Name)
	assert.Equal(t, "https://github.com/a/one", repos[0].URL)
	assert.Equal(t, NoDescription, repos[0].Description)
	assert.Empty(t, repos[0].Summary)

	assert.Equal(t, Repo{
		Rank:        2,
		Name:        "b/two",
		URL:         "https://github.com/b/two",
		Description: "Second",
		Language:    "Rust",
		Stars:       "10",
		PeriodStars: "3 stars today",
		Summary:     "Para one.\n\nPara two.",
	}, repos[1])
}

func TestFindLegacyPages(t *testing.T) {
	dir := t.TempDir()
	for _, d := range []string{"2024-03-02", "2024-03-01", "notes", "2024-03-03"} {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, d), 0o755))
	}
	for _, d := range []string{"2024-03-02", "2024-03-01", "notes"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, d, "index.html"), []byte("<html></html>"), 0o644))
	}

	pages, err := FindLegacyPages(dir)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), pages[0].Day)
	assert.Equal(t, filepath.Join(dir, "2024-03-02", "index.html"), pages[1].Path)

	pages, err = FindLegacyPages(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Empty(t, pages)
}
