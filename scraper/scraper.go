// Package scraper extracts the readable text of a story's linked article.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
)

const (
	maxContentLength = 4000
	maxBodyBytes     = 5 << 20
	userAgent        = "Mozilla/5.0 (compatible; TrendingDigest/2.0)"
)

// ErrNotHTML is returned for links to PDFs, images and other non-page content.
var ErrNotHTML = errors.New("not an html page")

// Scraper extracts article text from a URL.
type Scraper interface {
	Scrape(ctx context.Context, url string) (string, error)
}

type articleScraper struct {
	client *http.Client
}

// NewScraper creates a Scraper with the given timeout for HTTP requests.
func NewScraper(timeout time.Duration) Scraper {
	return &articleScraper{
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// NewScraperWithClient creates a Scraper with a custom HTTP client (for testing).
func NewScraperWithClient(client *http.Client) Scraper {
	return &articleScraper{
		client: client,
	}
}

// Scrape fetches rawURL and returns its main text with whitespace collapsed,
// truncated to 4000 characters.
func (s *articleScraper) Scrape(ctx context.Context, rawURL string) (string, error) {
	pageURL, err := url.Parse(rawURL)
	if err != nil || (pageURL.Scheme != "http" && pageURL.Scheme != "https") {
		return "", fmt.Errorf("invalid article url %q", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("creating scrape request for %s: %w", rawURL, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("scraping %s returned status %d", rawURL, resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		mt, _, _ := mime.ParseMediaType(ct)
		if mt != "text/html" && mt != "application/xhtml+xml" {
			return "", fmt.Errorf("scraping %s: %w (%s)", rawURL, ErrNotHTML, mt)
		}
	}

	article, err := readability.FromReader(io.LimitReader(resp.Body, maxBodyBytes), pageURL)
	if err != nil {
		return "", fmt.Errorf("extracting content from %s: %w", rawURL, err)
	}

	content := strings.Join(strings.Fields(article.TextContent), " ")
	if r := []rune(content); len(r) > maxContentLength {
		content = string(r[:maxContentLength])
	}
	return content, nil
}
