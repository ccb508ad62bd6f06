package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

const articleHTML = `<!DOCTYPE html>
<html>
<head><title>Test Article</title></head>
<body>
<nav><a href="/">Home</a></nav>
<article>
<h1>Test Article</h1>
<p>This is a test article with meaningful content that should be extracted by the readability parser. It contains enough text to be considered article content.</p>
<p>The readability library needs a reasonable amount of content to identify the main article body. This second paragraph adds more substance to the article.</p>
<p>Adding a third paragraph ensures the content is substantial enough for extraction. The go-readability library uses heuristics to find the main content area.</p>
</article>
</body>
</html>`

func TestScrape_Success(t *testing.T) {
	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(articleHTML))
	}))
	defer server.Close()

	s := NewScraperWithClient(server.Client())
	content, err := s.Scrape(context.Background(), server.URL+"/post")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(content, "meaningful content") {
		t.Errorf("expected content to contain article text, got: %s", content)
	}
	if strings.Contains(content, "\n") || strings.Contains(content, "  ") {
		t.Errorf("expected collapsed whitespace, got: %q", content)
	}
	if gotUA != userAgent {
		t.Errorf("unexpected user agent %q", gotUA)
	}
}

func TestScrape_ContentTruncation(t *testing.T) {
	var sb strings.Builder
	sb.WriteString(`<!DOCTYPE html><html><head><title>Long</title></head><body><article>`)
	for i := 0; i < 500; i++ {
		sb.WriteString(fmt.Sprintf("<p>Paragraph %d with enough text to make the article long enough for truncation testing purposes. Ünïcode.</p>", i))
	}
	sb.WriteString(`</article></body></html>`)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(sb.String()))
	}))
	defer server.Close()

	s := NewScraperWithClient(server.Client())
	content, err := s.Scrape(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := utf8.RuneCountInString(content); n != maxContentLength {
		t.Errorf("expected %d characters, got %d", maxContentLength, n)
	}
	if !utf8.ValidString(content) {
		t.Error("truncation split a multi-byte character")
	}
}

func TestScrape_HTTPError(t *testing.T) {
	for _, code := range []int{http.StatusInternalServerError, http.StatusNotFound} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(code)
		}))

		s := NewScraperWithClient(server.Client())
		if _, err := s.Scrape(context.Background(), server.URL); err == nil {
			t.Errorf("expected error for HTTP %d response", code)
		}
		server.Close()
	}
}

func TestScrape_NotHTML(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4"))
	}))
	defer server.Close()

	s := NewScraperWithClient(server.Client())
	_, err := s.Scrape(context.Background(), server.URL+"/paper.pdf")
	if !errors.Is(err, ErrNotHTML) {
		t.Fatalf("expected ErrNotHTML, got %v", err)
	}
}

func TestScrape_InvalidURL(t *testing.T) {
	s := NewScraper(5 * time.Second)
	for _, u := range []string{"", "ftp://example.com/file", "::not a url"} {
		if _, err := s.Scrape(context.Background(), u); err == nil {
			t.Errorf("expected error for %q", u)
		}
	}
	if _, err := s.Scrape(context.Background(), "http://localhost:1/nonexistent"); err == nil {
		t.Fatal("expected error for unreachable URL")
	}
}

func TestScrape_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body><p>content</p></body></html>`))
	}))
	defer server.Close()

	s := NewScraperWithClient(server.Client())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Scrape(ctx, server.URL); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
