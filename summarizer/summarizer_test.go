package summarizer

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"
	openaiopt "github.com/openai/openai-go/option"
)

func geminiResponseJSON(text string) string {
	var resp geminiResponse
	resp.Candidates = append(resp.Candidates, struct {
		Content geminiContent `json:"content"`
	}{Content: geminiContent{Parts: []geminiPart{{Text: text}}}})
	b, _ := json.Marshal(resp)
	return string(b)
}

func TestGemini_Success(t *testing.T) {
	var gotPath, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("key")
		var req geminiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		if len(req.Contents) != 1 || req.Contents[0].Parts[0].Text != "the prompt" {
			t.Errorf("unexpected request body: %+v", req)
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(geminiResponseJSON("Paragraph one.\n\nParagraph two.")))
	}))
	defer srv.Close()

	g := newGeminiWithURL("test-key", "test-model", srv.Client(), srv.URL)

	text, err := g.Generate(context.Background(), "the prompt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "Paragraph one.\n\nParagraph two." {
		t.Errorf("unexpected text: %q", text)
	}
	if gotPath != "/test-model:generateContent" {
		t.Errorf("unexpected path: %s", gotPath)
	}
	if gotKey != "test-key" {
		t.Errorf("unexpected key: %s", gotKey)
	}
	if g.Model() != "test-model" {
		t.Errorf("unexpected model: %s", g.Model())
	}
}

func TestGemini_MarkdownCodeBlock(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(geminiResponseJSON("```\n- one\n- two\n```")))
	}))
	defer srv.Close()

	g := newGeminiWithURL("test-key", "test-model", srv.Client(), srv.URL)

	text, err := g.Generate(context.Background(), "p")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "- one\n- two" {
		t.Errorf("unexpected text: %q", text)
	}
}

func TestGemini_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"internal"}`))
	}))
	defer srv.Close()

	g := newGeminiWithURL("test-key", "test-model", srv.Client(), srv.URL)

	if _, err := g.Generate(context.Background(), "p"); err == nil {
		t.Fatal("expected error for API failure")
	}
}

func TestGemini_EmptyResponse(t *testing.T) {
	for _, body := range []string{`{"candidates":[]}`, geminiResponseJSON("   ")} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(body))
		}))

		g := newGeminiWithURL("test-key", "test-model", srv.Client(), srv.URL)
		if _, err := g.Generate(context.Background(), "p"); err == nil {
			t.Errorf("expected error for empty response %s", body)
		}
		srv.Close()
	}
}

func TestGemini_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	g := newGeminiWithURL("test-key", "test-model", srv.Client(), srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := g.Generate(ctx, "p"); err == nil {
		t.Fatal("expected error for canceled context")
	}
}

func TestOpenAI_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("unexpected auth header: %s", got)
		}
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), `"gpt-5-mini"`) || !strings.Contains(string(body), "summarize me") {
			t.Errorf("unexpected request body: %s", body)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"gpt-5-mini",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"  A summary.  "}}]}`))
	}))
	defer srv.Close()

	g := NewOpenAI("sk-test", "gpt-5-mini", srv.Client(), openaiopt.WithBaseURL(srv.URL))
	text, err := g.Generate(context.Background(), "summarize me")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "A summary." {
		t.Errorf("unexpected text: %q", text)
	}
}

func TestOpenAI_ErrorNotRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
	}))
	defer srv.Close()

	g := NewOpenAI("sk-test", "gpt-5-mini", srv.Client(), openaiopt.WithBaseURL(srv.URL))
	if _, err := g.Generate(context.Background(), "p"); err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestAnthropic_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/messages") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("X-Api-Key"); got != "ak-test" {
			t.Errorf("unexpected api key header: %s", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude-test",
			"content":[{"type":"text","text":"- bullet one"},{"type":"text","text":"- bullet two"}],
			"stop_reason":"end_turn","usage":{"input_tokens":3,"output_tokens":5}}`))
	}))
	defer srv.Close()

	g := NewAnthropic("ak-test", "claude-test", srv.Client(), anthropicopt.WithBaseURL(srv.URL))
	text, err := g.Generate(context.Background(), "p")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "- bullet one\n- bullet two" {
		t.Errorf("unexpected text: %q", text)
	}
}

func TestNew(t *testing.T) {
	for _, p := range []string{"openai", "anthropic", "gemini"} {
		g, err := New(p, "k", "m", nil)
		if err != nil {
			t.Errorf("New(%q): %v", p, err)
			continue
		}
		if g.Model() != "m" {
			t.Errorf("New(%q).Model() = %q", p, g.Model())
		}
	}
	if _, err := New("mistral", "k", "m", nil); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestStripMarkdownCodeBlock(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"plain text", "plain text"},
		{"```markdown\nParagraph.\n```", "Paragraph."},
		{"```\nParagraph.\n```", "Paragraph."},
		{"  ```md\nParagraph.\n```  ", "Paragraph."},
		{"  padded  ", "padded"},
	}

	for _, tt := range tests {
		got := stripMarkdownCodeBlock(tt.input)
		if got != tt.expected {
			t.Errorf("stripMarkdownCodeBlock(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}
