package summarizer

import (
	"fmt"
	"strings"

	"trending-digest/comments"
)

// Prompt versions. Bumping one invalidates cached artifacts built with the old text.
const (
	RepoPromptVersion    = "gh_v2"
	StoryPromptVersion   = "hn_v1"
	CommentPromptVersion = "hn_comments_v1"
)

const (
	maxReadmeChars    = 8000
	maxStoryTextChars = 5000
)

// RepoInput is what a repository summary is generated from.
type RepoInput struct {
	Name        string
	Description string
	Readme      string // already cleaned
}

// StoryInput is what a story summary is generated from.
type StoryInput struct {
	Title        string
	URL          string
	Author       string
	Score        int
	CommentCount int
	Text         string // cleaned self-text or linked article excerpt
}

// CommentInput is what a discussion analysis is generated from.
type CommentInput struct {
	Title         string
	URL           string
	DiscussionURL string
	Total         int
	Sample        []comments.Node
}

// RepoPrompt builds the two-paragraph repository summary prompt.
func RepoPrompt(in RepoInput) string {
	return fmt.Sprintf(`Analyze this GitHub repository and provide a two-paragraph summary.

Repository: %s
Description: %s

README content:
%s

Write exactly two paragraphs:
1. First paragraph: Explain what this project does, key features, and how it works technically.
2. Second paragraph: Explain who would benefit from this project and why it is trending.

Keep each paragraph concise (3-4 sentences). Use a professional, informative tone.`,
		in.Name, in.Description, Truncate(in.Readme, maxReadmeChars))
}

// StoryPrompt builds the two-paragraph story summary prompt.
func StoryPrompt(in StoryInput) string {
	return fmt.Sprintf(`Summarize this Hacker News story in exactly two paragraphs.

Title: %s
Source URL: %s
Author: %s
Points: %d
Comments: %d
Story text (if available):
%s

Write exactly two paragraphs:
1. First paragraph: Explain what the story appears to be about and the key technical/business context.
2. Second paragraph: Explain why Hacker News readers might find it interesting or important.

Keep each paragraph concise (3-4 sentences) and avoid hype.`,
		in.Title, orNA(in.URL), in.Author, in.Score, in.CommentCount,
		orNA(Truncate(in.Text, maxStoryTextChars)))
}

// CommentPrompt builds the four-bullet discussion analysis prompt.
func CommentPrompt(in CommentInput) string {
	lines := make([]string, len(in.Sample))
	for i, n := range in.Sample {
		author := n.Author
		if author == "" {
			author = "unknown"
		}
		lines[i] = fmt.Sprintf("[%d] depth=%d top_thread=%d by=%s: %s", i+1, n.Depth, n.BranchPos, author, n.Text)
	}

	url := in.URL
	if url == "" {
		url = in.DiscussionURL
	}

	return fmt.Sprintf(`Analyze this Hacker News discussion sample and provide exactly 4 concise bullet points.

Story title: %s
Story URL: %s
Total comments in thread: %d
Sample size: %d

Comment sample:
%s

Return exactly 4 bullet points:
- Bullet 1: Core consensus or dominant viewpoint.
- Bullet 2: Strongest disagreement or competing view.
- Bullet 3: Practical technical takeaway.
- Bullet 4: Caveat about sample bias/coverage.

Rules:
- One sentence per bullet.
- 18-35 words per bullet.
- No hype or marketing language.
- Do not quote usernames.
`, in.Title, orNA(url), in.Total, len(in.Sample), strings.Join(lines, "\n\n"))
}

// Truncate cuts s to at most n runes, marking the cut with "...".
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
