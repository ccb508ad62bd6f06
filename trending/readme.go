package trending

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	linkOnlyLine = regexp.MustCompile(`^\[.*\]\(https?://.*\)$`)
	ruleLine     = regexp.MustCompile(`^[-=_]{3,}$`)
	tableRule    = regexp.MustCompile(`^\|[-:| ]+\|$`)

	inlineImage = regexp.MustCompile(`!\[.*?\]\(.*?\)`)
	inlineLink  = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	htmlTag     = regexp.MustCompile(`<[^>]+>`)
	strong      = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	emphasis    = regexp.MustCompile(`\*([^*]+)\*`)
	strongUnder = regexp.MustCompile(`__([^_]+)__`)
	emphUnder   = regexp.MustCompile(`_([^_]+)_`)
	inlineCode  = regexp.MustCompile("`([^`]+)`")
)

// CleanReadme strips badges, images, HTML, link syntax, emphasis, tables and
// horizontal rules from README text, keeping one normalized line per prose line.
func CleanReadme(text string) string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		s := strings.TrimSpace(line)
		switch {
		case s == "",
			strings.HasPrefix(s, "!["),
			strings.Contains(s, "shields.io"),
			strings.Contains(strings.ToLower(s), "badge"),
			strings.HasPrefix(s, "<") && strings.Contains(s, ">"),
			linkOnlyLine.MatchString(s),
			ruleLine.MatchString(s),
			tableRule.MatchString(s):
			continue
		}

		s = inlineImage.ReplaceAllString(s, "")
		s = inlineLink.ReplaceAllString(s, "$1")
		s = htmlTag.ReplaceAllString(s, "")
		s = strong.ReplaceAllString(s, "$1")
		s = emphasis.ReplaceAllString(s, "$1")
		s = strongUnder.ReplaceAllString(s, "$1")
		s = emphUnder.ReplaceAllString(s, "$1")
		s = inlineCode.ReplaceAllString(s, "$1")

		s = normalize(s)
		if utf8.RuneCountInString(s) > 2 {
			out = append(out, s)
		}
	}
	return strings.Join(out, "\n")
}

// ReadmeHash is the hex sha256 of the raw README, or "" when there is none.
func ReadmeHash(raw string) string {
	if raw == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
