package storage

import (
	"fmt"
	"strings"
)

// Placeholder values written when upstream gives nothing better.
const (
	NoDescription   = "No description"
	UnknownLanguage = "Unknown"
	NoStars         = "N/A"
	Untitled        = "Untitled"
	UnknownAuthor   = "unknown"
)

// fieldMerge describes how an upsert treats one column of an existing row.
// A column with placeholders keeps its stored value when the incoming value is one of them.
// A column without placeholders is always overwritten.
type fieldMerge struct {
	column       string
	placeholders []string
}

// repoMerge is the policy for gh_repos metadata.
var repoMerge = []fieldMerge{
	{column: "url", placeholders: []string{""}},
	{column: "description", placeholders: []string{"", NoDescription}},
	{column: "language", placeholders: []string{"", UnknownLanguage}},
	{column: "updated_at"},
}

// storyMerge is the policy for hn_items metadata. Score and counts always move.
var storyMerge = []fieldMerge{
	{column: "title", placeholders: []string{"", Untitled}},
	{column: "url", placeholders: []string{""}},
	{column: "author", placeholders: []string{"", UnknownAuthor}},
	{column: "text", placeholders: []string{""}},
	{column: "item_type", placeholders: []string{""}},
	{column: "item_time", placeholders: []string{"0"}},
	{column: "score"},
	{column: "comment_count"},
	{column: "updated_at"},
}

// informative reports whether value should replace what is stored under the policy.
func informative(policy []fieldMerge, column, value string) bool {
	for _, f := range policy {
		if f.column != column {
			continue
		}
		for _, p := range f.placeholders {
			if value == p {
				return false
			}
		}
		return true
	}
	return true
}

// updateClause renders the DO UPDATE SET list for an upsert into table.
func updateClause(table string, policy []fieldMerge) string {
	parts := make([]string, 0, len(policy))
	for _, f := range policy {
		if len(f.placeholders) == 0 {
			parts = append(parts, fmt.Sprintf("%s = excluded.%s", f.column, f.column))
			continue
		}
		quoted := make([]string, len(f.placeholders))
		for i, p := range f.placeholders {
			quoted[i] = "'" + strings.ReplaceAll(p, "'", "''") + "'"
		}
		// Casting keeps the IN list valid for numeric columns too.
		parts = append(parts, fmt.Sprintf(
			"%s = CASE WHEN CAST(excluded.%s AS TEXT) IN (%s) THEN %s.%s ELSE excluded.%s END",
			f.column, f.column, strings.Join(quoted, ", "), table, f.column, f.column,
		))
	}
	return strings.Join(parts, ",\n\t\t\t")
}

func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func orDefault(s, def string) string {
	if s = normalize(s); s == "" {
		return def
	}
	return s
}
