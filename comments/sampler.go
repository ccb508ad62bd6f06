package comments

import (
	"sort"
	"strings"
)

// SampleOptions bounds the selected subset.
type SampleOptions struct {
	Size         int
	MaxPerBranch int
}

// DefaultSampleOptions returns the standard sample shape.
func DefaultSampleOptions() SampleOptions {
	return SampleOptions{Size: 16, MaxPerBranch: 4}
}

const dedupePrefix = 200

// Score rates how much signal a comment is likely to carry. Shallow, long,
// much-replied comments under early top-level threads score highest.
func Score(n Node) float64 {
	var depth float64
	switch n.Depth {
	case 1:
		depth = 1.2
	case 2:
		depth = 0.7
	default:
		depth = 0.3
	}
	length := float64(min(n.Len, 900)) / 220
	replies := float64(min(n.ReplyCount, 10)) / 4
	order := float64(max(0, 14-n.BranchPos)) / 14
	return depth + length + replies + order
}

// Sample returns at most opts.Size nodes ordered by score, with no more than
// opts.MaxPerBranch from any top-level branch and no two sharing the same
// case-insensitive 200-character prefix.
func Sample(nodes []Node, opts SampleOptions) []Node {
	if len(nodes) == 0 {
		return nil
	}
	def := DefaultSampleOptions()
	if opts.Size <= 0 {
		opts.Size = def.Size
	}
	if opts.MaxPerBranch <= 0 {
		opts.MaxPerBranch = def.MaxPerBranch
	}

	type scored struct {
		score float64
		node  Node
	}
	ranked := make([]scored, len(nodes))
	for i, n := range nodes {
		ranked[i] = scored{score: Score(n), node: n}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].node.Len > ranked[j].node.Len
	})

	selected := make([]Node, 0, min(opts.Size, len(nodes)))
	perBranch := make(map[int]int)
	seen := make(map[string]bool)
	for _, r := range ranked {
		n := r.node
		if perBranch[n.BranchID] >= opts.MaxPerBranch {
			continue
		}
		key := dedupeKey(n.Text)
		if seen[key] {
			continue
		}
		selected = append(selected, n)
		perBranch[n.BranchID]++
		seen[key] = true
		if len(selected) >= opts.Size {
			break
		}
	}
	return selected
}

func dedupeKey(text string) string {
	r := []rune(text)
	if len(r) > dedupePrefix {
		r = r[:dedupePrefix]
	}
	return strings.ToLower(string(r))
}
