// Package comments walks a discussion tree under a fetch budget and picks a
// small branch-diverse sample of it for summarization.
package comments

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"trending-digest/hn"
)

// Node is one kept comment from a traversal.
type Node struct {
	ID         int
	Author     string
	Depth      int
	BranchID   int // id of the top-level comment this node descends from
	BranchPos  int // 1-based position of that top-level comment under the root
	ReplyCount int
	Len        int
	Text       string
}

// Fetcher loads one item. hn.Client satisfies it.
type Fetcher interface {
	GetItem(ctx context.Context, id int) (*hn.Item, error)
}

// WalkOptions bounds a traversal.
type WalkOptions struct {
	MaxNodes     int
	MaxDepth     int
	MinTextLen   int
	FetchTimeout time.Duration
}

// DefaultWalkOptions returns the standard traversal budget.
func DefaultWalkOptions() WalkOptions {
	return WalkOptions{
		MaxNodes:     300,
		MaxDepth:     6,
		MinTextLen:   40,
		FetchTimeout: 20 * time.Second,
	}
}

// WalkResult is the outcome of one traversal.
type WalkResult struct {
	Total   int // authoritative comment count for the story
	Nodes   []Node
	Fetched int // item requests issued, root included
}

// Walker traverses comment trees breadth-first per branch, servicing branches round-robin.
type Walker struct {
	fetcher Fetcher
	opts    WalkOptions
}

// NewWalker creates a Walker. Zero-valued options fall back to the defaults.
func NewWalker(f Fetcher, opts WalkOptions) *Walker {
	def := DefaultWalkOptions()
	if opts.MaxNodes <= 0 {
		opts.MaxNodes = def.MaxNodes
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = def.MaxDepth
	}
	if opts.MinTextLen < 0 {
		opts.MinTextLen = 0
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = def.FetchTimeout
	}
	return &Walker{fetcher: f, opts: opts}
}

type pending struct {
	id        int
	depth     int
	branchID  int
	branchPos int
}

// Walk traverses the tree under rootID. totalHint is used as the comment count when
// the root does not report one. An unreachable root yields the hint and no nodes.
func (w *Walker) Walk(ctx context.Context, rootID, totalHint int) WalkResult {
	cache := make(map[int]*hn.Item)
	res := WalkResult{Total: totalHint}

	fetch := func(id int) *hn.Item {
		if it, ok := cache[id]; ok {
			return it
		}
		res.Fetched++
		fctx, cancel := context.WithTimeout(ctx, w.opts.FetchTimeout)
		defer cancel()
		it, err := w.fetcher.GetItem(fctx, id)
		if err != nil {
			slog.Debug("comment fetch failed", "item_id", id, "error", err)
			it = nil
		}
		cache[id] = it
		return it
	}

	root := fetch(rootID)
	if root == nil {
		return res
	}
	if root.Descendants > 0 {
		res.Total = root.Descendants
	}
	if res.Total < 0 {
		res.Total = 0
	}
	if len(root.Kids) == 0 {
		return res
	}

	queues := make([][]pending, len(root.Kids))
	for i, kid := range root.Kids {
		queues[i] = []pending{{id: kid, depth: 1, branchID: kid, branchPos: i + 1}}
	}

	visited := make(map[int]bool)
	for len(res.Nodes) < w.opts.MaxNodes {
		if ctx.Err() != nil {
			break
		}
		progressed := false
		for qi := range queues {
			if len(queues[qi]) == 0 {
				continue
			}
			progressed = true
			p := queues[qi][0]
			queues[qi] = queues[qi][1:]

			if visited[p.id] {
				continue
			}
			visited[p.id] = true
			if p.depth > w.opts.MaxDepth {
				continue
			}

			it := fetch(p.id)
			if it == nil || it.Type != "comment" || !it.Live() {
				continue
			}

			// Replies are explored even when this node is too short to keep.
			for _, kid := range it.Kids {
				queues[qi] = append(queues[qi], pending{id: kid, depth: p.depth + 1, branchID: p.branchID, branchPos: p.branchPos})
			}

			text := CleanText(it.Text)
			n := utf8.RuneCountInString(text)
			if n < w.opts.MinTextLen {
				continue
			}

			author := strings.Join(strings.Fields(it.By), " ")
			if author == "" {
				author = "unknown"
			}
			res.Nodes = append(res.Nodes, Node{
				ID:         p.id,
				Author:     author,
				Depth:      p.depth,
				BranchID:   p.branchID,
				BranchPos:  p.branchPos,
				ReplyCount: len(it.Kids),
				Len:        n,
				Text:       text,
			})
			if len(res.Nodes) >= w.opts.MaxNodes {
				break
			}
		}
		if !progressed {
			break
		}
	}

	return res
}
