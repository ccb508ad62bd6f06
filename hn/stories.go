package hn

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Story is one ranked entry of the top-stories feed.
type Story struct {
	Rank          int
	ID            int
	Title         string
	URL           string
	Author        string
	Score         int
	CommentCount  int
	Time          int64
	Text          string
	DiscussionURL string
}

// FetchTopStories loads the ranked feed and fetches every story with a pool of workers.
// Items that fail to load, are not stories, or have no title are skipped.
// Ranks are the positions in the upstream list, so skipped items leave gaps.
func FetchTopStories(ctx context.Context, c Client, limit, workers int) ([]Story, error) {
	ids, err := c.TopStories(ctx, limit)
	if err != nil {
		return nil, err
	}
	if workers < 1 {
		workers = 1
	}

	var (
		mu      sync.Mutex
		fetched = make(map[int]Story, len(ids))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, id := range ids {
		rank, id := i+1, id
		g.Go(func() error {
			item, err := c.GetItem(gctx, id)
			if err != nil {
				slog.Warn("skipping unavailable story", "item_id", id, "error", err)
				return nil
			}
			if item.Type != "story" {
				return nil
			}
			title := normalize(item.Title)
			if title == "" {
				return nil
			}
			author := normalize(item.By)
			if author == "" {
				author = "unknown"
			}

			mu.Lock()
			fetched[rank] = Story{
				Rank:          rank,
				ID:            id,
				Title:         title,
				URL:           normalize(item.URL),
				Author:        author,
				Score:         item.Score,
				CommentCount:  item.Descendants,
				Time:          item.Time,
				Text:          item.Text,
				DiscussionURL: DiscussionURL(id),
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("fetching top stories: %w", err)
	}

	ranks := make([]int, 0, len(fetched))
	for r := range fetched {
		ranks = append(ranks, r)
	}
	sort.Ints(ranks)

	stories := make([]Story, 0, len(ranks))
	for _, r := range ranks {
		stories = append(stories, fetched[r])
	}
	return stories, nil
}

func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
