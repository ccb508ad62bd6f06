// Package history derives first-seen dates and daily streaks from an entity's run appearances.
package history

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// Feed selects which run series an entity belongs to.
type Feed string

const (
	FeedRepos   Feed = "gh" // daily trending repositories
	FeedStories Feed = "hn" // top stories
)

// Stats summarizes an entity's appearances up to a reference day.
type Stats struct {
	Earliest   time.Time // zero when the entity never appeared
	Streak     int
	SeenBefore bool
}

// HasEarliest reports whether the entity appeared at least once.
func (s Stats) HasEarliest() bool {
	return !s.Earliest.IsZero()
}

// Compute derives Stats from appearance dates. Dates after ref are ignored and
// only the calendar date (UTC) of each value is used.
func Compute(dates []time.Time, ref time.Time) Stats {
	ref = Day(ref)
	set := make(map[time.Time]bool, len(dates))
	days := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		d = Day(d)
		if d.After(ref) || set[d] {
			continue
		}
		set[d] = true
		days = append(days, d)
	}
	if len(days) == 0 {
		return Stats{}
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	st := Stats{
		Earliest:   days[0],
		SeenBefore: days[0].Before(ref),
	}
	for cur := ref; set[cur]; cur = cur.AddDate(0, 0, -1) {
		st.Streak++
	}
	return st
}

// Day truncates t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Source lists the days an entity appeared on, up to and including upTo, ascending.
type Source interface {
	AppearanceDates(ctx context.Context, feed Feed, entityID int64, upTo time.Time) ([]time.Time, error)
}

// Tracker answers history questions from a Source. It holds no state and is safe for concurrent use.
type Tracker struct {
	src Source
}

// NewTracker creates a Tracker.
func NewTracker(src Source) *Tracker {
	return &Tracker{src: src}
}

// Stats returns the entity's history as of ref.
func (t *Tracker) Stats(ctx context.Context, feed Feed, entityID int64, ref time.Time) (Stats, error) {
	dates, err := t.src.AppearanceDates(ctx, feed, entityID, Day(ref))
	if err != nil {
		return Stats{}, fmt.Errorf("loading %s history for %d: %w", feed, entityID, err)
	}
	return Compute(dates, ref), nil
}
