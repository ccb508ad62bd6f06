// Package artifact resolves cached generation results, regenerating them once
// when they have gone stale and falling back to the newest copy on failure.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Kind names a family of generated artifacts.
type Kind string

const (
	KindRepoSummary     Kind = "gh_summary"
	KindStorySummary    Kind = "hn_summary"
	KindCommentAnalysis Kind = "hn_comment_analysis"
)

// Key identifies the generation parameters an artifact must match to be reused.
type Key struct {
	Kind          Kind
	EntityID      int64
	Model         string
	PromptVersion string
	SampleSize    int // comment analyses only
}

// Artifact is one immutable generation result.
type Artifact struct {
	ID           int64
	Key          Key
	Body         string
	SampledCount int
	TotalCount   int
	InputHash    string
	GeneratedAt  time.Time
}

// Store persists artifacts. LatestArtifact returns nil, nil when none exists.
type Store interface {
	LatestArtifact(ctx context.Context, key Key) (*Artifact, error)
	InsertArtifact(ctx context.Context, a *Artifact) error
}

// Generated is what a generator hands back for persistence.
type Generated struct {
	Body         string
	SampledCount int
	TotalCount   int
	InputHash    string
}

// GenerateFunc produces a fresh artifact body. It is called at most once per Resolve.
type GenerateFunc func(ctx context.Context) (Generated, error)

// ErrNoInput is returned by generators that have nothing to summarize.
var ErrNoInput = errors.New("artifact: no input to generate from")

// Status reports how a Result was obtained.
type Status int

const (
	StatusUnavailable Status = iota
	StatusFresh
	StatusGenerated
	StatusFallback
)

func (s Status) String() string {
	switch s {
	case StatusFresh:
		return "fresh"
	case StatusGenerated:
		return "generated"
	case StatusFallback:
		return "fallback"
	default:
		return "unavailable"
	}
}

// Result is the outcome of a lookup. Artifact is nil when Status is StatusUnavailable.
type Result struct {
	Status   Status
	Artifact *Artifact
}

// Body returns the artifact text, or "" when unavailable.
func (r Result) Body() string {
	if r.Artifact == nil {
		return ""
	}
	return r.Artifact.Body
}

// Observer is notified of every resolution outcome.
type Observer func(kind Kind, status Status)

// Cache implements get-or-generate over a Store.
type Cache struct {
	store     Store
	freshDays int
	now       func() time.Time
	loc       *time.Location
	observe   Observer
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the timestamp given to newly generated artifacts.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithLocation sets the zone whose calendar dates reference days are given in.
// The default is UTC.
func WithLocation(loc *time.Location) Option {
	return func(c *Cache) {
		if loc != nil {
			c.loc = loc
		}
	}
}

// WithObserver registers a callback for resolution outcomes.
func WithObserver(o Observer) Option {
	return func(c *Cache) { c.observe = o }
}

// New creates a Cache. Artifacts younger than freshDays are reused as is.
func New(store Store, freshDays int, opts ...Option) *Cache {
	c := &Cache{
		store:     store,
		freshDays: freshDays,
		now:       time.Now,
		loc:       time.UTC,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fresh reports whether an artifact generated at generatedAt may still be used on refDay.
// refDay is a calendar date in loc written as midnight UTC; generatedAt is an
// instant and is dated in loc.
func Fresh(generatedAt, refDay time.Time, freshDays int, loc *time.Location) bool {
	return DaysBetween(CalendarDay(generatedAt, loc), refDay) < freshDays
}

// CalendarDay returns the date of t in loc as midnight UTC. A nil loc means UTC.
func CalendarDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the number of days from date a to date b, both given as
// midnight UTC.
func DaysBetween(a, b time.Time) int {
	return int(CalendarDay(b, time.UTC).Sub(CalendarDay(a, time.UTC)).Hours() / 24)
}

// Resolve returns the newest artifact matching key if it is fresh on refDay.
// Otherwise it calls gen once; a successful generation is persisted and returned.
// A failed generation falls back to the newest artifact of any age, or StatusUnavailable.
// Only store errors are returned.
func (c *Cache) Resolve(ctx context.Context, key Key, refDay time.Time, gen GenerateFunc) (Result, error) {
	latest, err := c.store.LatestArtifact(ctx, key)
	if err != nil {
		return Result{}, fmt.Errorf("looking up %s for entity %d: %w", key.Kind, key.EntityID, err)
	}
	if latest != nil && Fresh(latest.GeneratedAt, refDay, c.freshDays, c.loc) {
		return c.done(key, Result{Status: StatusFresh, Artifact: latest}), nil
	}

	g, genErr := gen(ctx)
	if genErr == nil && g.Body != "" {
		a := &Artifact{
			Key:          key,
			Body:         g.Body,
			SampledCount: g.SampledCount,
			TotalCount:   g.TotalCount,
			InputHash:    g.InputHash,
			GeneratedAt:  c.now().UTC(),
		}
		if err := c.store.InsertArtifact(ctx, a); err != nil {
			return Result{}, fmt.Errorf("saving %s for entity %d: %w", key.Kind, key.EntityID, err)
		}
		return c.done(key, Result{Status: StatusGenerated, Artifact: a}), nil
	}

	switch {
	case errors.Is(genErr, ErrNoInput):
		slog.Debug("nothing to generate", "kind", key.Kind, "entity_id", key.EntityID)
	case genErr != nil:
		slog.Warn("generation failed", "kind", key.Kind, "entity_id", key.EntityID, "error", genErr)
	default:
		slog.Warn("generation returned empty body", "kind", key.Kind, "entity_id", key.EntityID)
	}

	if latest != nil {
		return c.done(key, Result{Status: StatusFallback, Artifact: latest}), nil
	}
	return c.done(key, Result{Status: StatusUnavailable}), nil
}

// Lookup returns the newest matching artifact without generating, reporting
// StatusFresh or StatusFallback depending on its age on refDay.
func (c *Cache) Lookup(ctx context.Context, key Key, refDay time.Time) (Result, error) {
	latest, err := c.store.LatestArtifact(ctx, key)
	if err != nil {
		return Result{}, fmt.Errorf("looking up %s for entity %d: %w", key.Kind, key.EntityID, err)
	}
	switch {
	case latest == nil:
		return Result{Status: StatusUnavailable}, nil
	case Fresh(latest.GeneratedAt, refDay, c.freshDays, c.loc):
		return Result{Status: StatusFresh, Artifact: latest}, nil
	default:
		return Result{Status: StatusFallback, Artifact: latest}, nil
	}
}

func (c *Cache) done(key Key, r Result) Result {
	if c.observe != nil {
		c.observe(key.Kind, r.Status)
	}
	return r
}
