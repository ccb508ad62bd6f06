package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"trending-digest/artifact"
)

var artifactTables = map[artifact.Kind]string{
	artifact.KindRepoSummary:     "gh_summaries",
	artifact.KindStorySummary:    "hn_summaries",
	artifact.KindCommentAnalysis: "hn_comment_analyses",
}

func artifactTable(k artifact.Kind) (string, error) {
	t, ok := artifactTables[k]
	if !ok {
		return "", fmt.Errorf("storage: unknown artifact kind %q", k)
	}
	return t, nil
}

// LatestArtifact returns the most recently generated artifact matching key, or nil if none exists.
func (s *Store) LatestArtifact(ctx context.Context, key artifact.Key) (*artifact.Artifact, error) {
	table, err := artifactTable(key.Kind)
	if err != nil {
		return nil, err
	}

	a := artifact.Artifact{Key: key}
	var generatedAt int64
	err = s.queryRow(ctx, s.db,
		`SELECT id, body, sampled_count, total_count, input_hash, generated_at
		 FROM `+table+`
		 WHERE entity_id = ? AND model = ? AND prompt_version = ? AND sample_size = ?
		 ORDER BY generated_at DESC, id DESC
		 LIMIT 1`,
		key.EntityID, key.Model, key.PromptVersion, key.SampleSize,
	).Scan(&a.ID, &a.Body, &a.SampledCount, &a.TotalCount, &a.InputHash, &generatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: latest %s for %d: %w", key.Kind, key.EntityID, err)
	}
	a.GeneratedAt = time.Unix(generatedAt, 0).UTC()
	return &a, nil
}

// InsertArtifact stores a new artifact and sets its ID.
func (s *Store) InsertArtifact(ctx context.Context, a *artifact.Artifact) error {
	return s.insertArtifact(ctx, s.db, a)
}

func (s *Store) insertArtifact(ctx context.Context, q execer, a *artifact.Artifact) error {
	table, err := artifactTable(a.Key.Kind)
	if err != nil {
		return err
	}
	if a.GeneratedAt.IsZero() {
		a.GeneratedAt = s.now().UTC()
	}
	err = s.queryRow(ctx, q,
		`INSERT INTO `+table+`
		 (entity_id, model, prompt_version, sample_size, sampled_count, total_count, body, input_hash, generated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 RETURNING id`,
		a.Key.EntityID, a.Key.Model, a.Key.PromptVersion, a.Key.SampleSize,
		a.SampledCount, a.TotalCount, a.Body, a.InputHash, a.GeneratedAt.Unix(),
	).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("storage: insert %s for %d: %w", a.Key.Kind, a.Key.EntityID, err)
	}
	return nil
}

// InsertArtifactForDay stores a at noon of day in loc unless an artifact
// matching its key was already generated on that calendar day in loc. day is
// the date written as midnight UTC; a nil loc means UTC. It reports whether a
// row was inserted.
func (s *Store) InsertArtifactForDay(ctx context.Context, a *artifact.Artifact, day time.Time, loc *time.Location) (bool, error) {
	table, err := artifactTable(a.Key.Kind)
	if err != nil {
		return false, err
	}
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := day.UTC().Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, loc)
	end := time.Date(y, m, d+1, 0, 0, 0, 0, loc)
	noon := time.Date(y, m, d, 12, 0, 0, 0, loc)

	inserted := false
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		var count int
		if err := s.queryRow(ctx, tx,
			`SELECT COUNT(*) FROM `+table+`
			 WHERE entity_id = ? AND model = ? AND prompt_version = ? AND sample_size = ?
			   AND generated_at >= ? AND generated_at < ?`,
			a.Key.EntityID, a.Key.Model, a.Key.PromptVersion, a.Key.SampleSize, start.Unix(), end.Unix(),
		).Scan(&count); err != nil {
			return fmt.Errorf("storage: check %s for %d on %s: %w", a.Key.Kind, a.Key.EntityID, formatDay(day), err)
		}
		if count > 0 {
			return nil
		}
		a.GeneratedAt = noon.UTC()
		if err := s.insertArtifact(ctx, tx, a); err != nil {
			return err
		}
		inserted = true
		return nil
	})
	return inserted, err
}
