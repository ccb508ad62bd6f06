package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AdvisoryLockKey is the Postgres advisory lock key guarding digest runs.
const AdvisoryLockKey int64 = 348112907

// LeaseLock is a named lease in the run_locks table. A lease whose expiry has
// passed is treated as abandoned and may be taken over by another owner, so a
// holder must Renew within its TTL.
type LeaseLock struct {
	store *Store
	name  string
	owner string
	ttl   time.Duration
}

// NewLeaseLock creates a lease lock with a random owner token.
func (s *Store) NewLeaseLock(name string, ttl time.Duration) *LeaseLock {
	return &LeaseLock{store: s, name: name, owner: uuid.NewString(), ttl: ttl}
}

// Owner returns the token written into the lease row.
func (l *LeaseLock) Owner() string {
	return l.owner
}

// TryLock takes the lease if it is free, expired, or already ours. It never blocks.
func (l *LeaseLock) TryLock(ctx context.Context) (bool, error) {
	now := l.store.now()
	res, err := l.store.exec(ctx, l.store.db,
		`INSERT INTO run_locks (name, owner, acquired_at, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (name) DO UPDATE SET
			owner = excluded.owner, acquired_at = excluded.acquired_at, expires_at = excluded.expires_at
		 WHERE run_locks.expires_at <= ? OR run_locks.owner = ?`,
		l.name, l.owner, now.Unix(), now.Add(l.ttl).Unix(), now.Unix(), l.owner,
	)
	if err != nil {
		return false, fmt.Errorf("storage: acquire lease %q: %w", l.name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("storage: acquire lease %q: %w", l.name, err)
	}
	return n > 0, nil
}

// Renew pushes the expiry one TTL past now if we still own the lease.
func (l *LeaseLock) Renew(ctx context.Context) (bool, error) {
	now := l.store.now()
	res, err := l.store.exec(ctx, l.store.db,
		`UPDATE run_locks SET expires_at = ? WHERE name = ? AND owner = ?`,
		now.Add(l.ttl).Unix(), l.name, l.owner,
	)
	if err != nil {
		return false, fmt.Errorf("storage: renew lease %q: %w", l.name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("storage: renew lease %q: %w", l.name, err)
	}
	return n > 0, nil
}

// TTL is the lease length.
func (l *LeaseLock) TTL() time.Duration {
	return l.ttl
}

// Unlock releases the lease if we still own it.
func (l *LeaseLock) Unlock(ctx context.Context) error {
	_, err := l.store.exec(ctx, l.store.db,
		`DELETE FROM run_locks WHERE name = ? AND owner = ?`, l.name, l.owner)
	if err != nil {
		return fmt.Errorf("storage: release lease %q: %w", l.name, err)
	}
	return nil
}

// AdvisoryLock holds a Postgres session-level advisory lock on a dedicated
// connection. The server drops it when that session ends, so a crashed run
// never leaves it behind.
type AdvisoryLock struct {
	store *Store
	key   int64
	conn  *sql.Conn
}

// NewAdvisoryLock creates an advisory lock. It is only available on Postgres.
func (s *Store) NewAdvisoryLock(key int64) (*AdvisoryLock, error) {
	if s.dialect != Postgres {
		return nil, fmt.Errorf("storage: advisory locks need postgres, have %s", s.dialect)
	}
	return &AdvisoryLock{store: s, key: key}, nil
}

// TryLock attempts pg_try_advisory_lock without waiting.
func (l *AdvisoryLock) TryLock(ctx context.Context) (bool, error) {
	if l.conn != nil {
		return true, nil
	}
	conn, err := l.store.db.Conn(ctx)
	if err != nil {
		return false, fmt.Errorf("storage: reserve lock connection: %w", err)
	}
	var ok bool
	if err := conn.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, l.key).Scan(&ok); err != nil {
		conn.Close()
		return false, fmt.Errorf("storage: try advisory lock %d: %w", l.key, err)
	}
	if !ok {
		conn.Close()
		return false, nil
	}
	l.conn = conn
	return true, nil
}

// Unlock releases the advisory lock and returns the connection to the pool.
func (l *AdvisoryLock) Unlock(ctx context.Context) error {
	if l.conn == nil {
		return nil
	}
	defer func() {
		l.conn.Close()
		l.conn = nil
	}()
	if _, err := l.conn.ExecContext(ctx, `SELECT pg_advisory_unlock($1)`, l.key); err != nil {
		return fmt.Errorf("storage: advisory unlock %d: %w", l.key, err)
	}
	return nil
}
