package intelligence

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
)

// Locker grants at most one holder per key. TryLock never waits: ok is
// false when the key is already held.
type Locker interface {
	TryLock(ctx context.Context, key string) (unlock func(), ok bool, err error)
}

// KeyedLock is a single-process Locker.
type KeyedLock struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewKeyedLock creates an empty lock table.
func NewKeyedLock() *KeyedLock {
	return &KeyedLock{held: make(map[string]struct{})}
}

func (l *KeyedLock) TryLock(_ context.Context, key string) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[key]; busy {
		return nil, false, nil
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, true, nil
}

// AdvisoryLock is a Locker backed by PostgreSQL session advisory locks, so
// several processes sharing one database still analyze each user at most
// once at a time. The connection that took the lock is pinned until unlock.
type AdvisoryLock struct {
	db *sql.DB
}

// NewAdvisoryLock wraps an open lib/pq pool.
func NewAdvisoryLock(db *sql.DB) *AdvisoryLock {
	return &AdvisoryLock{db: db}
}

func (l *AdvisoryLock) TryLock(ctx context.Context, key string) (func(), bool, error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("advisory lock conn: %w", err)
	}

	var ok bool
	if err := conn.QueryRowContext(ctx, `SELECT pg_try_advisory_lock(hashtext($1))`, key).Scan(&ok); err != nil {
		_ = conn.Close()
		return nil, false, fmt.Errorf("advisory lock: %w", err)
	}
	if !ok {
		_ = conn.Close()
		return nil, false, nil
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			_, _ = conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock(hashtext($1))`, key)
			_ = conn.Close()
		})
	}, true, nil
}
