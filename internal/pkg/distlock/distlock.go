// Package distlock serializes work on a key across goroutines and processes.
// The brain engine takes one lock per organization so that two cycles for the
// same tenant never race to persist a "latest" snapshot.
package distlock

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DistLock is a single non-blocking lock on one key.
// A DistLock value is owned by one caller; take a new one per attempt.
type DistLock interface {
	// Acquire tries to take the lock and reports whether it succeeded.
	Acquire(ctx context.Context) (bool, error)
	// Release drops the lock if this instance still owns it.
	Release(ctx context.Context) error
}

// Lease is a lock that expires unless its holder renews it.
type Lease interface {
	DistLock
	TTL() time.Duration
	Extend(ctx context.Context, ttl time.Duration) error
}

// KeepAlive renews l every third of its TTL until stop is called or ctx
// ends. If a renewal fails, onLost receives the error once and renewal
// stops; the caller no longer owns the lock.
func KeepAlive(ctx context.Context, l Lease, onLost func(error)) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(max(l.TTL()/3, time.Millisecond))
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := l.Extend(ctx, l.TTL()); err != nil {
					if ctx.Err() == nil {
						onLost(err)
					}
					return
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// Factory hands out locks by key.
type Factory interface {
	Lock(key string) DistLock
}

// NewFactory picks the best available backend: Redis when a client is
// given, else Postgres advisory locks, else an in-process lock table.
func NewFactory(redisClient *redis.Client, db *sql.DB, ttl time.Duration) Factory {
	switch {
	case redisClient != nil:
		return redisFactory{client: redisClient, ttl: ttl}
	case db != nil:
		return pgFactory{db: db}
	default:
		return NewLocalFactory()
	}
}

type redisFactory struct {
	client *redis.Client
	ttl    time.Duration
}

func (f redisFactory) Lock(key string) DistLock { return NewRedisLock(f.client, key, f.ttl) }

type pgFactory struct{ db *sql.DB }

func (f pgFactory) Lock(key string) DistLock { return NewPGAdvisoryLock(f.db, key) }

// PGAdvisoryLock implements DistLock with pg_try_advisory_lock. Advisory
// locks are session scoped, so the lock pins one pooled connection from
// Acquire until Release. A dropped connection frees the lock server side.
type PGAdvisoryLock struct {
	db     *sql.DB
	lockID int64
	conn   *sql.Conn
}

// NewPGAdvisoryLock derives a stable 64-bit lock id from key.
func NewPGAdvisoryLock(db *sql.DB, key string) *PGAdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte(key))
	return &PGAdvisoryLock{
		db:     db,
		lockID: int64(h.Sum64()),
	}
}

func (l *PGAdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	if l.conn != nil {
		return false, fmt.Errorf("advisory lock %d already held by this instance", l.lockID)
	}
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to reserve connection for advisory lock: %w", err)
	}
	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired); err != nil {
		conn.Close()
		return false, fmt.Errorf("failed to acquire advisory lock %d: %w", l.lockID, err)
	}
	if !acquired {
		conn.Close()
		return false, nil
	}
	l.conn = conn
	return true, nil
}

func (l *PGAdvisoryLock) Release(ctx context.Context) error {
	if l.conn == nil {
		return nil
	}
	defer func() {
		l.conn.Close()
		l.conn = nil
	}()
	_, err := l.conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID)
	return err
}

// LocalFactory serializes keys inside one process. It backs single-binary
// deployments and tests where neither Redis nor Postgres is configured.
type LocalFactory struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocalFactory() *LocalFactory {
	return &LocalFactory{held: make(map[string]struct{})}
}

func (f *LocalFactory) Lock(key string) DistLock { return &localLock{f: f, key: key} }

type localLock struct {
	f     *LocalFactory
	key   string
	owned bool
}

func (l *localLock) Acquire(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	l.f.mu.Lock()
	defer l.f.mu.Unlock()
	if _, busy := l.f.held[l.key]; busy {
		return false, nil
	}
	l.f.held[l.key] = struct{}{}
	l.owned = true
	return true, nil
}

func (l *localLock) Release(_ context.Context) error {
	if !l.owned {
		return nil
	}
	l.f.mu.Lock()
	delete(l.f.held, l.key)
	l.f.mu.Unlock()
	l.owned = false
	return nil
}
