package distlock

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedisLock_MutualExclusion(t *testing.T) {
	ctx := context.Background()
	mr, client := newRedis(t)

	a := NewRedisLock(client, "brain-cycle:org-1", time.Minute)
	b := NewRedisLock(client, "brain-cycle:org-1", time.Minute)

	ok, err := a.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, mr.Exists("lock:brain-cycle:org-1"))

	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "second holder must not acquire")

	// b does not own the key, so its release is a no-op
	require.NoError(t, b.Release(ctx))
	assert.True(t, mr.Exists("lock:brain-cycle:org-1"))

	require.NoError(t, a.Release(ctx))
	assert.False(t, mr.Exists("lock:brain-cycle:org-1"))

	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLock_DifferentOrgsIndependent(t *testing.T) {
	ctx := context.Background()
	_, client := newRedis(t)

	ok1, err := NewRedisLock(client, "brain-cycle:org-1", time.Minute).Acquire(ctx)
	require.NoError(t, err)
	ok2, err := NewRedisLock(client, "brain-cycle:org-2", time.Minute).Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok1)
	assert.True(t, ok2)
}

func TestRedisLock_ExpiryAndExtend(t *testing.T) {
	ctx := context.Background()
	mr, client := newRedis(t)

	a := NewRedisLock(client, "k", time.Second)
	ok, err := a.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, a.Extend(ctx, time.Minute))
	mr.FastForward(30 * time.Second)
	assert.True(t, mr.Exists("lock:k"))

	mr.FastForward(time.Minute)
	assert.False(t, mr.Exists("lock:k"))
	assert.ErrorIs(t, a.Extend(ctx, time.Minute), ErrLockLost)
}

func TestKeepAlive_RenewsLease(t *testing.T) {
	ctx := context.Background()
	mr, client := newRedis(t)

	a := NewRedisLock(client, "k", 90*time.Millisecond)
	ok, err := a.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	stop := KeepAlive(ctx, a, func(err error) { t.Errorf("lease lost: %v", err) })
	defer stop()

	mr.SetTTL("lock:k", time.Millisecond)
	assert.Eventually(t, func() bool { return mr.TTL("lock:k") > 50*time.Millisecond },
		time.Second, 5*time.Millisecond)
}

func TestKeepAlive_ReportsLostLease(t *testing.T) {
	ctx := context.Background()
	mr, client := newRedis(t)

	a := NewRedisLock(client, "k", 30*time.Millisecond)
	ok, err := a.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	// The key expired and another process took it.
	require.NoError(t, mr.Set("lock:k", "other-owner"))

	lost := make(chan error, 1)
	stop := KeepAlive(ctx, a, func(err error) { lost <- err })
	defer stop()

	select {
	case err := <-lost:
		assert.ErrorIs(t, err, ErrLockLost)
	case <-time.After(time.Second):
		t.Fatal("lost lease not reported")
	}
	assert.Equal(t, "other-owner", mustGet(t, mr, "lock:k"))
}

func TestKeepAlive_StopEndsRenewal(t *testing.T) {
	ctx := context.Background()
	mr, client := newRedis(t)

	a := NewRedisLock(client, "k", 30*time.Millisecond)
	ok, err := a.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	stop := KeepAlive(ctx, a, func(error) {})
	stop()

	mr.SetTTL("lock:k", time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, time.Millisecond, mr.TTL("lock:k"))
}

func mustGet(t *testing.T, mr *miniredis.Miniredis, key string) string {
	t.Helper()
	v, err := mr.Get(key)
	require.NoError(t, err)
	return v
}

func TestPGAdvisoryLock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	l := NewPGAdvisoryLock(db, "brain-cycle:org-1")
	mock.ExpectQuery(`SELECT pg_try_advisory_lock\(\$1\)`).
		WithArgs(l.lockID).
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(true))
	mock.ExpectExec(`SELECT pg_advisory_unlock\(\$1\)`).
		WithArgs(l.lockID).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := l.Acquire(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, l.Release(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGAdvisoryLock_Busy(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	l := NewPGAdvisoryLock(db, "brain-cycle:org-1")
	mock.ExpectQuery(`SELECT pg_try_advisory_lock`).
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(false))

	ok, err := l.Acquire(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	// nothing held, so no unlock statement is issued
	require.NoError(t, l.Release(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewPGAdvisoryLock_StableID(t *testing.T) {
	a := NewPGAdvisoryLock(nil, "brain-cycle:org-1")
	b := NewPGAdvisoryLock(nil, "brain-cycle:org-1")
	c := NewPGAdvisoryLock(nil, "brain-cycle:org-2")
	assert.Equal(t, a.lockID, b.lockID)
	assert.NotEqual(t, a.lockID, c.lockID)
}

func TestLocalFactory(t *testing.T) {
	ctx := context.Background()
	f := NewLocalFactory()

	a := f.Lock("org-1")
	b := f.Lock("org-1")
	ok, _ := a.Acquire(ctx)
	assert.True(t, ok)
	ok, _ = b.Acquire(ctx)
	assert.False(t, ok)

	require.NoError(t, b.Release(ctx))
	ok, _ = b.Acquire(ctx)
	assert.False(t, ok, "release by non-owner must not free the key")

	require.NoError(t, a.Release(ctx))
	ok, _ = b.Acquire(ctx)
	assert.True(t, ok)
}

func TestNewFactory_Selection(t *testing.T) {
	_, client := newRedis(t)
	_, isRedis := NewFactory(client, nil, time.Minute).(redisFactory)
	assert.True(t, isRedis)

	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	_, isPG := NewFactory(nil, db, time.Minute).(pgFactory)
	assert.True(t, isPG)

	_, isLocal := NewFactory(nil, nil, time.Minute).(*LocalFactory)
	assert.True(t, isLocal)
}
