package queue

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func queues(t *testing.T) map[string]Queue {
	t.Helper()
	out := map[string]Queue{"memory": NewMemory()}
	if addr := os.Getenv("RENAISSANCE_TEST_REDIS_ADDR"); addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		out["redis"] = NewRedis(rdb, "renaissance:test:"+uuid.NewString())
	}
	for _, q := range out {
		t.Cleanup(func() { _ = q.Close() })
	}
	return out
}

func TestDeliveryAndRecover(t *testing.T) {
	for name, q := range queues(t) {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			a := Job{GameID: uuid.New(), LSN: 1}
			b := Job{GameID: uuid.New(), LSN: 7}
			require.NoError(t, q.Enqueue(ctx, a))
			require.NoError(t, q.Enqueue(ctx, b))

			d1, err := q.Dequeue(ctx)
			require.NoError(t, err)
			assert.Equal(t, a, d1.Job)
			d2, err := q.Dequeue(ctx)
			require.NoError(t, err)
			assert.Equal(t, b, d2.Job)
			require.NoError(t, d2.Ack(ctx))

			// d1 was never acknowledged, as if its worker crashed.
			n, err := q.Recover(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, n)
			again, err := q.Dequeue(ctx)
			require.NoError(t, err)
			assert.Equal(t, a, again.Job)
			require.NoError(t, again.Ack(ctx))

			n, err = q.Recover(ctx)
			require.NoError(t, err)
			assert.Zero(t, n)
		})
	}
}

func TestDequeueHonoursContext(t *testing.T) {
	q := NewMemory()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := q.Dequeue(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, q.Close())
	_, err = q.Dequeue(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, q.Enqueue(context.Background(), Job{}), ErrClosed)
}

// TestPoolSerializesGames runs many jobs over a few games and checks no two
// applies of one game ever overlap.
func TestPoolSerializesGames(t *testing.T) {
	q := NewMemory()
	games := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	const perGame = 20

	var (
		mu       sync.Mutex
		inflight = make(map[uuid.UUID]int)
		overlaps atomic.Int32
		done     sync.WaitGroup
	)
	done.Add(len(games) * perGame)
	apply := func(ctx context.Context, id uuid.UUID, lsn int64) (int64, error) {
		defer done.Done()
		mu.Lock()
		inflight[id]++
		if inflight[id] > 1 {
			overlaps.Add(1)
		}
		mu.Unlock()
		time.Sleep(time.Millisecond)
		mu.Lock()
		inflight[id]--
		mu.Unlock()
		return lsn, nil
	}

	logger, _ := test.NewNullLogger()
	pool := NewPool(q, apply, PoolConfig{Workers: 6, Log: logrus.NewEntry(logger)})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- pool.Run(ctx) }()

	for i := range perGame {
		for _, g := range games {
			require.NoError(t, q.Enqueue(ctx, Job{GameID: g, LSN: int64(i + 1)}))
		}
	}
	done.Wait()
	require.Eventually(t, func() bool { return q.Len() == 0 }, time.Second, 5*time.Millisecond,
		"every job acknowledged")
	cancel()
	require.NoError(t, <-errc)

	assert.Zero(t, overlaps.Load(), "applies of one game overlapped")
}

func TestPoolRetriesConflicts(t *testing.T) {
	q := NewMemory()
	errConflict := errors.New("conflict")
	errFatal := errors.New("corrupt cursor")
	conflictGame, fatalGame := uuid.New(), uuid.New()

	var calls sync.Map
	var done sync.WaitGroup
	done.Add(2)
	apply := func(ctx context.Context, id uuid.UUID, lsn int64) (int64, error) {
		v, _ := calls.LoadOrStore(id, new(atomic.Int32))
		n := v.(*atomic.Int32).Add(1)
		switch {
		case id == fatalGame:
			done.Done()
			return 0, errFatal
		case n < 3:
			return 0, errConflict
		}
		done.Done()
		return lsn, nil
	}

	logger, hook := test.NewNullLogger()
	pool := NewPool(q, apply, PoolConfig{
		Workers:   2,
		Retries:   5,
		Backoff:   time.Millisecond,
		Retryable: func(err error) bool { return errors.Is(err, errConflict) },
		Log:       logrus.NewEntry(logger),
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- pool.Run(ctx) }()

	require.NoError(t, q.Enqueue(ctx, Job{GameID: conflictGame, LSN: 3}))
	require.NoError(t, q.Enqueue(ctx, Job{GameID: fatalGame, LSN: 1}))
	done.Wait()
	require.Eventually(t, func() bool { return q.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-errc)

	v, _ := calls.Load(conflictGame)
	assert.EqualValues(t, 3, v.(*atomic.Int32).Load())
	v, _ = calls.Load(fatalGame)
	assert.EqualValues(t, 1, v.(*atomic.Int32).Load(), "structural failures are not retried")

	var sawFatal bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.ErrorLevel && e.Data[logrus.ErrorKey] == errFatal {
			sawFatal = true
			assert.Equal(t, fatalGame, e.Data["game_id"])
		}
	}
	assert.True(t, sawFatal, "fatal apply error logged")
}

func TestKeyedMutexReleases(t *testing.T) {
	var k keyedMutex
	id := uuid.New()
	unlock := k.lock(id)
	unlock()
	assert.Empty(t, k.locks)
}

func TestRedisDropReportsFailedRemoval(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 200 * time.Millisecond})
	q := NewRedis(rdb, "renaissance:test:"+uuid.NewString())
	t.Cleanup(func() { _ = q.Close() })

	cause := errors.New("bad job")
	err := q.drop(context.Background(), "{", cause)
	require.ErrorIs(t, err, cause)
	assert.ErrorContains(t, err, "drop malformed job")
}

func TestRedisDropsMalformedJobs(t *testing.T) {
	addr := os.Getenv("RENAISSANCE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("RENAISSANCE_TEST_REDIS_ADDR not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	q := NewRedis(rdb, "renaissance:test:"+uuid.NewString())
	t.Cleanup(func() { _ = q.Close() })

	require.NoError(t, rdb.LPush(ctx, q.pending, "not json").Err())
	_, err := q.Dequeue(ctx)
	require.Error(t, err)
	n, err := rdb.LLen(ctx, q.processing).Result()
	require.NoError(t, err)
	assert.Zero(t, n, "malformed job left in processing")
}
