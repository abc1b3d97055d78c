package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ApplyFunc applies one game up to lsn and returns the new applied LSN.
type ApplyFunc func(ctx context.Context, gameID uuid.UUID, lsn int64) (int64, error)

// PoolConfig tunes a Pool. Zero values pick the defaults.
type PoolConfig struct {
	Workers int
	// Retries bounds how often a retryable failure is attempted again.
	Retries int
	Backoff time.Duration
	// Retryable reports whether an apply error may succeed on a fresh
	// transaction, e.g. a storage write conflict.
	Retryable func(error) bool
	Log       *logrus.Entry
}

// Pool runs workers that drain a Queue. Jobs of the same game never run
// concurrently within one pool; different games run in parallel.
type Pool struct {
	q     Queue
	apply ApplyFunc
	cfg   PoolConfig
	locks keyedMutex
}

// NewPool returns a pool that feeds jobs from q to apply.
func NewPool(q Queue, apply ApplyFunc, cfg PoolConfig) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 50 * time.Millisecond
	}
	if cfg.Retryable == nil {
		cfg.Retryable = func(error) bool { return false }
	}
	if cfg.Log == nil {
		cfg.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Pool{q: q, apply: apply, cfg: cfg}
}

// Run recovers unacknowledged jobs, then processes jobs until ctx is done
// or the queue is closed.
func (p *Pool) Run(ctx context.Context) error {
	n, err := p.q.Recover(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		p.cfg.Log.WithField("jobs", n).Info("recovered unacknowledged jobs")
	}

	g, ctx := errgroup.WithContext(ctx)
	for i := range p.cfg.Workers {
		g.Go(func() error { return p.work(ctx, i) })
	}
	err = g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrClosed) {
		return nil
	}
	return err
}

func (p *Pool) work(ctx context.Context, id int) error {
	log := p.cfg.Log.WithField("worker", id)
	for {
		d, err := p.q.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, ErrClosed) {
				return err
			}
			log.WithError(err).Warn("dequeue failed")
			if err := sleep(ctx, p.cfg.Backoff); err != nil {
				return err
			}
			continue
		}
		p.handle(ctx, log, d)
	}
}

// handle applies one delivery. A delivery interrupted by shutdown is left
// unacknowledged so it is redelivered; any other outcome acknowledges it,
// since the entries it covers stay pending in the log for a later job.
func (p *Pool) handle(ctx context.Context, log *logrus.Entry, d Delivery) {
	log = log.WithFields(logrus.Fields{"game_id": d.Job.GameID, "lsn": d.Job.LSN})

	unlock := p.locks.lock(d.Job.GameID)
	applied, err := p.applyWithRetry(ctx, log, d.Job)
	unlock()

	if ctx.Err() != nil {
		return
	}
	if err != nil {
		log.WithError(err).Error("apply failed")
	} else {
		log.WithField("applied_lsn", applied).Debug("applied")
	}
	if err := d.Ack(ctx); err != nil {
		log.WithError(err).Warn("ack failed")
	}
}

func (p *Pool) applyWithRetry(ctx context.Context, log *logrus.Entry, j Job) (int64, error) {
	delay := p.cfg.Backoff
	for attempt := 0; ; attempt++ {
		applied, err := p.apply(ctx, j.GameID, j.LSN)
		if err == nil || !p.cfg.Retryable(err) || attempt >= p.cfg.Retries {
			return applied, err
		}
		log.WithError(err).WithField("attempt", attempt+1).Warn("retrying apply")
		if err := sleep(ctx, delay); err != nil {
			return 0, err
		}
		if delay < time.Second {
			delay *= 2
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// keyedMutex hands out one mutex per game, dropping it when unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) lock(id uuid.UUID) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[uuid.UUID]*keyedLock)
	}
	l, ok := k.locks[id]
	if !ok {
		l = &keyedLock{}
		k.locks[id] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		if l.refs--; l.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}
