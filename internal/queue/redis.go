package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a reliable queue on two lists: jobs move atomically from the
// pending list to the processing list when dequeued and are removed from
// processing on Ack.
type Redis struct {
	rdb        *redis.Client
	pending    string
	processing string
	poll       time.Duration
}

// NewRedis returns a queue stored under key. The processing list lives at
// key + ":processing".
func NewRedis(rdb *redis.Client, key string) *Redis {
	return &Redis{
		rdb:        rdb,
		pending:    key,
		processing: key + ":processing",
		poll:       2 * time.Second,
	}
}

func (q *Redis) Enqueue(ctx context.Context, j Job) error {
	raw, err := j.marshal()
	if err != nil {
		return err
	}
	if err := q.rdb.LPush(ctx, q.pending, raw).Err(); err != nil {
		return fmt.Errorf("enqueue %s: %w", j, err)
	}
	return nil
}

func (q *Redis) Dequeue(ctx context.Context) (Delivery, error) {
	for {
		raw, err := q.rdb.BLMove(ctx, q.pending, q.processing, "RIGHT", "LEFT", q.poll).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return Delivery{}, ctx.Err()
			}
			if errors.Is(err, redis.ErrClosed) {
				return Delivery{}, ErrClosed
			}
			return Delivery{}, fmt.Errorf("dequeue: %w", err)
		}
		j, err := unmarshalJob(raw)
		if err != nil {
			return Delivery{}, q.drop(ctx, raw, err)
		}
		return Delivery{Job: j, ack: func(ctx context.Context) error {
			if err := q.rdb.LRem(ctx, q.processing, 1, raw).Err(); err != nil {
				return fmt.Errorf("ack %s: %w", j, err)
			}
			return nil
		}}, nil
	}
}

// drop removes a malformed job from the processing list; it can never
// succeed.
func (q *Redis) drop(ctx context.Context, raw string, cause error) error {
	if err := q.rdb.LRem(ctx, q.processing, 1, raw).Err(); err != nil {
		return errors.Join(cause, fmt.Errorf("drop malformed job: %w", err))
	}
	return cause
}

func (q *Redis) Recover(ctx context.Context) (int, error) {
	n := 0
	for {
		err := q.rdb.LMove(ctx, q.processing, q.pending, "LEFT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("recover: %w", err)
		}
		n++
	}
}

func (q *Redis) Close() error { return q.rdb.Close() }
