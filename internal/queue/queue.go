// Package queue carries apply jobs to workers with at-least-once delivery.
// A job is only a hint: applying a game up to an LSN it has already
// passed does nothing, so duplicates and redeliveries are harmless.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrClosed is returned by a queue after Close.
var ErrClosed = errors.New("queue closed")

// Job asks a worker to apply one game up to LSN.
type Job struct {
	GameID uuid.UUID `json:"game_id"`
	LSN    int64     `json:"lsn"`
}

func (j Job) String() string { return fmt.Sprintf("%s@%d", j.GameID, j.LSN) }

func (j Job) marshal() (string, error) {
	b, err := json.Marshal(j)
	if err != nil {
		return "", fmt.Errorf("marshal job: %w", err)
	}
	return string(b), nil
}

func unmarshalJob(s string) (Job, error) {
	var j Job
	if err := json.Unmarshal([]byte(s), &j); err != nil {
		return j, fmt.Errorf("unmarshal job %q: %w", s, err)
	}
	return j, nil
}

// Delivery is a dequeued job. It stays owned by the consumer until Ack;
// an unacknowledged delivery is handed out again after Recover.
type Delivery struct {
	Job Job
	ack func(ctx context.Context) error
}

// Ack removes the delivery from the queue for good.
func (d Delivery) Ack(ctx context.Context) error {
	if d.ack == nil {
		return nil
	}
	return d.ack(ctx)
}

// Queue is a work queue of apply jobs.
type Queue interface {
	Enqueue(ctx context.Context, j Job) error
	// Dequeue blocks until a job is available or ctx is done.
	Dequeue(ctx context.Context) (Delivery, error)
	// Recover returns every unacknowledged delivery to the queue. Workers
	// call it on start to pick up jobs a crashed process held.
	Recover(ctx context.Context) (int, error)
	Close() error
}

// Open returns a Redis queue when addr is set and an in-process queue
// otherwise.
func Open(addr, password, key string) Queue {
	if addr == "" {
		return NewMemory()
	}
	return NewRedis(redis.NewClient(&redis.Options{Addr: addr, Password: password}), key)
}
