// Package store persists games: one encoded snapshot, its applied LSN and
// the append-only action log per game. Every mutation of a game's snapshot
// or entry statuses happens inside WithinGame, which holds the game
// exclusively for the duration of the callback.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/renaissance/engine"
)

var (
	// ErrNotFound is returned for an unknown game.
	ErrNotFound = errors.New("not found")
	// ErrExists is returned when creating a game id twice.
	ErrExists = errors.New("already exists")
	// ErrConflict is a storage write conflict. The caller may retry the
	// whole transaction.
	ErrConflict = errors.New("storage conflict")
)

// Status is the lifecycle state of a log entry.
type Status string

const (
	StatusAccepted  Status = "accepted"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// Origin tags who produced an entry. Engine entries are follow-ups staged
// by the apply loop.
type Origin string

const (
	OriginParticipant Origin = "participant"
	OriginEngine      Origin = "engine"
)

// Entry is one action log record.
type Entry struct {
	GameID    uuid.UUID
	LSN       int64
	Actor     uuid.UUID // uuid.Nil for engine entries
	Origin    Origin
	Status    Status
	Action    engine.Action
	Message   string
	CreatedAt time.Time
}

// Game is the stored head of one game.
type Game struct {
	ID         uuid.UUID
	Edition    string
	AppliedLSN int64
	LastLSN    int64
	Snapshot   []byte
	Initial    []byte
}

// Store is the persistence layer used by the apply engine.
type Store interface {
	// CreateGame records a new game whose initial and current snapshot
	// are both snapshot.
	CreateGame(ctx context.Context, id uuid.UUID, edition string, snapshot []byte) error
	// Append durably records an accepted entry with the next LSN.
	Append(ctx context.Context, gameID, actor uuid.UUID, origin Origin, a engine.Action) (Entry, error)
	// Game returns the stored head of a game.
	Game(ctx context.Context, id uuid.UUID) (Game, error)
	// Entries returns every entry with from < lsn, in ascending order.
	Entries(ctx context.Context, gameID uuid.UUID, from int64) ([]Entry, error)
	// Lagging returns the heads of games with entries past their applied
	// LSN, without snapshots, ordered by id.
	Lagging(ctx context.Context) ([]Game, error)
	// WithinGame runs fn in one transaction holding the game exclusively.
	// Nothing fn wrote is visible unless it returns nil.
	WithinGame(ctx context.Context, id uuid.UUID, fn func(Tx) error) error
	Close() error
}

// Tx is the transactional view of one game inside WithinGame.
type Tx interface {
	// Game returns the head as loaded when the transaction began.
	Game() Game
	// Pending returns the accepted entries in (AppliedLSN, upTo], ascending.
	Pending(ctx context.Context, upTo int64) ([]Entry, error)
	// Resolve stores the status, message and payload of e.
	Resolve(ctx context.Context, e Entry) error
	// Append records an accepted entry with the next LSN.
	Append(ctx context.Context, actor uuid.UUID, origin Origin, a engine.Action) (Entry, error)
	// SaveSnapshot replaces the current snapshot and applied LSN.
	SaveSnapshot(ctx context.Context, snapshot []byte, applied int64) error
}

func encodeAction(a engine.Action) ([]byte, error) {
	b, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal action: %w", err)
	}
	return b, nil
}

func decodeAction(b []byte) (engine.Action, error) {
	var a engine.Action
	if err := json.Unmarshal(b, &a); err != nil {
		return a, fmt.Errorf("unmarshal action: %w", err)
	}
	return a, nil
}

// checkResolve guards the one-way status transition of an entry.
func checkResolve(current Status, e Entry) error {
	if current != StatusAccepted {
		return fmt.Errorf("entry %d is already %s", e.LSN, current)
	}
	if e.Status != StatusConfirmed && e.Status != StatusFailed {
		return fmt.Errorf("entry %d cannot move to %q", e.LSN, e.Status)
	}
	return nil
}

// Open returns the Postgres store when databaseURL is set and the SQLite
// store at sqlitePath otherwise.
func Open(ctx context.Context, databaseURL, sqlitePath string) (Store, error) {
	if databaseURL != "" {
		return OpenPostgres(ctx, databaseURL)
	}
	return OpenSQLite(sqlitePath)
}
