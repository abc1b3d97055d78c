package game

import (
	"bytes"
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jason-s-yu/renaissance/internal/store"
)

// Divergence is a log entry whose replayed outcome differs from the
// recorded one.
type Divergence struct {
	LSN     int64
	Want    store.Status
	Got     store.Status
	Message string
}

// Report is the outcome of replaying one game.
type Report struct {
	GameID        uuid.UUID
	AppliedLSN    int64
	Entries       int
	Divergences   []Divergence
	SnapshotMatch bool
}

// OK reports whether the replay reproduced the stored game exactly.
func (r Report) OK() bool { return r.SnapshotMatch && len(r.Divergences) == 0 }

// Replay rebuilds a game from its initial snapshot and its log up to the
// applied LSN, and compares every entry status and the final snapshot with
// what is stored. Recorded randomness is reused, so a healthy game replays
// identically. Nothing is written to the engine's store.
func (e *Engine) Replay(ctx context.Context, gameID uuid.UUID) (Report, error) {
	head, err := e.store.Game(ctx, gameID)
	if err != nil {
		return Report{}, err
	}
	entries, err := e.store.Entries(ctx, gameID, 0)
	if err != nil {
		return Report{}, err
	}
	r := Report{GameID: gameID, AppliedLSN: head.AppliedLSN}

	scratch := store.NewMemory()
	if err := scratch.CreateGame(ctx, gameID, head.Edition, head.Initial); err != nil {
		return r, err
	}
	want := make(map[int64]store.Entry, len(entries))
	for _, en := range entries {
		if en.LSN > head.AppliedLSN {
			break
		}
		copied, err := scratch.Append(ctx, gameID, en.Actor, en.Origin, en.Action)
		if err != nil {
			return r, err
		}
		if copied.LSN != en.LSN {
			return r, fmt.Errorf("log of game %s has a gap at lsn %d", gameID, en.LSN)
		}
		want[en.LSN] = en
	}
	r.Entries = len(want)

	replayer := NewEngine(scratch, e.codec, e.catalogs,
		WithReplayMode(),
		WithMachineFactory(e.machine),
		WithLogger(e.log.WithField("replay", true)),
	)
	if _, err := replayer.Apply(ctx, gameID, head.AppliedLSN); err != nil {
		return r, fmt.Errorf("replay game %s: %w", gameID, err)
	}

	got, err := scratch.Entries(ctx, gameID, 0)
	if err != nil {
		return r, err
	}
	for _, en := range got {
		w := want[en.LSN]
		if en.Status != w.Status {
			r.Divergences = append(r.Divergences, Divergence{LSN: en.LSN, Want: w.Status, Got: en.Status, Message: en.Message})
		}
	}

	rebuilt, err := scratch.Game(ctx, gameID)
	if err != nil {
		return r, err
	}
	r.SnapshotMatch, err = e.sameSnapshot(head.Snapshot, rebuilt.Snapshot)
	if err != nil {
		return r, err
	}

	log := e.gameLog(gameID).WithField("applied_lsn", r.AppliedLSN)
	if r.OK() {
		log.Info("replay matches")
	} else {
		log.WithField("divergences", len(r.Divergences)).Warn("replay diverged")
	}
	return r, nil
}

// sameSnapshot compares two encoded snapshots by their canonical form.
func (e *Engine) sameSnapshot(a, b []byte) (bool, error) {
	ga, err := e.codec.Decode(a)
	if err != nil {
		return false, fmt.Errorf("decode stored snapshot: %w", err)
	}
	gb, err := e.codec.Decode(b)
	if err != nil {
		return false, fmt.Errorf("decode rebuilt snapshot: %w", err)
	}
	ca, err := e.codec.Canonical(ga)
	if err != nil {
		return false, err
	}
	cb, err := e.codec.Canonical(gb)
	if err != nil {
		return false, err
	}
	return bytes.Equal(ca, cb), nil
}
