package store

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/renaissance/engine"
)

// Memory is an in-process Store. Each game has its own lock, so different
// games proceed in parallel.
type Memory struct {
	mu    sync.Mutex
	games map[uuid.UUID]*memGame
}

type memGame struct {
	mu      sync.Mutex
	head    Game
	entries []Entry
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{games: make(map[uuid.UUID]*memGame)}
}

func (m *Memory) game(id uuid.UUID) (*memGame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.games[id]
	if !ok {
		return nil, fmt.Errorf("game %s: %w", id, ErrNotFound)
	}
	return g, nil
}

func (m *Memory) CreateGame(ctx context.Context, id uuid.UUID, edition string, snapshot []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.games[id]; ok {
		return fmt.Errorf("game %s: %w", id, ErrExists)
	}
	m.games[id] = &memGame{head: Game{
		ID:       id,
		Edition:  edition,
		Snapshot: slices.Clone(snapshot),
		Initial:  slices.Clone(snapshot),
	}}
	return nil
}

func (m *Memory) Append(ctx context.Context, gameID, actor uuid.UUID, origin Origin, a engine.Action) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}
	g, err := m.game(gameID)
	if err != nil {
		return Entry{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.append(actor, origin, a)
}

// append assumes g.mu is held.
func (g *memGame) append(actor uuid.UUID, origin Origin, a engine.Action) (Entry, error) {
	// Round-trip the payload so stored entries never alias caller memory.
	raw, err := encodeAction(a)
	if err != nil {
		return Entry{}, err
	}
	if a, err = decodeAction(raw); err != nil {
		return Entry{}, err
	}
	g.head.LastLSN++
	e := Entry{
		GameID:    g.head.ID,
		LSN:       g.head.LastLSN,
		Actor:     actor,
		Origin:    origin,
		Status:    StatusAccepted,
		Action:    a,
		CreatedAt: time.Now().UTC(),
	}
	g.entries = append(g.entries, e)
	return e, nil
}

func (m *Memory) Game(ctx context.Context, id uuid.UUID) (Game, error) {
	if err := ctx.Err(); err != nil {
		return Game{}, err
	}
	g, err := m.game(id)
	if err != nil {
		return Game{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.head, nil
}

func (m *Memory) Entries(ctx context.Context, gameID uuid.UUID, from int64) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g, err := m.game(gameID)
	if err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []Entry
	for _, e := range g.entries {
		if e.LSN > from {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *Memory) Lagging(ctx context.Context) ([]Game, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	games := slices.Collect(maps.Values(m.games))
	m.mu.Unlock()

	var out []Game
	for _, g := range games {
		g.mu.Lock()
		if g.head.AppliedLSN < g.head.LastLSN {
			out = append(out, Game{ID: g.head.ID, Edition: g.head.Edition, AppliedLSN: g.head.AppliedLSN, LastLSN: g.head.LastLSN})
		}
		g.mu.Unlock()
	}
	slices.SortFunc(out, func(a, b Game) int { return strings.Compare(a.ID.String(), b.ID.String()) })
	return out, nil
}

// WithinGame works on copies of the head and log and swaps them in only
// when fn succeeds.
func (m *Memory) WithinGame(ctx context.Context, id uuid.UUID, fn func(Tx) error) error {
	g, err := m.game(id)
	if err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &memTx{
		loaded: g.head,
		work:   &memGame{head: g.head, entries: slices.Clone(g.entries)},
	}
	if err := fn(tx); err != nil {
		return err
	}
	g.head = tx.work.head
	g.entries = tx.work.entries
	return nil
}

func (m *Memory) Close() error { return nil }

type memTx struct {
	loaded Game
	work   *memGame
}

func (t *memTx) Game() Game { return t.loaded }

func (t *memTx) Pending(ctx context.Context, upTo int64) ([]Entry, error) {
	var out []Entry
	for _, e := range t.work.entries {
		if e.LSN > t.loaded.AppliedLSN && e.LSN <= upTo && e.Status == StatusAccepted {
			out = append(out, e)
		}
	}
	return out, nil
}

func (t *memTx) Resolve(ctx context.Context, e Entry) error {
	i := slices.IndexFunc(t.work.entries, func(x Entry) bool { return x.LSN == e.LSN })
	if i < 0 {
		return fmt.Errorf("entry %d: %w", e.LSN, ErrNotFound)
	}
	cur := &t.work.entries[i]
	if err := checkResolve(cur.Status, e); err != nil {
		return err
	}
	raw, err := encodeAction(e.Action)
	if err != nil {
		return err
	}
	a, err := decodeAction(raw)
	if err != nil {
		return err
	}
	cur.Status = e.Status
	cur.Message = e.Message
	cur.Action = a
	return nil
}

func (t *memTx) Append(ctx context.Context, actor uuid.UUID, origin Origin, a engine.Action) (Entry, error) {
	return t.work.append(actor, origin, a)
}

func (t *memTx) SaveSnapshot(ctx context.Context, snapshot []byte, applied int64) error {
	if applied < t.work.head.AppliedLSN || applied > t.work.head.LastLSN {
		return fmt.Errorf("applied lsn %d outside [%d, %d]", applied, t.work.head.AppliedLSN, t.work.head.LastLSN)
	}
	t.work.head.Snapshot = slices.Clone(snapshot)
	t.work.head.AppliedLSN = applied
	return nil
}
