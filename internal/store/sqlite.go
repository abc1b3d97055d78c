package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/renaissance/engine"
	_ "modernc.org/sqlite"
)

//go:embed schema/sqlite.sql
var sqliteSchema string

// SQLite is a Store backed by a single SQLite file. SQLite serializes
// writers, so the pool is capped at one connection and WithinGame holds
// it for the whole transaction.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and applies the
// schema.
func OpenSQLite(path string) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLite) CreateGame(ctx context.Context, id uuid.UUID, edition string, snapshot []byte) error {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM games WHERE id = ?`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("create game: %w", err)
	}
	if exists > 0 {
		return fmt.Errorf("game %s: %w", id, ErrExists)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO games (id, edition, snapshot, initial_snapshot, created_at)
VALUES (?, ?, ?, ?, ?)`,
		id, edition, snapshot, snapshot, time.Now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("create game: %w", err)
	}
	return nil
}

func (s *SQLite) Append(ctx context.Context, gameID, actor uuid.UUID, origin Origin, a engine.Action) (Entry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Entry{}, fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()
	e, err := sqliteAppend(ctx, tx, gameID, actor, origin, a)
	if err != nil {
		return Entry{}, err
	}
	if err := tx.Commit(); err != nil {
		return Entry{}, fmt.Errorf("commit append: %w", err)
	}
	return e, nil
}

func sqliteAppend(ctx context.Context, tx *sql.Tx, gameID, actor uuid.UUID, origin Origin, a engine.Action) (Entry, error) {
	payload, err := encodeAction(a)
	if err != nil {
		return Entry{}, err
	}
	var lsn int64
	err = tx.QueryRowContext(ctx, `UPDATE games SET last_lsn = last_lsn + 1 WHERE id = ? RETURNING last_lsn`, gameID).Scan(&lsn)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("game %s: %w", gameID, ErrNotFound)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("next lsn: %w", err)
	}
	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
INSERT INTO action_log (game_id, lsn, actor, origin, status, payload, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		gameID, lsn, actor, string(origin), string(StatusAccepted), string(payload), now.UnixMilli())
	if err != nil {
		return Entry{}, fmt.Errorf("insert entry: %w", err)
	}
	return Entry{
		GameID:    gameID,
		LSN:       lsn,
		Actor:     actor,
		Origin:    origin,
		Status:    StatusAccepted,
		Action:    a,
		CreatedAt: now.Truncate(time.Millisecond),
	}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

const sqliteGameColumns = `id, edition, applied_lsn, last_lsn, snapshot, initial_snapshot`

func scanGame(row rowScanner) (Game, error) {
	var g Game
	err := row.Scan(&g.ID, &g.Edition, &g.AppliedLSN, &g.LastLSN, &g.Snapshot, &g.Initial)
	return g, err
}

func (s *SQLite) Game(ctx context.Context, id uuid.UUID) (Game, error) {
	g, err := scanGame(s.db.QueryRowContext(ctx, `SELECT `+sqliteGameColumns+` FROM games WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Game{}, fmt.Errorf("game %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Game{}, fmt.Errorf("load game: %w", err)
	}
	return g, nil
}

const sqliteEntryColumns = `game_id, lsn, actor, origin, status, payload, message, created_at`

func scanSQLiteEntry(row rowScanner) (Entry, error) {
	var (
		e         Entry
		origin    string
		status    string
		payload   string
		createdAt int64
	)
	if err := row.Scan(&e.GameID, &e.LSN, &e.Actor, &origin, &status, &payload, &e.Message, &createdAt); err != nil {
		return Entry{}, err
	}
	a, err := decodeAction([]byte(payload))
	if err != nil {
		return Entry{}, err
	}
	e.Origin = Origin(origin)
	e.Status = Status(status)
	e.Action = a
	e.CreatedAt = time.UnixMilli(createdAt).UTC()
	return e, nil
}

type sqlQuerier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func querySQLiteEntries(ctx context.Context, q sqlQuerier, query string, args ...any) ([]Entry, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		e, err := scanSQLiteEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return out, nil
}

func (s *SQLite) Entries(ctx context.Context, gameID uuid.UUID, from int64) ([]Entry, error) {
	if _, err := s.Game(ctx, gameID); err != nil {
		return nil, err
	}
	return querySQLiteEntries(ctx, s.db, `
SELECT `+sqliteEntryColumns+` FROM action_log
WHERE game_id = ? AND lsn > ?
ORDER BY lsn`, gameID, from)
}

func (s *SQLite) Lagging(ctx context.Context) ([]Game, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, edition, applied_lsn, last_lsn FROM games
WHERE applied_lsn < last_lsn
ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query lagging games: %w", err)
	}
	defer rows.Close()
	var out []Game
	for rows.Next() {
		var g Game
		if err := rows.Scan(&g.ID, &g.Edition, &g.AppliedLSN, &g.LastLSN); err != nil {
			return nil, fmt.Errorf("scan game: %w", err)
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate games: %w", err)
	}
	return out, nil
}

func (s *SQLite) WithinGame(ctx context.Context, id uuid.UUID, fn func(Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	g, err := scanGame(tx.QueryRowContext(ctx, `SELECT `+sqliteGameColumns+` FROM games WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("game %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("load game: %w", err)
	}
	if err := fn(&sqliteTx{tx: tx, game: g}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type sqliteTx struct {
	tx   *sql.Tx
	game Game
}

func (t *sqliteTx) Game() Game { return t.game }

func (t *sqliteTx) Pending(ctx context.Context, upTo int64) ([]Entry, error) {
	return querySQLiteEntries(ctx, t.tx, `
SELECT `+sqliteEntryColumns+` FROM action_log
WHERE game_id = ? AND lsn > ? AND lsn <= ? AND status = ?
ORDER BY lsn`, t.game.ID, t.game.AppliedLSN, upTo, string(StatusAccepted))
}

func (t *sqliteTx) Resolve(ctx context.Context, e Entry) error {
	var current string
	err := t.tx.QueryRowContext(ctx, `SELECT status FROM action_log WHERE game_id = ? AND lsn = ?`, t.game.ID, e.LSN).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("entry %d: %w", e.LSN, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("load entry %d: %w", e.LSN, err)
	}
	if err := checkResolve(Status(current), e); err != nil {
		return err
	}
	payload, err := encodeAction(e.Action)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx, `
UPDATE action_log SET status = ?, message = ?, payload = ?
WHERE game_id = ? AND lsn = ?`,
		string(e.Status), e.Message, string(payload), t.game.ID, e.LSN)
	if err != nil {
		return fmt.Errorf("resolve entry %d: %w", e.LSN, err)
	}
	return nil
}

func (t *sqliteTx) Append(ctx context.Context, actor uuid.UUID, origin Origin, a engine.Action) (Entry, error) {
	return sqliteAppend(ctx, t.tx, t.game.ID, actor, origin, a)
}

func (t *sqliteTx) SaveSnapshot(ctx context.Context, snapshot []byte, applied int64) error {
	res, err := t.tx.ExecContext(ctx, `
UPDATE games SET snapshot = ?, applied_lsn = ?
WHERE id = ? AND applied_lsn <= ? AND last_lsn >= ?`,
		snapshot, applied, t.game.ID, applied, applied)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil || n != 1 {
		return fmt.Errorf("save snapshot: applied lsn %d rejected", applied)
	}
	return nil
}
