package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/renaissance/engine"
)

//go:embed schema/postgres.sql
var postgresSchema string

// Postgres is the production Store. WithinGame runs a serializable
// transaction that row-locks the game.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to url and applies the schema.
func OpenPostgres(ctx context.Context, url string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply postgres schema: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

// pgError maps driver errors onto the store's sentinels.
func pgError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return fmt.Errorf("%s: %w: %s", op, ErrConflict, pgErr.Message)
		case "23505":
			return fmt.Errorf("%s: %w: %s", op, ErrExists, pgErr.Message)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (p *Postgres) CreateGame(ctx context.Context, id uuid.UUID, edition string, snapshot []byte) error {
	_, err := p.pool.Exec(ctx, `
INSERT INTO games (id, edition, snapshot, initial_snapshot)
VALUES ($1, $2, $3, $3)`, id, edition, snapshot)
	if err != nil {
		return pgError("create game", err)
	}
	return nil
}

func (p *Postgres) Append(ctx context.Context, gameID, actor uuid.UUID, origin Origin, a engine.Action) (Entry, error) {
	var e Entry
	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		var err error
		e, err = pgAppend(ctx, tx, gameID, actor, origin, a)
		return err
	})
	if err != nil {
		return Entry{}, pgError("append", err)
	}
	return e, nil
}

func pgAppend(ctx context.Context, tx pgx.Tx, gameID, actor uuid.UUID, origin Origin, a engine.Action) (Entry, error) {
	payload, err := encodeAction(a)
	if err != nil {
		return Entry{}, err
	}
	var lsn int64
	err = tx.QueryRow(ctx, `UPDATE games SET last_lsn = last_lsn + 1 WHERE id = $1 RETURNING last_lsn`, gameID).Scan(&lsn)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, fmt.Errorf("game %s: %w", gameID, ErrNotFound)
	}
	if err != nil {
		return Entry{}, pgError("next lsn", err)
	}
	e := Entry{GameID: gameID, LSN: lsn, Actor: actor, Origin: origin, Status: StatusAccepted, Action: a}
	err = tx.QueryRow(ctx, `
INSERT INTO action_log (game_id, lsn, actor, origin, status, payload)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING created_at`,
		gameID, lsn, actor, string(origin), string(StatusAccepted), payload).Scan(&e.CreatedAt)
	if err != nil {
		return Entry{}, pgError("insert entry", err)
	}
	return e, nil
}

const pgGameColumns = `id, edition, applied_lsn, last_lsn, snapshot, initial_snapshot`

func (p *Postgres) Game(ctx context.Context, id uuid.UUID) (Game, error) {
	g, err := scanGame(p.pool.QueryRow(ctx, `SELECT `+pgGameColumns+` FROM games WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Game{}, fmt.Errorf("game %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Game{}, pgError("load game", err)
	}
	return g, nil
}

const pgEntryColumns = `game_id, lsn, actor, origin, status, payload, message, created_at`

type pgQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryPGEntries(ctx context.Context, q pgQuerier, query string, args ...any) ([]Entry, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, pgError("query entries", err)
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var (
			e       Entry
			origin  string
			status  string
			payload []byte
		)
		if err := rows.Scan(&e.GameID, &e.LSN, &e.Actor, &origin, &status, &payload, &e.Message, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		if e.Action, err = decodeAction(payload); err != nil {
			return nil, err
		}
		e.Origin = Origin(origin)
		e.Status = Status(status)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, pgError("iterate entries", err)
	}
	return out, nil
}

func (p *Postgres) Entries(ctx context.Context, gameID uuid.UUID, from int64) ([]Entry, error) {
	if _, err := p.Game(ctx, gameID); err != nil {
		return nil, err
	}
	return queryPGEntries(ctx, p.pool, `
SELECT `+pgEntryColumns+` FROM action_log
WHERE game_id = $1 AND lsn > $2
ORDER BY lsn`, gameID, from)
}

func (p *Postgres) Lagging(ctx context.Context) ([]Game, error) {
	rows, err := p.pool.Query(ctx, `
SELECT id, edition, applied_lsn, last_lsn FROM games
WHERE applied_lsn < last_lsn
ORDER BY id`)
	if err != nil {
		return nil, pgError("query lagging games", err)
	}
	games, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Game, error) {
		var g Game
		err := row.Scan(&g.ID, &g.Edition, &g.AppliedLSN, &g.LastLSN)
		return g, err
	})
	if err != nil {
		return nil, pgError("scan lagging games", err)
	}
	return games, nil
}

func (p *Postgres) WithinGame(ctx context.Context, id uuid.UUID, fn func(Tx) error) error {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return pgError("begin", err)
	}
	defer tx.Rollback(ctx)

	g, err := scanGame(tx.QueryRow(ctx, `SELECT `+pgGameColumns+` FROM games WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("game %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return pgError("lock game", err)
	}
	if err := fn(&pgTx{tx: tx, game: g}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return pgError("commit", err)
	}
	return nil
}

type pgTx struct {
	tx   pgx.Tx
	game Game
}

func (t *pgTx) Game() Game { return t.game }

func (t *pgTx) Pending(ctx context.Context, upTo int64) ([]Entry, error) {
	return queryPGEntries(ctx, t.tx, `
SELECT `+pgEntryColumns+` FROM action_log
WHERE game_id = $1 AND lsn > $2 AND lsn <= $3 AND status = $4
ORDER BY lsn
FOR UPDATE`, t.game.ID, t.game.AppliedLSN, upTo, string(StatusAccepted))
}

func (t *pgTx) Resolve(ctx context.Context, e Entry) error {
	var current string
	err := t.tx.QueryRow(ctx, `SELECT status FROM action_log WHERE game_id = $1 AND lsn = $2`, t.game.ID, e.LSN).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("entry %d: %w", e.LSN, ErrNotFound)
	}
	if err != nil {
		return pgError("load entry", err)
	}
	if err := checkResolve(Status(current), e); err != nil {
		return err
	}
	payload, err := encodeAction(e.Action)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, `
UPDATE action_log SET status = $1, message = $2, payload = $3
WHERE game_id = $4 AND lsn = $5`,
		string(e.Status), e.Message, payload, t.game.ID, e.LSN)
	if err != nil {
		return pgError("resolve entry", err)
	}
	return nil
}

func (t *pgTx) Append(ctx context.Context, actor uuid.UUID, origin Origin, a engine.Action) (Entry, error) {
	return pgAppend(ctx, t.tx, t.game.ID, actor, origin, a)
}

func (t *pgTx) SaveSnapshot(ctx context.Context, snapshot []byte, applied int64) error {
	tag, err := t.tx.Exec(ctx, `
UPDATE games SET snapshot = $1, applied_lsn = $2
WHERE id = $3 AND applied_lsn <= $2 AND last_lsn >= $2`,
		snapshot, applied, t.game.ID)
	if err != nil {
		return pgError("save snapshot", err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("save snapshot: applied lsn %d rejected", applied)
	}
	return nil
}
