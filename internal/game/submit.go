package game

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jason-s-yu/renaissance/engine"
	"github.com/jason-s-yu/renaissance/internal/store"
	"github.com/sirupsen/logrus"
)

// Start creates a game for players on edition and logs the engine's
// deal_cards as its first entry. Seats follow the order of players.
//
// A game left with an empty log by an earlier Start that died between the
// two writes is completed rather than rejected; its stored snapshot wins.
func (e *Engine) Start(ctx context.Context, gameID uuid.UUID, edition string, players []uuid.UUID) (store.Entry, error) {
	if _, err := e.catalogs.Catalog(edition); err != nil {
		return store.Entry{}, err
	}
	g, err := engine.NewGame(edition, players)
	if err != nil {
		return store.Entry{}, fmt.Errorf("%w: %w", ErrInvalidSubmission, err)
	}
	snapshot, err := e.codec.Encode(g)
	if err != nil {
		return store.Entry{}, fmt.Errorf("encode initial snapshot: %w", err)
	}
	resumed := false
	if err := e.store.CreateGame(ctx, gameID, edition, snapshot); err != nil {
		if !errors.Is(err, store.ErrExists) {
			return store.Entry{}, err
		}
		resumed = true
	}

	var en store.Entry
	err = e.store.WithinGame(ctx, gameID, func(tx store.Tx) error {
		head := tx.Game()
		if head.LastLSN > 0 || head.Edition != edition {
			return fmt.Errorf("game %s: %w", gameID, store.ErrExists)
		}
		var err error
		en, err = tx.Append(ctx, uuid.Nil, store.OriginEngine, engine.Action{Kind: engine.KindDealCards})
		return err
	})
	if err != nil {
		return store.Entry{}, err
	}
	e.gameLog(gameID).WithFields(logrus.Fields{
		"edition": edition,
		"players": len(players),
		"resumed": resumed,
	}).Info("game started")
	e.schedule(ctx, en)
	return en, nil
}

// Submit records a participant action. It returns once the entry is
// durable; whether the rules accept it is decided later by Apply.
func (e *Engine) Submit(ctx context.Context, gameID, actor uuid.UUID, a engine.Action) (store.Entry, error) {
	switch {
	case actor == uuid.Nil:
		return store.Entry{}, fmt.Errorf("%w: missing actor", ErrInvalidSubmission)
	case a.Kind == "":
		return store.Entry{}, fmt.Errorf("%w: missing action", ErrInvalidSubmission)
	case engine.IsEngineKind(a.Kind):
		return store.Entry{}, fmt.Errorf("%w: %s is engine-originated", ErrInvalidSubmission, a.Kind)
	}
	// Randomness is only ever recorded by the engine.
	a.Random = nil

	en, err := e.store.Append(ctx, gameID, actor, store.OriginParticipant, a)
	if err != nil {
		return store.Entry{}, err
	}
	e.schedule(ctx, en)
	return en, nil
}

// SubmitToken is Submit with the actor taken from a bearer token.
func (e *Engine) SubmitToken(ctx context.Context, gameID uuid.UUID, token string, a engine.Action) (store.Entry, error) {
	if e.verifier == nil {
		return store.Entry{}, fmt.Errorf("%w: token submissions are not configured", ErrInvalidSubmission)
	}
	actor, err := e.verifier.Actor(token)
	if err != nil {
		return store.Entry{}, err
	}
	return e.Submit(ctx, gameID, actor, a)
}
