package game

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jason-s-yu/renaissance/engine"
	"github.com/jason-s-yu/renaissance/internal/store"
	"github.com/sirupsen/logrus"
)

// Apply replays every accepted entry of the game with an LSN in
// (appliedLSN, upTo] against the stored snapshot, in one transaction, and
// returns the new applied LSN.
//
// An entry the rules reject is marked failed and the batch goes on. Any
// other error aborts the batch with nothing written. Follow-ups produced
// by confirmed entries are appended to the log in the same transaction
// and scheduled once it commits.
func (e *Engine) Apply(ctx context.Context, gameID uuid.UUID, upTo int64) (int64, error) {
	log := e.gameLog(gameID).WithField("up_to", upTo)

	var (
		applied   int64
		followUps []store.Entry
		confirmed int
		failed    int
	)
	err := e.store.WithinGame(ctx, gameID, func(tx store.Tx) error {
		head := tx.Game()
		applied = head.AppliedLSN

		pending, err := tx.Pending(ctx, upTo)
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			return nil
		}

		g, err := e.codec.Decode(head.Snapshot)
		if err != nil {
			return fmt.Errorf("decode snapshot at %d: %w", head.AppliedLSN, err)
		}
		cat, err := e.catalogs.Catalog(head.Edition)
		if err != nil {
			return err
		}
		m := e.machine(cat)

		for _, en := range pending {
			res, err := m.Apply(g, en.Actor, en.Action)
			switch {
			case err == nil:
				en.Status = store.StatusConfirmed
				if !res.Random.Empty() {
					en.Action.Random = res.Random
				}
				if !e.replay {
					for _, a := range res.FollowUps {
						f, err := tx.Append(ctx, uuid.Nil, store.OriginEngine, a)
						if err != nil {
							return err
						}
						followUps = append(followUps, f)
					}
				}
				confirmed++
			case engine.IsRuleViolation(err):
				en.Status = store.StatusFailed
				en.Message = err.Error()
				failed++
				log.WithFields(logrus.Fields{
					"lsn":    en.LSN,
					"action": en.Action.Kind,
					"actor":  en.Actor,
				}).WithError(err).Debug("entry rejected")
			default:
				return fmt.Errorf("apply entry %d (%s): %w", en.LSN, en.Action.Kind, err)
			}
			if err := tx.Resolve(ctx, en); err != nil {
				return err
			}
			applied = en.LSN
		}

		snapshot, err := e.codec.Encode(g)
		if err != nil {
			return fmt.Errorf("encode snapshot at %d: %w", applied, err)
		}
		return tx.SaveSnapshot(ctx, snapshot, applied)
	})
	if err != nil {
		return 0, err
	}

	if confirmed+failed > 0 {
		log.WithFields(logrus.Fields{
			"applied_lsn": applied,
			"confirmed":   confirmed,
			"failed":      failed,
			"follow_ups":  len(followUps),
		}).Debug("batch applied")
	}
	e.schedule(ctx, followUps...)
	return applied, nil
}

// CatchUp schedules a job for every game with unapplied entries. Workers
// run it on start so entries whose job was lost still get applied.
func (e *Engine) CatchUp(ctx context.Context) (int, error) {
	games, err := e.store.Lagging(ctx)
	if err != nil {
		return 0, err
	}
	for _, g := range games {
		e.schedule(ctx, store.Entry{GameID: g.ID, LSN: g.LastLSN})
	}
	if len(games) > 0 {
		e.log.WithField("games", len(games)).Info("scheduled lagging games")
	}
	return len(games), nil
}
