// Package game runs games against durable storage: it accepts submissions
// into the action log, applies the log to the stored snapshot, schedules
// engine follow-ups and audits games by replaying them.
package game

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jason-s-yu/renaissance/engine"
	"github.com/jason-s-yu/renaissance/internal/auth"
	"github.com/jason-s-yu/renaissance/internal/queue"
	"github.com/jason-s-yu/renaissance/internal/snapcodec"
	"github.com/jason-s-yu/renaissance/internal/store"
	"github.com/sirupsen/logrus"
)

// ErrInvalidSubmission is returned when a submission is rejected before it
// reaches the log.
var ErrInvalidSubmission = errors.New("invalid submission")

// Catalogs resolves the rule content of an edition.
type Catalogs interface {
	Catalog(edition string) (engine.Catalog, error)
}

// Scheduler takes apply jobs. queue.Queue satisfies it.
type Scheduler interface {
	Enqueue(ctx context.Context, j queue.Job) error
}

// MachineFactory builds the state machine for one apply batch.
type MachineFactory func(engine.Catalog) *engine.Machine

// Engine is the apply engine. It is safe for concurrent use; correctness
// across processes rests on the store holding each game exclusively
// inside WithinGame.
type Engine struct {
	store    store.Store
	codec    *snapcodec.Codec
	catalogs Catalogs
	sched    Scheduler
	verifier *auth.Verifier
	machine  MachineFactory
	log      *logrus.Entry
	replay   bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithScheduler sets where apply jobs go. Without one, follow-ups and
// submissions are only logged and must be applied by the caller.
func WithScheduler(s Scheduler) Option { return func(e *Engine) { e.sched = s } }

// WithLogger sets the base log entry.
func WithLogger(l *logrus.Entry) Option { return func(e *Engine) { e.log = l } }

// WithVerifier enables SubmitToken.
func WithVerifier(v *auth.Verifier) Option { return func(e *Engine) { e.verifier = v } }

// WithMachineFactory overrides how state machines are built, e.g. with a
// fixed seed.
func WithMachineFactory(f MachineFactory) Option { return func(e *Engine) { e.machine = f } }

// WithReplayMode makes Apply stop appending follow-ups. Used when the log
// being applied already holds them.
func WithReplayMode() Option { return func(e *Engine) { e.replay = true } }

// NewEngine returns an engine over s.
func NewEngine(s store.Store, codec *snapcodec.Codec, catalogs Catalogs, opts ...Option) *Engine {
	e := &Engine{
		store:    s,
		codec:    codec,
		catalogs: catalogs,
		machine:  engine.NewMachine,
		log:      logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) gameLog(id uuid.UUID) *logrus.Entry {
	return e.log.WithField("game_id", id)
}

// schedule enqueues one job per entry. A lost job only delays the entry
// until the next job for the game, so failures are logged, not returned.
func (e *Engine) schedule(ctx context.Context, entries ...store.Entry) {
	for _, en := range entries {
		log := e.gameLog(en.GameID).WithFields(logrus.Fields{"lsn": en.LSN, "action": en.Action.Kind})
		if e.sched == nil {
			log.Debug("no scheduler, entry left for the caller")
			continue
		}
		if err := e.sched.Enqueue(ctx, queue.Job{GameID: en.GameID, LSN: en.LSN}); err != nil {
			log.WithError(err).Error("schedule apply")
		}
	}
}
