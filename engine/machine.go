package engine

import (
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"
)

// handlerFunc interprets one action in its phase. It must validate before
// it mutates; Machine.Apply rolls back anything left behind by a failure.
type handlerFunc func(x *exec) error

// registry maps every phase to the action kinds it accepts. It is fixed at
// build time; a cursor frame naming a phase missing here is corrupt.
var registry map[Phase]map[ActionKind]handlerFunc

func init() {
	registry = map[Phase]map[ActionKind]handlerFunc{
		PhaseInit: {
			KindDealCards: handleDealCards,
		},
		PhaseHouseBidding: {
			KindDiscard:        handleDiscard,
			KindBid:            handleBid,
			KindDetermineOrder: handleDetermineOrder,
		},
		PhaseChooseCapital: {
			KindChoose: handleChoose,
		},
		PhaseTurnEnd: {
			KindStartTurn: handleStartTurn,
		},
		PhaseTokenBidding: {
			KindBidTokens:          handleBidTokens,
			KindDeterminePlayOrder: handleDeterminePlayOrder,
		},
		PhaseOrderTieBreak: {
			KindChooseOrder: handleChooseOrder,
		},
		PhaseHouseTurn: {
			KindPlaceToken: handlePlaceToken,
			KindPlayCard:   handlePlayCard,
			KindBuyAdvance: handleBuyAdvance,
			KindDeclareWar: handleDeclareWar,
			KindEndTurn:    handleEndTurn,
		},
		PhaseWar: {
			KindResolveWar: handleResolveWar,
		},
		PhaseCede: {
			KindCede: handleCede,
		},
		PhaseReallocate: {
			KindReallocate: handleReallocate,
		},
		PhasePurchase:   {},
		PhaseWarCleanup: {},
		PhaseWatermill:  {},
	}
}

// Machine is the phase dispatcher. It is safe for use by one goroutine at
// a time per Machine; the service keeps one per worker.
type Machine struct {
	cat Catalog
	rng *rand.Rand
}

// NewMachine returns a Machine drawing fresh randomness from a
// crypto-seeded source.
func NewMachine(cat Catalog) *Machine {
	return NewSeededMachine(cat, newSeed())
}

// NewSeededMachine returns a Machine with a deterministic source.
func NewSeededMachine(cat Catalog, seed uint64) *Machine {
	return &Machine{cat: cat, rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Catalog returns the rule content the machine interprets actions against.
func (m *Machine) Catalog() Catalog { return m.cat }

// exec carries one action through its handler.
type exec struct {
	g         *GameState
	cat       Catalog
	rules     EditionRules
	actor     uuid.UUID
	frame     Frame
	action    Action
	dice      *dice
	followUps []Action
}

func (x *exec) params() Params { return x.action.Params }

// queue stages an engine-originated follow-up action.
func (x *exec) queue(kind ActionKind, p Params) {
	x.followUps = append(x.followUps, Action{Kind: kind, Params: p})
}

// actorHouse returns the house owned by the acting player.
func (x *exec) actorHouse() (*HouseState, error) {
	return x.g.HouseByPlayer(x.actor)
}

// Apply interprets action a, submitted by actor (uuid.Nil for the engine),
// against g. On a rule violation the state is left exactly as it was and a
// *RuleError is returned. A *StructuralError means g itself is corrupt.
func (m *Machine) Apply(g *GameState, actor uuid.UUID, a Action) (Result, error) {
	frame, ok := g.Cursor.Top()
	if !ok {
		return Result{}, ErrEmptyCursor
	}
	table, ok := registry[frame.Phase]
	if !ok {
		return Result{}, fmt.Errorf("%w %q", ErrUnknownPhase, frame.Phase)
	}
	h, ok := table[a.Kind]
	if !ok {
		return Result{}, unsupported("phase %s does not accept %s", frame.Phase, a.Kind)
	}
	if IsEngineKind(a.Kind) {
		if actor != uuid.Nil {
			return Result{}, illegalActor("%s is engine-originated", a.Kind)
		}
	} else if !frame.Permits(actor) {
		return Result{}, illegalActor("actor %s may not act in %s frame %s", actor, frame.Scope, frame.Phase)
	}

	x := &exec{
		g:      g,
		cat:    m.cat,
		rules:  m.cat.Rules(),
		actor:  actor,
		frame:  frame,
		action: a,
		dice:   newDice(a.Random, m.rng),
	}
	saved := g.Save()
	if err := h(x); err != nil {
		g.Restore(saved)
		return Result{}, err
	}
	if len(g.Cursor) == 0 {
		g.Restore(saved)
		return Result{}, fmt.Errorf("%w after %s", ErrEmptyCursor, a.Kind)
	}
	return Result{Mutated: true, Random: x.dice.result(), FollowUps: x.followUps}, nil
}
