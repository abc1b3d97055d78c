package engine

import (
	"errors"
	"fmt"
	"slices"
	"testing"

	"github.com/google/uuid"
)

// TestScenarioDealCards: a 4-player game at (engine, init) receiving
// deal_cards without recorded randomness shuffles, deals three cards to
// each bidder and opens house bidding.
func TestScenarioDealCards(t *testing.T) {
	h := newHarness(t, 4, 1)
	res, err := h.m.Apply(h.g, uuid.Nil, Action{Kind: KindDealCards})
	if err != nil {
		t.Fatalf("deal_cards: %v", err)
	}
	if !res.Mutated {
		t.Error("Mutated = false, want true")
	}
	deck := initialDeck(h.m.Catalog())
	if res.Random == nil || len(res.Random.DrawStack) != len(deck) {
		t.Fatalf("recorded draw stack = %v, want %d cards", res.Random, len(deck))
	}
	for _, b := range h.g.Bidding {
		if len(b.Drawn) != 3 {
			t.Errorf("player %s drew %d cards, want 3", b.Player, len(b.Drawn))
		}
	}
	if got, want := len(h.g.DrawStack), len(deck)-12; got != want {
		t.Errorf("draw stack = %d, want %d", got, want)
	}
	if len(h.g.Cursor) != 1 || h.top() != AnyFrame(PhaseHouseBidding) {
		t.Errorf("cursor = %v, want [(any, house_bidding)]", h.g.Cursor)
	}
	if len(res.FollowUps) != 0 {
		t.Errorf("follow-ups = %v, want none", res.FollowUps)
	}
}

// TestDealCardsConsumesRecordedStack verifies the replay path reuses the
// recorded stack verbatim.
func TestDealCardsConsumesRecordedStack(t *testing.T) {
	live := newHarness(t, 4, 1)
	res, err := live.m.Apply(live.g, uuid.Nil, Action{Kind: KindDealCards})
	if err != nil {
		t.Fatalf("deal_cards: %v", err)
	}

	replay := newHarness(t, 4, 999)
	res2, err := replay.m.Apply(replay.g, uuid.Nil, Action{Kind: KindDealCards, Random: res.Random})
	if err != nil {
		t.Fatalf("replayed deal_cards: %v", err)
	}
	if mustJSON(t, live.g) != mustJSON(t, replay.g) {
		t.Error("replayed deal differs from live deal")
	}
	if !slices.Equal(res.Random.DrawStack, res2.Random.DrawStack) {
		t.Error("replay recorded a different draw stack")
	}
}

// TestScenarioTieBreakSecondRound: two bidders tie on bid and on their
// first die, so a second round is rolled and recorded.
func TestScenarioTieBreakSecondRound(t *testing.T) {
	h := newHarness(t, 4, 1)
	h.must(uuid.Nil, Action{Kind: KindDealCards})
	p := h.players
	bids := []int{10, 10, 5, 0}
	var followUps []Action
	for i, b := range h.g.Bidding {
		if _, err := h.m.Apply(h.g, b.Player, Action{Kind: KindDiscard, Params: Params{Card: b.Drawn[1]}}); err != nil {
			t.Fatalf("discard: %v", err)
		}
		res, err := h.m.Apply(h.g, b.Player, Action{Kind: KindBid, Params: Params{Bid: IntP(bids[i])}})
		if err != nil {
			t.Fatalf("bid: %v", err)
		}
		followUps = append(followUps, res.FollowUps...)
	}
	if len(followUps) != 1 || followUps[0].Kind != KindDetermineOrder {
		t.Fatalf("follow-ups = %v, want one determine_order", followUps)
	}

	recorded := &Randomness{Dice: map[string][]int{
		p[0].String(): {4, 6},
		p[1].String(): {4, 2},
	}}
	res, err := h.m.Apply(h.g, uuid.Nil, Action{Kind: KindDetermineOrder, Random: recorded})
	if err != nil {
		t.Fatalf("determine_order: %v", err)
	}
	for _, player := range p[:2] {
		if got := res.Random.Dice[player.String()]; len(got) != 2 {
			t.Errorf("recorded dice for %s = %v, want two rounds", player, got)
		}
	}
	if len(res.Random.Dice[p[2].String()]) != 0 || len(res.Random.Dice[p[3].String()]) != 0 {
		t.Error("untied bidders should not roll")
	}
	var order []uuid.UUID
	for _, b := range h.g.Bidding {
		order = append(order, b.Player)
	}
	if !slices.Equal(order, []uuid.UUID{p[0], p[1], p[2], p[3]}) {
		t.Errorf("order = %v, want %v", order, p)
	}
	if h.top() != PlayerFrame(p[0], PhaseChooseCapital) {
		t.Errorf("top = %v, want choose_capital for first bidder", h.top())
	}
}

// TestTieBreakTerminates: identical bids and identical dice in every round
// still end after MaxTieBreakRounds with participant order.
func TestTieBreakTerminates(t *testing.T) {
	h := newHarness(t, 5, 1)
	h.must(uuid.Nil, Action{Kind: KindDealCards})
	dice := make(map[string][]int)
	for _, b := range h.g.Bidding {
		for _, a := range []Action{
			{Kind: KindDiscard, Params: Params{Card: b.Drawn[0]}},
			{Kind: KindBid, Params: Params{Bid: IntP(7)}},
		} {
			if _, err := h.m.Apply(h.g, b.Player, a); err != nil {
				t.Fatalf("%s: %v", a.Kind, err)
			}
		}
		dice[b.Player.String()] = slices.Repeat([]int{3}, MaxTieBreakRounds)
	}
	if _, err := h.m.Apply(h.g, uuid.Nil, Action{Kind: KindDetermineOrder, Random: &Randomness{Dice: dice}}); err != nil {
		t.Fatalf("determine_order: %v", err)
	}
	for i, b := range h.g.Bidding {
		if b.Player != h.players[i] {
			t.Errorf("position %d = %s, want participant order", i, b.Player)
		}
		if len(b.Dice) != MaxTieBreakRounds {
			t.Errorf("dice rounds = %d, want %d", len(b.Dice), MaxTieBreakRounds)
		}
	}
}

// TestTieBreakFreshDice runs all-equal bids over many seeds: the loop always
// ends and every participant is placed exactly once.
func TestTieBreakFreshDice(t *testing.T) {
	for seed := uint64(1); seed <= 50; seed++ {
		t.Run(fmt.Sprint(seed), func(t *testing.T) {
			h := newHarness(t, 6, seed)
			h.must(uuid.Nil, Action{Kind: KindDealCards})
			for _, b := range h.g.Bidding {
				h.must(b.Player, Action{Kind: KindDiscard, Params: Params{Card: b.Drawn[0]}})
				h.must(b.Player, Action{Kind: KindBid, Params: Params{Bid: IntP(0)}})
			}
			seen := make(map[uuid.UUID]bool)
			for _, b := range h.g.Bidding {
				seen[b.Player] = true
				if len(b.Dice) == 0 || len(b.Dice) > MaxTieBreakRounds {
					t.Errorf("dice rounds = %d", len(b.Dice))
				}
			}
			if len(seen) != 6 {
				t.Errorf("placed %d participants, want 6", len(seen))
			}
		})
	}
}

// TestScenarioUnsupportedAction: an action the phase cannot interpret
// fails with UnsupportedAction and leaves the snapshot untouched.
func TestScenarioUnsupportedAction(t *testing.T) {
	h := newHarness(t, 4, 1)
	h.must(uuid.Nil, Action{Kind: KindDealCards})
	before := mustJSON(t, h.g)

	_, err := h.m.Apply(h.g, h.players[0], Action{Kind: KindPlaceToken, Params: Params{Territory: "provence"}})
	if !errors.Is(err, ErrUnsupportedAction) {
		t.Fatalf("err = %v, want UnsupportedAction", err)
	}
	if !IsRuleViolation(err) || IsStructural(err) {
		t.Errorf("err %v should be a rule violation only", err)
	}
	if mustJSON(t, h.g) != before {
		t.Error("snapshot changed after rejected action")
	}
}

func TestIllegalActor(t *testing.T) {
	h := newHarness(t, 3, 1)

	if _, err := h.m.Apply(h.g, h.players[0], Action{Kind: KindDealCards}); !errors.Is(err, ErrIllegalActor) {
		t.Errorf("participant deal_cards: err = %v, want IllegalActor", err)
	}
	h.toCapitalChoice()
	chooser := h.top().Player
	var other uuid.UUID
	for _, p := range h.players {
		if p != chooser {
			other = p
			break
		}
	}
	if _, err := h.m.Apply(h.g, other, Action{Kind: KindChoose, Params: Params{Choice: HouseGenoa}}); !errors.Is(err, ErrIllegalActor) {
		t.Errorf("out-of-turn choose: err = %v, want IllegalActor", err)
	}
	if _, err := h.m.Apply(h.g, uuid.Nil, Action{Kind: KindChoose, Params: Params{Choice: HouseGenoa}}); !errors.Is(err, ErrIllegalActor) {
		t.Errorf("engine choose: err = %v, want IllegalActor", err)
	}
}

func TestFailedActionRollsBack(t *testing.T) {
	h := newHarness(t, 3, 1)
	h.toCapitalChoice()
	before := mustJSON(t, h.g)
	chooser := h.top().Player

	// Venice is offered, but the catalog below has no capital for it, so
	// the handler fails after validation began.
	cat := testCatalog()
	delete(cat.rules.Capitals, HouseVenice)
	m := NewSeededMachine(cat, 1)
	if _, err := m.Apply(h.g, chooser, Action{Kind: KindChoose, Params: Params{Choice: HouseVenice}}); !errors.Is(err, ErrEntityNotFound) {
		t.Fatalf("err = %v, want EntityNotFound", err)
	}
	if _, err := h.m.Apply(h.g, chooser, Action{Kind: KindChoose, Params: Params{Choice: HouseHamburg}}); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("err = %v, want InvalidParameter for a house not offered", err)
	}
	if mustJSON(t, h.g) != before {
		t.Error("snapshot changed after failed choose")
	}
}

func TestStructuralErrors(t *testing.T) {
	h := newHarness(t, 3, 1)

	h.g.Cursor = Cursor{EngineFrame("nowhere")}
	_, err := h.m.Apply(h.g, uuid.Nil, Action{Kind: KindDealCards})
	if !errors.Is(err, ErrUnknownPhase) || !IsStructural(err) {
		t.Errorf("unknown phase: err = %v, want structural ErrUnknownPhase", err)
	}
	if IsRuleViolation(err) {
		t.Error("structural error reported as rule violation")
	}

	h.g.Cursor = nil
	if _, err := h.m.Apply(h.g, uuid.Nil, Action{Kind: KindDealCards}); !errors.Is(err, ErrEmptyCursor) {
		t.Errorf("empty cursor: err = %v, want ErrEmptyCursor", err)
	}
}

func TestStubPhasesRejectEverything(t *testing.T) {
	h := newHarness(t, 3, 1)
	for _, p := range []Phase{PhasePurchase, PhaseWarCleanup, PhaseWatermill} {
		h.g.Cursor = Cursor{AnyFrame(p)}
		if got := h.g.SupportedActions(); len(got) != 0 {
			t.Errorf("%s supports %v", p, got)
		}
		if _, err := h.m.Apply(h.g, h.players[0], Action{Kind: KindEndTurn}); !errors.Is(err, ErrUnsupportedAction) {
			t.Errorf("%s: err = %v, want UnsupportedAction", p, err)
		}
	}
}

func TestEveryPhaseRegistered(t *testing.T) {
	phases := []Phase{
		PhaseInit, PhaseHouseBidding, PhaseChooseCapital, PhaseTurnEnd, PhaseTokenBidding,
		PhaseOrderTieBreak, PhaseHouseTurn, PhaseWar, PhaseCede, PhaseReallocate,
		PhasePurchase, PhaseWarCleanup, PhaseWatermill,
	}
	for _, p := range phases {
		if _, ok := registry[p]; !ok {
			t.Errorf("phase %s has no handler table", p)
		}
	}
}

func TestActionsFor(t *testing.T) {
	h := newHarness(t, 3, 1)
	if got := h.g.ActionsFor(uuid.Nil); !slices.Equal(got, []ActionKind{KindDealCards}) {
		t.Errorf("engine actions = %v", got)
	}
	if got := h.g.ActionsFor(h.players[0]); len(got) != 0 {
		t.Errorf("participant actions at init = %v", got)
	}
	h.must(uuid.Nil, Action{Kind: KindDealCards})
	if got := h.g.ActionsFor(h.players[0]); !slices.Equal(got, []ActionKind{KindBid, KindDiscard}) {
		t.Errorf("bidding actions = %v", got)
	}
}

// TestReplayDeterminism plays a full first turn with fresh randomness and
// replays the log with a different seed.
func TestReplayDeterminism(t *testing.T) {
	for _, n := range []int{3, 4, 5, 6} {
		t.Run(fmt.Sprintf("%dp", n), func(t *testing.T) {
			h := newHarness(t, n, uint64(n))
			h.toHouseTurn()
			for range n {
				h.must(h.top().Player, Action{Kind: KindEndTurn})
			}
			if h.g.Turn != 2 || h.top().Phase != PhaseTokenBidding {
				t.Fatalf("turn %d phase %s, want turn 2 token_bidding", h.g.Turn, h.top().Phase)
			}
			got := h.replay(12345)
			if mustJSON(t, got) != mustJSON(t, h.g) {
				t.Error("replayed snapshot differs from live snapshot")
			}
		})
	}
}
