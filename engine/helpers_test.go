package engine

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/google/uuid"
)

// testCatalog is a small edition: six capitals, four provinces, a filler
// deck of commodity cards plus one of each event.
func testCatalog() *StaticCatalog {
	rules := EditionRules{
		Name:             "test",
		StartingCash:     40,
		StartingTokens:   36,
		MarkerLimit:      20,
		ExpansionPerTurn: 3,
		EpochTurns:       4,
		MaxEpoch:         3,
		HandSize:         7,
		MiseryScale:      []int{0, 10, 25, 45, 70, 100, 130, 165, 205, 250},
		Capitals: map[HouseID]TerritoryID{
			HouseGenoa:     "genoa",
			HouseVenice:    "venice",
			HouseBarcelona: "barcelona",
			HouseParis:     "paris",
			HouseLondon:    "london",
			HouseHamburg:   "hamburg",
		},
	}
	territories := []TerritoryDef{
		{ID: "genoa", Kind: TerritoryCapital, MarketSize: 3, Connected: []TerritoryID{"provence", "lombardy"}},
		{ID: "venice", Kind: TerritoryCapital, MarketSize: 3, Connected: []TerritoryID{"lombardy"}},
		{ID: "barcelona", Kind: TerritoryCapital, MarketSize: 3, Connected: []TerritoryID{"provence"}},
		{ID: "paris", Kind: TerritoryCapital, MarketSize: 3, Commodities: []CommodityID{"cloth"}, Connected: []TerritoryID{"provence", "flanders"}},
		{ID: "london", Kind: TerritoryCapital, MarketSize: 3, Commodities: []CommodityID{"cloth"}, Connected: []TerritoryID{"flanders"}},
		{ID: "hamburg", Kind: TerritoryCapital, MarketSize: 3, Connected: []TerritoryID{"flanders"}},
		{ID: "provence", Kind: TerritoryProvince, MarketSize: 2, Commodities: []CommodityID{"wine"}},
		{ID: "flanders", Kind: TerritoryProvince, MarketSize: 2, Commodities: []CommodityID{"cloth"}},
		{ID: "lombardy", Kind: TerritoryProvince, MarketSize: 2, Commodities: []CommodityID{"grain"}, Connected: []TerritoryID{"tuscany"}},
		{ID: "tuscany", Kind: TerritorySatellite, MarketSize: 1, Commodities: []CommodityID{"wine"}},
	}
	commodities := []Commodity{
		{ID: "wine", UnitPrice: 3},
		{ID: "grain", UnitPrice: 2},
		{ID: "cloth", UnitPrice: 4},
	}
	advances := []Advance{
		{ID: "writing", Category: "science", Credits: 10},
		{ID: "printing", Category: "science", Credits: 20, Prerequisites: []AdvanceID{"writing"}},
		{ID: "longbow", Category: "military", Credits: 30, Modifier: "longbow"},
		{ID: "plate", Category: "military", Credits: 30, Modifier: "armor"},
	}
	modifiers := []Modifier{
		{Name: "longbow", Combat: 1, Voids: []string{"armor"}},
		{Name: "armor", Combat: 1},
		{Name: "ruler", TieBreak: true},
		{Name: "mercs", Combat: 2},
	}
	var cards []Card
	goods := []CommodityID{"wine", "grain", "cloth"}
	for i := range 20 {
		cards = append(cards, Card{ID: CardID(fmt.Sprintf("c%02d", i)), Epoch: 1, Category: CategoryCommodity, Recycles: true, Commodity: goods[i%3]})
	}
	cards = append(cards,
		Card{ID: "war", Epoch: 1, Category: CategoryEvent, Effect: EffectWar, Target: TargetHouse, Recycles: true},
		Card{ID: "plague", Epoch: 1, Category: CategoryEvent, Effect: EffectBlackDeath, Target: TargetTerritory},
		Card{ID: "famine", Epoch: 1, Category: CategoryEvent, Effect: EffectFamine, Recycles: true},
		Card{ID: "rebellion", Epoch: 1, Category: CategoryEvent, Effect: EffectRebellion, Target: TargetTerritory, Recycles: true},
		Card{ID: "enlightened", Epoch: 1, Category: CategoryEvent, Effect: EffectEnlightenedRuler, Modifier: "ruler"},
		Card{ID: "strife", Epoch: 1, Category: CategoryEvent, Effect: EffectReligiousStrife, VoidedBy: []CardID{"enlightened"}, Recycles: true},
		Card{ID: "alchemist", Epoch: 1, Category: CategoryEvent, Effect: EffectAlchemistsGold, Target: TargetHouse, Amount: 10},
		Card{ID: "patron", Epoch: 1, Category: CategoryLeader, Discount: 5},
		Card{ID: "later1", Epoch: 1, Category: CategoryCommodity, Commodity: "wine", ShuffleLater: true, Recycles: true},
		Card{ID: "later2", Epoch: 1, Category: CategoryCommodity, Commodity: "grain", ShuffleLater: true, Recycles: true},
		Card{ID: "e2", Epoch: 2, Category: CategoryCommodity, Commodity: "cloth", Recycles: true},
		Card{ID: "scholar", Epoch: 3, Category: CategoryLeader, Discount: 8, Advances: []AdvanceID{"writing"}},
	)
	return NewStaticCatalog(rules, cards, territories, advances, commodities, modifiers)
}

func testPlayers(n int) []uuid.UUID {
	out := make([]uuid.UUID, n)
	for i := range out {
		out[i] = uuid.UUID{15: byte(i + 1)}
	}
	return out
}

// logged is one applied action with its recorded randomness.
type logged struct {
	actor  uuid.UUID
	action Action
}

// harness drives a game the way the apply engine does: every successful
// action is logged with its randomness and its follow-ups run as the
// engine right after it.
type harness struct {
	t       *testing.T
	m       *Machine
	g       *GameState
	initial *GameState
	players []uuid.UUID
	log     []logged
}

func newHarness(t *testing.T, n int, seed uint64) *harness {
	t.Helper()
	players := testPlayers(n)
	g, err := NewGame("test", players)
	if err != nil {
		t.Fatalf("NewGame: %v", err)
	}
	return &harness{t: t, m: NewSeededMachine(testCatalog(), seed), g: g, initial: g.Clone(), players: players}
}

func (h *harness) apply(actor uuid.UUID, a Action) error {
	res, err := h.m.Apply(h.g, actor, a)
	if err != nil {
		return err
	}
	if res.Random != nil {
		a.Random = res.Random
	}
	h.log = append(h.log, logged{actor: actor, action: a})
	for _, f := range res.FollowUps {
		if err := h.apply(uuid.Nil, f); err != nil {
			h.t.Fatalf("follow-up %s: %v", f.Kind, err)
		}
	}
	return nil
}

func (h *harness) must(actor uuid.UUID, a Action) {
	h.t.Helper()
	if err := h.apply(actor, a); err != nil {
		h.t.Fatalf("%s by %s: %v", a.Kind, actor, err)
	}
}

// toCapitalChoice deals and has participant i discard its first card and
// bid i, so bidding order is the reverse of participant order.
func (h *harness) toCapitalChoice() {
	h.t.Helper()
	h.must(uuid.Nil, Action{Kind: KindDealCards})
	for i, b := range h.g.Bidding {
		h.must(b.Player, Action{Kind: KindDiscard, Params: Params{Card: b.Drawn[0]}})
		h.must(b.Player, Action{Kind: KindBid, Params: Params{Bid: IntP(i)}})
	}
}

// toTokenBidding lets the k-th chooser take the k-th house.
func (h *harness) toTokenBidding() {
	h.t.Helper()
	h.toCapitalChoice()
	order := append([]*BiddingRecord(nil), h.g.Bidding...)
	for i, b := range order {
		h.must(b.Player, Action{Kind: KindChoose, Params: Params{Choice: Houses[i]}})
	}
}

// toHouseTurn has every house bid zero tokens on turn 1, so play order is
// the reverse of capital-choice order.
func (h *harness) toHouseTurn() {
	h.t.Helper()
	h.toTokenBidding()
	h.bidTokens(nil)
}

func (h *harness) bidTokens(bids map[HouseID]int) {
	h.t.Helper()
	for _, id := range h.g.HouseIDs() {
		h.must(h.player(id), Action{Kind: KindBidTokens, Params: Params{Bid: IntP(bids[id])}})
	}
}

func (h *harness) player(id HouseID) uuid.UUID {
	h.t.Helper()
	house, err := h.g.HouseByID(id)
	if err != nil {
		h.t.Fatalf("HouseByID(%s): %v", id, err)
	}
	return house.Player
}

func (h *harness) house(id HouseID) *HouseState {
	h.t.Helper()
	house, err := h.g.HouseByID(id)
	if err != nil {
		h.t.Fatalf("HouseByID(%s): %v", id, err)
	}
	return house
}

func (h *harness) top() Frame {
	h.t.Helper()
	f, ok := h.g.Cursor.Top()
	if !ok {
		h.t.Fatal("empty cursor")
	}
	return f
}

// replay rebuilds the game from the initial snapshot using the log.
func (h *harness) replay(seed uint64) *GameState {
	h.t.Helper()
	g := h.initial.Clone()
	m := NewSeededMachine(h.m.Catalog(), seed)
	for i, e := range h.log {
		if _, err := m.Apply(g, e.actor, e.action); err != nil {
			h.t.Fatalf("replay entry %d (%s): %v", i, e.action.Kind, err)
		}
	}
	return g
}

func mustJSON(t *testing.T, g *GameState) string {
	t.Helper()
	b, err := json.Marshal(g)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(b)
}
