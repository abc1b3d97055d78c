// Package engine implements the Renaissance rules state machine.
//
// A GameState is the complete, serializable snapshot of one game. It is
// mutated only by Machine.Apply, one action at a time; the action log kept
// by the service replays through the same entry point, so any snapshot can
// be rebuilt from the initial state plus the confirmed log.
package engine

import (
	"fmt"
	"maps"
	"slices"
	"sort"

	"github.com/google/uuid"
)

const (
	MaxSeats   = 6
	MinPlayers = 3

	// SnapshotVersion is bumped whenever the serialized layout changes.
	SnapshotVersion = 1

	// DrawPerBidder is how many cards each participant draws for house
	// bidding.
	DrawPerBidder = 3
)

// seatTable maps player count to the play-order positions that hold a
// house; the others stay as placeholders.
var seatTable = map[int][MaxSeats]bool{
	3: {true, false, true, false, true, false},
	4: {true, true, false, true, true, false},
	5: {true, true, true, true, true, false},
	6: {true, true, true, true, true, true},
}

// ActiveSeats returns the seat mask for n players.
func ActiveSeats(n int) ([MaxSeats]bool, bool) {
	m, ok := seatTable[n]
	return m, ok
}

// TurnRecord holds one house's economic figures for one turn.
type TurnRecord struct {
	Turn        int  `json:"turn"`
	Cash        int  `json:"cash"`
	Bid         int  `json:"bid"`
	HasBid      bool `json:"has_bid"`
	Tokens      int  `json:"tokens"`
	Income      int  `json:"income"`
	Damage      int  `json:"damage"`
	Rank        int  `json:"rank"`
	TieOrdinal  int  `json:"tie_ordinal"`
	AdvanceCost int  `json:"advance_cost"`
}

// BiddingRecord is a participant's scratch data for the house-bidding phase.
type BiddingRecord struct {
	Player  uuid.UUID `json:"player"`
	Drawn   []CardID  `json:"drawn"`
	Discard CardID    `json:"discard"`
	Bid     int       `json:"bid"`
	HasBid  bool      `json:"has_bid"`
	Dice    []int     `json:"dice"`
}

func (b *BiddingRecord) complete() bool { return b.HasBid && b.Discard != "" }

// HouseState is everything one house owns.
type HouseState struct {
	ID         HouseID            `json:"id"`
	Player     uuid.UUID          `json:"player"`
	Cash       int                `json:"cash"`
	Stock      int                `json:"stock"`
	Expansion  int                `json:"expansion"`
	MarkerPool int                `json:"marker_pool"`
	Misery     int                `json:"misery"`
	Eliminated bool               `json:"eliminated"`
	Hand       []CardID           `json:"hand"`
	Advances   map[AdvanceID]bool `json:"advances"`
	Leaders    []CardID           `json:"leaders"`
	Turns      []TurnRecord       `json:"turns"`
}

// CurrentTurn returns the record for the running turn.
func (h *HouseState) CurrentTurn() *TurnRecord {
	if len(h.Turns) == 0 {
		return nil
	}
	return &h.Turns[len(h.Turns)-1]
}

// Territory is the board state of one territory. Tokens count contested
// presence; Marker is the house holding exclusive control, if any.
type Territory struct {
	Marker HouseID         `json:"marker"`
	Tokens map[HouseID]int `json:"tokens"`
}

func (t *Territory) units() int {
	n := 0
	for _, c := range t.Tokens {
		n += c
	}
	if t.Marker != "" {
		n++
	}
	return n
}

// TempBonus is a temporary modifier active until the end of the turn.
type TempBonus struct {
	House    HouseID `json:"house"`
	Card     CardID  `json:"card"`
	Modifier string  `json:"modifier"`
}

// War is an unresolved conflict between two houses.
type War struct {
	Attacker HouseID `json:"attacker"`
	Defender HouseID `json:"defender"`
}

// Cession is a decided war waiting for the loser to pick territories.
type Cession struct {
	Winner   HouseID       `json:"winner"`
	Loser    HouseID       `json:"loser"`
	Count    int           `json:"count"`
	Eligible []TerritoryID `json:"eligible"`
}

// PlayedCard records a card played in the current epoch.
type PlayedCard struct {
	Card  CardID  `json:"card"`
	House HouseID `json:"house"`
	Turn  int     `json:"turn"`
}

// GameState holds the complete, self-contained state of one game.
type GameState struct {
	Version      int                        `json:"version"`
	Edition      string                     `json:"edition"`
	NumPlayers   int                        `json:"num_players"`
	Houses       map[HouseID]*HouseState    `json:"houses"`
	PlayOrder    []HouseID                  `json:"play_order"`
	CapitalOrder []HouseID                  `json:"capital_order"`
	Bidding      []*BiddingRecord           `json:"bidding"`
	Epoch        int                        `json:"epoch"`
	Turn         int                        `json:"turn"`
	Cursor       Cursor                     `json:"cursor"`
	DrawStack    []CardID                   `json:"draw_stack"`
	DiscardStack []CardID                   `json:"discard_stack"`
	Territories  map[TerritoryID]*Territory `json:"territories"`
	Bonuses      []TempBonus                `json:"bonuses"`
	Wars         []War                      `json:"wars"`
	Removals     map[HouseID][]TerritoryID  `json:"removals"`
	Cession      *Cession                   `json:"cession,omitempty"`
	Played       []PlayedCard               `json:"played"`
}

// NewGame builds the initial snapshot for the given participants. The
// cursor starts at (engine, init) waiting for deal_cards.
func NewGame(edition string, players []uuid.UUID) (*GameState, error) {
	n := len(players)
	if _, ok := seatTable[n]; !ok {
		return nil, fmt.Errorf("unsupported player count %d", n)
	}
	seen := make(map[uuid.UUID]bool, n)
	g := &GameState{
		Version:      SnapshotVersion,
		Edition:      edition,
		NumPlayers:   n,
		Houses:       make(map[HouseID]*HouseState),
		PlayOrder:    make([]HouseID, MaxSeats),
		CapitalOrder: []HouseID{},
		Epoch:        1,
		Cursor:       Cursor{EngineFrame(PhaseInit)},
		DrawStack:    []CardID{},
		DiscardStack: []CardID{},
		Territories:  make(map[TerritoryID]*Territory),
		Bonuses:      []TempBonus{},
		Wars:         []War{},
		Removals:     make(map[HouseID][]TerritoryID),
		Played:       []PlayedCard{},
	}
	for _, p := range players {
		if p == uuid.Nil || seen[p] {
			return nil, fmt.Errorf("invalid or duplicate player %s", p)
		}
		seen[p] = true
		g.Bidding = append(g.Bidding, &BiddingRecord{Player: p, Drawn: []CardID{}, Dice: []int{}})
	}
	return g, nil
}

// ---------------------------------------------------------------------------
// Lookups
// ---------------------------------------------------------------------------

// HouseByID returns the house or an EntityNotFound error.
func (g *GameState) HouseByID(id HouseID) (*HouseState, error) {
	h, ok := g.Houses[id]
	if !ok {
		return nil, notFound("house %q", id)
	}
	return h, nil
}

// HouseByPlayer returns the house owned by player or an EntityNotFound error.
func (g *GameState) HouseByPlayer(player uuid.UUID) (*HouseState, error) {
	for _, id := range g.HouseIDs() {
		if h := g.Houses[id]; h.Player == player {
			return h, nil
		}
	}
	return nil, notFound("no house for player %s", player)
}

// BiddingByPlayer returns the participant's bidding record.
func (g *GameState) BiddingByPlayer(player uuid.UUID) (*BiddingRecord, error) {
	for _, b := range g.Bidding {
		if b.Player == player {
			return b, nil
		}
	}
	return nil, notFound("player %s is not a participant", player)
}

// HouseIDs returns the houses in play in canonical order.
func (g *GameState) HouseIDs() []HouseID {
	ids := make([]HouseID, 0, len(g.Houses))
	for id := range g.Houses {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return houseIndex(ids[i]) < houseIndex(ids[j]) })
	return ids
}

// TerritoryIDs returns the territories present on the board in sorted order.
func (g *GameState) TerritoryIDs() []TerritoryID {
	ids := make([]TerritoryID, 0, len(g.Territories))
	for id := range g.Territories {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// territory returns the board entry for id, creating it on first touch.
func (g *GameState) territory(id TerritoryID) *Territory {
	t, ok := g.Territories[id]
	if !ok {
		t = &Territory{}
		g.Territories[id] = t
	}
	if t.Tokens == nil {
		t.Tokens = make(map[HouseID]int)
	}
	return t
}

// ---------------------------------------------------------------------------
// Play order navigation
// ---------------------------------------------------------------------------

func (g *GameState) active(id HouseID) bool {
	if id == "" {
		return false
	}
	h, ok := g.Houses[id]
	return ok && !h.Eliminated
}

func (g *GameState) orderIndex(id HouseID) int {
	for i, x := range g.PlayOrder {
		if x == id {
			return i
		}
	}
	return -1
}

// FirstActive returns the first active house in play order.
func (g *GameState) FirstActive() (HouseID, bool) {
	for _, id := range g.PlayOrder {
		if g.active(id) {
			return id, true
		}
	}
	return "", false
}

// NextActive returns the next active house after id in play order,
// skipping placeholders and eliminated houses. It does not wrap.
func (g *GameState) NextActive(id HouseID) (HouseID, bool) {
	i := g.orderIndex(id)
	if i < 0 {
		return "", false
	}
	for _, x := range g.PlayOrder[i+1:] {
		if g.active(x) {
			return x, true
		}
	}
	return "", false
}

// PrevActive returns the previous active house before id in play order.
func (g *GameState) PrevActive(id HouseID) (HouseID, bool) {
	i := g.orderIndex(id)
	for j := i - 1; j >= 0; j-- {
		if g.active(g.PlayOrder[j]) {
			return g.PlayOrder[j], true
		}
	}
	return "", false
}

// orderedHouses returns active houses in play order, falling back to
// capital-choice order before the first play order is set.
func (g *GameState) orderedHouses() []HouseID {
	var out []HouseID
	for _, id := range g.PlayOrder {
		if g.active(id) {
			out = append(out, id)
		}
	}
	if len(out) > 0 {
		return out
	}
	for _, id := range g.CapitalOrder {
		if g.active(id) {
			out = append(out, id)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Save / Restore
// ---------------------------------------------------------------------------

// Snapshot is a deep copy of a GameState used to roll back a failed action.
type Snapshot struct{ g *GameState }

// Save returns a deep copy of the current state.
func (g *GameState) Save() Snapshot { return Snapshot{g: g.Clone()} }

// Restore replaces the game state with the saved copy.
func (g *GameState) Restore(s Snapshot) { *g = *s.g.Clone() }

// Clone returns a deep copy of g. Nil and empty collections are kept
// apart so a clone serializes exactly like its source.
func (g *GameState) Clone() *GameState {
	c := *g
	if g.Houses != nil {
		c.Houses = make(map[HouseID]*HouseState, len(g.Houses))
		for id, h := range g.Houses {
			hc := *h
			hc.Hand = slices.Clone(h.Hand)
			hc.Leaders = slices.Clone(h.Leaders)
			hc.Turns = slices.Clone(h.Turns)
			hc.Advances = maps.Clone(h.Advances)
			c.Houses[id] = &hc
		}
	}
	c.PlayOrder = slices.Clone(g.PlayOrder)
	c.CapitalOrder = slices.Clone(g.CapitalOrder)
	if g.Bidding != nil {
		c.Bidding = make([]*BiddingRecord, len(g.Bidding))
		for i, b := range g.Bidding {
			bc := *b
			bc.Drawn = slices.Clone(b.Drawn)
			bc.Dice = slices.Clone(b.Dice)
			c.Bidding[i] = &bc
		}
	}
	c.Cursor = slices.Clone(g.Cursor)
	c.DrawStack = slices.Clone(g.DrawStack)
	c.DiscardStack = slices.Clone(g.DiscardStack)
	if g.Territories != nil {
		c.Territories = make(map[TerritoryID]*Territory, len(g.Territories))
		for id, t := range g.Territories {
			c.Territories[id] = &Territory{Marker: t.Marker, Tokens: maps.Clone(t.Tokens)}
		}
	}
	c.Bonuses = slices.Clone(g.Bonuses)
	c.Wars = slices.Clone(g.Wars)
	if g.Removals != nil {
		c.Removals = make(map[HouseID][]TerritoryID, len(g.Removals))
		for h, ts := range g.Removals {
			c.Removals[h] = slices.Clone(ts)
		}
	}
	if g.Cession != nil {
		cs := *g.Cession
		cs.Eligible = slices.Clone(g.Cession.Eligible)
		c.Cession = &cs
	}
	c.Played = slices.Clone(g.Played)
	return &c
}
