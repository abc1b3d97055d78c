package engine

import "github.com/google/uuid"

// HouseID names one of the six trading houses.
type HouseID string

// House identifiers, in canonical seat order.
const (
	HouseGenoa     HouseID = "Gen"
	HouseVenice    HouseID = "Ven"
	HouseBarcelona HouseID = "Bar"
	HouseParis     HouseID = "Par"
	HouseLondon    HouseID = "Lon"
	HouseHamburg   HouseID = "Ham"
)

// Houses lists every house in canonical order. A game with N players
// offers the first N houses during capital selection.
var Houses = [MaxSeats]HouseID{HouseGenoa, HouseVenice, HouseBarcelona, HouseParis, HouseLondon, HouseHamburg}

// houseIndex returns the canonical position of h, or -1.
func houseIndex(h HouseID) int {
	for i, x := range Houses {
		if x == h {
			return i
		}
	}
	return -1
}

type (
	CardID      string
	TerritoryID string
	AdvanceID   string
	CommodityID string
)

// ---------------------------------------------------------------------------
// State cursor
// ---------------------------------------------------------------------------

// Scope says who may act in a frame.
type Scope string

const (
	ScopePlayer Scope = "player" // one specific participant
	ScopeAny    Scope = "any"    // any participant
	ScopeEngine Scope = "engine" // engine-originated actions only
)

// Phase names a state of the turn structure. Every phase maps to exactly
// one entry of the phase registry.
type Phase string

const (
	PhaseInit          Phase = "init"
	PhaseHouseBidding  Phase = "house_bidding"
	PhaseChooseCapital Phase = "choose_capital"
	PhaseTurnEnd       Phase = "turn_end"
	PhaseTokenBidding  Phase = "token_bidding"
	PhaseOrderTieBreak Phase = "order_tiebreak"
	PhaseHouseTurn     Phase = "house_turn"
	PhaseWar           Phase = "war"
	PhaseCede          Phase = "cede"
	PhaseReallocate    Phase = "reallocate"

	// Extension points: registered, but every action is rejected.
	PhasePurchase   Phase = "purchase"
	PhaseWarCleanup Phase = "war_cleanup"
	PhaseWatermill  Phase = "watermill"
)

// Frame is one entry of the state cursor.
type Frame struct {
	Scope  Scope     `json:"scope"`
	Player uuid.UUID `json:"player"`
	Phase  Phase     `json:"phase"`
}

// AnyFrame, EngineFrame and PlayerFrame build frames of each scope.
func AnyFrame(p Phase) Frame    { return Frame{Scope: ScopeAny, Phase: p} }
func EngineFrame(p Phase) Frame { return Frame{Scope: ScopeEngine, Phase: p} }
func PlayerFrame(player uuid.UUID, p Phase) Frame {
	return Frame{Scope: ScopePlayer, Player: player, Phase: p}
}

// Permits reports whether a participant may act in this frame.
// Engine-originated actions carry uuid.Nil and are checked per action kind.
func (f Frame) Permits(actor uuid.UUID) bool {
	if actor == uuid.Nil {
		return false
	}
	switch f.Scope {
	case ScopeAny:
		return true
	case ScopePlayer:
		return f.Player == actor
	}
	return false
}

// Cursor is the stack of frames; the last element is the top.
type Cursor []Frame

// Top returns the active frame.
func (c Cursor) Top() (Frame, bool) {
	if len(c) == 0 {
		return Frame{}, false
	}
	return c[len(c)-1], true
}

// Push suspends the current frame under f.
func (c *Cursor) Push(f Frame) { *c = append(*c, f) }

// Pop removes the top frame and returns it.
func (c *Cursor) Pop() (Frame, bool) {
	top, ok := c.Top()
	if !ok {
		return Frame{}, false
	}
	*c = (*c)[:len(*c)-1]
	return top, true
}

// Replace swaps the top frame for f, or pushes f onto an empty cursor.
func (c *Cursor) Replace(f Frame) {
	if len(*c) == 0 {
		c.Push(f)
		return
	}
	(*c)[len(*c)-1] = f
}

// ---------------------------------------------------------------------------
// Actions
// ---------------------------------------------------------------------------

// ActionKind identifies what an action does.
type ActionKind string

const (
	KindDealCards          ActionKind = "deal_cards"
	KindDiscard            ActionKind = "discard"
	KindBid                ActionKind = "bid"
	KindDetermineOrder     ActionKind = "determine_order"
	KindChoose             ActionKind = "choose"
	KindStartTurn          ActionKind = "start_turn"
	KindBidTokens          ActionKind = "bid_tokens"
	KindDeterminePlayOrder ActionKind = "determine_play_order"
	KindChooseOrder        ActionKind = "choose_order"
	KindPlaceToken         ActionKind = "place_token"
	KindPlayCard           ActionKind = "play_card"
	KindBuyAdvance         ActionKind = "buy_advance"
	KindDeclareWar         ActionKind = "declare_war"
	KindEndTurn            ActionKind = "end_turn"
	KindResolveWar         ActionKind = "resolve_war"
	KindCede               ActionKind = "cede"
	KindReallocate         ActionKind = "reallocate"
)

// engineKinds may only be submitted by the engine itself.
var engineKinds = map[ActionKind]bool{
	KindDealCards:          true,
	KindDetermineOrder:     true,
	KindStartTurn:          true,
	KindDeterminePlayOrder: true,
	KindResolveWar:         true,
}

// IsEngineKind reports whether k is reserved for engine-originated actions.
func IsEngineKind(k ActionKind) bool { return engineKinds[k] }

// Conversion says what becomes of a removed dominance marker.
type Conversion string

const (
	ConvertStock     Conversion = "stock"
	ConvertExpansion Conversion = "expansion"
	ConvertVanish    Conversion = "vanish"
)

// Params carries the actor-supplied parameters of an action. Which fields
// are required depends on the action kind.
type Params struct {
	Card        CardID                     `json:"card,omitempty"`
	Bid         *int                       `json:"bid,omitempty"`
	Choice      HouseID                    `json:"choice,omitempty"`
	House       HouseID                    `json:"house,omitempty"`
	Target      HouseID                    `json:"target,omitempty"`
	Territory   TerritoryID                `json:"territory,omitempty"`
	Territories []TerritoryID              `json:"territories,omitempty"`
	Order       []HouseID                  `json:"order,omitempty"`
	Advance     AdvanceID                  `json:"advance,omitempty"`
	Conversions map[TerritoryID]Conversion `json:"conversions,omitempty"`
}

// Action is the payload of one log entry.
type Action struct {
	Kind   ActionKind  `json:"action"`
	Params Params      `json:"params"`
	Random *Randomness `json:"random,omitempty"`
}

// IntP returns a pointer to v, for optional integer parameters.
func IntP(v int) *int { return &v }

// Randomness holds every random value an action consumed. A confirmed
// entry carries it so a replay reproduces the same outcome.
type Randomness struct {
	DrawStack []CardID         `json:"draw_stack,omitempty"`
	Dice      map[string][]int `json:"dice,omitempty"`
}

// Empty reports whether nothing was recorded.
func (r *Randomness) Empty() bool {
	return r == nil || (r.DrawStack == nil && len(r.Dice) == 0)
}

// Result is what a phase handler produced for one action.
type Result struct {
	Mutated   bool
	Random    *Randomness
	FollowUps []Action
}
