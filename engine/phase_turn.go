package engine

import (
	"slices"
	"sort"
)

// ---------------------------------------------------------------------------
// token bidding
// ---------------------------------------------------------------------------

func handleBidTokens(x *exec) error {
	h, err := x.actorHouse()
	if err != nil {
		return err
	}
	if h.Eliminated {
		return illegalActor("house %s is eliminated", h.ID)
	}
	tr := h.CurrentTurn()
	if tr == nil || tr.Turn != x.g.Turn {
		return notFound("house %s has no record for turn %d", h.ID, x.g.Turn)
	}
	bid := x.params().Bid
	switch {
	case bid == nil:
		return invalidParam("bid_tokens requires a bid")
	case *bid < 0:
		return invalidParam("negative bid %d", *bid)
	case *bid > h.Cash:
		return exhausted("bid %d exceeds cash %d", *bid, h.Cash)
	case tr.HasBid:
		return invalidParam("house %s already bid this turn", h.ID)
	}
	tr.Bid = *bid
	tr.HasBid = true
	for _, id := range x.g.orderedHouses() {
		if t := x.g.Houses[id].CurrentTurn(); t == nil || !t.HasBid {
			return nil
		}
	}
	x.queue(KindDeterminePlayOrder, Params{})
	return nil
}

// playKey is the precomputed sort key of one house for play order.
type playKey struct {
	house     HouseID
	bid       int
	secondary int // ascending
}

// playOrderKeys builds the keys for the active houses. Before the first
// interactive tie-break the secondary key is the reverse of capital-choice
// order; afterwards it is the ordinal chosen during that interrupt.
func (g *GameState) playOrderKeys(houses []HouseID) []playKey {
	keys := make([]playKey, 0, len(houses))
	for _, id := range houses {
		tr := g.Houses[id].CurrentTurn()
		k := playKey{house: id, bid: tr.Bid}
		if g.Turn == 1 {
			k.secondary = -slices.Index(g.CapitalOrder, id)
		} else {
			k.secondary = tr.TieOrdinal
		}
		keys = append(keys, k)
	}
	sort.SliceStable(keys, func(i, j int) bool {
		if keys[i].bid != keys[j].bid {
			return keys[i].bid > keys[j].bid
		}
		return keys[i].secondary < keys[j].secondary
	})
	return keys
}

// unresolvedTie returns the first group of houses with equal bids whose
// order has not been chosen yet, and the house entitled to choose it: the
// tied house earliest in the previous play order.
func (g *GameState) unresolvedTie(keys []playKey) ([]HouseID, HouseID) {
	if g.Turn == 1 {
		return nil, ""
	}
	for i := 0; i < len(keys); {
		j := i + 1
		for j < len(keys) && keys[j].bid == keys[i].bid {
			j++
		}
		if j-i > 1 {
			var group []HouseID
			resolved := true
			for _, k := range keys[i:j] {
				group = append(group, k.house)
				if k.secondary == 0 {
					resolved = false
				}
			}
			if !resolved {
				chooser := group[0]
				for _, id := range group[1:] {
					if prev := g.orderIndex(id); prev >= 0 && (g.orderIndex(chooser) < 0 || prev < g.orderIndex(chooser)) {
						chooser = id
					}
				}
				return group, chooser
			}
		}
		i = j
	}
	return nil, ""
}

func handleDeterminePlayOrder(x *exec) error {
	g := x.g
	houses := g.orderedHouses()
	for _, id := range houses {
		if tr := g.Houses[id].CurrentTurn(); tr == nil || !tr.HasBid {
			return invalidParam("house %s has not bid", id)
		}
	}
	keys := g.playOrderKeys(houses)
	if _, chooser := g.unresolvedTie(keys); chooser != "" {
		g.Cursor.Push(PlayerFrame(g.Houses[chooser].Player, PhaseOrderTieBreak))
		return nil
	}

	seats, _ := ActiveSeats(g.NumPlayers)
	order := make([]HouseID, MaxSeats)
	next := 0
	for i, on := range seats {
		if on && next < len(keys) {
			order[i] = keys[next].house
			next++
		}
	}
	g.PlayOrder = order
	for rank, k := range keys {
		h := g.Houses[k.house]
		tr := h.CurrentTurn()
		tr.Rank = rank + 1
		h.Cash -= tr.Bid
		h.grantExpansion(x.rules.ExpansionPerTurn)
	}
	first, ok := g.FirstActive()
	if !ok {
		return notFound("no active house")
	}
	x.beginHouseTurn(first)
	return nil
}

func handleChooseOrder(x *exec) error {
	g := x.g
	h, err := x.actorHouse()
	if err != nil {
		return err
	}
	group, chooser := g.unresolvedTie(g.playOrderKeys(g.orderedHouses()))
	if chooser != h.ID {
		return illegalActor("house %s does not decide the tie", h.ID)
	}
	order := x.params().Order
	if len(order) != len(group) {
		return invalidParam("order must list %d houses", len(group))
	}
	seen := make(map[HouseID]bool, len(order))
	for _, id := range order {
		if !slices.Contains(group, id) || seen[id] {
			return invalidParam("order must be a permutation of %v", group)
		}
		seen[id] = true
	}
	for i, id := range order {
		g.Houses[id].CurrentTurn().TieOrdinal = i + 1
	}
	g.Cursor.Pop()
	x.queue(KindDeterminePlayOrder, Params{})
	return nil
}

// beginHouseTurn hands the turn to house id. A war it declared earlier and
// left undecided is resolved before the house acts.
func (x *exec) beginHouseTurn(id HouseID) {
	g := x.g
	g.Cursor.Replace(PlayerFrame(g.Houses[id].Player, PhaseHouseTurn))
	for _, w := range g.Wars {
		if w.Attacker == id && g.active(w.Defender) {
			g.Cursor.Push(EngineFrame(PhaseWar))
			x.queue(KindResolveWar, Params{House: w.Attacker, Target: w.Defender})
			return
		}
	}
}

// ---------------------------------------------------------------------------
// house turn
// ---------------------------------------------------------------------------

func handlePlaceToken(x *exec) error {
	g := x.g
	h, err := x.actorHouse()
	if err != nil {
		return err
	}
	t := x.params().Territory
	if t == "" {
		return invalidParam("place_token requires a territory")
	}
	def, ok := x.cat.Territory(t)
	if !ok {
		return notFound("territory %q", t)
	}
	if !g.accessible(x.cat, h.ID, t) {
		return invalidParam("territory %s is not accessible to %s", t, h.ID)
	}
	if terr, ok := g.Territories[t]; ok && terr.Marker != "" {
		return conflict("%s is held by %s", t, terr.Marker)
	}
	if err := g.AddToken(x.cat, h.ID, t); err != nil {
		return err
	}
	// A market filled by one house alone becomes its dominance marker.
	terr := g.Territories[t]
	if len(terr.Tokens) == 1 && terr.Tokens[h.ID] == def.MarketSize && h.MarkerPool > 0 {
		if err := g.SetMarker(x.cat, h.ID, t); err != nil {
			return err
		}
		for terr.Tokens[h.ID] > 0 {
			if err := g.RemoveToken(h.ID, t); err != nil {
				return err
			}
		}
	}
	return nil
}

func handleBuyAdvance(x *exec) error {
	h, err := x.actorHouse()
	if err != nil {
		return err
	}
	id := x.params().Advance
	if id == "" {
		return invalidParam("buy_advance requires an advance")
	}
	adv, ok := x.cat.Advance(id)
	if !ok {
		return notFound("advance %q", id)
	}
	if h.Advances[id] {
		return conflict("house %s already owns %s", h.ID, id)
	}
	for _, p := range adv.Prerequisites {
		if !h.Advances[p] {
			return invalidParam("advance %s requires %s", id, p)
		}
	}
	cost := max(adv.Credits-x.leaderDiscount(h, id), 0)
	if cost > h.Cash {
		return exhausted("advance %s costs %d, cash %d", id, cost, h.Cash)
	}
	h.Cash -= cost
	if h.Advances == nil {
		h.Advances = make(map[AdvanceID]bool)
	}
	h.Advances[id] = true
	if tr := h.CurrentTurn(); tr != nil {
		tr.AdvanceCost += cost
	}
	return nil
}

// leaderDiscount is the best discount among the house's leaders for adv.
// A leader without an advance list discounts every advance.
func (x *exec) leaderDiscount(h *HouseState, adv AdvanceID) int {
	best := 0
	for _, id := range h.Leaders {
		c, ok := x.cat.Card(id)
		if !ok || (len(c.Advances) > 0 && !slices.Contains(c.Advances, adv)) {
			continue
		}
		best = max(best, c.Discount)
	}
	return best
}

func handleDeclareWar(x *exec) error {
	g := x.g
	h, err := x.actorHouse()
	if err != nil {
		return err
	}
	target := x.params().Target
	if target == "" {
		return invalidParam("declare_war requires a target house")
	}
	if _, err := g.HouseByID(target); err != nil {
		return err
	}
	contact := false
	for _, t := range g.TerritoryIDs() {
		if g.present(target, t) && g.accessible(x.cat, h.ID, t) {
			contact = true
			break
		}
	}
	if !contact {
		return invalidParam("house %s cannot reach %s", h.ID, target)
	}
	return x.startWar(h.ID, target)
}

// startWar records a war and interrupts the turn to resolve it.
func (x *exec) startWar(attacker, defender HouseID) error {
	g := x.g
	if attacker == defender {
		return invalidParam("house %s cannot fight itself", attacker)
	}
	if !g.active(defender) {
		return invalidParam("house %s is not in play", defender)
	}
	for _, w := range g.Wars {
		if (w.Attacker == attacker && w.Defender == defender) || (w.Attacker == defender && w.Defender == attacker) {
			return conflict("%s and %s are already at war", attacker, defender)
		}
	}
	g.Wars = append(g.Wars, War{Attacker: attacker, Defender: defender})
	g.Cursor.Push(EngineFrame(PhaseWar))
	x.queue(KindResolveWar, Params{House: attacker, Target: defender})
	return nil
}

func handleEndTurn(x *exec) error {
	g := x.g
	h, err := x.actorHouse()
	if err != nil {
		return err
	}
	if next, ok := g.NextActive(h.ID); ok {
		x.beginHouseTurn(next)
		return nil
	}
	g.Cursor.Replace(EngineFrame(PhaseTurnEnd))
	x.queue(KindStartTurn, Params{})
	return nil
}
