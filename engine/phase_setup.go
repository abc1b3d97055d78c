package engine

import (
	"slices"
	"sort"
)

// MaxTieBreakRounds bounds the dice rounds of the house-bidding tie-break.
// Participants still tied after the last round keep participant order.
const MaxTieBreakRounds = 16

// ---------------------------------------------------------------------------
// Deck construction
// ---------------------------------------------------------------------------

// initialDeck is every epoch-1 card not held back for a later shuffle, in
// catalog order.
func initialDeck(cat Catalog) []CardID {
	var out []CardID
	for _, c := range cat.Cards() {
		if c.Epoch == 1 && !c.ShuffleLater {
			out = append(out, c.ID)
		}
	}
	return out
}

// laterCards returns the epoch-1 cards held back for the turn-1 or turn-2
// shuffle.
func laterCards(cat Catalog) []CardID {
	var out []CardID
	for _, c := range cat.Cards() {
		if c.Epoch == 1 && c.ShuffleLater {
			out = append(out, c.ID)
		}
	}
	return out
}

// epochCards returns every card introduced in epoch e.
func epochCards(cat Catalog, e int) []CardID {
	var out []CardID
	for _, c := range cat.Cards() {
		if c.Epoch == e {
			out = append(out, c.ID)
		}
	}
	return out
}

// draw pops the top card of the draw stack.
func (g *GameState) draw() (CardID, bool) {
	n := len(g.DrawStack)
	if n == 0 {
		return "", false
	}
	c := g.DrawStack[n-1]
	g.DrawStack = g.DrawStack[:n-1]
	return c, true
}

// ---------------------------------------------------------------------------
// init
// ---------------------------------------------------------------------------

func handleDealCards(x *exec) error {
	g := x.g
	deck := initialDeck(x.cat)
	need := DrawPerBidder * len(g.Bidding)
	if len(deck) < need {
		return exhausted("deck has %d cards, need %d", len(deck), need)
	}
	for _, b := range g.Bidding {
		if len(b.Drawn) > 0 {
			return conflict("player %s already holds drawn cards", b.Player)
		}
	}
	g.DrawStack = x.dice.shuffle(deck)
	if len(g.DrawStack) < need {
		return invalidParam("recorded draw stack has %d cards, need %d", len(g.DrawStack), need)
	}
	for _, b := range g.Bidding {
		for range DrawPerBidder {
			c, _ := g.draw()
			b.Drawn = append(b.Drawn, c)
		}
	}
	g.Cursor.Replace(AnyFrame(PhaseHouseBidding))
	return nil
}

// ---------------------------------------------------------------------------
// house bidding
// ---------------------------------------------------------------------------

func handleDiscard(x *exec) error {
	b, err := x.g.BiddingByPlayer(x.actor)
	if err != nil {
		return err
	}
	card := x.params().Card
	if card == "" {
		return invalidParam("discard requires a card")
	}
	if b.Discard != "" {
		return invalidParam("player %s already discarded %s", x.actor, b.Discard)
	}
	if !slices.Contains(b.Drawn, card) {
		return notFound("card %s was not drawn by %s", card, x.actor)
	}
	b.Discard = card
	x.g.DiscardStack = append(x.g.DiscardStack, card)
	x.afterBidding()
	return nil
}

func handleBid(x *exec) error {
	b, err := x.g.BiddingByPlayer(x.actor)
	if err != nil {
		return err
	}
	bid := x.params().Bid
	if bid == nil {
		return invalidParam("bid requires an amount")
	}
	if *bid < 0 || *bid > x.rules.StartingCash {
		return invalidParam("bid %d outside 0..%d", *bid, x.rules.StartingCash)
	}
	if b.HasBid {
		return invalidParam("player %s already bid", x.actor)
	}
	b.Bid = *bid
	b.HasBid = true
	x.afterBidding()
	return nil
}

// afterBidding queues determine_order once every participant has both
// discarded and bid. Only the action completing the last record gets here
// with all complete, since repeated discards and bids are rejected.
func (x *exec) afterBidding() {
	for _, b := range x.g.Bidding {
		if !b.complete() {
			return
		}
	}
	x.queue(KindDetermineOrder, Params{})
}

// biddingKey is the precomputed sort key of one participant.
type biddingKey struct {
	rec *BiddingRecord
	pos int
}

// before reports whether a ranks ahead of b: higher bid, then the higher
// dice sequence compared round by round.
func (a biddingKey) before(b biddingKey) bool {
	if a.rec.Bid != b.rec.Bid {
		return a.rec.Bid > b.rec.Bid
	}
	if c := compareDice(a.rec.Dice, b.rec.Dice); c != 0 {
		return c > 0
	}
	return a.pos < b.pos
}

func (a biddingKey) tiedWith(b biddingKey) bool {
	return a.rec.Bid == b.rec.Bid && compareDice(a.rec.Dice, b.rec.Dice) == 0
}

func compareDice(a, b []int) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			if a[i] > b[i] {
				return 1
			}
			return -1
		}
	}
	return len(a) - len(b)
}

func sortBidding(keys []biddingKey) {
	sort.SliceStable(keys, func(i, j int) bool { return keys[i].before(keys[j]) })
}

// tiedGroups returns the runs of mutually tied participants in sorted keys.
func tiedGroups(keys []biddingKey) [][]biddingKey {
	var out [][]biddingKey
	for i := 0; i < len(keys); {
		j := i + 1
		for j < len(keys) && keys[i].tiedWith(keys[j]) {
			j++
		}
		if j-i > 1 {
			out = append(out, keys[i:j])
		}
		i = j
	}
	return out
}

func handleDetermineOrder(x *exec) error {
	g := x.g
	keys := make([]biddingKey, len(g.Bidding))
	for i, b := range g.Bidding {
		if !b.complete() {
			return invalidParam("player %s has not finished bidding", b.Player)
		}
		keys[i] = biddingKey{rec: b, pos: i}
	}
	sortBidding(keys)
	for round := 0; round < MaxTieBreakRounds; round++ {
		groups := tiedGroups(keys)
		if len(groups) == 0 {
			break
		}
		for _, group := range groups {
			// Roll in participant order so recorded dice line up on replay.
			members := slices.Clone(group)
			sort.Slice(members, func(i, j int) bool { return members[i].pos < members[j].pos })
			for _, k := range members {
				k.rec.Dice = append(k.rec.Dice, x.dice.roll(k.rec.Player.String()))
			}
		}
		sortBidding(keys)
	}
	order := make([]*BiddingRecord, len(keys))
	for i, k := range keys {
		order[i] = k.rec
	}
	g.Bidding = order
	g.Cursor.Replace(PlayerFrame(order[0].Player, PhaseChooseCapital))
	return nil
}

// ---------------------------------------------------------------------------
// capital choice
// ---------------------------------------------------------------------------

func handleChoose(x *exec) error {
	g := x.g
	b, err := g.BiddingByPlayer(x.actor)
	if err != nil {
		return err
	}
	choice := x.params().Choice
	if choice == "" {
		return invalidParam("choose requires a house")
	}
	if i := houseIndex(choice); i < 0 || i >= g.NumPlayers {
		return invalidParam("house %q is not offered in a %d-player game", choice, g.NumPlayers)
	}
	if _, taken := g.Houses[choice]; taken {
		return conflict("house %s already chosen", choice)
	}
	if _, err := g.HouseByPlayer(x.actor); err == nil {
		return conflict("player %s already holds a house", x.actor)
	}
	capital, ok := x.rules.Capitals[choice]
	if !ok {
		return notFound("no capital for house %s", choice)
	}

	hand := []CardID{}
	for _, c := range b.Drawn {
		if c != b.Discard {
			hand = append(hand, c)
		}
	}
	g.Houses[choice] = &HouseState{
		ID:         choice,
		Player:     x.actor,
		Cash:       x.rules.StartingCash - b.Bid,
		Stock:      x.rules.StartingTokens,
		MarkerPool: x.rules.MarkerLimit,
		Hand:       hand,
		Advances:   make(map[AdvanceID]bool),
		Leaders:    []CardID{},
		Turns:      []TurnRecord{},
	}
	if err := g.SetMarker(x.cat, choice, capital); err != nil {
		return err
	}
	g.CapitalOrder = append(g.CapitalOrder, choice)

	i := slices.Index(g.Bidding, b)
	if i+1 < len(g.Bidding) {
		g.Cursor.Replace(PlayerFrame(g.Bidding[i+1].Player, PhaseChooseCapital))
		return nil
	}
	g.Cursor.Replace(EngineFrame(PhaseTurnEnd))
	x.queue(KindStartTurn, Params{})
	return nil
}

// ---------------------------------------------------------------------------
// turn boundary
// ---------------------------------------------------------------------------

func handleStartTurn(x *exec) error {
	g := x.g
	if len(g.Houses) == 0 {
		return notFound("no houses in play")
	}
	g.Turn++
	epoch := g.Epoch
	if x.rules.EpochTurns > 0 {
		epoch = 1 + (g.Turn-1)/x.rules.EpochTurns
	}
	if x.rules.MaxEpoch > 0 && epoch > x.rules.MaxEpoch {
		epoch = x.rules.MaxEpoch
	}
	newEpoch := epoch != g.Epoch
	g.Epoch = epoch
	if newEpoch {
		g.Played = []PlayedCard{}
	}
	x.reshuffle(newEpoch)

	for _, id := range g.orderedHouses() {
		h := g.Houses[id]
		if full := x.rules.HandSize > 0 && len(h.Hand) >= x.rules.HandSize; !full {
			if c, ok := g.draw(); ok {
				h.Hand = append(h.Hand, c)
			}
		}
		h.Turns = append(h.Turns, TurnRecord{Turn: g.Turn, Cash: h.Cash, Tokens: h.Stock + h.Expansion})
	}
	g.Bonuses = []TempBonus{}
	g.Cursor.Replace(AnyFrame(PhaseTokenBidding))
	return nil
}

// reshuffle prepares the draw stack for the turn. At most one shuffle runs
// per action, so the single recorded draw stack is unambiguous on replay.
func (x *exec) reshuffle(newEpoch bool) {
	g := x.g
	switch {
	case g.Turn == 1:
		pool := slices.Concat(g.DrawStack, g.DiscardStack)
		if g.NumPlayers <= 4 {
			pool = append(pool, laterCards(x.cat)...)
		}
		g.DrawStack = x.dice.shuffle(pool)
		g.DiscardStack = []CardID{}
	case g.Turn == 2 && g.NumPlayers >= 5:
		// Held-back cards go under the existing draw stack; the discard
		// pile waits for the next exhaustion.
		g.DrawStack = slices.Concat(x.dice.shuffle(laterCards(x.cat)), g.DrawStack)
	case newEpoch:
		pool := slices.Concat(g.DrawStack, g.DiscardStack, epochCards(x.cat, g.Epoch))
		g.DrawStack = x.dice.shuffle(pool)
		g.DiscardStack = []CardID{}
	case len(g.DrawStack) < len(g.orderedHouses()) && len(g.DiscardStack) > 0:
		pool := slices.Concat(g.DrawStack, g.DiscardStack)
		g.DrawStack = x.dice.shuffle(pool)
		g.DiscardStack = []CardID{}
	}
}
