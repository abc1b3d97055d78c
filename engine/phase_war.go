package engine

import "slices"

// Misery steps dealt by a war.
const (
	winnerSteps = 1
	loserSteps  = 2
	drawSteps   = 1
)

// combat is the effective modifier set of one side after voiding.
type combat struct {
	bonus    int
	tieBreak bool
}

// modifiers lists a house's combat modifiers: static ones from advances
// (in advance id order) followed by temporary ones from played cards.
func (x *exec) modifiers(h *HouseState) []Modifier {
	var names []string
	ids := make([]AdvanceID, 0, len(h.Advances))
	for id, owned := range h.Advances {
		if owned {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	for _, id := range ids {
		if a, ok := x.cat.Advance(id); ok && a.Modifier != "" {
			names = append(names, a.Modifier)
		}
	}
	for _, b := range x.g.Bonuses {
		if b.House == h.ID && b.Modifier != "" {
			names = append(names, b.Modifier)
		}
	}
	var out []Modifier
	for _, n := range names {
		if m, ok := x.cat.Modifier(n); ok {
			out = append(out, m)
		}
	}
	return out
}

// effective drops every modifier of own that some modifier of opp voids.
func effective(own, opp []Modifier) combat {
	var c combat
	for _, m := range own {
		voided := false
		for _, o := range opp {
			if slices.Contains(o.Voids, m.Name) {
				voided = true
				break
			}
		}
		if voided {
			continue
		}
		c.bonus += m.Combat
		c.tieBreak = c.tieBreak || m.TieBreak
	}
	return c
}

// warOutcome is the arithmetic of one resolution.
type warOutcome struct {
	AttackerRoll, DefenderRoll int
	Attacker, Defender         combat
	Winner, Loser              HouseID
	Cession                    int
}

// decide computes the outcome of a war from rolls and modifiers. An empty
// Winner means the roll was undecided.
func decide(w War, aRoll, dRoll int, a, d combat) warOutcome {
	out := warOutcome{AttackerRoll: aRoll, DefenderRoll: dRoll, Attacker: a, Defender: d}
	diff := (aRoll + a.bonus) - (dRoll + d.bonus)
	switch {
	case diff > 0:
		out.Winner, out.Loser, out.Cession = w.Attacker, w.Defender, diff
	case diff < 0:
		out.Winner, out.Loser, out.Cession = w.Defender, w.Attacker, -diff
	case a.tieBreak && !d.tieBreak:
		out.Winner, out.Loser = w.Attacker, w.Defender
	case d.tieBreak && !a.tieBreak:
		out.Winner, out.Loser = w.Defender, w.Attacker
	}
	return out
}

func handleResolveWar(x *exec) error {
	g := x.g
	p := x.params()
	i := slices.Index(g.Wars, War{Attacker: p.House, Defender: p.Target})
	if i < 0 {
		return notFound("no war between %s and %s", p.House, p.Target)
	}
	w := g.Wars[i]
	att, err := g.HouseByID(w.Attacker)
	if err != nil {
		return err
	}
	def, err := g.HouseByID(w.Defender)
	if err != nil {
		return err
	}
	am, dm := x.modifiers(att), x.modifiers(def)
	out := decide(w, x.dice.roll("attacker"), x.dice.roll("defender"), effective(am, dm), effective(dm, am))

	if out.Winner == "" {
		att.suffer(x.rules, drawSteps)
		def.suffer(x.rules, drawSteps)
		g.Cursor.Pop()
		return nil
	}
	g.Wars = slices.Delete(g.Wars, i, i+1)
	winner, loser := g.Houses[out.Winner], g.Houses[out.Loser]
	winner.suffer(x.rules, winnerSteps)
	loser.suffer(x.rules, loserSteps)

	eligible := x.cessionEligible(out.Winner, out.Loser)
	count := min(out.Cession, len(eligible))
	switch {
	case count == 0:
		g.Cursor.Pop()
	case len(eligible) <= out.Cession:
		g.Cursor.Pop()
		for _, t := range eligible {
			if err := x.transfer(out.Winner, t); err != nil {
				return err
			}
		}
	default:
		g.Cession = &Cession{Winner: out.Winner, Loser: out.Loser, Count: count, Eligible: eligible}
		g.Cursor.Replace(PlayerFrame(loser.Player, PhaseCede))
		return nil
	}
	x.startReallocation()
	return nil
}

// cessionEligible lists the loser's non-capital holdings the winner can
// reach.
func (x *exec) cessionEligible(winner, loser HouseID) []TerritoryID {
	var out []TerritoryID
	for _, t := range x.g.Holdings(loser) {
		if def, ok := x.cat.Territory(t); ok && def.Kind == TerritoryCapital {
			continue
		}
		if x.g.accessible(x.cat, winner, t) {
			out = append(out, t)
		}
	}
	return out
}

// transfer moves control of t to winner. The old marker goes to its
// owner's pending removals; the winner takes the territory when it has a
// unit and a marker to spare.
func (x *exec) transfer(winner HouseID, t TerritoryID) error {
	if _, err := x.g.queueRemoval(t); err != nil {
		return err
	}
	h := x.g.Houses[winner]
	if h.MarkerPool == 0 || (h.Stock == 0 && h.Expansion == 0 && x.g.Territories[t].Tokens[winner] == 0) {
		return nil
	}
	return x.g.SetMarker(x.cat, winner, t)
}

func handleCede(x *exec) error {
	g := x.g
	c := g.Cession
	if c == nil {
		return notFound("no cession pending")
	}
	h, err := x.actorHouse()
	if err != nil {
		return err
	}
	if h.ID != c.Loser {
		return illegalActor("house %s does not cede", h.ID)
	}
	ts := x.params().Territories
	if len(ts) != c.Count {
		return invalidParam("cede exactly %d territories, got %d", c.Count, len(ts))
	}
	seen := make(map[TerritoryID]bool, len(ts))
	for _, t := range ts {
		if !slices.Contains(c.Eligible, t) || seen[t] {
			return invalidParam("territory %s cannot be ceded", t)
		}
		seen[t] = true
	}
	for _, t := range ts {
		if err := x.transfer(c.Winner, t); err != nil {
			return err
		}
	}
	g.Cession = nil
	g.Cursor.Pop()
	x.startReallocation()
	return nil
}

// ---------------------------------------------------------------------------
// reallocation
// ---------------------------------------------------------------------------

// nextRemoval returns the first house in play order with pending removals.
func (g *GameState) nextRemoval() (HouseID, bool) {
	for _, id := range g.orderedHouses() {
		if len(g.Removals[id]) > 0 {
			return id, true
		}
	}
	for _, id := range g.HouseIDs() {
		if len(g.Removals[id]) > 0 {
			return id, true
		}
	}
	return "", false
}

// startReallocation interrupts the current frame when removals are pending.
func (x *exec) startReallocation() {
	if id, ok := x.g.nextRemoval(); ok {
		x.g.Cursor.Push(PlayerFrame(x.g.Houses[id].Player, PhaseReallocate))
	}
}

func handleReallocate(x *exec) error {
	g := x.g
	h, err := x.actorHouse()
	if err != nil {
		return err
	}
	pending := g.Removals[h.ID]
	if len(pending) == 0 {
		return notFound("house %s has nothing to reallocate", h.ID)
	}
	conv := x.params().Conversions
	uniq := make(map[TerritoryID]bool, len(pending))
	for _, t := range pending {
		uniq[t] = true
	}
	if len(conv) != len(uniq) {
		return invalidParam("conversions must cover %v", pending)
	}
	for _, t := range pending {
		switch conv[t] {
		case ConvertStock, ConvertExpansion, ConvertVanish:
		default:
			return invalidParam("conversion for %s must be stock, expansion or vanish", t)
		}
	}
	for _, t := range pending {
		switch conv[t] {
		case ConvertStock:
			h.Stock++
		case ConvertExpansion:
			h.Expansion++
		}
	}
	delete(g.Removals, h.ID)
	if next, ok := g.nextRemoval(); ok {
		g.Cursor.Replace(PlayerFrame(g.Houses[next].Player, PhaseReallocate))
		return nil
	}
	g.Cursor.Pop()
	return nil
}
