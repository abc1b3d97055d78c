package engine

// Piece bookkeeping. Tokens and markers are fungible units: per house,
// Stock + Expansion + tokens on the board + markers on the board + pending
// removals stays constant except through income, penalty or transfer.

// AddToken moves one expansion token of house h onto territory t, bounded
// by the territory's market size.
func (g *GameState) AddToken(cat Catalog, h HouseID, t TerritoryID) error {
	house, err := g.HouseByID(h)
	if err != nil {
		return err
	}
	def, ok := cat.Territory(t)
	if !ok {
		return notFound("territory %q", t)
	}
	if house.Expansion <= 0 {
		return exhausted("house %s has no expansion tokens", h)
	}
	if terr, ok := g.Territories[t]; ok && terr.units() >= def.MarketSize {
		return exhausted("territory %s is full (market size %d)", t, def.MarketSize)
	}
	house.Expansion--
	g.territory(t).Tokens[h]++
	return nil
}

// RemoveToken returns one of house h's tokens on t to its stock.
func (g *GameState) RemoveToken(h HouseID, t TerritoryID) error {
	house, err := g.HouseByID(h)
	if err != nil {
		return err
	}
	terr, ok := g.Territories[t]
	if !ok || terr.Tokens[h] == 0 {
		return notFound("house %s has no token on %s", h, t)
	}
	terr.Tokens[h]--
	if terr.Tokens[h] == 0 {
		delete(terr.Tokens, h)
	}
	house.Stock++
	return nil
}

// SetMarker gives house h exclusive control of t. The unit comes from the
// house's own tokens on t first, then expansion, then stock. The marker
// pool bounds how many markers a house can have in play.
func (g *GameState) SetMarker(cat Catalog, h HouseID, t TerritoryID) error {
	house, err := g.HouseByID(h)
	if err != nil {
		return err
	}
	if _, ok := cat.Territory(t); !ok {
		return notFound("territory %q", t)
	}
	terr := g.Territories[t]
	if terr != nil && terr.Marker != "" {
		if terr.Marker == h {
			return conflict("house %s already holds %s", h, t)
		}
		return conflict("%s is held by %s", t, terr.Marker)
	}
	if house.MarkerPool <= 0 {
		return exhausted("house %s has no markers left", h)
	}
	hasToken := terr != nil && terr.Tokens[h] > 0
	if !hasToken && house.Expansion == 0 && house.Stock == 0 {
		return exhausted("house %s has no units to mark %s", h, t)
	}
	terr = g.territory(t)
	switch {
	case hasToken:
		terr.Tokens[h]--
		if terr.Tokens[h] == 0 {
			delete(terr.Tokens, h)
		}
	case house.Expansion > 0:
		house.Expansion--
	default:
		house.Stock--
	}
	house.MarkerPool--
	terr.Marker = h
	return nil
}

// ClearMarker removes the marker on t, returning the unit to the owner's
// stock and the marker to its pool. It returns the previous owner.
func (g *GameState) ClearMarker(t TerritoryID) (HouseID, error) {
	owner, err := g.liftMarker(t)
	if err != nil {
		return "", err
	}
	g.Houses[owner].Stock++
	return owner, nil
}

// liftMarker takes the marker off t without placing the unit anywhere.
// Callers must account for the unit.
func (g *GameState) liftMarker(t TerritoryID) (HouseID, error) {
	terr, ok := g.Territories[t]
	if !ok || terr.Marker == "" {
		return "", notFound("no marker on %s", t)
	}
	owner := terr.Marker
	house, err := g.HouseByID(owner)
	if err != nil {
		return "", err
	}
	terr.Marker = ""
	house.MarkerPool++
	return owner, nil
}

// queueRemoval lifts the marker on t into the owner's pending removals.
func (g *GameState) queueRemoval(t TerritoryID) (HouseID, error) {
	owner, err := g.liftMarker(t)
	if err != nil {
		return "", err
	}
	g.Removals[owner] = append(g.Removals[owner], t)
	return owner, nil
}

// Units is the conserved piece count of house h.
func (g *GameState) Units(h HouseID) int {
	house, ok := g.Houses[h]
	if !ok {
		return 0
	}
	n := house.Stock + house.Expansion + len(g.Removals[h])
	for _, t := range g.Territories {
		n += t.Tokens[h]
		if t.Marker == h {
			n++
		}
	}
	return n
}

// Holdings returns the territories where h holds the marker, sorted.
func (g *GameState) Holdings(h HouseID) []TerritoryID {
	var out []TerritoryID
	for _, id := range g.TerritoryIDs() {
		if g.Territories[id].Marker == h {
			out = append(out, id)
		}
	}
	return out
}

// present reports whether h has a marker or token on t.
func (g *GameState) present(h HouseID, t TerritoryID) bool {
	terr, ok := g.Territories[t]
	return ok && (terr.Marker == h || terr.Tokens[h] > 0)
}

// accessible reports whether h can reach t: it is present there or in a
// territory adjacent to it.
func (g *GameState) accessible(cat Catalog, h HouseID, t TerritoryID) bool {
	if g.present(h, t) {
		return true
	}
	for _, id := range g.TerritoryIDs() {
		if g.present(h, id) && connected(cat, id, t) {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Income and misery
// ---------------------------------------------------------------------------

// grantExpansion moves up to n stock tokens into expansion and returns how
// many moved.
func (h *HouseState) grantExpansion(n int) int {
	if n > h.Stock {
		n = h.Stock
	}
	h.Stock -= n
	h.Expansion += n
	return n
}

// earn adds cash income and records it on the running turn.
func (h *HouseState) earn(amount int) {
	h.Cash += amount
	if tr := h.CurrentTurn(); tr != nil {
		tr.Income += amount
	}
}

// suffer advances h along the misery scale by steps. A house pushed to the
// last step is eliminated.
func (h *HouseState) suffer(rules EditionRules, steps int) {
	h.Misery += steps
	if last := len(rules.MiseryScale) - 1; last >= 0 && h.Misery >= last {
		h.Misery = last
		h.Eliminated = true
	}
	if tr := h.CurrentTurn(); tr != nil {
		tr.Damage += steps
	}
}

// MiseryValue returns the scale value at the house's current step.
func (h *HouseState) MiseryValue(rules EditionRules) int {
	if h.Misery < len(rules.MiseryScale) {
		return rules.MiseryScale[h.Misery]
	}
	return 0
}
