package engine

import "slices"

func handlePlayCard(x *exec) error {
	g := x.g
	h, err := x.actorHouse()
	if err != nil {
		return err
	}
	id := x.params().Card
	if id == "" {
		return invalidParam("play_card requires a card")
	}
	hi := slices.Index(h.Hand, id)
	if hi < 0 {
		return notFound("card %s is not in %s's hand", id, h.ID)
	}
	card, ok := x.cat.Card(id)
	if !ok {
		return notFound("card %q", id)
	}
	if by, voided := x.voidedBy(card); voided {
		return invalidParam("card %s is voided by %s", id, by)
	}
	if err := x.checkTarget(card, h.ID); err != nil {
		return err
	}

	switch card.Category {
	case CategoryCommodity:
		err = x.payCommodity(card)
	case CategoryLeader:
		h.Leaders = append(h.Leaders, card.ID)
	case CategoryEvent:
		err = x.resolveEvent(card, h)
	default:
		err = invalidParam("card %s has unknown category %q", id, card.Category)
	}
	if err != nil {
		return err
	}

	h.Hand = slices.Delete(h.Hand, hi, hi+1)
	g.Played = append(g.Played, PlayedCard{Card: id, House: h.ID, Turn: g.Turn})
	if card.Recycles {
		g.DiscardStack = append(g.DiscardStack, id)
	}
	return nil
}

// voidedBy reports the card that makes c unplayable: one of its voiding
// cards was played this epoch or is active as a bonus.
func (x *exec) voidedBy(c Card) (CardID, bool) {
	for _, v := range c.VoidedBy {
		for _, p := range x.g.Played {
			if p.Card == v {
				return v, true
			}
		}
		for _, b := range x.g.Bonuses {
			if b.Card == v {
				return v, true
			}
		}
	}
	return "", false
}

func (x *exec) checkTarget(c Card, self HouseID) error {
	p := x.params()
	switch c.Target {
	case TargetTerritory:
		if p.Territory == "" {
			return invalidParam("card %s requires a territory", c.ID)
		}
		if _, ok := x.cat.Territory(p.Territory); !ok {
			return notFound("territory %q", p.Territory)
		}
	case TargetHouse:
		if p.Target == "" {
			return invalidParam("card %s requires a target house", c.ID)
		}
		if p.Target == self {
			return invalidParam("card %s cannot target its player", c.ID)
		}
		if !x.g.active(p.Target) {
			return notFound("house %q", p.Target)
		}
	}
	return nil
}

// payCommodity pays every house n² × unit price, where n is the number of
// territories it holds that produce the commodity.
func (x *exec) payCommodity(c Card) error {
	m, ok := x.cat.Commodity(c.Commodity)
	if !ok {
		return notFound("commodity %q", c.Commodity)
	}
	for _, id := range x.g.HouseIDs() {
		h := x.g.Houses[id]
		if h.Eliminated {
			continue
		}
		n := 0
		for _, t := range x.g.Holdings(id) {
			if def, ok := x.cat.Territory(t); ok && slices.Contains(def.Commodities, m.ID) {
				n++
			}
		}
		if n > 0 {
			h.earn(n * n * m.UnitPrice)
		}
	}
	return nil
}

func (x *exec) resolveEvent(c Card, h *HouseState) error {
	g := x.g
	p := x.params()
	switch c.Effect {
	case EffectWar:
		return x.startWar(h.ID, p.Target)

	case EffectBlackDeath:
		terr, ok := g.Territories[p.Territory]
		if !ok {
			return nil
		}
		var hit []HouseID
		for _, id := range g.HouseIDs() {
			if g.present(id, p.Territory) {
				hit = append(hit, id)
			}
			for terr.Tokens[id] > 0 {
				if err := g.RemoveToken(id, p.Territory); err != nil {
					return err
				}
			}
		}
		if terr.Marker != "" {
			if _, err := g.queueRemoval(p.Territory); err != nil {
				return err
			}
		}
		for _, id := range hit {
			g.Houses[id].suffer(x.rules, 1)
		}
		x.startReallocation()

	case EffectRebellion:
		terr, ok := g.Territories[p.Territory]
		if !ok || terr.Marker == "" || terr.Marker == h.ID {
			return invalidParam("rebellion needs an enemy-held territory")
		}
		if def, _ := x.cat.Territory(p.Territory); def.Kind == TerritoryCapital {
			return invalidParam("rebellion cannot strike capital %s", p.Territory)
		}
		if _, err := g.queueRemoval(p.Territory); err != nil {
			return err
		}
		x.startReallocation()

	case EffectFamine, EffectReligiousStrife:
		for _, id := range g.HouseIDs() {
			if other := g.Houses[id]; id != h.ID && !other.Eliminated {
				other.suffer(x.rules, 1)
			}
		}

	case EffectMysticism:
		for _, id := range g.HouseIDs() {
			if other := g.Houses[id]; !other.Eliminated && !x.hasCategory(other, "science") {
				other.suffer(x.rules, 1)
			}
		}

	case EffectEnlightenedRuler, EffectMercenaries:
		if c.Modifier == "" {
			return invalidParam("card %s grants no modifier", c.ID)
		}
		g.Bonuses = append(g.Bonuses, TempBonus{House: h.ID, Card: c.ID, Modifier: c.Modifier})

	case EffectAlchemistsGold:
		target, err := g.HouseByID(p.Target)
		if err != nil {
			return err
		}
		amt := min(c.Amount, target.Cash)
		target.Cash -= amt
		h.earn(amt)

	default:
		return invalidParam("card %s has unknown effect %q", c.ID, c.Effect)
	}
	return nil
}

// hasCategory reports whether h owns an advance of the given category.
func (x *exec) hasCategory(h *HouseState, category string) bool {
	for id, owned := range h.Advances {
		if a, ok := x.cat.Advance(id); owned && ok && a.Category == category {
			return true
		}
	}
	return false
}
