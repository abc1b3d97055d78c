package game

import (
	"context"
	"slices"

	"github.com/google/uuid"
	"github.com/jason-s-yu/renaissance/engine"
)

// HouseView is one house as seen by a participant. Hand contents are only
// filled in for the viewer's own house.
type HouseView struct {
	ID         engine.HouseID     `json:"id"`
	Player     uuid.UUID          `json:"player"`
	Cash       int                `json:"cash"`
	Stock      int                `json:"stock"`
	Expansion  int                `json:"expansion"`
	MarkerPool int                `json:"marker_pool"`
	Misery     int                `json:"misery"`
	Eliminated bool               `json:"eliminated"`
	HandSize   int                `json:"hand_size"`
	Hand       []engine.CardID    `json:"hand,omitempty"`
	Advances   []engine.AdvanceID `json:"advances"`
	Leaders    []engine.CardID    `json:"leaders"`
}

// View is the snapshot of a game redacted for one participant: other
// hands, other bidders' draws and the order of the draw stack are hidden.
type View struct {
	GameID      uuid.UUID                                `json:"game_id"`
	Edition     string                                   `json:"edition"`
	AppliedLSN  int64                                    `json:"applied_lsn"`
	Epoch       int                                      `json:"epoch"`
	Turn        int                                      `json:"turn"`
	Awaiting    engine.Frame                             `json:"awaiting"`
	Actions     []engine.ActionKind                      `json:"actions"`
	PlayOrder   []engine.HouseID                         `json:"play_order"`
	Houses      []HouseView                              `json:"houses"`
	Drawn       []engine.CardID                          `json:"drawn,omitempty"`
	DrawSize    int                                      `json:"draw_size"`
	DiscardTop  engine.CardID                            `json:"discard_top,omitempty"`
	Territories map[engine.TerritoryID]*engine.Territory `json:"territories"`
	Wars        []engine.War                             `json:"wars"`
	Cession     *engine.Cession                          `json:"cession,omitempty"`
}

// View loads the current snapshot of a game as seen by viewer.
func (e *Engine) View(ctx context.Context, gameID, viewer uuid.UUID) (View, error) {
	head, err := e.store.Game(ctx, gameID)
	if err != nil {
		return View{}, err
	}
	g, err := e.codec.Decode(head.Snapshot)
	if err != nil {
		return View{}, err
	}

	v := View{
		GameID:      gameID,
		Edition:     g.Edition,
		AppliedLSN:  head.AppliedLSN,
		Epoch:       g.Epoch,
		Turn:        g.Turn,
		Actions:     g.ActionsFor(viewer),
		PlayOrder:   g.PlayOrder,
		DrawSize:    len(g.DrawStack),
		Territories: g.Territories,
		Wars:        g.Wars,
		Cession:     g.Cession,
	}
	if f, ok := g.Awaiting(); ok {
		v.Awaiting = f
	}
	if n := len(g.DiscardStack); n > 0 {
		v.DiscardTop = g.DiscardStack[n-1]
	}
	// Drawn cards become the hand once the viewer holds a house.
	if _, err := g.HouseByPlayer(viewer); err != nil {
		if b, err := g.BiddingByPlayer(viewer); err == nil {
			v.Drawn = b.Drawn
		}
	}
	for _, id := range g.HouseIDs() {
		h := g.Houses[id]
		hv := HouseView{
			ID:         h.ID,
			Player:     h.Player,
			Cash:       h.Cash,
			Stock:      h.Stock,
			Expansion:  h.Expansion,
			MarkerPool: h.MarkerPool,
			Misery:     h.Misery,
			Eliminated: h.Eliminated,
			HandSize:   len(h.Hand),
			Leaders:    h.Leaders,
		}
		for adv, owned := range h.Advances {
			if owned {
				hv.Advances = append(hv.Advances, adv)
			}
		}
		slices.Sort(hv.Advances)
		if h.Player == viewer {
			hv.Hand = h.Hand
		}
		v.Houses = append(v.Houses, hv)
	}
	return v, nil
}
