package engine

import (
	"sort"

	"github.com/google/uuid"
)

// SupportedActions returns the action kinds the current phase accepts, in
// sorted order. It returns nil when the cursor is empty or corrupt.
func (g *GameState) SupportedActions() []ActionKind {
	frame, ok := g.Cursor.Top()
	if !ok {
		return nil
	}
	table := registry[frame.Phase]
	out := make([]ActionKind, 0, len(table))
	for k := range table {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ActionsFor returns the kinds actor may submit now. uuid.Nil asks for the
// engine-originated kinds.
func (g *GameState) ActionsFor(actor uuid.UUID) []ActionKind {
	frame, ok := g.Cursor.Top()
	if !ok {
		return nil
	}
	var out []ActionKind
	for _, k := range g.SupportedActions() {
		switch {
		case IsEngineKind(k) && actor == uuid.Nil:
			out = append(out, k)
		case !IsEngineKind(k) && frame.Permits(actor):
			out = append(out, k)
		}
	}
	return out
}

// Awaiting returns the frame the game is waiting on.
func (g *GameState) Awaiting() (Frame, bool) { return g.Cursor.Top() }
