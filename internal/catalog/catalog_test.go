package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jason-s-yu/renaissance/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedEuropean(t *testing.T) {
	reg, err := Embedded()
	require.NoError(t, err)
	assert.Equal(t, []string{DefaultEdition}, reg.Editions())

	cat, err := reg.Catalog(DefaultEdition)
	require.NoError(t, err)
	rules := cat.Rules()
	assert.Equal(t, 40, rules.StartingCash)
	for _, h := range engine.Houses {
		def, ok := cat.Territory(rules.Capitals[h])
		require.True(t, ok, "capital of %s", h)
		assert.Equal(t, engine.TerritoryCapital, def.Kind)
	}

	adv, ok := cat.Advance("gunpowder")
	require.True(t, ok)
	assert.Equal(t, []engine.AdvanceID{"longbow"}, adv.Prerequisites)

	c, ok := cat.Card("religious_strife")
	require.True(t, ok)
	assert.Equal(t, []engine.CardID{"enlightened_ruler"}, c.VoidedBy)
}

// TestEmbeddedEditionPlays deals a full table from the embedded edition.
func TestEmbeddedEditionPlays(t *testing.T) {
	reg, err := Embedded()
	require.NoError(t, err)
	cat, err := reg.Catalog(DefaultEdition)
	require.NoError(t, err)

	players := make([]uuid.UUID, engine.MaxSeats)
	for i := range players {
		players[i] = uuid.New()
	}
	g, err := engine.NewGame(DefaultEdition, players)
	require.NoError(t, err)
	m := engine.NewSeededMachine(cat, 42)
	res, err := m.Apply(g, uuid.Nil, engine.Action{Kind: engine.KindDealCards})
	require.NoError(t, err)
	require.NotNil(t, res.Random)
	for _, b := range g.Bidding {
		assert.Len(t, b.Drawn, engine.DrawPerBidder)
	}
}

func TestUnknownEdition(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Catalog("lost")
	assert.ErrorIs(t, err, ErrUnknownEdition)
}

func TestParseRejectsBrokenEditions(t *testing.T) {
	base, err := editionsFS.ReadFile("editions/european.yaml")
	require.NoError(t, err)
	doc := string(base)

	tests := []struct {
		name    string
		old     string
		new     string
		wantErr string
	}{
		{"unknown field", "  hand_size: 7", "  hand_size: 7\n  bogus: 1", "field bogus not found"},
		{"missing capital", "    Ham: hamburg", "    Ham: saxony", "not a capital territory"},
		{"dangling adjacency", "connected: [novgorod] }", "connected: [muscovy] }", "invalid territory"},
		{"unknown commodity", "commodity: fur, recycles: true }", "commodity: amber, recycles: true }", "unknown commodity"},
		{"unknown prerequisite", "prerequisites: [heavens] }", "prerequisites: [astrology] }", "invalid advance"},
		{"card epoch", "id: galileo, name: Galileo, epoch: 3", "id: galileo, name: Galileo, epoch: 4", "outside 1..3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Contains(t, doc, tt.old)
			_, err := Parse([]byte(strings.Replace(doc, tt.old, tt.new, 1)))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadDirOverlay(t *testing.T) {
	base, err := editionsFS.ReadFile("editions/european.yaml")
	require.NoError(t, err)
	dir := t.TempDir()
	variant := strings.Replace(string(base), "name: european", "name: variant", 1)
	variant = strings.Replace(variant, "starting_cash: 40", "starting_cash: 50", 1)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "variant.yaml"), []byte(variant), 0o644))

	reg, err := LoadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"european", "variant"}, reg.Editions())
	cat, err := reg.Catalog("variant")
	require.NoError(t, err)
	assert.Equal(t, 50, cat.Rules().StartingCash)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "misnamed.yaml"), []byte(variant), 0o644))
	_, err = LoadDir(dir)
	assert.ErrorContains(t, err, `declares edition "variant"`)
}
