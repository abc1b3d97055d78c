package snapcodec

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/jason-s-yu/renaissance/engine"
	"github.com/jason-s-yu/renaissance/internal/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCodec(t *testing.T) *Codec {
	t.Helper()
	c, err := New()
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

// dealtGame returns a 4-player game right after the opening deal.
func dealtGame(t *testing.T) *engine.GameState {
	t.Helper()
	reg, err := catalog.Embedded()
	require.NoError(t, err)
	cat, err := reg.Catalog(catalog.DefaultEdition)
	require.NoError(t, err)
	g, err := engine.NewGame(catalog.DefaultEdition, []uuid.UUID{uuid.New(), uuid.New(), uuid.New(), uuid.New()})
	require.NoError(t, err)
	_, err = engine.NewSeededMachine(cat, 9).Apply(g, uuid.Nil, engine.Action{Kind: engine.KindDealCards})
	require.NoError(t, err)
	return g
}

func TestRoundTrip(t *testing.T) {
	c := newCodec(t)
	g := dealtGame(t)

	b, err := c.Encode(g)
	require.NoError(t, err)
	back, err := c.Decode(b)
	require.NoError(t, err)

	want, err := c.Canonical(g)
	require.NoError(t, err)
	got, err := c.Canonical(back)
	require.NoError(t, err)
	assert.JSONEq(t, string(want), string(got))
	assert.Equal(t, want, got, "canonical form must be byte-stable across a round trip")
}

func TestInitialGameEncodes(t *testing.T) {
	c := newCodec(t)
	g, err := engine.NewGame("european", []uuid.UUID{uuid.New(), uuid.New(), uuid.New()})
	require.NoError(t, err)
	b, err := c.Encode(g)
	require.NoError(t, err)
	back, err := c.Decode(b)
	require.NoError(t, err)
	top, ok := back.Cursor.Top()
	require.True(t, ok)
	assert.Equal(t, engine.EngineFrame(engine.PhaseInit), top)
}

func TestSchemaViolations(t *testing.T) {
	c := newCodec(t)

	g := dealtGame(t)
	g.Cursor = append(g.Cursor, engine.Frame{Scope: "nobody", Phase: engine.PhaseWar})
	_, err := c.Encode(g)
	assert.ErrorIs(t, err, ErrSchema)

	g = dealtGame(t)
	g.Version = engine.SnapshotVersion + 1
	_, err = c.Encode(g)
	assert.ErrorIs(t, err, ErrVersion)
}

func TestDecodeRejects(t *testing.T) {
	c := newCodec(t)

	_, err := c.Decode([]byte("not zstd"))
	assert.Error(t, err)

	raw, err := json.Marshal(map[string]any{"version": 1, "edition": "european"})
	require.NoError(t, err)
	_, err = c.Decode(c.enc.EncodeAll(raw, nil))
	assert.ErrorIs(t, err, ErrSchema)

	raw, err = json.Marshal(map[string]any{"version": 7})
	require.NoError(t, err)
	_, err = c.Decode(c.enc.EncodeAll(raw, nil))
	assert.ErrorIs(t, err, ErrVersion)
}
