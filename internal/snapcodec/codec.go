// Package snapcodec turns game snapshots into the bytes kept by the store
// and back. Every snapshot is checked against the embedded JSON schema in
// both directions and stored zstd-compressed.
package snapcodec

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jason-s-yu/renaissance/engine"
	"github.com/klauspost/compress/zstd"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed snapshot.schema.json
var schemaText string

const schemaURL = "snapshot.schema.json"

var (
	// ErrSchema marks a snapshot that does not match the schema.
	ErrSchema = errors.New("snapshot schema violation")
	// ErrVersion marks a snapshot written by an incompatible engine.
	ErrVersion = errors.New("unsupported snapshot version")
)

// Codec encodes and decodes snapshots. It is safe for concurrent use.
type Codec struct {
	schema *jsonschema.Schema
	enc    *zstd.Encoder
	dec    *zstd.Decoder
}

// New compiles the snapshot schema and prepares the compressor.
func New() (*Codec, error) {
	schema, err := jsonschema.CompileString(schemaURL, schemaText)
	if err != nil {
		return nil, fmt.Errorf("compile snapshot schema: %w", err)
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("zstd writer: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("zstd reader: %w", err)
	}
	return &Codec{schema: schema, enc: enc, dec: dec}, nil
}

// Close releases the compressor resources.
func (c *Codec) Close() {
	c.enc.Close()
	c.dec.Close()
}

// Canonical returns the validated JSON form of g. Two states are equal
// exactly when their canonical forms are.
func (c *Codec) Canonical(g *engine.GameState) ([]byte, error) {
	if g.Version != engine.SnapshotVersion {
		return nil, fmt.Errorf("%w: %d", ErrVersion, g.Version)
	}
	raw, err := json.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := c.validate(raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// Encode returns the stored form of g.
func (c *Codec) Encode(g *engine.GameState) ([]byte, error) {
	raw, err := c.Canonical(g)
	if err != nil {
		return nil, err
	}
	return c.enc.EncodeAll(raw, make([]byte, 0, len(raw)/4)), nil
}

// Decode parses a stored snapshot.
func (c *Codec) Decode(b []byte) (*engine.GameState, error) {
	raw, err := c.dec.DecodeAll(b, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress snapshot: %w", err)
	}
	var head struct {
		Version int `json:"version"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchema, err)
	}
	if head.Version != engine.SnapshotVersion {
		return nil, fmt.Errorf("%w: %d", ErrVersion, head.Version)
	}
	if err := c.validate(raw); err != nil {
		return nil, err
	}
	var g engine.GameState
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &g, nil
}

func (c *Codec) validate(raw []byte) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("%w: %v", ErrSchema, err)
	}
	if err := c.schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrSchema, err)
	}
	return nil
}
