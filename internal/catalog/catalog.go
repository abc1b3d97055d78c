// Package catalog loads the static rule content of each edition from YAML
// and serves it to the engine as a read-only engine.Catalog.
package catalog

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"slices"
	"strings"
	"sync"

	"github.com/jason-s-yu/renaissance/engine"
	"gopkg.in/yaml.v3"
)

//go:embed editions/*.yaml
var editionsFS embed.FS

// DefaultEdition is the edition new games use unless told otherwise.
const DefaultEdition = "european"

// ErrUnknownEdition is returned for an edition with no loaded catalog.
var ErrUnknownEdition = errors.New("unknown edition")

type editionFile struct {
	Rules       engine.EditionRules   `yaml:"rules"`
	Commodities []engine.Commodity    `yaml:"commodities"`
	Territories []engine.TerritoryDef `yaml:"territories"`
	Modifiers   []engine.Modifier     `yaml:"modifiers"`
	Advances    []engine.Advance      `yaml:"advances"`
	Cards       []engine.Card         `yaml:"cards"`
}

// Parse decodes and checks one edition document.
func Parse(data []byte) (*engine.StaticCatalog, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var f editionFile
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode edition: %w", err)
	}
	if err := f.validate(); err != nil {
		return nil, fmt.Errorf("edition %q: %w", f.Rules.Name, err)
	}
	return engine.NewStaticCatalog(f.Rules, f.Cards, f.Territories, f.Advances, f.Commodities, f.Modifiers), nil
}

func (f *editionFile) validate() error {
	r := f.Rules
	switch {
	case r.Name == "":
		return errors.New("rules.name is required")
	case r.StartingCash <= 0, r.StartingTokens <= 0, r.MarkerLimit <= 0:
		return errors.New("starting cash, tokens and marker limit must be positive")
	case r.EpochTurns <= 0 || r.MaxEpoch <= 0:
		return errors.New("epoch_turns and max_epoch must be positive")
	case len(r.MiseryScale) < 2:
		return errors.New("misery_scale needs at least two steps")
	}

	commodities := make(map[engine.CommodityID]bool)
	for _, c := range f.Commodities {
		if commodities[c.ID] {
			return fmt.Errorf("duplicate commodity %q", c.ID)
		}
		commodities[c.ID] = true
	}
	modifiers := make(map[string]bool)
	for _, m := range f.Modifiers {
		if modifiers[m.Name] {
			return fmt.Errorf("duplicate modifier %q", m.Name)
		}
		modifiers[m.Name] = true
	}
	for _, m := range f.Modifiers {
		for _, v := range m.Voids {
			if !modifiers[v] {
				return fmt.Errorf("modifier %s voids unknown modifier %q", m.Name, v)
			}
		}
	}

	territories := make(map[engine.TerritoryID]engine.TerritoryDef)
	for _, t := range f.Territories {
		if _, dup := territories[t.ID]; dup {
			return fmt.Errorf("duplicate territory %q", t.ID)
		}
		if t.MarketSize <= 0 {
			return fmt.Errorf("territory %s has no market", t.ID)
		}
		territories[t.ID] = t
	}
	for _, t := range f.Territories {
		for _, c := range t.Commodities {
			if !commodities[c] {
				return fmt.Errorf("territory %s produces unknown commodity %q", t.ID, c)
			}
		}
		for _, n := range t.Connected {
			if _, ok := territories[n]; !ok || n == t.ID {
				return fmt.Errorf("territory %s connects to invalid territory %q", t.ID, n)
			}
		}
	}
	for _, h := range engine.Houses {
		id, ok := r.Capitals[h]
		if !ok {
			return fmt.Errorf("house %s has no capital", h)
		}
		if t, ok := territories[id]; !ok || t.Kind != engine.TerritoryCapital {
			return fmt.Errorf("capital %q of %s is not a capital territory", id, h)
		}
	}

	advances := make(map[engine.AdvanceID]bool)
	for _, a := range f.Advances {
		if advances[a.ID] {
			return fmt.Errorf("duplicate advance %q", a.ID)
		}
		advances[a.ID] = true
	}
	for _, a := range f.Advances {
		for _, p := range a.Prerequisites {
			if !advances[p] || p == a.ID {
				return fmt.Errorf("advance %s requires invalid advance %q", a.ID, p)
			}
		}
		if a.Modifier != "" && !modifiers[a.Modifier] {
			return fmt.Errorf("advance %s grants unknown modifier %q", a.ID, a.Modifier)
		}
	}

	cards := make(map[engine.CardID]bool)
	initial := 0
	for _, c := range f.Cards {
		if cards[c.ID] {
			return fmt.Errorf("duplicate card %q", c.ID)
		}
		cards[c.ID] = true
		if c.Epoch < 1 || c.Epoch > r.MaxEpoch {
			return fmt.Errorf("card %s has epoch %d outside 1..%d", c.ID, c.Epoch, r.MaxEpoch)
		}
		if c.Epoch == 1 && !c.ShuffleLater {
			initial++
		}
		switch c.Category {
		case engine.CategoryCommodity:
			if !commodities[c.Commodity] {
				return fmt.Errorf("card %s pays unknown commodity %q", c.ID, c.Commodity)
			}
		case engine.CategoryEvent:
			if c.Effect == "" {
				return fmt.Errorf("event card %s has no effect", c.ID)
			}
		case engine.CategoryLeader:
			for _, a := range c.Advances {
				if !advances[a] {
					return fmt.Errorf("leader %s discounts unknown advance %q", c.ID, a)
				}
			}
		default:
			return fmt.Errorf("card %s has unknown category %q", c.ID, c.Category)
		}
		if c.Modifier != "" && !modifiers[c.Modifier] {
			return fmt.Errorf("card %s grants unknown modifier %q", c.ID, c.Modifier)
		}
	}
	for _, c := range f.Cards {
		for _, v := range c.VoidedBy {
			if !cards[v] {
				return fmt.Errorf("card %s is voided by unknown card %q", c.ID, v)
			}
		}
	}
	if need := engine.DrawPerBidder * engine.MaxSeats; initial < need {
		return fmt.Errorf("initial deck has %d cards, a full table needs %d", initial, need)
	}
	return nil
}

// Registry holds the catalogs of every loaded edition.
type Registry struct {
	mu       sync.RWMutex
	editions map[string]engine.Catalog
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{editions: make(map[string]engine.Catalog)}
}

// Embedded returns a registry holding the editions compiled into the binary.
func Embedded() (*Registry, error) {
	r := NewRegistry()
	sub, err := fs.Sub(editionsFS, "editions")
	if err != nil {
		return nil, err
	}
	if err := r.Load(sub); err != nil {
		return nil, err
	}
	return r, nil
}

// LoadDir returns the embedded editions overlaid with every *.yaml file in
// dir. An empty dir means embedded editions only.
func LoadDir(dir string) (*Registry, error) {
	r, err := Embedded()
	if err != nil {
		return nil, err
	}
	if dir == "" {
		return r, nil
	}
	if err := r.Load(os.DirFS(dir)); err != nil {
		return nil, err
	}
	return r, nil
}

// Load parses every *.yaml file at the root of fsys. The edition name in
// the file must match its base name.
func (r *Registry) Load(fsys fs.FS) error {
	names, err := fs.Glob(fsys, "*.yaml")
	if err != nil {
		return err
	}
	for _, name := range names {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		cat, err := Parse(data)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		edition := strings.TrimSuffix(path.Base(name), ".yaml")
		if got := cat.Rules().Name; got != edition {
			return fmt.Errorf("%s: declares edition %q", name, got)
		}
		r.Register(edition, cat)
	}
	return nil
}

// Register adds or replaces the catalog of one edition.
func (r *Registry) Register(edition string, cat engine.Catalog) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.editions[edition] = cat
}

// Catalog returns the catalog of an edition.
func (r *Registry) Catalog(edition string) (engine.Catalog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cat, ok := r.editions[edition]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownEdition, edition)
	}
	return cat, nil
}

// Editions lists the loaded edition names, sorted.
func (r *Registry) Editions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.editions))
	for name := range r.editions {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}
