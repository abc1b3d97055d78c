package engine

// CardCategory decides how a history card resolves.
type CardCategory string

const (
	CategoryCommodity CardCategory = "commodity"
	CategoryEvent     CardCategory = "event"
	CategoryLeader    CardCategory = "leader"
)

// TargetKind says which parameter a card requires when played.
type TargetKind string

const (
	TargetNone      TargetKind = ""
	TargetTerritory TargetKind = "territory"
	TargetHouse     TargetKind = "house"
)

// Effect names the one-off state change of an event card.
type Effect string

const (
	EffectWar              Effect = "war"
	EffectBlackDeath       Effect = "black_death"
	EffectFamine           Effect = "famine"
	EffectRebellion        Effect = "rebellion"
	EffectEnlightenedRuler Effect = "enlightened_ruler"
	EffectReligiousStrife  Effect = "religious_strife"
	EffectMysticism        Effect = "mysticism_abounds"
	EffectAlchemistsGold   Effect = "alchemists_gold"
	EffectMercenaries      Effect = "mercenaries"
)

// Card is a history card definition.
type Card struct {
	ID           CardID       `yaml:"id" json:"id"`
	Name         string       `yaml:"name" json:"name"`
	Epoch        int          `yaml:"epoch" json:"epoch"`
	Category     CardCategory `yaml:"category" json:"category"`
	Recycles     bool         `yaml:"recycles" json:"recycles"`
	ShuffleLater bool         `yaml:"shuffle_later" json:"shuffle_later"`
	Commodity    CommodityID  `yaml:"commodity,omitempty" json:"commodity,omitempty"`
	Effect       Effect       `yaml:"effect,omitempty" json:"effect,omitempty"`
	Target       TargetKind   `yaml:"target,omitempty" json:"target,omitempty"`
	VoidedBy     []CardID     `yaml:"voided_by,omitempty" json:"voided_by,omitempty"`
	Modifier     string       `yaml:"modifier,omitempty" json:"modifier,omitempty"`
	Discount     int          `yaml:"discount,omitempty" json:"discount,omitempty"`
	Advances     []AdvanceID  `yaml:"advances,omitempty" json:"advances,omitempty"`
	Amount       int          `yaml:"amount,omitempty" json:"amount,omitempty"`
}

// TerritoryKind distinguishes capitals, provinces and satellites.
type TerritoryKind string

const (
	TerritoryCapital   TerritoryKind = "capital"
	TerritoryProvince  TerritoryKind = "province"
	TerritorySatellite TerritoryKind = "satellite"
)

// TerritoryDef is the static description of a map territory.
type TerritoryDef struct {
	ID          TerritoryID   `yaml:"id"`
	Name        string        `yaml:"name"`
	Area        string        `yaml:"area"`
	Kind        TerritoryKind `yaml:"kind"`
	MarketSize  int           `yaml:"market_size"`
	Commodities []CommodityID `yaml:"commodities,omitempty"`
	Connected   []TerritoryID `yaml:"connected,omitempty"`
}

// Advance is a purchasable development.
type Advance struct {
	ID            AdvanceID   `yaml:"id"`
	Name          string      `yaml:"name"`
	Category      string      `yaml:"category"`
	Credits       int         `yaml:"credits"`
	Points        int         `yaml:"points"`
	Prerequisites []AdvanceID `yaml:"prerequisites,omitempty"`
	Modifier      string      `yaml:"modifier,omitempty"`
}

// Commodity is a traded good with a unit price.
type Commodity struct {
	ID        CommodityID `yaml:"id"`
	Name      string      `yaml:"name"`
	UnitPrice int         `yaml:"unit_price"`
}

// Modifier is a combat modifier granted by an advance (static) or a card
// (temporary). A modifier listed in Voids is nullified for the opponent.
type Modifier struct {
	Name     string   `yaml:"name"`
	Combat   int      `yaml:"combat"`
	TieBreak bool     `yaml:"tie_break,omitempty"`
	Voids    []string `yaml:"voids,omitempty"`
}

// EditionRules are the numeric rules of one edition.
type EditionRules struct {
	Name             string                  `yaml:"name"`
	StartingCash     int                     `yaml:"starting_cash"`
	StartingTokens   int                     `yaml:"starting_tokens"`
	MarkerLimit      int                     `yaml:"marker_limit"`
	ExpansionPerTurn int                     `yaml:"expansion_per_turn"`
	EpochTurns       int                     `yaml:"epoch_turns"`
	MaxEpoch         int                     `yaml:"max_epoch"`
	// HandSize caps the hand; start_turn skips the draw for a full hand.
	HandSize         int                     `yaml:"hand_size"`
	MiseryScale      []int                   `yaml:"misery_scale"`
	Capitals         map[HouseID]TerritoryID `yaml:"capitals"`
}

// Catalog is the read-only rule-content oracle for one edition. The engine
// never mutates it.
type Catalog interface {
	Rules() EditionRules
	Card(id CardID) (Card, bool)
	Cards() []Card
	Territory(id TerritoryID) (TerritoryDef, bool)
	Advance(id AdvanceID) (Advance, bool)
	Commodity(id CommodityID) (Commodity, bool)
	Modifier(name string) (Modifier, bool)
}

// StaticCatalog is an in-memory Catalog.
type StaticCatalog struct {
	rules       EditionRules
	cards       []Card
	cardIdx     map[CardID]int
	territories map[TerritoryID]TerritoryDef
	advances    map[AdvanceID]Advance
	commodities map[CommodityID]Commodity
	modifiers   map[string]Modifier
}

// NewStaticCatalog indexes the given definitions. Card order is kept, so
// deck construction is deterministic.
func NewStaticCatalog(rules EditionRules, cards []Card, territories []TerritoryDef, advances []Advance, commodities []Commodity, modifiers []Modifier) *StaticCatalog {
	c := &StaticCatalog{
		rules:       rules,
		cards:       append([]Card(nil), cards...),
		cardIdx:     make(map[CardID]int, len(cards)),
		territories: make(map[TerritoryID]TerritoryDef, len(territories)),
		advances:    make(map[AdvanceID]Advance, len(advances)),
		commodities: make(map[CommodityID]Commodity, len(commodities)),
		modifiers:   make(map[string]Modifier, len(modifiers)),
	}
	for i, card := range c.cards {
		c.cardIdx[card.ID] = i
	}
	for _, t := range territories {
		c.territories[t.ID] = t
	}
	for _, a := range advances {
		c.advances[a.ID] = a
	}
	for _, m := range commodities {
		c.commodities[m.ID] = m
	}
	for _, m := range modifiers {
		c.modifiers[m.Name] = m
	}
	return c
}

func (c *StaticCatalog) Rules() EditionRules { return c.rules }
func (c *StaticCatalog) Cards() []Card       { return c.cards }

func (c *StaticCatalog) Card(id CardID) (Card, bool) {
	i, ok := c.cardIdx[id]
	if !ok {
		return Card{}, false
	}
	return c.cards[i], true
}

func (c *StaticCatalog) Territory(id TerritoryID) (TerritoryDef, bool) {
	t, ok := c.territories[id]
	return t, ok
}

func (c *StaticCatalog) Advance(id AdvanceID) (Advance, bool) {
	a, ok := c.advances[id]
	return a, ok
}

func (c *StaticCatalog) Commodity(id CommodityID) (Commodity, bool) {
	m, ok := c.commodities[id]
	return m, ok
}

func (c *StaticCatalog) Modifier(name string) (Modifier, bool) {
	m, ok := c.modifiers[name]
	return m, ok
}

// connected reports whether a and b are adjacent in either direction.
func connected(cat Catalog, a, b TerritoryID) bool {
	if ta, ok := cat.Territory(a); ok {
		for _, x := range ta.Connected {
			if x == b {
				return true
			}
		}
	}
	if tb, ok := cat.Territory(b); ok {
		for _, x := range tb.Connected {
			if x == a {
				return true
			}
		}
	}
	return false
}
