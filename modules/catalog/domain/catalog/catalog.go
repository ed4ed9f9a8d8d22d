// Package catalog holds the canonical value lists that spreadsheet cells are
// normalized against, and the rules that disambiguate shared game codes.
package catalog

import (
	"os"
	"strings"

	"github.com/go-faster/errors"
	"gopkg.in/yaml.v3"
)

// Enumeration is an ordered list of canonical values. Order matters: the
// normalizer keeps the earliest candidate on ties.
type Enumeration []string

func (e Enumeration) Contains(v string) bool {
	for _, c := range e {
		if c == v {
			return true
		}
	}
	return false
}

const (
	LiveCasino = "Live Casino"
	// VentureColumn is the column the built-in disambiguation rule reads.
	VentureColumn = "Venture"
)

// Catalog is immutable after Load; accessors hand out copies.
type Catalog struct {
	volatility  Enumeration
	gameTypes   Enumeration
	casinoTypes Enumeration
	features    Enumeration
	themes      Enumeration
	truthy      Enumeration
	invalid     Enumeration
	rules       []Rule
}

func (c *Catalog) Volatility() Enumeration  { return clone(c.volatility) }
func (c *Catalog) GameTypes() Enumeration   { return clone(c.gameTypes) }
func (c *Catalog) CasinoTypes() Enumeration { return clone(c.casinoTypes) }
func (c *Catalog) Features() Enumeration    { return clone(c.features) }
func (c *Catalog) Themes() Enumeration      { return clone(c.themes) }
func (c *Catalog) Truthy() Enumeration      { return clone(c.truthy) }
func (c *Catalog) Invalid() Enumeration     { return clone(c.invalid) }
func (c *Catalog) Rules() []Rule            { return append([]Rule(nil), c.rules...) }

func clone(e Enumeration) Enumeration {
	return append(Enumeration(nil), e...)
}

func Default() *Catalog {
	return &Catalog{
		volatility: Enumeration{"Low", "Low-Medium", "Medium", "Medium-High", "High", "Very High"},
		gameTypes: Enumeration{
			"Slots", LiveCasino, "Table Games", "Instant Win", "Scratchcards", "Bingo", "Crash",
		},
		casinoTypes: Enumeration{"Roulette", "Blackjack", "Baccarat", "Poker", "Game Show", "Dice"},
		features: Enumeration{
			"Free Spins", "Bonus Buy", "Megaways", "Cascading Reels", "Multipliers",
			"Expanding Wilds", "Sticky Wilds", "Hold and Win", "Respins", "Cluster Pays",
		},
		themes: Enumeration{
			"Adventure", "Ancient Egypt", "Animals", "Asian", "Classic", "Christmas",
			"Fantasy", "Fruit", "Horror", "Irish", "Mythology", "Music", "Pirates", "Sports",
		},
		truthy:  Enumeration{"Yes", "All"},
		invalid: Enumeration{"n/a", "*"},
		rules: []Rule{
			{Column: VentureColumn, Contains: "vg", Suffix: " (vg)"},
		},
	}
}

// WithVentureColumn returns a copy whose rules reading VentureColumn read
// column instead.
func (c *Catalog) WithVentureColumn(column string) *Catalog {
	column = strings.TrimSpace(column)
	cp := *c
	cp.rules = append([]Rule(nil), c.rules...)
	if column == "" || column == VentureColumn {
		return &cp
	}
	for i := range cp.rules {
		if cp.rules[i].Column == VentureColumn {
			cp.rules[i].Column = column
		}
	}
	return &cp
}

type fileFormat struct {
	Enumerations map[string][]string `yaml:"enumerations"`
	Rules        *[]Rule             `yaml:"rules"`
}

// Load reads a YAML override file. Lists present in the file replace the
// defaults; absent lists keep them. An empty path returns Default().
func Load(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read catalog")
	}
	c, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "catalog %s", path)
	}
	return c, nil
}

func Parse(data []byte) (*Catalog, error) {
	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "decode yaml")
	}

	c := Default()
	targets := map[string]*Enumeration{
		"volatility":   &c.volatility,
		"game_types":   &c.gameTypes,
		"casino_types": &c.casinoTypes,
		"features":     &c.features,
		"themes":       &c.themes,
		"truthy":       &c.truthy,
		"invalid":      &c.invalid,
	}
	for name, values := range f.Enumerations {
		target, ok := targets[name]
		if !ok {
			return nil, errors.Errorf("unknown enumeration %q", name)
		}
		cleaned := make(Enumeration, 0, len(values))
		for _, v := range values {
			if v = strings.TrimSpace(v); v != "" && !cleaned.Contains(v) {
				cleaned = append(cleaned, v)
			}
		}
		if len(cleaned) == 0 {
			return nil, errors.Errorf("enumeration %q is empty", name)
		}
		*target = cleaned
	}
	if f.Rules != nil {
		for i, r := range *f.Rules {
			if err := r.validate(); err != nil {
				return nil, errors.Wrapf(err, "rule %d", i)
			}
		}
		c.rules = append([]Rule(nil), (*f.Rules)...)
	}
	return c, nil
}
