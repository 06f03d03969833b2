// Package layers defines the bitmask used to classify indexed entities and
// filter spatial queries.
package layers

import (
	"math/bits"
	"strconv"
	"strings"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Mask is a set of layers. An entity passes a query filter when its mask
// overlaps the query mask.
type Mask uint32

const (
	None         Mask = 0
	Player       Mask = 1 << 0
	Creatures    Mask = 1 << 1
	Terrain      Mask = 1 << 2
	Grass        Mask = 1 << 3
	Water        Mask = 1 << 4
	Items        Mask = 1 << 5
	Pokeballs    Mask = 1 << 6
	Triggers     Mask = 1 << 7
	NPCs         Mask = 1 << 8
	Buildings    Mask = 1 << 9
	Collectibles Mask = 1 << 10
	Particles    Mask = 1 << 11
	UI           Mask = 1 << 12
	Debug        Mask = 1 << 13
	Camera       Mask = 1 << 14
	Default      Mask = 1 << 15
	All          Mask = 0xFFFFFFFF
)

// Common combinations.
const (
	Interactables    = Creatures | Items | Pokeballs | NPCs | Collectibles
	Environment      = Terrain | Grass | Water | Buildings
	GameplayEntities = Player | Creatures | Items | Pokeballs | NPCs
	StaticObjects    = Terrain | Buildings | Triggers
	DynamicObjects   = Player | Creatures | Items | Pokeballs | Particles
)

var names = []struct {
	mask Mask
	name string
}{
	{Player, "player"},
	{Creatures, "creatures"},
	{Terrain, "terrain"},
	{Grass, "grass"},
	{Water, "water"},
	{Items, "items"},
	{Pokeballs, "pokeballs"},
	{Triggers, "triggers"},
	{NPCs, "npcs"},
	{Buildings, "buildings"},
	{Collectibles, "collectibles"},
	{Particles, "particles"},
	{UI, "ui"},
	{Debug, "debug"},
	{Camera, "camera"},
	{Default, "default"},
}

var aliases = map[string]Mask{
	"none":              None,
	"all":               All,
	"interactables":     Interactables,
	"environment":       Environment,
	"gameplay_entities": GameplayEntities,
	"static_objects":    StaticObjects,
	"dynamic_objects":   DynamicObjects,
}

func (m Mask) Union(o Mask) Mask {
	return m | o
}

func (m Mask) Intersect(o Mask) Mask {
	return m & o
}

func (m Mask) Without(o Mask) Mask {
	return m &^ o
}

// Overlaps reports whether both masks share at least one layer.
func (m Mask) Overlaps(o Mask) bool {
	return m&o != 0
}

// Has reports whether every layer of o is in m.
func (m Mask) Has(o Mask) bool {
	return m&o == o
}

func (m Mask) IsEmpty() bool {
	return m == None
}

func (m Mask) IsAll() bool {
	return m == All
}

// Count returns the number of layers in the mask.
func (m Mask) Count() int {
	return bits.OnesCount32(uint32(m))
}

// String returns the layer names joined with "|". Bits without a name are
// written in hexadecimal.
func (m Mask) String() string {
	switch m {
	case None:
		return "none"
	case All:
		return "all"
	}

	var parts []string
	rest := m
	for _, n := range names {
		if m&n.mask != 0 {
			parts = append(parts, n.name)
			rest &^= n.mask
		}
	}
	if rest != 0 {
		parts = append(parts, "0x"+strconv.FormatUint(uint64(rest), 16))
	}
	return strings.Join(parts, "|")
}

// Parse parses masks written as layer names or hexadecimal values separated
// by "|" or ",".
func Parse(s string) (Mask, error) {
	var m Mask

	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == '|' || r == ','
	})
	for _, f := range fields {
		f = strings.ToLower(strings.TrimSpace(f))
		if f == "" {
			continue
		}

		if v, ok := aliases[f]; ok {
			m |= v
			continue
		}

		found := false
		for _, n := range names {
			if n.name == f {
				m |= n.mask
				found = true
				break
			}
		}
		if found {
			continue
		}

		v, err := strconv.ParseUint(f, 0, 32)
		if err != nil {
			return None, errors.New("unknown layer").
				WithTag("layer", f).
				Wrap(err)
		}
		m |= Mask(v)
	}

	return m, nil
}

func (m *Mask) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.SequenceNode {
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		v, err := Parse(strings.Join(list, "|"))
		if err != nil {
			return err
		}
		*m = v
		return nil
	}

	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := Parse(s)
	if err != nil {
		return err
	}
	*m = v
	return nil
}

func (m Mask) MarshalYAML() (any, error) {
	return m.String(), nil
}
