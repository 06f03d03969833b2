// Package config holds the construction parameters of a spatial index.
package config

import (
	"os"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/octant/cache"
	"github.com/aukilabs/octant/geometry"
	"github.com/aukilabs/octant/octree"
	"github.com/go-gl/mathgl/mgl32"
	"gopkg.in/yaml.v3"
)

const (
	ErrTypeInvalidWorld = "world_config_invalid"

	MinDepth = 1
	MaxDepth = 20
)

// World describes the bounds of a world and how it is partitioned and
// cached.
type World struct {
	Name               string        `yaml:"name"                  json:"name"`
	Min                mgl32.Vec3    `yaml:"min"                   json:"min"`
	Max                mgl32.Vec3    `yaml:"max"                   json:"max"`
	MaxEntitiesPerNode int           `yaml:"max_entities_per_node" json:"max_entities_per_node"`
	MaxDepth           int           `yaml:"max_depth"             json:"max_depth"`
	MinNodeSize        float32       `yaml:"min_node_size"         json:"min_node_size"`
	CacheMaxEntries    int           `yaml:"cache_max_entries"     json:"cache_max_entries"`
	CacheTTL           time.Duration `yaml:"cache_ttl"             json:"cache_ttl"`
}

// DefaultWorld returns a 100 meter wide cube centered on the origin.
func DefaultWorld() World {
	return World{
		Name:               "default",
		Min:                mgl32.Vec3{-50, -50, -50},
		Max:                mgl32.Vec3{50, 50, 50},
		MaxEntitiesPerNode: octree.DefaultMaxEntitiesPerNode,
		MaxDepth:           octree.DefaultMaxDepth,
		MinNodeSize:        1,
		CacheMaxEntries:    cache.DefaultMaxEntries,
		CacheTTL:           cache.DefaultTTL,
	}
}

// PokemonWorld returns a wide and flat outdoor world.
func PokemonWorld() World {
	w := DefaultWorld()
	w.Name = "pokemon"
	w.Min = mgl32.Vec3{-100, -10, -100}
	w.Max = mgl32.Vec3{100, 50, 100}
	return w
}

// TestWorld returns a small world sized for stress formations.
func TestWorld() World {
	w := DefaultWorld()
	w.Name = "test"
	w.Min = mgl32.Vec3{-30, -5, -30}
	w.Max = mgl32.Vec3{30, 35, 30}
	return w
}

// Preset returns the world preset with the given name.
func Preset(name string) (World, bool) {
	switch name {
	case "default", "":
		return DefaultWorld(), true
	case "pokemon":
		return PokemonWorld(), true
	case "test":
		return TestWorld(), true
	default:
		return World{}, false
	}
}

func (w World) Bounds() geometry.AABB {
	return geometry.NewAABB(w.Min, w.Max)
}

func (w World) Size() mgl32.Vec3 {
	return w.Max.Sub(w.Min)
}

func (w World) Center() mgl32.Vec3 {
	return w.Bounds().Center()
}

func (w World) Volume() float32 {
	s := w.Size()
	return s[0] * s[1] * s[2]
}

func (w World) Validate() error {
	if !geometry.IsFinite(w.Min) || !geometry.IsFinite(w.Max) ||
		w.Min[0] >= w.Max[0] ||
		w.Min[1] >= w.Max[1] ||
		w.Min[2] >= w.Max[2] {
		return invalidWorldError("min bounds must be less than max bounds in all dimensions", w)
	}

	if w.MaxDepth < MinDepth || w.MaxDepth > MaxDepth {
		return invalidWorldError("max depth must be between 1 and 20", w)
	}

	if w.MaxEntitiesPerNode < 1 {
		return invalidWorldError("max entities per node must be positive", w)
	}

	if w.MinNodeSize < 0 {
		return invalidWorldError("min node size must not be negative", w)
	}

	if w.CacheMaxEntries < 0 || w.CacheTTL < 0 {
		return invalidWorldError("cache limits must not be negative", w)
	}

	return nil
}

func invalidWorldError(msg string, w World) error {
	return errors.New(msg).
		WithType(ErrTypeInvalidWorld).
		WithTag("world", w.Name).
		WithTag("min", w.Min).
		WithTag("max", w.Max).
		WithTag("max_depth", w.MaxDepth)
}

// Parse decodes a YAML world description. Fields absent from data keep the
// values of DefaultWorld.
func Parse(data []byte) (World, error) {
	w := DefaultWorld()
	if err := yaml.Unmarshal(data, &w); err != nil {
		return World{}, errors.New("decoding world config failed").
			WithType(ErrTypeInvalidWorld).
			Wrap(err)
	}

	if err := w.Validate(); err != nil {
		return World{}, err
	}
	return w, nil
}

// Load reads and parses the YAML world description at path.
func Load(path string) (World, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return World{}, errors.New("reading world config failed").
			WithTag("path", path).
			Wrap(err)
	}
	return Parse(data)
}
