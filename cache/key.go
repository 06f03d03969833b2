package cache

import (
	"math"

	"github.com/aukilabs/octant/geometry"
	"github.com/aukilabs/octant/layers"
	"github.com/go-gl/mathgl/mgl32"
)

// Kind is the shape of a cached query.
type Kind uint8

const (
	KindRadius Kind = iota + 1
	KindRegion
	KindFrustum
)

func (k Kind) String() string {
	switch k {
	case KindRadius:
		return "radius"
	case KindRegion:
		return "region"
	case KindFrustum:
		return "frustum"
	default:
		return "unknown"
	}
}

// Key identifies a query by the bit patterns of its shape parameters and its
// layer mask. Two queries share a key only when they are bitwise identical.
type Key struct {
	Kind   Kind
	Params [24]uint32
	Mask   layers.Mask
}

func RadiusKey(center mgl32.Vec3, radius float32, mask layers.Mask) Key {
	k := Key{Kind: KindRadius, Mask: mask}
	putVec(&k, 0, center)
	k.Params[3] = math.Float32bits(radius)
	return k
}

func RegionKey(region geometry.AABB, mask layers.Mask) Key {
	k := Key{Kind: KindRegion, Mask: mask}
	putVec(&k, 0, region.Min)
	putVec(&k, 3, region.Max)
	return k
}

func FrustumKey(f geometry.Frustum, mask layers.Mask) Key {
	k := Key{Kind: KindFrustum, Mask: mask}
	for i, p := range f.Planes {
		putVec(&k, i*4, p.Normal)
		k.Params[i*4+3] = math.Float32bits(p.D)
	}
	return k
}

func putVec(k *Key, offset int, v mgl32.Vec3) {
	for i, c := range v {
		k.Params[offset+i] = math.Float32bits(c)
	}
}
