package geometry

import (
	"github.com/go-gl/mathgl/mgl32"
)

// AABB is an axis aligned bounding box described by its min and max corners.
// A box with Min == Max is a valid point box.
type AABB struct {
	Min mgl32.Vec3
	Max mgl32.Vec3
}

func NewAABB(min, max mgl32.Vec3) AABB {
	return AABB{Min: min, Max: max}
}

// AABBFromCenter returns the box centered on c with the given half extents.
func AABBFromCenter(c, halfExtents mgl32.Vec3) AABB {
	return AABB{
		Min: c.Sub(halfExtents),
		Max: c.Add(halfExtents),
	}
}

// AABBFromSphere returns the tightest box enclosing the sphere.
func AABBFromSphere(c mgl32.Vec3, radius float32) AABB {
	return AABBFromCenter(c, mgl32.Vec3{radius, radius, radius})
}

func (b AABB) Center() mgl32.Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

func (b AABB) HalfExtents() mgl32.Vec3 {
	return b.Max.Sub(b.Min).Mul(0.5)
}

func (b AABB) Size() mgl32.Vec3 {
	return b.Max.Sub(b.Min)
}

// IsEmpty reports whether the box is inverted on any axis or holds NaN
// coordinates.
func (b AABB) IsEmpty() bool {
	if !IsFinite(b.Min) || !IsFinite(b.Max) {
		return true
	}
	return b.Min[0] > b.Max[0] || b.Min[1] > b.Max[1] || b.Min[2] > b.Max[2]
}

// Intersects reports whether the two boxes overlap. Touching faces count as
// an overlap.
func (b AABB) Intersects(o AABB) bool {
	return b.Min[0] <= o.Max[0] && b.Max[0] >= o.Min[0] &&
		b.Min[1] <= o.Max[1] && b.Max[1] >= o.Min[1] &&
		b.Min[2] <= o.Max[2] && b.Max[2] >= o.Min[2]
}

// Contains reports whether o lies entirely inside b, boundaries included.
func (b AABB) Contains(o AABB) bool {
	return o.Min[0] >= b.Min[0] && o.Max[0] <= b.Max[0] &&
		o.Min[1] >= b.Min[1] && o.Max[1] <= b.Max[1] &&
		o.Min[2] >= b.Min[2] && o.Max[2] <= b.Max[2]
}

func (b AABB) ContainsPoint(p mgl32.Vec3) bool {
	return p[0] >= b.Min[0] && p[0] <= b.Max[0] &&
		p[1] >= b.Min[1] && p[1] <= b.Max[1] &&
		p[2] >= b.Min[2] && p[2] <= b.Max[2]
}

// Union returns the smallest box enclosing both boxes.
func (b AABB) Union(o AABB) AABB {
	return AABB{
		Min: minVec(b.Min, o.Min),
		Max: maxVec(b.Max, o.Max),
	}
}

// ClampPoint returns the point of the box closest to p.
func (b AABB) ClampPoint(p mgl32.Vec3) mgl32.Vec3 {
	return ClampVec(p, b.Min, b.Max)
}

// ClampBox moves o so its center lies inside b. The extents of o are kept,
// so a large box near the border may still overhang b.
func (b AABB) ClampBox(o AABB) AABB {
	c := o.Center()
	clamped := b.ClampPoint(c)
	if clamped == c {
		return o
	}
	return AABBFromCenter(clamped, o.HalfExtents())
}

// Intersect returns the overlapping part of both boxes. The result is empty
// when they do not overlap.
func (b AABB) Intersect(o AABB) AABB {
	return AABB{
		Min: maxVec(b.Min, o.Min),
		Max: minVec(b.Max, o.Max),
	}
}

// Octant returns the i-th octant of the box. Bit 0 of i selects +x, bit 1 +y
// and bit 2 +z.
func (b AABB) Octant(i int) AABB {
	c := b.Center()
	o := b
	if i&1 != 0 {
		o.Min[0] = c[0]
	} else {
		o.Max[0] = c[0]
	}
	if i&2 != 0 {
		o.Min[1] = c[1]
	} else {
		o.Max[1] = c[1]
	}
	if i&4 != 0 {
		o.Min[2] = c[2]
	} else {
		o.Max[2] = c[2]
	}
	return o
}

// Diagonal returns the length of the box diagonal.
func (b AABB) Diagonal() float32 {
	return b.Size().Len()
}

// SquaredDistanceToPoint returns the squared distance between p and the
// closest point of the box. It is 0 when p is inside.
func (b AABB) SquaredDistanceToPoint(p mgl32.Vec3) float32 {
	return DistanceSquared(p, b.ClampPoint(p))
}
