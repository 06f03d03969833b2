package geometry

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Plane is the set of points p where Normal.Dot(p) + D == 0. Points with a
// positive distance are on the inner side.
type Plane struct {
	Normal mgl32.Vec3
	D      float32
}

func NewPlane(normal mgl32.Vec3, d float32) Plane {
	return Plane{Normal: normal, D: d}
}

// PlaneFromPoint returns the plane going through p with the given normal.
func PlaneFromPoint(normal, p mgl32.Vec3) Plane {
	return Plane{Normal: normal, D: -normal.Dot(p)}
}

func (p Plane) Distance(v mgl32.Vec3) float32 {
	return p.Normal.Dot(v) + p.D
}

// Normalized returns the plane scaled so its normal has unit length. A plane
// with a zero normal is returned as is.
func (p Plane) Normalized() Plane {
	l := p.Normal.Len()
	if l == 0 {
		return p
	}
	return Plane{Normal: p.Normal.Mul(1 / l), D: p.D / l}
}

func (p Plane) isDegenerate() bool {
	if !IsFinite(p.Normal) || math.IsNaN(float64(p.D)) || math.IsInf(float64(p.D), 0) {
		return true
	}
	return p.Normal.Len() < 1e-6
}

// Frustum plane indexes.
const (
	PlaneLeft = iota
	PlaneRight
	PlaneBottom
	PlaneTop
	PlaneNear
	PlaneFar
)

// Frustum is a convex volume bounded by six inward facing planes, ordered
// left, right, bottom, top, near, far.
type Frustum struct {
	Planes [6]Plane
}

// NewFrustum returns a frustum made of the given planes, normalized.
func NewFrustum(planes [6]Plane) Frustum {
	var f Frustum
	for i, p := range planes {
		f.Planes[i] = p.Normalized()
	}
	return f
}

// NewFrustumFromMatrix extracts the six clipping planes of an OpenGL style
// view-projection matrix.
func NewFrustumFromMatrix(viewProj mgl32.Mat4) Frustum {
	r0 := viewProj.Row(0)
	r1 := viewProj.Row(1)
	r2 := viewProj.Row(2)
	r3 := viewProj.Row(3)

	planeFromVec := func(v mgl32.Vec4) Plane {
		return Plane{Normal: v.Vec3(), D: v[3]}
	}

	return NewFrustum([6]Plane{
		PlaneLeft:   planeFromVec(r3.Add(r0)),
		PlaneRight:  planeFromVec(r3.Sub(r0)),
		PlaneBottom: planeFromVec(r3.Add(r1)),
		PlaneTop:    planeFromVec(r3.Sub(r1)),
		PlaneNear:   planeFromVec(r3.Add(r2)),
		PlaneFar:    planeFromVec(r3.Sub(r2)),
	})
}

// NewBoxFrustum returns the frustum whose volume is exactly the given box.
func NewBoxFrustum(b AABB) Frustum {
	return NewFrustum([6]Plane{
		PlaneLeft:   PlaneFromPoint(mgl32.Vec3{1, 0, 0}, b.Min),
		PlaneRight:  PlaneFromPoint(mgl32.Vec3{-1, 0, 0}, b.Max),
		PlaneBottom: PlaneFromPoint(mgl32.Vec3{0, 1, 0}, b.Min),
		PlaneTop:    PlaneFromPoint(mgl32.Vec3{0, -1, 0}, b.Max),
		PlaneNear:   PlaneFromPoint(mgl32.Vec3{0, 0, 1}, b.Min),
		PlaneFar:    PlaneFromPoint(mgl32.Vec3{0, 0, -1}, b.Max),
	})
}

// Containment is the result of testing a volume against a frustum.
type Containment int

const (
	Outside Containment = iota
	Intersecting
	Inside
)

// ClassifyAABB tests the box against the six planes. The test is
// conservative: a box near a frustum edge may be reported as intersecting
// while being outside.
func (f Frustum) ClassifyAABB(b AABB) Containment {
	result := Inside
	for _, p := range f.Planes {
		// Positive vertex: the corner the farthest along the normal.
		pv := b.Min
		nv := b.Max
		for axis := 0; axis < 3; axis++ {
			if p.Normal[axis] >= 0 {
				pv[axis] = b.Max[axis]
				nv[axis] = b.Min[axis]
			}
		}

		if p.Distance(pv) < 0 {
			return Outside
		}
		if p.Distance(nv) < 0 {
			result = Intersecting
		}
	}
	return result
}

// IntersectsAABB reports whether the box is at least partially inside.
func (f Frustum) IntersectsAABB(b AABB) bool {
	return f.ClassifyAABB(b) != Outside
}

func (f Frustum) ContainsPoint(v mgl32.Vec3) bool {
	for _, p := range f.Planes {
		if p.Distance(v) < 0 {
			return false
		}
	}
	return true
}

// Corners returns the eight corners of the frustum. ok is false when three
// of the planes do not meet in a single point.
func (f Frustum) Corners() (corners [8]mgl32.Vec3, ok bool) {
	for i := 0; i < 8; i++ {
		x := f.Planes[PlaneLeft+(i&1)]
		y := f.Planes[PlaneBottom+((i>>1)&1)]
		z := f.Planes[PlaneNear+((i>>2)&1)]

		c, ok := intersectPlanes(x, y, z)
		if !ok {
			return corners, false
		}
		corners[i] = c
	}
	return corners, true
}

// IsDegenerate reports whether the frustum has a zero length or NaN normal,
// or does not enclose any volume.
func (f Frustum) IsDegenerate() bool {
	for _, p := range f.Planes {
		if p.isDegenerate() {
			return true
		}
	}

	corners, ok := f.Corners()
	if !ok {
		return true
	}

	bounds := AABB{Min: corners[0], Max: corners[0]}
	for _, c := range corners {
		scale := 1 + c.Len()
		for _, p := range f.Planes {
			if p.Distance(c) < -1e-4*scale {
				return true
			}
		}
		bounds = bounds.Union(AABB{Min: c, Max: c})
	}

	size := bounds.Size()
	const minExtent = 1e-6
	return size[0] <= minExtent || size[1] <= minExtent || size[2] <= minExtent
}

// Bounds returns the box enclosing the frustum corners. ok is false for a
// degenerate frustum.
func (f Frustum) Bounds() (AABB, bool) {
	if f.IsDegenerate() {
		return AABB{}, false
	}

	corners, _ := f.Corners()
	b := AABB{Min: corners[0], Max: corners[0]}
	for _, c := range corners[1:] {
		b = b.Union(AABB{Min: c, Max: c})
	}
	return b, true
}

func intersectPlanes(a, b, c Plane) (mgl32.Vec3, bool) {
	bc := b.Normal.Cross(c.Normal)
	denom := a.Normal.Dot(bc)
	if math.Abs(float64(denom)) < 1e-7 {
		return mgl32.Vec3{}, false
	}

	ca := c.Normal.Cross(a.Normal)
	ab := a.Normal.Cross(b.Normal)
	p := bc.Mul(a.D).Add(ca.Mul(b.D)).Add(ab.Mul(c.D)).Mul(-1 / denom)
	return p, IsFinite(p)
}
