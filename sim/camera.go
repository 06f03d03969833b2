package sim

import (
	"github.com/aukilabs/octant/geometry"
	"github.com/go-gl/mathgl/mgl32"
)

// Camera is a perspective camera following a target from a fixed offset.
type Camera struct {
	// Vertical field of view in degrees.
	FOV    float32
	Aspect float32
	Near   float32
	Far    float32

	// Position of the eye relative to the target.
	Offset mgl32.Vec3
}

func DefaultCamera() Camera {
	return Camera{
		FOV:    60,
		Aspect: 16.0 / 9.0,
		Near:   0.1,
		Far:    100,
		Offset: mgl32.Vec3{0, 8, 12},
	}
}

// Frustum returns the view frustum of the camera looking at target.
func (c Camera) Frustum(target mgl32.Vec3) geometry.Frustum {
	proj := mgl32.Perspective(mgl32.DegToRad(c.FOV), c.Aspect, c.Near, c.Far)
	view := mgl32.LookAtV(target.Add(c.Offset), target, mgl32.Vec3{0, 1, 0})
	return geometry.NewFrustumFromMatrix(proj.Mul4(view))
}
