// Package anim evaluates skeletal animation over decoded persisted shapes:
// playback threads, per-tick node pose resolution, object frame/visibility
// selection, detail-level switching and renderer-ready draw emission.
package anim

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/jamesu/TribesViewer-sub000/pkg/darkstar"
)

// slerp interpolates two quaternions the way the legacy engine did: shortest
// path, with a linear fallback when the inputs are nearly parallel.
func slerp(q1, q2 mgl32.Quat, t float32) mgl32.Quat {
	cosOmega := float64(q1.V[0]*q2.V[0] + q1.V[1]*q2.V[1] + q1.V[2]*q2.V[2] + q1.W*q2.W)

	sign2 := 1.0
	if cosOmega < 0 {
		cosOmega = -cosOmega
		sign2 = -1.0
	}

	var scale1, scale2 float64
	if 1.0-cosOmega > 0.00001 {
		omega := math.Acos(cosOmega)
		sinOmega := math.Sin(omega)
		scale1 = math.Sin((1.0-float64(t))*omega) / sinOmega
		scale2 = sign2 * math.Sin(float64(t)*omega) / sinOmega
	} else {
		scale1 = 1.0 - float64(t)
		scale2 = sign2 * float64(t)
	}

	return mgl32.Quat{
		W: float32(scale1*float64(q1.W) + scale2*float64(q2.W)),
		V: mgl32.Vec3{
			float32(scale1*float64(q1.V[0]) + scale2*float64(q2.V[0])),
			float32(scale1*float64(q1.V[1]) + scale2*float64(q2.V[1])),
			float32(scale1*float64(q1.V[2]) + scale2*float64(q2.V[2])),
		},
	}
}

// quatMat4 converts a rotation to a matrix using the legacy engine's element
// layout. A near-zero rotation yields the identity.
func quatMat4(q mgl32.Quat) mgl32.Mat4 {
	x, y, z, w := q.V[0], q.V[1], q.V[2], q.W
	if x*x+y*y+z*z < 10e-20 {
		return mgl32.Ident4()
	}

	xs, ys, zs := x*2, y*2, z*2
	wx, wy, wz := w*xs, w*ys, w*zs
	xx, xy, xz := x*xs, x*ys, x*zs
	yy, yz := y*ys, y*zs
	zz := z*zs

	// Column-major.
	return mgl32.Mat4{
		1 - (yy + zz), xy - wz, xz + wy, 0,
		xy + wz, 1 - (xx + zz), yz - wx, 0,
		xz - wy, yz + wx, 1 - (xx + yy), 0,
		0, 0, 0, 1,
	}
}

// transformMat4 builds the local matrix for a transform table entry.
func transformMat4(t darkstar.Transform) mgl32.Mat4 {
	m := quatMat4(t.Rot.Quat())
	m.SetCol(3, mgl32.Vec4{t.Pos[0], t.Pos[1], t.Pos[2], 1})
	return m
}

// interpolateTransform blends two transform table entries at fraction t.
func interpolateTransform(a, b darkstar.Transform, t float32) mgl32.Mat4 {
	q := slerp(a.Rot.Quat(), b.Rot.Quat(), t)
	inv := 1 - t
	p := mgl32.Vec3{
		a.Pos[0]*inv + b.Pos[0]*t,
		a.Pos[1]*inv + b.Pos[1]*t,
		a.Pos[2]*inv + b.Pos[2]*t,
	}
	m := quatMat4(q)
	m.SetCol(3, mgl32.Vec4{p[0], p[1], p[2], 1})
	return m
}

// composeTransforms combines a parent world matrix with a local matrix,
// keeping the translation column out of the rotation product so scale never
// couples into it: worldT = parentRot*localT + parentT.
func composeTransforms(parent, local mgl32.Mat4) mgl32.Mat4 {
	localT := local.Col(3)
	parentT := parent.Col(3)
	local.SetCol(3, mgl32.Vec4{0, 0, 0, 1})
	parent.SetCol(3, mgl32.Vec4{0, 0, 0, 1})

	out := parent.Mul4(local)
	t := parent.Mul4x1(localT).Add(parentT)
	out.SetCol(3, mgl32.Vec4{t[0], t[1], t[2], 1})
	return out
}
