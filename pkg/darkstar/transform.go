package darkstar

import "github.com/go-gl/mathgl/mgl32"

// quat16Max is the fixed-point scale of a quantized quaternion component.
const quat16Max = 0x7fff

// Quat16 is a unit quaternion quantized to four signed 16-bit components.
type Quat16 struct {
	X, Y, Z, W int16
}

// Quat16FromQuat quantizes q.
func Quat16FromQuat(q mgl32.Quat) Quat16 {
	return Quat16{
		X: int16(q.V[0] * quat16Max),
		Y: int16(q.V[1] * quat16Max),
		Z: int16(q.V[2] * quat16Max),
		W: int16(q.W * quat16Max),
	}
}

// Quat dequantizes to a float quaternion.
func (q Quat16) Quat() mgl32.Quat {
	return mgl32.Quat{
		W: float32(q.W) / quat16Max,
		V: mgl32.Vec3{
			float32(q.X) / quat16Max,
			float32(q.Y) / quat16Max,
			float32(q.Z) / quat16Max,
		},
	}
}

// Transform is one entry of the shared transform table referenced by node
// defaults, keyframes and transition records.
type Transform struct {
	Rot Quat16
	Pos mgl32.Vec3
}

func (t *Quat16) decode(ms *MemStream) error {
	var err error
	if t.X, err = ms.ReadI16(); err != nil {
		return err
	}
	if t.Y, err = ms.ReadI16(); err != nil {
		return err
	}
	if t.Z, err = ms.ReadI16(); err != nil {
		return err
	}
	if t.W, err = ms.ReadI16(); err != nil {
		return err
	}
	return nil
}

// Pre-v7 streams carry a full float quaternion plus a scale that is dropped
// on load.
func readTransformV6(ms *MemStream) (Transform, error) {
	var out Transform
	var q mgl32.Quat
	var err error
	if q.V[0], err = ms.ReadF32(); err != nil {
		return out, err
	}
	if q.V[1], err = ms.ReadF32(); err != nil {
		return out, err
	}
	if q.V[2], err = ms.ReadF32(); err != nil {
		return out, err
	}
	if q.W, err = ms.ReadF32(); err != nil {
		return out, err
	}
	if out.Pos, err = ms.ReadVec3(); err != nil {
		return out, err
	}
	if _, err = ms.ReadVec3(); err != nil { // scale, unused
		return out, err
	}
	out.Rot = Quat16FromQuat(q)
	return out, nil
}

// v7 streams store the quantized rotation but still carry a scale.
func readTransformV7(ms *MemStream) (Transform, error) {
	var out Transform
	var err error
	if err = out.Rot.decode(ms); err != nil {
		return out, err
	}
	if out.Pos, err = ms.ReadVec3(); err != nil {
		return out, err
	}
	if _, err = ms.ReadVec3(); err != nil { // scale, unused
		return out, err
	}
	return out, nil
}

// v8+ streams store the in-memory layout directly.
func readTransformV8(ms *MemStream) (Transform, error) {
	var out Transform
	var err error
	if err = out.Rot.decode(ms); err != nil {
		return out, err
	}
	if out.Pos, err = ms.ReadVec3(); err != nil {
		return out, err
	}
	return out, nil
}
