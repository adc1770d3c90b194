package darkstar

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// normalTable maps the packed per-vertex normal byte to a unit vector.
// Entries follow a deterministic spherical Fibonacci distribution.
var normalTable = buildNormalTable()

func buildNormalTable() [256]mgl32.Vec3 {
	var table [256]mgl32.Vec3
	golden := math.Pi * (3.0 - math.Sqrt(5.0))
	for i := range table {
		z := 1.0 - 2.0*(float64(i)+0.5)/256.0
		r := math.Sqrt(1.0 - z*z)
		phi := float64(i) * golden
		table[i] = mgl32.Vec3{
			float32(r * math.Cos(phi)),
			float32(r * math.Sin(phi)),
			float32(z),
		}
	}
	return table
}

// NormalForIndex returns the unit normal for a packed vertex normal index.
func NormalForIndex(idx uint8) mgl32.Vec3 {
	return normalTable[idx]
}
