package darkstar

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// PackedVertex is the on-disk vertex encoding: coordinates quantized to a
// byte each (dequantized through the owning frame's scale/origin) plus an
// encoded normal index.
type PackedVertex struct {
	X, Y, Z, Normal uint8
}

// Position dequantizes the vertex against a frame's scale and origin.
func (v PackedVertex) Position(scale, origin mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{
		float32(v.X)*scale[0] + origin[0],
		float32(v.Y)*scale[1] + origin[1],
		float32(v.Z)*scale[2] + origin[2],
	}
}

// VertexIndexPair references a vertex slot and a texture-coordinate slot.
type VertexIndexPair struct {
	Vert    int32
	TexVert int32
}

func (p VertexIndexPair) hash() uint64 {
	return uint64(uint32(p.Vert)) | uint64(uint32(p.TexVert))<<32
}

// Face is a triangle of slot pairs plus a material index.
type Face struct {
	Verts    [3]VertexIndexPair
	Material int32
}

// Frame is a delta frame: an offset to the frame's first vertex in the flat
// vertex array plus the dequantization scale/origin for that frame.
// Consecutive frames may alias the same offset when geometry is unchanged.
type Frame struct {
	FirstVert int32
	Scale     mgl32.Vec3
	Origin    mgl32.Vec3
}

// Triangle indexes three deduplicated vertices.
type Triangle [3]uint16

// Prim is a renderer-ready draw range covering one material.
type Prim struct {
	StartVerts   uint32
	StartIndices uint32
	NumVerts     uint32
	NumIndices   uint32
	Material     int32
}

// CelAnimMesh is per-mesh geometry stored as sparse delta frames over a
// shared packed vertex array.
type CelAnimMesh struct {
	VertsPerFrame        int32
	TextureVertsPerFrame int32
	Radius               float32

	Verts    []PackedVertex
	TexVerts []mgl32.Vec2
	Faces    []Face
	Frames   []Frame
}

// Decode implements Asset.
func (m *CelAnimMesh) Decode(reg *Registry, ms *MemStream, version int32) error {
	numVerts, err := ms.ReadI32()
	if err != nil {
		return err
	}
	if m.VertsPerFrame, err = ms.ReadI32(); err != nil {
		return err
	}
	numTexVerts, err := ms.ReadI32()
	if err != nil {
		return err
	}
	numFaces, err := ms.ReadI32()
	if err != nil {
		return err
	}
	numFrames, err := ms.ReadI32()
	if err != nil {
		return err
	}

	if version >= 2 {
		if m.TextureVertsPerFrame, err = ms.ReadI32(); err != nil {
			return err
		}
	} else {
		m.TextureVertsPerFrame = numTexVerts
	}

	var v2Scale, v2Origin mgl32.Vec3
	if version < 3 {
		if v2Scale, err = ms.ReadVec3(); err != nil {
			return err
		}
		if v2Origin, err = ms.ReadVec3(); err != nil {
			return err
		}
	}

	if m.Radius, err = ms.ReadF32(); err != nil {
		return err
	}

	if err := checkCount(ms, numVerts, 4, "mesh verts"); err != nil {
		return err
	}
	m.Verts = make([]PackedVertex, numVerts)
	for i := range m.Verts {
		b, err := ms.take(4)
		if err != nil {
			return err
		}
		m.Verts[i] = PackedVertex{X: b[0], Y: b[1], Z: b[2], Normal: b[3]}
	}

	if err := checkCount(ms, numTexVerts, 8, "mesh texture verts"); err != nil {
		return err
	}
	m.TexVerts = make([]mgl32.Vec2, numTexVerts)
	for i := range m.TexVerts {
		if m.TexVerts[i], err = ms.ReadVec2(); err != nil {
			return err
		}
	}

	if err := checkCount(ms, numFaces, 28, "mesh faces"); err != nil {
		return err
	}
	m.Faces = make([]Face, numFaces)
	for i := range m.Faces {
		f := &m.Faces[i]
		for j := 0; j < 3; j++ {
			if f.Verts[j].Vert, err = ms.ReadI32(); err != nil {
				return err
			}
			if f.Verts[j].TexVert, err = ms.ReadI32(); err != nil {
				return err
			}
		}
		if f.Material, err = ms.ReadI32(); err != nil {
			return err
		}
	}

	if version < 3 {
		// Old streams share one scale/origin across frames; a frameless mesh
		// still gets a single synthetic frame.
		if numFrames == 0 {
			m.Frames = []Frame{{FirstVert: 0, Scale: v2Scale, Origin: v2Origin}}
		} else {
			if err := checkCount(ms, numFrames, 4, "mesh frames"); err != nil {
				return err
			}
			m.Frames = make([]Frame, numFrames)
			for i := range m.Frames {
				fv, err := ms.ReadI32()
				if err != nil {
					return err
				}
				m.Frames[i] = Frame{FirstVert: fv, Scale: v2Scale, Origin: v2Origin}
			}
		}
	} else {
		if err := checkCount(ms, numFrames, 28, "mesh frames"); err != nil {
			return err
		}
		m.Frames = make([]Frame, numFrames)
		for i := range m.Frames {
			f := &m.Frames[i]
			if f.FirstVert, err = ms.ReadI32(); err != nil {
				return err
			}
			if f.Scale, err = ms.ReadVec3(); err != nil {
				return err
			}
			if f.Origin, err = ms.ReadVec3(); err != nil {
				return err
			}
		}
	}

	return nil
}

// UnpackVertexStructure walks the face list and produces deduplicated vertex
// and texture-vertex slot maps, a triangle list referencing the deduplicated
// indices, and per-material draw ranges. A Prim is closed whenever the face
// material changes.
func (m *CelAnimMesh) UnpackVertexStructure() (vertMap, texVertMap []uint32, tris []Triangle, prims []Prim, err error) {
	var current Prim
	current.Material = -1
	pairToVert := make(map[uint64]uint32)

	for fi := range m.Faces {
		face := &m.Faces[fi]

		if current.NumIndices != 0 && current.Material != face.Material {
			prims = append(prims, current)
			current.NumIndices = 0
		}
		if current.NumIndices == 0 {
			current.StartIndices = uint32(len(tris)) * 3
			current.StartVerts = 0
			current.NumVerts = 0
			current.Material = face.Material
			clear(pairToVert)
		}

		var tri Triangle
		for i := 0; i < 3; i++ {
			pair := face.Verts[i]
			idx, ok := pairToVert[pair.hash()]
			if !ok {
				idx = uint32(len(vertMap))
				if idx > 0xFFFF {
					return nil, nil, nil, nil, fmt.Errorf("mesh unpack: more than %d unique vertices", 0x10000)
				}
				pairToVert[pair.hash()] = idx
				vertMap = append(vertMap, uint32(pair.Vert))
				texVertMap = append(texVertMap, uint32(pair.TexVert))
				current.NumVerts++
			}
			tri[i] = uint16(idx)
		}
		tris = append(tris, tri)
		current.NumIndices += 3
	}

	if current.NumIndices != 0 {
		prims = append(prims, current)
	}
	return vertMap, texVertMap, tris, prims, nil
}

// checkCount validates an untrusted array count against the bytes left in
// the stream before allocating.
func checkCount(ms *MemStream, count int32, elemSize int, what string) error {
	if count < 0 {
		return fmt.Errorf("%s: negative count %d", what, count)
	}
	if uint64(count)*uint64(elemSize) > uint64(ms.Remaining()) {
		return fmt.Errorf("%s: count %d exceeds stream size", what, count)
	}
	return nil
}
