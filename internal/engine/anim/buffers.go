package anim

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/jamesu/TribesViewer-sub000/pkg/darkstar"
)

// Vertex is one renderer-ready vertex: dequantized position plus decoded
// normal.
type Vertex struct {
	Pos    mgl32.Vec3
	Normal mgl32.Vec3
}

// DrawCall is one material run of one object, resolved against the current
// pose. Index values address the shared buffers handed to LoadModelData;
// VertexOffset and TexVertexOffset are added to each index by the renderer.
type DrawCall struct {
	Material        int32
	Transform       mgl32.Mat4
	VertexOffset    uint32
	TexVertexOffset uint32
	FirstIndex      uint32
	NumIndices      uint32
	NumVerts        uint32
}

// Renderer receives the instance's static buffers once and a stream of draw
// calls per rendered frame. Implementations live outside this package.
type Renderer interface {
	LoadModelData(verts []Vertex, texVerts []mgl32.Vec2, tris []darkstar.Triangle) error
	Draw(call DrawCall) error
}

// buildBuffers flattens every mesh into the shared vertex, texture-vertex and
// triangle buffers. Each mesh contributes one dequantized vertex block per
// distinct delta frame (consecutive frames sharing a first-vertex offset
// alias the same block) and one texture-vertex block per texture frame.
func (in *Instance) buildBuffers() error {
	in.meshes = make([]runtimeMesh, len(in.shape.Meshes))
	for mi, mesh := range in.shape.Meshes {
		rt := &in.meshes[mi]
		if mesh == nil || len(mesh.Faces) == 0 || len(mesh.Frames) == 0 {
			continue
		}

		vertMap, texVertMap, tris, prims, err := mesh.UnpackVertexStructure()
		if err != nil {
			return fmt.Errorf("mesh %d: %w", mi, err)
		}

		baseVert := uint32(len(in.verts))
		baseIndex := uint32(len(in.tris)) * 3
		for i := range prims {
			prims[i].StartVerts += baseVert
			prims[i].StartIndices += baseIndex
			prims[i].NumVerts = uint32(len(vertMap))
		}

		rt.FixedFrameOffsets = make([]uint32, len(mesh.Frames))
		prevVert := int32(-1)
		var vertCount uint32
		for fi := range mesh.Frames {
			frame := &mesh.Frames[fi]
			if frame.FirstVert < 0 || frame.FirstVert < prevVert {
				return fmt.Errorf("mesh %d: frame %d first vertex %d out of order", mi, fi, frame.FirstVert)
			}
			if frame.FirstVert == prevVert {
				rt.FixedFrameOffsets[fi] = rt.FixedFrameOffsets[fi-1]
				continue
			}
			rt.FixedFrameOffsets[fi] = vertCount
			prevVert = frame.FirstVert
			vertCount += uint32(len(vertMap))

			for _, slot := range vertMap {
				vi := int(slot) + int(frame.FirstVert)
				if vi >= len(mesh.Verts) {
					return fmt.Errorf("mesh %d: frame %d references vertex %d of %d", mi, fi, vi, len(mesh.Verts))
				}
				pv := mesh.Verts[vi]
				in.verts = append(in.verts, Vertex{
					Pos:    pv.Position(frame.Scale, frame.Origin),
					Normal: darkstar.NormalForIndex(pv.Normal),
				})
			}
		}

		texVertFrames := 1
		if mesh.TextureVertsPerFrame > 0 {
			texVertFrames = len(mesh.TexVerts) / int(mesh.TextureVertsPerFrame)
		}
		rt.TexVertBase = uint32(len(in.texVerts))
		if len(mesh.TexVerts) > 0 {
			for f := 0; f < texVertFrames; f++ {
				ofs := f * int(mesh.TextureVertsPerFrame)
				for _, slot := range texVertMap {
					ti := int(slot) + ofs
					if ti >= len(mesh.TexVerts) {
						return fmt.Errorf("mesh %d: texture frame %d references texture vertex %d of %d", mi, f, ti, len(mesh.TexVerts))
					}
					in.texVerts = append(in.texVerts, mesh.TexVerts[ti])
				}
			}
		}

		rt.Mesh = mesh
		rt.Prims = prims
		rt.RealVertsPerFrame = uint32(len(vertMap))
		rt.RealTexVerts = uint32(len(texVertMap))
		rt.NumTexFrames = uint32(texVertFrames)
		in.tris = append(in.tris, tris...)
	}
	return nil
}

// UploadModel hands the instance's static buffers to the renderer. Call once
// after NewInstance; the buffers never change afterwards.
func (in *Instance) UploadModel(r Renderer) error {
	if len(in.verts) == 0 || len(in.tris) == 0 {
		return nil
	}
	return r.LoadModelData(in.verts, in.texVerts, in.tris)
}

// EmitDrawCalls resolves node visibility and emits one draw call per visible
// material run for the always branch and the selected detail.
func (in *Instance) EmitDrawCalls(r Renderer) error {
	in.determineNodeVisibility()

	if in.alwaysNode >= 0 {
		if err := in.emitDetailObjects(r, in.details[0]); err != nil {
			return err
		}
	}
	if in.currentDetail < 0 || int(in.currentDetail) >= len(in.shape.Details) {
		return nil
	}
	return in.emitDetailObjects(r, in.details[in.currentDetail+1])
}

func (in *Instance) emitDetailObjects(r Renderer, detail detailRange) error {
	for i := detail.startObject; i < detail.startObject+detail.numObjects; i++ {
		objID := in.objectRenderIDs[i]
		obj := &in.shape.Objects[objID]
		if obj.MeshIndex < 0 || int(obj.MeshIndex) >= len(in.meshes) {
			continue
		}
		mesh := &in.meshes[obj.MeshIndex]
		rtObj := &in.objects[objID]
		if mesh.Mesh == nil || !rtObj.Draw {
			continue
		}
		if obj.NodeIndex < 0 || in.nodeVisibility[obj.NodeIndex]&nodeVisRender == 0 {
			continue
		}

		frame := rtObj.Frame
		if int(frame) >= len(mesh.FixedFrameOffsets) {
			frame = 0
		}
		texFrame := rtObj.TexFrame
		if texFrame >= mesh.NumTexFrames {
			texFrame = 0
		}

		xfm := in.nodeTransforms[obj.NodeIndex].Mul4(
			mgl32.Translate3D(obj.Offset[0], obj.Offset[1], obj.Offset[2]))

		for _, prim := range mesh.Prims {
			mat := prim.Material
			if mat < 0 {
				continue
			}
			if in.shape.Materials != nil && int(mat) >= len(in.shape.Materials.Materials) {
				mat = 0
			}
			call := DrawCall{
				Material:        mat,
				Transform:       xfm,
				VertexOffset:    prim.StartVerts + mesh.FixedFrameOffsets[frame],
				TexVertexOffset: mesh.TexVertBase + texFrame*mesh.RealTexVerts,
				FirstIndex:      prim.StartIndices,
				NumIndices:      prim.NumIndices,
				NumVerts:        prim.NumVerts,
			}
			if err := r.Draw(call); err != nil {
				return err
			}
		}
	}
	return nil
}
