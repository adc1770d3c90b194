package anim

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/jamesu/TribesViewer-sub000/pkg/darkstar"
)

type fakeRenderer struct {
	verts    []Vertex
	texVerts []mgl32.Vec2
	tris     []darkstar.Triangle
	calls    []DrawCall
}

func (r *fakeRenderer) LoadModelData(verts []Vertex, texVerts []mgl32.Vec2, tris []darkstar.Triangle) error {
	r.verts = verts
	r.texVerts = texVerts
	r.tris = tris
	return nil
}

func (r *fakeRenderer) Draw(call DrawCall) error {
	r.calls = append(r.calls, call)
	return nil
}

// buildMeshShape constructs a one-node shape carrying a triangle mesh.
func buildMeshShape(t *testing.T, frames []darkstar.Frame, verts []darkstar.PackedVertex) *darkstar.Shape {
	t.Helper()
	mesh := &darkstar.CelAnimMesh{
		VertsPerFrame:        3,
		TextureVertsPerFrame: 3,
		Radius:               1,
		Verts:                verts,
		TexVerts:             []mgl32.Vec2{{0, 0}, {1, 0}, {0, 1}},
		Faces: []darkstar.Face{
			{Verts: [3]darkstar.VertexIndexPair{{Vert: 0, TexVert: 0}, {Vert: 1, TexVert: 1}, {Vert: 2, TexVert: 2}}, Material: 0},
		},
		Frames: frames,
	}
	shape := &darkstar.Shape{
		Radius: 1,
		Nodes: []darkstar.Node{
			{Name: 0, Parent: -1, DefaultTransform: 0},
		},
		Transforms: []darkstar.Transform{
			{Rot: identityRot, Pos: mgl32.Vec3{0, 0, 0}},
		},
		Names: []string{"root", "body"},
		Objects: []darkstar.Object{
			{Name: 1, MeshIndex: 0, NodeIndex: 0},
		},
		Details:    []darkstar.Detail{{RootNode: 0, Size: 0}},
		Meshes:     []*darkstar.CelAnimMesh{mesh},
		AlwaysNode: -1,
	}
	if err := shape.BuildChildRanges(); err != nil {
		t.Fatalf("BuildChildRanges: %v", err)
	}
	return shape
}

func oneFrame() []darkstar.Frame {
	return []darkstar.Frame{
		{FirstVert: 0, Scale: mgl32.Vec3{0.01, 0.01, 0.01}, Origin: mgl32.Vec3{-1, -1, -1}},
	}
}

func threeVerts() []darkstar.PackedVertex {
	return []darkstar.PackedVertex{
		{X: 0, Y: 0, Z: 0, Normal: 0},
		{X: 255, Y: 0, Z: 0, Normal: 1},
		{X: 0, Y: 255, Z: 0, Normal: 2},
	}
}

func TestUploadModel(t *testing.T) {
	inst := newTestInstance(t, buildMeshShape(t, oneFrame(), threeVerts()))

	var r fakeRenderer
	if err := inst.UploadModel(&r); err != nil {
		t.Fatalf("UploadModel: %v", err)
	}
	if len(r.verts) != 3 || len(r.texVerts) != 3 || len(r.tris) != 1 {
		t.Fatalf("buffers = %d verts, %d texverts, %d tris",
			len(r.verts), len(r.texVerts), len(r.tris))
	}

	// Positions are dequantized through the frame scale and origin.
	want := mgl32.Vec3{255*0.01 - 1, -1, -1}
	if got := r.verts[1].Pos; got.Sub(want).Len() > 1e-5 {
		t.Errorf("vertex 1 = %v, want %v", got, want)
	}
	// Normals come decoded from the index table.
	if l := r.verts[0].Normal.Len(); l < 0.999 || l > 1.001 {
		t.Errorf("vertex 0 normal not unit length: %f", l)
	}
}

func TestEmitDrawCalls(t *testing.T) {
	inst := newTestInstance(t, buildMeshShape(t, oneFrame(), threeVerts()))
	inst.Animate()

	var r fakeRenderer
	if err := inst.EmitDrawCalls(&r); err != nil {
		t.Fatalf("EmitDrawCalls: %v", err)
	}
	if len(r.calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(r.calls))
	}
	call := r.calls[0]
	if call.Material != 0 || call.NumIndices != 3 || call.NumVerts != 3 {
		t.Errorf("call = %+v", call)
	}
	if call.VertexOffset != 0 || call.TexVertexOffset != 0 || call.FirstIndex != 0 {
		t.Errorf("offsets = %d/%d/%d, want zero", call.VertexOffset, call.TexVertexOffset, call.FirstIndex)
	}
}

func TestFrameOffsets(t *testing.T) {
	// Six stored vertices, two distinct delta frames.
	verts := append(threeVerts(),
		darkstar.PackedVertex{X: 1, Normal: 3},
		darkstar.PackedVertex{X: 2, Normal: 4},
		darkstar.PackedVertex{X: 3, Normal: 5},
	)
	frames := []darkstar.Frame{
		{FirstVert: 0, Scale: mgl32.Vec3{1, 1, 1}},
		{FirstVert: 0, Scale: mgl32.Vec3{1, 1, 1}}, // aliases the first block
		{FirstVert: 3, Scale: mgl32.Vec3{1, 1, 1}},
	}

	inst := newTestInstance(t, buildMeshShape(t, frames, verts))

	rt := &inst.meshes[0]
	wantOffsets := []uint32{0, 0, 3}
	for i, want := range wantOffsets {
		if rt.FixedFrameOffsets[i] != want {
			t.Errorf("frame offset %d = %d, want %d", i, rt.FixedFrameOffsets[i], want)
		}
	}
	// Two distinct blocks of three emitted vertices.
	if len(inst.verts) != 6 {
		t.Errorf("emitted %d vertices, want 6", len(inst.verts))
	}
}

func TestBuffersRejectDecreasingFrames(t *testing.T) {
	verts := append(threeVerts(),
		darkstar.PackedVertex{}, darkstar.PackedVertex{}, darkstar.PackedVertex{},
	)
	frames := []darkstar.Frame{
		{FirstVert: 3},
		{FirstVert: 0},
	}
	shape := buildMeshShape(t, frames, verts)
	if _, err := NewInstance(shape); err == nil {
		t.Fatal("expected error for out-of-order frame offsets")
	}
}

func TestBuffersRejectVertexOverrun(t *testing.T) {
	frames := []darkstar.Frame{{FirstVert: 2}}
	shape := buildMeshShape(t, frames, threeVerts())
	if _, err := NewInstance(shape); err == nil {
		t.Fatal("expected error for frame referencing past the vertex array")
	}
}
