package darkstar

import (
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

// persChunk frames a payload as a named persisted object chunk.
func persChunk(class string, version uint32, payload []byte) []byte {
	var inner fixtureWriter
	inner.str(class)
	inner.u32(version)
	inner.buf.Write(payload)

	var w fixtureWriter
	w.chunk(TagPersist, inner.bytes())
	return w.bytes()
}

// makeMeshV3 builds a minimal one-frame triangle mesh payload.
func makeMeshV3() []byte {
	var w fixtureWriter
	w.i32(3) // verts
	w.i32(3) // verts per frame
	w.i32(3) // texture verts
	w.i32(1) // faces
	w.i32(1) // frames
	w.i32(3) // texture verts per frame
	w.f32(1) // radius

	// Packed vertices spanning the quantized range.
	for _, v := range [][4]uint8{{0, 0, 0, 0}, {255, 0, 0, 1}, {0, 255, 0, 2}} {
		w.u8(v[0])
		w.u8(v[1])
		w.u8(v[2])
		w.u8(v[3])
	}
	for _, uv := range [][2]float32{{0, 0}, {1, 0}, {0, 1}} {
		w.f32(uv[0])
		w.f32(uv[1])
	}
	// One face, material 0.
	for i := int32(0); i < 3; i++ {
		w.i32(i)
		w.i32(i)
	}
	w.i32(0)
	// One frame.
	w.i32(0)
	w.vec3(0.01, 0.01, 0.01)
	w.vec3(-1, -1, -1)
	return w.bytes()
}

// makeMaterialListV2 builds a material list payload with two texture entries.
func makeMaterialListV2(names ...string) []byte {
	var w fixtureWriter
	w.u32(1)
	w.u32(uint32(len(names)))
	for i, name := range names {
		w.u32(MaterialTexture)
		w.f32(1.0)
		w.u32(uint32(i))
		w.buf.Write([]byte{0, 0, 0, 0})
		w.fixedStr(name, materialNameSizeV2)
	}
	return w.bytes()
}

// makeShapeV8 builds a complete two-node shape stream: root and child node,
// one cyclic sequence animating both, one object on the child carrying the
// embedded mesh, and a two-entry material list.
func makeShapeV8() []byte {
	var w fixtureWriter

	w.i32(2) // nodes
	w.i32(1) // sequences
	w.i32(2) // subsequences
	w.i32(2) // keyframes
	w.i32(2) // transforms
	w.i32(4) // names
	w.i32(1) // objects
	w.i32(1) // details
	w.i32(1) // meshes
	w.i32(0) // transitions
	w.i32(0) // frame triggers

	w.f32(2)        // radius
	w.vec3(0, 0, 0) // center
	w.vec3(-1, -1, -1)
	w.vec3(1, 1, 1)

	// Nodes: root, then a child parented to it.
	for _, n := range [][5]int16{
		{0, -1, 1, 0, 0},
		{1, 0, 1, 1, 1},
	} {
		for _, f := range n {
			w.i16(f)
		}
	}

	// One cyclic one-second sequence.
	w.i32(2)
	w.i32(1)
	w.f32(1.0)
	w.i32(0)
	w.i32(0)
	w.i32(0)
	w.i32(0)
	w.i32(0)

	// One single-keyframe subsequence per node.
	for _, s := range [][3]int16{{0, 1, 0}, {0, 1, 1}} {
		for _, f := range s {
			w.i16(f)
		}
	}

	// Keyframes pointing at the transform table.
	w.f32(0)
	w.u16(0)
	w.u16(0)
	w.f32(0)
	w.u16(1)
	w.u16(0)

	// Identity rotation transforms; the second carries a translation.
	w.i16(0)
	w.i16(0)
	w.i16(0)
	w.i16(0x7fff)
	w.vec3(0, 0, 0)
	w.i16(0)
	w.i16(0)
	w.i16(0)
	w.i16(0x7fff)
	w.vec3(1, 0, 0)

	for _, name := range []string{"root", "arm", "walk", "body"} {
		w.fixedStr(name, shapeNameLen)
	}

	// One object on the child node, carrying mesh 0.
	w.i16(3)
	w.u16(0)
	w.i32(0)
	w.i16(1)
	w.u16(0) // struct padding
	w.vec3(0, 0, 0)
	w.i16(0)
	w.i16(0)

	// One detail rooted at node 0.
	w.i32(0)
	w.f32(0)

	w.i32(0)  // default materials
	w.i32(-1) // always node

	w.buf.Write(persChunk("TS::CelAnimMesh", 3, makeMeshV3()))

	w.u32(1) // has materials
	w.buf.Write(persChunk("TS::MaterialList", 2, makeMaterialListV2("body.bmp", "arm.bmp")))

	return w.bytes()
}

func decodeShape(t *testing.T, data []byte) *Shape {
	t.Helper()
	reg := NewRegistry()
	asset, err := reg.CreateFromStream(NewMemStream(data))
	if err != nil {
		t.Fatalf("CreateFromStream: %v", err)
	}
	shape, ok := asset.(*Shape)
	if !ok {
		t.Fatalf("decoded %T, want *Shape", asset)
	}
	return shape
}

func TestShapeDecodeV8(t *testing.T) {
	shape := decodeShape(t, persChunk("TS::Shape", 8, makeShapeV8()))

	if len(shape.Nodes) != 2 || len(shape.Sequences) != 1 || len(shape.Objects) != 1 {
		t.Fatalf("counts = %d nodes, %d sequences, %d objects",
			len(shape.Nodes), len(shape.Sequences), len(shape.Objects))
	}
	if shape.Radius != 2 {
		t.Errorf("radius = %f, want 2", shape.Radius)
	}
	if shape.MinBounds != (mgl32.Vec3{-1, -1, -1}) || shape.MaxBounds != (mgl32.Vec3{1, 1, 1}) {
		t.Errorf("bounds = %v .. %v", shape.MinBounds, shape.MaxBounds)
	}
	if shape.AlwaysNode != -1 {
		t.Errorf("always node = %d, want -1", shape.AlwaysNode)
	}

	if got := shape.GetName(int32(shape.Nodes[1].Name)); got != "arm" {
		t.Errorf("node 1 name = %q, want arm", got)
	}
	if shape.FindSequence("WALK") != 0 {
		t.Errorf("sequence lookup must be case-insensitive")
	}
	if !shape.Sequences[0].Cyclic || shape.Sequences[0].Duration != 1 {
		t.Errorf("sequence = %+v", shape.Sequences[0])
	}

	// Derived hierarchy: node 0 is the sole root, node 1 its only child.
	if roots := shape.Children(-1); len(roots) != 1 || roots[0] != 0 {
		t.Errorf("roots = %v, want [0]", roots)
	}
	if kids := shape.Children(0); len(kids) != 1 || kids[0] != 1 {
		t.Errorf("children of 0 = %v, want [1]", kids)
	}
	if kids := shape.Children(1); len(kids) != 0 {
		t.Errorf("children of 1 = %v, want none", kids)
	}

	if len(shape.Meshes) != 1 || len(shape.Meshes[0].Faces) != 1 {
		t.Fatalf("embedded mesh missing")
	}
	if shape.Materials == nil || len(shape.Materials.Materials) != 2 {
		t.Fatalf("material list missing")
	}
	if shape.Materials.Materials[1].Filename != "arm.bmp" {
		t.Errorf("material 1 = %q", shape.Materials.Materials[1].Filename)
	}

	// The second transform carries the child node's translation.
	if shape.Transforms[1].Pos[0] != 1 {
		t.Errorf("transform 1 pos = %v", shape.Transforms[1].Pos)
	}
	q := shape.Transforms[1].Rot.Quat()
	if q.W < 0.999 {
		t.Errorf("identity rotation decoded as %v", q)
	}
}

// Legacy keyframe words must translate to the canonical bit layout.
func TestKeyframeTranslation(t *testing.T) {
	tests := []struct {
		name    string
		version int32
		write   func(w *fixtureWriter)
		want    Keyframe
	}{
		{
			name:    "v2 visible valid",
			version: 2,
			write: func(w *fixtureWriter) {
				w.f32(0.5)
				w.u32(keyframeVisV2 | keyframeValidV2 | 7)
			},
			want: Keyframe{Pos: 0.5, Key: 7, MatIndex: KeyframeFrameMatters | KeyframeVisible},
		},
		{
			name:    "v2 invalid implies visibility override",
			version: 2,
			write: func(w *fixtureWriter) {
				w.f32(0.25)
				w.u32(3)
			},
			want: Keyframe{Pos: 0.25, Key: 3, MatIndex: KeyframeFrameMatters | KeyframeVisMatters},
		},
		{
			name:    "v7 all matters",
			version: 7,
			write: func(w *fixtureWriter) {
				w.f32(1.0)
				w.u32(9)
				w.u32(keyframeVisV2 | keyframeVisMattersV7 | keyframeMatMattersV7 | keyframeFrameMattersV7 | 5)
			},
			want: Keyframe{
				Pos: 1.0, Key: 9,
				MatIndex: 5 | KeyframeVisible | KeyframeVisMatters | KeyframeMatMatters | KeyframeFrameMatters,
			},
		},
		{
			name:    "v7 material only",
			version: 7,
			write: func(w *fixtureWriter) {
				w.f32(0)
				w.u32(0)
				w.u32(keyframeMatMattersV7 | 11)
			},
			want: Keyframe{Pos: 0, Key: 0, MatIndex: 11 | KeyframeMatMatters},
		},
		{
			name:    "v8 passthrough",
			version: 8,
			write: func(w *fixtureWriter) {
				w.f32(0.75)
				w.u16(4)
				w.u16(KeyframeVisMatters | KeyframeVisible | 2)
			},
			want: Keyframe{Pos: 0.75, Key: 4, MatIndex: KeyframeVisMatters | KeyframeVisible | 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var w fixtureWriter
			tt.write(&w)

			var s Shape
			if err := s.decodeKeyframes(NewMemStream(w.bytes()), tt.version, 1); err != nil {
				t.Fatalf("decodeKeyframes: %v", err)
			}
			if got := s.Keyframes[0]; got != tt.want {
				t.Errorf("keyframe = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestShapeRejectsParentCycle(t *testing.T) {
	s := &Shape{
		Nodes: []Node{
			{Name: 0, Parent: 1},
			{Name: 1, Parent: 0},
		},
	}
	err := s.BuildChildRanges()
	if err == nil || !strings.Contains(err.Error(), "cycle") {
		t.Fatalf("expected cycle error, got %v", err)
	}
}

func TestShapeRejectsBadParentIndex(t *testing.T) {
	s := &Shape{Nodes: []Node{{Parent: 5}}}
	if err := s.BuildChildRanges(); err == nil {
		t.Fatal("expected out-of-range parent error")
	}
}

// Child ranges must partition the node set with stable in-file ordering.
func TestBuildChildRangesPartition(t *testing.T) {
	s := &Shape{
		Nodes: []Node{
			{Parent: -1}, // 0: root
			{Parent: 0},  // 1
			{Parent: 0},  // 2
			{Parent: 1},  // 3
			{Parent: -1}, // 4: second root
			{Parent: 0},  // 5
		},
	}
	if err := s.BuildChildRanges(); err != nil {
		t.Fatalf("BuildChildRanges: %v", err)
	}

	if roots := s.Children(-1); len(roots) != 2 || roots[0] != 0 || roots[1] != 4 {
		t.Errorf("roots = %v, want [0 4]", roots)
	}
	if kids := s.Children(0); len(kids) != 3 || kids[0] != 1 || kids[1] != 2 || kids[2] != 5 {
		t.Errorf("children of 0 = %v, want [1 2 5]", kids)
	}
	if kids := s.Children(1); len(kids) != 1 || kids[0] != 3 {
		t.Errorf("children of 1 = %v, want [3]", kids)
	}

	seen := make(map[uint32]bool)
	for _, id := range s.NodeChildIDs {
		if seen[id] {
			t.Errorf("node %d appears twice in child list", id)
		}
		seen[id] = true
	}
	if len(seen) != len(s.Nodes) {
		t.Errorf("child list covers %d of %d nodes", len(seen), len(s.Nodes))
	}
}

// Wide object records are 72 bytes; the count validation must reject a stream
// that cannot hold even one before any field reads start.
func TestDecodeObjectsRejectsTruncatedV7(t *testing.T) {
	var s Shape
	ms := NewMemStream(make([]byte, 64))
	err := s.decodeObjects(ms, 7, 1)
	if err == nil || !strings.Contains(err.Error(), "exceeds stream size") {
		t.Fatalf("expected count validation error, got %v", err)
	}
}

func TestShapeRejectsOversizedCounts(t *testing.T) {
	// A shape declaring a billion keyframes in a tiny stream must fail before
	// allocating.
	var w fixtureWriter
	w.i32(0)
	w.i32(0)
	w.i32(0)
	w.i32(1 << 30) // keyframes
	w.i32(0)
	w.i32(0)
	w.i32(0)
	w.i32(0)
	w.i32(0)
	w.i32(0)
	w.i32(0)
	w.f32(1)
	w.vec3(0, 0, 0)
	w.vec3(0, 0, 0)
	w.vec3(0, 0, 0)

	reg := NewRegistry()
	_, err := reg.CreateFromStream(NewMemStream(persChunk("TS::Shape", 8, w.bytes())))
	if err == nil || !strings.Contains(err.Error(), "exceeds stream size") {
		t.Fatalf("expected count validation error, got %v", err)
	}
}
