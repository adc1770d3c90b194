package anim

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/jamesu/TribesViewer-sub000/pkg/darkstar"
)

// Node visibility bits.
const (
	nodeVisRender      = 0x1 // reachable from the selected detail root
	nodeVisForceHidden = 0x2 // hidden by an animation keyframe
)

// runtimeObject is the per-object evaluation state. It is reset whenever the
// owning thread's sequence changes or wraps.
type runtimeObject struct {
	Frame        uint32
	TexFrame     uint32
	Draw         bool
	LastKeyframe int32 // keyframe scan cache, -1 = unresolved
}

// runtimeMesh is the per-mesh unpacked buffer layout.
type runtimeMesh struct {
	Mesh              *darkstar.CelAnimMesh // nil for meshes with no faces
	Prims             []darkstar.Prim
	FixedFrameOffsets []uint32
	RealVertsPerFrame uint32
	RealTexVerts      uint32
	NumTexFrames      uint32
	TexVertBase       uint32
}

// detailRange is the slice of objectRenderIDs rendered for one detail level.
type detailRange struct {
	startObject int
	numObjects  int
}

// Instance binds one decoded shape to runtime animation state. The shape's
// persisted data stays read-only; many instances may share one shape.
type Instance struct {
	shape *darkstar.Shape

	threads            []Thread
	threadSubsequences []int16

	nodeTransforms []mgl32.Mat4
	nodeVisibility []uint8
	objects        []runtimeObject
	meshes         []runtimeMesh

	details         []detailRange
	objectRenderIDs []uint32

	alwaysNode    int32
	currentDetail int32

	verts    []Vertex
	texVerts []mgl32.Vec2
	tris     []darkstar.Triangle

	nodeStack []uint32
}

// validateShape rejects shapes whose animation tables reference entries that
// do not exist. Decode bounds-checks every count against the stream, but the
// indices stored inside the records are still untrusted.
func validateShape(shape *darkstar.Shape) error {
	numSubs := len(shape.SubSequences)
	numKfs := len(shape.Keyframes)
	numXfms := len(shape.Transforms)

	for i := range shape.SubSequences {
		sub := &shape.SubSequences[i]
		first, num := int(sub.FirstKeyframe), int(sub.NumKeyframes)
		if first < 0 || num < 0 || first+num > numKfs {
			return fmt.Errorf("subsequence %d: keyframe range [%d,%d) out of range", i, first, first+num)
		}
	}
	for i := range shape.Nodes {
		n := &shape.Nodes[i]
		if int(n.DefaultTransform) < 0 || int(n.DefaultTransform) >= numXfms {
			return fmt.Errorf("node %d: default transform %d out of range", i, n.DefaultTransform)
		}
		first, num := int(n.FirstSubSequence), int(n.NumSubSequences)
		if first < 0 || num < 0 || first+num > numSubs {
			return fmt.Errorf("node %d: subsequence range [%d,%d) out of range", i, first, first+num)
		}
		// Node keyframe keys index the transform table.
		for s := first; s < first+num; s++ {
			sub := &shape.SubSequences[s]
			for k := int(sub.FirstKeyframe); k < int(sub.FirstKeyframe)+int(sub.NumKeyframes); k++ {
				if int(shape.Keyframes[k].Key) >= numXfms {
					return fmt.Errorf("node %d: keyframe %d references transform %d of %d",
						i, k, shape.Keyframes[k].Key, numXfms)
				}
			}
		}
	}
	for i := range shape.Objects {
		o := &shape.Objects[i]
		first, num := int(o.FirstSubSequence), int(o.NumSubSequences)
		if first < 0 || num < 0 || first+num > numSubs {
			return fmt.Errorf("object %d: subsequence range [%d,%d) out of range", i, first, first+num)
		}
	}
	return nil
}

// NewInstance builds runtime state for a decoded shape: render buffers,
// detail object lists and the default pose.
func NewInstance(shape *darkstar.Shape) (*Instance, error) {
	if err := validateShape(shape); err != nil {
		return nil, err
	}
	in := &Instance{
		shape:         shape,
		alwaysNode:    shape.AlwaysNode,
		currentDetail: 0,
	}
	if int(in.alwaysNode) >= len(shape.Nodes) {
		in.alwaysNode = -1
	}

	in.nodeTransforms = make([]mgl32.Mat4, len(shape.Nodes))
	in.nodeVisibility = make([]uint8, len(shape.Nodes))
	for i := range in.nodeTransforms {
		in.nodeTransforms[i] = mgl32.Ident4()
	}

	in.setupRuntimeDetails()
	if err := in.buildBuffers(); err != nil {
		return nil, err
	}

	in.objects = make([]runtimeObject, len(shape.Objects))
	for i := range in.objects {
		in.objects[i] = runtimeObject{Draw: true, LastKeyframe: -1}
	}

	in.Animate()
	return in, nil
}

// Shape returns the decoded shape this instance animates.
func (in *Instance) Shape() *darkstar.Shape { return in.shape }

// subsequenceStride is the per-thread slot count: one slot per node followed
// by one per object.
func (in *Instance) subsequenceStride() int {
	return len(in.shape.Nodes) + len(in.shape.Objects)
}

// AddThread creates a new playback thread and returns its index.
func (in *Instance) AddThread() int {
	t := Thread{
		Sequence:         -1,
		Transition:       -1,
		State:            Stopped,
		Enabled:          true,
		startSubsequence: len(in.threadSubsequences),
	}
	in.threads = append(in.threads, t)
	for i := 0; i < in.subsequenceStride(); i++ {
		in.threadSubsequences = append(in.threadSubsequences, -1)
	}
	return len(in.threads) - 1
}

// RemoveThread destroys a thread; remaining threads keep their relative
// order.
func (in *Instance) RemoveThread(idx int) {
	stride := in.subsequenceStride()
	start := in.threads[idx].startSubsequence
	in.threadSubsequences = append(in.threadSubsequences[:start], in.threadSubsequences[start+stride:]...)
	for i := idx + 1; i < len(in.threads); i++ {
		in.threads[i].startSubsequence -= stride
	}
	in.threads = append(in.threads[:idx], in.threads[idx+1:]...)
}

// Thread returns the thread at idx for inspection or enabling/disabling.
func (in *Instance) Thread(idx int) *Thread { return &in.threads[idx] }

// ThreadCount returns the number of playback threads.
func (in *Instance) ThreadCount() int { return len(in.threads) }

// SetThreadSequence points a thread at a sequence (or stops it when given a
// negative index), resets its position and re-resolves the per-node and
// per-object subsequence table. All object keyframe caches are invalidated.
func (in *Instance) SetThreadSequence(idx int, sequenceID int32) {
	t := &in.threads[idx]
	t.Sequence = sequenceID
	t.Transition = -1
	t.Pos = 0
	if sequenceID < 0 {
		t.State = Stopped
	} else {
		t.State = Playing
	}

	numNodes := len(in.shape.Nodes)
	for k := range in.shape.Nodes {
		node := &in.shape.Nodes[k]
		in.threadSubsequences[t.startSubsequence+k] = in.findSubsequence(node.FirstSubSequence, node.NumSubSequences, sequenceID)
	}
	for k := range in.shape.Objects {
		obj := &in.shape.Objects[k]
		in.threadSubsequences[t.startSubsequence+numNodes+k] = in.findSubsequence(obj.FirstSubSequence, obj.NumSubSequences, sequenceID)
	}

	in.resetObjectCaches()
}

func (in *Instance) findSubsequence(first, num int16, sequenceID int32) int16 {
	for i := first; i < first+num; i++ {
		if int32(in.shape.SubSequences[i].SequenceIndex) == sequenceID {
			return i
		}
	}
	return -1
}

func (in *Instance) resetObjectCaches() {
	for i := range in.objects {
		in.objects[i].LastKeyframe = -1
	}
}

// AdvanceThreads advances every playing thread by dt seconds of sequence
// time. Cyclic sequences wrap (and invalidate object keyframe caches);
// non-cyclic sequences clamp to the end and stop.
func (in *Instance) AdvanceThreads(dt float32) {
	for i := range in.threads {
		t := &in.threads[i]
		if t.Sequence < 0 || int(t.Sequence) >= len(in.shape.Sequences) {
			continue
		}
		if t.State != Playing {
			continue
		}
		seq := &in.shape.Sequences[t.Sequence]
		t.Pos += dt / seq.Duration
		if t.Pos > 1.0 {
			if seq.Cyclic {
				t.Pos -= 1.0
				in.resetObjectCaches()
			} else {
				t.Pos = 1.0
				t.State = Stopped
			}
		}
	}
}

// Animate resolves the current pose: node world transforms for the always
// branch and the selected detail branch, then object frame/visibility state.
func (in *Instance) Animate() {
	if in.alwaysNode >= 0 {
		in.animateSubtree(in.alwaysNode)
		in.animateObjects(in.details[0])
	}
	if in.currentDetail >= 0 && int(in.currentDetail) < len(in.shape.Details) {
		in.animateSubtree(in.shape.Details[in.currentDetail].RootNode)
		in.animateObjects(in.details[in.currentDetail+1])
	}
}

// animateSubtree resolves transforms for a node and its descendants,
// root-first, using an explicit worklist rather than recursion.
func (in *Instance) animateSubtree(root int32) {
	if root < 0 || int(root) >= len(in.shape.Nodes) {
		return
	}
	stack := append(in.nodeStack[:0], uint32(root))
	for len(stack) > 0 {
		idx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		in.animateNode(idx)
		stack = append(stack, in.shape.Children(int32(idx))...)
	}
	in.nodeStack = stack[:0]
}

func (in *Instance) animateNode(nodeIdx uint32) {
	node := &in.shape.Nodes[nodeIdx]

	in.nodeVisibility[nodeIdx] &^= nodeVisForceHidden

	// Seed from the node's default transform.
	local := transformMat4(in.shape.Transforms[node.DefaultTransform])

	// Apply every enabled thread in registration order; a later thread fully
	// overrides transform and visibility set by an earlier one.
	for i := range in.threads {
		t := &in.threads[i]
		if t.Sequence < 0 || int(t.Sequence) >= len(in.shape.Sequences) || !t.Enabled {
			continue
		}
		subIdx := in.threadSubsequences[t.startSubsequence+int(nodeIdx)]
		if subIdx < 0 {
			continue
		}

		seq := &in.shape.Sequences[t.Sequence]
		sub := &in.shape.SubSequences[subIdx]
		kfA, kfB, frac := subsequenceKeyframes(in.shape, seq, sub, t.Pos)

		if kfA.VisMatters() {
			if kfA.Visible() {
				in.nodeVisibility[nodeIdx] &^= nodeVisForceHidden
			} else {
				in.nodeVisibility[nodeIdx] |= nodeVisForceHidden
			}
		}

		if kfA.Key == kfB.Key {
			local = transformMat4(in.shape.Transforms[kfA.Key])
		} else {
			local = interpolateTransform(in.shape.Transforms[kfA.Key], in.shape.Transforms[kfB.Key], frac)
		}
	}

	if node.Parent >= 0 {
		in.nodeTransforms[nodeIdx] = composeTransforms(in.nodeTransforms[node.Parent], local)
	} else {
		in.nodeTransforms[nodeIdx] = local
	}
}

// animateObjects resolves mesh frame, texture frame and draw state for the
// objects of one detail range.
func (in *Instance) animateObjects(detail detailRange) {
	numNodes := len(in.shape.Nodes)
	for i := detail.startObject; i < detail.startObject+detail.numObjects; i++ {
		objID := in.objectRenderIDs[i]
		obj := &in.shape.Objects[objID]
		rt := &in.objects[objID]

		if rt.LastKeyframe < 0 {
			rt.Draw = obj.Flags&darkstar.ObjectInvisibleDefault == 0
			rt.Frame = 0
			rt.TexFrame = 0
			rt.LastKeyframe = 0
		}

		for ti := range in.threads {
			t := &in.threads[ti]
			if t.Sequence < 0 || int(t.Sequence) >= len(in.shape.Sequences) || !t.Enabled {
				continue
			}
			subIdx := in.threadSubsequences[t.startSubsequence+numNodes+int(objID)]
			if subIdx < 0 || len(in.shape.SubSequences) == 0 {
				continue
			}

			sub := &in.shape.SubSequences[subIdx]
			kf := nearestSubsequenceKeyframe(in.shape, sub, &rt.LastKeyframe, t.Pos)

			if kf.VisMatters() {
				rt.Draw = kf.Visible()
			}
			if kf.FrameMatters() {
				rt.Frame = uint32(kf.Key)
			}
			if kf.MatMatters() {
				rt.TexFrame = uint32(kf.MaterialFrame())
			}
		}
	}
}

// NodeTransform returns the last resolved world transform of a node.
func (in *Instance) NodeTransform(nodeIdx int) mgl32.Mat4 {
	return in.nodeTransforms[nodeIdx]
}

// ObjectState returns the last resolved mesh frame, texture frame and draw
// flag of an object.
func (in *Instance) ObjectState(objIdx int) (frame, texFrame uint32, draw bool) {
	rt := &in.objects[objIdx]
	return rt.Frame, rt.TexFrame, rt.Draw
}

// CurrentDetail returns the selected detail level index.
func (in *Instance) CurrentDetail() int32 { return in.currentDetail }

// NodeVisible reports whether a node is render-visible after the last
// EmitDrawCalls visibility pass.
func (in *Instance) NodeVisible(nodeIdx int) bool {
	return in.nodeVisibility[nodeIdx]&nodeVisRender != 0
}
