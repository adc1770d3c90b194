package darkstar

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
)

// Canonical keyframe bitfield, stored in Keyframe.MatIndex. Legacy streams
// use different layouts and are translated on load.
const (
	KeyframeFrameMatters uint16 = 1 << 12
	KeyframeMatMatters   uint16 = 1 << 13
	KeyframeVisMatters   uint16 = 1 << 14
	KeyframeVisible      uint16 = 1 << 15
	KeyframeMatMask      uint16 = 0x0FFF
)

// Pre-v3 keyframes pack visibility, validity and key into one 32-bit word.
const (
	keyframeVisV2     uint32 = 1 << 31
	keyframeValidV2   uint32 = 1 << 30
	keyframeKeyMaskV2 uint32 = 0x3FFFFFFF
)

// v3..v7 keyframes use a wider flag word.
const (
	keyframeVisMattersV7   uint32 = 1 << 30
	keyframeMatMattersV7   uint32 = 1 << 29
	keyframeFrameMattersV7 uint32 = 1 << 28
	keyframeMatMaskV7      uint32 = 0x0FFFFFFF
)

// ObjectInvisibleDefault marks an object hidden until a keyframe shows it.
const ObjectInvisibleDefault = 0x1

// shapeNameLen is the fixed width of a name table entry.
const shapeNameLen = 24

// Node is one entry of the shape's transform hierarchy.
type Node struct {
	Name             int16
	Parent           int16 // -1 = root
	NumSubSequences  int16
	FirstSubSequence int16
	DefaultTransform int16
}

// Sequence is a named animation with a duration and cyclic flag.
type Sequence struct {
	Name                int32
	Cyclic              bool
	Duration            float32
	Priority            int32
	FirstTriggerFrame   int32
	NumTriggerFrames    int32
	NumIFLSubSequences  int32
	FirstIFLSubSequence int32
}

// SubSequence is a contiguous keyframe run owned by one node or object and
// associated with one sequence.
type SubSequence struct {
	SequenceIndex int16
	NumKeyframes  int16
	FirstKeyframe int16
}

// Keyframe holds a normalized position within its subsequence, a key (mesh
// frame or transform table index) and the canonical override bitfield.
type Keyframe struct {
	Pos      float32
	Key      uint16
	MatIndex uint16
}

// FrameMatters reports whether the keyframe overrides the mesh frame.
func (k Keyframe) FrameMatters() bool { return k.MatIndex&KeyframeFrameMatters != 0 }

// MatMatters reports whether the keyframe overrides the material frame.
func (k Keyframe) MatMatters() bool { return k.MatIndex&KeyframeMatMatters != 0 }

// VisMatters reports whether the keyframe overrides visibility.
func (k Keyframe) VisMatters() bool { return k.MatIndex&KeyframeVisMatters != 0 }

// Visible returns the visibility value carried by the keyframe.
func (k Keyframe) Visible() bool { return k.MatIndex&KeyframeVisible != 0 }

// MaterialFrame returns the material (texture) frame index.
func (k Keyframe) MaterialFrame() uint16 { return k.MatIndex & KeyframeMatMask }

// Object binds a mesh to a node, with flags and a local offset.
type Object struct {
	Name             int16
	Flags            uint16
	MeshIndex        int32 // -1 = no mesh
	NodeIndex        int16
	Offset           mgl32.Vec3
	NumSubSequences  int16
	FirstSubSequence int16
}

// Detail is a level-of-detail entry: an alternate hierarchy root plus the
// screen-size threshold at which it is selected.
type Detail struct {
	RootNode int32
	Size     float32
}

// Transition describes a blended sequence-to-sequence transition record.
// Decoded for completeness; the evaluator does not implement transitions.
type Transition struct {
	StartSequence int32
	EndSequence   int32
	StartPosition float32
	EndPosition   float32
	Duration      float32
	Xfm           Transform
}

// FrameTrigger fires a value when a sequence passes a position.
type FrameTrigger struct {
	Pos   float32
	Value int32
}

// ChildRange is a contiguous slice of NodeChildIDs holding the children of
// one node, derived after decode by a stable sort on parent index.
type ChildRange struct {
	FirstChild  int32
	NumChildren int32
}

// Shape is a decoded persisted shape: the node hierarchy, animation tables,
// meshes and material list.
type Shape struct {
	Radius    float32
	Center    mgl32.Vec3
	MinBounds mgl32.Vec3
	MaxBounds mgl32.Vec3

	Nodes         []Node
	Sequences     []Sequence
	SubSequences  []SubSequence
	Keyframes     []Keyframe
	Transforms    []Transform
	Objects       []Object
	Details       []Detail
	Transitions   []Transition
	FrameTriggers []FrameTrigger
	Meshes        []*CelAnimMesh
	Names         []string

	Materials        *MaterialList
	DefaultMaterials int32
	AlwaysNode       int32 // -1 = none

	// Derived: per-node contiguous child ranges, indexed by parent+1 so the
	// virtual root (-1) lands in slot 0.
	NodeChildren []ChildRange
	NodeChildIDs []uint32
}

// FindName returns the index of name in the name table, or -1. Lookup is
// case-insensitive.
func (s *Shape) FindName(name string) int32 {
	for i := range s.Names {
		if strings.EqualFold(name, s.Names[i]) {
			return int32(i)
		}
	}
	return -1
}

// GetName returns the name table entry for idx, or "" when out of range.
func (s *Shape) GetName(idx int32) string {
	if idx < 0 || int(idx) >= len(s.Names) {
		return ""
	}
	return s.Names[idx]
}

// FindSequence returns the index of the sequence with the given name, or -1.
func (s *Shape) FindSequence(name string) int32 {
	for i := range s.Sequences {
		if strings.EqualFold(name, s.GetName(s.Sequences[i].Name)) {
			return int32(i)
		}
	}
	return -1
}

// Decode implements Asset.
func (s *Shape) Decode(reg *Registry, ms *MemStream, version int32) error {
	var counts struct {
		nodes, sequences, subSequences, keyframes, transforms int32
		names, objects, details, meshes                       int32
		transitions, frameTriggers                            int32
	}

	s.AlwaysNode = -1
	s.DefaultMaterials = 0

	var err error
	if counts.nodes, err = ms.ReadI32(); err != nil {
		return err
	}
	if counts.sequences, err = ms.ReadI32(); err != nil {
		return err
	}
	if counts.subSequences, err = ms.ReadI32(); err != nil {
		return err
	}
	if counts.keyframes, err = ms.ReadI32(); err != nil {
		return err
	}
	if counts.transforms, err = ms.ReadI32(); err != nil {
		return err
	}
	if counts.names, err = ms.ReadI32(); err != nil {
		return err
	}
	if counts.objects, err = ms.ReadI32(); err != nil {
		return err
	}
	if counts.details, err = ms.ReadI32(); err != nil {
		return err
	}
	if counts.meshes, err = ms.ReadI32(); err != nil {
		return err
	}
	if version >= 2 {
		if counts.transitions, err = ms.ReadI32(); err != nil {
			return err
		}
	}
	if version >= 4 {
		if counts.frameTriggers, err = ms.ReadI32(); err != nil {
			return err
		}
	}

	if s.Radius, err = ms.ReadF32(); err != nil {
		return err
	}
	if s.Center, err = ms.ReadVec3(); err != nil {
		return err
	}
	if version > 7 {
		if s.MinBounds, err = ms.ReadVec3(); err != nil {
			return err
		}
		if s.MaxBounds, err = ms.ReadVec3(); err != nil {
			return err
		}
	} else {
		r := mgl32.Vec3{s.Radius, s.Radius, s.Radius}
		s.MinBounds = s.Center.Sub(r)
		s.MaxBounds = s.Center.Add(r)
	}

	if err := s.decodeNodes(ms, version, counts.nodes); err != nil {
		return err
	}
	if err := s.decodeSequences(ms, version, counts.sequences); err != nil {
		return err
	}
	if err := s.decodeSubSequences(ms, version, counts.subSequences); err != nil {
		return err
	}
	if err := s.decodeKeyframes(ms, version, counts.keyframes); err != nil {
		return err
	}
	if err := s.decodeTransforms(ms, version, counts.transforms); err != nil {
		return err
	}
	if err := s.decodeNames(ms, counts.names); err != nil {
		return err
	}
	if err := s.decodeObjects(ms, version, counts.objects); err != nil {
		return err
	}
	if err := s.decodeDetails(ms, counts.details); err != nil {
		return err
	}
	if version >= 2 {
		if err := s.decodeTransitions(ms, version, counts.transitions); err != nil {
			return err
		}
	}
	if version >= 4 {
		if err := s.decodeFrameTriggers(ms, counts.frameTriggers); err != nil {
			return err
		}
	}
	if version >= 5 {
		if s.DefaultMaterials, err = ms.ReadI32(); err != nil {
			return err
		}
	}
	if version >= 6 {
		if s.AlwaysNode, err = ms.ReadI32(); err != nil {
			return err
		}
	}

	// Embedded meshes and the material list are independently framed chunks
	// dispatched back through the registry.
	s.Meshes = make([]*CelAnimMesh, counts.meshes)
	for i := range s.Meshes {
		asset, err := reg.CreateFromStream(ms)
		if err != nil {
			return fmt.Errorf("mesh %d: %w", i, err)
		}
		mesh, ok := asset.(*CelAnimMesh)
		if !ok {
			return fmt.Errorf("mesh %d: unexpected asset type %T", i, asset)
		}
		s.Meshes[i] = mesh
	}

	hasMaterials, err := ms.ReadU32()
	if err != nil {
		return err
	}
	if hasMaterials != 0 {
		asset, err := reg.CreateFromStream(ms)
		if err != nil {
			return fmt.Errorf("material list: %w", err)
		}
		list, ok := asset.(*MaterialList)
		if !ok {
			return fmt.Errorf("material list: unexpected asset type %T", asset)
		}
		s.Materials = list
	}

	return s.BuildChildRanges()
}

func (s *Shape) decodeNodes(ms *MemStream, version, count int32) error {
	elemSize := 20
	if version > 7 {
		elemSize = 10
	}
	if err := checkCount(ms, count, elemSize, "shape nodes"); err != nil {
		return err
	}
	s.Nodes = make([]Node, count)
	for i := range s.Nodes {
		n := &s.Nodes[i]
		var err error
		if version <= 7 {
			// Wide records: every field stored as 32 bits.
			fields := [5]*int16{&n.Name, &n.Parent, &n.NumSubSequences, &n.FirstSubSequence, &n.DefaultTransform}
			for _, f := range fields {
				v, err := ms.ReadI32()
				if err != nil {
					return err
				}
				*f = int16(v)
			}
		} else {
			if n.Name, err = ms.ReadI16(); err != nil {
				return err
			}
			if n.Parent, err = ms.ReadI16(); err != nil {
				return err
			}
			if n.NumSubSequences, err = ms.ReadI16(); err != nil {
				return err
			}
			if n.FirstSubSequence, err = ms.ReadI16(); err != nil {
				return err
			}
			if n.DefaultTransform, err = ms.ReadI16(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Shape) decodeSequences(ms *MemStream, version, count int32) error {
	elemSize := 16
	if version >= 5 {
		elemSize = 32
	} else if version >= 4 {
		elemSize = 24
	}
	if err := checkCount(ms, count, elemSize, "shape sequences"); err != nil {
		return err
	}
	s.Sequences = make([]Sequence, count)
	for i := range s.Sequences {
		q := &s.Sequences[i]
		var err error
		if q.Name, err = ms.ReadI32(); err != nil {
			return err
		}
		cyclic, err := ms.ReadI32()
		if err != nil {
			return err
		}
		q.Cyclic = cyclic != 0
		if q.Duration, err = ms.ReadF32(); err != nil {
			return err
		}
		if q.Priority, err = ms.ReadI32(); err != nil {
			return err
		}
		if version >= 4 {
			if q.FirstTriggerFrame, err = ms.ReadI32(); err != nil {
				return err
			}
			if q.NumTriggerFrames, err = ms.ReadI32(); err != nil {
				return err
			}
		}
		if version >= 5 {
			if q.NumIFLSubSequences, err = ms.ReadI32(); err != nil {
				return err
			}
			if q.FirstIFLSubSequence, err = ms.ReadI32(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Shape) decodeSubSequences(ms *MemStream, version, count int32) error {
	elemSize := 12
	if version > 7 {
		elemSize = 6
	}
	if err := checkCount(ms, count, elemSize, "shape subsequences"); err != nil {
		return err
	}
	s.SubSequences = make([]SubSequence, count)
	for i := range s.SubSequences {
		sub := &s.SubSequences[i]
		var err error
		if version <= 7 {
			fields := [3]*int16{&sub.SequenceIndex, &sub.NumKeyframes, &sub.FirstKeyframe}
			for _, f := range fields {
				v, err := ms.ReadI32()
				if err != nil {
					return err
				}
				*f = int16(v)
			}
		} else {
			if sub.SequenceIndex, err = ms.ReadI16(); err != nil {
				return err
			}
			if sub.NumKeyframes, err = ms.ReadI16(); err != nil {
				return err
			}
			if sub.FirstKeyframe, err = ms.ReadI16(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Shape) decodeKeyframes(ms *MemStream, version, count int32) error {
	elemSize := 8
	if version >= 3 && version <= 7 {
		elemSize = 12
	}
	if err := checkCount(ms, count, elemSize, "shape keyframes"); err != nil {
		return err
	}
	s.Keyframes = make([]Keyframe, count)
	for i := range s.Keyframes {
		k := &s.Keyframes[i]
		var err error
		if k.Pos, err = ms.ReadF32(); err != nil {
			return err
		}
		switch {
		case version < 3:
			raw, err := ms.ReadU32()
			if err != nil {
				return err
			}
			k.Key = uint16(raw & keyframeKeyMaskV2)
			k.MatIndex = KeyframeFrameMatters
			if raw&keyframeValidV2 == 0 {
				k.MatIndex |= KeyframeVisMatters
			}
			if raw&keyframeVisV2 != 0 {
				k.MatIndex |= KeyframeVisible
			}
		case version <= 7:
			key, err := ms.ReadU32()
			if err != nil {
				return err
			}
			raw, err := ms.ReadU32()
			if err != nil {
				return err
			}
			k.Key = uint16(key)
			k.MatIndex = uint16(raw & keyframeMatMaskV7)
			if raw&keyframeVisV2 != 0 {
				k.MatIndex |= KeyframeVisible
			}
			if raw&keyframeVisMattersV7 != 0 {
				k.MatIndex |= KeyframeVisMatters
			}
			if raw&keyframeFrameMattersV7 != 0 {
				k.MatIndex |= KeyframeFrameMatters
			}
			if raw&keyframeMatMattersV7 != 0 {
				k.MatIndex |= KeyframeMatMatters
			}
		default:
			if k.Key, err = ms.ReadU16(); err != nil {
				return err
			}
			if k.MatIndex, err = ms.ReadU16(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Shape) decodeTransforms(ms *MemStream, version, count int32) error {
	elemSize := 20
	if version < 7 {
		elemSize = 40
	} else if version == 7 {
		elemSize = 32
	}
	if err := checkCount(ms, count, elemSize, "shape transforms"); err != nil {
		return err
	}
	s.Transforms = make([]Transform, count)
	for i := range s.Transforms {
		var (
			t   Transform
			err error
		)
		switch {
		case version < 7:
			t, err = readTransformV6(ms)
		case version == 7:
			t, err = readTransformV7(ms)
		default:
			t, err = readTransformV8(ms)
		}
		if err != nil {
			return err
		}
		s.Transforms[i] = t
	}
	return nil
}

func (s *Shape) decodeNames(ms *MemStream, count int32) error {
	if err := checkCount(ms, count, shapeNameLen, "shape names"); err != nil {
		return err
	}
	s.Names = make([]string, count)
	for i := range s.Names {
		b, err := ms.take(shapeNameLen)
		if err != nil {
			return err
		}
		s.Names[i] = trimAtNul(b)
	}
	return nil
}

func (s *Shape) decodeObjects(ms *MemStream, version, count int32) error {
	elemSize := 28
	if version <= 7 {
		// Wide records: 2+2+4+4 header, 40 skipped flag/rotation bytes,
		// 12-byte offset, 4+4 subsequence range.
		elemSize = 72
	}
	if err := checkCount(ms, count, elemSize, "shape objects"); err != nil {
		return err
	}
	s.Objects = make([]Object, count)
	for i := range s.Objects {
		o := &s.Objects[i]
		var err error
		if version <= 7 {
			if o.Name, err = ms.ReadI16(); err != nil {
				return err
			}
			if o.Flags, err = ms.ReadU16(); err != nil {
				return err
			}
			if o.MeshIndex, err = ms.ReadI32(); err != nil {
				return err
			}
			node, err := ms.ReadI32()
			if err != nil {
				return err
			}
			o.NodeIndex = int16(node)
			// Skip stored object flags and the unused 3x3 rotation matrix.
			if err = ms.Skip(4 + 4*3*3); err != nil {
				return err
			}
			if o.Offset, err = ms.ReadVec3(); err != nil {
				return err
			}
			num, err := ms.ReadI32()
			if err != nil {
				return err
			}
			first, err := ms.ReadI32()
			if err != nil {
				return err
			}
			o.NumSubSequences = int16(num)
			o.FirstSubSequence = int16(first)
		} else {
			if o.Name, err = ms.ReadI16(); err != nil {
				return err
			}
			if o.Flags, err = ms.ReadU16(); err != nil {
				return err
			}
			if o.MeshIndex, err = ms.ReadI32(); err != nil {
				return err
			}
			if o.NodeIndex, err = ms.ReadI16(); err != nil {
				return err
			}
			// Tight records carry two bytes of struct padding before the
			// offset vector.
			if err = ms.Skip(2); err != nil {
				return err
			}
			if o.Offset, err = ms.ReadVec3(); err != nil {
				return err
			}
			if o.NumSubSequences, err = ms.ReadI16(); err != nil {
				return err
			}
			if o.FirstSubSequence, err = ms.ReadI16(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Shape) decodeDetails(ms *MemStream, count int32) error {
	if err := checkCount(ms, count, 8, "shape details"); err != nil {
		return err
	}
	s.Details = make([]Detail, count)
	for i := range s.Details {
		var err error
		if s.Details[i].RootNode, err = ms.ReadI32(); err != nil {
			return err
		}
		if s.Details[i].Size, err = ms.ReadF32(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Shape) decodeTransitions(ms *MemStream, version, count int32) error {
	elemSize := 40
	if version < 7 {
		elemSize = 60
	} else if version == 7 {
		elemSize = 52
	}
	if err := checkCount(ms, count, elemSize, "shape transitions"); err != nil {
		return err
	}
	s.Transitions = make([]Transition, count)
	for i := range s.Transitions {
		t := &s.Transitions[i]
		var err error
		if t.StartSequence, err = ms.ReadI32(); err != nil {
			return err
		}
		if t.EndSequence, err = ms.ReadI32(); err != nil {
			return err
		}
		if t.StartPosition, err = ms.ReadF32(); err != nil {
			return err
		}
		if t.EndPosition, err = ms.ReadF32(); err != nil {
			return err
		}
		if t.Duration, err = ms.ReadF32(); err != nil {
			return err
		}
		switch {
		case version < 7:
			t.Xfm, err = readTransformV6(ms)
		case version == 7:
			t.Xfm, err = readTransformV7(ms)
		default:
			t.Xfm, err = readTransformV8(ms)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Shape) decodeFrameTriggers(ms *MemStream, count int32) error {
	if err := checkCount(ms, count, 8, "shape frame triggers"); err != nil {
		return err
	}
	s.FrameTriggers = make([]FrameTrigger, count)
	for i := range s.FrameTriggers {
		var err error
		if s.FrameTriggers[i].Pos, err = ms.ReadF32(); err != nil {
			return err
		}
		if s.FrameTriggers[i].Value, err = ms.ReadI32(); err != nil {
			return err
		}
	}
	return nil
}

type nodeSortInfo struct {
	node   uint32
	parent int32
}

// BuildChildRanges validates the hierarchy and derives, for every node, a
// contiguous child-index range by stable-sorting nodes by parent. This makes
// "children of node N" an O(1) range lookup for the evaluator. Decode calls
// it automatically; programmatically built shapes must call it themselves.
func (s *Shape) BuildChildRanges() error {
	n := len(s.Nodes)
	for i := range s.Nodes {
		p := int(s.Nodes[i].Parent)
		if p < -1 || p >= n {
			return fmt.Errorf("node %d: parent index %d out of range", i, p)
		}
	}
	// The parent links must form a forest.
	for i := range s.Nodes {
		cur := int(s.Nodes[i].Parent)
		for steps := 0; cur >= 0; steps++ {
			if steps >= n {
				return fmt.Errorf("node %d: parent chain forms a cycle", i)
			}
			cur = int(s.Nodes[cur].Parent)
		}
	}

	sorted := make([]nodeSortInfo, n)
	for i := range s.Nodes {
		sorted[i] = nodeSortInfo{node: uint32(i), parent: int32(s.Nodes[i].Parent)}
	}
	sort.SliceStable(sorted, func(a, b int) bool {
		return sorted[a].parent < sorted[b].parent
	})

	s.NodeChildren = make([]ChildRange, n+1)
	for i := range s.NodeChildren {
		s.NodeChildren[i].FirstChild = -1
	}
	s.NodeChildIDs = make([]uint32, 0, n)

	for i := 0; i < n; {
		parent := sorted[i].parent
		first := len(s.NodeChildIDs)
		for i < n && sorted[i].parent == parent {
			s.NodeChildIDs = append(s.NodeChildIDs, sorted[i].node)
			i++
		}
		s.NodeChildren[parent+1] = ChildRange{
			FirstChild:  int32(first),
			NumChildren: int32(len(s.NodeChildIDs) - first),
		}
	}
	return nil
}

// Children returns the child node indices of nodeIdx; pass -1 for roots.
func (s *Shape) Children(nodeIdx int32) []uint32 {
	info := s.NodeChildren[nodeIdx+1]
	if info.NumChildren <= 0 {
		return nil
	}
	return s.NodeChildIDs[info.FirstChild : info.FirstChild+info.NumChildren]
}
