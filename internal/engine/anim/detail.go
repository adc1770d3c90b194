package anim

import "math"

// setupRuntimeDetails partitions the shape's objects into render lists: slot
// 0 holds the always-branch objects, slot d+1 the objects reachable from
// detail d's root.
func (in *Instance) setupRuntimeDetails() {
	in.details = in.details[:0]
	in.objectRenderIDs = in.objectRenderIDs[:0]

	if in.alwaysNode >= 0 {
		in.details = append(in.details, in.collectDetailObjects(in.alwaysNode))
	} else {
		in.details = append(in.details, detailRange{})
	}
	for i := range in.shape.Details {
		in.details = append(in.details, in.collectDetailObjects(in.shape.Details[i].RootNode))
	}
}

// collectDetailObjects appends to objectRenderIDs every object attached to a
// node in root's subtree, returning the appended range.
func (in *Instance) collectDetailObjects(root int32) detailRange {
	start := len(in.objectRenderIDs)
	if root < 0 || int(root) >= len(in.shape.Nodes) {
		return detailRange{startObject: start}
	}

	member := make([]bool, len(in.shape.Nodes))
	stack := append(in.nodeStack[:0], uint32(root))
	for len(stack) > 0 {
		idx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		member[idx] = true
		stack = append(stack, in.shape.Children(int32(idx))...)
	}
	in.nodeStack = stack[:0]

	for i := range in.shape.Objects {
		node := in.shape.Objects[i].NodeIndex
		if node >= 0 && int(node) < len(member) && member[node] {
			in.objectRenderIDs = append(in.objectRenderIDs, uint32(i))
		}
	}
	return detailRange{startObject: start, numObjects: len(in.objectRenderIDs) - start}
}

// SelectDetail picks the detail level for a shape viewed from dist through a
// w x h viewport with a 90 degree field of view. The apparent angular size is
// scaled to pixels; the last detail whose size threshold is at or below the
// apparent size wins. A non-positive distance forces the apparent size to
// 1000, selecting the finest qualifying detail.
func (in *Instance) SelectDetail(dist float32, w, h int) {
	size := float32(1000)
	if dist > 0 {
		px := w
		if h > px {
			px = h
		}
		size = float32(math.Atan(float64(in.shape.Radius / dist)))
		size *= float32(px) / (math.Pi / 2)
	}

	in.currentDetail = 0
	for i := range in.shape.Details {
		if in.shape.Details[i].Size <= size {
			in.currentDetail = int32(i)
		}
	}
}

type visWork struct {
	node          uint32
	parentVisible bool
}

// determineNodeVisibility recomputes the render-visible bit over the whole
// hierarchy: everything hidden, then the always branch and the current detail
// branch revealed top-down, stopping at force-hidden nodes.
func (in *Instance) determineNodeVisibility() {
	for i := range in.nodeVisibility {
		in.nodeVisibility[i] &= nodeVisForceHidden
	}
	if in.alwaysNode >= 0 {
		in.nodeVisibility[in.alwaysNode] = nodeVisRender
		in.updateNodeVisibility(in.alwaysNode, true)
	}
	if in.currentDetail >= 0 && int(in.currentDetail) < len(in.shape.Details) {
		in.updateNodeVisibility(in.shape.Details[in.currentDetail].RootNode, true)
	}
}

// updateNodeVisibility marks root's subtree render-visible. A force-hidden
// node hides itself and everything below it.
func (in *Instance) updateNodeVisibility(root int32, parentVisible bool) {
	if root < 0 || int(root) >= len(in.shape.Nodes) {
		return
	}
	work := []visWork{{node: uint32(root), parentVisible: parentVisible}}
	for len(work) > 0 {
		w := work[len(work)-1]
		work = work[:len(work)-1]

		vis := w.parentVisible
		if vis && in.nodeVisibility[w.node]&nodeVisForceHidden != 0 {
			vis = false
		}
		if vis {
			in.nodeVisibility[w.node] |= nodeVisRender
		}
		for _, c := range in.shape.Children(int32(w.node)) {
			work = append(work, visWork{node: c, parentVisible: vis})
		}
	}
}
