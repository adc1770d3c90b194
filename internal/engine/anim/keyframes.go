package anim

import "github.com/jamesu/TribesViewer-sub000/pkg/darkstar"

// keyframeTolerance treats near-equal keyframe positions as equal.
const keyframeTolerance = 0.001

// subsequenceKeyframes resolves the bracketing keyframe pair and the
// interpolation fraction for pos within a node subsequence. It is a pure
// function of (sequence, subsequence, pos).
//
// Cyclic sequences wrap a missing neighbor to the opposite end of the
// subsequence, shifted one full cycle; non-cyclic sequences clamp with a
// fraction of 0 or 1. A coincident bracket yields fraction 0; a zero-length
// bracket interval yields 0 when pos sits on it, otherwise 1.
func subsequenceKeyframes(shape *darkstar.Shape, seq *darkstar.Sequence, sub *darkstar.SubSequence, pos float32) (kfA, kfB darkstar.Keyframe, frac float32) {
	first := int32(sub.FirstKeyframe)
	num := int32(sub.NumKeyframes)
	if num <= 0 {
		return darkstar.Keyframe{}, darkstar.Keyframe{}, 0
	}

	prev := first - 1
	next := first + num
	for i := int32(0); i < num; i++ {
		kf := &shape.Keyframes[first+i]
		if kf.Pos <= pos+keyframeTolerance {
			prev = first + i
		} else if kf.Pos >= pos-keyframeTolerance {
			next = first + i
			break
		}
	}

	if seq.Cyclic {
		var prevPos, nextPos float32
		if prev < first {
			prev = first + num - 1
			prevPos = shape.Keyframes[prev].Pos - 1.0
		} else {
			prevPos = shape.Keyframes[prev].Pos
		}
		if next >= first+num {
			next = first
			nextPos = shape.Keyframes[next].Pos + 1.0
		} else {
			nextPos = shape.Keyframes[next].Pos
		}

		switch {
		case prev == next:
			frac = 0
		case nextPos-prevPos == 0:
			if pos-prevPos == 0 {
				frac = 0
			} else {
				frac = 1
			}
		default:
			frac = (pos - prevPos) / (nextPos - prevPos)
		}
	} else {
		switch {
		case prev < first:
			prev = first
			frac = 0
		case next >= first+num:
			next = first + num - 1
			frac = 1
		case prev == next:
			frac = 0
		default:
			diff := shape.Keyframes[next].Pos - shape.Keyframes[prev].Pos
			if diff <= 0 {
				frac = 0
			} else {
				frac = (pos - shape.Keyframes[prev].Pos) / diff
			}
		}
	}

	return shape.Keyframes[prev], shape.Keyframes[next], frac
}

// nearestSubsequenceKeyframe scans an object subsequence for the most recent
// keyframe at or before pos, independently accumulating the latest
// visibility, mesh-frame and material-frame values gated by each keyframe's
// matters bits. The scan resumes from the cached index in lastKF unless pos
// moved backward past it, in which case it restarts from the subsequence's
// first keyframe.
func nearestSubsequenceKeyframe(shape *darkstar.Shape, sub *darkstar.SubSequence, lastKF *int32, pos float32) darkstar.Keyframe {
	first := int32(sub.FirstKeyframe)
	prev := first - 1
	var lastFrame uint16
	var lastTexFrame uint16
	var lastMatters uint16

	if *lastKF >= first && int(*lastKF) < len(shape.Keyframes) {
		if pos < shape.Keyframes[*lastKF].Pos {
			*lastKF = first
		}
	} else {
		*lastKF = first
	}

	for i := *lastKF - first; i < int32(sub.NumKeyframes); i++ {
		kf := &shape.Keyframes[first+i]
		if kf.Pos <= pos+keyframeTolerance {
			prev = first + i
			if kf.VisMatters() {
				lastMatters |= darkstar.KeyframeVisMatters
				if kf.Visible() {
					lastMatters |= darkstar.KeyframeVisible
				} else {
					lastMatters &^= darkstar.KeyframeVisible
				}
			}
			if kf.FrameMatters() {
				lastFrame = kf.Key
				lastMatters |= darkstar.KeyframeFrameMatters
			}
			if kf.MatMatters() {
				lastTexFrame = kf.MaterialFrame()
				lastMatters |= darkstar.KeyframeMatMatters
			}
		} else if kf.Pos >= pos-keyframeTolerance {
			break
		}
	}

	*lastKF = prev
	return darkstar.Keyframe{
		Pos:      pos,
		Key:      lastFrame,
		MatIndex: lastTexFrame | lastMatters,
	}
}
