package anim

// ThreadState is the playback state of one animation thread.
type ThreadState int

const (
	// Stopped threads hold their position and do not advance.
	Stopped ThreadState = iota
	// Playing threads advance with elapsed time.
	Playing
	// PlayingTransitionWait and Transitioning are carried by the format but
	// have no evaluator behavior; cross-sequence blending is unimplemented.
	PlayingTransitionWait
	Transitioning
)

// Thread is an independent, application-level playback cursor over one
// shape. Many threads may animate the same shape; later threads override
// earlier ones on conflicting nodes.
type Thread struct {
	Sequence   int32 // -1 = none
	Transition int32 // -1 = none
	Pos        float32
	State      ThreadState
	Enabled    bool

	// offset of this thread's slice of the subsequence table
	startSubsequence int
}
