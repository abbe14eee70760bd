package dataset

// Tracker observes frame creation and mutation during a single sandboxed
// invocation. The executor uses it to pick the export candidate: the most
// recently introduced or structurally changed frame wins, matching the "last
// new dataset-shaped variable" selection rule.
//
// A tracker is scoped to one invocation and must not be shared across calls.
type Tracker struct {
	frames []*Frame
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Track attaches the tracker to a frame. Frames derived from a tracked frame
// inherit the tracker, so every frame the analysis code produces is observed.
// The initially bound frame itself only becomes a candidate once mutated.
func (t *Tracker) Track(f *Frame) {
	f.tracker = t
}

func (t *Tracker) created(f *Frame) {
	t.moveToBack(f)
}

func (t *Tracker) touched(f *Frame) {
	t.moveToBack(f)
}

func (t *Tracker) moveToBack(f *Frame) {
	for i, existing := range t.frames {
		if existing == f {
			t.frames = append(t.frames[:i], t.frames[i+1:]...)
			break
		}
	}
	t.frames = append(t.frames, f)
}

// Candidate returns the export candidate, or nil when the invocation produced
// no new or changed frame.
func (t *Tracker) Candidate() *Frame {
	if len(t.frames) == 0 {
		return nil
	}
	return t.frames[len(t.frames)-1]
}

// touch records a structural change on a tracked frame.
func (f *Frame) touch() {
	if f.tracker != nil {
		f.tracker.touched(f)
	}
}
