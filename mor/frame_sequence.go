package mor

import (
	"slices"
	"sort"
)

// FrameRun is a run of consecutive frames starting at Start with one box per frame
type FrameRun struct {
	Start int
	Boxes []BBox
}

// End returns index of the last frame covered by the run
func (run FrameRun) End() int {
	return run.Start + len(run.Boxes) - 1
}

// Len returns number of frames in the run
func (run FrameRun) Len() int {
	return len(run.Boxes)
}

// FrameSequence stores bounding boxes as sorted, non-overlapping runs.
// Adjacent runs are always merged, so two neighbours never satisfy left.End()+1 == right.Start.
// It is not safe for concurrent use; Container guards its own sequence.
type FrameSequence struct {
	runs []FrameRun
}

// NewFrameSequence creates empty sequence
func NewFrameSequence() *FrameSequence {
	return &FrameSequence{}
}

// AddFrames places boxes[i] at frame start+i overwriting anything previously stored in that range.
// Empty boxes is a no-op. Boxes are copied.
func (seq *FrameSequence) AddFrames(start int, boxes []BBox) {
	if len(boxes) == 0 {
		return
	}
	owned := cloneBoxes(boxes)

	// Appending past the tail needs no clearing
	if n := len(seq.runs); n == 0 || seq.runs[n-1].End() < start {
		seq.runs = append(seq.runs, FrameRun{Start: start, Boxes: owned})
		seq.coalesce()
		return
	}

	seq.place(FrameRun{Start: start, Boxes: owned})
	seq.coalesce()
}

// place clears the range covered by run and inserts it at its sorted position.
// Neighbours are left unmerged.
func (seq *FrameSequence) place(run FrameRun) {
	seq.clearRange(run.Start, run.End())
	idx := sort.Search(len(seq.runs), func(i int) bool {
		return seq.runs[i].Start >= run.Start
	})
	seq.runs = slices.Insert(seq.runs, idx, run)
}

// Get returns bounding box stored for the frame
func (seq *FrameSequence) Get(frame int) (BBox, bool) {
	idx := sort.Search(len(seq.runs), func(i int) bool {
		return seq.runs[i].Start > frame
	})
	if idx == 0 {
		return BBox{}, false
	}
	run := seq.runs[idx-1]
	if frame > run.End() {
		return BBox{}, false
	}
	return run.Boxes[frame-run.Start], true
}

// Runs returns runs in ascending order. The slice is a copy; box slices must be treated as read-only.
func (seq *FrameSequence) Runs() []FrameRun {
	return slices.Clone(seq.runs)
}

// Len returns number of runs
func (seq *FrameSequence) Len() int {
	return len(seq.runs)
}

// FrameCount returns total number of frames having a bounding box
func (seq *FrameSequence) FrameCount() int {
	total := 0
	for _, run := range seq.runs {
		total += len(run.Boxes)
	}
	return total
}

// Bounds returns first and last stored frame
func (seq *FrameSequence) Bounds() (int, int, bool) {
	if len(seq.runs) == 0 {
		return 0, 0, false
	}
	return seq.runs[0].Start, seq.runs[len(seq.runs)-1].End(), true
}

// Frames flattens the sequence into frame -> box map
func (seq *FrameSequence) Frames() map[int]BBox {
	frames := make(map[int]BBox, seq.FrameCount())
	for _, run := range seq.runs {
		for i, box := range run.Boxes {
			frames[run.Start+i] = box
		}
	}
	return frames
}

// Clone returns deep copy of the sequence
func (seq *FrameSequence) Clone() *FrameSequence {
	cloned := &FrameSequence{runs: make([]FrameRun, len(seq.runs))}
	for i, run := range seq.runs {
		cloned.runs[i] = FrameRun{Start: run.Start, Boxes: cloneBoxes(run.Boxes)}
	}
	return cloned
}

// clearRange removes frames [start, end]. Runs crossing the range edges are cut,
// a run covering the whole range on both sides is split into two remnants.
// All touched runs form one contiguous slice which is replaced in a single splice.
func (seq *FrameSequence) clearRange(start, end int) {
	// Runs are sorted and disjoint, so their ends are sorted too
	first := sort.Search(len(seq.runs), func(i int) bool {
		return seq.runs[i].End() >= start
	})
	last := first
	remnants := make([]FrameRun, 0, 2)
	for ; last < len(seq.runs); last++ {
		run := seq.runs[last]
		if run.Start > end {
			break
		}
		if run.Start < start {
			remnants = append(remnants, FrameRun{
				Start: run.Start,
				Boxes: cloneBoxes(run.Boxes[:start-run.Start]),
			})
		}
		if run.End() > end {
			remnants = append(remnants, FrameRun{
				Start: end + 1,
				Boxes: cloneBoxes(run.Boxes[end-run.Start+1:]),
			})
		}
	}
	if last == first {
		return
	}
	seq.runs = slices.Replace(seq.runs, first, last, remnants...)
}

// coalesce merges neighbours satisfying left.End()+1 == right.Start.
// One pass is enough since overlaps were cleared before insertion.
func (seq *FrameSequence) coalesce() {
	if len(seq.runs) < 2 {
		return
	}
	merged := seq.runs[:1]
	for _, run := range seq.runs[1:] {
		tail := &merged[len(merged)-1]
		if tail.End()+1 == run.Start {
			tail.Boxes = append(tail.Boxes, run.Boxes...)
			continue
		}
		merged = append(merged, run)
	}
	clear(seq.runs[len(merged):])
	seq.runs = merged
}

// appendDecoded appends run read from file. Caller guarantees run starts after the current tail.
func (seq *FrameSequence) appendDecoded(run FrameRun) {
	if n := len(seq.runs); n > 0 && seq.runs[n-1].End()+1 == run.Start {
		seq.runs[n-1].Boxes = append(seq.runs[n-1].Boxes, run.Boxes...)
		return
	}
	seq.runs = append(seq.runs, run)
}

func cloneBoxes(boxes []BBox) []BBox {
	cloned := make([]BBox, len(boxes))
	copy(cloned, boxes)
	return cloned
}
