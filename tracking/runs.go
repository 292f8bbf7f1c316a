package tracking

import (
	"slices"

	"github.com/LdDl/mor-go/mor"
)

// RunsFromMap splits sparse frame -> box map into runs of consecutive frames
// and writes them into sink in ascending order. It returns the number of runs written.
func RunsFromMap(sink FrameSink, frames map[int]mor.BBox) int {
	if len(frames) == 0 {
		return 0
	}
	indices := make([]int, 0, len(frames))
	for frame := range frames {
		indices = append(indices, frame)
	}
	slices.Sort(indices)

	runs := 0
	start := indices[0]
	boxes := []mor.BBox{frames[start]}
	for _, frame := range indices[1:] {
		if frame != start+len(boxes) {
			sink.AddFrames(start, boxes)
			runs++
			start = frame
			boxes = nil
		}
		boxes = append(boxes, frames[frame])
	}
	sink.AddFrames(start, boxes)
	return runs + 1
}
