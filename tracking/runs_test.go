package tracking

import (
	"testing"

	"github.com/LdDl/mor-go/mor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunsFromMap(t *testing.T) {
	frames := map[int]mor.BBox{
		3:  mor.NewBBox(3, 3, 1, 1),
		4:  mor.NewBBox(4, 4, 1, 1),
		5:  mor.NewBBox(5, 5, 1, 1),
		9:  mor.NewBBox(9, 9, 1, 1),
		11: mor.NewBBox(11, 11, 1, 1),
		12: mor.NewBBox(12, 12, 1, 1),
	}
	sink := &recordingSink{}
	require.Equal(t, 3, RunsFromMap(sink, frames))

	require.Len(t, sink.runs, 3)
	assert.Equal(t, 3, sink.runs[0].start)
	assert.Equal(t, []mor.BBox{frames[3], frames[4], frames[5]}, sink.runs[0].boxes)
	assert.Equal(t, 9, sink.runs[1].start)
	assert.Equal(t, []mor.BBox{frames[9]}, sink.runs[1].boxes)
	assert.Equal(t, 11, sink.runs[2].start)
	assert.Equal(t, []mor.BBox{frames[11], frames[12]}, sink.runs[2].boxes)
}

func TestRunsFromMapEmpty(t *testing.T) {
	sink := &recordingSink{}
	assert.Equal(t, 0, RunsFromMap(sink, nil))
	assert.Empty(t, sink.runs)
}

func TestRunsFromMapIntoContainer(t *testing.T) {
	container := mor.NewContainer("")
	container.AddFrames(0, []mor.BBox{mor.NewBBox(0, 0, 1, 1), mor.NewBBox(1, 1, 1, 1)})
	RunsFromMap(container, map[int]mor.BBox{1: mor.NewBBox(10, 10, 1, 1), 2: mor.NewBBox(20, 20, 1, 1)})

	runs := container.Runs()
	require.Len(t, runs, 1)
	assert.Equal(t, []mor.BBox{mor.NewBBox(0, 0, 1, 1), mor.NewBBox(10, 10, 1, 1), mor.NewBBox(20, 20, 1, 1)}, runs[0].Boxes)
}
