package tracking

import (
	"math"

	kalman_filter "github.com/LdDl/kalman-filter"
	"github.com/LdDl/mor-go/logger"
	"github.com/LdDl/mor-go/mor"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// FrameSink receives finished runs of consecutive frames. *mor.Container implements it.
type FrameSink interface {
	AddFrames(start int, boxes []mor.BBox)
}

// Options configures Follower
type Options struct {
	// IoUThreshold is the minimum IoU between predicted and detected boxes to continue a run
	IoUThreshold float64
	// Gate is the maximum distance between predicted and detected centers to continue a run.
	// Zero disables the distance check.
	Gate float64
	// Smooth stores Kalman-filtered boxes instead of raw detections
	Smooth bool
	// Dt is the Kalman filter time step
	Dt float64
}

// DefaultOptions returns options suitable for 25-30 fps footage of a single animal
func DefaultOptions() Options {
	return Options{
		IoUThreshold: 0.3,
		Gate:         0,
		Smooth:       false,
		Dt:           1.0,
	}
}

// Follower turns per-frame detections of one object into runs of consecutive frames.
// Each run is smoothed by its own Kalman filter; it ends on a missed frame,
// a frame gap or a detection too far from the prediction.
type Follower struct {
	id        uuid.UUID
	sink      FrameSink
	opts      Options
	tracker   *kalman_filter.KalmanBBox
	start     int
	last      int
	buffer    []mor.BBox
	predicted mor.BBox
	flushed   int
}

// NewFollower creates follower writing finished runs into sink
func NewFollower(sink FrameSink, opts Options) *Follower {
	if opts.Dt <= 0 {
		opts.Dt = 1.0
	}
	return &Follower{
		sink: sink,
		opts: opts,
	}
}

// GetID returns identifier of the current run. It changes whenever a new run starts.
func (follower *Follower) GetID() uuid.UUID {
	return follower.id
}

// Active reports whether a run is being buffered
func (follower *Follower) Active() bool {
	return len(follower.buffer) > 0
}

// GetPredictedBBox returns box predicted for the last observed frame
func (follower *Follower) GetPredictedBBox() mor.BBox {
	return follower.predicted
}

// Flushed returns number of runs handed to the sink so far
func (follower *Follower) Flushed() int {
	return follower.flushed
}

// Observe feeds detection for the frame. Nil detection means the object was lost.
func (follower *Follower) Observe(frame int, detection *mor.BBox) error {
	if detection == nil {
		follower.Flush()
		return nil
	}
	if detection.Width <= 0 || detection.Height <= 0 {
		return errors.Errorf("detection on frame %d has non-positive size %vx%v", frame, detection.Width, detection.Height)
	}
	if !follower.Active() {
		follower.begin(frame, *detection)
		return nil
	}
	if frame != follower.last+1 {
		logger.Log.WithFields(logrus.Fields{
			"run":   follower.id,
			"last":  follower.last,
			"frame": frame,
		}).Debug("Frame gap, starting new run")
		follower.Flush()
		follower.begin(frame, *detection)
		return nil
	}

	follower.tracker.Predict()
	follower.predicted = follower.state()
	if !follower.accept(*detection) {
		logger.Log.WithFields(logrus.Fields{
			"run":   follower.id,
			"frame": frame,
			"iou":   IoU(follower.predicted, *detection),
		}).Debug("Detection rejected, starting new run")
		follower.Flush()
		follower.begin(frame, *detection)
		return nil
	}

	cx, cy := detection.Center()
	err := follower.tracker.Update(cx, cy, detection.Width, detection.Height)
	if err != nil {
		return errors.Wrap(err, "Can't update object tracker")
	}
	stored := *detection
	if follower.opts.Smooth {
		stored = follower.state()
	}
	follower.buffer = append(follower.buffer, stored)
	follower.last = frame
	return nil
}

// ObserveCandidates feeds the detection overlapping the last stored box most.
// No overlapping candidate counts as a miss. Without a running track the largest candidate starts one.
func (follower *Follower) ObserveCandidates(frame int, candidates []mor.BBox) error {
	if len(candidates) == 0 {
		return follower.Observe(frame, nil)
	}
	best := 0
	if !follower.Active() || frame != follower.last+1 {
		for i, candidate := range candidates {
			if candidate.Width*candidate.Height > candidates[best].Width*candidates[best].Height {
				best = i
			}
		}
		return follower.Observe(frame, &candidates[best])
	}
	reference := follower.buffer[len(follower.buffer)-1]
	bestIoU := 0.0
	for i, candidate := range candidates {
		if iou := IoU(reference, candidate); iou > bestIoU {
			best, bestIoU = i, iou
		}
	}
	if bestIoU == 0 {
		return follower.Observe(frame, nil)
	}
	return follower.Observe(frame, &candidates[best])
}

// Flush hands the buffered run to the sink and resets the follower
func (follower *Follower) Flush() {
	if !follower.Active() {
		return
	}
	follower.sink.AddFrames(follower.start, follower.buffer)
	follower.flushed++
	logger.Log.WithFields(logrus.Fields{
		"run":    follower.id,
		"start":  follower.start,
		"frames": len(follower.buffer),
	}).Debug("Run flushed")
	follower.buffer = nil
	follower.tracker = nil
}

func (follower *Follower) begin(frame int, detection mor.BBox) {
	cx, cy := detection.Center()

	// Kalman filter props
	uCx := 1.0
	uCy := 1.0
	uW := 0.0
	uH := 0.0
	stdDevA := 2.0
	stdDevMCx := 0.1
	stdDevMCy := 0.1
	stdDevMW := 0.1
	stdDevMH := 0.1
	follower.tracker = kalman_filter.NewKalmanBBox(
		follower.opts.Dt, uCx, uCy, uW, uH,
		stdDevA, stdDevMCx, stdDevMCy, stdDevMW, stdDevMH,
		kalman_filter.WithStateBBox(cx, cy, detection.Width, detection.Height),
	)
	follower.id = uuid.New()
	follower.start = frame
	follower.last = frame
	follower.predicted = detection
	follower.buffer = append(make([]mor.BBox, 0, 64), detection)
}

func (follower *Follower) state() mor.BBox {
	cx, cy, w, h := follower.tracker.GetState()
	return mor.NewBBox(cx-w/2.0, cy-h/2.0, w, h)
}

func (follower *Follower) accept(detection mor.BBox) bool {
	if IoU(follower.predicted, detection) >= follower.opts.IoUThreshold {
		return true
	}
	if follower.opts.Gate <= 0 {
		return false
	}
	px, py := follower.predicted.Center()
	dx, dy := detection.Center()
	return math.Hypot(px-dx, py-dy) <= follower.opts.Gate
}
