package stats

import (
	"math"

	"github.com/LdDl/mor-go/logger"
	"github.com/LdDl/mor-go/mor"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/spatial/r2"
)

const (
	// DefaultFPS is used when the video frame rate is unknown
	DefaultFPS = 30.0
	// AllFrames makes Calculate walk the whole sequence
	AllFrames = math.MaxInt
)

// Unit of distances in Result
type Unit string

const (
	UnitPixels Unit = "px"
	UnitMetres Unit = "m"
)

// ZoneStats holds time (seconds) and distance accumulated inside one zone
type ZoneStats struct {
	Name     string
	Time     float64
	Distance float64
	Active   bool
}

// Result of walking a frame sequence. Zones is parallel to the zone list given to Calculate.
type Result struct {
	Frames        int
	TotalTime     float64
	TotalDistance float64
	Unit          Unit
	Zones         []ZoneStats
}

// Calculate walks frames up to currentFrame (inclusive) in ascending order.
// Every stored frame adds 1/fps seconds; the step distance is the distance between
// consecutive box centers, gaps included. Active zones containing the center
// accumulate the same time and step.
func Calculate(seq *mor.FrameSequence, zones []mor.Zone, fps float64, currentFrame int) Result {
	if fps <= 0 {
		fps = DefaultFPS
	}
	frameTime := 1.0 / fps
	result := Result{
		Unit:  UnitPixels,
		Zones: make([]ZoneStats, len(zones)),
	}
	for i, zone := range zones {
		result.Zones[i] = ZoneStats{Name: zone.Name, Active: zone.Active}
	}

	var prev r2.Vec
	started := false
	for _, run := range seq.Runs() {
		if run.Start > currentFrame {
			break
		}
		for i, box := range run.Boxes {
			if run.Start+i > currentFrame {
				break
			}
			cx, cy := box.Center()
			center := r2.Vec{X: cx, Y: cy}
			step := 0.0
			if started {
				step = r2.Norm(r2.Sub(center, prev))
			}
			prev, started = center, true

			result.Frames++
			result.TotalTime += frameTime
			result.TotalDistance += step
			for z, zone := range zones {
				if !zone.Active || !zone.Contains(cx, cy) {
					continue
				}
				result.Zones[z].Time += frameTime
				result.Zones[z].Distance += step
			}
		}
	}
	logger.Log.WithFields(logrus.Fields{
		"scope":    "stats",
		"frames":   result.Frames,
		"time":     result.TotalTime,
		"distance": result.TotalDistance,
	}).Debug("Statistics calculated")
	return result
}

// ApplyToZones writes accumulated time and distance into zone records.
// zones must be the list Result was calculated for.
func ApplyToZones(zones []mor.Zone, result Result) error {
	if len(zones) != len(result.Zones) {
		return errors.Errorf("result has %d zones, got %d", len(result.Zones), len(zones))
	}
	for i := range zones {
		zones[i].Time = result.Zones[i].Time
		zones[i].Distance = result.Zones[i].Distance
	}
	return nil
}

// Scale converts pixel distances into metres given the calibration factor
func Scale(result Result, pixelsPerMetre float64) (Result, error) {
	if pixelsPerMetre <= 0 || math.IsNaN(pixelsPerMetre) || math.IsInf(pixelsPerMetre, 0) {
		return result, errors.Errorf("scale factor must be positive, got %v", pixelsPerMetre)
	}
	if result.Unit == UnitMetres {
		return result, errors.New("distances are already in metres")
	}
	scaled := result
	scaled.Unit = UnitMetres
	scaled.TotalDistance /= pixelsPerMetre
	scaled.Zones = make([]ZoneStats, len(result.Zones))
	for i, zone := range result.Zones {
		zone.Distance /= pixelsPerMetre
		scaled.Zones[i] = zone
	}
	return scaled, nil
}
