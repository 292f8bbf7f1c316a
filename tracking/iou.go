package tracking

import (
	"math"

	"github.com/LdDl/mor-go/mor"
)

// IoU calculates Intersection over Union between two boxes
func IoU(r1, r2 mor.BBox) float64 {
	xA := math.Max(r1.X, r2.X)
	yA := math.Max(r1.Y, r2.Y)
	xB := math.Min(r1.X+r1.Width, r2.X+r2.Width)
	yB := math.Min(r1.Y+r1.Height, r2.Y+r2.Height)

	interArea := math.Max(0, xB-xA) * math.Max(0, yB-yA)
	if interArea == 0 {
		return 0.0
	}

	r1Area := r1.Width * r1.Height
	r2Area := r2.Width * r2.Height
	return interArea / (r1Area + r2Area - interArea)
}
