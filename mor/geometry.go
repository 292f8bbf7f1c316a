package mor

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

// GeometryKind is the 1-byte tag stored in front of a zone geometry payload
type GeometryKind uint8

const (
	KindRectangle      GeometryKind = 0
	KindEllipse        GeometryKind = 1
	KindAnnularEllipse GeometryKind = 2
)

func (kind GeometryKind) String() string {
	switch kind {
	case KindRectangle:
		return "rectangle"
	case KindEllipse:
		return "ellipse"
	case KindAnnularEllipse:
		return "annular-ellipse"
	default:
		return "unknown"
	}
}

// Geometry is a closed 2-D zone shape in absolute coordinates.
// The set of implementations is fixed: Rectangle, Ellipse and AnnularEllipse.
type Geometry interface {
	Kind() GeometryKind
	// Contains reports whether point lies inside the shape (boundary inclusive)
	Contains(x, y float64) bool
	// BoundingRect returns the axis-aligned frame the shape is drawn in
	BoundingRect() BBox
	MarshalBinary() ([]byte, error)
	sealed()
}

// Rectangle is axis-aligned rectangular zone
type Rectangle struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

func (rect Rectangle) Kind() GeometryKind { return KindRectangle }

// Contains checks x in [X, X+Width] and y in [Y, Y+Height]
func (rect Rectangle) Contains(x, y float64) bool {
	return rect.X <= x && x <= rect.X+rect.Width &&
		rect.Y <= y && y <= rect.Y+rect.Height
}

func (rect Rectangle) BoundingRect() BBox {
	return NewBBox(rect.X, rect.Y, rect.Width, rect.Height)
}

func (rect Rectangle) MarshalBinary() ([]byte, error) {
	return packFloats(rect.X, rect.Y, rect.Width, rect.Height), nil
}

func (Rectangle) sealed() {}

// Ellipse is axis-aligned ellipse given by center and radii
type Ellipse struct {
	CX float64
	CY float64
	RX float64
	RY float64
}

// EllipseInRect creates ellipse inscribed into the given frame
func EllipseInRect(x, y, width, height float64) Ellipse {
	rx, ry := width/2.0, height/2.0
	return Ellipse{CX: x + rx, CY: y + ry, RX: rx, RY: ry}
}

func (ellipse Ellipse) Kind() GeometryKind { return KindEllipse }

// Contains checks ((x-cx)/rx)^2 + ((y-cy)/ry)^2 <= 1. Degenerate ellipse contains nothing.
func (ellipse Ellipse) Contains(x, y float64) bool {
	return insideEllipse(x-ellipse.CX, y-ellipse.CY, ellipse.RX, ellipse.RY)
}

func (ellipse Ellipse) BoundingRect() BBox {
	return NewBBox(ellipse.CX-ellipse.RX, ellipse.CY-ellipse.RY, 2*ellipse.RX, 2*ellipse.RY)
}

func (ellipse Ellipse) MarshalBinary() ([]byte, error) {
	return packFloats(ellipse.CX, ellipse.CY, ellipse.RX, ellipse.RY), nil
}

func (Ellipse) sealed() {}

// AnnularEllipse is elliptical ring: outer ellipse with optional inner hole sharing the same center
type AnnularEllipse struct {
	CX    float64
	CY    float64
	RXOut float64
	RYOut float64
	RXIn  float64
	RYIn  float64
}

// AnnulusInRect creates ring inscribed into the given frame. Inner radii are outer radii scaled by innerRatio.
func AnnulusInRect(x, y, width, height, innerRatio float64) AnnularEllipse {
	rx, ry := width/2.0, height/2.0
	return AnnularEllipse{
		CX:    x + rx,
		CY:    y + ry,
		RXOut: rx,
		RYOut: ry,
		RXIn:  rx * innerRatio,
		RYIn:  ry * innerRatio,
	}
}

func (ring AnnularEllipse) Kind() GeometryKind { return KindAnnularEllipse }

// Contains checks point is inside outer ellipse and not inside the hole
func (ring AnnularEllipse) Contains(x, y float64) bool {
	dx, dy := x-ring.CX, y-ring.CY
	if !insideEllipse(dx, dy, ring.RXOut, ring.RYOut) {
		return false
	}
	if ring.RXIn > 0 && ring.RYIn > 0 && insideEllipse(dx, dy, ring.RXIn, ring.RYIn) {
		return false
	}
	return true
}

func (ring AnnularEllipse) BoundingRect() BBox {
	return NewBBox(ring.CX-ring.RXOut, ring.CY-ring.RYOut, 2*ring.RXOut, 2*ring.RYOut)
}

// InnerRatio returns hole size relative to outer ellipse (0 when outer is degenerate)
func (ring AnnularEllipse) InnerRatio() float64 {
	if ring.RXOut == 0 {
		return 0
	}
	return ring.RXIn / ring.RXOut
}

func (ring AnnularEllipse) MarshalBinary() ([]byte, error) {
	return packFloats(ring.CX, ring.CY, ring.RXOut, ring.RYOut, ring.RXIn, ring.RYIn), nil
}

func (AnnularEllipse) sealed() {}

func insideEllipse(dx, dy, rx, ry float64) bool {
	if rx == 0 || ry == 0 {
		return false
	}
	return (dx*dx)/(rx*rx)+(dy*dy)/(ry*ry) <= 1.0
}

// GeometrySize returns payload width for known kinds and false otherwise
func GeometrySize(kind GeometryKind) (int, bool) {
	switch kind {
	case KindRectangle, KindEllipse:
		return 4 * 8, true
	case KindAnnularEllipse:
		return 6 * 8, true
	default:
		return 0, false
	}
}

// DecodeGeometry decodes payload of the given kind.
// Unknown kind yields (nil, nil) so callers may skip the payload;
// known kind with payload of wrong width is an error.
func DecodeGeometry(kind GeometryKind, payload []byte) (Geometry, error) {
	size, ok := GeometrySize(kind)
	if !ok {
		return nil, nil
	}
	if len(payload) != size {
		return nil, errors.Errorf("%s payload must be %d bytes, got %d", kind, size, len(payload))
	}
	v := unpackFloats(payload)
	switch kind {
	case KindRectangle:
		return Rectangle{X: v[0], Y: v[1], Width: v[2], Height: v[3]}, nil
	case KindEllipse:
		return Ellipse{CX: v[0], CY: v[1], RX: v[2], RY: v[3]}, nil
	default:
		return AnnularEllipse{CX: v[0], CY: v[1], RXOut: v[2], RYOut: v[3], RXIn: v[4], RYIn: v[5]}, nil
	}
}

func packFloats(values ...float64) []byte {
	buf := make([]byte, 8*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

func unpackFloats(buf []byte) []float64 {
	values := make([]float64, len(buf)/8)
	for i := range values {
		values[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return values
}
