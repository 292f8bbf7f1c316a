package mor

import (
	"encoding/binary"
	"math"
	"strings"

	"github.com/pkg/errors"
)

const (
	// MagicByte is the first byte of every container file
	MagicByte = 0x4D
	// Version is the container format version written by this package
	Version = 1
	// HeaderSize is magic(1) + version(1) + payload size(8) + coordinate type(1)
	HeaderSize = 11
	// payloadSizeOffset is where the patched payload size lives inside the header
	payloadSizeOffset = 2
)

// FlagMarked is the metadata key for "video is fully annotated"
const FlagMarked uint8 = 1

// BlockType is the 1-byte tag opening every block of the container body.
type BlockType uint8

const (
	// BlockFrames holds one run of consecutive bounding boxes
	BlockFrames BlockType = 1
	// BlockStats holds one zone record: statistics, style and geometry
	BlockStats BlockType = 2
	// BlockMetadata holds the key/value flag set
	BlockMetadata BlockType = 3
)

// CoordType is the numeric encoding used for every bounding box value in a file.
type CoordType uint8

const (
	CoordUint8 CoordType = iota
	CoordUint16
	CoordUint32
	CoordUint64
	CoordFloat32
	CoordFloat64
)

// DefaultCoordType is used by new containers until SetCoordType is called
const DefaultCoordType = CoordFloat32

// ErrCoordinateRange is returned when a bounding box value can't be represented by an integer coordinate type
var ErrCoordinateRange = errors.New("coordinate value is out of range for coordinate type")

var coordTypeNames = [...]string{"uint8", "uint16", "uint32", "uint64", "float32", "float64"}

// Valid reports whether the selector is one of the known encodings
func (ct CoordType) Valid() bool {
	return ct <= CoordFloat64
}

// Size returns the width in bytes of a single value. Zero for unknown selectors.
func (ct CoordType) Size() int {
	switch ct {
	case CoordUint8:
		return 1
	case CoordUint16:
		return 2
	case CoordUint32, CoordFloat32:
		return 4
	case CoordUint64, CoordFloat64:
		return 8
	default:
		return 0
	}
}

// BoxSize returns the number of bytes taken by one bounding box
func (ct CoordType) BoxSize() int {
	return 4 * ct.Size()
}

func (ct CoordType) String() string {
	if !ct.Valid() {
		return "unknown"
	}
	return coordTypeNames[ct]
}

// ParseCoordType converts names like "float64" or "uint16" to CoordType
func ParseCoordType(name string) (CoordType, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	switch name {
	case "float", "single":
		return CoordFloat32, nil
	case "double":
		return CoordFloat64, nil
	}
	for i, known := range coordTypeNames {
		if known == name {
			return CoordType(i), nil
		}
	}
	return 0, errors.Errorf("unknown coordinate type %q", name)
}

// put encodes v into dst which must hold at least Size() bytes.
// Integer encodings round to the nearest integer.
func (ct CoordType) put(dst []byte, v float64) error {
	switch ct {
	case CoordFloat32:
		binary.LittleEndian.PutUint32(dst, math.Float32bits(float32(v)))
		return nil
	case CoordFloat64:
		binary.LittleEndian.PutUint64(dst, math.Float64bits(v))
		return nil
	}
	r := math.Round(v)
	if math.IsNaN(r) || r < 0 || r >= ct.limit() {
		return errors.Wrapf(ErrCoordinateRange, "%v as %s", v, ct)
	}
	switch ct {
	case CoordUint8:
		dst[0] = uint8(r)
	case CoordUint16:
		binary.LittleEndian.PutUint16(dst, uint16(r))
	case CoordUint32:
		binary.LittleEndian.PutUint32(dst, uint32(r))
	case CoordUint64:
		binary.LittleEndian.PutUint64(dst, uint64(r))
	}
	return nil
}

// limit is the exclusive upper bound of an integer encoding
func (ct CoordType) limit() float64 {
	switch ct {
	case CoordUint8:
		return 1 << 8
	case CoordUint16:
		return 1 << 16
	case CoordUint32:
		return 1 << 32
	default:
		return 1 << 64
	}
}

func (ct CoordType) get(src []byte) float64 {
	switch ct {
	case CoordUint8:
		return float64(src[0])
	case CoordUint16:
		return float64(binary.LittleEndian.Uint16(src))
	case CoordUint32:
		return float64(binary.LittleEndian.Uint32(src))
	case CoordUint64:
		return float64(binary.LittleEndian.Uint64(src))
	case CoordFloat32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(src)))
	default:
		return math.Float64frombits(binary.LittleEndian.Uint64(src))
	}
}

// BBox is bounding box of tracked object on a single frame
type BBox struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// NewBBox creates bounding box from top-left corner and size
func NewBBox(x, y, width, height float64) BBox {
	return BBox{
		X:      x,
		Y:      y,
		Width:  width,
		Height: height,
	}
}

// Center returns center of the bounding box
func (box BBox) Center() (float64, float64) {
	return box.X + box.Width/2.0, box.Y + box.Height/2.0
}
