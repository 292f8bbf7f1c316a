package mor

import (
	"bufio"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/pkg/errors"
)

// DefaultZoneColor is the color assigned by NewZone
const DefaultZoneColor = "#FFDD78"

// Zone is a named region with accumulated statistics.
// Time and Distance are accumulated while the tracked object is inside the zone.
// Inactive zones are kept in the file but excluded from statistics.
type Zone struct {
	Name     string
	Color    string
	Alpha    uint8
	Time     float64
	Distance float64
	Active   bool
	Geometry Geometry

	// Geometry of a kind this package doesn't know is kept verbatim so it survives a save
	rawKind    GeometryKind
	rawPayload []byte
}

// NewZone creates active zone with default styling
func NewZone(name string, geometry Geometry) Zone {
	return Zone{
		Name:     name,
		Color:    DefaultZoneColor,
		Alpha:    100,
		Active:   true,
		Geometry: geometry,
	}
}

// Contains reports whether point lies inside the zone geometry. Zones without known geometry contain nothing.
func (zone Zone) Contains(x, y float64) bool {
	if zone.Geometry == nil {
		return false
	}
	return zone.Geometry.Contains(x, y)
}

func (zone Zone) geometryPayload() (GeometryKind, []byte, error) {
	if zone.Geometry != nil {
		payload, err := zone.Geometry.MarshalBinary()
		if err != nil {
			return 0, nil, errors.Wrap(err, "can't encode geometry")
		}
		return zone.Geometry.Kind(), payload, nil
	}
	if zone.rawPayload != nil {
		return zone.rawKind, zone.rawPayload, nil
	}
	return 0, nil, errors.New("zone has no geometry")
}

// Container is the in-memory model of one .mor file: coordinate encoding,
// tracked frames, zones and metadata flags.
// All methods are safe for concurrent use: a tracking goroutine may call AddFrames while another one calls Save.
type Container struct {
	mu        sync.Mutex
	path      string
	coordType CoordType
	sequence  *FrameSequence
	zones     []Zone
	flags     map[uint8]bool
}

// NewContainer creates empty container bound to path. Nothing is read until Load is called.
func NewContainer(path string) *Container {
	return &Container{
		path:      path,
		coordType: DefaultCoordType,
		sequence:  NewFrameSequence(),
		flags:     make(map[uint8]bool),
	}
}

// Path returns file the container is bound to
func (c *Container) Path() string {
	return c.path
}

// CoordType returns encoding used for bounding boxes
func (c *Container) CoordType() CoordType {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.coordType
}

// SetCoordType changes encoding used by the next Save
func (c *Container) SetCoordType(coordType CoordType) error {
	if !coordType.Valid() {
		return errors.Errorf("unknown coordinate type %d", coordType)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.coordType = coordType
	return nil
}

// AddFrames stores boxes[i] at frame start+i, overwriting previous data in that range
func (c *Container) AddFrames(start int, boxes []BBox) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sequence.AddFrames(start, boxes)
}

// Frame returns bounding box stored for the frame
func (c *Container) Frame(frame int) (BBox, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sequence.Get(frame)
}

// Runs returns snapshot of stored frame runs in ascending order
func (c *Container) Runs() []FrameRun {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sequence.Runs()
}

// Sequence returns deep copy of stored frames
func (c *Container) Sequence() *FrameSequence {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sequence.Clone()
}

// ReplaceFrames drops every stored frame and installs runs of seq
func (c *Container) ReplaceFrames(seq *FrameSequence) {
	cloned := seq.Clone()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sequence = cloned
}

// Zones returns copy of zone list
func (c *Container) Zones() []Zone {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.zones)
}

// SetZones replaces zone list. Frames and flags are untouched.
func (c *Container) SetZones(zones []Zone) {
	cloned := slices.Clone(zones)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.zones = cloned
}

// AddZone appends zone to the list
func (c *Container) AddZone(zone Zone) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.zones = append(c.zones, zone)
}

// Flag returns metadata flag; missing keys read as false
func (c *Container) Flag(key uint8) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flags[key]
}

// SetFlag sets metadata flag
func (c *Container) SetFlag(key uint8, value bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flags[key] = value
}

// Flags returns copy of metadata flags
func (c *Container) Flags() map[uint8]bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return maps.Clone(c.flags)
}

// Marked returns "fully annotated" flag
func (c *Container) Marked() bool {
	return c.Flag(FlagMarked)
}

// SetMarked sets "fully annotated" flag
func (c *Container) SetMarked(marked bool) {
	c.SetFlag(FlagMarked, marked)
}

// Encode writes the container to w. Seekable writers get payload size patched after the body is written,
// others receive a body buffered in memory.
func (c *Container) Encode(w io.Writer) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.encode(w)
}

// Decode replaces container state with data read from r.
// The stream must end right after the payload declared in the header.
// Stream shorter than a header leaves the container empty without error.
// On error the container is left empty.
func (c *Container) Decode(r io.Reader) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.decodeFrom(r, -1)
}

func (c *Container) reset() {
	c.coordType = DefaultCoordType
	c.sequence = NewFrameSequence()
	c.zones = nil
	c.flags = make(map[uint8]bool)
}

func (c *Container) decodeFrom(r io.Reader, length int64) error {
	c.reset()
	result, ok, err := decode(r, length)
	if err != nil || !ok {
		return err
	}
	c.coordType = result.coordType
	c.sequence = result.sequence
	c.zones = result.zones
	c.flags = result.flags
	return nil
}

// Save writes the container to its path. Data goes to a temporary file in the same
// directory which then replaces the target, so readers never observe a half-written file.
func (c *Container) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	dir, name := filepath.Split(c.path)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, "."+name+".*.tmp")
	if err != nil {
		return errors.Wrapf(err, "can't create temporary file for %s", c.path)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	if err := c.encode(tmp); err != nil {
		return errors.Wrapf(err, "can't encode %s", c.path)
	}
	if err := tmp.Chmod(0644); err != nil {
		return errors.Wrapf(err, "can't set permissions of %s", tmpName)
	}
	if err := tmp.Sync(); err != nil {
		return errors.Wrapf(err, "can't sync %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "can't close %s", tmpName)
	}
	if err := os.Rename(tmpName, c.path); err != nil {
		os.Remove(tmpName)
		committed = true
		return errors.Wrapf(err, "can't replace %s", c.path)
	}
	committed = true
	return nil
}

// Load resets the container and reads its file.
// Missing file or file shorter than a header gives an empty container and no error.
// Malformed data gives *FormatError (possibly wrapped) and an empty container.
func (c *Container) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset()

	file, err := os.Open(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "can't open %s", c.path)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return errors.Wrapf(err, "can't stat %s", c.path)
	}
	if err := c.decodeFrom(bufio.NewReader(file), info.Size()); err != nil {
		return errors.Wrapf(err, "can't load %s", c.path)
	}
	return nil
}

// LoadMetaOnly returns "fully annotated" flag without reading frames or geometry.
// In-memory state is not touched. Missing file or file shorter than a header gives false and no error.
func (c *Container) LoadMetaOnly() (bool, error) {
	file, err := os.Open(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.Wrapf(err, "can't open %s", c.path)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return false, errors.Wrapf(err, "can't stat %s", c.path)
	}
	marked, err := readMarked(file, info.Size())
	if err != nil {
		return false, errors.Wrapf(err, "can't read metadata of %s", c.path)
	}
	return marked, nil
}

// ReadMarked is LoadMetaOnly over an arbitrary seekable stream positioned at the start of a container
func ReadMarked(rs io.ReadSeeker) (bool, error) {
	begin, err := rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return false, errors.Wrap(err, "can't get read position")
	}
	end, err := rs.Seek(0, io.SeekEnd)
	if err != nil {
		return false, errors.Wrap(err, "can't find end of stream")
	}
	if _, err := rs.Seek(begin, io.SeekStart); err != nil {
		return false, errors.Wrap(err, "can't rewind stream")
	}
	return readMarked(rs, end-begin)
}
