package mor

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"slices"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// header is the fixed 11-byte preamble of a container
type header struct {
	version   uint8
	payload   uint64
	coordType CoordType
}

func putHeader(dst []byte, coordType CoordType, payload uint64) {
	dst[0] = MagicByte
	dst[1] = Version
	binary.LittleEndian.PutUint64(dst[payloadSizeOffset:], payload)
	dst[HeaderSize-1] = byte(coordType)
}

// readHeader reads and validates the preamble. A stream shorter than HeaderSize
// is reported with ok == false and no error: it is treated as an empty container.
// length is the number of bytes available from the start of the header, or -1 when unknown.
func readHeader(r io.Reader, length int64) (h header, ok bool, err error) {
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return header{}, false, nil
		}
		return header{}, false, errors.Wrap(err, "can't read header")
	}
	if buf[0] != MagicByte {
		return header{}, false, formatErrorf(0, "bad magic byte 0x%02X", buf[0])
	}
	h.version = buf[1]
	if h.version == 0 || h.version > Version {
		return header{}, false, formatErrorf(1, "unsupported version %d", h.version)
	}
	h.payload = binary.LittleEndian.Uint64(buf[payloadSizeOffset:])
	if h.payload > math.MaxInt64 {
		return header{}, false, formatErrorf(payloadSizeOffset, "payload size %d is too large", h.payload)
	}
	if length >= 0 && h.payload != uint64(length-HeaderSize) {
		return header{}, false, formatErrorf(payloadSizeOffset, "payload size %d does not match %d bytes following the header", h.payload, length-HeaderSize)
	}
	h.coordType = CoordType(buf[HeaderSize-1])
	if !h.coordType.Valid() {
		return header{}, false, formatErrorf(HeaderSize-1, "unknown coordinate type %d", buf[HeaderSize-1])
	}
	return h, true, nil
}

// blockWriter accumulates the first write error and counts bytes written
type blockWriter struct {
	w       *bufio.Writer
	n       int64
	err     error
	scratch [8]byte
}

func newBlockWriter(w io.Writer) *blockWriter {
	return &blockWriter{w: bufio.NewWriter(w)}
}

func (bw *blockWriter) write(p []byte) {
	if bw.err != nil {
		return
	}
	n, err := bw.w.Write(p)
	bw.n += int64(n)
	bw.err = err
}

func (bw *blockWriter) u8(v uint8) {
	bw.scratch[0] = v
	bw.write(bw.scratch[:1])
}

func (bw *blockWriter) u16(v uint16) {
	binary.LittleEndian.PutUint16(bw.scratch[:], v)
	bw.write(bw.scratch[:2])
}

func (bw *blockWriter) u32(v uint32) {
	binary.LittleEndian.PutUint32(bw.scratch[:], v)
	bw.write(bw.scratch[:4])
}

func (bw *blockWriter) f64(v float64) {
	binary.LittleEndian.PutUint64(bw.scratch[:], math.Float64bits(v))
	bw.write(bw.scratch[:8])
}

func (bw *blockWriter) str16(s string) {
	bw.u16(uint16(len(s)))
	bw.write([]byte(s))
}

func (bw *blockWriter) flush() error {
	if bw.err != nil {
		return errors.Wrap(bw.err, "can't write container")
	}
	if err := bw.w.Flush(); err != nil {
		return errors.Wrap(err, "can't write container")
	}
	return nil
}

// encode writes header and body. Seekable writers get the payload size patched in place,
// other writers receive a body buffered in memory.
func (c *Container) encode(w io.Writer) error {
	head := make([]byte, HeaderSize)
	ws, seekable := w.(io.WriteSeeker)
	if !seekable {
		var body bytes.Buffer
		bw := newBlockWriter(&body)
		if err := c.writeBody(bw); err != nil {
			return err
		}
		putHeader(head, c.coordType, uint64(bw.n))
		if _, err := w.Write(head); err != nil {
			return errors.Wrap(err, "can't write header")
		}
		if _, err := body.WriteTo(w); err != nil {
			return errors.Wrap(err, "can't write container")
		}
		return nil
	}

	begin, err := ws.Seek(0, io.SeekCurrent)
	if err != nil {
		return errors.Wrap(err, "can't get write position")
	}
	putHeader(head, c.coordType, 0)
	if _, err := ws.Write(head); err != nil {
		return errors.Wrap(err, "can't write header")
	}
	bw := newBlockWriter(ws)
	if err := c.writeBody(bw); err != nil {
		return err
	}
	if _, err := ws.Seek(begin+payloadSizeOffset, io.SeekStart); err != nil {
		return errors.Wrap(err, "can't seek to payload size")
	}
	binary.LittleEndian.PutUint64(head[:8], uint64(bw.n))
	if _, err := ws.Write(head[:8]); err != nil {
		return errors.Wrap(err, "can't patch payload size")
	}
	if _, err := ws.Seek(begin+HeaderSize+bw.n, io.SeekStart); err != nil {
		return errors.Wrap(err, "can't seek to end of container")
	}
	return nil
}

// writeBody emits FRAMES blocks in run order, STATS blocks in zone order and one METADATA block
func (c *Container) writeBody(bw *blockWriter) error {
	value := make([]byte, c.coordType.Size())
	for _, run := range c.sequence.runs {
		if run.Start < 0 || int64(run.End()) > math.MaxUint32 {
			return errors.Errorf("frames [%d, %d] are out of range of the file format", run.Start, run.End())
		}
		bw.u8(uint8(BlockFrames))
		bw.u32(uint32(run.Start))
		bw.u32(uint32(run.End()))
		bw.u32(uint32(len(run.Boxes)))
		for i, box := range run.Boxes {
			for _, v := range [4]float64{box.X, box.Y, box.Width, box.Height} {
				if err := c.coordType.put(value, v); err != nil {
					return errors.Wrapf(err, "frame %d", run.Start+i)
				}
				bw.write(value)
			}
		}
	}

	for _, zone := range c.zones {
		if err := writeZone(bw, zone); err != nil {
			return errors.Wrapf(err, "zone %q", zone.Name)
		}
	}

	if len(c.flags) > 0 {
		if len(c.flags) > math.MaxUint8 {
			return errors.Errorf("too many metadata flags: %d", len(c.flags))
		}
		keys := make([]uint8, 0, len(c.flags))
		for key := range c.flags {
			keys = append(keys, key)
		}
		slices.Sort(keys)
		bw.u8(uint8(BlockMetadata))
		bw.u8(uint8(len(keys)))
		for _, key := range keys {
			bw.u8(key)
			bw.u8(boolByte(c.flags[key]))
		}
	}
	return bw.flush()
}

func writeZone(bw *blockWriter, zone Zone) error {
	kind, payload, err := zone.geometryPayload()
	if err != nil {
		return err
	}
	switch {
	case len(zone.Name) > math.MaxUint16:
		return errors.Errorf("name is %d bytes long", len(zone.Name))
	case len(zone.Color) > math.MaxUint16:
		return errors.Errorf("color is %d bytes long", len(zone.Color))
	case len(payload) > math.MaxUint16:
		return errors.Errorf("geometry payload is %d bytes long", len(payload))
	case zone.Alpha > 100:
		return errors.Errorf("alpha %d is out of [0, 100]", zone.Alpha)
	}
	bw.u8(uint8(BlockStats))
	bw.str16(zone.Name)
	bw.f64(zone.Time)
	bw.f64(zone.Distance)
	bw.str16(zone.Color)
	bw.u8(zone.Alpha)
	bw.u8(boolByte(zone.Active))
	bw.u8(uint8(kind))
	bw.u16(uint16(len(payload)))
	bw.write(payload)
	return nil
}

func boolByte(v bool) uint8 {
	if v {
		return 1
	}
	return 0
}

// blockReader reads body primitives and refuses to go past the payload size declared in the header
type blockReader struct {
	r         io.Reader
	offset    int64
	remaining int64
	scratch   [8]byte
}

func newBlockReader(r io.Reader, h header) *blockReader {
	return &blockReader{r: r, offset: HeaderSize, remaining: int64(h.payload)}
}

func (br *blockReader) need(n int64) error {
	if n > br.remaining {
		return formatErrorf(br.offset, "%d bytes requested but only %d remain in payload", n, br.remaining)
	}
	return nil
}

func (br *blockReader) read(p []byte) error {
	if err := br.need(int64(len(p))); err != nil {
		return err
	}
	n, err := io.ReadFull(br.r, p)
	br.offset += int64(n)
	br.remaining -= int64(n)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return formatErrorf(br.offset, "unexpected end of data")
		}
		return errors.Wrap(err, "can't read container")
	}
	return nil
}

func (br *blockReader) skip(n int64) error {
	if err := br.need(n); err != nil {
		return err
	}
	if seeker, ok := br.r.(io.Seeker); ok {
		if _, err := seeker.Seek(n, io.SeekCurrent); err != nil {
			return errors.Wrap(err, "can't skip block payload")
		}
	} else {
		copied, err := io.CopyN(io.Discard, br.r, n)
		if err != nil {
			br.offset += copied
			if errors.Is(err, io.EOF) {
				return formatErrorf(br.offset, "unexpected end of data")
			}
			return errors.Wrap(err, "can't skip block payload")
		}
	}
	br.offset += n
	br.remaining -= n
	return nil
}

// expectEnd fails unless the underlying stream ends where the declared payload does
func (br *blockReader) expectEnd() error {
	n, err := io.ReadFull(br.r, br.scratch[:1])
	if n > 0 {
		return formatErrorf(br.offset, "data after declared payload of %d bytes", br.offset-HeaderSize)
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return errors.Wrap(err, "can't read container")
	}
	return nil
}

func (br *blockReader) u8() (uint8, error) {
	if err := br.read(br.scratch[:1]); err != nil {
		return 0, err
	}
	return br.scratch[0], nil
}

func (br *blockReader) u16() (uint16, error) {
	if err := br.read(br.scratch[:2]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(br.scratch[:]), nil
}

func (br *blockReader) u32() (uint32, error) {
	if err := br.read(br.scratch[:4]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(br.scratch[:]), nil
}

func (br *blockReader) f64() (float64, error) {
	if err := br.read(br.scratch[:8]); err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(br.scratch[:])), nil
}

func (br *blockReader) bytes(n int64) ([]byte, error) {
	if err := br.need(n); err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if err := br.read(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (br *blockReader) bool() (bool, error) {
	offset := br.offset
	v, err := br.u8()
	if err != nil {
		return false, err
	}
	if v > 1 {
		return false, formatErrorf(offset, "boolean byte must be 0 or 1, got %d", v)
	}
	return v == 1, nil
}

func (br *blockReader) str16() (string, error) {
	size, err := br.u16()
	if err != nil {
		return "", err
	}
	offset := br.offset
	raw, err := br.bytes(int64(size))
	if err != nil {
		return "", err
	}
	if !utf8.Valid(raw) {
		return "", formatErrorf(offset, "string is not valid UTF-8")
	}
	return string(raw), nil
}

// readFrameHeader reads start/end/count of a FRAMES block and checks they agree
func (br *blockReader) readFrameHeader() (int, int, error) {
	offset := br.offset
	start, err := br.u32()
	if err != nil {
		return 0, 0, err
	}
	end, err := br.u32()
	if err != nil {
		return 0, 0, err
	}
	count, err := br.u32()
	if err != nil {
		return 0, 0, err
	}
	if count == 0 {
		return 0, 0, formatErrorf(offset, "frame block [%d, %d] has no boxes", start, end)
	}
	if uint64(start)+uint64(count)-1 != uint64(end) {
		return 0, 0, formatErrorf(offset, "frame block [%d, %d] declares %d boxes", start, end, count)
	}
	return int(start), int(count), nil
}

func (br *blockReader) readFrames(coordType CoordType) (FrameRun, error) {
	start, count, err := br.readFrameHeader()
	if err != nil {
		return FrameRun{}, err
	}
	valueSize := coordType.Size()
	raw, err := br.bytes(int64(count) * int64(coordType.BoxSize()))
	if err != nil {
		return FrameRun{}, err
	}
	boxes := make([]BBox, count)
	for i := range boxes {
		values := raw[i*4*valueSize:]
		boxes[i] = BBox{
			X:      coordType.get(values),
			Y:      coordType.get(values[valueSize:]),
			Width:  coordType.get(values[2*valueSize:]),
			Height: coordType.get(values[3*valueSize:]),
		}
	}
	return FrameRun{Start: start, Boxes: boxes}, nil
}

func (br *blockReader) readZone() (zone Zone, legacy bool, err error) {
	zone = Zone{Active: true}
	if zone.Name, err = br.str16(); err != nil {
		return Zone{}, false, err
	}
	if zone.Time, err = br.f64(); err != nil {
		return Zone{}, false, err
	}
	if zone.Distance, err = br.f64(); err != nil {
		return Zone{}, false, err
	}
	if zone.Color, err = br.str16(); err != nil {
		return Zone{}, false, err
	}
	alphaOffset := br.offset
	if zone.Alpha, err = br.u8(); err != nil {
		return Zone{}, false, err
	}
	if zone.Alpha > 100 {
		return Zone{}, false, formatErrorf(alphaOffset, "zone %q: alpha %d is out of [0, 100]", zone.Name, zone.Alpha)
	}
	// Files written before the active flag existed end the record here.
	// Such a record carries no geometry and is reported with legacy set.
	if br.remaining == 0 {
		return zone, true, nil
	}
	if zone.Active, err = br.bool(); err != nil {
		return Zone{}, false, err
	}
	kind, err := br.u8()
	if err != nil {
		return Zone{}, false, err
	}
	size, err := br.u16()
	if err != nil {
		return Zone{}, false, err
	}
	payloadOffset := br.offset
	payload, err := br.bytes(int64(size))
	if err != nil {
		return Zone{}, false, err
	}
	zone.Geometry, err = DecodeGeometry(GeometryKind(kind), payload)
	if err != nil {
		return Zone{}, false, formatErrorf(payloadOffset, "zone %q: %v", zone.Name, err)
	}
	if zone.Geometry == nil {
		zone.rawKind = GeometryKind(kind)
		zone.rawPayload = payload
	}
	return zone, false, nil
}

// skipZone walks over a STATS block using only its length fields
func (br *blockReader) skipZone() error {
	nameSize, err := br.u16()
	if err != nil {
		return err
	}
	if err := br.skip(int64(nameSize) + 16); err != nil {
		return err
	}
	colorSize, err := br.u16()
	if err != nil {
		return err
	}
	// color + alpha
	if err := br.skip(int64(colorSize) + 1); err != nil {
		return err
	}
	if br.remaining == 0 {
		return nil
	}
	// active + geometry kind
	if err := br.skip(2); err != nil {
		return err
	}
	geometrySize, err := br.u16()
	if err != nil {
		return err
	}
	return br.skip(int64(geometrySize))
}

func (br *blockReader) readMetadata(flags map[uint8]bool) error {
	count, err := br.u8()
	if err != nil {
		return err
	}
	for i := 0; i < int(count); i++ {
		key, err := br.u8()
		if err != nil {
			return err
		}
		value, err := br.bool()
		if err != nil {
			return err
		}
		flags[key] = value
	}
	return nil
}

// decoded is container state parsed from a stream, committed only when parsing succeeds
type decoded struct {
	coordType CoordType
	sequence  *FrameSequence
	zones     []Zone
	flags     map[uint8]bool
}

// decode parses a full container. ok is false when the stream is shorter than a header.
func decode(r io.Reader, length int64) (*decoded, bool, error) {
	h, ok, err := readHeader(r, length)
	if err != nil || !ok {
		return nil, false, err
	}
	result := &decoded{
		coordType: h.coordType,
		sequence:  NewFrameSequence(),
		flags:     make(map[uint8]bool),
	}
	br := newBlockReader(r, h)
	metadataSeen := false
	for br.remaining > 0 {
		tagOffset := br.offset
		tag, err := br.u8()
		if err != nil {
			return nil, false, err
		}
		switch BlockType(tag) {
		case BlockFrames:
			run, err := br.readFrames(h.coordType)
			if err != nil {
				return nil, false, err
			}
			if _, last, ok := result.sequence.Bounds(); ok && run.Start <= last {
				return nil, false, formatErrorf(tagOffset, "frame block [%d, %d] overlaps or precedes frames up to %d", run.Start, run.End(), last)
			}
			result.sequence.appendDecoded(run)
		case BlockStats:
			zone, legacy, err := br.readZone()
			if err != nil {
				return nil, false, err
			}
			if legacy {
				// nothing to test points against and nothing to write back
				continue
			}
			result.zones = append(result.zones, zone)
		case BlockMetadata:
			if metadataSeen {
				return nil, false, formatErrorf(tagOffset, "duplicate metadata block")
			}
			metadataSeen = true
			if err := br.readMetadata(result.flags); err != nil {
				return nil, false, err
			}
		default:
			return nil, false, formatErrorf(tagOffset, "unknown block tag %d", tag)
		}
	}
	if length < 0 {
		if err := br.expectEnd(); err != nil {
			return nil, false, err
		}
	}
	return result, true, nil
}

// readMarked returns the FlagMarked value of the first METADATA block, skipping
// FRAMES and STATS payloads without decoding them.
func readMarked(r io.Reader, length int64) (bool, error) {
	h, ok, err := readHeader(r, length)
	if err != nil || !ok {
		return false, err
	}
	br := newBlockReader(r, h)
	for br.remaining > 0 {
		tagOffset := br.offset
		tag, err := br.u8()
		if err != nil {
			return false, err
		}
		switch BlockType(tag) {
		case BlockFrames:
			_, count, err := br.readFrameHeader()
			if err != nil {
				return false, err
			}
			if err := br.skip(int64(count) * int64(h.coordType.BoxSize())); err != nil {
				return false, err
			}
		case BlockStats:
			if err := br.skipZone(); err != nil {
				return false, err
			}
		case BlockMetadata:
			flags := make(map[uint8]bool)
			if err := br.readMetadata(flags); err != nil {
				return false, err
			}
			return flags[FlagMarked], nil
		default:
			return false, formatErrorf(tagOffset, "unknown block tag %d", tag)
		}
	}
	return false, nil
}
