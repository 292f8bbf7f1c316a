package mor

import (
	"bytes"
	"encoding/binary"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
)

var zoneCmp = cmp.AllowUnexported(Zone{})

func le16(v uint16) []byte { return binary.LittleEndian.AppendUint16(nil, v) }

func le32(v uint32) []byte { return binary.LittleEndian.AppendUint32(nil, v) }

func lef64(v float64) []byte { return binary.LittleEndian.AppendUint64(nil, math.Float64bits(v)) }

func lestr(s string) []byte { return append(le16(uint16(len(s))), s...) }

// rawContainer prepends a valid header to hand-made body parts
func rawContainer(coordType CoordType, parts ...[]byte) []byte {
	body := bytes.Join(parts, nil)
	data := make([]byte, HeaderSize, HeaderSize+len(body))
	putHeader(data, coordType, uint64(len(body)))
	return append(data, body...)
}

func writeTemp(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "video.mor")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("Can't write %s: %v", path, err)
	}
	return path
}

func loadFile(t *testing.T, path string) *Container {
	t.Helper()
	c := NewContainer(path)
	if err := c.Load(); err != nil {
		t.Fatalf("Can't load %s: %v", path, err)
	}
	return c
}

func checkEmpty(t *testing.T, c *Container) {
	t.Helper()
	if n := len(c.Runs()); n != 0 {
		t.Errorf("Expected no runs, got %d", n)
	}
	if n := len(c.Zones()); n != 0 {
		t.Errorf("Expected no zones, got %d", n)
	}
	if n := len(c.Flags()); n != 0 {
		t.Errorf("Expected no flags, got %d", n)
	}
}

func TestSaveLoadFixedScenario(t *testing.T) {
	path := filepath.Join(t.TempDir(), "video.mor")
	c := NewContainer(path)
	if err := c.SetCoordType(CoordFloat64); err != nil {
		t.Fatal(err)
	}
	first := NewBBox(10.25, 20.5, 30, 40)
	second := NewBBox(11, 21, 31.125, 41)
	c.AddFrames(0, []BBox{first, second})
	c.AddZone(NewZone("Z", Rectangle{X: 0, Y: 0, Width: 100, Height: 100}))
	c.SetMarked(true)
	if err := c.Save(); err != nil {
		t.Fatalf("Can't save: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	// header + FRAMES(1+12+2*32) + STATS(66) + METADATA(4)
	correctSize := HeaderSize + 77 + 66 + 4
	if len(data) != correctSize {
		t.Fatalf("Expected file of %d bytes, got %d", correctSize, len(data))
	}
	if data[0] != MagicByte || data[1] != Version || data[HeaderSize-1] != byte(CoordFloat64) {
		t.Errorf("Wrong header: % X", data[:HeaderSize])
	}
	if payload := binary.LittleEndian.Uint64(data[2:]); payload != uint64(correctSize-HeaderSize) {
		t.Errorf("Expected payload size %d, got %d", correctSize-HeaderSize, payload)
	}

	loaded := loadFile(t, path)
	if loaded.CoordType() != CoordFloat64 {
		t.Errorf("Expected coordinate type %s, got %s", CoordFloat64, loaded.CoordType())
	}
	correctRuns := []FrameRun{{Start: 0, Boxes: []BBox{first, second}}}
	if diff := cmp.Diff(correctRuns, loaded.Runs()); diff != "" {
		t.Errorf("Wrong runs (-want +got):\n%s", diff)
	}
	correctZones := []Zone{{
		Name:     "Z",
		Color:    DefaultZoneColor,
		Alpha:    100,
		Active:   true,
		Geometry: Rectangle{X: 0, Y: 0, Width: 100, Height: 100},
	}}
	if diff := cmp.Diff(correctZones, loaded.Zones(), zoneCmp); diff != "" {
		t.Errorf("Wrong zones (-want +got):\n%s", diff)
	}
	if !loaded.Marked() {
		t.Error("Expected marked flag after load")
	}

	marked, err := NewContainer(path).LoadMetaOnly()
	if err != nil {
		t.Fatalf("Can't read metadata: %v", err)
	}
	if !marked {
		t.Error("Expected marked flag from LoadMetaOnly")
	}
}

func TestEncodeLayout(t *testing.T) {
	c := NewContainer("")
	if err := c.SetCoordType(CoordUint8); err != nil {
		t.Fatal(err)
	}
	c.AddFrames(2, []BBox{NewBBox(1, 2, 3, 4)})
	c.SetMarked(true)

	var buf bytes.Buffer
	if err := c.Encode(&buf); err != nil {
		t.Fatalf("Can't encode: %v", err)
	}
	correctBytes := []byte{
		0x4D, 0x01, 0x15, 0, 0, 0, 0, 0, 0, 0, 0x00,
		0x01, 2, 0, 0, 0, 2, 0, 0, 0, 1, 0, 0, 0, 1, 2, 3, 4,
		0x03, 0x01, 0x01, 0x01,
	}
	if diff := cmp.Diff(correctBytes, buf.Bytes()); diff != "" {
		t.Errorf("Wrong layout (-want +got):\n%s", diff)
	}
}

func TestEncodeSeekableMatchesBuffered(t *testing.T) {
	path := filepath.Join(t.TempDir(), "video.mor")
	c := NewContainer(path)
	c.AddFrames(3, []BBox{NewBBox(1, 2, 3, 4), NewBBox(5, 6, 7, 8)})
	c.AddFrames(10, []BBox{NewBBox(0.5, 0.25, 100, 200)})
	c.AddZone(NewZone("ring", AnnulusInRect(0, 0, 50, 50, 0.3)))
	c.SetFlag(7, false)
	if err := c.Save(); err != nil {
		t.Fatalf("Can't save: %v", err)
	}
	saved, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := c.Encode(&buf); err != nil {
		t.Fatalf("Can't encode: %v", err)
	}
	if !bytes.Equal(saved, buf.Bytes()) {
		t.Errorf("Seekable and buffered encodings differ:\n% X\n% X", saved, buf.Bytes())
	}
}

func TestLoadMissingFile(t *testing.T) {
	c := NewContainer(filepath.Join(t.TempDir(), "absent.mor"))
	c.AddFrames(0, []BBox{NewBBox(1, 1, 1, 1)})
	if err := c.Load(); err != nil {
		t.Fatalf("Missing file should not be an error: %v", err)
	}
	checkEmpty(t, c)
	marked, err := c.LoadMetaOnly()
	if err != nil || marked {
		t.Errorf("Expected (false, nil) for missing file, got (%v, %v)", marked, err)
	}
}

func TestLoadShortFile(t *testing.T) {
	path := writeTemp(t, []byte{MagicByte, Version, 0, 0, 0})
	c := NewContainer(path)
	if err := c.Load(); err != nil {
		t.Fatalf("Truncated header should not be an error: %v", err)
	}
	checkEmpty(t, c)
	marked, err := c.LoadMetaOnly()
	if err != nil || marked {
		t.Errorf("Expected (false, nil) for truncated header, got (%v, %v)", marked, err)
	}
}

func TestLoadMalformed(t *testing.T) {
	good := rawContainer(CoordFloat64, []byte{3, 1, 1, 1})
	badMagic := bytes.Clone(good)
	badMagic[0] = 0x4E
	badVersion := bytes.Clone(good)
	badVersion[1] = 2
	badCoord := bytes.Clone(good)
	badCoord[HeaderSize-1] = 6
	extraByte := append(bytes.Clone(good), 0)

	cases := map[string][]byte{
		"bad magic":          badMagic,
		"bad version":        badVersion,
		"bad coord type":     badCoord,
		"size mismatch":      extraByte,
		"unknown tag":        rawContainer(CoordFloat64, []byte{9}),
		"truncated frames":   rawContainer(CoordUint8, []byte{1}, le32(0), le32(1), le32(2), []byte{1, 2, 3, 4, 5, 6}),
		"frame count":        rawContainer(CoordUint8, []byte{1}, le32(0), le32(5), le32(1), []byte{1, 2, 3, 4}),
		"empty frame block":  rawContainer(CoordUint8, []byte{1}, le32(0), le32(0), le32(0)),
		"overlapping blocks": rawContainer(CoordUint8, []byte{1}, le32(4), le32(4), le32(1), []byte{1, 2, 3, 4}, []byte{1}, le32(2), le32(4), le32(3), make([]byte, 12)),
		"duplicate metadata": rawContainer(CoordUint8, []byte{3, 1, 1, 1}, []byte{3, 1, 1, 0}),
		"bad boolean":        rawContainer(CoordUint8, []byte{3, 1, 1, 2}),
		"truncated metadata": rawContainer(CoordUint8, []byte{3, 2, 1, 1}),
		"bad alpha":          rawContainer(CoordUint8, []byte{2}, lestr("Z"), lef64(0), lef64(0), lestr("#FFF"), []byte{101}),
		"bad utf8 name":      rawContainer(CoordUint8, []byte{2}, lestr("\xff"), lef64(0), lef64(0), lestr("#FFF"), []byte{50}),
		"short geometry":     rawContainer(CoordUint8, []byte{2}, lestr("Z"), lef64(0), lef64(0), lestr("#FFF"), []byte{50, 1, 0}, le16(8), lef64(1)),
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeTemp(t, data)
			c := NewContainer(path)
			c.AddFrames(0, []BBox{NewBBox(1, 1, 1, 1)})
			c.AddZone(NewZone("stale", Rectangle{}))
			c.SetMarked(true)
			err := c.Load()
			if err == nil {
				t.Fatal("Expected error")
			}
			if !IsFormatError(err) {
				t.Errorf("Expected FormatError, got %v", err)
			}
			checkEmpty(t, c)
		})
	}
}

func TestLoadMetaOnlyMalformed(t *testing.T) {
	cases := map[string][]byte{
		"unknown tag":   rawContainer(CoordFloat64, []byte{9}, []byte{3, 1, 1, 1}),
		"skip too far":  rawContainer(CoordUint8, []byte{1}, le32(0), le32(9), le32(10), []byte{1, 2, 3, 4}),
		"size mismatch": append(rawContainer(CoordUint8, []byte{3, 1, 1, 1}), 0, 0),
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewContainer(writeTemp(t, data)).LoadMetaOnly()
			if !IsFormatError(err) {
				t.Errorf("Expected FormatError, got %v", err)
			}
		})
	}
}

func TestLoadLegacyZone(t *testing.T) {
	data := rawContainer(CoordFloat64,
		[]byte{1}, le32(3), le32(3), le32(1), lef64(1), lef64(2), lef64(3), lef64(4),
		[]byte{2}, lestr("old"), lef64(12.5), lef64(300), lestr("#00FF00"), []byte{40},
	)
	path := writeTemp(t, data)
	c := loadFile(t, path)
	// Record without geometry is parsed and skipped
	if n := len(c.Zones()); n != 0 {
		t.Errorf("Expected no zones, got %d", n)
	}
	correctRuns := []FrameRun{{Start: 3, Boxes: []BBox{NewBBox(1, 2, 3, 4)}}}
	if diff := cmp.Diff(correctRuns, c.Runs()); diff != "" {
		t.Errorf("Wrong runs (-want +got):\n%s", diff)
	}

	marked, err := NewContainer(path).LoadMetaOnly()
	if err != nil || marked {
		t.Errorf("Expected (false, nil), got (%v, %v)", marked, err)
	}

	c.SetMarked(true)
	if err := c.Save(); err != nil {
		t.Fatalf("Can't save container loaded from old file: %v", err)
	}
	reloaded := loadFile(t, path)
	if !reloaded.Marked() {
		t.Error("Expected marked container after save")
	}
	if diff := cmp.Diff(correctRuns, reloaded.Runs()); diff != "" {
		t.Errorf("Wrong runs after save (-want +got):\n%s", diff)
	}
}

func TestUnknownGeometryPreserved(t *testing.T) {
	data := rawContainer(CoordFloat32,
		[]byte{2}, lestr("future"), lef64(1), lef64(2), lestr("#123456"), []byte{100, 0, 7}, le16(3), []byte{9, 8, 7},
	)
	path := writeTemp(t, data)
	c := loadFile(t, path)
	zones := c.Zones()
	if len(zones) != 1 {
		t.Fatalf("Expected 1 zone, got %d", len(zones))
	}
	if zones[0].Geometry != nil {
		t.Errorf("Expected nil geometry for unknown kind, got %+v", zones[0].Geometry)
	}
	if zones[0].Active {
		t.Error("Expected inactive zone")
	}
	if zones[0].Contains(0, 0) {
		t.Error("Zone without known geometry must contain nothing")
	}

	if err := c.Save(); err != nil {
		t.Fatalf("Can't save: %v", err)
	}
	saved, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, saved) {
		t.Errorf("Unknown geometry was not kept verbatim:\n% X\n% X", data, saved)
	}
}

func TestSaveZoneWithoutGeometry(t *testing.T) {
	dir := t.TempDir()
	c := NewContainer(filepath.Join(dir, "video.mor"))
	c.AddZone(Zone{Name: "empty", Color: DefaultZoneColor, Alpha: 10})
	if err := c.Save(); err == nil {
		t.Error("Expected error for zone without geometry")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("Failed save must leave nothing behind, found %d entries", len(entries))
	}
}

func TestIntegerCoordTypes(t *testing.T) {
	for _, coordType := range []CoordType{CoordUint8, CoordUint16, CoordUint32, CoordUint64} {
		t.Run(coordType.String(), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "video.mor")
			c := NewContainer(path)
			if err := c.SetCoordType(coordType); err != nil {
				t.Fatal(err)
			}
			c.AddFrames(0, []BBox{NewBBox(1.4, 2.6, 0, 255)})
			if err := c.Save(); err != nil {
				t.Fatalf("Can't save: %v", err)
			}
			loaded := loadFile(t, path)
			got, ok := loaded.Frame(0)
			if !ok {
				t.Fatal("Frame 0 is missing")
			}
			if correct := NewBBox(1, 3, 0, 255); got != correct {
				t.Errorf("Expected %v, got %v", correct, got)
			}
		})
	}
}

func TestCoordinateOutOfRange(t *testing.T) {
	cases := []struct {
		coordType CoordType
		box       BBox
	}{
		{CoordUint8, NewBBox(256, 0, 0, 0)},
		{CoordUint8, NewBBox(-1, 0, 0, 0)},
		{CoordUint16, NewBBox(0, 70000, 0, 0)},
		{CoordUint32, NewBBox(0, 0, math.NaN(), 0)},
		{CoordUint64, NewBBox(0, 0, 0, math.Inf(1))},
	}
	for _, tc := range cases {
		c := NewContainer("")
		if err := c.SetCoordType(tc.coordType); err != nil {
			t.Fatal(err)
		}
		c.AddFrames(0, []BBox{tc.box})
		err := c.Encode(&bytes.Buffer{})
		if !errors.Is(err, ErrCoordinateRange) {
			t.Errorf("%s %v: expected ErrCoordinateRange, got %v", tc.coordType, tc.box, err)
		}
	}
}

func TestSaveNegativeFrame(t *testing.T) {
	c := NewContainer(filepath.Join(t.TempDir(), "video.mor"))
	c.AddFrames(-2, []BBox{NewBBox(1, 1, 1, 1)})
	if err := c.Save(); err == nil {
		t.Error("Expected error for negative frame index")
	}
}

func TestSetCoordTypeInvalid(t *testing.T) {
	c := NewContainer("")
	if err := c.SetCoordType(CoordType(6)); err == nil {
		t.Error("Expected error for unknown coordinate type")
	}
	if c.CoordType() != DefaultCoordType {
		t.Errorf("Expected %s to stay, got %s", DefaultCoordType, c.CoordType())
	}
}

func TestParseCoordType(t *testing.T) {
	cases := map[string]CoordType{
		"uint8":   CoordUint8,
		"uint64":  CoordUint64,
		"float32": CoordFloat32,
		"float":   CoordFloat32,
		"double":  CoordFloat64,
	}
	for name, correct := range cases {
		got, err := ParseCoordType(name)
		if err != nil {
			t.Errorf("Can't parse %q: %v", name, err)
			continue
		}
		if got != correct {
			t.Errorf("%q: expected %s, got %s", name, correct, got)
		}
	}
	if _, err := ParseCoordType("int128"); err == nil {
		t.Error("Expected error for unknown name")
	}
}

func TestLoadMetaOnlyEquivalence(t *testing.T) {
	build := map[string]func(c *Container){
		"no metadata": func(c *Container) {
			c.AddFrames(0, []BBox{NewBBox(1, 2, 3, 4)})
		},
		"marked false": func(c *Container) {
			c.AddFrames(100, []BBox{NewBBox(1, 2, 3, 4)})
			c.SetMarked(false)
		},
		"other key only": func(c *Container) {
			c.SetFlag(2, true)
		},
		"marked with zones": func(c *Container) {
			c.AddFrames(0, []BBox{NewBBox(1, 2, 3, 4), NewBBox(5, 6, 7, 8)})
			c.AddFrames(50, []BBox{NewBBox(1, 2, 3, 4)})
			c.AddZone(NewZone("a", Ellipse{CX: 1, CY: 1, RX: 2, RY: 2}))
			c.AddZone(NewZone("b", AnnulusInRect(0, 0, 10, 10, 0.5)))
			c.SetFlag(0, false)
			c.SetMarked(true)
		},
	}
	for coordType := CoordUint8; coordType <= CoordFloat64; coordType++ {
		for name, fill := range build {
			t.Run(coordType.String()+"/"+name, func(t *testing.T) {
				path := filepath.Join(t.TempDir(), "video.mor")
				c := NewContainer(path)
				if err := c.SetCoordType(coordType); err != nil {
					t.Fatal(err)
				}
				fill(c)
				if err := c.Save(); err != nil {
					t.Fatalf("Can't save: %v", err)
				}
				full := loadFile(t, path)
				if full.CoordType() != coordType {
					t.Fatalf("Expected %s, got %s", coordType, full.CoordType())
				}
				marked, err := NewContainer(path).LoadMetaOnly()
				if err != nil {
					t.Fatalf("Can't read metadata: %v", err)
				}
				if marked != full.Marked() {
					t.Errorf("LoadMetaOnly gave %v while Load gave %v", marked, full.Marked())
				}
			})
		}
	}
}

func TestReadMarked(t *testing.T) {
	c := NewContainer("")
	c.AddFrames(0, []BBox{NewBBox(1, 2, 3, 4)})
	c.AddZone(NewZone("a", Rectangle{Width: 1, Height: 1}))
	c.SetMarked(true)
	var buf bytes.Buffer
	if err := c.Encode(&buf); err != nil {
		t.Fatal(err)
	}
	marked, err := ReadMarked(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("Can't read metadata: %v", err)
	}
	if !marked {
		t.Error("Expected marked flag")
	}
}

func TestDecodeStream(t *testing.T) {
	data := rawContainer(CoordUint16,
		[]byte{1}, le32(5), le32(5), le32(1), le16(1), le16(2), le16(3), le16(4),
		[]byte{1}, le32(6), le32(7), le32(2), le16(5), le16(6), le16(7), le16(8), le16(9), le16(10), le16(11), le16(12),
	)
	c := NewContainer("")
	if err := c.Decode(bytes.NewReader(data)); err != nil {
		t.Fatalf("Can't decode: %v", err)
	}
	// adjacent blocks are merged while loading
	correctRuns := []FrameRun{{Start: 5, Boxes: []BBox{NewBBox(1, 2, 3, 4), NewBBox(5, 6, 7, 8), NewBBox(9, 10, 11, 12)}}}
	if diff := cmp.Diff(correctRuns, c.Runs()); diff != "" {
		t.Errorf("Wrong runs (-want +got):\n%s", diff)
	}
}

func TestDecodeStreamLengthMismatch(t *testing.T) {
	valid := rawContainer(CoordFloat32,
		[]byte{1}, le32(0), le32(0), le32(1), le32(math.Float32bits(1)), le32(math.Float32bits(2)), le32(math.Float32bits(3)), le32(math.Float32bits(4)),
		[]byte{3, 1, FlagMarked, 1},
	)
	stale := bytes.Clone(valid)
	putHeader(stale, CoordFloat32, 0)
	trailing := append(bytes.Clone(valid), 9, 9, 9)

	cases := map[string][]byte{
		"stale payload size": stale,
		"trailing bytes":     trailing,
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			c := NewContainer("")
			c.AddFrames(0, []BBox{NewBBox(1, 1, 1, 1)})
			err := c.Decode(bytes.NewReader(data))
			if !IsFormatError(err) {
				t.Errorf("Expected format error, got %v", err)
			}
			checkEmpty(t, c)

			_, err = ReadMarked(bytes.NewReader(data))
			if !IsFormatError(err) {
				t.Errorf("Expected format error from ReadMarked, got %v", err)
			}
		})
	}

	c := NewContainer("")
	if err := c.Decode(bytes.NewReader(valid)); err != nil {
		t.Fatalf("Can't decode: %v", err)
	}
	if !c.Marked() || len(c.Runs()) != 1 {
		t.Errorf("Expected one run and marked container, got %d runs and marked=%v", len(c.Runs()), c.Marked())
	}
}

func TestSaveLoadRandom(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 5))
	path := filepath.Join(t.TempDir(), "video.mor")
	c := NewContainer(path)
	if err := c.SetCoordType(CoordFloat64); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 40; i++ {
		input := make([]BBox, 1+rng.IntN(30))
		for j := range input {
			input[j] = NewBBox(rng.Float64()*1920, rng.Float64()*1080, rng.Float64()*200, rng.Float64()*200)
		}
		c.AddFrames(rng.IntN(2000), input)
	}
	zones := []Zone{
		NewZone("rect", Rectangle{X: 1, Y: 2, Width: 3, Height: 4}),
		NewZone("ellipse", EllipseInRect(10, 10, 40, 20)),
		NewZone("ring", AnnulusInRect(5, 5, 100, 80, 0.25)),
	}
	zones[1].Active = false
	zones[2].Time, zones[2].Distance, zones[2].Alpha, zones[2].Color = 3.75, 812.5, 0, "#000000"
	c.SetZones(zones)
	c.SetFlag(FlagMarked, true)
	c.SetFlag(4, false)
	c.SetFlag(200, true)
	if err := c.Save(); err != nil {
		t.Fatalf("Can't save: %v", err)
	}

	loaded := loadFile(t, path)
	if diff := cmp.Diff(c.Runs(), loaded.Runs()); diff != "" {
		t.Errorf("Wrong runs (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(zones, loaded.Zones(), zoneCmp); diff != "" {
		t.Errorf("Wrong zones (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(c.Flags(), loaded.Flags()); diff != "" {
		t.Errorf("Wrong flags (-want +got):\n%s", diff)
	}
}

func TestConcurrentAddFramesSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "video.mor")
	c := NewContainer(path)
	const frames = 500

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < frames; i++ {
			c.AddFrames(i, []BBox{NewBBox(float64(i), 0, 10, 10)})
		}
	}()
	for i := 0; i < 20; i++ {
		if err := c.Save(); err != nil {
			t.Errorf("Can't save while frames are added: %v", err)
		}
		snapshot := NewContainer(path)
		if err := snapshot.Load(); err != nil {
			t.Errorf("Can't load intermediate save: %v", err)
		}
	}
	wg.Wait()

	if err := c.Save(); err != nil {
		t.Fatalf("Can't save: %v", err)
	}
	loaded := loadFile(t, path)
	runs := loaded.Runs()
	if len(runs) != 1 || runs[0].Len() != frames {
		t.Errorf("Expected single run of %d frames, got %d runs", frames, len(runs))
	}
}
