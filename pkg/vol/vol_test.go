package vol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type testFile struct {
	name     string
	data     []byte
	compress uint8
}

// writeTestVolume assembles a .vol archive on disk: PVOL header pointing at
// the footer, one VBLK block per file, then the string and entry tables.
func writeTestVolume(t *testing.T, path string, files []testFile) {
	t.Helper()

	var buf bytes.Buffer
	le := binary.LittleEndian
	u32 := func(v uint32) { binary.Write(&buf, le, v) }

	// PVOL header; the size field is patched once the footer offset is known.
	u32(tagPVOL)
	u32(0)

	blockOffsets := make([]int32, len(files))
	for i, f := range files {
		blockOffsets[i] = int32(buf.Len())
		u32(0x4B4C4256) // "VBLK"
		u32(uint32(len(f.data)))
		buf.Write(f.data)
		if len(f.data)%2 != 0 {
			buf.WriteByte(0)
		}
	}

	footer := uint32(buf.Len())

	var strData bytes.Buffer
	strOffsets := make([]int32, len(files))
	for i, f := range files {
		strOffsets[i] = int32(strData.Len())
		strData.WriteString(f.name)
		strData.WriteByte(0)
	}
	if strData.Len()%2 != 0 {
		strData.WriteByte(0)
	}
	u32(tagVols)
	u32(uint32(strData.Len()))
	buf.Write(strData.Bytes())

	u32(tagVoli)
	u32(uint32(17 * len(files)))
	for i, f := range files {
		u32(0x300 + uint32(i))
		binary.Write(&buf, le, strOffsets[i])
		binary.Write(&buf, le, blockOffsets[i])
		u32(uint32(len(f.data)))
		buf.WriteByte(f.compress)
	}

	out := buf.Bytes()
	le.PutUint32(out[4:], footer)

	if err := os.WriteFile(path, out, 0644); err != nil {
		t.Fatalf("writing test volume: %v", err)
	}
}

func TestVolumeReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "entities.vol")
	writeTestVolume(t, path, []testFile{
		{name: "lgoblin.dts", data: []byte("shape-bytes")},
		{name: "goblin.dml", data: []byte("materials")},
		{name: "packed.dts", data: []byte("zzz"), compress: CompressLZH},
	})

	v, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer v.Close()

	entries := v.Entries()
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(entries))
	}
	if entries[0].Name != "lgoblin.dts" || entries[0].Size != 11 {
		t.Errorf("entry 0 = %+v", entries[0])
	}

	data, err := v.ReadFile("lgoblin.dts")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "shape-bytes" {
		t.Errorf("ReadFile = %q", data)
	}

	// Lookup is case-insensitive.
	if _, err := v.ReadFile("GOBLIN.DML"); err != nil {
		t.Errorf("case-insensitive lookup failed: %v", err)
	}

	if _, err := v.ReadFile("missing.dts"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := v.ReadFile("packed.dts"); !errors.Is(err, ErrCompressed) {
		t.Errorf("expected ErrCompressed, got %v", err)
	}
}

func TestOpenRejectsBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.vol")
	if err := os.WriteFile(path, []byte("not a volume at all"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path); !errors.Is(err, ErrInvalidVolume) {
		t.Fatalf("expected ErrInvalidVolume, got %v", err)
	}
}

func TestManagerLooseFilesWin(t *testing.T) {
	dir := t.TempDir()
	volPath := filepath.Join(dir, "data.vol")
	writeTestVolume(t, volPath, []testFile{
		{name: "shared.dts", data: []byte("from-volume")},
		{name: "volonly.dts", data: []byte("vol-data")},
	})

	loose := filepath.Join(dir, "loose")
	if err := os.MkdirAll(loose, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(loose, "shared.dts"), []byte("from-disk"), 0644); err != nil {
		t.Fatal(err)
	}

	mgr := NewManager()
	mgr.AddPath(loose)
	if err := mgr.AddVolume(volPath); err != nil {
		t.Fatalf("AddVolume: %v", err)
	}
	defer mgr.Close()

	data, err := mgr.OpenFile("shared.dts")
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	if string(data) != "from-disk" {
		t.Errorf("loose file did not shadow volume entry: %q", data)
	}

	data, err = mgr.OpenFile("volonly.dts")
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	if string(data) != "vol-data" {
		t.Errorf("volume fallback = %q", data)
	}

	if _, err := mgr.OpenFile("nowhere.dts"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestManagerEnumerate(t *testing.T) {
	dir := t.TempDir()
	volPath := filepath.Join(dir, "data.vol")
	writeTestVolume(t, volPath, []testFile{
		{name: "a.dts", data: []byte("a")},
		{name: "b.dml", data: []byte("b")},
		{name: "c.DTS", data: []byte("c")},
	})

	mgr := NewManager()
	if err := mgr.AddVolume(volPath); err != nil {
		t.Fatal(err)
	}
	defer mgr.Close()

	shapes := mgr.Enumerate(".dts")
	if len(shapes) != 2 {
		t.Fatalf("Enumerate(.dts) = %d entries, want 2", len(shapes))
	}
	all := mgr.Enumerate("")
	if len(all) != 3 {
		t.Fatalf("Enumerate() = %d entries, want 3", len(all))
	}
}
