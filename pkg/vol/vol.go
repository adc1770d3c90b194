// Package vol provides reading functionality for Darkstar volume (.vol)
// archives and a search-path resource manager over loose files and mounted
// volumes.
package vol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Volume chunk tags.
const (
	tagPVOL = 1280267856 // "PVOL"
	tagVols = 1936486262 // "vols" string table
	tagVoli = 1768714102 // "voli" entry table
)

// Entry compression types. Only uncompressed entries occur in practice.
const (
	CompressNone = 0
	CompressRLE  = 1
	CompressLZSS = 2
	CompressLZH  = 3
)

// Volume errors.
var (
	ErrNotFound      = errors.New("file not found")
	ErrInvalidVolume = errors.New("invalid volume file")
	ErrCompressed    = errors.New("compressed volume entries are not supported")
)

// Entry is one file entry in a volume archive.
type Entry struct {
	Tag      uint32
	Name     string
	Offset   int32
	Size     uint32
	Compress uint8
}

// volumeEntry is the 17-byte on-disk entry record.
type volumeEntry struct {
	Tag       uint32
	PFilename int32
	Offset    int32
	Size      uint32
	Compress  uint8
}

// Volume is an opened .vol archive.
type Volume struct {
	file    *os.File
	name    string
	entries []Entry
}

// Open opens a volume archive for reading.
func Open(path string) (*Volume, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening volume: %w", err)
	}
	v := &Volume{file: file, name: path}
	if err := v.readIndex(); err != nil {
		file.Close()
		return nil, fmt.Errorf("reading volume index: %w", err)
	}
	return v, nil
}

// Close closes the underlying file.
func (v *Volume) Close() error {
	if v.file != nil {
		return v.file.Close()
	}
	return nil
}

// Name returns the path the volume was opened from.
func (v *Volume) Name() string { return v.name }

// Entries returns the archive's file table.
func (v *Volume) Entries() []Entry { return v.entries }

type blockHeader struct {
	Tag  uint32
	Size uint32
}

const blockAlignDword = 0x80000000

func (b blockHeader) paddedSize() uint32 {
	if b.Size&blockAlignDword != 0 {
		return ((b.Size &^ blockAlignDword) + 3) &^ 3
	}
	return (b.Size + 1) &^ 1
}

func (v *Volume) readIndex() error {
	var header blockHeader
	if err := binary.Read(v.file, binary.LittleEndian, &header); err != nil {
		return err
	}
	if header.Tag != tagPVOL {
		return fmt.Errorf("%w: bad magic", ErrInvalidVolume)
	}

	// The PVOL header's raw size is the absolute offset of the footer blocks.
	if _, err := v.file.Seek(int64(header.Size&^blockAlignDword), io.SeekStart); err != nil {
		return err
	}

	if err := binary.Read(v.file, binary.LittleEndian, &header); err != nil {
		return err
	}
	if header.Tag != tagVols {
		return fmt.Errorf("%w: missing string table", ErrInvalidVolume)
	}
	strData := make([]byte, header.paddedSize())
	if _, err := io.ReadFull(v.file, strData); err != nil {
		return err
	}

	if err := binary.Read(v.file, binary.LittleEndian, &header); err != nil {
		return err
	}
	if header.Tag != tagVoli {
		return fmt.Errorf("%w: missing entry table", ErrInvalidVolume)
	}

	const entrySize = 17
	count := int(header.paddedSize()) / entrySize
	v.entries = make([]Entry, 0, count)
	for i := 0; i < count; i++ {
		var raw volumeEntry
		if err := binary.Read(v.file, binary.LittleEndian, &raw); err != nil {
			return err
		}
		name := ""
		if raw.PFilename >= 0 && int(raw.PFilename) < len(strData) {
			name = cstring(strData[raw.PFilename:])
		}
		v.entries = append(v.entries, Entry{
			Tag:      raw.Tag,
			Name:     name,
			Offset:   raw.Offset,
			Size:     raw.Size,
			Compress: raw.Compress,
		})
	}
	return nil
}

// ReadFile extracts a file from the volume by name (case-insensitive).
func (v *Volume) ReadFile(name string) ([]byte, error) {
	for i := range v.entries {
		e := &v.entries[i]
		if !strings.EqualFold(name, e.Name) {
			continue
		}
		if e.Compress != CompressNone {
			return nil, fmt.Errorf("%s: %w", name, ErrCompressed)
		}
		// Entry offsets point at a VBLK chunk; skip its 8-byte header.
		if _, err := v.file.Seek(int64(e.Offset)+8, io.SeekStart); err != nil {
			return nil, err
		}
		data := make([]byte, e.Size)
		if _, err := io.ReadFull(v.file, data); err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
}

func cstring(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
