// Package darkstar provides parsers for legacy Darkstar engine asset files,
// most importantly the versioned "persisted shape" (.dts) format and the
// chunked container framing it uses.
package darkstar

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Stream errors.
var (
	ErrShortRead = errors.New("read past end of stream")
	ErrBadSeek   = errors.New("seek past end of stream")
)

// MemStream is a bounds-checked, seekable reader over an in-memory buffer.
// All multi-byte reads are little-endian. A failed read returns an error and
// leaves the position unchanged.
type MemStream struct {
	data []byte
	pos  int
}

// NewMemStream wraps data in a stream positioned at offset 0.
func NewMemStream(data []byte) *MemStream {
	return &MemStream{data: data}
}

// Position returns the current read offset.
func (m *MemStream) Position() int { return m.pos }

// Len returns the total buffer length.
func (m *MemStream) Len() int { return len(m.data) }

// Remaining returns the number of unread bytes.
func (m *MemStream) Remaining() int { return len(m.data) - m.pos }

// AtEnd reports whether the stream is exhausted.
func (m *MemStream) AtEnd() bool { return m.pos >= len(m.data) }

// Seek moves the read offset to pos. Seeking past the end is an error and
// leaves the position unchanged.
func (m *MemStream) Seek(pos int) error {
	if pos < 0 || pos > len(m.data) {
		return ErrBadSeek
	}
	m.pos = pos
	return nil
}

func (m *MemStream) take(n int) ([]byte, error) {
	if n < 0 || m.pos+n > len(m.data) {
		return nil, ErrShortRead
	}
	b := m.data[m.pos : m.pos+n]
	m.pos += n
	return b, nil
}

// ReadBytes reads n raw bytes.
func (m *MemStream) ReadBytes(n int) ([]byte, error) {
	b, err := m.take(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

// Skip advances the position by n bytes.
func (m *MemStream) Skip(n int) error {
	_, err := m.take(n)
	return err
}

// ReadU8 reads one unsigned byte.
func (m *MemStream) ReadU8() (uint8, error) {
	b, err := m.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadU16 reads a little-endian uint16.
func (m *MemStream) ReadU16() (uint16, error) {
	b, err := m.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// ReadU32 reads a little-endian uint32.
func (m *MemStream) ReadU32() (uint32, error) {
	b, err := m.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// ReadI16 reads a little-endian int16.
func (m *MemStream) ReadI16() (int16, error) {
	v, err := m.ReadU16()
	return int16(v), err
}

// ReadI32 reads a little-endian int32.
func (m *MemStream) ReadI32() (int32, error) {
	v, err := m.ReadU32()
	return int32(v), err
}

// ReadF32 reads a little-endian float32.
func (m *MemStream) ReadF32() (float32, error) {
	v, err := m.ReadU32()
	return math.Float32frombits(v), err
}

// ReadVec2 reads two float32 components.
func (m *MemStream) ReadVec2() (mgl32.Vec2, error) {
	b, err := m.take(8)
	if err != nil {
		return mgl32.Vec2{}, err
	}
	return mgl32.Vec2{
		math.Float32frombits(binary.LittleEndian.Uint32(b[0:])),
		math.Float32frombits(binary.LittleEndian.Uint32(b[4:])),
	}, nil
}

// ReadVec3 reads three float32 components.
func (m *MemStream) ReadVec3() (mgl32.Vec3, error) {
	b, err := m.take(12)
	if err != nil {
		return mgl32.Vec3{}, err
	}
	return mgl32.Vec3{
		math.Float32frombits(binary.LittleEndian.Uint32(b[0:])),
		math.Float32frombits(binary.LittleEndian.Uint32(b[4:])),
		math.Float32frombits(binary.LittleEndian.Uint32(b[8:])),
	}, nil
}

// ReadString reads a length-prefixed string: a uint16 byte count followed by
// the content padded to an even byte count. The padding byte, when present,
// is not part of the string.
func (m *MemStream) ReadString() (string, error) {
	start := m.pos
	size, err := m.ReadU16()
	if err != nil {
		return "", err
	}
	realSize := (int(size) + 1) &^ 1
	b, err := m.take(realSize)
	if err != nil {
		m.pos = start
		return "", err
	}
	return trimAtNul(b[:size]), nil
}

func trimAtNul(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
