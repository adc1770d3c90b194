package darkstar

// chunkAlignDword marks a chunk whose content is padded to a 4-byte boundary
// instead of the usual 2-byte boundary.
const chunkAlignDword = 0x80000000

// ChunkHeader is the 8-byte framing record delimiting nested chunks: a 4-byte
// tag followed by a 4-byte size whose high bit selects the alignment padding.
type ChunkHeader struct {
	Tag     uint32
	RawSize uint32
}

// ReadChunkHeader reads one chunk header from the stream.
func ReadChunkHeader(ms *MemStream) (ChunkHeader, error) {
	start := ms.Position()
	tag, err := ms.ReadU32()
	if err != nil {
		return ChunkHeader{}, err
	}
	size, err := ms.ReadU32()
	if err != nil {
		ms.pos = start
		return ChunkHeader{}, err
	}
	return ChunkHeader{Tag: tag, RawSize: size}, nil
}

// Size returns the padded content size in bytes.
func (h ChunkHeader) Size() uint32 {
	if h.RawSize&chunkAlignDword != 0 {
		return ((h.RawSize &^ chunkAlignDword) + 3) &^ 3
	}
	return (h.RawSize + 1) &^ 1
}

// SeekToEnd positions the stream just past the chunk, given the offset the
// header was read from. Skipping an unrecognized or version-mismatched chunk
// this way keeps sibling chunks parseable.
func (h ChunkHeader) SeekToEnd(startPos int, ms *MemStream) {
	end := startPos + 8 + int(h.Size())
	if end > ms.Len() {
		end = ms.Len()
	}
	ms.pos = end
}
