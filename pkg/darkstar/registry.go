package darkstar

import (
	"errors"
	"fmt"
)

// TagPersist identifies a chunk carrying a named persisted object: the chunk
// content starts with a length-prefixed class name and a version number.
const TagPersist = 1397900624 // "PERS"

// Registry errors.
var (
	ErrUnknownClass = errors.New("unknown persisted class name")
	ErrUnknownTag   = errors.New("unknown chunk tag")
)

// Asset is a persisted object reconstructed from a chunk. Decode receives the
// registry so embedded child assets can be dispatched recursively.
type Asset interface {
	Decode(reg *Registry, ms *MemStream, version int32) error
}

// Registry maps persisted class names and raw chunk tags to constructors.
// It is built explicitly by the loader and passed into every decode call;
// there is no process-wide table.
type Registry struct {
	byName map[string]func() Asset
	byTag  map[uint32]func() Asset
}

// NewRegistry returns a registry with the known shape classes registered.
func NewRegistry() *Registry {
	r := &Registry{
		byName: make(map[string]func() Asset),
		byTag:  make(map[uint32]func() Asset),
	}
	r.RegisterName("TS::Shape", func() Asset { return &Shape{} })
	r.RegisterName("TS::CelAnimMesh", func() Asset { return &CelAnimMesh{} })
	r.RegisterName("TS::MaterialList", func() Asset { return &MaterialList{} })
	return r
}

// RegisterName binds a persisted class name to a constructor.
func (r *Registry) RegisterName(name string, fn func() Asset) {
	r.byName[name] = fn
}

// RegisterTag binds a raw chunk tag to a constructor. This is the compact
// path for well-known embedded types that are framed without a class name.
func (r *Registry) RegisterTag(tag uint32, fn func() Asset) {
	r.byTag[tag] = fn
}

// CreateFromStream reads one chunk and reconstructs the asset it contains.
// Whatever happens, the stream is left positioned at the chunk's declared
// end, so a failed child decode does not break sibling chunks.
func (r *Registry) CreateFromStream(ms *MemStream) (Asset, error) {
	headerStart := ms.Position()
	header, err := ReadChunkHeader(ms)
	if err != nil {
		return nil, err
	}
	defer header.SeekToEnd(headerStart, ms)

	var (
		asset   Asset
		version int32
	)
	if header.Tag == TagPersist {
		className, err := ms.ReadString()
		if err != nil {
			return nil, err
		}
		v, err := ms.ReadU32()
		if err != nil {
			return nil, err
		}
		version = int32(v)
		fn, ok := r.byName[className]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownClass, className)
		}
		asset = fn()
	} else {
		fn, ok := r.byTag[header.Tag]
		if !ok {
			return nil, fmt.Errorf("%w: 0x%08x", ErrUnknownTag, header.Tag)
		}
		asset = fn()
	}

	if err := asset.Decode(r, ms, version); err != nil {
		return nil, err
	}
	return asset, nil
}
