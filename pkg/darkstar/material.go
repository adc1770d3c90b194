package darkstar

import "fmt"

// Material flag bits.
const (
	MaterialFlagMask        = 0xF
	MaterialNull            = 0x0
	MaterialPalette         = 0x1
	MaterialRGB             = 0x2
	MaterialTexture         = 0x3
	MaterialShadingMask     = 0xF00
	MaterialShadingNone     = 0x100
	MaterialShadingFlat     = 0x200
	MaterialShadingSmooth   = 0x300
	MaterialTextureMask     = 0xF000
	MaterialTextureTransp   = 0x1000
)

// Material filename field widths by list version.
const (
	materialNameSizeV1 = 16
	materialNameSizeV2 = 32
)

// Material is one entry of a material list: a texture reference (or flat
// color) plus surface properties.
type Material struct {
	Flags    uint32
	Alpha    float32
	Index    uint32
	RGB      [4]uint8 // last byte is padding
	Filename string

	// v1 and v3+
	Type       uint32
	Elasticity float32
	Friction   float32

	// absent in v2/v3 streams, defaulted to 1 there
	UseDefaultProps uint32
}

func (m *Material) decode(ms *MemStream, version int32) error {
	var err error
	if m.Flags, err = ms.ReadU32(); err != nil {
		return err
	}
	if m.Alpha, err = ms.ReadF32(); err != nil {
		return err
	}
	if m.Index, err = ms.ReadU32(); err != nil {
		return err
	}
	rgb, err := ms.ReadBytes(4)
	if err != nil {
		return err
	}
	copy(m.RGB[:], rgb)

	nameSize := materialNameSizeV2
	if version < 2 {
		nameSize = materialNameSizeV1
	}
	name, err := ms.ReadBytes(nameSize)
	if err != nil {
		return err
	}
	m.Filename = trimAtNul(name)

	if version == 1 || version > 2 {
		if m.Type, err = ms.ReadU32(); err != nil {
			return err
		}
		if m.Elasticity, err = ms.ReadF32(); err != nil {
			return err
		}
		if m.Friction, err = ms.ReadF32(); err != nil {
			return err
		}
	}
	if version != 2 && version != 3 {
		if m.UseDefaultProps, err = ms.ReadU32(); err != nil {
			return err
		}
	} else {
		m.UseDefaultProps = 1
	}
	return nil
}

// MaterialList is a grid of numDetails x numMaterials material entries
// embedded in a shape (or stored standalone as a .dml file).
type MaterialList struct {
	NumDetails uint32
	Materials  []Material
}

// Decode implements Asset.
func (l *MaterialList) Decode(reg *Registry, ms *MemStream, version int32) error {
	var err error
	if l.NumDetails, err = ms.ReadU32(); err != nil {
		return err
	}
	count, err := ms.ReadU32()
	if err != nil {
		return err
	}
	total := uint64(count) * uint64(l.NumDetails)
	// Flags, alpha, index, rgb and the short filename are always present.
	if total*(4+4+4+4+materialNameSizeV1) > uint64(ms.Remaining()) {
		return fmt.Errorf("material list: %d entries exceed stream size", total)
	}
	l.Materials = make([]Material, total)
	for i := range l.Materials {
		if err := l.Materials[i].decode(ms, version); err != nil {
			return fmt.Errorf("material %d: %w", i, err)
		}
	}
	return nil
}
