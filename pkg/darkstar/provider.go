package darkstar

// ResourceProvider resolves a logical file name to its full contents. The
// decoder never touches the filesystem itself; the archive/directory layer
// sits behind this interface.
type ResourceProvider interface {
	OpenFile(name string) ([]byte, error)
}

// LoadObject reads the named file through the provider and decodes the
// persisted object it contains.
func (r *Registry) LoadObject(rp ResourceProvider, name string) (Asset, error) {
	data, err := rp.OpenFile(name)
	if err != nil {
		return nil, err
	}
	return r.CreateFromStream(NewMemStream(data))
}
