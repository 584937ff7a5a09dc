package vfs

// noopBackend rejects every operation. Trees constructed purely from
// in-memory snapshots use it so that accidental filesystem access is loud.
type noopBackend struct{}

// NewNoop creates a Vfs whose backend rejects all operations.
func NewNoop() *Vfs {
	return New(noopBackend{})
}

func (noopBackend) Read(string) ([]byte, error)          { return nil, ErrNotSupported }
func (noopBackend) Write(string, []byte) error           { return ErrNotSupported }
func (noopBackend) Rename(string, string) error          { return ErrNotSupported }
func (noopBackend) ReadDir(string) ([]string, error)     { return nil, ErrNotSupported }
func (noopBackend) CreateDir(string) error               { return ErrNotSupported }
func (noopBackend) CreateDirAll(string) error            { return ErrNotSupported }
func (noopBackend) RemoveFile(string) error              { return ErrNotSupported }
func (noopBackend) RemoveDirAll(string) error            { return ErrNotSupported }
func (noopBackend) Metadata(string) (Metadata, error)    { return Metadata{}, ErrNotSupported }
func (noopBackend) Canonicalize(p string) (string, error) { return p, nil }
func (noopBackend) Watch(string) error                   { return ErrNotSupported }
func (noopBackend) Unwatch(string) error                 { return ErrNotSupported }
func (noopBackend) Events() <-chan Event                 { return nil }
func (noopBackend) Close() error                         { return nil }
