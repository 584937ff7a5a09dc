package vfs

import (
	"sort"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
)

// billyCore implements the non-watch half of Backend over any billy
// filesystem. The OS and in-memory backends embed it.
type billyCore struct {
	fs billy.Filesystem
}

func (b *billyCore) Read(path string) ([]byte, error) {
	return util.ReadFile(b.fs, path)
}

func (b *billyCore) Write(path string, data []byte) error {
	return util.WriteFile(b.fs, path, data, 0o644)
}

func (b *billyCore) Rename(oldPath, newPath string) error {
	return b.fs.Rename(oldPath, newPath)
}

func (b *billyCore) ReadDir(path string) ([]string, error) {
	entries, err := b.fs.ReadDir(path)
	if err != nil {
		return nil, err
	}
	children := make([]string, 0, len(entries))
	for _, entry := range entries {
		children = append(children, b.fs.Join(path, entry.Name()))
	}
	sort.Strings(children)
	return children, nil
}

func (b *billyCore) CreateDir(path string) error {
	return b.fs.MkdirAll(path, 0o755)
}

func (b *billyCore) CreateDirAll(path string) error {
	return b.fs.MkdirAll(path, 0o755)
}

func (b *billyCore) RemoveFile(path string) error {
	return b.fs.Remove(path)
}

func (b *billyCore) RemoveDirAll(path string) error {
	return util.RemoveAll(b.fs, path)
}

func (b *billyCore) Metadata(path string) (Metadata, error) {
	info, err := b.fs.Stat(path)
	if err != nil {
		return Metadata{}, err
	}
	return Metadata{IsFile: !info.IsDir()}, nil
}
