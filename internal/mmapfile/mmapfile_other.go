//go:build !darwin && !linux

package mmapfile

import "fmt"

// MapReadOnly falls back to a buffered read on platforms without the
// unix.Mmap primitive.
func (f *File) MapReadOnly() (*Map, error) {
	return f.bufferedMap()
}

// MapReadWrite is the same fallback; writes go through WriteAt instead of
// the mapped bytes on these platforms.
func (f *File) MapReadWrite() (*Map, error) {
	return f.bufferedMap()
}

func (f *File) bufferedMap() (*Map, error) {
	if f.mapping != nil {
		return nil, fmt.Errorf("mmapfile: %s is already mapped", f.path)
	}
	size, err := f.Stat()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, size)
	if size > 0 {
		if _, err := f.f.ReadAt(buf, 0); err != nil {
			return nil, fmt.Errorf("mmapfile: reading %s into memory: %w", f.path, err)
		}
	}
	m := &Map{Bytes: buf, owner: f}
	f.mapping = m
	return m, nil
}

// Unmap releases the mapping, writing back any changes on platforms that
// fell back to a buffered copy.
func (m *Map) Unmap() error {
	if m == nil || m.owner == nil {
		return nil
	}
	owner := m.owner
	m.owner = nil
	owner.mapping = nil
	if len(m.Bytes) == 0 {
		return nil
	}
	if _, err := owner.f.WriteAt(m.Bytes, 0); err != nil {
		return fmt.Errorf("mmapfile: writing back %s: %w", owner.path, err)
	}
	return nil
}
