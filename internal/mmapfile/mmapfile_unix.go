//go:build darwin || linux

package mmapfile

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// MapReadOnly memory-maps the full current extent of the file for reading.
// The returned Map must be Unmapped before the File is closed.
func (f *File) MapReadOnly() (*Map, error) {
	return f.mapRange(unix.PROT_READ)
}

// MapReadWrite memory-maps the full current extent of the file for reading
// and writing, used by the builder and repair paths to memcpy content
// bytes directly into the backing file.
func (f *File) MapReadWrite() (*Map, error) {
	return f.mapRange(unix.PROT_READ | unix.PROT_WRITE)
}

func (f *File) mapRange(prot int) (*Map, error) {
	if f.mapping != nil {
		return nil, fmt.Errorf("mmapfile: %s is already mapped", f.path)
	}

	size, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if size == 0 {
		// mmap of a zero-length region is rejected by the kernel; the
		// null-digest, size-zero object never needs bytes at all.
		m := &Map{Bytes: nil, owner: f}
		f.mapping = m
		return m, nil
	}

	raw, err := unix.Mmap(int(f.Fd()), 0, int(size), prot, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmapfile: mmap %s (%d bytes): %w", f.path, size, err)
	}

	m := &Map{Bytes: raw, raw: raw, owner: f}
	f.mapping = m
	return m, nil
}

// Unmap releases the mapping. A second call is a no-op that returns nil,
// so callers doing defer-unmap-on-every-path don't need to track state.
func (m *Map) Unmap() error {
	if m == nil || m.owner == nil {
		return nil
	}
	owner := m.owner
	m.owner = nil
	owner.mapping = nil

	if m.raw == nil {
		return nil
	}
	if err := unix.Munmap(m.raw); err != nil {
		return fmt.Errorf("mmapfile: munmap %s: %w", owner.path, err)
	}
	return nil
}
