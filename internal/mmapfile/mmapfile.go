// Package mmapfile is a File abstraction supporting open, create,
// read/write, seek/tell, memory map/unmap, set-size, and stat. It is
// grounded on golang.org/x/sys/unix usage in
// bureau-foundation-bureau/lib/artifactstore/cache_device.go, generalized
// from that package's fixed-size read-only cache device to kyla's
// create/grow/map/copy/unmap lifecycle for loose and deployed objects.
//
// Every Map is owned by the File that produced it and must be Unmapped
// before the File is closed;
// Map returns a scoped handle rather than a raw pointer so callers cannot
// outlive the mapping by accident.
package mmapfile

import (
	"fmt"
	"io"
	"os"
)

// File wraps an *os.File with the scoped-map lifecycle kyla needs. It is
// not safe for concurrent use by multiple goroutines without external
// synchronization: kyla gives each object a single writer.
type File struct {
	f       *os.File
	path    string
	mapping *Map
}

// Open opens an existing file for reading.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("mmapfile: open %s: %w", path, err)
	}
	return &File{f: f, path: path}, nil
}

// Create creates (or truncates) a file for reading and writing.
func Create(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("mmapfile: create %s: %w", path, err)
	}
	return &File{f: f, path: path}, nil
}

// OpenReadWrite opens an existing file for both reading and writing,
// without truncating it — used by repair, which rewrites an object file
// already sized to match its ContentObject.
func OpenReadWrite(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("mmapfile: open %s: %w", path, err)
	}
	return &File{f: f, path: path}, nil
}

// Path returns the path the File was opened from.
func (f *File) Path() string { return f.path }

// Stat returns the current file size in bytes.
func (f *File) Stat() (int64, error) {
	fi, err := f.f.Stat()
	if err != nil {
		return 0, fmt.Errorf("mmapfile: stat %s: %w", f.path, err)
	}
	return fi.Size(), nil
}

// SetSize truncates (or extends with a hole) the file to exactly size
// bytes. Used before mapping so the map and the ContentObject's recorded
// size always agree.
func (f *File) SetSize(size int64) error {
	if err := f.f.Truncate(size); err != nil {
		return fmt.Errorf("mmapfile: truncate %s to %d: %w", f.path, size, err)
	}
	return nil
}

// Seek repositions the next Read/Write, returning the new offset (Tell).
func (f *File) Seek(offset int64, whence int) (int64, error) {
	return f.f.Seek(offset, whence)
}

// Tell returns the current offset, equivalent to Seek(0, io.SeekCurrent).
func (f *File) Tell() (int64, error) {
	return f.f.Seek(0, io.SeekCurrent)
}

// Read implements io.Reader.
func (f *File) Read(p []byte) (int, error) { return f.f.Read(p) }

// Write implements io.Writer.
func (f *File) Write(p []byte) (int, error) { return f.f.Write(p) }

// ReadAt implements io.ReaderAt.
func (f *File) ReadAt(p []byte, off int64) (int, error) { return f.f.ReadAt(p, off) }

// WriteAt implements io.WriterAt.
func (f *File) WriteAt(p []byte, off int64) (int, error) { return f.f.WriteAt(p, off) }

// Close closes the underlying file descriptor. The caller must Unmap any
// outstanding Map from this File first; if a mapping is still held, Close
// returns an error and leaves the file open rather than silently leaking
// the mapping.
func (f *File) Close() error {
	if f.mapping != nil {
		return fmt.Errorf("mmapfile: close %s: mapping still held, call Unmap first", f.path)
	}
	if err := f.f.Close(); err != nil {
		return fmt.Errorf("mmapfile: close %s: %w", f.path, err)
	}
	return nil
}

// Map is a scoped handle to a memory-mapped byte range. Bytes are valid
// only between Map and Unmap.
type Map struct {
	Bytes []byte
	owner *File
	raw   []byte // the full OS mapping, which may be larger/offset-aligned
}

// Fd returns the OS file descriptor backing f, for platform mmap calls.
func (f *File) Fd() uintptr { return f.f.Fd() }
