// Package pkgfile implements the packed-layout package file: a 64-byte
// header followed by concatenated opaque byte ranges indexed entirely by
// the catalog's storage_mapping table. It is grounded on the streaming-copy
// pattern in github.com/oneconcern/datamon/pkg/cafs/writer.go, generalized
// from that package's chunked-leaf writer to a flat "copy N bytes, remember
// the window" writer, since packed content objects are never chunked.
package pkgfile

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/oneconcern/kyla/internal/digest"
	"github.com/oneconcern/kyla/internal/mmapfile"
)

// Tag is the 8-byte ASCII magic at the start of every package file.
var Tag = [8]byte{'K', 'Y', 'L', 'A', 'P', 'K', 'G', 0}

// InitialVersion is the version written by new packages.
const InitialVersion uint64 = 0x0001_0000_0000_0000

// HeaderSize is the fixed size of the package header.
const HeaderSize = 64

// Header is the decoded fixed header of a package file.
type Header struct {
	Version uint64
}

// WriteHeader writes the 64-byte header (8-byte tag, 8-byte LE version, 48
// reserved zero bytes) to w.
func WriteHeader(w io.Writer, version uint64) error {
	var buf [HeaderSize]byte
	copy(buf[0:8], Tag[:])
	binary.LittleEndian.PutUint64(buf[8:16], version)
	// buf[16:64] is already zero.
	if _, err := w.Write(buf[:]); err != nil {
		return fmt.Errorf("pkgfile: writing header: %w", err)
	}
	return nil
}

// ReadHeader reads and validates the 64-byte header from r.
func ReadHeader(r io.Reader) (Header, error) {
	var buf [HeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Header{}, fmt.Errorf("pkgfile: reading header: %w", err)
	}
	if string(buf[0:8]) != string(Tag[:]) {
		return Header{}, fmt.Errorf("pkgfile: bad tag %q, not a kyla package", buf[0:8])
	}
	return Header{Version: binary.LittleEndian.Uint64(buf[8:16])}, nil
}

// Writer appends content bytes to a package file, reporting the byte
// window (offset, length) each Append call occupied so the caller can
// record a storage_mapping row.
type Writer struct {
	f *mmapfile.File
}

// Create creates a new package file and writes its header.
func Create(path string) (*Writer, error) {
	f, err := mmapfile.Create(path)
	if err != nil {
		return nil, err
	}
	if err := WriteHeader(f, InitialVersion); err != nil {
		_ = f.Close()
		return nil, err
	}
	if _, err := f.Seek(HeaderSize, io.SeekStart); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Writer{f: f}, nil
}

// OpenAppend opens an existing package file for appending more objects
// to it, validating the header and seeking to the current end of file.
// Used by Configure on a packed repository, which grows the package
// rather than rewriting it.
func OpenAppend(path string) (*Writer, error) {
	f, err := mmapfile.OpenReadWrite(path)
	if err != nil {
		return nil, err
	}
	if _, err := ReadHeader(f); err != nil {
		_ = f.Close()
		return nil, err
	}
	size, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if _, err := f.Seek(size, io.SeekStart); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Writer{f: f}, nil
}

// Append streams src into the package, returning the byte offset (taken
// from Tell() before the copy) and the number of bytes copied.
func (w *Writer) Append(src io.Reader) (offset, length int64, err error) {
	start, err := w.f.Tell()
	if err != nil {
		return 0, 0, err
	}
	n, err := io.Copy(w.f, src)
	if err != nil {
		return 0, 0, fmt.Errorf("pkgfile: copying object into package: %w", err)
	}
	// Offsets recorded in storage_mapping are relative to the start of
	// the content region, i.e. with the 64-byte header already excluded.
	return start - HeaderSize, n, nil
}

// Tell returns the writer's current offset.
func (w *Writer) Tell() (int64, error) { return w.f.Tell() }

// Close closes the underlying package file.
func (w *Writer) Close() error { return w.f.Close() }

// Reader serves byte windows (offset, length) of an already-built package
// file, memory-mapping the whole package once per run and handing out
// zero-copy slices.
type Reader struct {
	f   *mmapfile.File
	m   *mmapfile.Map
	hdr Header
}

// Open opens an existing package file for reading and validates its
// header.
func Open(path string) (*Reader, error) {
	f, err := mmapfile.Open(path)
	if err != nil {
		return nil, err
	}
	hdr, err := ReadHeader(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	m, err := f.MapReadOnly()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Reader{f: f, m: m, hdr: hdr}, nil
}

// Header returns the package's decoded header.
func (r *Reader) Header() Header { return r.hdr }

// Slice returns the byte range [offset, offset+length) of the package
// body (i.e. relative to the start of content, after the header), as a
// zero-copy view into the memory map. The returned slice is valid only
// until Close.
func (r *Reader) Slice(offset, length int64) ([]byte, error) {
	start := HeaderSize + offset
	end := start + length
	if start < 0 || end > int64(len(r.m.Bytes)) {
		return nil, fmt.Errorf("pkgfile: range [%d,%d) out of bounds for package of %d bytes", start, end, len(r.m.Bytes))
	}
	return r.m.Bytes[start:end], nil
}

// VerifySlice reads a byte range and confirms it hashes to want, used by
// validate.
func (r *Reader) VerifySlice(offset, length int64, want digest.Digest) (bool, error) {
	b, err := r.Slice(offset, length)
	if err != nil {
		return false, err
	}
	return digest.Sum(b) == want, nil
}

// Close unmaps and closes the package file.
func (r *Reader) Close() error {
	if err := r.m.Unmap(); err != nil {
		return err
	}
	return r.f.Close()
}

// OverwriteWindow rewrites the byte window [offset, offset+len(data)) of
// the package body in place, used by repair: because storage mappings are
// uncompressed (raw copy) and a digest determines a fixed length, the
// repaired bytes always fit the existing window exactly.
func OverwriteWindow(path string, offset int64, data []byte) error {
	f, err := mmapfile.OpenReadWrite(path)
	if err != nil {
		return err
	}
	defer f.Close()

	m, err := f.MapReadWrite()
	if err != nil {
		return err
	}
	defer m.Unmap()

	start := HeaderSize + offset
	end := start + int64(len(data))
	if start < 0 || end > int64(len(m.Bytes)) {
		return fmt.Errorf("pkgfile: overwrite range [%d,%d) out of bounds for package of %d bytes", start, end, len(m.Bytes))
	}
	copy(m.Bytes[start:end], data)
	return nil
}
