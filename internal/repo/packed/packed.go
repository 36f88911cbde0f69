// Package packed implements the packed repository layout: content objects
// concatenated into one or more package files, indexed by the catalog's
// storage_mapping table. Read access resolves a digest to its package and
// byte window and slices a memory-mapped view; package handles are cached
// with an LRU (github.com/hashicorp/golang-lru) so repeated reads against
// the same package in one run reuse the mapping, grounded on
// github.com/oneconcern/datamon/pkg/cafs's leaf-buffer LRU.
package packed

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"

	"github.com/oneconcern/kyla/internal/catalog"
	"github.com/oneconcern/kyla/internal/digest"
	"github.com/oneconcern/kyla/internal/errs"
	"github.com/oneconcern/kyla/internal/pkgfile"
	"github.com/oneconcern/kyla/internal/repo"
)

const packageCacheSize = 8

// Repository is a packed-layout repository rooted at a directory.
type Repository struct {
	root string
	cat  *catalog.Catalog
	log  *zap.Logger

	mu      sync.Mutex
	readers *lru.Cache // package filename -> *pkgfile.Reader
}

var _ repo.Contract = (*Repository)(nil)

// Open opens an existing packed repository at root.
func Open(root string, log *zap.Logger) (*Repository, error) {
	cat, err := catalog.Open(repo.PackedCatalogPath(root), log)
	if err != nil {
		return nil, err
	}
	return newRepository(root, cat, log), nil
}

// Create initializes a brand-new packed repository at root: an empty
// catalog with the schema applied and the first package file with its
// header written.
func Create(root string, log *zap.Logger) (*Repository, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errs.WrapIO(root, err)
	}
	cat, err := catalog.Open(repo.PackedCatalogPath(root), log)
	if err != nil {
		return nil, err
	}
	if err := cat.ApplySchema(); err != nil {
		_ = cat.Close()
		return nil, err
	}

	pkgPath := repo.PackedPackagePath(root)
	if _, err := os.Stat(pkgPath); os.IsNotExist(err) {
		w, err := pkgfile.Create(pkgPath)
		if err != nil {
			_ = cat.Close()
			return nil, err
		}
		if err := w.Close(); err != nil {
			_ = cat.Close()
			return nil, err
		}
	}
	return newRepository(root, cat, log), nil
}

func newRepository(root string, cat *catalog.Catalog, log *zap.Logger) *Repository {
	cache, _ := lru.NewWithEvict(packageCacheSize, func(_ interface{}, v interface{}) {
		_ = v.(*pkgfile.Reader).Close()
	})
	return &Repository{root: root, cat: cat, log: log, readers: cache}
}

// Root returns the repository root directory.
func (r *Repository) Root() string { return r.root }

// Database returns the catalog escape hatch.
func (r *Repository) Database() *catalog.Catalog { return r.cat }

// Close closes every cached package reader and the catalog.
func (r *Repository) Close() error {
	r.mu.Lock()
	r.readers.Purge()
	r.mu.Unlock()
	return r.cat.Close()
}

// FileSetInfos lists every FileSet.
func (r *Repository) FileSetInfos() ([]catalog.FileSetInfo, error) { return r.cat.FileSetInfos() }

// FileSetName resolves a FileSet UUID to its name.
func (r *Repository) FileSetName(id uuid.UUID) (string, bool, error) {
	return r.cat.FileSetName(id)
}

func (r *Repository) reader(filename string) (*pkgfile.Reader, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if v, ok := r.readers.Get(filename); ok {
		return v.(*pkgfile.Reader), nil
	}
	rd, err := pkgfile.Open(filename)
	if err != nil {
		return nil, err
	}
	r.readers.Add(filename, rd)
	return rd, nil
}

// Validate re-hashes each content object's window in the package, ordered
// by ascending size, and compares it against the recorded digest.
func (r *Repository) Validate(ctx context.Context, report func(repo.ValidationRecord) error) error {
	return r.cat.ContentObjectsBySizeAscending(func(obj catalog.ContentObjectRow) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		rec := repo.ValidationRecord{Digest: obj.Digest, Size: obj.Size}
		if obj.Size == 0 {
			rec.Kind = errs.Ok
			return report(rec)
		}

		loc, found, err := r.cat.StorageLocationForDigest(obj.Digest)
		if err != nil {
			return err
		}
		if !found {
			rec.Kind = errs.Missing
			return report(rec)
		}

		rd, err := r.reader(loc.PackageFilename)
		if err != nil {
			rec.Kind = errs.Missing
			return report(rec)
		}
		ok, err := rd.VerifySlice(loc.Offset, loc.Length, obj.Digest)
		if err != nil {
			rec.Kind = errs.Corrupted
			return report(rec)
		}
		if ok {
			rec.Kind = errs.Ok
		} else {
			rec.Kind = errs.Corrupted
		}
		return report(rec)
	})
}

// GetContentObjects resolves each digest to its package window and hands
// a zero-copy slice to sink.
func (r *Repository) GetContentObjects(ctx context.Context, digests []digest.Digest, sink repo.ContentSink) error {
	for _, d := range digests {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.getOne(d, sink); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) getOne(d digest.Digest, sink repo.ContentSink) error {
	if d.IsNull() {
		return sink(d, nil)
	}
	loc, ok, err := r.cat.StorageLocationForDigest(d)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: %w", d, errs.ErrUnknownObject)
	}
	rd, err := r.reader(loc.PackageFilename)
	if err != nil {
		return err
	}
	b, err := rd.Slice(loc.Offset, loc.Length)
	if err != nil {
		return err
	}
	return sink(d, b)
}

// Repair rewrites each non-Ok object's window in place. Because
// storage_mapping's Compression is always "raw copy" for objects kyla
// writes, the repaired bytes are always exactly Length bytes and fit the
// existing window.
func (r *Repository) Repair(ctx context.Context, source repo.Contract) error {
	var faulty []digest.Digest
	err := r.Validate(ctx, func(rec repo.ValidationRecord) error {
		if rec.Kind != errs.Ok {
			faulty = append(faulty, rec.Digest)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if len(faulty) == 0 {
		return nil
	}

	return source.GetContentObjects(ctx, faulty, func(d digest.Digest, data []byte) error {
		if len(data) == 0 {
			return nil
		}
		loc, ok, err := r.cat.StorageLocationForDigest(d)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%s: %w", d, errs.ErrUnknownObject)
		}
		r.evict(loc.PackageFilename)
		return pkgfile.OverwriteWindow(loc.PackageFilename, loc.Offset, data)
	})
}

func (r *Repository) evict(filename string) {
	r.mu.Lock()
	r.readers.Remove(filename)
	r.mu.Unlock()
}

// Configure reconciles the FileSets recorded in this catalog against
// filesetIDs. Adding a FileSet appends its new objects to the package;
// removing one only drops its files rows (packages are append-only, so
// kyla never reclaims package space on removal — see DESIGN.md).
func (r *Repository) Configure(ctx context.Context, source repo.Contract, filesetIDs []uuid.UUID, log *zap.Logger) error {
	return r.cat.WithTransaction(func() error {
		return repo.Reconcile(ctx, r.cat, source, filesetIDs, &materializer{r: r}, log)
	})
}

type materializer struct{ r *Repository }

func (m *materializer) EnsureContentObject(_ context.Context, d digest.Digest, size int64, data []byte) (int64, error) {
	if row, ok, err := m.r.cat.ContentObjectByDigest(d); err != nil {
		return 0, err
	} else if ok {
		return row.LocalID, nil
	}

	objID, err := m.r.cat.InsertContentObject(d, size, nil)
	if err != nil {
		return 0, err
	}

	pkgPath := repo.PackedPackagePath(m.r.root)
	m.r.evict(pkgPath)

	w, err := pkgfile.OpenAppend(pkgPath)
	if err != nil {
		return 0, err
	}
	defer w.Close()

	srcPkg, err := m.r.cat.EnsureSourcePackage(pkgPath)
	if err != nil {
		return 0, err
	}

	offset, length, err := w.Append(bytes.NewReader(data))
	if err != nil {
		return 0, err
	}
	if err := m.r.cat.InsertStorageMapping(objID, srcPkg, offset, length, 0, catalog.NullCompression); err != nil {
		return 0, err
	}
	return objID, nil
}

func (m *materializer) MaterializePath(string, []byte) error { return nil }
func (m *materializer) RemovePath(string) error               { return nil }
