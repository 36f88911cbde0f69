// Package loose implements the loose repository layout: one file per
// content object under a hidden directory, with the catalog
// at a fixed sub-path. The hidden directory's presence is the layout's
// detection signature.
//
// Grounded on github.com/oneconcern/datamon/pkg/storage/localfs.New's
// os.OpenFile/MkdirAll conventions, generalized from a key-value Store
// interface to kyla's digest-keyed object file naming.
package loose

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/oneconcern/kyla/internal/catalog"
	"github.com/oneconcern/kyla/internal/digest"
	"github.com/oneconcern/kyla/internal/errs"
	"github.com/oneconcern/kyla/internal/mmapfile"
	"github.com/oneconcern/kyla/internal/repo"
)

// Repository is a loose-layout repository rooted at a directory.
type Repository struct {
	root string
	cat  *catalog.Catalog
	log  *zap.Logger
}

var _ repo.Contract = (*Repository)(nil)

// Create initializes a brand-new loose repository at root: the .ky/ and
// .ky/objects/ directories, and a fresh catalog with the schema applied
//.
func Create(root string, log *zap.Logger) (*Repository, error) {
	if err := os.MkdirAll(repo.LooseObjectsPath(root), 0o755); err != nil {
		return nil, errs.WrapIO(root, err)
	}
	catPath := repo.LooseCatalogPath(root)
	_ = os.Remove(catPath) // stale catalog from a previous failed build

	cat, err := catalog.Open(catPath, log)
	if err != nil {
		return nil, err
	}
	if err := cat.ApplySchema(); err != nil {
		_ = cat.Close()
		return nil, err
	}
	return &Repository{root: root, cat: cat, log: log}, nil
}

// Open opens an existing loose repository at root.
func Open(root string, log *zap.Logger) (*Repository, error) {
	cat, err := catalog.Open(repo.LooseCatalogPath(root), log)
	if err != nil {
		return nil, err
	}
	return &Repository{root: root, cat: cat, log: log}, nil
}

// Root returns the repository root directory.
func (r *Repository) Root() string { return r.root }

// Database returns the catalog escape hatch.
func (r *Repository) Database() *catalog.Catalog { return r.cat }

// Close closes the catalog.
func (r *Repository) Close() error { return r.cat.Close() }

// FileSetInfos lists every FileSet.
func (r *Repository) FileSetInfos() ([]catalog.FileSetInfo, error) { return r.cat.FileSetInfos() }

// FileSetName resolves a FileSet UUID to its name.
func (r *Repository) FileSetName(id uuid.UUID) (string, bool, error) {
	return r.cat.FileSetName(id)
}

// Validate checks, for each (digest, size) row ordered by ascending size,
// presence, size agreement, and (unless size is zero) the file's hash.
func (r *Repository) Validate(ctx context.Context, report func(repo.ValidationRecord) error) error {
	return r.cat.ContentObjectsBySizeAscending(func(row catalog.ContentObjectRow) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		rec := repo.ValidationRecord{Digest: row.Digest, Size: row.Size}
		path := repo.LooseObjectPath(r.root, row.Digest.String())

		fi, err := os.Stat(path)
		switch {
		case os.IsNotExist(err):
			rec.Kind = errs.Missing
			return report(rec)
		case err != nil:
			return errs.WrapIO(path, err)
		}

		if fi.Size() != row.Size {
			rec.Kind = errs.Corrupted
			return report(rec)
		}
		if row.Size == 0 {
			rec.Kind = errs.Ok
			return report(rec)
		}

		f, err := os.Open(path)
		if err != nil {
			return errs.WrapIO(path, err)
		}
		sum, err := digest.SumReader(f)
		_ = f.Close()
		if err != nil {
			return errs.WrapIO(path, err)
		}

		if sum == row.Digest {
			rec.Kind = errs.Ok
		} else {
			rec.Kind = errs.Corrupted
		}
		return report(rec)
	})
}

// GetContentObjects memory-maps each requested object and hands the byte
// range to sink, unmapping before moving to the next digest.
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
	row, ok, err := r.cat.ContentObjectByDigest(d)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: %w", d, errs.ErrUnknownObject)
	}
	if row.Size == 0 {
		return sink(d, nil)
	}

	path := repo.LooseObjectPath(r.root, d.String())
	f, err := mmapfile.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	m, err := f.MapReadOnly()
	if err != nil {
		return err
	}
	defer m.Unmap()

	return sink(d, m.Bytes)
}

// Repair collects non-Ok digests during a validate pass, requests them
// from source, and rewrites the object file in place.
// Idempotent: a second pass after a successful repair finds nothing to
// fix.
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
		return r.rewriteObject(d, data)
	})
}

func (r *Repository) rewriteObject(d digest.Digest, data []byte) error {
	path := repo.LooseObjectPath(r.root, d.String())

	f, err := openOrCreate(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.SetSize(int64(len(data))); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}

	m, err := f.MapReadWrite()
	if err != nil {
		return err
	}
	defer m.Unmap()
	copy(m.Bytes, data)
	return nil
}

func openOrCreate(path string) (*mmapfile.File, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return mmapfile.Create(path)
	}
	return mmapfile.OpenReadWrite(path)
}

// Configure reconciles the FileSets materialized in this catalog against
// filesetIDs, adding new ones from source and dropping ones no longer
// desired. The loose layout keys objects purely by digest,
// so its Materializer only needs to write the object file once per digest.
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
	if err := m.r.rewriteObject(d, data); err != nil {
		return 0, err
	}
	return m.r.cat.InsertContentObject(d, size, nil)
}

func (m *materializer) MaterializePath(string, []byte) error { return nil }
func (m *materializer) RemovePath(string) error               { return nil }

// ObjectPath returns the on-disk path for digest d's object file, exposed
// for the builder's loose backend.
func (r *Repository) ObjectPath(d digest.Digest) string {
	return repo.LooseObjectPath(r.root, d.String())
}
