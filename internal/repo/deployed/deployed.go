// Package deployed implements the deployed repository layout: content
// objects materialized at their real target paths, with the
// catalog at the target root. No hidden directory — that absence, plus the
// presence of k.db, is the layout's detection signature.
//
// Grounded on github.com/oneconcern/datamon/pkg/core/bundle.go's
// Publish/unpackDataFiles path (archive bundle -> consumable tree),
// generalized from datamon's JSON bundle descriptors to kyla's relational
// catalog and from datamon's dedicated unpack step to the shared
// repo.Reconcile algorithm, since a fresh deploy is just "reconcile from
// nothing".
package deployed

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/oneconcern/kyla/internal/catalog"
	"github.com/oneconcern/kyla/internal/digest"
	"github.com/oneconcern/kyla/internal/errs"
	"github.com/oneconcern/kyla/internal/mmapfile"
	"github.com/oneconcern/kyla/internal/repo"
)

// Repository is a deployed-layout repository rooted at a directory.
type Repository struct {
	root string
	cat  *catalog.Catalog
	log  *zap.Logger
}

var _ repo.Contract = (*Repository)(nil)

// Open opens an existing deployed repository at root.
func Open(root string, log *zap.Logger) (*Repository, error) {
	cat, err := catalog.Open(repo.DeployedCatalogPath(root), log)
	if err != nil {
		return nil, err
	}
	return &Repository{root: root, cat: cat, log: log}, nil
}

// CreateFrom deploys the requested FileSets from source into a fresh
// deployed repository at target. target must be
// an empty or non-existent directory; the installer facade enforces that
// before calling this.
func CreateFrom(ctx context.Context, source repo.Contract, filesetIDs []uuid.UUID, target string, log *zap.Logger) (*Repository, error) {
	if err := os.MkdirAll(target, 0o755); err != nil {
		return nil, errs.WrapIO(target, err)
	}

	cat, err := catalog.Open(repo.DeployedCatalogPath(target), log)
	if err != nil {
		return nil, err
	}
	if err := cat.ApplySchema(); err != nil {
		_ = cat.Close()
		return nil, err
	}

	r := &Repository{root: target, cat: cat, log: log}

	err = cat.WithTransaction(func() error {
		return repo.Reconcile(ctx, cat, source, filesetIDs, &materializer{r: r}, log)
	})
	if err != nil {
		_ = cat.Close()
		return nil, fmt.Errorf("deployed: deploying filesets: %w", err)
	}

	if err := cat.SetJournalMode("DELETE"); err != nil {
		_ = cat.Close()
		return nil, err
	}
	if err := cat.Analyze(); err != nil {
		_ = cat.Close()
		return nil, err
	}
	return r, nil
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

func (r *Repository) targetPath(relPath string) string {
	return filepath.Join(r.root, relPath)
}

// Validate runs the same Ok/Missing/Corrupted algorithm as the loose
// layout, but once per files row rather than once per content object — a
// digest shared by two paths is validated twice, intentionally.
func (r *Repository) Validate(ctx context.Context, report func(repo.ValidationRecord) error) error {
	return r.cat.AllFilesWithContentObjects(func(row catalog.FileRow) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		rec := repo.ValidationRecord{Digest: row.Digest, Size: row.Size}
		path := r.targetPath(row.Path)

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

// GetContentObjects picks any one files.Path whose ContentObjectId has the
// requested digest (LIMIT 1), maps it, and returns it.
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
	rows, err := r.cat.FilesForDigest(d)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("%s: %w", d, errs.ErrUnknownObject)
	}
	path := r.targetPath(rows[0].Path)

	fi, err := os.Stat(path)
	if err != nil {
		return errs.WrapIO(path, err)
	}
	if fi.Size() == 0 {
		return sink(d, nil)
	}

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

// Repair maintains a digest -> [paths] multimap (via FilesForDigest) and,
// for every non-Ok digest found during validate, requests bytes from
// source once and writes them to every associated path.
func (r *Repository) Repair(ctx context.Context, source repo.Contract) error {
	seen := make(map[digest.Digest]bool)
	var faulty []digest.Digest
	err := r.Validate(ctx, func(rec repo.ValidationRecord) error {
		if rec.Kind != errs.Ok && !seen[rec.Digest] {
			seen[rec.Digest] = true
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
		rows, err := r.cat.FilesForDigest(d)
		if err != nil {
			return err
		}
		for _, row := range rows {
			if err := writeFile(r.targetPath(row.Path), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// Configure reconciles the FileSets deployed at root against filesetIDs.
func (r *Repository) Configure(ctx context.Context, source repo.Contract, filesetIDs []uuid.UUID, log *zap.Logger) error {
	return r.cat.WithTransaction(func() error {
		return repo.Reconcile(ctx, r.cat, source, filesetIDs, &materializer{r: r}, log)
	})
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errs.WrapIO(path, err)
	}
	f, err := mmapfile.Create(path)
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

type materializer struct{ r *Repository }

func (m *materializer) EnsureContentObject(_ context.Context, d digest.Digest, size int64, _ []byte) (int64, error) {
	if row, ok, err := m.r.cat.ContentObjectByDigest(d); err != nil {
		return 0, err
	} else if ok {
		return row.LocalID, nil
	}
	return m.r.cat.InsertContentObject(d, size, nil)
}

func (m *materializer) MaterializePath(path string, data []byte) error {
	return writeFile(m.r.targetPath(path), data)
}

func (m *materializer) RemovePath(path string) error {
	full := m.r.targetPath(path)
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return errs.WrapIO(full, err)
	}
	return nil
}
