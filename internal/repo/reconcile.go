package repo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/oneconcern/kyla/internal/catalog"
	"github.com/oneconcern/kyla/internal/digest"
)

// Materializer is the per-layout hook Reconcile uses to make a content
// object's bytes physically present. Loose and packed layouts key storage
// purely by digest, so MaterializePath/RemovePath are no-ops there; the
// deployed layout materializes one copy per path.
type Materializer interface {
	// EnsureContentObject makes digest's bytes durable in this layout's
	// physical store (an object file, a package append, ...) if they are
	// not already, and returns the local content_objects id to bind
	// files.ContentObjectId to.
	EnsureContentObject(ctx context.Context, d digest.Digest, size int64, data []byte) (localID int64, err error)

	// MaterializePath ensures path exists with the given bytes. A no-op
	// for layouts that do not materialize per-path copies.
	MaterializePath(path string, data []byte) error

	// RemovePath removes a materialized path. A no-op for layouts that
	// do not materialize per-path copies.
	RemovePath(path string) error
}

// Reconcile implements the common half of Configure: add
// FileSets present in desired but not locally present, remove FileSets
// present locally but not in desired. It is shared by all three layouts so
// the add/remove bookkeeping logic lives in one place; each layout supplies
// a Materializer for how bytes actually get written or removed.
func Reconcile(ctx context.Context, cat *catalog.Catalog, source Contract, desired []uuid.UUID, mat Materializer, log *zap.Logger) error {
	desiredSet := make(map[uuid.UUID]bool, len(desired))
	for _, id := range desired {
		desiredSet[id] = true
	}

	existing, err := cat.FileSetInfos()
	if err != nil {
		return fmt.Errorf("repo: listing local filesets: %w", err)
	}
	existingByUUID := make(map[uuid.UUID]catalog.FileSetInfo, len(existing))
	for _, fs := range existing {
		existingByUUID[fs.UUID] = fs
	}

	for _, fs := range existing {
		if desiredSet[fs.UUID] {
			continue
		}
		if log != nil {
			log.Info("configure: removing fileset", zap.String("fileset", fs.UUID.String()), zap.String("name", fs.Name))
		}
		rows, err := cat.FilesForFileSet(fs.LocalID)
		if err != nil {
			return fmt.Errorf("repo: listing files to remove for fileset %s: %w", fs.UUID, err)
		}
		for _, r := range rows {
			if err := mat.RemovePath(r.Path); err != nil {
				return fmt.Errorf("repo: removing %s: %w", r.Path, err)
			}
		}
		if err := cat.DeleteFilesForFileSet(fs.LocalID); err != nil {
			return err
		}
		if err := cat.DeleteFileSet(fs.LocalID); err != nil {
			return err
		}
	}

	for _, id := range desired {
		if _, ok := existingByUUID[id]; ok {
			continue
		}
		if err := addFileSet(ctx, cat, source, id, mat, log); err != nil {
			return err
		}
	}

	return nil
}

func addFileSet(ctx context.Context, cat *catalog.Catalog, source Contract, id uuid.UUID, mat Materializer, log *zap.Logger) error {
	name, ok, err := source.FileSetName(id)
	if err != nil {
		return fmt.Errorf("repo: resolving name for fileset %s: %w", id, err)
	}
	if !ok {
		return fmt.Errorf("repo: fileset %s not found in source", id)
	}
	if log != nil {
		log.Info("configure: adding fileset", zap.String("fileset", id.String()), zap.String("name", name))
	}

	srcLocalID, ok, err := source.Database().FileSetLocalID(id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("repo: fileset %s missing from source catalog", id)
	}
	srcFiles, err := source.Database().FilesForFileSet(srcLocalID)
	if err != nil {
		return fmt.Errorf("repo: listing files for fileset %s: %w", id, err)
	}

	localFileSetID, err := cat.InsertFileSet(id, name)
	if err != nil {
		return fmt.Errorf("repo: inserting local fileset %s: %w", id, err)
	}

	// Digest -> local content_objects id, populated as each unique
	// digest is first seen, so it is only fetched from source once even
	// if several paths in this fileset share it.
	localIDs := make(map[digest.Digest]int64)
	digests := uniqueDigests(srcFiles)

	err = source.GetContentObjects(ctx, digests, func(d digest.Digest, data []byte) error {
		var size int64
		for _, row := range srcFiles {
			if row.Digest == d {
				size = row.Size
				break
			}
		}
		localID, err := mat.EnsureContentObject(ctx, d, size, data)
		if err != nil {
			return err
		}
		localIDs[d] = localID
		for _, row := range srcFiles {
			if row.Digest != d {
				continue
			}
			if err := mat.MaterializePath(row.Path, data); err != nil {
				return err
			}
			if err := cat.InsertFile(row.Path, localID, localFileSetID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("repo: materializing fileset %s: %w", id, err)
	}
	return nil
}

func uniqueDigests(rows []catalog.FileRow) []digest.Digest {
	seen := make(map[digest.Digest]bool, len(rows))
	var out []digest.Digest
	for _, r := range rows {
		if seen[r.Digest] {
			continue
		}
		seen[r.Digest] = true
		out = append(out, r.Digest)
	}
	return out
}
