// Package builder implements the pipeline that turns a descriptor plus a
// source tree into a repository: parse, hash, deduplicate, then dispatch
// to the loose or packed backend writer. Grounded on the staged
// parse/hash/write progression in
// github.com/oneconcern/datamon/pkg/core/upload.go, generalized from
// datamon's object-store upload to kyla's local loose/packed backends.
package builder

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/oneconcern/kyla/internal/catalog"
	"github.com/oneconcern/kyla/internal/descriptor"
	"github.com/oneconcern/kyla/internal/digest"
	"github.com/oneconcern/kyla/internal/errs"
	"github.com/oneconcern/kyla/internal/pkgfile"
	"github.com/oneconcern/kyla/internal/repo"
)

// Stage identifies a pipeline step for progress reporting.
type Stage string

const (
	StageParse  Stage = "parse"
	StageHash   Stage = "hash"
	StageDedupe Stage = "dedupe"
	StageWrite  Stage = "write"
)

// ProgressEvent is one report emitted during Build. The parse event is a
// bare stage marker (Current == 0, Total == 0); hash and write events are
// per-object updates (Current of Total); the single dedupe event reports
// the unique object count (Current) out of the files hashed (Total).
type ProgressEvent struct {
	Stage   Stage
	Path    string
	Digest  digest.Digest
	Size    int64
	Current int
	Total   int
}

// Progress receives ProgressEvents as Build runs. May be nil.
type Progress func(ProgressEvent)

func (p Progress) emit(e ProgressEvent) {
	if p != nil {
		p(e)
	}
}

// target is one (FileSet, path) occurrence of a digest.
type target struct {
	fileSetIndex int
	path         string
}

// uniqueObject collects every occurrence of one digest across the
// descriptor, keeping the first source path seen as representative.
type uniqueObject struct {
	digest  digest.Digest
	source  string
	size    int64
	targets []target
}

// Options configures a Build run.
type Options struct {
	DescriptorPath string
	SourceDir      string
	OutDir         string
	Log            *zap.Logger
	Progress       Progress
}

// Build runs the full parse/hash/dedupe/write pipeline described by opts.
func Build(ctx context.Context, opts Options) error {
	opts.Progress.emit(ProgressEvent{Stage: StageParse})
	manifest, err := descriptor.Load(opts.DescriptorPath)
	if err != nil {
		return err
	}

	objects, err := hashAndDedupe(ctx, manifest, opts.SourceDir, opts.Progress)
	if err != nil {
		return err
	}

	switch manifest.Package.Type {
	case descriptor.PackageLoose:
		return writeLoose(ctx, opts.OutDir, manifest, objects, opts.Log, opts.Progress)
	case descriptor.PackagePacked:
		return writePacked(ctx, opts.OutDir, manifest, objects, opts.Log, opts.Progress)
	default:
		return fmt.Errorf("builder: unrecognized package type %q", manifest.Package.Type)
	}
}

func hashAndDedupe(ctx context.Context, manifest *descriptor.Manifest, sourceDir string, progress Progress) ([]*uniqueObject, error) {
	total := 0
	for _, fs := range manifest.FileSets {
		total += len(fs.Files)
	}

	byDigest := make(map[digest.Digest]*uniqueObject)
	var order []*uniqueObject
	done := 0

	for fsIdx, fs := range manifest.FileSets {
		for _, f := range fs.Files {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			fullPath := filepath.Join(sourceDir, f.Source)
			d, size, err := hashFile(fullPath)
			if err != nil {
				return nil, err
			}
			done++
			progress.emit(ProgressEvent{Stage: StageHash, Path: f.Source, Digest: d, Current: done, Total: total})

			uo, ok := byDigest[d]
			if !ok {
				uo = &uniqueObject{digest: d, source: fullPath, size: size}
				byDigest[d] = uo
				order = append(order, uo)
			}
			uo.targets = append(uo.targets, target{fileSetIndex: fsIdx, path: f.Target})
		}
	}

	progress.emit(ProgressEvent{Stage: StageDedupe, Current: len(order), Total: total})
	return order, nil
}

func hashFile(path string) (digest.Digest, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return digest.Digest{}, 0, errs.WrapIO(path, err)
	}
	defer f.Close()

	h := digest.NewHasher()
	n, err := io.Copy(h, f)
	if err != nil {
		return digest.Digest{}, 0, errs.WrapIO(path, err)
	}
	return h.Sum(), n, nil
}

// insertFileSets inserts one file_sets row per manifest FileSet and
// returns their local ids indexed the same way as manifest.FileSets.
func insertFileSets(cat *catalog.Catalog, manifest *descriptor.Manifest) ([]int64, error) {
	ids := make([]int64, len(manifest.FileSets))
	for i, fs := range manifest.FileSets {
		id, err := cat.InsertFileSet(fs.ID, fs.Name)
		if err != nil {
			return nil, fmt.Errorf("builder: inserting fileset %s: %w", fs.Name, err)
		}
		ids[i] = id
	}
	return ids, nil
}

func writeLoose(ctx context.Context, outDir string, manifest *descriptor.Manifest, objects []*uniqueObject, log *zap.Logger, progress Progress) error {
	if err := os.MkdirAll(repo.LooseObjectsPath(outDir), 0o755); err != nil {
		return errs.WrapIO(outDir, err)
	}
	catPath := repo.LooseCatalogPath(outDir)
	_ = os.Remove(catPath)

	cat, err := catalog.Open(catPath, log)
	if err != nil {
		return err
	}
	defer cat.Close()

	if err := cat.ApplySchema(); err != nil {
		return err
	}

	fileSetIDs, err := insertFileSets(cat, manifest)
	if err != nil {
		return err
	}

	err = cat.WithTransaction(func() error {
		for i, uo := range objects {
			if err := ctx.Err(); err != nil {
				return err
			}
			objID, err := cat.InsertContentObject(uo.digest, uo.size, nil)
			if err != nil {
				return err
			}
			for _, t := range uo.targets {
				if err := cat.InsertFile(t.path, objID, fileSetIDs[t.fileSetIndex]); err != nil {
					return err
				}
			}

			path := repo.LooseObjectPath(outDir, uo.digest.String())
			if err := copyFile(uo.source, path, uo.size); err != nil {
				return err
			}
			progress.emit(ProgressEvent{Stage: StageWrite, Digest: uo.digest, Size: uo.size, Current: i + 1, Total: len(objects)})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("builder: writing loose objects: %w", err)
	}

	if err := cat.SetJournalMode("DELETE"); err != nil {
		return err
	}
	return cat.Analyze()
}

func copyFile(srcPath, dstPath string, size int64) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return errs.WrapIO(srcPath, err)
	}
	defer src.Close()

	dst, err := os.Create(dstPath)
	if err != nil {
		return errs.WrapIO(dstPath, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return errs.WrapIO(dstPath, err)
	}
	return nil
}

func writePacked(ctx context.Context, outDir string, manifest *descriptor.Manifest, objects []*uniqueObject, log *zap.Logger, progress Progress) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return errs.WrapIO(outDir, err)
	}
	catPath := repo.PackedCatalogPath(outDir)
	_ = os.Remove(catPath)

	cat, err := catalog.Open(catPath, log)
	if err != nil {
		return err
	}
	defer cat.Close()

	if err := cat.ApplySchema(); err != nil {
		return err
	}

	fileSetIDs, err := insertFileSets(cat, manifest)
	if err != nil {
		return err
	}

	pkgPath := repo.PackedPackagePath(outDir)
	w, err := pkgfile.Create(pkgPath)
	if err != nil {
		return err
	}
	defer w.Close()

	srcPkgID, err := cat.InsertSourcePackage(filepath.Base(pkgPath), pkgPath, uuid.New())
	if err != nil {
		return err
	}

	err = cat.WithTransaction(func() error {
		for i, uo := range objects {
			if err := ctx.Err(); err != nil {
				return err
			}
			objID, err := cat.InsertContentObject(uo.digest, uo.size, nil)
			if err != nil {
				return err
			}
			for _, t := range uo.targets {
				if err := cat.InsertFile(t.path, objID, fileSetIDs[t.fileSetIndex]); err != nil {
					return err
				}
			}

			f, err := os.Open(uo.source)
			if err != nil {
				return errs.WrapIO(uo.source, err)
			}
			offset, length, err := w.Append(f)
			_ = f.Close()
			if err != nil {
				return err
			}
			if err := cat.InsertStorageMapping(objID, srcPkgID, offset, length, 0, catalog.NullCompression); err != nil {
				return err
			}
			progress.emit(ProgressEvent{Stage: StageWrite, Digest: uo.digest, Size: uo.size, Current: i + 1, Total: len(objects)})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("builder: writing packed objects: %w", err)
	}

	if err := cat.SetJournalMode("DELETE"); err != nil {
		return err
	}
	return cat.Analyze()
}
