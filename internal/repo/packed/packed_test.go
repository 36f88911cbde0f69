package packed

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/oneconcern/kyla/internal/builder"
	"github.com/oneconcern/kyla/internal/digest"
	"github.com/oneconcern/kyla/internal/dlog"
	"github.com/oneconcern/kyla/internal/errs"
	"github.com/oneconcern/kyla/internal/pkgfile"
	"github.com/oneconcern/kyla/internal/repo"
)

var fixtureFileSetID = uuid.MustParse("9b1f2b2a-6c2f-4a4c-8f0a-6a1d2e3f4a5b")

func buildFixture(t *testing.T) string {
	t.Helper()
	srcDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "a.txt"), []byte("hello world"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "empty.txt"), []byte(""), 0o644))

	desc := `
package:
  type: Packed
fileSets:
  - id: ` + fixtureFileSetID.String() + `
    name: core
    files:
      - source: a.txt
      - source: empty.txt
`
	descPath := filepath.Join(srcDir, "manifest.yaml")
	require.NoError(t, os.WriteFile(descPath, []byte(desc), 0o644))

	outDir := filepath.Join(t.TempDir(), "repo")
	log := dlog.MustNew(dlog.LevelNone)
	require.NoError(t, builder.Build(context.Background(), builder.Options{
		DescriptorPath: descPath,
		SourceDir:      srcDir,
		OutDir:         outDir,
		Log:            log,
	}))
	return outDir
}

func TestValidateReportsOkForIntactPackage(t *testing.T) {
	root := buildFixture(t)
	log := dlog.MustNew(dlog.LevelNone)
	r, err := Open(root, log)
	require.NoError(t, err)
	defer r.Close()

	var kinds []errs.ValidationFaultKind
	err = r.Validate(context.Background(), func(rec repo.ValidationRecord) error {
		kinds = append(kinds, rec.Kind)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, kinds, 2)
	for _, k := range kinds {
		require.Equal(t, errs.Ok, k)
	}
}

func TestRepairOverwritesCorruptedWindow(t *testing.T) {
	srcRoot := buildFixture(t)
	tgtRoot := buildFixture(t)
	log := dlog.MustNew(dlog.LevelNone)

	source, err := Open(srcRoot, log)
	require.NoError(t, err)
	defer source.Close()

	target, err := Open(tgtRoot, log)
	require.NoError(t, err)
	defer target.Close()

	d := digest.Sum([]byte("hello world"))
	loc, ok, err := target.Database().StorageLocationForDigest(d)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, pkgfile.OverwriteWindow(loc.PackageFilename, loc.Offset, []byte("XXXXXXXXXXX")))

	var corrupted bool
	err = target.Validate(context.Background(), func(rec repo.ValidationRecord) error {
		if rec.Kind == errs.Corrupted {
			corrupted = true
		}
		return nil
	})
	require.NoError(t, err)
	require.True(t, corrupted)

	require.NoError(t, target.Repair(context.Background(), source))

	allOK := true
	err = target.Validate(context.Background(), func(rec repo.ValidationRecord) error {
		if rec.Kind != errs.Ok {
			allOK = false
		}
		return nil
	})
	require.NoError(t, err)
	require.True(t, allOK)
}

func TestConfigureAddsFileSet(t *testing.T) {
	srcRoot := buildFixture(t)
	log := dlog.MustNew(dlog.LevelNone)

	source, err := Open(srcRoot, log)
	require.NoError(t, err)
	defer source.Close()

	tgtRoot := filepath.Join(t.TempDir(), "target")
	target, err := Create(tgtRoot, log)
	require.NoError(t, err)
	defer target.Close()

	require.NoError(t, target.Configure(context.Background(), source, []uuid.UUID{fixtureFileSetID}, log))

	infos, err := target.FileSetInfos()
	require.NoError(t, err)
	require.Len(t, infos, 1)
	require.Equal(t, fixtureFileSetID, infos[0].UUID)
}
