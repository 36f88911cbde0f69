package loose

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/oneconcern/kyla/internal/builder"
	"github.com/oneconcern/kyla/internal/dlog"
	"github.com/oneconcern/kyla/internal/errs"
	"github.com/oneconcern/kyla/internal/repo"
)

var fixtureFileSetID = uuid.MustParse("9b1f2b2a-6c2f-4a4c-8f0a-6a1d2e3f4a5b")

func buildFixture(t *testing.T) string {
	t.Helper()
	srcDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "a.txt"), []byte("hello"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "empty.txt"), []byte(""), 0o644))

	desc := `
package:
  type: Loose
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

func TestValidateReportsOkForIntactRepository(t *testing.T) {
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

func TestValidateDetectsCorruption(t *testing.T) {
	root := buildFixture(t)
	log := dlog.MustNew(dlog.LevelNone)
	r, err := Open(root, log)
	require.NoError(t, err)
	defer r.Close()

	var digestHit bool
	err = r.Validate(context.Background(), func(rec repo.ValidationRecord) error {
		if rec.Size > 0 {
			digestHit = true
			require.NoError(t, os.WriteFile(r.ObjectPath(rec.Digest), []byte("corrupted!"), 0o644))
		}
		return nil
	})
	require.NoError(t, err)
	require.True(t, digestHit)

	var kinds []errs.ValidationFaultKind
	err = r.Validate(context.Background(), func(rec repo.ValidationRecord) error {
		kinds = append(kinds, rec.Kind)
		return nil
	})
	require.NoError(t, err)
	require.Contains(t, kinds, errs.Corrupted)
}

func TestRepairFixesCorruptionFromSource(t *testing.T) {
	srcRoot := buildFixture(t)
	tgtRoot := buildFixture(t)
	log := dlog.MustNew(dlog.LevelNone)

	source, err := Open(srcRoot, log)
	require.NoError(t, err)
	defer source.Close()

	target, err := Open(tgtRoot, log)
	require.NoError(t, err)
	defer target.Close()

	err = target.Validate(context.Background(), func(rec repo.ValidationRecord) error {
		if rec.Size > 0 {
			return os.WriteFile(target.ObjectPath(rec.Digest), []byte("corrupted!"), 0o644)
		}
		return nil
	})
	require.NoError(t, err)

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

func TestConfigureAddsAndRemovesFileSets(t *testing.T) {
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

	require.NoError(t, target.Configure(context.Background(), source, nil, log))

	infos, err = target.FileSetInfos()
	require.NoError(t, err)
	require.Empty(t, infos)
}
