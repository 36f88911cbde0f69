package installer

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

const manifestUUID = "9b1f2b2a-6c2f-4a4c-8f0a-6a1d2e3f4a5b"

func buildLooseFixture(t *testing.T) string {
	t.Helper()
	srcDir := t.TempDir()
	outDir := filepath.Join(t.TempDir(), "repo")

	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "a.txt"), []byte("hi"), 0o644))
	manifest := `
package:
  type: Loose
fileSets:
  - id: ` + manifestUUID + `
    name: core
    files:
      - source: a.txt
`
	descPath := filepath.Join(srcDir, "manifest.yaml")
	require.NoError(t, os.WriteFile(descPath, []byte(manifest), 0o644))

	log := dlog.MustNew(dlog.LevelNone)
	require.NoError(t, builder.Build(context.Background(), builder.Options{
		DescriptorPath: descPath,
		SourceDir:      srcDir,
		OutDir:         outDir,
		Log:            log,
	}))
	return outDir
}

func TestInstallThenVerify(t *testing.T) {
	sourceDir := buildLooseFixture(t)
	targetDir := filepath.Join(t.TempDir(), "target")

	in := New().WithLogger(dlog.MustNew(dlog.LevelNone))
	require.NoError(t, in.OpenSourceRepository(sourceDir))

	fsID := uuid.MustParse(manifestUUID)
	err := in.Execute(context.Background(), Install, targetDir, &DesiredState{FileSetIDs: []uuid.UUID{fsID}})
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(targetDir, "a.txt"))
	require.NoError(t, err)

	var results []repo.ValidationRecord
	in.SetValidationCallback(func(rec repo.ValidationRecord) error {
		results = append(results, rec)
		return nil
	})
	require.NoError(t, in.Execute(context.Background(), Verify, targetDir, nil))
	require.Len(t, results, 1)
	require.Equal(t, errs.Ok, results[0].Kind)
}

func TestInstallRefusesNonEmptyTarget(t *testing.T) {
	sourceDir := buildLooseFixture(t)
	targetDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(targetDir, "existing"), []byte("x"), 0o644))

	in := New().WithLogger(dlog.MustNew(dlog.LevelNone))
	require.NoError(t, in.OpenSourceRepository(sourceDir))

	fsID := uuid.MustParse(manifestUUID)
	err := in.Execute(context.Background(), Install, targetDir, &DesiredState{FileSetIDs: []uuid.UUID{fsID}})
	require.Error(t, err)
}
