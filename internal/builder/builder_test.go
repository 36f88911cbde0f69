package builder

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oneconcern/kyla/internal/catalog"
	"github.com/oneconcern/kyla/internal/dlog"
	"github.com/oneconcern/kyla/internal/rand"
	"github.com/oneconcern/kyla/internal/repo"
)

func writeDescriptor(t *testing.T, dir, pkgType string) string {
	t.Helper()
	content := `
package:
  type: ` + pkgType + `
fileSets:
  - id: 9b1f2b2a-6c2f-4a4c-8f0a-6a1d2e3f4a5b
    name: core
    files:
      - source: a.txt
      - source: b.txt
      - source: c.txt
`
	path := filepath.Join(dir, "manifest.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func writeSources(t *testing.T, dir string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hi"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("hi"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.txt"), []byte(""), 0o644))
}

func TestBuildLooseDeduplicatesAndCopies(t *testing.T) {
	srcDir := t.TempDir()
	outDir := filepath.Join(t.TempDir(), "repo")
	writeSources(t, srcDir)
	descPath := writeDescriptor(t, srcDir, "Loose")

	var events []ProgressEvent
	log := dlog.MustNew(dlog.LevelNone)
	err := Build(context.Background(), Options{
		DescriptorPath: descPath,
		SourceDir:      srcDir,
		OutDir:         outDir,
		Log:            log,
		Progress:       func(e ProgressEvent) { events = append(events, e) },
	})
	require.NoError(t, err)

	entries, err := os.ReadDir(repo.LooseObjectsPath(outDir))
	require.NoError(t, err)
	require.Len(t, entries, 2)

	require.NotEmpty(t, events)
}

func TestBuildPackedHasOneRowPerUniqueDigest(t *testing.T) {
	srcDir := t.TempDir()
	outDir := filepath.Join(t.TempDir(), "repo")
	writeSources(t, srcDir)
	descPath := writeDescriptor(t, srcDir, "Packed")

	log := dlog.MustNew(dlog.LevelNone)
	err := Build(context.Background(), Options{
		DescriptorPath: descPath,
		SourceDir:      srcDir,
		OutDir:         outDir,
		Log:            log,
	})
	require.NoError(t, err)

	_, err = os.Stat(repo.PackedPackagePath(outDir))
	require.NoError(t, err)

	cat, err := catalog.OpenReadOnly(repo.PackedCatalogPath(outDir), log)
	require.NoError(t, err)
	defer cat.Close()

	count := 0
	err = cat.AllStorageMappings(func(catalog.ContentObjectRow, catalog.StorageLocation) error {
		count++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, count) // H("hi") shared by a.txt and b.txt, plus the null digest of zero-size c.txt
}

// TestBuildPackedManyObjectsDeduplicates builds a fileset with a larger,
// randomly generated spread of distinct objects plus a handful of forced
// duplicates, and checks that storage_mapping carries exactly one row per
// distinct digest regardless of how many files reference it.
func TestBuildPackedManyObjectsDeduplicates(t *testing.T) {
	srcDir := t.TempDir()
	outDir := filepath.Join(t.TempDir(), "repo")

	const distinctCount = 12
	const duplicateOf = "f00.bin"
	names := make([]string, 0, distinctCount+2)
	for i := 0; i < distinctCount; i++ {
		name := "f" + rand.LetterString(6) + ".bin"
		require.NoError(t, os.WriteFile(filepath.Join(srcDir, name), rand.Bytes(64+i), 0o644))
		names = append(names, name)
	}
	dup := rand.Bytes(128)
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, duplicateOf), dup, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "f01-copy.bin"), dup, 0o644))
	names = append(names, duplicateOf, "f01-copy.bin")

	var sb strings.Builder
	sb.WriteString("package:\n  type: Packed\nfileSets:\n  - id: 9b1f2b2a-6c2f-4a4c-8f0a-6a1d2e3f4a5b\n    name: core\n    files:\n")
	for _, n := range names {
		sb.WriteString("      - source: " + n + "\n")
	}
	descPath := filepath.Join(srcDir, "manifest.yaml")
	require.NoError(t, os.WriteFile(descPath, []byte(sb.String()), 0o644))

	log := dlog.MustNew(dlog.LevelNone)
	err := Build(context.Background(), Options{
		DescriptorPath: descPath,
		SourceDir:      srcDir,
		OutDir:         outDir,
		Log:            log,
	})
	require.NoError(t, err)

	cat, err := catalog.OpenReadOnly(repo.PackedCatalogPath(outDir), log)
	require.NoError(t, err)
	defer cat.Close()

	count := 0
	err = cat.AllStorageMappings(func(catalog.ContentObjectRow, catalog.StorageLocation) error {
		count++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, distinctCount+1, count) // +1 for the shared duplicate digest
}
