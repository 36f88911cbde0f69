package descriptor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const sample = `
package:
  type: Loose
fileSets:
  - id: 9b1f2b2a-6c2f-4a4c-8f0a-6a1d2e3f4a5b
    name: core
    files:
      - source: a.txt
      - source: sub/b.txt
        target: out/b.txt
`

func TestParseDefaultsTargetToSource(t *testing.T) {
	m, err := Parse([]byte(sample))
	require.NoError(t, err)
	require.Equal(t, PackageLoose, m.Package.Type)
	require.Len(t, m.FileSets, 1)

	fs := m.FileSets[0]
	require.Equal(t, "core", fs.Name)
	require.Len(t, fs.Files, 2)
	require.Equal(t, "a.txt", fs.Files[0].Source)
	require.Equal(t, "a.txt", fs.Files[0].Target)
	require.Equal(t, "out/b.txt", fs.Files[1].Target)
}

func TestParseRejectsBadUUID(t *testing.T) {
	bad := `
package:
  type: Loose
fileSets:
  - id: not-a-uuid
    name: core
    files:
      - source: a.txt
`
	_, err := Parse([]byte(bad))
	require.Error(t, err)
}

func TestParseRejectsUnknownPackageType(t *testing.T) {
	bad := `
package:
  type: Tarball
fileSets: []
`
	_, err := Parse([]byte(bad))
	require.Error(t, err)
}
