package pkgfile_test

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oneconcern/kyla/internal/pkgfile"
)

func TestHeaderRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, pkgfile.WriteHeader(&buf, pkgfile.InitialVersion))
	require.Equal(t, pkgfile.HeaderSize, buf.Len())
	require.Equal(t, "KYLAPKG\x00", string(buf.Bytes()[0:8]))

	hdr, err := pkgfile.ReadHeader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Equal(t, pkgfile.InitialVersion, hdr.Version)
}

func TestWriteThenReadSlices(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.kypkg")

	w, err := pkgfile.Create(path)
	require.NoError(t, err)

	off1, len1, err := w.Append(bytes.NewReader([]byte("abc")))
	require.NoError(t, err)
	off2, len2, err := w.Append(bytes.NewReader([]byte("def")))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	require.Equal(t, int64(0), off1)
	require.Equal(t, int64(3), len1)
	require.Equal(t, int64(3), off2)
	require.Equal(t, int64(3), len2)

	r, err := pkgfile.Open(path)
	require.NoError(t, err)
	defer r.Close()

	s1, err := r.Slice(off1, len1)
	require.NoError(t, err)
	require.Equal(t, "abc", string(s1))

	s2, err := r.Slice(off2, len2)
	require.NoError(t, err)
	require.Equal(t, "def", string(s2))
}
