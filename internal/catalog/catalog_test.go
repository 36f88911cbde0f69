package catalog

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/oneconcern/kyla/internal/digest"
	"github.com/oneconcern/kyla/internal/dlog"
)

func openFixture(t *testing.T) *Catalog {
	t.Helper()
	log := dlog.MustNew(dlog.LevelNone)
	path := filepath.Join(t.TempDir(), "catalog.db")
	cat, err := Open(path, log)
	require.NoError(t, err)
	require.NoError(t, cat.ApplySchema())
	t.Cleanup(func() { _ = cat.Close() })
	return cat
}

func TestInsertAndLookupFileSet(t *testing.T) {
	cat := openFixture(t)
	id := uuid.New()

	localID, err := cat.InsertFileSet(id, "core")
	require.NoError(t, err)
	require.NotZero(t, localID)

	got, ok, err := cat.FileSetLocalID(id)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, localID, got)

	name, ok, err := cat.FileSetName(id)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "core", name)

	_, ok, err = cat.FileSetName(uuid.New())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestInsertContentObjectRejectsDuplicateDigest(t *testing.T) {
	cat := openFixture(t)
	d := digest.Sum([]byte("payload"))

	_, err := cat.InsertContentObject(d, 7, nil)
	require.NoError(t, err)

	_, err = cat.InsertContentObject(d, 7, nil)
	require.Error(t, err)
}

func TestContentObjectByDigestRoundTrips(t *testing.T) {
	cat := openFixture(t)
	d := digest.Sum([]byte("payload"))

	objID, err := cat.InsertContentObject(d, 7, nil)
	require.NoError(t, err)

	row, ok, err := cat.ContentObjectByDigest(d)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, objID, row.LocalID)
	require.Equal(t, int64(7), row.Size)
	require.Equal(t, d, row.Digest)

	_, ok, err = cat.ContentObjectByDigest(digest.Sum([]byte("other")))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestContentObjectsBySizeAscendingOrdersBySize(t *testing.T) {
	cat := openFixture(t)
	sizes := []int64{30, 10, 20}
	for _, s := range sizes {
		_, err := cat.InsertContentObject(digest.Sum([]byte{byte(s)}), s, nil)
		require.NoError(t, err)
	}

	var seen []int64
	err := cat.ContentObjectsBySizeAscending(func(row ContentObjectRow) error {
		seen = append(seen, row.Size)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []int64{10, 20, 30}, seen)
}

func TestFilesForFileSetAndDeleteFileSet(t *testing.T) {
	cat := openFixture(t)
	fsID := uuid.New()
	fsLocalID, err := cat.InsertFileSet(fsID, "core")
	require.NoError(t, err)

	objID, err := cat.InsertContentObject(digest.Sum([]byte("a")), 1, nil)
	require.NoError(t, err)
	require.NoError(t, cat.InsertFile("a.txt", objID, fsLocalID))

	rows, err := cat.FilesForFileSet(fsLocalID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "a.txt", rows[0].Path)

	require.NoError(t, cat.DeleteFilesForFileSet(fsLocalID))
	rows, err = cat.FilesForFileSet(fsLocalID)
	require.NoError(t, err)
	require.Empty(t, rows)

	require.NoError(t, cat.DeleteFileSet(fsLocalID))
	_, ok, err := cat.FileSetLocalID(fsID)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestWithTransactionRollsBackOnError(t *testing.T) {
	cat := openFixture(t)
	d := digest.Sum([]byte("tx"))

	boom := errors.New("boom")
	err := cat.WithTransaction(func() error {
		if _, err := cat.InsertContentObject(d, 1, nil); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, ok, err := cat.ContentObjectByDigest(d)
	require.NoError(t, err)
	require.False(t, ok, "insert must be rolled back when the transaction function errors")
}

func TestEnsureSourcePackageIsIdempotent(t *testing.T) {
	cat := openFixture(t)

	id1, err := cat.EnsureSourcePackage("data.kypkg")
	require.NoError(t, err)
	id2, err := cat.EnsureSourcePackage("data.kypkg")
	require.NoError(t, err)
	require.Equal(t, id1, id2)
}

func TestStorageLocationForDigestRoundTrips(t *testing.T) {
	cat := openFixture(t)
	d := digest.Sum([]byte("packed"))

	objID, err := cat.InsertContentObject(d, 6, nil)
	require.NoError(t, err)
	pkgID, err := cat.EnsureSourcePackage("data.kypkg")
	require.NoError(t, err)
	require.NoError(t, cat.InsertStorageMapping(objID, pkgID, 64, 6, 0, NullCompression))

	loc, ok, err := cat.StorageLocationForDigest(d)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "data.kypkg", loc.PackageFilename)
	require.Equal(t, int64(64), loc.Offset)
	require.Equal(t, int64(6), loc.Length)
}
