package deployed

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/oneconcern/kyla/internal/digest"
	"github.com/oneconcern/kyla/internal/dlog"
	"github.com/oneconcern/kyla/internal/errs"
	"github.com/oneconcern/kyla/internal/repo"
	"github.com/oneconcern/kyla/internal/repo/loose"
)

var fixtureFileSetID = uuid.MustParse("9b1f2b2a-6c2f-4a4c-8f0a-6a1d2e3f4a5b")

func buildLooseSource(t *testing.T) *loose.Repository {
	t.Helper()
	root := filepath.Join(t.TempDir(), "source")
	log := dlog.MustNew(dlog.LevelNone)
	r, err := loose.Create(root, log)
	require.NoError(t, err)

	fsLocalID, err := r.Database().InsertFileSet(fixtureFileSetID, "core")
	require.NoError(t, err)

	d := digest.Sum([]byte("hello"))
	objID, err := r.Database().InsertContentObject(d, 5, nil)
	require.NoError(t, err)
	require.NoError(t, r.Database().InsertFile("a.txt", objID, fsLocalID))
	require.NoError(t, os.WriteFile(r.ObjectPath(d), []byte("hello"), 0o644))

	return r
}

func TestCreateFromDeploysFileSet(t *testing.T) {
	source := buildLooseSource(t)
	defer source.Close()

	log := dlog.MustNew(dlog.LevelNone)
	target := filepath.Join(t.TempDir(), "target")
	r, err := CreateFrom(context.Background(), source, []uuid.UUID{fixtureFileSetID}, target, log)
	require.NoError(t, err)
	defer r.Close()

	data, err := os.ReadFile(filepath.Join(target, "a.txt"))
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))

	var kinds []errs.ValidationFaultKind
	err = r.Validate(context.Background(), func(rec repo.ValidationRecord) error {
		kinds = append(kinds, rec.Kind)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, kinds, 1)
	require.Equal(t, errs.Ok, kinds[0])
}

func TestValidateDetectsMissingFile(t *testing.T) {
	source := buildLooseSource(t)
	defer source.Close()

	log := dlog.MustNew(dlog.LevelNone)
	target := filepath.Join(t.TempDir(), "target")
	r, err := CreateFrom(context.Background(), source, []uuid.UUID{fixtureFileSetID}, target, log)
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, os.Remove(filepath.Join(target, "a.txt")))

	var kind errs.ValidationFaultKind
	err = r.Validate(context.Background(), func(rec repo.ValidationRecord) error {
		kind = rec.Kind
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, errs.Missing, kind)
}
