package filex

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnsureDir_CreatesNestedDirectories(t *testing.T) {
	tmp := t.TempDir()

	want := filepath.Join(tmp, "products", "uid____evla_execblock")
	got, err := EnsureDir(want)
	require.NoError(t, err)
	require.Equal(t, want, got)

	fi, err := os.Stat(want)
	require.NoError(t, err)
	require.True(t, fi.IsDir(), "should create a directory")
}

func TestEnsureDir_Idempotent(t *testing.T) {
	tmp := t.TempDir()
	dir := filepath.Join(tmp, "out")

	first, err := EnsureDir(dir)
	require.NoError(t, err)

	second, err := EnsureDir(dir)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestEnsureDir_FailsIfFileWithSameNameExists(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "out")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o660))

	_, err := EnsureDir(filepath.Join(path, "sub"))
	require.Error(t, err, "should fail when a file blocks the path")
}

func TestCheckWritableDir(t *testing.T) {
	t.Run("writable", func(t *testing.T) {
		require.NoError(t, CheckWritableDir(t.TempDir()))
	})

	t.Run("missing", func(t *testing.T) {
		err := CheckWritableDir(filepath.Join(t.TempDir(), "absent"))
		require.Error(t, err)
	})

	t.Run("not a directory", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "plain")
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o660))
		err := CheckWritableDir(path)
		require.Error(t, err)
	})
}

func TestPartFile_CommitPromotesStagedBytes(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "uid.bin")

	p, err := CreatePart(dest)
	require.NoError(t, err)
	defer p.Abort()

	_, err = p.Write([]byte("payload"))
	require.NoError(t, err)
	require.NoError(t, p.Commit())

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), got)

	_, err = os.Stat(dest + ".part")
	require.True(t, os.IsNotExist(err), "staging file should be gone after commit")
}

func TestPartFile_AbortRemovesStagedBytes(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "uid.bin")

	p, err := CreatePart(dest)
	require.NoError(t, err)
	_, err = p.Write([]byte("partial"))
	require.NoError(t, err)

	p.Abort()

	_, err = os.Stat(dest)
	require.True(t, os.IsNotExist(err), "destination must not exist after abort")
	_, err = os.Stat(dest + ".part")
	require.True(t, os.IsNotExist(err), "staging file must not exist after abort")
}

func TestPartFile_AbortAfterCommitKeepsFile(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "uid.bin")

	p, err := CreatePart(dest)
	require.NoError(t, err)
	_, err = p.Write([]byte("payload"))
	require.NoError(t, err)
	require.NoError(t, p.Commit())

	p.Abort()

	_, err = os.Stat(dest)
	require.NoError(t, err, "abort after commit must not remove the destination")
}

func TestPartFile_TruncatesLeftoverStagingFile(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "uid.bin")
	require.NoError(t, os.WriteFile(dest+".part", []byte("stale bytes"), 0o660))

	p, err := CreatePart(dest)
	require.NoError(t, err)
	_, err = p.Write([]byte("new"))
	require.NoError(t, err)
	require.NoError(t, p.Commit())

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, []byte("new"), got)
}

func TestPartFile_PathPointsAtStagedBytes(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "uid.bin")

	p, err := CreatePart(dest)
	require.NoError(t, err)
	defer p.Abort()

	_, err = p.Write([]byte("staged"))
	require.NoError(t, err)

	require.Equal(t, dest+".part", p.Path())
	require.Equal(t, dest, p.Dest())

	got, err := os.ReadFile(p.Path())
	require.NoError(t, err)
	require.Equal(t, []byte("staged"), got)
}

func TestSubPath(t *testing.T) {
	require.Equal(t, filepath.Join("out", "sub", "f.bin"), SubPath("out", "sub", "f.bin"))
	require.Equal(t, filepath.Join("out", "f.bin"), SubPath("out", "", "f.bin"))
	require.Equal(t, "out", SubPath("out"))
}
