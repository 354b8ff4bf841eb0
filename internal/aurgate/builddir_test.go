package aurgate

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreatePointsSymlinkAtRevisionDirectory(t *testing.T) {
	cfg := newTestConfig(t)
	b := &BuildDirs{Config: cfg}

	path, err := b.Create(context.Background(), "foo", "abc1234")
	require.NoError(t, err)
	assert.Equal(t, cfg.BuildDir("foo"), path)

	target, err := os.Readlink(path)
	require.NoError(t, err)
	assert.Equal(t, "foo-abc1234", target)

	rec := b.Record("foo")
	assert.Equal(t, BuildDirRecord{Present: true, Revision: "abc1234"}, rec)

	info, err := os.Stat(filepath.Join(cfg.GlobalBuildDir(), "foo-abc1234"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestCreateRemovesPreviousRevision(t *testing.T) {
	cfg := newTestConfig(t)
	b := &BuildDirs{Config: cfg}

	_, err := b.Create(context.Background(), "foo", "old1")
	require.NoError(t, err)
	writeFile(t, filepath.Join(cfg.BuildDir("foo"), "foo-1-1-any.pkg.tar.zst"), "x")

	_, err = b.Create(context.Background(), "foo", "new2")
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(cfg.GlobalBuildDir(), "foo-old1"))
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.Equal(t, "new2", b.Record("foo").Revision)
	assert.False(t, b.HasPackageFiles("foo"))
}

func TestRecordWithoutSymlink(t *testing.T) {
	b := &BuildDirs{Config: newTestConfig(t)}
	assert.Equal(t, BuildDirRecord{}, b.Record("foo"))
}

func TestRecordForeignTarget(t *testing.T) {
	cfg := newTestConfig(t)
	require.NoError(t, os.MkdirAll(cfg.GlobalBuildDir(), 0o755))
	require.NoError(t, os.Symlink("elsewhere", cfg.BuildDir("foo")))

	rec := (&BuildDirs{Config: cfg}).Record("foo")
	assert.Equal(t, BuildDirRecord{Present: true}, rec)
}

func TestCanReuse(t *testing.T) {
	tests := []struct {
		name     string
		cached   bool
		rev      string
		revKnown bool
		files    bool
		want     bool
	}{
		{name: "all conditions hold", cached: true, rev: "abc1234", revKnown: true, files: true, want: true},
		{name: "user declined cache", cached: false, rev: "abc1234", revKnown: true, files: true},
		{name: "different revision", cached: true, rev: "def5678", revKnown: true, files: true},
		{name: "no package files", cached: true, rev: "abc1234", revKnown: true},
		{name: "fallback revision", cached: true, rev: FallbackRevision, revKnown: false, files: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := newTestConfig(t)
			b := &BuildDirs{Config: cfg}
			_, err := b.Create(context.Background(), "foo", "abc1234")
			require.NoError(t, err)
			writeFile(t, filepath.Join(cfg.BuildDir("foo"), "PKGBUILD"), "")
			if tt.files {
				writeFile(t, filepath.Join(cfg.BuildDir("foo"), "foo-1.0-1-x86_64.pkg.tar.zst"), "x")
			}
			assert.Equal(t, tt.want, b.CanReuse("foo", tt.cached, tt.rev, tt.revKnown))
		})
	}
}

func TestCanReuseNeverMatchesFallbackDirectory(t *testing.T) {
	cfg := newTestConfig(t)
	b := &BuildDirs{Config: cfg}
	_, err := b.Create(context.Background(), "foo", FallbackRevision)
	require.NoError(t, err)
	writeFile(t, filepath.Join(cfg.BuildDir("foo"), "foo-1.0-1-x86_64.pkg.tar.zst"), "x")

	rev, known := ShortRevision(context.Background(), &fakeVCS{revs: map[string]string{}}, cfg.ReviewDir("foo"))
	assert.Equal(t, FallbackRevision, rev)
	assert.False(t, b.CanReuse("foo", true, rev, known))
}

func TestTeardown(t *testing.T) {
	t.Run("symlink and target", func(t *testing.T) {
		cfg := newTestConfig(t)
		b := &BuildDirs{Config: cfg}
		_, err := b.Create(context.Background(), "foo", "abc1234")
		require.NoError(t, err)
		writeFile(t, filepath.Join(cfg.BuildDir("foo"), "src", "main.c"), "int main;")

		require.NoError(t, b.Teardown(context.Background(), "foo"))

		entries, err := os.ReadDir(cfg.GlobalBuildDir())
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("dangling symlink", func(t *testing.T) {
		cfg := newTestConfig(t)
		b := &BuildDirs{Config: cfg}
		_, err := b.Create(context.Background(), "foo", "abc1234")
		require.NoError(t, err)
		require.NoError(t, os.RemoveAll(filepath.Join(cfg.GlobalBuildDir(), "foo-abc1234")))

		require.NoError(t, b.Teardown(context.Background(), "foo"))
		_, err = os.Lstat(cfg.BuildDir("foo"))
		assert.ErrorIs(t, err, fs.ErrNotExist)
	})

	t.Run("plain directory", func(t *testing.T) {
		cfg := newTestConfig(t)
		writeFile(t, filepath.Join(cfg.BuildDir("foo"), "PKGBUILD"), "")

		require.NoError(t, (&BuildDirs{Config: cfg}).Teardown(context.Background(), "foo"))
		_, err := os.Lstat(cfg.BuildDir("foo"))
		assert.ErrorIs(t, err, fs.ErrNotExist)
	})

	t.Run("absent", func(t *testing.T) {
		assert.NoError(t, (&BuildDirs{Config: newTestConfig(t)}).Teardown(context.Background(), "foo"))
	})
}

func TestCreateAfterExternalDeletion(t *testing.T) {
	cfg := newTestConfig(t)
	b := &BuildDirs{Config: cfg}
	_, err := b.Create(context.Background(), "foo", "old1")
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(filepath.Join(cfg.GlobalBuildDir(), "foo-old1")))

	path, err := b.Create(context.Background(), "foo", "new2")
	require.NoError(t, err)
	target, err := os.Readlink(path)
	require.NoError(t, err)
	assert.Equal(t, "foo-new2", target)
}

func TestPrepareCopiesReviewedContentsWithoutGit(t *testing.T) {
	cfg := newTestConfig(t)
	review := cfg.ReviewDir("foo")
	writeFile(t, filepath.Join(review, "PKGBUILD"), "pkgname=foo\n")
	writeFile(t, filepath.Join(review, "patches", "fix.patch"), "--- a\n")
	writeFile(t, filepath.Join(review, ".git", "HEAD"), "ref: refs/heads/master\n")
	require.NoError(t, os.Symlink("PKGBUILD", filepath.Join(review, "link")))

	buildDir, err := (&BuildDirs{Config: cfg}).Prepare(context.Background(), review, "foo", "abc1234")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(buildDir, "PKGBUILD"))
	require.NoError(t, err)
	assert.Equal(t, "pkgname=foo\n", string(data))
	assert.FileExists(t, filepath.Join(buildDir, "patches", "fix.patch"))
	assert.NoDirExists(t, filepath.Join(buildDir, ".git"))
	assert.NoDirExists(t, filepath.Join(buildDir, "foo"))

	target, err := os.Readlink(filepath.Join(buildDir, "link"))
	require.NoError(t, err)
	assert.Equal(t, "PKGBUILD", target)

	// The review checkout itself is untouched.
	assert.FileExists(t, filepath.Join(review, ".git", "HEAD"))
}
