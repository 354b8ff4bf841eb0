package aurgate

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio"
	"zombiezen.com/go/log"
)

// FallbackRevision tags build directories whose recipe revision is unknown.
// Such directories are never reused.
const FallbackRevision = "head"

// BuildDirRecord is what the build symlink of a pkgbase says about the live
// build directory. The zero value means there is no symlink.
type BuildDirRecord struct {
	Present bool
	// Revision is the tag parsed from the symlink target "{pkgbase}-{revision}",
	// empty when the target does not follow that scheme.
	Revision string
}

// BuildDirs owns the revision-tagged build directories under the global build root.
type BuildDirs struct {
	Config *Config
}

// Record reads the build symlink of pkgbase without following it.
func (b *BuildDirs) Record(pkgbase string) BuildDirRecord {
	target, err := os.Readlink(b.Config.BuildDir(pkgbase))
	if err != nil {
		return BuildDirRecord{}
	}
	rec := BuildDirRecord{Present: true}
	if rev, ok := strings.CutPrefix(filepath.Base(target), pkgbase+"-"); ok {
		rec.Revision = rev
	}
	return rec
}

// HasPackageFiles reports whether the build directory of pkgbase holds at
// least one file ending with the configured package suffix.
func (b *BuildDirs) HasPackageFiles(pkgbase string) bool {
	entries, err := os.ReadDir(b.Config.BuildDir(pkgbase))
	if err != nil {
		return false
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), b.Config.PkgExt) {
			return true
		}
	}
	return false
}

// ShortRevision returns the short revision of the recipe checkout in dir and
// whether it could be determined. Unknown revisions yield FallbackRevision.
func ShortRevision(ctx context.Context, vcs RecipeVCS, dir string) (string, bool) {
	rev, ok := vcs.HeadShortRevision(ctx, dir)
	if !ok || rev == "" {
		return FallbackRevision, false
	}
	return rev, true
}

// CanReuse decides whether the existing build of pkgbase may be used as is:
// the user kept it during review, it was built from the current revision and
// it still holds package files.
func (b *BuildDirs) CanReuse(pkgbase string, cached bool, rev string, revKnown bool) bool {
	if !cached || !revKnown {
		return false
	}
	rec := b.Record(pkgbase)
	return rec.Present && rec.Revision == rev && b.HasPackageFiles(pkgbase)
}

// Teardown removes the build directory of pkgbase. A symlink is resolved and
// its target tree removed before the link itself; a dangling link is only
// unlinked. A plain directory is removed recursively. A missing path is fine.
func (b *BuildDirs) Teardown(ctx context.Context, pkgbase string) error {
	p := b.Config.BuildDir(pkgbase)
	info, err := os.Lstat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to inspect build dir %s: %w", p, err)
	}

	switch {
	case info.Mode()&fs.ModeSymlink != 0:
		target, err := filepath.EvalSymlinks(p)
		switch {
		case err == nil:
			if err := os.RemoveAll(target); err != nil {
				return fmt.Errorf("failed to remove build dir target %s: %w", target, err)
			}
		case errors.Is(err, fs.ErrNotExist):
			log.Debugf(ctx, "build dir symlink %s is dangling", p)
		default:
			return fmt.Errorf("failed to resolve build dir symlink %s: %w", p, err)
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to remove build dir symlink %s: %w", p, err)
		}
	case info.IsDir():
		if err := os.RemoveAll(p); err != nil {
			return fmt.Errorf("failed to remove build dir %s: %w", p, err)
		}
	}
	return nil
}

// Create tears down the current build directory of pkgbase and replaces it by
// an empty "{pkgbase}-{rev}" directory behind the stable symlink, whose path
// is returned.
func (b *BuildDirs) Create(ctx context.Context, pkgbase, rev string) (string, error) {
	if err := b.Teardown(ctx, pkgbase); err != nil {
		return "", err
	}
	revDirName := pkgbase + "-" + rev
	revDir := filepath.Join(b.Config.GlobalBuildDir(), revDirName)
	if err := os.RemoveAll(revDir); err != nil {
		return "", fmt.Errorf("failed to remove existing rev dir %s: %w", revDir, err)
	}
	if err := os.MkdirAll(revDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create build dir %s: %w", revDir, err)
	}
	symlinkPath := b.Config.BuildDir(pkgbase)
	// The target is relative so the whole build root can be moved.
	if err := renameio.Symlink(revDirName, symlinkPath); err != nil {
		return "", fmt.Errorf("failed to create symlink %s -> %s: %w", symlinkPath, revDirName, err)
	}
	return symlinkPath, nil
}

// Prepare creates a fresh build directory for pkgbase at rev and fills it with
// the contents of the reviewed recipe checkout, minus version control metadata.
func (b *BuildDirs) Prepare(ctx context.Context, reviewDir, pkgbase, rev string) (string, error) {
	buildDir, err := b.Create(ctx, pkgbase, rev)
	if err != nil {
		return "", err
	}
	if err := copyDirContents(reviewDir, buildDir); err != nil {
		return "", fmt.Errorf("failed to copy reviewed dir %s to build dir %s: %w", reviewDir, buildDir, err)
	}
	gitDir := filepath.Join(buildDir, ".git")
	if err := os.RemoveAll(gitDir); err != nil {
		return "", fmt.Errorf("failed to remove %s: %w", gitDir, err)
	}
	return buildDir, nil
}
