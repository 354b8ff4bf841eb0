package aurgate

import (
	"context"
	"fmt"
	"strings"
)

// Resolution is the outcome of a recursive metadata lookup.
type Resolution struct {
	// Packages maps every split package found in the AUR to its metadata.
	Packages map[string]AURPackage
	// SystemDeps are dependencies available from the sync repositories, in discovery order.
	SystemDeps []string
	// Depths maps every split package that has to be built to its dependency depth.
	// Names missing from Packages could not be resolved.
	Depths map[string]int
}

// UnresolvedError lists every requested or required package that the AUR does not know.
type UnresolvedError struct {
	Names []string
}

func (e *UnresolvedError) Error() string {
	return fmt.Sprintf("need to install packages: %s, but they are not found on AUR", strings.Join(e.Names, ", "))
}

// StagedArchive is a verified archive ready to be handed to the system package manager.
type StagedArchive struct {
	Split string
	Path  string
}

// MetadataResolver queries recursive package metadata from the package registry.
type MetadataResolver interface {
	RecursiveInfo(ctx context.Context, targets []string) (*Resolution, error)
}

// PackageManager installs repository packages and locally built archives.
type PackageManager interface {
	EnsureSystemPackagesInstalled(ctx context.Context, names []string) error
	EnsureBuiltPackagesInstalled(ctx context.Context, archives []StagedArchive, asDeps bool) error
}

// RecipeVCS manages the version-controlled checkout of a build recipe.
type RecipeVCS interface {
	Init(ctx context.Context, pkgbase, dir string) error
	Fetch(ctx context.Context, dir string) error
	IsUpstreamMerged(ctx context.Context, dir string) (bool, error)
	IdenticalToUpstream(ctx context.Context, dir string) (bool, error)
	// HeadShortRevision reports false when the revision cannot be determined.
	HeadShortRevision(ctx context.Context, dir string) (string, bool)
	ShowUpstreamDiff(ctx context.Context, dir string, unmerged bool) error
	MergeUpstream(ctx context.Context, dir string) error
}

// Builder runs untrusted recipes in a sandbox.
type Builder interface {
	BuildDirectory(ctx context.Context, dir string, offline, interactive bool) error
	StaticAnalyze(ctx context.Context, recipePath string) error
}

// ArchiveVerifier inspects the contents of a built archive.
type ArchiveVerifier interface {
	Verify(path string) error
}

// LineReader reads one line of interactive input.
type LineReader interface {
	ReadLineLowercase() (string, error)
}

// ShellRunner spawns an interactive program chosen by an environment variable.
type ShellRunner interface {
	RunWithEnvFallback(ctx context.Context, dir, envVar, defaultCmd string, args []string) error
}
