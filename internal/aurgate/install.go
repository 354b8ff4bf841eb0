package aurgate

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"zombiezen.com/go/log"
)

// PackageReviewer gates every pkgbase behind a human review. It returns true
// when the user chose to keep an existing build of the same revision.
type PackageReviewer interface {
	Review(ctx context.Context, pkgbase string) (bool, error)
}

// Installer drives one install run from target names to installed packages.
type Installer struct {
	Config    *Config
	Resolver  MetadataResolver
	Packages  PackageManager
	Reviewer  PackageReviewer
	VCS       RecipeVCS
	Builder   Builder
	Stager    *Stager
	BuildDirs *BuildDirs
	Input     LineReader
	Out       io.Writer

	// Journal and Mirror are optional. When Journal is nil, OpenJournal is
	// called once the first packages are installed, so a run that stops
	// earlier leaves nothing on disk.
	Journal     *Journal
	OpenJournal func() (*Journal, error)
	Mirror      ArchiveUploader

	journalTried bool
}

// stagedBuild is one archive staged for installation with where it came from.
type stagedBuild struct {
	pkgbase  string
	revision string
	archive  StagedArchive
}

// Install resolves targets, reviews every pkgbase, then builds and installs
// depth group after depth group, deepest first. asDeps marks even the
// requested targets as dependencies.
func (in *Installer) Install(ctx context.Context, targets []string, offline, asDeps bool) error {
	plan, err := ResolveDepths(ctx, in.Resolver, targets)
	if err != nil {
		return err
	}
	if err := ShowInstallSummary(in.Out, in.Input, plan.SystemDeps, plan.SplitToDepth); err != nil {
		return err
	}

	reviewRoot := in.Config.ReviewRoot()
	if err := os.MkdirAll(reviewRoot, 0o755); err != nil {
		return fmt.Errorf("failed to create review root %s: %w", reviewRoot, err)
	}
	cachedSet := make(map[string]bool)
	for _, pkgbase := range plan.Pkgbases() {
		cached, err := in.Reviewer.Review(ctx, pkgbase)
		if err != nil {
			return fmt.Errorf("review of %s: %w", pkgbase, err)
		}
		if cached {
			cachedSet[pkgbase] = true
		}
	}

	if len(plan.SystemDeps) > 0 {
		arrowf(in.Out, colInfo, "Installing %d package(s) from the repositories\n", len(plan.SystemDeps))
		if err := in.Packages.EnsureSystemPackagesInstalled(ctx, plan.SystemDeps); err != nil {
			return fmt.Errorf("failed to install repository dependencies: %w", err)
		}
	}

	whitelist := plan.Whitelist()
	for _, group := range plan.Groups() {
		if err := in.installGroup(ctx, group, whitelist, cachedSet, offline, asDeps || group.Depth > 0); err != nil {
			return err
		}
	}

	for _, pkgbase := range plan.Pkgbases() {
		if err := in.BuildDirs.Teardown(ctx, pkgbase); err != nil {
			return err
		}
	}
	cFprintln(in.Out, colSuccess, "All packages installed.")
	return nil
}

// installGroup builds (or reuses) and stages every pkgbase of one depth, then
// installs all staged archives in one package manager call.
func (in *Installer) installGroup(ctx context.Context, group DepthGroup, whitelist, cachedSet map[string]bool, offline, asDeps bool) error {
	log.Debugf(ctx, "processing depth %d: %v", group.Depth, group.Packages)

	var staged []stagedBuild
	for _, pkg := range group.Packages {
		rev, revKnown := ShortRevision(ctx, in.VCS, in.Config.ReviewDir(pkg.Pkgbase))
		buildDir := in.Config.BuildDir(pkg.Pkgbase)

		if in.BuildDirs.CanReuse(pkg.Pkgbase, cachedSet[pkg.Pkgbase], rev, revKnown) {
			arrowf(in.Out, colInfo, "Using cached build of %s (%s)\n", pkg.Pkgbase, rev)
		} else {
			arrowf(in.Out, colInfo, "Building %s (%s)\n", pkg.Pkgbase, rev)
			var err error
			buildDir, err = in.BuildDirs.Prepare(ctx, in.Config.ReviewDir(pkg.Pkgbase), pkg.Pkgbase, rev)
			if err != nil {
				return err
			}
			if err := in.Builder.BuildDirectory(ctx, buildDir, offline, false); err != nil {
				return fmt.Errorf("failed to build %s in %s: %w", pkg.Pkgbase, buildDir, err)
			}
		}

		stageDir := in.Config.CheckedTarsDir(pkg.Pkgbase)
		if _, err := in.Stager.CheckTarsAndMove(ctx, buildDir, stageDir, whitelist); err != nil {
			return err
		}
		archives, err := StagedArchives(stageDir, pkg.Split)
		if err != nil {
			return err
		}
		for _, a := range archives {
			staged = append(staged, stagedBuild{pkgbase: pkg.Pkgbase, revision: rev, archive: a})
		}
	}

	if len(staged) == 0 {
		return fmt.Errorf("no verified archives produced at depth %d", group.Depth)
	}
	archives := make([]StagedArchive, len(staged))
	for i, s := range staged {
		archives[i] = s.archive
	}
	if err := in.Packages.EnsureBuiltPackagesInstalled(ctx, archives, asDeps); err != nil {
		return fmt.Errorf("failed to install built packages: %w", err)
	}
	in.afterInstall(ctx, staged, asDeps)
	return nil
}

// afterInstall journals and mirrors installed archives. Both are
// best effort: the packages are already on the system.
func (in *Installer) afterInstall(ctx context.Context, staged []stagedBuild, asDeps bool) {
	journal := in.journal()
	if journal == nil && in.Mirror == nil {
		return
	}
	now := time.Now()
	var entries []JournalEntry
	for _, s := range staged {
		digest, err := ComputeChecksum(s.archive.Path)
		if err != nil {
			cFprintf(in.Out, colWarn, "Warning: %v\n", err)
			continue
		}
		entries = append(entries, JournalEntry{
			Pkgbase:     s.pkgbase,
			Split:       s.archive.Split,
			File:        filepath.Base(s.archive.Path),
			Revision:    s.revision,
			Blake3:      digest.Sum,
			Size:        digest.Size,
			AsDeps:      asDeps,
			InstalledAt: now,
		})
		if in.Mirror != nil {
			if err := in.Mirror.Upload(ctx, s.pkgbase, s.archive.Path, digest); err != nil {
				cFprintf(in.Out, colWarn, "Warning: mirror upload failed: %v\n", err)
			}
		}
	}
	if journal != nil && len(entries) > 0 {
		if err := journal.Record(entries...); err != nil {
			cFprintf(in.Out, colWarn, "Warning: failed to record install journal: %v\n", err)
		}
	}
}

// journal returns the install journal, opening it on first use.
func (in *Installer) journal() *Journal {
	if in.Journal != nil || in.OpenJournal == nil || in.journalTried {
		return in.Journal
	}
	in.journalTried = true
	j, err := in.OpenJournal()
	if err != nil {
		cFprintf(in.Out, colWarn, "Warning: install journal disabled: %v\n", err)
		return nil
	}
	in.Journal = j
	return j
}

// SplitLister reads the package names a recipe directory produces.
type SplitLister interface {
	SplitNames(ctx context.Context, dir string) ([]string, error)
}

// BuildLocal builds the recipe in dir as is, verifies and stages its
// archives under the checked tars directory named after dir, and installs
// them after confirmation. No review takes place: the directory is the
// user's own.
func (in *Installer) BuildLocal(ctx context.Context, dir string, offline bool, lister SplitLister) error {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	splits, err := lister.SplitNames(ctx, dir)
	if err != nil {
		return fmt.Errorf("failed to list packages of %s: %w", dir, err)
	}
	if len(splits) == 0 {
		return fmt.Errorf("recipe in %s declares no packages", dir)
	}
	whitelist := make(map[string]bool, len(splits))
	for _, s := range splits {
		whitelist[s] = true
	}

	if err := in.Builder.BuildDirectory(ctx, dir, offline, true); err != nil {
		return fmt.Errorf("failed to build %s: %w", dir, err)
	}
	name := filepath.Base(dir)
	stageDir := in.Config.CheckedTarsDir(name)
	paths, err := in.Stager.CheckTarsAndMove(ctx, dir, stageDir, whitelist)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("build of %s produced no archives named after %v", dir, splits)
	}
	for _, p := range paths {
		arrowf(in.Out, colSuccess, "Verified %s\n", p)
	}
	if !askForConfirmation(in.Input, colNote, "Install %d package(s)?", len(paths)) {
		cFprintf(in.Out, colInfo, "Archives kept in %s\n", stageDir)
		return nil
	}
	archives, err := StagedArchives(stageDir, splits[0])
	if err != nil {
		return err
	}
	if err := in.Packages.EnsureBuiltPackagesInstalled(ctx, archives, false); err != nil {
		return fmt.Errorf("failed to install built packages: %w", err)
	}
	staged := make([]stagedBuild, len(archives))
	for i, a := range archives {
		staged[i] = stagedBuild{pkgbase: name, revision: "local", archive: a}
	}
	in.afterInstall(ctx, staged, false)
	return nil
}
