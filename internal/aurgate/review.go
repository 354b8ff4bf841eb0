package aurgate

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"zombiezen.com/go/log"
)

// reviewEffect is the side effect attached to one menu answer.
type reviewEffect int

const (
	effectNone reviewEffect = iota
	effectStaticAnalysis
	effectShowDiff
	effectMerge
	effectShell
)

func (e reviewEffect) String() string {
	switch e {
	case effectStaticAnalysis:
		return "static-analysis"
	case effectShowDiff:
		return "diff"
	case effectMerge:
		return "merge"
	case effectShell:
		return "shell"
	default:
		return "none"
	}
}

// menuTransition maps an answer in the review menu to its effect and
// reports whether the answer approves the recipe. Approval and static
// analysis only exist while upstream is merged; merging only while it is not.
func menuTransition(merged bool, input string) (reviewEffect, bool) {
	if merged {
		switch input {
		case "s":
			return effectStaticAnalysis, false
		case "d":
			return effectShowDiff, false
		case "t":
			return effectShell, false
		case "o":
			return effectNone, true
		}
		return effectNone, false
	}
	switch input {
	case "d":
		return effectShowDiff, false
	case "m":
		return effectMerge, false
	case "t":
		return effectShell, false
	}
	return effectNone, false
}

// Reviewer runs the interactive review of one pkgbase's recipe.
type Reviewer struct {
	Config    *Config
	VCS       RecipeVCS
	Builder   Builder
	Shell     ShellRunner
	Input     LineReader
	BuildDirs *BuildDirs
	Out       io.Writer
}

// Review fetches the recipe of pkgbase and keeps the user in the review menu
// until they approve it. It returns true when the user chose to keep an
// existing build of the same revision instead.
func (r *Reviewer) Review(ctx context.Context, pkgbase string) (bool, error) {
	dir := r.Config.ReviewDir(pkgbase)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, fmt.Errorf("failed to create review directory %s: %w", dir, err)
	}
	if err := r.acquire(ctx, pkgbase, dir); err != nil {
		return false, err
	}

	merged, err := r.VCS.IsUpstreamMerged(ctx, dir)
	if err != nil {
		return false, fmt.Errorf("failed to check merge status of %s: %w", pkgbase, err)
	}

	if merged && r.reusable(ctx, pkgbase, dir) {
		cached, err := r.offerCache()
		if err != nil {
			return false, err
		}
		if cached {
			log.Debugf(ctx, "%s: keeping cached build", pkgbase)
			return true, nil
		}
	}

	for {
		// Recomputed every round: a merge or a shell session may change it.
		merged, err := r.VCS.IsUpstreamMerged(ctx, dir)
		if err != nil {
			return false, fmt.Errorf("failed to check merge status of %s: %w", pkgbase, err)
		}
		if err := r.printMenu(ctx, pkgbase, dir, merged); err != nil {
			return false, err
		}
		answer, err := r.Input.ReadLineLowercase()
		if err != nil {
			return false, err
		}
		effect, approved := menuTransition(merged, answer)
		if approved {
			log.Debugf(ctx, "%s: recipe approved", pkgbase)
			return false, nil
		}
		if err := r.apply(ctx, effect, dir, merged); err != nil {
			return false, err
		}
	}
}

func (r *Reviewer) acquire(ctx context.Context, pkgbase, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read review directory %s: %w", dir, err)
	}
	if len(entries) == 0 {
		arrowf(r.Out, colInfo, "Fetching recipe of %s\n", pkgbase)
		if err := r.VCS.Init(ctx, pkgbase, dir); err != nil {
			return fmt.Errorf("failed to clone %s into %s: %w", pkgbase, dir, err)
		}
		return nil
	}
	arrowf(r.Out, colInfo, "Updating recipe of %s\n", pkgbase)
	if err := r.VCS.Fetch(ctx, dir); err != nil {
		return fmt.Errorf("failed to fetch updates of %s in %s: %w", pkgbase, dir, err)
	}
	return nil
}

// reusable reports whether the live build of pkgbase was made from the
// revision currently checked out and still holds package files.
func (r *Reviewer) reusable(ctx context.Context, pkgbase, dir string) bool {
	rev, ok := r.VCS.HeadShortRevision(ctx, dir)
	if !ok || rev == "" {
		return false
	}
	rec := r.BuildDirs.Record(pkgbase)
	return rec.Present && rec.Revision == rev && r.BuildDirs.HasPackageFiles(pkgbase)
}

func (r *Reviewer) offerCache() (bool, error) {
	cFprintf(r.Out, colNote, "Use existing build (same commit)? [R]=rebuild, [C]=use cached. ")
	answer, err := r.Input.ReadLineLowercase()
	if err != nil {
		return false, err
	}
	return answer == "c", nil
}

func (r *Reviewer) printMenu(ctx context.Context, pkgbase, dir string, merged bool) error {
	cFprintf(r.Out, colInfo, "\nReviewing %s in %s\n", pkgbase, dir)
	if merged {
		identical, err := r.VCS.IdenticalToUpstream(ctx, dir)
		if err != nil {
			return fmt.Errorf("failed to compare %s with upstream: %w", pkgbase, err)
		}
		fmt.Fprintln(r.Out, "  [S]=run shellcheck on PKGBUILD")
		if identical {
			cFprintln(r.Out, colDim, "  [D]=(identical to upstream, empty diff)")
		} else {
			fmt.Fprintln(r.Out, "  [D]=view your changes")
		}
	} else {
		fmt.Fprintln(r.Out, "  [D]=view upstream changes since your last review")
		fmt.Fprintln(r.Out, "  [M]=accept/merge upstream changes")
		cFprintln(r.Out, colDim, "  [S]=(shellcheck not available until you merge)")
	}
	fmt.Fprintln(r.Out, "  [T]=run shell to edit/inspect")
	if merged {
		fmt.Fprintln(r.Out, "  [O]=ok, use package")
	} else {
		cFprintln(r.Out, colDim, "  [O]=(cannot use the package until you merge)")
	}
	cFprintf(r.Out, colNote, "> ")
	return nil
}

func (r *Reviewer) apply(ctx context.Context, effect reviewEffect, dir string, merged bool) error {
	log.Debugf(ctx, "review effect %v in %s", effect, dir)
	switch effect {
	case effectStaticAnalysis:
		if err := r.Builder.StaticAnalyze(ctx, filepath.Join(dir, "PKGBUILD")); err != nil {
			cFprintf(r.Out, colWarn, "Static analysis reported problems: %v\n", err)
		} else {
			cFprintln(r.Out, colSuccess, "Static analysis found nothing to report.")
		}
	case effectShowDiff:
		if err := r.VCS.ShowUpstreamDiff(ctx, dir, !merged); err != nil {
			return fmt.Errorf("failed to show diff in %s: %w", dir, err)
		}
	case effectMerge:
		if err := r.VCS.MergeUpstream(ctx, dir); err != nil {
			return fmt.Errorf("failed to merge upstream changes in %s: %w", dir, err)
		}
	case effectShell:
		cFprintln(r.Out, colInfo, "Changes that you make will be merged with upstream updates in future.")
		cFprintln(r.Out, colInfo, "Exit the shell with `logout` or Ctrl-D...")
		if err := r.Shell.RunWithEnvFallback(ctx, dir, "SHELL", "bash", nil); err != nil {
			return err
		}
	}
	return nil
}
