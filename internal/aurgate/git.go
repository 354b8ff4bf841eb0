package aurgate

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

const upstreamRef = "upstream/master"

// Git manages recipe checkouts with the git CLI. Every checkout has an
// "upstream" remote pointing at the AUR repository of its pkgbase; local
// history is what the user has reviewed.
type Git struct {
	AURURL string
	Runner CommandRunner
	Out    io.Writer
	// Pager displays diffs; RunPager when nil.
	Pager func(title string, lines []string) error
}

func (g *Git) command(ctx context.Context, dir string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	return cmd
}

func (g *Git) run(ctx context.Context, dir string, args ...string) error {
	cmd := g.command(ctx, dir, args...)
	cmd.Stdout = g.Out
	cmd.Stderr = g.Out
	if err := g.Runner.Run(cmd); err != nil {
		return fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return nil
}

// check runs a git query whose exit status 0 means yes and 1 means no.
func (g *Git) check(ctx context.Context, dir string, args ...string) (bool, error) {
	_, err := g.Runner.Output(g.command(ctx, dir, args...))
	if err == nil {
		return true, nil
	}
	if code, ok := exitCode(err); ok && code == 1 {
		return false, nil
	}
	return false, fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
}

// Init creates an empty repository in dir tracking the AUR recipe of pkgbase.
// HEAD stays unborn until the user merges upstream.
func (g *Git) Init(ctx context.Context, pkgbase, dir string) error {
	if err := g.run(ctx, dir, "init", "-q"); err != nil {
		return err
	}
	remote := fmt.Sprintf("%s/%s.git", g.AURURL, pkgbase)
	if err := g.run(ctx, dir, "remote", "add", "upstream", remote); err != nil {
		return err
	}
	return g.Fetch(ctx, dir)
}

// Fetch updates the upstream remote without touching the work tree.
func (g *Git) Fetch(ctx context.Context, dir string) error {
	return g.run(ctx, dir, "fetch", "-q", "upstream")
}

func (g *Git) headExists(ctx context.Context, dir string) (bool, error) {
	return g.check(ctx, dir, "rev-parse", "--verify", "-q", "HEAD")
}

// IsUpstreamMerged reports whether HEAD contains the latest upstream commit.
func (g *Git) IsUpstreamMerged(ctx context.Context, dir string) (bool, error) {
	born, err := g.headExists(ctx, dir)
	if err != nil || !born {
		return false, err
	}
	return g.check(ctx, dir, "merge-base", "--is-ancestor", upstreamRef, "HEAD")
}

// IdenticalToUpstream reports whether the work tree matches upstream exactly.
func (g *Git) IdenticalToUpstream(ctx context.Context, dir string) (bool, error) {
	return g.check(ctx, dir, "diff", "--quiet", upstreamRef)
}

// HeadShortRevision returns the abbreviated hash of HEAD.
func (g *Git) HeadShortRevision(ctx context.Context, dir string) (string, bool) {
	out, err := g.Runner.Output(g.command(ctx, dir, "rev-parse", "--short", "HEAD"))
	if err != nil {
		return "", false
	}
	rev := strings.TrimSpace(string(out))
	return rev, rev != ""
}

// ShowUpstreamDiff pages the upstream changes not yet merged when unmerged
// is set, and the user's own changes against upstream otherwise.
func (g *Git) ShowUpstreamDiff(ctx context.Context, dir string, unmerged bool) error {
	var args []string
	title := "your changes"
	switch {
	case !unmerged:
		args = []string{"diff", "--color=always", upstreamRef}
	default:
		title = "upstream changes"
		born, err := g.headExists(ctx, dir)
		if err != nil {
			return err
		}
		if born {
			args = []string{"diff", "--color=always", "HEAD..." + upstreamRef}
		} else {
			// Nothing reviewed yet: the whole upstream history is new.
			args = []string{"log", "-p", "--color=always", upstreamRef}
		}
	}
	out, err := g.Runner.Output(g.command(ctx, dir, args...))
	if err != nil {
		return fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	pager := g.Pager
	if pager == nil {
		pager = RunPager
	}
	return pager(title, splitOutput(out))
}

// MergeUpstream brings upstream into the local history. A checkout that
// has never been merged adopts upstream as its master branch.
func (g *Git) MergeUpstream(ctx context.Context, dir string) error {
	born, err := g.headExists(ctx, dir)
	if err != nil {
		return err
	}
	if !born {
		return g.run(ctx, dir, "checkout", "-q", "-B", "master", upstreamRef)
	}
	return g.run(ctx, dir, "merge", "--no-edit", upstreamRef)
}
