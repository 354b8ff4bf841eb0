package aurgate

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"slices"
	"strings"

	"zombiezen.com/go/log"
)

// InstallPlan is the resolved dependency graph of one install invocation.
type InstallPlan struct {
	SplitToPkgbase map[string]string
	SystemDeps     []string
	SplitToDepth   map[string]int
}

// ScheduledPackage is one pkgbase scheduled at its depth, together with the
// split name it was first reached through.
type ScheduledPackage struct {
	Pkgbase string
	Split   string
}

// DepthGroup holds every pkgbase built and installed together at one depth.
type DepthGroup struct {
	Depth    int
	Packages []ScheduledPackage
}

// ResolveDepths queries recursive metadata for targets and checks that every
// package that has to be built is known to the AUR.
func ResolveDepths(ctx context.Context, resolver MetadataResolver, targets []string) (*InstallPlan, error) {
	res, err := resolver.RecursiveInfo(ctx, targets)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch info from AUR: %w", err)
	}

	var notFound []string
	for split := range res.Depths {
		if _, ok := res.Packages[split]; !ok {
			notFound = append(notFound, split)
		}
	}
	if len(notFound) > 0 {
		slices.Sort(notFound)
		return nil, &UnresolvedError{Names: notFound}
	}

	plan := &InstallPlan{
		SplitToPkgbase: make(map[string]string, len(res.Packages)),
		SystemDeps:     slices.Clone(res.SystemDeps),
		SplitToDepth:   make(map[string]int, len(res.Depths)),
	}
	for split, depth := range res.Depths {
		plan.SplitToDepth[split] = depth
		plan.SplitToPkgbase[split] = res.Packages[split].PackageBase
	}
	return plan, nil
}

// Pkgbases returns every distinct pkgbase of the plan in sorted order.
func (p *InstallPlan) Pkgbases() []string {
	seen := make(map[string]bool)
	var out []string
	for _, base := range p.SplitToPkgbase {
		if !seen[base] {
			seen[base] = true
			out = append(out, base)
		}
	}
	slices.Sort(out)
	return out
}

// Whitelist is the set of split names an archive of this run may be named after.
func (p *InstallPlan) Whitelist() map[string]bool {
	w := make(map[string]bool, len(p.SplitToDepth))
	for split := range p.SplitToDepth {
		w[split] = true
	}
	return w
}

// pkgbaseDepths maps every pkgbase to the deepest depth any of its split names appears at.
func (p *InstallPlan) pkgbaseDepths() map[string]int {
	out := make(map[string]int)
	for split, depth := range p.SplitToDepth {
		base := p.SplitToPkgbase[split]
		if cur, ok := out[base]; !ok || depth > cur {
			out[base] = depth
		}
	}
	return out
}

// Groups orders the plan into depth groups, deepest first. A pkgbase reachable
// through several split names is scheduled once, at its maximum depth, so it is
// built no later than anything that depends on it.
func (p *InstallPlan) Groups() []DepthGroup {
	type entry struct {
		pkgbase string
		depth   int
		split   string
	}
	maxDepth := p.pkgbaseDepths()
	entries := make([]entry, 0, len(maxDepth))
	for split, depth := range p.SplitToDepth {
		base := p.SplitToPkgbase[split]
		if depth == maxDepth[base] {
			entries = append(entries, entry{pkgbase: base, depth: depth, split: split})
		}
	}
	slices.SortFunc(entries, func(a, b entry) int {
		return cmp.Or(
			cmp.Compare(b.depth, a.depth),
			cmp.Compare(a.pkgbase, b.pkgbase),
			cmp.Compare(a.split, b.split),
		)
	})

	var groups []DepthGroup
	seen := make(map[string]bool)
	for _, e := range entries {
		// Several splits may share the maximum depth; the first by name wins.
		if seen[e.pkgbase] {
			continue
		}
		seen[e.pkgbase] = true
		if len(groups) == 0 || groups[len(groups)-1].Depth != e.depth {
			groups = append(groups, DepthGroup{Depth: e.depth})
		}
		last := &groups[len(groups)-1]
		last.Packages = append(last.Packages, ScheduledPackage{Pkgbase: e.pkgbase, Split: e.split})
	}
	return groups
}

// ShowInstallSummary lists what is going to be installed and blocks until the
// user confirms with "o". Nothing is asked when a single package is involved.
func ShowInstallSummary(w io.Writer, in LineReader, systemDeps []string, aurPackages map[string]int) error {
	if len(systemDeps)+len(aurPackages) == 1 {
		return nil
	}
	if len(systemDeps) > 0 {
		cFprintln(w, colInfo, "\nIn order to install all targets, the following pacman packages will need to be installed:")
		for _, name := range systemDeps {
			fmt.Fprintf(w, "  %s\n", name)
		}
	}
	cFprintln(w, colInfo, "\nAnd the following AUR packages will need to be built and installed:")
	names := make([]string, 0, len(aurPackages))
	for name := range aurPackages {
		names = append(names, name)
	}
	slices.SortFunc(names, func(a, b string) int {
		return cmp.Or(cmp.Compare(aurPackages[b], aurPackages[a]), cmp.Compare(a, b))
	})
	for _, name := range names {
		fmt.Fprintf(w, "  %s\n", name)
	}
	fmt.Fprintln(w)

	for {
		cFprintf(w, colNote, "Proceed? [O]=ok, Ctrl-C=abort. ")
		answer, err := in.ReadLineLowercase()
		if err != nil {
			return err
		}
		if answer == "o" {
			return nil
		}
	}
}

// LocalPackages answers questions about the local system for dependency resolution.
type LocalPackages interface {
	// IsSatisfied reports whether an installed package satisfies dep (which may carry a version constraint).
	IsSatisfied(ctx context.Context, dep string) (bool, error)
	// SyncProvider names the repository package that satisfies dep, if any.
	SyncProvider(ctx context.Context, dep string) (string, bool, error)
}

type aurInfoSource interface {
	Info(ctx context.Context, names []string) (map[string]AURPackage, error)
}

// AURResolver walks the dependency graph of AUR packages breadth-first.
type AURResolver struct {
	AUR   aurInfoSource
	Local LocalPackages
}

// RecursiveInfo resolves targets and all of their transitive AUR dependencies.
// Targets are at depth 0; a dependency sits one level below the deepest
// package that requires it.
func (r *AURResolver) RecursiveInfo(ctx context.Context, targets []string) (*Resolution, error) {
	res := &Resolution{
		Packages: make(map[string]AURPackage),
		Depths:   make(map[string]int),
	}
	systemSeen := make(map[string]bool)
	providers := make(map[string]bool)
	skipped := make(map[string]bool)

	current := make([]string, 0, len(targets))
	for _, t := range targets {
		if _, ok := res.Depths[t]; !ok {
			res.Depths[t] = 0
			current = append(current, t)
		}
	}

	for depth := 0; len(current) > 0; depth++ {
		if depth > len(res.Depths) {
			return nil, fmt.Errorf("dependency cycle detected among %s", strings.Join(current, ", "))
		}
		log.Debugf(ctx, "resolving depth %d: %v", depth, current)
		info, err := r.AUR.Info(ctx, current)
		if err != nil {
			return nil, err
		}
		var next []string
		queued := make(map[string]bool)
		for _, name := range current {
			pkg, ok := info[name]
			if !ok {
				continue
			}
			res.Packages[name] = pkg
			for _, dep := range pkg.BuildDepends() {
				depName := stripVersionConstraint(dep)
				if depName == "" || systemSeen[depName] || skipped[depName] {
					continue
				}
				if known, ok := res.Depths[depName]; ok {
					if known < depth+1 {
						res.Depths[depName] = depth + 1
						if !queued[depName] {
							queued[depName] = true
							next = append(next, depName)
						}
					}
					continue
				}
				satisfied, err := r.Local.IsSatisfied(ctx, dep)
				if err != nil {
					return nil, err
				}
				if satisfied {
					skipped[depName] = true
					continue
				}
				provider, inRepos, err := r.Local.SyncProvider(ctx, dep)
				if err != nil {
					return nil, err
				}
				if inRepos {
					systemSeen[depName] = true
					if !providers[provider] {
						providers[provider] = true
						res.SystemDeps = append(res.SystemDeps, provider)
					}
					continue
				}
				res.Depths[depName] = depth + 1
				queued[depName] = true
				next = append(next, depName)
			}
		}
		current = next
	}
	return res, nil
}

// stripVersionConstraint turns "foo>=1.2" into "foo".
func stripVersionConstraint(dep string) string {
	dep = strings.TrimSpace(dep)
	if i := strings.IndexAny(dep, "<>="); i >= 0 {
		dep = dep[:i]
	}
	return dep
}
