package aurgate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"zombiezen.com/go/log"
)

// commonSuffixLength finds the suffix shared by every name (version, release,
// architecture and extension, when a build applies them uniformly) and
// shortens it until stripping it from some name yields a whitelisted package
// name. It returns 0 when no such suffix exists.
func commonSuffixLength(names []string, whitelist map[string]bool) int {
	if len(names) == 0 {
		return 0
	}
	shortest := len(names[0])
	for _, name := range names[1:] {
		shortest = min(shortest, len(name))
	}

	length := 0
	for length < shortest {
		c := names[0][len(names[0])-1-length]
		same := true
		for _, name := range names[1:] {
			if name[len(name)-1-length] != c {
				same = false
				break
			}
		}
		if !same {
			break
		}
		length++
	}

	for ; length > 0; length-- {
		for _, name := range names {
			if whitelist[name[:len(name)-length]] {
				return length
			}
		}
	}
	return 0
}

// matchArchives returns the names ending with pkgExt whose package name,
// after removing the common suffix, is whitelisted.
func matchArchives(names []string, pkgExt string, whitelist map[string]bool) []string {
	var candidates []string
	for _, name := range names {
		if strings.HasSuffix(name, pkgExt) {
			candidates = append(candidates, name)
		}
	}
	suffix := commonSuffixLength(candidates, whitelist)
	var matched []string
	for _, name := range candidates {
		if whitelist[name[:len(name)-suffix]] {
			matched = append(matched, name)
		}
	}
	return matched
}

// Stager verifies built archives and moves them to their staging directory.
type Stager struct {
	Config   *Config
	Verifier ArchiveVerifier
}

// CheckTarsAndMove verifies every whitelisted archive in srcDir and moves the
// verified files into a freshly recreated stageDir. Any verification or
// filesystem failure aborts the whole operation. It returns the staged paths.
func (s *Stager) CheckTarsAndMove(ctx context.Context, srcDir, stageDir string, whitelist map[string]bool) ([]string, error) {
	log.Debugf(ctx, "checking tars and moving for %s", srcDir)

	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory contents for %s: %w", srcDir, err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	matched := matchArchives(names, s.Config.PkgExt, whitelist)
	log.Debugf(ctx, "files filtered for tar checking: %v", matched)

	for _, name := range matched {
		path := filepath.Join(srcDir, name)
		if err := s.Verifier.Verify(path); err != nil {
			return nil, fmt.Errorf("archive %s failed verification: %w", path, err)
		}
	}
	log.Debugf(ctx, "all package (tar) files checked, moving them")

	if err := os.RemoveAll(stageDir); err != nil {
		return nil, fmt.Errorf("failed to clean checked tar files dir %s: %w", stageDir, err)
	}
	if err := os.MkdirAll(stageDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create checked tars dir %s: %w", stageDir, err)
	}

	staged := make([]string, 0, len(matched))
	for _, name := range matched {
		src := filepath.Join(srcDir, name)
		dst := filepath.Join(stageDir, name)
		if err := moveFile(src, dst); err != nil {
			return nil, fmt.Errorf("failed to move %s (build artifact) to %s: %w", src, stageDir, err)
		}
		staged = append(staged, dst)
	}
	return staged, nil
}

// StagedArchives pairs every file in stageDir with split. When a pkgbase
// produces several split packages all of its archives end up bound to the
// one split name it was scheduled under; installation only needs to know the
// archive came from this pkgbase.
func StagedArchives(stageDir, split string) ([]StagedArchive, error) {
	entries, err := os.ReadDir(stageDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read checked tars directory %s: %w", stageDir, err)
	}
	out := make([]StagedArchive, 0, len(entries))
	for _, e := range entries {
		out = append(out, StagedArchive{Split: split, Path: filepath.Join(stageDir, e.Name())})
	}
	return out, nil
}
