package aurgate

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// shellcheckExcludes silences checks that every PKGBUILD trips: makepkg
// reads the variables and sets the ones the recipe uses.
var shellcheckExcludes = []string{"SC2034", "SC2154", "SC2164"}

// Makepkg builds recipes with makepkg inside a bubblewrap sandbox.
type Makepkg struct {
	Runner CommandRunner
}

// sandbox wraps args in bwrap: the root is read-only, dir is the only
// writable tree, and the network is cut when offline.
func sandbox(dir string, offline bool, args ...string) []string {
	wrapped := []string{
		"--ro-bind", "/", "/",
		"--dev", "/dev",
		"--proc", "/proc",
		"--tmpfs", "/tmp",
		"--bind", dir, dir,
		"--chdir", dir,
		"--die-with-parent",
	}
	if offline {
		wrapped = append(wrapped, "--unshare-net")
	}
	return append(wrapped, args...)
}

// BuildDirectory downloads and verifies the sources of the recipe in dir,
// then builds it with the network cut when offline.
func (m *Makepkg) BuildDirectory(ctx context.Context, dir string, offline, interactive bool) error {
	fetch := exec.CommandContext(ctx, "bwrap", sandbox(dir, false, "makepkg", "--verifysource")...)
	fetch.Dir = dir
	if err := m.Runner.Run(fetch); err != nil {
		return fmt.Errorf("failed to download sources in %s: %w", dir, err)
	}

	makepkgArgs := []string{"makepkg", "--force"}
	if !interactive {
		makepkgArgs = append(makepkgArgs, "--noconfirm")
	}
	build := exec.CommandContext(ctx, "bwrap", sandbox(dir, offline, makepkgArgs...)...)
	build.Dir = dir
	if err := m.Runner.Run(build); err != nil {
		return fmt.Errorf("makepkg failed in %s: %w", dir, err)
	}
	return nil
}

// StaticAnalyze runs shellcheck over a PKGBUILD.
func (m *Makepkg) StaticAnalyze(ctx context.Context, recipePath string) error {
	args := []string{"--shell=bash", "--exclude=" + strings.Join(shellcheckExcludes, ","), recipePath}
	if err := m.Runner.Run(exec.CommandContext(ctx, "shellcheck", args...)); err != nil {
		return fmt.Errorf("shellcheck %s: %w", recipePath, err)
	}
	return nil
}

// SplitNames lists the pkgname entries of the recipe in dir.
func (m *Makepkg) SplitNames(ctx context.Context, dir string) ([]string, error) {
	cmd := exec.CommandContext(ctx, "makepkg", "--printsrcinfo")
	cmd.Dir = dir
	out, err := m.Runner.Output(cmd)
	if err != nil {
		return nil, fmt.Errorf("makepkg --printsrcinfo: %w", err)
	}
	return parseSrcinfoNames(out), nil
}

func parseSrcinfoNames(srcinfo []byte) []string {
	var names []string
	scanner := bufio.NewScanner(bytes.NewReader(srcinfo))
	for scanner.Scan() {
		key, val, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if ok && strings.TrimSpace(key) == "pkgname" {
			names = append(names, strings.TrimSpace(val))
		}
	}
	return names
}
