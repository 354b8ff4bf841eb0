package aurgate

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"zombiezen.com/go/log"
)

// Pacman answers dependency queries and installs packages through pacman.
// Queries run unprivileged; installs go through the root executor.
type Pacman struct {
	Runner CommandRunner
	Root   CommandRunner
}

// IsSatisfied asks pacman -T whether an installed package satisfies dep.
func (p *Pacman) IsSatisfied(ctx context.Context, dep string) (bool, error) {
	_, err := p.Runner.Output(exec.CommandContext(ctx, "pacman", "-T", "--", dep))
	if err == nil {
		return true, nil
	}
	// -T prints the unsatisfied names and exits 127.
	if code, ok := exitCode(err); ok && code == 127 {
		return false, nil
	}
	return false, fmt.Errorf("pacman -T %s: %w", dep, err)
}

// SyncProvider asks the sync databases which package satisfies dep. The
// lookup honours provides and version constraints, so "sh" resolves to bash.
// A dependency no repository satisfies reports false.
func (p *Pacman) SyncProvider(ctx context.Context, dep string) (string, bool, error) {
	out, err := p.Runner.Output(exec.CommandContext(ctx, "pacman", "-Sp", "--noconfirm", "--nodeps", "--nodeps",
		"--print-format", "%n", "--", dep))
	if err != nil {
		if code, ok := exitCode(err); ok && code == 1 {
			return "", false, nil
		}
		return "", false, fmt.Errorf("pacman -Sp %s: %w", dep, err)
	}
	for _, line := range strings.Split(string(out), "\n") {
		if name := strings.TrimSpace(line); name != "" {
			log.Debugf(ctx, "%s is provided by %s", dep, name)
			return name, true, nil
		}
	}
	return "", false, fmt.Errorf("pacman -Sp %s: no package name in output", dep)
}

// EnsureSystemPackagesInstalled installs repository packages as dependencies.
func (p *Pacman) EnsureSystemPackagesInstalled(ctx context.Context, names []string) error {
	if len(names) == 0 {
		return nil
	}
	args := append([]string{"-S", "--needed", "--asdeps", "--"}, names...)
	log.Debugf(ctx, "pacman %v", args)
	err := critical(func() error {
		return p.Root.Run(exec.CommandContext(ctx, "pacman", args...))
	})
	if err != nil {
		return fmt.Errorf("pacman -S: %w", err)
	}
	return nil
}

// EnsureBuiltPackagesInstalled installs local archives in one transaction.
func (p *Pacman) EnsureBuiltPackagesInstalled(ctx context.Context, archives []StagedArchive, asDeps bool) error {
	if len(archives) == 0 {
		return nil
	}
	args := []string{"-U"}
	if asDeps {
		args = append(args, "--asdeps")
	}
	args = append(args, "--")
	for _, a := range archives {
		log.Debugf(ctx, "installing %s from %s", a.Split, a.Path)
		args = append(args, a.Path)
	}
	err := critical(func() error {
		return p.Root.Run(exec.CommandContext(ctx, "pacman", args...))
	})
	if err != nil {
		return fmt.Errorf("pacman -U: %w", err)
	}
	return nil
}
