package aurgate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gookit/color"
	"github.com/spf13/cobra"
	"zombiezen.com/go/log"
)

// cliOptions holds the global flags shared by every subcommand.
type cliOptions struct {
	configPath string
	debug      bool
	cfg        *Config
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}
	root := &cobra.Command{
		Use:           "aurgate",
		Short:         "Review, build and install AUR packages",
		Long:          "aurgate builds AUR packages only after their PKGBUILD has been reviewed, verifies every built archive and installs it with pacman.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       fmt.Sprintf("%s (%s)", version, buildDate),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(opts.configPath)
			if err != nil {
				return err
			}
			if opts.debug {
				cfg.Debug = true
			}
			initLogging(cfg.Debug)
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			log.Debugf(cmd.Context(), "config: %+v", *cfg)
			opts.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Read settings from this KEY=VALUE file only")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")

	root.AddCommand(
		newInstallCmd(opts),
		newTarcheckCmd(),
		newShellcheckCmd(),
		newBuilddirCmd(opts),
		newHistoryCmd(opts),
	)
	return root
}

func newInstallCmd(opts *cliOptions) *cobra.Command {
	var offline, asDeps bool
	cmd := &cobra.Command{
		Use:   "install [--offline] [--asdeps] TARGET...",
		Short: "Review, build and install AUR packages with their dependencies",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, cleanup, err := newInstaller(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer cleanup()
			return in.Install(cmd.Context(), args, offline, asDeps)
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "Cut network access while building (sources are downloaded first)")
	cmd.Flags().BoolVar(&asDeps, "asdeps", false, "Install the requested targets as dependencies too")
	return cmd
}

func newTarcheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tarcheck FILE...",
		Short: "Verify package archives and list their contents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			failed := 0
			for _, file := range args {
				report, err := InspectArchive(file)
				if err != nil {
					return err
				}
				if err := RunPager(file, report.Entries); err != nil {
					return err
				}
				if len(report.Issues) == 0 {
					arrowf(os.Stderr, colSuccess, "%s: %d entries, no problems found\n", file, len(report.Entries))
					continue
				}
				failed++
				cFprintln(os.Stderr, colError, (&VerificationError{Path: file, Issues: report.Issues}).Error())
			}
			if failed > 0 {
				return fmt.Errorf("%d archive(s) failed verification", failed)
			}
			return nil
		},
	}
}

func newShellcheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shellcheck [PKGBUILD]",
		Short: "Run static analysis on a PKGBUILD",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "PKGBUILD"
			if len(args) == 1 {
				path = args[0]
			}
			m := &Makepkg{Runner: NewExecutor(cmd.Context())}
			return m.StaticAnalyze(cmd.Context(), path)
		},
	}
}

func newBuilddirCmd(opts *cliOptions) *cobra.Command {
	var offline bool
	cmd := &cobra.Command{
		Use:   "builddir [--offline] [DIR]",
		Short: "Build a local recipe directory, verify and install its archives",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			in, cleanup, err := newInstaller(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer cleanup()
			return in.BuildLocal(cmd.Context(), dir, offline, &Makepkg{Runner: NewExecutor(cmd.Context())})
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "Cut network access while building (sources are downloaded first)")
	return cmd
}

func newHistoryCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history [PKGBASE]",
		Short: "Show archives installed by aurgate",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := OpenJournal(opts.cfg.JournalPath())
			if err != nil {
				return err
			}
			defer j.Close()
			pkgbase := ""
			if len(args) == 1 {
				pkgbase = args[0]
			}
			entries, err := j.History(pkgbase)
			if err != nil {
				return err
			}
			PrintHistory(os.Stdout, entries)
			return nil
		},
	}
}

// newInstaller wires the production collaborators without touching the
// filesystem. The returned cleanup closes the journal if a run opened it.
func newInstaller(ctx context.Context, cfg *Config) (*Installer, func(), error) {
	user := NewExecutor(ctx)
	root := &Executor{Context: ctx, ShouldRunAsRoot: true, Interactive: true}
	tty := &Executor{Context: ctx, Interactive: true}

	aur, err := NewAURClient(cfg.AURURL)
	if err != nil {
		return nil, nil, err
	}
	pacman := &Pacman{Runner: user, Root: root}
	vcs := &Git{AURURL: cfg.AURURL, Runner: user, Out: os.Stderr}
	builder := &Makepkg{Runner: user}
	input := NewTerminalReader(os.Stdin)
	buildDirs := &BuildDirs{Config: cfg}

	in := &Installer{
		Config:   cfg,
		Resolver: &AURResolver{AUR: aur, Local: pacman},
		Packages: pacman,
		Reviewer: &Reviewer{
			Config:    cfg,
			VCS:       vcs,
			Builder:   builder,
			Shell:     tty,
			Input:     input,
			BuildDirs: buildDirs,
			Out:       os.Stderr,
		},
		VCS:       vcs,
		Builder:   builder,
		Stager:    &Stager{Config: cfg, Verifier: TarChecker{}},
		BuildDirs: buildDirs,
		Input:     input,
		Out:       os.Stderr,
	}

	in.OpenJournal = func() (*Journal, error) { return OpenJournal(cfg.JournalPath()) }
	cleanup := func() {
		if in.Journal != nil {
			in.Journal.Close()
		}
	}
	if cfg.Mirror.Enabled() {
		mirror, err := NewArchiveMirror(ctx, cfg.Mirror, cfg.Debug)
		if err != nil {
			cFprintf(os.Stderr, colWarn, "Warning: archive mirror disabled: %v\n", err)
		} else {
			in.Mirror = mirror
		}
	}
	return in, cleanup, nil
}

// Main is the CLI entrypoint for cmd/aurgate.
func Main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	go func() {
		for {
			select {
			case sig := <-sigs:
				if isCriticalAtomic.Load() == 1 {
					arrowf(os.Stderr, colError, "\nPacman is changing the system. Press Ctrl+C AGAIN to force exit NOW.\n")
					select {
					case <-sigs:
						arrowf(os.Stderr, colError, "Forced immediate exit.\n")
						os.Exit(130)
					case <-time.After(5 * time.Second):
						continue
					case <-ctx.Done():
						return
					}
				}
				arrowf(os.Stderr, color.Danger, "\nReceived %v. Cancelling\n", sig)
				cancel()
				select {
				case <-sigs:
					arrowf(os.Stderr, color.Danger, "Second interrupt received. Forcing immediate exit.\n")
					os.Exit(130)
				case <-time.After(2 * time.Second):
					arrowf(os.Stderr, color.Danger, "Graceful shutdown timeout. Exiting.\n")
					os.Exit(130)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	err := newRootCmd().ExecuteContext(ctx)
	if err == nil {
		return
	}
	var unresolved *UnresolvedError
	switch {
	case errors.As(err, &unresolved):
		cFprintln(os.Stderr, colError, unresolved.Error())
	case errors.Is(err, ErrAborted), errors.Is(err, context.Canceled):
		cFprintln(os.Stderr, colWarn, "Aborted.")
	default:
		cFprintf(os.Stderr, colError, "Error: %v\n", err)
	}
	os.Exit(1)
}
