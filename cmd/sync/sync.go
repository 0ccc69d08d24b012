// Package sync implements the mirror and copy commands. Both resolve the run
// configuration the same way and hand off to the engine; they differ only in
// the transfer mode.
package sync

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh/terminal"

	"github.com/sidkik/resync-v1/cmd/util"
	"github.com/sidkik/resync-v1/pkg/backend"
	"github.com/sidkik/resync-v1/pkg/config"
	"github.com/sidkik/resync-v1/pkg/engine"
	"github.com/sidkik/resync-v1/pkg/errors"
	"github.com/sidkik/resync-v1/pkg/paths"
	"github.com/sidkik/resync-v1/pkg/privilege"
	"github.com/sidkik/resync-v1/pkg/prompt"
)

// Mocked out for unit testing.
var (
	runEngine        = engine.Run
	resolvePath      = paths.Resolve
	resolveConfig    = config.Resolve
	resolvePrivilege = privilege.Resolve
	notifyContext    = signal.NotifyContext
	tempDir          = os.TempDir
	isTerminal       = func() bool { return terminal.IsTerminal(int(os.Stdin.Fd())) }
)

// NewMirror creates the `mirror` command.
func NewMirror() *cobra.Command {
	return newSyncCommand(backend.Mirror,
		"mirror [SOURCE DEST]",
		"Make the destination an exact replica of the source",
		`Make the destination an exact replica of the source directory.

Destination entries with no source counterpart are deleted, so the result
matches the source exactly. The previous destination contents are backed up
first. Without arguments, the source and destination come from the config
file.`)
}

// NewCopy creates the `copy` command.
func NewCopy() *cobra.Command {
	return newSyncCommand(backend.Copy,
		"copy [SOURCE DEST]",
		"Copy the source into the destination without deleting anything",
		`Copy the source directory's contents into the destination.

Files already in the destination are updated when the source differs, but
nothing is ever deleted. Without arguments, the source and destination come
from the config file.`)
}

type syncFlags struct {
	tool      string
	logPath   string
	skip      string
	extraArgs string
	dryRun    bool
	noSudo    bool
	yes       bool
}

func newSyncCommand(mode backend.Mode, use, short, long string) *cobra.Command {
	var flags syncFlags
	cobraCmd := &cobra.Command{
		Use:   use,
		Short: short,
		Long:  long,
		Args:  cobra.MaximumNArgs(2),
		Run: func(cobraCmd *cobra.Command, args []string) {
			if err := runSync(cobraCmd, mode, flags, args); err != nil {
				util.HandleFatalError(err)
			}
		},
	}

	cobraCmd.Flags().StringVar(&flags.tool, "tool", "",
		"The transfer tool to use: cp, rsync, or rclone.")
	cobraCmd.Flags().StringVar(&flags.logPath, "log", "",
		"Where the run log is appended. Pass `none` to disable it.")
	cobraCmd.Flags().StringVar(&flags.skip, "skip", "",
		"Comma separated paths, relative to the source, to leave out of the sync.")
	cobraCmd.Flags().StringVar(&flags.extraArgs, "extra-args", "",
		"Extra arguments passed to the transfer tool verbatim.")
	cobraCmd.Flags().BoolVar(&flags.dryRun, "dry-run", false,
		"Show what would be transferred and stop without changing anything.")
	cobraCmd.Flags().BoolVar(&flags.noSudo, "no-sudo", false,
		"Never elevate privileges, even when the destination isn't writable.")
	cobraCmd.Flags().BoolVar(&flags.yes, "yes", false,
		"Skip the proceed prompt. Sensitive destinations still require confirmation.")
	return cobraCmd
}

func runSync(cobraCmd *cobra.Command, mode backend.Mode, flags syncFlags,
	args []string) error {

	cli := config.Layer{
		Tool: flags.tool,
		Log:  flags.logPath,
		Skip: util.SplitList(flags.skip),
	}

	// Boolean flags only make it into the layer when given explicitly, so
	// that an untouched default doesn't shadow the config file.
	if cobraCmd.Flags().Changed("dry-run") {
		cli.DryRun = config.FormatBool(flags.dryRun)
	}
	if cobraCmd.Flags().Changed("no-sudo") {
		cli.NoSudo = config.FormatBool(flags.noSudo)
	}

	switch len(args) {
	case 0:
	case 2:
		cli.Src, cli.Dst = args[0], args[1]
	default:
		return errors.NewFriendlyError(
			"Provide both SOURCE and DEST, or neither to use the config file.")
	}

	cfg, err := resolveConfig(cli)
	if err != nil {
		return err
	}
	if cfg.Src == "" || cfg.Dst == "" {
		return errors.NewFriendlyError("No source and destination to sync.\n" +
			"Pass them as arguments, or save them with `resync config`.")
	}

	b, err := backend.ForTool(cfg.Tool)
	if err != nil {
		return err
	}

	extraArgs := backend.SplitArgs(cfg.ExtraArgs[cfg.Tool])
	if flags.extraArgs != "" {
		extraArgs = backend.SplitArgs(flags.extraArgs)
	}

	confirm := prompt.Confirmer(util.PromptYesNoQuit)
	if !isTerminal() {
		confirm = prompt.Disabled
	}

	priv := resolvePrivilege(cfg.NoSudo)

	// An interrupt cancels the context rather than killing the process, so
	// the phase boundaries decide when to stop.
	ctx, stop := notifyContext(context.Background(), os.Interrupt)
	defer stop()

	src, err := resolvePath(ctx, cfg.Src, paths.ResolveOpts{})
	if err != nil {
		return errors.WithContext(err, "resolve source")
	}

	dst, err := resolvePath(ctx, cfg.Dst, paths.ResolveOpts{
		AllowMissing: cfg.DryRun,
		AllowCreate:  !cfg.DryRun,
		Confirm:      confirm,
		Privilege:    priv,
	})
	if err != nil {
		return errors.WithContext(err, "resolve destination")
	}

	_, err = runEngine(ctx, engine.Request{
		Source:    src,
		Dest:      dst,
		Mode:      mode,
		Backend:   b,
		ExtraArgs: extraArgs,
		Skip:      cfg.Skip,
		DryRun:    cfg.DryRun,
		AssumeYes: flags.yes,
		LogPath:   cfg.LogPath,
		TempRoot:  tempDir(),
		Privilege: priv,
		Confirm:   confirm,
	})
	return err
}
