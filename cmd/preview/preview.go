// Package preview implements the `preview` command. It shows what a sync
// would do, file by file, without touching either tree.
package preview

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"text/tabwriter"

	"github.com/buger/goterm"
	"github.com/spf13/cobra"

	"github.com/sidkik/resync-v1/cmd/util"
	"github.com/sidkik/resync-v1/pkg/backend"
	"github.com/sidkik/resync-v1/pkg/config"
	"github.com/sidkik/resync-v1/pkg/delta"
	"github.com/sidkik/resync-v1/pkg/errors"
	"github.com/sidkik/resync-v1/pkg/paths"
)

// Mocked out for unit testing.
var (
	out           io.Writer = os.Stdout
	computeDelta            = delta.Compute
	snapshotTree            = delta.Snapshot
	resolvePath             = paths.Resolve
	resolveConfig           = config.Resolve
	notifyContext           = signal.NotifyContext
)

// New creates the `preview` command.
func New() *cobra.Command {
	var tool, skip string
	cobraCmd := &cobra.Command{
		Use:   "preview [SOURCE DEST]",
		Short: "List the files a sync would rewrite",
		Long: `List the files a sync would rewrite, without changing anything.

Each file the selected tool would transfer is shown with whether it is new at
the destination or an update to an existing file. Without arguments, the
source and destination come from the config file.`,
		Args: cobra.MaximumNArgs(2),
		Run: func(_ *cobra.Command, args []string) {
			if err := runPreview(tool, skip, args); err != nil {
				util.HandleFatalError(err)
			}
		},
	}

	cobraCmd.Flags().StringVar(&tool, "tool", "",
		"The transfer tool to use: cp, rsync, or rclone.")
	cobraCmd.Flags().StringVar(&skip, "skip", "",
		"Comma separated paths, relative to the source, to leave out of the preview.")
	return cobraCmd
}

func runPreview(tool, skip string, args []string) error {
	cli := config.Layer{Tool: tool, Skip: util.SplitList(skip)}
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
		return errors.NewFriendlyError("No source and destination to preview.\n" +
			"Pass them as arguments, or save them with `resync config`.")
	}

	b, err := backend.ForTool(cfg.Tool)
	if err != nil {
		return err
	}

	ctx, stop := notifyContext(context.Background(), os.Interrupt)
	defer stop()

	src, err := resolvePath(ctx, cfg.Src, paths.ResolveOpts{})
	if err != nil {
		return errors.WithContext(err, "resolve source")
	}
	dst, err := resolvePath(ctx, cfg.Dst, paths.ResolveOpts{AllowMissing: true})
	if err != nil {
		return errors.WithContext(err, "resolve destination")
	}

	set, err := computeDelta(ctx, src, dst, b.DeltaAware, cfg.Skip)
	if err != nil {
		return err
	}

	// A destination that can't be walked previews as empty, so every file
	// shows as new. That matches how the transfer itself would treat it.
	destSnapshot := delta.TreeSnapshot{}
	if snapshot, err := snapshotTree(ctx, dst, cfg.Skip); err == nil {
		destSnapshot = snapshot
	}

	printDelta(set, destSnapshot)
	return nil
}

func printDelta(set delta.DeltaSet, destSnapshot delta.TreeSnapshot) {
	if len(set.TransferFiles) == 0 {
		fmt.Fprintln(out, "Nothing to transfer: the destination is up to date.")
	} else {
		w := tabwriter.NewWriter(out, 0, 10, 5, ' ', 0)
		fmt.Fprintf(w, "%s\t%s\t%s\n", "STATUS", "PATH", "BYTES")
		for _, f := range set.TransferFiles {
			fmt.Fprintf(w, "%s\t%s\t%d\n", transferStatus(f, destSnapshot),
				f.RelPath, f.SizeBytes)
		}
		w.Flush()
		fmt.Fprintln(out)
	}

	fmt.Fprintf(out, "Source files: %d (%d bytes)\n",
		len(set.SourceFiles), set.SourceBytes())
	fmt.Fprintf(out, "Will transfer: %d (%d bytes)\n",
		len(set.TransferFiles), set.TransferBytes())
}

func transferStatus(f delta.FileRecord, destSnapshot delta.TreeSnapshot) string {
	if _, ok := destSnapshot[f.RelPath]; ok {
		return goterm.Color("update", goterm.YELLOW)
	}
	return goterm.Color("new", goterm.GREEN)
}
