// Package history implements the `history` command, which prints the runs
// recorded in the run log.
package history

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/buger/goterm"
	"github.com/spf13/cobra"

	"github.com/sidkik/resync-v1/cmd/util"
	"github.com/sidkik/resync-v1/pkg/config"
	"github.com/sidkik/resync-v1/pkg/engine"
	"github.com/sidkik/resync-v1/pkg/errors"
	"github.com/sidkik/resync-v1/pkg/runlog"
)

// Shown when --all isn't given.
const defaultRuns = 10

// Mocked out for unit testing.
var (
	out           io.Writer = os.Stdout
	resolveConfig           = config.Resolve
	tailLog                 = runlog.Tail
)

// New creates the `history` command.
func New() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the recorded sync runs",
		Long: fmt.Sprintf(`Show the runs recorded in the run log, most recent last. Only the last
%d runs are shown unless --all is given.`, defaultRuns),
		Run: func(_ *cobra.Command, _ []string) {
			if err := runHistory(all); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "show every recorded run")
	return cmd
}

func runHistory(all bool) error {
	cfg, err := resolveConfig(config.Layer{})
	if err != nil {
		return errors.WithContext(err, "resolve config")
	}

	if cfg.LogPath == "" {
		return errors.NewFriendlyError("Run logging is turned off " +
			"(`log = none`), so there is no history to show.")
	}

	limit := defaultRuns
	if all {
		limit = 0
	}
	lines, err := tailLog(cfg.LogPath, limit)
	if err != nil {
		return errors.WithContext(err, "read history")
	}

	if len(lines) == 0 {
		fmt.Fprintln(out, "No runs have been recorded yet.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 10, 5, ' ', 0)
	fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
		"TIME", "MODE", "TOOL", "SOURCE", "DEST", "STATE", "TRANSFERRED")
	for _, line := range lines {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			line.Time.Format("2006-01-02 15:04:05"),
			line.Entry.Mode,
			line.Entry.Tool,
			line.Entry.Source,
			line.Entry.Dest,
			stateString(line.Entry),
			fmt.Sprintf("%d files (%d bytes)",
				line.Entry.TransferFiles, line.Entry.TransferBytes))
	}
	w.Flush()
	return nil
}

func stateString(e runlog.Entry) string {
	state := e.State
	switch engine.State(e.State) {
	case engine.Done:
		state = goterm.Color(state, goterm.GREEN)
	case engine.Aborted:
		state = goterm.Color(state, goterm.YELLOW)
	case engine.Failed:
		state = goterm.Color(state, goterm.RED)
	}

	if e.DryRun {
		state += " (dry run)"
	}
	return state
}
