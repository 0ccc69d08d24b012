// Package backends implements the `backends` command, which reports which
// transfer tools are installed on this machine and whether resync can use
// them.
package backends

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
	"github.com/sidkik/resync-v1/pkg/tools"
)

// Mocked out for unit testing.
var (
	out           io.Writer = os.Stdout
	toolPath                = tools.Has
	toolVersion             = tools.Version
	notifyContext           = signal.NotifyContext
)

// New creates the `backends` command.
func New() *cobra.Command {
	return &cobra.Command{
		Use:   "backends",
		Short: "Show which transfer tools are installed",
		Long: `Show each transfer tool resync knows how to drive, whether it is
installed, and whether the installed version is recent enough.`,
		Run: func(_ *cobra.Command, _ []string) {
			runBackends()
		},
	}
}

func runBackends() {
	ctx, stop := notifyContext(context.Background(), os.Interrupt)
	defer stop()

	pp := util.NewProgressPrinter(out, "Probing transfer tools..")
	go pp.Run()

	// The tabwriter holds the table back until Flush, after the progress
	// line is cleared.
	w := tabwriter.NewWriter(out, 0, 10, 5, ' ', 0)
	fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", "TOOL", "STATUS", "VERSION", "PATH")
	for _, b := range backend.All() {
		status, version, path := probeBackend(ctx, b)
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", b.Name, status, version, path)
	}

	pp.StopWithPrint(util.ClearProgress)
	w.Flush()
}

func probeBackend(ctx context.Context, b backend.Backend) (
	status, version, path string) {

	path, ok := toolPath(b.Name)
	if !ok {
		return goterm.Color("missing", goterm.RED), "", ""
	}

	status = goterm.Color("installed", goterm.GREEN)
	v, err := toolVersion(ctx, b.Name, b.VersionArgs...)
	if err != nil {
		return status, "unknown", path
	}

	if b.CheckVersion(v) != nil {
		status = goterm.Color("too old", goterm.RED)
	}
	return status, v.String(), path
}
