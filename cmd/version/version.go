package version

import (
	"context"
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sidkik/resync-v1/pkg/backend"
	"github.com/sidkik/resync-v1/pkg/config"
	"github.com/sidkik/resync-v1/pkg/tools"
	"github.com/sidkik/resync-v1/pkg/version"
)

// Mocked out for unit testing.
var (
	out           io.Writer = os.Stdout
	resolveConfig           = config.Resolve
	toolPath                = tools.Has
	toolVersion             = tools.Version
)

// New creates a new `version` command.
func New() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version of resync and of the configured tool.",
		Long: "Print the version of the resync binary, and the version of\n" +
			"the transfer tool it is configured to drive.",
		Run: func(_ *cobra.Command, _ []string) {
			run()
		},
	}
}

func run() {
	fmt.Fprintf(out, "resync version: %s\n", version.Version)

	// The tool version is best effort. Whatever we can't find out just
	// isn't printed; the command never fails over it.
	tool := "rsync"
	if cfg, err := resolveConfig(config.Layer{}); err == nil {
		tool = cfg.Tool
	} else {
		log.WithError(err).Debug("Failed to resolve config")
	}

	b, err := backend.ForTool(tool)
	if err != nil {
		fmt.Fprintf(out, "%s version: unknown tool\n", tool)
		return
	}

	if _, ok := toolPath(b.Name); !ok {
		fmt.Fprintf(out, "%s version: not installed\n", b.Name)
		return
	}

	v, err := toolVersion(context.Background(), b.Name, b.VersionArgs...)
	if err != nil {
		log.WithError(err).Debug("Failed to probe tool version")
		fmt.Fprintf(out, "%s version: unknown\n", b.Name)
		return
	}
	fmt.Fprintf(out, "%s version: %s\n", b.Name, v)
}
