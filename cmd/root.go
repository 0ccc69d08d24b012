package cmd

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sidkik/resync-v1/cmd/backends"
	"github.com/sidkik/resync-v1/cmd/bugtool"
	configCmd "github.com/sidkik/resync-v1/cmd/config"
	"github.com/sidkik/resync-v1/cmd/history"
	"github.com/sidkik/resync-v1/cmd/preview"
	syncCmd "github.com/sidkik/resync-v1/cmd/sync"
	"github.com/sidkik/resync-v1/cmd/util"
	"github.com/sidkik/resync-v1/cmd/version"
)

// verboseLogKey is the environment variable used to enable verbose logging.
// When it's set to `true`, Debug events are logged, rather than just Info and
// above.
const verboseLogKey = "RESYNC_LOG_VERBOSE"

// Execute runs the main CLI process.
func Execute() {
	if os.Getenv(verboseLogKey) == "true" {
		log.SetLevel(log.DebugLevel)
	}

	rootCmd := &cobra.Command{
		Use:          "resync",
		Short:        "Sync directory trees with a safety net",
		SilenceUsage: true,

		// The call to rootCmd.Execute prints the error, so we silence errors
		// here to avoid double printing.
		SilenceErrors: true,
	}
	rootCmd.AddCommand(
		backends.New(),
		bugtool.New(),
		configCmd.New(),
		history.New(),
		syncCmd.NewCopy(),
		syncCmd.NewMirror(),
		preview.New(),
		version.New(),
	)

	if err := rootCmd.Execute(); err != nil {
		util.HandleFatalError(err)
	}
}
