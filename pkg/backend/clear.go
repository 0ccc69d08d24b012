package backend

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/sidkik/resync-v1/pkg/errors"
	"github.com/sidkik/resync-v1/pkg/privilege"
	"github.com/sidkik/resync-v1/pkg/runner"
)

// Mocked out for unit testing.
var (
	fs  = afero.NewOsFs()
	run = runner.Runner(runner.Run)
)

// Clear removes every child of dir, hidden entries included, leaving dir
// itself in place. A child the process isn't allowed to remove is retried
// through the elevation helper.
func Clear(ctx context.Context, dir string, priv privilege.Context) error {
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return errors.WithContext(err, "list destination")
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}

		child := filepath.Join(dir, entry.Name())
		err := fs.RemoveAll(child)
		if err == nil {
			continue
		}
		if !os.IsPermission(err) {
			return errors.WithContext(err, "remove")
		}

		inv, err := priv.Elevate("clear the destination", runner.Invocation{
			Program: "rm",
			Args:    []string{"-rf", "--", child},
		})
		if err != nil {
			return err
		}

		res, err := run(ctx, inv)
		if err != nil {
			return errors.WithContext(err, "remove")
		}
		if res.ExitCode != 0 {
			return fmt.Errorf("rm exited with status %d", res.ExitCode)
		}
	}
	return nil
}
