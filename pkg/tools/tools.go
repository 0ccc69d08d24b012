// Package tools answers what the collaborating command line tools can do on
// this machine: whether a binary is installed, what version it is, and how to
// install it through the distro's package manager.
package tools

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"

	goversion "github.com/hashicorp/go-version"
	log "github.com/sirupsen/logrus"

	"github.com/sidkik/resync-v1/pkg/errors"
	"github.com/sidkik/resync-v1/pkg/privilege"
	"github.com/sidkik/resync-v1/pkg/runner"
)

// Mocked out for unit testing.
var (
	lookPath = exec.LookPath
	run      = runner.Runner(runner.Run)
)

type packageManager struct {
	probe   string
	install []string
}

// packageManagers lists the install commands we know how to drive, in
// detection order.
var packageManagers = []packageManager{
	{probe: "apt-get", install: []string{"apt-get", "install", "-y"}},
	{probe: "dnf", install: []string{"dnf", "install", "-y"}},
	{probe: "pacman", install: []string{"pacman", "-S", "--noconfirm"}},
	{probe: "brew", install: []string{"brew", "install"}},
}

var versionPattern = regexp.MustCompile(`\d+\.\d+(\.\d+)?`)

// Has reports whether tool is on the PATH, and where it resolved to.
func Has(tool string) (string, bool) {
	path, err := lookPath(tool)
	return path, err == nil
}

// Version asks tool for its version and extracts the first dotted version
// number from the output. args is the tool's own version incantation, e.g.
// ["--version"] for rsync but ["version"] for rclone.
func Version(ctx context.Context, tool string, args ...string) (*goversion.Version, error) {
	res, err := run(ctx, runner.Invocation{Program: tool, Args: args})
	if err != nil {
		return nil, errors.WithContext(err, "run version command")
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("%s exited with status %d", tool, res.ExitCode)
	}

	match := versionPattern.FindString(res.Stdout)
	if match == "" {
		return nil, errors.New("no version number in output")
	}

	parsed, err := goversion.NewVersion(match)
	if err != nil {
		return nil, errors.WithContext(err, "parse version")
	}
	return parsed, nil
}

// Install installs tool through the first package manager found on the PATH.
func Install(ctx context.Context, tool string, priv privilege.Context) error {
	mgr, ok := findManager()
	if !ok {
		return errors.NewFriendlyError("No supported package manager was found "+
			"to install %q. Please install it manually and rerun.", tool)
	}

	inv := runner.Invocation{
		Program: mgr.install[0],
		Args:    append(append([]string{}, mgr.install[1:]...), tool),
	}

	// brew refuses to run as root; every other manager requires it.
	if mgr.probe != "brew" {
		var err error
		inv, err = priv.Elevate("install "+tool, inv)
		if err != nil {
			return err
		}
	}

	log.WithField("command", inv.String()).Debug("Installing missing tool")
	res, err := run(ctx, inv,
		runner.WithStdout(os.Stdout), runner.WithStderr(os.Stderr))
	if err != nil {
		return errors.WithContext(err, "run installer")
	}
	if res.ExitCode != 0 {
		return errors.NewFriendlyError("Failed to install %q: the package "+
			"manager exited with status %d.", tool, res.ExitCode)
	}
	return nil
}

func findManager() (packageManager, bool) {
	for _, mgr := range packageManagers {
		if _, err := lookPath(mgr.probe); err == nil {
			return mgr, true
		}
	}
	return packageManager{}, false
}
