package tools

import (
	"context"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/resync-v1/pkg/errors"
	"github.com/sidkik/resync-v1/pkg/privilege"
	"github.com/sidkik/resync-v1/pkg/runner"
)

func resetMocks() {
	lookPath = exec.LookPath
	run = runner.Runner(runner.Run)
}

func TestHas(t *testing.T) {
	defer resetMocks()

	lookPath = func(tool string) (string, error) {
		if tool == "rsync" {
			return "/usr/bin/rsync", nil
		}
		return "", exec.ErrNotFound
	}

	path, ok := Has("rsync")
	assert.True(t, ok)
	assert.Equal(t, "/usr/bin/rsync", path)

	_, ok = Has("rclone")
	assert.False(t, ok)
}

func TestVersion(t *testing.T) {
	tests := []struct {
		name       string
		tool       string
		args       []string
		stdout     string
		exitCode   int
		expVersion string
		expErr     bool
	}{
		{
			name:       "Rsync",
			tool:       "rsync",
			args:       []string{"--version"},
			stdout:     "rsync  version 3.2.7  protocol version 31\n",
			expVersion: "3.2.7",
		},
		{
			name:       "Rclone",
			tool:       "rclone",
			args:       []string{"version"},
			stdout:     "rclone v1.62.2\n- os/version: debian 11.6\n",
			expVersion: "1.62.2",
		},
		{
			name: "Coreutils",
			tool: "cp",
			args: []string{"--version"},
			// go-version pads two-segment versions out to three.
			stdout:     "cp (GNU coreutils) 9.1\n",
			expVersion: "9.1.0",
		},
		{
			name:     "NonzeroExit",
			tool:     "rsync",
			args:     []string{"--version"},
			exitCode: 1,
			expErr:   true,
		},
		{
			name:   "NoVersionInOutput",
			tool:   "rsync",
			args:   []string{"--version"},
			stdout: "garbage\n",
			expErr: true,
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			defer resetMocks()

			run = func(_ context.Context, inv runner.Invocation,
				_ ...runner.Option) (runner.Result, error) {
				assert.Equal(t, test.tool, inv.Program)
				assert.Equal(t, test.args, inv.Args)
				return runner.Result{Stdout: test.stdout, ExitCode: test.exitCode}, nil
			}

			version, err := Version(context.Background(), test.tool, test.args...)
			if test.expErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.expVersion, version.String())
		})
	}
}

func TestInstall(t *testing.T) {
	defer resetMocks()

	lookPath = func(tool string) (string, error) {
		if tool == "apt-get" {
			return "/usr/bin/apt-get", nil
		}
		return "", exec.ErrNotFound
	}

	var installed runner.Invocation
	run = func(_ context.Context, inv runner.Invocation,
		_ ...runner.Option) (runner.Result, error) {
		installed = inv
		return runner.Result{}, nil
	}

	priv := privilege.Context{ElevationCommand: "sudo", ElevationAvailable: true}
	require.NoError(t, Install(context.Background(), "rsync", priv))
	assert.Equal(t, "sudo apt-get install -y rsync", installed.String())
}

func TestInstallNoManager(t *testing.T) {
	defer resetMocks()

	lookPath = func(string) (string, error) { return "", exec.ErrNotFound }

	err := Install(context.Background(), "rsync", privilege.Context{HasRoot: true})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "install it manually")
}

func TestInstallNeedsElevation(t *testing.T) {
	defer resetMocks()

	lookPath = func(tool string) (string, error) {
		if tool == "dnf" {
			return "/usr/bin/dnf", nil
		}
		return "", exec.ErrNotFound
	}

	err := Install(context.Background(), "rclone", privilege.Context{})
	assert.Equal(t, errors.ElevationUnavailable{Action: "install rclone"}, err)
}
