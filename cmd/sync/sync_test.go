package sync

import (
	"context"
	"os"
	"os/signal"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sidkik/resync-v1/pkg/backend"
	"github.com/sidkik/resync-v1/pkg/config"
	"github.com/sidkik/resync-v1/pkg/engine"
	"github.com/sidkik/resync-v1/pkg/paths"
	"github.com/sidkik/resync-v1/pkg/privilege"
	"github.com/sidkik/resync-v1/pkg/prompt"
)

type mockSync struct {
	cfg    config.Effective
	cfgErr error

	// Recorded calls.
	cliLayer config.Layer
	noSudo   bool
	pathOpts map[string]paths.ResolveOpts
	pathErr  map[string]error
	req      engine.Request
	ran      bool
}

func newMockSync(t *testing.T) *mockSync {
	m := &mockSync{
		cfg: config.Effective{
			Tool: "rsync",
			Src:  "/data/src",
			Dst:  "/backup/dst",
		},
		pathOpts: map[string]paths.ResolveOpts{},
		pathErr:  map[string]error{},
	}

	runEngine = func(_ context.Context, req engine.Request) (engine.State, error) {
		m.req = req
		m.ran = true
		return engine.Done, nil
	}
	resolveConfig = func(cli config.Layer) (config.Effective, error) {
		m.cliLayer = cli
		return m.cfg, m.cfgErr
	}
	resolvePath = func(_ context.Context, raw string, opts paths.ResolveOpts) (
		string, error) {
		m.pathOpts[raw] = opts
		if err := m.pathErr[raw]; err != nil {
			return "", err
		}
		return "/resolved" + raw, nil
	}
	resolvePrivilege = func(noSudo bool) privilege.Context {
		m.noSudo = noSudo
		return privilege.Context{ElevationCommand: "sudo", ElevationAvailable: true}
	}
	notifyContext = func(parent context.Context, _ ...os.Signal) (
		context.Context, context.CancelFunc) {
		return context.WithCancel(parent)
	}
	tempDir = func() string { return "/tmp" }
	origTerminal := isTerminal
	isTerminal = func() bool { return true }

	t.Cleanup(func() {
		runEngine = engine.Run
		resolveConfig = config.Resolve
		resolvePath = paths.Resolve
		resolvePrivilege = privilege.Resolve
		notifyContext = signal.NotifyContext
		tempDir = os.TempDir
		isTerminal = origTerminal
	})
	return m
}

func TestSyncBuildsRequest(t *testing.T) {
	m := newMockSync(t)
	m.cfg = config.Effective{
		Tool:      "rsync",
		Src:       "/data/src",
		Dst:       "/backup/dst",
		Skip:      []string{".git", "logs"},
		LogPath:   "/home/operator/.resync.log",
		ExtraArgs: map[string]string{"rsync": "--compress --partial"},
	}

	err := runSync(NewMirror(), backend.Mirror, syncFlags{}, nil)
	assert.NoError(t, err)
	assert.True(t, m.ran)

	assert.Equal(t, "/resolved/data/src", m.req.Source)
	assert.Equal(t, "/resolved/backup/dst", m.req.Dest)
	assert.Equal(t, backend.Mirror, m.req.Mode)
	assert.Equal(t, "rsync", m.req.Backend.Name)
	assert.Equal(t, []string{"--compress", "--partial"}, m.req.ExtraArgs)
	assert.Equal(t, []string{".git", "logs"}, m.req.Skip)
	assert.Equal(t, "/home/operator/.resync.log", m.req.LogPath)
	assert.Equal(t, "/tmp", m.req.TempRoot)
	assert.False(t, m.req.DryRun)
	assert.False(t, m.req.AssumeYes)
	assert.Equal(t, "sudo", m.req.Privilege.ElevationCommand)
	assert.NotNil(t, m.req.Confirm)
}

func TestSyncCopyMode(t *testing.T) {
	m := newMockSync(t)
	err := runSync(NewCopy(), backend.Copy, syncFlags{}, nil)
	assert.NoError(t, err)
	assert.Equal(t, backend.Copy, m.req.Mode)
}

func TestSyncCommandLineLayer(t *testing.T) {
	m := newMockSync(t)

	cobraCmd := NewMirror()
	assert.NoError(t, cobraCmd.Flags().Set("dry-run", "true"))
	assert.NoError(t, cobraCmd.Flags().Set("no-sudo", "true"))

	flags := syncFlags{
		tool:   "rclone",
		skip:   " .git, node_modules ,,",
		dryRun: true,
		noSudo: true,
	}
	m.cfg.Tool = "rclone"
	err := runSync(cobraCmd, backend.Mirror, flags, []string{"src", "dst"})
	assert.NoError(t, err)

	assert.Equal(t, config.Layer{
		Tool:   "rclone",
		Src:    "src",
		Dst:    "dst",
		DryRun: "true",
		NoSudo: "true",
		Skip:   []string{".git", "node_modules"},
	}, m.cliLayer)
}

// Boolean flags that weren't given on the command line stay out of the layer,
// so a `dry_run = true` in the config file isn't silently overridden.
func TestSyncUnchangedBoolsStayUnset(t *testing.T) {
	m := newMockSync(t)

	err := runSync(NewMirror(), backend.Mirror, syncFlags{}, nil)
	assert.NoError(t, err)
	assert.Equal(t, "", m.cliLayer.DryRun)
	assert.Equal(t, "", m.cliLayer.NoSudo)
}

func TestSyncOneArgIsAnError(t *testing.T) {
	m := newMockSync(t)

	err := runSync(NewMirror(), backend.Mirror, syncFlags{}, []string{"src"})
	assert.EqualError(t, err,
		"Provide both SOURCE and DEST, or neither to use the config file.")
	assert.False(t, m.ran)
}

func TestSyncNoPathsConfigured(t *testing.T) {
	m := newMockSync(t)
	m.cfg = config.Effective{Tool: "rsync"}

	err := runSync(NewMirror(), backend.Mirror, syncFlags{}, nil)
	assert.EqualError(t, err, "No source and destination to sync.\n"+
		"Pass them as arguments, or save them with `resync config`.")
	assert.False(t, m.ran)
}

func TestSyncUnknownTool(t *testing.T) {
	m := newMockSync(t)
	m.cfg.Tool = "scp"

	err := runSync(NewMirror(), backend.Mirror, syncFlags{}, nil)
	assert.EqualError(t, err,
		`Unknown tool "scp". Valid tools are cp, rsync, and rclone.`)
	assert.False(t, m.ran)
}

func TestSyncExtraArgsFlagOverridesConfig(t *testing.T) {
	m := newMockSync(t)
	m.cfg.ExtraArgs = map[string]string{"rsync": "--compress"}

	flags := syncFlags{extraArgs: "--bwlimit=1m --partial"}
	err := runSync(NewMirror(), backend.Mirror, flags, nil)
	assert.NoError(t, err)
	assert.Equal(t, []string{"--bwlimit=1m", "--partial"}, m.req.ExtraArgs)
}

func TestSyncDryRunSkipsDestinationCreation(t *testing.T) {
	m := newMockSync(t)
	m.cfg.DryRun = true

	err := runSync(NewMirror(), backend.Mirror, syncFlags{}, nil)
	assert.NoError(t, err)

	assert.Equal(t, paths.ResolveOpts{}, m.pathOpts["/data/src"])
	dstOpts := m.pathOpts["/backup/dst"]
	assert.True(t, dstOpts.AllowMissing)
	assert.False(t, dstOpts.AllowCreate)
	assert.True(t, m.req.DryRun)
}

func TestSyncOffersDestinationCreation(t *testing.T) {
	m := newMockSync(t)

	err := runSync(NewMirror(), backend.Mirror, syncFlags{}, nil)
	assert.NoError(t, err)

	dstOpts := m.pathOpts["/backup/dst"]
	assert.False(t, dstOpts.AllowMissing)
	assert.True(t, dstOpts.AllowCreate)
	assert.NotNil(t, dstOpts.Confirm)
}

func TestSyncNoTerminalDisablesPrompts(t *testing.T) {
	m := newMockSync(t)
	isTerminal = func() bool { return false }

	err := runSync(NewMirror(), backend.Mirror, syncFlags{}, nil)
	assert.NoError(t, err)

	_, err = m.req.Confirm("proceed?")
	assert.Equal(t, prompt.ErrNoTerminal, err)
}

func TestSyncNoSudoFlowsThrough(t *testing.T) {
	m := newMockSync(t)
	m.cfg.NoSudo = true

	err := runSync(NewMirror(), backend.Mirror, syncFlags{}, nil)
	assert.NoError(t, err)
	assert.True(t, m.noSudo)
}

func TestSyncSourceResolveError(t *testing.T) {
	m := newMockSync(t)
	m.pathErr["/data/src"] = assert.AnError

	err := runSync(NewMirror(), backend.Mirror, syncFlags{}, nil)
	assert.EqualError(t, err, "resolve source: "+assert.AnError.Error())
	assert.False(t, m.ran)
}
