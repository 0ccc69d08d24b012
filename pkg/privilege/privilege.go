// Package privilege decides whether commands have to run through an
// elevation helper such as sudo, and rewrites invocations accordingly.
//
// The decision is made once per process. Everything downstream reads the same
// Context, so a run never flip-flops between privileged and unprivileged
// behavior halfway through.
package privilege

import (
	"context"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"

	"github.com/sidkik/resync-v1/pkg/errors"
	"github.com/sidkik/resync-v1/pkg/runner"
)

// Mocked out for unit testing.
var (
	geteuid   = os.Geteuid
	getuid    = os.Getuid
	getgroups = os.Getgroups
	lookPath  = exec.LookPath
	stat      = os.Stat
	clock     = clockwork.NewRealClock()
	run       = runner.Runner(runner.Run)
)

// elevators lists the helpers we know how to drive, in preference order.
var elevators = []string{"sudo", "doas"}

// keepAliveInterval is how often cached credentials are revalidated. sudo's
// default timestamp timeout is five minutes, so a minute leaves margin even
// on tightened configurations.
const keepAliveInterval = time.Minute

// Context describes the privileges the current process holds and how it can
// obtain more.
type Context struct {
	// HasRoot is true when the process already runs with an effective UID
	// of zero.
	HasRoot bool

	// ElevationCommand is the program that reruns a command with root
	// privileges, e.g. "sudo". Empty when none was found or elevation was
	// disabled.
	ElevationCommand string

	// ElevationAvailable is true when ElevationCommand can be used.
	ElevationAvailable bool
}

// Resolve inspects the current process and the PATH. When noSudo is set the
// helper lookup is skipped entirely, so the run can only do what the invoking
// user can do.
func Resolve(noSudo bool) Context {
	c := Context{HasRoot: geteuid() == 0}
	if c.HasRoot || noSudo {
		return c
	}

	for _, candidate := range elevators {
		if _, err := lookPath(candidate); err == nil {
			c.ElevationCommand = candidate
			c.ElevationAvailable = true
			break
		}
	}
	return c
}

// WritableBy reports whether the invoking user may write to path without
// elevation. Callers should pass a path that exists.
func WritableBy(path string) (bool, error) {
	fi, err := stat(path)
	if err != nil {
		return false, errors.WithContext(err, "stat")
	}

	uid := getuid()
	uGids, err := getgroups()
	if err != nil {
		return false, errors.WithContext(err, "get groups")
	}

	fStat, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return false, errors.New("couldn't get stat_t")
	}

	return isWritable(fi.Mode(), fStat, uid, uGids), nil
}

func isWritable(fMode os.FileMode, fStat *syscall.Stat_t, uid int, uGids []int) bool {
	// Check if user owns the file (uids are equal) and has write permission.
	// The permissions check is done by bit-shifting a `1` to the correct
	// position in `rwxrwxrwx` and performing an AND.
	if fStat.Uid == uint32(uid) {
		return fMode&(1<<7) != 0
	}

	// Check if group has write permissions and user is in group.
	fileGID := fStat.Gid
	for _, gid := range uGids {
		if uint32(gid) == fileGID {
			return fMode&(1<<4) != 0
		}
	}

	// Check if all others have write permissions.
	return fMode&(1<<1) != 0
}

// Elevate rewrites inv to run through the elevation helper. action is a verb
// phrase used in the error when no helper is available, e.g. "clear the
// destination".
func (c Context) Elevate(action string, inv runner.Invocation) (runner.Invocation, error) {
	if c.HasRoot {
		return inv, nil
	}
	if !c.ElevationAvailable {
		return runner.Invocation{}, errors.ElevationUnavailable{Action: action}
	}

	args := append([]string{inv.Program}, inv.Args...)
	return runner.Invocation{Program: c.ElevationCommand, Args: args}, nil
}

// KeepAlive periodically revalidates the helper's cached credentials so that
// a long transfer doesn't stall on a password prompt halfway through. It
// returns immediately when there are no credentials to refresh, and otherwise
// blocks until ctx ends.
func (c Context) KeepAlive(ctx context.Context) {
	// doas has no timestamp cache worth refreshing.
	if c.HasRoot || !c.ElevationAvailable || c.ElevationCommand != "sudo" {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-clock.After(keepAliveInterval):
		}

		inv := runner.Invocation{Program: "sudo", Args: []string{"-n", "-v"}}
		if _, err := run(ctx, inv); err != nil && ctx.Err() == nil {
			log.WithError(err).Debug("Failed to refresh cached credentials")
		}
	}
}
