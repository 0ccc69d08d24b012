// Package engine drives a sync run from validation through execution. It owns
// the phase ordering and the final state of the run; the mechanics of each
// phase live in their own packages.
package engine

import (
	"context"
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/sidkik/resync-v1/pkg/backend"
	"github.com/sidkik/resync-v1/pkg/backup"
	"github.com/sidkik/resync-v1/pkg/delta"
	"github.com/sidkik/resync-v1/pkg/errors"
	"github.com/sidkik/resync-v1/pkg/privilege"
	"github.com/sidkik/resync-v1/pkg/prompt"
	"github.com/sidkik/resync-v1/pkg/runlog"
	"github.com/sidkik/resync-v1/pkg/runner"
	"github.com/sidkik/resync-v1/pkg/safety"
	"github.com/sidkik/resync-v1/pkg/tools"
)

// Mocked out for unit testing.
var (
	out    io.Writer = os.Stdout
	errOut io.Writer = os.Stderr

	toolPath       = tools.Has
	toolVersion    = tools.Version
	toolInstall    = tools.Install
	computeDelta   = delta.Compute
	snapshotBackup = backup.Snapshot
	clearDest      = backend.Clear
	writableBy     = privilege.WritableBy
	run            = runner.Runner(runner.Run)
	record         = runlog.Record
)

// State is where a run got to. Every run ends in Done, Failed or Aborted; the
// other states are the phases it passes through on the way.
type State string

const (
	// Validated means the source and destination passed the safety rules.
	Validated State = "validated"

	// Previewed means the delta preview was computed and shown.
	Previewed State = "previewed"

	// BackedUp means the pre-sync backup phase completed.
	BackedUp State = "backed-up"

	// Executing means the transfer tool was started.
	Executing State = "executing"

	// Done means the run completed successfully.
	Done State = "done"

	// Failed means the run stopped on an error.
	Failed State = "failed"

	// Aborted means the operator stopped the run, either by declining a
	// prompt or by interrupting it.
	Aborted State = "aborted"
)

// A Request is one fully resolved sync run. Source and Dest must already be
// canonical absolute paths; the paths package produces them.
type Request struct {
	Source string
	Dest   string

	Mode      backend.Mode
	Backend   backend.Backend
	ExtraArgs []string
	Skip      []string

	// DryRun stops the run after the preview without touching anything.
	DryRun bool

	// AssumeYes skips the proceed prompt. It never skips the sensitive
	// destination confirmations.
	AssumeYes bool

	// LogPath is where the run record is appended. Empty disables it.
	LogPath string

	// TempRoot is the directory backups are created under.
	TempRoot string

	Privilege privilege.Context
	Confirm   prompt.Confirmer
}

// Run drives the request through every phase and reports the state the run
// ended in. Completed phases stay in effect when a later phase fails: most
// importantly, a backup taken before a failed transfer is kept and reported,
// never rolled back.
func Run(ctx context.Context, req Request) (state State, err error) {
	var set delta.DeltaSet
	var rec backup.Record

	defer func() {
		if err != nil {
			if aborted(err) {
				state = Aborted
			} else {
				state = Failed
			}
		}
		writeRunLog(req, set, rec, state, err)
	}()

	if err := ctx.Err(); err != nil {
		return state, errors.ErrInterrupted
	}

	if err := safety.Validate(req.Source, req.Dest, req.Confirm); err != nil {
		return state, err
	}
	state = Validated

	if err := ensureTool(ctx, req); err != nil {
		return state, err
	}
	if err := ctx.Err(); err != nil {
		return state, errors.ErrInterrupted
	}

	skip := effectiveSkip(req)
	set, err = computeDelta(ctx, req.Source, req.Dest, req.Backend.DeltaAware, skip)
	if err != nil {
		return state, err
	}
	fmt.Fprintf(out, "Source files: %d (%d bytes)\n", len(set.SourceFiles), set.SourceBytes())
	fmt.Fprintf(out, "Will transfer: %d (%d bytes)\n", len(set.TransferFiles), set.TransferBytes())
	state = Previewed

	if req.DryRun {
		fmt.Fprintln(out, "Dry run: no files were changed.")
		state = Done
		return state, nil
	}

	if err := confirmProceed(req); err != nil {
		return state, err
	}
	if err := ctx.Err(); err != nil {
		return state, errors.ErrInterrupted
	}

	rec, err = snapshotBackup(ctx, req.Dest, req.TempRoot)
	if err != nil {
		return state, err
	}
	if rec.None() {
		log.WithField("dest", req.Dest).Debug("Nothing to back up")
	} else {
		fmt.Fprintf(out, "Backed up destination to %q.\n", rec.BackupPath)
	}
	state = BackedUp

	if err := ctx.Err(); err != nil {
		return state, errors.ErrInterrupted
	}

	state = Executing
	if err := execute(ctx, req, skip, rec); err != nil {
		return state, err
	}

	fmt.Fprintln(out, "Sync complete.")
	state = Done
	return state, nil
}

// ensureTool checks that the backend's binary exists, offering to install it
// when it doesn't, and then gates on its version.
func ensureTool(ctx context.Context, req Request) error {
	tool := req.Backend.Name
	if _, found := toolPath(tool); !found {
		if err := offerInstall(ctx, req); err != nil {
			return err
		}
	}

	version, err := toolVersion(ctx, tool, req.Backend.VersionArgs...)
	if err != nil {
		// A tool whose version can't be read still gets to run. The
		// compatibility gate just has nothing to check.
		log.WithError(err).WithField("tool", tool).Debug("Unable to probe tool version")
		return nil
	}
	return req.Backend.CheckVersion(version)
}

func offerInstall(ctx context.Context, req Request) error {
	tool := req.Backend.Name
	answer, err := req.Confirm(fmt.Sprintf("%q is not installed. Install it now?", tool))
	if err != nil {
		return errors.BackendUnavailable{Tool: tool}
	}

	switch answer {
	case prompt.No:
		return errors.BackendUnavailable{Tool: tool}
	case prompt.Cancelled:
		return errors.ErrInterrupted
	}
	return toolInstall(ctx, tool, req.Privilege)
}

// effectiveSkip drops the skip list for backends that can't honor it, so the
// preview never promises an exclusion the transfer won't make.
func effectiveSkip(req Request) []string {
	if req.Backend.DeltaAware || len(req.Skip) == 0 {
		return req.Skip
	}
	log.WithField("tool", req.Backend.Name).Warn(
		"This tool cannot exclude paths; the skip list is ignored for this run")
	return nil
}

func confirmProceed(req Request) error {
	if req.AssumeYes {
		return nil
	}

	answer, err := req.Confirm(fmt.Sprintf("Apply these changes to %q?", req.Dest))
	if err != nil {
		return errors.NewFriendlyError(
			"Confirmation is required before %q is modified. "+
				"Rerun with --yes to skip the prompt.", req.Dest)
	}

	switch answer {
	case prompt.No:
		return errors.ErrUserAborted
	case prompt.Cancelled:
		return errors.ErrInterrupted
	}
	return nil
}

// execute runs the transfer tool, clearing the destination first for backends
// with clearing semantics. Elevation is requested only when the destination
// isn't writable as-is.
func execute(ctx context.Context, req Request, skip []string, rec backup.Record) error {
	// sudo caches credentials per invocation. A long transfer after a
	// cleared destination can span several, so keep the cache warm until
	// the phase ends.
	keepAliveCtx, stopKeepAlive := context.WithCancel(ctx)
	defer stopKeepAlive()
	go req.Privilege.KeepAlive(keepAliveCtx)

	if req.Mode == backend.Mirror && req.Backend.ClearsFirst {
		if err := clearDest(ctx, req.Dest, req.Privilege); err != nil {
			return reportBackup(err, rec)
		}
	}

	inv := req.Backend.Invocation(req.Mode, req.Source, req.Dest, skip, req.ExtraArgs)
	if !req.Privilege.HasRoot {
		writable, err := writableBy(req.Dest)
		if err != nil {
			log.WithError(err).Debug("Unable to probe destination writability")
		} else if !writable {
			inv, err = req.Privilege.Elevate("write to "+req.Dest, inv)
			if err != nil {
				return reportBackup(err, rec)
			}
		}
	}

	res, err := run(ctx, inv, runner.WithStdout(out), runner.WithStderr(errOut))
	if err != nil {
		return reportBackup(errors.WithContext(err, "run "+req.Backend.Name), rec)
	}
	if res.ExitCode != 0 {
		err := errors.BackendExecutionFailed{Tool: req.Backend.Name, ExitCode: res.ExitCode}
		return reportBackup(err, rec)
	}
	return nil
}

// reportBackup reminds the operator where the pre-sync backup lives when the
// transfer phase fails. There is no automatic rollback; restoring from the
// backup is a deliberate operator action.
func reportBackup(err error, rec backup.Record) error {
	if !rec.None() && !aborted(err) {
		fmt.Fprintf(out, "The previous destination contents are preserved at %q.\n",
			rec.BackupPath)
	}
	return err
}

func aborted(err error) bool {
	switch errors.RootCause(err) {
	case errors.ErrUserAborted, errors.ErrInterrupted,
		context.Canceled, context.DeadlineExceeded:
		return true
	}
	return false
}

func writeRunLog(req Request, set delta.DeltaSet, rec backup.Record, state State, err error) {
	if req.LogPath == "" {
		return
	}

	entry := runlog.Entry{
		Tool:          req.Backend.Name,
		Mode:          req.Mode.String(),
		Source:        req.Source,
		Dest:          req.Dest,
		DryRun:        req.DryRun,
		SourceFiles:   len(set.SourceFiles),
		TransferFiles: len(set.TransferFiles),
		SourceBytes:   set.SourceBytes(),
		TransferBytes: set.TransferBytes(),
		State:         string(state),
		BackupPath:    rec.BackupPath,
	}
	if err != nil {
		entry.Error = err.Error()
	}

	if logErr := record(req.LogPath, entry); logErr != nil {
		log.WithError(logErr).Warn("Unable to record the run")
	}
}
