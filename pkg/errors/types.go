package errors

import (
	"fmt"
)

// ErrUserAborted is returned when the operator declines to proceed at a
// confirmation prompt. It terminates the run, but it isn't a failure.
var ErrUserAborted = New("aborted by operator")

// ErrInterrupted is returned when the operator interrupts the run between
// phases. It maps to its own exit status, distinct from ordinary failures.
var ErrInterrupted = New("interrupted")

// PathNotFound represents a directory argument that doesn't exist and wasn't
// created.
type PathNotFound struct {
	Path string
}

func (err PathNotFound) Error() string {
	return fmt.Sprintf("%q does not exist", err.Path)
}

// SamePath represents a request whose source and destination resolve to the
// same directory.
type SamePath struct {
	Path string
}

func (err SamePath) Error() string {
	return fmt.Sprintf("source and destination are both %q", err.Path)
}

// RootDestination represents a request targeting the filesystem root.
type RootDestination struct{}

func (err RootDestination) Error() string {
	return "refusing to use the filesystem root as a destination"
}

// NestedPaths represents a request where one directory contains the other.
type NestedPaths struct {
	Outer string
	Inner string
}

func (err NestedPaths) Error() string {
	return fmt.Sprintf("%q contains %q", err.Outer, err.Inner)
}

// SensitiveAreaDeclined represents a destination in a protected system area
// for which the required confirmations couldn't be obtained.
type SensitiveAreaDeclined struct {
	Path string
}

func (err SensitiveAreaDeclined) Error() string {
	return fmt.Sprintf("writing into %q requires interactive confirmation", err.Path)
}

// ElevationUnavailable represents a privileged action that couldn't run
// because the process isn't root and no elevation mechanism is usable.
type ElevationUnavailable struct {
	Action string
}

func (err ElevationUnavailable) Error() string {
	return fmt.Sprintf("cannot %s: no elevation mechanism is available", err.Action)
}

// BackupFailed represents a failed pre-sync backup. The sync never proceeds
// past it.
type BackupFailed struct {
	Err error
}

func (err BackupFailed) Error() string {
	return fmt.Sprintf("backup failed: %s", err.Err)
}

// Unwrap returns the underlying copy error.
func (err BackupFailed) Unwrap() error {
	return err.Err
}

// BackendUnavailable represents a transfer tool that is missing and wasn't
// installed.
type BackendUnavailable struct {
	Tool string
}

func (err BackendUnavailable) Error() string {
	return fmt.Sprintf("%q is not installed", err.Tool)
}

// BackendExecutionFailed represents a transfer tool run that exited nonzero.
// The tool's own diagnostics are surfaced on stderr verbatim.
type BackendExecutionFailed struct {
	Tool     string
	ExitCode int
}

func (err BackendExecutionFailed) Error() string {
	return fmt.Sprintf("%s exited with status %d", err.Tool, err.ExitCode)
}
