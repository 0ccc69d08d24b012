package runner

import (
	"bytes"
	"context"
	"io"
	"os/exec"
	"strings"

	log "github.com/sirupsen/logrus"
)

// An Invocation is a fully built external command: a program and its
// argument list. Arguments are passed to the process as-is and are never
// re-interpreted by a shell.
type Invocation struct {
	Program string
	Args    []string
}

func (inv Invocation) String() string {
	return strings.Join(append([]string{inv.Program}, inv.Args...), " ")
}

// Result describes a command that ran to completion, successfully or not.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// A Runner executes invocations. It's a function type so that callers can
// hold it as a dependency and tests can swap in stubs.
type Runner func(ctx context.Context, inv Invocation, opts ...Option) (Result, error)

// Option tweaks how an invocation runs.
type Option func(*settings)

type settings struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

// WithStdin connects r to the command's stdin. Needed for tools that prompt,
// like sudo asking for a password.
func WithStdin(r io.Reader) Option {
	return func(s *settings) { s.stdin = r }
}

// WithStdout streams the command's stdout to w while still capturing it in
// the Result.
func WithStdout(w io.Writer) Option {
	return func(s *settings) { s.stdout = w }
}

// WithStderr streams the command's stderr to w while still capturing it in
// the Result.
func WithStderr(w io.Writer) Option {
	return func(s *settings) { s.stderr = w }
}

// Run executes the invocation and waits for it to finish. A nonzero exit is
// not an error: the command ran, and its outcome is in the Result. Errors
// mean the command couldn't run at all, or the context ended first.
func Run(ctx context.Context, inv Invocation, opts ...Option) (Result, error) {
	var s settings
	for _, opt := range opts {
		opt(&s)
	}

	log.WithField("command", inv.String()).Debug("Running command")

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, inv.Program, inv.Args...)
	cmd.Stdin = s.stdin
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if s.stdout != nil {
		cmd.Stdout = io.MultiWriter(&stdout, s.stdout)
	}
	if s.stderr != nil {
		cmd.Stderr = io.MultiWriter(&stderr, s.stderr)
	}

	err := cmd.Run()
	res := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	// The context ending kills the process, which surfaces as an exit
	// error. Report the interruption instead.
	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, ctxErr
	}

	if err != nil {
		exitErr, ok := err.(*exec.ExitError)
		if !ok {
			return res, err
		}
		res.ExitCode = exitErr.ExitCode()
	}
	return res, nil
}
