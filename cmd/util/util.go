package util

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/sidkik/resync-v1/pkg/errors"
	"github.com/sidkik/resync-v1/pkg/prompt"
)

// Exit codes. Zero covers both success and a deliberate operator abort.
// Interrupts get their own code so that wrappers can tell them apart from
// failures.
const (
	ExitError     = 1
	ExitInterrupt = 130
)

// ClearProgress erases the progress line printed by a ProgressPrinter.
const ClearProgress = "\033[2K\r"

// Mocked for unit testing.
var (
	stdin  io.Reader = os.Stdin
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
	exit             = os.Exit
)

// PromptYesOrNo asks the operator a yes or no question, and repeats it until
// it gets an intelligible answer.
func PromptYesOrNo(question string) (bool, error) {
	reader := bufio.NewReader(stdin)
	for {
		fmt.Fprintf(stdout, "%s (y/n) ", question)

		resp, err := reader.ReadString('\n')
		if err != nil {
			return false, err
		}

		switch strings.ToLower(strings.TrimSpace(resp)) {
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}
	}
}

// PromptYesNoQuit asks the operator a yes or no question, with "q" available
// to end the run entirely. Closing stdin counts as quitting, so scripted
// callers never hang here. It satisfies prompt.Confirmer.
func PromptYesNoQuit(question string) (prompt.Answer, error) {
	reader := bufio.NewReader(stdin)
	for {
		fmt.Fprintf(stdout, "%s (y/n/q) ", question)

		resp, err := reader.ReadString('\n')
		if err == io.EOF {
			fmt.Fprintln(stdout)
			return prompt.Cancelled, nil
		}
		if err != nil {
			return prompt.Cancelled, err
		}

		switch strings.ToLower(strings.TrimSpace(resp)) {
		case "y", "yes":
			return prompt.Yes, nil
		case "n", "no":
			return prompt.No, nil
		case "q", "quit":
			return prompt.Cancelled, nil
		}
	}
}

// SplitList splits a comma separated flag value into its entries, dropping
// whitespace and empty entries.
func SplitList(raw string) []string {
	var entries []string
	for _, entry := range strings.Split(raw, ",") {
		if entry = strings.TrimSpace(entry); entry != "" {
			entries = append(entries, entry)
		}
	}
	return entries
}

// HandleFatalError prints a message appropriate for err, and exits with the
// matching status code. A friendly error is printed as-is since it carries
// instructions for the operator. Other errors get their full context chain.
func HandleFatalError(err error) {
	switch errors.RootCause(err) {
	case errors.ErrUserAborted:
		fmt.Fprintln(stdout, "Aborting.")
		exit(0)
	case errors.ErrInterrupted, context.Canceled:
		fmt.Fprintln(stderr, "Interrupted.")
		exit(ExitInterrupt)
	default:
		fmt.Fprintln(stderr, errors.GetPrintableMessage(err))
		exit(ExitError)
	}
}

// HandlePanic recovers from panics, prints the stack, and exits nonzero.
// It should be deferred at the top of every goroutine that doesn't otherwise
// recover panics so that crashes are reported consistently.
func HandlePanic() {
	r := recover()
	if r == nil {
		return
	}

	fmt.Fprintf(stderr, "resync encountered an unexpected error: %v\n%s", r, debug.Stack())
	exit(ExitError)
}

// progressInterval is how often a ProgressPrinter prints another dot.
const progressInterval = 2 * time.Second

// ProgressPrinter prints a message followed by a dot every couple of seconds
// so that long operations don't look hung. Start it with `go pp.Run()`, and
// end it with Stop or StopWithPrint.
type ProgressPrinter struct {
	out     io.Writer
	msg     string
	stop    chan struct{}
	stopped chan struct{}
}

// NewProgressPrinter creates a ProgressPrinter that writes to `out`.
func NewProgressPrinter(out io.Writer, msg string) *ProgressPrinter {
	return &ProgressPrinter{
		out:     out,
		msg:     msg,
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Run prints the message and the trailing progress dots. It returns after
// Stop or StopWithPrint is called.
func (pp *ProgressPrinter) Run() {
	defer close(pp.stopped)

	fmt.Fprint(pp.out, pp.msg)
	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			fmt.Fprint(pp.out, ".")
		case <-pp.stop:
			return
		}
	}
}

// Stop terminates the progress printing and moves to a fresh line.
func (pp *ProgressPrinter) Stop() {
	pp.StopWithPrint("\n")
}

// StopWithPrint terminates the progress printing, then writes `toPrint`.
// It doesn't return until the printing goroutine has exited, so it's safe to
// write to the same stream immediately afterward.
func (pp *ProgressPrinter) StopWithPrint(toPrint string) {
	close(pp.stop)
	<-pp.stopped
	fmt.Fprint(pp.out, toPrint)
}
