package prompt

import (
	"github.com/sidkik/resync-v1/pkg/errors"
)

// Answer is the result of a confirmation prompt.
type Answer int

const (
	// Yes means the operator approved the action.
	Yes Answer = iota

	// No means the operator declined the action.
	No

	// Cancelled means the operator ended the session rather than answering.
	Cancelled
)

// A Confirmer asks the operator a yes or no question. The sync engine never
// reads stdin itself; the CLI layer supplies an implementation, and tests
// supply stubs.
type Confirmer func(question string) (Answer, error)

// ErrNoTerminal is returned by Disabled for every question.
var ErrNoTerminal = errors.New("standard input is not a terminal")

// Disabled is the Confirmer for sessions without a terminal. Every question
// fails so that callers fall back to their non-interactive behavior instead
// of hanging on a read.
func Disabled(string) (Answer, error) {
	return No, ErrNoTerminal
}
