package safety

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sidkik/resync-v1/pkg/errors"
	"github.com/sidkik/resync-v1/pkg/prompt"
)

// sensitiveAreas are top-level system directories that require extra
// confirmation before being used as a destination. Matching is exact, on the
// canonical destination path.
var sensitiveAreas = map[string]bool{
	"/etc":   true,
	"/var":   true,
	"/usr":   true,
	"/home":  true,
	"/bin":   true,
	"/lib":   true,
	"/opt":   true,
	"/tmp":   true,
	"/srv":   true,
	"/dev":   true,
	"/mnt":   true,
	"/media": true,
	"/proc":  true,
	"/run":   true,
	"/sys":   true,
}

// Validate gates a source and destination pair before any mutation. Both
// paths must already be canonical (absolute, symlinks collapsed), otherwise
// relative inputs or symlink indirection could sneak past the identity and
// nesting rules.
//
// The rules run in a fixed order, and the first violation wins:
// same path, root destination, nested paths, then the sensitive-area
// denylist. Only the last one is interactively overridable, and it takes two
// separate confirmations.
func Validate(src, dst string, confirm prompt.Confirmer) error {
	if src == dst {
		return errors.SamePath{Path: src}
	}

	if dst == "/" {
		return errors.RootDestination{}
	}

	if contains(dst, src) {
		return errors.NestedPaths{Outer: dst, Inner: src}
	}
	if contains(src, dst) {
		return errors.NestedPaths{Outer: src, Inner: dst}
	}

	if sensitiveAreas[dst] {
		return confirmSensitive(dst, confirm)
	}
	return nil
}

func confirmSensitive(dst string, confirm prompt.Confirmer) error {
	questions := []string{
		fmt.Sprintf("Destination %q is a system directory. Sync into it anyway?", dst),
		fmt.Sprintf("Files under %q may belong to the operating system. Are you absolutely sure?", dst),
	}

	for _, question := range questions {
		answer, err := confirm(question)
		if err != nil {
			return errors.SensitiveAreaDeclined{Path: dst}
		}

		switch answer {
		case prompt.No:
			return errors.ErrUserAborted
		case prompt.Cancelled:
			return errors.ErrInterrupted
		}
	}
	return nil
}

// contains returns whether inner is underneath outer. The comparison is by
// path segment so that siblings sharing a name prefix ("/data" and "/data2")
// don't count as nested.
func contains(outer, inner string) bool {
	outerSegments := segments(outer)
	innerSegments := segments(inner)
	if len(innerSegments) <= len(outerSegments) {
		return false
	}

	for i, segment := range outerSegments {
		if innerSegments[i] != segment {
			return false
		}
	}
	return true
}

func segments(path string) []string {
	trimmed := strings.Trim(filepath.Clean(path), "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
