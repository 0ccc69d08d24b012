// Package backend describes the transfer tools resync can drive and builds
// their command lines. Argument lists are assembled as typed slices; nothing
// here ever goes through a shell.
package backend

import (
	"strings"

	goversion "github.com/hashicorp/go-version"

	"github.com/sidkik/resync-v1/pkg/errors"
	"github.com/sidkik/resync-v1/pkg/runner"
)

// Mode selects what happens to destination files that have no source
// counterpart.
type Mode int

const (
	// Mirror makes the destination identical to the source, deleting
	// whatever the source doesn't have.
	Mirror Mode = iota

	// Copy only adds and updates. Nothing is ever deleted.
	Copy
)

func (m Mode) String() string {
	if m == Mirror {
		return "mirror"
	}
	return "copy"
}

// Backend describes one transfer tool.
type Backend struct {
	// Name is the tool's config name, which is also its binary name.
	Name string

	// DeltaAware is true when the tool itself skips up-to-date files. The
	// plain copy backend rewrites everything it touches instead.
	DeltaAware bool

	// ClearsFirst is true when mirroring is implemented by wiping the
	// destination before copying rather than by reconciling.
	ClearsFirst bool

	// VersionArgs is the tool's own version incantation.
	VersionArgs []string

	// MinVersion is the oldest release the argument builder is known to
	// work with. Empty means any.
	MinVersion string
}

var backends = map[string]Backend{
	"cp": {
		Name:        "cp",
		ClearsFirst: true,
		VersionArgs: []string{"--version"},
	},
	"rsync": {
		Name:        "rsync",
		DeltaAware:  true,
		VersionArgs: []string{"--version"},
		MinVersion:  "2.6.9",
	},
	"rclone": {
		Name:        "rclone",
		DeltaAware:  true,
		VersionArgs: []string{"version"},
		MinVersion:  "1.35",
	},
}

// ForTool returns the backend for the configured tool name.
func ForTool(name string) (Backend, error) {
	b, ok := backends[name]
	if !ok {
		return Backend{}, errors.NewFriendlyError(
			"Unknown tool %q. Valid tools are cp, rsync, and rclone.", name)
	}
	return b, nil
}

// All returns every known backend, in the order they should be displayed.
func All() []Backend {
	return []Backend{backends["cp"], backends["rsync"], backends["rclone"]}
}

// Invocation builds the tool command line for one transfer. src and dst must
// already be canonical absolute paths to existing directories. skip entries
// are rendered as the tool's exclusion flags; cp has none and ignores them.
func (b Backend) Invocation(mode Mode, src, dst string, skip, extraArgs []string) runner.Invocation {
	switch b.Name {
	case "cp":
		args := append([]string{"-a"}, extraArgs...)
		// The /. suffix copies the directory's contents, hidden entries
		// included, instead of the directory itself.
		args = append(args, "--", src+"/.", dst+"/")
		return runner.Invocation{Program: "cp", Args: args}

	case "rsync":
		args := []string{"-a"}
		if mode == Mirror {
			args = append(args, "--delete")
		}
		for _, entry := range normalizeSkip(skip) {
			// The leading slash anchors the pattern to the transfer
			// root, matching how the preview interprets skip entries.
			args = append(args, "--exclude=/"+entry)
		}
		args = append(args, extraArgs...)
		// Trailing slashes make rsync transfer the contents rather than
		// the directory itself.
		args = append(args, src+"/", dst+"/")
		return runner.Invocation{Program: "rsync", Args: args}

	default:
		verb := "sync"
		if mode == Copy {
			verb = "copy"
		}
		args := []string{verb}
		for _, entry := range normalizeSkip(skip) {
			// rclone needs one pattern for the entry itself and one for
			// anything beneath it.
			args = append(args, "--exclude=/"+entry, "--exclude=/"+entry+"/**")
		}
		args = append(args, extraArgs...)
		args = append(args, src, dst)
		return runner.Invocation{Program: "rclone", Args: args}
	}
}

func normalizeSkip(skip []string) []string {
	var entries []string
	for _, entry := range skip {
		entry = strings.Trim(entry, "/")
		if entry != "" {
			entries = append(entries, entry)
		}
	}
	return entries
}

// CheckVersion returns an error when v is older than the backend's floor.
func (b Backend) CheckVersion(v *goversion.Version) error {
	if b.MinVersion == "" || v == nil {
		return nil
	}

	min := goversion.Must(goversion.NewVersion(b.MinVersion))
	if v.LessThan(min) {
		return errors.NewFriendlyError("%s %s is too old: resync needs at "+
			"least %s.", b.Name, v, min)
	}
	return nil
}

// SplitArgs turns a raw argument string from the config file into an argument
// list. Plain whitespace splitting: resync never interprets quotes the way a
// shell would.
func SplitArgs(raw string) []string {
	return strings.Fields(raw)
}
