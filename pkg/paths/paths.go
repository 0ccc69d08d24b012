// Package paths canonicalizes the source and destination arguments before any
// other component looks at them. Every later comparison (identity, nesting,
// the sensitive-area check) assumes it is working with the absolute,
// symlink-free form produced here.
package paths

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"

	"github.com/sidkik/resync-v1/pkg/errors"
	"github.com/sidkik/resync-v1/pkg/privilege"
	"github.com/sidkik/resync-v1/pkg/prompt"
	"github.com/sidkik/resync-v1/pkg/runner"
)

// Mocked out for unit testing.
var (
	fs           = afero.NewOsFs()
	evalSymlinks = filepath.EvalSymlinks
	getwd        = os.Getwd
	run          = runner.Runner(runner.Run)
)

// homedirExpand will be overridden in mock tests.
var homedirExpand = homedir.Expand

// ResolveOpts controls what Resolve may do about a missing directory.
type ResolveOpts struct {
	// AllowMissing accepts a directory that doesn't exist, yielding its
	// cleaned absolute form. Previews and dry runs use it: a missing
	// destination just means every file is new.
	AllowMissing bool

	// AllowCreate permits creating the directory when it doesn't exist.
	// Creation still requires the operator's approval via Confirm.
	AllowCreate bool

	// Confirm asks the operator before anything is created.
	Confirm prompt.Confirmer

	// Privilege is consulted when creation needs elevation.
	Privilege privilege.Context
}

// Resolve turns a user-supplied path into its canonical form: homedir
// expanded, absolute, cleaned, and with every symlink collapsed. The result
// always names an existing directory. A missing path yields
// errors.PathNotFound unless opts allows creating it and the operator agrees.
func Resolve(ctx context.Context, raw string, opts ResolveOpts) (string, error) {
	expanded, err := homedirExpand(raw)
	if err != nil {
		return "", errors.WithContext(err, "expand path")
	}

	if !filepath.IsAbs(expanded) {
		wd, err := getwd()
		if err != nil {
			return "", errors.WithContext(err, "get working directory")
		}
		expanded = filepath.Join(wd, expanded)
	}
	abs := filepath.Clean(expanded)

	canonical, err := evalSymlinks(abs)
	switch {
	case err == nil:
	case os.IsNotExist(err):
		if opts.AllowMissing {
			return abs, nil
		}
		if !opts.AllowCreate {
			return "", errors.PathNotFound{Path: abs}
		}

		if err := confirmCreate(ctx, abs, opts); err != nil {
			return "", err
		}

		canonical, err = evalSymlinks(abs)
		if err != nil {
			return "", errors.WithContext(err, "resolve created directory")
		}
	default:
		return "", errors.WithContext(err, "resolve symlinks")
	}

	fi, err := fs.Stat(canonical)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.PathNotFound{Path: canonical}
		}
		return "", errors.WithContext(err, "stat")
	}
	if !fi.IsDir() {
		return "", errors.NewFriendlyError("%q is not a directory.", canonical)
	}

	return canonical, nil
}

func confirmCreate(ctx context.Context, path string, opts ResolveOpts) error {
	answer, err := opts.Confirm(fmt.Sprintf("Destination %q does not exist. Create it?", path))
	if err != nil {
		// No terminal to ask on, so the path stays missing.
		return errors.PathNotFound{Path: path}
	}

	switch answer {
	case prompt.Yes:
	case prompt.Cancelled:
		return errors.ErrInterrupted
	default:
		return errors.PathNotFound{Path: path}
	}

	err = fs.MkdirAll(path, 0755)
	if err == nil {
		return nil
	}
	if !os.IsPermission(err) {
		return errors.WithContext(err, "create directory")
	}

	inv, err := opts.Privilege.Elevate("create "+path, runner.Invocation{
		Program: "mkdir",
		Args:    []string{"-p", "--", path},
	})
	if err != nil {
		return err
	}

	res, err := run(ctx, inv)
	if err != nil {
		return errors.WithContext(err, "create directory")
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("mkdir exited with status %d", res.ExitCode)
	}
	return nil
}
