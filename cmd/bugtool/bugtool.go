// Package bugtool implements the `bug-tool` command, which bundles
// everything useful for debugging a resync problem into one archive.
package bugtool

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/sidkik/resync-v1/cmd/util"
	"github.com/sidkik/resync-v1/pkg/backend"
	"github.com/sidkik/resync-v1/pkg/config"
	"github.com/sidkik/resync-v1/pkg/errors"
	"github.com/sidkik/resync-v1/pkg/tools"
	"github.com/sidkik/resync-v1/pkg/version"
)

// Mocked for unit testing.
var (
	fs            = afero.NewOsFs()
	resolveConfig = config.Resolve
	configPath    = config.Path
	toolPath      = tools.Has
	toolVersion   = tools.Version
)

// New creates a new `bug-tool` command.
func New() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "bug-tool",
		Short: "Generate an archive for debugging resync",
		Run:   func(_ *cobra.Command, _ []string) { main(out) },
	}
	cmd.Flags().StringVar(&out, "out", "", "path for archive")
	return cmd
}

func main(out string) {
	tmpdir, err := afero.TempDir(fs, "", "resync-bug-tool")
	if err != nil {
		err = errors.NewFriendlyError("Failed to create out directory:\n%s", err)
		util.HandleFatalError(err)
	}

	// Wrap defer in a function to handle errors from fs.RemoveAll().
	defer func() {
		err := fs.RemoveAll(tmpdir)
		if err != nil {
			util.HandleFatalError(err)
		}
	}()

	setupInfo(tmpdir)

	if out == "" {
		out = fmt.Sprintf("resync-bug-info-%s.tar.gz",
			time.Now().Format("Jan_02_2006-15-04-05"))
	}
	if err := tarDirectory(tmpdir, out); err != nil {
		err = errors.NewFriendlyError("Failed to tar:\n%s", err)
		util.HandleFatalError(err)
	}

	msg := `Created bug information archive at '%s'.
Attach it when reporting a problem.
You may want to edit the archive if the paths in it are sensitive.
The archive contains:
 * The resync config file.
 * The run log.
 * The versions of resync and the transfer tools.
`
	fmt.Printf(msg, out)
}

func setupInfo(root string) {
	if err := setupVersions(root); err != nil {
		log.WithError(err).Warn("Failed to collect versions")
	}

	if err := setupConfigFile(root); err != nil {
		log.WithError(err).Warn("Failed to collect config file")
	}

	cfg, err := resolveConfig(config.Layer{})
	if err != nil {
		log.WithError(err).Error("Failed to resolve config")
		return
	}

	if cfg.LogPath == "" {
		log.Debug("Run logging is off, so there is no run log to collect")
		return
	}
	if err := copyFile(filepath.Join(root, "run.log"), cfg.LogPath); err != nil {
		log.WithError(err).Warn("Failed to collect run log")
	}
}

func setupVersions(root string) error {
	out, err := fs.Create(filepath.Join(root, "versions"))
	if err != nil {
		return errors.WithContext(err, "create")
	}
	defer out.Close()

	fmt.Fprintf(out, "resync version: %s\n", version.Version)
	for _, b := range backend.All() {
		path, ok := toolPath(b.Name)
		if !ok {
			fmt.Fprintf(out, "%s: not installed\n", b.Name)
			continue
		}

		v, err := toolVersion(context.Background(), b.Name, b.VersionArgs...)
		if err != nil {
			fmt.Fprintf(out, "%s: unknown version (%s)\n", b.Name, path)
			continue
		}
		fmt.Fprintf(out, "%s: %s (%s)\n", b.Name, v, path)
	}
	return nil
}

func setupConfigFile(root string) error {
	path, err := configPath()
	if err != nil {
		return errors.WithContext(err, "get config path")
	}
	return copyFile(filepath.Join(root, "resync.conf"), path)
}

func copyFile(dst, src string) error {
	srcFile, err := fs.Open(src)
	if err != nil {
		return errors.WithContext(err, "open source")
	}
	defer srcFile.Close()

	dstFile, err := fs.Create(dst)
	if err != nil {
		return errors.WithContext(err, "open destination")
	}
	defer dstFile.Close()

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		return errors.WithContext(err, "copy")
	}
	return nil
}

func tarDirectory(src, outPath string) error {
	out, err := fs.Create(outPath)
	if err != nil {
		return errors.WithContext(err, "open destination")
	}
	defer out.Close()

	gzw := gzip.NewWriter(out)
	defer gzw.Close()

	tw := tar.NewWriter(gzw)
	defer tw.Close()

	return afero.Walk(fs, src, func(file string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		header, err := tar.FileInfoHeader(fi, fi.Name())
		if err != nil {
			return errors.WithContext(err, fmt.Sprintf("make header %s", file))
		}

		relPath, err := filepath.Rel(src, file)
		if err != nil {
			return errors.WithContext(err, fmt.Sprintf("get relative path of %s to %s", file, src))
		}

		header.Name = filepath.Join("resync-bug-info", relPath)
		if err := tw.WriteHeader(header); err != nil {
			return errors.WithContext(err, fmt.Sprintf("write %s header", file))
		}

		// Only write contents if it's a file (i.e. not a directory).
		if !fi.Mode().IsRegular() {
			return nil
		}

		f, err := fs.Open(file)
		if err != nil {
			return errors.WithContext(err, fmt.Sprintf("open %s", file))
		}
		defer f.Close()

		if _, err := io.Copy(tw, f); err != nil {
			return errors.WithContext(err, fmt.Sprintf("copy %s", file))
		}
		return nil
	})
}
