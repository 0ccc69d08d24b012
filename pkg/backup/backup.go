// Package backup copies the destination tree aside before a run is allowed
// to mutate it. resync never rolls anything back automatically; the backup is
// what makes a bad run recoverable by hand, so a failure here is fatal to the
// whole run.
package backup

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ghodss/yaml"
	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/resync-v1/pkg/errors"
)

// Mocked out for unit testing.
var (
	fs    = afero.NewOsFs()
	clock = clockwork.NewRealClock()
)

// ManifestName is the name of the recovery manifest written into every
// backup directory.
const ManifestName = ".resync-backup.yaml"

const timestampLayout = "20060102-150405"

// Record describes one backup.
type Record struct {
	OriginPath string    `json:"originPath"`
	BackupPath string    `json:"backupPath"`
	CreatedAt  time.Time `json:"createdAt"`
	FileCount  int       `json:"fileCount"`
}

// None reports whether the record is the "nothing was backed up" sentinel,
// which happens when the destination didn't exist before the run.
func (r Record) None() bool {
	return r.BackupPath == ""
}

// Snapshot copies the tree at dest into a fresh directory under tempRoot,
// named after the destination so the operator can tell their backups apart.
// File modes and modification times are preserved.
func Snapshot(ctx context.Context, dest, tempRoot string) (Record, error) {
	exists, err := afero.DirExists(fs, dest)
	if err != nil {
		return Record{}, errors.BackupFailed{Err: errors.WithContext(err, "check destination")}
	}
	if !exists {
		return Record{OriginPath: dest, CreatedAt: clock.Now()}, nil
	}

	name := fmt.Sprintf("%s.%s.%06d", filepath.Base(dest),
		clock.Now().Format(timestampLayout), rand.Intn(1000000))
	backupPath := filepath.Join(tempRoot, name)

	count, err := copyTree(ctx, dest, backupPath)
	if err != nil {
		// An interrupt is not a backup failure.
		if ctx.Err() != nil {
			return Record{}, ctx.Err()
		}
		return Record{}, errors.BackupFailed{Err: err}
	}

	record := Record{
		OriginPath: dest,
		BackupPath: backupPath,
		CreatedAt:  clock.Now(),
		FileCount:  count,
	}
	if err := writeManifest(record); err != nil {
		return Record{}, errors.BackupFailed{Err: err}
	}

	log.WithFields(log.Fields{
		"backup": backupPath,
		"files":  count,
	}).Debug("Backed up destination")
	return record, nil
}

func copyTree(ctx context.Context, src, dst string) (int, error) {
	count := 0
	err := afero.Walk(fs, src, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		relPath, err := filepath.Rel(src, path)
		if err != nil || strings.HasPrefix(relPath, "..") {
			return errors.WithContext(err, "normalize path")
		}
		target := filepath.Join(dst, relPath)

		if fi.IsDir() {
			return fs.MkdirAll(target, 0755)
		}
		if !fi.Mode().IsRegular() {
			return nil
		}

		if err := copyFile(path, target, fi); err != nil {
			return err
		}
		count++
		return nil
	})
	return count, err
}

func copyFile(src, dst string, fi os.FileInfo) error {
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

	if err := fs.Chmod(dst, fi.Mode()); err != nil {
		return errors.WithContext(err, "set file mode")
	}

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		return errors.WithContext(err, "copy")
	}

	// Change the modification time as the last step so that it doesn't get
	// reset by other file operations.
	if err := fs.Chtimes(dst, time.Now(), fi.ModTime()); err != nil {
		return errors.WithContext(err, "set file modtime")
	}
	return nil
}

func writeManifest(record Record) error {
	yamlBytes, err := yaml.Marshal(record)
	if err != nil {
		return errors.WithContext(err, "marshal manifest")
	}

	path := filepath.Join(record.BackupPath, ManifestName)
	if err := afero.WriteFile(fs, path, yamlBytes, 0644); err != nil {
		return errors.WithContext(err, "write manifest")
	}
	return nil
}
