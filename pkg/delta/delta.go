package delta

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/sidkik/resync-v1/pkg/errors"
)

// Mocked out for unit testing.
var fs = afero.NewOsFs()

// A FileRecord describes one regular file in a tree by the attributes used
// to decide whether a sync would rewrite it.
type FileRecord struct {
	// RelPath is the slash-separated path of the file relative to the root
	// of the walked tree.
	RelPath string

	// SizeBytes is the length of the file.
	SizeBytes int64

	// ModTimeEpoch is the modification time in whole seconds since the
	// epoch. Sub-second precision is dropped because transfer tools can't
	// rely on it being preserved across filesystems.
	ModTimeEpoch int64
}

// Equal returns whether two records describe the same file state (i.e.
// whether a delta-aware sync would skip the file).
func (f FileRecord) Equal(other FileRecord) bool {
	return f.SizeBytes == other.SizeBytes && f.ModTimeEpoch == other.ModTimeEpoch
}

// TreeSnapshot is a collection of the files under one directory tree, keyed
// by relative path.
type TreeSnapshot map[string]FileRecord

// Snapshot enumerates every regular file under root, hidden entries
// included, minus anything under a skip entry. It only stats files, so no
// timestamps are disturbed.
func Snapshot(ctx context.Context, root string, skip []string) (TreeSnapshot, error) {
	files := TreeSnapshot{}
	err := afero.Walk(fs, root, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil || strings.HasPrefix(relPath, "..") {
			return errors.WithContext(err, "normalize path")
		}
		relPath = filepath.ToSlash(relPath)

		if fi.IsDir() {
			if relPath != "." && skipped(relPath, skip) {
				return filepath.SkipDir
			}
			return nil
		}
		if !fi.Mode().IsRegular() || skipped(relPath, skip) {
			return nil
		}

		files[relPath] = FileRecord{
			RelPath:      relPath,
			SizeBytes:    fi.Size(),
			ModTimeEpoch: fi.ModTime().Unix(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// skipped reports whether relPath falls under any skip entry. An entry names
// a file or directory relative to the walked root; everything beneath a
// skipped directory is skipped with it.
func skipped(relPath string, skip []string) bool {
	for _, entry := range skip {
		entry = strings.Trim(filepath.ToSlash(entry), "/")
		if entry == "" {
			continue
		}
		if relPath == entry || strings.HasPrefix(relPath, entry+"/") {
			return true
		}
	}
	return false
}

// Ordered returns the snapshot's records sorted by relative path so that
// output derived from it is stable across runs.
func (s TreeSnapshot) Ordered() []FileRecord {
	records := make([]FileRecord, 0, len(s))
	for _, f := range s {
		records = append(records, f)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].RelPath < records[j].RelPath
	})
	return records
}

// Diff returns the records that are missing or stale in `mirror`, ordered by
// relative path.
func (s TreeSnapshot) Diff(mirror TreeSnapshot) []FileRecord {
	var changed []FileRecord
	for _, exp := range s.Ordered() {
		curr, ok := mirror[exp.RelPath]
		if !ok || !curr.Equal(exp) {
			changed = append(changed, exp)
		}
	}
	return changed
}

// A DeltaSet is the preview of a sync: every file at the source, and the
// subset the selected backend would rewrite. Both sequences are ordered by
// relative path.
type DeltaSet struct {
	SourceFiles   []FileRecord
	TransferFiles []FileRecord
}

// SourceBytes returns the byte sum of the source files.
func (d DeltaSet) SourceBytes() int64 {
	return sumBytes(d.SourceFiles)
}

// TransferBytes returns the byte sum of the files the sync would rewrite.
func (d DeltaSet) TransferBytes() int64 {
	return sumBytes(d.TransferFiles)
}

func sumBytes(records []FileRecord) (total int64) {
	for _, f := range records {
		total += f.SizeBytes
	}
	return total
}

// Compute previews a sync from source to dest without mutating either tree.
// A destination that doesn't exist yet has zero files, so every source file
// counts as new no matter the backend. skip filters both trees identically.
func Compute(ctx context.Context, source, dest string, deltaAware bool, skip []string) (DeltaSet, error) {
	srcSnapshot, err := Snapshot(ctx, source, skip)
	if err != nil {
		return DeltaSet{}, errors.WithContext(err, "walk source")
	}

	set := DeltaSet{SourceFiles: srcSnapshot.Ordered()}
	if !deltaAware {
		set.TransferFiles = set.SourceFiles
		return set, nil
	}

	destSnapshot := TreeSnapshot{}
	exists, err := afero.DirExists(fs, dest)
	if err != nil {
		return DeltaSet{}, errors.WithContext(err, "check destination")
	}
	if exists {
		destSnapshot, err = Snapshot(ctx, dest, skip)
		if err != nil {
			return DeltaSet{}, errors.WithContext(err, "walk destination")
		}
	}

	set.TransferFiles = srcSnapshot.Diff(destSnapshot)
	return set, nil
}
