// Package runlog appends one structured line per run to the log file the
// operator configured, and reads those lines back for `resync history`.
package runlog

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/resync-v1/pkg/errors"
)

// Mocked out for unit testing.
var (
	fs    = afero.NewOsFs()
	clock = clockwork.NewRealClock()
)

// lineFormatter lays the entry out as a single JSON line with the common
// timestamp/status/message envelope.
var lineFormatter = &logrus.JSONFormatter{
	FieldMap: logrus.FieldMap{
		logrus.FieldKeyTime:  "timestamp",
		logrus.FieldKeyLevel: "status",
		logrus.FieldKeyMsg:   "message",
	},
}

// Entry is everything recorded about one run.
type Entry struct {
	Tool          string
	Mode          string
	Source        string
	Dest          string
	DryRun        bool
	SourceFiles   int
	TransferFiles int
	SourceBytes   int64
	TransferBytes int64
	State         string
	BackupPath    string
	Error         string
}

// Record appends one line describing the run to path.
func Record(path string, entry Entry) error {
	fields := logrus.Fields{
		"tool":          entry.Tool,
		"mode":          entry.Mode,
		"src":           entry.Source,
		"dst":           entry.Dest,
		"dryRun":        entry.DryRun,
		"sourceFiles":   entry.SourceFiles,
		"transferFiles": entry.TransferFiles,
		"sourceBytes":   entry.SourceBytes,
		"transferBytes": entry.TransferBytes,
		"state":         entry.State,
	}
	if entry.BackupPath != "" {
		fields["backup"] = entry.BackupPath
	}
	if entry.Error != "" {
		fields["error"] = entry.Error
	}

	line := logrus.NewEntry(logrus.New()).WithFields(fields)
	line.Time = clock.Now()
	line.Level = logrus.InfoLevel
	line.Message = fmt.Sprintf("%s %s -> %s", entry.Mode, entry.Source, entry.Dest)

	lineBytes, err := lineFormatter.Format(line)
	if err != nil {
		return errors.WithContext(err, "marshal run entry")
	}

	file, err := fs.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return errors.WithContext(err, "open run log")
	}
	defer file.Close()

	if _, err := file.Write(lineBytes); err != nil {
		return errors.WithContext(err, "append run entry")
	}
	return nil
}

// Line is one recorded run along with when it happened.
type Line struct {
	Time  time.Time
	Entry Entry
}

// rawLine mirrors the JSON layout Record writes.
type rawLine struct {
	Timestamp     time.Time `json:"timestamp"`
	Tool          string    `json:"tool"`
	Mode          string    `json:"mode"`
	Src           string    `json:"src"`
	Dst           string    `json:"dst"`
	DryRun        bool      `json:"dryRun"`
	SourceFiles   int       `json:"sourceFiles"`
	TransferFiles int       `json:"transferFiles"`
	SourceBytes   int64     `json:"sourceBytes"`
	TransferBytes int64     `json:"transferBytes"`
	State         string    `json:"state"`
	Backup        string    `json:"backup"`
	Error         string    `json:"error"`
}

// Tail returns the most recent n runs recorded at path, oldest first. A
// non-positive n returns every run. A log that doesn't exist yet reads as
// empty. Lines that don't parse are skipped rather than failing the read.
func Tail(path string, n int) ([]Line, error) {
	contents, err := afero.ReadFile(fs, path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.WithContext(err, "read run log")
	}

	var lines []Line
	for _, raw := range strings.Split(string(contents), "\n") {
		if strings.TrimSpace(raw) == "" {
			continue
		}

		var parsed rawLine
		if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
			continue
		}

		lines = append(lines, Line{
			Time: parsed.Timestamp,
			Entry: Entry{
				Tool:          parsed.Tool,
				Mode:          parsed.Mode,
				Source:        parsed.Src,
				Dest:          parsed.Dst,
				DryRun:        parsed.DryRun,
				SourceFiles:   parsed.SourceFiles,
				TransferFiles: parsed.TransferFiles,
				SourceBytes:   parsed.SourceBytes,
				TransferBytes: parsed.TransferBytes,
				State:         parsed.State,
				BackupPath:    parsed.Backup,
				Error:         parsed.Error,
			},
		})
	}

	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}
