package runlog

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAppends(t *testing.T) {
	mockFs := afero.NewMemMapFs()
	fs = mockFs
	clock = clockwork.NewFakeClockAt(time.Date(2021, 4, 17, 9, 30, 0, 0, time.UTC))
	defer func() {
		fs = afero.NewOsFs()
		clock = clockwork.NewRealClock()
	}()

	entry := Entry{
		Tool:          "rsync",
		Mode:          "mirror",
		Source:        "/data/src",
		Dest:          "/backup/dst",
		SourceFiles:   21,
		TransferFiles: 5,
		SourceBytes:   556556,
		TransferBytes: 132515,
		State:         "done",
		BackupPath:    "/tmp/dst.20210417-093000.000001",
	}
	require.NoError(t, Record("/var/log/resync.log", entry))
	require.NoError(t, Record("/var/log/resync.log", Entry{
		Tool:  "cp",
		Mode:  "copy",
		State: "failed",
		Error: "cp exited with status 1",
	}))

	contents, err := afero.ReadFile(mockFs, "/var/log/resync.log")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(string(contents), "\n"), "\n")
	require.Len(t, lines, 2)

	var first map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "2021-04-17T09:30:00Z", first["timestamp"])
	assert.Equal(t, "info", first["status"])
	assert.Equal(t, "mirror /data/src -> /backup/dst", first["message"])
	assert.Equal(t, "rsync", first["tool"])
	assert.Equal(t, float64(21), first["sourceFiles"])
	assert.Equal(t, float64(5), first["transferFiles"])
	assert.Equal(t, float64(556556), first["sourceBytes"])
	assert.Equal(t, "done", first["state"])
	assert.Equal(t, "/tmp/dst.20210417-093000.000001", first["backup"])
	assert.NotContains(t, first, "error")

	var second map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "failed", second["state"])
	assert.Equal(t, "cp exited with status 1", second["error"])
	assert.NotContains(t, second, "backup")

	fi, err := mockFs.Stat("/var/log/resync.log")
	require.NoError(t, err)
	assert.EqualValues(t, 0644, fi.Mode().Perm())
}

func TestTailRoundTrip(t *testing.T) {
	fs = afero.NewMemMapFs()
	clock = clockwork.NewFakeClockAt(time.Date(2021, 4, 17, 9, 30, 0, 0, time.UTC))
	defer func() {
		fs = afero.NewOsFs()
		clock = clockwork.NewRealClock()
	}()

	entry := Entry{
		Tool:          "rsync",
		Mode:          "mirror",
		Source:        "/data/src",
		Dest:          "/backup/dst",
		DryRun:        true,
		SourceFiles:   21,
		TransferFiles: 5,
		SourceBytes:   556556,
		TransferBytes: 132515,
		State:         "done",
		BackupPath:    "/tmp/dst.20210417-093000.000001",
	}
	require.NoError(t, Record("/var/log/resync.log", entry))

	lines, err := Tail("/var/log/resync.log", 0)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, time.Date(2021, 4, 17, 9, 30, 0, 0, time.UTC), lines[0].Time)
	assert.Equal(t, entry, lines[0].Entry)
}

func TestTailLimitsAndSkipsGarbage(t *testing.T) {
	fs = afero.NewMemMapFs()
	defer func() {
		fs = afero.NewOsFs()
	}()

	contents := `{"timestamp":"2021-04-17T09:00:00Z","tool":"rsync","state":"done"}
this line is not JSON
{"timestamp":"2021-04-17T10:00:00Z","tool":"rsync","state":"failed"}

{"timestamp":"2021-04-17T11:00:00Z","tool":"cp","state":"aborted"}
`
	require.NoError(t, afero.WriteFile(fs, "/var/log/resync.log",
		[]byte(contents), 0644))

	lines, err := Tail("/var/log/resync.log", 2)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, "failed", lines[0].Entry.State)
	assert.Equal(t, "aborted", lines[1].Entry.State)

	all, err := Tail("/var/log/resync.log", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestTailMissingFile(t *testing.T) {
	fs = afero.NewMemMapFs()
	defer func() {
		fs = afero.NewOsFs()
	}()

	lines, err := Tail("/var/log/never-written.log", 10)
	assert.NoError(t, err)
	assert.Empty(t, lines)
}
