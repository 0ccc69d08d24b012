package paths

import (
	"context"
	"os"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"

	"github.com/sidkik/resync-v1/pkg/errors"
	"github.com/sidkik/resync-v1/pkg/privilege"
	"github.com/sidkik/resync-v1/pkg/prompt"
	"github.com/sidkik/resync-v1/pkg/runner"
)

func resetMocks() {
	fs = afero.NewOsFs()
	evalSymlinks = func(path string) (string, error) { return path, nil }
	getwd = os.Getwd
	homedirExpand = func(path string) (string, error) { return path, nil }
	run = runner.Runner(runner.Run)
}

// symlinksFromFs makes the symlink collapse succeed exactly when the cleaned
// path exists in the mock filesystem.
func symlinksFromFs(mockFs afero.Fs) func(string) (string, error) {
	return func(path string) (string, error) {
		if ok, _ := afero.DirExists(mockFs, path); ok {
			return path, nil
		}
		if ok, _ := afero.Exists(mockFs, path); ok {
			return path, nil
		}
		return "", os.ErrNotExist
	}
}

func TestResolveCanonicalizes(t *testing.T) {
	defer resetMocks()

	mockFs := afero.NewMemMapFs()
	assert.NoError(t, mockFs.MkdirAll("/volumes/data", 0755))

	fs = mockFs
	homedirExpand = func(path string) (string, error) {
		assert.Equal(t, "~/data", path)
		return "/home/operator/data", nil
	}
	evalSymlinks = func(path string) (string, error) {
		assert.Equal(t, "/home/operator/data", path)
		return "/volumes/data", nil
	}

	resolved, err := Resolve(context.Background(), "~/data", ResolveOpts{})
	assert.NoError(t, err)
	assert.Equal(t, "/volumes/data", resolved)
}

func TestResolveRelativePath(t *testing.T) {
	defer resetMocks()

	mockFs := afero.NewMemMapFs()
	assert.NoError(t, mockFs.MkdirAll("/work/src", 0755))

	fs = mockFs
	getwd = func() (string, error) { return "/work", nil }
	evalSymlinks = symlinksFromFs(mockFs)
	homedirExpand = func(path string) (string, error) { return path, nil }

	resolved, err := Resolve(context.Background(), "./src", ResolveOpts{})
	assert.NoError(t, err)
	assert.Equal(t, "/work/src", resolved)
}

func TestResolveMissing(t *testing.T) {
	defer resetMocks()

	fs = afero.NewMemMapFs()
	evalSymlinks = func(string) (string, error) { return "", os.ErrNotExist }
	homedirExpand = func(path string) (string, error) { return path, nil }

	_, err := Resolve(context.Background(), "/data/missing", ResolveOpts{})
	assert.Equal(t, errors.PathNotFound{Path: "/data/missing"}, err)
}

func TestResolveAllowMissing(t *testing.T) {
	defer resetMocks()

	fs = afero.NewMemMapFs()
	evalSymlinks = func(string) (string, error) { return "", os.ErrNotExist }
	getwd = func() (string, error) { return "/work", nil }
	homedirExpand = func(path string) (string, error) { return path, nil }

	resolved, err := Resolve(context.Background(), "missing/dst", ResolveOpts{AllowMissing: true})
	assert.NoError(t, err)
	assert.Equal(t, "/work/missing/dst", resolved)
}

func TestResolveNotADirectory(t *testing.T) {
	defer resetMocks()

	mockFs := afero.NewMemMapFs()
	assert.NoError(t, afero.WriteFile(mockFs, "/data/notes.txt", []byte("hi"), 0644))

	fs = mockFs
	evalSymlinks = symlinksFromFs(mockFs)
	homedirExpand = func(path string) (string, error) { return path, nil }

	_, err := Resolve(context.Background(), "/data/notes.txt", ResolveOpts{})
	assert.EqualError(t, err, `"/data/notes.txt" is not a directory.`)
}

func TestResolveCreate(t *testing.T) {
	tests := []struct {
		name      string
		answer    prompt.Answer
		answerErr error
		expErr    error
		expExists bool
	}{
		{
			name:      "Approved",
			answer:    prompt.Yes,
			expExists: true,
		},
		{
			name:   "Declined",
			answer: prompt.No,
			expErr: errors.PathNotFound{Path: "/data/dst"},
		},
		{
			name:   "Cancelled",
			answer: prompt.Cancelled,
			expErr: errors.ErrInterrupted,
		},
		{
			name:      "NoTerminal",
			answer:    prompt.No,
			answerErr: prompt.ErrNoTerminal,
			expErr:    errors.PathNotFound{Path: "/data/dst"},
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			defer resetMocks()

			mockFs := afero.NewMemMapFs()
			fs = mockFs
			evalSymlinks = symlinksFromFs(mockFs)
			homedirExpand = func(path string) (string, error) { return path, nil }

			var question string
			opts := ResolveOpts{
				AllowCreate: true,
				Confirm: func(q string) (prompt.Answer, error) {
					question = q
					return test.answer, test.answerErr
				},
			}

			resolved, err := Resolve(context.Background(), "/data/dst", opts)
			assert.Equal(t, `Destination "/data/dst" does not exist. Create it?`, question)
			assert.Equal(t, test.expErr, err)
			if test.expErr == nil {
				assert.Equal(t, "/data/dst", resolved)
			}

			exists, _ := afero.DirExists(mockFs, "/data/dst")
			assert.Equal(t, test.expExists, exists)
		})
	}
}

func TestResolveCreateElevates(t *testing.T) {
	defer resetMocks()

	// The read-only wrapper makes the unprivileged MkdirAll fail with EPERM,
	// forcing the elevated fallback. The stub runner then writes to the
	// underlying filesystem the way a real mkdir would.
	base := afero.NewMemMapFs()
	fs = afero.NewReadOnlyFs(base)
	evalSymlinks = symlinksFromFs(base)
	homedirExpand = func(path string) (string, error) { return path, nil }

	var elevated runner.Invocation
	run = func(_ context.Context, inv runner.Invocation, _ ...runner.Option) (
		runner.Result, error) {
		elevated = inv
		return runner.Result{}, base.MkdirAll("/data/dst", 0755)
	}

	opts := ResolveOpts{
		AllowCreate: true,
		Confirm: func(string) (prompt.Answer, error) {
			return prompt.Yes, nil
		},
		Privilege: privilege.Context{ElevationCommand: "sudo", ElevationAvailable: true},
	}

	resolved, err := Resolve(context.Background(), "/data/dst", opts)
	assert.NoError(t, err)
	assert.Equal(t, "/data/dst", resolved)
	assert.Equal(t, "sudo mkdir -p -- /data/dst", elevated.String())
}

func TestResolveCreateElevationUnavailable(t *testing.T) {
	defer resetMocks()

	base := afero.NewMemMapFs()
	fs = afero.NewReadOnlyFs(base)
	evalSymlinks = symlinksFromFs(base)
	homedirExpand = func(path string) (string, error) { return path, nil }

	opts := ResolveOpts{
		AllowCreate: true,
		Confirm: func(string) (prompt.Answer, error) {
			return prompt.Yes, nil
		},
	}

	_, err := Resolve(context.Background(), "/data/dst", opts)
	assert.Equal(t, errors.ElevationUnavailable{Action: "create /data/dst"}, err)
}
