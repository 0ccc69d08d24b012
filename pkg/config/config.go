// Package config resolves the settings for a run from three sources: explicit
// command line flags, the operator's config file, and built-in defaults.
// Earlier sources win. The skip list is the one exception: it is unioned
// across all sources.
package config

import (
	"bytes"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/imdario/mergo"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	ini "gopkg.in/ini.v1"

	"github.com/sidkik/resync-v1/pkg/errors"
)

// DefaultPath is the default location of the resync config file.
const DefaultPath = "~/.resync.conf"

// parseErrTemplate is a template for when the CLI fails to parse the config
// file. The expected format is small enough to restate in full.
const parseErrTemplate = "Configuration file could not be parsed. " +
	"Please review %q.\n" +
	"The expected format is one `key = value` per line, with `#` starting a " +
	"comment.\n\n" +
	"For reference, here is the error from the parser:\n" +
	"%s"

// homedirExpand will be overridden in mock tests.
var homedirExpand = homedir.Expand

// Layer is one source of settings. The zero value of every field means "not
// set here", so overlaying layers is a matter of filling zeroes. Booleans are
// carried as strings for exactly that reason: an explicit "false" from the
// command line has to survive a "true" in the file.
type Layer struct {
	Tool       string
	Log        string
	Src        string
	Dst        string
	DryRun     string
	NoSudo     string
	Skip       []string
	CpArgs     string
	RsyncArgs  string
	RcloneArgs string
}

// Effective is the fully resolved configuration for one run.
type Effective struct {
	Tool    string
	LogPath string
	Src     string
	Dst     string
	DryRun  bool
	NoSudo  bool
	Skip    []string

	// ExtraArgs holds the raw per-tool argument strings from the config
	// file, keyed by tool name.
	ExtraArgs map[string]string
}

// FormatBool renders a boolean for a Layer field.
func FormatBool(v bool) string {
	return strconv.FormatBool(v)
}

// Path returns the expanded location of the config file.
func Path() (string, error) {
	return homedirExpand(DefaultPath)
}

// Load parses the config file at path. A missing file is not an error; it
// just contributes nothing.
func Load(path string) (Layer, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return Layer{}, nil
		}
		return Layer{}, errors.WithContext(err, "read config")
	}
	return parse(path, data)
}

func parse(path string, data []byte) (Layer, error) {
	file, err := ini.Load(data)
	if err != nil {
		return Layer{}, errors.NewFriendlyError(parseErrTemplate, path, err)
	}

	layer := Layer{}
	sec := file.Section("")

	for key, dst := range map[string]*string{
		"tool":        &layer.Tool,
		"log":         &layer.Log,
		"src":         &layer.Src,
		"dst":         &layer.Dst,
		"cp_args":     &layer.CpArgs,
		"rsync_args":  &layer.RsyncArgs,
		"rclone_args": &layer.RcloneArgs,
	} {
		if sec.HasKey(key) {
			*dst = sec.Key(key).String()
		}
	}

	for key, dst := range map[string]*string{
		"dry_run": &layer.DryRun,
		"no_sudo": &layer.NoSudo,
	} {
		if sec.HasKey(key) {
			v, err := sec.Key(key).Bool()
			if err != nil {
				return Layer{}, errors.NewFriendlyError(parseErrTemplate, path, err)
			}
			*dst = FormatBool(v)
		}
	}

	if sec.HasKey("skip") {
		layer.Skip = sec.Key("skip").Strings(",")
	}

	return layer, nil
}

// Write serializes layer to path. The file can hold paths private to the
// operator, so it is written 0600.
func Write(path string, layer Layer) error {
	file := ini.Empty()
	sec := file.Section("")

	for key, val := range map[string]string{
		"tool":        layer.Tool,
		"log":         layer.Log,
		"src":         layer.Src,
		"dst":         layer.Dst,
		"dry_run":     layer.DryRun,
		"no_sudo":     layer.NoSudo,
		"cp_args":     layer.CpArgs,
		"rsync_args":  layer.RsyncArgs,
		"rclone_args": layer.RcloneArgs,
	} {
		if val != "" {
			sec.Key(key).SetValue(val)
		}
	}
	if len(layer.Skip) > 0 {
		sec.Key("skip").SetValue(strings.Join(layer.Skip, ","))
	}

	var buf bytes.Buffer
	if _, err := file.WriteTo(&buf); err != nil {
		return errors.WithContext(err, "serialize config")
	}

	if err := afero.WriteFile(fs, path, buf.Bytes(), 0600); err != nil {
		return errors.WithContext(err, "write config")
	}
	return nil
}

// Resolve overlays the command line layer on the file layer on the built-in
// defaults, and returns the result in its parsed form.
func Resolve(cli Layer) (Effective, error) {
	path, err := Path()
	if err != nil {
		return Effective{}, errors.WithContext(err, "expand config path")
	}

	fileLayer, err := Load(path)
	if err != nil {
		return Effective{}, err
	}

	merged := Layer{}
	for _, layer := range []Layer{cli, fileLayer, defaults()} {
		if err := mergo.Merge(&merged, layer); err != nil {
			return Effective{}, errors.WithContext(err, "merge config")
		}
	}
	merged.Skip = skipUnion(cli, fileLayer)

	return merged.effective()
}

func defaults() Layer {
	return Layer{Tool: "rsync", Log: "~/.resync.log"}
}

// skipUnion deduplicates and sorts the skip lists from every source, so later
// phases behave the same no matter where an entry came from.
func skipUnion(layers ...Layer) []string {
	seen := map[string]bool{}
	var union []string
	for _, layer := range layers {
		for _, entry := range layer.Skip {
			if entry != "" && !seen[entry] {
				seen[entry] = true
				union = append(union, entry)
			}
		}
	}
	sort.Strings(union)
	return union
}

func (l Layer) effective() (Effective, error) {
	dryRun, err := parseBool("dry_run", l.DryRun)
	if err != nil {
		return Effective{}, err
	}
	noSudo, err := parseBool("no_sudo", l.NoSudo)
	if err != nil {
		return Effective{}, err
	}

	// "none" turns run logging off. An empty string can't, because empty
	// means "unset" to the layer merge.
	logPath := ""
	if l.Log != "none" {
		logPath, err = homedirExpand(l.Log)
		if err != nil {
			return Effective{}, errors.WithContext(err, "expand log path")
		}
	}

	extras := map[string]string{}
	for tool, args := range map[string]string{
		"cp":     l.CpArgs,
		"rsync":  l.RsyncArgs,
		"rclone": l.RcloneArgs,
	} {
		if args != "" {
			extras[tool] = args
		}
	}

	return Effective{
		Tool:      l.Tool,
		LogPath:   logPath,
		Src:       l.Src,
		Dst:       l.Dst,
		DryRun:    dryRun,
		NoSudo:    noSudo,
		Skip:      l.Skip,
		ExtraArgs: extras,
	}, nil
}

func parseBool(key, val string) (bool, error) {
	if val == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(val)
	if err != nil {
		return false, errors.NewFriendlyError(
			"Invalid value %q for %q: expected true or false.", val, key)
	}
	return v, nil
}
