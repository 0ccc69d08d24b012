// Package config implements the `config` command, which sets up the resync
// config file interactively and answers queries about its contents.
package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sidkik/resync-v1/cmd/util"
	"github.com/sidkik/resync-v1/pkg/backend"
	"github.com/sidkik/resync-v1/pkg/config"
	"github.com/sidkik/resync-v1/pkg/errors"
	"github.com/sidkik/resync-v1/pkg/tools"
)

// Mocked for unit testing.
var (
	stdout              io.Writer = os.Stdout
	stdin               io.Reader = os.Stdin
	guessDefaults                 = guessDefaultsImpl
	loadConfig                    = config.Load
	writeConfig                   = config.Write
	configPath                    = config.Path
	toolPath                      = tools.Has
	getWorkingDirectory           = os.Getwd
)

// New creates a new `config` command.
func New() *cobra.Command {
	var cliOpts config.Layer
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Set up the resync configuration",
		Run: func(_ *cobra.Command, _ []string) {
			if err := SetupConfig(cliOpts); err != nil {
				err = errors.NewFriendlyError("Failed to set up the configuration:\n%s", err)
				util.HandleFatalError(err)
			}
		},
	}
	cmd.Flags().StringVar(&cliOpts.Tool, "tool", "",
		"Set the transfer tool in the config. "+
			"Optional: If not set, `resync config` will interactively prompt.")
	cmd.Flags().StringVar(&cliOpts.Src, "src", "",
		"Set the source directory in the config. "+
			"Optional: If not set, `resync config` will interactively prompt.")
	cmd.Flags().StringVar(&cliOpts.Dst, "dst", "",
		"Set the destination directory in the config. "+
			"Optional: If not set, `resync config` will interactively prompt.")

	// Setup the commands for querying the contents of the config file.
	type getterSpec struct {
		use, short string
		fn         func(config.Layer) string
	}

	getters := []getterSpec{
		{
			use:   "get-tool",
			short: "Get the currently configured transfer tool",
			fn:    func(cfg config.Layer) string { return cfg.Tool },
		},
		{
			use:   "get-src",
			short: "Get the currently configured source directory",
			fn:    func(cfg config.Layer) string { return cfg.Src },
		},
		{
			use:   "get-dst",
			short: "Get the currently configured destination directory",
			fn:    func(cfg config.Layer) string { return cfg.Dst },
		},
	}
	for _, getter := range getters {
		getter := getter
		cmd.AddCommand(&cobra.Command{
			Use:   getter.use,
			Short: getter.short,
			Run: func(_ *cobra.Command, _ []string) {
				cfg, err := loadCurrentConfig()
				if err != nil {
					err = errors.WithContext(err, "read config")
					util.HandleFatalError(err)
				}

				fmt.Fprintln(stdout, getter.fn(cfg))
			},
		})
	}

	return cmd
}

// SetupConfig fills in the config file, prompting for whatever cliOpts leaves
// unset, and reports where it was written.
func SetupConfig(cliOpts config.Layer) error {
	cfg, err := generateConfig(cliOpts)
	if err != nil {
		return errors.WithContext(err, "generate config")
	}

	path, err := configPath()
	if err != nil {
		return errors.WithContext(err, "get config path")
	}

	if err := writeConfig(path, cfg); err != nil {
		return errors.WithContext(err, "write config")
	}

	fmt.Fprintf(stdout, "Wrote config to %s\n", path)
	return nil
}

func toolValidationFn(tool string) (string, bool) {
	if _, err := backend.ForTool(tool); err != nil {
		return errors.GetPrintableMessage(err), false
	}
	return "", true
}

type prompt struct {
	helpString, prompt, defaultAnswer, currAnswer string
	field                                         *string
	validationFn                                  func(string) (string, bool)
}

// generateConfig interacts with the user to decide what the desired
// configuration is. It makes best guesses at reasonable defaults, and lets
// the user explicitly override them. Keys the prompts don't cover, like the
// skip list, are carried over from the current file untouched.
func generateConfig(cliOpts config.Layer) (config.Layer, error) {
	defaults := guessDefaults()
	currConfig, err := loadCurrentConfig()
	if err != nil {
		currConfig = config.Layer{}
		log.WithError(err).Debug("Failed to read current config")
	}

	cfg := currConfig
	if cliOpts.Tool != "" {
		cfg.Tool = cliOpts.Tool
	}
	if cliOpts.Src != "" {
		cfg.Src = cliOpts.Src
	}
	if cliOpts.Dst != "" {
		cfg.Dst = cliOpts.Dst
	}

	var prompts []prompt
	if cliOpts.Tool == "" {
		prompts = append(prompts, prompt{
			helpString: "Enter the transfer tool to drive.\n" +
				"rsync and rclone only rewrite files that changed; cp rewrites everything.\n" +
				"It defaults to the first installed tool.",
			prompt:        "Transfer tool",
			defaultAnswer: defaults.Tool,
			currAnswer:    currConfig.Tool,
			field:         &cfg.Tool,
			validationFn:  toolValidationFn,
		})
	}

	if cliOpts.Src == "" {
		prompts = append(prompts, prompt{
			helpString: "Enter the directory to sync from.\n" +
				"It defaults to the current directory.",
			prompt:        "Source directory",
			defaultAnswer: defaults.Src,
			currAnswer:    currConfig.Src,
			field:         &cfg.Src,
		})
	}

	if cliOpts.Dst == "" {
		prompts = append(prompts, prompt{
			helpString: "Enter the directory to sync into.\n" +
				"It will be created on the first sync if it doesn't exist yet.",
			prompt:        "Destination directory",
			defaultAnswer: defaults.Dst,
			currAnswer:    currConfig.Dst,
			field:         &cfg.Dst,
		})
	}

	for _, p := range prompts {
		var resp string
		for {
			resp, err = promptUser(p)
			if err != nil {
				return config.Layer{}, errors.WithContext(err, "read response")
			}

			if p.validationFn == nil {
				break
			}

			validationErr, ok := p.validationFn(resp)
			if ok {
				break
			}

			fmt.Fprintln(stdout, validationErr)
		}

		*p.field = resp
	}

	return cfg, nil
}

func loadCurrentConfig() (config.Layer, error) {
	path, err := configPath()
	if err != nil {
		return config.Layer{}, errors.WithContext(err, "get config path")
	}
	return loadConfig(path)
}

// guessDefaultsImpl tries to guess reasonable defaults for the prompted
// config fields. There is no guessing a destination: only the operator knows
// where the copy should live.
func guessDefaultsImpl() (cfg config.Layer) {
	if tool, err := guessTool(); err == nil {
		cfg.Tool = tool
	} else {
		log.WithError(err).Info("Failed to guess tool")
	}

	if src, err := getWorkingDirectory(); err == nil {
		cfg.Src = src
	} else {
		log.WithError(err).Info("Failed to guess source")
	}

	return cfg
}

// guessTool picks the first installed transfer tool, preferring the ones
// that only rewrite changed files.
func guessTool() (string, error) {
	for _, tool := range []string{"rsync", "rclone", "cp"} {
		if _, ok := toolPath(tool); ok {
			return tool, nil
		}
	}
	return "", errors.New("no transfer tool is installed")
}

func promptUser(p prompt) (string, error) {
	// A blank line at the end separates consecutive fields.
	defer fmt.Fprintln(stdout)

	type option struct{ value, label string }
	var options []option
	if p.defaultAnswer != "" {
		options = append(options, option{p.defaultAnswer, p.defaultAnswer + " (recommended)"})
	}
	if p.currAnswer != "" && p.currAnswer != p.defaultAnswer {
		options = append(options, option{p.currAnswer, p.currAnswer + " (current)"})
	}

	fmt.Fprintln(stdout, p.helpString+"\n"+p.prompt+":")

	reader := bufio.NewReader(stdin)
	if len(options) > 0 {
		fmt.Fprintln(stdout)
		for i, opt := range options {
			fmt.Fprintf(stdout, "\t%d. %s\n", i+1, opt.label)
		}
		fmt.Fprintf(stdout, "\t%d. (Enter manually)\n", len(options)+1)
		fmt.Fprintln(stdout)

		for {
			fmt.Fprintf(stdout, "Please choose one [1-%d]: ", len(options)+1)
			resp, err := reader.ReadString('\n')
			if err != nil {
				return "", err
			}

			// An empty response picks the first option.
			resp = strings.TrimSpace(resp)
			if resp == "" {
				return options[0].value, nil
			}

			choice, err := strconv.Atoi(resp)
			if err != nil || choice < 1 || choice > len(options)+1 {
				continue
			}
			if choice <= len(options) {
				return options[choice-1].value, nil
			}

			// The last option falls through to manual entry.
			break
		}
	}

	fmt.Fprint(stdout, "Please enter manually: ")
	resp, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp), nil
}
