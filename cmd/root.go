package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/russellromney/borgctl/internal/config"
	"github.com/russellromney/borgctl/internal/logging"
)

// Version is set at build time with -ldflags "-X github.com/russellromney/borgctl/cmd.Version=..."
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "borgctl [flags] <command> [borg arguments...]",
	Short: "A wrapper around borgbackup driven by YAML config files",
	Long: `borgctl runs borg commands with the repository, passphrase and default
arguments taken from a config file.

The config directory is /etc/borgctl for root, $XDG_CONFIG_HOME/borgctl or
~/.config/borgctl for everybody else. Logs and state files go to
/var/log/borgctl, $XDG_STATE_HOME/borgctl or ~/.local/state/borgctl.

Everything after the command is passed to borg unchanged.

Examples:
  borgctl --generate-default-config
  borgctl init
  borgctl create --dry-run --list
  borgctl -c home.yml -c nas.yml list
  borgctl --cron
  borgctl export-tar help`,
	Version:       Version,
	Args:          cobra.ArbitraryArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runRoot,
}

var (
	generateDefaultConfig  bool
	generateSSHKey         bool
	generateAuthorizedKeys bool
	generatePassphrase     bool
	listPattern            string
	configFiles            []string
	cronMode               bool
	historyLimit           int
	noProgress             bool
	verbose                bool
)

// pathsFunc is replaced in tests
var pathsFunc = config.DefaultPaths

// worst is the highest borg exit code seen so far, reported even after a crash
var worst int

func init() {
	flags := rootCmd.Flags()
	flags.SetInterspersed(false)
	flags.BoolVarP(&generateDefaultConfig, "generate-default-config", "d", false, "Write the default config to default.yml, or print it if the file exists")
	flags.BoolVarP(&generateSSHKey, "generate-ssh-key", "s", false, "Create an ed25519 key ~/.ssh/borg_<config> and set ssh_key in the config")
	flags.BoolVarP(&generateAuthorizedKeys, "generate-authorized-keys", "a", false, "Print the authorized_keys lines for the remote repository")
	flags.BoolVarP(&generatePassphrase, "generate-passphrase", "p", false, "Print a new random passphrase")
	flags.StringVarP(&listPattern, "list", "l", "", "List config files, optionally only those containing a pattern")
	flags.Lookup("list").NoOptDefVal = config.DefaultListPattern
	flags.StringArrayVarP(&configFiles, "config", "c", nil, "Config file to use, repeatable (default default.yml)")
	flags.BoolVar(&cronMode, "cron", false, "Run the cron_commands of each config file")
	flags.IntVar(&historyLimit, "history", 0, "Show the most recent borg runs")
	flags.Lookup("history").NoOptDefVal = "20"
	flags.BoolVar(&noProgress, "no-progress", false, "Never pass --progress to borg")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Log debug messages, including the executed command")

	rootCmd.SetVersionTemplate("Running borgctl {{.Version}}\n")
}

// exitCode carries the exit code of borg through cobra
type exitCode int

func (e exitCode) Error() string {
	return fmt.Sprintf("exit code %d", int(e))
}

// Execute runs the root command and returns the process exit code
func Execute() (code int) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(rootCmd.ErrOrStderr(), "borgctl crashed, please report this: %v\n%s", r, debug.Stack())
			code = max(1, worst)
		}
	}()

	worst = 0
	err := rootCmd.Execute()
	var ec exitCode
	if errors.As(err, &ec) {
		return int(ec)
	}
	if err != nil {
		fmt.Fprintln(rootCmd.ErrOrStderr(), "Error:", err)
		return 2
	}
	return 0
}

func runRoot(cmd *cobra.Command, args []string) error {
	paths, err := pathsFunc()
	if err != nil {
		return err
	}

	logFile := paths.AppLog()
	dirErr := paths.EnsureDirs()
	if dirErr != nil {
		logFile = ""
	}
	logger, closer := logging.Setup(cmd.ErrOrStderr(), logFile, verbose)
	defer closer.Close()
	if dirErr != nil {
		logger.Error(dirErr.Error())
		return exitCode(1)
	}

	if written, err := logging.WriteBorgConfig(paths.LoggingConf(), paths.BorgLog()); err != nil {
		logger.Warn("Could not write borg logging config", "error", err)
	} else if written {
		logger.Info("Created borg logging config", "path", paths.LoggingConf())
	}

	out := cmd.OutOrStdout()
	flags := cmd.Flags()
	switch {
	case flags.Changed("list"):
		pattern := listPattern
		// "--list nas" leaves the pattern as the first argument
		if pattern == config.DefaultListPattern && len(args) > 0 {
			pattern = args[0]
		}
		return fail(logger, listConfigs(out, paths, pattern))
	case generatePassphrase:
		return fail(logger, printPassphrase(out))
	case flags.Changed("history"):
		return fail(logger, printHistory(out, paths, historyLimit))
	case generateDefaultConfig:
		return fail(logger, writeDefaultConfig(out, paths, logger))
	}

	utility := generateSSHKey || generateAuthorizedKeys
	if !utility && !cronMode && len(args) == 0 {
		cmd.SetOut(cmd.ErrOrStderr())
		cmd.Usage()
		return exitCode(2)
	}

	files := configFiles
	if len(files) == 0 {
		files = []string{config.DefaultConfigName}
	}

	if utility {
		cfg, err := config.Load(paths.ConfigFile(files[0]))
		if err != nil {
			return fail(logger, err)
		}
		if generateSSHKey {
			return fail(logger, createSSHKey(cfg, logger))
		}
		return fail(logger, printAuthorizedKeys(out, cfg, logger))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runConfigs(ctx, cmd, paths, files, args, logger)
}

// fail logs err as a single line and turns it into exit code 1
func fail(logger *slog.Logger, err error) error {
	if err == nil {
		return nil
	}
	logger.Error(err.Error())
	return exitCode(1)
}

func exit(code int) error {
	if code == 0 {
		return nil
	}
	return exitCode(code)
}
