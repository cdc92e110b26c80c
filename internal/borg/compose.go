// Package borg builds borg command lines and runs them
package borg

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/russellromney/borgctl/internal/command"
	"github.com/russellromney/borgctl/internal/config"
)

// Invocation is a fully composed borg command line
type Invocation struct {
	Command command.Command
	// Args starts with the borg binary
	Args []string
	// Env is added on top of the environment of borgctl
	Env map[string]string
	// UserArgs are the arguments given on the command line
	UserArgs []string
}

// Options change how a command line is composed
type Options struct {
	// Progress adds --progress to commands that support it
	Progress bool
}

// Composer turns a command and a config into an Invocation
type Composer struct {
	// LoggingConf is exported as BORG_LOGGING_CONF
	LoggingConf string
	Now         func() time.Time
	Logger      *slog.Logger
}

// NewComposer creates a composer using the wall clock
func NewComposer(loggingConf string, logger *slog.Logger) *Composer {
	return &Composer{LoggingConf: loggingConf, Now: time.Now, Logger: logger}
}

// Build composes the borg command line for running c with userArgs against cfg
func (b *Composer) Build(c command.Command, cfg *config.Config, userArgs []string, opts Options) (*Invocation, error) {
	inv := &Invocation{
		Command:  c,
		Env:      b.environment(cfg),
		UserArgs: userArgs,
	}

	if WantsHelp(userArgs) {
		inv.Args = []string{cfg.BorgBinary, c.Name, "--help"}
		return inv, nil
	}

	positionals := command.Positionals(userArgs)
	if len(positionals) < c.Arity {
		return nil, &UsageError{Command: c.Name, Usage: c.Usage}
	}
	if needsMountPoint(c, positionals) && cfg.MountPoint == "" {
		return nil, &UsageError{Command: c.Name, Usage: c.Usage}
	}

	args := []string{cfg.BorgBinary, "--verbose", c.Name}
	args = append(args, c.Flags...)
	if opts.Progress && c.Progress {
		args = append(args, "--progress")
	}

	if c.Target == command.TargetBackup {
		for _, exclude := range cfg.Excludes {
			args = append(args, "--exclude="+absPath(exclude))
		}
	}

	for _, arg := range cfg.DefaultArguments(c.Name) {
		// "--keep-last 10" in the config is two arguments
		args = append(args, strings.Fields(arg)...)
	}

	switch c.Target {
	case command.TargetBackup:
		args = append(args, command.LatestMarker+b.archiveName(cfg))
		for _, dir := range cfg.BackupDirs {
			path := absPath(dir)
			if _, err := os.Stat(path); err != nil {
				b.Logger.Warn("Backup directory does not exist", "path", path)
			}
			args = append(args, path)
		}
	case command.TargetNewArchive:
		args = append(args, command.LatestMarker+b.archiveName(cfg))
	case command.TargetRepository:
		args = append(args, cfg.Repository)
	case command.TargetMount:
		if len(positionals) == 0 {
			args = append(args, command.LatestMarker, cfg.MountPoint)
		}
	case command.TargetMountPoint:
		if len(positionals) == 0 {
			args = append(args, cfg.MountPoint)
		}
	}

	args = append(args, userArgs...)

	// with an archive given the mount point has to come last
	if c.Target == command.TargetMount && len(positionals) == 1 {
		args = append(args, cfg.MountPoint)
	}

	inv.Args = args
	return inv, nil
}

// archiveName is <prefix>_<timestamp>
func (b *Composer) archiveName(cfg *config.Config) string {
	return cfg.Prefix + "_" + b.Now().Format(command.TimestampFormat)
}

func (b *Composer) environment(cfg *config.Config) map[string]string {
	env := map[string]string{
		"BORG_REPO":         cfg.Repository,
		"BORG_LOGGING_CONF": b.LoggingConf,
	}
	for k, v := range cfg.Envs {
		env[k] = v
	}
	if cfg.SSHKey != "" {
		env["BORG_RSH"] = "ssh -i " + cfg.SSHKey
	}
	return env
}

// Redacted returns the environment of inv for logging, without passphrases
func (inv *Invocation) Redacted() []string {
	out := make([]string, 0, len(inv.Env))
	for k, v := range inv.Env {
		if k == "BORG_PASSPHRASE" || k == "BORG_NEW_PASSPHRASE" {
			continue
		}
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// IsHelp reports whether inv only prints the help of a borg command
func (inv *Invocation) IsHelp() bool {
	return WantsHelp(inv.UserArgs)
}

// WantsHelp reports whether args only ask for the help of a borg command
func WantsHelp(args []string) bool {
	if command.WantsHelp(args) {
		return true
	}
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

// needsMountPoint reports whether the configured mount point fills a missing argument
func needsMountPoint(c command.Command, positionals []string) bool {
	switch c.Target {
	case command.TargetMount:
		return len(positionals) < 2
	case command.TargetMountPoint:
		return len(positionals) == 0
	}
	return false
}

func absPath(path string) string {
	abs, err := filepath.Abs(config.ExpandHome(path))
	if err != nil {
		return path
	}
	return abs
}
