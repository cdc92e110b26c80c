// Package command holds the table of borg commands borgctl knows how to run.
//
// The composer and the passphrase broker both consult this table instead of
// switching on command names
package command

import (
	"sort"
	"strings"
)

// Target describes which positional arguments borgctl adds on its own
type Target int

const (
	// TargetNone adds no positional arguments
	TargetNone Target = iota
	// TargetBackup adds excludes, a new archive name and the backup directories
	TargetBackup
	// TargetNewArchive adds a freshly named archive
	TargetNewArchive
	// TargetRepository adds the configured repository
	TargetRepository
	// TargetMount adds the latest marker and the mount point
	TargetMount
	// TargetMountPoint adds the mount point
	TargetMountPoint
)

// Flow is the new-passphrase flow a command triggers
type Flow int

const (
	// FlowNone never asks for a new passphrase
	FlowNone Flow = iota
	// FlowInit asks for the passphrase of a repository being created
	FlowInit
	// FlowRotate asks for the replacement of the current passphrase
	FlowRotate
)

// LatestMarker is the archive specifier borg resolves against the repository
// without naming an archive
const LatestMarker = "::"

// TimestampFormat is used for archive names and state files
const TimestampFormat = "2006-01-02_15:04:05"

// Command describes one supported borg command
type Command struct {
	Name string
	// Flags are injected right after the command name
	Flags []string
	// Progress reports whether --progress is added for interactive runs
	Progress bool
	Target   Target
	// Arity is the number of positional arguments the command needs
	Arity int
	// Usage is shown when required arguments are missing
	Usage string
	Flow  Flow

	unlock       bool
	unlockUnless []string
}

var commands = map[string]Command{
	"list": {Name: "list", unlock: true},
	"create": {
		Name:     "create",
		Flags:    []string{"--stats"},
		Progress: true,
		Target:   TargetBackup,
		unlock:   true,
	},
	"check": {
		Name:         "check",
		Progress:     true,
		unlock:       true,
		unlockUnless: []string{"--repository-only"},
	},
	"compact": {Name: "compact", Progress: true},
	"prune": {
		Name:     "prune",
		Flags:    []string{"--list", "--stats"},
		Progress: true,
		unlock:   true,
	},
	"mount": {
		Name:   "mount",
		Target: TargetMount,
		Usage:  "mount [::archive] <mountpoint>",
		unlock: true,
	},
	"umount":     {Name: "umount", Target: TargetMountPoint, Usage: "umount <mountpoint>"},
	"init":       {Name: "init", Target: TargetRepository, Flow: FlowInit, unlock: true},
	"break-lock": {Name: "break-lock"},
	"info":       {Name: "info", unlock: true},
	"import-tar": {Name: "import-tar", Target: TargetNewArchive, unlock: true},
	"export-tar": {
		Name:   "export-tar",
		Arity:  2,
		Usage:  "export-tar [--tar-filter=...] ::archive <outputfile>",
		unlock: true,
	},
	"config":            {Name: "config", Target: TargetRepository},
	"change-passphrase": {Name: "change-passphrase", Flow: FlowRotate, unlock: true},
}

// Lookup returns the command with the given name
func Lookup(name string) (Command, bool) {
	c, ok := commands[name]
	return c, ok
}

// Valid reports whether name is a supported command
func Valid(name string) bool {
	_, ok := commands[name]
	return ok
}

// Names returns all supported command names in sorted order
func Names() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NeedsUnlock reports whether running the command with args needs the
// repository passphrase
func (c Command) NeedsUnlock(args []string) bool {
	if !c.unlock {
		return false
	}
	for _, arg := range args {
		for _, flag := range c.unlockUnless {
			if arg == flag {
				return false
			}
		}
	}
	return true
}

// ArgumentsKey is the configuration key holding the default arguments of c
func (c Command) ArgumentsKey() string {
	return "borg_" + c.Name + "_arguments"
}

// DocsURL points at the upstream documentation of the command
func (c Command) DocsURL() string {
	return "https://borgbackup.readthedocs.io/en/stable/usage/" + c.Name + ".html"
}

// valueOptions are borg options taking a separate value, as in "--tar-filter gzip"
var valueOptions = map[string]bool{
	"-e":                 true,
	"--exclude":          true,
	"--exclude-from":     true,
	"--pattern":          true,
	"--patterns-from":    true,
	"--strip-components": true,
	"--tar-filter":       true,
	"--tar-format":       true,
	"--comment":          true,
	"--timestamp":        true,
	"-o":                 true,
	"--umask":            true,
	"--remote-path":      true,
}

// Positionals returns the arguments that are neither options nor option values
func Positionals(args []string) []string {
	var out []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "-") {
			out = append(out, arg)
			continue
		}
		if valueOptions[arg] {
			i++
		}
	}
	return out
}

// WantsHelp reports whether the user asked for the help of a command by
// passing the bare word "help"
func WantsHelp(args []string) bool {
	for _, arg := range args {
		if arg == "help" {
			return true
		}
	}
	return false
}

// ModifiesNothing reports whether args make borg skip all modifications,
// either through a dry run or by only printing help
func ModifiesNothing(args []string) bool {
	for _, arg := range args {
		switch arg {
		case "--dry-run", "-n", "--help", "-h":
			return true
		}
	}
	return false
}
