package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	// DirName is the directory name used below the XDG base directories
	DirName = "borgctl"
	// DefaultConfigName is used when no --config is given
	DefaultConfigName = "default.yml"
	// LoggingConfName is the borg logging configuration written for BORG_LOGGING_CONF
	LoggingConfName = "logging.conf"
	// BorgLogName is the log file borg itself writes to
	BorgLogName = "borg.log"
	// AppLogName is the log file borgctl writes to
	AppLogName = "borgctl.log"
	// HistoryDBName is the SQLite run history database
	HistoryDBName = "history.db"
	// DefaultListPattern matches every configuration file
	DefaultListPattern = "*.yml"
)

// Paths holds the directories borgctl works in
type Paths struct {
	// ConfDir holds configuration files and logging.conf
	ConfDir string
	// LogDir holds log files, state files and the run history
	LogDir string
}

// DefaultPaths returns /etc/borgctl and /var/log/borgctl for root and the
// XDG directories for everybody else
func DefaultPaths() (*Paths, error) {
	if os.Getuid() == 0 {
		return NewPaths("/etc/borgctl", "/var/log/borgctl"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	confDir := filepath.Join(home, ".config", DirName)
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		confDir = filepath.Join(ExpandHome(xdg), DirName)
	}
	logDir := filepath.Join(home, ".local", "state", DirName)
	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		logDir = filepath.Join(ExpandHome(xdg), DirName)
	}
	return NewPaths(confDir, logDir), nil
}

// NewPaths creates Paths with custom directories
func NewPaths(confDir, logDir string) *Paths {
	return &Paths{ConfDir: confDir, LogDir: logDir}
}

// EnsureDirs creates both directories if they don't exist
// Sets permissions to 0700 (owner read/write/execute only)
func (p *Paths) EnsureDirs() error {
	for _, dir := range []string{p.ConfDir, p.LogDir} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// ConfigFile resolves a --config value. Names containing a slash are paths,
// bare names live in the configuration directory
func (p *Paths) ConfigFile(name string) string {
	if strings.Contains(name, "/") {
		return ExpandHome(name)
	}
	return filepath.Join(p.ConfDir, name)
}

// LoggingConf is the path exported as BORG_LOGGING_CONF
func (p *Paths) LoggingConf() string {
	return filepath.Join(p.ConfDir, LoggingConfName)
}

// BorgLog is the log file referenced from logging.conf
func (p *Paths) BorgLog() string {
	return filepath.Join(p.LogDir, BorgLogName)
}

// AppLog is the log file of borgctl itself
func (p *Paths) AppLog() string {
	return filepath.Join(p.LogDir, AppLogName)
}

// HistoryDB is the path of the run history database
func (p *Paths) HistoryDB() string {
	return filepath.Join(p.LogDir, HistoryDBName)
}

// ListConfigs returns the sorted names of configuration files matching
// pattern. Anything other than the default pattern is matched as a substring
func (p *Paths) ListConfigs(pattern string) ([]string, error) {
	if pattern == "" {
		pattern = DefaultListPattern
	}
	if pattern != DefaultListPattern {
		pattern = "*" + pattern + "*"
	}

	matches, err := filepath.Glob(filepath.Join(p.ConfDir, pattern))
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}

	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, filepath.Base(m))
	}
	sort.Strings(names)
	return names, nil
}

// ExpandHome replaces a leading ~ with the home directory of the current user
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
