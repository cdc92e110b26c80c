// Package config loads, validates and edits borgctl configuration files
package config

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/russellromney/borgctl/internal/command"
	"github.com/russellromney/borgctl/internal/resolver"
)

// Config is a validated configuration file
type Config struct {
	Repository    string            `yaml:"repository"`
	SSHKey        string            `yaml:"ssh_key"`
	Prefix        string            `yaml:"prefix"`
	Passphrase    string            `yaml:"passphrase"`
	MountPoint    string            `yaml:"mount_point"`
	BackupDirs    []string          `yaml:"borg_create_backup_dirs"`
	Excludes      []string          `yaml:"borg_create_excludes"`
	Envs          map[string]string `yaml:"envs"`
	BorgBinary    string            `yaml:"borg_binary"`
	CronCommands  []string          `yaml:"cron_commands"`
	StateCommands []string          `yaml:"state_commands"`

	// File is the absolute path the configuration was loaded from
	File string `yaml:"-"`
	// Arguments holds the default arguments per command name
	Arguments map[string][]string `yaml:"-"`
}

type kind int

const (
	kindString kind = iota
	kindOptionalString
	kindList
	kindMap
	kindCommands
)

type field struct {
	key  string
	kind kind
}

// fields are checked in this order, the first problem is reported
var fields = []field{
	{"repository", kindString},
	{"ssh_key", kindOptionalString},
	{"prefix", kindString},
	{"passphrase", kindOptionalString},
	{"mount_point", kindOptionalString},
	{"borg_create_backup_dirs", kindList},
	{"borg_create_excludes", kindList},
	{"borg_create_arguments", kindList},
	{"borg_prune_arguments", kindList},
	{"borg_init_arguments", kindList},
	{"envs", kindMap},
	{"borg_binary", kindString},
	{"cron_commands", kindCommands},
	{"state_commands", kindCommands},
}

// Load reads, validates and normalizes the configuration file at path
func Load(path string) (*Config, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	data, err := os.ReadFile(abs)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config file %s does not exist, create one with --generate-default-config", abs)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(abs, data)
}

// Parse validates data as the content of the configuration file file
func Parse(file string, data []byte) (*Config, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ParseError{File: file, Err: err}
	}

	root := &yaml.Node{Kind: yaml.MappingNode}
	if len(doc.Content) > 0 {
		root = doc.Content[0]
	}
	if root.Kind != yaml.MappingNode {
		return nil, &ParseError{File: file, Err: errors.New("top level is not a mapping")}
	}

	values := mappingValues(root)
	for _, f := range fields {
		if _, ok := values[f.key]; !ok {
			return nil, &ValidationError{File: file, Field: f.key, Reason: "is missing"}
		}
	}
	for _, f := range fields {
		if reason := check(values[f.key], f.kind); reason != "" {
			return nil, &ValidationError{File: file, Field: f.key, Reason: reason}
		}
	}

	cfg := &Config{File: file, Arguments: make(map[string][]string)}
	for _, name := range command.Names() {
		c, _ := command.Lookup(name)
		node, ok := values[c.ArgumentsKey()]
		if !ok || isNull(node) {
			continue
		}
		if reason := check(node, kindList); reason != "" {
			return nil, &ValidationError{File: file, Field: c.ArgumentsKey(), Reason: reason}
		}
		var args []string
		if err := node.Decode(&args); err != nil {
			return nil, &ValidationError{File: file, Field: c.ArgumentsKey(), Reason: err.Error()}
		}
		cfg.Arguments[name] = args
	}

	if err := root.Decode(cfg); err != nil {
		return nil, &ParseError{File: file, Err: err}
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalize() error {
	if !c.IsRemote() {
		repo, err := filepath.Abs(ExpandHome(c.Repository))
		if err != nil {
			return &ValidationError{File: c.File, Field: "repository", Reason: err.Error()}
		}
		c.Repository = repo
	}
	if c.SSHKey != "" {
		c.SSHKey = ExpandHome(c.SSHKey)
	}
	if c.MountPoint != "" {
		c.MountPoint = ExpandHome(c.MountPoint)
	}

	if _, ok := c.Envs["BORG_RSH"]; ok && c.SSHKey != "" {
		return &ValidationError{File: c.File, Field: "envs", Reason: "sets BORG_RSH while ssh_key is set, use only one of them"}
	}
	envs, err := resolver.Resolve(c.Envs, os.LookupEnv)
	if err != nil {
		return &ValidationError{File: c.File, Field: "envs", Reason: err.Error()}
	}
	c.Envs = envs

	binary, err := findBinary(c.BorgBinary)
	if err != nil {
		return &ValidationError{File: c.File, Field: "borg_binary", Reason: err.Error()}
	}
	c.BorgBinary = binary
	return nil
}

func findBinary(name string) (string, error) {
	if !strings.Contains(name, "/") {
		path, err := exec.LookPath(name)
		if err != nil {
			return "", fmt.Errorf("%s was not found in PATH", name)
		}
		return path, nil
	}
	path := ExpandHome(name)
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("%s does not exist", path)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", path)
	}
	return path, nil
}

// Name is the file name of the configuration without its extension
func (c *Config) Name() string {
	base := filepath.Base(c.File)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// IsRemote reports whether the repository is reached over ssh
func (c *Config) IsRemote() bool {
	return strings.Contains(c.Repository, ":")
}

// DefaultArguments returns the configured default arguments of a command
func (c *Config) DefaultArguments(name string) []string {
	return c.Arguments[name]
}

// Records reports whether successful runs of a command are written to a state file
func (c *Config) Records(name string) bool {
	for _, n := range c.StateCommands {
		if n == name {
			return true
		}
	}
	return false
}

func mappingValues(node *yaml.Node) map[string]*yaml.Node {
	values := make(map[string]*yaml.Node, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		values[node.Content[i].Value] = node.Content[i+1]
	}
	return values
}

func isNull(node *yaml.Node) bool {
	return node.Kind == yaml.ScalarNode && node.Tag == "!!null"
}

func isString(node *yaml.Node) bool {
	return node.Kind == yaml.ScalarNode && !isNull(node)
}

// check returns why node does not have the wanted kind, or ""
func check(node *yaml.Node, k kind) string {
	switch k {
	case kindString:
		if !isString(node) {
			return "must be a string"
		}
		if strings.TrimSpace(node.Value) == "" {
			return "must not be empty"
		}
	case kindOptionalString:
		if !isString(node) && !isNull(node) {
			return "must be a string"
		}
	case kindList, kindCommands:
		if isNull(node) {
			return ""
		}
		if node.Kind != yaml.SequenceNode {
			return "must be a list"
		}
		for i, item := range node.Content {
			if !isString(item) {
				return fmt.Sprintf("item %d must be a string", i+1)
			}
			if k == kindCommands && !command.Valid(item.Value) {
				return fmt.Sprintf("contains unsupported command %q", item.Value)
			}
		}
	case kindMap:
		if isNull(node) {
			return ""
		}
		if node.Kind != yaml.MappingNode {
			return "must be a mapping"
		}
		for i := 0; i+1 < len(node.Content); i += 2 {
			if !isString(node.Content[i+1]) {
				return fmt.Sprintf("value of %s must be a string", node.Content[i].Value)
			}
		}
	}
	return ""
}
