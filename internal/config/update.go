package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

//go:embed default.yml.tmpl
var defaultTemplate []byte

// UpdateField sets a top-level string field of the configuration file at path.
// Comments and the order of the other fields are kept
func UpdateField(path, key, value string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat config file: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	out, err := setField(path, data, key, value)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".borgctl-*.yml")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(out); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := tmp.Chmod(info.Mode().Perm()); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace config file: %w", err)
	}
	return nil
}

func setField(file string, data []byte, key, value string) ([]byte, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ParseError{File: file, Err: err}
	}
	if len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, &ParseError{File: file, Err: errors.New("top level is not a mapping")}
	}
	root := doc.Content[0]

	var target *yaml.Node
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value == key {
			target = root.Content[i+1]
		}
	}
	if target == nil {
		target = &yaml.Node{}
		root.Content = append(root.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
			target,
		)
	}

	target.Kind = yaml.ScalarNode
	target.Tag = "!!str"
	target.Value = value
	target.Style = 0
	target.Content = nil

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return nil, fmt.Errorf("failed to encode config file: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode config file: %w", err)
	}
	return buf.Bytes(), nil
}

// DefaultDocument renders the default configuration with prefix and passphrase filled in
func DefaultDocument(prefix, passphrase string) ([]byte, error) {
	out, err := setField(DefaultConfigName, defaultTemplate, "prefix", prefix)
	if err != nil {
		return nil, err
	}
	return setField(DefaultConfigName, out, "passphrase", passphrase)
}

// WriteDefault writes the default configuration into the configuration
// directory. If default.yml already exists the document goes to w instead and
// the returned path is empty
func (p *Paths) WriteDefault(prefix, passphrase string, w io.Writer) (string, error) {
	doc, err := DefaultDocument(prefix, passphrase)
	if err != nil {
		return "", err
	}

	path := filepath.Join(p.ConfDir, DefaultConfigName)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if errors.Is(err, os.ErrExist) {
		_, err = w.Write(doc)
		return "", err
	}
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}
	if _, err := f.Write(doc); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, f.Close()
}
