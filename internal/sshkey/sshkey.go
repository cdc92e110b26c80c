// Package sshkey creates the ssh key borg uses for remote repositories and
// renders the matching authorized_keys lines
package sshkey

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"
)

// ErrKeyExists is returned instead of overwriting a key
var ErrKeyExists = errors.New("ssh key already exists")

// DefaultPath is ~/.ssh/borg_<config name>
func DefaultPath(home, configName string) string {
	return filepath.Join(home, ".ssh", "borg_"+configName)
}

// Comment identifies the key as <user>_<key name>@<host>
func Comment(user, path, host string) string {
	return fmt.Sprintf("%s_%s@%s", user, filepath.Base(path), host)
}

// Generate writes a new ed25519 key pair to path and path.pub
func Generate(path, comment string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %s", ErrKeyExists, path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("failed to generate key: %w", err)
	}

	block, err := ssh.MarshalPrivateKey(priv, comment)
	if err != nil {
		return fmt.Errorf("failed to encode private key: %w", err)
	}
	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		return fmt.Errorf("failed to encode public key: %w", err)
	}
	line := strings.TrimSpace(string(ssh.MarshalAuthorizedKey(sshPub))) + " " + comment + "\n"

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := pem.Encode(f, block); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	if err := os.WriteFile(path+".pub", []byte(line), 0644); err != nil {
		return fmt.Errorf("failed to write %s.pub: %w", path, err)
	}
	return nil
}

// ReadPublicKey reads and validates the public key belonging to the private key at path
func ReadPublicKey(path string) (string, error) {
	data, err := os.ReadFile(path + ".pub")
	if err != nil {
		return "", fmt.Errorf("failed to read public key: %w", err)
	}
	if _, _, _, _, err := ssh.ParseAuthorizedKey(data); err != nil {
		return "", fmt.Errorf("invalid public key %s.pub: %w", path, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Remote is the ssh part of a repository location
type Remote struct {
	User string
	Host string
	Path string
}

// ParseRepository splits user@host:path and ssh://user@host:path locations.
// It reports false for local repositories. defaultUser is used when the
// location names no user
func ParseRepository(repository, defaultUser string) (Remote, bool) {
	repository = strings.TrimPrefix(strings.TrimSpace(repository), "ssh://")
	if strings.Count(repository, ":") != 1 {
		return Remote{}, false
	}

	host, path, _ := strings.Cut(repository, ":")
	remote := Remote{User: defaultUser, Host: host, Path: path}
	if user, h, ok := strings.Cut(host, "@"); ok {
		remote.User = user
		remote.Host = h
	}
	return remote, true
}

// Restricted limits pubKey to borg serve inside the repository path
func (r Remote) Restricted(pubKey string) string {
	return fmt.Sprintf(`command="borg serve --restrict-to-path %s",restrict %s`, r.Path, pubKey)
}

// InstallCommand appends the restricted line to authorized_keys on the remote host
func (r Remote) InstallCommand(pubKey string) string {
	return fmt.Sprintf(`echo '%s' | ssh %s@%s 'cat >> ~%s/.ssh/authorized_keys'`,
		r.Restricted(pubKey), r.User, r.Host, r.User)
}
