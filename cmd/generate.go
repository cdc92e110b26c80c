package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/user"

	"github.com/russellromney/borgctl/internal/config"
	"github.com/russellromney/borgctl/internal/secret"
	"github.com/russellromney/borgctl/internal/sshkey"
)

func printPassphrase(out io.Writer) error {
	passphrase, err := secret.GeneratePassphrase()
	if err != nil {
		return err
	}
	fmt.Fprintln(out, passphrase)
	return nil
}

func writeDefaultConfig(out io.Writer, paths *config.Paths, logger *slog.Logger) error {
	host, err := os.Hostname()
	if err != nil {
		return fmt.Errorf("failed to get hostname: %w", err)
	}
	passphrase, err := secret.GeneratePassphrase()
	if err != nil {
		return err
	}

	path, err := paths.WriteDefault(host, passphrase, out)
	if err != nil {
		return err
	}
	if path == "" {
		logger.Warn("default.yml already exists, printed the default config instead", "dir", paths.ConfDir)
		return nil
	}

	logger.Info("Created default config", "path", path)
	logger.Warn("Please make a backup of the passphrase in the config file. No passphrase, no restore!")
	return nil
}

func createSSHKey(cfg *config.Config, logger *slog.Logger) error {
	u, err := user.Current()
	if err != nil {
		return fmt.Errorf("failed to get current user: %w", err)
	}
	host, err := os.Hostname()
	if err != nil {
		return fmt.Errorf("failed to get hostname: %w", err)
	}

	path := cfg.SSHKey
	if path == "" {
		path = sshkey.DefaultPath(u.HomeDir, cfg.Name())
	}

	err = sshkey.Generate(path, sshkey.Comment(u.Username, path, host))
	switch {
	case errors.Is(err, sshkey.ErrKeyExists):
		logger.Warn("ssh key already exists, not overwriting it", "path", path)
	case err != nil:
		return err
	default:
		logger.Info("Created ssh key", "path", path)
	}

	if cfg.SSHKey != path {
		if err := config.UpdateField(cfg.File, "ssh_key", path); err != nil {
			return err
		}
		logger.Info("Updated ssh_key in config file", "config", cfg.File)
	}
	return nil
}

func printAuthorizedKeys(out io.Writer, cfg *config.Config, logger *slog.Logger) error {
	if cfg.SSHKey == "" {
		return fmt.Errorf("no ssh_key is set in %s, use --generate-ssh-key to create one", cfg.File)
	}
	pubKey, err := sshkey.ReadPublicKey(cfg.SSHKey)
	if err != nil {
		return err
	}

	logger.Info("Using ssh key from config file", "path", cfg.SSHKey+".pub")
	fmt.Fprintf(out, "Add this line to authorized_keys:\n%s\n", pubKey)

	username := ""
	if u, err := user.Current(); err == nil {
		username = u.Username
	}
	remote, ok := sshkey.ParseRepository(cfg.Repository, username)
	if !ok {
		logger.Warn("The repository does not use ssh", "repository", cfg.Repository)
		return nil
	}

	fmt.Fprintf(out, "\nUse this line for restricted access:\n%s\n", remote.Restricted(pubKey))
	fmt.Fprintf(out, "\nOr this all-in-one command:\n%s\n", remote.InstallCommand(pubKey))
	return nil
}
