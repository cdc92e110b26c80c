// Package secret decides which passphrase borg gets and where it comes from
package secret

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/russellromney/borgctl/internal/command"
	"github.com/russellromney/borgctl/internal/config"
)

const (
	// PassphraseEnv is read by borg for the repository passphrase
	PassphraseEnv = "BORG_PASSPHRASE"
	// NewPassphraseEnv is read by borg init and change-passphrase
	NewPassphraseEnv = "BORG_NEW_PASSPHRASE"
)

// ErrPassphraseMismatch is returned when the two entries of a new passphrase differ
var ErrPassphraseMismatch = errors.New("passphrases do not match")

// Mode is how the passphrase field of a config file is interpreted
type Mode int

const (
	// ModeUnset leaves the passphrase to borg
	ModeUnset Mode = iota
	// ModeFixed uses the configured value
	ModeFixed
	// ModeAsk prompts once per process
	ModeAsk
	// ModeAskAlways prompts for every command
	ModeAskAlways
	// ModeKeyring reads the passphrase from the OS keyring
	ModeKeyring
)

// ParseMode interprets the passphrase field of a config file
func ParseMode(passphrase string) Mode {
	switch passphrase {
	case "":
		return ModeUnset
	case "ask":
		return ModeAsk
	case "ask-always":
		return ModeAskAlways
	case "keyring":
		return ModeKeyring
	default:
		return ModeFixed
	}
}

// Session caches passphrases entered during one process, keyed by config file
type Session struct {
	cache map[string]string
}

// NewSession creates an empty session
func NewSession() *Session {
	return &Session{cache: make(map[string]string)}
}

func (s *Session) get(file string) (string, bool) {
	p, ok := s.cache[file]
	return p, ok
}

func (s *Session) put(file, passphrase string) {
	s.cache[file] = passphrase
}

// Resolution is the environment a command gets plus the writes that must
// only happen once borg succeeded
type Resolution struct {
	Env     map[string]string
	pending []func() error
}

// Commit persists passphrases that were entered for a new repository or key.
// Call it only after borg exited 0
func (r *Resolution) Commit() error {
	var errs []error
	for _, persist := range r.pending {
		if err := persist(); err != nil {
			errs = append(errs, err)
		}
	}
	r.pending = nil
	return errors.Join(errs...)
}

// Broker resolves passphrases for one CLI invocation
type Broker struct {
	Prompter Prompter
	Session  *Session
	Keyring  Keyring
	// LookupEnv reads the parent environment
	LookupEnv func(string) (string, bool)
	Logger    *slog.Logger
}

// NewBroker creates a broker prompting on the terminal and using the OS keyring
func NewBroker(logger *slog.Logger) *Broker {
	return &Broker{
		Prompter:  NewTerminalPrompter(),
		Session:   NewSession(),
		Keyring:   SystemKeyring{},
		LookupEnv: os.LookupEnv,
		Logger:    logger,
	}
}

// Resolve returns the passphrase variables for running c with args against cfg
func (b *Broker) Resolve(ctx context.Context, cfg *config.Config, c command.Command, args []string) (*Resolution, error) {
	res := &Resolution{Env: make(map[string]string)}
	if command.WantsHelp(args) {
		return res, nil
	}

	mode := ParseMode(cfg.Passphrase)
	_, configured := cfg.Envs[PassphraseEnv]
	_, inherited := b.LookupEnv(PassphraseEnv)
	supplied := configured || inherited

	if c.Flow == command.FlowInit {
		if mode == ModeFixed {
			res.Env[PassphraseEnv] = cfg.Passphrase
			return res, nil
		}
		if supplied {
			return res, nil
		}
		passphrase, err := b.newPassphrase(ctx, cfg)
		if err != nil {
			return nil, err
		}
		res.Env[PassphraseEnv] = passphrase
		b.keep(res, cfg, mode, passphrase)
		return res, nil
	}

	if mode == ModeFixed {
		res.Env[PassphraseEnv] = cfg.Passphrase
	} else if c.NeedsUnlock(args) && !supplied {
		if err := b.current(ctx, res, cfg, mode); err != nil {
			return nil, err
		}
	}

	if c.Flow == command.FlowRotate {
		passphrase, err := b.newPassphrase(ctx, cfg)
		if err != nil {
			return nil, err
		}
		res.Env[NewPassphraseEnv] = passphrase
		b.keep(res, cfg, mode, passphrase)
	}
	return res, nil
}

// current fills in the passphrase of an existing repository
func (b *Broker) current(ctx context.Context, res *Resolution, cfg *config.Config, mode Mode) error {
	switch mode {
	case ModeUnset:
		return nil
	case ModeAsk:
		if p, ok := b.Session.get(cfg.File); ok {
			res.Env[PassphraseEnv] = p
			return nil
		}
	case ModeKeyring:
		p, err := b.Keyring.Get(cfg.File)
		if err == nil {
			res.Env[PassphraseEnv] = p
			return nil
		}
		if p, ok := b.Session.get(cfg.File); ok {
			res.Env[PassphraseEnv] = p
			return nil
		}
		if !errors.Is(err, ErrNotInKeyring) {
			b.Logger.Warn("Could not read keyring, asking for the passphrase", "error", err)
		}
	}

	p, err := b.prompt(ctx, cfg, fmt.Sprintf("Please enter the borg passphrase for %s: ", cfg.Repository))
	if err != nil {
		return err
	}
	res.Env[PassphraseEnv] = p

	switch mode {
	case ModeAsk:
		b.Session.put(cfg.File, p)
	case ModeKeyring:
		b.Session.put(cfg.File, p)
		res.pending = append(res.pending, func() error {
			if err := b.Keyring.Set(cfg.File, p); err != nil {
				return err
			}
			b.Logger.Info("Stored passphrase in keyring", "config", cfg.File)
			return nil
		})
	}
	return nil
}

// newPassphrase asks twice for a new passphrase
func (b *Broker) newPassphrase(ctx context.Context, cfg *config.Config) (string, error) {
	first, err := b.prompt(ctx, cfg, fmt.Sprintf("Please enter the new borg passphrase for %s: ", cfg.Repository))
	if err != nil {
		return "", err
	}
	second, err := b.prompt(ctx, cfg, "Please repeat the new passphrase: ")
	if err != nil {
		return "", err
	}
	if first != second {
		return "", ErrPassphraseMismatch
	}
	return first, nil
}

// keep schedules persisting a new passphrase according to mode
func (b *Broker) keep(res *Resolution, cfg *config.Config, mode Mode, passphrase string) {
	switch mode {
	case ModeUnset, ModeFixed:
		res.pending = append(res.pending, func() error {
			if err := config.UpdateField(cfg.File, "passphrase", passphrase); err != nil {
				return err
			}
			b.Logger.Info("Saved new passphrase in config file", "config", cfg.File)
			return nil
		})
	case ModeKeyring:
		res.pending = append(res.pending, func() error {
			if err := b.Keyring.Set(cfg.File, passphrase); err != nil {
				return err
			}
			b.Session.put(cfg.File, passphrase)
			b.Logger.Info("Stored new passphrase in keyring", "config", cfg.File)
			return nil
		})
	case ModeAsk:
		b.Logger.Warn("The new passphrase is not saved because the passphrase mode is ask, make sure you remember it", "config", cfg.File)
		res.pending = append(res.pending, func() error {
			b.Session.put(cfg.File, passphrase)
			return nil
		})
	case ModeAskAlways:
		b.Logger.Warn("The new passphrase is not saved because the passphrase mode is ask-always, make sure you remember it", "config", cfg.File)
	}
}

func (b *Broker) prompt(ctx context.Context, cfg *config.Config, prompt string) (string, error) {
	p, err := b.Prompter.ReadSecret(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("passphrase for %s: %w", cfg.File, err)
	}
	return p, nil
}
