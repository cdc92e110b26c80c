package secret

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zalando/go-keyring"

	"github.com/russellromney/borgctl/internal/command"
	"github.com/russellromney/borgctl/internal/config"
)

type fakePrompter struct {
	answers []string
	prompts []string
	err     error
}

func (p *fakePrompter) ReadSecret(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.prompts = append(p.prompts, prompt)
	if p.err != nil {
		return "", p.err
	}
	if len(p.answers) == 0 {
		return "", errors.New("unexpected prompt")
	}
	answer := p.answers[0]
	p.answers = p.answers[1:]
	return answer, nil
}

func newTestBroker(t *testing.T, answers ...string) (*Broker, *fakePrompter) {
	t.Helper()
	keyring.MockInit()
	prompter := &fakePrompter{answers: answers}
	return &Broker{
		Prompter:  prompter,
		Session:   NewSession(),
		Keyring:   SystemKeyring{},
		LookupEnv: func(string) (string, bool) { return "", false },
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, prompter
}

func testConfig(t *testing.T, passphrase string) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "home.yml")
	content := "repository: /srv/repo\npassphrase: \"" + passphrase + "\"\nprefix: host\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return &config.Config{File: path, Repository: "/srv/repo", Passphrase: passphrase}
}

func lookup(t *testing.T, name string) command.Command {
	t.Helper()
	c, ok := command.Lookup(name)
	if !ok {
		t.Fatalf("unknown command %s", name)
	}
	return c
}

func TestParseMode(t *testing.T) {
	tests := map[string]Mode{
		"":           ModeUnset,
		"ask":        ModeAsk,
		"ask-always": ModeAskAlways,
		"keyring":    ModeKeyring,
		"hunter2":    ModeFixed,
	}
	for in, want := range tests {
		if got := ParseMode(in); got != want {
			t.Errorf("ParseMode(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestResolveFixed(t *testing.T) {
	broker, prompter := newTestBroker(t)
	cfg := testConfig(t, "hunter2")

	res, err := broker.Resolve(context.Background(), cfg, lookup(t, "list"), nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Env[PassphraseEnv] != "hunter2" {
		t.Errorf("Env = %v", res.Env)
	}
	if len(prompter.prompts) != 0 {
		t.Errorf("prompted %d times, want 0", len(prompter.prompts))
	}
}

func TestResolveAskOncePerSession(t *testing.T) {
	broker, prompter := newTestBroker(t, "secret")
	cfg := testConfig(t, "ask")

	for i := 0; i < 2; i++ {
		res, err := broker.Resolve(context.Background(), cfg, lookup(t, "list"), nil)
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if res.Env[PassphraseEnv] != "secret" {
			t.Errorf("run %d: Env = %v", i, res.Env)
		}
	}
	if len(prompter.prompts) != 1 {
		t.Errorf("prompted %d times, want 1", len(prompter.prompts))
	}
}

func TestResolveAskAlways(t *testing.T) {
	broker, prompter := newTestBroker(t, "one", "two")
	cfg := testConfig(t, "ask-always")

	for _, want := range []string{"one", "two"} {
		res, err := broker.Resolve(context.Background(), cfg, lookup(t, "info"), nil)
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if res.Env[PassphraseEnv] != want {
			t.Errorf("Env = %v, want %s", res.Env, want)
		}
	}
	if len(prompter.prompts) != 2 {
		t.Errorf("prompted %d times, want 2", len(prompter.prompts))
	}
}

func TestResolveNoUnlockNeeded(t *testing.T) {
	broker, prompter := newTestBroker(t)
	cfg := testConfig(t, "ask")

	for _, tt := range []struct {
		name string
		args []string
	}{
		{"umount", nil},
		{"break-lock", nil},
		{"check", []string{"--repository-only"}},
		{"list", []string{"help"}},
	} {
		res, err := broker.Resolve(context.Background(), cfg, lookup(t, tt.name), tt.args)
		if err != nil {
			t.Fatalf("Resolve(%s) error = %v", tt.name, err)
		}
		if len(res.Env) != 0 {
			t.Errorf("Resolve(%s) Env = %v, want empty", tt.name, res.Env)
		}
	}
	if len(prompter.prompts) != 0 {
		t.Errorf("prompted %d times, want 0", len(prompter.prompts))
	}
}

func TestResolveSuppliedPassphrase(t *testing.T) {
	broker, prompter := newTestBroker(t)
	broker.LookupEnv = func(name string) (string, bool) {
		return "from-env", name == PassphraseEnv
	}
	cfg := testConfig(t, "ask")

	res, err := broker.Resolve(context.Background(), cfg, lookup(t, "list"), nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if _, ok := res.Env[PassphraseEnv]; ok {
		t.Errorf("Env = %v, want the inherited passphrase untouched", res.Env)
	}
	if len(prompter.prompts) != 0 {
		t.Errorf("prompted %d times, want 0", len(prompter.prompts))
	}
}

func TestResolveNoTerminal(t *testing.T) {
	broker, prompter := newTestBroker(t)
	prompter.err = ErrNoTerminal
	cfg := testConfig(t, "ask")

	_, err := broker.Resolve(context.Background(), cfg, lookup(t, "list"), nil)
	if !errors.Is(err, ErrNoTerminal) {
		t.Fatalf("Resolve() error = %v, want ErrNoTerminal", err)
	}
	if !strings.Contains(err.Error(), cfg.File) {
		t.Errorf("error %q does not name the config file", err)
	}
}

func TestResolveInitPersistsAfterCommit(t *testing.T) {
	broker, prompter := newTestBroker(t, "new-secret", "new-secret")
	cfg := testConfig(t, "")

	res, err := broker.Resolve(context.Background(), cfg, lookup(t, "init"), []string{"--encryption", "repokey"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Env[PassphraseEnv] != "new-secret" {
		t.Errorf("Env = %v", res.Env)
	}
	if len(prompter.prompts) != 2 {
		t.Errorf("prompted %d times, want 2", len(prompter.prompts))
	}

	// nothing is written before borg succeeded
	data, _ := os.ReadFile(cfg.File)
	if strings.Contains(string(data), "new-secret") {
		t.Fatal("passphrase persisted before Commit()")
	}

	if err := res.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	data, _ = os.ReadFile(cfg.File)
	if !strings.Contains(string(data), "passphrase: new-secret") {
		t.Errorf("config file = %q", data)
	}
}

func TestResolveInitMismatch(t *testing.T) {
	broker, _ := newTestBroker(t, "one", "two")
	cfg := testConfig(t, "")

	_, err := broker.Resolve(context.Background(), cfg, lookup(t, "init"), nil)
	if !errors.Is(err, ErrPassphraseMismatch) {
		t.Fatalf("Resolve() error = %v, want ErrPassphraseMismatch", err)
	}
	data, _ := os.ReadFile(cfg.File)
	if !strings.Contains(string(data), `passphrase: ""`) {
		t.Errorf("config file changed: %q", data)
	}
}

func TestResolveInitAskNotPersisted(t *testing.T) {
	broker, prompter := newTestBroker(t, "abc", "abc")
	cfg := testConfig(t, "ask")

	res, err := broker.Resolve(context.Background(), cfg, lookup(t, "init"), nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if err := res.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	data, _ := os.ReadFile(cfg.File)
	if strings.Contains(string(data), "abc") {
		t.Error("ask mode persisted the passphrase")
	}

	// the new passphrase is reused for the rest of the process
	res, err = broker.Resolve(context.Background(), cfg, lookup(t, "list"), nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Env[PassphraseEnv] != "abc" || len(prompter.prompts) != 2 {
		t.Errorf("Env = %v after %d prompts", res.Env, len(prompter.prompts))
	}
}

func TestResolveInitFixed(t *testing.T) {
	broker, prompter := newTestBroker(t)
	cfg := testConfig(t, "literal")

	res, err := broker.Resolve(context.Background(), cfg, lookup(t, "init"), nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Env[PassphraseEnv] != "literal" || len(prompter.prompts) != 0 {
		t.Errorf("Env = %v, prompts = %d", res.Env, len(prompter.prompts))
	}
}

func TestResolveKeyring(t *testing.T) {
	broker, prompter := newTestBroker(t, "from-prompt")
	cfg := testConfig(t, "keyring")

	res, err := broker.Resolve(context.Background(), cfg, lookup(t, "list"), nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Env[PassphraseEnv] != "from-prompt" {
		t.Errorf("Env = %v", res.Env)
	}
	if _, err := broker.Keyring.Get(cfg.File); !errors.Is(err, ErrNotInKeyring) {
		t.Errorf("keyring written before Commit(), err = %v", err)
	}
	if err := res.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	// a fresh session reads from the keyring without prompting
	broker.Session = NewSession()
	res, err = broker.Resolve(context.Background(), cfg, lookup(t, "list"), nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Env[PassphraseEnv] != "from-prompt" || len(prompter.prompts) != 1 {
		t.Errorf("Env = %v after %d prompts", res.Env, len(prompter.prompts))
	}
}

func TestResolveChangePassphrase(t *testing.T) {
	broker, prompter := newTestBroker(t, "next", "next")
	cfg := testConfig(t, "current")

	res, err := broker.Resolve(context.Background(), cfg, lookup(t, "change-passphrase"), nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Env[PassphraseEnv] != "current" || res.Env[NewPassphraseEnv] != "next" {
		t.Errorf("Env = %v", res.Env)
	}
	if len(prompter.prompts) != 2 {
		t.Errorf("prompted %d times, want 2", len(prompter.prompts))
	}
	if err := res.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	data, _ := os.ReadFile(cfg.File)
	if !strings.Contains(string(data), "passphrase: next") {
		t.Errorf("config file = %q", data)
	}
}

func TestResolveInterruptedPrompt(t *testing.T) {
	broker, _ := newTestBroker(t, "secret", "secret")
	cfg := testConfig(t, "ask")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, name := range []string{"list", "init"} {
		_, err := broker.Resolve(ctx, cfg, lookup(t, name), nil)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Resolve(%s) error = %v, want context.Canceled", name, err)
		}
	}
	if _, ok := broker.Session.get(cfg.File); ok {
		t.Error("session cached a passphrase after interrupt")
	}
}

func TestTerminalPrompterCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := &TerminalPrompter{In: os.Stdin, Out: io.Discard}
	if _, err := p.ReadSecret(ctx, "Passphrase: "); !errors.Is(err, context.Canceled) {
		t.Errorf("ReadSecret() error = %v, want context.Canceled", err)
	}
}

func TestResolveInitAskIgnoresSession(t *testing.T) {
	broker, prompter := newTestBroker(t, "fresh", "fresh")
	cfg := testConfig(t, "ask")
	broker.Session.put(cfg.File, "cached")

	res, err := broker.Resolve(context.Background(), cfg, lookup(t, "init"), nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Env[PassphraseEnv] != "fresh" {
		t.Errorf("BORG_PASSPHRASE = %q, want fresh", res.Env[PassphraseEnv])
	}
	if len(prompter.prompts) != 2 {
		t.Errorf("prompted %d times, want 2", len(prompter.prompts))
	}
}
