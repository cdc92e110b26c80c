package secret

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// ErrNoTerminal is returned when a passphrase is needed but stdin is not a terminal
var ErrNoTerminal = errors.New("a passphrase is required but stdin is not a terminal")

// Prompter reads a secret from the user
type Prompter interface {
	ReadSecret(ctx context.Context, prompt string) (string, error)
}

// TerminalPrompter prompts on Out and reads without echo from In
type TerminalPrompter struct {
	In  *os.File
	Out io.Writer
}

// NewTerminalPrompter prompts on stderr so stdout stays usable for borg output
func NewTerminalPrompter() *TerminalPrompter {
	return &TerminalPrompter{In: os.Stdin, Out: os.Stderr}
}

// ReadSecret gives up when ctx is cancelled, restoring the terminal echo
// that ReadPassword turned off
func (p *TerminalPrompter) ReadSecret(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	fd := int(p.In.Fd())
	if !term.IsTerminal(fd) {
		return "", ErrNoTerminal
	}
	state, err := term.GetState(fd)
	if err != nil {
		return "", fmt.Errorf("failed to read terminal state: %w", err)
	}

	type result struct {
		secret []byte
		err    error
	}
	done := make(chan result, 1)

	fmt.Fprint(p.Out, "\a"+prompt)
	go func() {
		secret, err := term.ReadPassword(fd)
		done <- result{secret, err}
	}()

	select {
	case <-ctx.Done():
		term.Restore(fd, state)
		fmt.Fprintln(p.Out)
		return "", ctx.Err()
	case r := <-done:
		fmt.Fprintln(p.Out)
		if r.err != nil {
			return "", fmt.Errorf("failed to read passphrase: %w", r.err)
		}
		return string(r.secret), nil
	}
}
