package borg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"syscall"
)

// Executor runs invocations with the terminal attached
type Executor struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
}

// NewExecutor creates an executor wired to the standard streams
func NewExecutor(logger *slog.Logger) *Executor {
	return &Executor{Stdin: os.Stdin, Stdout: os.Stdout, Stderr: os.Stderr, Logger: logger}
}

// Execute runs inv and waits for it. The exit code of borg is returned as is,
// a borg killed by a signal reports 128 plus the signal number. Cancelling ctx
// sends an interrupt to borg, which then shuts down on its own terms
func (e *Executor) Execute(ctx context.Context, inv *Invocation) (int, error) {
	if len(inv.Args) == 0 {
		return 0, errors.New("empty command line")
	}

	e.Logger.Debug("Executing: " + strings.Join(inv.Redacted(), " ") + " " + strings.Join(inv.Args, " "))

	cmd := exec.CommandContext(ctx, inv.Args[0], inv.Args[1:]...)
	cmd.Env = mergeEnv(os.Environ(), inv.Env)
	cmd.Stdin = e.Stdin
	cmd.Stdout = e.Stdout
	cmd.Stderr = e.Stderr
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}

	err := cmd.Run()
	code := 0
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			if ctx.Err() != nil {
				return 128 + int(syscall.SIGINT), ctx.Err()
			}
			return 0, fmt.Errorf("failed to run %s: %w", inv.Args[0], err)
		}
		code = exitCode(exitErr)
	}

	switch {
	case code == 0:
		e.Logger.Debug("borg finished", "command", inv.Command.Name)
	case code == 1:
		e.Logger.Warn("borg finished with warnings", "command", inv.Command.Name, "exit_code", code)
	default:
		e.Logger.Error("borg failed", "command", inv.Command.Name, "exit_code", code)
	}
	return code, nil
}

func exitCode(err *exec.ExitError) int {
	if status, ok := err.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		return 128 + int(status.Signal())
	}
	return err.ExitCode()
}

// mergeEnv puts extra on top of base, replacing variables of the same name
func mergeEnv(base []string, extra map[string]string) []string {
	out := make([]string, 0, len(base)+len(extra))
	for _, kv := range base {
		name, _, _ := strings.Cut(kv, "=")
		if _, ok := extra[name]; ok {
			continue
		}
		out = append(out, kv)
	}
	for k, v := range extra {
		out = append(out, k+"="+v)
	}
	return out
}
