package borg

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/russellromney/borgctl/internal/command"
)

// fakeBorg writes a shell script that prints its arguments and selected
// variables and exits with $FAKE_EXIT
func fakeBorg(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "borg")
	script := `#!/bin/sh
echo "args: $*"
echo "repo: $BORG_REPO"
echo "home: ${HOME:+set}"
exit ${FAKE_EXIT:-0}
`
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatalf("failed to write fake borg: %v", err)
	}
	return path
}

func testExecutor(stdout io.Writer) *Executor {
	return &Executor{
		Stdin:  strings.NewReader(""),
		Stdout: stdout,
		Stderr: io.Discard,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestExecuteStreamsOutput(t *testing.T) {
	var out bytes.Buffer
	c, _ := command.Lookup("list")
	inv := &Invocation{
		Command: c,
		Args:    []string{fakeBorg(t), "--verbose", "list"},
		Env:     map[string]string{"BORG_REPO": "/srv/repo"},
	}

	code, err := testExecutor(&out).Execute(context.Background(), inv)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if code != 0 {
		t.Errorf("Execute() code = %d, want 0", code)
	}
	for _, want := range []string{"args: --verbose list", "repo: /srv/repo"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output %q does not contain %q", out.String(), want)
		}
	}
}

func TestExecuteKeepsParentEnvironment(t *testing.T) {
	t.Setenv("HOME", "/home/test")
	var out bytes.Buffer
	c, _ := command.Lookup("list")
	inv := &Invocation{Command: c, Args: []string{fakeBorg(t)}, Env: map[string]string{}}

	if _, err := testExecutor(&out).Execute(context.Background(), inv); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(out.String(), "home: set") {
		t.Errorf("output %q, parent environment lost", out.String())
	}
}

func TestExecuteExitCodes(t *testing.T) {
	for _, want := range []int{1, 2, 3} {
		c, _ := command.Lookup("prune")
		inv := &Invocation{
			Command: c,
			Args:    []string{fakeBorg(t)},
			Env:     map[string]string{"FAKE_EXIT": string(rune('0' + want))},
		}
		code, err := testExecutor(io.Discard).Execute(context.Background(), inv)
		if err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
		if code != want {
			t.Errorf("Execute() code = %d, want %d", code, want)
		}
	}
}

func TestExecuteMissingBinary(t *testing.T) {
	c, _ := command.Lookup("list")
	inv := &Invocation{Command: c, Args: []string{"/nonexistent/borg"}}

	if _, err := testExecutor(io.Discard).Execute(context.Background(), inv); err == nil {
		t.Error("Execute() error = nil for missing binary")
	}
}

func TestMergeEnv(t *testing.T) {
	got := mergeEnv([]string{"A=1", "B=2"}, map[string]string{"B": "3"})
	if len(got) != 2 || got[0] != "A=1" || got[1] != "B=3" {
		t.Errorf("mergeEnv() = %v", got)
	}
}
