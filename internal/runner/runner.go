// Package runner drives one borg command, or the cron commands of a config
// file, through composing, unlocking, running and recording
package runner

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/russellromney/borgctl/internal/borg"
	"github.com/russellromney/borgctl/internal/command"
	"github.com/russellromney/borgctl/internal/config"
	"github.com/russellromney/borgctl/internal/models"
	"github.com/russellromney/borgctl/internal/secret"
	"github.com/russellromney/borgctl/internal/state"
	"github.com/russellromney/borgctl/internal/store"
)

// Executor runs a composed invocation and returns the exit code of borg
type Executor interface {
	Execute(ctx context.Context, inv *borg.Invocation) (int, error)
}

// Runner holds everything a borg run needs
type Runner struct {
	Composer *borg.Composer
	Broker   *secret.Broker
	Executor Executor
	Recorder *state.Recorder
	// History is optional
	History store.Store
	Logger  *slog.Logger
	// Stdout receives the documentation pointer of help runs
	Stdout io.Writer
	// Progress asks borg for progress output
	Progress bool
	Now      func() time.Time
}

// Run executes one command against cfg and returns the exit code of borg
func (r *Runner) Run(ctx context.Context, cfg *config.Config, name string, args []string) (int, error) {
	c, ok := command.Lookup(name)
	if !ok {
		return 0, fmt.Errorf("unsupported command %q, use one of: %s", name, strings.Join(command.Names(), ", "))
	}

	inv, err := r.Composer.Build(c, cfg, args, borg.Options{Progress: r.Progress})
	if err != nil {
		return 0, err
	}

	if inv.IsHelp() {
		if _, err := r.Executor.Execute(ctx, inv); err != nil {
			return 0, err
		}
		fmt.Fprintf(r.Stdout, "\nDocumentation: %s\n", c.DocsURL())
		return 0, nil
	}

	res, err := r.Broker.Resolve(ctx, cfg, c, args)
	if err != nil {
		return 0, err
	}
	for k, v := range res.Env {
		inv.Env[k] = v
	}

	started := r.now()
	code, err := r.Executor.Execute(ctx, inv)
	if err != nil {
		return code, err
	}
	r.record(cfg, c, args, code, started)

	if code != 0 {
		return code, nil
	}

	if err := res.Commit(); err != nil {
		return code, fmt.Errorf("borg %s succeeded but the new passphrase could not be saved: %w", c.Name, err)
	}

	if cfg.Records(c.Name) && !command.ModifiesNothing(args) {
		path, err := r.Recorder.Record(cfg.Name(), c.Name)
		if err != nil {
			return code, err
		}
		r.Logger.Info("Updated state file", "path", path)
	}
	return code, nil
}

// RunBatch runs the cron commands of cfg in order and returns the highest exit code
func (r *Runner) RunBatch(ctx context.Context, cfg *config.Config) (int, error) {
	worst := 0
	for _, name := range cfg.CronCommands {
		r.Logger.Info("Running borg "+name+" in --cron mode", "config", cfg.File)
		code, err := r.Run(ctx, cfg, name, nil)
		worst = max(worst, code)
		if err != nil {
			return worst, err
		}
		if ctx.Err() != nil {
			return worst, ctx.Err()
		}
	}
	if worst != 0 {
		r.Logger.Info(fmt.Sprintf("Returning with exit code %d", worst), "config", cfg.File)
	}
	return worst, nil
}

func (r *Runner) record(cfg *config.Config, c command.Command, args []string, code int, started time.Time) {
	if r.History == nil {
		return
	}
	run := &models.Run{
		ConfigFile: cfg.File,
		Command:    c.Name,
		Arguments:  args,
		ExitCode:   code,
		DryRun:     dryRun(args),
		StartedAt:  started,
		FinishedAt: r.now(),
	}
	if err := r.History.RecordRun(run); err != nil {
		r.Logger.Warn("Could not record run in history", "error", err)
	}
}

func (r *Runner) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}
	return r.Now()
}

func dryRun(args []string) bool {
	for _, arg := range args {
		if arg == "--dry-run" || arg == "-n" {
			return true
		}
	}
	return false
}
