package cmd

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/russellromney/borgctl/internal/borg"
	"github.com/russellromney/borgctl/internal/config"
	"github.com/russellromney/borgctl/internal/runner"
	"github.com/russellromney/borgctl/internal/secret"
	"github.com/russellromney/borgctl/internal/state"
	"github.com/russellromney/borgctl/internal/store"
)

// runConfigs runs the command, or the cron commands, for every config file
// and returns the highest exit code as an exitCode
func runConfigs(ctx context.Context, cmd *cobra.Command, paths *config.Paths, files, args []string, logger *slog.Logger) error {
	r := &runner.Runner{
		Composer: borg.NewComposer(paths.LoggingConf(), logger),
		Broker:   secret.NewBroker(logger),
		Executor: borg.NewExecutor(logger),
		Recorder: state.NewRecorder(paths.LogDir),
		Logger:   logger,
		Stdout:   cmd.OutOrStdout(),
		Progress: !noProgress && !cronMode && term.IsTerminal(int(os.Stdout.Fd())),
	}

	history, err := store.NewSQLiteStore(paths.HistoryDB())
	if err != nil {
		logger.Warn("Run history is not available", "error", err)
	} else {
		r.History = history
		defer history.Close()
	}

	if cronMode && len(args) > 0 {
		logger.Warn("Ignoring arguments in --cron mode", "args", args)
	}

	for _, file := range files {
		cfg, err := config.Load(paths.ConfigFile(file))
		if err != nil {
			logger.Error(err.Error())
			return exitCode(max(1, worst))
		}

		var code int
		if cronMode {
			code, err = r.RunBatch(ctx, cfg)
		} else {
			code, err = r.Run(ctx, cfg, args[0], args[1:])
		}
		worst = max(worst, code)

		// interrupted: borg already reported what happened
		if ctx.Err() != nil {
			return exit(worst)
		}
		if err != nil {
			logger.Error(err.Error())
			return exitCode(max(1, worst))
		}
		// help looks the same for every config file
		if !cronMode && borg.WantsHelp(args[1:]) {
			return nil
		}
	}
	return exit(worst)
}
