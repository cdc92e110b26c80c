package cmd

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/russellromney/borgctl/internal/config"
	"github.com/russellromney/borgctl/internal/models"
	"github.com/russellromney/borgctl/internal/store"
)

func printHistory(out io.Writer, paths *config.Paths, limit int) error {
	s, err := store.NewSQLiteStore(paths.HistoryDB())
	if err != nil {
		return err
	}
	defer s.Close()

	runs, err := s.ListRuns(limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No borg runs recorded yet")
		return nil
	}

	for _, r := range runs {
		icon := "?"
		switch r.Status() {
		case models.StatusSuccess:
			icon = "+"
		case models.StatusWarning:
			icon = "~"
		case models.StatusError:
			icon = "-"
		case models.StatusInterrupted:
			icon = "!"
		}

		dry := ""
		if r.DryRun {
			dry = "  (dry run)"
		}
		fmt.Fprintf(out, "  [%s] %s  %-12s exit %-3d %8s  %s%s\n",
			icon,
			r.StartedAt.Local().Format(time.DateTime),
			filepath.Base(r.ConfigFile),
			r.ExitCode,
			r.Duration().Round(time.Second),
			r.CommandLine(),
			dry,
		)
	}
	return nil
}
