package cmd

import (
	"fmt"
	"io"

	"github.com/russellromney/borgctl/internal/config"
)

func listConfigs(out io.Writer, paths *config.Paths, pattern string) error {
	names, err := paths.ListConfigs(pattern)
	if err != nil {
		return err
	}

	if len(names) == 0 {
		fmt.Fprintf(out, "No config files found in %s\n", paths.ConfDir)
		fmt.Fprintln(out, "\nRun 'borgctl --generate-default-config' to create one.")
		return nil
	}
	for _, name := range names {
		fmt.Fprintln(out, name)
	}
	return nil
}
