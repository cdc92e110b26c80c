// Package state writes the timestamp of the last successful run of a command.
// The files are read by monitoring, never by borgctl itself
package state

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/russellromney/borgctl/internal/command"
)

// Recorder writes state files into Dir
type Recorder struct {
	Dir string
	Now func() time.Time
}

// NewRecorder creates a recorder using the wall clock
func NewRecorder(dir string) *Recorder {
	return &Recorder{Dir: dir, Now: time.Now}
}

// Path is the state file of a command run against a config file
func (r *Recorder) Path(configName, name string) string {
	return filepath.Join(r.Dir, fmt.Sprintf("borg_state_%s_%s.txt", configName, name))
}

// Record overwrites the state file of configName and the command name with the current time
func (r *Recorder) Record(configName, name string) (string, error) {
	path := r.Path(configName, name)
	if err := os.WriteFile(path, []byte(r.Now().Format(command.TimestampFormat)), 0644); err != nil {
		return "", fmt.Errorf("failed to write state file: %w", err)
	}
	return path, nil
}
