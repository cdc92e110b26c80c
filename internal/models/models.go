package models

import (
	"strings"
	"time"
)

// Run records one borg invocation
type Run struct {
	ID         string    `json:"id"`
	ConfigFile string    `json:"config_file"`
	Command    string    `json:"command"`
	Arguments  []string  `json:"arguments,omitempty"` // user arguments only, never secrets
	ExitCode   int       `json:"exit_code"`
	DryRun     bool      `json:"dry_run"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Duration is the wall time borg ran for
func (r *Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Status describes the exit code the way borg documents it
func (r *Run) Status() string {
	switch {
	case r.ExitCode == 0:
		return StatusSuccess
	case r.ExitCode == 1:
		return StatusWarning
	case r.ExitCode >= 128:
		return StatusInterrupted
	default:
		return StatusError
	}
}

// CommandLine joins command and arguments for display
func (r *Run) CommandLine() string {
	return strings.TrimSpace(r.Command + " " + strings.Join(r.Arguments, " "))
}

// Status constants
const (
	StatusSuccess     = "success"
	StatusWarning     = "warning"
	StatusError       = "error"
	StatusInterrupted = "interrupted"
)
