package store

import (
	"github.com/russellromney/borgctl/internal/models"
)

// Store defines the interface for persistent storage
type Store interface {
	// Close closes the database connection
	Close() error

	// RecordRun appends a finished run to the history
	RecordRun(run *models.Run) error
	// ListRuns returns the most recent runs, newest first
	ListRuns(limit int) ([]models.Run, error)
}
