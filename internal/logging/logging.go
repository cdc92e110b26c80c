// Package logging sets up the logger of borgctl and the logging
// configuration handed to borg
package logging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	// MaxSizeMB is the size at which borgctl.log is rotated
	MaxSizeMB = 10
	// MaxBackups is the number of rotated log files kept
	MaxBackups = 1
)

// Setup returns a logger writing to stderr and, when logFile is not empty, to
// a rotated log file. Close the returned closer on exit
func Setup(stderr io.Writer, logFile string, verbose bool) (*slog.Logger, io.Closer) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	var out io.Writer = stderr
	var closer io.Closer = nopCloser{}
	if logFile != "" {
		file := &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    MaxSizeMB,
			MaxBackups: MaxBackups,
		}
		out = io.MultiWriter(stderr, file)
		closer = file
	}

	handler := slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})
	return slog.New(handler), closer
}

// Discard returns a logger that drops everything
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// borgConfig is a Python logging.config file; borg reads it through
// BORG_LOGGING_CONF
const borgConfig = `[loggers]
keys=root

[handlers]
keys=console,logfile

[formatters]
keys=simple

[logger_root]
level=NOTSET
handlers=console,logfile

[handler_logfile]
class=handlers.RotatingFileHandler
level=INFO
formatter=simple
args=('%s', 'a', %d, 1)

[handler_console]
class=StreamHandler
formatter=simple
level=INFO
args=(sys.stderr,)

[formatter_simple]
format=%%(asctime)s %%(levelname)s %%(message)s
datefmt=
class=logging.Formatter
`

// borgLogSize is the size at which borg.log is rotated
const borgLogSize = 1 << 30

// WriteBorgConfig writes the borg logging configuration to path unless the
// file exists. borg logs into borgLog
func WriteBorgConfig(path, borgLog string) (bool, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if errors.Is(err, os.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to create %s: %w", path, err)
	}
	if _, err := fmt.Fprintf(f, borgConfig, borgLog, borgLogSize); err != nil {
		f.Close()
		return false, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return true, f.Close()
}
