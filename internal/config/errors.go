package config

import "fmt"

// ParseError is returned when a configuration file is not valid YAML
type ParseError struct {
	File string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse config file %s: %v", e.File, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ValidationError names the first field of a configuration file that is
// missing or has the wrong shape
type ValidationError struct {
	File   string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid config file %s: %s %s", e.File, e.Field, e.Reason)
}
