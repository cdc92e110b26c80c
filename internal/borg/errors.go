package borg

import "fmt"

// UsageError is returned when a command lacks arguments borg cannot do without
type UsageError struct {
	Command string
	Usage   string
}

func (e *UsageError) Error() string {
	return fmt.Sprintf("%s needs more arguments, usage: borgctl %s", e.Command, e.Usage)
}
