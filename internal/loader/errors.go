package loader

import (
	"fmt"
	"strings"
)

// LoadError is returned when no delimiter strategy can read the input
type LoadError struct {
	Path     string
	Attempts []error
}

func (e *LoadError) Error() string {
	msgs := make([]string, len(e.Attempts))
	for i, err := range e.Attempts {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("failed to load %s: %s", e.Path, strings.Join(msgs, "; "))
}

func (e *LoadError) Unwrap() []error {
	return e.Attempts
}

// TimestampError reports a start or end time that could not be parsed
type TimestampError struct {
	Line   int
	Column string
	Value  string
}

func (e *TimestampError) Error() string {
	return fmt.Sprintf("line %d: invalid %s %q", e.Line, e.Column, e.Value)
}

// CoresError reports a core count that is not an integer-coercible number
type CoresError struct {
	Line  int
	Value string
	Err   error
}

func (e *CoresError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *CoresError) Unwrap() error {
	return e.Err
}
