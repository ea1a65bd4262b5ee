package report

import (
	"errors"
	"fmt"
)

var (
	// ErrMultipleGroups is returned when more than one column is marked as group key.
	ErrMultipleGroups = errors.New("at most one column may be grouped")
	// ErrUnsupportedGrouping is returned when grouping is combined with property or custom columns
	// or with property filters.
	ErrUnsupportedGrouping = errors.New("grouping cannot be combined with property or custom columns or property filters")
	// ErrRowShape is returned when a data source yields rows that do not match the requested columns.
	ErrRowShape = errors.New("fetched row does not match requested columns")
)

// ConfigError reports an invalid column configuration.
type ConfigError struct {
	Column string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("invalid report configuration: %v", e.Err)
	}
	return fmt.Sprintf("invalid report configuration: column %s: %v", e.Column, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}
