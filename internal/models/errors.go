package models

import "fmt"

// FetchReason classifies a failed station dump fetch.
type FetchReason string

// Fetch failure reasons.
const (
	FetchSpawnFailed FetchReason = "spawn_failed"
	FetchNonZeroExit FetchReason = "nonzero_exit"
	FetchTimeout     FetchReason = "timeout"
)

// FetchError is returned when the external tool could not deliver a report.
type FetchError struct {
	Reason    FetchReason
	Tool      string
	Interface string
	ExitCode  int
	Stderr    string
	Output    []byte // stdout captured before a non-zero exit
	Err       error
}

func (e *FetchError) Error() string {
	if e == nil {
		return "fetch error"
	}
	switch e.Reason {
	case FetchNonZeroExit:
		return fmt.Sprintf("%s dev %s station dump exited with code %d: %s", e.Tool, e.Interface, e.ExitCode, e.Stderr)
	case FetchTimeout:
		return fmt.Sprintf("%s dev %s station dump timed out: %v", e.Tool, e.Interface, e.Err)
	default:
		return fmt.Sprintf("%s dev %s station dump failed (%s): %v", e.Tool, e.Interface, e.Reason, e.Err)
	}
}

func (e *FetchError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ParseError is returned for station dumps that are not decodable text.
type ParseError struct {
	Offset int
	Reason string
}

func (e *ParseError) Error() string {
	if e == nil {
		return "parse error"
	}
	return fmt.Sprintf("parse station dump at byte %d: %s", e.Offset, e.Reason)
}

// ConfigError describes an invalid configuration value.
type ConfigError struct {
	Field  string
	Index  int // position in a list, -1 for scalar fields
	Reason string
}

func (e *ConfigError) Error() string {
	if e == nil {
		return "config error"
	}
	if e.Index >= 0 {
		return fmt.Sprintf("invalid %s[%d]: %s", e.Field, e.Index, e.Reason)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
