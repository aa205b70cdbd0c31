package quickbase

import (
	"fmt"
	"strings"
)

// ValidationError reports bad or missing caller input. Never retried; maps
// to HTTP 400.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "invalid request: " + strings.Join(e.Fields, ", ")
}

// ConfigurationError reports missing credentials or table ids. The operator
// has to fix the environment; maps to HTTP 500.
type ConfigurationError struct {
	Missing []string
}

func (e *ConfigurationError) Error() string {
	return "missing required configuration: " + strings.Join(e.Missing, ", ")
}

// FieldResolutionError means the label cascade found no matching column. The
// full candidate list is carried for operator diagnosis.
type FieldResolutionError struct {
	TableID    string
	Target     string
	Candidates []Field
}

func (e *FieldResolutionError) Error() string {
	return fmt.Sprintf("could not find %s field in table %s (%d candidate fields)",
		e.Target, e.TableID, len(e.Candidates))
}

// UpstreamError is a non-success response from QuickBase. The status code and
// the best-effort parsed body propagate to the caller unchanged.
type UpstreamError struct {
	StatusCode int
	Message    string
	Body       map[string]any
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("quickbase returned %d: %s", e.StatusCode, e.Message)
}

// TimeoutError is the read-path 30s abort; maps to HTTP 504.
type TimeoutError struct {
	URL string
}

func (e *TimeoutError) Error() string {
	return "request timeout: the QuickBase API did not respond within 30 seconds"
}

// NetworkError is a transport-level failure before any status code existed.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error connecting to QuickBase: %v", e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// WriteError means a create call succeeded but no record id came back in
// either the metadata block or the echoed data.
type WriteError struct {
	TableID string
	Detail  string
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write to table %s: %s", e.TableID, e.Detail)
}
