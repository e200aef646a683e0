package monitor

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors shared by the renderer adapters and the pipeline.
var (
	// ErrNavigation means the site could not be reached (DNS, connect, HTTP load failure).
	ErrNavigation = errors.New("navigation failed")
	// ErrConditionTimeout means the configured wait condition never matched.
	ErrConditionTimeout = errors.New("wait condition timed out")
	// ErrCapture means the snapshot or page evaluation failed after navigation.
	ErrCapture = errors.New("capture failed")
	// ErrConfig means no usable configuration could be loaded.
	ErrConfig = errors.New("invalid configuration")
	// ErrNotFound is returned by stores when a record does not exist.
	ErrNotFound = errors.New("not found")
)

// RetentionError reports a failed artifact deletion.
type RetentionError struct {
	Key ArtifactKey
	Err error
}

func (e *RetentionError) Error() string {
	return fmt.Sprintf("delete artifact %s: %v", e.Key.Path(), e.Err)
}

func (e *RetentionError) Unwrap() error { return e.Err }

// SyncError reports a failed delivery to the status page or notification transport.
type SyncError struct {
	Target string
	Op     string
	Err    error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Target, e.Op, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

// Classify maps a capture-path error onto an ErrorKind. Deadline errors win
// over the wrapped sentinel so a navigation that timed out reports timeout.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorKindTimeout
	case errors.Is(err, ErrNavigation):
		return ErrorKindNavigation
	case errors.Is(err, ErrCapture):
		return ErrorKindCapture
	default:
		return ErrorKindUnknown
	}
}
