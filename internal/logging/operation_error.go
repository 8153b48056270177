package logging

import "fmt"

// OperationError annotates an error with operation metadata.
type OperationError struct {
	Operation string
	TraceID   string
	Err       error
}

// Error implements the error interface.
func (e *OperationError) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	if e.TraceID != "" {
		return fmt.Sprintf("%s (trace_id=%s): %v", e.Operation, e.TraceID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Operation, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *OperationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewOperationError wraps err with the operation it occurred in. Returns nil
// for a nil err.
func NewOperationError(operation, traceID string, err error) error {
	if err == nil {
		return nil
	}
	return &OperationError{Operation: operation, TraceID: traceID, Err: err}
}
