package gesture

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is checks.
var (
	ErrInvalidState        = errors.New("gesture: invalid state")
	ErrTimestampRegression = errors.New("gesture: timestamp regression")
)

// EngineInitError reports that the recognition engine could not be built
// (missing model, runtime failure). Start leaves the pipeline Stopped.
type EngineInitError struct {
	Cause error
}

func (e *EngineInitError) Error() string {
	return fmt.Sprintf("gesture: engine init failed: %v", e.Cause)
}

func (e *EngineInitError) Unwrap() error { return e.Cause }

// InvalidStateError reports an operation attempted in the wrong state.
type InvalidStateError struct {
	Op    string
	State State
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("gesture: %s not allowed in state %s", e.Op, e.State)
}

func (e *InvalidStateError) Unwrap() error { return ErrInvalidState }

// CaptureFault reports a frame source failure.
type CaptureFault struct {
	Cause error
}

func (e *CaptureFault) Error() string {
	return fmt.Sprintf("gesture: capture fault: %v", e.Cause)
}

func (e *CaptureFault) Unwrap() error { return e.Cause }

// SubmissionFault reports that the engine rejected a frame synchronously.
// The pipeline keeps running.
type SubmissionFault struct {
	Seq         uint64
	TimestampMs int64
	Cause       error
}

func (e *SubmissionFault) Error() string {
	return fmt.Sprintf("gesture: submit seq=%d ts=%d failed: %v", e.Seq, e.TimestampMs, e.Cause)
}

func (e *SubmissionFault) Unwrap() error { return e.Cause }

// TimestampRegressionError reports a frame older than the last one submitted.
// The frame is dropped.
type TimestampRegressionError struct {
	Previous int64
	Got      int64
	Seq      uint64
}

func (e *TimestampRegressionError) Error() string {
	return fmt.Sprintf("gesture: timestamp regression seq=%d: %d < %d", e.Seq, e.Got, e.Previous)
}

func (e *TimestampRegressionError) Unwrap() error { return ErrTimestampRegression }

// EngineFault reports an asynchronous recognition failure.
type EngineFault struct {
	TimestampMs int64
	Cause       error
}

func (e *EngineFault) Error() string {
	return fmt.Sprintf("gesture: engine fault ts=%d: %v", e.TimestampMs, e.Cause)
}

func (e *EngineFault) Unwrap() error { return e.Cause }

// SinkFault reports a panic recovered while handling a result.
type SinkFault struct {
	Cause error
}

func (e *SinkFault) Error() string {
	return fmt.Sprintf("gesture: result handling panicked: %v", e.Cause)
}

func (e *SinkFault) Unwrap() error { return e.Cause }
