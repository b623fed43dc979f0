package queue

import (
	"errors"
	"fmt"
)

// Sentinel errors for conditions callers are expected to branch on.
var (
	// ErrNotReady indicates the task is known but its result has not been
	// published yet, or a wait timed out before it was.
	ErrNotReady = errors.New("result not ready")

	// ErrTaskNotFound indicates neither a result nor metadata exists for the
	// task id. Either the id was never submitted, or its result was already
	// consumed or flushed.
	ErrTaskNotFound = errors.New("task not found")

	// ErrOperationNotFound indicates the backend has no handler registered
	// under the requested operation name.
	ErrOperationNotFound = errors.New("operation not found")
)

// Error kinds categorize protocol failures.
const (
	// KindDispatch marks a task whose operation could not be resolved.
	KindDispatch = "dispatch"

	// KindExecution marks a handler that failed or panicked.
	KindExecution = "execution"

	// KindBroker marks transport failures reaching the broker.
	KindBroker = "broker"

	// KindProtocol marks envelopes that could not be encoded or decoded.
	KindProtocol = "protocol"
)

// Kind-only targets for errors.Is.
//
//	if errors.Is(err, queue.ErrBroker) {
//		// the broker is unreachable, stop consuming
//	}
var (
	ErrDispatch  = &Error{Kind: KindDispatch}
	ErrExecution = &Error{Kind: KindExecution}
	ErrBroker    = &Error{Kind: KindBroker}
	ErrProtocol  = &Error{Kind: KindProtocol}
)

// Error is the structured error returned by the client, the broker adapter
// and the worker. It supports errors.Is matching by Kind (and optionally Op)
// and unwraps to the underlying cause.
type Error struct {
	// Op is the operation that failed (e.g. "redis.Enqueue", "DecodeTask").
	Op string

	// Kind is one of the Kind* constants.
	Kind string

	// TaskID is set when the failure concerns a specific task.
	TaskID string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("rpcq: %s: %s", e.Op, e.Kind)
	}
	if e.TaskID != "" {
		return fmt.Sprintf("rpcq: %s (%s) task %s: %v", e.Op, e.Kind, e.TaskID, e.Err)
	}
	return fmt.Sprintf("rpcq: %s (%s): %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by Kind, and by Op when the target sets one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t == nil {
		return false
	}
	if t.Kind == "" || t.Kind != e.Kind {
		return false
	}
	return t.Op == "" || t.Op == e.Op
}

// Description returns the text recorded in an error Result: the message of
// the underlying cause, without the rpcq prefix.
func (e *Error) Description() string {
	if e.Err == nil {
		return e.Kind
	}
	return e.Err.Error()
}

// TaskError is returned to a client when the worker recorded an error Result.
// Its message is exactly the description the worker stored; the original
// error type does not survive the queue.
type TaskError struct {
	TaskID  string
	Message string
}

// Error implements the error interface.
func (e *TaskError) Error() string {
	return e.Message
}

func brokerError(op string, err error) error {
	return &Error{Op: op, Kind: KindBroker, Err: err}
}

func protocolError(op string, err error) error {
	return &Error{Op: op, Kind: KindProtocol, Err: err}
}

// DispatchError builds the error recorded when a task names an operation the
// backend does not expose.
func DispatchError(taskID, operation string) error {
	return &Error{
		Op:     "Dispatch",
		Kind:   KindDispatch,
		TaskID: taskID,
		Err:    fmt.Errorf("%w: %q", ErrOperationNotFound, operation),
	}
}

// ExecutionError wraps a failure raised by a handler.
func ExecutionError(taskID string, err error) error {
	return &Error{Op: "Execute", Kind: KindExecution, TaskID: taskID, Err: err}
}
