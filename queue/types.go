package queue

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// State is the lifecycle state recorded in a task's metadata hash.
type State string

const (
	// StateNew is written atomically with the queue entry at submission.
	StateNew State = "NEW"

	// StateRunning is written by the worker that dequeued the task.
	StateRunning State = "RUNNING"

	// StateDone is written together with the result.
	StateDone State = "DONE"

	// StateRetry is reserved for a future retry policy. No transition leads
	// to it.
	StateRetry State = "RETRY"
)

// IsValid reports whether s is one of the known states.
func (s State) IsValid() bool {
	switch s {
	case StateNew, StateRunning, StateDone, StateRetry:
		return true
	}
	return false
}

// rank orders states along NEW -> RUNNING -> DONE.
func (s State) rank() int {
	switch s {
	case StateNew:
		return 1
	case StateRunning:
		return 2
	case StateDone:
		return 3
	}
	return 0
}

// CanTransition reports whether moving from s to next keeps the state
// monotonic. RETRY has no transition rules and is never reachable.
func (s State) CanTransition(next State) bool {
	if s.rank() == 0 || next.rank() == 0 {
		return false
	}
	return next.rank() == s.rank()+1
}

// OperationRef names an operation exposed by a worker backend. Both a plain
// name (Op) and a handle returned by registering a handler satisfy it.
type OperationRef interface {
	OperationName() string
}

// Op is an operation referenced by name alone.
type Op string

// OperationName implements OperationRef.
func (o Op) OperationName() string { return string(o) }

// Kwargs holds named arguments. When passed as the last element of the
// variadic args of PushTask or ExecuteTask it is sent as the task's kwargs.
type Kwargs map[string]any

// Task is one unit of requested work as it travels through the queue.
type Task struct {
	// ID is generated at submission and never reused.
	ID string `json:"id"`

	// Operation is the name the worker resolves against its backend.
	Operation string `json:"operation"`

	// Args are the ordered positional arguments.
	Args []any `json:"args"`

	// Kwargs are the named arguments.
	Kwargs map[string]any `json:"kwargs"`
}

// IsValid checks that the task carries an id and an operation name.
func (t *Task) IsValid() error {
	if t.ID == "" {
		return fmt.Errorf("id is required")
	}
	if t.Operation == "" {
		return fmt.Errorf("operation is required")
	}
	return nil
}

// Request describes a task to submit with explicit positional and named
// arguments.
type Request struct {
	Operation OperationRef
	Args      []any
	Kwargs    map[string]any
}

// Result is the outcome of executing a Task: exactly one of a value or an
// error description.
type Result struct {
	// Value is the handler's return value after a codec round trip.
	Value any

	// Error is the failure description. Empty on success.
	Error string

	// Failed distinguishes an error result from a success whose value is nil.
	Failed bool
}

// HasError returns true if the result represents a failed execution.
func (r *Result) HasError() bool {
	return r.Failed
}

// Err returns the result's error as a *TaskError, or nil on success.
func (r *Result) Err(taskID string) error {
	if !r.Failed {
		return nil
	}
	return &TaskError{TaskID: taskID, Message: r.Error}
}

// Metadata is the per-task bookkeeping record.
type Metadata struct {
	// State is the current lifecycle state.
	State State `json:"state"`

	// Timestamp is the time of the last state change.
	Timestamp time.Time `json:"timestamp"`
}

// Age returns the time elapsed since the last state change.
func (m *Metadata) Age() time.Duration {
	if m.Timestamp.IsZero() {
		return 0
	}
	return time.Since(m.Timestamp)
}

// MetadataFields renders a state change as hash fields. The timestamp is
// stored as float seconds since the epoch with microsecond precision.
func MetadataFields(state State, at time.Time) map[string]any {
	return map[string]any{
		"state":     string(state),
		"timestamp": formatTimestamp(at),
	}
}

func formatTimestamp(t time.Time) string {
	return strconv.FormatFloat(float64(t.UnixMicro())/1e6, 'f', 6, 64)
}

func parseTimestamp(s string) (time.Time, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return time.UnixMicro(int64(math.Round(f * 1e6))), nil
}

// parseMetadata builds Metadata from a hash. An empty hash means the record
// does not exist.
func parseMetadata(fields map[string]string) (*Metadata, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	state := State(fields["state"])
	if !state.IsValid() {
		return nil, fmt.Errorf("invalid state %q", fields["state"])
	}
	meta := &Metadata{State: state}
	if ts, ok := fields["timestamp"]; ok {
		t, err := parseTimestamp(ts)
		if err != nil {
			return nil, err
		}
		meta.Timestamp = t
	}
	return meta, nil
}

// Message is a payload received from a namespace channel.
type Message struct {
	// Channel is the short channel name, without the namespace.
	Channel string

	// Payload is the decoded message body.
	Payload any
}

// Event reports a task state change published by a worker.
type Event struct {
	TaskID    string    `json:"id"`
	State     State     `json:"state"`
	Timestamp time.Time `json:"timestamp"`
}
