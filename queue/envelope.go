package queue

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// Envelope field names.
const (
	fieldID        = "id"
	fieldOperation = "operation"
	fieldArgs      = "args"
	fieldKwargs    = "kwargs"
	fieldValue     = "value"
	fieldError     = "error"
	fieldState     = "state"
	fieldTimestamp = "timestamp"
)

// NewTaskID returns a fresh task identifier.
func NewTaskID() string {
	return uuid.NewString()
}

// EncodeTask resolves op to its name, assigns a fresh id and serializes the
// task envelope {id, operation, args, kwargs}.
func EncodeTask(c Codec, op OperationRef, args []any, kwargs map[string]any) (string, []byte, error) {
	if op == nil || op.OperationName() == "" {
		return "", nil, protocolError("EncodeTask", errors.New("operation name is required"))
	}
	if args == nil {
		args = []any{}
	}
	if kwargs == nil {
		kwargs = map[string]any{}
	}

	id := NewTaskID()
	data, err := c.Marshal(map[string]any{
		fieldID:        id,
		fieldOperation: op.OperationName(),
		fieldArgs:      args,
		fieldKwargs:    kwargs,
	})
	if err != nil {
		return "", nil, &Error{Op: "EncodeTask", Kind: KindProtocol, TaskID: id, Err: err}
	}
	return id, data, nil
}

// DecodeTask parses a task envelope.
func DecodeTask(c Codec, data []byte) (*Task, error) {
	var raw map[string]any
	if err := c.Unmarshal(data, &raw); err != nil {
		return nil, protocolError("DecodeTask", err)
	}

	task := &Task{}
	var ok bool
	if task.ID, ok = raw[fieldID].(string); !ok {
		return nil, protocolError("DecodeTask", fmt.Errorf("field %q must be a string", fieldID))
	}
	if task.Operation, ok = raw[fieldOperation].(string); !ok {
		return nil, protocolError("DecodeTask", fmt.Errorf("field %q must be a string", fieldOperation))
	}
	switch args := raw[fieldArgs].(type) {
	case nil:
		task.Args = []any{}
	case []any:
		task.Args = args
	default:
		return nil, protocolError("DecodeTask", fmt.Errorf("field %q must be an array, got %T", fieldArgs, args))
	}
	switch kwargs := raw[fieldKwargs].(type) {
	case nil:
		task.Kwargs = map[string]any{}
	case map[string]any:
		task.Kwargs = kwargs
	default:
		return nil, protocolError("DecodeTask", fmt.Errorf("field %q must be an object, got %T", fieldKwargs, kwargs))
	}

	if err := task.IsValid(); err != nil {
		return nil, protocolError("DecodeTask", err)
	}
	return task, nil
}

// EncodeResult serializes a success envelope {value: v}. A value the codec
// cannot represent is turned into an error envelope carrying the codec's
// failure text, so a result is always produced.
func EncodeResult(c Codec, value any) ([]byte, error) {
	data, err := c.Marshal(map[string]any{fieldValue: value})
	if err == nil {
		return data, nil
	}
	return EncodeError(c, fmt.Errorf("result is not serializable: %w", err))
}

// EncodeError serializes an error envelope {error: description}. Only the
// error's text crosses the queue.
func EncodeError(c Codec, err error) ([]byte, error) {
	desc := "unknown error"
	if err != nil {
		desc = err.Error()
		var qerr *Error
		if errors.As(err, &qerr) && (qerr.Kind == KindExecution || qerr.Kind == KindDispatch) {
			desc = qerr.Description()
		}
	}
	data, mErr := c.Marshal(map[string]any{fieldError: desc})
	if mErr != nil {
		return nil, protocolError("EncodeError", mErr)
	}
	return data, nil
}

// DecodeResult parses a result envelope. Exactly one of value or error must
// be present.
func DecodeResult(c Codec, data []byte) (*Result, error) {
	var raw map[string]any
	if err := c.Unmarshal(data, &raw); err != nil {
		return nil, protocolError("DecodeResult", err)
	}

	value, hasValue := raw[fieldValue]
	desc, hasError := raw[fieldError]
	switch {
	case hasValue && hasError:
		return nil, protocolError("DecodeResult", errors.New("envelope carries both value and error"))
	case hasError:
		s, ok := desc.(string)
		if !ok {
			return nil, protocolError("DecodeResult", fmt.Errorf("field %q must be a string, got %T", fieldError, desc))
		}
		return &Result{Error: s, Failed: true}, nil
	case hasValue:
		return &Result{Value: value}, nil
	default:
		return nil, protocolError("DecodeResult", errors.New("envelope carries neither value nor error"))
	}
}

// EncodeEvent serializes a state change notification.
func EncodeEvent(c Codec, ev Event) ([]byte, error) {
	data, err := c.Marshal(map[string]any{
		fieldID:        ev.TaskID,
		fieldState:     string(ev.State),
		fieldTimestamp: float64(ev.Timestamp.UnixMicro()) / 1e6,
	})
	if err != nil {
		return nil, protocolError("EncodeEvent", err)
	}
	return data, nil
}

// DecodeEvent parses a state change notification.
func DecodeEvent(c Codec, data []byte) (*Event, error) {
	var raw map[string]any
	if err := c.Unmarshal(data, &raw); err != nil {
		return nil, protocolError("DecodeEvent", err)
	}
	id, _ := raw[fieldID].(string)
	state, _ := raw[fieldState].(string)
	if id == "" || !State(state).IsValid() {
		return nil, protocolError("DecodeEvent", fmt.Errorf("malformed event: %v", raw))
	}
	ev := &Event{TaskID: id, State: State(state)}
	if ts, ok := toFloat(raw[fieldTimestamp]); ok {
		ev.Timestamp = time.UnixMicro(int64(math.Round(ts * 1e6)))
	}
	return ev, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}
