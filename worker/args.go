package worker

import (
	"encoding/json"
	"fmt"
	"math"
)

// Args carries a task's arguments to a Handler. Values arrive as the codec
// decoded them: with JSON every number is a float64, with CBOR integers are
// int64 or uint64. The typed accessors accept any of these.
type Args struct {
	Positional []any
	Named      map[string]any
}

// Len returns the number of positional arguments.
func (a Args) Len() int {
	return len(a.Positional)
}

// Get returns positional argument i.
func (a Args) Get(i int) (any, error) {
	if i < 0 || i >= len(a.Positional) {
		return nil, fmt.Errorf("missing argument %d: got %d arguments", i, len(a.Positional))
	}
	return a.Positional[i], nil
}

// Float returns positional argument i as a float64.
func (a Args) Float(i int) (float64, error) {
	v, err := a.Get(i)
	if err != nil {
		return 0, err
	}
	f, ok := asFloat(v)
	if !ok {
		return 0, fmt.Errorf("argument %d: expected a number, got %T", i, v)
	}
	return f, nil
}

// Int returns positional argument i as an int64. Floats are accepted when
// they hold an integral value.
func (a Args) Int(i int) (int64, error) {
	v, err := a.Get(i)
	if err != nil {
		return 0, err
	}
	n, ok := asInt(v)
	if !ok {
		return 0, fmt.Errorf("argument %d: expected an integer, got %T(%v)", i, v, v)
	}
	return n, nil
}

// String returns positional argument i as a string.
func (a Args) String(i int) (string, error) {
	v, err := a.Get(i)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %d: expected a string, got %T", i, v)
	}
	return s, nil
}

// Bool returns positional argument i as a bool.
func (a Args) Bool(i int) (bool, error) {
	v, err := a.Get(i)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("argument %d: expected a bool, got %T", i, v)
	}
	return b, nil
}

// Kwarg returns the named argument and whether it was sent.
func (a Args) Kwarg(name string) (any, bool) {
	v, ok := a.Named[name]
	return v, ok
}

// KwargString returns a named string argument, or def when it was not sent.
func (a Args) KwargString(name, def string) (string, error) {
	v, ok := a.Named[name]
	if !ok {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %q: expected a string, got %T", name, v)
	}
	return s, nil
}

// KwargFloat returns a named numeric argument, or def when it was not sent.
func (a Args) KwargFloat(name string, def float64) (float64, error) {
	v, ok := a.Named[name]
	if !ok {
		return def, nil
	}
	f, ok := asFloat(v)
	if !ok {
		return 0, fmt.Errorf("argument %q: expected a number, got %T", name, v)
	}
	return f, nil
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case float64:
		// float64(math.MaxInt64) rounds up to 2^63, which int64 cannot hold.
		if n != math.Trunc(n) || n < math.MinInt64 || n >= math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}
