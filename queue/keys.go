package queue

import (
	"fmt"
	"strings"
)

// DefaultPrefix is the namespace prefix used when none is configured.
const DefaultPrefix = "rpcq"

// Keys builds the Redis key names of one queue namespace.
type Keys struct {
	prefix string
	queue  string
}

// validateName checks a queue name or prefix. Names must be non-empty and
// free of ':', so that one queue's namespace pattern never matches the keys
// of another queue.
func validateName(kind, name string) error {
	if name == "" {
		return fmt.Errorf("%s name is required", kind)
	}
	if strings.Contains(name, ":") {
		return fmt.Errorf("%s name %q must not contain ':'", kind, name)
	}
	return nil
}

// ValidateNamespace checks the queue name and, when set, the prefix. An
// empty prefix selects DefaultPrefix.
func ValidateNamespace(prefix, queue string) error {
	if err := validateName("queue", queue); err != nil {
		return err
	}
	if prefix != "" {
		if err := validateName("prefix", prefix); err != nil {
			return err
		}
	}
	return nil
}

// NewKeys returns the key builder for queue under prefix. An empty prefix
// selects DefaultPrefix.
func NewKeys(prefix, queue string) Keys {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return Keys{prefix: prefix, queue: queue}
}

// formatKeyName joins key parts with the ':' separator.
func formatKeyName(parts ...string) string {
	return strings.Join(parts, ":")
}

// Queue is the list holding pending task envelopes.
func (k Keys) Queue() string {
	return formatKeyName(k.prefix, k.queue)
}

// Task is the hash holding a task's metadata.
func (k Keys) Task(id string) string {
	return formatKeyName(k.prefix, k.queue, id)
}

// Result is the list holding a task's result envelope.
func (k Keys) Result(id string) string {
	return formatKeyName(k.prefix, k.queue, id, "result")
}

// Worker is the heartbeat key of a worker.
func (k Keys) Worker(id string) string {
	return formatKeyName(k.prefix, k.queue, "worker", id)
}

// WorkerPattern matches every worker heartbeat key.
func (k Keys) WorkerPattern() string {
	return formatKeyName(escapePattern(k.prefix), escapePattern(k.queue), "worker", "*")
}

// Channel is a pub/sub channel inside the namespace.
func (k Keys) Channel(name string) string {
	return formatKeyName(k.prefix, k.queue, "channel", name)
}

// Events is the channel workers publish state changes on.
func (k Keys) Events() string {
	return k.Channel("events")
}

// NamespacePattern matches every key below the queue list, but not the list
// itself. It is exclusive to this queue only when names are free of ':'
// (see ValidateNamespace).
func (k Keys) NamespacePattern() string {
	return formatKeyName(escapePattern(k.prefix), escapePattern(k.queue), "*")
}

// escapePattern escapes glob metacharacters for SCAN MATCH.
func escapePattern(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
