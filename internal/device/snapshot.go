// Package device defines device snapshots and the collectors that produce them.
package device

import (
	"sort"
	"strings"
	"time"
)

// DefaultSource is the cache key and source name of the primary collector.
const DefaultSource = "default"

// Snapshot is an immutable, timestamped set of device metrics keyed by dotted
// field path (e.g. "battery.level", "memory.used_percent").
type Snapshot struct {
	fields      map[string]any
	collectedAt time.Time
	source      string
}

// NewSnapshot copies fields so later mutation of the caller's map has no effect.
func NewSnapshot(source string, collectedAt time.Time, fields map[string]any) Snapshot {
	cp := make(map[string]any, len(fields))
	for k, v := range fields {
		cp[k] = v
	}
	if source == "" {
		source = DefaultSource
	}
	return Snapshot{fields: cp, collectedAt: collectedAt, source: source}
}

// CollectedAt reports when the snapshot was taken.
func (s Snapshot) CollectedAt() time.Time { return s.collectedAt }

// Source is the name of the collector that produced the snapshot.
func (s Snapshot) Source() string { return s.source }

// Len is the number of fields.
func (s Snapshot) Len() int { return len(s.fields) }

// IsZero reports whether the snapshot was never populated.
func (s Snapshot) IsZero() bool { return s.fields == nil && s.collectedAt.IsZero() }

// Get returns a single field.
func (s Snapshot) Get(path string) (any, bool) {
	v, ok := s.fields[path]
	return v, ok
}

// Fields returns a copy of all fields.
func (s Snapshot) Fields() map[string]any {
	out := make(map[string]any, len(s.fields))
	for k, v := range s.fields {
		out[k] = v
	}
	return out
}

// WithPrefixes returns the fields whose path starts with any of the prefixes.
func (s Snapshot) WithPrefixes(prefixes ...string) map[string]any {
	out := make(map[string]any)
	for k, v := range s.fields {
		for _, p := range prefixes {
			if strings.HasPrefix(k, p) {
				out[k] = v
				break
			}
		}
	}
	return out
}

// Paths returns the field paths in sorted order.
func (s Snapshot) Paths() []string {
	out := make([]string, 0, len(s.fields))
	for k := range s.fields {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Float reads a numeric field regardless of its concrete numeric type.
func (s Snapshot) Float(path string) (float64, bool) {
	return AsFloat(s.fields[path])
}

// Bool reads a boolean field.
func (s Snapshot) Bool(path string) (bool, bool) {
	b, ok := s.fields[path].(bool)
	return b, ok
}

// AsFloat converts the numeric types a collector or a decoded file may produce.
func AsFloat(v any) (float64, bool) {
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
	case uint32:
		return float64(n), true
	case uint:
		return float64(n), true
	default:
		return 0, false
	}
}
