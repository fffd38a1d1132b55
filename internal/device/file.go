package device

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"insightd/internal/common/fsutil"
)

// FileCollector reads a snapshot written by a platform companion (a mobile
// app, a Windows service) as JSON or YAML. Nested objects are flattened into
// dotted paths, so {"battery":{"level":42}} becomes "battery.level".
//
//	collected_at: 2024-05-01T10:00:00Z   # optional, file mtime otherwise
//	battery:
//	  level: 42
//	  charging: false
type FileCollector struct {
	path   string
	source string
}

// NewFileCollector returns a collector for path. A leading ~ is expanded.
func NewFileCollector(source, path string) (*FileCollector, error) {
	p, err := fsutil.ExpandHome(path)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(p) == "" {
		return nil, fmt.Errorf("snapshot file path is empty")
	}
	return &FileCollector{path: p, source: source}, nil
}

// Path returns the expanded file path.
func (f *FileCollector) Path() string { return f.path }

// Collect implements Collector.
func (f *FileCollector) Collect(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	fi, err := os.Stat(f.path)
	if err != nil {
		return Snapshot{}, err
	}
	b, err := os.ReadFile(f.path)
	if err != nil {
		return Snapshot{}, err
	}
	raw := map[string]any{}
	switch ext := strings.ToLower(filepath.Ext(f.path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &raw); err != nil {
			return Snapshot{}, fmt.Errorf("decode %s: %w", f.path, err)
		}
	case ".json":
		if err := json.Unmarshal(b, &raw); err != nil {
			return Snapshot{}, fmt.Errorf("decode %s: %w", f.path, err)
		}
	default:
		return Snapshot{}, fmt.Errorf("unsupported snapshot extension: %s", ext)
	}

	at := fi.ModTime()
	if v, ok := raw["collected_at"]; ok {
		switch t := v.(type) {
		case string:
			if parsed, err := time.Parse(time.RFC3339, t); err == nil {
				at = parsed
			}
		case time.Time:
			at = t
		}
		delete(raw, "collected_at")
	}
	fields := make(map[string]any)
	flatten("", raw, fields)
	if len(fields) == 0 {
		return Snapshot{}, fmt.Errorf("snapshot file %s has no fields", f.path)
	}
	return NewSnapshot(f.source, at, fields), nil
}

func flatten(prefix string, in map[string]any, out map[string]any) {
	for k, v := range in {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(map[string]any); ok {
			flatten(key, nested, out)
			continue
		}
		out[key] = v
	}
}
