package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

// LoadValues reads a flat key/value file. Nested tables are flattened into
// dotted keys and scalars are rendered as strings, so
//
//	[db]
//	port = 5432
//
// yields {"db.port": "5432"}.
func LoadValues(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading values file %s: %w", path, err)
	}
	return ParseValues(path, data)
}

// ParseValues decodes data using the format implied by path's extension.
func ParseValues(path string, data []byte) (map[string]string, error) {
	var raw map[string]any
	if err := decode(path, data, &raw); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(raw))
	flatten("", raw, out)
	return out, nil
}

func flatten(prefix string, in map[string]any, out map[string]string) {
	for k, v := range in {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]any:
			flatten(key, val, out)
		case []any:
			parts := make([]string, len(val))
			for i, item := range val {
				parts[i] = scalar(item)
			}
			out[key] = strings.Join(parts, ",")
		default:
			out[key] = scalar(val)
		}
	}
}

func scalar(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + "=" + scalar(val[k])
		}
		return "{" + strings.Join(parts, ",") + "}"
	default:
		return fmt.Sprint(val)
	}
}
