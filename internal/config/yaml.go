package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// toJSON re-encodes a YAML config as JSON so Parse can run one strict
// decoder over both formats. Non-YAML files pass through untouched.
func toJSON(path string, raw []byte) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
	default:
		return raw, nil
	}
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("config: yaml: %w", err)
	}
	out, err := json.Marshal(stringKeys(doc))
	if err != nil {
		return nil, fmt.Errorf("config: yaml: %w", err)
	}
	return out, nil
}

// stringKeys rewrites yaml maps with non-string keys so the document
// survives json.Marshal.
func stringKeys(v any) any {
	switch doc := v.(type) {
	case map[string]any:
		for k, item := range doc {
			doc[k] = stringKeys(item)
		}
		return doc
	case map[any]any:
		out := make(map[string]any, len(doc))
		for k, item := range doc {
			out[fmt.Sprint(k)] = stringKeys(item)
		}
		return out
	case []any:
		for i, item := range doc {
			doc[i] = stringKeys(item)
		}
		return doc
	default:
		return v
	}
}
