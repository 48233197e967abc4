package scheme

import (
	"encoding/json"
	"strconv"

	"github.com/expr-lang/expr"
)

// extractProperty evaluates a property path expression against a response
// payload. Paths are expr expressions over the payload map, so both plain
// keys ("access_token") and nested paths ("data.session.token") work.
// Returns false when the path is empty, fails to evaluate, or resolves
// to nothing.
func extractProperty(payload map[string]interface{}, path string) (interface{}, bool) {
	if path == "" || payload == nil {
		return nil, false
	}

	program, err := expr.Compile(path)
	if err != nil {
		return nil, false
	}

	output, err := expr.Run(program, payload)
	if err != nil || output == nil {
		return nil, false
	}

	return output, true
}

// extractString extracts a non-empty string at the given property path.
func extractString(payload map[string]interface{}, path string) (string, bool) {
	value, ok := extractProperty(payload, path)
	if !ok {
		return "", false
	}

	s, ok := value.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// extractInt64 extracts an integer at the given property path, accepting
// the numeric shapes a decoded JSON payload can carry.
func extractInt64(payload map[string]interface{}, path string) (int64, bool) {
	value, ok := extractProperty(payload, path)
	if !ok {
		return 0, false
	}

	switch v := value.(type) {
	case float64:
		return int64(v), true
	case int:
		return int64(v), true
	case int64:
		return v, true
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, false
		}
		return n, true
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}
