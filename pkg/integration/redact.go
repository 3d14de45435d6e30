package integration

import (
	"strings"

	"github.com/goccy/go-json"
)

const redactedValue = "***"

var sensitiveKeys = []string{"token", "secret", "password", "apikey", "api_key", "apilogin", "phone", "email"}

// Redact returns a copy of a JSON document with sensitive values masked.
// Non-JSON input is truncated and returned as a JSON string.
func Redact(raw []byte) json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		quoted, _ := json.Marshal(truncate(string(raw), 512))
		return quoted
	}
	out, err := json.Marshal(redactValue(doc))
	if err != nil {
		return nil
	}
	return out
}

func redactValue(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		for key, inner := range typed {
			if isSensitive(key) {
				typed[key] = redactedValue
				continue
			}
			typed[key] = redactValue(inner)
		}
		return typed
	case []any:
		for i, inner := range typed {
			typed[i] = redactValue(inner)
		}
		return typed
	default:
		return v
	}
}

func isSensitive(key string) bool {
	lower := strings.ToLower(key)
	for _, candidate := range sensitiveKeys {
		if strings.Contains(lower, candidate) {
			return true
		}
	}
	return false
}
