package audit

import (
	"encoding/json"
	"strings"
)

// sensitiveKeyMarkers are substrings that, found case-insensitively in a
// JSON key, mark the value for redaction. This runs as a function over
// the decoded payload tree before a tool call is ever persisted — relying
// on callers to pre-strip secrets has proven brittle.
var sensitiveKeyMarkers = []string{
	"api_key", "api_secret", "private_key",
	"cb-access-key", "cb-access-sign", "authorization",
}

const redactedPlaceholder = "***REDACTED***"

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, marker := range sensitiveKeyMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// RedactJSON decodes a JSON payload, replaces any value whose key matches
// a sensitive marker with a fixed placeholder, and re-encodes it. Payloads
// that fail to decode as an object/array are returned unchanged — a
// malformed payload is a logging concern, not a reason to lose the event.
func RedactJSON(payload json.RawMessage) json.RawMessage {
	if len(payload) == 0 {
		return payload
	}
	var v interface{}
	if err := json.Unmarshal(payload, &v); err != nil {
		return payload
	}
	redacted := redactValue(v)
	out, err := json.Marshal(redacted)
	if err != nil {
		return payload
	}
	return out
}

func redactValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			if isSensitiveKey(k) {
				out[k] = redactedPlaceholder
				continue
			}
			out[k] = redactValue(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = redactValue(val)
		}
		return out
	default:
		return v
	}
}
