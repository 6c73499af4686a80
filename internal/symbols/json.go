package symbols

import (
	"encoding/json"
	"fmt"
	"time"
)

// SafeJSON marshals domain values the way the rest of the pipeline expects
// to read them back: time.Time as RFC3339, anything implementing
// fmt.Stringer (enums, typed IDs) as its string form, and everything else
// through the standard encoder. It never panics — an unmarshalable value
// degrades to its %v representation rather than failing the caller, since
// artifact/tool-call writes must never be the reason a node or audit entry
// is lost.
func SafeJSON(v interface{}) json.RawMessage {
	b, err := json.Marshal(normalize(v))
	if err != nil {
		b, _ = json.Marshal(fmt.Sprintf("%v", v))
	}
	return b
}

func normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	default:
		return v
	}
}
