package store

import "encoding/json"

// nullableJSON converts an empty/nil json.RawMessage into a real SQL
// NULL rather than an empty byte string, so JSONB columns that were
// never written read back as Go nil instead of an empty object.
func nullableJSON(b json.RawMessage) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}

func jsonUnmarshal(b []byte, v interface{}) error {
	return json.Unmarshal(b, v)
}
