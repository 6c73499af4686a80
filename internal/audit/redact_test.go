package audit

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedactJSONStripsSensitiveKeys(t *testing.T) {
	in := json.RawMessage(`{
		"CB-ACCESS-KEY": "abc123",
		"CB-ACCESS-SIGN": "def456",
		"Authorization": "Bearer xyz",
		"nested": {"api_secret": "shh", "product_id": "BTC-USD"},
		"list": [{"private_key": "pk"}, {"value": 1}]
	}`)

	out := RedactJSON(in)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &decoded))

	assert.Equal(t, redactedPlaceholder, decoded["CB-ACCESS-KEY"])
	assert.Equal(t, redactedPlaceholder, decoded["CB-ACCESS-SIGN"])
	assert.Equal(t, redactedPlaceholder, decoded["Authorization"])

	nested := decoded["nested"].(map[string]interface{})
	assert.Equal(t, redactedPlaceholder, nested["api_secret"])
	assert.Equal(t, "BTC-USD", nested["product_id"])

	list := decoded["list"].([]interface{})
	first := list[0].(map[string]interface{})
	assert.Equal(t, redactedPlaceholder, first["private_key"])
}

func TestRedactJSONPassesThroughMalformed(t *testing.T) {
	in := json.RawMessage(`not json`)
	out := RedactJSON(in)
	assert.Equal(t, in, out)
}

func TestRedactJSONEmptyPayload(t *testing.T) {
	assert.Nil(t, []byte(RedactJSON(nil)))
}
