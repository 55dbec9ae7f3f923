package anthropic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeJSON_Plain(t *testing.T) {
	var out map[string]string
	err := DecodeJSON(`{"category": "invoice"}`, &out)
	require.NoError(t, err)
	assert.Equal(t, "invoice", out["category"])
}

func TestDecodeJSON_Fenced(t *testing.T) {
	text := "```json\n{\"category\": \"contract\"}\n```"
	var out map[string]string
	err := DecodeJSON(text, &out)
	require.NoError(t, err)
	assert.Equal(t, "contract", out["category"])
}

func TestDecodeJSON_SurroundingProse(t *testing.T) {
	text := `Here is the result you asked for: {"total": 42} — let me know.`
	var out map[string]int
	err := DecodeJSON(text, &out)
	require.NoError(t, err)
	assert.Equal(t, 42, out["total"])
}

func TestDecodeJSON_Array(t *testing.T) {
	var out []int
	err := DecodeJSON("[1, 2, 3]", &out)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, out)
}

func TestDecodeJSON_NestedBraces(t *testing.T) {
	text := `{"outer": {"inner": "has } in a string"}}`
	var out map[string]any
	err := DecodeJSON(text, &out)
	require.NoError(t, err)
	inner, ok := out["outer"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "has } in a string", inner["inner"])
}

func TestDecodeJSON_NoPayload(t *testing.T) {
	var out map[string]any
	err := DecodeJSON("no structured data here", &out)
	assert.Error(t, err)
}
