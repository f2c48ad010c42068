package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type keySummary struct {
	ID         string `json:"id"`
	Permission string `json:"permission"`
}

func TestPrintJSON(t *testing.T) {
	data := keySummary{ID: "key_1", Permission: "write"}

	var buf bytes.Buffer
	err := PrintJSON(&buf, data)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"id": "key_1"`)
	assert.Contains(t, out, `"permission": "write"`)
	assert.True(t, bytes.HasSuffix(buf.Bytes(), []byte("\n")))
}

func TestPrintJSONArray(t *testing.T) {
	data := []keySummary{
		{ID: "key_1", Permission: "read"},
		{ID: "key_2", Permission: "append"},
	}

	var buf bytes.Buffer
	err := PrintJSON(&buf, data)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"id": "key_1"`)
	assert.Contains(t, out, `"id": "key_2"`)
}
