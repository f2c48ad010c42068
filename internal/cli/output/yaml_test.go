package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintYAML(t *testing.T) {
	data := struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name"`
	}{
		ID:   "ws_1",
		Name: "alpha",
	}

	var buf bytes.Buffer
	err := PrintYAML(&buf, data)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "id: ws_1")
	assert.Contains(t, out, "name: alpha")
}

func TestPrintYAMLArray(t *testing.T) {
	data := []struct {
		ID string `yaml:"id"`
	}{
		{ID: "ws_1"},
		{ID: "ws_2"},
	}

	var buf bytes.Buffer
	err := PrintYAML(&buf, data)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "- id: ws_1")
	assert.Contains(t, out, "- id: ws_2")
}
