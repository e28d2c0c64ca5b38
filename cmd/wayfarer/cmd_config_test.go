package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriteValuesFiltersSection(t *testing.T) {
	values := map[string]any{
		"llm.model":      "gpt-4o",
		"llm.fast_model": "gpt-4o-mini",
		"llmx.other":     1,
		"log_level":      "info",
	}

	var buf bytes.Buffer
	n := writeValues(&buf, values, "llm")
	assert.Equal(t, 2, n)
	assert.Equal(t, "llm.fast_model = gpt-4o-mini\nllm.model = gpt-4o\n", buf.String())

	buf.Reset()
	assert.Equal(t, 4, writeValues(&buf, values, ""))
	assert.Equal(t, 1, writeValues(&buf, values, "log_level"))
	assert.Zero(t, writeValues(&buf, values, "youtube"))
}
