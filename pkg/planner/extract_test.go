package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name string `json:"name"`
}

func TestParseStructuredDirectJSON(t *testing.T) {
	var s sample
	require.NoError(t, ParseStructured(`{"name":"direct"}`, &s))
	assert.Equal(t, "direct", s.Name)
}

func TestParseStructuredFencedBlock(t *testing.T) {
	raw := "Here is the plan:\n```json\n{\"name\": \"fenced\"}\n```\nDone."
	var s sample
	require.NoError(t, ParseStructured(raw, &s))
	assert.Equal(t, "fenced", s.Name)
}

func TestParseStructuredLargestBraceFallback(t *testing.T) {
	raw := "## Plan\nHere is my reasoning in prose.\nResult: {\"name\": \"brace\"}"
	var s sample
	err := ParseStructured(raw, &s)
	require.NoError(t, err)
	assert.Equal(t, "brace", s.Name)
}

func TestParseStructuredFailsOnGarbage(t *testing.T) {
	var s sample
	err := ParseStructured("no json anywhere here", &s)
	assert.Error(t, err)
}
