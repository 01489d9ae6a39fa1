package main

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTickMessageCarriesZeroRemaining(t *testing.T) {
	raw, err := json.Marshal(outboundMsg{Type: "tick", Remaining: 0})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Contains(t, decoded, "remaining")
	assert.EqualValues(t, 0, decoded["remaining"])
}
