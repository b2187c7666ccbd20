package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlatMapCoercesScalars(t *testing.T) {
	var m FlatMap
	raw := `{
		"parking": "2 spots",
		"indexation_percent": 3.5,
		"floors": 2,
		"renewable": true,
		"notes": null,
		"contacts": {"name": "A. Landlord"}
	}`
	require.NoError(t, json.Unmarshal([]byte(raw), &m))

	assert.Equal(t, "2 spots", m["parking"])
	assert.Equal(t, "3.5", m["indexation_percent"])
	assert.Equal(t, "2", m["floors"])
	assert.Equal(t, "true", m["renewable"])
	assert.Equal(t, "", m["notes"])
	assert.JSONEq(t, `{"name": "A. Landlord"}`, m["contacts"])
}

func TestFlatMapRejectsNonObject(t *testing.T) {
	var m FlatMap
	assert.Error(t, json.Unmarshal([]byte(`["a","b"]`), &m))
}

func TestFlatMapStringDeterministic(t *testing.T) {
	m := FlatMap{"b": "2", "a": "1"}
	assert.Equal(t, "a=1 b=2", m.String())
}
