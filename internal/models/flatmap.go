package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// FlatMap is a single-level string-keyed map. LLM output is not reliable about
// value types (numbers and booleans show up unquoted), so unmarshalling
// coerces every scalar to its string form. Nested objects and arrays are kept
// as their compact JSON encoding rather than rejected.
type FlatMap map[string]string

func (m *FlatMap) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(FlatMap, len(raw))
	for k, v := range raw {
		out[k] = coerceScalar(v)
	}
	*m = out
	return nil
}

func coerceScalar(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return strconv.FormatBool(b)
	}
	if string(raw) == "null" {
		return ""
	}
	return string(raw)
}

// String renders the map deterministically for logs.
func (m FlatMap) String() string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := ""
	for i, k := range keys {
		if i > 0 {
			out += " "
		}
		out += fmt.Sprintf("%s=%s", k, m[k])
	}
	return out
}
