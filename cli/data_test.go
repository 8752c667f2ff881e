package main

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	in := map[string]any{
		"int":   json.Number("12"),
		"float": json.Number("1.5"),
		"keys":  map[any]any{1: "one", true: "yes"},
		"list":  []any{uint64(3), uint64(math.MaxUint64), 4},
	}
	want := map[string]any{
		"int":   int64(12),
		"float": 1.5,
		"keys":  map[string]any{"1": "one", "true": "yes"},
		"list":  []any{int64(3), uint64(math.MaxUint64), int64(4)},
	}
	if diff := cmp.Diff(want, normalize(in)); diff != "" {
		t.Errorf("normalize mismatch (-want +got):\n%s", diff)
	}
}

func TestFormatFor(t *testing.T) {
	tests := []struct {
		path string
		want DataFormat
	}{
		{"a.json", FormatJSON},
		{"a.YAML", FormatYAML},
		{"a.yml", FormatYAML},
		{"a.cbor", FormatCBOR},
		{"-", FormatYAML},
	}
	for _, tt := range tests {
		got, err := formatFor(tt.path)
		assert.NoError(t, err, tt.path)
		assert.Equal(t, tt.want, got, tt.path)
	}

	_, err := formatFor("a.txt")
	assert.Error(t, err)
}
