package internal

import (
	"reflect"
	"testing"
)

func TestGetSortedCountsForProperty(t *testing.T) {
	tests := []struct {
		name     string
		input    map[string]int
		expected []PropertyCountTuple
	}{
		{
			name:     "empty map",
			input:    map[string]int{},
			expected: []PropertyCountTuple{},
		},
		{
			name:     "single item",
			input:    map[string]int{"data-loss": 1},
			expected: []PropertyCountTuple{{Property: "data-loss", Count: 1}},
		},
		{
			name:  "multiple items",
			input: map[string]int{"proximity-alert": 3, "system-error": 1, "collision-warning": 2},
			expected: []PropertyCountTuple{
				{Property: "system-error", Count: 1},
				{Property: "collision-warning", Count: 2},
				{Property: "proximity-alert", Count: 3},
			},
		},
		{
			name:  "items with same count are ordered by name",
			input: map[string]int{"c": 2, "b": 1, "a": 1},
			expected: []PropertyCountTuple{
				{Property: "a", Count: 1},
				{Property: "b", Count: 1},
				{Property: "c", Count: 2},
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := GetSortedCountsForProperty(test.input)
			if !reflect.DeepEqual(got, test.expected) {
				t.Errorf("GetSortedCountsForProperty() = %v, want %v", got, test.expected)
			}
		})
	}
}
