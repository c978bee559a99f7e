package internal

import (
	"cmp"
	"slices"
)

// PropertyCountTuple pairs a property, e.g. an alert category, with how often it was counted.
type PropertyCountTuple struct {
	Property string
	Count    int
}

// GetSortedCountsForProperty flattens a count map into tuples sorted by increasing count.
// Ties are broken by property name so the output is stable between summaries.
func GetSortedCountsForProperty(propertyCountMap map[string]int) []PropertyCountTuple {
	propertyCounts := make([]PropertyCountTuple, 0, len(propertyCountMap))
	for key, value := range propertyCountMap {
		propertyCounts = append(propertyCounts, PropertyCountTuple{Property: key, Count: value})
	}

	slices.SortFunc(propertyCounts, func(a, b PropertyCountTuple) int {
		if c := cmp.Compare(a.Count, b.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Property, b.Property)
	})
	return propertyCounts
}
