package parse

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseTableName(t *testing.T) {
	testCases := []struct {
		name     string
		raw      string
		expected TableName
	}{
		{name: "Short prefix", raw: "T3", expected: TableName{Area: "", Number: 3}},
		{name: "Word prefix", raw: "Table 12", expected: TableName{Area: "", Number: 12}},
		{name: "Prefix with hash", raw: "Table #7", expected: TableName{Area: "", Number: 7}},
		{name: "Area with dash", raw: "Patio-2", expected: TableName{Area: "patio", Number: 2}},
		{name: "Area with hash", raw: "VIP #1", expected: TableName{Area: "vip", Number: 1}},
		{name: "Extra spaces", raw: "  Roof   Top  4 ", expected: TableName{Area: "roof top", Number: 4}},
		{name: "No number", raw: "Bar", expected: TableName{Area: "bar", Number: 0}},
		{name: "Bare number", raw: "15", expected: TableName{Area: "", Number: 15}},
		{name: "Empty", raw: "", expected: TableName{}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, ParseTableName(tc.raw))
		})
	}
}

func TestLess_NaturalOrder(t *testing.T) {
	names := []string{"T10", "Patio-1", "T2", "Table 1", "Bar"}
	sort.Slice(names, func(i, j int) bool { return Less(names[i], names[j]) })

	assert.Equal(t, []string{"Table 1", "T2", "T10", "Bar", "Patio-1"}, names)
}
