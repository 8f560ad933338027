package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuoteIdentifier(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"Simple", "groups", `"groups"`},
		{"With Space", "my table", `"my table"`},
		{"Embedded Quote", `odd"name`, `"odd""name"`},
		{"Empty", "", `""`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, QuoteIdentifier(tc.input))
		})
	}
}

func TestUnquoteIdentifier(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"Double Quotes", `"groups"`, "groups"},
		{"Backticks", "`groups`", "groups"},
		{"Brackets", "[groups]", "groups"},
		{"Escaped Double Quote", `"odd""name"`, `odd"name`},
		{"Unquoted", "groups", "groups"},
		{"Mismatched", `"groups`, `"groups`},
		{"Too Short", `"`, `"`},
		{"Whitespace Around", `  "groups"  `, "groups"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, UnquoteIdentifier(tc.input))
		})
	}
}

func TestSQLLiteral(t *testing.T) {
	testCases := []struct {
		name     string
		input    interface{}
		expected string
	}{
		{"Nil", nil, "NULL"},
		{"Int64", int64(42), "42"},
		{"Negative Int64", int64(-7), "-7"},
		{"Int", 13, "13"},
		{"Bool True", true, "1"},
		{"Bool False", false, "0"},
		{"Float", 1.5, "1.5"},
		{"Float Integral", float64(3), "3"},
		{"String", "Alpha Edition", "'Alpha Edition'"},
		{"String With Quote", "Urza's Saga", "'Urza''s Saga'"},
		{"Empty String", "", "''"},
		{"Blob", []byte{0xde, 0xad}, "X'dead'"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, SQLLiteral(tc.input))
		})
	}
}
