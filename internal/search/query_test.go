package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompile(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{name: "empty", query: "", want: ""},
		{name: "whitespace", query: "   \t", want: ""},
		{name: "single term", query: "kalman", want: `"kalman"`},
		{name: "implicit and", query: "kalman filter", want: `"kalman" "filter"`},
		{name: "phrase", query: `"moving average"`, want: `"moving average"`},
		{name: "phrase and term", query: `"moving average" crossover`, want: `"moving average" "crossover"`},
		{name: "boolean", query: "pandas OR polars", want: `"pandas" OR "polars"`},
		{name: "not", query: "async NOT python", want: `"async" NOT "python"`},
		{name: "prefix", query: "optim*", want: `"optim"*`},
		{name: "lowercase operators are terms", query: "cats and dogs", want: `"cats" "and" "dogs"`},
		{name: "leading operator dropped", query: "OR foo", want: `"foo"`},
		{name: "leading not drops its operand", query: "NOT deprecated", want: ""},
		{name: "leading not keeps the rest", query: "NOT deprecated install", want: `"install"`},
		{name: "leading not with phrase", query: `NOT "old api" guide`, want: `"guide"`},
		{name: "trailing operator dropped", query: "foo AND", want: `"foo"`},
		{name: "operator run collapses", query: "foo AND OR bar", want: `"foo" OR "bar"`},
		{name: "fts syntax degrades", query: "col:foo (bar) ^baz", want: `"col" "foo" "bar" "baz"`},
		{name: "unterminated quote", query: `"moving average`, want: `"moving average"`},
		{name: "empty phrase", query: `"" foo`, want: `"foo"`},
		{name: "hyphenated", query: "event-driven", want: `"event" "driven"`},
		{name: "only punctuation", query: "*** ()", want: ""},
		{name: "unicode", query: "café", want: `"café"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Compile(tt.query))
		})
	}
}
