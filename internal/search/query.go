// Package search compiles user queries into FTS5 expressions and runs them
// against the content store with bounded, deterministic results.
package search

import (
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokTerm tokenKind = iota
	tokPrefix
	tokPhrase
	tokOperator
)

type token struct {
	kind tokenKind
	text string
}

// Compile translates a user query into an FTS5 MATCH expression.
//
// Supported syntax: "quoted phrases", AND / OR / NOT between terms, and
// term* prefixes. Everything else degrades to quoted plain terms, so the
// result is always a valid expression. An empty result means there is
// nothing to search for.
func Compile(query string) string {
	tokens := tokenize(query)
	tokens = normalizeOperators(tokens)

	parts := make([]string, 0, len(tokens))
	for _, t := range tokens {
		switch t.kind {
		case tokOperator:
			parts = append(parts, t.text)
		case tokPhrase, tokTerm:
			parts = append(parts, quote(t.text))
		case tokPrefix:
			parts = append(parts, quote(t.text)+"*")
		}
	}
	return strings.Join(parts, " ")
}

func tokenize(query string) []token {
	var tokens []token
	rest := strings.TrimSpace(query)

	for rest != "" {
		if rest[0] == '"' {
			end := strings.IndexByte(rest[1:], '"')
			var body string
			if end < 0 {
				body, rest = rest[1:], ""
			} else {
				body, rest = rest[1:end+1], rest[end+2:]
			}
			if words := words(body); len(words) > 0 {
				tokens = append(tokens, token{kind: tokPhrase, text: strings.Join(words, " ")})
			}
			rest = strings.TrimLeftFunc(rest, unicode.IsSpace)
			continue
		}

		end := strings.IndexFunc(rest, func(r rune) bool { return unicode.IsSpace(r) || r == '"' })
		var field string
		if end < 0 {
			field, rest = rest, ""
		} else {
			field, rest = rest[:end], rest[end:]
		}
		rest = strings.TrimLeftFunc(rest, unicode.IsSpace)
		tokens = append(tokens, classify(field)...)
	}
	return tokens
}

func classify(field string) []token {
	switch field {
	case "AND", "OR", "NOT":
		return []token{{kind: tokOperator, text: field}}
	}

	prefix := strings.HasSuffix(field, "*")
	ws := words(field)
	if len(ws) == 0 {
		return nil
	}
	out := make([]token, 0, len(ws))
	for i, w := range ws {
		kind := tokTerm
		if prefix && i == len(ws)-1 {
			kind = tokPrefix
		}
		out = append(out, token{kind: kind, text: w})
	}
	return out
}

// words splits s into runs of letters, digits and underscores. Anything
// else, FTS5 syntax included, is a separator.
func words(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_')
	})
}

// normalizeOperators drops operators that do not sit between two operands
// and collapses runs of operators to the last one. A leading NOT has nothing
// to subtract from, so the operand it negates is dropped with it.
func normalizeOperators(tokens []token) []token {
	out := make([]token, 0, len(tokens))
	negated := false
	for _, t := range tokens {
		if t.kind != tokOperator {
			if negated {
				negated = false
				continue
			}
			out = append(out, t)
			continue
		}
		if len(out) == 0 {
			negated = t.text == "NOT"
			continue
		}
		if out[len(out)-1].kind == tokOperator {
			out[len(out)-1] = t
			continue
		}
		out = append(out, t)
	}
	for len(out) > 0 && out[len(out)-1].kind == tokOperator {
		out = out[:len(out)-1]
	}
	return out
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
