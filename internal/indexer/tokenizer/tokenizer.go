// Package tokenizer provides text tokenisation for the indexer.
// It lower-cases input, splits on non-alphanumeric boundaries, removes
// stop-words, and applies a simple suffix-based stemmer. Attribute values
// taken from decoded documents are flattened into text by TokenizeValue.
package tokenizer

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode"
)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "has": {}, "he": {},
	"in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {},
	"or": {}, "that": {}, "the": {}, "to": {}, "was": {}, "were": {},
	"will": {}, "with": {}, "this": {}, "but": {}, "they": {},
	"have": {}, "had": {}, "what": {}, "when": {}, "where": {},
	"who": {}, "which": {}, "their": {}, "if": {}, "each": {},
	"do": {}, "not": {}, "no": {}, "so": {}, "can": {},
}

// Token represents a single normalised term and its position in the
// original text.
type Token struct {
	Term     string
	Position int
}

// Tokenize breaks text into a slice of stemmed, lowercased Tokens with
// stop-words removed.
func Tokenize(text string) []Token {
	return appendTokens(nil, text, 0)
}

// Normalize returns the indexed form of a single word, or "" when the word
// is not indexed at all.
func Normalize(word string) string {
	tokens := Tokenize(word)
	if len(tokens) == 0 {
		return ""
	}
	return tokens[0].Term
}

// ArrayGap separates the positions of consecutive array elements so that
// phrase-like proximity never spans two elements.
const ArrayGap = 8

// TokenizeValue tokenizes an attribute value as produced by a JSON or CSV
// decoder: strings, numbers, booleans, arrays and nested objects. Positions
// keep increasing across array elements and object members.
func TokenizeValue(v any) []Token {
	tokens, _ := appendValue(nil, v, 0)
	return tokens
}

func appendValue(dst []Token, v any, pos int) ([]Token, int) {
	switch x := v.(type) {
	case nil:
		return dst, pos
	case string:
		before := len(dst)
		dst = appendTokens(dst, x, pos)
		if len(dst) > before {
			pos = dst[len(dst)-1].Position + 1
		}
		return dst, pos
	case json.Number:
		return append(dst, Token{Term: x.String(), Position: pos}), pos + 1
	case bool, float64, int, int64, uint64:
		return append(dst, Token{Term: fmt.Sprint(x), Position: pos}), pos + 1
	case []any:
		for _, elem := range x {
			dst, pos = appendValue(dst, elem, pos)
			pos += ArrayGap
		}
		return dst, pos
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			dst, pos = appendValue(dst, x[k], pos)
			pos += ArrayGap
		}
		return dst, pos
	default:
		return appendValue(dst, fmt.Sprint(x), pos)
	}
}

func appendTokens(tokens []Token, text string, pos int) []Token {
	text = strings.ToLower(text)
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if tokens == nil {
		tokens = make([]Token, 0, len(words)/2)
	}
	for _, word := range words {
		if len(word) < 2 {
			continue
		}
		if _, isStop := stopWords[word]; isStop {
			continue
		}
		stemmed := stem(word)
		if stemmed == "" {
			continue
		}
		tokens = append(tokens, Token{
			Term:     stemmed,
			Position: pos,
		})
		pos++
	}
	return tokens
}

// stem applies a simple suffix-stripping stemmer to the given word.
func stem(word string) string {
	suffixes := []struct {
		suffix      string
		replacement string
		minLen      int
	}{
		{"ational", "ate", 2},
		{"tional", "tion", 2},
		{"encies", "ence", 2},
		{"ances", "ance", 2},
		{"ments", "ment", 2},
		{"izing", "ize", 2},
		{"ating", "ate", 2},
		{"iness", "y", 2},
		{"ously", "ous", 2},
		{"ively", "ive", 2},
		{"eness", "ene", 2},
		{"ments", "ment", 2},
		{"tion", "t", 3},
		{"sion", "s", 3},
		{"ying", "y", 2},
		{"ling", "l", 3},
		{"ies", "y", 2},
		{"ing", "", 3},
		{"ers", "er", 2},
		{"est", "", 3},
		{"ful", "", 3},
		{"ous", "", 3},
		{"ess", "", 3},
		{"ble", "", 3},
		{"ed", "", 3},
		{"er", "", 3},
		{"ly", "", 3},
		{"es", "", 3},
		{"ss", "ss", 2},
		{"s", "", 3},
	}
	for _, rule := range suffixes {
		if strings.HasSuffix(word, rule.suffix) {
			newWord := word[:len(word)-len(rule.suffix)] + rule.replacement
			if len(newWord) >= rule.minLen {
				return newWord
			}
		}
	}
	return word
}
