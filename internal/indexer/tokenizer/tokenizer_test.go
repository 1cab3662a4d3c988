package tokenizer

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func terms(tokens []Token) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = t.Term
	}
	return out
}

func TestTokenize_StopWordsAndStemming(t *testing.T) {
	tokens := Tokenize("The Running of the Indexes")
	assert.Equal(t, []string{"runn", "index"}, terms(tokens))
	assert.Equal(t, 0, tokens[0].Position)
	assert.Equal(t, 1, tokens[1].Position)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "index", Normalize("Indexes"))
	assert.Equal(t, "", Normalize("the"))
	assert.Equal(t, "", Normalize("a"))
}

func TestTokenizeValue_Scalars(t *testing.T) {
	assert.Equal(t, []string{"42"}, terms(TokenizeValue(json.Number("42"))))
	assert.Equal(t, []string{"true"}, terms(TokenizeValue(true)))
	assert.Empty(t, TokenizeValue(nil))
}

func TestTokenizeValue_ArrayGap(t *testing.T) {
	tokens := TokenizeValue([]any{"quick fox", "lazy dog"})
	assert.Equal(t, []string{"quick", "fox", "lazy", "dog"}, terms(tokens))
	assert.Equal(t, []int{0, 1, 2 + ArrayGap, 3 + ArrayGap}, []int{
		tokens[0].Position, tokens[1].Position, tokens[2].Position, tokens[3].Position,
	})
}

func TestTokenizeValue_ObjectKeysSorted(t *testing.T) {
	tokens := TokenizeValue(map[string]any{"b": "second", "a": "first"})
	assert.Equal(t, []string{"first", "second"}, terms(tokens))
}
