package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenizeBasicComparison(t *testing.T) {
	toks, err := Tokenize(`color = "red"`)
	require.NoError(t, err)
	require.Len(t, toks, 4) // ident, eq, string, eof
	assert.Equal(t, TokIdent, toks[0].Kind)
	assert.Equal(t, "color", toks[0].Text)
	assert.Equal(t, TokEq, toks[1].Kind)
	assert.Equal(t, TokString, toks[2].Kind)
	assert.Equal(t, "red", toks[2].Text)
	assert.Equal(t, TokEOF, toks[3].Kind)
}

func TestTokenizeKeywordsCaseInsensitive(t *testing.T) {
	toks, err := Tokenize(`price between 1 and 5`)
	require.NoError(t, err)
	assert.Equal(t, TokBetween, toks[1].Kind)
	assert.Equal(t, TokAnd, toks[3].Kind)
}

func TestTokenizeOperators(t *testing.T) {
	cases := map[string]TokenKind{
		"=":  TokEq,
		"!=": TokNeq,
		"<":  TokLt,
		"<=": TokLte,
		">":  TokGt,
		">=": TokGte,
	}
	for lit, kind := range cases {
		toks, err := Tokenize("x " + lit + " 1")
		require.NoError(t, err)
		assert.Equal(t, kind, toks[1].Kind, "operator %q", lit)
	}
}

func TestTokenizeNegativeAndFloatNumbers(t *testing.T) {
	toks, err := Tokenize("x = -3.5")
	require.NoError(t, err)
	require.Equal(t, TokFloat, toks[2].Kind)
	assert.Equal(t, "-3.5", toks[2].Text)
}

func TestTokenizeUnterminatedStringErrors(t *testing.T) {
	_, err := Tokenize(`x = "unterminated`)
	require.Error(t, err)
	var syn *SyntaxError
	require.ErrorAs(t, err, &syn)
}

func TestTokenizeParensAndComma(t *testing.T) {
	toks, err := Tokenize(`x in (1, 2, 3)`)
	require.NoError(t, err)
	assert.Equal(t, TokLParen, toks[2].Kind)
	assert.Equal(t, TokComma, toks[4].Kind)
	assert.Equal(t, TokRParen, toks[8].Kind)
}
