package filter

import (
	"math"
	"testing"

	"github.com/edgevec/edgevec/pkg/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateCompareEquality(t *testing.T) {
	rec := metadata.Record{"color": metadata.String("red")}
	expr, err := Parse(`color = "red"`)
	require.NoError(t, err)
	assert.True(t, Evaluate(expr, rec))

	expr, err = Parse(`color = "blue"`)
	require.NoError(t, err)
	assert.False(t, Evaluate(expr, rec))
}

func TestEvaluateMissingFieldIsFalse(t *testing.T) {
	rec := metadata.Record{}
	expr, err := Parse(`color = "red"`)
	require.NoError(t, err)
	assert.False(t, Evaluate(expr, rec))
}

func TestEvaluateNumericCrossTypeEquality(t *testing.T) {
	rec := metadata.Record{"price": metadata.Integer(5)}
	expr, err := Parse(`price = 5.0`)
	require.NoError(t, err)
	assert.True(t, Evaluate(expr, rec))
}

func TestEvaluateFloatEpsilon(t *testing.T) {
	rec := metadata.Record{"score": metadata.Float(0.1 + 0.2)}
	expr, err := Parse(`score = 0.3`)
	require.NoError(t, err)
	assert.True(t, Evaluate(expr, rec))
}

func TestEvaluateNaNNeverEqual(t *testing.T) {
	rec := metadata.Record{"score": metadata.Float(math.NaN())}
	assert.False(t, valuesEqual(rec["score"], metadata.Float(math.NaN())))
}

func TestEvaluateTypeMismatchIsSoftFailure(t *testing.T) {
	rec := metadata.Record{"color": metadata.String("red")}
	expr, err := Parse(`color > 5`)
	require.NoError(t, err)
	assert.False(t, Evaluate(expr, rec))
}

func TestEvaluateAndOr(t *testing.T) {
	rec := metadata.Record{"a": metadata.Integer(1), "b": metadata.Integer(2)}
	expr, err := Parse(`a = 1 AND b = 2`)
	require.NoError(t, err)
	assert.True(t, Evaluate(expr, rec))

	expr, err = Parse(`a = 1 AND b = 99`)
	require.NoError(t, err)
	assert.False(t, Evaluate(expr, rec))

	expr, err = Parse(`a = 99 OR b = 2`)
	require.NoError(t, err)
	assert.True(t, Evaluate(expr, rec))
}

func TestEvaluateNot(t *testing.T) {
	rec := metadata.Record{"active": metadata.Boolean(false)}
	expr, err := Parse(`NOT active = TRUE`)
	require.NoError(t, err)
	assert.True(t, Evaluate(expr, rec))
}

func TestEvaluateInSet(t *testing.T) {
	rec := metadata.Record{"color": metadata.String("blue")}
	expr, err := Parse(`color IN ("red", "blue", "green")`)
	require.NoError(t, err)
	assert.True(t, Evaluate(expr, rec))

	rec["color"] = metadata.String("purple")
	assert.False(t, Evaluate(expr, rec))
}

func TestEvaluateArrayAny(t *testing.T) {
	rec := metadata.Record{"tags": metadata.StringArray([]string{"sale", "clearance"})}
	expr, err := Parse(`tags ANY ("new", "sale")`)
	require.NoError(t, err)
	assert.True(t, Evaluate(expr, rec))

	rec["tags"] = metadata.StringArray([]string{"full-price"})
	assert.False(t, Evaluate(expr, rec))
}

func TestEvaluateArrayAnyWrongKindIsFalse(t *testing.T) {
	rec := metadata.Record{"tags": metadata.String("sale")}
	expr, err := Parse(`tags ANY ("sale")`)
	require.NoError(t, err)
	assert.False(t, Evaluate(expr, rec))
}

func TestEvaluateBetweenInclusive(t *testing.T) {
	rec := metadata.Record{"price": metadata.Integer(5)}
	expr, err := Parse(`price BETWEEN 5 AND 10`)
	require.NoError(t, err)
	assert.True(t, Evaluate(expr, rec))

	rec["price"] = metadata.Integer(10)
	assert.True(t, Evaluate(expr, rec))

	rec["price"] = metadata.Integer(11)
	assert.False(t, Evaluate(expr, rec))
}

func TestEvaluateIsNull(t *testing.T) {
	rec := metadata.Record{"color": metadata.String("red")}
	expr, err := Parse(`description IS NULL`)
	require.NoError(t, err)
	assert.True(t, Evaluate(expr, rec))

	expr, err = Parse(`color IS NOT NULL`)
	require.NoError(t, err)
	assert.True(t, Evaluate(expr, rec))
}
