// internal/engine/calculator_test.go
package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateBasicArithmetic(t *testing.T) {
	cases := []struct {
		expr string
		want float64
	}{
		{"1", 1},
		{"1+1", 2},
		{"1+1*1", 2},
		{"(1+1)*1", 2},
		{"11", 11},
		{"11*11", 121},
		{"111+1", 112},
		{"(1+1)*(1+1)", 4},
		{"(1+1)*(1+1)*(1+1)", 8},
		{" 1 + 1 ", 2},
	}
	for _, tc := range cases {
		got, err := Calculate(tc.expr, ModeNormal)
		require.NoError(t, err, "expr %q", tc.expr)
		assert.Equal(t, tc.want, got, "expr %q", tc.expr)
	}
}

func TestCalculateClassifiedFailures(t *testing.T) {
	cases := []struct {
		expr string
		want error
	}{
		{"", ErrEmptyExpression},
		{"   ", ErrEmptyExpression},
		{"1+", ErrIncompleteExpression},
		{"+1", ErrIncompleteExpression},
		{"1*", ErrIncompleteExpression},
		{"1++1", ErrIncompleteExpression},
		{"1**1", ErrIncompleteExpression},
		{"(+1)", ErrIncompleteExpression},
		{"(1+)", ErrIncompleteExpression},
		{"()", ErrIncompleteExpression},
		{"(())", ErrIncompleteExpression},
		{"1+()", ErrIncompleteExpression},
		{"(1+1", ErrIncompleteExpression},
		{"2", ErrDisallowedSymbol},
		{"1-1", ErrDisallowedSymbol},
		{"1/1", ErrDisallowedSymbol},
		{"1(1)", ErrMalformedExpression},
		{"(1)(1)", ErrMalformedExpression},
		{"(1)1", ErrMalformedExpression},
	}
	for _, tc := range cases {
		_, err := Calculate(tc.expr, ModeNormal)
		assert.ErrorIs(t, err, tc.want, "expr %q", tc.expr)
	}
}

func TestPreprocessComboRelaxesAdjacency(t *testing.T) {
	// Combo mode is display-only, so implied multiplication survives
	// preprocessing even though it can never evaluate.
	cleaned, err := Preprocess("1(1)", ModeCombo)
	require.NoError(t, err)
	assert.Equal(t, "1(1)", cleaned)

	_, err = Preprocess("1(1)", ModeNormal)
	assert.ErrorIs(t, err, ErrMalformedExpression)
}

func TestPreprocessUnknownMode(t *testing.T) {
	_, err := Preprocess("1+1", Mode("bogus"))
	assert.ErrorIs(t, err, ErrUnknownMode)
}

func TestAnalyzeCostPricing(t *testing.T) {
	cases := []struct {
		text string
		want int
	}{
		{"111", 3},
		{"1 1 1", 3},
		{"1+1", 3},
		{"1*1", 4}, // DefaultCosts surcharge '*' at 2
		{"(1+1)", 5},
		{"11*11", 6}, // the "11" runs price at 2x1 each
	}
	for _, tc := range cases {
		a := Analyze(tc.text, ModeCost, DefaultCosts)
		assert.Equal(t, tc.want, a.TotalCost, "text %q", tc.text)
	}
}

func TestAnalyzeFlatCostsMatchOptimalScale(t *testing.T) {
	a := Analyze("1*1", ModeCost, ScoringCosts)
	assert.Equal(t, 3, a.TotalCost)
}

func TestAnalyzeMultiLine(t *testing.T) {
	a := Analyze("1+1\n\n  \n11*11\n1+", ModeCost, DefaultCosts)
	require.Len(t, a.Results, 3, "blank lines are skipped")

	require.NotNil(t, a.Results[0].Value)
	assert.Equal(t, 2.0, *a.Results[0].Value)

	require.NotNil(t, a.Results[1].Value)
	assert.Equal(t, 121.0, *a.Results[1].Value)

	assert.Nil(t, a.Results[2].Value)
	assert.Equal(t, "incomplete_expression", a.Results[2].Code)

	// 3 + 6 + 2; the broken line is still priced.
	assert.Equal(t, 11, a.TotalCost)
}

func TestAnalyzeCharCountMode(t *testing.T) {
	a := Analyze("1+1 x", ModeNormal, nil)
	require.Len(t, a.Results, 1)
	// Only whitelisted symbols count; the line itself fails on 'x'.
	assert.Equal(t, 3, a.CharCount)
	assert.Equal(t, "disallowed_symbol", a.Results[0].Code)
}

func TestAnalyzeEmptyInput(t *testing.T) {
	a := Analyze("", ModeCost, nil)
	assert.Empty(t, a.Results)
	assert.Zero(t, a.TotalCost)
}
