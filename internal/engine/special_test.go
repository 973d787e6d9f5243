// internal/engine/special_test.go
package engine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateSpecialExpression(t *testing.T) {
	cases := []struct {
		expr string
		want int64
	}{
		{"1", 1},
		{"11", 11},
		{"1+1", 2},
		{"1-1", 0},
		{"-1", -1},
		{"--1", 1},
		{"11*11", 121},
		{"11**(1+1)", 121},
		{"(1+1)**(1+1+1)", 8},
		{"11**(1+1)-11", 110},
		{"-11**(1+1)", -121},
		{"1-11*11", -120},
		{"(11-1)*(11-1)", 100},
	}
	for _, tc := range cases {
		got, err := EvaluateSpecialExpression(tc.expr)
		require.NoError(t, err, "expr %q", tc.expr)
		assert.Equal(t, tc.want, got, "expr %q", tc.expr)
	}
}

func TestEvaluateSpecialBounds(t *testing.T) {
	cases := []struct {
		expr string
		code string
	}{
		{"11**-1", "negative_exponent"},
		{"11**(11-1-1)", "exponent_too_large"}, // exponent 9 > 8
		{"1111111**(1+1)", "base_too_large"},
		{"111111**(1+1+1+1)", "value_out_of_range"},
	}
	for _, tc := range cases {
		_, err := EvaluateSpecialExpression(tc.expr)
		se, ok := AsSpecialError(err)
		require.True(t, ok, "expr %q: want classified error, got %v", tc.expr, err)
		assert.Equal(t, tc.code, se.Code, "expr %q", tc.expr)
	}
}

func TestEvaluateSpecialIncomplete(t *testing.T) {
	for _, expr := range []string{"1+", "(1+1", "1**", "()", "*1", "1)1"} {
		_, err := EvaluateSpecialExpression(expr)
		se, ok := AsSpecialError(err)
		require.True(t, ok, "expr %q", expr)
		assert.Equal(t, "incomplete_expression", se.Code, "expr %q", expr)
	}
}

func TestNormalizeSpecialExpression(t *testing.T) {
	got, err := NormalizeSpecialExpression(" 1 + 1\n* 1 ")
	require.NoError(t, err)
	assert.Equal(t, "1+1*1", got)

	_, err = NormalizeSpecialExpression("1/1")
	se, ok := AsSpecialError(err)
	require.True(t, ok)
	assert.Equal(t, "disallowed_symbol", se.Code)

	_, err = NormalizeSpecialExpression("   ")
	se, ok = AsSpecialError(err)
	require.True(t, ok)
	assert.Equal(t, "empty_expression", se.Code)

	_, err = NormalizeSpecialExpression(strings.Repeat("1", MaxSpecialLength+1))
	se, ok = AsSpecialError(err)
	require.True(t, ok)
	assert.Equal(t, "expression_too_long", se.Code)
}

func TestCountSymbolUsage(t *testing.T) {
	cases := []struct {
		expr string
		want int
	}{
		{"1", 1},
		{"11", 2},
		{"1+1", 3},
		{"11**(1+1)", 8}, // "**" is one token
		{"-1*1", 4},
	}
	for _, tc := range cases {
		got, err := CountSymbolUsage(tc.expr)
		require.NoError(t, err, "expr %q", tc.expr)
		assert.Equal(t, tc.want, got, "expr %q", tc.expr)
	}
}
