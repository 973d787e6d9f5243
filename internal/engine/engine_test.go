// internal/engine/engine_test.go
package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateScoresLastLine(t *testing.T) {
	e := NewEngine(nil)

	// Scratch lines above the final answer are priced but not scored.
	out, err := e.Evaluate("1+1\n1+1+1", 3, 5, nil, time.Now())
	require.NoError(t, err)
	require.NotNil(t, out.Value)
	assert.Equal(t, 3.0, *out.Value)
	require.NotNil(t, out.Distance)
	assert.Zero(t, *out.Distance)
	assert.Equal(t, 8, out.Cost, "both lines count toward cost")
	assert.Equal(t, MessageExactMatch, out.Summary)
}

func TestEvaluateMalformedLastLineScoresZero(t *testing.T) {
	e := NewEngine(nil)

	out, err := e.Evaluate("1+", 3, 5, nil, time.Now())
	require.NoError(t, err)
	assert.Nil(t, out.Value)
	assert.Nil(t, out.Distance)
	assert.Zero(t, out.Score)
	assert.Equal(t, MessageNoResult, out.Summary)
}

func TestEvaluateEmptyInputFails(t *testing.T) {
	e := NewEngine(nil)
	_, err := e.Evaluate("  \n\n ", 3, 5, nil, time.Now())
	assert.ErrorIs(t, err, ErrEmptyExpression)
}

func TestEvaluateDeadlineBonus(t *testing.T) {
	e := NewEngine(nil)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// The bonus is computed against the supplied clock, not the wall clock.
	future := now.Add(100 * time.Second)
	withBonus, err := e.Evaluate("1+1+1", 3, 5, &future, now)
	require.NoError(t, err)
	assert.Equal(t, 1170, withBonus.Score, "100 seconds left pays a 20 point bonus")

	past := now.Add(-time.Minute)
	expired, err := e.Evaluate("1+1+1", 3, 5, &past, now)
	require.NoError(t, err)
	assert.Equal(t, 1150, expired.Score, "a lapsed deadline contributes no bonus")
}
