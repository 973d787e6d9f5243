// internal/engine/scoring_test.go
package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f64(v float64) *float64 { return &v }

func TestComputeScoreExactOptimal(t *testing.T) {
	got := ComputeScore(5, f64(5), 5, 5, 0)
	require.NotNil(t, got.Distance)
	assert.Zero(t, *got.Distance)
	assert.True(t, got.IsOptimal)
	assert.Equal(t, 1150, got.Score)
	assert.Equal(t, MessageExactMatch, got.Message)
}

func TestComputeScoreApproximate(t *testing.T) {
	// distance 2 and cost 2 over optimal: 1000 - 100 - 50.
	got := ComputeScore(7, f64(5), 9, 7, 0)
	require.NotNil(t, got.Distance)
	assert.Equal(t, 2.0, *got.Distance)
	assert.False(t, got.IsOptimal)
	assert.Equal(t, 850, got.Score)
	assert.Equal(t, MessageApproximate, got.Message)
}

func TestComputeScoreExactOverBudget(t *testing.T) {
	// Exact hit over the optimal cost budget: no bonus, still exact_match.
	got := ComputeScore(5, f64(5), 7, 5, 0)
	assert.False(t, got.IsOptimal)
	assert.Equal(t, 950, got.Score)
	assert.Equal(t, MessageExactMatch, got.Message)
}

func TestComputeScoreNoResult(t *testing.T) {
	got := ComputeScore(5, nil, 4, 5, 60)
	assert.Nil(t, got.Value)
	assert.Nil(t, got.Distance)
	assert.False(t, got.IsOptimal)
	assert.Zero(t, got.Score)
	assert.Equal(t, MessageNoResult, got.Message)
}

func TestComputeScoreTimeBonus(t *testing.T) {
	// One point per 5 remaining seconds, truncated.
	got := ComputeScore(5, f64(5), 5, 5, 27)
	assert.Equal(t, 1155, got.Score)

	negative := ComputeScore(5, f64(5), 5, 5, -10)
	assert.Equal(t, 1150, negative.Score)
}

func TestComputeScoreFloorsAtZero(t *testing.T) {
	got := ComputeScore(1000, f64(1), 5, 5, 0)
	assert.Zero(t, got.Score)
	assert.Equal(t, MessageApproximate, got.Message)
}

func TestComputeScoreUnderBudgetCostGapClamped(t *testing.T) {
	// Beating the optimal cost never adds penalty beyond the bonus rule.
	got := ComputeScore(5, f64(5), 3, 5, 0)
	assert.True(t, got.IsOptimal)
	assert.Equal(t, 1150, got.Score)
}

func TestComputeScoreDeterministic(t *testing.T) {
	a := ComputeScore(11, f64(9), 6, 4, 42)
	b := ComputeScore(11, f64(9), 6, 4, 42)
	assert.Equal(t, a, b)
}
