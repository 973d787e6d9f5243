// internal/engine/engine.go
package engine

import (
	"time"
)

// Outcome is the full evaluation of one submission against the current
// problem: value, symbol cost, distance, optimality and score.
type Outcome struct {
	Expression string   `json:"expression"`
	Value      *float64 `json:"value"`
	Cost       int      `json:"cost"`
	Distance   *float64 `json:"distance"`
	IsOptimal  bool     `json:"is_optimal"`
	Score      int      `json:"score"`
	Summary    string   `json:"summary"`
}

// Engine evaluates and scores submissions. Costs default to ScoringCosts.
type Engine struct {
	costs map[rune]int
}

func NewEngine(costs map[rune]int) *Engine {
	if costs == nil {
		costs = ScoringCosts
	}
	return &Engine{costs: costs}
}

// Evaluate runs the full analyze -> score pipeline. The last evaluable line
// of the input is the one scored; a last line that cannot be reduced to a
// number still yields a zero-score Outcome rather than an error. The only
// failure is ErrEmptyExpression, when no line survives analysis at all.
// The time bonus is measured from now to the deadline, so callers with an
// injected clock pass it through.
func (e *Engine) Evaluate(expression string, targetNumber, optimalCost int, deadline *time.Time, now time.Time) (Outcome, error) {
	analysis := Analyze(expression, ModeCost, e.costs)
	if len(analysis.Results) == 0 {
		return Outcome{}, ErrEmptyExpression
	}

	last := analysis.Results[len(analysis.Results)-1]

	remaining := 0
	if deadline != nil {
		if secs := int(deadline.Sub(now).Seconds()); secs > 0 {
			remaining = secs
		}
	}

	bundle := ComputeScore(targetNumber, last.Value, analysis.TotalCost, optimalCost, remaining)
	return Outcome{
		Expression: expression,
		Value:      bundle.Value,
		Cost:       bundle.Cost,
		Distance:   bundle.Distance,
		IsOptimal:  bundle.IsOptimal,
		Score:      bundle.Score,
		Summary:    bundle.Message,
	}, nil
}
