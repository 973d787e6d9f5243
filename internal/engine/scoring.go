// internal/engine/scoring.go
package engine

import "math"

// ScoringCosts is the flat price table the match engine scores against.
// Unlike DefaultCosts it does not surcharge multiplication, so submitted
// cost compares 1:1 against a problem's optimal cost.
var ScoringCosts = map[rune]int{'1': 1, '+': 1, '*': 1, '(': 1, ')': 1}

// Score messages; stable machine strings, not prose.
const (
	MessageNoResult    = "no_result"
	MessageExactMatch  = "exact_match"
	MessageApproximate = "approximate"
)

// SubmissionScore bundles everything scoring derives from one submission.
type SubmissionScore struct {
	Value     *float64 `json:"value"`
	Cost      int      `json:"cost"`
	Distance  *float64 `json:"distance"`
	IsOptimal bool     `json:"is_optimal"`
	Score     int      `json:"score"`
	Message   string   `json:"message"`
}

// ComputeScore maps (target, result, cost, optimal cost, remaining seconds)
// to a score. It is pure: identical inputs always produce identical output.
//
// A nil result scores zero. Otherwise the base of 1000 is reduced by 50 per
// unit of distance to the target and 25 per unit of cost above optimal,
// raised by one point per 5 remaining seconds, floored at zero, and granted
// a 150 point bonus when the hit is exact within the optimal budget.
func ComputeScore(targetNumber int, resultValue *float64, totalCost, optimalCost, remainingSeconds int) SubmissionScore {
	if resultValue == nil {
		return SubmissionScore{
			Value:     nil,
			Cost:      totalCost,
			Distance:  nil,
			IsOptimal: false,
			Score:     0,
			Message:   MessageNoResult,
		}
	}

	distance := math.Abs(float64(targetNumber) - *resultValue)
	costGap := totalCost - optimalCost
	if costGap < 0 {
		costGap = 0
	}

	penalty := distance*50 + float64(costGap)*25
	timeBonus := 0
	if remainingSeconds > 0 {
		timeBonus = remainingSeconds / 5
	}
	raw := int(1000 - penalty + float64(timeBonus))
	if raw < 0 {
		raw = 0
	}

	isOptimal := distance == 0 && totalCost <= optimalCost
	if isOptimal {
		raw += 150
	}

	message := MessageApproximate
	if distance == 0 {
		message = MessageExactMatch
	}

	return SubmissionScore{
		Value:     resultValue,
		Cost:      totalCost,
		Distance:  &distance,
		IsOptimal: isOptimal,
		Score:     raw,
		Message:   message,
	}
}
