// internal/rating/rating.go
//
// Pairwise Elo update for head-to-head rooms. Ratings live on the users
// table as plain integers around a 1500 baseline; this package only
// computes deltas, persistence stays with the caller.
package rating

import "math"

const (
	// Baseline is the rating new accounts start at.
	Baseline = 1500
	// KFactor scales how much a single result moves a rating.
	KFactor = 32
)

// Expected is the probability that a player rated a beats a player rated b.
func Expected(a, b int) float64 {
	return 1.0 / (1.0 + math.Pow(10, float64(b-a)/400.0))
}

// Pair computes the rating deltas for a decided head-to-head result. The
// winner's delta is non-negative, the loser's non-positive, and they are
// exact negations of each other.
func Pair(winner, loser int) (winnerDelta, loserDelta int) {
	d := int(math.Round(KFactor * (1.0 - Expected(winner, loser))))
	return d, -d
}
