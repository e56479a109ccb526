package game

import "math"

const (
	basePoints = 1000
	// minSpeedFraction floors the reward so a late but correct answer still
	// earns half the base points.
	minSpeedFraction = 0.5
)

// Score computes the points earned for one submission. Incorrect or missing
// answers earn zero. Correct answers decay linearly with elapsed time down to
// half the base. elapsedMs is clamped to [0, limitSeconds*1000] before the
// formula applies; late submissions are rejected by the session before they
// ever reach scoring.
func Score(correct bool, elapsedMs int64, limitSeconds int) int {
	if !correct || limitSeconds <= 0 {
		return 0
	}
	limitMs := int64(limitSeconds) * 1000
	if elapsedMs < 0 {
		elapsedMs = 0
	}
	if elapsedMs > limitMs {
		elapsedMs = limitMs
	}
	fraction := 1 - float64(elapsedMs)/float64(limitMs)
	if fraction < minSpeedFraction {
		fraction = minSpeedFraction
	}
	return int(math.Round(basePoints * fraction))
}
