// Package scoring turns behavior data into 0-100 scores. Every scorer
// combines a fixed table of weighted factors whose weights sum to 1.
package scoring

import (
	"errors"
	"math"
)

// ErrInsufficientData marks an input too sparse to score. Scorers handle it
// internally by returning neutral defaults; it never reaches a client.
var ErrInsufficientData = errors.New("scoring: insufficient data")

// Factor is one weighted component of a composite score.
type Factor struct {
	Name   string  `json:"factor"`
	Weight float64 `json:"weight"`
	Score  float64 `json:"score"`
}

// WeightedScore sums weight*score and clamps the result to [0,100].
func WeightedScore(factors []Factor) float64 {
	total := 0.0
	for _, f := range factors {
		total += f.Weight * f.Score
	}
	return Clamp(total, 0, 100)
}

// WeightsSum adds the factor weights.
func WeightsSum(factors []Factor) float64 {
	sum := 0.0
	for _, f := range factors {
		sum += f.Weight
	}
	return sum
}

// Clamp bounds v to [lo,hi]. NaN maps to lo.
func Clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
