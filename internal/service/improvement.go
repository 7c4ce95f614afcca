package service

import (
	"math"

	"github.com/noah-isme/tutorhub-api/internal/models"
)

// Improvement returns the percentage gain from pre to post. A finite positive preTotal is used as
// the denominator; otherwise pre is, and a zero pre yields 100 when post is positive and 0 if not.
func Improvement(pre, post float64, preTotal *float64) float64 {
	diff := post - pre
	if preTotal != nil && *preTotal > 0 && !math.IsInf(*preTotal, 0) && !math.IsNaN(*preTotal) {
		return diff / *preTotal * 100
	}
	if pre == 0 {
		if post > 0 {
			return 100
		}
		return 0
	}
	return diff / pre * 100
}

// RoundPercent rounds to two decimals for display.
func RoundPercent(v float64) float64 {
	return math.Round(v*100) / 100
}

// EvaluationImprovement computes the rounded improvement of an evaluation, or nil without scores.
func EvaluationImprovement(e *models.Evaluation) *float64 {
	if !e.HasScores() {
		return nil
	}
	v := RoundPercent(Improvement(*e.PreTestScore, *e.PostTestScore, e.PreTestTotal))
	return &v
}

// AverageImprovement averages the improvement of every sample with both scores.
func AverageImprovement(samples []models.ScoreSample) (float64, int) {
	if len(samples) == 0 {
		return 0, 0
	}
	var sum float64
	for _, s := range samples {
		sum += Improvement(s.PreTestScore, s.PostTestScore, s.PreTestTotal)
	}
	return RoundPercent(sum / float64(len(samples))), len(samples)
}
