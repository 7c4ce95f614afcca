package service

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/tutorhub-api/internal/models"
)

func ptr[T any](v T) *T { return &v }

func TestImprovement(t *testing.T) {
	assert.InDelta(t, 30.0, Improvement(6, 9, ptr(10.0)), 1e-9)
	assert.Equal(t, 100.0, Improvement(0, 5, nil))
	assert.Equal(t, 0.0, Improvement(0, 0, nil))
	assert.Equal(t, 0.0, Improvement(5, 5, nil))
	assert.InDelta(t, -50.0, Improvement(8, 4, nil), 1e-9)
	assert.InDelta(t, 25.0, Improvement(4, 5, ptr(0.0)), 1e-9)
	assert.InDelta(t, 25.0, Improvement(4, 5, ptr(math.Inf(1))), 1e-9)
}

func TestEvaluationImprovementRounds(t *testing.T) {
	assert.Nil(t, EvaluationImprovement(&models.Evaluation{PreTestScore: ptr(3.0)}))

	got := EvaluationImprovement(&models.Evaluation{PreTestScore: ptr(3.0), PostTestScore: ptr(4.0)})
	if assert.NotNil(t, got) {
		assert.Equal(t, 33.33, *got)
	}
}

func TestAverageImprovement(t *testing.T) {
	avg, n := AverageImprovement([]models.ScoreSample{
		{PreTestScore: 6, PostTestScore: 9, PreTestTotal: ptr(10.0)},
		{PreTestScore: 0, PostTestScore: 5},
	})
	assert.Equal(t, 2, n)
	assert.Equal(t, 65.0, avg)

	avg, n = AverageImprovement(nil)
	assert.Zero(t, avg)
	assert.Zero(t, n)
}
