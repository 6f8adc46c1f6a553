package scoring

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssessRisk_WorkedExample(t *testing.T) {
	a, err := AssessRisk(RiskAnswers{
		InvestmentExperience:         1,
		RiskCapacity:                 1,
		TimeHorizon:                  1,
		TechnicalKnowledge:           1,
		SecurityPriority:             5,
		LossTolerance:                1,
		DiversificationUnderstanding: 3,
		VolatilityComfort:            1,
	})
	require.NoError(t, err)

	assert.InDelta(t, 34.0, a.Score, 0.001)
	assert.Equal(t, RiskModerate, a.Category)
	assert.Equal(t, CapacityLow, a.FinancialCapacity)
	assert.InDelta(t, 6.0, a.LossAcceptance, 0.001)
	assert.Equal(t, "short", a.TimeHorizon)
	assert.Equal(t, ExperienceBeginner, a.ExperienceLevel)
	assert.Equal(t, 2, a.TechnicalKnowledge)
	assert.Equal(t, 10, a.SecurityConsciousness)
	assert.InDelta(t, 1.0, a.Confidence, 0.001)
	assert.Len(t, a.Factors, 8)
}

func TestAssessRisk_WeightsSumToOne(t *testing.T) {
	a, err := AssessRisk(RiskAnswers{3, 3, 3, 3, 3, 3, 3, 3})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, WeightsSum(a.Factors), 0.001)
	assert.InDelta(t, 60.0, a.Score, 0.001)
	assert.Equal(t, RiskBalanced, a.Category)
}

func TestAssessRisk_ScoreAlwaysInRange(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		answers := RiskAnswers{
			InvestmentExperience:         rng.Intn(5) + 1,
			RiskCapacity:                 rng.Intn(5) + 1,
			TimeHorizon:                  rng.Intn(5) + 1,
			TechnicalKnowledge:           rng.Intn(5) + 1,
			SecurityPriority:             rng.Intn(5) + 1,
			LossTolerance:                rng.Intn(5) + 1,
			DiversificationUnderstanding: rng.Intn(5) + 1,
			VolatilityComfort:            rng.Intn(5) + 1,
		}
		a, err := AssessRisk(answers)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, a.Score, 0.0)
		assert.LessOrEqual(t, a.Score, 100.0)
		assert.LessOrEqual(t, a.Confidence, 1.0)
		assert.GreaterOrEqual(t, a.Confidence, 0.5)
	}
}

func TestAssessRisk_RejectsOutOfRange(t *testing.T) {
	tests := []struct {
		name    string
		answers RiskAnswers
	}{
		{"zero", RiskAnswers{0, 3, 3, 3, 3, 3, 3, 3}},
		{"six", RiskAnswers{3, 3, 3, 3, 3, 3, 3, 6}},
		{"negative", RiskAnswers{3, 3, 3, -1, 3, 3, 3, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := AssessRisk(tt.answers)
			assert.Nil(t, a)
			assert.True(t, errors.Is(err, ErrInvalidAnswer))
		})
	}
}

func TestRiskCategoryFor(t *testing.T) {
	tests := []struct {
		score float64
		want  RiskCategory
	}{
		{0, RiskConservative},
		{20, RiskConservative},
		{20.01, RiskModerate},
		{40, RiskModerate},
		{60, RiskBalanced},
		{80, RiskGrowth},
		{80.5, RiskAggressive},
		{100, RiskAggressive},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RiskCategoryFor(tt.score), "score %v", tt.score)
	}
}

func TestAssessRisk_FinancialCapacity(t *testing.T) {
	tests := []struct {
		capacity, experience int
		want                 string
	}{
		{1, 2, CapacityLow},
		{2, 2, CapacityMedium},
		{3, 3, CapacityHigh},
		{4, 3, CapacityHigh},
		{4, 4, CapacityVeryHigh},
	}
	for _, tt := range tests {
		a, err := AssessRisk(RiskAnswers{
			InvestmentExperience: tt.experience, RiskCapacity: tt.capacity,
			TimeHorizon: 3, TechnicalKnowledge: 3, SecurityPriority: 3,
			LossTolerance: 3, DiversificationUnderstanding: 3, VolatilityComfort: 3,
		})
		require.NoError(t, err)
		assert.Equal(t, tt.want, a.FinancialCapacity)
	}
}

func TestAssessRisk_ContradictoryAnswersLowerConfidence(t *testing.T) {
	a, err := AssessRisk(RiskAnswers{
		InvestmentExperience: 5, RiskCapacity: 5, TimeHorizon: 3,
		TechnicalKnowledge: 1, SecurityPriority: 1, LossTolerance: 1,
		DiversificationUnderstanding: 3, VolatilityComfort: 3,
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, a.Confidence, 0.001)
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.0, Clamp(-4, 0, 100))
	assert.Equal(t, 100.0, Clamp(140, 0, 100))
	assert.Equal(t, 42.0, Clamp(42, 0, 100))
}
