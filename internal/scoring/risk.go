package scoring

import (
	"errors"
	"fmt"
)

// ErrInvalidAnswer is returned for assessment answers outside 1..5.
var ErrInvalidAnswer = errors.New("scoring: assessment answer out of range")

// RiskCategory buckets the final risk tolerance score.
type RiskCategory string

const (
	RiskConservative RiskCategory = "conservative"
	RiskModerate     RiskCategory = "moderate"
	RiskBalanced     RiskCategory = "balanced"
	RiskGrowth       RiskCategory = "growth"
	RiskAggressive   RiskCategory = "aggressive"
)

// Financial capacity levels.
const (
	CapacityLow      = "low"
	CapacityMedium   = "medium"
	CapacityHigh     = "high"
	CapacityVeryHigh = "very_high"
)

// Experience levels.
const (
	ExperienceBeginner     = "beginner"
	ExperienceIntermediate = "intermediate"
	ExperienceAdvanced     = "advanced"
	ExperienceExpert       = "expert"
)

// RiskAnswers is the eight-question assessment, each answered 1..5.
type RiskAnswers struct {
	InvestmentExperience         int `json:"investment_experience"`
	RiskCapacity                 int `json:"risk_capacity"`
	TimeHorizon                  int `json:"time_horizon"`
	TechnicalKnowledge           int `json:"technical_knowledge"`
	SecurityPriority             int `json:"security_priority"`
	LossTolerance                int `json:"loss_tolerance"`
	DiversificationUnderstanding int `json:"diversification_understanding"`
	VolatilityComfort            int `json:"volatility_comfort"`
}

// RiskWeights are the per-question weights, in question order.
var RiskWeights = []struct {
	Name   string
	Weight float64
}{
	{"investment_experience", 0.15},
	{"risk_capacity", 0.20},
	{"time_horizon", 0.15},
	{"technical_knowledge", 0.10},
	{"security_priority", 0.15},
	{"loss_tolerance", 0.15},
	{"diversification_understanding", 0.05},
	{"volatility_comfort", 0.05},
}

func (a RiskAnswers) values() []int {
	return []int{
		a.InvestmentExperience,
		a.RiskCapacity,
		a.TimeHorizon,
		a.TechnicalKnowledge,
		a.SecurityPriority,
		a.LossTolerance,
		a.DiversificationUnderstanding,
		a.VolatilityComfort,
	}
}

// Validate checks every answer is in 1..5.
func (a RiskAnswers) Validate() error {
	for i, v := range a.values() {
		if v < 1 || v > 5 {
			return fmt.Errorf("%w: %s=%d", ErrInvalidAnswer, RiskWeights[i].Name, v)
		}
	}
	return nil
}

// RiskAssessment is the scored result of a risk questionnaire.
type RiskAssessment struct {
	Score                 float64      `json:"risk_tolerance_score"`
	Category              RiskCategory `json:"risk_category"`
	FinancialCapacity     string       `json:"financial_capacity"`
	LossAcceptance        float64      `json:"loss_acceptance"`
	TimeHorizon           string       `json:"time_horizon"`
	ExperienceLevel       string       `json:"experience_level"`
	TechnicalKnowledge    int          `json:"technical_knowledge"`
	SecurityConsciousness int          `json:"security_consciousness"`
	Factors               []Factor     `json:"risk_factors"`
	Confidence            float64      `json:"confidence_score"`
}

// AssessRisk scores a questionnaire. Each answer is rescaled to 0-100
// before weighting.
func AssessRisk(a RiskAnswers) (*RiskAssessment, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}

	values := a.values()
	factors := make([]Factor, len(values))
	for i, v := range values {
		factors[i] = Factor{
			Name:   RiskWeights[i].Name,
			Weight: RiskWeights[i].Weight,
			Score:  float64(v) / 5 * 100,
		}
	}

	score := round2(WeightedScore(factors))
	return &RiskAssessment{
		Score:                 score,
		Category:              RiskCategoryFor(score),
		FinancialCapacity:     financialCapacity(a),
		LossAcceptance:        round2(float64(a.LossTolerance)/5*20 + float64(a.RiskCapacity)/5*10),
		TimeHorizon:           timeHorizon(a.TimeHorizon),
		ExperienceLevel:       experienceLevel(a.InvestmentExperience),
		TechnicalKnowledge:    a.TechnicalKnowledge * 2,
		SecurityConsciousness: a.SecurityPriority * 2,
		Factors:               factors,
		Confidence:            assessmentConfidence(a),
	}, nil
}

// RiskCategoryFor maps a 0-100 score to a category.
func RiskCategoryFor(score float64) RiskCategory {
	switch {
	case score <= 20:
		return RiskConservative
	case score <= 40:
		return RiskModerate
	case score <= 60:
		return RiskBalanced
	case score <= 80:
		return RiskGrowth
	default:
		return RiskAggressive
	}
}

func financialCapacity(a RiskAnswers) string {
	avg := float64(a.RiskCapacity+a.InvestmentExperience) / 2
	switch {
	case avg < 2:
		return CapacityLow
	case avg < 3:
		return CapacityMedium
	case avg < 4:
		return CapacityHigh
	default:
		return CapacityVeryHigh
	}
}

func timeHorizon(v int) string {
	switch {
	case v <= 2:
		return "short"
	case v == 3:
		return "medium"
	default:
		return "long"
	}
}

func experienceLevel(v int) string {
	switch {
	case v <= 2:
		return ExperienceBeginner
	case v == 3:
		return ExperienceIntermediate
	case v == 4:
		return ExperienceAdvanced
	default:
		return ExperienceExpert
	}
}

// assessmentConfidence rewards internally consistent answers.
func assessmentConfidence(a RiskAnswers) float64 {
	c := 0.5
	if abs(a.InvestmentExperience-a.TechnicalKnowledge) <= 1 {
		c += 0.2
	}
	if abs(a.RiskCapacity-a.LossTolerance) <= 1 {
		c += 0.2
	}
	if a.SecurityPriority >= 4 {
		c += 0.1
	}
	if c > 1 {
		c = 1
	}
	return round2(c)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
