package insights

import (
	"time"

	"github.com/FairForge/dropsense/internal/scoring"
)

const day = 24 * time.Hour

// Rule thresholds.
const (
	HighRiskScore       = 60
	SecurityFloor       = 5
	MinChainDiversity   = 3
	CompletionRateFloor = 50
)

// Input is the scoring output the rules run over. Any field may be absent.
type Input struct {
	Risk     *scoring.RiskAssessment
	Chains   []scoring.ChainScore
	Activity *scoring.ActivityScore
}

// Evaluate applies every rule and returns the matches in a fixed order.
func Evaluate(in Input) []Finding {
	var out []Finding

	if r := in.Risk; r != nil {
		if r.Score > HighRiskScore && r.ExperienceLevel == scoring.ExperienceBeginner {
			out = append(out, Finding{
				Type:       TypeHighRiskBeginner,
				Confidence: r.Confidence,
				Impact:     ImpactHigh,
				Validity:   14 * day,
				Data: map[string]any{
					"risk_score":       r.Score,
					"risk_category":    string(r.Category),
					"experience_level": r.ExperienceLevel,
				},
			})
		}
		if r.SecurityConsciousness < SecurityFloor {
			out = append(out, Finding{
				Type:       TypeLowSecurity,
				Confidence: r.Confidence,
				Impact:     ImpactHigh,
				Validity:   7 * day,
				Data: map[string]any{
					"security_consciousness": r.SecurityConsciousness,
				},
			})
		}
	}

	if n := len(in.Chains); n > 0 && n < MinChainDiversity {
		names := make([]string, n)
		for i, c := range in.Chains {
			names[i] = c.Chain
		}
		out = append(out, Finding{
			Type:       TypeLowChainDiversity,
			Confidence: 0.7,
			Impact:     ImpactMedium,
			Validity:   30 * day,
			Data: map[string]any{
				"chain_count": n,
				"chains":      names,
			},
		})
	}

	if a := in.Activity; a != nil && !a.Default {
		if a.Productivity.TrackedTasks > 0 && a.Productivity.CompletionRate < CompletionRateFloor {
			out = append(out, Finding{
				Type:       TypeLowCompletion,
				Confidence: 0.75,
				Impact:     ImpactMedium,
				Validity:   14 * day,
				Data: map[string]any{
					"completion_rate": a.Productivity.CompletionRate,
					"tracked_tasks":   a.Productivity.TrackedTasks,
				},
			})
		}
		if a.Burst {
			out = append(out, Finding{
				Type:       TypeBurstActivity,
				Confidence: 0.65,
				Impact:     ImpactLow,
				Validity:   7 * day,
				Data: map[string]any{
					"consistency_score": a.ConsistencyScore,
					"active_days":       a.ActiveDays,
				},
			})
		}
	}

	if len(in.Chains) > 0 && in.Chains[0].Trend == scoring.TrendDecreasing {
		top := in.Chains[0]
		out = append(out, Finding{
			Type:       TypeDecliningChain,
			Confidence: 0.6,
			Impact:     ImpactLow,
			Validity:   30 * day,
			Data: map[string]any{
				"chain":            top.Chain,
				"preference_score": top.Score,
			},
		})
	}
	return out
}
