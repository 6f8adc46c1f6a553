// Package insights turns scoring output into short, time-boxed
// recommendations. Phrasing comes from a remote text advisor when it is
// reachable and from fixed templates otherwise.
package insights

import (
	"time"
)

// Type names the rule that produced an insight.
type Type string

const (
	TypeHighRiskBeginner  Type = "high_risk_beginner"
	TypeLowSecurity       Type = "low_security"
	TypeLowChainDiversity Type = "low_chain_diversity"
	TypeLowCompletion     Type = "low_completion"
	TypeBurstActivity     Type = "burst_activity"
	TypeDecliningChain    Type = "declining_chain"
)

// Impact is how much acting on an insight is expected to matter.
type Impact string

const (
	ImpactLow    Impact = "low"
	ImpactMedium Impact = "medium"
	ImpactHigh   Impact = "high"
)

// Source records who phrased the insight text.
const (
	SourceAdvisory = "advisory"
	SourceTemplate = "template"
)

// Insight is a stored recommendation. It is never listed after ValidUntil.
type Insight struct {
	ID             string         `json:"id"`
	UserID         string         `json:"user_id"`
	Type           Type           `json:"insight_type"`
	Title          string         `json:"title"`
	Description    string         `json:"description"`
	Confidence     float64        `json:"confidence_score"`
	Impact         Impact         `json:"impact_level"`
	Recommendation string         `json:"actionable_recommendation"`
	SupportingData map[string]any `json:"supporting_data"`
	Source         string         `json:"source"`
	Read           bool           `json:"read"`
	CreatedAt      time.Time      `json:"created_at"`
	ValidUntil     time.Time      `json:"valid_until"`
}

// Active reports whether the insight is still listable at now.
func (i *Insight) Active(now time.Time) bool {
	return now.Before(i.ValidUntil)
}

// Finding is a rule match before it is phrased.
type Finding struct {
	Type       Type
	Confidence float64
	Impact     Impact
	Validity   time.Duration
	Data       map[string]any
}

// Advice is the phrased text of one finding.
type Advice struct {
	Title          string `json:"title"`
	Description    string `json:"description"`
	Recommendation string `json:"recommendation"`
}
