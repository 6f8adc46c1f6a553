package scoring

import (
	"math"
	"sort"
	"time"

	"github.com/FairForge/dropsense/internal/patterns"
)

// Trend describes whether use of a chain is growing.
type Trend string

const (
	TrendIncreasing Trend = "increasing"
	TrendDecreasing Trend = "decreasing"
	TrendStable     Trend = "stable"
)

// Chain factor weights.
const (
	WeightUsage          = 0.30
	WeightSuccess        = 0.25
	WeightGasEfficiency  = 0.20
	WeightCharacteristic = 0.15
	WeightRecency        = 0.10
)

// DefaultTrendWindow is the width of one trend bucket.
const DefaultTrendWindow = 7 * 24 * time.Hour

// ChainCharacteristics describes a chain independently of any user.
type ChainCharacteristics struct {
	Difficulty int     `json:"difficulty"` // 1 (easy) .. 10 (hard)
	AvgGasCost float64 `json:"avg_gas_cost"`
	Novelty    float64 `json:"novelty"` // 0 (established) .. 1 (new)
}

// Catalog maps lower-case chain names to their characteristics.
type Catalog map[string]ChainCharacteristics

// DefaultCatalog returns the built-in chain table.
func DefaultCatalog() Catalog {
	return Catalog{
		"ethereum":  {Difficulty: 6, AvgGasCost: 80, Novelty: 0.1},
		"polygon":   {Difficulty: 3, AvgGasCost: 5, Novelty: 0.3},
		"arbitrum":  {Difficulty: 5, AvgGasCost: 15, Novelty: 0.5},
		"optimism":  {Difficulty: 5, AvgGasCost: 15, Novelty: 0.5},
		"base":      {Difficulty: 3, AvgGasCost: 8, Novelty: 0.6},
		"bsc":       {Difficulty: 2, AvgGasCost: 6, Novelty: 0.2},
		"avalanche": {Difficulty: 4, AvgGasCost: 20, Novelty: 0.4},
		"solana":    {Difficulty: 5, AvgGasCost: 2, Novelty: 0.5},
		"zksync":    {Difficulty: 7, AvgGasCost: 20, Novelty: 0.8},
		"starknet":  {Difficulty: 8, AvgGasCost: 25, Novelty: 0.9},
		"scroll":    {Difficulty: 7, AvgGasCost: 18, Novelty: 0.9},
	}
}

// RiskContext is the slice of the risk profile the chain heuristic needs.
type RiskContext struct {
	RiskScore          float64 // 0-100
	FinancialCapacity  string
	TechnicalKnowledge int // 1-10
}

// NeutralRiskContext is used before the user has taken an assessment.
func NeutralRiskContext() RiskContext {
	return RiskContext{
		RiskScore:          patterns.NeutralRiskBaseline * 100,
		FinancialCapacity:  CapacityMedium,
		TechnicalKnowledge: 5,
	}
}

// RiskContextFrom extracts the chain-relevant fields of an assessment.
func RiskContextFrom(a *RiskAssessment) RiskContext {
	if a == nil {
		return NeutralRiskContext()
	}
	return RiskContext{
		RiskScore:          a.Score,
		FinancialCapacity:  a.FinancialCapacity,
		TechnicalKnowledge: a.TechnicalKnowledge,
	}
}

// ChainScore is the preference result for one chain.
type ChainScore struct {
	Chain         string    `json:"chain"`
	Score         float64   `json:"preference_score"`
	UsageCount    int       `json:"usage_frequency"`
	Successes     int       `json:"successes"`
	TotalGasSpent float64   `json:"total_gas_spent"`
	SuccessRate   float64   `json:"success_rate"`
	AvgGasCost    float64   `json:"avg_gas_cost"`
	LastUsedAt    time.Time `json:"last_used_at"`
	Factors       []Factor  `json:"preference_factors"`
	Trend         Trend     `json:"trend"`
}

// ChainScorer ranks the chains a user has interacted with.
type ChainScorer struct {
	Catalog     Catalog
	TrendWindow time.Duration
}

// NewChainScorer returns a scorer over catalog. A nil catalog uses the
// built-in one; a non-positive window uses DefaultTrendWindow.
func NewChainScorer(catalog Catalog, trendWindow time.Duration) *ChainScorer {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	if trendWindow <= 0 {
		trendWindow = DefaultTrendWindow
	}
	return &ChainScorer{Catalog: catalog, TrendWindow: trendWindow}
}

// Score returns one entry per chain with at least one interaction, best
// first. Chains with no signal are omitted rather than scored zero.
func (s *ChainScorer) Score(interactions []patterns.ChainInteraction, rc RiskContext, now time.Time) []ChainScore {
	if len(interactions) == 0 {
		return nil
	}

	byChain := make(map[string][]patterns.ChainInteraction)
	for _, in := range interactions {
		byChain[in.Chain] = append(byChain[in.Chain], in)
	}

	out := make([]ChainScore, 0, len(byChain))
	for chain, list := range byChain {
		out = append(out, s.scoreChain(chain, list, rc, now))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Chain < out[j].Chain
	})
	return out
}

func (s *ChainScorer) scoreChain(chain string, list []patterns.ChainInteraction, rc RiskContext, now time.Time) ChainScore {
	cs := ChainScore{Chain: chain, UsageCount: len(list)}
	for _, in := range list {
		if in.Success {
			cs.Successes++
		}
		cs.TotalGasSpent += in.GasSpent
		if in.Timestamp.After(cs.LastUsedAt) {
			cs.LastUsedAt = in.Timestamp
		}
	}
	cs.SuccessRate = round2(float64(cs.Successes) / float64(cs.UsageCount))
	cs.AvgGasCost = round2(cs.TotalGasSpent / float64(cs.UsageCount))
	cs.TotalGasSpent = round2(cs.TotalGasSpent)

	daysSince := math.Max(0, now.Sub(cs.LastUsedAt).Hours()/24)

	cs.Factors = []Factor{
		{Name: "usage_frequency", Weight: WeightUsage, Score: math.Min(100, float64(cs.UsageCount)*10)},
		{Name: "success_rate", Weight: WeightSuccess, Score: float64(cs.Successes) / float64(cs.UsageCount) * 100},
		{Name: "gas_efficiency", Weight: WeightGasEfficiency, Score: math.Max(0, 100-cs.AvgGasCost/2)},
		{Name: "chain_characteristics", Weight: WeightCharacteristic, Score: s.characteristicScore(chain, rc)},
		{Name: "recency", Weight: WeightRecency, Score: math.Max(0, 100-daysSince*2)},
	}
	for i := range cs.Factors {
		cs.Factors[i].Score = round2(cs.Factors[i].Score)
	}
	cs.Score = round2(WeightedScore(cs.Factors))
	cs.Trend = s.trend(list, now)
	return cs
}

// characteristicScore rewards easy, cheap chains for low-capacity or
// low-knowledge users and new, harder chains for risk-tolerant users.
// Unknown chains score a neutral 50.
func (s *ChainScorer) characteristicScore(chain string, rc RiskContext) float64 {
	c, ok := s.Catalog[chain]
	if !ok {
		return 50
	}

	score := 50.0
	if rc.FinancialCapacity == CapacityLow || rc.TechnicalKnowledge <= 4 {
		score += (5.5 - float64(c.Difficulty)) * 6
		switch {
		case c.AvgGasCost < 10:
			score += 15
		case c.AvgGasCost > 50:
			score -= 20
		}
	}
	if rc.RiskScore > 60 {
		score += c.Novelty*30 + float64(c.Difficulty-5)*3
	}
	return Clamp(score, 0, 100)
}

// trend compares interactions in the latest three windows with the three
// before them. The fixed-width windows stand in for "the last three
// interactions versus the three before", so that a burst of clicks within
// one day does not read as a trend on its own.
func (s *ChainScorer) trend(list []patterns.ChainInteraction, now time.Time) Trend {
	if len(list) < 3 {
		return TrendStable
	}

	span := 3 * s.TrendWindow
	recentFrom := now.Add(-span)
	previousFrom := recentFrom.Add(-span)

	recent, previous := 0, 0
	for _, in := range list {
		switch {
		case in.Timestamp.After(recentFrom):
			recent++
		case in.Timestamp.After(previousFrom):
			previous++
		}
	}

	if previous == 0 {
		if recent > 0 {
			return TrendIncreasing
		}
		return TrendStable
	}
	ratio := float64(recent) / float64(previous)
	switch {
	case ratio > 1.5:
		return TrendIncreasing
	case ratio < 0.5:
		return TrendDecreasing
	default:
		return TrendStable
	}
}

// ScoreChains is a convenience for NewChainScorer(catalog, 0).Score.
func ScoreChains(interactions []patterns.ChainInteraction, rc RiskContext, catalog Catalog, now time.Time) []ChainScore {
	return NewChainScorer(catalog, 0).Score(interactions, rc, now)
}
