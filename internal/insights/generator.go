package insights

import (
	"context"
	"time"

	"github.com/FairForge/dropsense/internal/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Generator turns findings into phrased insights.
type Generator struct {
	advisor *ResilientAdvisor
	logger  *zap.Logger
	metrics *metrics.Collector
}

// NewGenerator creates a generator.
func NewGenerator(advisor *ResilientAdvisor, logger *zap.Logger, m *metrics.Collector) *Generator {
	return &Generator{advisor: advisor, logger: logger, metrics: m}
}

// Generate evaluates the rules and phrases every new finding. A finding
// whose type already has an active insight in active is skipped.
func (g *Generator) Generate(ctx context.Context, userID string, in Input, active []*Insight, now time.Time) []*Insight {
	live := make(map[Type]bool, len(active))
	for _, i := range active {
		if i.Active(now) {
			live[i.Type] = true
		}
	}

	var out []*Insight
	for _, f := range Evaluate(in) {
		if live[f.Type] {
			continue
		}
		adv, source := g.advisor.Advise(ctx, f)
		out = append(out, &Insight{
			ID:             uuid.New().String(),
			UserID:         userID,
			Type:           f.Type,
			Title:          adv.Title,
			Description:    adv.Description,
			Confidence:     f.Confidence,
			Impact:         f.Impact,
			Recommendation: adv.Recommendation,
			SupportingData: f.Data,
			Source:         source,
			CreatedAt:      now.UTC(),
			ValidUntil:     now.UTC().Add(f.Validity),
		})
		g.metrics.InsightEmitted(string(f.Type))
		live[f.Type] = true
	}
	if len(out) > 0 {
		g.logger.Debug("insights generated", zap.String("user_id", userID), zap.Int("count", len(out)))
	}
	return out
}
