package adaptation

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/FairForge/dropsense/internal/config"
	"github.com/FairForge/dropsense/internal/metrics"
	"github.com/FairForge/dropsense/internal/patterns"
	"github.com/FairForge/dropsense/internal/scoring"
	"go.uber.org/zap"
)

// Widget names.
const (
	WidgetRiskMeter       = "risk_meter"
	WidgetChainRanking    = "chain_ranking"
	WidgetActivityHeatmap = "activity_heatmap"
	WidgetInsights        = "insights"
	WidgetQuickActions    = "quick_actions"
	WidgetTutorial        = "tutorial"
	WidgetSecurityTips    = "security_tips"
)

const (
	maxPriorityFeatures = 8
	maxShortcutFeatures = 5
)

// DefaultShortcuts are merged under the per-feature slots.
func DefaultShortcuts() map[string]string {
	return map[string]string{
		"alt+1": "dashboard",
		"alt+2": "airdrops",
		"alt+3": "portfolio",
		"alt+4": "search",
		"alt+5": "profile",
		"alt+n": "notifications",
		"alt+h": "help",
	}
}

// Input is everything one decision is made from. Risk is nil until the
// user submits an assessment; Activity may be the neutral default.
type Input struct {
	Pattern  *patterns.BehaviorPattern
	Risk     *scoring.RiskAssessment
	Activity *scoring.ActivityScore
	Chains   []scoring.ChainScore
}

// Decision is a computed config with the confidence it was derived at.
type Decision struct {
	Config     Config   `json:"config"`
	Confidence float64  `json:"confidence"`
	Rules      []string `json:"rules"`
	Applied    bool     `json:"applied"`
}

// Engine decides and applies adaptations.
type Engine struct {
	policy  *config.Live
	logger  *zap.Logger
	metrics *metrics.Collector
}

// NewEngine creates an engine reading the gate from policy.
func NewEngine(policy *config.Live, logger *zap.Logger, m *metrics.Collector) *Engine {
	return &Engine{policy: policy, logger: logger, metrics: m}
}

// Confidence grows with tracked events and distinct features.
func Confidence(totalEvents, distinctFeatures int) float64 {
	c := 0.5 + math.Min(float64(totalEvents)/100, 0.3) + math.Min(float64(distinctFeatures)/20, 0.2)
	return math.Round(math.Min(c, 1)*1e4) / 1e4
}

// Decide computes a config. It has no side effects; each dimension is
// decided independently.
func (e *Engine) Decide(in Input, now time.Time) Decision {
	p := in.Pattern
	if p == nil {
		p = patterns.DefaultPattern("", 0, now)
	}

	var rules []string
	rule := func(name string) { rules = append(rules, name) }

	cfg := Config{
		LayoutDensity:     layoutDensity(p, rule),
		ColorScheme:       colorScheme(p, now, rule),
		ContentFocus:      contentFocus(p, in.Risk, rule),
		NotificationLevel: notificationLevel(p, rule),
		AutomationLevel:   automationLevel(p, rule),
		FeaturePriority:   FeaturePriority(p, maxPriorityFeatures),
	}
	cfg.Shortcuts = Shortcuts(p)
	cfg.Widgets = widgets(in)

	return Decision{
		Config:     cfg,
		Confidence: Confidence(p.TotalEvents, p.DistinctFeatures()),
		Rules:      rules,
	}
}

// Apply persists d when it clears the confidence gate and reports whether
// it did. Below the gate the stored config is left untouched.
func (e *Engine) Apply(ctx context.Context, store Store, userID, reason string, d *Decision, now time.Time) (bool, error) {
	gate := e.policy.Policy().ConfidenceGate
	if d.Confidence < gate {
		e.metrics.Adaptation(false)
		e.logger.Debug("adaptation below confidence gate",
			zap.String("user_id", userID),
			zap.Float64("confidence", d.Confidence),
			zap.Float64("gate", gate))
		return false, nil
	}

	rec := Record{
		Reason:     reason,
		Rules:      d.Rules,
		Confidence: d.Confidence,
		Timestamp:  now.UTC(),
		Snapshot:   d.Config,
	}
	if err := store.ApplyAdaptation(ctx, userID, d.Config, rec); err != nil {
		return false, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	d.Applied = true
	e.metrics.Adaptation(true)
	return true, nil
}

func layoutDensity(p *patterns.BehaviorPattern, rule func(string)) LayoutDensity {
	switch {
	case p.MobileDominant():
		rule("layout:mobile_dominant")
		return LayoutCompact
	case p.ActivityLevel == patterns.ActivityHigh || p.ActivityLevel == patterns.ActivityVeryHigh:
		rule("layout:high_activity")
		return LayoutCompact
	case p.DistinctFeatures() > 10:
		rule("layout:many_features")
		return LayoutComfortable
	default:
		return LayoutSpacious
	}
}

// colorScheme uses the user's busiest hour, or the current hour when
// there is no history.
func colorScheme(p *patterns.BehaviorPattern, now time.Time, rule func(string)) ColorScheme {
	hour := p.PeakHour()
	if hour < 0 {
		hour = now.UTC().Hour()
	}
	switch {
	case hour >= 20 || hour <= 6:
		rule("color:night_hours")
		return ColorDark
	case p.AccessibilitySignal:
		rule("color:accessibility")
		return ColorHighContrast
	case hour >= 7 && hour <= 18:
		rule("color:day_hours")
		return ColorLight
	default:
		return ColorDefault
	}
}

func contentFocus(p *patterns.BehaviorPattern, risk *scoring.RiskAssessment, rule func(string)) ContentFocus {
	normalized := p.RiskBaseline
	if risk != nil {
		normalized = risk.Score / 100
	}
	switch {
	case normalized < 0.3:
		rule("focus:low_risk_tolerance")
		return FocusSecurity
	case p.ActivityLevel == patterns.ActivityVeryHigh:
		rule("focus:very_high_activity")
		return FocusEfficiency
	case p.DistinctFeatures() > 15:
		rule("focus:broad_feature_use")
		return FocusDiscovery
	case p.UsesFeature("analytics", "insight"):
		rule("focus:analytics_use")
		return FocusAnalytics
	default:
		return FocusDiscovery
	}
}

func notificationLevel(p *patterns.BehaviorPattern, rule func(string)) NotificationLevel {
	switch {
	case p.Success.SuccessRate > 0.8:
		rule("notify:high_success")
		return NotifyMinimal
	case p.ActivityLevel == patterns.ActivityLow:
		rule("notify:low_activity")
		return NotifyVerbose
	default:
		return NotifyNormal
	}
}

func automationLevel(p *patterns.BehaviorPattern, rule func(string)) AutomationLevel {
	sr := p.Success.SuccessRate
	switch {
	case sr > 0.7 && p.ActivityLevel == patterns.ActivityVeryHigh:
		rule("automation:proven_power_user")
		return AutomationAutomated
	case sr > 0.5 && p.ActivityLevel != patterns.ActivityLow:
		rule("automation:reliable_user")
		return AutomationAssisted
	default:
		return AutomationManual
	}
}

// FeaturePriority ranks features by usage*2 + minutes spent and keeps the
// first n. Ties break by name.
func FeaturePriority(p *patterns.BehaviorPattern, n int) []string {
	type ranked struct {
		name  string
		score float64
	}
	list := make([]ranked, 0, len(p.FeatureUsage))
	for name, count := range p.FeatureUsage {
		if count == 0 {
			continue
		}
		minutes := float64(p.FeatureTimeMs[name]) / float64(time.Minute/time.Millisecond)
		list = append(list, ranked{name: name, score: float64(count)*2 + minutes})
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].score != list[j].score {
			return list[i].score > list[j].score
		}
		return list[i].name < list[j].name
	})
	if len(list) > n {
		list = list[:n]
	}
	out := make([]string, len(list))
	for i, r := range list {
		out[i] = r.name
	}
	return out
}

// Shortcuts gives the most used features the alt+1..alt+5 slots and merges
// the defaults underneath. A feature slot wins over a default on the same
// key, and a feature already bound is not bound again by a default.
func Shortcuts(p *patterns.BehaviorPattern) map[string]string {
	type used struct {
		name  string
		count int
	}
	list := make([]used, 0, len(p.FeatureUsage))
	for name, c := range p.FeatureUsage {
		if c > 0 {
			list = append(list, used{name, c})
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].count != list[j].count {
			return list[i].count > list[j].count
		}
		return list[i].name < list[j].name
	})
	if len(list) > maxShortcutFeatures {
		list = list[:maxShortcutFeatures]
	}

	out := make(map[string]string)
	bound := make(map[string]bool)
	for i, u := range list {
		out[fmt.Sprintf("alt+%d", i+1)] = u.name
		bound[u.name] = true
	}
	for key, feature := range DefaultShortcuts() {
		if _, taken := out[key]; taken || bound[feature] {
			continue
		}
		out[key] = feature
	}
	return out
}

func widgets(in Input) map[string]bool {
	p := in.Pattern
	beginner := in.Risk != nil && in.Risk.ExperienceLevel == scoring.ExperienceBeginner
	lowSecurity := in.Risk != nil && in.Risk.SecurityConsciousness < 5
	low := p == nil || p.ActivityLevel == patterns.ActivityLow
	busy := p != nil && (p.ActivityLevel == patterns.ActivityHigh || p.ActivityLevel == patterns.ActivityVeryHigh)

	return map[string]bool{
		WidgetRiskMeter:       in.Risk != nil,
		WidgetChainRanking:    len(in.Chains) > 0,
		WidgetActivityHeatmap: in.Activity != nil && !in.Activity.Default,
		WidgetInsights:        true,
		WidgetQuickActions:    busy,
		WidgetTutorial:        low || beginner,
		WidgetSecurityTips:    lowSecurity,
	}
}
