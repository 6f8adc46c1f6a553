package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/FairForge/dropsense/internal/insights"
	"github.com/FairForge/dropsense/internal/scoring"
	"go.uber.org/zap"
)

// Thresholds for a change to count as meaningful in the evolution log.
const (
	RiskScoreDelta        = 5
	ActivityScoreDelta    = 10
	ChainScoreDelta       = 10
	DefaultEvolutionLimit = 50
)

// Service writes projections and logs meaningful changes. Every write
// failure is returned wrapped in ErrPersistence.
type Service struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates a service over store.
func NewService(store Store, logger *zap.Logger) *Service {
	return &Service{store: store, logger: logger, now: time.Now}
}

// WithClock replaces the wall clock used for timestamps and insight
// expiry. It returns s for chaining.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Store returns the underlying store.
func (s *Service) Store() Store {
	return s.store
}

type riskSummary struct {
	Score    float64              `json:"risk_tolerance_score"`
	Category scoring.RiskCategory `json:"risk_category"`
}

type activitySummary struct {
	Consistency float64 `json:"consistency_score"`
	Burst       bool    `json:"burst_activity"`
	Efficiency  float64 `json:"efficiency_score"`
}

type chainSummary struct {
	Chain string        `json:"chain"`
	Score float64       `json:"preference_score"`
	Trend scoring.Trend `json:"trend"`
}

// SaveRisk stores a new assessment. The change is logged in the same write
// when the category changes or the score moves by RiskScoreDelta or more.
func (s *Service) SaveRisk(ctx context.Context, userID string, answers scoring.RiskAnswers, a *scoring.RiskAssessment, trigger string) (*RiskProfile, error) {
	prev, err := s.store.GetRisk(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load risk profile: %w", err)
	}

	now := s.now().UTC()
	next := &RiskProfile{UserID: userID, RiskAssessment: *a, Answers: answers, UpdatedAt: now}
	cur := riskSummary{Score: a.Score, Category: a.Category}

	var change *PreferenceEvolution
	switch {
	case prev == nil:
		change, err = newChange(userID, CategoryRisk, nil, cur, "initial assessment", trigger, now)
	case prev.Category != a.Category:
		change, err = newChange(userID, CategoryRisk, riskSummary{prev.Score, prev.Category}, cur,
			fmt.Sprintf("category changed from %s to %s", prev.Category, a.Category), trigger, now)
	case math.Abs(prev.Score-a.Score) >= RiskScoreDelta:
		change, err = newChange(userID, CategoryRisk, riskSummary{prev.Score, prev.Category}, cur,
			fmt.Sprintf("score moved by %.2f", a.Score-prev.Score), trigger, now)
	}
	if err != nil {
		return nil, err
	}

	changes := compact(change)
	if err := s.store.SaveRisk(ctx, next, changes...); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	s.logChanges(changes)
	return next, nil
}

// SaveActivity stores the activity score, logging a change of
// ActivityScoreDelta in consistency or a flip of the burst flag.
func (s *Service) SaveActivity(ctx context.Context, userID string, a *scoring.ActivityScore, trigger string) error {
	prev, err := s.store.GetActivity(ctx, userID)
	if err != nil {
		return fmt.Errorf("load activity pattern: %w", err)
	}

	now := s.now().UTC()
	cur := activitySummary{a.ConsistencyScore, a.Burst, a.Productivity.EfficiencyScore}

	var change *PreferenceEvolution
	switch {
	case prev == nil:
		if !a.Default {
			change, err = newChange(userID, CategoryActivity, nil, cur, "first activity pattern", trigger, now)
		}
	case prev.Burst != a.Burst:
		change, err = newChange(userID, CategoryActivity, summarizeActivity(prev), cur, "burst pattern changed", trigger, now)
	case math.Abs(prev.ConsistencyScore-a.ConsistencyScore) >= ActivityScoreDelta:
		change, err = newChange(userID, CategoryActivity, summarizeActivity(prev), cur,
			fmt.Sprintf("consistency moved by %.2f", a.ConsistencyScore-prev.ConsistencyScore), trigger, now)
	}
	if err != nil {
		return err
	}

	changes := compact(change)
	if err := s.store.SaveActivity(ctx, &ActivityPattern{UserID: userID, ActivityScore: *a, UpdatedAt: now}, changes...); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	s.logChanges(changes)
	return nil
}

func summarizeActivity(p *ActivityPattern) activitySummary {
	return activitySummary{p.ConsistencyScore, p.Burst, p.Productivity.EfficiencyScore}
}

// SaveChains upserts every scored chain. A new chain, a trend change or a
// score move of ChainScoreDelta is logged per chain.
func (s *Service) SaveChains(ctx context.Context, userID string, scores []scoring.ChainScore, trigger string) error {
	if len(scores) == 0 {
		return nil
	}
	prevList, err := s.store.ListChains(ctx, userID)
	if err != nil {
		return fmt.Errorf("load chain preferences: %w", err)
	}
	prev := make(map[string]ChainPreference, len(prevList))
	for _, p := range prevList {
		prev[p.Chain] = p
	}

	now := s.now().UTC()
	prefs := make([]ChainPreference, len(scores))
	var changes []*PreferenceEvolution
	for i, c := range scores {
		prefs[i] = ChainPreference{UserID: userID, ChainScore: c, UpdatedAt: now}
		cur := chainSummary{c.Chain, c.Score, c.Trend}

		var change *PreferenceEvolution
		old, seen := prev[c.Chain]
		switch {
		case !seen:
			change, err = newChange(userID, CategoryChain, nil, cur, "new chain "+c.Chain, trigger, now)
		case old.Trend != c.Trend:
			change, err = newChange(userID, CategoryChain, chainSummary{old.Chain, old.Score, old.Trend}, cur,
				fmt.Sprintf("%s trend changed from %s to %s", c.Chain, old.Trend, c.Trend), trigger, now)
		case math.Abs(old.Score-c.Score) >= ChainScoreDelta:
			change, err = newChange(userID, CategoryChain, chainSummary{old.Chain, old.Score, old.Trend}, cur,
				fmt.Sprintf("%s score moved by %.2f", c.Chain, c.Score-old.Score), trigger, now)
		}
		if err != nil {
			return err
		}
		changes = append(changes, compact(change)...)
	}

	if err := s.store.SaveChains(ctx, userID, prefs, changes...); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	s.logChanges(changes)
	return nil
}

// newChange builds an evolution entry. It is stored by the same store call
// that writes the projection, so the log never holds a value that was not
// saved.
func newChange(userID, category string, old, cur any, reason, trigger string, now time.Time) (*PreferenceEvolution, error) {
	e := &PreferenceEvolution{
		UserID:        userID,
		Category:      category,
		ChangeReason:  reason,
		ChangeTrigger: trigger,
		Timestamp:     now,
	}
	var err error
	if old != nil {
		if e.OldValue, err = json.Marshal(old); err != nil {
			return nil, fmt.Errorf("%w: marshal old value: %v", ErrPersistence, err)
		}
	}
	if e.NewValue, err = json.Marshal(cur); err != nil {
		return nil, fmt.Errorf("%w: marshal new value: %v", ErrPersistence, err)
	}
	return e, nil
}

func compact(e *PreferenceEvolution) []*PreferenceEvolution {
	if e == nil {
		return nil
	}
	return []*PreferenceEvolution{e}
}

func (s *Service) logChanges(changes []*PreferenceEvolution) {
	for _, e := range changes {
		s.logger.Debug("preference evolved",
			zap.String("user_id", e.UserID),
			zap.String("category", e.Category),
			zap.String("reason", e.ChangeReason))
	}
}

// Evolution lists the user's log, newest first.
func (s *Service) Evolution(ctx context.Context, userID string, limit int) ([]PreferenceEvolution, error) {
	if limit <= 0 {
		limit = DefaultEvolutionLimit
	}
	return s.store.ListEvolution(ctx, userID, limit)
}

// SaveInsights stores newly generated insights.
func (s *Service) SaveInsights(ctx context.Context, list []*insights.Insight) error {
	if err := s.store.SaveInsights(ctx, list); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

// ActiveInsights lists the user's unexpired insights.
func (s *Service) ActiveInsights(ctx context.Context, userID string) ([]*insights.Insight, error) {
	return s.store.ListActiveInsights(ctx, userID, s.now().UTC())
}

// MarkInsightRead is idempotent; an unknown id returns ErrNotFound.
func (s *Service) MarkInsightRead(ctx context.Context, userID, id string) error {
	err := s.store.MarkInsightRead(ctx, userID, id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return err
}

// MarkAllInsightsRead marks every active insight read and returns how many
// changed.
func (s *Service) MarkAllInsightsRead(ctx context.Context, userID string) (int, error) {
	n, err := s.store.MarkAllInsightsRead(ctx, userID, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return n, nil
}

// Snapshot assembles the profile read model. Unknown users get an empty
// snapshot with Computed false.
func (s *Service) Snapshot(ctx context.Context, userID string) (*Snapshot, error) {
	snap := &Snapshot{UserID: userID}

	var err error
	if snap.Adaptation, err = s.store.GetAdaptation(ctx, userID); err != nil {
		return nil, fmt.Errorf("load adaptation: %w", err)
	}
	if snap.Risk, err = s.store.GetRisk(ctx, userID); err != nil {
		return nil, fmt.Errorf("load risk profile: %w", err)
	}
	if snap.Chains, err = s.store.ListChains(ctx, userID); err != nil {
		return nil, fmt.Errorf("load chain preferences: %w", err)
	}
	if snap.Activity, err = s.store.GetActivity(ctx, userID); err != nil {
		return nil, fmt.Errorf("load activity pattern: %w", err)
	}

	snap.Computed = snap.Adaptation != nil || snap.Risk != nil || len(snap.Chains) > 0 || snap.Activity != nil
	return snap, nil
}
