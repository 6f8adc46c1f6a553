package profile

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/FairForge/dropsense/internal/adaptation"
	"github.com/FairForge/dropsense/internal/insights"
	"github.com/FairForge/dropsense/internal/scoring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var t0 = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

func newService(store Store) *Service {
	s := NewService(store, zap.NewNop())
	s.now = func() time.Time { return t0 }
	return s
}

func answers(v int) scoring.RiskAnswers {
	return scoring.RiskAnswers{
		InvestmentExperience:         v,
		RiskCapacity:                 v,
		TimeHorizon:                  v,
		TechnicalKnowledge:           v,
		SecurityPriority:             v,
		LossTolerance:                v,
		DiversificationUnderstanding: v,
		VolatilityComfort:            v,
	}
}

func assess(t *testing.T, a scoring.RiskAnswers) *scoring.RiskAssessment {
	t.Helper()
	r, err := scoring.AssessRisk(a)
	require.NoError(t, err)
	return r
}

func TestSnapshot_UnknownUserIsNotComputed(t *testing.T) {
	snap, err := newService(NewMemoryStore()).Snapshot(context.Background(), "nobody")
	require.NoError(t, err)
	assert.False(t, snap.Computed)
	assert.Nil(t, snap.Risk)
	assert.Nil(t, snap.Adaptation)
	assert.Empty(t, snap.Chains)
	assert.Nil(t, snap.Activity)

	body, err := json.Marshal(snap)
	require.NoError(t, err)
	assert.JSONEq(t, `{"user_id":"nobody","computed":false}`, string(body))
}

func TestSaveRisk_LogsInitialAndMeaningfulChanges(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	svc := newService(store)

	_, err := svc.SaveRisk(ctx, "u1", answers(3), assess(t, answers(3)), "assessment")
	require.NoError(t, err)

	// same answers: no change
	_, err = svc.SaveRisk(ctx, "u1", answers(3), assess(t, answers(3)), "assessment")
	require.NoError(t, err)

	// 60 (balanced) -> 80 (growth)
	p, err := svc.SaveRisk(ctx, "u1", answers(4), assess(t, answers(4)), "assessment")
	require.NoError(t, err)
	assert.Equal(t, scoring.RiskGrowth, p.Category)

	log, err := svc.Evolution(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, log, 2)
	assert.Equal(t, CategoryRisk, log[0].Category)
	assert.Contains(t, log[0].ChangeReason, "category changed")
	assert.JSONEq(t, `{"risk_tolerance_score":60,"risk_category":"balanced"}`, string(log[0].OldValue))
	assert.Nil(t, log[1].OldValue)
	assert.Equal(t, "assessment", log[1].ChangeTrigger)

	stored, err := store.GetRisk(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 80.0, stored.Score)
	assert.Equal(t, answers(4), stored.Answers)
}

func TestSaveRisk_ScoreDeltaWithinCategory(t *testing.T) {
	ctx := context.Background()
	svc := newService(NewMemoryStore())

	base := answers(3)
	_, err := svc.SaveRisk(ctx, "u1", base, assess(t, base), "a")
	require.NoError(t, err)

	// volatility comfort 3 -> 2 moves the score by 1: not meaningful
	small := base
	small.VolatilityComfort = 2
	_, err = svc.SaveRisk(ctx, "u1", small, assess(t, small), "a")
	require.NoError(t, err)

	// 59 -> 52 stays balanced but moves by more than the threshold
	bigger := small
	bigger.RiskCapacity = 2
	bigger.TimeHorizon = 2
	_, err = svc.SaveRisk(ctx, "u1", bigger, assess(t, bigger), "a")
	require.NoError(t, err)

	log, err := svc.Evolution(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, log, 2)
	assert.Contains(t, log[0].ChangeReason, "score moved")
}

func TestSaveActivity_Thresholds(t *testing.T) {
	ctx := context.Background()
	svc := newService(NewMemoryStore())

	score := func(consistency float64, burst bool) *scoring.ActivityScore {
		return &scoring.ActivityScore{ConsistencyScore: consistency, Burst: burst}
	}

	require.NoError(t, svc.SaveActivity(ctx, "u1", score(40, false), "t"))
	require.NoError(t, svc.SaveActivity(ctx, "u1", score(45, false), "t"))
	require.NoError(t, svc.SaveActivity(ctx, "u1", score(56, false), "t"))
	require.NoError(t, svc.SaveActivity(ctx, "u1", score(56, true), "t"))

	log, err := svc.Evolution(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, log, 3)
	assert.Equal(t, "burst pattern changed", log[0].ChangeReason)
	assert.Contains(t, log[1].ChangeReason, "consistency moved")
	assert.Equal(t, "first activity pattern", log[2].ChangeReason)
}

func TestSaveActivity_NeutralDefaultIsNotLogged(t *testing.T) {
	ctx := context.Background()
	svc := newService(NewMemoryStore())
	require.NoError(t, svc.SaveActivity(ctx, "u1", scoring.NeutralActivityScore(), "t"))

	log, err := svc.Evolution(ctx, "u1", 0)
	require.NoError(t, err)
	assert.Empty(t, log)
}

func TestSaveChains_UpsertsAndLogs(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	svc := newService(store)

	require.NoError(t, svc.SaveChains(ctx, "u1", []scoring.ChainScore{
		{Chain: "base", Score: 70, Trend: scoring.TrendStable},
		{Chain: "polygon", Score: 40, Trend: scoring.TrendStable},
	}, "t"))
	require.NoError(t, svc.SaveChains(ctx, "u1", []scoring.ChainScore{
		{Chain: "base", Score: 75, Trend: scoring.TrendStable},
		{Chain: "polygon", Score: 40, Trend: scoring.TrendDecreasing},
	}, "t"))

	chains, err := store.ListChains(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, chains, 2)
	assert.Equal(t, "base", chains[0].Chain)
	assert.Equal(t, 75.0, chains[0].Score)

	log, err := svc.Evolution(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, log, 3)
	assert.Contains(t, log[0].ChangeReason, "polygon trend changed")
}

type failingStore struct {
	*MemoryStore
}

func (failingStore) SaveRisk(context.Context, *RiskProfile, ...*PreferenceEvolution) error {
	return errors.New("disk full")
}

func (failingStore) SaveActivity(context.Context, *ActivityPattern, ...*PreferenceEvolution) error {
	return errors.New("disk full")
}

func TestSaveRisk_FailureKeepsPreviousProjection(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()
	_, err := newService(mem).SaveRisk(ctx, "u1", answers(3), assess(t, answers(3)), "a")
	require.NoError(t, err)

	_, err = newService(failingStore{mem}).SaveRisk(ctx, "u1", answers(5), assess(t, answers(5)), "a")
	assert.ErrorIs(t, err, ErrPersistence)

	stored, err := mem.GetRisk(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 60.0, stored.Score)

	log, err := mem.ListEvolution(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.JSONEq(t, `{"risk_tolerance_score":60,"risk_category":"balanced"}`, string(log[0].NewValue))
}

func TestSaveActivity_FailureLeavesLogUntouched(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()

	a := scoring.NeutralActivityScore()
	a.Default = false
	a.ConsistencyScore = 80
	err := newService(failingStore{mem}).SaveActivity(ctx, "u1", a, "t")
	assert.ErrorIs(t, err, ErrPersistence)

	log, err := mem.ListEvolution(ctx, "u1", 0)
	require.NoError(t, err)
	assert.Empty(t, log)
	stored, err := mem.GetActivity(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestInsights_ListAndMarkRead(t *testing.T) {
	ctx := context.Background()
	svc := newService(NewMemoryStore())

	require.NoError(t, svc.SaveInsights(ctx, []*insights.Insight{
		{ID: "i1", UserID: "u1", Type: insights.TypeLowSecurity, CreatedAt: t0.Add(-time.Hour), ValidUntil: t0.Add(time.Hour)},
		{ID: "i2", UserID: "u1", Type: insights.TypeBurstActivity, CreatedAt: t0, ValidUntil: t0.Add(24 * time.Hour)},
		{ID: "i3", UserID: "u1", Type: insights.TypeLowCompletion, CreatedAt: t0.Add(-48 * time.Hour), ValidUntil: t0.Add(-time.Minute)},
		{ID: "i4", UserID: "u2", Type: insights.TypeLowSecurity, CreatedAt: t0, ValidUntil: t0.Add(time.Hour)},
	}))

	active, err := svc.ActiveInsights(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "i2", active[0].ID)
	assert.Equal(t, "i1", active[1].ID)

	require.NoError(t, svc.MarkInsightRead(ctx, "u1", "i1"))
	require.NoError(t, svc.MarkInsightRead(ctx, "u1", "i1"))
	assert.ErrorIs(t, svc.MarkInsightRead(ctx, "u1", "i4"), ErrNotFound)
	assert.ErrorIs(t, svc.MarkInsightRead(ctx, "u1", "missing"), ErrNotFound)

	n, err := svc.MarkAllInsightsRead(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = svc.MarkAllInsightsRead(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	active, err = svc.ActiveInsights(ctx, "u1")
	require.NoError(t, err)
	for _, i := range active {
		assert.True(t, i.Read)
	}
}

func TestSnapshot_Computed(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	svc := newService(store)

	rec := adaptation.Record{Reason: "r", Confidence: 0.8, Timestamp: t0}
	require.NoError(t, store.ApplyAdaptation(ctx, "u1", adaptation.DefaultConfig(), rec))

	snap, err := svc.Snapshot(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, snap.Computed)
	require.NotNil(t, snap.Adaptation)
	assert.Len(t, snap.Adaptation.History, 1)
}
