package adaptation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/FairForge/dropsense/internal/config"
	"github.com/FairForge/dropsense/internal/metrics"
	"github.com/FairForge/dropsense/internal/patterns"
	"github.com/FairForge/dropsense/internal/scoring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var noon = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

type memStore struct {
	mu     sync.Mutex
	states map[string]*State
	err    error
}

func newMemStore() *memStore {
	return &memStore{states: make(map[string]*State)}
}

func (m *memStore) GetAdaptation(_ context.Context, userID string) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[userID]
	if !ok {
		return nil, nil
	}
	cp := *s
	cp.History = append([]Record(nil), s.History...)
	return &cp, nil
}

func (m *memStore) ApplyAdaptation(_ context.Context, userID string, cfg Config, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	s, ok := m.states[userID]
	if !ok {
		s = &State{UserID: userID}
		m.states[userID] = s
	}
	s.Config = cfg
	s.History = append(s.History, rec)
	s.UpdatedAt = rec.Timestamp
	return nil
}

func newEngine() *Engine {
	return NewEngine(config.NewLive(config.DefaultPolicy()), zap.NewNop(), metrics.NewCollector())
}

func pattern(total int, features map[string]int) *patterns.BehaviorPattern {
	p := patterns.DefaultPattern("user-1", total, noon)
	p.Default = false
	p.FeatureUsage = features
	return p
}

func features(n int) map[string]int {
	out := make(map[string]int, n)
	for i := 0; i < n; i++ {
		out[fmt.Sprintf("feature_%02d", i)] = i + 1
	}
	return out
}

func TestConfidence(t *testing.T) {
	tests := []struct {
		events, features int
		want             float64
	}{
		{0, 0, 0.5},
		{20, 0, 0.7},
		{30, 0, 0.8},
		{500, 0, 0.8},
		{10, 2, 0.7},
		{100, 4, 1.0},
		{1000, 100, 1.0},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, Confidence(tt.events, tt.features), 1e-9, "%d events %d features", tt.events, tt.features)
	}
}

func TestApply_BelowGateLeavesStoredConfig(t *testing.T) {
	e := newEngine()
	store := newMemStore()
	ctx := context.Background()

	high := e.Decide(Input{Pattern: pattern(80, features(6))}, noon)
	require.GreaterOrEqual(t, high.Confidence, 0.7)
	applied, err := e.Apply(ctx, store, "user-1", "initial", &high, noon)
	require.NoError(t, err)
	require.True(t, applied)

	before, err := store.GetAdaptation(ctx, "user-1")
	require.NoError(t, err)

	p := pattern(5, features(1))
	p.DeviceUsage[patterns.DeviceMobile] = 5
	low := e.Decide(Input{Pattern: p}, noon)
	require.Less(t, low.Confidence, 0.7)

	applied, err = e.Apply(ctx, store, "user-1", "sparse", &low, noon.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, applied)
	assert.False(t, low.Applied)

	after, err := store.GetAdaptation(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestApply_AtGateAppendsExactlyOneRecord(t *testing.T) {
	e := newEngine()
	store := newMemStore()
	ctx := context.Background()

	d := e.Decide(Input{Pattern: pattern(20, nil)}, noon)
	require.InDelta(t, 0.7, d.Confidence, 1e-9)

	applied, err := e.Apply(ctx, store, "user-1", "event_count:20", &d, noon)
	require.NoError(t, err)
	require.True(t, applied)

	st, err := store.GetAdaptation(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, st.History, 1)
	assert.Equal(t, "event_count:20", st.History[0].Reason)
	assert.Equal(t, d.Config, st.History[0].Snapshot)
	assert.Equal(t, d.Config, st.Config)

	_, err = e.Apply(ctx, store, "user-1", "event_count:30", &d, noon.Add(time.Minute))
	require.NoError(t, err)
	st, _ = store.GetAdaptation(ctx, "user-1")
	assert.Len(t, st.History, 2)
}

func TestApply_GateIsLive(t *testing.T) {
	live := config.NewLive(config.DefaultPolicy())
	e := NewEngine(live, zap.NewNop(), metrics.NewCollector())
	store := newMemStore()

	d := e.Decide(Input{Pattern: pattern(20, nil)}, noon)
	p := live.Policy()
	p.ConfidenceGate = 0.9
	live.Set(p)

	applied, err := e.Apply(context.Background(), store, "user-1", "r", &d, noon)
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestApply_StoreFailureWrapsPersistence(t *testing.T) {
	e := newEngine()
	store := newMemStore()
	store.err = errors.New("connection reset")

	d := e.Decide(Input{Pattern: pattern(100, features(5))}, noon)
	applied, err := e.Apply(context.Background(), store, "user-1", "r", &d, noon)
	assert.False(t, applied)
	assert.ErrorIs(t, err, ErrPersistence)
}

func TestDecide_LayoutDensity(t *testing.T) {
	e := newEngine()

	mobile := pattern(50, nil)
	mobile.DeviceUsage[patterns.DeviceMobile] = 30
	mobile.DeviceUsage[patterns.DeviceDesktop] = 20
	assert.Equal(t, LayoutCompact, e.Decide(Input{Pattern: mobile}, noon).Config.LayoutDensity)

	busy := pattern(50, nil)
	busy.ActivityLevel = patterns.ActivityHigh
	assert.Equal(t, LayoutCompact, e.Decide(Input{Pattern: busy}, noon).Config.LayoutDensity)

	explorer := pattern(50, features(11))
	assert.Equal(t, LayoutComfortable, e.Decide(Input{Pattern: explorer}, noon).Config.LayoutDensity)

	assert.Equal(t, LayoutSpacious, e.Decide(Input{Pattern: pattern(50, features(3))}, noon).Config.LayoutDensity)
}

func TestDecide_ColorScheme(t *testing.T) {
	e := newEngine()
	at := func(hour int, accessible bool) ColorScheme {
		p := pattern(50, nil)
		p.HourlyActivity[hour] = 10
		p.AccessibilitySignal = accessible
		return e.Decide(Input{Pattern: p}, noon).Config.ColorScheme
	}

	assert.Equal(t, ColorDark, at(22, false))
	assert.Equal(t, ColorDark, at(3, true))
	assert.Equal(t, ColorHighContrast, at(10, true))
	assert.Equal(t, ColorLight, at(10, false))
	assert.Equal(t, ColorDefault, at(19, false))

	// no history falls back to the clock
	night := time.Date(2026, 6, 1, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, ColorDark, e.Decide(Input{Pattern: pattern(0, nil)}, night).Config.ColorScheme)
}

func TestDecide_ContentFocus(t *testing.T) {
	e := newEngine()
	cautious, err := scoring.AssessRisk(scoring.RiskAnswers{
		InvestmentExperience: 1, RiskCapacity: 1, TimeHorizon: 1, TechnicalKnowledge: 1,
		SecurityPriority: 1, LossTolerance: 1, DiversificationUnderstanding: 1, VolatilityComfort: 1,
	})
	require.NoError(t, err)

	assert.Equal(t, FocusSecurity, e.Decide(Input{Pattern: pattern(50, nil), Risk: cautious}, noon).Config.ContentFocus)

	power := pattern(50, nil)
	power.ActivityLevel = patterns.ActivityVeryHigh
	assert.Equal(t, FocusEfficiency, e.Decide(Input{Pattern: power}, noon).Config.ContentFocus)

	assert.Equal(t, FocusDiscovery, e.Decide(Input{Pattern: pattern(50, features(16))}, noon).Config.ContentFocus)

	analyst := pattern(50, map[string]int{"portfolio_analytics": 3})
	assert.Equal(t, FocusAnalytics, e.Decide(Input{Pattern: analyst}, noon).Config.ContentFocus)

	assert.Equal(t, FocusDiscovery, e.Decide(Input{Pattern: pattern(50, nil)}, noon).Config.ContentFocus)
}

func TestDecide_NotificationAndAutomation(t *testing.T) {
	e := newEngine()
	tests := []struct {
		name         string
		rate         float64
		level        patterns.ActivityLevel
		notification NotificationLevel
		automation   AutomationLevel
	}{
		{"expert", 0.9, patterns.ActivityVeryHigh, NotifyMinimal, AutomationAutomated},
		{"reliable", 0.6, patterns.ActivityMedium, NotifyNormal, AutomationAssisted},
		{"newcomer", 0.6, patterns.ActivityLow, NotifyVerbose, AutomationManual},
		{"struggling", 0.2, patterns.ActivityHigh, NotifyNormal, AutomationManual},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := pattern(50, nil)
			p.Success.SuccessRate = tt.rate
			p.ActivityLevel = tt.level
			cfg := e.Decide(Input{Pattern: p}, noon).Config
			assert.Equal(t, tt.notification, cfg.NotificationLevel)
			assert.Equal(t, tt.automation, cfg.AutomationLevel)
		})
	}
}

func TestFeaturePriority_TopEightByUsageAndTime(t *testing.T) {
	p := pattern(50, features(12))
	p.FeatureTimeMs = map[string]int64{"feature_00": int64(60 * time.Minute / time.Millisecond)}

	got := FeaturePriority(p, 8)

	require.Len(t, got, 8)
	assert.Equal(t, "feature_00", got[0])
	assert.Equal(t, "feature_11", got[1])
	assert.NotContains(t, got, "feature_04")
}

func TestShortcuts_FeatureSlotsWinOverDefaults(t *testing.T) {
	p := pattern(50, map[string]int{"search": 9, "staking": 7, "bridge": 4})

	got := Shortcuts(p)

	assert.Equal(t, "search", got["alt+1"])
	assert.Equal(t, "staking", got["alt+2"])
	assert.Equal(t, "bridge", got["alt+3"])
	assert.Equal(t, "profile", got["alt+5"])
	assert.Equal(t, "notifications", got["alt+n"])
	_, rebound := got["alt+4"]
	assert.False(t, rebound, "a feature already on a slot is not bound again by a default")
}

func TestShortcuts_DefaultsWhenNoHistory(t *testing.T) {
	assert.Equal(t, DefaultShortcuts(), Shortcuts(pattern(0, nil)))
}
