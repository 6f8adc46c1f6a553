package intelligence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/FairForge/dropsense/internal/adaptation"
	"github.com/FairForge/dropsense/internal/config"
	"github.com/FairForge/dropsense/internal/events"
	"github.com/FairForge/dropsense/internal/insights"
	"github.com/FairForge/dropsense/internal/metrics"
	"github.com/FairForge/dropsense/internal/patterns"
	"github.com/FairForge/dropsense/internal/profile"
	"github.com/FairForge/dropsense/internal/scoring"
	"github.com/FairForge/dropsense/internal/session"
	"go.uber.org/zap"
)

// ErrAnalysisInFlight is returned when another analysis for the same user
// holds the lock. The caller skips; the running analysis covers the data.
var ErrAnalysisInFlight = errors.New("intelligence: analysis already in flight")

// Analysis outcomes recorded in metrics.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeSkipped = "skipped"
)

// TriggerAssessment is the evolution trigger for questionnaire submissions.
const TriggerAssessment = "assessment_submit"

// Deps are the collaborators an Analyzer needs.
type Deps struct {
	Events    *events.Gateway
	Trigger   events.Trigger
	Profiles  *profile.Service
	Engine    *adaptation.Engine
	Generator *insights.Generator
	Locker    Locker
	Catalog   scoring.Catalog
	Policy    *config.Live
	Logger    *zap.Logger
	Metrics   *metrics.Collector
}

// Report is the outcome of one analysis run.
type Report struct {
	UserID    string                    `json:"user_id"`
	Reason    string                    `json:"reason"`
	Events    int                       `json:"events"`
	Sessions  int                       `json:"sessions"`
	Pattern   *patterns.BehaviorPattern `json:"pattern"`
	Chains    []scoring.ChainScore      `json:"chains"`
	Activity  *scoring.ActivityScore    `json:"activity"`
	Decision  adaptation.Decision       `json:"decision"`
	Insights  []*insights.Insight       `json:"insights"`
	Duration  time.Duration             `json:"duration"`
	Completed time.Time                 `json:"completed_at"`
}

// Analyzer recomputes a user's profile from the event log.
type Analyzer struct {
	deps Deps
	now  func() time.Time
}

// NewAnalyzer creates an analyzer. A nil Locker gets an in-process
// KeyedLock and a nil Catalog gets the default chain catalog.
func NewAnalyzer(d Deps) *Analyzer {
	if d.Locker == nil {
		d.Locker = NewKeyedLock()
	}
	if d.Catalog == nil {
		d.Catalog = scoring.DefaultCatalog()
	}
	return &Analyzer{deps: d, now: time.Now}
}

// Analyze runs the full pipeline for userID. Persistence failures of the
// derived projections are logged and do not fail the run; only reading
// the event log or the stored risk profile does.
func (a *Analyzer) Analyze(ctx context.Context, userID, reason string) (*Report, error) {
	start := a.now()
	logger := a.deps.Logger.With(zap.String("user_id", userID), zap.String("reason", reason))

	unlock, ok, err := a.deps.Locker.TryLock(ctx, "analysis:"+userID)
	if err != nil {
		a.deps.Metrics.AnalysisCompleted(OutcomeError, time.Since(start))
		return nil, fmt.Errorf("acquire analysis lock: %w", err)
	}
	if !ok {
		a.deps.Metrics.AnalysisCompleted(OutcomeSkipped, time.Since(start))
		logger.Debug("analysis skipped, already running")
		return nil, ErrAnalysisInFlight
	}
	defer unlock()

	report, err := a.run(ctx, userID, reason, logger)
	if err != nil {
		a.deps.Metrics.AnalysisCompleted(OutcomeError, time.Since(start))
		logger.Error("analysis failed", zap.Error(err))
		return nil, err
	}

	report.Duration = time.Since(start)
	a.deps.Metrics.AnalysisCompleted(OutcomeOK, report.Duration)
	logger.Info("analysis completed",
		zap.Int("events", report.Events),
		zap.Int("sessions", report.Sessions),
		zap.Float64("confidence", report.Decision.Confidence),
		zap.Bool("adapted", report.Decision.Applied),
		zap.Int("insights", len(report.Insights)),
		zap.Duration("duration", report.Duration))
	return report, nil
}

func (a *Analyzer) run(ctx context.Context, userID, reason string, logger *zap.Logger) (*Report, error) {
	policy := a.deps.Policy.Policy()
	now := a.now().UTC()

	evts, err := a.deps.Events.Query(ctx, events.Query{
		UserID: userID,
		Since:  now.Add(-policy.AnalysisWindow),
		Limit:  policy.MaxAnalysisEvents,
		Order:  events.OldestFirst,
	})
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}

	sessions := session.Reconstruct(evts, policy.SessionGap)
	pattern := patterns.NewExtractor(policy.MinPatternEvents).Extract(userID, evts, sessions, now)

	var risk *scoring.RiskAssessment
	stored, err := a.deps.Profiles.Store().GetRisk(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load risk profile: %w", err)
	}
	if stored != nil {
		assessment := stored.RiskAssessment
		risk = &assessment
		pattern.RiskBaseline = assessment.Score / 100
	}

	var (
		wg       sync.WaitGroup
		chains   []scoring.ChainScore
		activity *scoring.ActivityScore
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		rc := scoring.NeutralRiskContext()
		if risk != nil {
			rc = scoring.RiskContextFrom(risk)
		}
		scorer := scoring.NewChainScorer(a.deps.Catalog, policy.ChainTrendWindow)
		chains = scorer.Score(patterns.ChainInteractions(evts), rc, now)
	}()
	go func() {
		defer wg.Done()
		activity = scoring.NewActivityScorer(policy.AnalysisWindow).Score(evts, sessions, now)
	}()
	wg.Wait()

	decision := a.deps.Engine.Decide(adaptation.Input{
		Pattern:  pattern,
		Risk:     risk,
		Activity: activity,
		Chains:   chains,
	}, now)
	if _, err := a.deps.Engine.Apply(ctx, a.deps.Profiles.Store(), userID, reason, &decision, now); err != nil {
		logger.Warn("adaptation not stored", zap.Error(err))
	}

	if err := a.deps.Profiles.SaveChains(ctx, userID, chains, reason); err != nil {
		logger.Warn("chain preferences not stored", zap.Error(err))
	}
	if err := a.deps.Profiles.SaveActivity(ctx, userID, activity, reason); err != nil {
		logger.Warn("activity pattern not stored", zap.Error(err))
	}

	generated := a.generateInsights(ctx, userID, insights.Input{Risk: risk, Chains: chains, Activity: activity}, now, logger)

	return &Report{
		UserID:    userID,
		Reason:    reason,
		Events:    len(evts),
		Sessions:  len(sessions),
		Pattern:   pattern,
		Chains:    chains,
		Activity:  activity,
		Decision:  decision,
		Insights:  generated,
		Completed: now,
	}, nil
}

func (a *Analyzer) generateInsights(ctx context.Context, userID string, in insights.Input, now time.Time, logger *zap.Logger) []*insights.Insight {
	active, err := a.deps.Profiles.Store().ListActiveInsights(ctx, userID, now)
	if err != nil {
		logger.Warn("active insights unavailable", zap.Error(err))
		active = nil
	}

	generated := a.deps.Generator.Generate(ctx, userID, in, active, now)
	if len(generated) == 0 {
		return nil
	}
	if err := a.deps.Profiles.SaveInsights(ctx, generated); err != nil {
		logger.Warn("insights not stored", zap.Error(err))
	}
	return generated
}

// SubmitAssessment scores a questionnaire synchronously and stores it. The
// assessment is also recorded as a behavior event and a re-analysis is
// requested; both are best effort.
func (a *Analyzer) SubmitAssessment(ctx context.Context, userID string, answers scoring.RiskAnswers) (*profile.RiskProfile, error) {
	assessment, err := scoring.AssessRisk(answers)
	if err != nil {
		return nil, err
	}

	saved, err := a.deps.Profiles.SaveRisk(ctx, userID, answers, assessment, TriggerAssessment)
	if err != nil {
		return nil, err
	}

	logger := a.deps.Logger.With(zap.String("user_id", userID))
	event := &events.BehaviorEvent{
		UserID:  userID,
		Action:  events.ActionAssessmentSubmit,
		Element: "risk_questionnaire",
		Section: "profile",
		Metadata: map[string]any{
			"risk_tolerance_score": assessment.Score,
			"risk_category":        string(assessment.Category),
		},
	}
	if err := a.deps.Events.Append(ctx, event); err != nil {
		logger.Warn("assessment event not recorded", zap.Error(err))
	}
	if a.deps.Trigger != nil {
		if err := a.deps.Trigger.RequestAnalysis(ctx, userID, TriggerAssessment); err != nil {
			logger.Warn("assessment re-analysis not requested", zap.Error(err))
		} else {
			a.deps.Metrics.AnalysisTriggered(TriggerAssessment)
		}
	}

	logger.Info("risk assessment stored",
		zap.Float64("score", assessment.Score),
		zap.String("category", string(assessment.Category)))
	return saved, nil
}
