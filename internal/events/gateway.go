package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/FairForge/dropsense/internal/config"
	"github.com/FairForge/dropsense/internal/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Trigger receives analysis requests from the write path. Implementations
// must return quickly; the ingesting caller never waits on analysis.
type Trigger interface {
	RequestAnalysis(ctx context.Context, userID, reason string) error
}

// Gateway is the single entry point for writing and reading behavior events.
type Gateway struct {
	store   Store
	trigger Trigger
	policy  *config.Live
	logger  *zap.Logger
	metrics *metrics.Collector
	now     func() time.Time

	mu       sync.Mutex
	counters map[string]int64
}

// NewGateway wires the store to the analysis trigger.
func NewGateway(store Store, trigger Trigger, policy *config.Live, logger *zap.Logger, m *metrics.Collector) *Gateway {
	return &Gateway{
		store:    store,
		trigger:  trigger,
		policy:   policy,
		logger:   logger,
		metrics:  m,
		now:      time.Now,
		counters: make(map[string]int64),
	}
}

// Append validates and stores an event. Every time the user's event count
// reaches a multiple of the trigger cadence an analysis is requested;
// trigger failures are logged and never returned.
func (g *Gateway) Append(ctx context.Context, event *BehaviorEvent) error {
	if err := event.Validate(); err != nil {
		g.metrics.EventRejected("validation")
		return err
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = g.now().UTC()
	}

	if err := g.seed(ctx, event.UserID); err != nil {
		g.logger.Warn("event counter unavailable",
			zap.String("user_id", event.UserID),
			zap.Error(err))
	}

	if err := g.store.Append(ctx, event); err != nil {
		g.metrics.EventRejected("store")
		return fmt.Errorf("append event: %w", err)
	}
	g.metrics.EventIngested(string(event.Action))

	count, ok := g.increment(event.UserID)
	if !ok {
		return nil
	}

	every := int64(g.policy.Policy().TriggerEvery)
	if every > 0 && count%every == 0 {
		reason := fmt.Sprintf("event_count:%d", count)
		if err := g.trigger.RequestAnalysis(ctx, event.UserID, reason); err != nil {
			g.logger.Warn("analysis trigger failed",
				zap.String("user_id", event.UserID),
				zap.Int64("count", count),
				zap.Error(err))
		} else {
			g.metrics.AnalysisTriggered("ingest")
		}
	}
	return nil
}

// seed loads the stored event count the first time this process sees a
// user. It runs before the append so the new event is counted exactly once.
func (g *Gateway) seed(ctx context.Context, userID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.counters[userID]; ok {
		return nil
	}
	n, err := g.store.Count(ctx, userID)
	if err != nil {
		return err
	}
	g.counters[userID] = n
	return nil
}

// increment bumps the per-user counter. It reports false when the counter
// was never seeded.
func (g *Gateway) increment(userID string) (int64, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, ok := g.counters[userID]
	if !ok {
		return 0, false
	}
	n++
	g.counters[userID] = n
	return n, true
}

// Query reads events back. Order must be set on q.
func (g *Gateway) Query(ctx context.Context, q Query) ([]*BehaviorEvent, error) {
	return g.store.Query(ctx, q)
}

// Recent returns up to limit of the user's newest events, newest first.
func (g *Gateway) Recent(ctx context.Context, userID string, limit int) ([]*BehaviorEvent, error) {
	return g.store.Query(ctx, Query{UserID: userID, Limit: limit, Order: NewestFirst})
}

// ActiveUsers lists users with at least one event since the given time.
func (g *Gateway) ActiveUsers(ctx context.Context, since time.Time) ([]string, error) {
	return g.store.ActiveUsers(ctx, since)
}
