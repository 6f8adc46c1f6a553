// Package patterns reduces a user's events and sessions into a
// BehaviorPattern.
package patterns

import (
	"sort"
	"strings"
	"time"

	"github.com/FairForge/dropsense/internal/events"
	"github.com/FairForge/dropsense/internal/session"
)

// DefaultMinEvents is the floor below which the default pattern is used.
const DefaultMinEvents = 5

// activity thresholds over the trailing week
const (
	activityWindow     = 7 * 24 * time.Hour
	mediumActivityFrom = 10
	highActivityFrom   = 25
	veryHighFrom       = 50
)

// Extractor computes behavior patterns.
type Extractor struct {
	MinEvents int
}

// NewExtractor returns an extractor with the given data floor. A negative
// floor uses DefaultMinEvents.
func NewExtractor(minEvents int) *Extractor {
	if minEvents < 0 {
		minEvents = DefaultMinEvents
	}
	return &Extractor{MinEvents: minEvents}
}

// Extract builds the pattern for userID. sessions must come from the same
// events. With fewer than MinEvents events the fixed default is returned.
func (x *Extractor) Extract(userID string, evts []*events.BehaviorEvent, sessions []session.Session, now time.Time) *BehaviorPattern {
	if len(evts) < x.MinEvents || len(evts) == 0 {
		return DefaultPattern(userID, len(evts), now)
	}

	p := DefaultPattern(userID, len(evts), now)
	p.Default = false

	weekAgo := now.Add(-activityWindow)
	started, completed := 0, 0

	for _, e := range evts {
		switch e.Action {
		case events.ActionClick:
			p.ClickPatterns[e.Section+"_"+e.Element]++
		case events.ActionView:
			p.ViewPatterns[e.Section]++
		case events.ActionTaskStart:
			started++
		case events.ActionTaskComplete:
			completed++
		}

		if e.DurationMs != nil {
			p.TimeSpentMs[e.Section] += *e.DurationMs
			p.FeatureTimeMs[e.Feature()] += *e.DurationMs
		}

		p.DeviceUsage[deviceClass(e.MetaString(events.MetaDevice))]++
		p.FeatureUsage[e.Feature()]++
		p.HourlyActivity[e.Timestamp.Hour()]++

		if !p.AccessibilitySignal && accessibilitySignal(e) {
			p.AccessibilitySignal = true
		}
		if !e.Timestamp.Before(weekAgo) && !e.Timestamp.After(now) {
			p.RecentEvents++
		}
	}

	p.ActivityLevel = ActivityLevelFor(p.RecentEvents)
	p.SessionCount = len(sessions)
	p.AvgSessionDuration = averageSessionDuration(sessions)
	p.Success = successMetrics(started, completed)
	return p
}

// ActivityLevelFor maps a weekly event count to a level.
func ActivityLevelFor(weeklyEvents int) ActivityLevel {
	switch {
	case weeklyEvents < mediumActivityFrom:
		return ActivityLow
	case weeklyEvents < highActivityFrom:
		return ActivityMedium
	case weeklyEvents < veryHighFrom:
		return ActivityHigh
	default:
		return ActivityVeryHigh
	}
}

// averageSessionDuration counts single-event sessions as zero-length.
func averageSessionDuration(sessions []session.Session) time.Duration {
	if len(sessions) == 0 {
		return 0
	}
	return session.TotalDuration(sessions) / time.Duration(len(sessions))
}

func successMetrics(started, completed int) SuccessMetrics {
	total := started
	if completed > total {
		total = completed
	}
	m := SuccessMetrics{CompletedTasks: completed, TotalTasks: total}
	if total > 0 {
		m.SuccessRate = float64(completed) / float64(total)
	}
	return m
}

func deviceClass(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case DeviceMobile, "phone":
		return DeviceMobile
	case DeviceTablet:
		return DeviceTablet
	default:
		return DeviceDesktop
	}
}

func accessibilitySignal(e *events.BehaviorEvent) bool {
	if on, ok := e.MetaBool(events.MetaAccessibility); ok && on {
		return true
	}
	f := strings.ToLower(e.Feature())
	return strings.Contains(f, "accessibility") || strings.Contains(f, "high_contrast")
}

// ChainInteraction is one on-chain action the user took through the app.
type ChainInteraction struct {
	Chain     string
	Success   bool
	GasSpent  float64
	Timestamp time.Time
}

// ChainInteractions extracts events that carry metadata.chain, oldest
// first. A missing metadata.success counts as success for completion
// actions and failure otherwise.
func ChainInteractions(evts []*events.BehaviorEvent) []ChainInteraction {
	var out []ChainInteraction
	for _, e := range evts {
		chain := strings.ToLower(strings.TrimSpace(e.MetaString(events.MetaChain)))
		if chain == "" {
			continue
		}
		ok, set := e.MetaBool(events.MetaSuccess)
		if !set {
			ok = e.Action == events.ActionTaskComplete || e.Action == events.ActionAirdropComplete
		}
		gas, _ := e.MetaFloat(events.MetaGas)
		if gas < 0 {
			gas = 0
		}
		out = append(out, ChainInteraction{
			Chain:     chain,
			Success:   ok,
			GasSpent:  gas,
			Timestamp: e.Timestamp,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}
