package patterns

import (
	"strings"
	"time"
)

// ActivityLevel buckets how many events a user produced in the last week.
type ActivityLevel string

const (
	ActivityLow      ActivityLevel = "LOW"
	ActivityMedium   ActivityLevel = "MEDIUM"
	ActivityHigh     ActivityLevel = "HIGH"
	ActivityVeryHigh ActivityLevel = "VERY_HIGH"
)

// Device classes tallied from metadata.device.
const (
	DeviceMobile  = "mobile"
	DeviceDesktop = "desktop"
	DeviceTablet  = "tablet"
)

// NeutralRiskBaseline is the normalized risk tolerance assumed before the
// user has taken an assessment.
const NeutralRiskBaseline = 0.5

// SuccessMetrics summarizes task outcomes.
type SuccessMetrics struct {
	CompletedTasks int     `json:"completed_tasks"`
	TotalTasks     int     `json:"total_tasks"`
	SuccessRate    float64 `json:"success_rate"`
}

// BehaviorPattern is the per-user snapshot derived from events. It is
// recomputed on every analysis and never versioned.
type BehaviorPattern struct {
	UserID              string           `json:"user_id"`
	ClickPatterns       map[string]int   `json:"click_patterns"`
	ViewPatterns        map[string]int   `json:"view_patterns"`
	TimeSpentMs         map[string]int64 `json:"time_spent_ms"`
	DeviceUsage         map[string]int   `json:"device_usage"`
	FeatureUsage        map[string]int   `json:"feature_usage"`
	FeatureTimeMs       map[string]int64 `json:"feature_time_ms"`
	HourlyActivity      [24]int          `json:"hourly_activity"`
	ActivityLevel       ActivityLevel    `json:"activity_level"`
	AvgSessionDuration  time.Duration    `json:"avg_session_duration"`
	SessionCount        int              `json:"session_count"`
	TotalEvents         int              `json:"total_events"`
	RecentEvents        int              `json:"recent_events"`
	Success             SuccessMetrics   `json:"success_metrics"`
	RiskBaseline        float64          `json:"risk_baseline"`
	AccessibilitySignal bool             `json:"accessibility_signal"`
	Default             bool             `json:"default"`
	ComputedAt          time.Time        `json:"computed_at"`
}

// DefaultPattern is returned when there is too little data to learn from.
func DefaultPattern(userID string, totalEvents int, now time.Time) *BehaviorPattern {
	return &BehaviorPattern{
		UserID:        userID,
		ClickPatterns: map[string]int{},
		ViewPatterns:  map[string]int{},
		TimeSpentMs:   map[string]int64{},
		DeviceUsage: map[string]int{
			DeviceMobile:  0,
			DeviceDesktop: 0,
			DeviceTablet:  0,
		},
		FeatureUsage:  map[string]int{},
		FeatureTimeMs: map[string]int64{},
		ActivityLevel: ActivityLow,
		TotalEvents:   totalEvents,
		RiskBaseline:  NeutralRiskBaseline,
		Default:       true,
		ComputedAt:    now,
	}
}

// DistinctFeatures is the number of features with at least one use.
func (p *BehaviorPattern) DistinctFeatures() int {
	n := 0
	for _, c := range p.FeatureUsage {
		if c > 0 {
			n++
		}
	}
	return n
}

// UsesFeature reports whether any used feature name contains one of the
// given fragments (case-insensitive).
func (p *BehaviorPattern) UsesFeature(fragments ...string) bool {
	for name, c := range p.FeatureUsage {
		if c == 0 {
			continue
		}
		lower := strings.ToLower(name)
		for _, f := range fragments {
			if strings.Contains(lower, f) {
				return true
			}
		}
	}
	return false
}

// MobileDominant reports whether mobile use exceeds desktop use.
func (p *BehaviorPattern) MobileDominant() bool {
	return p.DeviceUsage[DeviceMobile] > p.DeviceUsage[DeviceDesktop]
}

// PeakHour is the hour of day with the most events, or -1 with no data.
func (p *BehaviorPattern) PeakHour() int {
	peak, best := -1, 0
	for h, c := range p.HourlyActivity {
		if c > best {
			peak, best = h, c
		}
	}
	return peak
}
