// Package adaptation maps a user's pattern and scores to a UI
// configuration and applies it behind a confidence gate.
package adaptation

import (
	"context"
	"errors"
	"time"
)

// ErrPersistence wraps failures writing the adaptation state.
var ErrPersistence = errors.New("adaptation: persistence failed")

type LayoutDensity string

const (
	LayoutCompact     LayoutDensity = "COMPACT"
	LayoutComfortable LayoutDensity = "COMFORTABLE"
	LayoutSpacious    LayoutDensity = "SPACIOUS"
)

type ColorScheme string

const (
	ColorDark         ColorScheme = "DARK"
	ColorHighContrast ColorScheme = "HIGH_CONTRAST"
	ColorLight        ColorScheme = "LIGHT"
	ColorDefault      ColorScheme = "DEFAULT"
)

type ContentFocus string

const (
	FocusSecurity   ContentFocus = "SECURITY"
	FocusEfficiency ContentFocus = "EFFICIENCY"
	FocusDiscovery  ContentFocus = "DISCOVERY"
	FocusAnalytics  ContentFocus = "ANALYTICS"
)

type NotificationLevel string

const (
	NotifyMinimal NotificationLevel = "MINIMAL"
	NotifyNormal  NotificationLevel = "NORMAL"
	NotifyVerbose NotificationLevel = "VERBOSE"
)

type AutomationLevel string

const (
	AutomationManual    AutomationLevel = "MANUAL"
	AutomationAssisted  AutomationLevel = "ASSISTED"
	AutomationAutomated AutomationLevel = "AUTOMATED"
)

// Config is the discrete UI decision vector for one user.
type Config struct {
	LayoutDensity     LayoutDensity     `json:"layout_density"`
	ColorScheme       ColorScheme       `json:"color_scheme"`
	ContentFocus      ContentFocus      `json:"content_focus"`
	NotificationLevel NotificationLevel `json:"notification_level"`
	AutomationLevel   AutomationLevel   `json:"automation_level"`
	FeaturePriority   []string          `json:"feature_priority"`
	Widgets           map[string]bool   `json:"widget_visibility"`
	Shortcuts         map[string]string `json:"shortcuts"` // key -> feature
}

// DefaultConfig is served to users that never cleared the gate.
func DefaultConfig() Config {
	return Config{
		LayoutDensity:     LayoutSpacious,
		ColorScheme:       ColorDefault,
		ContentFocus:      FocusDiscovery,
		NotificationLevel: NotifyNormal,
		AutomationLevel:   AutomationManual,
		FeaturePriority:   []string{},
		Widgets:           map[string]bool{WidgetInsights: true, WidgetTutorial: true},
		Shortcuts:         DefaultShortcuts(),
	}
}

// Record is one applied decision in the adaptation history.
type Record struct {
	Reason     string    `json:"reason"`
	Rules      []string  `json:"rules"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
	Snapshot   Config    `json:"snapshot"`
}

// State is the stored projection: the config in force plus its history.
type State struct {
	UserID    string    `json:"user_id"`
	Config    Config    `json:"config"`
	History   []Record  `json:"adaptation_history"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store persists adaptation state. ApplyAdaptation replaces the config and
// appends rec to the history in one step.
type Store interface {
	GetAdaptation(ctx context.Context, userID string) (*State, error)
	ApplyAdaptation(ctx context.Context, userID string, cfg Config, rec Record) error
}
