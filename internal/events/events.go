package events

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Action is the kind of interaction a behavior event records.
type Action string

const (
	ActionClick            Action = "click"
	ActionView             Action = "view"
	ActionHover            Action = "hover"
	ActionScroll           Action = "scroll"
	ActionSearch           Action = "search"
	ActionFilter           Action = "filter"
	ActionNavigate         Action = "navigate"
	ActionTaskStart        Action = "task_start"
	ActionTaskComplete     Action = "task_complete"
	ActionAirdropJoin      Action = "airdrop_join"
	ActionAirdropComplete  Action = "airdrop_complete"
	ActionChainInteraction Action = "chain_interaction"
	ActionFeatureUse       Action = "feature_use"
	ActionAssessmentSubmit Action = "assessment_submit"
)

var validActions = map[Action]bool{
	ActionClick:            true,
	ActionView:             true,
	ActionHover:            true,
	ActionScroll:           true,
	ActionSearch:           true,
	ActionFilter:           true,
	ActionNavigate:         true,
	ActionTaskStart:        true,
	ActionTaskComplete:     true,
	ActionAirdropJoin:      true,
	ActionAirdropComplete:  true,
	ActionChainInteraction: true,
	ActionFeatureUse:       true,
	ActionAssessmentSubmit: true,
}

// Valid reports whether a is part of the closed action enumeration.
func (a Action) Valid() bool {
	return validActions[a]
}

// Actions lists every accepted action.
func Actions() []Action {
	out := make([]Action, 0, len(validActions))
	for a := range validActions {
		out = append(out, a)
	}
	return out
}

// Metadata keys with meaning to the analysis pipeline.
const (
	MetaDevice        = "device"
	MetaFeature       = "feature"
	MetaChain         = "chain"
	MetaSuccess       = "success"
	MetaGas           = "gas"
	MetaAccessibility = "accessibility"
)

// BehaviorEvent is a single recorded user interaction. Events are immutable
// once appended; corrections are new events.
type BehaviorEvent struct {
	ID         string         `json:"id"`
	UserID     string         `json:"user_id"`
	Action     Action         `json:"action"`
	Element    string         `json:"element"`
	Section    string         `json:"section"`
	DurationMs *int64         `json:"duration_ms,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// ValidationError reports a malformed event. It is the only error the
// ingestion path surfaces to clients.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid event: %s %s", e.Field, e.Reason)
}

// IsValidationError reports whether err wraps a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Validate checks required fields and the action enumeration.
func (e *BehaviorEvent) Validate() error {
	if strings.TrimSpace(e.UserID) == "" {
		return &ValidationError{Field: "user_id", Reason: "is required"}
	}
	if e.Action == "" {
		return &ValidationError{Field: "action", Reason: "is required"}
	}
	if !e.Action.Valid() {
		return &ValidationError{Field: "action", Reason: fmt.Sprintf("%q is not a known action", e.Action)}
	}
	if strings.TrimSpace(e.Element) == "" {
		return &ValidationError{Field: "element", Reason: "is required"}
	}
	if strings.TrimSpace(e.Section) == "" {
		return &ValidationError{Field: "section", Reason: "is required"}
	}
	if e.DurationMs != nil && *e.DurationMs < 0 {
		return &ValidationError{Field: "duration_ms", Reason: "must not be negative"}
	}
	return nil
}

// Duration returns the reported dwell time, zero when absent.
func (e *BehaviorEvent) Duration() time.Duration {
	if e.DurationMs == nil {
		return 0
	}
	return time.Duration(*e.DurationMs) * time.Millisecond
}

// MetaString returns a metadata value as a string.
func (e *BehaviorEvent) MetaString(key string) string {
	v, ok := e.Metadata[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

// MetaFloat returns a numeric metadata value. Strings are parsed.
func (e *BehaviorEvent) MetaFloat(key string) (float64, bool) {
	switch t := e.Metadata[key].(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// MetaBool returns a boolean metadata value. "true"/"1" strings count.
func (e *BehaviorEvent) MetaBool(key string) (bool, bool) {
	switch t := e.Metadata[key].(type) {
	case bool:
		return t, true
	case string:
		b, err := strconv.ParseBool(t)
		return b, err == nil
	case float64:
		return t != 0, true
	default:
		return false, false
	}
}

// Feature names the product feature an event belongs to: the explicit
// metadata.feature when present, otherwise the section.
func (e *BehaviorEvent) Feature() string {
	if f := strings.TrimSpace(e.MetaString(MetaFeature)); f != "" {
		return f
	}
	return e.Section
}

// Int64 is a convenience for building optional durations.
func Int64(v int64) *int64 {
	return &v
}
