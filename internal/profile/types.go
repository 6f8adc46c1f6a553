// Package profile stores the current projection of each user's
// preferences together with an append-only evolution log.
package profile

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/FairForge/dropsense/internal/adaptation"
	"github.com/FairForge/dropsense/internal/insights"
	"github.com/FairForge/dropsense/internal/scoring"
)

var (
	// ErrPersistence wraps every store write failure.
	ErrPersistence = errors.New("profile: persistence failed")
	// ErrNotFound is returned when an insight id does not belong to the user.
	ErrNotFound = errors.New("profile: not found")
)

// Evolution categories.
const (
	CategoryRisk     = "risk"
	CategoryChain    = "chain"
	CategoryActivity = "activity"
)

// RiskProfile is the stored assessment result for one user.
type RiskProfile struct {
	UserID string `json:"user_id"`
	scoring.RiskAssessment
	Answers   scoring.RiskAnswers `json:"answers"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// ChainPreference is the stored score for one (user, chain) pair.
type ChainPreference struct {
	UserID string `json:"user_id"`
	scoring.ChainScore
	UpdatedAt time.Time `json:"updated_at"`
}

// ActivityPattern is the stored activity score for one user.
type ActivityPattern struct {
	UserID string `json:"user_id"`
	scoring.ActivityScore
	UpdatedAt time.Time `json:"updated_at"`
}

// PreferenceEvolution is one entry of the audit log. OldValue is null for
// the first value of a category.
type PreferenceEvolution struct {
	ID            int64           `json:"id"`
	UserID        string          `json:"user_id"`
	Category      string          `json:"category"`
	OldValue      json.RawMessage `json:"old_value"`
	NewValue      json.RawMessage `json:"new_value"`
	ChangeReason  string          `json:"change_reason"`
	ChangeTrigger string          `json:"change_trigger"`
	Timestamp     time.Time       `json:"timestamp"`
}

// Snapshot is the profile read model. Computed is false until any part of
// the profile exists.
type Snapshot struct {
	UserID     string            `json:"user_id"`
	Computed   bool              `json:"computed"`
	Adaptation *adaptation.State `json:"adaptation,omitempty"`
	Risk       *RiskProfile      `json:"risk_profile,omitempty"`
	Chains     []ChainPreference `json:"chain_preferences,omitempty"`
	Activity   *ActivityPattern  `json:"activity_pattern,omitempty"`
}

// Store persists every projection and the evolution log. Getters return
// nil without error for users that have no row. The Save methods write the
// projection and its evolution entries atomically: either both are stored
// or neither is.
type Store interface {
	adaptation.Store

	GetRisk(ctx context.Context, userID string) (*RiskProfile, error)
	SaveRisk(ctx context.Context, p *RiskProfile, changes ...*PreferenceEvolution) error

	ListChains(ctx context.Context, userID string) ([]ChainPreference, error)
	SaveChains(ctx context.Context, userID string, prefs []ChainPreference, changes ...*PreferenceEvolution) error

	GetActivity(ctx context.Context, userID string) (*ActivityPattern, error)
	SaveActivity(ctx context.Context, p *ActivityPattern, changes ...*PreferenceEvolution) error

	AppendEvolution(ctx context.Context, e *PreferenceEvolution) error
	ListEvolution(ctx context.Context, userID string, limit int) ([]PreferenceEvolution, error)

	SaveInsights(ctx context.Context, list []*insights.Insight) error
	ListActiveInsights(ctx context.Context, userID string, now time.Time) ([]*insights.Insight, error)
	MarkInsightRead(ctx context.Context, userID, id string) error
	MarkAllInsightsRead(ctx context.Context, userID string, now time.Time) (int, error)
}
