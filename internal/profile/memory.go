package profile

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/FairForge/dropsense/internal/adaptation"
	"github.com/FairForge/dropsense/internal/insights"
)

// MemoryStore keeps everything in process. It backs tests and single-node
// development runs without a database.
type MemoryStore struct {
	mu         sync.RWMutex
	risk       map[string]RiskProfile
	chains     map[string]map[string]ChainPreference
	activity   map[string]ActivityPattern
	adaptation map[string]adaptation.State
	insights   map[string]*insights.Insight
	evolution  []PreferenceEvolution
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		risk:       make(map[string]RiskProfile),
		chains:     make(map[string]map[string]ChainPreference),
		activity:   make(map[string]ActivityPattern),
		adaptation: make(map[string]adaptation.State),
		insights:   make(map[string]*insights.Insight),
	}
}

func (m *MemoryStore) GetRisk(_ context.Context, userID string) (*RiskProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.risk[userID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *MemoryStore) SaveRisk(_ context.Context, p *RiskProfile, changes ...*PreferenceEvolution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.risk[p.UserID] = *p
	m.appendEvolutionLocked(changes)
	return nil
}

// ListChains returns the user's chains, best first.
func (m *MemoryStore) ListChains(_ context.Context, userID string) ([]ChainPreference, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ChainPreference, 0, len(m.chains[userID]))
	for _, c := range m.chains[userID] {
		out = append(out, c)
	}
	sortChains(out)
	return out, nil
}

// SaveChains upserts each chain; chains not in prefs are kept.
func (m *MemoryStore) SaveChains(_ context.Context, userID string, prefs []ChainPreference, changes ...*PreferenceEvolution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byChain, ok := m.chains[userID]
	if !ok {
		byChain = make(map[string]ChainPreference)
		m.chains[userID] = byChain
	}
	for _, p := range prefs {
		byChain[p.Chain] = p
	}
	m.appendEvolutionLocked(changes)
	return nil
}

func (m *MemoryStore) GetActivity(_ context.Context, userID string) (*ActivityPattern, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.activity[userID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *MemoryStore) SaveActivity(_ context.Context, p *ActivityPattern, changes ...*PreferenceEvolution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activity[p.UserID] = *p
	m.appendEvolutionLocked(changes)
	return nil
}

func (m *MemoryStore) GetAdaptation(_ context.Context, userID string) (*adaptation.State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.adaptation[userID]
	if !ok {
		return nil, nil
	}
	s.History = slices.Clone(s.History)
	return &s, nil
}

func (m *MemoryStore) ApplyAdaptation(_ context.Context, userID string, cfg adaptation.Config, rec adaptation.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.adaptation[userID]
	s.UserID = userID
	s.Config = cfg
	s.History = append(slices.Clone(s.History), rec)
	s.UpdatedAt = rec.Timestamp
	m.adaptation[userID] = s
	return nil
}

func (m *MemoryStore) AppendEvolution(_ context.Context, e *PreferenceEvolution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendEvolutionLocked([]*PreferenceEvolution{e})
	return nil
}

func (m *MemoryStore) appendEvolutionLocked(changes []*PreferenceEvolution) {
	for _, e := range changes {
		e.ID = int64(len(m.evolution) + 1)
		m.evolution = append(m.evolution, *e)
	}
}

// ListEvolution returns the newest entries first. A non-positive limit
// returns everything.
func (m *MemoryStore) ListEvolution(_ context.Context, userID string, limit int) ([]PreferenceEvolution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []PreferenceEvolution
	for i := len(m.evolution) - 1; i >= 0; i-- {
		if m.evolution[i].UserID != userID {
			continue
		}
		out = append(out, m.evolution[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryStore) SaveInsights(_ context.Context, list []*insights.Insight) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, i := range list {
		cp := *i
		m.insights[i.ID] = &cp
	}
	return nil
}

// ListActiveInsights returns unexpired insights, newest first.
func (m *MemoryStore) ListActiveInsights(_ context.Context, userID string, now time.Time) ([]*insights.Insight, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*insights.Insight
	for _, i := range m.insights {
		if i.UserID == userID && i.Active(now) {
			cp := *i
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(a, b int) bool {
		if !out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].CreatedAt.After(out[b].CreatedAt)
		}
		return out[a].ID < out[b].ID
	})
	return out, nil
}

func (m *MemoryStore) MarkInsightRead(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.insights[id]
	if !ok || i.UserID != userID {
		return ErrNotFound
	}
	i.Read = true
	return nil
}

func (m *MemoryStore) MarkAllInsightsRead(_ context.Context, userID string, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, i := range m.insights {
		if i.UserID == userID && !i.Read && i.Active(now) {
			i.Read = true
			n++
		}
	}
	return n, nil
}

func sortChains(list []ChainPreference) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].Score != list[j].Score {
			return list[i].Score > list[j].Score
		}
		return list[i].Chain < list[j].Chain
	})
}
