package events

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// Order selects the direction of a Query. There is no default: callers
// must say which end of the window they want.
type Order int

const (
	OldestFirst Order = iota + 1
	NewestFirst
)

// ErrOrderRequired is returned when a Query leaves Order unset.
var ErrOrderRequired = errors.New("events: query order must be specified")

// Query selects a user's events. A zero Since means no lower bound and a
// zero Limit means no limit. In both orders the limit keeps the most
// recent events.
type Query struct {
	UserID string
	Since  time.Time
	Limit  int
	Order  Order
}

// Store is the append-only event log. There is no update or delete.
type Store interface {
	Append(ctx context.Context, event *BehaviorEvent) error
	Query(ctx context.Context, q Query) ([]*BehaviorEvent, error)
	Count(ctx context.Context, userID string) (int64, error)
	// ActiveUsers lists users with at least one event at or after since.
	ActiveUsers(ctx context.Context, since time.Time) ([]string, error)
}

// MemoryStore keeps events in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	byUser map[string][]*BehaviorEvent
}

// NewMemoryStore creates an empty in-memory event store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byUser: make(map[string][]*BehaviorEvent)}
}

// Append stores a copy of event, keeping each user's slice time-ordered.
func (s *MemoryStore) Append(ctx context.Context, event *BehaviorEvent) error {
	cp := *event
	if event.DurationMs != nil {
		cp.DurationMs = Int64(*event.DurationMs)
	}
	if event.Metadata != nil {
		cp.Metadata = make(map[string]any, len(event.Metadata))
		for k, v := range event.Metadata {
			cp.Metadata[k] = v
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.byUser[cp.UserID]
	i := sort.Search(len(list), func(i int) bool {
		return list[i].Timestamp.After(cp.Timestamp)
	})
	list = append(list, nil)
	copy(list[i+1:], list[i:])
	list[i] = &cp
	s.byUser[cp.UserID] = list
	return nil
}

// Query returns matching events in the requested order.
func (s *MemoryStore) Query(ctx context.Context, q Query) ([]*BehaviorEvent, error) {
	if q.Order != OldestFirst && q.Order != NewestFirst {
		return nil, ErrOrderRequired
	}

	s.mu.RLock()
	list := s.byUser[q.UserID]
	start := 0
	if !q.Since.IsZero() {
		start = sort.Search(len(list), func(i int) bool {
			return !list[i].Timestamp.Before(q.Since)
		})
	}
	window := make([]*BehaviorEvent, len(list)-start)
	copy(window, list[start:])
	s.mu.RUnlock()

	if q.Order == NewestFirst {
		for i, j := 0, len(window)-1; i < j; i, j = i+1, j-1 {
			window[i], window[j] = window[j], window[i]
		}
	}
	if q.Limit > 0 && len(window) > q.Limit {
		if q.Order == NewestFirst {
			window = window[:q.Limit]
		} else {
			window = window[len(window)-q.Limit:]
		}
	}
	return window, nil
}

// Count returns the number of events stored for userID.
func (s *MemoryStore) Count(ctx context.Context, userID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.byUser[userID])), nil
}

// ActiveUsers lists users whose latest event is at or after since.
func (s *MemoryStore) ActiveUsers(ctx context.Context, since time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var users []string
	for user, list := range s.byUser {
		if len(list) > 0 && !list[len(list)-1].Timestamp.Before(since) {
			users = append(users, user)
		}
	}
	sort.Strings(users)
	return users, nil
}
