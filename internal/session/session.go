// Package session groups a user's events into sessions separated by an
// inactivity gap.
package session

import (
	"sort"
	"time"

	"github.com/FairForge/dropsense/internal/events"
)

// DefaultGap closes a session after 30 minutes without events.
const DefaultGap = 30 * time.Minute

// Session is a non-empty, time-ordered run of one user's events.
type Session struct {
	Events []*events.BehaviorEvent
}

// Start is the first event time.
func (s Session) Start() time.Time {
	return s.Events[0].Timestamp
}

// End is the last event time.
func (s Session) End() time.Time {
	return s.Events[len(s.Events)-1].Timestamp
}

// Duration is End minus Start; zero for a single-event session.
func (s Session) Duration() time.Duration {
	return s.End().Sub(s.Start())
}

// Len is the number of events in the session.
func (s Session) Len() int {
	return len(s.Events)
}

// Reconstruct splits evts into sessions. A gap strictly greater than gap
// between consecutive events starts a new session. The input is not
// modified; it is sorted by timestamp (stable) before grouping so the
// result is the same for any ordering of the same events. A non-positive
// gap uses DefaultGap.
func Reconstruct(evts []*events.BehaviorEvent, gap time.Duration) []Session {
	if len(evts) == 0 {
		return nil
	}
	if gap <= 0 {
		gap = DefaultGap
	}

	sorted := make([]*events.BehaviorEvent, len(evts))
	copy(sorted, evts)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Timestamp.Equal(sorted[j].Timestamp) {
			return sorted[i].ID < sorted[j].ID
		}
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	var sessions []Session
	current := []*events.BehaviorEvent{sorted[0]}
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Timestamp.Sub(sorted[i-1].Timestamp) > gap {
			sessions = append(sessions, Session{Events: current})
			current = nil
		}
		current = append(current, sorted[i])
	}
	return append(sessions, Session{Events: current})
}

// TotalDuration sums the duration of every session.
func TotalDuration(sessions []Session) time.Duration {
	var total time.Duration
	for _, s := range sessions {
		total += s.Duration()
	}
	return total
}
