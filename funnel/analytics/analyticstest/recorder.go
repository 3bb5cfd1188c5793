// Package analyticstest records analytics events for tests.
package analyticstest

import (
	"context"
	"sync"

	"github.com/m3rciful/funnelbot/funnel/analytics"
)

// Recorded is one tracked event.
type Recorded struct {
	UserID int64
	Event  analytics.Event
}

// Recorder is a synchronous analytics.Tracker.
type Recorder struct {
	mu     sync.Mutex
	events []Recorded
}

var _ analytics.Tracker = (*Recorder)(nil)

func (r *Recorder) Track(_ context.Context, userID int64, ev analytics.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Recorded{UserID: userID, Event: ev})
}

// Names returns the tracked event names in order.
func (r *Recorder) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.events))
	for i, e := range r.events {
		names[i] = e.Event.Name
	}
	return names
}

// Count returns how many events named name were tracked.
func (r *Recorder) Count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Event.Name == name {
			n++
		}
	}
	return n
}
