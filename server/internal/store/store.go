package store

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/logrelay/logrelay/pkg/types"
)

// Message is one forwarded body together with the time it was received.
type Message struct {
	Route      types.Route
	Body       string
	ReceivedAt time.Time
}

// RouteSummary describes the live messages held for one route.
type RouteSummary struct {
	Route    types.Route
	Count    int
	LastSeen time.Time
}

// Store is a thread-safe in-memory message store, keyed by route. Each route
// keeps at most max messages, oldest first. A background goroutine (Run)
// periodically evicts messages older than the retention window.
type Store struct {
	mu        sync.RWMutex
	data      map[types.Route][]Message
	retention time.Duration
	max       int
	now       func() time.Time // injectable for deterministic tests
}

// New creates a Store with the given retention and per-route cap.
func New(retention time.Duration, max int) *Store {
	if max <= 0 {
		max = 1
	}
	return &Store{
		data:      make(map[types.Route][]Message),
		retention: retention,
		max:       max,
		now:       time.Now,
	}
}

// Retention returns the configured retention window.
func (s *Store) Retention() time.Duration { return s.retention }

// Put appends body to the route's messages, dropping the oldest when the
// route is at capacity, and returns the stored Message.
func (s *Store) Put(route types.Route, body string) Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := Message{Route: route, Body: body, ReceivedAt: s.now()}
	msgs := append(s.data[route], m)
	if over := len(msgs) - s.max; over > 0 {
		msgs = append(msgs[:0:0], msgs[over:]...)
	}
	s.data[route] = msgs
	return m
}

// List returns a copy of the live messages for route, oldest first.
// Expired messages that have not yet been evicted are excluded.
func (s *Store) List(route types.Route) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cutoff := s.now().Add(-s.retention)
	msgs := s.data[route]
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if m.ReceivedAt.After(cutoff) {
			out = append(out, m)
		}
	}
	return out
}

// Routes summarises every route that still holds live messages, sorted by
// hostname then key.
func (s *Store) Routes() []RouteSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cutoff := s.now().Add(-s.retention)
	out := make([]RouteSummary, 0, len(s.data))
	for route, msgs := range s.data {
		sum := RouteSummary{Route: route}
		for _, m := range msgs {
			if m.ReceivedAt.After(cutoff) {
				sum.Count++
				sum.LastSeen = m.ReceivedAt
			}
		}
		if sum.Count > 0 {
			out = append(out, sum)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Route.Hostname != out[j].Route.Hostname {
			return out[i].Route.Hostname < out[j].Route.Hostname
		}
		return out[i].Route.Key < out[j].Route.Key
	})
	return out
}

// Count returns the total number of messages currently held, including expired ones.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, msgs := range s.data {
		n += len(msgs)
	}
	return n
}

// Evict removes messages whose ReceivedAt is older than now minus retention,
// and routes left empty. It returns the number of messages removed.
func (s *Store) Evict(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now.Add(-s.retention)
	removed := 0
	for route, msgs := range s.data {
		// Messages are appended in arrival order, so expired ones form a prefix.
		i := 0
		for i < len(msgs) && !msgs[i].ReceivedAt.After(cutoff) {
			i++
		}
		if i == 0 {
			continue
		}
		removed += i
		if i == len(msgs) {
			delete(s.data, route)
			continue
		}
		s.data[route] = append(msgs[:0:0], msgs[i:]...)
	}
	return removed
}

// Run starts the background eviction loop. It ticks at half the retention
// window (minimum 1 second) and blocks until ctx is cancelled.
func (s *Store) Run(ctx context.Context) {
	interval := s.retention / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := s.Evict(now); n > 0 {
				slog.Debug("store: evicted expired messages", "count", n)
			}
		}
	}
}
