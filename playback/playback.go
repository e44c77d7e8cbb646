// Package playback tracks the streams currently being delivered.
package playback

import (
	"sort"
	"sync"
	"time"
)

type Session struct {
	ID         uint64
	Client     string
	Renderer   string
	ResourceID string
	Title      string
	Started    time.Time
}

// Sessions is the set of active playback sessions. It is safe for
// concurrent use.
type Sessions struct {
	mu       sync.Mutex
	next     uint64
	active   map[uint64]Session
	onChange func(active int)
	now      func() time.Time
}

// NewSessions returns an empty set. onChange, if not nil, is called with
// the new size after every Start and effective Stop.
func NewSessions(onChange func(active int)) *Sessions {
	return &Sessions{
		active:   make(map[uint64]Session),
		onChange: onChange,
		now:      time.Now,
	}
}

// Start registers a session and returns the function that ends it. The
// returned function may be called any number of times.
func (s *Sessions) Start(client, renderer, resourceID, title string) (Session, func()) {
	s.mu.Lock()
	s.next++
	sess := Session{
		ID:         s.next,
		Client:     client,
		Renderer:   renderer,
		ResourceID: resourceID,
		Title:      title,
		Started:    s.now(),
	}
	s.active[sess.ID] = sess
	n := len(s.active)
	s.mu.Unlock()
	s.changed(n)

	var once sync.Once
	return sess, func() { once.Do(func() { s.Stop(sess.ID) }) }
}

// Stop removes a session. Unknown ids are ignored.
func (s *Sessions) Stop(id uint64) {
	s.mu.Lock()
	_, ok := s.active[id]
	delete(s.active, id)
	n := len(s.active)
	s.mu.Unlock()
	if ok {
		s.changed(n)
	}
}

func (s *Sessions) changed(n int) {
	if s.onChange != nil {
		s.onChange(n)
	}
}

// Snapshot returns the active sessions ordered by start.
func (s *Sessions) Snapshot() []Session {
	s.mu.Lock()
	out := make([]Session, 0, len(s.active))
	for _, sess := range s.active {
		out = append(out, sess)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}
