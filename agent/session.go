package agent

import (
	"sync"
	"time"

	"stepwise/llm"
	"stepwise/plan"
)

const defaultSessionTTL = 1 * time.Hour

// Session holds the conversation and supervision state for one client.
// A session is driven by a single cooperative loop at a time.
type Session struct {
	ID       string
	Messages []llm.Message
	Tracker  *plan.Tracker
	Replans  int // replans consumed by the current task
}

type sessionEntry struct {
	session    *Session
	lastAccess time.Time
}

// SessionStore is an in-memory session checkpointer with TTL-based eviction.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*sessionEntry
	ttl      time.Duration
	stop     chan struct{}
	tracker  func() *plan.Tracker
}

// NewSessionStore creates a store with the default TTL. newTracker builds the
// supervision state for fresh sessions; eviction runs until Close.
func NewSessionStore(newTracker func() *plan.Tracker) *SessionStore {
	ss := &SessionStore{
		sessions: make(map[string]*sessionEntry),
		ttl:      defaultSessionTTL,
		stop:     make(chan struct{}),
		tracker:  newTracker,
	}
	go ss.evictLoop()
	return ss
}

// LoadOrCreate returns the session for a given ID, creating it if needed.
func (ss *SessionStore) LoadOrCreate(id string) *Session {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if entry, ok := ss.sessions[id]; ok {
		entry.lastAccess = time.Now()
		return entry.session
	}

	sess := &Session{
		ID:      id,
		Tracker: ss.tracker(),
	}
	ss.sessions[id] = &sessionEntry{session: sess, lastAccess: time.Now()}
	return sess
}

// Get returns the session or nil.
func (ss *SessionStore) Get(id string) *Session {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	if entry, ok := ss.sessions[id]; ok {
		return entry.session
	}
	return nil
}

// Save refreshes the session's TTL.
func (ss *SessionStore) Save(id string, sess *Session) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.sessions[id] = &sessionEntry{session: sess, lastAccess: time.Now()}
}

// Delete removes a session.
func (ss *SessionStore) Delete(id string) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	delete(ss.sessions, id)
}

// Len returns the number of stored sessions.
func (ss *SessionStore) Len() int {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	return len(ss.sessions)
}

// Close stops the eviction loop.
func (ss *SessionStore) Close() {
	close(ss.stop)
}

func (ss *SessionStore) evictLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ss.evict()
		case <-ss.stop:
			return
		}
	}
}

func (ss *SessionStore) evict() {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	cutoff := time.Now().Add(-ss.ttl)
	for id, entry := range ss.sessions {
		if entry.lastAccess.Before(cutoff) {
			delete(ss.sessions, id)
		}
	}
}
