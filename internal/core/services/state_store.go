package services

import (
	"sync"
	"time"

	"arcast/internal/core/domain"
	"arcast/pkg/utils"
)

// StreamStatus is a point-in-time view of the streaming session.
type StreamStatus struct {
	State            domain.SessionState
	Mode             domain.StreamMode
	Generation       uint64
	SessionID        string
	ConnectedClients int
	VideoRate        float64
	TrackingRate     float64
	TrackingState    domain.TrackingState
	LastError        string
	LastErrorAt      time.Time
}

// StateStore holds the authoritative session state. Every mutation publishes
// a fresh snapshot to watchers over a capacity-1 latest-wins channel, so a
// slow watcher only ever misses intermediate states, never the newest one.
type StateStore struct {
	mu     sync.RWMutex
	status StreamStatus
	watch  *BroadcastQueue[StreamStatus]
}

func NewStateStore() *StateStore {
	s := &StateStore{
		watch: NewBroadcastQueue[StreamStatus](1, nil),
	}
	s.status.State = domain.StateIdle
	s.status.TrackingState = domain.TrackingStateStopped
	return s
}

// Snapshot returns a copy of the current status.
func (s *StateStore) Snapshot() StreamStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Watch returns the current status plus a subscription delivering future
// snapshots. Cancel the subscription when done.
func (s *StateStore) Watch() (StreamStatus, *Subscription[StreamStatus]) {
	s.mu.RLock()
	current := s.status
	s.mu.RUnlock()
	return current, s.watch.Subscribe()
}

// Close terminates all watchers.
func (s *StateStore) Close() {
	s.watch.Close()
}

func (s *StateStore) SetSessionState(state domain.SessionState) {
	s.mu.Lock()
	s.status.State = state
	snap := s.status
	s.mu.Unlock()
	s.watch.Publish(snap)
}

// SetGeneration records the active negotiation's generation and session ID.
func (s *StateStore) SetGeneration(generation uint64, sessionID string) {
	s.mu.Lock()
	s.status.Generation = generation
	s.status.SessionID = sessionID
	snap := s.status
	s.mu.Unlock()
	s.watch.Publish(snap)
}

func (s *StateStore) SetMode(mode domain.StreamMode) {
	s.mu.Lock()
	s.status.Mode = mode
	snap := s.status
	s.mu.Unlock()
	s.watch.Publish(snap)
}

func (s *StateStore) SetVideoRate(rate float64) {
	s.mu.Lock()
	s.status.VideoRate = rate
	snap := s.status
	s.mu.Unlock()
	s.watch.Publish(snap)
}

func (s *StateStore) SetTrackingRate(rate float64) {
	s.mu.Lock()
	s.status.TrackingRate = rate
	snap := s.status
	s.mu.Unlock()
	s.watch.Publish(snap)
}

func (s *StateStore) SetTrackingState(state domain.TrackingState) {
	s.mu.Lock()
	s.status.TrackingState = state
	snap := s.status
	s.mu.Unlock()
	s.watch.Publish(snap)
}

func (s *StateStore) SetConnectedClients(n int) {
	s.mu.Lock()
	s.status.ConnectedClients = n
	snap := s.status
	s.mu.Unlock()
	s.watch.Publish(snap)
}

// SetError records the latest user-facing error. Later writers win; the
// value stays until AckError.
func (s *StateStore) SetError(message string) {
	s.mu.Lock()
	s.status.LastError = message
	s.status.LastErrorAt = utils.Now()
	snap := s.status
	s.mu.Unlock()
	s.watch.Publish(snap)
}

// AckError clears the recorded error.
func (s *StateStore) AckError() {
	s.mu.Lock()
	s.status.LastError = ""
	s.status.LastErrorAt = time.Time{}
	snap := s.status
	s.mu.Unlock()
	s.watch.Publish(snap)
}
