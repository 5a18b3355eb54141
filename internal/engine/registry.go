package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Registry owns the live sessions of this instance, keyed by student ID.
// A miss hydrates from the orchestrator: local storage is only a rendering
// cache and never a resume source.
type Registry struct {
	mu       sync.Mutex
	gw       Gateway
	sink     SnapshotSink
	log      zerolog.Logger
	sessions map[string]*Session
}

// NewRegistry creates an empty session registry.
func NewRegistry(gw Gateway, sink SnapshotSink, log zerolog.Logger) *Registry {
	return &Registry{
		gw:       gw,
		sink:     sink,
		log:      log.With().Str("component", "registry").Logger(),
		sessions: make(map[string]*Session),
	}
}

// GetOrCreate returns the live session for a student, reconstructing it
// from the orchestrator's authoritative state on first access.
func (r *Registry) GetOrCreate(ctx context.Context, studentID string) (*Session, error) {
	r.mu.Lock()
	if s, ok := r.sessions[studentID]; ok {
		r.mu.Unlock()
		return s, nil
	}
	r.mu.Unlock()

	// Hydrate outside the lock; the fetch can take a network round trip.
	remote, err := r.gw.FetchState(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("fetch session state: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[studentID]; ok {
		// Concurrent hydration lost the race; keep the winner.
		return s, nil
	}
	s := NewSession(studentID, remote, r.gw, r.sink, r.log)
	r.sessions[studentID] = s
	r.log.Info().Str("student_id", studentID).Msg("Session hydrated")
	return s, nil
}

// Get returns a live session without hydrating.
func (r *Registry) Get(studentID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[studentID]
	return s, ok
}

// Delete tears a session down (navigation away or completion). The visual
// countdown stops; an in-flight exchange is left to finish.
func (r *Registry) Delete(studentID string) {
	r.mu.Lock()
	s, ok := r.sessions[studentID]
	if ok {
		delete(r.sessions, studentID)
	}
	r.mu.Unlock()

	if ok {
		s.Close()
	}
}

// CloseAll tears down every live session. Used on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for id, s := range r.sessions {
		sessions = append(sessions, s)
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}
