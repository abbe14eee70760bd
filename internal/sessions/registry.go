// Package sessions tracks live conversational connections. The registry has
// an explicit lifecycle: a session is created when a client connects, its
// chat history accumulates for the connection's lifetime, and Destroy hands
// the final history back exactly once for a post-hoc summary before the
// session is disposed.
package sessions

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voxquery/voxquery/pkg/models"
)

// ErrNotFound is returned for operations on unknown or destroyed sessions.
var ErrNotFound = errors.New("session not found")

// maxMessagesPerSession bounds per-session history to prevent unbounded
// memory growth; the oldest messages are trimmed past the limit.
const maxMessagesPerSession = 1000

type entry struct {
	session  models.Session
	messages []models.Message
}

// Registry is an in-memory session store safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry

	// onCountChange, if set, observes the live session count (for metrics).
	onCountChange func(int)
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{entries: map[string]*entry{}}
}

// OnCountChange registers a callback invoked with the session count after
// every create or destroy.
func (r *Registry) OnCountChange(fn func(int)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onCountChange = fn
}

// Create registers a new session. An empty id is replaced with a fresh UUID.
// Creating an id that already exists is an error: session ids are owned by
// the connection lifecycle, not reused.
func (r *Registry) Create(ctx context.Context, id string) (*models.Session, error) {
	if id == "" {
		id = uuid.NewString()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[id]; exists {
		return nil, errors.New("session already exists: " + id)
	}
	now := time.Now()
	e := &entry{session: models.Session{ID: id, CreatedAt: now, UpdatedAt: now}}
	r.entries[id] = e
	if r.onCountChange != nil {
		r.onCountChange(len(r.entries))
	}
	s := e.session
	return &s, nil
}

// Get returns a copy of the session.
func (r *Registry) Get(ctx context.Context, id string) (*models.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	s := e.session
	return &s, nil
}

// Append adds one message to the session's history.
func (r *Registry) Append(ctx context.Context, id string, role models.Role, content string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return ErrNotFound
	}
	e.messages = append(e.messages, models.Message{
		ID:        uuid.NewString(),
		SessionID: id,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	})
	if len(e.messages) > maxMessagesPerSession {
		e.messages = e.messages[len(e.messages)-maxMessagesPerSession:]
	}
	e.session.UpdatedAt = time.Now()
	return nil
}

// History returns a copy of the session's ordered chat history.
func (r *Registry) History(ctx context.Context, id string) ([]models.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]models.Message(nil), e.messages...), nil
}

// Destroy removes the session and returns its final history for one last
// read (the post-hoc summary). Further operations on the id fail with
// ErrNotFound.
func (r *Registry) Destroy(ctx context.Context, id string) ([]models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	delete(r.entries, id)
	if r.onCountChange != nil {
		r.onCountChange(len(r.entries))
	}
	return e.messages, nil
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
