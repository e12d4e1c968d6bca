// Package session holds the wizard.Store implementations.
package session

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/felipefinhane/poker-ranking/internal/wizard"
)

// key length-prefixes the context so that IDs containing ':' cannot collide.
func key(contextID, actorID string) string {
	return strconv.Itoa(len(contextID)) + ":" + contextID + ":" + actorID
}

// Memory keeps sessions in process. It loses them on restart and is not
// shared between instances, so it only serves development and tests.
type Memory struct {
	mu    sync.Mutex
	store map[string]*wizard.Session
	now   func() time.Time
}

func NewMemory() *Memory {
	return &Memory{store: make(map[string]*wizard.Session), now: time.Now}
}

// WithClock replaces the clock used to stamp UpdatedAt.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.now = now
	return m
}

func (m *Memory) Load(_ context.Context, contextID, actorID string) (*wizard.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.store[key(contextID, actorID)]
	if !ok {
		return nil, nil
	}
	return s.Clone(), nil
}

func (m *Memory) Save(_ context.Context, s *wizard.Session) (*wizard.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := s.Clone()
	c.UpdatedAt = m.now()
	m.store[key(s.ContextID, s.ActorID)] = c
	return c.Clone(), nil
}

func (m *Memory) Clear(_ context.Context, contextID, actorID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.store, key(contextID, actorID))
	return nil
}

// Len returns the number of stored sessions.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.store)
}
