package session

import (
	"context"
	"sync"
	"time"
)

// Memory is a single in-process session.
type Memory struct {
	mu    sync.RWMutex
	slots map[string]string
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Get(context.Context) (*Actor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return decode(m.slots), nil
}

func (m *Memory) Set(_ context.Context, actor Actor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots = encode(actor)
	return nil
}

func (m *Memory) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots = nil
	return nil
}

type memoryEntry struct {
	slots   map[string]string
	expires time.Time
}

// MemoryProvider keeps sessions in process memory. Sessions are lost on restart.
// An entry exists only between Set and Clear, and is dropped once ttl passes.
type MemoryProvider struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	sessions map[string]memoryEntry
}

// NewMemoryProvider keeps sessions for ttl after they are set. Zero keeps them until cleared.
func NewMemoryProvider(ttl time.Duration) *MemoryProvider {
	return &MemoryProvider{ttl: ttl, now: time.Now, sessions: make(map[string]memoryEntry)}
}

// Session returns a handle for id. Nothing is stored until the handle is Set.
func (p *MemoryProvider) Session(id string) Store {
	return &memorySession{provider: p, id: id}
}

// Len reports how many live sessions are held.
func (p *MemoryProvider) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prune()
	return len(p.sessions)
}

func (p *MemoryProvider) get(id string) map[string]string {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.sessions[id]
	if !ok {
		return nil
	}
	if p.expired(e) {
		delete(p.sessions, id)
		return nil
	}
	return e.slots
}

func (p *MemoryProvider) set(id string, slots map[string]string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.prune()
	e := memoryEntry{slots: slots}
	if p.ttl > 0 {
		e.expires = p.now().Add(p.ttl)
	}
	p.sessions[id] = e
}

func (p *MemoryProvider) clear(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.sessions, id)
}

// prune drops expired entries. Callers hold mu.
func (p *MemoryProvider) prune() {
	if p.ttl <= 0 {
		return
	}
	for id, e := range p.sessions {
		if p.expired(e) {
			delete(p.sessions, id)
		}
	}
}

func (p *MemoryProvider) expired(e memoryEntry) bool {
	return !e.expires.IsZero() && p.now().After(e.expires)
}

type memorySession struct {
	provider *MemoryProvider
	id       string
}

func (s *memorySession) Get(context.Context) (*Actor, error) {
	return decode(s.provider.get(s.id)), nil
}

func (s *memorySession) Set(_ context.Context, actor Actor) error {
	s.provider.set(s.id, encode(actor))
	return nil
}

func (s *memorySession) Clear(context.Context) error {
	s.provider.clear(s.id)
	return nil
}
