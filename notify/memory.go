package notify

import (
	"context"
	"sync"
)

// Memory is an in-process Channel. Handlers run on the publisher's
// goroutine and must not block.
type Memory struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]func(Change)
}

func NewMemory() *Memory {
	return &Memory{subs: make(map[string]map[int]func(Change))}
}

func (m *Memory) Publish(_ context.Context, c Change) error {
	t := topic("", c.LearnerID, c.CourseID)

	m.mu.RLock()
	handlers := make([]func(Change), 0, len(m.subs[t]))
	for _, fn := range m.subs[t] {
		handlers = append(handlers, fn)
	}
	m.mu.RUnlock()

	for _, fn := range handlers {
		fn(c)
	}
	return nil
}

func (m *Memory) Subscribe(_ context.Context, learnerID, courseID string, fn func(Change)) (func(), error) {
	t := topic("", learnerID, courseID)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	id := m.nextID
	if m.subs[t] == nil {
		m.subs[t] = make(map[int]func(Change))
	}
	m.subs[t][id] = fn

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.subs[t], id)
			if len(m.subs[t]) == 0 {
				delete(m.subs, t)
			}
		})
	}
	return unsubscribe, nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = make(map[string]map[int]func(Change))
	return nil
}
