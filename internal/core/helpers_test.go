package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// memBlobs is an in-memory BlobStore with switchable failures.
type memBlobs struct {
	mu       sync.Mutex
	data     map[string][]byte
	writes   int
	readErr  error
	writeErr error
}

func newMemBlobs() *memBlobs {
	return &memBlobs{data: make(map[string][]byte)}
}

func (m *memBlobs) Read(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return nil, false, m.readErr
	}
	d, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), d...), true, nil
}

func (m *memBlobs) Write(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	m.data[key] = append([]byte(nil), data...)
	m.writes++
	return nil
}

func (m *memBlobs) get(key string) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.data[key]...)
}

func (m *memBlobs) set(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = data
}

func (m *memBlobs) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// seqIDGen hands out task-1, task-2, ...
type seqIDGen struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDGen) GenerateTaskID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("task-%d", g.n), nil
}

// fixedIDGen always returns the same id, to force collisions.
type fixedIDGen string

func (g fixedIDGen) GenerateTaskID() (string, error) { return string(g), nil }

type failingIDGen struct{}

func (failingIDGen) GenerateTaskID() (string, error) { return "", errors.New("entropy exhausted") }

// recordedEvent is one LogEvent call.
type recordedEvent struct {
	Type string
	Data map[string]any
}

type recordingEvents struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recordingEvents) LogEvent(eventType string, data map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{Type: eventType, Data: data})
	return nil
}

func (r *recordingEvents) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func (r *recordingEvents) count(eventType string) int {
	n := 0
	for _, t := range r.types() {
		if t == eventType {
			n++
		}
	}
	return n
}

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}
