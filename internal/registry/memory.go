package registry

import (
	"context"
	"sort"
	"sync"

	"github.com/scan-io-git/scanio-ide/internal/findings"
)

type memoryBackend struct {
	mu    sync.RWMutex
	state map[string]map[string][]findings.TrackedAnnotation
}

// NewMemory returns a Backend keeping everything in process memory.
func NewMemory() Backend {
	return &memoryBackend{state: make(map[string]map[string][]findings.TrackedAnnotation)}
}

func (m *memoryBackend) Load(_ context.Context, project, resource string) ([]findings.TrackedAnnotation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	anns, ok := m.state[project][resource]
	if !ok {
		return nil, nil
	}
	return append([]findings.TrackedAnnotation(nil), anns...), nil
}

func (m *memoryBackend) Save(_ context.Context, project, resource string, annotations []findings.TrackedAnnotation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state[project] == nil {
		m.state[project] = make(map[string][]findings.TrackedAnnotation)
	}
	m.state[project][resource] = append([]findings.TrackedAnnotation(nil), annotations...)
	return nil
}

func (m *memoryBackend) Delete(_ context.Context, project, resource string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.state[project], resource)
	return nil
}

func (m *memoryBackend) Resources(_ context.Context, project string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.state[project]))
	for resource := range m.state[project] {
		out = append(out, resource)
	}
	sort.Strings(out)
	return out, nil
}

func (m *memoryBackend) Close() error { return nil }
