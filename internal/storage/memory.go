package storage

import (
	"cmp"
	"context"
	"slices"
	"sync"
)

// Memory is an in-process Backend used for tests and throwaway sessions.
type Memory struct {
	mu   sync.RWMutex
	docs map[Key][]byte
}

// NewMemory returns an empty memory backend.
func NewMemory() *Memory {
	return &Memory{docs: make(map[Key][]byte)}
}

func (m *Memory) Get(_ context.Context, k Key) ([]byte, error) {
	if err := k.Validate(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.docs[k]
	if !ok {
		return nil, notFound(k)
	}
	return slices.Clone(data), nil
}

func (m *Memory) Put(_ context.Context, k Key, data []byte) error {
	if err := k.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[k] = slices.Clone(data)
	return nil
}

func (m *Memory) Delete(_ context.Context, k Key) error {
	if err := k.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[k]; !ok {
		return notFound(k)
	}
	delete(m.docs, k)
	return nil
}

func (m *Memory) List(_ context.Context, projectID, stageID string) ([]Key, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Key
	for k := range m.docs {
		if matches(k, projectID, stageID) {
			out = append(out, k)
		}
	}
	slices.SortFunc(out, compareKeys)
	return out, nil
}

func compareKeys(a, b Key) int {
	return cmp.Or(
		cmp.Compare(a.ProjectID, b.ProjectID),
		cmp.Compare(a.StageID, b.StageID),
		cmp.Compare(a.DocumentID, b.DocumentID),
	)
}
