package instancestore

import (
	"fmt"
	"sync"

	"github.com/cuemby/corescale/pkg/types"
)

// MemStore is an in-memory Store, used by package tests that don't
// need BoltDB's durability.
type MemStore struct {
	mu        sync.Mutex
	instances map[string]*types.Instance
	version   int64
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{instances: map[string]*types.Instance{}}
}

func (s *MemStore) PutInstance(inst *types.Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *inst
	s.instances[inst.InstanceID] = &cp
	return nil
}

func (s *MemStore) GetInstance(id string) (*types.Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.instances[id]
	if !ok {
		return nil, fmt.Errorf("instance not found: %s", id)
	}
	cp := *inst
	return &cp, nil
}

func (s *MemStore) ListInstances() ([]*types.Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*types.Instance, 0, len(s.instances))
	for _, inst := range s.instances {
		cp := *inst
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemStore) DeleteInstance(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.instances, id)
	return nil
}

func (s *MemStore) GetVersion() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version, nil
}

func (s *MemStore) SetVersion(v int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.version = v
	return nil
}

func (s *MemStore) Close() error { return nil }
