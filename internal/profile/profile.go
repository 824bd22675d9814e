// Package profile is the boundary to the external profile store. The core
// only ever asks two questions about a participant: has onboarding finished,
// and does the identity hold a role. Everything else about profiles lives
// outside this service.
package profile

import "sync"

type Directory interface {
	IsOnboarded(identity string) bool
	HasRole(identity, role string) bool
}

// Static is an in-memory Directory used in tests and single-node demos.
type Static struct {
	mu        sync.RWMutex
	onboarded map[string]bool
	roles     map[string]map[string]bool
}

func NewStatic() *Static {
	return &Static{
		onboarded: make(map[string]bool),
		roles:     make(map[string]map[string]bool),
	}
}

func (s *Static) SetOnboarded(identity string, done bool) error {
	s.mu.Lock()
	s.onboarded[identity] = done
	s.mu.Unlock()
	return nil
}

func (s *Static) GrantRole(identity, role string) {
	s.mu.Lock()
	if s.roles[identity] == nil {
		s.roles[identity] = make(map[string]bool)
	}
	s.roles[identity][role] = true
	s.mu.Unlock()
}

func (s *Static) IsOnboarded(identity string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.onboarded[identity]
}

func (s *Static) HasRole(identity, role string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.roles[identity][role]
}
