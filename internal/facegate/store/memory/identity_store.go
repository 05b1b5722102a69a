package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BrandonDHaskell/facegate/internal/facegate/store"
	"github.com/BrandonDHaskell/facegate/internal/facegate/types"
)

// IdentityStore is an in-memory identity table.  It is intended for use in
// tests and dev environments.
type IdentityStore struct {
	mu         sync.RWMutex
	identities map[string]store.Identity
}

func NewIdentityStore(enrollment types.Enrollment) *IdentityStore {
	s := &IdentityStore{identities: make(map[string]store.Identity, len(enrollment))}
	for name, label := range enrollment {
		name = strings.TrimSpace(name)
		if name != "" {
			s.identities[name] = store.Identity{Name: name, Label: label}
		}
	}
	return s
}

func (s *IdentityStore) Enrollment(_ context.Context) (types.Enrollment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.identities) == 0 {
		return nil, store.ErrEnrollmentNotFound
	}
	out := make(types.Enrollment, len(s.identities))
	for name, id := range s.identities {
		out[name] = id.Label
	}
	return out, nil
}

func (s *IdentityStore) Enroll(_ context.Context, name string, label int, t time.Time) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return store.ErrBlankName
	}
	if t.IsZero() {
		t = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for other, id := range s.identities {
		if id.Label == label && other != name {
			return store.ErrLabelTaken
		}
	}
	s.identities[name] = store.Identity{Name: name, Label: label, EnrolledAt: t}
	return nil
}

func (s *IdentityStore) Remove(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.identities[name]; !ok {
		return store.ErrIdentityNotFound
	}
	delete(s.identities, name)
	return nil
}

func (s *IdentityStore) List(_ context.Context) ([]store.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.Identity, 0, len(s.identities))
	for _, id := range s.identities {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out, nil
}
