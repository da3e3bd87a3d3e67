package subscription

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a mutex-guarded in-memory Store. It is the reference
// implementation for tests and single-process embedding; it enforces the same
// invariants as the Postgres store.
type MemoryStore struct {
	mu         sync.RWMutex
	byID       map[uuid.UUID]*Subscription
	byRef      map[string][]uuid.UUID // insertion order, newest last
	byProvider map[string]uuid.UUID
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:       make(map[uuid.UUID]*Subscription),
		byRef:      make(map[string][]uuid.UUID),
		byProvider: make(map[string]uuid.UUID),
	}
}

func (s *MemoryStore) Create(ctx context.Context, sub *Subscription) error {
	if err := validateRecord(sub); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[sub.ID]; exists {
		return errors.Join(ErrSubscriptionExists, fmt.Errorf("id %s", sub.ID))
	}
	if err := s.checkIndexesLocked(sub); err != nil {
		return err
	}

	now := time.Now().UTC()
	sub.CreatedAt = now
	sub.UpdatedAt = now
	sub.Version = 1

	s.byID[sub.ID] = sub.Clone()
	s.byRef[sub.ReferenceID] = append(s.byRef[sub.ReferenceID], sub.ID)
	if sub.ProviderSubscriptionID != "" {
		s.byProvider[sub.ProviderSubscriptionID] = sub.ID
	}
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, sub *Subscription) error {
	if err := validateRecord(sub); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, exists := s.byID[sub.ID]
	if !exists {
		return errors.Join(ErrNotFound, fmt.Errorf("id %s", sub.ID))
	}
	if cur.Version != sub.Version {
		return errors.Join(ErrVersionMismatch, fmt.Errorf("id %s: have %d, want %d", sub.ID, sub.Version, cur.Version))
	}
	if err := s.checkIndexesLocked(sub); err != nil {
		return err
	}

	s.writeLocked(cur, sub)
	return nil
}

func (s *MemoryStore) Supersede(ctx context.Context, oldID uuid.UUID, replacement *Subscription) error {
	if err := validateRecord(replacement); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	old, exists := s.byID[oldID]
	if !exists {
		return errors.Join(ErrNotFound, fmt.Errorf("id %s", oldID))
	}
	if oldID == replacement.ID {
		return errors.Join(ErrSubscriptionExists, errors.New("record cannot supersede itself"))
	}

	// Validate the replacement as if the old record were already canceled,
	// so a failed check leaves both records untouched.
	if replacement.Live() {
		for _, id := range s.byRef[replacement.ReferenceID] {
			if id == replacement.ID || id == oldID {
				continue
			}
			if other := s.byID[id]; other.Live() {
				return errors.Join(ErrDuplicateLive, fmt.Errorf("reference %q already live via %s", replacement.ReferenceID, other.ID))
			}
		}
	}
	if replacement.ProviderSubscriptionID != "" {
		if id, ok := s.byProvider[replacement.ProviderSubscriptionID]; ok && id != replacement.ID {
			return errors.Join(ErrSubscriptionExists, fmt.Errorf("provider subscription %q already tracked by %s", replacement.ProviderSubscriptionID, id))
		}
	}

	old.Status = StatusCanceled
	old.Version++
	old.UpdatedAt = time.Now().UTC()

	if cur, ok := s.byID[replacement.ID]; ok {
		replacement.Version = cur.Version
		s.writeLocked(cur, replacement)
		return nil
	}

	now := time.Now().UTC()
	replacement.CreatedAt = now
	replacement.UpdatedAt = now
	replacement.Version = 1
	s.byID[replacement.ID] = replacement.Clone()
	s.byRef[replacement.ReferenceID] = append(s.byRef[replacement.ReferenceID], replacement.ID)
	if replacement.ProviderSubscriptionID != "" {
		s.byProvider[replacement.ProviderSubscriptionID] = replacement.ID
	}
	return nil
}

func (s *MemoryStore) ByID(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, exists := s.byID[id]
	if !exists {
		return nil, errors.Join(ErrNotFound, fmt.Errorf("id %s", id))
	}
	return sub.Clone(), nil
}

func (s *MemoryStore) ByProviderID(ctx context.Context, providerSubID string) (*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.byProvider[providerSubID]
	if !exists || providerSubID == "" {
		return nil, errors.Join(ErrNotFound, fmt.Errorf("provider subscription %q", providerSubID))
	}
	return s.byID[id].Clone(), nil
}

func (s *MemoryStore) ByReference(ctx context.Context, referenceID string) ([]*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byRef[referenceID]
	out := make([]*Subscription, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		out = append(out, s.byID[ids[i]].Clone())
	}
	return out, nil
}

func (s *MemoryStore) LiveByReference(ctx context.Context, referenceID string) (*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byRef[referenceID]
	for i := len(ids) - 1; i >= 0; i-- {
		if sub := s.byID[ids[i]]; sub.Live() {
			return sub.Clone(), nil
		}
	}
	return nil, errors.Join(ErrNotFound, fmt.Errorf("no live subscription for reference %q", referenceID))
}

func (s *MemoryStore) CurrentByReference(ctx context.Context, referenceID string) (*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byRef[referenceID]
	for i := len(ids) - 1; i >= 0; i-- {
		if sub := s.byID[ids[i]]; !sub.Terminal() {
			return sub.Clone(), nil
		}
	}
	return nil, errors.Join(ErrNotFound, fmt.Errorf("no current subscription for reference %q", referenceID))
}

// writeLocked replaces cur with the state of sub, preserving creation time
// and bumping the version. Caller must hold the write lock and have verified
// versions and invariants.
func (s *MemoryStore) writeLocked(cur, sub *Subscription) {
	if cur.ProviderSubscriptionID != "" && cur.ProviderSubscriptionID != sub.ProviderSubscriptionID {
		delete(s.byProvider, cur.ProviderSubscriptionID)
	}

	sub.CreatedAt = cur.CreatedAt
	sub.UpdatedAt = time.Now().UTC()
	sub.Version = cur.Version + 1

	s.byID[sub.ID] = sub.Clone()
	if sub.ProviderSubscriptionID != "" {
		s.byProvider[sub.ProviderSubscriptionID] = sub.ID
	}
}

// checkIndexesLocked rejects writes that would break the single-live
// invariant or claim a provider subscription id tracked by another record.
func (s *MemoryStore) checkIndexesLocked(sub *Subscription) error {
	if sub.Live() {
		for _, id := range s.byRef[sub.ReferenceID] {
			if id == sub.ID {
				continue
			}
			if other := s.byID[id]; other.Live() {
				return errors.Join(ErrDuplicateLive, fmt.Errorf("reference %q already live via %s", sub.ReferenceID, other.ID))
			}
		}
	}
	if sub.ProviderSubscriptionID != "" {
		if id, ok := s.byProvider[sub.ProviderSubscriptionID]; ok && id != sub.ID {
			return errors.Join(ErrSubscriptionExists, fmt.Errorf("provider subscription %q already tracked by %s", sub.ProviderSubscriptionID, id))
		}
	}
	return nil
}

func validateRecord(sub *Subscription) error {
	if sub == nil || sub.ID == uuid.Nil {
		return ErrMissingID
	}
	if sub.ReferenceID == "" {
		return ErrMissingReferenceID
	}
	return nil
}
