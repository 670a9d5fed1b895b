package rules

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// RuleStore manages rule persistence and retrieval.
type RuleStore interface {
	// Add a new rule
	Add(ctx context.Context, rule *Rule) error

	// Get a rule by ID
	Get(ctx context.Context, id string) (*Rule, error)

	// List all rules, active or not
	List(ctx context.Context) ([]*Rule, error)

	// List all active rules
	ListActive(ctx context.Context) ([]*Rule, error)

	// Update an existing rule
	Update(ctx context.Context, rule *Rule) error

	// Delete a rule
	Delete(ctx context.Context, id string) error
}

// InMemoryRuleStore implements RuleStore using an in-memory map.
// Thread-safe with RWMutex.
type InMemoryRuleStore struct {
	rules map[string]*Rule
	mu    sync.RWMutex
}

// NewInMemoryRuleStore creates a new in-memory rule store
func NewInMemoryRuleStore() *InMemoryRuleStore {
	return &InMemoryRuleStore{
		rules: make(map[string]*Rule),
	}
}

// Add adds a new rule to the store and stamps CreatedAt and UpdatedAt.
func (s *InMemoryRuleStore) Add(ctx context.Context, rule *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rules[rule.ID]; exists {
		return fmt.Errorf("%w: %s", ErrRuleExists, rule.ID)
	}

	now := time.Now().UTC()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	stored := *rule
	s.rules[rule.ID] = &stored
	return nil
}

// Get retrieves a rule by ID
func (s *InMemoryRuleStore) Get(ctx context.Context, id string) (*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rule, exists := s.rules[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}

	out := *rule
	return &out, nil
}

// List returns every rule ordered by creation time.
func (s *InMemoryRuleStore) List(ctx context.Context) ([]*Rule, error) {
	return s.list(false), nil
}

// ListActive returns all active rules ordered by creation time.
func (s *InMemoryRuleStore) ListActive(ctx context.Context) ([]*Rule, error) {
	return s.list(true), nil
}

func (s *InMemoryRuleStore) list(activeOnly bool) []*Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Rule, 0, len(s.rules))
	for _, rule := range s.rules {
		if activeOnly && !rule.Active {
			continue
		}
		r := *rule
		out = append(out, &r)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Update replaces an existing rule. CreatedAt is preserved and UpdatedAt refreshed.
func (s *InMemoryRuleStore) Update(ctx context.Context, rule *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.rules[rule.ID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrRuleNotFound, rule.ID)
	}

	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = time.Now().UTC()

	stored := *rule
	s.rules[rule.ID] = &stored
	return nil
}

// Delete removes a rule from the store
func (s *InMemoryRuleStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rules[id]; !exists {
		return fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}

	delete(s.rules, id)
	return nil
}
