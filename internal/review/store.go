// Package review holds extraction results awaiting a human accept/reject
// decision and commits accepted ones to the expense ledger.
package review

import (
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/thevitaly/payme-smart/constants"
	"github.com/thevitaly/payme-smart/internal/entity"
)

// ErrAlreadyDecided is returned when a terminal item receives a second
// decision. The first decision stands; no writes happen for the second.
var ErrAlreadyDecided = errors.New("review item already decided")

// ErrItemNotFound is returned for unknown review item ids.
var ErrItemNotFound = errors.New("review item not found")

// Store keeps pending review items in memory. All state transitions go
// through Apply under one mutex, which is what makes the
// pending -> accepted|rejected transition happen exactly once.
type Store struct {
	mu    sync.Mutex
	items map[uuid.UUID]*entity.ReviewItem
}

func NewStore() *Store {
	return &Store{items: map[uuid.UUID]*entity.ReviewItem{}}
}

// Add registers a new pending item. An id is assigned when missing.
func (s *Store) Add(item *entity.ReviewItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	if item.Status == "" {
		item.Status = constants.ReviewPending
	}
	s.items[item.ID] = item
}

// Get returns a copy of the item, so callers cannot mutate store state.
func (s *Store) Get(id uuid.UUID) (*entity.ReviewItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return nil, false
	}
	cp := *item
	return &cp, true
}

// List returns all items newest first.
func (s *Store) List() []*entity.ReviewItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*entity.ReviewItem, 0, len(s.items))
	for _, item := range s.items {
		cp := *item
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Apply transitions the item out of pending. A second call for the same item
// fails with ErrAlreadyDecided regardless of which decision came first.
func (s *Store) Apply(id uuid.UUID, decision constants.Decision) (*entity.ReviewItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return nil, ErrItemNotFound
	}
	if item.Status.Terminal() {
		return nil, ErrAlreadyDecided
	}
	item.Status = constants.ReviewStatus(decision)
	cp := *item
	return &cp, nil
}

// revert puts an item back to pending after a failed downstream write, so the
// operator can retry the decision.
func (s *Store) revert(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item, ok := s.items[id]; ok {
		item.Status = constants.ReviewPending
	}
}
