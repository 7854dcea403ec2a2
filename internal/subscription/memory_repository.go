package subscription

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is the in-memory Repository used in tests and
// single-process setups. Same conditional-transition semantics as the
// Postgres implementation.
type MemoryRepository struct {
	mu   sync.Mutex
	subs map[uuid.UUID]*Subscription
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{subs: make(map[uuid.UUID]*Subscription)}
}

func (r *MemoryRepository) Create(_ context.Context, s *Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *s
	r.subs[s.ID] = &cp
	return nil
}

func (r *MemoryRepository) GetByID(_ context.Context, id uuid.UUID) (*Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.subs[id]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *MemoryRepository) GetLatestByUser(_ context.Context, userID uuid.UUID) (*Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var latest *Subscription
	for _, s := range r.subs {
		if s.UserID != userID {
			continue
		}
		if latest == nil || s.CreatedAt.After(latest.CreatedAt) {
			latest = s
		}
	}
	if latest == nil {
		return nil, ErrSubscriptionNotFound
	}
	cp := *latest
	return &cp, nil
}

func (r *MemoryRepository) GetActiveByUser(_ context.Context, userID uuid.UUID) (*Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.subs {
		if s.UserID == userID && s.Status == StatusActive {
			cp := *s
			return &cp, nil
		}
	}
	return nil, ErrSubscriptionNotFound
}

func (r *MemoryRepository) UpdateStatus(_ context.Context, id uuid.UUID, from, to Status) (*Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.subs[id]
	if !ok || s.Status != from {
		return nil, ErrSubscriptionNotFound
	}
	s.Status = to
	s.UpdatedAt = time.Now().UTC()
	cp := *s
	return &cp, nil
}

func (r *MemoryRepository) UpdateStatusAndEndDate(_ context.Context, id uuid.UUID, from, to Status, endDate time.Time) (*Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.subs[id]
	if !ok || s.Status != from {
		return nil, ErrSubscriptionNotFound
	}
	s.Status = to
	s.EndDate = endDate
	s.UpdatedAt = time.Now().UTC()
	cp := *s
	return &cp, nil
}

func (r *MemoryRepository) FindActiveEnded(_ context.Context, now time.Time) ([]Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []Subscription
	for _, s := range r.subs {
		if s.Status == StatusActive && s.Ended(now) {
			result = append(result, *s)
		}
	}
	return result, nil
}

func (r *MemoryRepository) List(_ context.Context, f Filter) (*PagedSubscriptions, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var all []Subscription
	for _, s := range r.subs {
		if f.UserID != nil && s.UserID != *f.UserID {
			continue
		}
		if f.Plan != nil && s.Plan != *f.Plan {
			continue
		}
		if f.Status != nil && s.Status != *f.Status {
			continue
		}
		all = append(all, *s)
	}

	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	page := &PagedSubscriptions{
		TotalCount: int64(len(all)),
		Page:       f.Page,
		PageSize:   f.PageSize,
	}

	start := (f.Page - 1) * f.PageSize
	if start < len(all) {
		end := start + f.PageSize
		if end > len(all) {
			end = len(all)
		}
		page.Subscriptions = all[start:end]
	}

	return page, nil
}
