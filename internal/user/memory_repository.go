package user

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/carebridge/telehealth-core/internal/subscription"
)

type MemoryRepository struct {
	mu    sync.Mutex
	users map[uuid.UUID]*User
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{users: make(map[uuid.UUID]*User)}
}

// Put seeds a user; fixture helper for tests and in-memory setups.
func (r *MemoryRepository) Put(u User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.ID] = &u
}

func (r *MemoryRepository) GetByID(_ context.Context, id uuid.UUID) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *MemoryRepository) SetSubscriptionState(_ context.Context, userID uuid.UUID, status subscription.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.SubscriptionState = status
	u.UpdatedAt = time.Now().UTC()
	return nil
}
