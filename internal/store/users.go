package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hkealoha/town-weather-service/internal/models"
)

// InMemoryUserStore is a concurrency-safe in-memory UserStore.
type InMemoryUserStore struct {
	mu    sync.RWMutex
	users map[string]models.User
}

// NewInMemoryUserStore creates an empty InMemoryUserStore.
func NewInMemoryUserStore() *InMemoryUserStore {
	return &InMemoryUserStore{users: make(map[string]models.User)}
}

// Create stores a new user. An empty ID is assigned a fresh uuid.
func (s *InMemoryUserStore) Create(ctx context.Context, user models.User) (models.User, error) {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[user.ID]; exists {
		return models.User{}, fmt.Errorf("user %s already exists", user.ID)
	}
	s.users[user.ID] = user
	return user, nil
}

// Get returns the user by id, or ErrNotFound.
func (s *InMemoryUserStore) Get(ctx context.Context, id string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[id]
	if !ok {
		return models.User{}, ErrNotFound
	}
	return user, nil
}

// FindByOriginIP returns the guest user recorded for this origin, or ErrNotFound.
func (s *InMemoryUserStore) FindByOriginIP(ctx context.Context, ip string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, user := range s.users {
		if user.GuestID != "" && user.OriginIP == ip {
			return user, nil
		}
	}
	return models.User{}, ErrNotFound
}

// FindByGoogle returns the federated user matching the subject id or email, or ErrNotFound.
func (s *InMemoryUserStore) FindByGoogle(ctx context.Context, googleID, email string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, user := range s.users {
		if googleID != "" && user.GoogleID == googleID {
			return user, nil
		}
		if email != "" && user.Email == email {
			return user, nil
		}
	}
	return models.User{}, ErrNotFound
}

// AddReputation adds delta to the user's reputation. Delta must be positive;
// reputation is monotonically non-decreasing.
func (s *InMemoryUserStore) AddReputation(ctx context.Context, id string, delta int) (models.User, error) {
	if delta <= 0 {
		return models.User{}, fmt.Errorf("reputation delta must be positive, got %d", delta)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return models.User{}, ErrNotFound
	}
	user.Reputation += delta
	s.users[id] = user
	return user, nil
}
