package users

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// InMemoryRepository is a map-backed Repository. It is safe for concurrent
// use. Data is lost on restart; it exists for tests and for running the
// server locally without Firestore credentials.
type InMemoryRepository struct {
	mu    sync.RWMutex
	users map[string]*User
}

// NewInMemoryRepository creates an empty in-memory user store.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		users: make(map[string]*User),
	}
}

// Get implements Repository.
func (r *InMemoryRepository) Get(ctx context.Context, phoneNumber string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, exists := r.users[phoneNumber]
	if !exists {
		return nil, ErrNotFound
	}

	// Return a copy to avoid external modifications
	userCopy := *user
	return &userCopy, nil
}

// Create implements Repository.
func (r *InMemoryRepository) Create(ctx context.Context, user *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.users[user.PhoneNumber]; exists {
		return fmt.Errorf("user already exists: %s", user.PhoneNumber)
	}

	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	userCopy := *user
	r.users[user.PhoneNumber] = &userCopy
	return nil
}

// SetCredential implements Repository.
func (r *InMemoryRepository) SetCredential(ctx context.Context, phoneNumber, accessToken, itemID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, exists := r.users[phoneNumber]
	if !exists {
		return ErrNotFound
	}

	user.AccessToken = accessToken
	user.ItemID = itemID
	user.UpdatedAt = time.Now()
	return nil
}

// SetPreference implements Repository.
func (r *InMemoryRepository) SetPreference(ctx context.Context, phoneNumber string, pref Preference) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, exists := r.users[phoneNumber]
	if !exists {
		return ErrNotFound
	}

	user.Preference = pref
	user.UpdatedAt = time.Now()
	return nil
}

// Delete implements Repository.
func (r *InMemoryRepository) Delete(ctx context.Context, phoneNumber string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.users[phoneNumber]; !exists {
		return ErrNotFound
	}

	delete(r.users, phoneNumber)
	return nil
}

// List implements Repository.
func (r *InMemoryRepository) List(ctx context.Context) ([]*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*User, 0, len(r.users))
	for _, user := range r.users {
		userCopy := *user
		result = append(result, &userCopy)
	}
	return result, nil
}

// Ensure InMemoryRepository implements the Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
