package memory

import (
	"context"
	"sync"

	"github.com/Conte777/douyin-gateway/internal/domain/qrauth/deps"
	"github.com/Conte777/douyin-gateway/internal/domain/qrauth/entities"
)

// DefaultCapacity is how many attempts the in-memory history keeps
const DefaultCapacity = 500

// LoginAttemptRepository keeps the most recent login attempts in memory
type LoginAttemptRepository struct {
	mu       sync.RWMutex
	attempts []entities.LoginAttempt // oldest first
	capacity int
	nextID   uint
}

var _ deps.AttemptRepository = (*LoginAttemptRepository)(nil)

// NewLoginAttemptRepository creates a bounded in-memory repository
func NewLoginAttemptRepository(capacity int) *LoginAttemptRepository {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &LoginAttemptRepository{
		attempts: make([]entities.LoginAttempt, 0, capacity),
		capacity: capacity,
	}
}

// Record stores an attempt, dropping the oldest one when full
func (r *LoginAttemptRepository) Record(ctx context.Context, attempt *entities.LoginAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	stored := *attempt
	stored.ID = r.nextID

	if len(r.attempts) == r.capacity {
		copy(r.attempts, r.attempts[1:])
		r.attempts = r.attempts[:len(r.attempts)-1]
	}
	r.attempts = append(r.attempts, stored)
	attempt.ID = stored.ID

	return nil
}

// List returns up to limit attempts, newest first
func (r *LoginAttemptRepository) List(ctx context.Context, limit int) ([]entities.LoginAttempt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 || limit > len(r.attempts) {
		limit = len(r.attempts)
	}

	out := make([]entities.LoginAttempt, 0, limit)
	for i := len(r.attempts) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.attempts[i])
	}
	return out, nil
}
