package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/Conte777/douyin-gateway/internal/domain/qrauth/deps"
	"github.com/Conte777/douyin-gateway/internal/domain/qrauth/entities"
)

// LoginAttemptRepository implements deps.AttemptRepository using PostgreSQL
type LoginAttemptRepository struct {
	db *gorm.DB
}

var _ deps.AttemptRepository = (*LoginAttemptRepository)(nil)

// NewLoginAttemptRepository creates a new PostgreSQL login attempt repository
func NewLoginAttemptRepository(db *gorm.DB) *LoginAttemptRepository {
	return &LoginAttemptRepository{db: db}
}

// Record inserts an attempt
func (r *LoginAttemptRepository) Record(ctx context.Context, attempt *entities.LoginAttempt) error {
	if err := r.db.WithContext(ctx).Create(attempt).Error; err != nil {
		return fmt.Errorf("failed to record login attempt: %w", err)
	}
	return nil
}

// List returns up to limit attempts, most recently finished first
func (r *LoginAttemptRepository) List(ctx context.Context, limit int) ([]entities.LoginAttempt, error) {
	var attempts []entities.LoginAttempt
	err := r.db.WithContext(ctx).
		Order("finished_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&attempts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list login attempts: %w", err)
	}
	return attempts, nil
}
