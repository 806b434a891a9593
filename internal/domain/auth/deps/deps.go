package deps

import (
	"context"

	"github.com/Conte777/douyin-gateway/internal/domain/auth/entities"
	qrdeps "github.com/Conte777/douyin-gateway/internal/domain/qrauth/deps"
)

// CookieStore persists the single platform credential
type CookieStore = qrdeps.CookieStore

// CredentialVerifier checks a credential against the platform
type CredentialVerifier interface {
	// Verify returns the identity behind credential. A credential the
	// platform rejects yields an error wrapping ErrCredentialInvalid.
	Verify(ctx context.Context, credential string) (*entities.Identity, error)
}

// AuthService defines credential operations exposed to delivery layers
type AuthService interface {
	// Check verifies the stored credential
	Check(ctx context.Context) (*entities.CheckResult, error)

	// GetCookie returns the stored credential
	GetCookie(ctx context.Context) (*entities.StoredCookie, error)

	// SetCookie saves a manually supplied credential and then verifies it
	SetCookie(ctx context.Context, credential string) (*entities.CheckResult, error)
}
