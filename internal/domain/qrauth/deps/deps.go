package deps

import (
	"context"
	"errors"

	"github.com/Conte777/douyin-gateway/internal/domain/qrauth/entities"
)

// ErrAutomationLost is returned (wrapped) by an AutomationSession when the
// underlying browser or page is gone and cannot recover.
var ErrAutomationLost = errors.New("automation session lost")

// QRAuthService defines QR login operations exposed to delivery layers
type QRAuthService interface {
	// StartSession opens the login page and returns a session with its QR image
	StartSession(ctx context.Context) (*entities.LoginSession, error)

	// Poll advances the session state machine and returns the new snapshot
	Poll(ctx context.Context, token string) (*entities.LoginSession, error)

	// Cancel terminates a live session
	Cancel(ctx context.Context, token string) (*entities.LoginSession, error)

	// History lists recent login attempts, newest first
	History(ctx context.Context, limit int) ([]entities.LoginAttempt, error)
}

// AutomationDriver opens isolated browsing sessions on the platform login surface
type AutomationDriver interface {
	// Open starts a fresh isolated session and navigates to the login surface.
	// On error the returned session may be non-nil and must still be closed.
	Open(ctx context.Context) (AutomationSession, error)
}

// AutomationSession is a live browser page owned by exactly one login session
type AutomationSession interface {
	// CaptureQR locates the QR element and captures it as an image
	CaptureQR(ctx context.Context) (*entities.QRCapture, error)

	// Detect inspects the current page for scan/confirm/expire/rate-limit indicators
	Detect(ctx context.Context) (entities.Signal, error)

	// Cookies returns every cookie accumulated in the session cookie jar
	Cookies(ctx context.Context) ([]entities.Cookie, error)

	// Close releases all resources. Safe to call more than once.
	Close() error
}

// CookieStore persists the single platform credential
type CookieStore interface {
	Save(ctx context.Context, credential string) error
	Load(ctx context.Context) (string, bool, error)
}

// CredentialPublisher announces harvested credentials to other services
type CredentialPublisher interface {
	PublishCredentialUpdated(ctx context.Context, event *entities.CredentialEvent) error
}

// AttemptRepository stores login attempt outcomes
type AttemptRepository interface {
	Record(ctx context.Context, attempt *entities.LoginAttempt) error
	List(ctx context.Context, limit int) ([]entities.LoginAttempt, error)
}
