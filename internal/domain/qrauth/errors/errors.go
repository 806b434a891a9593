package errors

import "errors"

var (
	ErrSessionNotFound    = errors.New("qr login session expired or unknown")
	ErrQRNotFound         = errors.New("no QR code found")
	ErrSetupFailed        = errors.New("failed to open login page")
	ErrMaxSessionsReached = errors.New("maximum concurrent login sessions reached")
	ErrTooManyRequests    = errors.New("too many login attempts, slow down")
	ErrManagerClosed      = errors.New("qr login manager is shut down")
)
