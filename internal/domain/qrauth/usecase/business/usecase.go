package business

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Conte777/douyin-gateway/internal/domain/qrauth/deps"
	"github.com/Conte777/douyin-gateway/internal/domain/qrauth/entities"
	qrerrors "github.com/Conte777/douyin-gateway/internal/domain/qrauth/errors"
	"github.com/Conte777/douyin-gateway/internal/infrastructure/logger"
	pkgerrors "github.com/Conte777/douyin-gateway/pkg/errors"
)

const (
	maxTokenLength      = 128
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
)

// QRAuthUseCase validates input before handing it to the session manager
type QRAuthUseCase struct {
	service deps.QRAuthService
	logger  zerolog.Logger
}

var _ deps.QRAuthService = (*QRAuthUseCase)(nil)

// NewQRAuthUseCase creates a new QR auth use case
func NewQRAuthUseCase(service deps.QRAuthService, logger zerolog.Logger) *QRAuthUseCase {
	return &QRAuthUseCase{
		service: service,
		logger:  logger.With().Str("usecase", "qrauth").Logger(),
	}
}

// StartSession initiates a QR login
func (uc *QRAuthUseCase) StartSession(ctx context.Context) (*entities.LoginSession, error) {
	uc.logger.Info().Msg("starting QR login")

	session, err := uc.service.StartSession(ctx)
	if err != nil {
		uc.logger.Error().Err(err).Msg("failed to start QR login")
		return nil, toServiceError(err)
	}

	return session, nil
}

// Poll advances and returns the session behind token
func (uc *QRAuthUseCase) Poll(ctx context.Context, token string) (*entities.LoginSession, error) {
	token, ok := sanitizeToken(token)
	if !ok {
		return nil, toServiceError(qrerrors.ErrSessionNotFound)
	}

	session, err := uc.service.Poll(ctx, token)
	if err != nil {
		return nil, toServiceError(err)
	}
	return session, nil
}

// Cancel terminates the session behind token
func (uc *QRAuthUseCase) Cancel(ctx context.Context, token string) (*entities.LoginSession, error) {
	token, ok := sanitizeToken(token)
	if !ok {
		return nil, toServiceError(qrerrors.ErrSessionNotFound)
	}

	uc.logger.Info().Str("token", logger.ShortToken(token)).Msg("cancelling QR login")

	session, err := uc.service.Cancel(ctx, token)
	if err != nil {
		return nil, toServiceError(err)
	}
	return session, nil
}

// History lists recent login attempts. Out of range limits are clamped.
func (uc *QRAuthUseCase) History(ctx context.Context, limit int) ([]entities.LoginAttempt, error) {
	switch {
	case limit <= 0:
		limit = defaultHistoryLimit
	case limit > maxHistoryLimit:
		limit = maxHistoryLimit
	}

	return uc.service.History(ctx, limit)
}

func sanitizeToken(token string) (string, bool) {
	token = strings.TrimSpace(token)
	if token == "" || len(token) > maxTokenLength {
		return "", false
	}
	return token, true
}

// toServiceError wraps session manager sentinels in HTTP-class errors.
// Unknown errors are returned as is and end up as 500.
func toServiceError(err error) error {
	switch {
	case errors.Is(err, qrerrors.ErrSessionNotFound):
		return pkgerrors.NewNotFoundError(qrerrors.ErrSessionNotFound.Error(), err)
	case errors.Is(err, qrerrors.ErrTooManyRequests):
		return pkgerrors.NewTooManyRequestsError(qrerrors.ErrTooManyRequests.Error(), err)
	case errors.Is(err, qrerrors.ErrMaxSessionsReached):
		return pkgerrors.NewTooManyRequestsError(qrerrors.ErrMaxSessionsReached.Error(), err)
	case errors.Is(err, qrerrors.ErrQRNotFound):
		return pkgerrors.NewBadGatewayError(qrerrors.ErrQRNotFound.Error(), err)
	case errors.Is(err, qrerrors.ErrSetupFailed):
		return pkgerrors.NewBadGatewayError(err.Error(), err)
	case errors.Is(err, qrerrors.ErrManagerClosed):
		return pkgerrors.NewServiceUnavailableError(qrerrors.ErrManagerClosed.Error(), err)
	default:
		return err
	}
}
