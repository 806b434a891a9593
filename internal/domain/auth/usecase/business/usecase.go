package business

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Conte777/douyin-gateway/internal/domain/auth/deps"
	"github.com/Conte777/douyin-gateway/internal/domain/auth/entities"
	autherrors "github.com/Conte777/douyin-gateway/internal/domain/auth/errors"
	"github.com/Conte777/douyin-gateway/internal/infrastructure/metrics"
	pkgerrors "github.com/Conte777/douyin-gateway/pkg/errors"
)

const minCookieLength = 10

// AuthUseCase implements credential check and manual credential management
type AuthUseCase struct {
	store    deps.CookieStore
	verifier deps.CredentialVerifier
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// NewAuthUseCase creates a new auth use case
func NewAuthUseCase(
	store deps.CookieStore,
	verifier deps.CredentialVerifier,
	metrics *metrics.Metrics,
	logger zerolog.Logger,
) *AuthUseCase {
	return &AuthUseCase{
		store:    store,
		verifier: verifier,
		metrics:  metrics,
		logger:   logger.With().Str("usecase", "auth").Logger(),
	}
}

// Check verifies the stored credential against the platform.
// Rejections and platform failures are reported in the result, not as errors.
func (uc *AuthUseCase) Check(ctx context.Context) (*entities.CheckResult, error) {
	credential, found, err := uc.store.Load(ctx)
	if err != nil {
		return nil, pkgerrors.NewInternalError("failed to read stored cookie", err)
	}
	if !found {
		uc.metrics.RecordCredentialCheck("missing")
		return &entities.CheckResult{Valid: false, Reason: "cookie not found"}, nil
	}

	return uc.verify(ctx, credential), nil
}

// GetCookie returns the stored credential with a masked form for display
func (uc *AuthUseCase) GetCookie(ctx context.Context) (*entities.StoredCookie, error) {
	credential, found, err := uc.store.Load(ctx)
	if err != nil {
		return nil, pkgerrors.NewInternalError("failed to read stored cookie", err)
	}
	if !found {
		return nil, pkgerrors.NewNotFoundError("no saved cookie found", nil)
	}

	return &entities.StoredCookie{
		Masked: entities.MaskCookie(credential),
		Raw:    credential,
		Length: len(credential),
	}, nil
}

// SetCookie saves credential and then verifies it. A failed verification
// does not undo the save.
func (uc *AuthUseCase) SetCookie(ctx context.Context, credential string) (*entities.CheckResult, error) {
	credential = strings.TrimSpace(credential)
	if len(credential) < minCookieLength {
		return nil, pkgerrors.NewValidationError(autherrors.ErrCookieTooShort.Error())
	}

	if err := uc.store.Save(ctx, credential); err != nil {
		uc.logger.Error().Err(err).Msg("failed to save cookie")
		return nil, pkgerrors.NewInternalError("failed to save cookie: "+err.Error(), err)
	}

	uc.logger.Info().Int("length", len(credential)).Msg("cookie set manually")
	return uc.verify(ctx, credential), nil
}

func (uc *AuthUseCase) verify(ctx context.Context, credential string) *entities.CheckResult {
	identity, err := uc.verifier.Verify(ctx, credential)
	switch {
	case err == nil:
		uc.metrics.RecordCredentialCheck("valid")
		uc.logger.Info().Str("uid", identity.UID).Msg("cookie verified")
		return &entities.CheckResult{Valid: true, Identity: identity}

	case errors.Is(err, autherrors.ErrCredentialInvalid):
		uc.metrics.RecordCredentialCheck("invalid")
		uc.logger.Warn().Err(err).Msg("cookie rejected")
		return &entities.CheckResult{Valid: false, Reason: err.Error()}

	default:
		uc.metrics.RecordCredentialCheck("error")
		uc.logger.Warn().Err(err).Msg("cookie verification failed")
		return &entities.CheckResult{Valid: false, Reason: "verification failed: " + err.Error()}
	}
}

// Ensure AuthUseCase implements deps.AuthService
var _ deps.AuthService = (*AuthUseCase)(nil)
