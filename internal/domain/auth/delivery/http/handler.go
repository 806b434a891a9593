package http

import (
	"encoding/json"

	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"github.com/Conte777/douyin-gateway/internal/domain/auth/deps"
	"github.com/Conte777/douyin-gateway/internal/domain/auth/dto"
	"github.com/Conte777/douyin-gateway/internal/domain/auth/entities"
	pkgerrors "github.com/Conte777/douyin-gateway/pkg/errors"
	"github.com/Conte777/douyin-gateway/pkg/httputil"
)

// AuthHandler handles credential HTTP requests
type AuthHandler struct {
	useCase deps.AuthService
	mapper  *pkgerrors.Mapper
	logger  zerolog.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(useCase deps.AuthService, logger zerolog.Logger) *AuthHandler {
	logger = logger.With().Str("handler", "auth").Logger()
	return &AuthHandler{
		useCase: useCase,
		mapper:  pkgerrors.NewMapper(logger),
		logger:  logger,
	}
}

// Check handles GET /api/auth/check
func (h *AuthHandler) Check(ctx *fasthttp.RequestCtx) {
	result, err := h.useCase.Check(ctx)
	if err != nil {
		status, message := h.mapper.MapErrorToHTTP(err)
		httputil.WriteJSON(ctx, dto.CheckResponse{Valid: false, Error: &message}, status)
		return
	}

	resp := dto.CheckResponse{Valid: result.Valid}
	if result.Valid {
		resp.UserInfo = toUserInfo(result.Identity)
	} else {
		resp.Error = &result.Reason
	}
	httputil.WriteJSON(ctx, resp, fasthttp.StatusOK)
}

// GetCookie handles GET /api/auth/cookie
func (h *AuthHandler) GetCookie(ctx *fasthttp.RequestCtx) {
	cookie, err := h.useCase.GetCookie(ctx)
	if err != nil {
		status, message := h.mapper.MapErrorToHTTP(err)
		httputil.WriteJSON(ctx, dto.CookieResponse{Success: false, Error: message}, status)
		return
	}

	httputil.WriteJSON(ctx, dto.CookieResponse{
		Success:   true,
		Cookie:    &cookie.Masked,
		RawCookie: &cookie.Raw,
		Length:    cookie.Length,
	}, fasthttp.StatusOK)
}

// SetCookie handles POST /api/auth/cookie
func (h *AuthHandler) SetCookie(ctx *fasthttp.RequestCtx) {
	var req dto.SetCookieRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		httputil.WriteJSON(ctx, dto.SetCookieResponse{Success: false, Error: "invalid request body"}, fasthttp.StatusBadRequest)
		return
	}

	result, err := h.useCase.SetCookie(ctx, req.Cookie)
	if err != nil {
		status, message := h.mapper.MapErrorToHTTP(err)
		httputil.WriteJSON(ctx, dto.SetCookieResponse{Success: false, Error: message}, status)
		return
	}

	if !result.Valid {
		httputil.WriteJSON(ctx, dto.SetCookieResponse{
			Success: true,
			Message: "cookie saved, but verification failed (it may have expired)",
			Warning: result.Reason,
		}, fasthttp.StatusOK)
		return
	}

	httputil.WriteJSON(ctx, dto.SetCookieResponse{
		Success:  true,
		Message:  "cookie saved",
		UserInfo: toUserInfo(result.Identity),
	}, fasthttp.StatusOK)
}

func toUserInfo(identity *entities.Identity) *dto.UserInfo {
	if identity == nil {
		return &dto.UserInfo{}
	}
	return &dto.UserInfo{
		UID:      identity.UID,
		Nickname: identity.Nickname,
		Avatar:   identity.Avatar,
	}
}
