package http

import (
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"github.com/Conte777/douyin-gateway/internal/domain/qrauth/deps"
	"github.com/Conte777/douyin-gateway/internal/domain/qrauth/dto"
	"github.com/Conte777/douyin-gateway/internal/domain/qrauth/entities"
	pkgerrors "github.com/Conte777/douyin-gateway/pkg/errors"
	"github.com/Conte777/douyin-gateway/pkg/httputil"
)

// QRAuthHandler handles QR login HTTP requests
type QRAuthHandler struct {
	useCase deps.QRAuthService
	mapper  *pkgerrors.Mapper
	logger  zerolog.Logger
}

// NewQRAuthHandler creates a new QR auth handler
func NewQRAuthHandler(useCase deps.QRAuthService, logger zerolog.Logger) *QRAuthHandler {
	logger = logger.With().Str("handler", "qr_auth").Logger()
	return &QRAuthHandler{
		useCase: useCase,
		mapper:  pkgerrors.NewMapper(logger),
		logger:  logger,
	}
}

// GetQRCode handles GET /api/auth/qrcode
func (h *QRAuthHandler) GetQRCode(ctx *fasthttp.RequestCtx) {
	session, err := h.useCase.StartSession(ctx)
	if err != nil {
		status, message := h.mapper.MapErrorToHTTP(err)
		httputil.WriteJSON(ctx, dto.QRCodeResponse{Success: false, Error: message}, status)
		return
	}

	httputil.WriteJSON(ctx, dto.QRCodeResponse{
		Success: true,
		Data: &dto.QRCodeData{
			Token:        session.Token,
			QRCodeURL:    session.QRURL,
			QRCodeBase64: session.QRDataURL(),
			ExpireAt:     session.ExpiresAt.Unix(),
		},
	}, fasthttp.StatusOK)
}

// GetStatus handles GET /api/auth/qrcode/status?token=
func (h *QRAuthHandler) GetStatus(ctx *fasthttp.RequestCtx) {
	token := string(ctx.QueryArgs().Peek("token"))
	if token == "" {
		h.writeError(ctx, fasthttp.StatusBadRequest, "token is required")
		return
	}

	session, err := h.useCase.Poll(ctx, token)
	if err != nil {
		h.handleError(ctx, err)
		return
	}

	httputil.WriteJSON(ctx, toStatusResponse(session), fasthttp.StatusOK)
}

// Cancel handles DELETE /api/auth/qrcode/{token}
func (h *QRAuthHandler) Cancel(ctx *fasthttp.RequestCtx) {
	token, ok := ctx.UserValue("token").(string)
	if !ok || token == "" {
		h.writeError(ctx, fasthttp.StatusBadRequest, "token is required")
		return
	}

	session, err := h.useCase.Cancel(ctx, token)
	if err != nil {
		h.handleError(ctx, err)
		return
	}

	httputil.WriteJSON(ctx, toStatusResponse(session), fasthttp.StatusOK)
}

// History handles GET /api/auth/qrcode/history?limit=
func (h *QRAuthHandler) History(ctx *fasthttp.RequestCtx) {
	limit := 0
	if ctx.QueryArgs().Has("limit") {
		n, err := ctx.QueryArgs().GetUint("limit")
		if err != nil {
			h.writeError(ctx, fasthttp.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	attempts, err := h.useCase.History(ctx, limit)
	if err != nil {
		h.handleError(ctx, err)
		return
	}

	resp := dto.HistoryResponse{Attempts: make([]dto.LoginAttempt, 0, len(attempts))}
	for _, a := range attempts {
		resp.Attempts = append(resp.Attempts, dto.LoginAttempt{
			Token:      a.Token,
			Status:     int(a.Status),
			StatusName: a.Status.String(),
			Message:    a.Message,
			StartedAt:  a.StartedAt,
			FinishedAt: a.FinishedAt,
		})
	}
	httputil.WriteJSON(ctx, resp, fasthttp.StatusOK)
}

func toStatusResponse(session *entities.LoginSession) dto.QRCodeStatusResponse {
	resp := dto.QRCodeStatusResponse{
		Token:      session.Token,
		Status:     int(session.Status),
		StatusName: session.Status.String(),
		Message:    session.Message,
	}
	if session.Credential != "" {
		resp.Cookie = &session.Credential
	}
	return resp
}

// handleError maps domain errors to HTTP status codes
func (h *QRAuthHandler) handleError(ctx *fasthttp.RequestCtx, err error) {
	status, message := h.mapper.MapErrorToHTTP(err)
	h.writeError(ctx, status, message)
}

func (h *QRAuthHandler) writeError(ctx *fasthttp.RequestCtx, status int, message string) {
	httputil.WriteJSON(ctx, dto.ErrorResponse{Error: message}, status)
}
