package http

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/fasthttp/router"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"github.com/Conte777/douyin-gateway/internal/domain/qrauth/entities"
	qrerrors "github.com/Conte777/douyin-gateway/internal/domain/qrauth/errors"
	pkgerrors "github.com/Conte777/douyin-gateway/pkg/errors"
)

type mockQRAuthService struct {
	session  *entities.LoginSession
	err      error
	attempts []entities.LoginAttempt

	polled    string
	cancelled string
	limit     int
}

func (m *mockQRAuthService) StartSession(ctx context.Context) (*entities.LoginSession, error) {
	return m.session, m.err
}

func (m *mockQRAuthService) Poll(ctx context.Context, token string) (*entities.LoginSession, error) {
	m.polled = token
	return m.session, m.err
}

func (m *mockQRAuthService) Cancel(ctx context.Context, token string) (*entities.LoginSession, error) {
	m.cancelled = token
	return m.session, m.err
}

func (m *mockQRAuthService) History(ctx context.Context, limit int) ([]entities.LoginAttempt, error) {
	m.limit = limit
	return m.attempts, m.err
}

func serve(t *testing.T, svc *mockQRAuthService, method, uri string) *fasthttp.RequestCtx {
	t.Helper()

	rt := router.New()
	NewRouter(NewQRAuthHandler(svc, zerolog.Nop()), zerolog.Nop()).RegisterRoutes(rt)

	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(uri)
	rt.Handler(ctx)
	return ctx
}

func TestGetQRCode_Success(t *testing.T) {
	expires := time.Unix(1735689900, 0)
	svc := &mockQRAuthService{session: &entities.LoginSession{
		Token:     "tok-1",
		Status:    entities.StatusWaiting,
		QRImage:   []byte{0x89, 'P', 'N', 'G'},
		QRURL:     "https://p3.douyinpic.com/qrcode.png",
		ExpiresAt: expires,
	}}

	ctx := serve(t, svc, fasthttp.MethodGet, "/api/auth/qrcode")

	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.JSONEq(t, `{
		"success": true,
		"data": {
			"token": "tok-1",
			"qrcode_url": "https://p3.douyinpic.com/qrcode.png",
			"qrcode_base64": "data:image/png;base64,iVBORw==",
			"expire_at": 1735689900
		}
	}`, string(ctx.Response.Body()))
}

func TestGetQRCode_Errors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"rate limited", pkgerrors.NewTooManyRequestsError("slow down", qrerrors.ErrTooManyRequests), fasthttp.StatusTooManyRequests},
		{"qr not found", pkgerrors.NewBadGatewayError("qr not found", qrerrors.ErrQRNotFound), fasthttp.StatusBadGateway},
		{"closed", pkgerrors.NewServiceUnavailableError("closed", qrerrors.ErrManagerClosed), fasthttp.StatusServiceUnavailable},
		{"other", fmt.Errorf("boom"), fasthttp.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := serve(t, &mockQRAuthService{err: tt.err}, fasthttp.MethodGet, "/api/auth/qrcode")

			assert.Equal(t, tt.status, ctx.Response.StatusCode())
			assert.Contains(t, string(ctx.Response.Body()), `"success":false`)
		})
	}
}

func TestGetStatus_Confirmed(t *testing.T) {
	svc := &mockQRAuthService{session: &entities.LoginSession{
		Token:      "tok-1",
		Status:     entities.StatusConfirmed,
		Message:    "login confirmed",
		Credential: "sessionid=abc",
	}}

	ctx := serve(t, svc, fasthttp.MethodGet, "/api/auth/qrcode/status?token=tok-1")

	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Equal(t, "tok-1", svc.polled)
	assert.JSONEq(t, `{
		"token": "tok-1",
		"status": 3,
		"status_name": "confirmed",
		"message": "login confirmed",
		"cookie": "sessionid=abc"
	}`, string(ctx.Response.Body()))
}

func TestGetStatus_Waiting(t *testing.T) {
	svc := &mockQRAuthService{session: &entities.LoginSession{
		Token:   "tok-1",
		Status:  entities.StatusWaiting,
		Message: "waiting for scan",
	}}

	ctx := serve(t, svc, fasthttp.MethodGet, "/api/auth/qrcode/status?token=tok-1")

	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.NotContains(t, string(ctx.Response.Body()), "cookie")
}

func TestGetStatus_MissingToken(t *testing.T) {
	svc := &mockQRAuthService{}

	ctx := serve(t, svc, fasthttp.MethodGet, "/api/auth/qrcode/status")

	assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
	assert.Empty(t, svc.polled)
}

func TestGetStatus_UnknownToken(t *testing.T) {
	svc := &mockQRAuthService{err: pkgerrors.NewNotFoundError(qrerrors.ErrSessionNotFound.Error(), qrerrors.ErrSessionNotFound)}

	ctx := serve(t, svc, fasthttp.MethodGet, "/api/auth/qrcode/status?token=gone")

	assert.Equal(t, fasthttp.StatusNotFound, ctx.Response.StatusCode())
	assert.JSONEq(t, `{"error":"qr login session expired or unknown"}`, string(ctx.Response.Body()))
}

func TestCancel(t *testing.T) {
	svc := &mockQRAuthService{session: &entities.LoginSession{
		Token:   "tok-1",
		Status:  entities.StatusFailed,
		Message: "login cancelled",
	}}

	ctx := serve(t, svc, fasthttp.MethodDelete, "/api/auth/qrcode/tok-1")

	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Equal(t, "tok-1", svc.cancelled)
	assert.Contains(t, string(ctx.Response.Body()), `"status":6`)
}

func TestHistory(t *testing.T) {
	finished := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := &mockQRAuthService{attempts: []entities.LoginAttempt{
		{Token: "tok-1", Status: entities.StatusExpired, Message: "QR code expired", StartedAt: finished.Add(-5 * time.Minute), FinishedAt: finished},
	}}

	ctx := serve(t, svc, fasthttp.MethodGet, "/api/auth/qrcode/history?limit=5")

	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Equal(t, 5, svc.limit)
	assert.JSONEq(t, `{"attempts":[{
		"token": "tok-1",
		"status": 5,
		"status_name": "expired",
		"message": "QR code expired",
		"started_at": "2025-03-01T11:55:00Z",
		"finished_at": "2025-03-01T12:00:00Z"
	}]}`, string(ctx.Response.Body()))
}

func TestHistory_BadLimit(t *testing.T) {
	ctx := serve(t, &mockQRAuthService{}, fasthttp.MethodGet, "/api/auth/qrcode/history?limit=abc")

	assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
}
