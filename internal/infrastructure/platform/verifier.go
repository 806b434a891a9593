package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"github.com/Conte777/douyin-gateway/internal/domain/auth/deps"
	"github.com/Conte777/douyin-gateway/internal/domain/auth/entities"
	autherrors "github.com/Conte777/douyin-gateway/internal/domain/auth/errors"
	qrentities "github.com/Conte777/douyin-gateway/internal/domain/qrauth/entities"
)

// whoAmIPath returns the logged-in user's uid for the cookie sent
const whoAmIPath = "/aweme/v1/web/query/user/"

// Verifier checks credentials by asking the platform who they belong to
type Verifier struct {
	client          *fasthttp.Client
	baseURL         string
	userAgent       string
	timeout         time.Duration
	requiredCookies []string
	logger          zerolog.Logger
}

var _ deps.CredentialVerifier = (*Verifier)(nil)

// NewVerifier creates a new credential verifier
func NewVerifier(
	client *fasthttp.Client,
	baseURL, userAgent string,
	timeout time.Duration,
	requiredCookies []string,
	logger zerolog.Logger,
) *Verifier {
	return &Verifier{
		client:          client,
		baseURL:         baseURL,
		userAgent:       userAgent,
		timeout:         timeout,
		requiredCookies: requiredCookies,
		logger:          logger.With().Str("component", "platform_verifier").Logger(),
	}
}

type whoAmIResponse struct {
	StatusCode int         `json:"status_code"`
	StatusMsg  string      `json:"status_msg"`
	UserUID    interface{} `json:"user_uid"` // string or number
	Nickname   string      `json:"nickname"`
	Avatar     string      `json:"avatar_url"`
}

// Verify checks the required cookie fields, then makes one request to the
// platform. Rejections wrap ErrCredentialInvalid; transport failures do not.
func (v *Verifier) Verify(ctx context.Context, credential string) (*entities.Identity, error) {
	if err := v.checkRequired(credential); err != nil {
		return nil, err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(v.baseURL + whoAmIPath)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Cookie", credential)
	req.Header.Set("User-Agent", v.userAgent)
	req.Header.Set("Referer", v.baseURL+"/")
	req.Header.Set("Accept", "application/json")

	deadline := time.Now().Add(v.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	if err := v.client.DoDeadline(req, resp, deadline); err != nil {
		return nil, fmt.Errorf("platform request failed: %w", err)
	}

	switch status := resp.StatusCode(); {
	case status == fasthttp.StatusUnauthorized || status == fasthttp.StatusForbidden:
		return nil, fmt.Errorf("%w: platform answered %d", autherrors.ErrCredentialInvalid, status)
	case status != fasthttp.StatusOK:
		return nil, fmt.Errorf("platform answered %d", status)
	}

	body := resp.Body()
	if len(bytes.TrimSpace(body)) == 0 {
		// The endpoint answers an empty body to anonymous sessions
		return nil, fmt.Errorf("%w: empty response", autherrors.ErrCredentialInvalid)
	}

	var parsed whoAmIResponse
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode platform response: %w", err)
	}

	var uid string
	switch raw := parsed.UserUID.(type) {
	case string:
		uid = raw
	case json.Number:
		uid = raw.String()
	}
	if uid == "" || uid == "0" {
		return nil, fmt.Errorf("%w: no user_uid in response", autherrors.ErrCredentialInvalid)
	}

	v.logger.Debug().Str("uid", uid).Msg("credential verified")

	return &entities.Identity{
		UID:      uid,
		Nickname: parsed.Nickname,
		Avatar:   parsed.Avatar,
	}, nil
}

func (v *Verifier) checkRequired(credential string) error {
	present := map[string]bool{}
	for _, c := range qrentities.ParseCookies(credential) {
		if c.Value != "" {
			present[c.Name] = true
		}
	}
	for _, name := range v.requiredCookies {
		if !present[name] {
			return fmt.Errorf("%w: cookie is missing %s", autherrors.ErrCredentialInvalid, name)
		}
	}
	return nil
}
