package browser

import (
	"context"
	"strings"

	"github.com/go-rod/rod"

	"github.com/Conte777/douyin-gateway/internal/domain/qrauth/entities"
)

const avatarSelector = `[class*="avatar"]`

var (
	rateLimitedTexts = []string{"操作频繁", "访问频繁", "请稍后再试"}
	expiredTexts     = []string{"二维码已过期", "二维码失效"}
	scannedTexts     = []string{"扫码成功", "请在手机上确认"}
)

// pageProbe reads the state of the login page
type pageProbe interface {
	Has(ctx context.Context, selector string) (bool, error)
	URL(ctx context.Context) (string, error)
	Text(ctx context.Context) (string, error)
}

// detect runs the probes in order; the first indicator found wins.
// A logged-in avatar counts only once the page has left the passport flow.
func detect(ctx context.Context, probe pageProbe) (entities.Signal, error) {
	hasAvatar, err := probe.Has(ctx, avatarSelector)
	if err != nil {
		return entities.SignalNone, err
	}
	if hasAvatar {
		url, err := probe.URL(ctx)
		if err != nil {
			return entities.SignalNone, err
		}
		if !strings.Contains(url, "passport") {
			return entities.SignalConfirmed, nil
		}
	}

	text, err := probe.Text(ctx)
	if err != nil {
		return entities.SignalNone, err
	}

	switch {
	case containsAny(text, rateLimitedTexts):
		return entities.SignalRateLimited, nil
	case containsAny(text, expiredTexts):
		return entities.SignalExpired, nil
	case containsAny(text, scannedTexts):
		return entities.SignalScanned, nil
	default:
		return entities.SignalNone, nil
	}
}

func containsAny(text string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(text, n) {
			return true
		}
	}
	return false
}

// rodProbe reads a live rod page
type rodProbe struct {
	page *rod.Page
}

func (p rodProbe) Has(ctx context.Context, selector string) (bool, error) {
	has, _, err := p.page.Context(ctx).Has(selector)
	return has, err
}

func (p rodProbe) URL(ctx context.Context) (string, error) {
	info, err := p.page.Context(ctx).Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

func (p rodProbe) Text(ctx context.Context) (string, error) {
	res, err := p.page.Context(ctx).Eval(`() => document.body ? document.body.innerText : ""`)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}
