package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod"
)

// locator finds one element on a page, waiting until ctx is done
type locator struct {
	name string
	find func(ctx context.Context, page *rod.Page) (*rod.Element, error)
}

func css(selector string) locator {
	return locator{
		name: selector,
		find: func(ctx context.Context, page *rod.Page) (*rod.Element, error) {
			return page.Context(ctx).Element(selector)
		},
	}
}

// cssText matches elements whose text matches the JS regex
func cssText(selector, regex string) locator {
	return locator{
		name: fmt.Sprintf("%s /%s/", selector, regex),
		find: func(ctx context.Context, page *rod.Page) (*rod.Element, error) {
			return page.Context(ctx).ElementR(selector, regex)
		},
	}
}

// Elements that open the login dialog on the home page, in priority order
var loginTriggers = []locator{
	cssText("button", "登录"),
	css(`[class*="login"]`),
	cssText("*", `^\s*登录\s*$`),
	css(`[data-e2e="login-button"]`),
}

// QR code elements inside the login dialog, in priority order
var qrLocators = []locator{
	css(`img[src*="qrcode"]`),
	css(`img[src*="qr"]`),
	css(`[class*="qrcode"] img`),
	css(`canvas[class*="qr"]`),
}

var errNoMatch = errors.New("no locator matched")

// finder is a locator bound to a page
type finder struct {
	name string
	find func(ctx context.Context) (*rod.Element, error)
}

func bind(page *rod.Page, locators []locator) []finder {
	out := make([]finder, 0, len(locators))
	for _, l := range locators {
		l := l
		out = append(out, finder{
			name: l.name,
			find: func(ctx context.Context) (*rod.Element, error) { return l.find(ctx, page) },
		})
	}
	return out
}

// firstFound tries each finder in order, giving each up to timeout.
// It returns the first element found and the name of the finder that found it.
func firstFound(ctx context.Context, timeout time.Duration, finders []finder) (*rod.Element, string, error) {
	for _, f := range finders {
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}

		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		el, err := f.find(attemptCtx)
		cancel()

		if err == nil && el != nil {
			return el, f.name, nil
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	return nil, "", errNoMatch
}
