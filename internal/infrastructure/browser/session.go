package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog"

	"github.com/Conte777/douyin-gateway/config"
	"github.com/Conte777/douyin-gateway/internal/domain/qrauth/deps"
	"github.com/Conte777/douyin-gateway/internal/domain/qrauth/entities"
	qrerrors "github.com/Conte777/douyin-gateway/internal/domain/qrauth/errors"
)

const closeTimeout = 5 * time.Second

// Session is one browser process with an incognito page on the login surface
type Session struct {
	cfg *config.BrowserConfig

	launcher  *launcher.Launcher
	browser   *rod.Browser
	incognito *rod.Browser
	page      *rod.Page

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error

	logger zerolog.Logger
}

var _ deps.AutomationSession = (*Session)(nil)

// CaptureQR opens the login dialog and screenshots the QR element.
// When no login trigger is found the login page is opened directly.
func (s *Session) CaptureQR(ctx context.Context) (*entities.QRCapture, error) {
	if s.closed.Load() {
		return nil, deps.ErrAutomationLost
	}
	page := s.page.Context(ctx)

	trigger, name, err := firstFound(ctx, s.cfg.LocatorTimeout, bind(s.page, loginTriggers))
	switch {
	case err == nil:
		s.logger.Debug().Str("locator", name).Msg("clicking login trigger")
		if err := trigger.Context(ctx).Click(proto.InputMouseButtonLeft, 1); err != nil {
			s.logger.Debug().Err(err).Msg("login trigger click failed, opening login page")
			if err := s.openLoginPage(ctx); err != nil {
				return nil, err
			}
		}
	case errors.Is(err, errNoMatch):
		s.logger.Debug().Msg("no login trigger found, opening login page")
		if err := s.openLoginPage(ctx); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	el, name, err := firstFound(ctx, s.cfg.QRLocatorTimeout, bind(s.page, qrLocators))
	if errors.Is(err, errNoMatch) {
		return nil, qrerrors.ErrQRNotFound
	}
	if err != nil {
		return nil, err
	}
	el = el.Context(ctx)

	image, err := el.Screenshot(proto.PageCaptureScreenshotFormatPng, 0)
	if err != nil || len(image) == 0 {
		s.logger.Debug().Err(err).Str("locator", name).Msg("element screenshot failed, clipping page")
		image, err = clipElement(page, el)
		if err != nil {
			return nil, fmt.Errorf("failed to capture QR element: %w", err)
		}
	}

	capture := &entities.QRCapture{Image: image}
	if src, err := el.Attribute("src"); err == nil && src != nil {
		capture.SourceURL = *src
	}

	s.logger.Debug().Str("locator", name).Int("bytes", len(image)).Msg("QR code captured")
	return capture, nil
}

func (s *Session) openLoginPage(ctx context.Context) error {
	page := s.page.Context(ctx).Timeout(s.cfg.NavigationTimeout)
	if err := page.Navigate(s.cfg.LoginURL); err != nil {
		return fmt.Errorf("failed to open %s: %w", s.cfg.LoginURL, err)
	}
	if err := page.WaitLoad(); err != nil {
		s.logger.Debug().Err(err).Msg("login page did not finish loading")
	}
	return nil
}

// clipElement screenshots the page area under the element's box
func clipElement(page *rod.Page, el *rod.Element) ([]byte, error) {
	shape, err := el.Shape()
	if err != nil {
		return nil, err
	}
	box := shape.Box()
	if box == nil || box.Width == 0 || box.Height == 0 {
		return nil, errors.New("QR element has no visible box")
	}

	return page.Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
		Clip: &proto.PageViewport{
			X:      box.X,
			Y:      box.Y,
			Width:  box.Width,
			Height: box.Height,
			Scale:  1,
		},
	})
}

// Detect inspects the page for login progress indicators
func (s *Session) Detect(ctx context.Context) (entities.Signal, error) {
	if s.closed.Load() {
		return entities.SignalNone, deps.ErrAutomationLost
	}

	signal, err := detect(ctx, rodProbe{page: s.page})
	if err != nil {
		if ctx.Err() != nil {
			return entities.SignalNone, err
		}
		// A page that cannot answer a target query is gone
		if _, infoErr := s.page.Context(ctx).Info(); infoErr != nil {
			return entities.SignalNone, fmt.Errorf("%w: %w", deps.ErrAutomationLost, err)
		}
		return entities.SignalNone, err
	}
	return signal, nil
}

// Cookies returns every cookie in the incognito context
func (s *Session) Cookies(ctx context.Context) ([]entities.Cookie, error) {
	if s.closed.Load() {
		return nil, deps.ErrAutomationLost
	}

	raw, err := s.incognito.Context(ctx).GetCookies()
	if err != nil {
		return nil, fmt.Errorf("failed to read cookies: %w", err)
	}

	cookies := make([]entities.Cookie, 0, len(raw))
	for _, c := range raw {
		cookies = append(cookies, entities.Cookie{Name: c.Name, Value: c.Value})
	}
	return cookies, nil
}

// Close tears down the page, the browser and its profile directory
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)

		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()

		if s.page != nil {
			_ = s.page.Context(ctx).Close()
		}
		if s.incognito != nil {
			_ = s.incognito.Context(ctx).Close()
		}
		if s.browser != nil {
			s.closeErr = s.browser.Context(ctx).Close()
		}
		if s.launcher != nil {
			// Kill waits before signalling and Cleanup waits for the process to exit
			l := s.launcher
			go func() {
				l.Kill()
				l.Cleanup()
			}()
		}

		s.logger.Debug().Msg("browser session closed")
	})
	return s.closeErr
}
