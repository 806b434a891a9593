package browser

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/cdp"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog"

	"github.com/Conte777/douyin-gateway/config"
	"github.com/Conte777/douyin-gateway/internal/domain/qrauth/deps"
)

const (
	viewportWidth  = 1920
	viewportHeight = 1080
)

// Driver launches one headless browser per login session
type Driver struct {
	cfg    *config.BrowserConfig
	logger zerolog.Logger
}

var _ deps.AutomationDriver = (*Driver)(nil)

// NewDriver creates a new go-rod automation driver
func NewDriver(cfg *config.BrowserConfig, logger zerolog.Logger) *Driver {
	return &Driver{
		cfg:    cfg,
		logger: logger.With().Str("component", "browser_driver").Logger(),
	}
}

// Open launches a browser, opens an incognito page and navigates to the home page.
// ctx bounds every setup step including the browser download and start; the
// returned session is not tied to it. On failure the partially built session
// is returned so the caller can close it.
func (d *Driver) Open(ctx context.Context) (deps.AutomationSession, error) {
	l := launcher.New().
		Context(ctx).
		Headless(d.cfg.Headless).
		Set("disable-blink-features", "AutomationControlled")
	if d.cfg.Bin != "" {
		l = l.Bin(d.cfg.Bin)
	}

	controlURL, err := l.Launch()
	if err != nil {
		if l.PID() != 0 {
			// Started but never reported a control URL
			go func() {
				l.Kill()
				l.Cleanup()
			}()
		}
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	session := &Session{
		cfg:      d.cfg,
		launcher: l,
		logger:   d.logger,
	}
	if err := ctx.Err(); err != nil {
		return session, err
	}

	// Only the dial is bound to ctx; the event loop lives as long as the connection
	client, err := cdp.StartWithURL(ctx, controlURL, nil)
	if err != nil {
		return session, fmt.Errorf("failed to connect to browser: %w", err)
	}
	browser := rod.New().Client(client)
	if err := browser.Connect(); err != nil {
		return session, fmt.Errorf("failed to connect to browser: %w", err)
	}
	session.browser = browser

	incognito, err := browser.Context(ctx).Incognito()
	if err != nil {
		return session, fmt.Errorf("failed to create incognito context: %w", err)
	}
	session.incognito = incognito.Context(context.Background())

	page, err := incognito.Page(proto.TargetCreateTarget{})
	if err != nil {
		return session, fmt.Errorf("failed to open page: %w", err)
	}
	session.page = page.Context(context.Background())

	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: d.cfg.UserAgent}); err != nil {
		return session, fmt.Errorf("failed to set user agent: %w", err)
	}
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             viewportWidth,
		Height:            viewportHeight,
		DeviceScaleFactor: 1,
	}); err != nil {
		return session, fmt.Errorf("failed to set viewport: %w", err)
	}

	nav := page.Context(ctx).Timeout(d.cfg.NavigationTimeout)
	if err := nav.Navigate(d.cfg.HomeURL); err != nil {
		return session, fmt.Errorf("failed to open %s: %w", d.cfg.HomeURL, err)
	}
	if err := nav.WaitLoad(); err != nil {
		d.logger.Debug().Err(err).Msg("home page did not finish loading")
	}

	d.logger.Debug().Str("url", d.cfg.HomeURL).Msg("browser session opened")
	return session, nil
}
