package qrlogin

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Conte777/douyin-gateway/internal/domain/qrauth/deps"
	"github.com/Conte777/douyin-gateway/internal/domain/qrauth/entities"
)

// fakeHandle is a scripted automation session
type fakeHandle struct {
	mu sync.Mutex

	capture    *entities.QRCapture
	captureErr error

	signals   []entities.Signal // consumed one per Detect call
	detectErr error
	detectFn  func(ctx context.Context) (entities.Signal, error)

	cookies         []entities.Cookie
	cookiesErr      error
	cookiesDeadline time.Time

	closeErr error

	detectCalls  int
	cookiesCalls int
	closeCalls   int
}

func newFakeHandle() *fakeHandle {
	return &fakeHandle{
		capture: &entities.QRCapture{Image: []byte("png-bytes"), SourceURL: "https://example.com/qr.png"},
		cookies: []entities.Cookie{{Name: "sessionid", Value: "abc"}, {Name: "s_v_web_id", Value: "xyz"}},
	}
}

func (h *fakeHandle) CaptureQR(ctx context.Context) (*entities.QRCapture, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.capture, h.captureErr
}

func (h *fakeHandle) Detect(ctx context.Context) (entities.Signal, error) {
	h.mu.Lock()
	h.detectCalls++
	fn := h.detectFn
	if fn == nil {
		defer h.mu.Unlock()
		if h.detectErr != nil {
			return entities.SignalNone, h.detectErr
		}
		if len(h.signals) == 0 {
			return entities.SignalNone, nil
		}
		signal := h.signals[0]
		h.signals = h.signals[1:]
		return signal, nil
	}
	h.mu.Unlock()
	return fn(ctx)
}

func (h *fakeHandle) Cookies(ctx context.Context) ([]entities.Cookie, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cookiesCalls++
	h.cookiesDeadline, _ = ctx.Deadline()
	return h.cookies, h.cookiesErr
}

func (h *fakeHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closeCalls++
	return h.closeErr
}

func (h *fakeHandle) counts() (detect, cookies, closes int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.detectCalls, h.cookiesCalls, h.closeCalls
}

func (h *fakeHandle) queue(signals ...entities.Signal) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.signals = append(h.signals, signals...)
}

// fakeDriver hands out prepared handles in order
type fakeDriver struct {
	mu      sync.Mutex
	handles []*fakeHandle
	openErr error
	opens   int
}

func (d *fakeDriver) Open(ctx context.Context) (deps.AutomationSession, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opens++
	if d.openErr != nil {
		return nil, d.openErr
	}
	if len(d.handles) == 0 {
		return nil, errors.New("no handle prepared")
	}
	h := d.handles[0]
	d.handles = d.handles[1:]
	return h, nil
}

func (d *fakeDriver) add(h *fakeHandle) *fakeHandle {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handles = append(d.handles, h)
	return h
}

type fakeCookieStore struct {
	mu           sync.Mutex
	saved        []string
	err          error
	saveDeadline time.Time
}

func (s *fakeCookieStore) Save(ctx context.Context, credential string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveDeadline, _ = ctx.Deadline()
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, credential)
	return nil
}

func (s *fakeCookieStore) Load(ctx context.Context) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.saved) == 0 {
		return "", false, nil
	}
	return s.saved[len(s.saved)-1], true, nil
}

func (s *fakeCookieStore) savedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved)
}

type fakePublisher struct {
	mu     sync.Mutex
	events []*entities.CredentialEvent
}

func (p *fakePublisher) PublishCredentialUpdated(ctx context.Context, event *entities.CredentialEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

// blockingPublisher holds every publish until release is closed
type blockingPublisher struct {
	release chan struct{}
	calls   atomic.Int32
}

func (p *blockingPublisher) PublishCredentialUpdated(ctx context.Context, event *entities.CredentialEvent) error {
	p.calls.Add(1)
	select {
	case <-p.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type fakeAttempts struct {
	mu       sync.Mutex
	attempts []entities.LoginAttempt
}

func (r *fakeAttempts) Record(ctx context.Context, attempt *entities.LoginAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, *attempt)
	return nil
}

func (r *fakeAttempts) List(ctx context.Context, limit int) ([]entities.LoginAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]entities.LoginAttempt, len(r.attempts))
	copy(out, r.attempts)
	return out, nil
}

// fakeClock is a manually advanced clock
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
